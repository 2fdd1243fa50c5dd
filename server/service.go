package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/nifki/compiler"
	"github.com/chazu/nifki/host"
	"github.com/chazu/nifki/vm"
)

var log = commonlog.GetLogger("nifki.server")

// ServiceName is the fully qualified name of the runtime service.
const ServiceName = "nifki.v1.RuntimeService"

// Limits bound the work a single request can cause.
type Limits struct {
	// MaxTicks caps the ticks one Run request may execute.
	MaxTicks int
	// MaxStepsPerTick faults a tick that runs too long without WAIT.
	MaxStepsPerTick int
	// MaxSessions caps concurrently open sessions; zero means no cap.
	MaxSessions int
	// SessionTTL is how long an unused session survives.
	SessionTTL time.Duration
}

// DefaultLimits are used for fields left zero.
var DefaultLimits = Limits{
	MaxTicks:        1000,
	MaxStepsPerTick: 1_000_000,
	MaxSessions:     64,
	SessionTTL:      30 * time.Minute,
}

func (l Limits) withDefaults() Limits {
	if l.MaxTicks <= 0 {
		l.MaxTicks = DefaultLimits.MaxTicks
	}
	if l.MaxStepsPerTick <= 0 {
		l.MaxStepsPerTick = DefaultLimits.MaxStepsPerTick
	}
	if l.SessionTTL <= 0 {
		l.SessionTTL = DefaultLimits.SessionTTL
	}
	return l
}

// RuntimeServer is the set of unary methods both transports expose.
// Requests and responses are google.protobuf.Struct messages.
type RuntimeServer interface {
	Assemble(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Run(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OpenSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TickSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CloseSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// Service implements RuntimeServer. Errors it returns are
// *connect.Error values; the gRPC adapter maps their codes onto gRPC
// status codes.
type Service struct {
	reg      *vm.Registry
	asm      *compiler.Assembler
	worker   *MachineWorker
	sessions *SessionStore
	limits   Limits
}

var _ RuntimeServer = (*Service)(nil)

// NewService creates a Service. Session machines run on worker.
func NewService(worker *MachineWorker, sessions *SessionStore, limits Limits) *Service {
	reg := vm.NewRegistry()
	return &Service{
		reg:      reg,
		asm:      compiler.New(reg),
		worker:   worker,
		sessions: sessions,
		limits:   limits.withDefaults(),
	}
}

// Assemble reports whether a source assembles. A syntax error is part
// of the answer, not an RPC failure.
func (s *Service) Assemble(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{req}
	prog, err := s.asm.Assemble(f.str("source"))
	if err != nil {
		var se *compiler.SyntaxError
		if !errors.As(err, &se) {
			return nil, connect.NewError(connect.CodeInternal, err)
		}
		return response(map[string]any{
			"ok":     false,
			"error":  se.Error(),
			"line":   se.Line(),
			"column": se.Pos.Column,
		})
	}
	return response(map[string]any{
		"ok":           true,
		"instructions": len(prog.Code),
		"globals":      anyList(prog.Names),
		"listing":      vm.Disassemble(prog),
	})
}

// Run assembles a source and runs it headless on a fresh machine until
// it ends, faults or reaches maxTicks, collecting DUMP output.
func (s *Service) Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{req}
	prog, err := s.assemble(f.str("source"))
	if err != nil {
		return nil, err
	}
	maxTicks := f.num("maxTicks", s.limits.MaxTicks)
	if maxTicks <= 0 || maxTicks > s.limits.MaxTicks {
		maxTicks = s.limits.MaxTicks
	}

	out := &vm.Recorder{}
	m := vm.NewMachine(s.reg, prog, s.machineConfig(f, nil, out))
	if err := bindPictures(m, f); err != nil {
		return nil, err
	}

	sig := vm.Continue
	var runErr error
	for range maxTicks {
		if err := ctx.Err(); err != nil {
			return nil, contextError(err)
		}
		sig, runErr = m.Tick()
		if sig != vm.Yielded {
			break
		}
	}
	log.Debugf("run: %s after %d ticks", sig, m.Ticks())
	return response(map[string]any{
		"signal": sig.String(),
		"output": anyList(out.Lines),
		"error":  errString(runErr),
		"ticks":  m.Ticks(),
	})
}

// OpenSession assembles a source and keeps its machine for TickSession.
func (s *Service) OpenSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{req}
	prog, err := s.assemble(f.str("source"))
	if err != nil {
		return nil, err
	}
	keys := host.NewKeyState()
	out := &vm.Recorder{}
	m := vm.NewMachine(s.reg, prog, s.machineConfig(f, keys, out))
	if err := bindPictures(m, f); err != nil {
		return nil, err
	}

	session := s.sessions.Create(m, keys, out)
	if session == nil {
		return nil, connect.NewError(connect.CodeResourceExhausted, fmt.Errorf("too many open sessions"))
	}
	log.Infof("opened session %s", session.ID)
	return response(map[string]any{"session": session.ID})
}

// TickSession sets the held keys, runs one tick and returns the frame.
func (s *Service) TickSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := fields{req}
	session, err := s.session(f)
	if err != nil {
		return nil, err
	}
	held := f.strs("keys")

	result, err := s.worker.Do(ctx, func() (any, error) {
		session.Keys.Reset()
		for _, k := range held {
			if err := session.Keys.Press(k); err != nil {
				return nil, connect.NewError(connect.CodeInvalidArgument, err)
			}
		}
		sig, runErr := session.Machine.Tick()
		scene := host.CollectScene(session.Machine)
		lines := session.Output.Lines
		session.Output.Lines = nil
		return map[string]any{
			"signal":  sig.String(),
			"output":  anyList(lines),
			"error":   errString(runErr),
			"frame":   scene.Frame,
			"sprites": sprites(scene),
			"window": map[string]any{
				"x": scene.Camera.X, "y": scene.Camera.Y,
				"w": scene.Camera.W, "h": scene.Camera.H,
				"r": int(scene.Background.R), "g": int(scene.Background.G), "b": int(scene.Background.B),
			},
		}, nil
	})
	if err != nil {
		var cerr *connect.Error
		if errors.As(err, &cerr) {
			return nil, cerr
		}
		if ctx.Err() != nil {
			return nil, contextError(ctx.Err())
		}
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return response(result.(map[string]any))
}

// CloseSession discards a session.
func (s *Service) CloseSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := fields{req}.str("session")
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session is required"))
	}
	if !s.sessions.Destroy(id) {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	log.Infof("closed session %s", id)
	return response(map[string]any{})
}

func (s *Service) assemble(source string) (*vm.Program, error) {
	prog, err := s.asm.Assemble(source)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return prog, nil
}

func (s *Service) session(f fields) (*Session, error) {
	id := f.str("session")
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session is required"))
	}
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	return session, nil
}

func (s *Service) machineConfig(f fields, keys vm.KeySource, out vm.Console) vm.Config {
	return vm.Config{
		Width:    f.num("width", 400),
		Height:   f.num("height", 300),
		MaxSteps: s.limits.MaxStepsPerTick,
		Seed:     uint64(f.num("seed", 0)),
		Keys:     keys,
		Console:  out,
	}
}

// bindPictures binds the request's picture descriptions. The pictures
// carry no image data; the client draws them itself.
func bindPictures(m *vm.Machine, f fields) error {
	var pics []*vm.Picture
	for _, v := range f.list("pictures") {
		p := fields{v.GetStructValue()}
		name := p.str("name")
		if name == "" {
			return connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("picture without a name"))
		}
		pics = append(pics, &vm.Picture{Name: name, Width: p.num("width", 0), Height: p.num("height", 0)})
	}
	if err := host.BindPictures(m, pics); err != nil {
		return connect.NewError(connect.CodeInvalidArgument, err)
	}
	return nil
}

func sprites(scene host.Scene) []any {
	out := make([]any, 0, len(scene.Sprites))
	for _, sp := range scene.Sprites {
		name := ""
		if sp.Picture != nil {
			name = sp.Picture.Name
		}
		out = append(out, map[string]any{
			"id":      float64(sp.ID),
			"picture": name,
			"x":       sp.Bounds.X,
			"y":       sp.Bounds.Y,
			"w":       sp.Bounds.W,
			"h":       sp.Bounds.H,
			"depth":   sp.Depth,
		})
	}
	return out
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}
	return connect.NewError(connect.CodeCanceled, err)
}
