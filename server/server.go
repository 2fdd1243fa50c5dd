package server

import (
	"context"
	"net"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
	"google.golang.org/protobuf/types/known/structpb"
)

// Server exposes a RuntimeService over Connect (HTTP/JSON and binary
// protobuf) and over native gRPC.
type Server struct {
	service  *Service
	worker   *MachineWorker
	sessions *SessionStore
	mux      *http.ServeMux
	grpc     *grpc.Server

	stopSweeper func()
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	limits Limits
}

// WithLimits sets the per-request limits. Zero fields keep their
// defaults.
func WithLimits(l Limits) ServerOption {
	return func(c *serverConfig) { c.limits = l }
}

// New creates a Server with its own machine worker and session store.
func New(opts ...ServerOption) *Server {
	cfg := &serverConfig{limits: DefaultLimits}
	for _, opt := range opts {
		opt(cfg)
	}
	limits := cfg.limits.withDefaults()

	worker := NewMachineWorker()
	sessions := NewSessionStore(limits.MaxSessions)
	svc := NewService(worker, sessions, limits)

	s := &Server{
		service:  svc,
		worker:   worker,
		sessions: sessions,
		mux:      http.NewServeMux(),
		grpc:     grpc.NewServer(),
	}

	for _, m := range methods {
		s.mux.Handle(m.procedure(), connectHandler(svc, m))
	}
	s.grpc.RegisterService(&runtimeServiceDesc, svc)
	reflection.Register(s.grpc)

	s.stopSweeper = sessions.StartSweeper(limits.SessionTTL/6, limits.SessionTTL)
	return s
}

// Handler returns the Connect HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// GRPCServer returns the native gRPC server.
func (s *Server) GRPCServer() *grpc.Server {
	return s.grpc
}

// Service returns the transport-independent service.
func (s *Server) Service() *Service {
	return s.service
}

// ListenAndServe serves Connect on addr. The address should be in the
// form "host:port" or ":port". Cleartext HTTP/2 is enabled so gRPC
// clients can use the Connect endpoint too.
func (s *Server) ListenAndServe(addr string) error {
	log.Infof("Nifki runtime listening on %s", addr)
	log.Infof("  Connect (HTTP/JSON): http://%s/%s/Run", addr, ServiceName)
	var protocols http.Protocols
	protocols.SetHTTP1(true)
	protocols.SetUnencryptedHTTP2(true)
	srv := &http.Server{Addr: addr, Handler: s.mux, Protocols: &protocols}
	return srv.ListenAndServe()
}

// ServeGRPC serves native gRPC on lis until Stop.
func (s *Server) ServeGRPC(lis net.Listener) error {
	log.Infof("Nifki runtime serving gRPC on %s", lis.Addr())
	return s.grpc.Serve(lis)
}

// Stop shuts down the server.
func (s *Server) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	s.grpc.Stop()
	s.worker.Stop()
}

// method describes one unary RPC of the service.
type method struct {
	name string
	call func(*Service, context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func (m method) procedure() string {
	return "/" + ServiceName + "/" + m.name
}

var methods = []method{
	{"Assemble", (*Service).Assemble},
	{"Run", (*Service).Run},
	{"OpenSession", (*Service).OpenSession},
	{"TickSession", (*Service).TickSession},
	{"CloseSession", (*Service).CloseSession},
}

func connectHandler(svc *Service, m method) http.Handler {
	return connect.NewUnaryHandler(m.procedure(),
		func(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
			log.Debugf("connect %s", m.name)
			res, err := m.call(svc, ctx, req.Msg)
			if err != nil {
				return nil, err
			}
			return connect.NewResponse(res), nil
		})
}
