// Nifki CLI - assembles and runs Nifki games
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/chazu/nifki/bundle"
	"github.com/chazu/nifki/compiler"
	"github.com/chazu/nifki/host"
	"github.com/chazu/nifki/manifest"
	"github.com/chazu/nifki/server"
	"github.com/chazu/nifki/vm"
)

var (
	red    = color.New(color.FgRed, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
)

func main() {
	verbose := flag.Int("v", 0, "Log verbosity (0 quiet, 1 info, 2 debug)")
	interactive := flag.Bool("i", false, "Start interactive REPL")
	disassemble := flag.Bool("dis", false, "Print the assembled program instead of running it")
	bundleOut := flag.String("bundle", "", "Write the game to a bundle file instead of running it")
	maxFrames := flag.Int("frames", 0, "Stop after this many frames (0 = until END)")
	render := flag.Bool("render", false, "Print a text description of every frame")
	profile := flag.Bool("profile", false, "Print instruction and call counts after the run")
	debug := flag.Bool("debug", false, "Show DUMP output even if the game does not enable debug")
	noColor := flag.Bool("no-color", false, "Disable colored error output")
	serveAddr := flag.String("serve", "", "Serve the runtime over Connect on this address")
	grpcAddr := flag.String("grpc", "", "Serve the runtime over gRPC on this address")
	probeAddr := flag.String("probe", "", "List the runtime methods served by a gRPC address")
	lspMode := flag.Bool("lsp", false, "Start the language server on stdio")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: nifki [options] [project-dir | file.nfk | file.nfb]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a Nifki game. With no argument the project in the current directory is used.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  nifki                        # Run ./nifki.toml\n")
		fmt.Fprintf(os.Stderr, "  nifki -dis game.nfk          # Show the assembled program\n")
		fmt.Fprintf(os.Stderr, "  nifki -bundle pong.nfb ./pong  # Pack a project\n")
		fmt.Fprintf(os.Stderr, "  nifki pong.nfb -frames 100   # Run a bundle for 100 frames\n")
		fmt.Fprintf(os.Stderr, "  nifki -i                     # Start REPL\n")
		fmt.Fprintf(os.Stderr, "\nRuntime Server:\n")
		fmt.Fprintf(os.Stderr, "  nifki -serve :4567           # Connect HTTP/JSON\n")
		fmt.Fprintf(os.Stderr, "  nifki -grpc :4568            # native gRPC with reflection\n")
		fmt.Fprintf(os.Stderr, "  nifki -probe localhost:4568  # check a running server\n")
	}
	flag.Parse()

	color.NoColor = color.NoColor || *noColor
	commonlog.Configure(*verbose, nil)

	switch {
	case *lspMode:
		if err := server.NewLSP().Run(); err != nil {
			fatal(err)
		}
		return
	case *probeAddr != "":
		if err := probe(*probeAddr); err != nil {
			fatal(err)
		}
		return
	case *serveAddr != "" || *grpcAddr != "":
		if err := serve(*serveAddr, *grpcAddr); err != nil {
			fatal(err)
		}
		return
	case *interactive:
		os.Exit(runREPL())
	}

	g, err := loadGame(flag.Arg(0))
	if err != nil {
		fatal(err)
	}

	if *bundleOut != "" {
		if err := writeBundle(g, *bundleOut); err != nil {
			fatal(err)
		}
		fmt.Printf("Wrote %s\n", *bundleOut)
		return
	}

	reg := vm.NewRegistry()
	prog, pics, err := g.Verify(reg)
	if err != nil {
		fatal(err)
	}
	if *disassemble {
		fmt.Print(vm.Disassemble(prog))
		return
	}

	opts := runOptions{
		maxFrames: *maxFrames,
		render:    *render,
		profile:   *profile,
		debug:     *debug || g.Properties.Debug,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
	}
	if err := run(reg, prog, pics, g.Properties, opts); err != nil {
		fatal(err)
	}
}

// loadGame reads whatever path names: a bundle, a single source file or
// a project directory.
func loadGame(path string) (*bundle.Bundle, error) {
	if path == "" {
		path = "."
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	switch {
	case info.IsDir():
		m, err := project(path)
		if err != nil {
			return nil, err
		}
		return bundle.FromManifest(m)
	case filepath.Ext(path) == bundle.Ext:
		return bundle.Read(path)
	default:
		m, err := project(filepath.Dir(path))
		if err != nil {
			return nil, err
		}
		if m.Source.Entry, err = filepath.Rel(m.Dir, path); err != nil {
			return nil, err
		}
		if m.Game.Name == filepath.Base(m.Dir) {
			m.Game.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		return bundle.FromManifest(m)
	}
}

// project finds the manifest governing dir, or a default one.
func project(dir string) (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default(dir)
	}
	return m, nil
}

func writeBundle(g *bundle.Bundle, path string) error {
	if _, _, err := g.Verify(vm.NewRegistry()); err != nil {
		return err
	}
	return bundle.Write(path, g)
}

type runOptions struct {
	maxFrames int
	render    bool
	profile   bool
	debug     bool
	stdout    io.Writer
	stderr    io.Writer
}

func run(reg *vm.Registry, prog *vm.Program, pics []*vm.Picture, props bundle.Properties, opts runOptions) error {
	// Without debug, DUMP output is held back and shown only on a fault.
	var held bytes.Buffer
	out := opts.stdout
	if !opts.debug {
		out = &held
	}
	console := vm.NewLineConsole(out)
	keys := host.NewKeyState()
	var profiler *vm.Profiler
	if opts.profile {
		profiler = vm.NewProfiler()
	}
	m := vm.NewMachine(reg, prog, vm.Config{
		Width:    props.Width,
		Height:   props.Height,
		MaxSteps: props.MaxStepsPerTick,
		Seed:     props.Seed,
		Keys:     keys,
		Console:  console,
		Profiler: profiler,
	})
	if err := host.BindPictures(m, pics); err != nil {
		return err
	}

	r := &host.Runner{
		Machine:   m,
		Interval:  time.Duration(props.MsPerFrame) * time.Millisecond,
		MaxFrames: opts.maxFrames,
	}
	if opts.render {
		r.Renderer = host.NewTextRenderer(opts.stdout)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	sig, err := r.Run(ctx)
	console.Flush()
	if sig == vm.Faulted && held.Len() > 0 {
		fmt.Fprintf(opts.stderr, "%s\n", yellow("output before the fault:"))
		opts.stderr.Write(held.Bytes())
	}
	if profiler != nil {
		printProfile(opts.stderr, profiler)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printProfile(w io.Writer, p *vm.Profiler) {
	stats := p.Stats()
	fmt.Fprintf(w, "%d instructions, %d calls to %d functions\n", stats.Instructions, stats.Calls, stats.Functions)
	for _, u := range p.TopOps(10) {
		fmt.Fprintf(w, "  %-10s %d\n", u.Op, u.Count)
	}
	for _, fn := range p.TopFunctions(10) {
		fmt.Fprintf(w, "  %-10s %d calls\n", fn.Name, p.FunctionProfile(fn).Calls)
	}
}

func serve(connectAddr, grpcAddr string) error {
	srv := server.New()
	defer srv.Stop()

	errc := make(chan error, 2)
	if grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			return err
		}
		go func() { errc <- srv.ServeGRPC(lis) }()
	}
	if connectAddr != "" {
		go func() { errc <- srv.ListenAndServe(connectAddr) }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return nil
	}
}

func probe(addr string) error {
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer cc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	names, err := server.DescribeRemote(ctx, cc)
	if err != nil {
		return err
	}
	fmt.Printf("%s at %s\n", server.ServiceName, addr)
	for _, name := range names {
		fmt.Printf("  %s\n", name)
	}
	return nil
}

// fatal prints err and exits. Syntax errors are shown with their line
// and column.
func fatal(err error) {
	var se *compiler.SyntaxError
	if errors.As(err, &se) {
		fmt.Fprintf(os.Stderr, "%s %s %s\n", red("syntax error:"), se.Msg, yellow(fmt.Sprintf("(line %d, column %d)", se.Pos.Line, se.Pos.Column)))
	} else {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("error:"), err)
	}
	os.Exit(1)
}
