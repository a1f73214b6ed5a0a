// Piccolo CLI - runs scripts, evaluates snippets, serves the remote API or
// starts a REPL.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/cheezgi/piccolo/compiler"
	"github.com/cheezgi/piccolo/manifest"
	"github.com/cheezgi/piccolo/server"
	"github.com/cheezgi/piccolo/vm"
)

const version = "0.1.0"

const usage = `piccolo - an embeddable scripting language

Usage:
  piccolo [options] [-v...] SCRIPT
  piccolo [options] [-v...] --eval=SOURCE
  piccolo [options] [-v...] --serve
  piccolo [options] [-v...]
  piccolo -h | --help
  piccolo --version

Options:
  -e, --eval=SOURCE    Run SOURCE instead of a script file.
  -c, --config=FILE    Read settings from FILE instead of the nearest piccolo.toml.
  -v, --verbose        Log more. Repeat for debug output.
  --stress-gc          Collect garbage at every allocation.
  --store=PATH         Back the store module with the sqlite file PATH.
  --serve              Serve the remote evaluation API.
  --addr=ADDR          Listen address for --serve.
  -h, --help           Show this help.
  --version            Show the version.

With no SCRIPT, piccolo starts a REPL when stdin is a terminal and runs
stdin as a script otherwise.
`

var log = commonlog.GetLogger("piccolo.cli")

var (
	errHelpShown = errors.New("help shown")
	errUsage     = errors.New("usage error")
)

// cliOptions are the parsed command line arguments.
type cliOptions struct {
	Script   string
	Eval     string
	HasEval  bool
	Config   string
	Verbose  int
	StressGC bool
	Store    string
	Serve    bool
	Addr     string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run is main without the process exit, returning the exit code.
func run(argv []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseArgs(argv, stdout, stderr)
	switch {
	case errors.Is(err, errHelpShown):
		return 0
	case err != nil:
		return 2
	}

	m, err := loadManifest(opts.Config)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	opts.apply(m)
	configureLogging(m, opts.Verbose)

	cfg := m.VMConfig()
	cfg.Stdout = stdout
	cfg.Stdin = stdin

	v, err := vm.New(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer v.Close()

	switch {
	case opts.Serve:
		return serve(v, m, stderr)
	case opts.HasEval:
		return runSource(v, "<eval>", opts.Eval, stderr)
	case opts.Script != "":
		src, err := os.ReadFile(opts.Script)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return runSource(v, opts.Script, string(src), stderr)
	case isTerminal(stdin):
		return runREPL(v, stdout, stderr)
	default:
		src, err := io.ReadAll(stdin)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return runSource(v, "<stdin>", string(src), stderr)
	}
}

// parseArgs parses argv with docopt. Help and usage errors are printed here.
func parseArgs(argv []string, stdout, stderr io.Writer) (*cliOptions, error) {
	if argv == nil {
		argv = []string{}
	}
	var shown string
	var userErr error
	parser := &docopt.Parser{
		HelpHandler: func(err error, output string) {
			shown, userErr = output, err
		},
	}
	args, err := parser.ParseArgs(usage, argv, version)
	if shown != "" {
		if userErr != nil {
			fmt.Fprintln(stderr, shown)
			return nil, errUsage
		}
		fmt.Fprintln(stdout, shown)
		return nil, errHelpShown
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return nil, errUsage
	}

	opts := &cliOptions{}
	opts.Script, _ = args.String("SCRIPT")
	if src, err := args.String("--eval"); err == nil {
		opts.Eval, opts.HasEval = src, true
	}
	opts.Config, _ = args.String("--config")
	opts.Verbose, _ = args["--verbose"].(int)
	opts.StressGC, _ = args.Bool("--stress-gc")
	opts.Store, _ = args.String("--store")
	opts.Serve, _ = args.Bool("--serve")
	opts.Addr, _ = args.String("--addr")
	return opts, nil
}

// loadManifest reads the --config file, else the nearest piccolo.toml above
// the working directory, else the defaults.
func loadManifest(path string) (*manifest.Manifest, error) {
	if path != "" {
		return manifest.LoadFile(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	m, err := manifest.FindAndLoad(wd)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
	}
	return m, nil
}

// apply lets command line flags override the manifest.
func (o *cliOptions) apply(m *manifest.Manifest) {
	if o.StressGC {
		m.Runtime.StressGC = true
	}
	if o.Store != "" {
		m.Store.Path = o.Store
	}
	if o.Addr != "" {
		m.Server.Addr = o.Addr
	}
}

func configureLogging(m *manifest.Manifest, verbose int) {
	verbosity := m.Log.Verbosity + verbose
	if path := m.LogPath(); path != "" {
		commonlog.Configure(verbosity, &path)
	} else {
		commonlog.Configure(verbosity, nil)
	}
}

// runSource runs one unit and reports any error. The exit code is 1 on
// error.
func runSource(v *vm.VM, name, src string, stderr io.Writer) int {
	if _, err := v.RunSource(name, src); err != nil {
		reportError(stderr, err, src)
		return 1
	}
	return 0
}

// reportError prints syntax errors as a source snippet and runtime errors
// with their script stack.
func reportError(w io.Writer, err error, src string) {
	var vmErr *vm.Error
	if errors.As(err, &vmErr) {
		switch vmErr.Kind {
		case vm.LexError, vm.ParseError:
			fmt.Fprintln(w, compiler.FormatError(err, src))
		default:
			fmt.Fprintln(w, vmErr.FormatTrace())
		}
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

func serve(v *vm.VM, m *manifest.Manifest, stderr io.Writer) int {
	srv := server.New(v, server.WithManifest(m))

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe(m.Server.Addr) }()

	select {
	case err := <-errc:
		srv.Stop()
		if err != nil {
			fmt.Fprintf(stderr, "Server error: %v\n", err)
			return 1
		}
	case <-sigs:
		log.Notice("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("shutdown: %s", err.Error())
		}
		<-errc
	}
	return 0
}
