// Command modload loads dynamic modules into a host interpreter and calls
// the functions they define.
//
//	modload -load square.wasm -call wasm-square -args 12
//	modload -config modload.yaml -i
//	modload -abi
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/module-bridge/engine"
	"github.com/wippyai/module-bridge/host"
	"github.com/wippyai/module-bridge/module"
	"github.com/wippyai/module-bridge/runtime"
)

func main() {
	fs := flag.NewFlagSet("modload", flag.ExitOnError)
	opts, err := parseFlags(fs, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if opts.abi {
		fmt.Print(engine.Describe())
		return
	}
	if len(opts.load) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: modload -load <module>[,<module>...] [-call name] [-args a,b]")
		fmt.Fprintln(os.Stderr, "       modload -config <file.yaml> [-i]")
		fmt.Fprintln(os.Stderr, "       modload -abi")
		os.Exit(1)
	}

	interactive := opts.interactive
	if interactive && !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "stdout is not a terminal; interactive mode disabled")
		interactive = false
	}

	log, err := newLogger(opts.debug, interactive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	setLoggers(log)

	if interactive {
		err = runInteractive(opts)
	} else {
		err = run(os.Stdout, opts)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newLogger returns the development logger under -debug. Otherwise it
// returns a production logger that reports warnings, or nothing at all in
// interactive mode where stderr shares the screen.
func newLogger(debug, interactive bool) (*zap.Logger, error) {
	switch {
	case debug:
		return zap.NewDevelopment()
	case interactive:
		return zap.NewNop(), nil
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	return cfg.Build()
}

func setLoggers(log *zap.Logger) {
	host.SetLogger(log.Named("host"))
	module.SetLogger(log.Named("module"))
	engine.SetLogger(log.Named("engine"))
}

// run loads the modules, then calls opts.call or lists the functions the
// modules defined.
func run(w io.Writer, opts *options) error {
	ctx := context.Background()
	rt, err := runtime.New(ctx, opts.runtimeConfig())
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close(ctx)

	if err := rt.LoadAll(ctx, opts.load); err != nil {
		return err
	}
	for _, m := range rt.Bridge().Modules() {
		fmt.Fprintf(w, "Loaded %s (ABI %s, %d-bit handles)\n", m.Path, m.Version, m.Width)
	}

	if opts.call == "" {
		fmt.Fprintf(w, "\nFunctions:\n")
		for _, f := range rt.Functions() {
			fmt.Fprintf(w, "  %s\n", signature(f))
			if f.Doc != "" {
				fmt.Fprintf(w, "      %s\n", f.Doc)
			}
		}
		return nil
	}

	args := rt.ParseArgs(opts.args)
	fmt.Fprintf(w, "\nCalling (%s)\n", strings.Join(append([]string{opts.call}, printAll(args)...), " "))
	result, err := rt.Call(opts.call, args...)
	if err != nil {
		return fmt.Errorf("call %s: %w", opts.call, err)
	}
	fmt.Fprintf(w, "Result: %s\n", host.Print(result))
	return nil
}

// signature renders f as (name ARG1 ARG2 &optional ARG3 &rest REST).
func signature(f runtime.FunctionInfo) string {
	parts := []string{f.Name}
	for i := 0; i < f.MinArity; i++ {
		parts = append(parts, fmt.Sprintf("ARG%d", i+1))
	}
	if f.MaxArity == module.Variadic {
		parts = append(parts, "&rest", "REST")
	} else if f.MaxArity > f.MinArity {
		parts = append(parts, "&optional")
		for i := f.MinArity; i < f.MaxArity; i++ {
			parts = append(parts, fmt.Sprintf("ARG%d", i+1))
		}
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func printAll(objs []host.Object) []string {
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = host.Print(o)
	}
	return out
}
