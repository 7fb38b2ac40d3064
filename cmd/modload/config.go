package main

import (
	"flag"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	errs "github.com/wippyai/module-bridge/errors"
	"github.com/wippyai/module-bridge/runtime"
)

// fileConfig is the YAML configuration file:
//
//	load: [static:demo, ./square.wasm]
//	call: wasm-square
//	args: ["12"]
//	debug: false
//	max_global_refs: 1000
//	engine:
//	  memory_limit_pages: 16
//	  wasi: true
//	host:
//	  heap_limit: 100000
//	  max_handlers: 4096
//	  max_eval_depth: 1600
//	  max_string_bytes: 1048576
type fileConfig struct {
	Load          []string     `yaml:"load"`
	Call          string       `yaml:"call"`
	Args          []string     `yaml:"args"`
	Debug         bool         `yaml:"debug"`
	MaxGlobalRefs int64        `yaml:"max_global_refs"`
	Engine        engineConfig `yaml:"engine"`
	Host          hostConfig   `yaml:"host"`
}

type engineConfig struct {
	MemoryLimitPages uint32 `yaml:"memory_limit_pages"`
	WASI             bool   `yaml:"wasi"`
}

type hostConfig struct {
	HeapLimit      int64 `yaml:"heap_limit"`
	MaxHandlers    int   `yaml:"max_handlers"`
	MaxEvalDepth   int   `yaml:"max_eval_depth"`
	MaxStringBytes int   `yaml:"max_string_bytes"`
}

func readConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.PhaseConfig, errs.KindNotFound).
			Path(path).
			Cause(err).
			Detail("read config").
			Build()
	}
	var fc fileConfig
	if err := yaml.UnmarshalStrict(data, &fc); err != nil {
		return nil, errs.New(errs.PhaseConfig, errs.KindInvalidData).
			Path(path).
			Cause(err).
			Detail("parse config").
			Build()
	}
	return &fc, nil
}

// options are the command-line settings after merging the config file.
type options struct {
	load        []string
	config      string
	call        string
	args        []string
	abi         bool
	interactive bool
	debug       bool
	file        fileConfig
}

func parseFlags(fs *flag.FlagSet, argv []string) (*options, error) {
	var (
		o    options
		load string
		args string
	)
	fs.StringVar(&load, "load", "", "Modules to load (comma-separated): file.wasm, static:name or a Go plugin")
	fs.StringVar(&o.config, "config", "", "YAML configuration file")
	fs.StringVar(&o.call, "call", "", "Function to call after loading")
	fs.StringVar(&args, "args", "", "Arguments for -call (comma-separated; 42, 1.5, 'sym, \"str\")")
	fs.BoolVar(&o.abi, "abi", false, "Print the wasm guest ABI as WIT and exit")
	fs.BoolVar(&o.interactive, "i", false, "Interactive mode with TUI")
	fs.BoolVar(&o.debug, "debug", false, "Development logging and thread-affinity checks")
	if err := fs.Parse(argv); err != nil {
		return nil, err
	}
	o.load = splitList(load)
	o.args = append(splitList(args), fs.Args()...)

	if o.config == "" {
		return &o, nil
	}
	fc, err := readConfig(o.config)
	if err != nil {
		return nil, err
	}
	o.file = *fc

	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if !set["load"] {
		o.load = fc.Load
	}
	if !set["call"] {
		o.call = fc.Call
	}
	if !set["args"] && len(fs.Args()) == 0 {
		o.args = fc.Args
	}
	if !set["debug"] {
		o.debug = fc.Debug
	}
	return &o, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (o *options) runtimeConfig() *runtime.Config {
	fc := o.file
	cfg := &runtime.Config{
		MaxGlobalRefs: fc.MaxGlobalRefs,
		Debug:         o.debug,
	}
	cfg.Engine.MemoryLimitPages = fc.Engine.MemoryLimitPages
	cfg.Engine.EnableWASI = fc.Engine.WASI
	cfg.Engine.Stdout = os.Stdout
	cfg.Engine.Stderr = os.Stderr
	cfg.Host.HeapLimit = fc.Host.HeapLimit
	cfg.Host.MaxHandlers = fc.Host.MaxHandlers
	cfg.Host.MaxEvalDepth = fc.Host.MaxEvalDepth
	cfg.Host.MaxStringBytes = fc.Host.MaxStringBytes
	return cfg
}
