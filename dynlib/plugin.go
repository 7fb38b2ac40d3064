package dynlib

import (
	"context"
	"plugin"
	"strings"

	errs "github.com/wippyai/module-bridge/errors"
)

// PluginOpener opens Go plugins built with -buildmode=plugin.
//
// Plugin exports must be exported Go identifiers, so snake_case symbol
// names are looked up in CamelCase: module_init resolves ModuleInit,
// plugin_is_GPL_compatible resolves PluginIsGPLCompatible. Names is
// consulted first for explicit mappings.
type PluginOpener struct {
	Names map[string]string
}

// Open implements Opener.
func (o PluginOpener) Open(ctx context.Context, path string) (Library, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Open(path, err)
	}
	p, err := plugin.Open(path)
	if err != nil {
		return nil, errs.Open(path, err)
	}
	return &pluginLibrary{p: p, path: path, names: o.Names}, nil
}

type pluginLibrary struct {
	p     *plugin.Plugin
	names map[string]string
	path  string
}

func (l *pluginLibrary) Path() string { return l.path }

func (l *pluginLibrary) Lookup(name string) (any, error) {
	goName, ok := l.names[name]
	if !ok {
		goName = GoName(name)
	}
	sym, err := l.p.Lookup(goName)
	if err != nil {
		return nil, errs.SymbolNotFound(l.path, name)
	}
	return sym, nil
}

// Close is a no-op: Go plugins cannot be unloaded.
func (l *pluginLibrary) Close() error { return nil }

// acronyms keep their case when converting symbol names.
var acronyms = map[string]string{
	"abi": "ABI",
	"gpl": "GPL",
	"id":  "ID",
	"url": "URL",
}

// GoName converts a snake_case symbol name to the exported Go identifier a
// plugin uses for it.
func GoName(name string) string {
	var b strings.Builder
	for _, part := range strings.Split(name, "_") {
		if part == "" {
			continue
		}
		if a, ok := acronyms[strings.ToLower(part)]; ok {
			b.WriteString(a)
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}
