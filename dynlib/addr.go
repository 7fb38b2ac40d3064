package dynlib

import (
	"os"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

var origins struct {
	byPkg map[string]string
	mu    sync.RWMutex
}

// RegisterOrigin records that code in the Go package defining fn was loaded
// from path. Addr uses it to name the library a function came from.
func RegisterOrigin(fn any, path string) {
	name, ok := funcName(fn)
	if !ok {
		return
	}
	origins.mu.Lock()
	if origins.byPkg == nil {
		origins.byPkg = make(map[string]string)
	}
	origins.byPkg[pkgOf(name)] = path
	origins.mu.Unlock()
}

// Addr resolves a Go function value to the library path and symbol name it
// was defined in. Functions from packages with no registered origin report
// the running executable. ok is false when fn is not a function.
func Addr(fn any) (path, symbol string, ok bool) {
	name, ok := funcName(fn)
	if !ok {
		return "", "", false
	}
	pkg := pkgOf(name)
	symbol = strings.TrimPrefix(name, pkg+".")

	origins.mu.RLock()
	path, ok = origins.byPkg[pkg]
	origins.mu.RUnlock()
	if ok {
		return path, symbol, true
	}
	exe, err := os.Executable()
	if err != nil {
		return "", "", false
	}
	return exe, symbol, true
}

func funcName(fn any) (string, bool) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return "", false
	}
	f := runtime.FuncForPC(v.Pointer())
	if f == nil {
		return "", false
	}
	return f.Name(), true
}

// pkgOf returns the import path prefix of a fully qualified function name
// such as "example.com/a/b.(*T).M".
func pkgOf(name string) string {
	slash := strings.LastIndexByte(name, '/')
	dot := strings.IndexByte(name[slash+1:], '.')
	if dot < 0 {
		return name
	}
	return name[:slash+1+dot]
}
