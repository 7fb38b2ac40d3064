package module

import (
	"context"
	stderrors "errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/mod/semver"

	"github.com/wippyai/module-bridge/dynlib"
	errs "github.com/wippyai/module-bridge/errors"
	"github.com/wippyai/module-bridge/host"
)

// Load opens the module at path and runs its init function. Failures are
// returned as *host.SignalError.
func (b *Bridge) Load(ctx context.Context, path string) error {
	_, err := b.in.Protect(func() host.Object {
		b.load(ctx, path)
		return host.T
	})
	return err
}

func (b *Bridge) loadError(format string, args ...any) {
	b.in.Signal(host.Qerror, host.List(host.NewString(fmt.Sprintf(format, args...))))
}

// load signals on failure.
func (b *Bridge) load(ctx context.Context, path string) {
	lib, err := b.opener.Open(ctx, path)
	if err != nil {
		Logger().Debug("open failed", zap.String("path", path), zap.Error(err))
		b.loadError("Cannot load file %s: %v", path, err)
	}
	ok := false
	defer func() {
		if !ok {
			if cerr := lib.Close(); cerr != nil {
				Logger().Warn("close after failed load", zap.String("path", path), zap.Error(cerr))
			}
		}
	}()

	if _, err := lib.Lookup(MarkerSymbol); err != nil {
		b.loadError("Module %s is not GPL compatible", path)
	}
	sym, err := lib.Lookup(InitSymbol)
	if err != nil {
		b.loadError("Module %s does not have an init function.", path)
	}
	var initFn InitFunc
	switch fn := sym.(type) {
	case InitFunc:
		initFn = fn
	case func(*InitRuntime) int:
		initFn = fn
	case *InitFunc:
		initFn = *fn
	default:
		b.loadError("Module %s: %v", path, errs.SymbolType(path, InitSymbol, sym, "module.InitFunc"))
	}
	version := b.checkVersion(lib, path)

	width := Width64
	if w, ok := lib.(dynlib.HandleWidther); ok && w.HandleWidth() == int(Width32) {
		width = Width32
	}
	dynlib.RegisterOrigin(initFn, path)

	env := b.newEnv(b.codec(width))
	rt := &InitRuntime{
		Size:           RuntimeSize,
		private:        env,
		GetEnvironment: moduleGetEnvironment,
	}
	rc := b.callInit(initFn, rt, path)
	p := env.private
	exit, tag, payload := p.pending, p.exitSymbol, p.exitData
	b.finalizeEnv(env)

	if rc != 0 {
		if !host.InRange(int64(rc)) {
			b.in.Signal(host.QoverflowError, host.Nil)
		}
		b.in.Signal(QmoduleLoadFailed, host.List(host.NewString(path), host.Fixnum(rc)))
	}
	switch exit {
	case FuncallExitSignal:
		b.in.Signal(tag, payload)
	case FuncallExitThrow:
		b.in.Throw(tag, payload)
	}

	ok = true
	b.modules = append(b.modules, &Module{Library: lib, Path: path, Version: version, Width: width})
	b.stats.ModulesLoaded++
	Logger().Info("module loaded",
		zap.String("path", path),
		zap.String("abi", version),
		zap.Int("width", int(width)))
}

// callInit runs the init function. A panic escaping it is recorded on the
// init environment.
func (b *Bridge) callInit(fn InitFunc, rt *InitRuntime, path string) (rc int) {
	p := rt.private.private
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch x := r.(type) {
		case *host.SignalError, *host.ThrowError, contractViolation:
			p.capture(x)
		default:
			Logger().Warn("module init panicked", zap.String("path", path), zap.Any("panic", r))
			p.signal1(QinvalidModuleCall,
				host.List(host.NewString(path), host.NewString(fmt.Sprint(r))))
		}
		rc = 0
	}()
	return fn(rt)
}

// checkVersion validates the optional ABI version symbol and returns the
// version the module was built for.
func (b *Bridge) checkVersion(lib dynlib.Library, path string) string {
	sym, err := lib.Lookup(VersionSymbol)
	if err != nil {
		var e *errs.Error
		if stderrors.As(err, &e) && e.Kind == errs.KindNotFound {
			return ABIVersion
		}
		b.loadError("Module %s: %v", path, err)
	}
	var v string
	switch x := sym.(type) {
	case string:
		v = x
	case *string:
		v = *x
	case func() string:
		v = x()
	default:
		b.loadError("Module %s: %v", path, errs.SymbolType(path, VersionSymbol, sym, "string"))
	}
	if !semver.IsValid(v) {
		b.loadError("Module %s: %v", path,
			errs.Incompatible(path, fmt.Sprintf("invalid ABI version %q", v)))
	}
	if semver.Major(v) != semver.Major(ABIVersion) ||
		semver.Compare(semver.MajorMinor(v), semver.MajorMinor(ABIVersion)) > 0 {
		b.loadError("Module %s: %v", path,
			errs.Incompatible(path, fmt.Sprintf("ABI %s not supported by %s", v, ABIVersion)))
	}
	return v
}
