package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseResolve,
				Kind:   KindNotFound,
				Path:   "/lib/mod.wasm",
				Symbol: "module_init",
				Detail: "symbol not exported",
			},
			contains: []string{"[resolve]", "not_found", "/lib/mod.wasm", "module_init", "symbol not exported"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseGuest,
				Kind:  KindTrap,
			},
			contains: []string{"[guest]", "trap"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLink,
				Kind:   KindAllocation,
				Detail: "guest memory full",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[link]", "allocation", "guest memory full", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Open("/tmp/x.so", cause)

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find cause")
	}
}

func TestError_Is(t *testing.T) {
	err := SymbolNotFound("/lib/a.so", "plugin_is_GPL_compatible")

	if !err.Is(&Error{Phase: PhaseResolve, Kind: KindNotFound}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseOpen, Kind: KindNotFound}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseResolve, Kind: KindIncompatible}) {
		t.Error("Is should not match different kind")
	}

	target := &Error{Phase: PhaseResolve, Kind: KindNotFound}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseLoad, KindIncompatible).
		Path("/lib/a.wasm").
		Symbol("module_abi_version").
		Value("v2.0.0").
		Cause(cause).
		Detail("abi %s, want %s", "v2.0.0", "v1").
		Build()

	if err.Phase != PhaseLoad {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseLoad)
	}
	if err.Kind != KindIncompatible {
		t.Errorf("Kind = %v, want %v", err.Kind, KindIncompatible)
	}
	if err.Path != "/lib/a.wasm" {
		t.Errorf("Path = %q", err.Path)
	}
	if err.Symbol != "module_abi_version" {
		t.Errorf("Symbol = %q", err.Symbol)
	}
	if err.Value != "v2.0.0" {
		t.Errorf("Value = %v", err.Value)
	}
	if err.Detail != "abi v2.0.0, want v1" {
		t.Errorf("Detail = %q", err.Detail)
	}
	if !errors.Is(err, cause) {
		t.Error("Cause not wrapped")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		err   *Error
		phase Phase
		kind  Kind
	}{
		{Open("p", nil), PhaseOpen, KindNotFound},
		{SymbolNotFound("p", "s"), PhaseResolve, KindNotFound},
		{SymbolType("p", "s", 3, "func"), PhaseResolve, KindIncompatible},
		{Incompatible("p", "d"), PhaseLoad, KindIncompatible},
		{Unsupported(PhaseHost, "x"), PhaseHost, KindUnsupported},
		{OutOfBounds(PhaseGuest, 8, 4), PhaseGuest, KindOutOfBounds},
		{AllocationFailed(PhaseGuest, 16, nil), PhaseGuest, KindAllocation},
		{Trap("f", nil), PhaseGuest, KindTrap},
		{InvalidInput(PhaseConfig, "x"), PhaseConfig, KindInvalidInput},
		{Registration("ns", "f", nil), PhaseHost, KindRegistration},
		{Instantiation("p", nil), PhaseLink, KindInstantiation},
		{Compile("p", nil), PhaseCompile, KindInvalidData},
		{Closed(PhaseLoad, "library"), PhaseLoad, KindClosed},
		{Wrap(PhaseLink, KindTrap, nil, "d"), PhaseLink, KindTrap},
	}
	for _, tt := range tests {
		if tt.err.Phase != tt.phase || tt.err.Kind != tt.kind {
			t.Errorf("%q: got (%s, %s), want (%s, %s)", tt.err.Error(), tt.err.Phase, tt.err.Kind, tt.phase, tt.kind)
		}
	}
}

func TestSymbolType_Detail(t *testing.T) {
	err := SymbolType("/lib/a.so", "ModuleInit", 42, "module.InitFunc")
	if !strings.Contains(err.Error(), "has type int, want module.InitFunc") {
		t.Errorf("unexpected message %q", err.Error())
	}
}
