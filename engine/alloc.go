package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// allocator allocates guest memory through the guest's own exports:
// cabi_realloc(old_ptr, old_size, align, new_size), or a simple
// alloc(size) when the export takes fewer than four parameters.
type allocator struct {
	allocFn  api.Function
	freeFn   api.Function
	simple   bool
	freeArgs int
	stack    []uint64
}

func newAllocator(mod api.Module) *allocator {
	a := &allocator{stack: make([]uint64, 4)}

	defs := mod.ExportedFunctionDefinitions()
	for _, name := range []string{CabiRealloc, legacyRealloc, legacyAlloc, simpleAlloc} {
		if def, ok := defs[name]; ok {
			a.allocFn = mod.ExportedFunction(name)
			a.simple = len(def.ParamTypes()) < 4
			break
		}
	}
	for _, name := range []string{CabiFree, legacyDealloc, simpleFree} {
		if def, ok := defs[name]; ok {
			a.freeFn = mod.ExportedFunction(name)
			a.freeArgs = len(def.ParamTypes())
			break
		}
	}
	return a
}

// Alloc returns size bytes aligned to align.
func (a *allocator) Alloc(ctx context.Context, size, align uint32) (uint32, error) {
	if a.allocFn == nil {
		return 0, fmt.Errorf("guest exports no allocator (%s or %s)", CabiRealloc, simpleAlloc)
	}
	stack := a.stack
	if a.simple {
		stack[0] = uint64(size)
		if err := a.allocFn.CallWithStack(ctx, stack[:1]); err != nil {
			return 0, err
		}
	} else {
		stack[0] = 0
		stack[1] = 0
		stack[2] = uint64(align)
		stack[3] = uint64(size)
		if err := a.allocFn.CallWithStack(ctx, stack[:4]); err != nil {
			return 0, err
		}
	}
	ptr := uint32(stack[0])
	if ptr == 0 {
		return 0, fmt.Errorf("guest allocator returned null for %d bytes", size)
	}
	return ptr, nil
}

// Free releases memory obtained from Alloc. Guests without a free export
// leak it.
func (a *allocator) Free(ctx context.Context, ptr, size, align uint32) {
	if a.freeFn == nil || ptr == 0 {
		return
	}
	stack := make([]uint64, max(a.freeArgs, 1))
	stack[0] = uint64(ptr)
	if a.freeArgs >= 3 {
		stack[1] = uint64(size)
		stack[2] = uint64(align)
	}
	if err := a.freeFn.CallWithStack(ctx, stack); err != nil {
		Logger().Warn("guest free failed",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}
