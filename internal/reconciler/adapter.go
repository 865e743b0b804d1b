// Package reconciler locates a changed component inside a live runtime
// object graph and either patches it in place or signals a safe full
// reload. All framework-specific inspection is isolated behind the
// Adapter interface; the tree walk, path search, and patch decision are
// framework-agnostic.
package reconciler

import (
	"context"
	"fmt"
	"time"
)

// Handle is an opaque reference to a live component instance owned by the
// host runtime.
type Handle any

// BuiltinKind identifies framework built-in wrapper components, detected
// by matching the component implementation's identity rather than by
// display name.
type BuiltinKind int

const (
	BuiltinNone BuiltinKind = iota
	BuiltinTransition
	BuiltinKeepAlive
	BuiltinSuspense
)

// String returns the display name used when a built-in wrapper has no
// better name.
func (k BuiltinKind) String() string {
	switch k {
	case BuiltinTransition:
		return "Transition"
	case BuiltinKeepAlive:
		return "KeepAlive"
	case BuiltinSuspense:
		return "Suspense"
	default:
		return ""
	}
}

// SubcomponentRegistry is a component's own registry of locally registered
// sub-components.
type SubcomponentRegistry interface {
	// Lookup returns the registered definition for name.
	Lookup(name string) (any, bool)
	// Replace swaps the definition registered under name.
	Replace(name string, definition any)
}

// Adapter is the single seam of framework-specific code. An
// implementation inspects live instances of one concrete UI runtime.
//
// Children of a suspense node must yield only the currently active
// resolved branch, never the pending one.
type Adapter interface {
	// Name resolves an instance's display name: explicit component name,
	// alternate internal name, constructor name (rejecting anonymous
	// placeholders), matched built-in wrapper name, or "Anonymous".
	Name(h Handle) string
	// Children returns the instance's currently rendered child instances.
	Children(h Handle) []Handle
	// ForceRender forces the instance to re-render. It reports an error
	// when the instance exposes no usable update entry point.
	ForceRender(h Handle) error
	// Subcomponents returns the instance's own sub-component registry,
	// if it has one.
	Subcomponents(h Handle) (SubcomponentRegistry, bool)
	// Builtin classifies framework built-in wrappers.
	Builtin(h Handle) BuiltinKind
}

// Module is a freshly loaded module as seen by the reconciler.
type Module interface {
	// DefaultExport returns the module's default export.
	DefaultExport() (any, bool)
	// Install asks a library module to install itself under the given
	// global binding, reporting whether it succeeded. Component modules
	// return false.
	Install(globalName string) bool
}

// ModuleLoader loads a module by path with a cache-busting token.
type ModuleLoader interface {
	Load(ctx context.Context, modulePath, token string) (Module, error)
}

// WaitForRuntime polls probe until the host UI runtime is available,
// failing explicitly when the deadline passes rather than hanging.
func WaitForRuntime(ctx context.Context, probe func() (Handle, bool), interval, timeout time.Duration) (Handle, error) {
	if h, ok := probe(); ok {
		return h, nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("runtime not available after %s", timeout)
		case <-ticker.C:
			if h, ok := probe(); ok {
				return h, nil
			}
		}
	}
}
