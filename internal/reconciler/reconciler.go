package reconciler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/reheat-dev/reheat/internal/logging"
)

// Reconciler applies component and library updates to a live runtime.
// Every failure path degrades to a logged message or a full reload,
// never a panic escaping to the caller.
type Reconciler struct {
	adapter    Adapter
	loader     ModuleLoader
	fullReload func()
	logger     logging.Logger
}

// New returns a Reconciler. fullReload is invoked when a change cannot
// be patched in place; it must be safe to call more than once.
func New(adapter Adapter, loader ModuleLoader, fullReload func(), logger logging.Logger) *Reconciler {
	if fullReload == nil {
		fullReload = func() {}
	}
	return &Reconciler{
		adapter:    adapter,
		loader:     loader,
		fullReload: fullReload,
		logger:     logging.OrNop(logger),
	}
}

// ReloadComponent re-imports the module at modulePath with a fresh
// cache-busting token and patches every mounted placement of the named
// component. It reports true when at least one placement was patched in
// place; placements that crossed a reload boundary trigger a single full
// reload and are accepted alongside successful patches.
func (r *Reconciler) ReloadComponent(ctx context.Context, app Handle, modulePath, name string) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error(ctx, fmt.Errorf("panic: %v", p), "component reload aborted",
				"component", name, "module", modulePath)
			ok = false
		}
	}()

	log := r.logger.With("component", name, "module", modulePath)

	if app == nil {
		log.Warn(ctx, nil, "no mounted application, skipping reload")
		return false
	}
	if name == "" || modulePath == "" {
		log.Warn(ctx, nil, "incomplete update event, skipping reload")
		return false
	}

	mod, err := r.loader.Load(ctx, modulePath, freshToken())
	if err != nil {
		log.Error(ctx, err, "module re-import failed")
		return false
	}
	definition, ok := mod.DefaultExport()
	if !ok {
		log.Warn(ctx, nil, "module has no default export, cannot patch")
		return false
	}

	tree, err := BuildTree(r.adapter, app)
	if err != nil {
		log.Error(ctx, err, "component tree snapshot failed")
		return false
	}

	matches := tree.FindByName(name)
	if len(matches) == 0 {
		log.Warn(ctx, nil, "component not mounted, nothing to patch")
		return false
	}

	patched := 0
	reloads := 0
	for _, idx := range matches {
		result, err := tree.TryPatchAlongPath(tree.PathToRoot(idx), name, definition)
		if err != nil {
			log.Warn(ctx, err, "in-place patch failed for one placement")
		}
		switch result {
		case PatchApplied:
			patched++
		case PatchReloadRequired:
			reloads++
		}
	}

	if reloads > 0 {
		log.Info(ctx, "falling back to full reload for unpatchable placements",
			"placements", reloads)
		r.fullReload()
	}
	if patched > 0 {
		log.Info(ctx, "component patched in place", "placements", patched)
		return true
	}
	return false
}

// SwapLibrary re-imports a shared library module and asks it to install
// itself under its global binding. It reports false when the library
// does not support self-installation, in which case the caller falls
// back to a full reload.
func (r *Reconciler) SwapLibrary(ctx context.Context, name, modulePath, globalName string) bool {
	log := r.logger.With("library", name, "module", modulePath)

	mod, err := r.loader.Load(ctx, modulePath, freshToken())
	if err != nil {
		log.Error(ctx, err, "library re-import failed")
		return false
	}
	if !mod.Install(globalName) {
		log.Warn(ctx, nil, "library cannot self-install, full reload required",
			"global", globalName)
		return false
	}
	log.Info(ctx, "library swapped in place", "global", globalName)
	return true
}

func freshToken() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}
