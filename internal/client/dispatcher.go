package client

import (
	"context"

	"github.com/reheat-dev/reheat/internal/logging"
	"github.com/reheat-dev/reheat/internal/protocol"
	"github.com/reheat-dev/reheat/internal/reconciler"
)

// Notifier surfaces a message to the developer somewhere they will see
// it. It must tolerate repeated calls with the same message.
type Notifier func(message string)

// Dispatcher routes decoded update events to the reconciler. It
// implements Handler.
type Dispatcher struct {
	rec        *reconciler.Reconciler
	app        func() reconciler.Handle
	fullReload func()
	notify     Notifier
	logger     logging.Logger
}

// NewDispatcher creates a Dispatcher. app returns the current mounted
// application instance, which may change across full reloads.
func NewDispatcher(
	rec *reconciler.Reconciler,
	app func() reconciler.Handle,
	fullReload func(),
	notify Notifier,
	logger logging.Logger,
) *Dispatcher {
	return &Dispatcher{
		rec:        rec,
		app:        app,
		fullReload: fullReload,
		notify:     notify,
		logger:     logging.OrNop(logger).WithComponent("dispatcher"),
	}
}

func (d *Dispatcher) FullReload() {
	d.fullReload()
}

func (d *Dispatcher) ComponentUpdate(event protocol.Event) {
	ctx := context.Background()
	if !d.rec.ReloadComponent(ctx, d.app(), event.ModulePath, event.ComponentName) {
		d.logger.Info(ctx, "in-place update not possible, reloading",
			"component", event.ComponentName)
		d.fullReload()
	}
}

func (d *Dispatcher) LibraryUpdate(event protocol.Event) {
	ctx := context.Background()
	if !d.rec.SwapLibrary(ctx, event.LibraryName, event.LibraryPath, event.GlobalName) {
		d.logger.Info(ctx, "library swap not possible, reloading",
			"library", event.LibraryName)
		d.fullReload()
	}
}

func (d *Dispatcher) Notice(message string) {
	d.notify(message)
}
