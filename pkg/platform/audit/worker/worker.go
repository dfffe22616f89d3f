package worker

import (
	"context"
	"log/slog"

	audit "consentry/pkg/platform/audit"
)

// Worker drains the audit inbox into a store. Emission is fire-and-forget
// from the service's point of view: a full inbox or failing sink must never
// block or fail a consent operation, so append failures are logged and the
// worker keeps going.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func New(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run consumes until the context is cancelled, then drains whatever is
// already buffered.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event := <-w.inbox:
			w.append(ctx, event)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case event := <-w.inbox:
			w.append(context.Background(), event)
		default:
			return
		}
	}
}

func (w *Worker) append(ctx context.Context, event audit.Event) {
	if err := w.store.Append(ctx, event); err != nil {
		w.logger.Error("audit append failed",
			"action", string(event.Action),
			"record_id", event.RecordID,
			"error", err,
		)
	}
}
