package plugin

import (
	"context"
	"errors"
	"log/slog"

	"github.com/signflow/signflow/internal/emitter"
)

// Emitter runs every matching plugin for each word event.
type Emitter struct {
	manager  *Manager
	executor *Executor
	logger   *slog.Logger
}

// NewEmitter creates an emitter over discovered plugins.
func NewEmitter(m *Manager, e *Executor, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{manager: m, executor: e, logger: logger}
}

// Emit runs the plugins that match ev in name order and joins their errors.
func (e *Emitter) Emit(ctx context.Context, ev emitter.Event) error {
	var errs []error
	for _, p := range e.manager.For(ev) {
		if _, err := e.executor.Execute(ctx, p, ev); err != nil {
			errs = append(errs, err)
			continue
		}
		e.logger.Debug("plugin ran", "plugin", p.Manifest.Name, "gloss", ev.Gloss)
	}
	return errors.Join(errs...)
}

// Close is a no-op.
func (e *Emitter) Close() error { return nil }
