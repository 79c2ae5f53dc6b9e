package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// FetchFunc produces the next value of a refreshed stream. It must not
// retain state between calls and must either return a fully-formed value
// or an error; a partial result must never be returned as a value.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Refresher periodically invokes a FetchFunc and publishes successful
// results to a Cell. The first value is fetched eagerly by NewRefresher,
// before the caller ever has a chance to start serving requests.
type Refresher[T any] struct {
	name     string
	interval time.Duration
	fetch    FetchFunc[T]
	log      *slog.Logger
	cell     *Cell[T]
}

// NewRefresher performs the initial fetch synchronously and returns an error
// if it fails — callers are expected to abort start-up in that case. On
// success the Refresher is ready; call Run in a goroutine to keep it fresh.
func NewRefresher[T any](name string, interval time.Duration, fetch FetchFunc[T], log *slog.Logger) (*Refresher[T], error) {
	initial, err := fetch(context.Background())
	if err != nil {
		return nil, fmt.Errorf("initial %s refresh: %w", name, err)
	}
	return &Refresher[T]{
		name:     name,
		interval: interval,
		fetch:    fetch,
		log:      log,
		cell:     NewCell(initial),
	}, nil
}

// Cell returns the read-only handle subscribers should use.
func (r *Refresher[T]) Cell() *Cell[T] {
	return r.cell
}

// Run ticks every interval until ctx is canceled. A failed fetch is logged
// and the prior snapshot is left in place; it never advances the Cell.
func (r *Refresher[T]) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			val, err := r.fetch(ctx)
			if err != nil {
				r.log.Error("refresh failed, keeping prior snapshot", "stream", r.name, "error", err)
				continue
			}
			r.cell.Publish(val)
			r.log.Debug("refreshed", "stream", r.name)
		}
	}
}
