// Package notify orchestrates one notification run:
// load -> filter -> mark suppressed -> dispatch.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/br1n0/GlobaLeaks/internal/dispatch"
	"github.com/br1n0/GlobaLeaks/internal/filter"
	"github.com/br1n0/GlobaLeaks/internal/loader"
	"github.com/br1n0/GlobaLeaks/internal/ratelimit"
	"github.com/br1n0/GlobaLeaks/internal/storage"
)

// Job runs the notification dispatch cycle. The scheduler guarantees
// two runs never overlap; the job takes no lock of its own.
type Job struct {
	store      storage.Storage
	loader     *loader.Loader
	limiter    *ratelimit.Limiter
	dispatcher *dispatch.Dispatcher
	limit      int
	threshold  int
	log        *slog.Logger
}

// New creates a Job.
func New(store storage.Storage, limiter *ratelimit.Limiter, dispatcher *dispatch.Dispatcher,
	limit, threshold int, log *slog.Logger) *Job {
	return &Job{
		store:      store,
		loader:     loader.New(store, log),
		limiter:    limiter,
		dispatcher: dispatcher,
		limit:      limit,
		threshold:  threshold,
		log:        log,
	}
}

// Operation executes one run. A load or mark failure aborts the run
// with every backlog row untouched, so the next run retries from
// scratch. Suppressed ids are marked before dispatching: a crash mid
// dispatch must not resurface already-suppressed duplicates.
func (j *Job) Operation(ctx context.Context) error {
	batch, err := j.loader.Load(ctx, j.limit)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}

	res := filter.Apply(batch, j.limiter, j.threshold)
	j.log.Debug("filtered batch",
		"loaded", len(batch),
		"notify", len(res.Notify),
		"suppressed", len(res.Suppress),
	)

	if len(res.Suppress) > 0 {
		if err := j.store.MarkProcessed(ctx, res.Suppress); err != nil {
			return fmt.Errorf("mark suppressed: %w", err)
		}
	}

	j.dispatcher.Run(ctx, res.Notify)
	return nil
}
