// Package loader reads the pending event backlog and enriches it with
// current receiver, node and template snapshots.
package loader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/br1n0/GlobaLeaks/internal/model"
	"github.com/br1n0/GlobaLeaks/internal/storage"
)

// overscanFactor widens the raw scan beyond the enrichment limit so a
// batch full of disabled-notification receivers still yields work.
const overscanFactor = 3

// Loader produces enriched event batches for one dispatch run.
type Loader struct {
	store storage.Storage
	log   *slog.Logger
}

// New creates a Loader.
func New(store storage.Storage, log *slog.Logger) *Loader {
	return &Loader{store: store, log: log}
}

// Load returns up to limit enriched events in backlog insertion order.
// Events whose receiver disabled the corresponding kind are skipped
// and stay pending; per-event enrichment failures are logged and
// skipped. An empty backlog yields an empty batch, not an error.
func (l *Loader) Load(ctx context.Context, limit int) ([]model.EnrichedEvent, error) {
	node, err := l.store.GetNode(ctx)
	if err != nil {
		return nil, fmt.Errorf("load node: %w", err)
	}

	raw, err := l.store.FindUnprocessedEvents(ctx, limit*overscanFactor)
	if err != nil {
		return nil, fmt.Errorf("find unprocessed events: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	tally := make(map[model.EventKind]int)
	var batch []model.EnrichedEvent

	for _, ev := range raw {
		if len(batch) == limit {
			l.log.Debug("reached batch limit for this run", "limit", limit)
			break
		}

		tally[ev.Kind]++

		receiver, err := l.store.GetReceiver(ctx, ev.ReceiverID)
		if err != nil {
			l.log.Error("enrich event", "event_id", ev.ID, "receiver_id", ev.ReceiverID, "error", err)
			continue
		}
		if !receiver.Wants(ev.Kind) {
			// Stays unprocessed: re-enabling the preference makes
			// the backlog notifiable again.
			continue
		}

		templates, err := l.store.GetTemplates(ctx, receiver.Language)
		if err != nil {
			l.log.Error("load templates", "event_id", ev.ID, "language", receiver.Language, "error", err)
			continue
		}

		batch = append(batch, model.EnrichedEvent{
			Event:     ev,
			Receiver:  *receiver,
			Node:      *node,
			Templates: *templates,
		})
	}

	queued, err := l.store.CountUnprocessedEvents(ctx)
	if err != nil {
		l.log.Error("count backlog", "error", err)
		queued = len(raw)
	}
	l.log.Debug("scanned backlog",
		"queued", queued,
		"scanned", len(raw),
		"enriched", len(batch),
		"tally", tally,
	)

	return batch, nil
}
