// Package filter decides which loaded events get mailed and which are
// suppressed, applying dedup rules and the per-receiver hourly cap.
package filter

import (
	"github.com/br1n0/GlobaLeaks/internal/model"
	"github.com/br1n0/GlobaLeaks/internal/ratelimit"
)

// Result splits a batch into events to mail and backlog ids to mark
// processed without mailing.
type Result struct {
	Notify   []model.EnrichedEvent
	Suppress []string
}

// Apply filters a batch in two order-preserving passes.
//
// Pass 1 collects the tip ids that have a tip event in this batch.
// Pass 2 walks the batch in order: with notifications globally
// disabled every event is suppressed; a file event whose tip appears
// in this batch is suppressed as a duplicate of the submission mail;
// otherwise the receiver's hourly counter decides. The event that
// first reaches threshold is suppressed and replaced by a single
// synthetic limit-reached notice for that receiver.
func Apply(batch []model.EnrichedEvent, limiter *ratelimit.Limiter, threshold int) Result {
	tipInBatch := make(map[string]bool)
	for _, ev := range batch {
		if ev.Event.Kind == model.KindTip && ev.Event.TipID != nil {
			tipInBatch[*ev.Event.TipID] = true
		}
	}

	var res Result
	for _, ev := range batch {
		if ev.Node.NotificationsDisabled {
			res.Suppress = append(res.Suppress, ev.Event.ID)
			continue
		}

		if ev.Event.Kind == model.KindFile && ev.Event.TipID != nil && tipInBatch[*ev.Event.TipID] {
			res.Suppress = append(res.Suppress, ev.Event.ID)
			continue
		}

		if limiter.Count(ev.Receiver.ID) >= threshold {
			res.Suppress = append(res.Suppress, ev.Event.ID)
			continue
		}

		if limiter.Increment(ev.Receiver.ID) >= threshold {
			res.Suppress = append(res.Suppress, ev.Event.ID)
			res.Notify = append(res.Notify, limitReached(ev))
			continue
		}

		res.Notify = append(res.Notify, ev)
	}
	return res
}

// limitReached builds the synthetic threshold notice carrying the
// receiver and template snapshots of the crossing event. It has no
// backlog row and is never marked processed.
func limitReached(src model.EnrichedEvent) model.EnrichedEvent {
	return model.EnrichedEvent{
		Event: model.Event{
			Kind:       model.KindLimitReached,
			ReceiverID: src.Receiver.ID,
			CreatedAt:  src.Event.CreatedAt,
		},
		Receiver:  src.Receiver,
		Node:      src.Node,
		Templates: src.Templates,
	}
}
