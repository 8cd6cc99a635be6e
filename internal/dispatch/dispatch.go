// Package dispatch sends the filtered batch: ordered, paced mails
// followed by one ping digest per opted-in receiver.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/br1n0/GlobaLeaks/internal/model"
)

// Renderer turns an enriched event into a mail subject and body.
type Renderer interface {
	Render(ev model.EnrichedEvent) (subject, body string, err error)
}

// Transport delivers one mail. It may block and may fail; failed
// sends are not retried within a run.
type Transport interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Marker is the narrow storage view used to mark sent events.
type Marker interface {
	MarkProcessed(ctx context.Context, ids []string) error
}

// Pacing is the inter-send delay policy. Skip disables the delay in
// tests.
type Pacing struct {
	Interval time.Duration
	Skip     bool
}

// Dispatcher mails a filtered batch in load order.
type Dispatcher struct {
	renderer  Renderer
	transport Transport
	store     Marker
	pacing    Pacing
	log       *slog.Logger
}

// New creates a Dispatcher.
func New(renderer Renderer, transport Transport, store Marker, pacing Pacing, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		renderer:  renderer,
		transport: transport,
		store:     store,
		pacing:    pacing,
		log:       log,
	}
}

// Run sends every event in order, then the ping digests. Per-event
// failures are logged and skipped; a failed send leaves its backlog
// row unprocessed so the next run retries it.
func (d *Dispatcher) Run(ctx context.Context, batch []model.EnrichedEvent) {
	if len(batch) == 0 {
		return
	}

	// Fresh limiter per run: the first send goes out immediately and
	// the delay sits strictly between consecutive sends.
	var pacer *rate.Limiter
	if !d.pacing.Skip && d.pacing.Interval > 0 {
		pacer = rate.NewLimiter(rate.Every(d.pacing.Interval), 1)
	}

	for _, ev := range batch {
		if pacer != nil {
			if err := pacer.Wait(ctx); err != nil {
				d.log.Error("pacing interrupted", "error", err)
				return
			}
		}
		d.send(ctx, ev, ev.Receiver.MailAddress)
	}

	d.pingFlush(ctx, batch)
}

func (d *Dispatcher) send(ctx context.Context, ev model.EnrichedEvent, to string) {
	subject, body, err := d.renderer.Render(ev)
	if err != nil {
		d.log.Error("render notification", "event_id", ev.Event.ID, "kind", ev.Event.Kind, "error", err)
		return
	}

	if err := d.transport.Send(ctx, to, subject, body); err != nil {
		d.log.Error("send notification",
			"event_id", ev.Event.ID,
			"kind", ev.Event.Kind,
			"receiver_id", ev.Receiver.ID,
			"error", err,
		)
		return
	}

	if ev.Synthetic() {
		return
	}
	if err := d.store.MarkProcessed(ctx, []string{ev.Event.ID}); err != nil {
		d.log.Error("mark sent event", "event_id", ev.Event.ID, "error", err)
	}
}

// pingFlush mails one aggregated digest per receiver who opted into
// ping notifications, counting their events in this batch. The first
// event's template bundle is used for every digest, matching the
// single installation-wide notification configuration.
func (d *Dispatcher) pingFlush(ctx context.Context, batch []model.EnrichedEvent) {
	var order []string
	counts := make(map[string]int)
	receivers := make(map[string]model.Receiver)

	for _, ev := range batch {
		if !ev.Receiver.PingNotification {
			continue
		}
		if _, seen := counts[ev.Receiver.ID]; !seen {
			order = append(order, ev.Receiver.ID)
			receivers[ev.Receiver.ID] = ev.Receiver
		}
		counts[ev.Receiver.ID]++
	}
	if len(order) == 0 {
		return
	}

	for _, id := range order {
		receiver := receivers[id]
		ping := model.EnrichedEvent{
			Event:     model.Event{Kind: model.KindPing, ReceiverID: id},
			Receiver:  receiver,
			Node:      batch[0].Node,
			Templates: batch[0].Templates,
			PingCount: counts[id],
		}
		d.send(ctx, ping, receiver.PingMailAddress)
	}
}
