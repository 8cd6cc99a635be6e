package notify

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/br1n0/GlobaLeaks/internal/dispatch"
	"github.com/br1n0/GlobaLeaks/internal/mailer"
	"github.com/br1n0/GlobaLeaks/internal/model"
	"github.com/br1n0/GlobaLeaks/internal/ratelimit"
	"github.com/br1n0/GlobaLeaks/internal/storage"
)

type sentMail struct {
	To      string
	Subject string
}

type recordingTransport struct {
	mu    sync.Mutex
	mails []sentMail
}

func (r *recordingTransport) Send(_ context.Context, to, subject, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mails = append(r.mails, sentMail{To: to, Subject: subject})
	return nil
}

func (r *recordingTransport) sent() []sentMail {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]sentMail, len(r.mails))
	copy(cp, r.mails)
	return cp
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestJob(store *storage.SQLite, transport dispatch.Transport, threshold int) *Job {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := dispatch.New(mailer.KeywordRenderer{}, transport, store, dispatch.Pacing{Skip: true}, log)
	return New(store, ratelimit.New(), d, 30, threshold, log)
}

func createReceiver(t *testing.T, store *storage.SQLite, name string) model.Receiver {
	t.Helper()
	r := model.Receiver{
		Name:          name,
		MailAddress:   name + "@example.org",
		Language:      "en",
		NotifyTip:     true,
		NotifyComment: true,
		NotifyFile:    true,
		NotifyMessage: true,
	}
	if err := store.CreateReceiver(context.Background(), &r); err != nil {
		t.Fatalf("create receiver: %v", err)
	}
	return r
}

func createEvent(t *testing.T, store *storage.SQLite, kind model.EventKind, receiverID, tipID string) model.Event {
	t.Helper()
	e := model.Event{Kind: kind, ReceiverID: receiverID}
	if tipID != "" {
		e.TipID = &tipID
	}
	if err := store.CreateEvent(context.Background(), &e); err != nil {
		t.Fatalf("create event: %v", err)
	}
	return e
}

func backlogIDs(t *testing.T, store *storage.SQLite) map[string]bool {
	t.Helper()
	events, err := store.FindUnprocessedEvents(context.Background(), 1000)
	if err != nil {
		t.Fatalf("find unprocessed: %v", err)
	}
	ids := make(map[string]bool, len(events))
	for _, e := range events {
		ids[e.ID] = true
	}
	return ids
}

func TestOperationOnEmptyBacklogIsNoop(t *testing.T) {
	store := newTestStore(t)
	transport := &recordingTransport{}
	job := newTestJob(store, transport, 20)

	if err := job.Operation(context.Background()); err != nil {
		t.Fatalf("operation: %v", err)
	}
	if len(transport.sent()) != 0 {
		t.Errorf("no mails expected, got %d", len(transport.sent()))
	}
}

func TestOperationMailsTipAndSuppressesItsFiles(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	transport := &recordingTransport{}
	job := newTestJob(store, transport, 20)

	r := createReceiver(t, store, "alice")
	tip := createEvent(t, store, model.KindTip, r.ID, "t1")
	f1 := createEvent(t, store, model.KindFile, r.ID, "t1")
	f2 := createEvent(t, store, model.KindFile, r.ID, "t1")

	if err := job.Operation(ctx); err != nil {
		t.Fatalf("operation: %v", err)
	}

	mails := transport.sent()
	if diff := cmp.Diff(1, len(mails)); diff != "" {
		t.Fatalf("mail count mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("alice@example.org", mails[0].To); diff != "" {
		t.Errorf("mail address mismatch (-want +got):\n%s", diff)
	}

	// Tip was mailed and marked; the sibling files were suppressed
	// and marked; the backlog is clean.
	remaining := backlogIDs(t, store)
	for _, id := range []string{tip.ID, f1.ID, f2.ID} {
		if remaining[id] {
			t.Errorf("event %s should be marked processed", id)
		}
	}
}

func TestOperationSendsLimitNoticeOnThresholdCrossing(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	transport := &recordingTransport{}
	job := newTestJob(store, transport, 3)

	r := createReceiver(t, store, "alice")
	for i := 0; i < 5; i++ {
		createEvent(t, store, model.KindComment, r.ID, "")
	}

	if err := job.Operation(ctx); err != nil {
		t.Fatalf("operation: %v", err)
	}

	// Threshold 3: two comment mails, then the crossing event turns
	// into a single limit notice; the rest is silently suppressed.
	var subjects []string
	for _, m := range transport.sent() {
		subjects = append(subjects, m.Subject)
	}
	want := []string{
		"Notification Node - new comment",
		"Notification Node - new comment",
		"Notification Node - notification limit reached",
	}
	if diff := cmp.Diff(want, subjects); diff != "" {
		t.Errorf("subjects mismatch (-want +got):\n%s", diff)
	}

	if len(backlogIDs(t, store)) != 0 {
		t.Error("all comment events should be marked processed")
	}
}

func TestOperationSecondRunStaysSilentWhileOverCap(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	transport := &recordingTransport{}
	job := newTestJob(store, transport, 3)

	r := createReceiver(t, store, "alice")
	for i := 0; i < 3; i++ {
		createEvent(t, store, model.KindComment, r.ID, "")
	}
	if err := job.Operation(ctx); err != nil {
		t.Fatalf("first operation: %v", err)
	}
	sentBefore := len(transport.sent())

	// New activity within the same window: suppressed without a
	// second limit notice.
	createEvent(t, store, model.KindComment, r.ID, "")
	if err := job.Operation(ctx); err != nil {
		t.Fatalf("second operation: %v", err)
	}

	if diff := cmp.Diff(sentBefore, len(transport.sent())); diff != "" {
		t.Errorf("mail count mismatch (-want +got):\n%s", diff)
	}
	if len(backlogIDs(t, store)) != 0 {
		t.Error("over-cap event should be marked processed")
	}
}

func TestOperationGloballyDisabledMarksEverything(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	transport := &recordingTransport{}
	job := newTestJob(store, transport, 20)

	node, err := store.GetNode(ctx)
	if err != nil {
		t.Fatalf("get node: %v", err)
	}
	node.NotificationsDisabled = true
	if err := store.UpdateNode(ctx, node); err != nil {
		t.Fatalf("update node: %v", err)
	}

	r := createReceiver(t, store, "alice")
	kinds := []model.EventKind{
		model.KindTip, model.KindComment, model.KindFile, model.KindMessage,
		model.KindTip, model.KindComment, model.KindFile, model.KindMessage,
		model.KindTip, model.KindComment,
	}
	for _, kind := range kinds {
		createEvent(t, store, kind, r.ID, "t1")
	}

	if err := job.Operation(ctx); err != nil {
		t.Fatalf("operation: %v", err)
	}

	if len(transport.sent()) != 0 {
		t.Errorf("no mails expected, got %d", len(transport.sent()))
	}
	if len(backlogIDs(t, store)) != 0 {
		t.Error("all events should be marked processed")
	}
}

func TestOperationSendsPingDigest(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	transport := &recordingTransport{}
	job := newTestJob(store, transport, 20)

	r := model.Receiver{
		Name:             "bob",
		MailAddress:      "bob@example.org",
		Language:         "en",
		NotifyComment:    true,
		NotifyMessage:    true,
		PingNotification: true,
		PingMailAddress:  "bob-ping@example.org",
	}
	if err := store.CreateReceiver(ctx, &r); err != nil {
		t.Fatalf("create receiver: %v", err)
	}
	createEvent(t, store, model.KindComment, r.ID, "")
	createEvent(t, store, model.KindMessage, r.ID, "")

	if err := job.Operation(ctx); err != nil {
		t.Fatalf("operation: %v", err)
	}

	mails := transport.sent()
	if diff := cmp.Diff(3, len(mails)); diff != "" {
		t.Fatalf("mail count mismatch (-want +got):\n%s", diff)
	}
	digest := mails[2]
	if diff := cmp.Diff("bob-ping@example.org", digest.To); diff != "" {
		t.Errorf("digest address mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("Notification Node - unread activity", digest.Subject); diff != "" {
		t.Errorf("digest subject mismatch (-want +got):\n%s", diff)
	}
}
