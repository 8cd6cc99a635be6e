package mailer

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/br1n0/GlobaLeaks/internal/model"
)

func TestRenderFillsKeywords(t *testing.T) {
	tip := "t1"
	ev := model.EnrichedEvent{
		Event: model.Event{
			ID:        "e1",
			Kind:      model.KindTip,
			TipID:     &tip,
			CreatedAt: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		},
		Receiver: model.Receiver{Name: "Alice"},
		Node:     model.Node{Name: "Leak Desk", URL: "https://leaks.example.org"},
		Templates: model.Templates{
			TipSubject: "%NodeName% - new submission",
			TipBody:    "Hello %ReceiverName%, submitted at %EventTime%. See %NodeURL% (tip %TipID%).",
		},
	}

	subject, body, err := KeywordRenderer{}.Render(ev)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	if diff := cmp.Diff("Leak Desk - new submission", subject); diff != "" {
		t.Errorf("subject mismatch (-want +got):\n%s", diff)
	}
	wantBody := "Hello Alice, submitted at 2026-03-14 09:30 UTC. See https://leaks.example.org (tip t1)."
	if diff := cmp.Diff(wantBody, body); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderPingCount(t *testing.T) {
	ev := model.EnrichedEvent{
		Event:    model.Event{Kind: model.KindPing},
		Receiver: model.Receiver{Name: "Bob"},
		Templates: model.Templates{
			PingSubject: "unread activity",
			PingBody:    "%ReceiverName%: %PingCount% notifications waiting.",
		},
		PingCount: 4,
	}

	_, body, err := KeywordRenderer{}.Render(ev)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if diff := cmp.Diff("Bob: 4 notifications waiting.", body); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderMissingTemplateFails(t *testing.T) {
	ev := model.EnrichedEvent{
		Event: model.Event{Kind: model.KindComment},
	}
	if _, _, err := (KeywordRenderer{}).Render(ev); err == nil {
		t.Error("expected error for missing template")
	}
}
