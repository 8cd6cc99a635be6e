// Package model defines the domain types used across the application.
package model

import "time"

// EventKind identifies the kind of activity an event records.
type EventKind string

// Supported event kinds. KindPing and KindLimitReached are synthetic:
// they are never stored, only built during a dispatch run.
const (
	KindTip          EventKind = "tip"
	KindComment      EventKind = "comment"
	KindFile         EventKind = "file"
	KindMessage      EventKind = "message"
	KindPing         EventKind = "ping_mail"
	KindLimitReached EventKind = "notification_limit_reached"
)

// Event is one row of the notification backlog. Processed moves
// false->true exactly once; the engine only requests that transition
// through Storage.MarkProcessed.
type Event struct {
	ID         string
	Kind       EventKind
	ReceiverID string
	TipID      *string
	Subevent   string
	Context    string
	Processed  bool
	CreatedAt  time.Time
}

// Receiver is a person notified about activity on submissions they
// can access, with their per-kind delivery preferences.
type Receiver struct {
	ID               string
	Name             string
	MailAddress      string
	Language         string
	NotifyTip        bool
	NotifyComment    bool
	NotifyFile       bool
	NotifyMessage    bool
	PingNotification bool
	PingMailAddress  string
	CreatedAt        time.Time
}

// Wants reports whether the receiver enabled notifications for kind.
// Synthetic kinds are always deliverable.
func (r *Receiver) Wants(kind EventKind) bool {
	switch kind {
	case KindTip:
		return r.NotifyTip
	case KindComment:
		return r.NotifyComment
	case KindFile:
		return r.NotifyFile
	case KindMessage:
		return r.NotifyMessage
	default:
		return true
	}
}

// Node holds installation-level settings read fresh at every run.
type Node struct {
	Name                  string
	URL                   string
	DefaultLanguage       string
	NotificationsDisabled bool
}

// Templates is the notification template bundle for one language.
type Templates struct {
	Language            string
	TipSubject          string
	TipBody             string
	CommentSubject      string
	CommentBody         string
	FileSubject         string
	FileBody            string
	MessageSubject      string
	MessageBody         string
	PingSubject         string
	PingBody            string
	LimitReachedSubject string
	LimitReachedBody    string
}

// For returns the subject and body templates for the given kind.
// Both are empty when the kind has no template.
func (t *Templates) For(kind EventKind) (subject, body string) {
	switch kind {
	case KindTip:
		return t.TipSubject, t.TipBody
	case KindComment:
		return t.CommentSubject, t.CommentBody
	case KindFile:
		return t.FileSubject, t.FileBody
	case KindMessage:
		return t.MessageSubject, t.MessageBody
	case KindPing:
		return t.PingSubject, t.PingBody
	case KindLimitReached:
		return t.LimitReachedSubject, t.LimitReachedBody
	}
	return "", ""
}

// EnrichedEvent is an Event plus the receiver, node and template
// snapshots taken at load time. It lives for one run only.
// PingCount is set only on synthetic ping digest events.
type EnrichedEvent struct {
	Event     Event
	Receiver  Receiver
	Node      Node
	Templates Templates
	PingCount int
}

// Synthetic reports whether the event has no backing backlog row and
// therefore must never be marked processed.
func (e *EnrichedEvent) Synthetic() bool {
	return e.Event.ID == ""
}
