package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"github.com/br1n0/GlobaLeaks/internal/model"
	"github.com/br1n0/GlobaLeaks/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateEvent inserts a new backlog event. A missing ID is generated.
func (s *SQLite) CreateEvent(ctx context.Context, e *model.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, kind, receiver_id, tip_id, subevent, context, processed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Kind), e.ReceiverID, e.TipID, e.Subevent, e.Context,
		boolToInt(e.Processed), e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// FindUnprocessedEvents returns up to scanCap backlog events in
// insertion order.
func (s *SQLite) FindUnprocessedEvents(ctx context.Context, scanCap int) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, receiver_id, tip_id, subevent, context, processed, created_at
		 FROM events WHERE processed = 0 ORDER BY rowid LIMIT ?`, scanCap,
	)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountUnprocessedEvents returns the total backlog depth.
func (s *SQLite) CountUnprocessedEvents(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE processed = 0`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unprocessed events: %w", err)
	}
	return count, nil
}

// MarkProcessed flips the processed flag for the given event ids.
// Marking an already-processed or unknown id is a no-op, so the call
// is idempotent.
func (s *SQLite) MarkProcessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `UPDATE events SET processed = 1 WHERE id IN (?` +
		strings.Repeat(", ?", len(ids)-1) + `)`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// CreateReceiver inserts a new receiver. A missing ID is generated.
func (s *SQLite) CreateReceiver(ctx context.Context, r *model.Receiver) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO receivers (id, name, mail_address, language, notify_tip, notify_comment,
		                        notify_file, notify_message, ping_notification, ping_mail_address, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.MailAddress, r.Language,
		boolToInt(r.NotifyTip), boolToInt(r.NotifyComment),
		boolToInt(r.NotifyFile), boolToInt(r.NotifyMessage),
		boolToInt(r.PingNotification), r.PingMailAddress, now,
	)
	if err != nil {
		return fmt.Errorf("insert receiver: %w", err)
	}
	r.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetReceiver returns a single receiver by its ID.
func (s *SQLite) GetReceiver(ctx context.Context, id string) (*model.Receiver, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, mail_address, language, notify_tip, notify_comment,
		        notify_file, notify_message, ping_notification, ping_mail_address, created_at
		 FROM receivers WHERE id = ?`, id,
	)
	var r model.Receiver
	var tip, comment, file, message, ping int
	var created sql.NullString
	err := row.Scan(&r.ID, &r.Name, &r.MailAddress, &r.Language,
		&tip, &comment, &file, &message, &ping, &r.PingMailAddress, &created)
	if err != nil {
		return nil, fmt.Errorf("scan receiver: %w", err)
	}
	r.NotifyTip = tip == 1
	r.NotifyComment = comment == 1
	r.NotifyFile = file == 1
	r.NotifyMessage = message == 1
	r.PingNotification = ping == 1
	if created.Valid {
		r.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return &r, nil
}

// UpdateReceiver persists changes to an existing receiver.
func (s *SQLite) UpdateReceiver(ctx context.Context, r *model.Receiver) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE receivers SET name = ?, mail_address = ?, language = ?, notify_tip = ?,
		        notify_comment = ?, notify_file = ?, notify_message = ?,
		        ping_notification = ?, ping_mail_address = ?
		 WHERE id = ?`,
		r.Name, r.MailAddress, r.Language,
		boolToInt(r.NotifyTip), boolToInt(r.NotifyComment),
		boolToInt(r.NotifyFile), boolToInt(r.NotifyMessage),
		boolToInt(r.PingNotification), r.PingMailAddress, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update receiver: %w", err)
	}
	return nil
}

// GetNode returns the installation settings row.
func (s *SQLite) GetNode(ctx context.Context) (*model.Node, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, url, default_language, notifications_disabled FROM node WHERE id = 1`,
	)
	var n model.Node
	var disabled int
	if err := row.Scan(&n.Name, &n.URL, &n.DefaultLanguage, &disabled); err != nil {
		return nil, fmt.Errorf("scan node: %w", err)
	}
	n.NotificationsDisabled = disabled == 1
	return &n, nil
}

// UpdateNode persists changes to the installation settings row.
func (s *SQLite) UpdateNode(ctx context.Context, n *model.Node) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE node SET name = ?, url = ?, default_language = ?, notifications_disabled = ?
		 WHERE id = 1`,
		n.Name, n.URL, n.DefaultLanguage, boolToInt(n.NotificationsDisabled),
	)
	if err != nil {
		return fmt.Errorf("update node: %w", err)
	}
	return nil
}

// GetTemplates returns the template bundle for the given language.
func (s *SQLite) GetTemplates(ctx context.Context, language string) (*model.Templates, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT language, tip_subject, tip_body, comment_subject, comment_body,
		        file_subject, file_body, message_subject, message_body,
		        ping_subject, ping_body, limit_reached_subject, limit_reached_body
		 FROM notification_templates WHERE language = ?`, language,
	)
	var t model.Templates
	err := row.Scan(&t.Language,
		&t.TipSubject, &t.TipBody,
		&t.CommentSubject, &t.CommentBody,
		&t.FileSubject, &t.FileBody,
		&t.MessageSubject, &t.MessageBody,
		&t.PingSubject, &t.PingBody,
		&t.LimitReachedSubject, &t.LimitReachedBody,
	)
	if err != nil {
		return nil, fmt.Errorf("scan templates: %w", err)
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEvent(row scannable) (model.Event, error) {
	var e model.Event
	var kind string
	var tipID sql.NullString
	var processed int
	var created sql.NullString
	err := row.Scan(&e.ID, &kind, &e.ReceiverID, &tipID, &e.Subevent, &e.Context, &processed, &created)
	if err != nil {
		return e, fmt.Errorf("scan event: %w", err)
	}
	e.Kind = model.EventKind(kind)
	if tipID.Valid {
		e.TipID = &tipID.String
	}
	e.Processed = processed == 1
	if created.Valid {
		e.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return e, nil
}
