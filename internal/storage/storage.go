// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"

	"github.com/br1n0/GlobaLeaks/internal/model"
)

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateEvent(ctx context.Context, e *model.Event) error
	FindUnprocessedEvents(ctx context.Context, scanCap int) ([]model.Event, error)
	CountUnprocessedEvents(ctx context.Context) (int, error)
	MarkProcessed(ctx context.Context, ids []string) error

	CreateReceiver(ctx context.Context, r *model.Receiver) error
	GetReceiver(ctx context.Context, id string) (*model.Receiver, error)
	UpdateReceiver(ctx context.Context, r *model.Receiver) error

	GetNode(ctx context.Context) (*model.Node, error)
	UpdateNode(ctx context.Context, n *model.Node) error

	GetTemplates(ctx context.Context, language string) (*model.Templates, error)

	Close() error
}
