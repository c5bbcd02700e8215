package repository

import (
	"context"
	"errors"

	"github.com/telhawk-systems/faultline/internal/models"
)

var (
	ErrPersistence   = errors.New("persistence failure")
	ErrEventNotFound = errors.New("event not found")
	ErrEventExists   = errors.New("event already exists")
)

// EventStore persists events. Events are append-only; there is no update path.
type EventStore interface {
	CreateEvent(ctx context.Context, event *models.Event) (string, error)
	GetEvent(ctx context.Context, id string) (*models.Event, error)
}

// ChannelRegistry is a read-only lookup of notification channels.
type ChannelRegistry interface {
	// ListChannels returns the project's channels ordered by creation time.
	ListChannels(ctx context.Context, projectID string) ([]models.NotificationChannel, error)
}

// Repository combines the event store and channel registry backed by one database.
type Repository interface {
	EventStore
	ChannelRegistry

	Ping(ctx context.Context) error
	Close() error
}
