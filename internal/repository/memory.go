package repository

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/telhawk-systems/faultline/internal/models"
)

// InMemoryRepository is a process-local Repository for development and tests.
type InMemoryRepository struct {
	mu       sync.RWMutex
	events   map[string]*models.Event
	order    []string
	channels []models.NotificationChannel
	nextID   int64
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		events: make(map[string]*models.Event),
	}
}

func (r *InMemoryRepository) CreateEvent(ctx context.Context, event *models.Event) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.events[event.ID]; ok {
		return "", fmt.Errorf("%w: %w: %s", ErrPersistence, ErrEventExists, event.ID)
	}
	stored := *event
	r.events[event.ID] = &stored
	r.order = append(r.order, event.ID)
	return event.ID, nil
}

func (r *InMemoryRepository) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	out := *e
	return &out, nil
}

// Events returns all stored events in insertion order.
func (r *InMemoryRepository) Events() []models.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Event, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.events[id])
	}
	return out
}

// AddChannel registers a channel, assigning an ID and creation time when unset.
func (r *InMemoryRepository) AddChannel(ch models.NotificationChannel) models.NotificationChannel {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	if ch.ID == 0 {
		ch.ID = r.nextID
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now().UTC().Add(time.Duration(r.nextID) * time.Microsecond)
	}
	ch.Kind = models.ParseChannelKind(string(ch.Kind))
	r.channels = append(r.channels, ch)
	return ch
}

func (r *InMemoryRepository) ListChannels(ctx context.Context, projectID string) ([]models.NotificationChannel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.NotificationChannel{}
	for _, ch := range r.channels {
		if ch.ProjectID == projectID {
			out = append(out, ch)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *InMemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *InMemoryRepository) Close() error {
	return nil
}

type channelsFile struct {
	Channels []models.NotificationChannel `yaml:"channels"`
}

// LoadChannelsFile reads a YAML file of the form
//
//	channels:
//	  - project_id: 5f0c...
//	    kind: slack
//	    target_url: https://hooks.slack.com/services/...
//	    channel_name: "#alerts"
//
// and registers every entry.
func (r *InMemoryRepository) LoadChannelsFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read channels file: %w", err)
	}

	var file channelsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parse channels file: %w", err)
	}

	for i, ch := range file.Channels {
		if ch.ProjectID == "" || ch.TargetURL == "" {
			return i, fmt.Errorf("channels file entry %d: project_id and target_url are required", i)
		}
		r.AddChannel(ch)
	}
	return len(file.Channels), nil
}
