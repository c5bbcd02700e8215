package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/telhawk-systems/faultline/internal/envelope"
	"github.com/telhawk-systems/faultline/internal/extractor"
	"github.com/telhawk-systems/faultline/internal/logging"
	"github.com/telhawk-systems/faultline/internal/messaging"
	"github.com/telhawk-systems/faultline/internal/metrics"
	"github.com/telhawk-systems/faultline/internal/models"
	"github.com/telhawk-systems/faultline/internal/notification"
	"github.com/telhawk-systems/faultline/internal/repository"
	"github.com/telhawk-systems/faultline/internal/search"
)

// ErrNotification is returned when the fan-out fails under the abort policy. The event
// has already been persisted when this is returned.
var ErrNotification = errors.New("notification fan-out failed")

const defaultSideEffectTimeout = 5 * time.Second

// Dispatcher fans an event out to its project's notification channels.
type Dispatcher interface {
	Dispatch(ctx context.Context, event *models.Event) (*notification.FanoutResult, error)
}

// IngestResult describes a persisted event.
type IngestResult struct {
	EventID   string
	ProjectID string
	Fanout    *notification.FanoutResult
}

// IngestService runs the intake pipeline: decode, extract, persist, announce, notify.
type IngestService struct {
	decoder    *envelope.Decoder
	extractor  *extractor.Extractor
	store      repository.EventStore
	dispatcher Dispatcher
	publisher  messaging.Publisher
	indexer    search.Indexer
	logger     *logging.Logger

	sideEffectTimeout time.Duration
}

// Option configures an IngestService.
type Option func(*IngestService)

// WithDecoder replaces the default decoder, which has no decompression cap.
func WithDecoder(d *envelope.Decoder) Option {
	return func(s *IngestService) { s.decoder = d }
}

// WithExtractor replaces the default extractor.
func WithExtractor(e *extractor.Extractor) Option {
	return func(s *IngestService) { s.extractor = e }
}

// WithPublisher announces each persisted event on the message bus.
func WithPublisher(p messaging.Publisher) Option {
	return func(s *IngestService) { s.publisher = p }
}

// WithIndexer writes each persisted event to the search index.
func WithIndexer(i search.Indexer) Option {
	return func(s *IngestService) { s.indexer = i }
}

// WithLogger sets the pipeline logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *IngestService) { s.logger = l }
}

// NewIngestService creates the pipeline. dispatcher may be nil to disable notifications.
func NewIngestService(store repository.EventStore, dispatcher Dispatcher, opts ...Option) *IngestService {
	s := &IngestService{
		decoder:           envelope.NewDecoder(0),
		extractor:         extractor.New(),
		store:             store,
		dispatcher:        dispatcher,
		publisher:         messaging.NoOpPublisher{},
		indexer:           search.NoOpIndexer{},
		logger:            logging.Default(),
		sideEffectTimeout: defaultSideEffectTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest processes one envelope body.
//
// Errors wrapping envelope.ErrNoEnvelope, envelope.ErrDecode or extractor.ErrExtraction
// mean the input was rejected and nothing was stored. repository.ErrPersistence means
// storage failed. ErrNotification is returned together with a non-nil result: the event
// was stored but the abort-policy fan-out failed.
func (s *IngestService) Ingest(ctx context.Context, body []byte, contentEncoding string) (*IngestResult, error) {
	metrics.EnvelopeBytesTotal.Add(float64(len(body)))

	if len(body) == 0 {
		metrics.EnvelopesTotal.WithLabelValues("rejected").Inc()
		return nil, envelope.ErrNoEnvelope
	}

	env, err := s.decoder.Decode(body, contentEncoding)
	if err != nil {
		metrics.EnvelopesTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	event, err := s.extractor.Extract(env)
	if err != nil {
		metrics.EnvelopesTotal.WithLabelValues("rejected").Inc()
		metrics.ExtractionErrors.Inc()
		return nil, err
	}

	start := time.Now()
	id, err := s.store.CreateEvent(ctx, event)
	metrics.StorageDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EnvelopesTotal.WithLabelValues("failed").Inc()
		metrics.StorageErrors.Inc()
		return nil, err
	}
	metrics.EventsPersisted.Inc()

	s.logger.InfoContext(ctx, "event persisted",
		logging.EventID(id),
		logging.ProjectID(event.ProjectID),
		"exception_type", event.ExceptionType)

	result := &IngestResult{EventID: id, ProjectID: event.ProjectID}

	// Work after persistence must not be cut short by the client going away.
	bg := context.WithoutCancel(ctx)
	s.announce(bg, event)

	if s.dispatcher == nil {
		metrics.EnvelopesTotal.WithLabelValues("accepted").Inc()
		return result, nil
	}

	fanout, err := s.dispatcher.Dispatch(bg, event)
	result.Fanout = fanout
	if err != nil {
		metrics.EnvelopesTotal.WithLabelValues("failed").Inc()
		return result, fmt.Errorf("%w: %w", ErrNotification, err)
	}

	metrics.EnvelopesTotal.WithLabelValues("accepted").Inc()
	return result, nil
}

// announce publishes and indexes a persisted event. Failures are logged only.
func (s *IngestService) announce(ctx context.Context, event *models.Event) {
	pubCtx, cancel := context.WithTimeout(ctx, s.sideEffectTimeout)
	if err := s.publisher.PublishEvent(pubCtx, event); err != nil {
		metrics.PublishErrors.Inc()
		s.logger.WarnContext(ctx, "failed to publish event",
			logging.EventID(event.ID),
			logging.Error(err))
	}
	cancel()

	idxCtx, cancel := context.WithTimeout(ctx, s.sideEffectTimeout)
	if err := s.indexer.IndexEvent(idxCtx, event); err != nil {
		metrics.IndexErrors.Inc()
		s.logger.WarnContext(ctx, "failed to index event",
			logging.EventID(event.ID),
			logging.Error(err))
	}
	cancel()
}
