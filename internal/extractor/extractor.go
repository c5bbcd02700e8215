// Package extractor maps a decoded envelope to the canonical Event record.
//
// The project an event belongs to comes from the envelope header's trace.public_key and
// nothing else. Project identifiers found elsewhere, such as the ingestion URL path, are
// informational and must not be used here.
package extractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/faultline/internal/envelope"
	"github.com/telhawk-systems/faultline/internal/models"
)

// ErrExtraction is returned for any missing key, type mismatch, out-of-range index or
// malformed value. No partial Event is produced.
var ErrExtraction = errors.New("event extraction failed")

// SeverityFunc derives an event severity from the payload's level field.
type SeverityFunc func(level string) string

// PlaceholderSeverity ignores its input and returns models.SeverityUnmarked.
func PlaceholderSeverity(string) string {
	return models.SeverityUnmarked
}

// Extractor builds Events from envelopes.
type Extractor struct {
	newID    func() (string, error)
	severity SeverityFunc
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithIDGenerator replaces the UUIDv7 event ID generator.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(e *Extractor) {
		e.newID = fn
	}
}

// WithSeverity replaces the placeholder severity.
func WithSeverity(fn SeverityFunc) Option {
	return func(e *Extractor) {
		e.severity = fn
	}
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		newID:    newUUIDv7,
		severity: PlaceholderSeverity,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract builds an Event from the first item of env.
func (e *Extractor) Extract(env *envelope.Envelope) (*models.Event, error) {
	if env == nil {
		return nil, fail("nil envelope")
	}

	var header envelopeHeader
	if err := json.Unmarshal(env.Header, &header); err != nil {
		return nil, fail("envelope header: %v", err)
	}
	if header.Trace == nil || str(header.Trace.PublicKey) == "" {
		return nil, fail("envelope header: missing trace.public_key")
	}

	if len(env.Items) == 0 {
		return nil, fail("envelope has no items")
	}
	item := env.Items[0]
	if !item.IsJSON() {
		return nil, fail("first item payload is not JSON")
	}

	var payload eventPayload
	if err := json.Unmarshal(item.Payload, &payload); err != nil {
		return nil, fail("payload: %v", err)
	}

	if payload.Exception == nil || len(payload.Exception.Values) == 0 {
		return nil, fail("payload: missing exception.values[0]")
	}
	exc := payload.Exception.Values[0]
	if exc.Type == nil {
		return nil, fail("exception: missing type")
	}
	if exc.Stacktrace == nil || len(exc.Stacktrace.Frames) == 0 {
		return nil, fail("exception: missing stacktrace.frames[0]")
	}
	// First frame as sent by the SDK.
	fr := exc.Stacktrace.Frames[0]
	if fr.Lineno == nil {
		return nil, fail("frame: missing lineno")
	}

	text, err := contextText(fr)
	if err != nil {
		return nil, fail("frame: %v", err)
	}

	if payload.Timestamp == nil {
		return nil, fail("payload: missing timestamp")
	}
	ts, err := ParseTimestamp(*payload.Timestamp)
	if err != nil {
		return nil, fail("payload: %v", err)
	}

	id, err := e.newID()
	if err != nil {
		return nil, fail("generate event id: %v", err)
	}

	event := &models.Event{
		ID:               id,
		ProjectID:        *header.Trace.PublicKey,
		ExceptionType:    *exc.Type,
		ExceptionMessage: str(exc.Value),
		Severity:         e.severity(levelText(payload.Level)),
		LineNumber:       *fr.Lineno,
		ContextStartLine: *fr.Lineno - len(fr.PreContext),
		ContextText:      text,
		FunctionName:     str(fr.Function),
		ModuleName:       str(fr.Module),
		Filename:         str(fr.Filename),
		AbsolutePath:     str(fr.AbsPath),
		Platform:         str(payload.Platform),
		ServerName:       str(payload.ServerName),
		Timestamp:        ts,
	}
	if payload.Contexts != nil && payload.Contexts.Runtime != nil {
		rt := payload.Contexts.Runtime
		event.RuntimeName = str(rt.Name)
		event.RuntimeVersion = str(rt.Version)
		event.RuntimeBuild = str(rt.Build)
	}

	return event, nil
}

// contextText joins pre_context, context_line and post_context with newlines. A null
// entry in either list is a type mismatch.
func contextText(fr frame) (string, error) {
	lines := make([]string, 0, len(fr.PreContext)+1+len(fr.PostContext))
	for i, l := range fr.PreContext {
		if l == nil {
			return "", fmt.Errorf("pre_context[%d] is null", i)
		}
		lines = append(lines, *l)
	}
	lines = append(lines, str(fr.ContextLine))
	for i, l := range fr.PostContext {
		if l == nil {
			return "", fmt.Errorf("post_context[%d] is null", i)
		}
		lines = append(lines, *l)
	}
	return strings.Join(lines, "\n"), nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp and returns it in UTC. A trailing "Z" is
// read as +00:00; timestamps without an offset are taken to be UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "Z") {
		s = strings.TrimSuffix(s, "Z") + "+00:00"
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO-8601 timestamp %q", s)
}

func fail(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrExtraction, fmt.Sprintf(format, args...))
}

func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
