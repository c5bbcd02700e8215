package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/faultline/internal/models"
)

type fakeConn struct {
	msgs    []*nats.Msg
	err     error
	drained bool
}

func (f *fakeConn) PublishMsg(msg *nats.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func testEvent() *models.Event {
	return &models.Event{
		ID:            "0190f0a8-7f00-7000-8000-000000000001",
		ProjectID:     "proj-token",
		ExceptionType: "ValueError",
		Severity:      models.SeverityUnmarked,
		LineNumber:    7,
		Timestamp:     time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC),
	}
}

func TestPublishEvent(t *testing.T) {
	fc := &fakeConn{}
	p := newPublisher(fc, Config{})
	now := time.Date(2024, 5, 20, 10, 0, 1, 0, time.UTC)
	p.now = func() time.Time { return now }

	require.NoError(t, p.PublishEvent(context.Background(), testEvent()))
	require.Len(t, fc.msgs, 1)

	msg := fc.msgs[0]
	assert.Equal(t, SubjectEventsIngested, msg.Subject)
	assert.Equal(t, "0190f0a8-7f00-7000-8000-000000000001", msg.Header.Get(nats.MsgIdHdr))
	assert.Equal(t, "application/json", msg.Header.Get("Content-Type"))

	var body EventIngested
	require.NoError(t, json.Unmarshal(msg.Data, &body))
	assert.Equal(t, "proj-token", body.ProjectID)
	assert.Equal(t, "ValueError", body.ExceptionType)
	assert.Equal(t, 7, body.LineNumber)
	assert.True(t, now.Equal(body.IngestedAt))
}

func TestPublishEvent_PerProjectSubject(t *testing.T) {
	fc := &fakeConn{}
	p := newPublisher(fc, Config{Subject: "errors.ingested", PerProject: true})

	require.NoError(t, p.PublishEvent(context.Background(), testEvent()))
	require.Len(t, fc.msgs, 1)
	assert.Equal(t, "errors.ingested.proj-token", fc.msgs[0].Subject)
}

func TestPublishEvent_Errors(t *testing.T) {
	fc := &fakeConn{err: errors.New("connection closed")}
	p := newPublisher(fc, Config{})
	assert.Error(t, p.PublishEvent(context.Background(), testEvent()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fc.err = nil
	assert.ErrorIs(t, p.PublishEvent(ctx, testEvent()), context.Canceled)
	assert.Empty(t, fc.msgs)
}

func TestClose_Drains(t *testing.T) {
	fc := &fakeConn{}
	require.NoError(t, newPublisher(fc, Config{}).Close())
	assert.True(t, fc.drained)
}

func TestNewNATSPublisher_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.Timeout = 200 * time.Millisecond
	_, err := NewNATSPublisher(cfg, nil)
	assert.Error(t, err)
}

func TestNoOpPublisher(t *testing.T) {
	var p Publisher = NoOpPublisher{}
	assert.NoError(t, p.PublishEvent(context.Background(), testEvent()))
	assert.NoError(t, p.Close())
}

func TestProjectSubject(t *testing.T) {
	assert.Equal(t, "faultline.events.ingested.abc", ProjectSubject(SubjectEventsIngested, "abc"))
}
