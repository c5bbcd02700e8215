package seeder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/telhawk-systems/faultline/internal/envelope"
	"github.com/telhawk-systems/faultline/internal/logging"
)

// Config controls a seeding run.
type Config struct {
	// URL is the server base URL, e.g. http://localhost:8000.
	URL string
	// ProjectKeys are the trace public keys events are spread across.
	ProjectKeys []string
	Count       int
	Interval    time.Duration
	// TimeSpread places event timestamps over this window ending now.
	TimeSpread time.Duration
	Gzip       bool
	Seed       int64
}

// Summary reports the outcome of a run.
type Summary struct {
	Sent   int
	Failed int
}

// Runner handles the envelope seeding execution
type Runner struct {
	Config     Config
	HTTPClient *http.Client

	generator *Generator
	logger    *logging.Logger
}

// NewRunner creates a new seeder runner
func NewRunner(cfg Config, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{
		Config: cfg,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		generator: NewGenerator(cfg.Seed),
		logger:    logger,
	}
}

// Run sends Config.Count envelopes. Individual failures are counted, not returned.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var summary Summary
	if len(r.Config.ProjectKeys) == 0 {
		return summary, fmt.Errorf("at least one project key is required")
	}
	if r.Config.Count <= 0 {
		return summary, fmt.Errorf("count must be positive")
	}

	endpoint := strings.TrimRight(r.Config.URL, "/") + "/api/0/envelope/"
	r.logger.InfoContext(ctx, "starting envelope seeder",
		logging.URL(endpoint),
		"count", r.Config.Count,
		"projects", len(r.Config.ProjectKeys),
		"gzip", r.Config.Gzip)

	now := time.Now()
	for i := 0; i < r.Config.Count; i++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		key := r.Config.ProjectKeys[i%len(r.Config.ProjectKeys)]
		if err := r.send(ctx, endpoint, key, r.eventTime(now)); err != nil {
			summary.Failed++
			r.logger.WarnContext(ctx, "failed to send envelope", logging.ProjectID(key), logging.Error(err))
		} else {
			summary.Sent++
		}

		if r.Config.Interval > 0 && i < r.Config.Count-1 {
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-time.After(r.Config.Interval):
			}
		}
	}

	r.logger.InfoContext(ctx, "seeding complete", "sent", summary.Sent, "failed", summary.Failed)
	return summary, nil
}

func (r *Runner) eventTime(now time.Time) time.Time {
	if r.Config.TimeSpread <= 0 {
		return now
	}
	return now.Add(-time.Duration(rand.Int63n(int64(r.Config.TimeSpread))))
}

func (r *Runner) send(ctx context.Context, endpoint, projectKey string, ts time.Time) error {
	body, err := r.generator.Envelope(projectKey, ts)
	if err != nil {
		return fmt.Errorf("generate envelope: %w", err)
	}
	if r.Config.Gzip {
		if body, err = envelope.Gzip(body); err != nil {
			return fmt.Errorf("compress envelope: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-sentry-envelope")
	if r.Config.Gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("send envelope: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
