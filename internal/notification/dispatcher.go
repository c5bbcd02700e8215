package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/telhawk-systems/faultline/internal/logging"
	"github.com/telhawk-systems/faultline/internal/metrics"
	"github.com/telhawk-systems/faultline/internal/models"
	"github.com/telhawk-systems/faultline/internal/repository"
)

// Policy decides what a failed delivery does to the rest of a fan-out.
type Policy string

const (
	// PolicyAbort delivers sequentially and stops at the first failure. The remaining
	// channels are skipped and the failure is returned to the caller.
	PolicyAbort Policy = "abort"
	// PolicyIsolate attempts every channel exactly once and never fails the fan-out.
	PolicyIsolate Policy = "isolate"
)

// ParsePolicy accepts "abort" or "isolate"; empty means isolate.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyIsolate:
		return PolicyIsolate, nil
	case PolicyAbort:
		return PolicyAbort, nil
	default:
		return "", fmt.Errorf("unknown fan-out policy %q", s)
	}
}

// DeliveryResult is the outcome of one channel in a fan-out.
type DeliveryResult struct {
	ChannelID int64
	Kind      models.ChannelKind
	TargetURL string
	Err       error
	Duration  time.Duration
	Skipped   bool
}

// FanoutResult collects the per-channel outcomes in channel order.
type FanoutResult struct {
	Results []DeliveryResult
}

// Attempted counts channels a delivery was tried for.
func (r *FanoutResult) Attempted() int {
	n := 0
	for _, res := range r.Results {
		if !res.Skipped {
			n++
		}
	}
	return n
}

// Failed counts attempted deliveries that returned an error.
func (r *FanoutResult) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Skipped counts channels left untried after an abort.
func (r *FanoutResult) Skipped() int {
	n := 0
	for _, res := range r.Results {
		if res.Skipped {
			n++
		}
	}
	return n
}

// Err joins every delivery failure, or returns nil if all attempts succeeded.
func (r *FanoutResult) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("channel %d (%s): %w", res.ChannelID, res.Kind, res.Err))
		}
	}
	return errors.Join(errs...)
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Policy Policy
	// MaxConcurrency bounds parallel deliveries under PolicyIsolate. Values below 2
	// deliver sequentially.
	MaxConcurrency int
	Format         FormatOptions
}

// Dispatcher notifies every channel registered for an event's project.
type Dispatcher struct {
	registry  repository.ChannelRegistry
	transport Deliverer
	cfg       DispatcherConfig
	logger    *logging.Logger
}

// NewDispatcher creates a Dispatcher. An empty policy means PolicyIsolate.
func NewDispatcher(registry repository.ChannelRegistry, transport Deliverer, cfg DispatcherConfig, logger *logging.Logger) *Dispatcher {
	if cfg.Policy == "" {
		cfg.Policy = PolicyIsolate
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		registry:  registry,
		transport: transport,
		cfg:       cfg,
		logger:    logger,
	}
}

// Policy returns the configured fan-out policy.
func (d *Dispatcher) Policy() Policy {
	return d.cfg.Policy
}

// Dispatch looks up the channels for event.ProjectID and delivers to each of them once.
//
// Under PolicyAbort the first delivery failure (or a registry failure) is returned.
// Under PolicyIsolate the error is always nil; failures are reported through the result.
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.Event) (*FanoutResult, error) {
	channels, err := d.registry.ListChannels(ctx, event.ProjectID)
	if err != nil {
		if d.cfg.Policy == PolicyAbort {
			return &FanoutResult{}, fmt.Errorf("list channels: %w", err)
		}
		d.logger.ErrorContext(ctx, "failed to list notification channels",
			logging.ProjectID(event.ProjectID),
			logging.EventID(event.ID),
			logging.Error(err))
		return &FanoutResult{}, nil
	}

	result := &FanoutResult{Results: make([]DeliveryResult, len(channels))}
	if len(channels) == 0 {
		return result, nil
	}

	if d.cfg.Policy == PolicyAbort {
		err = d.dispatchAbort(ctx, event, channels, result)
	} else {
		d.dispatchIsolate(ctx, event, channels, result)
	}

	d.logger.InfoContext(ctx, "notification fan-out complete",
		logging.ProjectID(event.ProjectID),
		logging.EventID(event.ID),
		"policy", string(d.cfg.Policy),
		"channels", len(channels),
		"attempted", result.Attempted(),
		"failed", result.Failed(),
		"skipped", result.Skipped())

	return result, err
}

func (d *Dispatcher) dispatchAbort(ctx context.Context, event *models.Event, channels []models.NotificationChannel, result *FanoutResult) error {
	for i, ch := range channels {
		result.Results[i] = d.deliver(ctx, event, ch)
		if err := result.Results[i].Err; err != nil {
			for j := i + 1; j < len(channels); j++ {
				result.Results[j] = DeliveryResult{
					ChannelID: channels[j].ID,
					Kind:      channels[j].Kind,
					TargetURL: channels[j].TargetURL,
					Skipped:   true,
				}
				metrics.DeliveriesTotal.WithLabelValues(channels[j].Kind.String(), "skipped").Inc()
			}
			return fmt.Errorf("channel %d (%s): %w", ch.ID, ch.Kind, err)
		}
	}
	return nil
}

func (d *Dispatcher) dispatchIsolate(ctx context.Context, event *models.Event, channels []models.NotificationChannel, result *FanoutResult) {
	var g errgroup.Group
	g.SetLimit(d.cfg.MaxConcurrency)
	for i, ch := range channels {
		g.Go(func() error {
			result.Results[i] = d.deliver(ctx, event, ch)
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, event *models.Event, ch models.NotificationChannel) DeliveryResult {
	payload := Format(event, ch, d.cfg.Format)

	start := time.Now()
	err := d.transport.Deliver(ctx, ch.TargetURL, payload)
	elapsed := time.Since(start)

	kind := ch.Kind.String()
	metrics.DeliveryDuration.WithLabelValues(kind).Observe(elapsed.Seconds())

	attrs := []any{
		logging.ProjectID(event.ProjectID),
		logging.EventID(event.ID),
		logging.ChannelID(ch.ID),
		logging.ChannelKind(kind),
		logging.Duration(elapsed),
	}
	if err != nil {
		metrics.DeliveriesTotal.WithLabelValues(kind, "failed").Inc()
		d.logger.WarnContext(ctx, "notification delivery failed", append(attrs, logging.Error(err))...)
	} else {
		metrics.DeliveriesTotal.WithLabelValues(kind, "delivered").Inc()
		d.logger.DebugContext(ctx, "notification delivered", attrs...)
	}

	return DeliveryResult{
		ChannelID: ch.ID,
		Kind:      ch.Kind,
		TargetURL: ch.TargetURL,
		Err:       err,
		Duration:  elapsed,
	}
}
