package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/shutterspot/shutterspot/internal/provider/resilience"
)

// Dispatch errors.
var (
	ErrMalformedJob = errors.New("malformed job message")
	ErrUnknownJob   = errors.New("unknown job type")
	ErrProviderDown = errors.New("provider circuit open")
)

// JobMessage is the payload published to trigger worker jobs.
type JobMessage struct {
	JobType string `json:"job_type"`
}

// Dispatcher runs jobs described by JobMessage payloads.
type Dispatcher struct {
	refreshJob *RefreshJob
	registry   *resilience.Registry
	logger     zerolog.Logger
}

// DispatcherConfig holds configuration for a Dispatcher.
type DispatcherConfig struct {
	RefreshJob *RefreshJob
	// Registry reports provider health for health_check jobs (optional).
	Registry *resilience.Registry
	Logger   zerolog.Logger
}

// NewDispatcher creates a new job dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		refreshJob: cfg.RefreshJob,
		registry:   cfg.Registry,
		logger:     cfg.Logger,
	}
}

// Dispatch decodes data and runs the job it names.
func (d *Dispatcher) Dispatch(ctx context.Context, data []byte) error {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedJob, err)
	}

	switch msg.JobType {
	case JobTypeWeatherSyncAll:
		_, err := d.refreshJob.Run(ctx)
		return err
	case JobTypeHealthCheck:
		return d.healthCheck()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}

func (d *Dispatcher) healthCheck() error {
	if d.registry == nil {
		return nil
	}

	if down := d.registry.Unhealthy(); len(down) > 0 {
		return fmt.Errorf("%w: %s", ErrProviderDown, strings.Join(down, ", "))
	}

	d.logger.Debug().Int("providers", d.registry.ProviderCount()).Msg("health check passed")
	return nil
}

// PubSubHandler receives job messages from a Pub/Sub subscription.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	dispatcher       *Dispatcher
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Dispatcher       *Dispatcher
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// A batch sync can take minutes; keep few messages outstanding.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 2
	subscriber.ReceiveSettings.MaxExtension = 15 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		dispatcher:       cfg.Dispatcher,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	if ack := h.process(ctx, logger, msg.Data); !ack {
		msg.Nack()
		return
	}

	logger.Info().
		Dur("duration", time.Since(startTime)).
		Msg("job completed")

	msg.Ack()
}

// process runs the job and reports whether the message should be acked.
// Messages that can never succeed are acked to prevent redelivery.
func (h *PubSubHandler) process(ctx context.Context, logger zerolog.Logger, data []byte) bool {
	err := h.dispatcher.Dispatch(ctx, data)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrMalformedJob), errors.Is(err, ErrUnknownJob):
		logger.Warn().Err(err).Msg("dropping job message")
		return true
	case errors.Is(err, ErrRefreshInProgress):
		logger.Info().Msg("weather refresh already running, dropping duplicate trigger")
		return true
	default:
		logger.Error().Err(err).Msg("job failed")
		return false
	}
}
