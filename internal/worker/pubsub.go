package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// Job types accepted on the trigger subscription.
const (
	JobRefresh     = "refresh"
	JobHealthCheck = "health_check"
)

// ErrMalformedMessage is returned by Handle for payloads that are not a
// trigger message. Such messages are nacked.
var ErrMalformedMessage = errors.New("malformed trigger message")

// Triggerer is the part of the scheduler driven by external triggers.
type Triggerer interface {
	Trigger()
}

// TriggerMessage is the JSON payload of a refresh trigger.
type TriggerMessage struct {
	JobType string `json:"job_type"`
	Reason  string `json:"reason,omitempty"`
}

// PubSubTrigger requests refresh cycles from Pub/Sub messages.
type PubSubTrigger struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	handler          *TriggerHandler
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub trigger.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Scheduler        *Scheduler
	Logger           zerolog.Logger
}

// NewPubSubTrigger connects to Pub/Sub.
func NewPubSubTrigger(ctx context.Context, cfg PubSubConfig) (*PubSubTrigger, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	subscriber.ReceiveSettings.MaxOutstandingMessages = 10
	subscriber.ReceiveSettings.MaxExtension = time.Minute

	logger := cfg.Logger.With().Str("component", "pubsub").Logger()
	return &PubSubTrigger{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		handler:          NewTriggerHandler(cfg.Scheduler, cfg.Scheduler.Cache().Load, logger),
		logger:           logger,
	}, nil
}

// Start receives messages until ctx is cancelled.
func (p *PubSubTrigger) Start(ctx context.Context) error {
	p.logger.Info().
		Str("subscription", p.subscriptionName).
		Msg("starting pubsub trigger")

	return p.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		logger := p.logger.With().
			Str("message_id", msg.ID).
			Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
			Logger()

		if err := p.handler.Handle(ctx, msg.Data); err != nil {
			logger.Error().Err(err).Msg("trigger message rejected")
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Close closes the Pub/Sub client.
func (p *PubSubTrigger) Close() error {
	return p.client.Close()
}
