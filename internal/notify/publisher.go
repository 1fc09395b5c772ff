// Package notify publishes booking events so driver and operator apps learn
// about schedule changes without polling.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// TourChange describes a committed booking affecting one vehicle's schedule.
type TourChange struct {
	RequestID   int64  `json:"request_id"`
	TourID      int64  `json:"tour_id"`
	VehicleID   int64  `json:"vehicle_id"`
	CompanyID   int64  `json:"company_id"`
	PickupTime  int64  `json:"pickup_time"`
	DropoffTime int64  `json:"dropoff_time"`
	Change      string `json:"change"`
}

// Change kinds.
const (
	ChangeNewTour   = "new_tour"
	ChangeExtended  = "tour_extended"
	ChangeMerged    = "tours_merged"
	ChangeCancelled = "cancelled"

	// Ride-share: a request awaiting the driver's approval, and its approval.
	ChangeRequested = "request_pending"
	ChangeAccepted  = "request_accepted"
)

// Publisher delivers tour change notifications.
type Publisher interface {
	PublishTourChange(ctx context.Context, change TourChange) error
	Close() error
}

// PubSubPublisher publishes tour changes to a Pub/Sub topic.
type PubSubPublisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topicName string
	logger    zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub publisher.
type PubSubConfig struct {
	ProjectID string
	TopicName string
	Logger    zerolog.Logger
}

// NewPubSubPublisher creates a publisher for tour change notifications.
func NewPubSubPublisher(ctx context.Context, cfg PubSubConfig) (*PubSubPublisher, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	return &PubSubPublisher{
		client:    client,
		publisher: client.Publisher(cfg.TopicName),
		topicName: cfg.TopicName,
		logger:    cfg.Logger,
	}, nil
}

// PublishTourChange publishes one tour change and waits for the server ack.
func (p *PubSubPublisher) PublishTourChange(ctx context.Context, change TourChange) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshaling tour change: %w", err)
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"change": change.Change,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing tour change: %w", err)
	}

	p.logger.Debug().
		Int64("request_id", change.RequestID).
		Int64("vehicle_id", change.VehicleID).
		Str("change", change.Change).
		Msg("tour change published")
	return nil
}

// Close closes the underlying client.
func (p *PubSubPublisher) Close() error {
	p.publisher.Stop()
	return p.client.Close()
}

// NopPublisher drops all notifications. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishTourChange(context.Context, TourChange) error { return nil }
func (NopPublisher) Close() error                                        { return nil }
