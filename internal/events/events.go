// Package events publishes payment lifecycle events on an in-process
// watermill bus. The audit trail subscribes by topic.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"receivables/internal/models"
)

const (
	TopicPaymentSettled  = "payment.settled"
	TopicPaymentRejected = "payment.rejected"
)

type PaymentSettled struct {
	OnlinePaymentID uuid.UUID            `json:"online_payment_id"`
	LinkID          uuid.UUID            `json:"link_id"`
	InvoiceID       uuid.UUID            `json:"invoice_id"`
	PaymentID       uuid.UUID            `json:"payment_id"`
	Amount          decimal.Decimal      `json:"amount"`
	Method          models.PaymentMethod `json:"method"`
	Reference       string               `json:"reference"`
	SettledAt       time.Time            `json:"settled_at"`
}

type PaymentRejected struct {
	OnlinePaymentID uuid.UUID `json:"online_payment_id"`
	LinkID          uuid.UUID `json:"link_id"`
	InvoiceID       uuid.UUID `json:"invoice_id"`
	Reason          string    `json:"reason"`
	RejectedAt      time.Time `json:"rejected_at"`
}

// Bus publishes JSON encoded events and hands out subscriptions.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger zerolog.Logger
}

func NewBus(logger zerolog.Logger) *Bus {
	goChannel := gochannel.NewGoChannel(
		gochannel.Config{
			Persistent:                     true,
			BlockPublishUntilSubscriberAck: false,
			OutputChannelBuffer:            100,
		},
		NewWatermillLogger(logger),
	)
	return &Bus{pubsub: goChannel, logger: logger}
}

// Publish encodes payload as JSON and publishes it on topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s event", topic)
	}

	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.SetContext(ctx)
	msg.Metadata.Set("topic", topic)

	if err := b.pubsub.Publish(topic, msg); err != nil {
		b.logger.Error().Err(err).Str("topic", topic).Msg("failed to publish event")
		return err
	}
	b.logger.Debug().Str("topic", topic).Str("message_id", msg.UUID).Msg("event published")
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// Decode unmarshals a message payload into out and acks it.
func Decode(msg *message.Message, out any) error {
	defer msg.Ack()
	return json.Unmarshal(msg.Payload, out)
}
