package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const dialTimeout = 3 * time.Second

// Publisher sends NoteEvents to a durable queue on the default exchange. It
// dials per publish.
type Publisher struct {
	url   string
	queue string
	log   zerolog.Logger
}

func NewPublisher(url, queue string, log zerolog.Logger) *Publisher {
	return &Publisher{url: url, queue: queue, log: log.With().Str("component", "publisher").Logger()}
}

// Publish marshals ev and publishes it as a persistent message. Errors are
// logged and returned so the caller can choose to ignore them.
func (p *Publisher) Publish(ctx context.Context, ev NoteEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		p.log.Error().Err(err).Msg("marshal event failed")
		return err
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		p.log.Warn().Err(err).Msg("dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warn().Err(err).Msg("channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		p.log.Warn().Err(err).Str("queue", p.queue).Msg("queue declare failed")
		return err
	}

	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         string(ev.Type),
		Body:         body,
	})
	if err != nil {
		p.log.Warn().Err(err).Str("note_id", ev.NoteID).Msg("publish failed")
		return err
	}
	return nil
}

// Nop discards events. It is used when AMQP is disabled.
type Nop struct{}

func (Nop) Publish(context.Context, NoteEvent) error { return nil }
