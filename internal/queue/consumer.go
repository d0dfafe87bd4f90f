package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Consumer appends every NoteEvent from the queue to an audit log file, one
// line per event.
type Consumer struct {
	url   string
	queue string
	path  string
	log   zerolog.Logger
}

func NewConsumer(url, queue, path string, log zerolog.Logger) *Consumer {
	return &Consumer{url: url, queue: queue, path: path, log: log.With().Str("component", "consumer").Logger()}
}

// Run consumes until ctx is cancelled, reconnecting with exponential
// backoff (capped at 30s) whenever the broker goes away.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("dial failed")
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn().Err(err).Msg("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn().Err(err).Msg("set qos failed")
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("mkdir audit dir: %w", err)
	}
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := HandleMessage(d.Body, f); err != nil {
				c.log.Error().Err(err).Msg("handle message failed")
				// reject without requeue so a bad payload cannot loop
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleMessage decodes one event and writes its audit line to w.
func HandleMessage(body []byte, w io.Writer) error {
	var ev NoteEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" || ev.NoteID == "" {
		return errors.New("event without type or note id")
	}
	if _, err := io.WriteString(w, FormatLine(ev)); err != nil {
		return fmt.Errorf("write audit line: %w", err)
	}
	return nil
}

// FormatLine renders ev as a single newline-terminated line.
func FormatLine(ev NoteEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | note_id=%s | user_id=%s",
		ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, ev.NoteID, ev.UserID)
	if ev.Slug != "" {
		fmt.Fprintf(&b, " | slug=%s", ev.Slug)
	}
	if ev.Title != "" {
		fmt.Fprintf(&b, " | title=%q", ev.Title)
	}
	if ev.Category != "" {
		fmt.Fprintf(&b, " | category=%q", ev.Category)
	}
	if len(ev.Tags) > 0 {
		fmt.Fprintf(&b, " | tags=[%s]", strings.Join(ev.Tags, ","))
	}
	b.WriteByte('\n')
	return b.String()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
