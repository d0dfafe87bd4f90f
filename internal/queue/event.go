// Package queue carries note lifecycle events over RabbitMQ.
package queue

import "time"

type EventType string

const (
	NoteCreated EventType = "note.created"
	NoteUpdated EventType = "note.updated"
	NoteDeleted EventType = "note.deleted"
)

// NoteEvent is published after a note write has committed. It carries
// enough for an audit trail without reading the database.
type NoteEvent struct {
	Type       EventType `json:"type"`
	NoteID     string    `json:"note_id"`
	Slug       string    `json:"slug,omitempty"`
	UserID     string    `json:"user_id"`
	Title      string    `json:"title,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Category   string    `json:"category,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
