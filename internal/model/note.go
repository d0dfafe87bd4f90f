package model

import (
	"database/sql"
	"time"
)

// ReferenceKind distinguishes the two kinds of note references.
type ReferenceKind string

const (
	ReferenceURL  ReferenceKind = "url"
	ReferenceBook ReferenceKind = "book"
)

// Label is the id and name of a tag or category. Both are user-owned and
// unique by name within their owner, not globally.
type Label struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Note mirrors a row of the `notes` table.
type Note struct {
	ID         string         `db:"id"`
	Slug       string         `db:"slug"`
	Title      string         `db:"title"`
	Content    sql.NullString `db:"content"`
	UserID     string         `db:"user_id"`
	CategoryID sql.NullString `db:"category_id"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

// NoteReference is a URL or book citation attached to a note.
type NoteReference struct {
	ID    string        `db:"id" json:"id"`
	Type  ReferenceKind `db:"type" json:"type"`
	Value string        `db:"value" json:"value"`
}

// NoteDetail is a note with its category, tags and references attached. It
// is what every read operation returns.
type NoteDetail struct {
	ID           string          `json:"id"`
	Slug         string          `json:"slug"`
	Title        string          `json:"title"`
	Content      *string         `json:"content"`
	CategoryID   *string         `json:"category_id"`
	CategoryName *string         `json:"category_name"`
	Tags         []Label         `json:"tags"`
	References   []NoteReference `json:"references"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	ContentHTML  string          `json:"content_html,omitempty"`
}

// ReferenceInput is a reference as submitted by a client.
type ReferenceInput struct {
	Type  ReferenceKind `json:"type" validate:"required,oneof=url book"`
	Value string        `json:"value" validate:"required,max=2048"`
}

// NoteInput is the payload for creating or updating a note. Category is
// empty when the note has none.
type NoteInput struct {
	Title      string           `json:"title" validate:"notblank,max=255"`
	Content    string           `json:"content"`
	Category   string           `json:"category" validate:"max=100"`
	Tags       []string         `json:"tags" validate:"dive,required,max=100"`
	References []ReferenceInput `json:"references" validate:"dive"`
}

// NoteFilter narrows a note listing. Empty fields do not filter.
type NoteFilter struct {
	Search   string
	Tag      string
	Category string
}
