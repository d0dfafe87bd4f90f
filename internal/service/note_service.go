// Package service implements the operations the API exposes on notes. Every
// call receives the caller's identity explicitly and reports failures as a
// Result value instead of an error, so handlers branch on Kind and never
// see raw store errors.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Vr3n/crown-vitality-research/internal/markdown"
	"github.com/Vr3n/crown-vitality-research/internal/model"
	"github.com/Vr3n/crown-vitality-research/internal/queue"
	"github.com/Vr3n/crown-vitality-research/internal/repository"
	"github.com/Vr3n/crown-vitality-research/internal/session"
	"github.com/Vr3n/crown-vitality-research/internal/validation"
)

// ErrorKind classifies a failed operation.
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "unauthorized"
	KindNotFound     ErrorKind = "not_found"
	KindValidation   ErrorKind = "validation"
	KindConflict     ErrorKind = "conflict"
	KindInternal     ErrorKind = "internal"
)

// Result is the outcome of an operation. Error is safe to show to the user.
type Result struct {
	Success bool      `json:"success"`
	NoteID  string    `json:"note_id,omitempty"`
	Error   string    `json:"error,omitempty"`
	Kind    ErrorKind `json:"-"`
}

func ok(noteID string) Result { return Result{Success: true, NoteID: noteID} }

func fail(kind ErrorKind, msg string) Result { return Result{Kind: kind, Error: msg} }

const (
	msgUnauthorized = "unauthorized"
	msgNotFound     = "note not found"
	msgConflict     = "a note with the same slug was created at the same time, please try again"
	msgInternal     = "something went wrong, please try again"
)

// NoteStore is the persistence the service needs. *repository.NoteRepo
// implements it.
type NoteStore interface {
	List(ctx context.Context, userID string) ([]model.NoteDetail, error)
	GetByID(ctx context.Context, userID, id string) (*model.NoteDetail, error)
	GetBySlug(ctx context.Context, userID, slug string) (*model.NoteDetail, error)
	Create(ctx context.Context, userID string, in model.NoteInput) (string, error)
	Update(ctx context.Context, userID, id string, in model.NoteInput) error
	Delete(ctx context.Context, userID, id string) error
}

// LabelStore lists a user's tags or categories. *repository.TaxonomyRepo
// implements it.
type LabelStore interface {
	ListByUser(ctx context.Context, kind repository.Kind, userID string) ([]model.Label, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, ev queue.NoteEvent) error
}

// CacheInvalidator drops cached responses of one user after a write.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

type Recorder interface {
	NoteOperation(op, outcome string)
}

// Deps bundles the collaborators of NoteService. Events, Cache and Metrics
// are optional.
type Deps struct {
	Notes     NoteStore
	Labels    LabelStore
	Validator *validation.Validator
	Events    EventPublisher
	Cache     CacheInvalidator
	Metrics   Recorder
	Log       zerolog.Logger
}

type NoteService struct {
	notes    NoteStore
	labels   LabelStore
	validate *validation.Validator
	events   EventPublisher
	cache    CacheInvalidator
	metrics  Recorder
	log      zerolog.Logger
	now      func() time.Time

	pending sync.WaitGroup
}

func NewNoteService(d Deps) *NoteService {
	s := &NoteService{
		notes:    d.Notes,
		labels:   d.Labels,
		validate: d.Validator,
		events:   d.Events,
		cache:    d.Cache,
		metrics:  d.Metrics,
		log:      d.Log.With().Str("component", "notes").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	if s.validate == nil {
		s.validate = validation.New()
	}
	if s.events == nil {
		s.events = queue.Nop{}
	}
	return s
}

// ListNotes returns the caller's notes newest first, narrowed by f. Without
// an identity the list is empty.
func (s *NoteService) ListNotes(ctx context.Context, who *session.Identity, f model.NoteFilter) ([]model.NoteDetail, Result) {
	if who == nil {
		return []model.NoteDetail{}, ok("")
	}
	notes, err := s.notes.List(ctx, who.ID)
	if err != nil {
		return []model.NoteDetail{}, s.failure("list", who, err)
	}
	s.record("list", "ok")
	return repository.FilterNotes(notes, f), ok("")
}

// GetNote looks a note up by id or, failing that, by slug. The returned
// detail carries the rendered content.
func (s *NoteService) GetNote(ctx context.Context, who *session.Identity, ref string) (*model.NoteDetail, Result) {
	ref = strings.TrimSpace(ref)
	if who == nil || ref == "" {
		return nil, fail(KindNotFound, msgNotFound)
	}

	var (
		note *model.NoteDetail
		err  = repository.ErrNoteNotFound
	)
	if _, perr := uuid.Parse(ref); perr == nil {
		note, err = s.notes.GetByID(ctx, who.ID, ref)
	}
	if errors.Is(err, repository.ErrNoteNotFound) {
		note, err = s.notes.GetBySlug(ctx, who.ID, ref)
	}
	if err != nil {
		return nil, s.failure("get", who, err)
	}

	if note.Content != nil {
		note.ContentHTML = markdown.Render(*note.Content)
	}
	s.record("get", "ok")
	return note, ok(note.ID)
}

// CreateNote validates and stores a new note. Nothing is written when the
// caller is anonymous or the input is invalid.
func (s *NoteService) CreateNote(ctx context.Context, who *session.Identity, in model.NoteInput) Result {
	if who == nil {
		s.record("create", string(KindUnauthorized))
		return fail(KindUnauthorized, msgUnauthorized)
	}
	in = normalizeInput(in)
	if err := s.validate.Validate(in); err != nil {
		return s.failure("create", who, err)
	}

	id, err := s.notes.Create(ctx, who.ID, in)
	if err != nil {
		return s.failure("create", who, err)
	}

	s.record("create", "ok")
	s.afterWrite(ctx, who, queue.NoteEvent{Type: queue.NoteCreated, NoteID: id}, in)
	return ok(id)
}

// UpdateNote replaces a note's fields, tags and references. slug is the
// note's current slug as known to the caller and only labels the event;
// the stored slug never changes.
func (s *NoteService) UpdateNote(ctx context.Context, who *session.Identity, id, slug string, in model.NoteInput) Result {
	if who == nil {
		s.record("update", string(KindUnauthorized))
		return fail(KindUnauthorized, msgUnauthorized)
	}
	in = normalizeInput(in)
	if err := s.validate.Validate(in); err != nil {
		return s.failure("update", who, err)
	}

	if err := s.notes.Update(ctx, who.ID, id, in); err != nil {
		return s.failure("update", who, err)
	}

	s.record("update", "ok")
	s.afterWrite(ctx, who, queue.NoteEvent{Type: queue.NoteUpdated, NoteID: id, Slug: slug}, in)
	return ok(id)
}

// DeleteNote removes one of the caller's notes.
func (s *NoteService) DeleteNote(ctx context.Context, who *session.Identity, id string) Result {
	if who == nil {
		s.record("delete", string(KindUnauthorized))
		return fail(KindUnauthorized, msgUnauthorized)
	}
	if err := s.notes.Delete(ctx, who.ID, id); err != nil {
		return s.failure("delete", who, err)
	}

	s.record("delete", "ok")
	s.afterWrite(ctx, who, queue.NoteEvent{Type: queue.NoteDeleted, NoteID: id}, model.NoteInput{})
	return ok(id)
}

// ListUserTags returns the caller's tags, newest first.
func (s *NoteService) ListUserTags(ctx context.Context, who *session.Identity) ([]model.Label, Result) {
	return s.listLabels(ctx, who, repository.KindTag)
}

// ListUserCategories returns the caller's categories, newest first.
func (s *NoteService) ListUserCategories(ctx context.Context, who *session.Identity) ([]model.Label, Result) {
	return s.listLabels(ctx, who, repository.KindCategory)
}

func (s *NoteService) listLabels(ctx context.Context, who *session.Identity, kind repository.Kind) ([]model.Label, Result) {
	if who == nil {
		return []model.Label{}, ok("")
	}
	labels, err := s.labels.ListByUser(ctx, kind, who.ID)
	if err != nil {
		return []model.Label{}, s.failure("list_"+string(kind), who, err)
	}
	return labels, ok("")
}

// RenderMarkdown renders note content to an HTML fragment.
func (s *NoteService) RenderMarkdown(text string) string {
	return markdown.Render(text)
}

// Wait blocks until queued event publishes have finished.
func (s *NoteService) Wait() { s.pending.Wait() }

// afterWrite drops the caller's cached responses and publishes ev in the
// background. Neither failure affects the result of the write.
func (s *NoteService) afterWrite(ctx context.Context, who *session.Identity, ev queue.NoteEvent, in model.NoteInput) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, who.ID); err != nil {
			s.log.Warn().Err(err).Str("user_id", who.ID).Msg("cache invalidation failed")
		}
	}

	ev.UserID = who.ID
	ev.Title = in.Title
	ev.Tags = in.Tags
	ev.Category = in.Category
	ev.OccurredAt = s.now()

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer cancel()
		if err := s.events.Publish(pubCtx, ev); err != nil {
			s.log.Warn().Err(err).Str("note_id", ev.NoteID).Str("event", string(ev.Type)).Msg("event not published")
		}
	}()
}

// failure maps err to a Result and logs anything unexpected.
func (s *NoteService) failure(op string, who *session.Identity, err error) Result {
	var verr *validation.Error
	var res Result
	switch {
	case errors.As(err, &verr):
		res = fail(KindValidation, verr.Error())
	case errors.Is(err, repository.ErrNoteNotFound):
		res = fail(KindNotFound, msgNotFound)
	case errors.Is(err, repository.ErrConflict):
		s.log.Warn().Err(err).Str("op", op).Str("user_id", who.ID).Msg("write conflict")
		res = fail(KindConflict, msgConflict)
	default:
		s.log.Error().Err(err).Str("op", op).Str("user_id", who.ID).Msg("note operation failed")
		res = fail(KindInternal, msgInternal)
	}
	s.record(op, string(res.Kind))
	return res
}

func (s *NoteService) record(op, outcome string) {
	if s.metrics != nil {
		s.metrics.NoteOperation(op, outcome)
	}
}

// normalizeInput trims user text, drops blank tags and collapses repeated
// tag names while keeping their first-seen order.
func normalizeInput(in model.NoteInput) model.NoteInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)

	tags := make([]string, 0, len(in.Tags))
	seen := make(map[string]bool, len(in.Tags))
	for _, t := range in.Tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	in.Tags = tags

	refs := make([]model.ReferenceInput, 0, len(in.References))
	for _, r := range in.References {
		r.Value = strings.TrimSpace(r.Value)
		refs = append(refs, r)
	}
	in.References = refs
	return in
}
