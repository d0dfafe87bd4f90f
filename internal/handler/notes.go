package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Vr3n/crown-vitality-research/internal/middleware"
	"github.com/Vr3n/crown-vitality-research/internal/model"
	"github.com/Vr3n/crown-vitality-research/internal/service"
	"github.com/Vr3n/crown-vitality-research/internal/session"
)

// NoteService is what the note endpoints need. *service.NoteService
// implements it.
type NoteService interface {
	ListNotes(ctx context.Context, who *session.Identity, f model.NoteFilter) ([]model.NoteDetail, service.Result)
	GetNote(ctx context.Context, who *session.Identity, ref string) (*model.NoteDetail, service.Result)
	CreateNote(ctx context.Context, who *session.Identity, in model.NoteInput) service.Result
	UpdateNote(ctx context.Context, who *session.Identity, id, slug string, in model.NoteInput) service.Result
	DeleteNote(ctx context.Context, who *session.Identity, id string) service.Result
	ListUserTags(ctx context.Context, who *session.Identity) ([]model.Label, service.Result)
	ListUserCategories(ctx context.Context, who *session.Identity) ([]model.Label, service.Result)
	RenderMarkdown(text string) string
}

// NotesHandler serves /v1/notes, /v1/tags, /v1/categories and the
// markdown preview.
type NotesHandler struct {
	Svc     NoteService
	Timeout time.Duration
}

func NewNotesHandler(svc NoteService, timeout time.Duration) *NotesHandler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NotesHandler{Svc: svc, Timeout: timeout}
}

// noteRequest is the create/update body. Slug is only read on update.
type noteRequest struct {
	model.NoteInput
	Slug string `json:"slug"`
}

type previewRequest struct {
	Content string `json:"content"`
}

// List: GET /v1/notes?search=&tag=&category=
func (h *NotesHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	notes, res := h.Svc.ListNotes(ctx, middleware.Identity(c), model.NoteFilter{
		Search:   c.QueryParam("search"),
		Tag:      c.QueryParam("tag"),
		Category: c.QueryParam("category"),
	})
	if !res.Success {
		return respondResult(c, res)
	}
	return c.JSON(http.StatusOK, echo.Map{"notes": notes})
}

// Get: GET /v1/notes/:ref where ref is an id or a slug.
func (h *NotesHandler) Get(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	note, res := h.Svc.GetNote(ctx, middleware.Identity(c), c.Param("ref"))
	if !res.Success {
		return respondResult(c, res)
	}
	return c.JSON(http.StatusOK, note)
}

// Create: POST /v1/notes
func (h *NotesHandler) Create(c echo.Context) error {
	var req noteRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	res := h.Svc.CreateNote(ctx, middleware.Identity(c), req.NoteInput)
	if !res.Success {
		return respondResult(c, res)
	}
	return c.JSON(http.StatusCreated, res)
}

// Update: PUT /v1/notes/:id
func (h *NotesHandler) Update(c echo.Context) error {
	var req noteRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	res := h.Svc.UpdateNote(ctx, middleware.Identity(c), c.Param("id"), req.Slug, req.NoteInput)
	return respondResult(c, res)
}

// Delete: DELETE /v1/notes/:id
func (h *NotesHandler) Delete(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	return respondResult(c, h.Svc.DeleteNote(ctx, middleware.Identity(c), c.Param("id")))
}

// Tags: GET /v1/tags
func (h *NotesHandler) Tags(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	tags, res := h.Svc.ListUserTags(ctx, middleware.Identity(c))
	if !res.Success {
		return respondResult(c, res)
	}
	return c.JSON(http.StatusOK, echo.Map{"tags": tags})
}

// Categories: GET /v1/categories
func (h *NotesHandler) Categories(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	cats, res := h.Svc.ListUserCategories(ctx, middleware.Identity(c))
	if !res.Success {
		return respondResult(c, res)
	}
	return c.JSON(http.StatusOK, echo.Map{"categories": cats})
}

// Preview: POST /v1/markdown/preview
func (h *NotesHandler) Preview(c echo.Context) error {
	var req previewRequest
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	return c.JSON(http.StatusOK, echo.Map{"html": h.Svc.RenderMarkdown(req.Content)})
}

// respondResult writes res with the status matching its kind.
func respondResult(c echo.Context, res service.Result) error {
	return c.JSON(statusFor(res), res)
}

func statusFor(res service.Result) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Kind {
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func badBody(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "invalid body"})
}
