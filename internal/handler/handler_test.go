package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Vr3n/crown-vitality-research/internal/config"
	"github.com/Vr3n/crown-vitality-research/internal/middleware"
	"github.com/Vr3n/crown-vitality-research/internal/model"
	"github.com/Vr3n/crown-vitality-research/internal/repository"
	"github.com/Vr3n/crown-vitality-research/internal/service"
	"github.com/Vr3n/crown-vitality-research/internal/session"
	"github.com/Vr3n/crown-vitality-research/internal/utils"
	"github.com/Vr3n/crown-vitality-research/internal/validation"
)

const secret = "test-secret"

// stubNotes records what the handlers pass down and returns canned results.
type stubNotes struct {
	who    *session.Identity
	filter model.NoteFilter
	ref    string
	id     string
	slug   string
	input  model.NoteInput
	result service.Result
	note   *model.NoteDetail
}

func (s *stubNotes) ListNotes(_ context.Context, who *session.Identity, f model.NoteFilter) ([]model.NoteDetail, service.Result) {
	s.who, s.filter = who, f
	if s.note == nil {
		return []model.NoteDetail{}, s.result
	}
	return []model.NoteDetail{*s.note}, s.result
}

func (s *stubNotes) GetNote(_ context.Context, who *session.Identity, ref string) (*model.NoteDetail, service.Result) {
	s.who, s.ref = who, ref
	return s.note, s.result
}

func (s *stubNotes) CreateNote(_ context.Context, who *session.Identity, in model.NoteInput) service.Result {
	s.who, s.input = who, in
	return s.result
}

func (s *stubNotes) UpdateNote(_ context.Context, who *session.Identity, id, slug string, in model.NoteInput) service.Result {
	s.who, s.id, s.slug, s.input = who, id, slug, in
	return s.result
}

func (s *stubNotes) DeleteNote(_ context.Context, who *session.Identity, id string) service.Result {
	s.who, s.id = who, id
	return s.result
}

func (s *stubNotes) ListUserTags(_ context.Context, who *session.Identity) ([]model.Label, service.Result) {
	s.who = who
	return []model.Label{{ID: "t1", Name: "keto"}}, s.result
}

func (s *stubNotes) ListUserCategories(_ context.Context, who *session.Identity) ([]model.Label, service.Result) {
	s.who = who
	return []model.Label{{ID: "c1", Name: "Clinical"}}, s.result
}

func (s *stubNotes) RenderMarkdown(text string) string { return "<p>" + text + "</p>" }

func newNotesEcho(svc NoteService) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Session(session.NewJWTGate(secret)))
	h := NewNotesHandler(svc, time.Second)
	e.GET("/v1/notes", h.List)
	e.GET("/v1/notes/:ref", h.Get)
	e.POST("/v1/notes", h.Create)
	e.PUT("/v1/notes/:id", h.Update)
	e.DELETE("/v1/notes/:id", h.Delete)
	e.GET("/v1/tags", h.Tags)
	e.GET("/v1/categories", h.Categories)
	e.POST("/v1/markdown/preview", h.Preview)
	return e
}

func bearer(t *testing.T, id string) string {
	t.Helper()
	at, err := utils.NewAccessToken(secret, id, id+"@example.com", id, time.Minute)
	require.NoError(t, err)
	return "Bearer " + at.Token
}

func call(e *echo.Echo, method, target, auth, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestListPassesFilterAndIdentity(t *testing.T) {
	svc := &stubNotes{result: service.Result{Success: true}}
	e := newNotesEcho(svc)

	rec := call(e, http.MethodGet, "/v1/notes?search=keto&tag=diet&category=Clinical", bearer(t, "alice"), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"notes":[]}`, rec.Body.String())
	require.NotNil(t, svc.who)
	assert.Equal(t, "alice", svc.who.ID)
	assert.Equal(t, model.NoteFilter{Search: "keto", Tag: "diet", Category: "Clinical"}, svc.filter)
}

func TestListAnonymousReachesServiceWithoutIdentity(t *testing.T) {
	svc := &stubNotes{result: service.Result{Success: true}}
	rec := call(newNotesEcho(svc), http.MethodGet, "/v1/notes", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, svc.who)
}

func TestInvalidTokenIsRejected(t *testing.T) {
	svc := &stubNotes{result: service.Result{Success: true}}
	rec := call(newNotesEcho(svc), http.MethodGet, "/v1/notes", "Bearer forged", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetByRef(t *testing.T) {
	note := &model.NoteDetail{ID: "n1", Slug: "keto-basics", Title: "Keto basics", ContentHTML: "<p>x</p>"}
	svc := &stubNotes{result: service.Result{Success: true, NoteID: "n1"}, note: note}

	rec := call(newNotesEcho(svc), http.MethodGet, "/v1/notes/keto-basics", bearer(t, "alice"), "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "keto-basics", svc.ref)
	var got model.NoteDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Keto basics", got.Title)
	assert.Equal(t, "<p>x</p>", got.ContentHTML)
}

func TestCreateBindsPayload(t *testing.T) {
	svc := &stubNotes{result: service.Result{Success: true, NoteID: "n1"}}
	body := `{"title":"Keto","content":"c","category":"Clinical","tags":["a","b"],"references":[{"type":"url","value":"https://x.org"}]}`

	rec := call(newNotesEcho(svc), http.MethodPost, "/v1/notes", bearer(t, "alice"), body)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"success":true,"note_id":"n1"}`, rec.Body.String())
	assert.Equal(t, model.NoteInput{
		Title:      "Keto",
		Content:    "c",
		Category:   "Clinical",
		Tags:       []string{"a", "b"},
		References: []model.ReferenceInput{{Type: model.ReferenceURL, Value: "https://x.org"}},
	}, svc.input)
}

func TestCreateBadBody(t *testing.T) {
	svc := &stubNotes{}
	rec := call(newNotesEcho(svc), http.MethodPost, "/v1/notes", bearer(t, "alice"), `{"title":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.who)
}

func TestResultKindsMapToStatus(t *testing.T) {
	cases := map[service.ErrorKind]int{
		service.KindUnauthorized: http.StatusUnauthorized,
		service.KindNotFound:     http.StatusNotFound,
		service.KindValidation:   http.StatusBadRequest,
		service.KindConflict:     http.StatusConflict,
		service.KindInternal:     http.StatusInternalServerError,
	}
	for kind, status := range cases {
		t.Run(string(kind), func(t *testing.T) {
			svc := &stubNotes{result: service.Result{Kind: kind, Error: "msg"}}
			rec := call(newNotesEcho(svc), http.MethodPost, "/v1/notes", "", `{"title":"x"}`)
			assert.Equal(t, status, rec.Code)
			assert.JSONEq(t, `{"success":false,"error":"msg"}`, rec.Body.String())
		})
	}
}

func TestUpdatePassesIDAndSlug(t *testing.T) {
	svc := &stubNotes{result: service.Result{Success: true, NoteID: "n1"}}
	rec := call(newNotesEcho(svc), http.MethodPut, "/v1/notes/n1", bearer(t, "alice"), `{"slug":"keto","title":"Keto 2","tags":["y","z"]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "n1", svc.id)
	assert.Equal(t, "keto", svc.slug)
	assert.Equal(t, []string{"y", "z"}, svc.input.Tags)
}

func TestDelete(t *testing.T) {
	svc := &stubNotes{result: service.Result{Kind: service.KindNotFound, Error: "note not found"}}
	rec := call(newNotesEcho(svc), http.MethodDelete, "/v1/notes/n9", bearer(t, "bob"), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "n9", svc.id)
	assert.Equal(t, "bob", svc.who.ID)
}

func TestTaxonomyAndPreview(t *testing.T) {
	svc := &stubNotes{result: service.Result{Success: true}}
	e := newNotesEcho(svc)

	assert.JSONEq(t, `{"tags":[{"id":"t1","name":"keto"}]}`, call(e, http.MethodGet, "/v1/tags", bearer(t, "alice"), "").Body.String())
	assert.JSONEq(t, `{"categories":[{"id":"c1","name":"Clinical"}]}`, call(e, http.MethodGet, "/v1/categories", bearer(t, "alice"), "").Body.String())
	assert.JSONEq(t, `{"html":"<p>hi</p>"}`, call(e, http.MethodPost, "/v1/markdown/preview", "", `{"content":"hi"}`).Body.String())
}

// auth

type memUsers struct {
	byID map[string]model.User
	fail error
}

func (m *memUsers) Create(_ context.Context, name, email, password string, cost int) (string, error) {
	if m.fail != nil {
		return "", m.fail
	}
	for _, u := range m.byID {
		if u.Email == email {
			return "", repository.ErrEmailExists
		}
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return "", err
	}
	id := "u" + string(rune('0'+len(m.byID)+1))
	m.byID[id] = model.User{ID: id, Name: name, Email: email, PasswordHash: hash}
	return id, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrUserNotFound
}

func (m *memUsers) GetByID(_ context.Context, id string) (model.User, error) {
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return model.User{}, repository.ErrUserNotFound
}

type memTokens struct {
	owner   map[string]string
	revoked map[string]bool
}

func (m *memTokens) StoreRefresh(_ context.Context, userID, hash string, _ time.Time) error {
	m.owner[hash] = userID
	return nil
}

func (m *memTokens) ValidateRefresh(_ context.Context, hash string) (string, error) {
	uid, ok := m.owner[hash]
	if !ok || m.revoked[hash] {
		return "", repository.ErrTokenInvalid
	}
	return uid, nil
}

func (m *memTokens) RevokeByHash(_ context.Context, hash string) error {
	m.revoked[hash] = true
	return nil
}

func (m *memTokens) RevokeAllForUser(_ context.Context, userID string) error {
	for h, uid := range m.owner {
		if uid == userID {
			m.revoked[h] = true
		}
	}
	return nil
}

type authFixture struct {
	e      *echo.Echo
	users  *memUsers
	tokens *memTokens
}

func newAuthFixture() *authFixture {
	f := &authFixture{
		users:  &memUsers{byID: map[string]model.User{}},
		tokens: &memTokens{owner: map[string]string{}, revoked: map[string]bool{}},
	}
	cfg := config.Config{JWTSecret: secret, AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: bcrypt.MinCost}
	h := NewAuthHandler(cfg, f.users, f.tokens, validation.New(), nil, zerolog.Nop())

	f.e = echo.New()
	f.e.Use(middleware.Session(session.NewJWTGate(secret)))
	f.e.POST("/v1/auth/register", h.Register)
	f.e.POST("/v1/auth/login", h.Login)
	f.e.POST("/v1/auth/refresh", h.Refresh)
	f.e.POST("/v1/auth/logout", h.Logout)
	f.e.GET("/v1/me", h.Me, middleware.RequireSession)
	return f
}

func decodeAuth(t *testing.T, rec *httptest.ResponseRecorder) authResp {
	t.Helper()
	var out authResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRegisterLoginMe(t *testing.T) {
	f := newAuthFixture()

	rec := call(f.e, http.MethodPost, "/v1/auth/register", "", `{"name":"Ann","email":" Ann@Example.com ","password":"longenough"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reg := decodeAuth(t, rec)
	assert.Equal(t, "ann@example.com", reg.User.Email)
	assert.NotContains(t, rec.Body.String(), "password_hash")

	dup := call(f.e, http.MethodPost, "/v1/auth/register", "", `{"name":"Ann","email":"ann@example.com","password":"longenough"}`)
	assert.Equal(t, http.StatusConflict, dup.Code)

	bad := call(f.e, http.MethodPost, "/v1/auth/login", "", `{"email":"ann@example.com","password":"wrong-one"}`)
	assert.Equal(t, http.StatusUnauthorized, bad.Code)

	login := call(f.e, http.MethodPost, "/v1/auth/login", "", `{"email":"ann@example.com","password":"longenough"}`)
	require.Equal(t, http.StatusOK, login.Code)
	pair := decodeAuth(t, login)

	me := call(f.e, http.MethodGet, "/v1/me", "Bearer "+pair.Access.Token, "")
	assert.Equal(t, http.StatusOK, me.Code)
	assert.JSONEq(t, `{"id":"`+reg.User.ID+`","email":"ann@example.com","name":"Ann"}`, me.Body.String())

	assert.Equal(t, http.StatusUnauthorized, call(f.e, http.MethodGet, "/v1/me", "", "").Code)
}

func TestRegisterValidation(t *testing.T) {
	f := newAuthFixture()
	rec := call(f.e, http.MethodPost, "/v1/auth/register", "", `{"name":"Ann","email":"nope","password":"short"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "email must be a valid email address")
	assert.Contains(t, rec.Body.String(), "password must be at least 8 characters")
}

func TestRefreshRotatesAndLogoutRevokes(t *testing.T) {
	f := newAuthFixture()
	reg := decodeAuth(t, call(f.e, http.MethodPost, "/v1/auth/register", "", `{"name":"Ann","email":"ann@example.com","password":"longenough"}`))

	rec := call(f.e, http.MethodPost, "/v1/auth/refresh", "", `{"refresh_token":"`+reg.Refresh.Token+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := decodeAuth(t, rec)
	assert.NotEqual(t, reg.Refresh.Token, rotated.Refresh.Token)

	reuse := call(f.e, http.MethodPost, "/v1/auth/refresh", "", `{"refresh_token":"`+reg.Refresh.Token+`"}`)
	assert.Equal(t, http.StatusUnauthorized, reuse.Code)

	out := call(f.e, http.MethodPost, "/v1/auth/logout", "Bearer "+rotated.Access.Token, `{}`)
	assert.Equal(t, http.StatusNoContent, out.Code)

	after := call(f.e, http.MethodPost, "/v1/auth/refresh", "", `{"refresh_token":"`+rotated.Refresh.Token+`"}`)
	assert.Equal(t, http.StatusUnauthorized, after.Code)

	assert.Equal(t, http.StatusBadRequest, call(f.e, http.MethodPost, "/v1/auth/logout", "", `{}`).Code)
}

func TestRegisterStoreFailure(t *testing.T) {
	f := newAuthFixture()
	f.users.fail = errors.New("db down")
	rec := call(f.e, http.MethodPost, "/v1/auth/register", "", `{"name":"Ann","email":"ann@example.com","password":"longenough"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestHealthAndReady(t *testing.T) {
	e := echo.New()
	e.GET("/healthz", Health)
	e.GET("/readyz", Ready(pinger{}))
	e.GET("/readyz-down", Ready(pinger{err: errors.New("down")}))

	assert.Equal(t, "ok", call(e, http.MethodGet, "/healthz", "", "").Body.String())
	assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/readyz", "", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, call(e, http.MethodGet, "/readyz-down", "", "").Code)
}
