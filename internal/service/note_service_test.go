package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vr3n/crown-vitality-research/internal/model"
	"github.com/Vr3n/crown-vitality-research/internal/queue"
	"github.com/Vr3n/crown-vitality-research/internal/repository"
	"github.com/Vr3n/crown-vitality-research/internal/session"
	"github.com/Vr3n/crown-vitality-research/internal/slug"
)

// memStore is an in-memory NoteStore with the same ownership rules as the
// MySQL repository.
type memStore struct {
	mu      sync.Mutex
	notes   map[string]*storedNote
	order   []string
	writes  int
	failAll error
}

type storedNote struct {
	owner  string
	detail model.NoteDetail
}

func newMemStore() *memStore { return &memStore{notes: map[string]*storedNote{}} }

func (m *memStore) List(_ context.Context, userID string) ([]model.NoteDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return nil, m.failAll
	}
	var out []model.NoteDetail
	for i := len(m.order) - 1; i >= 0; i-- {
		if n := m.notes[m.order[i]]; n != nil && n.owner == userID {
			out = append(out, n.detail)
		}
	}
	return out, nil
}

func (m *memStore) GetByID(_ context.Context, userID, id string) (*model.NoteDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.notes[id]
	if n == nil || n.owner != userID {
		return nil, repository.ErrNoteNotFound
	}
	d := n.detail
	return &d, nil
}

func (m *memStore) GetBySlug(_ context.Context, userID, s string) (*model.NoteDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notes {
		if n.detail.Slug == s && n.owner == userID {
			d := n.detail
			return &d, nil
		}
	}
	return nil, repository.ErrNoteNotFound
}

func (m *memStore) slugTaken(_ context.Context, s string) (bool, error) {
	for _, n := range m.notes {
		if n.detail.Slug == s {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Create(ctx context.Context, userID string, in model.NoteInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return "", m.failAll
	}
	s, err := slug.Unique(ctx, slug.Generate(in.Title), m.slugTaken)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	m.notes[id] = &storedNote{owner: userID, detail: detailFrom(id, s, in)}
	m.order = append(m.order, id)
	m.writes++
	return id, nil
}

func (m *memStore) Update(_ context.Context, userID, id string, in model.NoteInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.notes[id]
	if n == nil || n.owner != userID {
		return repository.ErrNoteNotFound
	}
	n.detail = detailFrom(id, n.detail.Slug, in)
	m.writes++
	return nil
}

func (m *memStore) Delete(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.notes[id]
	if n == nil || n.owner != userID {
		return repository.ErrNoteNotFound
	}
	delete(m.notes, id)
	m.writes++
	return nil
}

func detailFrom(id, s string, in model.NoteInput) model.NoteDetail {
	d := model.NoteDetail{ID: id, Slug: s, Title: in.Title, Tags: []model.Label{}, References: []model.NoteReference{}}
	if in.Content != "" {
		c := in.Content
		d.Content = &c
	}
	if in.Category != "" {
		c := in.Category
		d.CategoryName = &c
	}
	for _, t := range in.Tags {
		d.Tags = append(d.Tags, model.Label{ID: "tag-" + t, Name: t})
	}
	for i, r := range in.References {
		d.References = append(d.References, model.NoteReference{ID: string(rune('a' + i)), Type: r.Type, Value: r.Value})
	}
	return d
}

type fakeLabels struct {
	byUser map[string][]model.Label
	err    error
}

func (f *fakeLabels) ListByUser(_ context.Context, kind repository.Kind, userID string) ([]model.Label, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byUser[string(kind)+":"+userID], nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.NoteEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.NoteEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type fakeCache struct{ invalidated []string }

func (c *fakeCache) Invalidate(_ context.Context, userID string) error {
	c.invalidated = append(c.invalidated, userID)
	return nil
}

type countingRecorder struct{ counts map[string]int }

func (r *countingRecorder) NoteOperation(op, outcome string) { r.counts[op+"/"+outcome]++ }

type fixture struct {
	svc    *NoteService
	store  *memStore
	labels *fakeLabels
	events *recordingPublisher
	cache  *fakeCache
	rec    *countingRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  newMemStore(),
		labels: &fakeLabels{byUser: map[string][]model.Label{}},
		events: &recordingPublisher{},
		cache:  &fakeCache{},
		rec:    &countingRecorder{counts: map[string]int{}},
	}
	f.svc = NewNoteService(Deps{
		Notes:   f.store,
		Labels:  f.labels,
		Events:  f.events,
		Cache:   f.cache,
		Metrics: f.rec,
		Log:     zerolog.Nop(),
	})
	f.svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return f
}

var (
	alice = &session.Identity{ID: "alice", Email: "alice@example.com", Name: "Alice"}
	bob   = &session.Identity{ID: "bob", Email: "bob@example.com", Name: "Bob"}
	ctx   = context.Background()
)

func TestCreateNoteUnauthenticatedWritesNothing(t *testing.T) {
	f := newFixture(t)

	res := f.svc.CreateNote(ctx, nil, model.NoteInput{Title: "Keto"})

	assert.False(t, res.Success)
	assert.Equal(t, KindUnauthorized, res.Kind)
	assert.Equal(t, "unauthorized", res.Error)
	assert.Zero(t, f.store.writes)
	f.svc.Wait()
	assert.Empty(t, f.events.events)
}

func TestWritesRequireIdentity(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, KindUnauthorized, f.svc.UpdateNote(ctx, nil, "id", "slug", model.NoteInput{Title: "x"}).Kind)
	assert.Equal(t, KindUnauthorized, f.svc.DeleteNote(ctx, nil, "id").Kind)
}

func TestCreateNoteRejectsBlankTitleBeforeStore(t *testing.T) {
	f := newFixture(t)

	for _, title := range []string{"", "   ", "\n\t"} {
		res := f.svc.CreateNote(ctx, alice, model.NoteInput{Title: title})
		assert.Equal(t, KindValidation, res.Kind, "title %q", title)
		assert.Contains(t, res.Error, "title")
	}
	assert.Zero(t, f.store.writes)
	assert.Equal(t, 3, f.rec.counts["create/validation"])
}

func TestCreateNoteDuplicateTitlesGetSuffixedSlugs(t *testing.T) {
	f := newFixture(t)

	first := f.svc.CreateNote(ctx, alice, model.NoteInput{Title: "Keto Basics"})
	second := f.svc.CreateNote(ctx, bob, model.NoteInput{Title: "Keto Basics"})
	require.True(t, first.Success)
	require.True(t, second.Success)

	a, res := f.svc.GetNote(ctx, alice, first.NoteID)
	require.True(t, res.Success)
	b, res := f.svc.GetNote(ctx, bob, second.NoteID)
	require.True(t, res.Success)
	assert.Equal(t, "keto-basics", a.Slug)
	assert.Equal(t, "keto-basics-1", b.Slug)
}

func TestNotesAreInvisibleToOtherUsers(t *testing.T) {
	f := newFixture(t)
	res := f.svc.CreateNote(ctx, alice, model.NoteInput{Title: "Private plan"})
	require.True(t, res.Success)
	note, _ := f.svc.GetNote(ctx, alice, res.NoteID)
	require.NotNil(t, note)

	byID, r := f.svc.GetNote(ctx, bob, note.ID)
	assert.Nil(t, byID)
	assert.Equal(t, KindNotFound, r.Kind)

	bySlug, r := f.svc.GetNote(ctx, bob, note.Slug)
	assert.Nil(t, bySlug)
	assert.Equal(t, KindNotFound, r.Kind)

	list, r := f.svc.ListNotes(ctx, bob, model.NoteFilter{})
	assert.True(t, r.Success)
	assert.Empty(t, list)

	assert.Equal(t, KindNotFound, f.svc.UpdateNote(ctx, bob, note.ID, note.Slug, model.NoteInput{Title: "mine now"}).Kind)
	assert.Equal(t, KindNotFound, f.svc.DeleteNote(ctx, bob, note.ID).Kind)

	still, r := f.svc.GetNote(ctx, alice, note.ID)
	require.True(t, r.Success)
	assert.Equal(t, "Private plan", still.Title)
}

func TestGetNoteBySlugRendersContent(t *testing.T) {
	f := newFixture(t)
	res := f.svc.CreateNote(ctx, alice, model.NoteInput{Title: "Protein", Content: "**high** <b>"})
	require.True(t, res.Success)

	note, r := f.svc.GetNote(ctx, alice, "protein")
	require.True(t, r.Success)
	assert.Equal(t, res.NoteID, note.ID)
	assert.Equal(t, "<p><strong>high</strong> &lt;b&gt;</p>", note.ContentHTML)
}

func TestGetNoteAnonymousIsNotFound(t *testing.T) {
	f := newFixture(t)
	note, r := f.svc.GetNote(ctx, nil, "anything")
	assert.Nil(t, note)
	assert.Equal(t, KindNotFound, r.Kind)
}

func TestListNotesAnonymousIsEmpty(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.svc.CreateNote(ctx, alice, model.NoteInput{Title: "x"}).Success)

	list, r := f.svc.ListNotes(ctx, nil, model.NoteFilter{})
	assert.True(t, r.Success)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestListNotesFiltersAndKeepsNewestFirst(t *testing.T) {
	f := newFixture(t)
	for _, in := range []model.NoteInput{
		{Title: "Keto intro", Tags: []string{"diet"}, Category: "Clinical"},
		{Title: "Fiber", Content: "Not KETO friendly", Tags: []string{"fiber"}},
		{Title: "Hydration"},
	} {
		require.True(t, f.svc.CreateNote(ctx, alice, in).Success)
	}

	titles := func(ns []model.NoteDetail) []string {
		out := make([]string, len(ns))
		for i, n := range ns {
			out[i] = n.Title
		}
		return out
	}

	all, _ := f.svc.ListNotes(ctx, alice, model.NoteFilter{})
	assert.Equal(t, []string{"Hydration", "Fiber", "Keto intro"}, titles(all))

	keto, _ := f.svc.ListNotes(ctx, alice, model.NoteFilter{Search: "keto"})
	assert.Equal(t, []string{"Fiber", "Keto intro"}, titles(keto))

	tagged, _ := f.svc.ListNotes(ctx, alice, model.NoteFilter{Search: "keto", Tag: "diet"})
	assert.Equal(t, []string{"Keto intro"}, titles(tagged))

	cat, _ := f.svc.ListNotes(ctx, alice, model.NoteFilter{Category: "Clinical"})
	assert.Equal(t, []string{"Keto intro"}, titles(cat))
}

func TestUpdateNoteReplacesTags(t *testing.T) {
	f := newFixture(t)
	res := f.svc.CreateNote(ctx, alice, model.NoteInput{Title: "Tags", Tags: []string{"x", "y"}})
	require.True(t, res.Success)

	up := f.svc.UpdateNote(ctx, alice, res.NoteID, "tags", model.NoteInput{Title: "Tags", Tags: []string{"y", "z", " y ", ""}})
	require.True(t, up.Success)
	assert.Equal(t, res.NoteID, up.NoteID)

	note, _ := f.svc.GetNote(ctx, alice, res.NoteID)
	names := make([]string, len(note.Tags))
	for i, tag := range note.Tags {
		names[i] = tag.Name
	}
	sort.Strings(names)
	assert.Equal(t, []string{"y", "z"}, names)
	assert.Equal(t, "tags", note.Slug)
}

func TestWritesPublishEventsAndInvalidateCache(t *testing.T) {
	f := newFixture(t)

	res := f.svc.CreateNote(ctx, alice, model.NoteInput{Title: "Event", Tags: []string{"a"}, Category: "c"})
	require.True(t, res.Success)
	require.True(t, f.svc.UpdateNote(ctx, alice, res.NoteID, "event", model.NoteInput{Title: "Event 2"}).Success)
	require.True(t, f.svc.DeleteNote(ctx, alice, res.NoteID).Success)
	f.svc.Wait()

	require.Len(t, f.events.events, 3)
	types := map[queue.EventType]queue.NoteEvent{}
	for _, ev := range f.events.events {
		types[ev.Type] = ev
		assert.Equal(t, "alice", ev.UserID)
		assert.Equal(t, res.NoteID, ev.NoteID)
	}
	assert.Equal(t, []string{"a"}, types[queue.NoteCreated].Tags)
	assert.Equal(t, "c", types[queue.NoteCreated].Category)
	assert.Equal(t, "event", types[queue.NoteUpdated].Slug)
	assert.Contains(t, types, queue.NoteDeleted)

	assert.Equal(t, []string{"alice", "alice", "alice"}, f.cache.invalidated)
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker down")

	res := f.svc.CreateNote(ctx, alice, model.NoteInput{Title: "still saved"})
	f.svc.Wait()
	assert.True(t, res.Success)
	assert.Equal(t, 1, f.store.writes)
}

func TestStoreFailureIsGeneric(t *testing.T) {
	f := newFixture(t)
	f.store.failAll = errors.New("dial tcp 10.0.0.1:3306: connection refused")

	res := f.svc.CreateNote(ctx, alice, model.NoteInput{Title: "x"})
	assert.Equal(t, KindInternal, res.Kind)
	assert.NotContains(t, res.Error, "10.0.0.1")

	list, r := f.svc.ListNotes(ctx, alice, model.NoteFilter{})
	assert.Equal(t, KindInternal, r.Kind)
	assert.Empty(t, list)
	assert.Equal(t, 1, f.rec.counts["create/internal"])
}

func TestConflictIsReported(t *testing.T) {
	f := newFixture(t)
	f.store.failAll = repository.ErrConflict

	res := f.svc.CreateNote(ctx, alice, model.NoteInput{Title: "race"})
	assert.Equal(t, KindConflict, res.Kind)
	assert.NotEmpty(t, res.Error)
}

func TestListUserLabels(t *testing.T) {
	f := newFixture(t)
	f.labels.byUser["tag:alice"] = []model.Label{{ID: "t1", Name: "keto"}}
	f.labels.byUser["category:alice"] = []model.Label{{ID: "c1", Name: "Clinical"}}

	tags, r := f.svc.ListUserTags(ctx, alice)
	assert.True(t, r.Success)
	assert.Equal(t, []model.Label{{ID: "t1", Name: "keto"}}, tags)

	cats, _ := f.svc.ListUserCategories(ctx, alice)
	assert.Equal(t, []model.Label{{ID: "c1", Name: "Clinical"}}, cats)

	anon, r := f.svc.ListUserTags(ctx, nil)
	assert.True(t, r.Success)
	assert.Empty(t, anon)

	f.labels.err = errors.New("boom")
	_, r = f.svc.ListUserCategories(ctx, alice)
	assert.Equal(t, KindInternal, r.Kind)
}

func TestNormalizeInput(t *testing.T) {
	in := normalizeInput(model.NoteInput{
		Title:      "  Title  ",
		Category:   " Sports ",
		Tags:       []string{"b", " a", "b", "  ", "a"},
		References: []model.ReferenceInput{{Type: model.ReferenceURL, Value: " https://x.org "}},
	})
	assert.Equal(t, "Title", in.Title)
	assert.Equal(t, "Sports", in.Category)
	assert.Equal(t, []string{"b", "a"}, in.Tags)
	assert.Equal(t, "https://x.org", in.References[0].Value)
}

func TestRenderMarkdown(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "<p><strong>a</strong> <em>b</em></p>", f.svc.RenderMarkdown("**a** *b*"))
}
