package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Vr3n/crown-vitality-research/internal/database"
	"github.com/Vr3n/crown-vitality-research/internal/model"
	"github.com/Vr3n/crown-vitality-research/internal/slug"
)

// NoteRepo encapsulates all database queries related to notes and their
// category, tag and reference relations. Every method takes the id of the
// requesting user and only ever touches that user's rows.
type NoteRepo struct {
	db       *sqlx.DB
	taxonomy *TaxonomyRepo
	newID    func() string
	now      func() time.Time
}

// NewNoteRepo constructs a NoteRepo. Tags and categories are resolved
// through the given TaxonomyRepo inside the note's transaction.
func NewNoteRepo(db *sqlx.DB, taxonomy *TaxonomyRepo) *NoteRepo {
	return &NoteRepo{
		db:       db,
		taxonomy: taxonomy,
		newID:    uuid.NewString,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// noteRow is a notes row joined with its category name.
type noteRow struct {
	model.Note
	CategoryName sql.NullString `db:"category_name"`
}

type tagRow struct {
	NoteID string `db:"note_id"`
	model.Label
}

type referenceRow struct {
	NoteID string `db:"note_id"`
	model.NoteReference
}

func selectNotes() sq.SelectBuilder {
	return sq.Select(
		"n.id", "n.slug", "n.title", "n.content", "n.user_id", "n.category_id",
		"c.name AS category_name", "n.created_at", "n.updated_at",
	).
		From("notes n").
		LeftJoin("categories c ON c.id = n.category_id")
}

// List returns all notes owned by userID with relations attached, newest
// first.
func (r *NoteRepo) List(ctx context.Context, userID string) ([]model.NoteDetail, error) {
	q, args, err := selectNotes().
		Where(sq.Eq{"n.user_id": userID}).
		OrderBy("n.created_at DESC").
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []noteRow
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return r.withRelations(ctx, rows)
}

// GetByID fetches one of the user's notes by id. ErrNoteNotFound is returned
// when the note does not exist or is owned by someone else.
func (r *NoteRepo) GetByID(ctx context.Context, userID, id string) (*model.NoteDetail, error) {
	return r.getOne(ctx, sq.Eq{"n.id": id, "n.user_id": userID})
}

// GetBySlug is GetByID keyed by slug.
func (r *NoteRepo) GetBySlug(ctx context.Context, userID, noteSlug string) (*model.NoteDetail, error) {
	return r.getOne(ctx, sq.Eq{"n.slug": noteSlug, "n.user_id": userID})
}

func (r *NoteRepo) getOne(ctx context.Context, where sq.Eq) (*model.NoteDetail, error) {
	q, args, err := selectNotes().Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, err
	}

	var row noteRow
	if err := r.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoteNotFound
		}
		return nil, fmt.Errorf("get note: %w", err)
	}

	details, err := r.withRelations(ctx, []noteRow{row})
	if err != nil {
		return nil, err
	}
	return &details[0], nil
}

// withRelations converts rows to details and attaches tags and references
// with one query each.
func (r *NoteRepo) withRelations(ctx context.Context, rows []noteRow) ([]model.NoteDetail, error) {
	out := make([]model.NoteDetail, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	ids := make([]string, len(rows))
	index := make(map[string]int, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
		index[row.ID] = i
		out[i] = model.NoteDetail{
			ID:           row.ID,
			Slug:         row.Slug,
			Title:        row.Title,
			Content:      nullString(row.Content),
			CategoryID:   nullString(row.CategoryID),
			CategoryName: nullString(row.CategoryName),
			Tags:         []model.Label{},
			References:   []model.NoteReference{},
			CreatedAt:    row.CreatedAt,
			UpdatedAt:    row.UpdatedAt,
		}
	}

	q, args, err := sq.Select("nt.note_id", "t.id", "t.name").
		From("note_tags nt").
		Join("tags t ON t.id = nt.tag_id").
		Where(sq.Eq{"nt.note_id": ids}).
		OrderBy("t.name").
		ToSql()
	if err != nil {
		return nil, err
	}
	var tags []tagRow
	if err := r.db.SelectContext(ctx, &tags, q, args...); err != nil {
		return nil, fmt.Errorf("load note tags: %w", err)
	}
	for _, t := range tags {
		if i, ok := index[t.NoteID]; ok {
			out[i].Tags = append(out[i].Tags, t.Label)
		}
	}

	q, args, err = sq.Select("note_id", "id", "type", "value").
		From("note_references").
		Where(sq.Eq{"note_id": ids}).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, err
	}
	var refs []referenceRow
	if err := r.db.SelectContext(ctx, &refs, q, args...); err != nil {
		return nil, fmt.Errorf("load note references: %w", err)
	}
	for _, ref := range refs {
		if i, ok := index[ref.NoteID]; ok {
			out[i].References = append(out[i].References, ref.NoteReference)
		}
	}
	return out, nil
}

// Create inserts a note with its category, tags and references in one
// transaction and returns the new note's id. The slug is derived from the
// title and made unique across all users.
func (r *NoteRepo) Create(ctx context.Context, userID string, in model.NoteInput) (string, error) {
	var noteID string
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		noteSlug, err := slug.Unique(ctx, slug.Generate(in.Title), func(ctx context.Context, s string) (bool, error) {
			return slugExistsTx(ctx, tx, s)
		})
		if err != nil {
			return err
		}

		categoryID, err := r.resolveCategoryTx(ctx, tx, userID, in.Category)
		if err != nil {
			return err
		}

		id := r.newID()
		now := r.now()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO notes (id, slug, title, content, user_id, category_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, noteSlug, in.Title, optional(in.Content), userID, categoryID, now, now)
		if err != nil {
			if database.IsDuplicateKey(err) {
				return ErrConflict
			}
			return fmt.Errorf("insert note: %w", err)
		}

		if err := r.insertTagsTx(ctx, tx, userID, id, in.Tags); err != nil {
			return err
		}
		if err := r.insertReferencesTx(ctx, tx, id, in.References); err != nil {
			return err
		}
		noteID = id
		return nil
	})
	if err != nil {
		return "", err
	}
	return noteID, nil
}

// Update replaces a note's title, content and category in place and swaps
// its tag and reference sets for the submitted ones. The slug is kept.
// ErrNoteNotFound is returned when the note is missing or not owned by
// userID; nothing is written in that case.
func (r *NoteRepo) Update(ctx context.Context, userID, id string, in model.NoteInput) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var owner string
		err := tx.GetContext(ctx, &owner, "SELECT user_id FROM notes WHERE id = ? FOR UPDATE", id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNoteNotFound
			}
			return fmt.Errorf("lock note: %w", err)
		}
		if owner != userID {
			return ErrNoteNotFound
		}

		categoryID, err := r.resolveCategoryTx(ctx, tx, userID, in.Category)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE notes SET title = ?, content = ?, category_id = ?, updated_at = ?
			 WHERE id = ? AND user_id = ?`,
			in.Title, optional(in.Content), categoryID, r.now(), id, userID)
		if err != nil {
			return fmt.Errorf("update note: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM note_tags WHERE note_id = ?", id); err != nil {
			return fmt.Errorf("clear note tags: %w", err)
		}
		if err := r.insertTagsTx(ctx, tx, userID, id, in.Tags); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM note_references WHERE note_id = ?", id); err != nil {
			return fmt.Errorf("clear note references: %w", err)
		}
		return r.insertReferencesTx(ctx, tx, id, in.References)
	})
}

// Delete removes one of the user's notes. Join rows and references go with
// it through ON DELETE CASCADE; tags and categories are left in place.
func (r *NoteRepo) Delete(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM notes WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoteNotFound
	}
	return nil
}

// SlugExists reports whether any user's note already uses slug.
func (r *NoteRepo) SlugExists(ctx context.Context, noteSlug string) (bool, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM notes WHERE slug = ?", noteSlug); err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return n > 0, nil
}

func slugExistsTx(ctx context.Context, tx *sqlx.Tx, noteSlug string) (bool, error) {
	var n int
	if err := tx.GetContext(ctx, &n, "SELECT COUNT(*) FROM notes WHERE slug = ?", noteSlug); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *NoteRepo) resolveCategoryTx(ctx context.Context, tx *sqlx.Tx, userID, name string) (sql.NullString, error) {
	if name == "" {
		return sql.NullString{}, nil
	}
	id, err := r.taxonomy.ResolveOrCreateTx(ctx, tx, KindCategory, userID, name)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: id, Valid: true}, nil
}

func (r *NoteRepo) insertTagsTx(ctx context.Context, tx *sqlx.Tx, userID, noteID string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	ins := sq.Insert("note_tags").Columns("note_id", "tag_id")
	for _, name := range names {
		tagID, err := r.taxonomy.ResolveOrCreateTx(ctx, tx, KindTag, userID, name)
		if err != nil {
			return err
		}
		ins = ins.Values(noteID, tagID)
	}
	q, args, err := ins.ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert note tags: %w", err)
	}
	return nil
}

func (r *NoteRepo) insertReferencesTx(ctx context.Context, tx *sqlx.Tx, noteID string, refs []model.ReferenceInput) error {
	if len(refs) == 0 {
		return nil
	}
	ins := sq.Insert("note_references").Columns("id", "note_id", "type", "value", "position")
	for i, ref := range refs {
		ins = ins.Values(r.newID(), noteID, string(ref.Type), ref.Value, i)
	}
	q, args, err := ins.ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert note references: %w", err)
	}
	return nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// optional maps an empty string to SQL NULL.
func optional(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
