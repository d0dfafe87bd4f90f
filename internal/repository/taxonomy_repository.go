package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/Vr3n/crown-vitality-research/internal/database"
	"github.com/Vr3n/crown-vitality-research/internal/model"
)

// Kind selects which label table the TaxonomyRepo works on.
type Kind string

const (
	KindTag      Kind = "tag"
	KindCategory Kind = "category"
)

func (k Kind) table() (string, error) {
	switch k {
	case KindTag:
		return "tags", nil
	case KindCategory:
		return "categories", nil
	}
	return "", fmt.Errorf("unknown label kind %q", k)
}

// TaxonomyRepo resolves tag and category names to rows owned by a user,
// creating rows lazily on first use.
type TaxonomyRepo struct {
	db    *sqlx.DB
	newID func() string
}

// NewTaxonomyRepo constructs a TaxonomyRepo with the provided DB handle.
func NewTaxonomyRepo(db *sqlx.DB) *TaxonomyRepo {
	return &TaxonomyRepo{db: db, newID: uuid.NewString}
}

// ResolveOrCreateTx returns the id of the user's label with exactly this
// name, inserting it when missing. The name is used as given. If a
// concurrent request inserts the same name first, the unique (user_id, name)
// index rejects our insert and the winner's row is returned instead.
func (r *TaxonomyRepo) ResolveOrCreateTx(ctx context.Context, tx *sqlx.Tx, kind Kind, userID, name string) (string, error) {
	table, err := kind.table()
	if err != nil {
		return "", err
	}

	var id string
	err = tx.GetContext(ctx, &id, "SELECT id FROM "+table+" WHERE user_id = ? AND name = ? LIMIT 1", userID, name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("find %s %q: %w", kind, name, err)
	}

	id = r.newID()
	_, err = tx.ExecContext(ctx, "INSERT INTO "+table+" (id, user_id, name) VALUES (?, ?, ?)", id, userID, name)
	if err == nil {
		return id, nil
	}
	if !database.IsDuplicateKey(err) {
		return "", fmt.Errorf("insert %s %q: %w", kind, name, err)
	}

	// A plain SELECT would read the transaction's snapshot and miss the
	// row committed by the other writer.
	err = tx.GetContext(ctx, &id,
		"SELECT id FROM "+table+" WHERE user_id = ? AND name = ? LIMIT 1 LOCK IN SHARE MODE", userID, name)
	if err != nil {
		return "", fmt.Errorf("reread %s %q: %w", kind, name, err)
	}
	return id, nil
}

// ListByUser returns the user's tags or categories, newest first.
func (r *TaxonomyRepo) ListByUser(ctx context.Context, kind Kind, userID string) ([]model.Label, error) {
	table, err := kind.table()
	if err != nil {
		return nil, err
	}
	out := []model.Label{}
	q := "SELECT id, name FROM " + table + " WHERE user_id = ? ORDER BY created_at DESC"
	if err := r.db.SelectContext(ctx, &out, q, userID); err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	return out, nil
}
