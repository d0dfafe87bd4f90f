package repository

import (
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "mysql"), mock
}

// ids hands out the given ids in order.
func ids(list ...string) func() string {
	i := 0
	return func() string {
		id := list[i]
		i++
		return id
	}
}

func q(s string) string { return regexp.QuoteMeta(s) }
