package database

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// openTestPostgres connects to DATABASE_URL, skipping the test when it is unset.
func openTestPostgres(t *testing.T) *PostgresDB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	db, err := NewPostgresDB(dsn, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, db.InitializeTables(context.Background()))
	t.Cleanup(func() { db.Close(context.Background()) })
	return db
}

func TestPostgresStoreContract(t *testing.T) {
	db := openTestPostgres(t)
	testStoreContract(t, db, func(t *testing.T, id uuid.UUID) int {
		var n int
		require.NoError(t, db.DB.Get(&n, `
			SELECT (SELECT COUNT(*) FROM post_notes WHERE post_id = $1)
			     + (SELECT COUNT(*) FROM post_status_history WHERE post_id = $1)
			     + (SELECT COUNT(*) FROM post_like_keys WHERE post_id = $1)`, id))
		return n
	})
}
