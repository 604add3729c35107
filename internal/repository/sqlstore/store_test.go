package sqlstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/jokebox/internal/model"
)

// newTestStore opens a fresh in-memory database with the schema applied.
// Each call gets its own database because the pool holds a single connection.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err, "opening test store")
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestUser(t *testing.T, s *Store, email string) *model.User {
	t.Helper()
	u := &model.User{Email: email, PasswordHash: "$2a$04$notarealhash"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestDialectFor(t *testing.T) {
	tests := []struct {
		dsn  string
		want Dialect
	}{
		{":memory:", DialectSQLite},
		{"data/jokebox.db", DialectSQLite},
		{"file:test.db?cache=shared", DialectSQLite},
		{"postgres://app:pw@localhost:5432/jokes", DialectPostgres},
		{"postgresql://app@db/jokes?sslmode=disable", DialectPostgres},
		{"POSTGRES://APP@DB/JOKES", DialectPostgres},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			require.Equal(t, tt.want, DialectFor(tt.dsn))
		})
	}
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
	require.Equal(t, DialectSQLite, s.Dialect())
}

func TestReset_DropsTables(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createTestUser(t, s, "a@example.com")

	require.NoError(t, s.Reset(ctx))
	_, err := s.GetUserByEmail(ctx, "a@example.com")
	require.Error(t, err, "users table should be gone after reset")

	require.NoError(t, s.Migrate(ctx))
	createTestUser(t, s, "a@example.com")
}

func TestIsUniqueViolation(t *testing.T) {
	require.False(t, isUniqueViolation(nil))
	require.False(t, isUniqueViolation(errors.New("disk I/O error")))
	require.True(t, isUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)")))
}

func TestSetClock(t *testing.T) {
	s := newTestStore(t)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.FixedZone("X", 3600))
	s.SetClock(func() time.Time { return fixed })

	u := createTestUser(t, s, "clock@example.com")
	require.Equal(t, time.UTC, u.CreatedAt.Location())
	require.True(t, u.CreatedAt.Equal(fixed.Truncate(time.Microsecond)))
}

func TestEnsureDir(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "nested", "data", "jokebox.db")

	require.NoError(t, EnsureDir(dsn))
	info, err := os.Stat(filepath.Dir(dsn))
	require.NoError(t, err)
	require.True(t, info.IsDir())

	require.NoError(t, EnsureDir(":memory:"))
	require.NoError(t, EnsureDir("postgres://app@db/jokes"))
}
