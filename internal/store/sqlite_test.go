package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	user, err := s.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "hash", user.PasswordHash)
	assert.Nil(t, user.APIKey)
	assert.NotZero(t, user.ID)

	_, err = s.CreateUser(ctx, "alice", "other-hash")
	assert.ErrorIs(t, err, ErrDuplicateAccount)
}

func TestGetUser_NotFound(t *testing.T) {
	s := newTestStore(t)

	user, err := s.GetUser(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestAPIKeyLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)

	_, ok, err := s.GetAPIKey(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok, "no key supplied yet")

	require.NoError(t, s.UpdateAPIKey(ctx, "alice", "sk-first"))
	require.NoError(t, s.UpdateAPIKey(ctx, "alice", "sk-second"))

	key, ok, err := s.GetAPIKey(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sk-second", key)

	user, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, user.APIKey)
	assert.Equal(t, "sk-second", *user.APIKey)

	assert.ErrorIs(t, s.UpdateAPIKey(ctx, "nobody", "sk-x"), ErrUserNotFound)

	_, ok, err = s.GetAPIKey(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueryLog_OrderedPerUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, q := range []string{"q1", "q2", "q3"} {
		_, err := s.AppendQuery(ctx, "alice", q, "a-"+q)
		require.NoError(t, err)
	}
	_, err := s.AppendQuery(ctx, "bob", "other", "answer")
	require.NoError(t, err)

	entries, err := s.ListQueries(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, q := range []string{"q1", "q2", "q3"} {
		assert.Equal(t, q, entries[i].Question)
		assert.Equal(t, "a-"+q, entries[i].Answer)
		assert.Equal(t, "alice", entries[i].Username)
	}
	assert.Less(t, entries[0].ID, entries[1].ID)
	assert.False(t, entries[0].CreatedAt.IsZero())

	none, err := s.ListQueries(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMigrate_AddsColumnsToLegacySchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = legacy.Exec(`
        CREATE TABLE users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            username TEXT UNIQUE NOT NULL,
            password TEXT NOT NULL
        );
        CREATE TABLE user_queries (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            username TEXT NOT NULL,
            question TEXT NOT NULL,
            answer TEXT NOT NULL
        );
        INSERT INTO users (username, password) VALUES ('legacy', 'old-hash');
        INSERT INTO user_queries (username, question, answer) VALUES ('legacy', 'old question', 'old answer');
    `)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	user, err := s.GetUser(ctx, "legacy")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "old-hash", user.PasswordHash)
	assert.Nil(t, user.APIKey)

	require.NoError(t, s.UpdateAPIKey(ctx, "legacy", "sk-new"))
	key, ok, err := s.GetAPIKey(ctx, "legacy")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sk-new", key)

	entries, err := s.ListQueries(ctx, "legacy")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "old question", entries[0].Question)

	// Running the migration again is a no-op.
	require.NoError(t, s.Migrate(ctx))
}
