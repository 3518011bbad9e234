package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mattn/go-sqlite3" // SQLite driver
)

var (
	ErrDuplicateAccount = errors.New("account already exists")
	ErrUserNotFound     = errors.New("user not found")
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates missing tables and adds columns introduced after the
// first release. It is safe to run on every start.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT UNIQUE NOT NULL,
        password TEXT NOT NULL,
        api_key TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS user_queries (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT NOT NULL,
        question TEXT NOT NULL,
        answer TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (username) REFERENCES users (username)
    );

    CREATE INDEX IF NOT EXISTS idx_user_queries_username ON user_queries (username, id);
    `
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	// Older databases predate these columns. SQLite cannot add a column with
	// a non-constant default, so added created_at columns stay NULL for old rows.
	for _, m := range additiveColumns {
		exists, err := s.hasColumn(ctx, m.table, m.column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		slog.Info("Migrating table: adding column", "table", m.table, "column", m.column)
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.table, m.column, m.decl)); err != nil {
			return fmt.Errorf("failed to add %s.%s column: %w", m.table, m.column, err)
		}
	}
	return nil
}

var additiveColumns = []struct {
	table, column, decl string
}{
	{"users", "api_key", "TEXT"},
	{"users", "created_at", "DATETIME"},
	{"user_queries", "created_at", "DATETIME"},
}

func (s *SQLiteStore) hasColumn(ctx context.Context, table, column string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect table %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, fmt.Errorf("failed to scan table_info row: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// User methods
func (s *SQLiteStore) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	res, err := s.db.ExecContext(ctx, "INSERT INTO users (username, password, api_key) VALUES (?, ?, NULL)", username, passwordHash)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.getUserByID(ctx, id)
}

// GetUser returns nil, nil when no such user exists.
func (s *SQLiteStore) GetUser(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, username, password, api_key, created_at FROM users WHERE username = ?", username)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

func (s *SQLiteStore) getUserByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, username, password, api_key, created_at FROM users WHERE id = ?", id)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return user, nil
}

func scanUser(row *sql.Row) (*User, error) {
	var user User
	var apiKey sql.NullString
	var createdAt sql.NullTime
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &apiKey, &createdAt); err != nil {
		return nil, err
	}
	if apiKey.Valid {
		user.APIKey = &apiKey.String
	}
	user.CreatedAt = createdAt.Time
	return &user, nil
}

func (s *SQLiteStore) UpdateAPIKey(ctx context.Context, username, apiKey string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET api_key = ? WHERE username = ?", apiKey, username)
	if err != nil {
		return fmt.Errorf("failed to update api key: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetAPIKey reports ok=false when the user is unknown or never supplied a key.
func (s *SQLiteStore) GetAPIKey(ctx context.Context, username string) (string, bool, error) {
	var apiKey sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT api_key FROM users WHERE username = ?", username).Scan(&apiKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to query api key: %w", err)
	}
	return apiKey.String, apiKey.Valid, nil
}

// Query log methods
func (s *SQLiteStore) AppendQuery(ctx context.Context, username, question, answer string) (*QueryLogEntry, error) {
	res, err := s.db.ExecContext(ctx, "INSERT INTO user_queries (username, question, answer) VALUES (?, ?, ?)", username, question, answer)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user query: %w", err)
	}
	id, _ := res.LastInsertId()
	return &QueryLogEntry{ID: id, Username: username, Question: question, Answer: answer}, nil
}

// ListQueries returns the user's log in insertion order.
func (s *SQLiteStore) ListQueries(ctx context.Context, username string) ([]QueryLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, username, question, answer, created_at FROM user_queries WHERE username = ? ORDER BY id ASC", username)
	if err != nil {
		return nil, fmt.Errorf("failed to query user queries: %w", err)
	}
	defer rows.Close()

	var entries []QueryLogEntry
	for rows.Next() {
		var entry QueryLogEntry
		var createdAt sql.NullTime
		if err := rows.Scan(&entry.ID, &entry.Username, &entry.Question, &entry.Answer, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan user query row: %w", err)
		}
		entry.CreatedAt = createdAt.Time
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
