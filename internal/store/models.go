package store

import "time"

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	APIKey       *string   `json:"-"` // Nullable until supplied at login
	CreatedAt    time.Time `json:"created_at"`
}

type QueryLogEntry struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}
