package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gwi.com/pdf-chatbot/internal/auth"
	"gwi.com/pdf-chatbot/internal/store"
)

type AccountStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*store.User, error)
	GetUser(ctx context.Context, username string) (*store.User, error)
	UpdateAPIKey(ctx context.Context, username, apiKey string) error
	GetAPIKey(ctx context.Context, username string) (string, bool, error)
}

// CredentialStore holds accounts: a bcrypt password hash and the API
// credential last supplied at login.
type CredentialStore struct {
	store AccountStore
	rule  *auth.CredentialRule
}

func NewCredentialStore(s AccountStore, rule *auth.CredentialRule) *CredentialStore {
	return &CredentialStore{store: s, rule: rule}
}

// ValidateCredential checks the credential format without touching storage.
func (c *CredentialStore) ValidateCredential(credential string) error {
	return c.rule.Validate(credential)
}

func (c *CredentialStore) CreateAccount(ctx context.Context, username, password string) error {
	if err := auth.ValidateUsername(username); err != nil {
		return err
	}
	if password == "" {
		return ErrMissingPassword
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return err
		}
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if _, err := c.store.CreateUser(ctx, username, hash); err != nil {
		return err
	}
	slog.Info("Account created", "user", username)
	return nil
}

// VerifyAndRotate authenticates username/password and, on success, replaces
// the stored credential with the one supplied. Unknown users and wrong
// passwords are indistinguishable to the caller.
func (c *CredentialStore) VerifyAndRotate(ctx context.Context, username, password, credential string) error {
	if err := c.rule.Validate(credential); err != nil {
		return err
	}

	user, err := c.store.GetUser(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		// Spend the same bcrypt work as a real check.
		auth.CheckPasswordHash(password, dummyHash())
		return ErrAuthenticationFailed
	}
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return ErrAuthenticationFailed
	}

	if err := c.store.UpdateAPIKey(ctx, username, credential); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// GetCredential reports ok=false if the user never supplied a credential.
func (c *CredentialStore) GetCredential(ctx context.Context, username string) (string, bool, error) {
	return c.store.GetAPIKey(ctx, username)
}

var (
	dummyHashOnce  sync.Once
	dummyHashValue string
)

func dummyHash() string {
	dummyHashOnce.Do(func() {
		dummyHashValue, _ = auth.HashPassword("not-a-real-password")
	})
	return dummyHashValue
}
