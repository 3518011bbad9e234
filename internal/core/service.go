package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gwi.com/pdf-chatbot/internal/auth"
	"gwi.com/pdf-chatbot/internal/index"
	"gwi.com/pdf-chatbot/internal/ingest"
	"gwi.com/pdf-chatbot/internal/store"
)

type QueryLog interface {
	AppendQuery(ctx context.Context, username, question, answer string) (*store.QueryLogEntry, error)
	ListQueries(ctx context.Context, username string) ([]store.QueryLogEntry, error)
}

type IndexStore interface {
	Build(ctx context.Context, owner, source string, chunks []string, credential string) (*index.Index, error)
	Load(owner string) (*index.Index, error)
}

type Splitter interface {
	Split(text string) []string
}

// Service ties accounts, documents and conversations together. It is the
// only thing the HTTP and CLI layers talk to.
type Service struct {
	credentials *CredentialStore
	queries     QueryLog
	indexes     IndexStore
	extractor   ingest.Extractor
	splitter    Splitter
	engine      *ConversationEngine
	sessions    *SessionManager
	tokens      *auth.TokenIssuer
}

type Deps struct {
	Credentials *CredentialStore
	Queries     QueryLog
	Indexes     IndexStore
	Extractor   ingest.Extractor
	Splitter    Splitter
	Engine      *ConversationEngine
	Sessions    *SessionManager
	Tokens      *auth.TokenIssuer
}

func NewService(d Deps) *Service {
	sessions := d.Sessions
	if sessions == nil {
		sessions = NewSessionManager()
	}
	return &Service{
		credentials: d.Credentials,
		queries:     d.Queries,
		indexes:     d.Indexes,
		extractor:   d.Extractor,
		splitter:    d.Splitter,
		engine:      d.Engine,
		sessions:    sessions,
		tokens:      d.Tokens,
	}
}

type IndexStatus struct {
	Source         string    `json:"source,omitempty"`
	Chunks         int       `json:"chunks"`
	EmbeddingModel string    `json:"embedding_model"`
	BuiltAt        time.Time `json:"built_at"`
}

func statusOf(idx *index.Index) *IndexStatus {
	if idx == nil {
		return nil
	}
	return &IndexStatus{
		Source:         idx.Source,
		Chunks:         idx.ChunkCount(),
		EmbeddingModel: idx.EmbeddingModel,
		BuiltAt:        idx.BuiltAt,
	}
}

type LoginResult struct {
	Token    string
	Session  *Session
	Index    *IndexStatus
	Warnings []string
}

type UploadResult struct {
	Chunks     int
	Pages      int
	PageErrors []ingest.PageError
}

// Signup creates an account. The credential is only checked for format here;
// it is stored at the first login. The caller stays logged out.
func (s *Service) Signup(ctx context.Context, username, password, credential string) error {
	if err := s.credentials.ValidateCredential(credential); err != nil {
		return err
	}
	return s.credentials.CreateAccount(ctx, username, password)
}

// Login authenticates, rotates the stored credential and opens a session
// with the user's previous index, if one can be loaded.
func (s *Service) Login(ctx context.Context, username, password, credential string) (*LoginResult, error) {
	if err := s.credentials.VerifyAndRotate(ctx, username, password, credential); err != nil {
		return nil, err
	}

	stored, ok, err := s.credentials.GetCredential(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}
	if !ok {
		stored = credential
	}

	var warnings []string
	idx, err := s.indexes.Load(username)
	if err != nil {
		slog.Warn("Could not load existing index", "user", username, "error", err)
		warnings = append(warnings, "Your previous document index could not be loaded. Please upload the document again.")
		idx = nil
	}

	sess := s.sessions.Create(username, stored, idx)
	token, err := s.tokens.Generate(username, sess.ID)
	if err != nil {
		s.sessions.End(sess.ID)
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	slog.Info("User logged in", "user", username, "has_index", idx != nil)
	return &LoginResult{Token: token, Session: sess, Index: statusOf(idx), Warnings: warnings}, nil
}

// Authenticate resolves a token to its live session.
func (s *Service) Authenticate(token string) (*Session, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, err
	}
	sess, ok := s.sessions.Get(claims.SessionID)
	if !ok || sess.State() != LoggedIn || sess.Username() != claims.Username {
		return nil, ErrNotLoggedIn
	}
	return sess, nil
}

func (s *Service) Logout(sess *Session) {
	username := sess.Username()
	if s.sessions.End(sess.ID) {
		slog.Info("User logged out", "user", username)
	}
}

// Upload replaces the session user's index with one built from a PDF. The
// conversation memory of the session carries over.
func (s *Service) Upload(ctx context.Context, sess *Session, filename string, data []byte) (*UploadResult, error) {
	sess.requests.Lock()
	defer sess.requests.Unlock()

	if sess.State() != LoggedIn {
		return nil, ErrNotLoggedIn
	}
	username := sess.Username()

	extraction, err := s.extractor.Extract(data)
	if err != nil {
		return nil, err
	}
	for _, pe := range extraction.PageErrors {
		slog.Warn("Skipped unreadable page", "user", username, "page", pe.Page, "error", pe.Err)
	}
	if extraction.Empty() {
		return nil, ErrEmptyDocument
	}

	chunks := s.splitter.Split(extraction.Text)
	idx, err := s.indexes.Build(ctx, username, filename, chunks, sess.credentialValue())
	if err != nil {
		if errors.Is(err, index.ErrEmptyInput) {
			return nil, ErrEmptyDocument
		}
		return nil, err
	}

	sess.setIndex(idx)
	slog.Info("Document indexed", "user", username, "pages", extraction.Pages, "chunks", idx.ChunkCount())
	return &UploadResult{
		Chunks:     idx.ChunkCount(),
		Pages:      extraction.Pages,
		PageErrors: extraction.PageErrors,
	}, nil
}

// Ask answers a question against the session's index and records the turn in
// the durable query log. A failed log write does not fail the question.
func (s *Service) Ask(ctx context.Context, sess *Session, question string) (string, error) {
	sess.requests.Lock()
	defer sess.requests.Unlock()

	if sess.State() != LoggedIn {
		return "", ErrNotLoggedIn
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	idx := sess.Index()
	if idx == nil {
		return "", ErrIndexUnavailable
	}
	username := sess.Username()

	answer, err := s.engine.Ask(ctx, sess.credentialValue(), idx, sess.Memory(), question)
	if err != nil {
		return "", err
	}

	if _, err := s.queries.AppendQuery(ctx, username, question, answer); err != nil {
		slog.Error("Failed to record query", "user", username, "error", err)
	}
	return answer, nil
}

func (s *Service) ChatHistory(sess *Session) []Turn {
	return sess.Memory().Turns()
}

func (s *Service) QueryHistory(ctx context.Context, username string) ([]store.QueryLogEntry, error) {
	entries, err := s.queries.ListQueries(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to list queries: %w", err)
	}
	return entries, nil
}

func (s *Service) IndexStatus(sess *Session) *IndexStatus {
	return statusOf(sess.Index())
}
