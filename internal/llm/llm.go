package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrExternalService = errors.New("external service error")

// ExternalServiceError wraps a failed embedding or generation call. It
// matches ErrExternalService with errors.Is.
type ExternalServiceError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s %s request failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func (e *ExternalServiceError) Is(target error) bool { return target == ErrExternalService }

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

// Provider is an embedding and chat completion backend. Every call takes the
// caller's API credential; providers hold no per-user state.
type Provider interface {
	Name() string
	EmbeddingModel() string
	Embed(ctx context.Context, credential string, texts []string) ([][]float32, error)
	Complete(ctx context.Context, credential string, messages []Message) (string, error)
}

// Sampling temperature for every completion.
const temperature = 0

type Options struct {
	ChatModel      string
	EmbeddingModel string
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
}

func NewProvider(name string, opts Options) (Provider, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	switch name {
	case "openai":
		return NewOpenAIProvider(opts), nil
	case "gemini":
		return NewGeminiProvider(opts), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", name)
	}
}
