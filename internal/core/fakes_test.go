package core

import (
	"context"
	"errors"
	"strings"
	"sync"

	"gwi.com/pdf-chatbot/internal/ingest"
	"gwi.com/pdf-chatbot/internal/llm"
)

// fakeModel embeds text as letter frequencies plus a constant component and
// answers with a fixed string.
type fakeModel struct {
	answer      string
	condensed   string
	completeErr error
	embedErr    error

	mu        sync.Mutex
	embedded  [][]string
	completed [][]llm.Message
}

func (m *fakeModel) EmbeddingModel() string { return "fake-embed" }

func (m *fakeModel) Embed(_ context.Context, _ string, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.embedded = append(m.embedded, append([]string(nil), texts...))
	m.mu.Unlock()
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = letterVector(text)
	}
	return out, nil
}

func (m *fakeModel) Complete(_ context.Context, _ string, messages []llm.Message) (string, error) {
	m.mu.Lock()
	m.completed = append(m.completed, append([]llm.Message(nil), messages...))
	m.mu.Unlock()
	if m.completeErr != nil {
		return "", m.completeErr
	}
	if strings.Contains(messages[len(messages)-1].Content, "Standalone question:") {
		return m.condensed, nil
	}
	return m.answer, nil
}

func (m *fakeModel) completions() [][]llm.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]llm.Message(nil), m.completed...)
}

func (m *fakeModel) embeddings() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.embedded...)
}

func letterVector(text string) []float32 {
	v := make([]float32, 27)
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' {
			v[r-'a']++
		}
	}
	v[26] = 1
	return v
}

func providerFailure() error {
	return &llm.ExternalServiceError{Provider: "fake", Op: "chat completion", Err: errors.New("upstream unavailable")}
}

type fakeExtractor struct {
	extraction *ingest.Extraction
	err        error
}

func (e *fakeExtractor) Extract([]byte) (*ingest.Extraction, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.extraction, nil
}
