package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gwi.com/pdf-chatbot/internal/index"
	"gwi.com/pdf-chatbot/internal/llm"
)

const (
	DefaultTopK = 4

	qaSystemInstruction = "You are a helpful assistant answering questions about a document the user uploaded. " +
		"Use only the following excerpts from the document to answer. " +
		"If the answer is not in the excerpts, say that you don't know instead of making one up.\n\n" +
		"--- CONTEXT START ---\n%s\n--- CONTEXT END ---"

	condenseInstruction = "Given the following conversation and a follow up question, rephrase the follow up question " +
		"to be a standalone question, in its original language. Return only the question.\n\n" +
		"Chat history:\n%s\nFollow up question: %s\nStandalone question:"

	emptyAnswerFallback = "I'm sorry, I couldn't generate a response at this time. Please try again."
)

type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Memory is the append-only list of turns for one session.
type Memory struct {
	mu    sync.RWMutex
	turns []Turn
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(t Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, t)
}

func (m *Memory) Turns() []Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Turn(nil), m.turns...)
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}

type ModelClient interface {
	Embed(ctx context.Context, credential string, texts []string) ([][]float32, error)
	Complete(ctx context.Context, credential string, messages []llm.Message) (string, error)
}

// ConversationEngine answers questions against a document index with
// retrieval-augmented generation.
type ConversationEngine struct {
	client ModelClient
	topK   int
}

func NewConversationEngine(client ModelClient, topK int) *ConversationEngine {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &ConversationEngine{client: client, topK: topK}
}

// Ask answers question and appends the turn to memory. When memory already
// holds turns, the question is first rewritten into a standalone one so that
// retrieval sees the full intent. On error memory is left unchanged.
func (e *ConversationEngine) Ask(ctx context.Context, credential string, idx *index.Index, memory *Memory, question string) (string, error) {
	if idx == nil {
		return "", ErrIndexUnavailable
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	history := memory.Turns()
	standalone := question
	if len(history) > 0 {
		condensed, err := e.condense(ctx, credential, history, question)
		if err != nil {
			return "", err
		}
		standalone = condensed
	}

	excerpts, err := e.retrieve(ctx, credential, idx, standalone)
	if err != nil {
		return "", err
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: fmt.Sprintf(qaSystemInstruction, strings.Join(excerpts, "\n\n"))},
		{Role: llm.RoleUser, Content: standalone},
	}
	answer, err := e.client.Complete(ctx, credential, messages)
	if err != nil {
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		slog.Warn("Model returned an empty answer")
		answer = emptyAnswerFallback
	}

	memory.Append(Turn{Question: question, Answer: answer})
	return answer, nil
}

func (e *ConversationEngine) condense(ctx context.Context, credential string, history []Turn, question string) (string, error) {
	var transcript strings.Builder
	for _, t := range history {
		fmt.Fprintf(&transcript, "Human: %s\nAssistant: %s\n", t.Question, t.Answer)
	}

	rewritten, err := e.client.Complete(ctx, credential, []llm.Message{
		{Role: llm.RoleUser, Content: fmt.Sprintf(condenseInstruction, transcript.String(), question)},
	})
	if err != nil {
		return "", err
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		return question, nil
	}
	return rewritten, nil
}

func (e *ConversationEngine) retrieve(ctx context.Context, credential string, idx *index.Index, query string) ([]string, error) {
	vectors, err := e.client.Embed(ctx, credential, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, &llm.ExternalServiceError{Provider: "embedding", Op: "query embedding", Err: fmt.Errorf("got %d vectors for 1 query", len(vectors))}
	}

	results, err := idx.Search(vectors[0], e.topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}
	slog.Debug("Retrieved chunks for question", "user", idx.Owner, "count", len(results))

	excerpts := make([]string, len(results))
	for i, r := range results {
		excerpts[i] = r.Text
	}
	return excerpts, nil
}
