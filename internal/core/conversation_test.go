package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/pdf-chatbot/internal/index"
	"gwi.com/pdf-chatbot/internal/llm"
)

func testIndex(texts ...string) *index.Index {
	idx := &index.Index{Owner: "alice", EmbeddingModel: "fake-embed", Dimension: 27}
	for i, text := range texts {
		idx.Chunks = append(idx.Chunks, index.Chunk{ID: i, Text: text, Vector: letterVector(text)})
	}
	return idx
}

func TestAsk_NoIndex(t *testing.T) {
	model := &fakeModel{answer: "unused"}
	engine := NewConversationEngine(model, 2)
	memory := NewMemory()

	_, err := engine.Ask(context.Background(), "cred", nil, memory, "what?")
	assert.ErrorIs(t, err, ErrIndexUnavailable)
	assert.Empty(t, model.completions())
	assert.Equal(t, 0, memory.Len())
}

func TestAsk_EmptyQuestion(t *testing.T) {
	engine := NewConversationEngine(&fakeModel{}, 2)

	_, err := engine.Ask(context.Background(), "cred", testIndex("zzz"), NewMemory(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

func TestAsk_FirstQuestionSkipsCondense(t *testing.T) {
	model := &fakeModel{answer: "Bananas are yellow."}
	engine := NewConversationEngine(model, 1)
	memory := NewMemory()
	idx := testIndex("bbbbb nnnnn aaaaa", "zzzzz qqqqq")

	answer, err := engine.Ask(context.Background(), "cred", idx, memory, "banana")
	require.NoError(t, err)
	assert.Equal(t, "Bananas are yellow.", answer)

	calls := model.completions()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 2)
	assert.Equal(t, llm.RoleSystem, calls[0][0].Role)
	assert.Contains(t, calls[0][0].Content, "bbbbb nnnnn aaaaa")
	assert.NotContains(t, calls[0][0].Content, "zzzzz")
	assert.Equal(t, "banana", calls[0][1].Content)

	assert.Equal(t, []Turn{{Question: "banana", Answer: "Bananas are yellow."}}, memory.Turns())
}

func TestAsk_FollowUpIsCondensed(t *testing.T) {
	model := &fakeModel{answer: "It is zesty.", condensed: "what does the zest taste like"}
	engine := NewConversationEngine(model, 1)
	memory := NewMemory()
	memory.Append(Turn{Question: "tell me about the lemon", Answer: "It has zest."})
	idx := testIndex("bbbbb nnnnn aaaaa", "zzzzz zest")

	answer, err := engine.Ask(context.Background(), "cred", idx, memory, "and its taste?")
	require.NoError(t, err)
	assert.Equal(t, "It is zesty.", answer)

	calls := model.completions()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0][0].Content, "Human: tell me about the lemon")
	assert.Contains(t, calls[0][0].Content, "Assistant: It has zest.")
	assert.Contains(t, calls[0][0].Content, "and its taste?")

	embedded := model.embeddings()
	require.Len(t, embedded, 1)
	assert.Equal(t, []string{"what does the zest taste like"}, embedded[0])
	assert.Equal(t, "what does the zest taste like", calls[1][1].Content)

	turns := memory.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, "and its taste?", turns[1].Question)
}

func TestAsk_ProviderFailureLeavesMemory(t *testing.T) {
	model := &fakeModel{completeErr: providerFailure()}
	engine := NewConversationEngine(model, 2)
	memory := NewMemory()

	_, err := engine.Ask(context.Background(), "cred", testIndex("abc"), memory, "question")
	assert.ErrorIs(t, err, ErrExternalService)
	assert.Equal(t, 0, memory.Len())
}

func TestAsk_EmptyAnswerFallback(t *testing.T) {
	model := &fakeModel{answer: "  "}
	engine := NewConversationEngine(model, 2)

	answer, err := engine.Ask(context.Background(), "cred", testIndex("abc"), NewMemory(), "question")
	require.NoError(t, err)
	assert.Equal(t, emptyAnswerFallback, answer)
}

func TestNewConversationEngine_DefaultTopK(t *testing.T) {
	engine := NewConversationEngine(&fakeModel{}, 0)
	assert.Equal(t, DefaultTopK, engine.topK)
}
