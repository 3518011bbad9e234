package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	defaultGeminiChatModel      = "gemini-1.5-flash-latest"
	defaultGeminiEmbeddingModel = "text-embedding-004"
)

type GeminiProvider struct {
	opts Options
}

func NewGeminiProvider(opts Options) *GeminiProvider {
	if opts.ChatModel == "" {
		opts.ChatModel = defaultGeminiChatModel
	}
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = defaultGeminiEmbeddingModel
	}
	return &GeminiProvider{opts: opts}
}

func (p *GeminiProvider) Name() string           { return "gemini" }
func (p *GeminiProvider) EmbeddingModel() string { return p.opts.EmbeddingModel }

func (p *GeminiProvider) newClient(ctx context.Context, credential string) (*genai.Client, error) {
	clientOpts := []option.ClientOption{option.WithAPIKey(credential)}
	if p.opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(p.opts.BaseURL))
	}
	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, p.wrap("client", err)
	}
	return client, nil
}

func (p *GeminiProvider) Embed(ctx context.Context, credential string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	client, err := p.newClient(ctx, credential)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	em := client.EmbeddingModel(p.opts.EmbeddingModel)
	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}
	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, p.wrap("embedding", err)
	}
	if res == nil || len(res.Embeddings) != len(texts) {
		return nil, p.wrap("embedding", errors.New("embedding count does not match input count"))
	}

	embeddings := make([][]float32, len(texts))
	for i, e := range res.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, p.wrap("embedding", fmt.Errorf("no embedding data received for input %d", i))
		}
		embeddings[i] = e.Values
	}
	return embeddings, nil
}

func (p *GeminiProvider) Complete(ctx context.Context, credential string, messages []Message) (string, error) {
	system, history, last, err := toGeminiContents(messages)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	client, err := p.newClient(ctx, credential)
	if err != nil {
		return "", err
	}
	defer client.Close()

	model := client.GenerativeModel(p.opts.ChatModel)
	if system != nil {
		model.SystemInstruction = system
	}
	temp := float32(temperature)
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: &temp,
	}

	chatSession := model.StartChat()
	chatSession.History = history

	resp, err := chatSession.SendMessage(ctx, last.Parts...)
	if err != nil {
		return "", p.wrap("chat completion", err)
	}
	if resp == nil {
		return "", p.wrap("chat completion", errors.New("empty response"))
	}
	return candidateText(resp), nil
}

// candidateText joins the text parts of the first candidate. A reply with no
// text yields "", which callers treat as an empty answer.
func candidateText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		}
	}
	return responseText.String()
}

func (p *GeminiProvider) wrap(op string, err error) error {
	return &ExternalServiceError{Provider: p.Name(), Op: op, Err: err}
}

// toGeminiContents folds system messages into a system instruction and
// splits off the final user turn, which Gemini expects as the message sent.
func toGeminiContents(messages []Message) (system *genai.Content, history []*genai.Content, last *genai.Content, err error) {
	var systemParts []genai.Part
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			systemParts = append(systemParts, genai.Text(m.Content))
		case RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	if len(history) == 0 {
		return nil, nil, nil, errors.New("prompt history is empty for chat completion")
	}
	last = history[len(history)-1]
	if last.Role != "user" {
		return nil, nil, nil, errors.New("last message in history is not from 'user'")
	}
	if len(systemParts) > 0 {
		system = &genai.Content{Parts: systemParts}
	}
	return system, history[:len(history)-1], last, nil
}

var _ Provider = (*GeminiProvider)(nil)
