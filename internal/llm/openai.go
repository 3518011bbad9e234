package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	defaultOpenAIChatModel      = "gpt-4o-mini"
	defaultOpenAIEmbeddingModel = "text-embedding-3-small"
)

type OpenAIProvider struct {
	opts Options
}

func NewOpenAIProvider(opts Options) *OpenAIProvider {
	if opts.ChatModel == "" {
		opts.ChatModel = defaultOpenAIChatModel
	}
	if opts.EmbeddingModel == "" {
		opts.EmbeddingModel = defaultOpenAIEmbeddingModel
	}
	return &OpenAIProvider{opts: opts}
}

func (p *OpenAIProvider) Name() string           { return "openai" }
func (p *OpenAIProvider) EmbeddingModel() string { return p.opts.EmbeddingModel }

func (p *OpenAIProvider) client(credential string) openai.Client {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(credential),
		option.WithRequestTimeout(p.opts.Timeout),
		option.WithMaxRetries(p.opts.MaxRetries),
	}
	if p.opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.opts.BaseURL))
	}
	return openai.NewClient(reqOpts...)
}

func (p *OpenAIProvider) Embed(ctx context.Context, credential string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.opts.EmbeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}

	client := p.client(credential)
	resp, err := client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, p.wrap("embedding", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, p.wrap("embedding", fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)))
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || int(data.Index) >= len(texts) {
			return nil, p.wrap("embedding", fmt.Errorf("embedding index %d out of range", data.Index))
		}
		vector := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vector[i] = float32(v)
		}
		embeddings[data.Index] = vector
	}
	for i, v := range embeddings {
		if len(v) == 0 {
			return nil, p.wrap("embedding", fmt.Errorf("no embedding returned for input %d", i))
		}
	}
	return embeddings, nil
}

func (p *OpenAIProvider) Complete(ctx context.Context, credential string, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("no messages provided")
	}

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(p.opts.ChatModel),
		Messages:    toOpenAIMessages(messages),
		Temperature: openai.Float(temperature),
	}

	client := p.client(credential)
	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", p.wrap("chat completion", err)
	}
	if len(completion.Choices) == 0 {
		return "", p.wrap("chat completion", errors.New("no completion choices returned"))
	}
	return completion.Choices[0].Message.Content, nil
}

func (p *OpenAIProvider) wrap(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		err = fmt.Errorf("status %d: %w", apiErr.StatusCode, err)
	}
	return &ExternalServiceError{Provider: p.Name(), Op: op, Err: err}
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

var _ Provider = (*OpenAIProvider)(nil)
