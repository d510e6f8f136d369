package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
)

type GenerationOptions struct {
	Temperature float64
	// MaxTokens caps the reply length. Zero leaves it to the runtime.
	MaxTokens   int
}

type Generation struct {
	Content string
	// token counters and timings reported by the runtime, if any
	Info map[string]any
}

// LanguageModels runs generation and embedding against the runtime for the
// custom surface. The legacy surface never goes through it.
type LanguageModels interface {
	Chat(ctx context.Context, model string, messages []ChatMessage, opts GenerationOptions) (Generation, error)
	Embed(ctx context.Context, model string, input []string) ([][]float32, error)
}

type langchainModels struct {
	baseURL string
	client  *http.Client
}

// NewLangchainModels returns LanguageModels backed by langchaingo's Ollama
// client, sharing the upstream connection pool.
func NewLangchainModels(baseURL string, client *http.Client) LanguageModels {
	return langchainModels{baseURL: baseURL, client: client}
}

func (lm langchainModels) llm(model string) (*ollama.LLM, error) {
	return ollama.New(
		ollama.WithModel(model),
		ollama.WithHTTPClient(lm.client),
		ollama.WithServerURL(lm.baseURL))
}

func (lm langchainModels) Chat(ctx context.Context, model string, messages []ChatMessage, opts GenerationOptions) (Generation, error) {
	llm, err := lm.llm(model)
	if err != nil {
		return Generation{}, fmt.Errorf("failed to create LLM: %w", err)
	}

	msgs := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, llms.TextParts(messageType(m.Role), m.Content))
	}

	callOpts := []llms.CallOption{llms.WithTemperature(opts.Temperature)}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	resp, err := llm.GenerateContent(ctx, msgs, callOpts...)
	if err != nil {
		return Generation{}, err
	}
	if len(resp.Choices) == 0 {
		return Generation{}, errors.New("runtime returned no choices")
	}
	return Generation{
		Content: resp.Choices[0].Content,
		Info:    resp.Choices[0].GenerationInfo,
	}, nil
}

func (lm langchainModels) Embed(ctx context.Context, model string, input []string) ([][]float32, error) {
	llm, err := lm.llm(model)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	emb, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	vectors, err := emb.EmbedDocuments(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(input) {
		return nil, fmt.Errorf("runtime returned %d vectors for %d inputs", len(vectors), len(input))
	}
	return vectors, nil
}

func messageType(role string) schema.ChatMessageType {
	switch role {
	case RoleSystem:
		return schema.ChatMessageTypeSystem
	case RoleAssistant:
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}
