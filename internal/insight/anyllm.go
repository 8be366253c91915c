package insight

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"

	"github.com/lexiqai/insight-gateway/internal/resilience"
)

// AnyLLMClient is a Completer for the non-OpenAI providers supported by any-llm-go
type AnyLLMClient struct {
	backend   anyllmlib.Provider
	provider  string
	model     string
	maxTokens int
}

// NewAnyLLMClient creates a backend for providerName, one of: anthropic,
// gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile.
func NewAnyLLMClient(providerName, model string, maxTokens int, opts ...anyllmlib.Option) (*AnyLLMClient, error) {
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	name := strings.ToLower(providerName)
	backend, err := createBackend(name, opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &AnyLLMClient{backend: backend, provider: name, model: model, maxTokens: maxTokens}, nil
}

// AnyLLMOptions builds the any-llm-go options for an API key and base URL.
// Empty values are left to the provider's defaults.
func AnyLLMOptions(apiKey, baseURL string) []anyllmlib.Option {
	var opts []anyllmlib.Option
	if apiKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(baseURL))
	}
	return opts
}

func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch providerName {
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// Name implements Completer
func (c *AnyLLMClient) Name() string {
	return c.provider
}

// Complete implements Completer
func (c *AnyLLMClient) Complete(ctx context.Context, messages []Message) (string, error) {
	params := anyllmlib.CompletionParams{
		Model:    c.model,
		Messages: make([]anyllmlib.Message, 0, len(messages)),
	}
	if c.maxTokens > 0 {
		mt := c.maxTokens
		params.MaxTokens = &mt
	}

	for _, m := range messages {
		params.Messages = append(params.Messages, anyllmlib.Message{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	resp, err := c.backend.Completion(ctx, params)
	if err != nil {
		err = fmt.Errorf("anyllm: completion: %w", err)
		if resilience.IsRetryableNetworkError(err) {
			return "", resilience.NewRetryableError(err)
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("anyllm: empty choices in response")
	}

	return resp.Choices[0].Message.ContentString(), nil
}
