package insight

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/lexiqai/insight-gateway/internal/resilience"
)

// OpenAIClient is a Completer backed by the OpenAI chat completions API
type OpenAIClient struct {
	client    oai.Client
	model     string
	maxTokens int
}

// OpenAIOption is a functional option for OpenAIClient
type OpenAIOption func(*[]option.RequestOption)

// WithBaseURL overrides the default OpenAI API base URL
func WithBaseURL(url string) OpenAIOption {
	return func(opts *[]option.RequestOption) {
		if url != "" {
			*opts = append(*opts, option.WithBaseURL(url))
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(opts *[]option.RequestOption) {
		*opts = append(*opts, option.WithHTTPClient(c))
	}
}

// NewOpenAIClient creates an OpenAI backend
func NewOpenAIClient(apiKey, model string, maxTokens int, opts ...OpenAIOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// Retries are capped by the analyzer
		option.WithMaxRetries(0),
	}
	for _, o := range opts {
		o(&reqOpts)
	}

	return &OpenAIClient{
		client:    oai.NewClient(reqOpts...),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

// Name implements Completer
func (c *OpenAIClient) Name() string {
	return "openai"
}

// Complete implements Completer
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message) (string, error) {
	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: make([]oai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	if c.maxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(c.maxTokens))
	}

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, oai.SystemMessage(m.Content))
		case RoleUser:
			params.Messages = append(params.Messages, oai.UserMessage(m.Content))
		case RoleAssistant:
			params.Messages = append(params.Messages, oai.AssistantMessage(m.Content))
		default:
			return "", fmt.Errorf("openai: unknown message role %q", m.Role)
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}

	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) && resilience.IsRetryableHTTPStatus(apiErr.StatusCode) {
		return resilience.NewRetryableError(fmt.Errorf("openai: chat completion: %w", err))
	}
	return fmt.Errorf("openai: chat completion: %w", err)
}
