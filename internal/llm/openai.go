package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// callTimeout bounds a single model call.
const callTimeout = 30 * time.Second

// costPerThousandTokens is a coarse blended estimate used for session
// accounting, not billing.
const costPerThousandTokens = 0.002

// OpenAIClient adapts any OpenAI-compatible chat endpoint to the Client
// port. Every call charges the session budget through the Charger token.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	charger Charger
	logger  *zap.Logger
}

// OpenAIOptions configures NewOpenAIClient.
type OpenAIOptions struct {
	APIKey  string
	BaseURL string // empty for the default endpoint
	Model   string
	Charger Charger
	Logger  *zap.Logger
}

// NewOpenAIClient creates a client against an OpenAI-compatible API.
func NewOpenAIClient(opts OpenAIOptions) (*OpenAIClient, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if opts.Charger == nil {
		return nil, fmt.Errorf("budget charger is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	config := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}

	return &OpenAIClient{
		client:  openai.NewClientWithConfig(config),
		model:   opts.Model,
		charger: opts.Charger,
		logger:  opts.Logger,
	}, nil
}

// Ask implements Client.
func (c *OpenAIClient) Ask(ctx context.Context, prompt string) (string, error) {
	if err := c.charger.Check(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 400 {
			return "", fmt.Errorf("%w: %v", ErrRejected, err)
		}
		return "", fmt.Errorf("llm call failed: %w", err)
	}

	usage := Usage{
		TokensIn:     resp.Usage.PromptTokens,
		TokensOut:    resp.Usage.CompletionTokens,
		CostEstimate: float64(resp.Usage.TotalTokens) / 1000 * costPerThousandTokens,
	}
	c.charger.Charge(usage)
	c.logger.Debug("llm call complete",
		zap.Int("tokens_in", usage.TokensIn),
		zap.Int("tokens_out", usage.TokensOut))

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrInvalidResponse
	}
	return resp.Choices[0].Message.Content, nil
}
