package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig contains settings for the OpenAI backend.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. If empty, OPENAI_API_KEY is used.
	APIKey string
	// Model is the chat model name. Empty selects GPT-4o.
	Model string
	// MaxTokens bounds response length. Zero selects DefaultMaxTokens.
	MaxTokens int
}

// OpenAI is the GPT-backed text provider.
type OpenAI struct {
	client    openai.Client
	model     string
	maxTokens int
	tracker   *TokenTracker
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
	}

	model := cfg.Model
	if model == "" {
		model = openai.ChatModelGPT4o
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &OpenAI{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: maxTokens,
		tracker:   NewTokenTracker(),
	}, nil
}

// Name implements Provider.
func (o *OpenAI) Name() string { return "openai" }

// Tracker returns the provider's token usage tracker.
func (o *OpenAI) Tracker() *TokenTracker { return o.tracker }

// Generate implements Provider.
func (o *OpenAI) Generate(ctx context.Context, system, prompt string) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               o.model,
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(o.maxTokens)),
	})
	if err != nil {
		return "", fmt.Errorf("openai call failed: %w", err)
	}

	o.tracker.Add(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("openai: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
