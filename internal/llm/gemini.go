package llm

import (
	"context"
	"fmt"
	"os"
	"sync"

	"google.golang.org/genai"
)

// GeminiConfig contains settings for the Gemini backend.
type GeminiConfig struct {
	// APIKey is the Gemini API key. If empty, GEMINI_API_KEY is used.
	APIKey string
	// Model is the Gemini model name. Empty selects a default.
	Model string
	// MaxTokens bounds response length. Zero selects DefaultMaxTokens.
	MaxTokens int
}

// Gemini is the Google-backed text provider. The genai client requires a
// context to construct, so it is created lazily on first use.
type Gemini struct {
	apiKey    string
	model     string
	maxTokens int

	mu     sync.Mutex
	client *genai.Client
}

// NewGemini creates a Gemini provider.
func NewGemini(cfg GeminiConfig) (*Gemini, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is not set")
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &Gemini{apiKey: apiKey, model: model, maxTokens: maxTokens}, nil
}

// Name implements Provider.
func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) getClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	g.client = client
	return client, nil
}

// Generate implements Provider.
func (g *Gemini) Generate(ctx context.Context, system, prompt string) (string, error) {
	client, err := g.getClient(ctx)
	if err != nil {
		return "", err
	}

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(g.maxTokens),
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	result, err := client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini call failed: %w", err)
	}
	if result == nil {
		return "", fmt.Errorf("gemini: empty response")
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("gemini: empty response")
	}
	return text, nil
}
