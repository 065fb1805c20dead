package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"aikun/internal/logging"
	"aikun/internal/types"
)

// GenAIClient implements types.LLMClient through the official Google GenAI
// SDK. Functionally equivalent to GeminiClient; the SDK handles transport,
// auth and retries itself.
type GenAIClient struct {
	client *genai.Client
	model  string
}

// NewGenAIClient creates an SDK-backed client.
func NewGenAIClient(apiKey, model string) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIClient{client: client, model: model}, nil
}

// Chat sends the conversation through the SDK and returns the completion.
func (c *GenAIClient) Chat(ctx context.Context, messages []types.Message, opts types.GenerateOptions) (string, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		var role genai.Role = genai.RoleUser
		if m.Role == types.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	cfg := &genai.GenerateContentConfig{}
	if opts.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(opts.System, genai.RoleUser)
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("GenAI generate failed: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	logging.LLMDebug("[genai] chat: model=%s messages=%d reply_len=%d", c.model, len(messages), len(text))
	return text, nil
}
