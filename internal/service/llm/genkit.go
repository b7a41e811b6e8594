package llm

import (
	"chatly/internal/config"
	"chatly/internal/logger"
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai"
	"github.com/openai/openai-go"
	"github.com/sirupsen/logrus"
)

const genkitProviderName = "compat"

// GenkitProvider implements LLMProvider using Firebase Genkit against an OpenAI-compatible endpoint
type GenkitProvider struct {
	genkit       *genkit.Genkit
	systemPrompt string
}

// NewGenkitProvider creates a new Genkit provider instance configured for cfg.OpenAIBaseURL
func NewGenkitProvider(ctx context.Context, cfg *config.LLMConfig, modelsConfig *config.ModelsConfig) (*GenkitProvider, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not configured")
	}

	plugin := &compat_oai.OpenAICompatible{
		Provider: genkitProviderName,
		APIKey:   cfg.OpenAIAPIKey,
		BaseURL:  cfg.OpenAIBaseURL,
	}

	defaultModel := modelsConfig.GetDefaultModel()
	g := genkit.Init(ctx,
		genkit.WithPlugins(plugin),
		genkit.WithDefaultModel(qualifiedModel(defaultModel)),
	)

	logger.Log.WithFields(logrus.Fields{
		"default_model": defaultModel,
		"base_url":      cfg.OpenAIBaseURL,
	}).Info("Initialized Genkit with OpenAI-compatible provider")

	return &GenkitProvider{genkit: g, systemPrompt: cfg.SystemPrompt}, nil
}

func (p *GenkitProvider) Name() string {
	return "genkit"
}

// ChatWithHistory sends a chat request with conversation history and returns the full response
func (p *GenkitProvider) ChatWithHistory(ctx context.Context, messages []Message, model string) (string, error) {
	model = qualifiedModel(model)
	logger.Log.WithFields(logrus.Fields{
		"model":         model,
		"message_count": len(messages),
	}).Info("Calling Genkit")

	var genkitMessages []*ai.Message
	for _, msg := range withSystemPrompt(p.systemPrompt, messages) {
		genkitMessages = append(genkitMessages, &ai.Message{
			Role:    ai.Role(msg.Role),
			Content: []*ai.Part{ai.NewTextPart(msg.Content)},
		})
	}

	resp, err := genkit.Generate(ctx, p.genkit,
		ai.WithMessages(genkitMessages...),
		ai.WithModelName(model),
		ai.WithConfig(&openai.ChatCompletionNewParams{}),
	)
	if err != nil {
		return "", fmt.Errorf("genkit generation failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return FallbackResponse, nil
	}
	return text, nil
}

// qualifiedModel prefixes a model with the plugin provider name
func qualifiedModel(model string) string {
	if strings.HasPrefix(model, genkitProviderName+"/") {
		return model
	}
	return genkitProviderName + "/" + model
}
