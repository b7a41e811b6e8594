package llm

import "context"

// FallbackResponse is returned when a model answers with empty text.
const FallbackResponse = "I couldn't process that. Please try again."

// Message is one turn of the history sent to a model
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMProvider defines the interface for LLM providers (Ollama, Genkit, etc.)
type LLMProvider interface {
	// ChatWithHistory sends the conversation history to model and returns the full response
	ChatWithHistory(ctx context.Context, messages []Message, model string) (string, error)

	// Name returns the provider name used in logs
	Name() string
}

// withSystemPrompt prepends the configured system prompt, if any
func withSystemPrompt(systemPrompt string, messages []Message) []Message {
	if systemPrompt == "" {
		return messages
	}
	return append([]Message{{Role: "system", Content: systemPrompt}}, messages...)
}
