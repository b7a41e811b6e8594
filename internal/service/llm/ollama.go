package llm

import (
	"bufio"
	"bytes"
	"chatly/internal/config"
	"chatly/internal/logger"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const maxStreamLine = 1 << 20

// OllamaProvider implements LLMProvider against the native Ollama chat API
type OllamaProvider struct {
	baseURL      string
	systemPrompt string
	client       *http.Client
}

type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type ollamaChatChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// NewOllamaProvider creates a provider talking to the Ollama server at cfg.OllamaURL
func NewOllamaProvider(cfg *config.LLMConfig) *OllamaProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &OllamaProvider{
		baseURL:      strings.TrimRight(cfg.OllamaURL, "/"),
		systemPrompt: cfg.SystemPrompt,
		client:       &http.Client{Timeout: timeout},
	}
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

// ChatWithHistory streams the reply as NDJSON and returns the accumulated text
func (p *OllamaProvider) ChatWithHistory(ctx context.Context, messages []Message, model string) (string, error) {
	logger.Log.WithFields(logrus.Fields{
		"model":         model,
		"message_count": len(messages),
	}).Info("Calling Ollama")

	jsonData, err := json.Marshal(ollamaChatRequest{
		Model:    model,
		Messages: withSystemPrompt(p.systemPrompt, messages),
		Stream:   true,
	})
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error connecting to Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaChatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			logger.Log.WithField("line", string(line)).Debug("Could not decode stream line")
			continue
		}
		if chunk.Error != "" {
			return "", fmt.Errorf("ollama error: %s", chunk.Error)
		}
		full.WriteString(chunk.Message.Content)
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("error reading stream: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"model":           model,
		"response_length": full.Len(),
		"duration":        time.Since(start).String(),
	}).Debug("Ollama response complete")

	if full.Len() == 0 {
		return FallbackResponse, nil
	}
	return full.String(), nil
}
