package rag_augur

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"audit-rag/internal/domain"
)

const generationTemperature = 0.1

// OllamaGenerator talks to the ollama /api/generate endpoint. A shared rate
// limiter keeps concurrent queries from flooding a single local model.
type OllamaGenerator struct {
	baseURL string
	model   string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewOllamaGenerator(baseURL, model string, client *http.Client, rps float64, logger *slog.Logger) *OllamaGenerator {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &OllamaGenerator{
		baseURL: baseURL,
		model:   model,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate sends one prompt and returns the raw model output. jsonFormat
// enables ollama's constrained JSON decoding.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string, jsonFormat bool) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm rate wait: %w", err)
	}

	reqBody := generateRequest{
		Model:   g.model,
		Prompt:  prompt,
		Stream:  false,
		Options: map[string]any{"temperature": generationTemperature},
	}
	if jsonFormat {
		reqBody.Format = "json"
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ollama generate: status %d: %s", resp.StatusCode, body)
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}

	g.logger.Debug("ollama_generate_completed",
		slog.String("model", g.model),
		slog.Int("prompt_length", len(prompt)),
		slog.Int("response_length", len(result.Response)))
	return result.Response, nil
}

var _ domain.LLMClient = (*OllamaGenerator)(nil)
