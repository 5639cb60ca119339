package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sergeyitaly/raspi-doctor/internal/config"
	"github.com/sergeyitaly/raspi-doctor/internal/metrics"
)

var errNoJSON = errors.New("no JSON object in model output")

const retryBackoff = 2 * time.Second

// OllamaAdvisor implements Advisor against a local Ollama server using the
// /api/generate endpoint.
type OllamaAdvisor struct {
	baseURL string
	model   string
	retries int
	client  *http.Client
	log     *zap.Logger
}

// NewOllamaAdvisor creates an advisor from the ollama config section.
func NewOllamaAdvisor(cfg config.Ollama, log *zap.Logger) *OllamaAdvisor {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OllamaAdvisor{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		retries: cfg.Retries,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Consult asks the model for one suggestion. Transient failures are retried
// with a fixed backoff; after all attempts fail the neutral fallback
// suggestion is returned with the last error.
func (a *OllamaAdvisor) Consult(ctx context.Context, state map[string]any) (*Suggestion, error) {
	prompt, err := buildPrompt(state)
	if err != nil {
		return FallbackSuggestion(), fmt.Errorf("build prompt: %w", err)
	}

	attempts := a.retries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return FallbackSuggestion(), ctx.Err()
			case <-time.After(retryBackoff):
			}
		}

		start := time.Now()
		suggestion, err := a.generate(ctx, prompt)
		metrics.LLMRequestDuration.WithLabelValues(a.model).Observe(time.Since(start).Seconds())
		if err == nil {
			metrics.LLMRequestsTotal.WithLabelValues(a.model, "success").Inc()
			return suggestion, nil
		}
		metrics.LLMRequestsTotal.WithLabelValues(a.model, "error").Inc()
		lastErr = err
		a.log.Warn("ollama consult attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return FallbackSuggestion(), lastErr
}

func (a *OllamaAdvisor) generate(ctx context.Context, prompt string) (*Suggestion, error) {
	body, err := json.Marshal(generateRequest{
		Model:  a.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama returned %d: %s", resp.StatusCode, string(payload))
	}

	var gen generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gen); err != nil {
		return nil, fmt.Errorf("decode ollama response: %w", err)
	}

	suggestion, err := extractSuggestion(gen.Response)
	if err != nil {
		return nil, fmt.Errorf("parse model output: %w", err)
	}
	return suggestion, nil
}
