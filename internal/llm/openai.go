package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/duckmesh/nlq/internal/observability"
)

const maxErrorBodyBytes = 512

type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &OpenAI{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  client,
	}, nil
}

func (o *OpenAI) Complete(ctx context.Context, prompt Prompt, params Params) (string, error) {
	start := time.Now()
	content, err := o.complete(ctx, prompt, params)
	outcome := "success"
	switch {
	case err == nil:
	case IsTimeout(err):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	observability.ObserveLLMCall(outcome, time.Since(start))
	return content, err
}

func (o *OpenAI) complete(ctx context.Context, prompt Prompt, params Params) (string, error) {
	if params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(buildChatPayload(prompt, params))
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read chat response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: observability.Truncate(string(rawRespBody), maxErrorBodyBytes)}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty chat completion choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

func buildChatPayload(prompt Prompt, params Params) map[string]any {
	messages := make([]map[string]string, 0, 2)
	if strings.TrimSpace(prompt.System) != "" {
		messages = append(messages, map[string]string{"role": "system", "content": prompt.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": prompt.User})

	return map[string]any{
		"model":       params.Model,
		"messages":    messages,
		"temperature": params.Temperature,
	}
}
