package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoJSON means the model answered but the reply held no JSON object.
var ErrNoJSON = errors.New("no JSON object in response")

// PingOptions controls JSON mode, reasoning and token limits.
type PingOptions struct {
	ReasoningEffort      string
	MaxOutputTokens      *int
	StructuredSchemaName string
	StructuredSchema     map[string]any
	StructuredStrict     bool
}

// Client talks to an OpenAI-compatible chat/completions endpoint.
type Client struct {
	Model string
	HTTP  *http.Client
	Log   zerolog.Logger
}

func NewClient(model string, log zerolog.Logger) *Client {
	return &Client{
		Model: model,
		HTTP:  &http.Client{Timeout: 45 * time.Second},
		Log:   log,
	}
}

// Complete sends one system+user exchange and returns the message text.
func (c *Client) Complete(ctx context.Context, system, user string, opts PingOptions) (string, error) {
	cfg, err := resolveAPIConfig(c.Model)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"model": cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
	}
	if opts.MaxOutputTokens != nil && *opts.MaxOutputTokens > 0 {
		payload["max_tokens"] = *opts.MaxOutputTokens
	}
	if strings.TrimSpace(opts.ReasoningEffort) != "" {
		payload["reasoning"] = map[string]any{"effort": opts.ReasoningEffort}
	}
	if opts.StructuredSchema != nil {
		payload["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   coalesce(opts.StructuredSchemaName, "structured"),
				"strict": opts.StructuredStrict,
				"schema": opts.StructuredSchema,
			},
		}
	} else {
		payload["response_format"] = map[string]any{"type": "json_object"}
	}
	applyTuningFromEnv(payload, cfg.Kind == providerOpenRouter)

	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+"/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	cfg.apply(req.Header)

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	body := buf.Bytes()
	c.Log.Debug().Str("model", cfg.Model).Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("chat completion")
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("llm http %d: %s", resp.StatusCode, truncate(string(body), 800))
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &cc); err != nil {
		return "", err
	}
	if len(cc.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	return cc.Choices[0].Message.Content, nil
}

// completeJSON runs Complete and decodes the first JSON object in the reply.
func (c *Client) completeJSON(ctx context.Context, system, user string, opts PingOptions) (map[string]any, string, error) {
	text, err := c.Complete(ctx, system, user, opts)
	if err != nil {
		return nil, text, err
	}
	raw := strings.TrimSpace(text)
	if raw == "" {
		return nil, raw, fmt.Errorf("%w: empty response", ErrNoJSON)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		cleaned := extractJSONObject(raw)
		if cleaned == "" {
			return nil, raw, fmt.Errorf("%w: %v", ErrNoJSON, err)
		}
		if err2 := json.Unmarshal([]byte(cleaned), &parsed); err2 != nil {
			return nil, raw, fmt.Errorf("%w: %v", ErrNoJSON, err)
		}
	}
	return parsed, raw, nil
}

func applyTuningFromEnv(m map[string]any, preferOpenRouter bool) {
	if v := envWithFallback(preferOpenRouter, "OPENAI_TEMPERATURE", "OPENROUTER_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			m["temperature"] = f
		}
	}
	if v := envWithFallback(preferOpenRouter, "OPENAI_TOP_P", "OPENROUTER_TOP_P"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			m["top_p"] = f
		}
	}
	if v := envWithFallback(preferOpenRouter, "OPENAI_TOP_K", "OPENROUTER_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			m["top_k"] = n
		}
	}
}

// EnvPingOptions reads reasoning effort and output token limits.
func EnvPingOptions() PingOptions {
	opts := PingOptions{}
	preferOpenRouter := preferOpenRouterEnv()
	if v := envWithFallback(preferOpenRouter, "OPENAI_REASONING_EFFORT", "OPENROUTER_REASONING_EFFORT"); v != "" {
		opts.ReasoningEffort = v
	}
	if v := envWithFallback(preferOpenRouter, "OPENAI_MAX_OUTPUT_TOKENS", "OPENROUTER_MAX_OUTPUT_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.MaxOutputTokens = &n
		}
	}
	return opts
}

func envWithFallback(preferOpenRouter bool, openAIKey, openRouterKey string) string {
	keys := []string{openAIKey, openRouterKey}
	if preferOpenRouter {
		keys[0], keys[1] = keys[1], keys[0]
	}
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

func coalesce(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndex(s, "}")
	if end < start {
		return ""
	}
	return strings.TrimSpace(s[start : end+1])
}
