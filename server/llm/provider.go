package llm

import (
	"errors"
	"net/http"
	"os"
	"strings"
)

type providerKind int

const (
	providerOpenAI providerKind = iota
	providerOpenRouter
)

const (
	defaultSiteURL = "https://github.com/eleusis-bench"
	defaultTitle   = "EleusisBench"
)

type apiConfig struct {
	Kind         providerKind
	APIKey       string
	Model        string
	BaseURL      string
	HeaderName   string
	HeaderPrefix string
	Organization string
	ExtraHeaders map[string]string
}

// resolveAPIConfig works out provider, credentials and endpoint from the
// environment. An explicit model wins over OPENAI_MODEL/OPENROUTER_MODEL.
func resolveAPIConfig(model string) (apiConfig, error) {
	cfg := apiConfig{
		Model:        strings.TrimSpace(model),
		ExtraHeaders: map[string]string{},
	}

	if preferOpenRouterEnv() {
		cfg.Kind = providerOpenRouter
	} else {
		cfg.Kind = providerOpenAI
	}
	if provider, ok := detectProviderFromModel(cfg.Model); ok {
		cfg.Kind = provider
	}

	manualOverride := false
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER"))) {
	case "openrouter":
		cfg.Kind = providerOpenRouter
		manualOverride = true
	case "openai":
		cfg.Kind = providerOpenAI
		manualOverride = true
	}

	if cfg.Model == "" {
		if cfg.Kind == providerOpenRouter {
			cfg.Model = strings.TrimSpace(os.Getenv("OPENROUTER_MODEL"))
		}
		if cfg.Model == "" {
			cfg.Model = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
		}
	}
	if cfg.Model == "" {
		return apiConfig{}, errors.New("model missing: set OPENAI_MODEL/OPENROUTER_MODEL or pass a value")
	}
	if !manualOverride {
		if provider, ok := detectProviderFromModel(cfg.Model); ok {
			cfg.Kind = provider
		}
	}

	base := firstNonEmpty(
		os.Getenv("OPENAI_API_BASE"),
		os.Getenv("OPENAI_BASE_URL"),
		os.Getenv("OPENROUTER_API_BASE"),
		os.Getenv("OPENROUTER_BASE_URL"),
	)
	if base == "" {
		if cfg.Kind == providerOpenRouter {
			base = "https://openrouter.ai/api/v1"
		} else {
			base = "https://api.openai.com/v1"
		}
	}
	cfg.BaseURL = strings.TrimRight(base, "/")
	if !manualOverride && strings.Contains(strings.ToLower(cfg.BaseURL), "openrouter") {
		cfg.Kind = providerOpenRouter
	}

	openAIKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	openRouterKey := strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY"))
	if cfg.Kind == providerOpenRouter {
		cfg.APIKey = firstNonEmpty(openRouterKey, openAIKey)
	} else {
		cfg.APIKey = firstNonEmpty(openAIKey, openRouterKey)
	}
	if cfg.APIKey == "" {
		return apiConfig{}, errors.New("API key missing: set OPENAI_API_KEY or OPENROUTER_API_KEY")
	}

	cfg.HeaderName = firstNonEmpty(os.Getenv("OPENAI_API_KEY_HEADER"), os.Getenv("OPENROUTER_API_KEY_HEADER"), "Authorization")
	prefix := os.Getenv("OPENAI_API_KEY_PREFIX")
	if prefix == "" {
		prefix = os.Getenv("OPENROUTER_API_KEY_PREFIX")
	}
	if cfg.HeaderName == "Authorization" && strings.TrimSpace(prefix) == "" {
		prefix = "Bearer "
	}
	cfg.HeaderPrefix = prefix
	cfg.Organization = strings.TrimSpace(os.Getenv("OPENAI_ORG"))

	if cfg.Kind == providerOpenRouter {
		site := firstNonEmpty(os.Getenv("OPENROUTER_SITE_URL"), defaultSiteURL)
		cfg.ExtraHeaders["HTTP-Referer"] = site
		cfg.ExtraHeaders["Referer"] = site
		cfg.ExtraHeaders["X-Title"] = firstNonEmpty(os.Getenv("OPENROUTER_TITLE"), defaultTitle)
	}
	return cfg, nil
}

// apply copies auth and provider headers onto a request header.
func (c apiConfig) apply(h http.Header) {
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	setHeaderPreserveCase(h, c.HeaderName, c.HeaderPrefix+c.APIKey)
	if c.Organization != "" {
		h.Set("OpenAI-Organization", c.Organization)
	}
	for k, v := range c.ExtraHeaders {
		setHeaderPreserveCase(h, k, v)
	}
}

// setHeaderPreserveCase keeps non-canonical spellings such as HTTP-Referer,
// which some gateways match byte for byte. Blank keys or values are skipped.
func setHeaderPreserveCase(h http.Header, key, value string) {
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" || value == "" {
		return
	}
	if http.CanonicalHeaderKey(key) == key {
		h.Set(key, value)
		return
	}
	h.Del(key)
	h[key] = []string{value}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func preferOpenRouterEnv() bool {
	if strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")) != "" && strings.TrimSpace(os.Getenv("OPENAI_API_KEY")) == "" {
		return true
	}
	if strings.TrimSpace(os.Getenv("OPENROUTER_MODEL")) != "" && strings.TrimSpace(os.Getenv("OPENAI_MODEL")) == "" {
		return true
	}
	if strings.TrimSpace(os.Getenv("OPENROUTER_API_BASE")) != "" || strings.TrimSpace(os.Getenv("OPENROUTER_BASE_URL")) != "" {
		return true
	}
	for _, key := range []string{"OPENAI_API_BASE", "OPENAI_BASE_URL"} {
		if base := strings.ToLower(strings.TrimSpace(os.Getenv(key))); strings.Contains(base, "openrouter") {
			return true
		}
	}
	return false
}

func detectProviderFromModel(model string) (providerKind, bool) {
	normalized := strings.ToLower(strings.TrimSpace(model))
	if strings.Contains(normalized, "openrouter/") {
		return providerOpenRouter, true
	}
	return providerOpenAI, false
}
