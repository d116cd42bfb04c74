// Package provider contains the bundled HTTP model provider. The governor
// treats providers as opaque; this one speaks an OpenAI-style chat
// completions endpoint.
package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/router-for-me/ModelGovernor/internal/config"
	"github.com/router-for-me/ModelGovernor/internal/models"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const defaultTimeout = 120 * time.Second

// HTTPProvider invokes an upstream chat completions API.
type HTTPProvider struct {
	baseURL   string
	apiKeyEnv string
	client    *http.Client
}

// NewHTTP constructs an HTTPProvider from configuration.
func NewHTTP(cfg config.ProviderConfig) *HTTPProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPProvider{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKeyEnv: strings.TrimSpace(cfg.APIKeyEnv),
		client:    &http.Client{Timeout: timeout},
	}
}

// Invoke sends one chat completion request and parses the response.
func (p *HTTPProvider) Invoke(ctx context.Context, scope models.Scope, content string, options models.Options) (*models.ProviderResult, error) {
	if p == nil || p.baseURL == "" {
		return nil, fmt.Errorf("provider: no base url configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	payload, errPayload := buildPayload(scope, content, options)
	if errPayload != nil {
		return nil, errPayload
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if errReq != nil {
		return nil, fmt.Errorf("provider: build request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKeyEnv != "" {
		if key := strings.TrimSpace(os.Getenv(p.apiKeyEnv)); key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}
	}

	started := time.Now()
	resp, errDo := p.client.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("provider: request failed: %w", errDo)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Debug("provider: close response body failed")
		}
	}()

	body, errRead := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if errRead != nil {
		return nil, fmt.Errorf("provider: read response: %w", errRead)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider: upstream status %d: %s", resp.StatusCode, truncate(string(body), 256))
	}

	return parseResult(body, time.Since(started))
}

// buildPayload assembles the upstream request document.
func buildPayload(scope models.Scope, content string, options models.Options) ([]byte, error) {
	doc := "{}"
	doc, _ = sjson.Set(doc, "model", scope.Model)
	doc, _ = sjson.Set(doc, "messages.0.role", "user")
	doc, _ = sjson.Set(doc, "messages.0.content", content)
	if options.MaxOutputTokens > 0 {
		doc, _ = sjson.Set(doc, "max_tokens", options.MaxOutputTokens)
	}
	if options.Temperature > 0 {
		doc, _ = sjson.Set(doc, "temperature", options.Temperature)
	}
	if options.TopP > 0 {
		doc, _ = sjson.Set(doc, "top_p", options.TopP)
	}
	if strings.TrimSpace(options.Stop) != "" {
		doc, _ = sjson.Set(doc, "stop.0", strings.TrimSpace(options.Stop))
	}
	return []byte(doc), nil
}

// parseResult extracts the completion text and token usage.
func parseResult(body []byte, elapsed time.Duration) (*models.ProviderResult, error) {
	root := gjson.ParseBytes(body)
	output := root.Get("choices.0.message.content").String()
	if output == "" {
		output = root.Get("choices.0.text").String()
	}
	if output == "" {
		return nil, fmt.Errorf("provider: empty completion in response")
	}
	return &models.ProviderResult{
		Output:       output,
		InputTokens:  root.Get("usage.prompt_tokens").Int(),
		OutputTokens: root.Get("usage.completion_tokens").Int(),
		LatencyMs:    elapsed.Milliseconds(),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
