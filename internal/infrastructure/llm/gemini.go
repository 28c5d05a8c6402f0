// Package llm integrates the Gemini generateContent API for tag and
// summary enrichment.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ArticleStock/internal/config"
	"ArticleStock/internal/domain"
	"ArticleStock/internal/ports"
)

const (
	minTagCount = 3
	maxTagCount = 5

	maxSummaryRunes = 100

	promptTemplate = `Derive tags and a supplemental summary for the article below.

# Title
%s

# Description
%s

# Output
Respond with JSON only, in this exact shape:

{"tags": ["tag1", "tag2", "tag3"], "summary": "supplemental text"}

# Requirements
- 3 to 5 tags, each a single word or short phrase describing the article
- the summary supplements the description in at most 100 characters
- return an empty summary string when there is nothing to add`
)

// GeminiClient calls the Gemini API once per message. Any failure, timeout,
// or shape violation degrades to the sentinel tag pair; no internal retry.
type GeminiClient struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ ports.Enricher = (*GeminiClient)(nil)

// NewGeminiClient builds a client from configuration.
func NewGeminiClient(cfg config.GeminiConfig, logger *slog.Logger) *GeminiClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GeminiClient{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// geminiRequest is the generateContent payload.
type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

// geminiResponse carries the first candidate's text back.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// enrichmentPayload is the JSON shape requested from the model.
type enrichmentPayload struct {
	Tags    []string `json:"tags"`
	Summary string   `json:"summary"`
}

// Enrich sends one prompt with title and description. A success response
// with a tag count outside [3,5] is downgraded to the fallback sentinel
// tags rather than truncated or padded.
func (c *GeminiClient) Enrich(ctx context.Context, title, description string) domain.Enrichment {
	if description == "" {
		description = "(no description)"
	}

	payload, err := c.call(ctx, fmt.Sprintf(promptTemplate, title, description))
	if err != nil {
		c.warn("enrichment failed", "title", title, "error", err)
		return fallbackEnrichment()
	}

	if len(payload.Tags) < minTagCount || len(payload.Tags) > maxTagCount {
		c.warn("enrichment returned out-of-range tag count", "count", len(payload.Tags))
		return fallbackEnrichment()
	}

	summary := payload.Summary
	if runes := []rune(summary); len(runes) > maxSummaryRunes {
		summary = string(runes[:maxSummaryRunes])
	}

	return domain.Enrichment{Tags: payload.Tags, Summary: summary, Succeeded: true}
}

func (c *GeminiClient) call(ctx context.Context, prompt string) (enrichmentPayload, error) {
	var payload enrichmentPayload

	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return payload, fmt.Errorf("gemini client misconfigured")
	}

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return payload, fmt.Errorf("marshal gemini payload: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return payload, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return payload, fmt.Errorf("call gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return payload, fmt.Errorf("gemini error %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	var decoded geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return payload, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return payload, fmt.Errorf("empty gemini response")
	}

	text := stripCodeFences(decoded.Candidates[0].Content.Parts[0].Text)
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return payload, fmt.Errorf("parse enrichment payload: %w", err)
	}

	return payload, nil
}

// stripCodeFences removes a surrounding markdown code block, which the
// model sometimes wraps its JSON in despite the prompt.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func fallbackEnrichment() domain.Enrichment {
	return domain.Enrichment{Tags: domain.FallbackTags()}
}

func (c *GeminiClient) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
