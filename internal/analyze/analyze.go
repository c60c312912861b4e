// Package analyze turns raw post text into a structured extraction result:
// the date/time expressions the text mentions, a short summary, and whether
// the text contains an "until ..." expression.
//
// The primary path asks a chat-completion model for the extraction. Models
// are unreliable about strict JSON, so any malformed response degrades to a
// deterministic regex fallback instead of failing the request.
package analyze

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"

	"post2cal/internal/config"
	appLog "post2cal/internal/log"
	"post2cal/internal/model"
)

// systemPrompt is the fixed extraction instruction sent with every request.
const systemPrompt = `Extract dates, times, and "until" expressions from the text. Analyze the following aspects:
1. All dates and times mentioned (in YYYY-MM-DD HH:mm format if time is present, or YYYY-MM-DD if only date)
2. Check if text contains expressions like "まで", "until", "〜まで"
3. Create a brief summary

Respond in JSON format with:
- 'dates': array of date strings
- 'summary': string
- 'hasUntilExpression': boolean

Example response:
{
    "dates": ["2024-01-20 15:30", "2024-01-21"],
    "summary": "Brief summary here",
    "hasUntilExpression": true
}`

// ErrMissingAPIKey is returned before any network call when no API key is
// configured.
var ErrMissingAPIKey = errors.New("API key is not set. Please configure it in the config file")

// TransportError reports a non-success response from the extraction API.
// It is surfaced to the caller verbatim and never retried.
type TransportError struct {
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	return "extraction API request failed (" + strconv.Itoa(e.Status) + "): " + e.Body
}

// Analyzer performs LLM-backed extraction over post text.
type Analyzer struct {
	client *openai.Client
	model  string
	apiKey string
}

// New constructs an Analyzer from the application config.
// Construction succeeds even without an API key; Analyze fails fast instead,
// so that a missing credential is reported per request rather than at boot.
func New(cfg *config.Config) *Analyzer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Analyzer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		apiKey: cfg.APIKey,
	}
}

// Analyze sends text to the extraction model and returns the normalized
// result.
//
// Error contract: only credential and transport failures are returned.
// Malformed model content is never an error; it triggers the regex fallback.
func (a *Analyzer) Analyze(ctx context.Context, text string) (model.ExtractionResult, error) {
	if a.apiKey == "" {
		return model.ExtractionResult{}, ErrMissingAPIKey
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			terr := &TransportError{Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
			appLog.Error("extraction API error", terr, "status", apiErr.HTTPStatusCode)
			return model.ExtractionResult{}, terr
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			terr := &TransportError{Status: reqErr.HTTPStatusCode, Body: reqErr.Error()}
			appLog.Error("extraction API error", terr, "status", reqErr.HTTPStatusCode)
			return model.ExtractionResult{}, terr
		}
		appLog.Error("extraction request failed", err)
		return model.ExtractionResult{}, errors.Wrap(err, "extraction request failed")
	}

	if len(resp.Choices) == 0 {
		err := errors.New("empty response from extraction API")
		appLog.Error("extraction response invalid", err)
		return model.ExtractionResult{}, err
	}

	content := resp.Choices[0].Message.Content
	if result, ok := parseStrictResult(content); ok {
		return result, nil
	}

	// Model did not produce the expected JSON shape; degrade to the
	// deterministic extractor over the content it did produce.
	appLog.Info("extraction content not valid JSON, using fallback", "content_len", len(content))
	return Fallback(content, time.Now()), nil
}

// parseStrictResult accepts content only when it is a JSON object carrying
// all three expected fields with the expected types.
func parseStrictResult(content string) (model.ExtractionResult, bool) {
	cleaned := stripCodeFences(content)

	var probe struct {
		Dates              *[]string `json:"dates"`
		Summary            *string   `json:"summary"`
		HasUntilExpression *bool     `json:"hasUntilExpression"`
	}
	if err := json.Unmarshal([]byte(cleaned), &probe); err != nil {
		return model.ExtractionResult{}, false
	}
	if probe.Dates == nil || probe.Summary == nil || probe.HasUntilExpression == nil {
		return model.ExtractionResult{}, false
	}

	return model.ExtractionResult{
		Dates:              *probe.Dates,
		Summary:            *probe.Summary,
		HasUntilExpression: *probe.HasUntilExpression,
	}, true
}

// stripCodeFences removes a surrounding markdown code fence, which chat
// models frequently wrap JSON in despite instructions.
func stripCodeFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
