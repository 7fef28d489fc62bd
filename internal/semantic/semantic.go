// Package semantic runs LLM-backed analysis over extracted document fields.
// Findings supplement the deterministic rule engine; a semantic failure never
// blocks the pipeline.
package semantic

import (
	"context"
	"encoding/json"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/ledgerline/docaudit/internal/model"
)

// Analyzer inspects a document for irregularities a rule engine cannot
// express, such as implausible field combinations.
type Analyzer interface {
	Analyze(ctx context.Context, doc model.DocumentRecord) ([]model.Anomaly, error)
}

// Noop is the analyzer used when no API key is configured.
type Noop struct{}

func (Noop) Analyze(context.Context, model.DocumentRecord) ([]model.Anomaly, error) {
	return nil, nil
}

const (
	defaultModel     = "claude-haiku-4-5-20251001"
	defaultMaxTokens = 1024
	// defaultRPS keeps the analyzer inside a conservative request budget so
	// batch runs do not trip API rate limits.
	defaultRPS = 2
)

const systemPrompt = `You are a financial document auditor. You receive the extracted fields of one document (invoice, contract, or purchase order). Identify irregularities the field values suggest: implausible combinations, internally inconsistent terms, or signs of data-entry error. Respond with a JSON array only, no prose. Each element: {"description": string, "severity": "LOW"|"MEDIUM"|"HIGH", "confidence": number between 0 and 1}. Respond with [] when nothing looks wrong.`

// messenger is the single SDK operation the analyzer uses, extracted so
// tests can stub the API.
type messenger interface {
	New(ctx context.Context, params sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Claude analyzes documents through the Anthropic Messages API.
type Claude struct {
	msgs      messenger
	model     string
	maxTokens int64
	limiter   *rate.Limiter
}

// Option configures a Claude analyzer.
type Option func(*Claude)

func WithModel(model string) Option {
	return func(c *Claude) {
		if model != "" {
			c.model = model
		}
	}
}

func WithRequestsPerSecond(rps float64) Option {
	return func(c *Claude) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// NewClaude creates an analyzer backed by the official SDK.
func NewClaude(apiKey string, opts ...Option) *Claude {
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	c := &Claude{
		msgs:      &client.Messages,
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
		limiter:   rate.NewLimiter(rate.Limit(defaultRPS), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// finding is the wire shape the model is instructed to produce.
type finding struct {
	Description string  `json:"description"`
	Severity    string  `json:"severity"`
	Confidence  float64 `json:"confidence"`
}

func (c *Claude) Analyze(ctx context.Context, doc model.DocumentRecord) ([]model.Anomaly, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "semantic: rate limit wait")
	}

	payload, err := json.Marshal(map[string]any{
		"document_type": doc.Type,
		"fields":        doc.Fields,
	})
	if err != nil {
		return nil, eris.Wrap(err, "semantic: marshal document")
	}

	msg, err := c.msgs.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(string(payload))),
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "semantic: create message")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		text.WriteString(block.Text)
	}
	findings, err := parseFindings(text.String())
	if err != nil {
		return nil, err
	}

	anomalies := make([]model.Anomaly, 0, len(findings))
	for _, f := range findings {
		anomalies = append(anomalies, model.Anomaly{
			Type:        model.TypeSemanticFinding,
			Severity:    parseSeverity(f.Severity),
			Description: f.Description,
			Confidence:  clamp01(f.Confidence),
		})
	}
	return anomalies, nil
}

// parseFindings tolerates a markdown code fence around the JSON array, which
// models emit despite instructions.
func parseFindings(text string) ([]finding, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}
	if text == "" {
		return nil, nil
	}
	var findings []finding
	if err := json.Unmarshal([]byte(text), &findings); err != nil {
		return nil, eris.Wrap(err, "semantic: parse findings")
	}
	return findings, nil
}

func parseSeverity(s string) model.Severity {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH":
		return model.SeverityHigh
	case "MEDIUM":
		return model.SeverityMedium
	}
	return model.SeverityLow
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
