package semantic

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ledgerline/docaudit/internal/model"
)

type stubMessenger struct {
	text string
	err  error
}

func (s *stubMessenger) New(context.Context, sdk.MessageNewParams, ...option.RequestOption) (*sdk.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "text", Text: s.text}},
	}, nil
}

func stubClaude(text string, err error) *Claude {
	return &Claude{
		msgs:      &stubMessenger{text: text, err: err},
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
		limiter:   rate.NewLimiter(rate.Inf, 1),
	}
}

func testDoc() model.DocumentRecord {
	return model.DocumentRecord{
		ID:   "inv-1",
		Type: model.DocTypeInvoice,
		Fields: model.FieldMap{
			"total_amount": model.NewField("$2,500.00", 0.9),
		},
	}
}

func TestClaude_Analyze_ParsesFindings(t *testing.T) {
	c := stubClaude(`[{"description":"invoice date precedes PO date","severity":"HIGH","confidence":0.8}]`, nil)

	anomalies, err := c.Analyze(context.Background(), testDoc())
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, model.TypeSemanticFinding, anomalies[0].Type)
	assert.Equal(t, model.SeverityHigh, anomalies[0].Severity)
	assert.InDelta(t, 0.8, anomalies[0].Confidence, 0.001)
}

func TestClaude_Analyze_StripsCodeFence(t *testing.T) {
	c := stubClaude("```json\n[{\"description\":\"x\",\"severity\":\"medium\",\"confidence\":1.4}]\n```", nil)

	anomalies, err := c.Analyze(context.Background(), testDoc())
	require.NoError(t, err)
	require.Len(t, anomalies, 1)
	assert.Equal(t, model.SeverityMedium, anomalies[0].Severity)
	assert.InDelta(t, 1.0, anomalies[0].Confidence, 0.001) // clamped
}

func TestClaude_Analyze_EmptyArray(t *testing.T) {
	c := stubClaude("[]", nil)

	anomalies, err := c.Analyze(context.Background(), testDoc())
	require.NoError(t, err)
	assert.Empty(t, anomalies)
}

func TestClaude_Analyze_APIError(t *testing.T) {
	c := stubClaude("", eris.New("boom"))

	_, err := c.Analyze(context.Background(), testDoc())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create message")
}

func TestClaude_Analyze_Garbage(t *testing.T) {
	c := stubClaude("sure, here are the findings:", nil)

	_, err := c.Analyze(context.Background(), testDoc())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse findings")
}

func TestParseSeverity_DefaultsLow(t *testing.T) {
	assert.Equal(t, model.SeverityLow, parseSeverity("weird"))
	assert.Equal(t, model.SeverityLow, parseSeverity(""))
	assert.Equal(t, model.SeverityHigh, parseSeverity(" high "))
}

func TestNoop(t *testing.T) {
	anomalies, err := Noop{}.Analyze(context.Background(), testDoc())
	require.NoError(t, err)
	assert.Nil(t, anomalies)
}
