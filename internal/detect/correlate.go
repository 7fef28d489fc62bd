package detect

import (
	"fmt"
	"math"

	"github.com/ledgerline/docaudit/internal/model"
	"github.com/ledgerline/docaudit/internal/rules"
)

// crossAmountVariancePercent is the detection-stage amount threshold for
// cross-document comparison. Validation applies the tighter configurable
// amount_variance_percent afterwards.
const crossAmountVariancePercent = 10.0

// Correlator compares a document against its related documents (same PO,
// vendor, or contract linkage) and emits mismatch anomalies.
type Correlator struct {
	rules rules.Rules
}

// NewCorrelator builds a Correlator over the given rule thresholds.
func NewCorrelator(r rules.Rules) *Correlator {
	return &Correlator{rules: r}
}

// Correlate emits PO, amount, and date mismatch anomalies between doc and
// each related document, in related order for determinism.
func (c *Correlator) Correlate(doc model.DocumentRecord, related []model.DocumentRecord) []model.Anomaly {
	var anomalies []model.Anomaly
	for _, other := range related {
		if other.ID == doc.ID {
			continue
		}
		if a := checkPOMismatch(doc, other); a != nil {
			anomalies = append(anomalies, *a)
		}
		if a := c.checkAmountMismatch(doc, other); a != nil {
			anomalies = append(anomalies, *a)
		}
		if a := c.checkDateMismatch(doc, other); a != nil {
			anomalies = append(anomalies, *a)
		}
	}
	return anomalies
}

func checkPOMismatch(doc, other model.DocumentRecord) *model.Anomaly {
	currPO := doc.Field("po_number")
	relPO := other.Field("po_number")
	if currPO == "" || relPO == "" || currPO == relPO {
		return nil
	}
	return &model.Anomaly{
		Type:     model.TypePOMismatch,
		Severity: model.SeverityHigh,
		Description: fmt.Sprintf("PO mismatch: current document has %s, related document %s has %s",
			currPO, other.ID, relPO),
		Confidence: 0.9,
		Extra:      map[string]any{"related_document_id": other.ID},
	}
}

func (c *Correlator) checkAmountMismatch(doc, other model.DocumentRecord) *model.Anomaly {
	curr, err := ParseAmount(doc.Field("total_amount"))
	if err != nil {
		return nil
	}
	rel, err := ParseAmount(other.Field("total_amount"))
	if err != nil || rel == 0 {
		return nil
	}

	variance := math.Abs(curr-rel) / rel * 100
	if variance <= crossAmountVariancePercent {
		return nil
	}
	return &model.Anomaly{
		Type:     model.TypeAmountMismatch,
		Severity: model.SeverityHigh,
		Description: amountPrinter.Sprintf("Amount variance: %.1f%% between documents ($%.2f vs $%.2f)",
			variance, curr, rel),
		Confidence: math.Min(1, variance/20),
		Extra: map[string]any{
			"variance_percent":    variance,
			"related_document_id": other.ID,
		},
	}
}

func (c *Correlator) checkDateMismatch(doc, other model.DocumentRecord) *model.Anomaly {
	currDate := doc.Fields.BestDate()
	relDate := other.Fields.BestDate()
	if currDate == "" || relDate == "" {
		return nil
	}
	engine := Engine{rules: c.rules}
	a, err := engine.checkDateVariance(currDate, relDate, "cross-document date")
	if err != nil || a == nil {
		return nil
	}
	if a.Extra == nil {
		a.Extra = map[string]any{}
	}
	a.Extra["related_document_id"] = other.ID
	return a
}
