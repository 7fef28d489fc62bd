package detect

import (
	"fmt"

	"github.com/ledgerline/docaudit/internal/model"
	"github.com/ledgerline/docaudit/internal/rules"
)

// Detector flags near-duplicate documents by field-overlap similarity.
type Detector struct {
	threshold float64
}

// NewDetector builds a duplicate Detector using the configured similarity
// threshold.
func NewDetector(r rules.Rules) *Detector {
	return &Detector{threshold: r.DuplicateSimilarity}
}

// Similarity is the fraction of shared field names whose raw values match
// exactly. It is symmetric; zero when the documents share no fields.
// Comparison uses raw extracted values, not the confidence-suppressed view:
// two identical low-confidence scans are still duplicates of each other.
func Similarity(a, b model.FieldMap) float64 {
	common, matches := 0, 0
	for name, fa := range a {
		fb, ok := b[name]
		if !ok {
			continue
		}
		common++
		if fa.Value != nil && fb.Value != nil && *fa.Value == *fb.Value {
			matches++
		}
	}
	if common == 0 {
		return 0
	}
	return float64(matches) / float64(common)
}

// Scan compares doc against every other document in the corpus and emits a
// DUPLICATE_DOCUMENT anomaly per match above the threshold. Self-comparison
// is excluded.
func (d *Detector) Scan(doc model.DocumentRecord, corpus []model.DocumentRecord) []model.Anomaly {
	var anomalies []model.Anomaly
	for _, other := range corpus {
		if other.ID == doc.ID {
			continue
		}
		similarity := Similarity(doc.Fields, other.Fields)
		if similarity <= d.threshold {
			continue
		}
		anomalies = append(anomalies, model.Anomaly{
			Type:     model.TypeDuplicateDocument,
			Severity: model.SeverityHigh,
			Description: fmt.Sprintf("Document is %.1f%% similar to document %s",
				similarity*100, other.ID),
			Confidence: similarity,
			Extra:      map[string]any{"duplicate_of": other.ID, "similarity": similarity},
		})
	}
	return anomalies
}
