package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/docaudit/internal/model"
)

// MemoryStore is an in-memory Store used by tests and as the degraded-mode
// fallback when no database is reachable.
type MemoryStore struct {
	mu          sync.RWMutex
	documents   map[string]model.DocumentRecord
	anomalies   map[string][]model.Anomaly
	validations map[string]ValidationRecord
	contexts    map[string]model.ContractContext
	mappings    map[string]int
	queue       map[string]model.HitlQueueItem
	feedback    map[string][]model.Feedback
	rules       map[string]float64
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		documents:   map[string]model.DocumentRecord{},
		anomalies:   map[string][]model.Anomaly{},
		validations: map[string]ValidationRecord{},
		contexts:    map[string]model.ContractContext{},
		mappings:    map[string]int{},
		queue:       map[string]model.HitlQueueItem{},
		feedback:    map[string][]model.Feedback{},
		rules:       map[string]float64{},
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Close() error                  { return nil }

func (s *MemoryStore) SaveDocument(_ context.Context, doc model.DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = time.Now().UTC()
	}
	s.documents[doc.ID] = doc
	return nil
}

func (s *MemoryStore) GetDocument(_ context.Context, id string) (*model.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (s *MemoryStore) ListDocuments(context.Context) ([]model.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.DocumentRecord, 0, len(s.documents))
	for _, doc := range s.documents {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListRelated(_ context.Context, docID, poNumber, vendorName string) ([]model.DocumentRecord, error) {
	if poNumber == "" && vendorName == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.DocumentRecord
	for _, doc := range s.documents {
		if doc.ID == docID {
			continue
		}
		po := doc.Field("po_number")
		vendor := doc.Field("vendor_name")
		if (po != "" && po == poNumber) || (vendor != "" && vendor == vendorName) {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) SaveAnomalies(_ context.Context, docID string, anomalies []model.Anomaly) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range anomalies {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		s.anomalies[docID] = append(s.anomalies[docID], a)
	}
	return nil
}

func (s *MemoryStore) ListAnomalies(_ context.Context, docID string) ([]model.Anomaly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Anomaly, len(s.anomalies[docID]))
	copy(out, s.anomalies[docID])
	return out, nil
}

func (s *MemoryStore) SaveValidation(_ context.Context, record ValidationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ValidatedAt.IsZero() {
		record.ValidatedAt = time.Now().UTC()
	}
	s.validations[record.DocumentID] = record
	return nil
}

func (s *MemoryStore) ListValidations(context.Context) ([]ValidationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ValidationRecord, 0, len(s.validations))
	for _, rec := range s.validations {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out, nil
}

func (s *MemoryStore) SaveContractContext(_ context.Context, cc model.ContractContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[cc.ContractID] = cc
	return nil
}

func (s *MemoryStore) FindContractContext(_ context.Context, poNumber, vendorName string) (*model.ContractContext, error) {
	if poNumber == "" && vendorName == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	// PO linkage wins over vendor linkage; most recent context breaks ties.
	var byPO, byVendor *model.ContractContext
	for id := range s.contexts {
		cc := s.contexts[id]
		if poNumber != "" && cc.PONumber == poNumber {
			if byPO == nil || cc.ExtractedAt.After(byPO.ExtractedAt) {
				c := cc
				byPO = &c
			}
		}
		if vendorName != "" && cc.VendorName == vendorName {
			if byVendor == nil || cc.ExtractedAt.After(byVendor.ExtractedAt) {
				c := cc
				byVendor = &c
			}
		}
	}
	if byPO != nil {
		return byPO, nil
	}
	return byVendor, nil
}

func (s *MemoryStore) SaveContractInvoiceMapping(_ context.Context, contractID, invoiceID string, anomalyCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[contractID+"|"+invoiceID] = anomalyCount
	return nil
}

func (s *MemoryStore) SaveQueueItem(_ context.Context, item model.HitlQueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue[item.SessionID] = item
	return nil
}

func (s *MemoryStore) UpdateQueueItem(_ context.Context, item model.HitlQueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue[item.SessionID] = item
	return nil
}

func (s *MemoryStore) ListQueue(_ context.Context, status model.QueueStatus) ([]model.HitlQueueItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.HitlQueueItem
	for _, item := range s.queue {
		if status != "" && item.Status != status {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QueuedAt.Equal(out[j].QueuedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].QueuedAt.Before(out[j].QueuedAt)
	})
	return out, nil
}

func (s *MemoryStore) SaveFeedback(_ context.Context, docID string, fb model.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback[docID] = append(s.feedback[docID], fb)
	return nil
}

func (s *MemoryStore) GetBusinessRules(context.Context) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.rules))
	for k, v := range s.rules {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) PutBusinessRules(_ context.Context, thresholds map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range thresholds {
		s.rules[k] = v
	}
	return nil
}
