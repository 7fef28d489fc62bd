package model

import "time"

// ContractContext captures the lease terms of a processed CONTRACT document
// so that later invoices can be compared against them.
type ContractContext struct {
	ContractID      string    `json:"contract_id"`
	PONumber        string    `json:"po_number,omitempty"`
	VendorName      string    `json:"vendor_name,omitempty"`
	LeaseAmount     string    `json:"lease_amount,omitempty"`
	EffectiveDate   string    `json:"effective_date,omitempty"`
	ExpirationDate  string    `json:"expiration_date,omitempty"`
	LeaseTerm       string    `json:"lease_term,omitempty"`
	PaymentSchedule []Payment `json:"payment_schedule,omitempty"`
	ExtractedAt     time.Time `json:"extracted_at"`
}

// Payment is one expected installment in a contract's payment schedule.
type Payment struct {
	DueDate string `json:"due_date"`
	Amount  string `json:"amount"`
}

// ContractContextFrom builds a ContractContext from a contract document's
// fields, applying the same confidence suppression as the rule engine.
func ContractContextFrom(doc DocumentRecord, now time.Time) ContractContext {
	return ContractContext{
		ContractID:     doc.ID,
		PONumber:       doc.Field("po_number"),
		VendorName:     doc.Field("vendor_name"),
		LeaseAmount:    doc.Field("lease_amount"),
		EffectiveDate:  doc.Field("effective_date"),
		ExpirationDate: doc.Field("expiration_date"),
		LeaseTerm:      doc.Field("lease_term"),
		ExtractedAt:    now,
	}
}
