package models

import "encoding/json"

// Detection origins for a pending duplicate record. Import-time detections
// carry candidate data that was never persisted; post-scan detections link
// two already-persisted transactions.
const (
	OriginImportTime = "import_time"
	OriginPostScan   = "post_scan"
)

// Confidence tiers assigned by the batch scanner's grouping passes.
const (
	TierHigh   = "high"
	TierMedium = "medium"
)

// Resolution choices for a pending duplicate.
const (
	ChoiceMaintainBoth = "maintain-both"
	ChoiceKeepExisting = "keep-existing"
	ChoiceUseNew       = "use-new"
)

// ValidChoice reports whether a resolution choice is one of the known values.
func ValidChoice(choice string) bool {
	switch choice {
	case ChoiceMaintainBoth, ChoiceKeepExisting, ChoiceUseNew:
		return true
	}
	return false
}

// TransactionSnapshot is an immutable copy of a transaction's fields frozen
// at detection time. It is stored as JSON on the pending duplicate record so
// resolutions and audit views do not depend on the live row still existing.
type TransactionSnapshot struct {
	TransactionID int64   `json:"transaction_id,omitempty"` // Zero for unpersisted candidates
	Description   string  `json:"description"`
	Amount        float64 `json:"amount"`
	Direction     string  `json:"direction"`
	ExecutionDate string  `json:"execution_date"`
	Source        string  `json:"source"`
	ExternalRef   string  `json:"external_ref,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
}

// SnapshotOf freezes a persisted transaction.
func SnapshotOf(t Transaction) TransactionSnapshot {
	return TransactionSnapshot{
		TransactionID: t.ID,
		Description:   t.Description,
		Amount:        t.Amount,
		Direction:     t.Direction,
		ExecutionDate: t.ExecutionDate,
		Source:        t.Source,
		ExternalRef:   t.ExternalRef,
		CreatedAt:     t.CreatedAt,
	}
}

// SnapshotOfInput freezes unpersisted candidate data.
func SnapshotOfInput(in TransactionInput) TransactionSnapshot {
	return TransactionSnapshot{
		Description:   in.Description,
		Amount:        in.Amount,
		Direction:     in.Direction,
		ExecutionDate: in.ExecutionDate,
		Source:        in.Source,
		ExternalRef:   in.ExternalRef,
	}
}

// ToInput converts a frozen snapshot back to candidate data, used when an
// import-time resolution persists the "new" side.
func (s TransactionSnapshot) ToInput() TransactionInput {
	return TransactionInput{
		Description:   s.Description,
		Amount:        s.Amount,
		Direction:     s.Direction,
		ExecutionDate: s.ExecutionDate,
		Source:        s.Source,
		ExternalRef:   s.ExternalRef,
	}
}

// MarshalSnapshot renders a snapshot for storage. Marshal errors cannot occur
// for this struct shape, so the empty-object fallback is unreachable in
// practice.
func MarshalSnapshot(s TransactionSnapshot) string {
	b, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// UnmarshalSnapshot parses a stored snapshot.
func UnmarshalSnapshot(raw string) (TransactionSnapshot, error) {
	var s TransactionSnapshot
	err := json.Unmarshal([]byte(raw), &s)
	return s, err
}

// PendingDuplicate is a durable record of a detected duplicate awaiting
// manual resolution.
type PendingDuplicate struct {
	ID                     int64               `json:"id"`
	UserID                 int64               `json:"user_id"`
	ExistingTransactionID  *int64              `json:"existing_transaction_id"`
	CandidateTransactionID *int64              `json:"candidate_transaction_id,omitempty"` // Post-scan only
	ExistingSnapshot       TransactionSnapshot `json:"existing_snapshot"`
	CandidateSnapshot      TransactionSnapshot `json:"candidate_snapshot"`
	DetectionOrigin        string              `json:"detection_origin"`
	ConfidenceTier         string              `json:"confidence_tier,omitempty"`
	SourceReference        string              `json:"source_reference"`
	Resolved               bool                `json:"resolved"`
	CreatedAt              string              `json:"created_at"`
}

// PendingDuplicateWithContext pairs a ledger record with the current state of
// the referenced existing transaction for display, when it still exists.
type PendingDuplicateWithContext struct {
	PendingDuplicate
	ExistingTransaction *Transaction `json:"existing_transaction,omitempty"`
}
