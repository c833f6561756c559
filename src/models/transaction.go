package models

// Transaction directions. Amounts are always stored as non-negative
// magnitudes; the direction flag carries the sign.
const (
	DirectionIncome  = "income"
	DirectionExpense = "expense"
)

// Transaction sources.
const (
	SourceManual    = "manual"
	SourceCSVImport = "csv_import"
	SourceAPI       = "api"
	SourceRecurring = "recurring"
)

// Transaction represents a single bank transaction owned by a user.
type Transaction struct {
	ID            int64   `json:"id,omitempty"` // Database primary key
	UserID        int64   `json:"user_id,omitempty"`
	Description   string  `json:"description"`
	Amount        float64 `json:"amount"`    // Non-negative magnitude
	Direction     string  `json:"direction"` // "income" or "expense"
	ExecutionDate string  `json:"execution_date"` // YYYY-MM-DD, may be empty
	Source        string  `json:"source"`
	ExternalRef   string  `json:"external_ref,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"` // Set by the database
}

// SignedAmount normalizes the magnitude + direction pair to a signed value:
// expenses negative, income positive.
func (t Transaction) SignedAmount() float64 {
	if t.Direction == DirectionExpense {
		return -t.Amount
	}
	return t.Amount
}

// TransactionInput is candidate transaction data that has not been persisted
// yet (manual entry or an import row before the duplicate check).
type TransactionInput struct {
	Description   string  `json:"description"`
	Amount        float64 `json:"amount"`
	Direction     string  `json:"direction"`
	ExecutionDate string  `json:"execution_date"`
	Source        string  `json:"source"`
	ExternalRef   string  `json:"external_ref,omitempty"`
}

// SignedAmount mirrors Transaction.SignedAmount for unpersisted candidates.
func (in TransactionInput) SignedAmount() float64 {
	if in.Direction == DirectionExpense {
		return -in.Amount
	}
	return in.Amount
}

// ToTransaction converts candidate data to a persistable transaction.
func (in TransactionInput) ToTransaction(userID int64) Transaction {
	return Transaction{
		UserID:        userID,
		Description:   in.Description,
		Amount:        in.Amount,
		Direction:     in.Direction,
		ExecutionDate: in.ExecutionDate,
		Source:        in.Source,
		ExternalRef:   in.ExternalRef,
	}
}
