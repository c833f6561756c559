// backend/src/services/interfaces.go
package services

import (
	"database/sql"
	"errors"

	"github.com/username/moneyfolio/backend/src/database"
	"github.com/username/moneyfolio/backend/src/model"
	"github.com/username/moneyfolio/backend/src/models"
)

// Define common service errors
var (
	ErrNotFound           = errors.New("record not found")
	ErrInvalidChoice      = errors.New("invalid resolution choice")
	ErrScanAlreadyRunning = errors.New("duplicate scan already running")
)

// TransactionStore is the candidate transaction query surface shared by the
// classifier, the batch scanner and the cleanup routine. All queries are
// scoped by the opaque user id supplied by the authentication collaborator.
type TransactionStore interface {
	FindRecent(userID int64) ([]models.Transaction, error)
	FindAll(userID int64) ([]models.Transaction, error)
	GetByID(id, userID int64) (*models.Transaction, error)
	Save(tx *models.Transaction) error
	Delete(id, userID int64) error
	ListUserIDs() ([]int64, error)
}

// DuplicateCheckResult is the classifier's verdict for one candidate.
type DuplicateCheckResult struct {
	IsDuplicate         bool                `json:"isDuplicate"`
	BestMatch           *models.Transaction `json:"bestMatch,omitempty"`
	Score               int                 `json:"score"`
	Reason              string              `json:"reason"`
	ConfidenceBand      string              `json:"confidenceBand"`
	ShouldPrevent       bool                `json:"shouldPrevent"`
	ShouldCreatePending bool                `json:"shouldCreatePending"`
}

// CreateTransactionResult reports what happened when a candidate was pushed
// through the pre-creation duplicate check. Prevented duplicates are not an
// error: the import just reports fewer created transactions.
type CreateTransactionResult struct {
	Created   *models.Transaction      `json:"created,omitempty"`
	Existing  *models.Transaction      `json:"existing,omitempty"` // Tentative result when a pending record was created
	Pending   *models.PendingDuplicate `json:"pending,omitempty"`
	Prevented bool                     `json:"prevented"`
	Duplicate *DuplicateCheckResult    `json:"duplicateCheck,omitempty"`
}

// DuplicateService wraps the similarity scorer with decision thresholds and
// drives the pre-creation check for imports and manual entry.
type DuplicateService interface {
	CheckForDuplicateBeforeCreation(candidate models.TransactionInput, userID int64) (*DuplicateCheckResult, error)
	CreateWithDuplicateCheck(candidate models.TransactionInput, userID int64) (*CreateTransactionResult, error)
	InvalidateUserCache(userID int64)
}

// ResolutionResult describes the outcome of resolving one pending record.
type ResolutionResult struct {
	PendingID          int64               `json:"pendingId"`
	Choice             string              `json:"choice"`
	Action             string              `json:"action"` // Human-readable description of what was done
	CreatedTransaction *models.Transaction `json:"createdTransaction,omitempty"`
}

// BulkItemError captures a single failure inside a bulk operation.
type BulkItemError struct {
	ID    int64  `json:"id"`
	Error string `json:"error"`
}

// BulkOperationResult aggregates per-id outcomes; one failure never aborts
// the batch.
type BulkOperationResult struct {
	Requested int             `json:"requested"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Failures  []BulkItemError `json:"failures,omitempty"`
}

// PendingDuplicateService owns the pending duplicate ledger and the
// resolution workflow.
type PendingDuplicateService interface {
	Create(existing models.Transaction, candidate models.TransactionInput, userID int64, sourceReference string) (*models.PendingDuplicate, error)
	CreatePostScan(existing, duplicate models.Transaction, userID int64, tier, sourceReference string) (*models.PendingDuplicate, error)
	List(userID int64) ([]models.PendingDuplicateWithContext, error)
	FindByExistingTransactionID(txID int64) ([]models.PendingDuplicate, error)
	Update(id, userID int64, upd model.PendingDuplicateUpdate) error
	Delete(id, userID int64) error
	Resolve(pendingID, userID int64, choice string) (*ResolutionResult, error)
	BulkResolve(ids []int64, userID int64, choice string) (*BulkOperationResult, error)
	BulkDelete(ids []int64, userID int64) (*BulkOperationResult, error)
}

// ScanSummary reports a batch scan run.
type ScanSummary struct {
	RunID                    string `json:"runId"`
	PotentialDuplicatesFound int    `json:"potentialDuplicatesFound"`
	PendingDuplicatesCreated int    `json:"pendingDuplicatesCreated"`
	UsersProcessed           int    `json:"usersProcessed"`
	ExecutionTime            string `json:"executionTime"`
}

// ScanStatus is the running/not-running guard state.
type ScanStatus struct {
	IsRunning bool `json:"isRunning"`
}

// ScanService runs the full-ledger duplicate sweep. A nil userID means all
// users. Only one scan may run at a time process-wide.
type ScanService interface {
	DetectDuplicates(userID *int64) (*ScanSummary, error)
	Status() ScanStatus
}

// CleanupReport reports the exact-duplicate merge maintenance run.
type CleanupReport struct {
	TransactionsScanned  int    `json:"transactionsScanned"`
	DuplicateGroupsFound int    `json:"duplicateGroupsFound"`
	TransactionsRemoved  int    `json:"transactionsRemoved"`
	GroupsPreserved      int    `json:"groupsPreserved"`
	ExecutionTime        string `json:"executionTime"`
}

// CleanupService permanently merges 100%-identical transaction rows. It is
// destructive and only ever invoked explicitly, never on a schedule.
type CleanupService interface {
	CleanupExactDuplicates(userID int64) (*CleanupReport, error)
}

// sqlTransactionStore backs TransactionStore with the model accessors over
// the global database handle.
type sqlTransactionStore struct {
	windowDays int
}

// NewTransactionStore returns the SQL-backed candidate store. windowDays
// bounds FindRecent's lookback.
func NewTransactionStore(windowDays int) TransactionStore {
	return &sqlTransactionStore{windowDays: windowDays}
}

func (s *sqlTransactionStore) FindRecent(userID int64) ([]models.Transaction, error) {
	return model.FindRecentTransactions(database.DB, userID, s.windowDays)
}

func (s *sqlTransactionStore) FindAll(userID int64) ([]models.Transaction, error) {
	return model.FindAllTransactions(database.DB, userID)
}

func (s *sqlTransactionStore) GetByID(id, userID int64) (*models.Transaction, error) {
	tx, err := model.GetTransactionByID(database.DB, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return tx, err
}

func (s *sqlTransactionStore) Save(tx *models.Transaction) error {
	return model.InsertTransaction(database.DB, tx)
}

func (s *sqlTransactionStore) Delete(id, userID int64) error {
	err := model.DeleteTransaction(database.DB, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *sqlTransactionStore) ListUserIDs() ([]int64, error) {
	return model.ListUserIDs(database.DB)
}
