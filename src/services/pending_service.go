// backend/src/services/pending_service.go
package services

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/patrickmn/go-cache"
	"github.com/username/moneyfolio/backend/src/database"
	"github.com/username/moneyfolio/backend/src/logger"
	"github.com/username/moneyfolio/backend/src/model"
	"github.com/username/moneyfolio/backend/src/models"
)

// ErrAlreadyResolved guards against double resolution, which would replay
// import-time side effects.
var ErrAlreadyResolved = errors.New("pending duplicate already resolved")

type pendingServiceImpl struct {
	store          TransactionStore
	candidateCache *cache.Cache
}

func NewPendingDuplicateService(store TransactionStore, candidateCache *cache.Cache) PendingDuplicateService {
	return &pendingServiceImpl{
		store:          store,
		candidateCache: candidateCache,
	}
}

// Create records an import-time detection: the candidate side was never
// persisted, only its frozen snapshot lives on the ledger.
func (s *pendingServiceImpl) Create(existing models.Transaction, candidate models.TransactionInput, userID int64, sourceReference string) (*models.PendingDuplicate, error) {
	existingID := existing.ID
	rec := &models.PendingDuplicate{
		UserID:                userID,
		ExistingTransactionID: &existingID,
		ExistingSnapshot:      models.SnapshotOf(existing),
		CandidateSnapshot:     models.SnapshotOfInput(candidate),
		DetectionOrigin:       models.OriginImportTime,
		SourceReference:       sourceReference,
	}
	if err := model.InsertPendingDuplicate(database.DB, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CreatePostScan records a batch-scan detection linking two persisted
// transactions, tagged with the grouping pass's confidence tier.
func (s *pendingServiceImpl) CreatePostScan(existing, duplicate models.Transaction, userID int64, tier, sourceReference string) (*models.PendingDuplicate, error) {
	existingID := existing.ID
	duplicateID := duplicate.ID
	rec := &models.PendingDuplicate{
		UserID:                 userID,
		ExistingTransactionID:  &existingID,
		CandidateTransactionID: &duplicateID,
		ExistingSnapshot:       models.SnapshotOf(existing),
		CandidateSnapshot:      models.SnapshotOf(duplicate),
		DetectionOrigin:        models.OriginPostScan,
		ConfidenceTier:         tier,
		SourceReference:        sourceReference,
	}
	if err := model.InsertPendingDuplicate(database.DB, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns the user's unresolved records newest-first, with the current
// state of each referenced existing transaction attached for display when it
// still exists.
func (s *pendingServiceImpl) List(userID int64) ([]models.PendingDuplicateWithContext, error) {
	records, err := model.ListUnresolvedPendingDuplicates(database.DB, userID)
	if err != nil {
		return nil, err
	}
	result := make([]models.PendingDuplicateWithContext, 0, len(records))
	for _, rec := range records {
		item := models.PendingDuplicateWithContext{PendingDuplicate: rec}
		if rec.ExistingTransactionID != nil {
			tx, err := s.store.GetByID(*rec.ExistingTransactionID, userID)
			if err == nil {
				item.ExistingTransaction = tx
			} else if !errors.Is(err, ErrNotFound) {
				return nil, err
			}
		}
		result = append(result, item)
	}
	return result, nil
}

func (s *pendingServiceImpl) FindByExistingTransactionID(txID int64) ([]models.PendingDuplicate, error) {
	return model.FindPendingByExistingTransactionID(database.DB, txID)
}

func (s *pendingServiceImpl) Update(id, userID int64, upd model.PendingDuplicateUpdate) error {
	err := model.UpdatePendingDuplicate(database.DB, id, userID, upd)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: pending duplicate %d", ErrNotFound, id)
	}
	return err
}

// Delete removes a record without resolving it, distinct from resolution.
func (s *pendingServiceImpl) Delete(id, userID int64) error {
	err := model.DeletePendingDuplicate(database.DB, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: pending duplicate %d", ErrNotFound, id)
	}
	return err
}

// Resolve applies the user's choice. The transaction-side effect (if any)
// runs first; the resolved flag is only set once it succeeded, so a failed
// side effect leaves the record unresolved and the error propagates.
func (s *pendingServiceImpl) Resolve(pendingID, userID int64, choice string) (*ResolutionResult, error) {
	if !models.ValidChoice(choice) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidChoice, choice)
	}

	rec, err := model.GetPendingDuplicate(database.DB, pendingID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: pending duplicate %d", ErrNotFound, pendingID)
	}
	if err != nil {
		return nil, err
	}
	if rec.Resolved {
		return nil, fmt.Errorf("%w: pending duplicate %d", ErrAlreadyResolved, pendingID)
	}

	result := &ResolutionResult{PendingID: pendingID, Choice: choice}

	if rec.DetectionOrigin == models.OriginPostScan {
		// Both sides are live transactions. No choice deletes or creates
		// rows here; earlier behavior that deleted live data on
		// keep-existing destroyed real ledger entries and was reverted.
		switch choice {
		case models.ChoiceMaintainBoth:
			result.Action = "both transactions kept"
		case models.ChoiceKeepExisting:
			result.Action = "detection dismissed, no transaction deleted"
		case models.ChoiceUseNew:
			result.Action = "preference recorded, no transaction deleted"
		}
	} else {
		// Import-time detection: the "new" side exists only as a frozen
		// snapshot and may need to be persisted now.
		switch choice {
		case models.ChoiceMaintainBoth, models.ChoiceUseNew:
			tx := rec.CandidateSnapshot.ToInput().ToTransaction(userID)
			if err := s.store.Save(&tx); err != nil {
				return nil, fmt.Errorf("error persisting candidate transaction for pending duplicate %d: %w", pendingID, err)
			}
			s.candidateCache.Delete(fmt.Sprintf(ckRecentCandidates, userID))
			result.CreatedTransaction = &tx
			if choice == models.ChoiceMaintainBoth {
				result.Action = "candidate persisted alongside existing transaction"
			} else {
				result.Action = "candidate persisted"
			}
		case models.ChoiceKeepExisting:
			result.Action = "candidate discarded"
		}
	}

	if err := model.MarkPendingResolved(database.DB, pendingID, userID); err != nil {
		return nil, fmt.Errorf("error marking pending duplicate %d resolved: %w", pendingID, err)
	}
	logger.L.Info("Resolved pending duplicate", "userID", userID, "pendingID", pendingID, "choice", choice, "action", result.Action)
	return result, nil
}

// BulkResolve applies Resolve to each id independently; one failure never
// aborts the batch.
func (s *pendingServiceImpl) BulkResolve(ids []int64, userID int64, choice string) (*BulkOperationResult, error) {
	result := &BulkOperationResult{Requested: len(ids)}
	for _, id := range ids {
		if _, err := s.Resolve(id, userID, choice); err != nil {
			result.Failed++
			result.Failures = append(result.Failures, BulkItemError{ID: id, Error: err.Error()})
			continue
		}
		result.Succeeded++
	}
	return result, nil
}

// BulkDelete applies Delete to each id independently.
func (s *pendingServiceImpl) BulkDelete(ids []int64, userID int64) (*BulkOperationResult, error) {
	result := &BulkOperationResult{Requested: len(ids)}
	for _, id := range ids {
		if err := s.Delete(id, userID); err != nil {
			result.Failed++
			result.Failures = append(result.Failures, BulkItemError{ID: id, Error: err.Error()})
			continue
		}
		result.Succeeded++
	}
	return result, nil
}
