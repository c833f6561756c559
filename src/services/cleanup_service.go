// backend/src/services/cleanup_service.go
package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/moneyfolio/backend/src/database"
	"github.com/username/moneyfolio/backend/src/logger"
	"github.com/username/moneyfolio/backend/src/model"
	"github.com/username/moneyfolio/backend/src/models"
)

type cleanupServiceImpl struct {
	store          TransactionStore
	pendingService PendingDuplicateService
	candidateCache *cache.Cache
}

func NewCleanupService(store TransactionStore, pendingService PendingDuplicateService, candidateCache *cache.Cache) CleanupService {
	return &cleanupServiceImpl{
		store:          store,
		pendingService: pendingService,
		candidateCache: candidateCache,
	}
}

// CleanupExactDuplicates permanently merges 100%-identical rows for one user:
// equal signed amounts, equal directions, byte-identical descriptions and the
// same calendar day. The earliest-created row of each cluster is preserved;
// every other row has its ledger references re-pointed to the preserved row
// and is then deleted. Individual failures are logged and skipped so one bad
// row does not abort the run.
func (s *cleanupServiceImpl) CleanupExactDuplicates(userID int64) (*CleanupReport, error) {
	start := time.Now()
	txs, err := s.store.FindAll(userID)
	if err != nil {
		return nil, fmt.Errorf("error loading transactions for cleanup of user %d: %w", userID, err)
	}

	report := &CleanupReport{TransactionsScanned: len(txs)}

	clusters := make(map[string][]models.Transaction)
	var order []string
	for _, tx := range txs {
		// Rows without an execution date cannot share a calendar day.
		if tx.ExecutionDate == "" {
			continue
		}
		// %g keys on the exact float value: sub-cent drift between stored
		// magnitudes is the scanner's business, not the destructive merge's.
		key := fmt.Sprintf("%g|%s|%s|%s", tx.SignedAmount(), tx.Direction, tx.Description, tx.ExecutionDate)
		if _, seen := clusters[key]; !seen {
			order = append(order, key)
		}
		clusters[key] = append(clusters[key], tx)
	}

	for _, key := range order {
		cluster := clusters[key]
		if len(cluster) < 2 {
			continue
		}
		report.DuplicateGroupsFound++

		sort.SliceStable(cluster, func(i, j int) bool {
			if cluster[i].CreatedAt != cluster[j].CreatedAt {
				return cluster[i].CreatedAt < cluster[j].CreatedAt
			}
			return cluster[i].ID < cluster[j].ID
		})
		preserved := cluster[0]
		report.GroupsPreserved++

		for _, victim := range cluster[1:] {
			s.repointLedgerReferences(victim.ID, preserved.ID, userID)
			if err := s.store.Delete(victim.ID, userID); err != nil {
				logger.L.Error("Failed to delete duplicate transaction during cleanup",
					"userID", userID, "transactionID", victim.ID, "preservedID", preserved.ID, "error", err)
				continue
			}
			report.TransactionsRemoved++
		}
	}

	s.candidateCache.Delete(fmt.Sprintf(ckRecentCandidates, userID))
	report.ExecutionTime = time.Since(start).String()
	logger.L.Info("Exact-duplicate cleanup finished",
		"userID", userID,
		"scanned", report.TransactionsScanned,
		"groups", report.DuplicateGroupsFound,
		"removed", report.TransactionsRemoved,
		"duration", report.ExecutionTime)
	return report, nil
}

// repointLedgerReferences moves every pending record referencing the victim
// row onto the preserved row before the victim is deleted, continuing past
// individual failures.
func (s *cleanupServiceImpl) repointLedgerReferences(victimID, preservedID, userID int64) {
	records, err := s.pendingService.FindByExistingTransactionID(victimID)
	if err != nil {
		logger.L.Error("Failed to look up ledger references during cleanup",
			"userID", userID, "transactionID", victimID, "error", err)
		return
	}
	for _, rec := range records {
		newID := preservedID
		upd := model.PendingDuplicateUpdate{ExistingTransactionID: &newID}
		if err := model.UpdatePendingDuplicate(database.DB, rec.ID, rec.UserID, upd); err != nil {
			logger.L.Error("Failed to re-point ledger reference during cleanup",
				"userID", userID, "pendingID", rec.ID, "from", victimID, "to", preservedID, "error", err)
		}
	}
}
