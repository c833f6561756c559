// backend/src/services/duplicate_service.go
package services

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/moneyfolio/backend/src/logger"
	"github.com/username/moneyfolio/backend/src/models"
	"github.com/username/moneyfolio/backend/src/processors"
	"github.com/username/moneyfolio/backend/src/utils"
)

const (
	ckRecentCandidates     = "dup_recent_candidates_user_%d"
	DefaultCacheExpiration = 5 * time.Minute
	CacheCleanupInterval   = 15 * time.Minute
)

// DuplicateThresholds are the classifier's decision cutoffs on the 0-100
// score. Empirically tuned; loaded from config rather than hard-coded.
type DuplicateThresholds struct {
	Prevent int // score >= Prevent: silently drop, audit log
	Pending int // score >= Pending: create a pending record instead of persisting
	Signal  int // score >= Signal: soft duplicate signal only
}

type duplicateServiceImpl struct {
	store          TransactionStore
	pendingService PendingDuplicateService
	scorer         *processors.SimilarityScorer
	candidateCache *cache.Cache
	thresholds     DuplicateThresholds
}

func NewDuplicateService(
	store TransactionStore,
	pendingService PendingDuplicateService,
	scorer *processors.SimilarityScorer,
	candidateCache *cache.Cache,
	thresholds DuplicateThresholds,
) DuplicateService {
	return &duplicateServiceImpl{
		store:          store,
		pendingService: pendingService,
		scorer:         scorer,
		candidateCache: candidateCache,
		thresholds:     thresholds,
	}
}

// CheckForDuplicateBeforeCreation scores the candidate against the user's
// recent transactions and returns the best match with a verdict. The scoring
// loop never touches the store mid-calculation, so the whole check runs
// against one consistent candidate snapshot.
func (s *duplicateServiceImpl) CheckForDuplicateBeforeCreation(candidate models.TransactionInput, userID int64) (*DuplicateCheckResult, error) {
	candidates, err := s.recentCandidates(userID)
	if err != nil {
		return nil, fmt.Errorf("error loading candidate transactions for user %d: %w", userID, err)
	}

	var bestMatch *models.Transaction
	bestScore := -1
	for i := range candidates {
		score := s.scorer.Score(candidate, candidates[i])
		// Strictly greater keeps the first candidate on ties, which is
		// deterministic because the store order is stable per run.
		if score > bestScore {
			bestScore = score
			bestMatch = &candidates[i]
		}
	}
	if bestScore < 0 {
		bestScore = 0
	}

	result := &DuplicateCheckResult{
		Score:          bestScore,
		ConfidenceBand: confidenceBand(bestScore),
	}
	switch {
	case bestScore >= s.thresholds.Prevent:
		result.IsDuplicate = true
		result.ShouldPrevent = true
	case bestScore >= s.thresholds.Pending:
		result.IsDuplicate = true
		result.ShouldCreatePending = true
	case bestScore >= s.thresholds.Signal:
		result.IsDuplicate = true
	}
	if result.IsDuplicate {
		result.BestMatch = bestMatch
		result.Reason = matchReason(candidate, *bestMatch)
	} else if len(candidates) == 0 {
		result.Reason = "no recent transactions to compare against"
	} else {
		result.Reason = fmt.Sprintf("no close match among %d recent transactions", len(candidates))
	}
	return result, nil
}

// CreateWithDuplicateCheck is the entry point the import and manual-entry
// collaborators call. It obeys the classifier verdict: prevent drops the
// candidate with an audit log entry, pending freezes it on the ledger and
// surfaces the existing transaction as the tentative result, anything else
// persists normally.
func (s *duplicateServiceImpl) CreateWithDuplicateCheck(candidate models.TransactionInput, userID int64) (*CreateTransactionResult, error) {
	check, err := s.CheckForDuplicateBeforeCreation(candidate, userID)
	if err != nil {
		return nil, err
	}

	if check.ShouldPrevent {
		// Audit trail only. The caller reports one fewer created
		// transaction; this is never surfaced as an error.
		logger.L.Info("Prevented duplicate transaction",
			"userID", userID,
			"matchedTransactionID", check.BestMatch.ID,
			"score", check.Score,
			"reason", check.Reason)
		return &CreateTransactionResult{
			Existing:  check.BestMatch,
			Prevented: true,
			Duplicate: check,
		}, nil
	}

	if check.ShouldCreatePending {
		sourceRef := fmt.Sprintf("import-check score=%d band=%s", check.Score, check.ConfidenceBand)
		pending, err := s.pendingService.Create(*check.BestMatch, candidate, userID, sourceRef)
		if err != nil {
			return nil, fmt.Errorf("error creating pending duplicate for user %d: %w", userID, err)
		}
		return &CreateTransactionResult{
			Existing:  check.BestMatch,
			Pending:   pending,
			Duplicate: check,
		}, nil
	}

	tx := candidate.ToTransaction(userID)
	if err := s.store.Save(&tx); err != nil {
		return nil, err
	}
	s.InvalidateUserCache(userID)
	return &CreateTransactionResult{Created: &tx, Duplicate: check}, nil
}

// InvalidateUserCache drops the cached candidate window after the user's
// transaction set changes.
func (s *duplicateServiceImpl) InvalidateUserCache(userID int64) {
	s.candidateCache.Delete(fmt.Sprintf(ckRecentCandidates, userID))
}

func (s *duplicateServiceImpl) recentCandidates(userID int64) ([]models.Transaction, error) {
	cacheKey := fmt.Sprintf(ckRecentCandidates, userID)
	if cached, found := s.candidateCache.Get(cacheKey); found {
		return cached.([]models.Transaction), nil
	}
	candidates, err := s.store.FindRecent(userID)
	if err != nil {
		return nil, err
	}
	s.candidateCache.Set(cacheKey, candidates, DefaultCacheExpiration)
	return candidates, nil
}

// confidenceBand is purely descriptive, for UI and audit output.
func confidenceBand(score int) string {
	switch {
	case score == 100:
		return "exact match"
	case score >= 90:
		return "very high"
	case score >= 80:
		return "high"
	case score >= 70:
		return "medium-high"
	case score >= 60:
		return "medium"
	default:
		return "low"
	}
}

// matchReason names the dimensions that matched for the best pair.
func matchReason(candidate models.TransactionInput, matched models.Transaction) string {
	var parts []string
	if math.Abs(candidate.SignedAmount()-matched.SignedAmount()) <= 0.01 {
		parts = append(parts, "same amount")
	}
	if candidate.Direction == matched.Direction {
		parts = append(parts, "same type")
	}
	ratio := processors.DescriptionSimilarity(candidate.Description, matched.Description)
	switch {
	case ratio >= 0.999:
		parts = append(parts, "identical description")
	case ratio >= 0.6:
		parts = append(parts, "similar description")
	}
	candDay, candOK := utils.ParseDay(candidate.ExecutionDate)
	matchedDay, matchedOK := utils.ParseDay(matched.ExecutionDate)
	if candOK && matchedOK {
		gap := utils.DayDiff(candDay, matchedDay)
		if gap == 0 {
			parts = append(parts, "same day")
		} else {
			parts = append(parts, fmt.Sprintf("%d day(s) apart", gap))
		}
	}
	if len(parts) == 0 {
		return "partial match on weighted dimensions"
	}
	return strings.Join(parts, ", ")
}
