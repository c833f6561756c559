// backend/src/services/scan_service.go
package services

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/username/moneyfolio/backend/src/database"
	"github.com/username/moneyfolio/backend/src/logger"
	"github.com/username/moneyfolio/backend/src/model"
	"github.com/username/moneyfolio/backend/src/models"
	"github.com/username/moneyfolio/backend/src/processors"
	"github.com/username/moneyfolio/backend/src/utils"
)

// ScanState is the explicit running/not-running guard for the batch scanner.
// Scope is this process only: a clustered deployment needs an external lock
// (e.g. a lease row) instead.
type ScanState struct {
	mu      sync.Mutex
	running bool
}

func NewScanState() *ScanState {
	return &ScanState{}
}

func (st *ScanState) tryStart() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.running {
		return false
	}
	st.running = true
	return true
}

func (st *ScanState) finish() {
	st.mu.Lock()
	st.running = false
	st.mu.Unlock()
}

// IsRunning reports whether a scan is currently in flight.
func (st *ScanState) IsRunning() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.running
}

// ScanConfig tunes the batch scanner's grouping passes.
type ScanConfig struct {
	// HeuristicSource restricts the source-heuristic pass to one
	// integration source (same-day duplicates from an aggregator feed).
	HeuristicSource string
	// FuzzyWordOverlapPercent is the word-overlap cutoff for the fuzzy
	// description pass.
	FuzzyWordOverlapPercent float64
	// MaxDayGap bounds how far apart two execution dates may be for the
	// fuzzy pass to pair them. Keeps recurring monthly charges out.
	MaxDayGap int
}

type scanServiceImpl struct {
	store          TransactionStore
	pendingService PendingDuplicateService
	state          *ScanState
	cfg            ScanConfig
}

func NewScanService(store TransactionStore, pendingService PendingDuplicateService, state *ScanState, cfg ScanConfig) ScanService {
	return &scanServiceImpl{
		store:          store,
		pendingService: pendingService,
		state:          state,
		cfg:            cfg,
	}
}

func (s *scanServiceImpl) Status() ScanStatus {
	return ScanStatus{IsRunning: s.state.IsRunning()}
}

// DetectDuplicates sweeps the full ledger of one user (or all users when
// userID is nil), groups transactions via the four matching passes and feeds
// new groups into the pending duplicate ledger. A second concurrent run is
// refused; repeated runs over an unchanged ledger create nothing new.
func (s *scanServiceImpl) DetectDuplicates(userID *int64) (*ScanSummary, error) {
	if !s.state.tryStart() {
		return nil, ErrScanAlreadyRunning
	}
	defer s.state.finish()

	start := time.Now()
	runID := uuid.New().String()

	var userIDs []int64
	if userID != nil {
		userIDs = []int64{*userID}
	} else {
		var err error
		userIDs, err = s.store.ListUserIDs()
		if err != nil {
			return nil, fmt.Errorf("error listing users for duplicate scan: %w", err)
		}
	}

	summary := &ScanSummary{RunID: runID}
	logger.L.Info("Batch duplicate scan starting", "runID", runID, "users", len(userIDs))
	for _, uid := range userIDs {
		found, created, err := s.scanUser(uid, runID)
		if err != nil {
			// One user's failure must not abort the sweep over the rest.
			logger.L.Error("Duplicate scan failed for user", "runID", runID, "userID", uid, "error", err)
			continue
		}
		summary.PotentialDuplicatesFound += found
		summary.PendingDuplicatesCreated += created
		summary.UsersProcessed++
	}
	summary.ExecutionTime = time.Since(start).String()
	logger.L.Info("Batch duplicate scan finished",
		"runID", runID,
		"usersProcessed", summary.UsersProcessed,
		"found", summary.PotentialDuplicatesFound,
		"created", summary.PendingDuplicatesCreated,
		"duration", summary.ExecutionTime)
	return summary, nil
}

// scanGroup is one discovered cluster: the earliest-created member is the
// original, the rest are duplicates.
type scanGroup struct {
	members []models.Transaction
	tier    string
}

func (s *scanServiceImpl) scanUser(userID int64, runID string) (found, created int, err error) {
	txs, err := s.store.FindAll(userID)
	if err != nil {
		return 0, 0, err
	}
	if len(txs) < 2 {
		return 0, 0, nil
	}

	// The four passes run in fixed order; a transaction claimed by an
	// earlier pass is excluded from later, looser passes.
	claimed := make(map[int64]bool)
	var groups []scanGroup
	groups = append(groups, s.passExactMatch(txs, claimed)...)
	groups = append(groups, s.passAmountDate(txs, claimed)...)
	groups = append(groups, s.passSourceHeuristic(txs, claimed)...)
	groups = append(groups, s.passFuzzyDescription(txs, claimed)...)

	for _, group := range groups {
		sort.SliceStable(group.members, func(i, j int) bool {
			if group.members[i].CreatedAt != group.members[j].CreatedAt {
				return group.members[i].CreatedAt < group.members[j].CreatedAt
			}
			return group.members[i].ID < group.members[j].ID
		})
		original := group.members[0]
		for _, duplicate := range group.members[1:] {
			found++
			exists, err := model.HasRecordForPair(database.DB, userID, original.ID, duplicate.ID)
			if err != nil {
				logger.L.Error("Failed idempotency check for duplicate pair",
					"runID", runID, "userID", userID, "originalID", original.ID, "duplicateID", duplicate.ID, "error", err)
				continue
			}
			if exists {
				// Pair already pending or already resolved; repeated
				// scans must not resurrect it.
				continue
			}
			sourceRef := fmt.Sprintf("batch-scan run=%s tier=%s at=%s",
				runID, group.tier, time.Now().UTC().Format(time.RFC3339))
			if _, err := s.pendingService.CreatePostScan(original, duplicate, userID, group.tier, sourceRef); err != nil {
				logger.L.Error("Failed to create pending duplicate from scan",
					"runID", runID, "userID", userID, "originalID", original.ID, "duplicateID", duplicate.ID, "error", err)
				continue
			}
			created++
		}
	}
	return found, created, nil
}

// passExactMatch groups on amount, exact description, direction, calendar day
// and source.
func (s *scanServiceImpl) passExactMatch(txs []models.Transaction, claimed map[int64]bool) []scanGroup {
	return collectGroups(txs, claimed, models.TierHigh, func(tx models.Transaction) (string, bool) {
		if tx.ExecutionDate == "" {
			return "", false
		}
		return fmt.Sprintf("%.2f|%s|%s|%s|%s", tx.Amount, tx.Description, tx.Direction, tx.ExecutionDate, tx.Source), true
	}, nil)
}

// passAmountDate groups on normalized signed amount and calendar day, keeping
// only groups that span genuinely different descriptions. Punctuation or case
// variants of one description are left for the later passes.
func (s *scanServiceImpl) passAmountDate(txs []models.Transaction, claimed map[int64]bool) []scanGroup {
	return collectGroups(txs, claimed, models.TierMedium, func(tx models.Transaction) (string, bool) {
		if tx.ExecutionDate == "" {
			return "", false
		}
		return fmt.Sprintf("%.2f|%s", tx.SignedAmount(), tx.ExecutionDate), true
	}, func(members []models.Transaction) bool {
		distinct := make(map[string]bool)
		for _, m := range members {
			distinct[processors.NormalizeDescription(m.Description)] = true
		}
		return len(distinct) >= 2
	})
}

// passSourceHeuristic is restricted to one integration source: same
// normalized amount on the same day, no cross-day slack.
func (s *scanServiceImpl) passSourceHeuristic(txs []models.Transaction, claimed map[int64]bool) []scanGroup {
	return collectGroups(txs, claimed, models.TierHigh, func(tx models.Transaction) (string, bool) {
		if tx.ExecutionDate == "" || tx.Source != s.cfg.HeuristicSource {
			return "", false
		}
		return fmt.Sprintf("%.2f|%s", tx.SignedAmount(), tx.ExecutionDate), true
	}, nil)
}

// passFuzzyDescription is the loosest pass: same-amount transactions within
// MaxDayGap days of each other whose descriptions are judged similar
// (containment after normalization, or the configured word-overlap ratio).
// Pairing across calendar days is deliberate: every same-day combination is
// already claimed by the stricter passes, and MaxDayGap keeps recurring
// charges out.
func (s *scanServiceImpl) passFuzzyDescription(txs []models.Transaction, claimed map[int64]bool) []scanGroup {
	buckets, order := bucketize(txs, claimed, func(tx models.Transaction) (string, bool) {
		if tx.ExecutionDate == "" {
			return "", false
		}
		return fmt.Sprintf("%.2f", tx.SignedAmount()), true
	})

	var groups []scanGroup
	for _, key := range order {
		bucket := buckets[key]
		used := make(map[int64]bool)
		for i, seed := range bucket {
			if used[seed.ID] || claimed[seed.ID] {
				continue
			}
			cluster := []models.Transaction{seed}
			for _, other := range bucket[i+1:] {
				if used[other.ID] || claimed[other.ID] {
					continue
				}
				if !withinDayGap(seed, other, s.cfg.MaxDayGap) {
					continue
				}
				if processors.DescriptionsSimilar(seed.Description, other.Description, s.cfg.FuzzyWordOverlapPercent) {
					cluster = append(cluster, other)
				}
			}
			if len(cluster) < 2 {
				continue
			}
			for _, member := range cluster {
				used[member.ID] = true
				claimed[member.ID] = true
			}
			groups = append(groups, scanGroup{members: cluster, tier: models.TierMedium})
		}
	}
	return groups
}

// collectGroups runs one key-based grouping pass over the unclaimed
// transactions. keep, when non-nil, filters candidate groups before they are
// claimed. Bucket iteration follows first-seen order so runs are
// deterministic.
func collectGroups(
	txs []models.Transaction,
	claimed map[int64]bool,
	tier string,
	keyFn func(models.Transaction) (string, bool),
	keep func([]models.Transaction) bool,
) []scanGroup {
	buckets, order := bucketize(txs, claimed, keyFn)
	var groups []scanGroup
	for _, key := range order {
		members := buckets[key]
		if len(members) < 2 {
			continue
		}
		if keep != nil && !keep(members) {
			continue
		}
		for _, member := range members {
			claimed[member.ID] = true
		}
		groups = append(groups, scanGroup{members: members, tier: tier})
	}
	return groups
}

func withinDayGap(a, b models.Transaction, maxGap int) bool {
	dayA, okA := utils.ParseDay(a.ExecutionDate)
	dayB, okB := utils.ParseDay(b.ExecutionDate)
	if !okA || !okB {
		return false
	}
	return utils.DayDiff(dayA, dayB) <= maxGap
}

func bucketize(
	txs []models.Transaction,
	claimed map[int64]bool,
	keyFn func(models.Transaction) (string, bool),
) (map[string][]models.Transaction, []string) {
	buckets := make(map[string][]models.Transaction)
	var order []string
	for _, tx := range txs {
		if claimed[tx.ID] {
			continue
		}
		key, ok := keyFn(tx)
		if !ok {
			continue
		}
		if _, seen := buckets[key]; !seen {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], tx)
	}
	return buckets, order
}
