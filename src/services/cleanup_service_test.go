// backend/src/services/cleanup_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/moneyfolio/backend/src/database"
	"github.com/username/moneyfolio/backend/src/model"
	"github.com/username/moneyfolio/backend/src/models"
)

func TestCleanupPreservesEarliestCreated(t *testing.T) {
	env := newTestEnv(t)
	original := insertTxAt(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"), "2025-03-10 09:00:00")
	duplicate := insertTxAt(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"), "2025-03-11 09:00:00")
	unrelated := insertTxAt(t, manualExpense(1, "Gym Membership", 29.99, "2025-03-10"), "2025-03-10 09:30:00")

	report, err := env.cleanup.CleanupExactDuplicates(1)
	require.NoError(t, err)

	assert.Equal(t, 3, report.TransactionsScanned)
	assert.Equal(t, 1, report.DuplicateGroupsFound)
	assert.Equal(t, 1, report.TransactionsRemoved)
	assert.Equal(t, 1, report.GroupsPreserved)

	_, err = env.store.GetByID(original.ID, 1)
	assert.NoError(t, err, "the earliest-created row survives")
	_, err = env.store.GetByID(duplicate.ID, 1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.store.GetByID(unrelated.ID, 1)
	assert.NoError(t, err)
}

func TestCleanupRepointsLedgerReferences(t *testing.T) {
	env := newTestEnv(t)
	original := insertTxAt(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"), "2025-03-10 09:00:00")
	duplicate := insertTxAt(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"), "2025-03-11 09:00:00")

	// A pending record whose existing side references the row about to be
	// removed. Its reference must move to the preserved row, never dangle.
	rec, err := env.pending.Create(duplicate, expenseInput("Grocery Store", 45.30, "2025-03-11"), 1, "import-check")
	require.NoError(t, err)

	_, err = env.cleanup.CleanupExactDuplicates(1)
	require.NoError(t, err)

	stored, err := model.GetPendingDuplicate(database.DB, rec.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, stored.ExistingTransactionID)
	assert.Equal(t, original.ID, *stored.ExistingTransactionID)
}

func TestCleanupIgnoresNearDuplicates(t *testing.T) {
	env := newTestEnv(t)
	insertTxAt(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"), "2025-03-10 09:00:00")
	insertTxAt(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-11"), "2025-03-11 09:00:00")
	insertTxAt(t, manualExpense(1, "Grocery store", 45.30, "2025-03-10"), "2025-03-10 10:00:00")

	report, err := env.cleanup.CleanupExactDuplicates(1)
	require.NoError(t, err)

	// Cleanup is destructive, so only byte-identical rows qualify. Near
	// matches stay and remain the batch scanner's business.
	assert.Equal(t, 0, report.DuplicateGroupsFound)
	assert.Equal(t, 0, report.TransactionsRemoved)
	assert.Equal(t, 3, transactionCount(t, 1))
}

func TestCleanupRequiresExactAmounts(t *testing.T) {
	env := newTestEnv(t)
	insertTxAt(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"), "2025-03-10 09:00:00")
	insertTxAt(t, manualExpense(1, "Grocery Store", 45.3001, "2025-03-10"), "2025-03-11 09:00:00")

	report, err := env.cleanup.CleanupExactDuplicates(1)
	require.NoError(t, err)

	// Stored magnitudes that differ by less than half a cent still differ.
	assert.Equal(t, 0, report.TransactionsRemoved)
	assert.Equal(t, 2, transactionCount(t, 1))
}

func TestCleanupKeepsOppositeDirections(t *testing.T) {
	env := newTestEnv(t)
	charge := manualExpense(1, "Store Adjustment", 45.30, "2025-03-10")
	refund := manualExpense(1, "Store Adjustment", 45.30, "2025-03-10")
	refund.Direction = models.DirectionIncome
	insertTxAt(t, charge, "2025-03-10 09:00:00")
	insertTxAt(t, refund, "2025-03-10 10:00:00")

	report, err := env.cleanup.CleanupExactDuplicates(1)
	require.NoError(t, err)

	assert.Equal(t, 0, report.TransactionsRemoved, "a charge and its refund are not duplicates")
	assert.Equal(t, 2, transactionCount(t, 1))
}

func TestCleanupSkipsRowsWithoutDates(t *testing.T) {
	env := newTestEnv(t)
	insertTxAt(t, manualExpense(1, "Grocery Store", 45.30, ""), "2025-03-10 09:00:00")
	insertTxAt(t, manualExpense(1, "Grocery Store", 45.30, ""), "2025-03-11 09:00:00")

	report, err := env.cleanup.CleanupExactDuplicates(1)
	require.NoError(t, err)

	assert.Equal(t, 0, report.TransactionsRemoved)
	assert.Equal(t, 2, transactionCount(t, 1))
}

func TestCleanupScopedToUser(t *testing.T) {
	env := newTestEnv(t)
	insertTxAt(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"), "2025-03-10 09:00:00")
	insertTxAt(t, manualExpense(2, "Grocery Store", 45.30, "2025-03-10"), "2025-03-11 09:00:00")

	report, err := env.cleanup.CleanupExactDuplicates(1)
	require.NoError(t, err)

	assert.Equal(t, 0, report.TransactionsRemoved, "identical rows across users are independent")
	assert.Equal(t, 1, transactionCount(t, 2))
}

func TestCleanupLargerGroup(t *testing.T) {
	env := newTestEnv(t)
	original := insertTxAt(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"), "2025-03-10 09:00:00")
	insertTxAt(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"), "2025-03-11 09:00:00")
	insertTxAt(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"), "2025-03-12 09:00:00")

	report, err := env.cleanup.CleanupExactDuplicates(1)
	require.NoError(t, err)

	assert.Equal(t, 1, report.DuplicateGroupsFound)
	assert.Equal(t, 2, report.TransactionsRemoved)
	assert.Equal(t, 1, transactionCount(t, 1))
	_, err = env.store.GetByID(original.ID, 1)
	assert.NoError(t, err)
}
