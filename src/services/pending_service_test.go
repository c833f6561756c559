// backend/src/services/pending_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/moneyfolio/backend/src/database"
	"github.com/username/moneyfolio/backend/src/model"
	"github.com/username/moneyfolio/backend/src/models"
)

func TestPendingListNewestFirstWithContext(t *testing.T) {
	env := newTestEnv(t)
	existing := insertTx(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"))

	first, err := env.pending.Create(existing, expenseInput("Grocery Store", 45.30, "2025-03-11"), 1, "import-check")
	require.NoError(t, err)
	second, err := env.pending.Create(existing, expenseInput("Grocery Store", 45.31, "2025-03-11"), 1, "import-check")
	require.NoError(t, err)

	records, err := env.pending.List(1)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, second.ID, records[0].ID)
	assert.Equal(t, first.ID, records[1].ID)
	require.NotNil(t, records[0].ExistingTransaction)
	assert.Equal(t, existing.ID, records[0].ExistingTransaction.ID)
}

func TestPendingListScopedToUser(t *testing.T) {
	env := newTestEnv(t)
	existing := insertTx(t, manualExpense(2, "Grocery Store", 45.30, "2025-03-10"))
	_, err := env.pending.Create(existing, expenseInput("Grocery Store", 45.30, "2025-03-11"), 2, "import-check")
	require.NoError(t, err)

	records, err := env.pending.List(1)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestPendingListOmitsResolved(t *testing.T) {
	env := newTestEnv(t)
	existing := insertTx(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"))
	rec, err := env.pending.Create(existing, expenseInput("Grocery Store", 45.30, "2025-03-11"), 1, "import-check")
	require.NoError(t, err)

	_, err = env.pending.Resolve(rec.ID, 1, models.ChoiceKeepExisting)
	require.NoError(t, err)

	records, err := env.pending.List(1)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestPendingUpdateSourceReference(t *testing.T) {
	env := newTestEnv(t)
	existing := insertTx(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"))
	rec, err := env.pending.Create(existing, expenseInput("Grocery Store", 45.30, "2025-03-11"), 1, "import-check")
	require.NoError(t, err)

	ref := "reviewed by support"
	require.NoError(t, env.pending.Update(rec.ID, 1, model.PendingDuplicateUpdate{SourceReference: &ref}))

	stored, err := model.GetPendingDuplicate(database.DB, rec.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, ref, stored.SourceReference)
}

func TestPendingUpdateWrongUser(t *testing.T) {
	env := newTestEnv(t)
	existing := insertTx(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"))
	rec, err := env.pending.Create(existing, expenseInput("Grocery Store", 45.30, "2025-03-11"), 1, "import-check")
	require.NoError(t, err)

	ref := "not yours"
	err = env.pending.Update(rec.ID, 2, model.PendingDuplicateUpdate{SourceReference: &ref})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPendingDeleteNotFound(t *testing.T) {
	env := newTestEnv(t)
	assert.ErrorIs(t, env.pending.Delete(9999, 1), ErrNotFound)
}

func TestResolveInvalidChoice(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.pending.Resolve(1, 1, "delete-everything")
	assert.ErrorIs(t, err, ErrInvalidChoice)
}

func TestResolveNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.pending.Resolve(9999, 1, models.ChoiceKeepExisting)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveImportTimeKeepExisting(t *testing.T) {
	env := newTestEnv(t)
	existing := insertTx(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"))
	rec, err := env.pending.Create(existing, expenseInput("Grocery Store", 45.30, "2025-03-11"), 1, "import-check")
	require.NoError(t, err)

	result, err := env.pending.Resolve(rec.ID, 1, models.ChoiceKeepExisting)
	require.NoError(t, err)

	// The candidate only ever existed as a snapshot; discarding it must not
	// create or delete anything.
	assert.Nil(t, result.CreatedTransaction)
	assert.Equal(t, 1, transactionCount(t, 1))

	stored, err := model.GetPendingDuplicate(database.DB, rec.ID, 1)
	require.NoError(t, err)
	assert.True(t, stored.Resolved)
}

func TestResolveImportTimeUseNew(t *testing.T) {
	env := newTestEnv(t)
	existing := insertTx(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"))
	candidate := expenseInput("Grocery Store", 45.35, "2025-03-11")
	rec, err := env.pending.Create(existing, candidate, 1, "import-check")
	require.NoError(t, err)

	result, err := env.pending.Resolve(rec.ID, 1, models.ChoiceUseNew)
	require.NoError(t, err)

	require.NotNil(t, result.CreatedTransaction)
	assert.Equal(t, candidate.Description, result.CreatedTransaction.Description)
	assert.Equal(t, candidate.Amount, result.CreatedTransaction.Amount)
	assert.Equal(t, candidate.ExecutionDate, result.CreatedTransaction.ExecutionDate)

	// The existing transaction is never deleted by a resolution.
	kept, err := env.store.GetByID(existing.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, kept.ID)
	assert.Equal(t, 2, transactionCount(t, 1))
}

func TestResolveImportTimeMaintainBoth(t *testing.T) {
	env := newTestEnv(t)
	existing := insertTx(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"))
	rec, err := env.pending.Create(existing, expenseInput("Grocery Store", 45.30, "2025-03-11"), 1, "import-check")
	require.NoError(t, err)

	result, err := env.pending.Resolve(rec.ID, 1, models.ChoiceMaintainBoth)
	require.NoError(t, err)

	require.NotNil(t, result.CreatedTransaction)
	assert.Equal(t, 2, transactionCount(t, 1))
}

func TestResolvePostScanNeverTouchesTransactions(t *testing.T) {
	for _, choice := range []string{models.ChoiceMaintainBoth, models.ChoiceKeepExisting, models.ChoiceUseNew} {
		t.Run(choice, func(t *testing.T) {
			env := newTestEnv(t)
			existing := insertTx(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"))
			duplicate := insertTx(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"))
			rec, err := env.pending.CreatePostScan(existing, duplicate, 1, models.TierHigh, "batch-scan")
			require.NoError(t, err)

			result, err := env.pending.Resolve(rec.ID, 1, choice)
			require.NoError(t, err)

			// Both sides are live ledger rows; resolution only records the
			// decision and must leave them alone.
			assert.Nil(t, result.CreatedTransaction)
			assert.Equal(t, 2, transactionCount(t, 1))

			stored, err := model.GetPendingDuplicate(database.DB, rec.ID, 1)
			require.NoError(t, err)
			assert.True(t, stored.Resolved)
		})
	}
}

func TestResolveTwiceFails(t *testing.T) {
	env := newTestEnv(t)
	existing := insertTx(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"))
	rec, err := env.pending.Create(existing, expenseInput("Grocery Store", 45.30, "2025-03-11"), 1, "import-check")
	require.NoError(t, err)

	_, err = env.pending.Resolve(rec.ID, 1, models.ChoiceUseNew)
	require.NoError(t, err)

	_, err = env.pending.Resolve(rec.ID, 1, models.ChoiceUseNew)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
	assert.Equal(t, 2, transactionCount(t, 1), "a replayed resolution must not persist the candidate again")
}

func TestResolveUsesFrozenSnapshot(t *testing.T) {
	env := newTestEnv(t)
	existing := insertTx(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"))
	candidate := expenseInput("Grocery Store", 45.30, "2025-03-11")
	rec, err := env.pending.Create(existing, candidate, 1, "import-check")
	require.NoError(t, err)

	// Deleting the existing row must not break resolution: the ledger
	// record carries its own frozen snapshots.
	require.NoError(t, env.store.Delete(existing.ID, 1))

	result, err := env.pending.Resolve(rec.ID, 1, models.ChoiceUseNew)
	require.NoError(t, err)
	require.NotNil(t, result.CreatedTransaction)
	assert.Equal(t, candidate.Description, result.CreatedTransaction.Description)
}

func TestResolveFailedPersistLeavesUnresolved(t *testing.T) {
	env := newTestEnv(t)
	existing := insertTx(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"))

	// A corrupt snapshot whose magnitude violates the schema's non-negative
	// check, so persisting the candidate during resolution must fail.
	corrupt := expenseInput("Grocery Store", -45.30, "2025-03-11")
	rec, err := env.pending.Create(existing, corrupt, 1, "import-check")
	require.NoError(t, err)

	_, err = env.pending.Resolve(rec.ID, 1, models.ChoiceUseNew)
	require.Error(t, err)

	// The error propagates and the record stays unresolved; nothing was
	// half-applied.
	stored, err := model.GetPendingDuplicate(database.DB, rec.ID, 1)
	require.NoError(t, err)
	assert.False(t, stored.Resolved)
	assert.Equal(t, 1, transactionCount(t, 1))

	// A non-persisting choice still resolves the record afterwards.
	_, err = env.pending.Resolve(rec.ID, 1, models.ChoiceKeepExisting)
	require.NoError(t, err)
}

func TestBulkResolvePartialFailure(t *testing.T) {
	env := newTestEnv(t)
	existing := insertTx(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"))
	recA, err := env.pending.Create(existing, expenseInput("Grocery Store", 45.30, "2025-03-11"), 1, "import-check")
	require.NoError(t, err)
	recB, err := env.pending.Create(existing, expenseInput("Grocery Store", 45.31, "2025-03-11"), 1, "import-check")
	require.NoError(t, err)

	result, err := env.pending.BulkResolve([]int64{recA.ID, 9999, recB.ID}, 1, models.ChoiceKeepExisting)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Requested)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, int64(9999), result.Failures[0].ID)

	// The failure in the middle never aborts the batch.
	for _, id := range []int64{recA.ID, recB.ID} {
		stored, err := model.GetPendingDuplicate(database.DB, id, 1)
		require.NoError(t, err)
		assert.True(t, stored.Resolved)
	}
}

func TestBulkDeletePartialFailure(t *testing.T) {
	env := newTestEnv(t)
	existing := insertTx(t, manualExpense(1, "Grocery Store", 45.30, "2025-03-10"))
	rec, err := env.pending.Create(existing, expenseInput("Grocery Store", 45.30, "2025-03-11"), 1, "import-check")
	require.NoError(t, err)

	result, err := env.pending.BulkDelete([]int64{rec.ID, 9999}, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, pendingCount(t, 1))
}
