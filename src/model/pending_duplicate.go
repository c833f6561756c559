package model

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/username/moneyfolio/backend/src/models"
)

// InsertPendingDuplicate persists an unresolved ledger record with frozen
// snapshots of both sides and fills in its ID and creation timestamp.
func InsertPendingDuplicate(db *sql.DB, rec *models.PendingDuplicate) error {
	res, err := db.Exec(`
		INSERT INTO pending_duplicates
			(user_id, existing_transaction_id, candidate_transaction_id,
			 existing_snapshot, candidate_snapshot, detection_origin,
			 confidence_tier, source_reference, resolved)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.UserID, rec.ExistingTransactionID, rec.CandidateTransactionID,
		models.MarshalSnapshot(rec.ExistingSnapshot), models.MarshalSnapshot(rec.CandidateSnapshot),
		rec.DetectionOrigin, rec.ConfidenceTier, rec.SourceReference, boolToInt(rec.Resolved),
	)
	if err != nil {
		return fmt.Errorf("error inserting pending duplicate for user %d: %w", rec.UserID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("error reading inserted pending duplicate id: %w", err)
	}
	rec.ID = id
	return db.QueryRow("SELECT created_at FROM pending_duplicates WHERE id = ?", id).Scan(&rec.CreatedAt)
}

// GetPendingDuplicate fetches a single ledger record scoped to its owner.
// Returns sql.ErrNoRows when absent or owned by another user.
func GetPendingDuplicate(db *sql.DB, id, userID int64) (*models.PendingDuplicate, error) {
	row := db.QueryRow(selectPendingColumns+" WHERE id = ? AND user_id = ?", id, userID)
	return scanPendingDuplicate(row)
}

// ListUnresolvedPendingDuplicates returns a user's unresolved records,
// newest first.
func ListUnresolvedPendingDuplicates(db *sql.DB, userID int64) ([]models.PendingDuplicate, error) {
	rows, err := db.Query(selectPendingColumns+`
		WHERE user_id = ? AND resolved = 0
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying pending duplicates for user %d: %w", userID, err)
	}
	defer rows.Close()
	return scanPendingDuplicates(rows)
}

// FindPendingByExistingTransactionID returns every ledger record whose
// "existing" side references the given transaction, resolved or not. The
// cleanup routine uses this to re-point references before deleting a row.
func FindPendingByExistingTransactionID(db *sql.DB, txID int64) ([]models.PendingDuplicate, error) {
	rows, err := db.Query(selectPendingColumns+" WHERE existing_transaction_id = ? ORDER BY id ASC", txID)
	if err != nil {
		return nil, fmt.Errorf("error querying pending duplicates referencing transaction %d: %w", txID, err)
	}
	defer rows.Close()
	return scanPendingDuplicates(rows)
}

// HasRecordForPair reports whether any ledger record, resolved or not, links
// the (existing, candidate) transaction pair. The batch scanner relies on
// this for idempotency across repeated runs.
func HasRecordForPair(db *sql.DB, userID, existingTxID, candidateTxID int64) (bool, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(1) FROM pending_duplicates
		WHERE user_id = ? AND existing_transaction_id = ? AND candidate_transaction_id = ?`,
		userID, existingTxID, candidateTxID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("error checking pending duplicate pair (%d, %d): %w", existingTxID, candidateTxID, err)
	}
	return count > 0, nil
}

// PendingDuplicateUpdate carries the mutable fields of a ledger record.
// Nil pointers leave the column untouched.
type PendingDuplicateUpdate struct {
	SourceReference       *string
	Resolved              *bool
	ExistingTransactionID *int64 // Re-points the "existing" side (cleanup merge)
}

// UpdatePendingDuplicate applies a partial update scoped to the owner.
// Returns sql.ErrNoRows when the record does not exist or belongs to another
// user, and an error when no fields were provided.
func UpdatePendingDuplicate(db *sql.DB, id, userID int64, upd PendingDuplicateUpdate) error {
	var sets []string
	var args []interface{}
	if upd.SourceReference != nil {
		sets = append(sets, "source_reference = ?")
		args = append(args, *upd.SourceReference)
	}
	if upd.Resolved != nil {
		sets = append(sets, "resolved = ?")
		args = append(args, boolToInt(*upd.Resolved))
	}
	if upd.ExistingTransactionID != nil {
		sets = append(sets, "existing_transaction_id = ?")
		args = append(args, *upd.ExistingTransactionID)
	}
	if len(sets) == 0 {
		return fmt.Errorf("no fields to update on pending duplicate %d", id)
	}
	args = append(args, id, userID)
	res, err := db.Exec("UPDATE pending_duplicates SET "+strings.Join(sets, ", ")+" WHERE id = ? AND user_id = ?", args...)
	if err != nil {
		return fmt.Errorf("error updating pending duplicate %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkPendingResolved flips the resolved flag, scoped to the owner.
func MarkPendingResolved(db *sql.DB, id, userID int64) error {
	resolved := true
	return UpdatePendingDuplicate(db, id, userID, PendingDuplicateUpdate{Resolved: &resolved})
}

// DeletePendingDuplicate removes a ledger record without resolving it.
// Returns sql.ErrNoRows when nothing was deleted.
func DeletePendingDuplicate(db *sql.DB, id, userID int64) error {
	res, err := db.Exec("DELETE FROM pending_duplicates WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("error deleting pending duplicate %d for user %d: %w", id, userID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const selectPendingColumns = `
	SELECT id, user_id, existing_transaction_id, candidate_transaction_id,
	       existing_snapshot, candidate_snapshot, detection_origin,
	       confidence_tier, source_reference, resolved, created_at
	FROM pending_duplicates`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOnePending(row rowScanner) (*models.PendingDuplicate, error) {
	var rec models.PendingDuplicate
	var existingID, candidateID sql.NullInt64
	var existingSnap, candidateSnap string
	var resolved int
	err := row.Scan(&rec.ID, &rec.UserID, &existingID, &candidateID,
		&existingSnap, &candidateSnap, &rec.DetectionOrigin,
		&rec.ConfidenceTier, &rec.SourceReference, &resolved, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if existingID.Valid {
		rec.ExistingTransactionID = &existingID.Int64
	}
	if candidateID.Valid {
		rec.CandidateTransactionID = &candidateID.Int64
	}
	if rec.ExistingSnapshot, err = models.UnmarshalSnapshot(existingSnap); err != nil {
		return nil, fmt.Errorf("error decoding existing snapshot on pending duplicate %d: %w", rec.ID, err)
	}
	if rec.CandidateSnapshot, err = models.UnmarshalSnapshot(candidateSnap); err != nil {
		return nil, fmt.Errorf("error decoding candidate snapshot on pending duplicate %d: %w", rec.ID, err)
	}
	rec.Resolved = resolved != 0
	return &rec, nil
}

func scanPendingDuplicate(row *sql.Row) (*models.PendingDuplicate, error) {
	return scanOnePending(row)
}

func scanPendingDuplicates(rows *sql.Rows) ([]models.PendingDuplicate, error) {
	var records []models.PendingDuplicate
	for rows.Next() {
		rec, err := scanOnePending(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
