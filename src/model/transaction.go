package model

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/username/moneyfolio/backend/src/models"
)

// InsertTransaction persists a transaction and fills in its ID and creation
// timestamp. The schema rejects negative magnitudes; callers are expected to
// have normalized amounts already.
func InsertTransaction(db *sql.DB, tx *models.Transaction) error {
	res, err := db.Exec(`
		INSERT INTO transactions (user_id, description, amount, direction, execution_date, source, external_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tx.UserID, tx.Description, tx.Amount, tx.Direction, tx.ExecutionDate, tx.Source, tx.ExternalRef,
	)
	if err != nil {
		return fmt.Errorf("error inserting transaction for user %d: %w", tx.UserID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("error reading inserted transaction id: %w", err)
	}
	tx.ID = id
	return db.QueryRow("SELECT created_at FROM transactions WHERE id = ?", id).Scan(&tx.CreatedAt)
}

// GetTransactionByID fetches a single transaction scoped to its owner.
// Returns sql.ErrNoRows when absent or owned by another user.
func GetTransactionByID(db *sql.DB, id, userID int64) (*models.Transaction, error) {
	row := db.QueryRow(`
		SELECT id, user_id, description, amount, direction, execution_date, source, external_ref, created_at
		FROM transactions
		WHERE id = ? AND user_id = ?`, id, userID)
	var tx models.Transaction
	err := row.Scan(&tx.ID, &tx.UserID, &tx.Description, &tx.Amount, &tx.Direction,
		&tx.ExecutionDate, &tx.Source, &tx.ExternalRef, &tx.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// FindRecentTransactions returns a user's transactions whose execution date
// falls inside the lookback window, plus any rows without an execution date
// (those cannot be excluded by date and still matter to the classifier).
// Ordering is newest execution date first, then id descending, so repeated
// scans see candidates in a stable order.
func FindRecentTransactions(db *sql.DB, userID int64, windowDays int) ([]models.Transaction, error) {
	cutoff := time.Now().AddDate(0, 0, -windowDays).Format("2006-01-02")
	rows, err := db.Query(`
		SELECT id, user_id, description, amount, direction, execution_date, source, external_ref, created_at
		FROM transactions
		WHERE user_id = ? AND (execution_date = '' OR execution_date >= ?)
		ORDER BY execution_date DESC, id DESC`, userID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("error querying recent transactions for user %d: %w", userID, err)
	}
	defer rows.Close()
	return scanTransactions(rows, userID)
}

// FindAllTransactions returns a user's full transaction set ordered by
// execution date then creation time, the order the batch scanner requires.
func FindAllTransactions(db *sql.DB, userID int64) ([]models.Transaction, error) {
	rows, err := db.Query(`
		SELECT id, user_id, description, amount, direction, execution_date, source, external_ref, created_at
		FROM transactions
		WHERE user_id = ?
		ORDER BY execution_date ASC, created_at ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying transactions for user %d: %w", userID, err)
	}
	defer rows.Close()
	return scanTransactions(rows, userID)
}

// DeleteTransaction removes a transaction scoped to its owner.
// Returns sql.ErrNoRows when nothing was deleted.
func DeleteTransaction(db *sql.DB, id, userID int64) error {
	res, err := db.Exec("DELETE FROM transactions WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("error deleting transaction %d for user %d: %w", id, userID, err)
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

// ListUserIDs returns the distinct owners of all stored transactions,
// used by the all-users batch scan.
func ListUserIDs(db *sql.DB) ([]int64, error) {
	rows, err := db.Query("SELECT DISTINCT user_id FROM transactions ORDER BY user_id ASC")
	if err != nil {
		return nil, fmt.Errorf("error listing transaction owners: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanTransactions(rows *sql.Rows, userID int64) ([]models.Transaction, error) {
	var transactions []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		scanErr := rows.Scan(&tx.ID, &tx.UserID, &tx.Description, &tx.Amount, &tx.Direction,
			&tx.ExecutionDate, &tx.Source, &tx.ExternalRef, &tx.CreatedAt)
		if scanErr != nil {
			return nil, fmt.Errorf("error scanning transaction row for user %d: %w", userID, scanErr)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over transaction rows for user %d: %w", userID, err)
	}
	return transactions, nil
}
