// backend/src/handlers/transaction_handler.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/moneyfolio/backend/src/logger"
	"github.com/username/moneyfolio/backend/src/models"
	"github.com/username/moneyfolio/backend/src/security/validation"
	"github.com/username/moneyfolio/backend/src/services"
	"github.com/username/moneyfolio/backend/src/utils"
)

type TransactionHandler struct {
	duplicateService services.DuplicateService
	store            services.TransactionStore
}

func NewTransactionHandler(duplicateService services.DuplicateService, store services.TransactionStore) *TransactionHandler {
	return &TransactionHandler{
		duplicateService: duplicateService,
		store:            store,
	}
}

// HandleCreateTransaction is the manual-entry/import surface. Every candidate
// runs through the pre-creation duplicate check and the verdict decides the
// outcome: 201 created, 200 prevented (silently dropped with an audit entry),
// 202 parked on the pending duplicate ledger for review.
func (h *TransactionHandler) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var input models.TransactionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	input.Description = validation.SanitizeDescription(input.Description)
	if msg, ok := validateTransactionInput(&input); !ok {
		utils.SendJSONError(w, msg, http.StatusBadRequest)
		return
	}

	result, err := h.duplicateService.CreateWithDuplicateCheck(input, userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to create transaction", "error", err)
		utils.SendJSONError(w, "Failed to create transaction", http.StatusInternalServerError)
		return
	}

	status := http.StatusCreated
	if result.Prevented {
		status = http.StatusOK
	} else if result.Pending != nil {
		status = http.StatusAccepted
	}
	utils.SendJSONResponse(w, result, status)
}

// HandleGetTransactions returns the user's full transaction ledger.
func (h *TransactionHandler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	transactions, err := h.store.FindAll(userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list transactions", "error", err)
		utils.SendJSONError(w, "Failed to list transactions", http.StatusInternalServerError)
		return
	}
	if transactions == nil {
		transactions = []models.Transaction{}
	}
	utils.SendJSONResponse(w, transactions, http.StatusOK)
}

func validateTransactionInput(input *models.TransactionInput) (string, bool) {
	if input.Description == "" {
		return "description is required", false
	}
	if input.Amount < 0 {
		return "amount must be a non-negative magnitude", false
	}
	if input.Direction != models.DirectionIncome && input.Direction != models.DirectionExpense {
		return "direction must be 'income' or 'expense'", false
	}
	if input.Source == "" {
		input.Source = models.SourceManual
	}
	switch input.Source {
	case models.SourceManual, models.SourceCSVImport, models.SourceAPI, models.SourceRecurring:
	default:
		return "unknown transaction source", false
	}
	if input.ExecutionDate != "" {
		if _, ok := utils.ParseDay(input.ExecutionDate); !ok {
			return "execution_date must be YYYY-MM-DD", false
		}
	}
	return "", true
}
