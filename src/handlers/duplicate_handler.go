// backend/src/handlers/duplicate_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/username/moneyfolio/backend/src/logger"
	"github.com/username/moneyfolio/backend/src/model"
	"github.com/username/moneyfolio/backend/src/services"
	"github.com/username/moneyfolio/backend/src/utils"
)

type DuplicateHandler struct {
	pendingService services.PendingDuplicateService
	scanService    services.ScanService
	cleanupService services.CleanupService
}

func NewDuplicateHandler(
	pendingService services.PendingDuplicateService,
	scanService services.ScanService,
	cleanupService services.CleanupService,
) *DuplicateHandler {
	return &DuplicateHandler{
		pendingService: pendingService,
		scanService:    scanService,
		cleanupService: cleanupService,
	}
}

// HandleListPending returns the user's unresolved duplicate queue,
// newest-first, with display context attached.
func (h *DuplicateHandler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	records, err := h.pendingService.List(userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list pending duplicates", "error", err)
		utils.SendJSONError(w, "Failed to list pending duplicates", http.StatusInternalServerError)
		return
	}
	utils.SendJSONResponse(w, records, http.StatusOK)
}

// UpdatePendingRequest carries the only client-mutable field.
type UpdatePendingRequest struct {
	SourceReference *string `json:"source_reference"`
}

func (h *DuplicateHandler) HandleUpdatePending(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdatePendingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.SourceReference == nil {
		utils.SendJSONError(w, "no fields to update", http.StatusBadRequest)
		return
	}
	err := h.pendingService.Update(id, userID, model.PendingDuplicateUpdate{SourceReference: req.SourceReference})
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to update pending duplicate")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DuplicateHandler) HandleDeletePending(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.pendingService.Delete(id, userID); err != nil {
		h.writeServiceError(w, r, err, "Failed to delete pending duplicate")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResolveRequest names the user's choice for one pending record.
type ResolveRequest struct {
	Choice string `json:"choice"`
}

func (h *DuplicateHandler) HandleResolvePending(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	result, err := h.pendingService.Resolve(id, userID, req.Choice)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to resolve pending duplicate")
		return
	}
	utils.SendJSONResponse(w, result, http.StatusOK)
}

// BulkResolveRequest applies one choice to many records.
type BulkResolveRequest struct {
	IDs    []int64 `json:"ids"`
	Choice string  `json:"choice"`
}

func (h *DuplicateHandler) HandleBulkResolve(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	var req BulkResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.IDs) == 0 {
		utils.SendJSONError(w, "ids cannot be empty", http.StatusBadRequest)
		return
	}
	result, err := h.pendingService.BulkResolve(req.IDs, userID, req.Choice)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to bulk resolve pending duplicates")
		return
	}
	utils.SendJSONResponse(w, result, http.StatusOK)
}

// BulkDeleteRequest removes many records without resolving them.
type BulkDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

func (h *DuplicateHandler) HandleBulkDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	var req BulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.IDs) == 0 {
		utils.SendJSONError(w, "ids cannot be empty", http.StatusBadRequest)
		return
	}
	result, err := h.pendingService.BulkDelete(req.IDs, userID)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to bulk delete pending duplicates")
		return
	}
	utils.SendJSONResponse(w, result, http.StatusOK)
}

// HandleScan runs the batch duplicate scan for the authenticated user. Scan
// scope always comes from the auth context, never from the request body:
// accepting a user id here would let one user write records into another
// user's review queue. The all-users sweep stays an internal maintenance
// entry point (DetectDuplicates with a nil user id) with no HTTP surface.
func (h *DuplicateHandler) HandleScan(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	summary, err := h.scanService.DetectDuplicates(&userID)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to run duplicate scan")
		return
	}
	utils.SendJSONResponse(w, summary, http.StatusOK)
}

func (h *DuplicateHandler) HandleScanStatus(w http.ResponseWriter, r *http.Request) {
	utils.SendJSONResponse(w, h.scanService.Status(), http.StatusOK)
}

// HandleCleanup runs the destructive exact-duplicate merge for the
// authenticated user. Explicit invocation only; there is deliberately no
// scheduler around this.
func (h *DuplicateHandler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	report, err := h.cleanupService.CleanupExactDuplicates(userID)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to clean up exact duplicates")
		return
	}
	utils.SendJSONResponse(w, report, http.StatusOK)
}

func (h *DuplicateHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		utils.SendJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrInvalidChoice):
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrAlreadyResolved):
		utils.SendJSONError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrScanAlreadyRunning):
		utils.SendJSONError(w, err.Error(), http.StatusConflict)
	default:
		logger.FromContext(r.Context()).Error(fallback, "error", err)
		utils.SendJSONError(w, fallback, http.StatusInternalServerError)
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		utils.SendJSONError(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
