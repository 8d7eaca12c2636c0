package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/models"
	"github.com/username/fundfolio/backend/src/services"
	"github.com/username/fundfolio/backend/src/utils"
)

// LedgerHandler serves the derived report views: the annotated transaction
// stream, realized profits and the processing faults.
type LedgerHandler struct {
	ledgerService services.LedgerService
}

func NewLedgerHandler(service services.LedgerService) *LedgerHandler {
	return &LedgerHandler{
		ledgerService: service,
	}
}

// HandleGetAnnotatedTransactions returns the full annotated stream with ETag
// support, since the payload is large and changes only on re-upload.
func (h *LedgerHandler) HandleGetAnnotatedTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	annotated, err := h.ledgerService.GetAnnotatedTransactions(userID)
	if err != nil {
		logger.L.Error("Error retrieving annotated transactions", "userID", userID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error retrieving annotated transactions for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}
	if annotated == nil {
		annotated = []models.AnnotatedTransaction{}
	}

	w.Header().Set("Cache-Control", "no-cache, private")
	if writeWithETag(w, r, annotated, userID) {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(annotated); err != nil {
		logger.L.Error("Error generating JSON response for annotated transactions", "userID", userID, "error", err)
	}
}

// HandleGetRealizedProfits returns the annotated sale transactions.
func (h *LedgerHandler) HandleGetRealizedProfits(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	profits, err := h.ledgerService.GetRealizedProfits(userID)
	if err != nil {
		logger.L.Error("Error retrieving realized profits", "userID", userID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error retrieving realized profits for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}
	if profits == nil {
		profits = []models.AnnotatedTransaction{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(profits); err != nil {
		logger.L.Error("Error generating JSON response for realized profits", "userID", userID, "error", err)
	}
}

// HandleGetProfitSummary returns realized profit aggregated per fund and year.
func (h *LedgerHandler) HandleGetProfitSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	summary, err := h.ledgerService.GetProfitSummary(userID)
	if err != nil {
		logger.L.Error("Error retrieving profit summary", "userID", userID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error retrieving profit summary for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}
	if summary == nil {
		summary = models.ProfitSummary{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		logger.L.Error("Error generating JSON response for profit summary", "userID", userID, "error", err)
	}
}

// HandleGetFaults returns the groups rejected during the last recomputation.
func (h *LedgerHandler) HandleGetFaults(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	faults, err := h.ledgerService.GetFaults(userID)
	if err != nil {
		logger.L.Error("Error retrieving processing faults", "userID", userID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error retrieving processing faults for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}
	if faults == nil {
		faults = []models.GroupFault{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(faults); err != nil {
		logger.L.Error("Error generating JSON response for processing faults", "userID", userID, "error", err)
	}
}

// writeWithETag sets the ETag header for the payload and reports whether the
// request was satisfied with 304 Not Modified.
func writeWithETag(w http.ResponseWriter, r *http.Request, payload interface{}, userID int64) bool {
	currentETag, err := utils.GenerateETag(payload)
	if err != nil || currentETag == "" {
		logger.L.Warn("Proceeding without ETag check due to ETag generation error or empty ETag", "userID", userID, "error", err)
		return false
	}

	quotedETag := fmt.Sprintf("\"%s\"", currentETag)
	w.Header().Set("ETag", quotedETag)
	for _, cETag := range strings.Split(r.Header.Get("If-None-Match"), ",") {
		if strings.TrimSpace(cETag) == quotedETag {
			logger.L.Debug("ETag match", "userID", userID, "etag", currentETag)
			w.WriteHeader(http.StatusNotModified)
			return true
		}
	}
	return false
}
