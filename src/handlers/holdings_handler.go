package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/models"
	"github.com/username/fundfolio/backend/src/services"
	"github.com/username/fundfolio/backend/src/utils"
)

// HoldingsHandler serves the daily expansion and the open purchase lots.
type HoldingsHandler struct {
	ledgerService services.LedgerService
}

func NewHoldingsHandler(service services.LedgerService) *HoldingsHandler {
	return &HoldingsHandler{
		ledgerService: service,
	}
}

// HandleGetDailyHoldings returns the gapless day-by-day holding rows,
// optionally filtered with ?fund_id= and ?isin= query parameters.
func (h *HoldingsHandler) HandleGetDailyHoldings(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	fundID := r.URL.Query().Get("fund_id")
	isin := r.URL.Query().Get("isin")

	holdings, err := h.ledgerService.GetDailyHoldings(userID, fundID, isin)
	if err != nil {
		logger.L.Error("Error retrieving daily holdings", "userID", userID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error retrieving daily holdings for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}
	if holdings == nil {
		holdings = []models.DailyHolding{}
	}

	w.Header().Set("Cache-Control", "no-cache, private")
	if writeWithETag(w, r, holdings, userID) {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(holdings); err != nil {
		logger.L.Error("Error generating JSON response for daily holdings", "userID", userID, "error", err)
	}
}

// HandleGetCurrentHoldings returns the still-open purchase lots.
func (h *HoldingsHandler) HandleGetCurrentHoldings(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	lots, err := h.ledgerService.GetCurrentHoldings(userID)
	if err != nil {
		logger.L.Error("Error retrieving current holdings", "userID", userID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error retrieving current holdings for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}
	if lots == nil {
		lots = []models.PurchaseLot{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(lots); err != nil {
		logger.L.Error("Error generating JSON response for current holdings", "userID", userID, "error", err)
	}
}
