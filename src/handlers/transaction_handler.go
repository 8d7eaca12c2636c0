package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/username/fundfolio/backend/src/database"
	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/models"
	"github.com/username/fundfolio/backend/src/services"
	"github.com/username/fundfolio/backend/src/utils"
)

type TransactionHandler struct {
	ledgerService services.LedgerService
}

func NewTransactionHandler(service services.LedgerService) *TransactionHandler {
	return &TransactionHandler{
		ledgerService: service,
	}
}

// HandleGetTransactions returns the stored (pre-annotation) transaction
// history straight from the database.
func (h *TransactionHandler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	rows, err := database.DB.Query(`
		SELECT id, fund_id, isin, date, seq, side, volume, price, factor
		FROM transactions
		WHERE user_id = ?
		ORDER BY fund_id ASC, isin ASC, date ASC, seq ASC`, userID)
	if err != nil {
		utils.SendJSONError(w, fmt.Sprintf("Error querying transactions for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		var date, side string
		if scanErr := rows.Scan(&tx.ID, &tx.FundID, &tx.ISIN, &date, &tx.Seq, &side, &tx.Volume, &tx.Price, &tx.Factor); scanErr != nil {
			utils.SendJSONError(w, fmt.Sprintf("Error scanning transaction for userID %d: %v", userID, scanErr), http.StatusInternalServerError)
			return
		}
		tx.Date = utils.ParseDate(date)
		tx.Side = models.Side(side)
		transactions = append(transactions, tx)
	}
	if err = rows.Err(); err != nil {
		utils.SendJSONError(w, fmt.Sprintf("Error iterating over transactions for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}
	if transactions == nil {
		transactions = []models.Transaction{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(transactions); err != nil {
		logger.L.Error("Error generating JSON response for transactions", "userID", userID, "error", err)
	}
}

// HandleDeleteAllTransactions removes the user's stored history and all
// derived rows.
func (h *TransactionHandler) HandleDeleteAllTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}

	if err := h.ledgerService.DeleteAllTransactions(userID); err != nil {
		logger.L.Error("Error deleting transactions", "userID", userID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error deleting transactions for userID %d: %v", userID, err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "All transactions deleted successfully",
	})
}
