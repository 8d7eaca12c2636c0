package services

import (
	"errors"
	"io"

	"github.com/username/fundfolio/backend/src/models"
)

var (
	ErrParsingFailed    = errors.New("parsing failed")
	ErrProcessingFailed = errors.New("processing failed")
)

// LedgerResult holds the full derived view of a user's transaction history:
// the annotated stream, its daily expansion, the still-open purchase lots and
// the groups that were rejected.
type LedgerResult struct {
	AnnotatedTransactions []models.AnnotatedTransaction `json:"annotated_transactions"`
	DailyHoldings         []models.DailyHolding         `json:"daily_holdings"`
	OpenLots              []models.PurchaseLot          `json:"open_lots"`
	Faults                []models.GroupFault           `json:"faults"`
}

// LedgerService is the core orchestration surface: it ingests transaction and
// market data files, recomputes the derived ledger and serves the report views.
type LedgerService interface {
	ProcessUpload(fileReader io.Reader, userID int64) (*LedgerResult, error)
	LoadMarketData(fileReader io.Reader) (int, error)
	GetLedgerResult(userID int64) (*LedgerResult, error)
	GetAnnotatedTransactions(userID int64) ([]models.AnnotatedTransaction, error)
	GetRealizedProfits(userID int64) ([]models.AnnotatedTransaction, error)
	GetProfitSummary(userID int64) (models.ProfitSummary, error)
	GetDailyHoldings(userID int64, fundID, isin string) ([]models.DailyHolding, error)
	GetCurrentHoldings(userID int64) ([]models.PurchaseLot, error)
	GetFaults(userID int64) ([]models.GroupFault, error)
	DeleteAllTransactions(userID int64) error
	InvalidateUserCache(userID int64)
}
