package services

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/fundfolio/backend/src/database"
	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/models"
	"github.com/username/fundfolio/backend/src/parsers"
	"github.com/username/fundfolio/backend/src/processors"
	"github.com/username/fundfolio/backend/src/utils"
)

const (
	ckLedgerResult  = "res_ledger_result_user_%d"
	ckProfitSummary = "agg_profit_summary_user_%d"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

type ledgerServiceImpl struct {
	transactionParser parsers.TransactionParser
	marketDataParser  parsers.MarketDataParser
	adjustments       *processors.AdjustmentProcessor
	streamBuilder     *parsers.StreamBuilder
	batchProcessor    *processors.BatchProcessor
	emailService      EmailService
	reportCache       *cache.Cache
}

func NewLedgerService(
	transactionParser parsers.TransactionParser,
	marketDataParser parsers.MarketDataParser,
	adjustments *processors.AdjustmentProcessor,
	streamBuilder *parsers.StreamBuilder,
	batchProcessor *processors.BatchProcessor,
	emailService EmailService,
	reportCache *cache.Cache,
) LedgerService {
	return &ledgerServiceImpl{
		transactionParser: transactionParser,
		marketDataParser:  marketDataParser,
		adjustments:       adjustments,
		streamBuilder:     streamBuilder,
		batchProcessor:    batchProcessor,
		emailService:      emailService,
		reportCache:       reportCache,
	}
}

// ProcessUpload parses a transaction history CSV, enriches the rows with
// adjustment factors and stores them. Derived results are recomputed lazily
// on the next report request.
func (s *ledgerServiceImpl) ProcessUpload(fileReader io.Reader, userID int64) (*LedgerResult, error) {
	overallStartTime := time.Now()
	logger.L.Info("ProcessUpload START", "userID", userID)

	rawRows, err := s.transactionParser.Parse(fileReader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}

	groups := s.streamBuilder.Build(rawRows)
	if len(groups) == 0 {
		return s.GetLedgerResult(userID)
	}

	dbTx, err := database.DB.Begin()
	if err != nil {
		return nil, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`INSERT INTO transactions (user_id, fund_id, isin, date, seq, side, volume, price, factor) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("error preparing insert statement: %w", err)
	}
	defer stmt.Close()

	var inserted int
	for _, txs := range groups {
		for _, tx := range txs {
			_, err := stmt.Exec(userID, tx.FundID, tx.ISIN, utils.FormatDate(tx.Date), tx.Seq, string(tx.Side), tx.Volume, tx.Price, tx.Factor)
			if err != nil {
				return nil, fmt.Errorf("error inserting transaction (%s/%s %s): %w", tx.FundID, tx.ISIN, utils.FormatDate(tx.Date), err)
			}
			inserted++
		}
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing transactions: %w", err)
	}

	s.InvalidateUserCache(userID)

	logger.L.Info("ProcessUpload END", "userID", userID, "inserted", inserted, "duration", time.Since(overallStartTime))
	return s.GetLedgerResult(userID)
}

// LoadMarketData parses an end-of-day market data CSV and rebuilds the
// adjustment series. All cached ledger results become stale, but they are keyed
// per user; callers that re-upload transactions will pick the new factors up.
func (s *ledgerServiceImpl) LoadMarketData(fileReader io.Reader) (int, error) {
	records, err := s.marketDataParser.Parse(fileReader)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	loaded, err := s.adjustments.Load(records)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrProcessingFailed, err)
	}
	s.reportCache.Flush()
	return loaded, nil
}

// InvalidateUserCache clears all cached data for a user, forcing a complete
// rebuild on the next request.
func (s *ledgerServiceImpl) InvalidateUserCache(userID int64) {
	keysToDelete := []string{
		fmt.Sprintf(ckLedgerResult, userID),
		fmt.Sprintf(ckProfitSummary, userID),
	}
	for _, key := range keysToDelete {
		s.reportCache.Delete(key)
	}
	logger.L.Info("Invalidated all caches for user", "userID", userID)
}

// GetLedgerResult returns the derived ledger for a user, recomputing from the
// stored transaction history on a cache miss and persisting the derived rows.
func (s *ledgerServiceImpl) GetLedgerResult(userID int64) (*LedgerResult, error) {
	cacheKey := fmt.Sprintf(ckLedgerResult, userID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		logger.L.Debug("Cache hit for GetLedgerResult", "userID", userID)
		return cached.(*LedgerResult), nil
	}
	logger.L.Info("Cache miss for ledger result, recalculating from DB", "userID", userID)

	transactions, err := fetchUserTransactions(userID)
	if err != nil {
		return nil, err
	}

	batch := s.batchProcessor.Process(parsers.GroupTransactions(transactions))
	result := &LedgerResult{
		AnnotatedTransactions: batch.AnnotatedTransactions,
		DailyHoldings:         batch.DailyHoldings,
		OpenLots:              batch.OpenLots,
		Faults:                batch.Faults,
	}

	if err := persistDerivedResults(userID, result); err != nil {
		return nil, err
	}
	if len(result.Faults) > 0 {
		s.notifyFaults(userID, result.Faults)
	}

	s.reportCache.Set(cacheKey, result, cache.NoExpiration)
	return result, nil
}

func (s *ledgerServiceImpl) GetAnnotatedTransactions(userID int64) ([]models.AnnotatedTransaction, error) {
	result, err := s.GetLedgerResult(userID)
	if err != nil {
		return nil, err
	}
	return result.AnnotatedTransactions, nil
}

// GetRealizedProfits returns the annotated sale transactions, the rows that
// carry a realized profit figure.
func (s *ledgerServiceImpl) GetRealizedProfits(userID int64) ([]models.AnnotatedTransaction, error) {
	result, err := s.GetLedgerResult(userID)
	if err != nil {
		return nil, err
	}
	sales := make([]models.AnnotatedTransaction, 0)
	for _, tx := range result.AnnotatedTransactions {
		if tx.Side == models.SideSell {
			sales = append(sales, tx)
		}
	}
	return sales, nil
}

// GetProfitSummary aggregates realized profit per fund and calendar year.
func (s *ledgerServiceImpl) GetProfitSummary(userID int64) (models.ProfitSummary, error) {
	cacheKey := fmt.Sprintf(ckProfitSummary, userID)
	if cached, found := s.reportCache.Get(cacheKey); found {
		return cached.(models.ProfitSummary), nil
	}

	result, err := s.GetLedgerResult(userID)
	if err != nil {
		return nil, err
	}

	summary := make(models.ProfitSummary)
	for _, tx := range result.AnnotatedTransactions {
		if tx.Side != models.SideSell {
			continue
		}
		year := strconv.Itoa(tx.Date.Year())
		if summary[tx.FundID] == nil {
			summary[tx.FundID] = make(map[string]float64)
		}
		summary[tx.FundID][year] += tx.Profit
	}
	for fund := range summary {
		for year, profit := range summary[fund] {
			summary[fund][year] = utils.RoundFloat(profit, 2)
		}
	}

	s.reportCache.Set(cacheKey, summary, DefaultCacheExpiration)
	return summary, nil
}

// GetDailyHoldings returns the daily expansion, optionally filtered by fund
// and/or security.
func (s *ledgerServiceImpl) GetDailyHoldings(userID int64, fundID, isin string) ([]models.DailyHolding, error) {
	result, err := s.GetLedgerResult(userID)
	if err != nil {
		return nil, err
	}
	if fundID == "" && isin == "" {
		return result.DailyHoldings, nil
	}
	filtered := make([]models.DailyHolding, 0)
	for _, h := range result.DailyHoldings {
		if fundID != "" && h.FundID != fundID {
			continue
		}
		if isin != "" && h.ISIN != isin {
			continue
		}
		filtered = append(filtered, h)
	}
	return filtered, nil
}

// GetCurrentHoldings returns the still-open purchase lots across all groups.
func (s *ledgerServiceImpl) GetCurrentHoldings(userID int64) ([]models.PurchaseLot, error) {
	result, err := s.GetLedgerResult(userID)
	if err != nil {
		return nil, err
	}
	return result.OpenLots, nil
}

func (s *ledgerServiceImpl) GetFaults(userID int64) ([]models.GroupFault, error) {
	result, err := s.GetLedgerResult(userID)
	if err != nil {
		return nil, err
	}
	return result.Faults, nil
}

// DeleteAllTransactions removes a user's stored history and every derived row.
func (s *ledgerServiceImpl) DeleteAllTransactions(userID int64) error {
	dbTx, err := database.DB.Begin()
	if err != nil {
		return fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	for _, table := range []string{"transactions", "annotated_transactions", "daily_holdings", "processing_faults"} {
		if _, err := dbTx.Exec(fmt.Sprintf("DELETE FROM %s WHERE user_id = ?", table), userID); err != nil {
			return fmt.Errorf("error deleting from %s for userID %d: %w", table, userID, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("error committing deletion: %w", err)
	}

	s.InvalidateUserCache(userID)
	logger.L.Info("Deleted all transactions for user", "userID", userID)
	return nil
}

func (s *ledgerServiceImpl) notifyFaults(userID int64, faults []models.GroupFault) {
	if s.emailService == nil {
		return
	}
	go func() {
		if err := s.emailService.SendFaultNotification(userID, faults); err != nil {
			logger.L.Error("Failed to send fault notification", "userID", userID, "error", err)
		}
	}()
}

// fetchUserTransactions loads the stored transaction history ordered the way
// the matching engine consumes it.
func fetchUserTransactions(userID int64) ([]models.Transaction, error) {
	logger.L.Debug("Fetching transactions from DB", "userID", userID)
	rows, err := database.DB.Query(`SELECT id, fund_id, isin, date, seq, side, volume, price, factor FROM transactions WHERE user_id = ? ORDER BY fund_id ASC, isin ASC, date ASC, seq ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying transactions for userID %d: %w", userID, err)
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		var date, side string
		if scanErr := rows.Scan(&tx.ID, &tx.FundID, &tx.ISIN, &date, &tx.Seq, &side, &tx.Volume, &tx.Price, &tx.Factor); scanErr != nil {
			return nil, fmt.Errorf("error scanning transaction row for userID %d: %w", userID, scanErr)
		}
		tx.Date = utils.ParseDate(date)
		tx.Side = models.Side(side)
		transactions = append(transactions, tx)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over transaction rows for userID %d: %w", userID, err)
	}
	logger.L.Info("DB fetch complete.", "userID", userID, "transactionCount", len(transactions))
	return transactions, nil
}

// persistDerivedResults replaces the stored derived rows for a user with a
// freshly computed batch.
func persistDerivedResults(userID int64, result *LedgerResult) error {
	dbTx, err := database.DB.Begin()
	if err != nil {
		return fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	for _, table := range []string{"annotated_transactions", "daily_holdings", "processing_faults"} {
		if _, err := dbTx.Exec(fmt.Sprintf("DELETE FROM %s WHERE user_id = ?", table), userID); err != nil {
			return fmt.Errorf("error clearing %s for userID %d: %w", table, userID, err)
		}
	}

	annStmt, err := dbTx.Prepare(`INSERT INTO annotated_transactions (user_id, fund_id, isin, date, seq, side, volume, price, factor, corrected_volume, position, profit) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing annotated insert: %w", err)
	}
	defer annStmt.Close()
	for _, tx := range result.AnnotatedTransactions {
		if _, err := annStmt.Exec(userID, tx.FundID, tx.ISIN, utils.FormatDate(tx.Date), tx.Seq, string(tx.Side), tx.Volume, tx.Price, tx.Factor, tx.CorrectedVolume, tx.Position, tx.Profit); err != nil {
			return fmt.Errorf("error inserting annotated transaction: %w", err)
		}
	}

	dayStmt, err := dbTx.Prepare(`INSERT INTO daily_holdings (user_id, fund_id, isin, date, volume_sum, transaction_count, mean_price, mean_factor, position, corrected_volume_sum, profit_sum) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing daily holdings insert: %w", err)
	}
	defer dayStmt.Close()
	for _, h := range result.DailyHoldings {
		if _, err := dayStmt.Exec(userID, h.FundID, h.ISIN, utils.FormatDate(h.Date), h.VolumeSum, h.TransactionCount, h.MeanPrice, h.MeanFactor, h.Position, h.CorrectedVolumeSum, h.ProfitSum); err != nil {
			return fmt.Errorf("error inserting daily holding: %w", err)
		}
	}

	faultStmt, err := dbTx.Prepare(`INSERT INTO processing_faults (user_id, fund_id, isin, date, reason) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing fault insert: %w", err)
	}
	defer faultStmt.Close()
	for _, f := range result.Faults {
		var faultDate string
		if !f.Date.IsZero() {
			faultDate = utils.FormatDate(f.Date)
		}
		if _, err := faultStmt.Exec(userID, f.FundID, f.ISIN, faultDate, f.Reason); err != nil {
			return fmt.Errorf("error inserting processing fault: %w", err)
		}
	}

	return dbTx.Commit()
}
