package parsers

import (
	"sort"
	"strconv"
	"time"

	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/models"
	"github.com/username/fundfolio/backend/src/processors"
	"github.com/username/fundfolio/backend/src/utils"
)

// euroCutoff is the first date on which transaction prices arrive in euro.
// Earlier prices are in the legacy currency and need redenomination.
var euroCutoff = time.Date(1999, time.January, 1, 0, 0, 0, 0, time.UTC)

// StreamBuilder turns raw CSV rows into per-(fund, security) transaction
// streams that satisfy the matching engine's input contract: ordered by
// (date, seq), fully populated price and adjustment factor.
type StreamBuilder struct {
	adjustments           *processors.AdjustmentProcessor
	adjustPriceBefore1999 bool
	redenominationDivisor float64
}

func NewStreamBuilder(adjustments *processors.AdjustmentProcessor, adjustPriceBefore1999 bool, redenominationDivisor float64) *StreamBuilder {
	return &StreamBuilder{
		adjustments:           adjustments,
		adjustPriceBefore1999: adjustPriceBefore1999,
		redenominationDivisor: redenominationDivisor,
	}
}

// Build parses, screens, orders and enriches the raw rows. Rows with a
// missing identifier, an unparseable field, or a security absent from the
// adjustment series are dropped and counted; the remainder is grouped by
// (fund, ISIN), ordered by trade date preserving intraday insertion order,
// and given an intraday sequence number.
func (b *StreamBuilder) Build(raw []models.RawTransaction) map[models.GroupKey][]models.Transaction {
	type parsedRow struct {
		tx    models.Transaction
		order int // insertion order, tiebreaker within a day
	}

	rows := make(map[models.GroupKey][]parsedRow)
	var droppedIdentity, droppedMalformed, droppedNoFactor int

	for i, r := range raw {
		if r.FundID == "" || r.ISIN == "" {
			droppedIdentity++
			continue
		}
		date := utils.ParseDate(r.TradeDate)
		if date.IsZero() {
			droppedMalformed++
			continue
		}
		volume, errV := strconv.ParseFloat(r.Volume, 64)
		if errV != nil || volume < 0 {
			droppedMalformed++
			continue
		}

		side := models.SideOther
		if code, err := strconv.Atoi(r.BuySell); err == nil {
			side = models.SideFromCode(code)
		}

		factor, ok := b.adjustments.FactorOn(r.ISIN, date)
		if !ok {
			droppedNoFactor++
			continue
		}

		price, errP := strconv.ParseFloat(r.Price, 64)
		if errP != nil || price <= 0 {
			// Impute the reference closing price when the trade
			// record carries none.
			refPrice, okP := b.adjustments.ReferencePriceOn(r.ISIN, date)
			if !okP {
				droppedMalformed++
				continue
			}
			price = refPrice
		}
		if b.adjustPriceBefore1999 && date.Before(euroCutoff) {
			price /= b.redenominationDivisor
		}

		key := models.GroupKey{FundID: r.FundID, ISIN: r.ISIN}
		rows[key] = append(rows[key], parsedRow{
			tx: models.Transaction{
				FundID: r.FundID,
				ISIN:   r.ISIN,
				Date:   date,
				Side:   side,
				Volume: volume,
				Price:  price,
				Factor: factor,
			},
			order: i,
		})
	}

	if droppedIdentity > 0 || droppedMalformed > 0 || droppedNoFactor > 0 {
		logger.L.Warn("Dropped raw transaction rows during stream building",
			"missingIdentity", droppedIdentity,
			"malformed", droppedMalformed,
			"noAdjustmentFactor", droppedNoFactor)
	}

	groups := make(map[models.GroupKey][]models.Transaction, len(rows))
	for key, list := range rows {
		sort.SliceStable(list, func(i, j int) bool {
			if !list[i].tx.Date.Equal(list[j].tx.Date) {
				return list[i].tx.Date.Before(list[j].tx.Date)
			}
			return list[i].order < list[j].order
		})

		txs := make([]models.Transaction, 0, len(list))
		seq := 0
		for i, row := range list {
			if i > 0 && row.tx.Date.Equal(list[i-1].tx.Date) {
				seq++
			} else {
				seq = 1
			}
			tx := row.tx
			tx.Seq = seq
			txs = append(txs, tx)
		}
		groups[key] = txs
	}

	return groups
}

// GroupTransactions rebuilds per-group ordered streams from already enriched
// transactions, e.g. when recomputing from persisted history.
func GroupTransactions(txs []models.Transaction) map[models.GroupKey][]models.Transaction {
	groups := make(map[models.GroupKey][]models.Transaction)
	for _, tx := range txs {
		key := models.GroupKey{FundID: tx.FundID, ISIN: tx.ISIN}
		groups[key] = append(groups[key], tx)
	}
	for key := range groups {
		list := groups[key]
		sort.SliceStable(list, func(i, j int) bool {
			if !list[i].Date.Equal(list[j].Date) {
				return list[i].Date.Before(list[j].Date)
			}
			return list[i].Seq < list[j].Seq
		})
		groups[key] = list
	}
	return groups
}
