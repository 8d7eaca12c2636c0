package models

import "time"

// Side classifies the economic direction of a transaction.
type Side string

const (
	SideBuy   Side = "buy"
	SideSell  Side = "sell"
	SideOther Side = "other"
)

// SideFromCode maps the numeric buy/sell code of the raw feed to a Side.
// Codes 10 and 11 are purchase variants, 20 and 21 are sale variants.
// Everything else is a non-trading event (transfers, corporate actions, ...).
func SideFromCode(code int) Side {
	switch code {
	case 10, 11:
		return SideBuy
	case 20, 21:
		return SideSell
	default:
		return SideOther
	}
}

// Direction returns +1 for buys, -1 for sells and 0 for passthrough events.
func (s Side) Direction() float64 {
	switch s {
	case SideBuy:
		return 1
	case SideSell:
		return -1
	default:
		return 0
	}
}

// RawTransaction is a single row of the transaction history CSV, unparsed.
type RawTransaction struct {
	FundID    string `json:"fund_id"`
	ISIN      string `json:"isin"`
	TradeDate string `json:"trade_date"`
	BuySell   string `json:"buy_sell"` // numeric side code from the feed
	Volume    string `json:"volume"`
	Price     string `json:"price"`
}

// Transaction is one observed trade event after enrichment, ready for the
// matching engine. Streams handed to the engine are ordered by (Date, Seq);
// that order is the FIFO order.
type Transaction struct {
	ID     int64     `json:"id,omitempty"`
	FundID string    `json:"fund_id"`
	ISIN   string    `json:"isin"`
	Date   time.Time `json:"date"`
	Seq    int       `json:"seq"` // preserves intraday insertion order
	Side   Side      `json:"side"`
	Volume float64   `json:"volume"` // raw, non-adjusted share volume
	Price  float64   `json:"price"`
	Factor float64   `json:"factor"` // split/dividend adjustment factor at Date
}

// AnnotatedTransaction is a Transaction augmented with the matching engine's
// output: the actually executed volume (signed by direction), the position
// after the transaction and the realized profit (sells only).
type AnnotatedTransaction struct {
	Transaction
	CorrectedVolume float64 `json:"corrected_volume"`
	Position        float64 `json:"position"`
	Profit          float64 `json:"profit"`
}

// PurchaseLot is a purchase's remaining unconsumed volume together with its
// price and adjustment factor at purchase time. The queue of unconsumed lots
// is the cost-basis ledger behind every profit figure.
type PurchaseLot struct {
	FundID          string    `json:"fund_id"`
	ISIN            string    `json:"isin"`
	BuyDate         time.Time `json:"buy_date"`
	RemainingVolume float64   `json:"remaining_volume"` // raw units at purchase date
	Price           float64   `json:"price"`
	Factor          float64   `json:"factor"`
}

// GroupKey identifies one independent (fund, security) processing group.
type GroupKey struct {
	FundID string `json:"fund_id"`
	ISIN   string `json:"isin"`
}

// DailyHolding is one calendar day of a group's holding period. Flow fields
// are zero on days without transactions; Position, MeanPrice and MeanFactor
// are carried forward from the most recent trading day.
type DailyHolding struct {
	FundID             string    `json:"fund_id"`
	ISIN               string    `json:"isin"`
	Date               time.Time `json:"date"`
	VolumeSum          float64   `json:"volume_sum"`
	TransactionCount   int       `json:"transaction_count"`
	MeanPrice          float64   `json:"mean_price"`
	MeanFactor         float64   `json:"mean_factor"`
	Position           float64   `json:"position"`
	CorrectedVolumeSum float64   `json:"corrected_volume_sum"`
	ProfitSum          float64   `json:"profit_sum"`
}

// GroupFault records why a (fund, security) group was rejected. Faults are
// attached to the offending group and never abort sibling groups.
type GroupFault struct {
	FundID string    `json:"fund_id"`
	ISIN   string    `json:"isin"`
	Date   time.Time `json:"date,omitempty"`
	Reason string    `json:"reason"`
}

// EODRecord is one end-of-day market data observation used to derive the
// cumulative adjustment factor. Missing numeric fields are NaN.
type EODRecord struct {
	ISIN   string    `json:"isin"`
	Date   time.Time `json:"date"`
	Ajexdi float64   `json:"ajexdi"` // raw split adjustment factor
	Div    float64   `json:"div"`    // cash dividend per share
	Price  float64   `json:"prccd"`  // closing price
}

// ProfitSummary aggregates realized profit per fund and year.
type ProfitSummary map[string]map[string]float64
