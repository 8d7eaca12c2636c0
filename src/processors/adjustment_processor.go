package processors

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/models"
)

// AdjustmentProcessor derives, per security and date, the cumulative
// adjustment factor that converts a raw share volume between dates, net of
// splits and reinvested distributions. Cash dividends are assumed fully
// reinvested: the raw split factor (ajexdi) is widened by a cumulative
// dividend index before use.
type AdjustmentProcessor struct {
	mu     sync.RWMutex
	series map[string][]adjustmentPoint // per ISIN, sorted by date
}

type adjustmentPoint struct {
	date   time.Time
	factor float64 // modified ajexdi (splits + reinvested dividends)
	price  float64 // closing price, used as reference price fallback
}

func NewAdjustmentProcessor() *AdjustmentProcessor {
	return &AdjustmentProcessor{
		series: make(map[string][]adjustmentPoint),
	}
}

// Load screens the end-of-day records and rebuilds all per-security series.
// Rows with a missing ISIN, price or split factor are dropped; zero dividends
// are treated as missing (no distribution). Returns the number of usable
// observations.
func (a *AdjustmentProcessor) Load(records []models.EODRecord) (int, error) {
	grouped := make(map[string][]models.EODRecord)
	var dropped int
	for _, rec := range records {
		if rec.ISIN == "" || math.IsNaN(rec.Price) || math.IsNaN(rec.Ajexdi) {
			dropped++
			continue
		}
		grouped[rec.ISIN] = append(grouped[rec.ISIN], rec)
	}
	if dropped > 0 {
		logger.L.Info("Dropped unusable end-of-day observations", "count", dropped)
	}

	series := make(map[string][]adjustmentPoint, len(grouped))
	var total int
	for isin, recs := range grouped {
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].Date.Before(recs[j].Date) })
		points, err := buildSeries(recs)
		if err != nil {
			return 0, fmt.Errorf("building adjustment series for %s: %w", isin, err)
		}
		series[isin] = points
		total += len(points)
	}

	a.mu.Lock()
	a.series = series
	a.mu.Unlock()

	logger.L.Info("Adjustment series rebuilt", "securities", len(series), "observations", total)
	return total, nil
}

// buildSeries computes the dividend index and the modified adjustment factor
// for one security.
//
// divIndex starts at 1 and compounds each payout relative to the previous
// close: divIndex_t = divIndex_{t-1} * (div_t/price_{t-1} + 1).
//
// The modified factor chains the day-over-day change of the raw split factor
// with the day-over-day change of the dividend index, anchored at the first
// raw factor: factor_t = factor_{t-1} * (ajexdi_t/ajexdi_{t-1}) *
// (divIndex_t/divIndex_{t-1}).
func buildSeries(recs []models.EODRecord) ([]adjustmentPoint, error) {
	points := make([]adjustmentPoint, 0, len(recs))

	divIndex := 1.0
	var factor, prevAjexdi, prevDivIndex, prevPrice float64

	for i, rec := range recs {
		if rec.Ajexdi <= 0 {
			return nil, fmt.Errorf("non-positive ajexdi %g on %s", rec.Ajexdi, rec.Date.Format("2006-01-02"))
		}
		if i == 0 {
			factor = rec.Ajexdi
		} else {
			div := rec.Div
			if math.IsNaN(div) {
				div = 0
			}
			divIndex = prevDivIndex * (div/prevPrice + 1)
			factor = factor * (rec.Ajexdi / prevAjexdi) * (divIndex / prevDivIndex)
		}

		points = append(points, adjustmentPoint{date: rec.Date, factor: factor, price: rec.Price})
		prevAjexdi, prevDivIndex, prevPrice = rec.Ajexdi, divIndex, rec.Price
	}

	return points, nil
}

// FactorOn returns the adjustment factor for a security on a date, using the
// most recent observation at or before the date, or the earliest observation
// for dates preceding the series. The second result is false when the
// security is unknown.
func (a *AdjustmentProcessor) FactorOn(isin string, date time.Time) (float64, bool) {
	p, ok := a.lookup(isin, date)
	if !ok {
		return 0, false
	}
	return p.factor, true
}

// ReferencePriceOn returns the closing price for a security on a date with
// the same fill semantics as FactorOn.
func (a *AdjustmentProcessor) ReferencePriceOn(isin string, date time.Time) (float64, bool) {
	p, ok := a.lookup(isin, date)
	if !ok {
		return 0, false
	}
	return p.price, true
}

// Securities returns the number of securities with a loaded series.
func (a *AdjustmentProcessor) Securities() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.series)
}

func (a *AdjustmentProcessor) lookup(isin string, date time.Time) (adjustmentPoint, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	points := a.series[isin]
	if len(points) == 0 {
		return adjustmentPoint{}, false
	}
	idx := sort.Search(len(points), func(i int) bool { return points[i].date.After(date) })
	if idx == 0 {
		// Date precedes the series; fall back to the first observation.
		return points[0], true
	}
	return points[idx-1], true
}
