package processors

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/fundfolio/backend/src/models"
)

func eod(isin string, date time.Time, ajexdi, div, price float64) models.EODRecord {
	return models.EODRecord{ISIN: isin, Date: date, Ajexdi: ajexdi, Div: div, Price: price}
}

func TestAdjustmentLoadScreensUnusableRows(t *testing.T) {
	a := NewAdjustmentProcessor()
	records := []models.EODRecord{
		eod("FI0001", day(2020, time.January, 2), 1, math.NaN(), 10),
		eod("", day(2020, time.January, 2), 1, math.NaN(), 10),
		eod("FI0001", day(2020, time.January, 3), math.NaN(), math.NaN(), 10),
		eod("FI0001", day(2020, time.January, 4), 1, math.NaN(), math.NaN()),
	}

	total, err := a.Load(records)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, a.Securities())
}

func TestAdjustmentFactorChainsSplits(t *testing.T) {
	a := NewAdjustmentProcessor()
	_, err := a.Load([]models.EODRecord{
		eod("FI0001", day(2020, time.January, 2), 1, math.NaN(), 10),
		eod("FI0001", day(2020, time.January, 3), 2, math.NaN(), 5),
	})
	require.NoError(t, err)

	f1, ok := a.FactorOn("FI0001", day(2020, time.January, 2))
	require.True(t, ok)
	assert.InDelta(t, 1.0, f1, 1e-12)

	f2, ok := a.FactorOn("FI0001", day(2020, time.January, 3))
	require.True(t, ok)
	assert.InDelta(t, 2.0, f2, 1e-12)
}

func TestAdjustmentFactorCompoundsDividends(t *testing.T) {
	// A payout of 1 against a previous close of 10 widens the factor by 10%.
	a := NewAdjustmentProcessor()
	_, err := a.Load([]models.EODRecord{
		eod("FI0001", day(2020, time.January, 2), 1, math.NaN(), 10),
		eod("FI0001", day(2020, time.January, 3), 1, 1, 10),
	})
	require.NoError(t, err)

	f, ok := a.FactorOn("FI0001", day(2020, time.January, 3))
	require.True(t, ok)
	assert.InDelta(t, 1.1, f, 1e-12)
}

func TestAdjustmentFactorFillSemantics(t *testing.T) {
	a := NewAdjustmentProcessor()
	_, err := a.Load([]models.EODRecord{
		eod("FI0001", day(2020, time.January, 10), 1, math.NaN(), 10),
		eod("FI0001", day(2020, time.January, 20), 2, math.NaN(), 5),
	})
	require.NoError(t, err)

	// Before the series: first observation.
	f, ok := a.FactorOn("FI0001", day(2020, time.January, 1))
	require.True(t, ok)
	assert.InDelta(t, 1.0, f, 1e-12)

	// Between observations: most recent at or before.
	f, ok = a.FactorOn("FI0001", day(2020, time.January, 15))
	require.True(t, ok)
	assert.InDelta(t, 1.0, f, 1e-12)

	// After the series: last observation.
	f, ok = a.FactorOn("FI0001", day(2020, time.February, 1))
	require.True(t, ok)
	assert.InDelta(t, 2.0, f, 1e-12)

	_, ok = a.FactorOn("FI9999", day(2020, time.January, 15))
	assert.False(t, ok)
}

func TestAdjustmentReferencePrice(t *testing.T) {
	a := NewAdjustmentProcessor()
	_, err := a.Load([]models.EODRecord{
		eod("FI0001", day(2020, time.January, 10), 1, math.NaN(), 10),
		eod("FI0001", day(2020, time.January, 20), 1, math.NaN(), 12),
	})
	require.NoError(t, err)

	p, ok := a.ReferencePriceOn("FI0001", day(2020, time.January, 15))
	require.True(t, ok)
	assert.Equal(t, 10.0, p)
}

func TestAdjustmentLoadRejectsNonPositiveAjexdi(t *testing.T) {
	a := NewAdjustmentProcessor()
	_, err := a.Load([]models.EODRecord{
		eod("FI0001", day(2020, time.January, 2), -1, math.NaN(), 10),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-positive ajexdi")
}

func TestAdjustmentLoadReplacesSeries(t *testing.T) {
	a := NewAdjustmentProcessor()
	_, err := a.Load([]models.EODRecord{
		eod("FI0001", day(2020, time.January, 2), 1, math.NaN(), 10),
	})
	require.NoError(t, err)

	_, err = a.Load([]models.EODRecord{
		eod("FI0002", day(2020, time.January, 2), 1, math.NaN(), 10),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, a.Securities())
	_, ok := a.FactorOn("FI0001", day(2020, time.January, 2))
	assert.False(t, ok)
}
