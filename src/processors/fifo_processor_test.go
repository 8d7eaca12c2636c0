package processors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/models"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	m.Run()
}

func day(y int, mo time.Month, d int) time.Time {
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

func tx(fund, isin string, date time.Time, seq int, side models.Side, volume, price, factor float64) models.Transaction {
	return models.Transaction{
		FundID: fund,
		ISIN:   isin,
		Date:   date,
		Seq:    seq,
		Side:   side,
		Volume: volume,
		Price:  price,
		Factor: factor,
	}
}

func TestProcessGroupSimpleBuySell(t *testing.T) {
	p := NewFIFOProcessor()
	txs := []models.Transaction{
		tx("F1", "FI0001", day(2020, time.March, 2), 1, models.SideBuy, 100, 10, 1),
		tx("F1", "FI0001", day(2020, time.March, 10), 1, models.SideSell, 40, 15, 1),
	}

	annotated, lots, err := p.ProcessGroup(txs)
	require.NoError(t, err)
	require.Len(t, annotated, 2)

	assert.Equal(t, 100.0, annotated[0].CorrectedVolume)
	assert.Equal(t, 100.0, annotated[0].Position)
	assert.Equal(t, 0.0, annotated[0].Profit)

	assert.Equal(t, -40.0, annotated[1].CorrectedVolume)
	assert.Equal(t, 60.0, annotated[1].Position)
	assert.InDelta(t, 200.0, annotated[1].Profit, 1e-9)

	require.Len(t, lots, 1)
	assert.InDelta(t, 60.0, lots[0].RemainingVolume, 1e-9)
	assert.Equal(t, 10.0, lots[0].Price)
}

func TestProcessGroupSplitAndOverSale(t *testing.T) {
	// Buy 100 at factor 1, then a 2:1 split doubles the factor. The inherited
	// position becomes 50 in post-split units, so a sell of 150 is clamped to
	// full liquidation.
	p := NewFIFOProcessor()
	txs := []models.Transaction{
		tx("F1", "FI0001", day(2020, time.January, 2), 1, models.SideBuy, 100, 10, 1),
		tx("F1", "FI0001", day(2020, time.June, 1), 1, models.SideSell, 150, 6, 2),
	}

	annotated, lots, err := p.ProcessGroup(txs)
	require.NoError(t, err)
	require.Len(t, annotated, 2)

	sale := annotated[1]
	assert.InDelta(t, -50.0, sale.CorrectedVolume, 1e-9)
	assert.InDelta(t, 0.0, sale.Position, 1e-9)
	// Proceeds 50*6 against the full 100-unit cost basis of 1000.
	assert.InDelta(t, -700.0, sale.Profit, 1e-9)

	assert.Empty(t, lots)
}

func TestProcessGroupFIFOOrdering(t *testing.T) {
	p := NewFIFOProcessor()
	txs := []models.Transaction{
		tx("F1", "FI0001", day(2021, time.February, 1), 1, models.SideBuy, 10, 10, 1),
		tx("F1", "FI0001", day(2021, time.February, 2), 1, models.SideBuy, 10, 20, 1),
		tx("F1", "FI0001", day(2021, time.February, 3), 1, models.SideSell, 10, 30, 1),
	}

	annotated, lots, err := p.ProcessGroup(txs)
	require.NoError(t, err)

	// The oldest lot supplies the cost basis.
	assert.InDelta(t, 200.0, annotated[2].Profit, 1e-9)
	require.Len(t, lots, 1)
	assert.Equal(t, 20.0, lots[0].Price)
	assert.Equal(t, day(2021, time.February, 2), lots[0].BuyDate)
}

func TestProcessGroupPartialLotConsumption(t *testing.T) {
	p := NewFIFOProcessor()
	txs := []models.Transaction{
		tx("F1", "FI0001", day(2021, time.February, 1), 1, models.SideBuy, 100, 10, 1),
		tx("F1", "FI0001", day(2021, time.February, 5), 1, models.SideSell, 30, 12, 1),
		tx("F1", "FI0001", day(2021, time.February, 9), 1, models.SideSell, 30, 14, 1),
	}

	annotated, lots, err := p.ProcessGroup(txs)
	require.NoError(t, err)

	assert.InDelta(t, 60.0, annotated[1].Profit, 1e-9)
	assert.InDelta(t, 120.0, annotated[2].Profit, 1e-9)
	require.Len(t, lots, 1)
	assert.InDelta(t, 40.0, lots[0].RemainingVolume, 1e-9)
}

func TestProcessGroupFirstTransactionSellIsNoOp(t *testing.T) {
	p := NewFIFOProcessor()
	txs := []models.Transaction{
		tx("F1", "FI0001", day(2020, time.May, 4), 1, models.SideSell, 25, 9, 1),
		tx("F1", "FI0001", day(2020, time.May, 8), 1, models.SideBuy, 10, 9, 1),
	}

	annotated, _, err := p.ProcessGroup(txs)
	require.NoError(t, err)

	assert.Equal(t, 0.0, annotated[0].CorrectedVolume)
	assert.Equal(t, 0.0, annotated[0].Position)
	assert.Equal(t, 0.0, annotated[0].Profit)
	assert.Equal(t, 10.0, annotated[1].Position)
}

func TestProcessGroupOtherSidePassesThrough(t *testing.T) {
	p := NewFIFOProcessor()
	txs := []models.Transaction{
		tx("F1", "FI0001", day(2020, time.May, 4), 1, models.SideBuy, 100, 10, 1),
		tx("F1", "FI0001", day(2020, time.July, 1), 1, models.SideOther, 5, 0, 2),
		tx("F1", "FI0001", day(2020, time.August, 1), 1, models.SideSell, 50, 6, 2),
	}

	annotated, _, err := p.ProcessGroup(txs)
	require.NoError(t, err)

	// The passthrough event still rescales the inherited position.
	assert.Equal(t, 0.0, annotated[1].CorrectedVolume)
	assert.InDelta(t, 50.0, annotated[1].Position, 1e-9)
	assert.InDelta(t, 0.0, annotated[2].Position, 1e-9)
}

func TestProcessGroupSameDaySaleExhaustsQueue(t *testing.T) {
	// A lot bought the same day cannot cover the sale; the group faults
	// instead of matching against it.
	p := NewFIFOProcessor()
	txs := []models.Transaction{
		tx("F1", "FI0001", day(2020, time.May, 4), 1, models.SideBuy, 100, 10, 1),
		tx("F1", "FI0001", day(2020, time.May, 4), 2, models.SideSell, 50, 11, 1),
	}

	_, _, err := p.ProcessGroup(txs)
	require.Error(t, err)
	var groupErr *GroupError
	require.ErrorAs(t, err, &groupErr)
	assert.Equal(t, "F1", groupErr.FundID)
	assert.Equal(t, day(2020, time.May, 4), groupErr.Date)
	assert.Contains(t, groupErr.Reason, "lot queue exhausted")
}

func TestProcessGroupContractViolations(t *testing.T) {
	base := day(2020, time.May, 4)
	tests := []struct {
		name string
		txs  []models.Transaction
	}{
		{
			name: "out of date order",
			txs: []models.Transaction{
				tx("F1", "FI0001", base, 1, models.SideBuy, 10, 10, 1),
				tx("F1", "FI0001", base.AddDate(0, 0, -1), 1, models.SideBuy, 10, 10, 1),
			},
		},
		{
			name: "out of seq order within day",
			txs: []models.Transaction{
				tx("F1", "FI0001", base, 2, models.SideBuy, 10, 10, 1),
				tx("F1", "FI0001", base, 1, models.SideBuy, 10, 10, 1),
			},
		},
		{
			name: "non-positive factor",
			txs: []models.Transaction{
				tx("F1", "FI0001", base, 1, models.SideBuy, 10, 10, 0),
			},
		},
		{
			name: "negative volume",
			txs: []models.Transaction{
				tx("F1", "FI0001", base, 1, models.SideBuy, -10, 10, 1),
			},
		},
		{
			name: "negative price",
			txs: []models.Transaction{
				tx("F1", "FI0001", base, 1, models.SideBuy, 10, -10, 1),
			},
		},
		{
			name: "mixed group identity",
			txs: []models.Transaction{
				tx("F1", "FI0001", base, 1, models.SideBuy, 10, 10, 1),
				tx("F2", "FI0001", base.AddDate(0, 0, 1), 1, models.SideBuy, 10, 10, 1),
			},
		},
	}

	p := NewFIFOProcessor()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := p.ProcessGroup(tc.txs)
			var groupErr *GroupError
			require.ErrorAs(t, err, &groupErr)
		})
	}
}

func TestProcessGroupEmptyStream(t *testing.T) {
	p := NewFIFOProcessor()
	annotated, lots, err := p.ProcessGroup(nil)
	require.NoError(t, err)
	assert.Nil(t, annotated)
	assert.Nil(t, lots)
}

func TestProcessGroupPositionNeverNegative(t *testing.T) {
	p := NewFIFOProcessor()
	txs := []models.Transaction{
		tx("F1", "FI0001", day(2019, time.January, 2), 1, models.SideBuy, 10, 10, 1),
		tx("F1", "FI0001", day(2019, time.January, 10), 1, models.SideSell, 100, 10, 1),
		tx("F1", "FI0001", day(2019, time.February, 1), 1, models.SideSell, 100, 10, 1),
		tx("F1", "FI0001", day(2019, time.March, 1), 1, models.SideBuy, 5, 10, 1),
	}

	annotated, _, err := p.ProcessGroup(txs)
	require.NoError(t, err)
	for _, a := range annotated {
		assert.GreaterOrEqual(t, a.Position, 0.0)
	}
}

func TestProcessGroupIsStateless(t *testing.T) {
	p := NewFIFOProcessor()
	txs := []models.Transaction{
		tx("F1", "FI0001", day(2020, time.March, 2), 1, models.SideBuy, 100, 10, 1),
		tx("F1", "FI0001", day(2020, time.March, 10), 1, models.SideSell, 40, 15, 1),
	}

	first, _, err := p.ProcessGroup(txs)
	require.NoError(t, err)
	second, _, err := p.ProcessGroup(txs)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
