package processors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/fundfolio/backend/src/models"
)

func annotatedTx(t models.Transaction, corrected, position, profit float64) models.AnnotatedTransaction {
	return models.AnnotatedTransaction{
		Transaction:     t,
		CorrectedVolume: corrected,
		Position:        position,
		Profit:          profit,
	}
}

func TestExpandGroupFillsCalendarGaps(t *testing.T) {
	p := NewExpansionProcessor()
	annotated := []models.AnnotatedTransaction{
		annotatedTx(tx("F1", "FI0001", day(2020, time.March, 1), 1, models.SideBuy, 100, 10, 1), 100, 100, 0),
		annotatedTx(tx("F1", "FI0001", day(2020, time.March, 5), 1, models.SideSell, 40, 12, 1), -40, 60, 80),
	}

	rows := p.ExpandGroup(annotated)
	require.Len(t, rows, 5)

	assert.Equal(t, day(2020, time.March, 1), rows[0].Date)
	assert.Equal(t, day(2020, time.March, 5), rows[4].Date)

	// Trading day aggregates.
	assert.Equal(t, 100.0, rows[0].VolumeSum)
	assert.Equal(t, 1, rows[0].TransactionCount)
	assert.Equal(t, 10.0, rows[0].MeanPrice)
	assert.Equal(t, 100.0, rows[0].Position)

	// Gap days carry the position forward with zero flows.
	for _, row := range rows[1:4] {
		assert.Equal(t, 0.0, row.VolumeSum)
		assert.Equal(t, 0, row.TransactionCount)
		assert.Equal(t, 0.0, row.ProfitSum)
		assert.Equal(t, 100.0, row.Position)
		assert.Equal(t, 10.0, row.MeanPrice)
		assert.Equal(t, 1.0, row.MeanFactor)
	}

	assert.Equal(t, 60.0, rows[4].Position)
	assert.Equal(t, 12.0, rows[4].MeanPrice)
	assert.InDelta(t, 80.0, rows[4].ProfitSum, 1e-9)
	assert.InDelta(t, -40.0, rows[4].CorrectedVolumeSum, 1e-9)
}

func TestExpandGroupAggregatesSameDay(t *testing.T) {
	p := NewExpansionProcessor()
	d := day(2020, time.March, 1)
	annotated := []models.AnnotatedTransaction{
		annotatedTx(tx("F1", "FI0001", d, 1, models.SideBuy, 100, 10, 1), 100, 100, 0),
		annotatedTx(tx("F1", "FI0001", d, 2, models.SideBuy, 50, 14, 1), 50, 150, 0),
	}

	rows := p.ExpandGroup(annotated)
	require.Len(t, rows, 1)

	assert.Equal(t, 150.0, rows[0].VolumeSum)
	assert.Equal(t, 2, rows[0].TransactionCount)
	assert.Equal(t, 12.0, rows[0].MeanPrice)
	// Position reflects the last transaction of the day.
	assert.Equal(t, 150.0, rows[0].Position)
}

func TestExpandGroupSingleTransaction(t *testing.T) {
	p := NewExpansionProcessor()
	annotated := []models.AnnotatedTransaction{
		annotatedTx(tx("F1", "FI0001", day(2020, time.March, 1), 1, models.SideBuy, 100, 10, 1), 100, 100, 0),
	}

	rows := p.ExpandGroup(annotated)
	require.Len(t, rows, 1)
	assert.Equal(t, 100.0, rows[0].Position)
}

func TestExpandGroupEmpty(t *testing.T) {
	p := NewExpansionProcessor()
	assert.Nil(t, p.ExpandGroup(nil))
}
