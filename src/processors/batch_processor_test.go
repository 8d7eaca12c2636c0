package processors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/fundfolio/backend/src/models"
)

func newTestBatchProcessor(workers int) *BatchProcessor {
	return NewBatchProcessor(NewFIFOProcessor(), NewExpansionProcessor(), workers)
}

func TestBatchProcessIsolatesFaultedGroups(t *testing.T) {
	healthy := []models.Transaction{
		tx("F1", "FI0001", day(2020, time.March, 2), 1, models.SideBuy, 100, 10, 1),
		tx("F1", "FI0001", day(2020, time.March, 10), 1, models.SideSell, 40, 15, 1),
	}
	// Same-day buy and sell leaves the sale unmatchable.
	faulted := []models.Transaction{
		tx("F1", "FI0002", day(2020, time.May, 4), 1, models.SideBuy, 100, 10, 1),
		tx("F1", "FI0002", day(2020, time.May, 4), 2, models.SideSell, 50, 11, 1),
	}

	groups := map[models.GroupKey][]models.Transaction{
		{FundID: "F1", ISIN: "FI0001"}: healthy,
		{FundID: "F1", ISIN: "FI0002"}: faulted,
	}

	result := newTestBatchProcessor(4).Process(groups)

	require.Len(t, result.AnnotatedTransactions, 2)
	for _, a := range result.AnnotatedTransactions {
		assert.Equal(t, "FI0001", a.ISIN)
	}
	require.Len(t, result.Faults, 1)
	assert.Equal(t, "FI0002", result.Faults[0].ISIN)
	assert.Contains(t, result.Faults[0].Reason, "lot queue exhausted")

	// The healthy group's daily expansion spans its full holding period.
	assert.Len(t, result.DailyHoldings, 9)
}

func TestBatchProcessDeterministicOrdering(t *testing.T) {
	groups := make(map[models.GroupKey][]models.Transaction)
	isins := []string{"FI0005", "FI0001", "FI0003", "FI0002", "FI0004"}
	for _, isin := range isins {
		groups[models.GroupKey{FundID: "F1", ISIN: isin}] = []models.Transaction{
			tx("F1", isin, day(2020, time.March, 2), 1, models.SideBuy, 10, 10, 1),
		}
	}

	p := newTestBatchProcessor(3)
	first := p.Process(groups)
	second := p.Process(groups)

	require.Len(t, first.AnnotatedTransactions, len(isins))
	for i := 1; i < len(first.AnnotatedTransactions); i++ {
		assert.Less(t, first.AnnotatedTransactions[i-1].ISIN, first.AnnotatedTransactions[i].ISIN)
	}
	assert.Equal(t, first, second)
}

func TestBatchProcessEmptyInput(t *testing.T) {
	result := newTestBatchProcessor(2).Process(nil)
	assert.Empty(t, result.AnnotatedTransactions)
	assert.Empty(t, result.DailyHoldings)
	assert.Empty(t, result.OpenLots)
	assert.Empty(t, result.Faults)
}

func TestBatchProcessSingleWorkerMatchesParallel(t *testing.T) {
	groups := make(map[models.GroupKey][]models.Transaction)
	for _, isin := range []string{"FI0001", "FI0002", "FI0003"} {
		groups[models.GroupKey{FundID: "F1", ISIN: isin}] = []models.Transaction{
			tx("F1", isin, day(2020, time.January, 2), 1, models.SideBuy, 100, 10, 1),
			tx("F1", isin, day(2020, time.January, 20), 1, models.SideSell, 60, 12, 1),
		}
	}

	serial := newTestBatchProcessor(1).Process(groups)
	parallel := newTestBatchProcessor(8).Process(groups)
	assert.Equal(t, serial, parallel)
}
