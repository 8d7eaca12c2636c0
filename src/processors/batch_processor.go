package processors

import (
	"errors"
	"sort"
	"sync"

	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/models"
)

// BatchResult aggregates the outputs of all groups of one batch run. Faulted
// groups contribute to Faults only; healthy groups are unaffected by them.
type BatchResult struct {
	AnnotatedTransactions []models.AnnotatedTransaction `json:"annotated_transactions"`
	DailyHoldings         []models.DailyHolding         `json:"daily_holdings"`
	OpenLots              []models.PurchaseLot          `json:"open_lots"`
	Faults                []models.GroupFault           `json:"faults"`
}

// BatchProcessor fans independent (fund, security) groups out to a worker
// pool. Groups share no state, so there is no locking beyond result
// collection; within a group processing stays strictly sequential.
type BatchProcessor struct {
	engine   MatchingEngine
	expander HoldingExpander
	workers  int
}

func NewBatchProcessor(engine MatchingEngine, expander HoldingExpander, workers int) *BatchProcessor {
	if workers < 1 {
		workers = 1
	}
	return &BatchProcessor{
		engine:   engine,
		expander: expander,
		workers:  workers,
	}
}

type groupOutput struct {
	annotated []models.AnnotatedTransaction
	daily     []models.DailyHolding
	lots      []models.PurchaseLot
	fault     *models.GroupFault
}

// Process runs the matching engine and daily expansion over every group and
// merges the results deterministically (ordered by fund, isin, date, seq).
func (p *BatchProcessor) Process(groups map[models.GroupKey][]models.Transaction) *BatchResult {
	jobs := make(chan models.GroupKey)
	outputs := make(chan groupOutput)

	workers := p.workers
	if len(groups) < workers {
		workers = len(groups)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range jobs {
				outputs <- p.processGroup(key, groups[key])
			}
		}()
	}

	go func() {
		for key := range groups {
			jobs <- key
		}
		close(jobs)
		wg.Wait()
		close(outputs)
	}()

	result := &BatchResult{}
	for out := range outputs {
		result.AnnotatedTransactions = append(result.AnnotatedTransactions, out.annotated...)
		result.DailyHoldings = append(result.DailyHoldings, out.daily...)
		result.OpenLots = append(result.OpenLots, out.lots...)
		if out.fault != nil {
			result.Faults = append(result.Faults, *out.fault)
		}
	}

	sortBatchResult(result)
	return result
}

func (p *BatchProcessor) processGroup(key models.GroupKey, txs []models.Transaction) groupOutput {
	annotated, lots, err := p.engine.ProcessGroup(txs)
	if err != nil {
		logger.L.Warn("Group rejected by matching engine",
			"fundID", key.FundID, "isin", key.ISIN, "error", err)
		return groupOutput{fault: faultFromError(key, err)}
	}
	return groupOutput{
		annotated: annotated,
		daily:     p.expander.ExpandGroup(annotated),
		lots:      lots,
	}
}

func faultFromError(key models.GroupKey, err error) *models.GroupFault {
	var groupErr *GroupError
	if errors.As(err, &groupErr) {
		return &models.GroupFault{
			FundID: groupErr.FundID,
			ISIN:   groupErr.ISIN,
			Date:   groupErr.Date,
			Reason: groupErr.Reason,
		}
	}
	return &models.GroupFault{FundID: key.FundID, ISIN: key.ISIN, Reason: err.Error()}
}

func sortBatchResult(r *BatchResult) {
	sort.Slice(r.AnnotatedTransactions, func(i, j int) bool {
		a, b := r.AnnotatedTransactions[i], r.AnnotatedTransactions[j]
		if a.FundID != b.FundID {
			return a.FundID < b.FundID
		}
		if a.ISIN != b.ISIN {
			return a.ISIN < b.ISIN
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Seq < b.Seq
	})
	sort.Slice(r.DailyHoldings, func(i, j int) bool {
		a, b := r.DailyHoldings[i], r.DailyHoldings[j]
		if a.FundID != b.FundID {
			return a.FundID < b.FundID
		}
		if a.ISIN != b.ISIN {
			return a.ISIN < b.ISIN
		}
		return a.Date.Before(b.Date)
	})
	sort.Slice(r.OpenLots, func(i, j int) bool {
		a, b := r.OpenLots[i], r.OpenLots[j]
		if a.FundID != b.FundID {
			return a.FundID < b.FundID
		}
		if a.ISIN != b.ISIN {
			return a.ISIN < b.ISIN
		}
		return a.BuyDate.Before(b.BuyDate)
	})
	sort.Slice(r.Faults, func(i, j int) bool {
		a, b := r.Faults[i], r.Faults[j]
		if a.FundID != b.FundID {
			return a.FundID < b.FundID
		}
		return a.ISIN < b.ISIN
	})
}
