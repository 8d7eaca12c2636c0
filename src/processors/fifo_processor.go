package processors

import (
	"fmt"
	"time"

	"github.com/username/fundfolio/backend/src/models"
	"github.com/username/fundfolio/backend/src/utils"
)

// volumeTolerance absorbs float64 noise from repeated factor rescaling.
// Residual volumes below it count as zero.
const volumeTolerance = 1e-9

// GroupError is a fault attributable to one (fund, security) group. It never
// aborts sibling groups; the batch processor collects it per group.
type GroupError struct {
	FundID string
	ISIN   string
	Date   time.Time
	Reason string
}

func (e *GroupError) Error() string {
	if e.Date.IsZero() {
		return fmt.Sprintf("group %s/%s: %s", e.FundID, e.ISIN, e.Reason)
	}
	return fmt.Sprintf("group %s/%s at %s: %s", e.FundID, e.ISIN, e.Date.Format("2006-01-02"), e.Reason)
}

// lotQueue holds the unconsumed purchase lots of one group in chronological
// order. Lots are appended at the tail and consumed from the head; the head
// index advances only on full consumption, partial consumption shrinks the
// head lot in place.
type lotQueue struct {
	lots []models.PurchaseLot
	head int
}

func (q *lotQueue) push(l models.PurchaseLot) { q.lots = append(q.lots, l) }
func (q *lotQueue) size() int                 { return len(q.lots) - q.head }
func (q *lotQueue) peek() *models.PurchaseLot { return &q.lots[q.head] }
func (q *lotQueue) pop()                      { q.head++ }

func (q *lotQueue) remaining() []models.PurchaseLot {
	out := make([]models.PurchaseLot, 0, q.size())
	for _, l := range q.lots[q.head:] {
		if l.RemainingVolume > volumeTolerance {
			out = append(out, l)
		}
	}
	return out
}

// FIFOProcessor is the matching engine. It owns no state between calls;
// position cursor and lot queue live for a single ProcessGroup call, so
// independent groups can be processed concurrently.
type FIFOProcessor struct{}

func NewFIFOProcessor() *FIFOProcessor {
	return &FIFOProcessor{}
}

// ProcessGroup folds over one ordered transaction stream. For every
// transaction it rescales the inherited position into the transaction's
// adjustment-factor units, clamps over-sales to the available position, and
// matches executed sells against the oldest unconsumed purchase lots to
// compute realized profit.
//
// Input contract violations (non-monotonic order, non-positive factor,
// negative volume or price, mixed group identity) reject the whole group:
// producing silently wrong numbers is worse than no numbers.
func (p *FIFOProcessor) ProcessGroup(txs []models.Transaction) ([]models.AnnotatedTransaction, []models.PurchaseLot, error) {
	if len(txs) == 0 {
		return nil, nil, nil
	}

	fundID, isin := txs[0].FundID, txs[0].ISIN
	annotated := make([]models.AnnotatedTransaction, 0, len(txs))
	queue := &lotQueue{}

	var position float64
	var prevFactor float64
	var prevDate time.Time
	var prevSeq int

	for i, tx := range txs {
		if err := p.validate(tx, fundID, isin, i, prevDate, prevSeq); err != nil {
			return nil, nil, err
		}

		if i > 0 {
			// Express the inherited position in this transaction's
			// adjustment-factor units. A no-op when no split or
			// reinvestment event occurred between the two dates.
			position = position / tx.Factor * prevFactor
		}

		var executed, profit float64
		switch dir := tx.Side.Direction(); {
		case dir > 0:
			executed = tx.Volume
			queue.push(models.PurchaseLot{
				FundID:          fundID,
				ISIN:            isin,
				BuyDate:         tx.Date,
				RemainingVolume: tx.Volume,
				Price:           tx.Price,
				Factor:          tx.Factor,
			})
			position += executed
		case dir < 0:
			// Over-sale correction: a sell can never take the
			// position negative, it is clamped to full liquidation.
			executed = utils.MinFloat(tx.Volume, position)
			if executed > volumeTolerance {
				var err error
				profit, err = p.matchSale(queue, executed, tx)
				if err != nil {
					return nil, nil, err
				}
			} else {
				executed = 0
			}
			position -= executed
			if position < volumeTolerance {
				position = 0
			}
			executed = -executed
		}

		annotated = append(annotated, models.AnnotatedTransaction{
			Transaction:     tx,
			CorrectedVolume: executed,
			Position:        position,
			Profit:          profit,
		})

		prevFactor = tx.Factor
		prevDate, prevSeq = tx.Date, tx.Seq
	}

	return annotated, queue.remaining(), nil
}

// matchSale consumes lots from the head of the queue, oldest first, until the
// executed sell volume is covered, and returns the realized profit. Unit
// conversions use the factors of both sides: the lot's remaining raw volume is
// worth lot.RemainingVolume*lot.Factor/sale.Factor in sale-date units, and a
// partially consumed lot shrinks by remaining*sale.Factor/lot.Factor raw units.
func (p *FIFOProcessor) matchSale(queue *lotQueue, volume float64, sale models.Transaction) (float64, error) {
	remaining := volume
	var costBasis float64

	for remaining > volumeTolerance && queue.size() > 0 && queue.peek().BuyDate.Before(sale.Date) {
		lot := queue.peek()
		available := lot.RemainingVolume * lot.Factor / sale.Factor
		if remaining > available {
			// Lot fully consumed.
			costBasis += lot.RemainingVolume * lot.Price
			remaining -= available
			queue.pop()
			continue
		}
		// Lot partially consumed; the sale is fully matched.
		offset := remaining * sale.Factor / lot.Factor
		costBasis += offset * lot.Price
		lot.RemainingVolume -= offset
		remaining = 0
		if lot.RemainingVolume <= volumeTolerance {
			queue.pop()
		}
	}

	if remaining > volumeTolerance {
		// Position tracking promised inventory the lot queue does not
		// have. Surfacing this beats under-reporting cost basis.
		return 0, &GroupError{
			FundID: sale.FundID,
			ISIN:   sale.ISIN,
			Date:   sale.Date,
			Reason: fmt.Sprintf("lot queue exhausted with %.6f units of sale unmatched", remaining),
		}
	}

	return volume*sale.Price - costBasis, nil
}

func (p *FIFOProcessor) validate(tx models.Transaction, fundID, isin string, idx int, prevDate time.Time, prevSeq int) error {
	if tx.FundID != fundID || tx.ISIN != isin {
		return &GroupError{FundID: fundID, ISIN: isin, Date: tx.Date,
			Reason: fmt.Sprintf("stream mixes groups: got %s/%s", tx.FundID, tx.ISIN)}
	}
	if tx.Factor <= 0 {
		return &GroupError{FundID: fundID, ISIN: isin, Date: tx.Date,
			Reason: fmt.Sprintf("non-positive adjustment factor %g", tx.Factor)}
	}
	if tx.Volume < 0 {
		return &GroupError{FundID: fundID, ISIN: isin, Date: tx.Date,
			Reason: fmt.Sprintf("negative volume %g", tx.Volume)}
	}
	if tx.Price < 0 {
		return &GroupError{FundID: fundID, ISIN: isin, Date: tx.Date,
			Reason: fmt.Sprintf("negative price %g", tx.Price)}
	}
	if idx > 0 {
		if tx.Date.Before(prevDate) || (tx.Date.Equal(prevDate) && tx.Seq < prevSeq) {
			return &GroupError{FundID: fundID, ISIN: isin, Date: tx.Date,
				Reason: "transactions out of (date, seq) order"}
		}
	}
	return nil
}
