package processors

import (
	"github.com/username/fundfolio/backend/src/models"
	"github.com/username/fundfolio/backend/src/utils"
)

// ExpansionProcessor resamples an annotated transaction stream into one row
// per calendar day spanning the group's holding period.
type ExpansionProcessor struct{}

func NewExpansionProcessor() *ExpansionProcessor {
	return &ExpansionProcessor{}
}

// ExpandGroup produces rows for every day from the first to the last
// transaction date, inclusive. Trading days aggregate that day's
// transactions; other days inherit the last known position, mean price and
// mean factor, and carry zero for the flow fields.
func (p *ExpansionProcessor) ExpandGroup(annotated []models.AnnotatedTransaction) []models.DailyHolding {
	if len(annotated) == 0 {
		return nil
	}

	fundID, isin := annotated[0].FundID, annotated[0].ISIN
	first := utils.Day(annotated[0].Date)
	last := utils.Day(annotated[len(annotated)-1].Date)

	var out []models.DailyHolding
	idx := 0
	var carry models.DailyHolding // last trading day's row, for forward fill

	for day := first; !day.After(last); day = utils.NextDay(day) {
		row := models.DailyHolding{
			FundID:     fundID,
			ISIN:       isin,
			Date:       day,
			MeanPrice:  carry.MeanPrice,
			MeanFactor: carry.MeanFactor,
			Position:   carry.Position,
		}

		var priceSum, factorSum float64
		for idx < len(annotated) && utils.Day(annotated[idx].Date).Equal(day) {
			tx := annotated[idx]
			row.VolumeSum += tx.Volume
			row.CorrectedVolumeSum += tx.CorrectedVolume
			row.ProfitSum += tx.Profit
			row.TransactionCount++
			priceSum += tx.Price
			factorSum += tx.Factor
			row.Position = tx.Position
			idx++
		}
		if row.TransactionCount > 0 {
			row.MeanPrice = priceSum / float64(row.TransactionCount)
			row.MeanFactor = factorSum / float64(row.TransactionCount)
			carry = row
		}

		out = append(out, row)
	}

	return out
}
