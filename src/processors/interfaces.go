package processors

import (
	"github.com/username/fundfolio/backend/src/models"
)

// MatchingEngine processes one ordered (fund, security) transaction stream
// and annotates every transaction with corrected volume, position and
// realized profit. The returned lots are the purchases not yet fully sold.
type MatchingEngine interface {
	ProcessGroup(transactions []models.Transaction) ([]models.AnnotatedTransaction, []models.PurchaseLot, error)
}

// HoldingExpander expands one annotated stream into a continuous daily
// holdings series covering the group's holding period.
type HoldingExpander interface {
	ExpandGroup(annotated []models.AnnotatedTransaction) []models.DailyHolding
}
