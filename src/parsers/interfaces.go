package parsers

import (
	"io"

	"github.com/username/fundfolio/backend/src/models"
)

// TransactionParser parses a transaction history CSV into raw rows.
type TransactionParser interface {
	Parse(file io.Reader) ([]models.RawTransaction, error)
}

// MarketDataParser parses an end-of-day market data CSV.
type MarketDataParser interface {
	Parse(file io.Reader) ([]models.EODRecord, error)
}
