package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/models"
)

// Expected header of the transaction history feed.
var transactionColumns = []string{"fund_id", "isin", "trade_date", "buy_sell", "volume", "price"}

type csvTransactionParser struct{}

func NewTransactionParser() TransactionParser {
	return &csvTransactionParser{}
}

// Parse reads the transaction history CSV. The column order is fixed by the
// header; extra columns are ignored so upstream exports can carry their
// bookkeeping fields along.
func (p *csvTransactionParser) Parse(file io.Reader) ([]models.RawTransaction, error) {
	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading transaction CSV header: %w", err)
	}
	cols, err := columnIndex(header, transactionColumns)
	if err != nil {
		return nil, err
	}

	var rows []models.RawTransaction
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reading transaction CSV line %d: %w", line, err)
		}
		rows = append(rows, models.RawTransaction{
			FundID:    strings.TrimSpace(record[cols["fund_id"]]),
			ISIN:      strings.TrimSpace(record[cols["isin"]]),
			TradeDate: strings.TrimSpace(record[cols["trade_date"]]),
			BuySell:   strings.TrimSpace(record[cols["buy_sell"]]),
			Volume:    strings.TrimSpace(record[cols["volume"]]),
			Price:     strings.TrimSpace(record[cols["price"]]),
		})
	}

	logger.L.Info("Parsed transaction CSV", "rows", len(rows))
	return rows, nil
}

// columnIndex maps the required column names to their positions in the
// header, case-insensitively.
func columnIndex(header, required []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	cols := make(map[string]int, len(required))
	for _, name := range required {
		pos, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("CSV header missing required column %q", name)
		}
		cols[name] = pos
	}
	return cols, nil
}
