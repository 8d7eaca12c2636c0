package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/username/fundfolio/backend/src/logger"
	"github.com/username/fundfolio/backend/src/models"
	"github.com/username/fundfolio/backend/src/utils"
)

// Expected header of the end-of-day market data feed.
var marketDataColumns = []string{"isin", "date", "ajexdi", "div", "prccd"}

type csvMarketDataParser struct{}

func NewMarketDataParser() MarketDataParser {
	return &csvMarketDataParser{}
}

// Parse reads the end-of-day market data CSV. Empty numeric fields become
// NaN so the adjustment processor can apply its own screening; zero
// dividends are treated as missing, matching the upstream convention that a
// recorded zero payout is a data artifact, not a distribution.
func (p *csvMarketDataParser) Parse(file io.Reader) ([]models.EODRecord, error) {
	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading market data CSV header: %w", err)
	}
	cols, err := columnIndex(header, marketDataColumns)
	if err != nil {
		return nil, err
	}

	var records []models.EODRecord
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("reading market data CSV line %d: %w", line, err)
		}

		date := utils.ParseDate(strings.TrimSpace(record[cols["date"]]))
		if date.IsZero() {
			logger.L.Warn("Skipping market data row with unparseable date", "line", line)
			continue
		}

		div := parseFloatOrNaN(record[cols["div"]])
		if div == 0 {
			div = math.NaN()
		}

		records = append(records, models.EODRecord{
			ISIN:   strings.TrimSpace(record[cols["isin"]]),
			Date:   date,
			Ajexdi: parseFloatOrNaN(record[cols["ajexdi"]]),
			Div:    div,
			Price:  parseFloatOrNaN(record[cols["prccd"]]),
		})
	}

	logger.L.Info("Parsed market data CSV", "rows", len(records))
	return records, nil
}

func parseFloatOrNaN(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
