package parsers

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/fundfolio/backend/src/logger"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	m.Run()
}

func TestTransactionParserParsesRows(t *testing.T) {
	input := `fund_id,isin,trade_date,buy_sell,volume,price
F1,FI0001,2020-03-02,10,100,12.5
F1,FI0002,2020-03-03,20,50,8
`
	rows, err := NewTransactionParser().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "F1", rows[0].FundID)
	assert.Equal(t, "FI0001", rows[0].ISIN)
	assert.Equal(t, "2020-03-02", rows[0].TradeDate)
	assert.Equal(t, "10", rows[0].BuySell)
	assert.Equal(t, "100", rows[0].Volume)
	assert.Equal(t, "12.5", rows[0].Price)
}

func TestTransactionParserIgnoresExtraColumns(t *testing.T) {
	input := `broker_ref,fund_id,isin,trade_date,buy_sell,volume,price,note
x1,F1,FI0001,2020-03-02,10,100,12.5,keep
`
	rows, err := NewTransactionParser().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "FI0001", rows[0].ISIN)
}

func TestTransactionParserHeaderCaseInsensitive(t *testing.T) {
	input := `Fund_ID,ISIN,Trade_Date,Buy_Sell,Volume,Price
F1,FI0001,2020-03-02,10,100,12.5
`
	rows, err := NewTransactionParser().Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestTransactionParserMissingColumn(t *testing.T) {
	input := `fund_id,isin,trade_date,volume,price
F1,FI0001,2020-03-02,100,12.5
`
	_, err := NewTransactionParser().Parse(strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "buy_sell")
}

func TestMarketDataParserMissingAndZeroValues(t *testing.T) {
	input := `isin,date,ajexdi,div,prccd
FI0001,2020-01-02,1,,10
FI0001,2020-01-03,1,0,10
FI0001,2020-01-04,1,0.5,
FI0001,bad-date,1,0.5,10
`
	records, err := NewMarketDataParser().Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Empty and zero dividends are both treated as missing.
	assert.True(t, math.IsNaN(records[0].Div))
	assert.True(t, math.IsNaN(records[1].Div))
	assert.Equal(t, 0.5, records[2].Div)
	assert.True(t, math.IsNaN(records[2].Price))
}
