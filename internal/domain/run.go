package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BacktestRun is the ordered result of folding trades over a starting capital
// for one instrument + leverage selection.
type BacktestRun struct {
	Selection   Selection
	StartEquity decimal.Decimal
	EndEquity   decimal.Decimal
	Trades      []LeveragedTrade // ordered by EntryDate ASC, ties by Index ASC
}

// EquityPoint is one point of the equity curve.
type EquityPoint struct {
	Time   time.Time
	Equity decimal.Decimal
}

// CoercionWarning records a cell that could not be coerced and was defaulted.
type CoercionWarning struct {
	Row    int    // 1-based row number in the source table (header is row 1)
	Column string // bound column name
	Value  string // raw cell text
	Reason string
}

// Dataset is a normalized trade feed for one instrument.
type Dataset struct {
	Instrument  string
	Sheet       string
	Records     []TradeRecord
	Warnings    []CoercionWarning
	Dropped     int    // rows dropped for lack of a parseable entry date
	Fingerprint string // content fingerprint of the source, empty if unknown
	Fallback    bool   // true when served from the built-in sample dataset
}
