// Package domain holds the core data model shared by every module:
// managers, holdings, activity records, quarters and score records.
// It has no infrastructure dependencies.
package domain

import "time"

// ActivityType classifies the inferred transaction behavior between two
// consecutive quarterly snapshots. It is produced only by the reconciler's
// classification function, never set independently.
type ActivityType string

const (
	ActivityBuy    ActivityType = "Buy"
	ActivityAdd    ActivityType = "Add"
	ActivityReduce ActivityType = "Reduce"
	ActivitySell   ActivityType = "Sell"
	ActivityHold   ActivityType = "Hold"
)

// Manager is the identity entity for an institutional manager. Created on
// first encountered filing, never deleted. DisplayName may be corrected in
// place when a cleaner variant is parsed; every raw variant is kept in the
// append-only alias index.
type Manager struct {
	ID               string
	DisplayName      string
	Firm             string
	FirstSeenQuarter Quarter
	LastSeenQuarter  Quarter
}

// RawHolding is one row as parsed out of a snapshot's holdings table,
// before temporal normalization. Textual fields are already converted to
// typed values at the parser boundary.
type RawHolding struct {
	Ticker         string
	Company        string
	PctOfPortfolio float64
	ActivityLabel  string // reported action text, e.g. "Add 12.34%"
	Shares         int64
	ReportedPrice  float64
	ValueUSD       float64
}

// HoldingRecord is one manager's position in one ticker as of one quarter.
// At most one HoldingRecord exists per (manager, ticker, quarter).
type HoldingRecord struct {
	ManagerID      string
	Ticker         string
	Quarter        Quarter
	Shares         int64
	ValueUSD       float64
	PctOfPortfolio float64
}

// ActivityRecord is derived from a pair of consecutive HoldingRecords (or a
// single one at a ticker's first/last appearance). Immutable once computed;
// a manager's full set is recomputed wholesale when its holdings change.
type ActivityRecord struct {
	ManagerID      string
	Ticker         string
	Quarter        Quarter
	Type           ActivityType
	Shares         int64 // resulting share count (0 for Sell)
	SharesDelta    int64
	ValueUSD       float64
	PctOfPortfolio float64 // resulting portfolio weight
	PctDelta       float64
}

// ScoreRecord is a named score bound to a subject (ticker or manager) at a
// computation quarter. Purely derived; recomputable from the ledger at any
// time. Coverage is the fraction of sub-factors that could be computed given
// available data.
type ScoreRecord struct {
	Type       string             `json:"type"`
	Subject    string             `json:"subject"`
	AsOf       Quarter            `json:"as_of"`
	Score      float64            `json:"score"`
	Coverage   float64            `json:"coverage"`
	Rank       int                `json:"rank"`
	Components map[string]float64 `json:"components"`
}

// RawSnapshot is one fetched disclosure document for one manager and one
// filing period, as stored by the snapshot store.
type RawSnapshot struct {
	ManagerID string
	Period    string
	HTML      string
	FetchedAt time.Time
}

// PriceProvider is the optional external price series. Implementations
// return ErrPriceUnavailable when no price exists near the requested date.
type PriceProvider interface {
	GetPrice(ticker string, date time.Time) (float64, error)
}

// CrisisQuarters is the fixed calendar of major market downturns used by
// crisis-alpha scoring: the 2008 financial crisis, the 2020 COVID crash and
// the 2022 inflation drawdown.
var CrisisQuarters = map[Quarter]bool{
	{Year: 2008, Q: 3}: true,
	{Year: 2008, Q: 4}: true,
	{Year: 2009, Q: 1}: true,
	{Year: 2009, Q: 2}: true,
	{Year: 2020, Q: 1}: true,
	{Year: 2020, Q: 2}: true,
	{Year: 2022, Q: 1}: true,
	{Year: 2022, Q: 2}: true,
	{Year: 2022, Q: 3}: true,
}

// PremiumManagers maps manager IDs of a curated top-tier set to quality
// multipliers (1.0 = average). Used by the hidden-gem Manager Quality factor.
var PremiumManagers = map[string]float64{
	"berkshire": 2.0,
	"bh":        2.0,
	"munger":    1.8,
	"cm":        1.8,
	"akre":      1.6,
	"value":     1.5,
	"pershing":  1.4,
	"mohnish":   1.3,
}
