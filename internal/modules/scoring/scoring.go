// Package scoring computes ranked score tables over the activity ledger.
// Every score is a pure function of a Universe snapshot; scorers never
// touch storage. Sparse data lowers a record's coverage, it never raises.
package scoring

import (
	"math"
	"sort"

	"github.com/fundtrail/fundtrail/internal/domain"
)

// Universe is the immutable input to every scorer: the full ledger slice,
// the managers behind it, current positions as of the computation quarter,
// and the optional price series.
type Universe struct {
	AsOf            domain.Quarter
	Activities      []domain.ActivityRecord
	Managers        []domain.Manager
	CurrentHoldings []domain.HoldingRecord
	Prices          domain.PriceProvider
}

// Scorer computes one named score table over a universe.
type Scorer interface {
	Name() string
	Compute(u *Universe) ([]domain.ScoreRecord, error)
}

// ByManager groups activities per manager, preserving ledger order.
func (u *Universe) ByManager() map[string][]domain.ActivityRecord {
	out := make(map[string][]domain.ActivityRecord)
	for _, a := range u.Activities {
		out[a.ManagerID] = append(out[a.ManagerID], a)
	}
	return out
}

// ByTicker groups activities per ticker, preserving ledger order.
func (u *Universe) ByTicker() map[string][]domain.ActivityRecord {
	out := make(map[string][]domain.ActivityRecord)
	for _, a := range u.Activities {
		out[a.Ticker] = append(out[a.Ticker], a)
	}
	return out
}

// Holders maps each currently held ticker to the holding records backing it.
func (u *Universe) Holders() map[string][]domain.HoldingRecord {
	out := make(map[string][]domain.HoldingRecord)
	for _, h := range u.CurrentHoldings {
		out[h.Ticker] = append(out[h.Ticker], h)
	}
	return out
}

// Normalize rescales raw sub-factor values to [0,1] against the universe
// distribution (min-max). A degenerate distribution maps everything to 0.5
// so the sub-factor neither rewards nor punishes anyone.
func Normalize(raw map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(raw))
	if len(raw) == 0 {
		return out
	}

	lo := math.Inf(1)
	hi := math.Inf(-1)
	for _, v := range raw {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	span := hi - lo
	for k, v := range raw {
		if span == 0 {
			out[k] = 0.5
		} else {
			out[k] = (v - lo) / span
		}
	}
	return out
}

// Rank sorts records by score descending and assigns 1-based ranks. Ties
// break by subject lexical order so ranking is deterministic.
func Rank(records []domain.ScoreRecord) []domain.ScoreRecord {
	sort.Slice(records, func(i, j int) bool {
		if records[i].Score != records[j].Score {
			return records[i].Score > records[j].Score
		}
		return records[i].Subject < records[j].Subject
	})
	for i := range records {
		records[i].Rank = i + 1
	}
	return records
}

// Round3 rounds to three decimals for stable display and export.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
