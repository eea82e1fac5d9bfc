package scorers

import (
	"gonum.org/v1/gonum/stat"

	"github.com/fundtrail/fundtrail/internal/domain"
	"github.com/fundtrail/fundtrail/internal/modules/scoring"
)

// PositionSizingScorer rates how decisively a manager sizes new positions:
// the average entry weight of its Buys, tempered by how uniform those entry
// weights are. Bold but repeatable sizing scores high; scattershot tiny
// entries score low.
type PositionSizingScorer struct{}

// NewPositionSizingScorer creates a position sizing scorer
func NewPositionSizingScorer() *PositionSizingScorer {
	return &PositionSizingScorer{}
}

// Name returns the score type identifier.
func (s *PositionSizingScorer) Name() string { return "position_sizing" }

// Compute scores every manager with at least one Buy on record.
func (s *PositionSizingScorer) Compute(u *scoring.Universe) ([]domain.ScoreRecord, error) {
	byManager := u.ByManager()

	avgEntry := make(map[string]float64)
	spread := make(map[string]float64)

	for managerID, acts := range byManager {
		var entries []float64
		for _, a := range acts {
			if a.Type == domain.ActivityBuy {
				entries = append(entries, a.PctOfPortfolio)
			}
		}
		if len(entries) == 0 {
			continue
		}

		avgEntry[managerID] = stat.Mean(entries, nil)
		if len(entries) > 1 {
			spread[managerID] = stat.StdDev(entries, nil)
		}
	}
	if len(avgEntry) == 0 {
		return nil, nil
	}

	nAvg := scoring.Normalize(avgEntry)

	records := make([]domain.ScoreRecord, 0, len(avgEntry))
	for managerID, n := range nAvg {
		// Spread discounts the score: a manager whose entries vary wildly
		// is sizing by accident, not by process.
		discount := 1.0 / (1.0 + spread[managerID]/10)
		score := n * discount

		records = append(records, domain.ScoreRecord{
			Type:     s.Name(),
			Subject:  managerID,
			AsOf:     u.AsOf,
			Score:    scoring.Round3(score * 10),
			Coverage: 1.0,
			Components: map[string]float64{
				"avg_entry_pct":    scoring.Round3(avgEntry[managerID]),
				"entry_pct_stddev": scoring.Round3(spread[managerID]),
			},
		})
	}

	return scoring.Rank(records), nil
}
