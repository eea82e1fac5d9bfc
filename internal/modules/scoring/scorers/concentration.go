package scorers

import (
	"github.com/fundtrail/fundtrail/internal/domain"
	"github.com/fundtrail/fundtrail/internal/modules/scoring"
)

// ConcentrationDeltaScorer measures how much each manager concentrated or
// diluted its portfolio between its last two observed quarters, using the
// Herfindahl index over portfolio weights. Positive delta (concentrating)
// ranks higher: conviction is building.
type ConcentrationDeltaScorer struct{}

// NewConcentrationDeltaScorer creates a concentration delta scorer
func NewConcentrationDeltaScorer() *ConcentrationDeltaScorer {
	return &ConcentrationDeltaScorer{}
}

// Name returns the score type identifier.
func (s *ConcentrationDeltaScorer) Name() string { return "concentration_delta" }

// Compute scores every manager with at least two observed quarters.
func (s *ConcentrationDeltaScorer) Compute(u *scoring.Universe) ([]domain.ScoreRecord, error) {
	byManager := u.ByManager()

	deltas := make(map[string]float64)
	current := make(map[string]float64)
	previous := make(map[string]float64)

	for managerID, acts := range byManager {
		quarters := distinctQuarters(acts)
		if len(quarters) < 2 {
			continue
		}
		last := quarters[len(quarters)-1]
		prior := quarters[len(quarters)-2]

		lastHHI := herfindahl(acts, last)
		priorHHI := herfindahl(acts, prior)

		deltas[managerID] = lastHHI - priorHHI
		current[managerID] = lastHHI
		previous[managerID] = priorHHI
	}
	if len(deltas) == 0 {
		return nil, nil
	}

	normalized := scoring.Normalize(deltas)

	records := make([]domain.ScoreRecord, 0, len(deltas))
	for managerID, n := range normalized {
		records = append(records, domain.ScoreRecord{
			Type:     s.Name(),
			Subject:  managerID,
			AsOf:     u.AsOf,
			Score:    scoring.Round3(n * 10),
			Coverage: 1.0,
			Components: map[string]float64{
				"hhi_current":  scoring.Round3(current[managerID]),
				"hhi_previous": scoring.Round3(previous[managerID]),
				"hhi_delta":    scoring.Round3(deltas[managerID]),
			},
		})
	}

	return scoring.Rank(records), nil
}

// herfindahl sums squared portfolio weight fractions over one quarter's
// resulting positions.
func herfindahl(acts []domain.ActivityRecord, q domain.Quarter) float64 {
	hhi := 0.0
	for _, a := range acts {
		if a.Quarter != q || a.Shares == 0 {
			continue
		}
		w := a.PctOfPortfolio / 100
		hhi += w * w
	}
	return hhi
}

func distinctQuarters(acts []domain.ActivityRecord) []domain.Quarter {
	seen := make(map[domain.Quarter]bool)
	var quarters []domain.Quarter
	for _, a := range acts {
		if !seen[a.Quarter] {
			seen[a.Quarter] = true
			quarters = append(quarters, a.Quarter)
		}
	}
	return domain.SortQuarters(quarters)
}
