// Package scorers provides the score implementations run by the scoring
// service.
package scorers

import (
	"github.com/fundtrail/fundtrail/internal/domain"
	"github.com/fundtrail/fundtrail/internal/modules/scoring"
)

// Hidden gem sub-factor weights. Five independently normalized factors
// combine to a 0-10 score per ticker.
const (
	weightExclusivity = 0.30
	weightConviction  = 0.25
	weightRecency     = 0.20
	weightMomentum    = 0.15
	weightQuality     = 0.10

	// Recency looks for a Buy/Add in the most recent quarters; momentum
	// counts Buy/Add over a longer trailing window.
	recencyWindow  = 2
	momentumWindow = 4
)

// HiddenGemScorer surfaces under-followed high-conviction tickers: the
// fewer managers hold it and the harder they lean in, the higher it scores.
type HiddenGemScorer struct{}

// NewHiddenGemScorer creates a hidden gem scorer
func NewHiddenGemScorer() *HiddenGemScorer {
	return &HiddenGemScorer{}
}

// Name returns the score type identifier.
func (s *HiddenGemScorer) Name() string { return "hidden_gem" }

// Compute scores every currently held ticker.
func (s *HiddenGemScorer) Compute(u *scoring.Universe) ([]domain.ScoreRecord, error) {
	holders := u.Holders()
	if len(holders) == 0 {
		return nil, nil
	}

	byTicker := u.ByTicker()

	exclusivity := make(map[string]float64, len(holders))
	conviction := make(map[string]float64, len(holders))
	recency := make(map[string]float64, len(holders))
	momentum := make(map[string]float64, len(holders))
	quality := make(map[string]float64, len(holders))

	for ticker, positions := range holders {
		distinct := make(map[string]bool, len(positions))
		pctSum := 0.0
		best := 1.0
		for _, h := range positions {
			distinct[h.ManagerID] = true
			pctSum += h.PctOfPortfolio
			if mult, ok := domain.PremiumManagers[h.ManagerID]; ok && mult > best {
				best = mult
			}
		}

		exclusivity[ticker] = 1.0 / float64(len(distinct))
		conviction[ticker] = pctSum / float64(len(positions))
		quality[ticker] = best

		recent := 0
		windowed := 0
		for _, a := range byTicker[ticker] {
			if a.Type != domain.ActivityBuy && a.Type != domain.ActivityAdd {
				continue
			}
			age := u.AsOf.Index() - a.Quarter.Index()
			if age < recencyWindow {
				recent++
			}
			if age < momentumWindow {
				windowed++
			}
		}
		if recent > 0 {
			recency[ticker] = 1.0
		}
		momentum[ticker] = float64(windowed)
	}

	nExclusivity := scoring.Normalize(exclusivity)
	nConviction := scoring.Normalize(conviction)
	nRecency := scoring.Normalize(recency)
	nMomentum := scoring.Normalize(momentum)
	nQuality := scoring.Normalize(quality)

	records := make([]domain.ScoreRecord, 0, len(holders))
	for ticker := range holders {
		weighted := nExclusivity[ticker]*weightExclusivity +
			nConviction[ticker]*weightConviction +
			nRecency[ticker]*weightRecency +
			nMomentum[ticker]*weightMomentum +
			nQuality[ticker]*weightQuality

		records = append(records, domain.ScoreRecord{
			Type:     s.Name(),
			Subject:  ticker,
			AsOf:     u.AsOf,
			Score:    scoring.Round3(weighted * 10),
			Coverage: 1.0,
			Components: map[string]float64{
				"exclusivity": scoring.Round3(nExclusivity[ticker]),
				"conviction":  scoring.Round3(nConviction[ticker]),
				"recency":     scoring.Round3(nRecency[ticker]),
				"momentum":    scoring.Round3(nMomentum[ticker]),
				"quality":     scoring.Round3(nQuality[ticker]),
			},
		})
	}

	return scoring.Rank(records), nil
}
