package scorers

import (
	"github.com/fundtrail/fundtrail/internal/domain"
	"github.com/fundtrail/fundtrail/internal/modules/scoring"
)

// MomentumScorer ranks tickers by net accumulation across all managers over
// a trailing window: buys and adds push up, reduces and sells push down.
type MomentumScorer struct {
	// Window is the trailing quarter count; zero falls back to a year.
	Window int
}

// NewMomentumScorer creates a momentum scorer with a one year window
func NewMomentumScorer() *MomentumScorer {
	return &MomentumScorer{Window: 4}
}

// Name returns the score type identifier.
func (s *MomentumScorer) Name() string { return "momentum" }

// Compute scores every ticker with activity inside the window.
func (s *MomentumScorer) Compute(u *scoring.Universe) ([]domain.ScoreRecord, error) {
	window := s.Window
	if window <= 0 {
		window = 4
	}

	net := make(map[string]float64)
	buyers := make(map[string]map[string]bool)

	for _, a := range u.Activities {
		if u.AsOf.Index()-a.Quarter.Index() >= window {
			continue
		}
		switch a.Type {
		case domain.ActivityBuy, domain.ActivityAdd:
			net[a.Ticker]++
			if buyers[a.Ticker] == nil {
				buyers[a.Ticker] = make(map[string]bool)
			}
			buyers[a.Ticker][a.ManagerID] = true
		case domain.ActivityReduce, domain.ActivitySell:
			net[a.Ticker]--
		}
	}
	if len(net) == 0 {
		return nil, nil
	}

	normalized := scoring.Normalize(net)

	records := make([]domain.ScoreRecord, 0, len(net))
	for ticker, n := range normalized {
		records = append(records, domain.ScoreRecord{
			Type:     s.Name(),
			Subject:  ticker,
			AsOf:     u.AsOf,
			Score:    scoring.Round3(n * 10),
			Coverage: 1.0,
			Components: map[string]float64{
				"net_activity":    net[ticker],
				"distinct_buyers": float64(len(buyers[ticker])),
			},
		})
	}

	return scoring.Rank(records), nil
}
