package scorers

import (
	"gonum.org/v1/gonum/stat"

	"github.com/fundtrail/fundtrail/internal/domain"
	"github.com/fundtrail/fundtrail/internal/modules/scoring"
)

// Track record sub-factor weights. Sub-scores that cannot be computed for a
// manager are omitted and the remaining weights renormalize to sum to 1;
// coverage reports the computed fraction.
const (
	weightWinRate     = 0.35
	weightConsistency = 0.25
	weightCrisisAlpha = 0.20
	weightLongevity   = 0.20

	// Ten years of quarterly filings saturates the longevity sub-score.
	longevityCapQuarters = 40
)

// TrackRecordScorer rates managers on realized outcomes and behavior across
// their full filing history.
type TrackRecordScorer struct{}

// NewTrackRecordScorer creates a track record scorer
func NewTrackRecordScorer() *TrackRecordScorer {
	return &TrackRecordScorer{}
}

// Name returns the score type identifier.
func (s *TrackRecordScorer) Name() string { return "track_record" }

// Compute scores every manager with ledger activity.
func (s *TrackRecordScorer) Compute(u *scoring.Universe) ([]domain.ScoreRecord, error) {
	byManager := u.ByManager()
	if len(byManager) == 0 {
		return nil, nil
	}

	records := make([]domain.ScoreRecord, 0, len(byManager))
	for managerID, acts := range byManager {
		components := make(map[string]float64)
		weights := make(map[string]float64)

		if winRate, ok := computeWinRate(acts, u.Prices); ok {
			components["win_rate"] = winRate
			weights["win_rate"] = weightWinRate
		}
		if consistency, ok := computeConsistency(acts); ok {
			components["consistency"] = consistency
			weights["consistency"] = weightConsistency
		}
		if crisisAlpha, ok := computeCrisisAlpha(acts); ok {
			components["crisis_alpha"] = crisisAlpha
			weights["crisis_alpha"] = weightCrisisAlpha
		}
		components["longevity"] = computeLongevity(acts)
		weights["longevity"] = weightLongevity

		totalWeight := 0.0
		for _, w := range weights {
			totalWeight += w
		}

		score := 0.0
		for name, w := range weights {
			score += components[name] * (w / totalWeight)
		}

		rounded := make(map[string]float64, len(components))
		for name, v := range components {
			rounded[name] = scoring.Round3(v)
		}

		records = append(records, domain.ScoreRecord{
			Type:       s.Name(),
			Subject:    managerID,
			AsOf:       u.AsOf,
			Score:      scoring.Round3(score * 10),
			Coverage:   scoring.Round3(float64(len(components)) / 4.0),
			Components: rounded,
		})
	}

	return scoring.Rank(records), nil
}

// computeWinRate measures the fraction of closed positions whose price rose
// between entry and exit. Episodes missing a price on either side are
// excluded, never counted as losses. Not computable without any priced
// closed position.
func computeWinRate(acts []domain.ActivityRecord, prices domain.PriceProvider) (float64, bool) {
	if prices == nil {
		return 0, false
	}

	entries := make(map[string]domain.Quarter)
	wins, closed := 0, 0

	for _, a := range acts {
		switch a.Type {
		case domain.ActivityBuy:
			if _, open := entries[a.Ticker]; !open {
				entries[a.Ticker] = a.Quarter
			}
		case domain.ActivitySell:
			entry, open := entries[a.Ticker]
			if !open {
				continue
			}
			delete(entries, a.Ticker)

			entryPrice, err := prices.GetPrice(a.Ticker, entry.EndDate())
			if err != nil {
				continue
			}
			exitPrice, err := prices.GetPrice(a.Ticker, a.Quarter.EndDate())
			if err != nil {
				continue
			}

			closed++
			if exitPrice > entryPrice {
				wins++
			}
		}
	}

	if closed == 0 {
		return 0, false
	}
	return float64(wins) / float64(closed), true
}

// computeConsistency is the inverse of the variance of per-quarter net-buy
// ratios. Steady behavior across quarters scores near 1, erratic flip-flops
// decay toward 0. Needs at least two active quarters.
func computeConsistency(acts []domain.ActivityRecord) (float64, bool) {
	type tally struct{ net, total float64 }
	byQuarter := make(map[domain.Quarter]*tally)

	for _, a := range acts {
		t, ok := byQuarter[a.Quarter]
		if !ok {
			t = &tally{}
			byQuarter[a.Quarter] = t
		}
		switch a.Type {
		case domain.ActivityBuy, domain.ActivityAdd:
			t.net++
			t.total++
		case domain.ActivityReduce, domain.ActivitySell:
			t.net--
			t.total++
		case domain.ActivityHold:
			t.total++
		}
	}

	ratios := make([]float64, 0, len(byQuarter))
	for _, t := range byQuarter {
		if t.total > 0 {
			ratios = append(ratios, t.net/t.total)
		}
	}
	if len(ratios) < 2 {
		return 0, false
	}

	variance := stat.Variance(ratios, nil)
	return 1.0 / (1.0 + variance), true
}

// computeCrisisAlpha measures net buying during the fixed crisis calendar,
// mapped from [-1,1] to [0,1]. Buying into drawdowns scores high. Not
// computable for managers with no crisis-quarter activity.
func computeCrisisAlpha(acts []domain.ActivityRecord) (float64, bool) {
	net, total := 0.0, 0.0
	for _, a := range acts {
		if !domain.CrisisQuarters[a.Quarter] {
			continue
		}
		switch a.Type {
		case domain.ActivityBuy, domain.ActivityAdd:
			net++
			total++
		case domain.ActivityReduce, domain.ActivitySell:
			net--
			total++
		case domain.ActivityHold:
			total++
		}
	}

	if total == 0 {
		return 0, false
	}
	return (net/total + 1) / 2, true
}

// computeLongevity counts distinct active quarters, saturating at ten years.
func computeLongevity(acts []domain.ActivityRecord) float64 {
	quarters := make(map[domain.Quarter]bool)
	for _, a := range acts {
		quarters[a.Quarter] = true
	}

	longevity := float64(len(quarters)) / longevityCapQuarters
	if longevity > 1 {
		longevity = 1
	}
	return longevity
}
