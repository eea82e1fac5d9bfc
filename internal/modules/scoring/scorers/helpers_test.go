package scorers

import (
	"time"

	"github.com/fundtrail/fundtrail/internal/domain"
	"github.com/fundtrail/fundtrail/internal/modules/scoring"
)

var (
	tq1 = domain.Quarter{Year: 2019, Q: 1}
	tq2 = domain.Quarter{Year: 2019, Q: 2}
	tq3 = domain.Quarter{Year: 2019, Q: 3}
	tq4 = domain.Quarter{Year: 2019, Q: 4}
)

func act(manager, ticker string, q domain.Quarter, typ domain.ActivityType, pct float64) domain.ActivityRecord {
	shares := int64(100)
	if typ == domain.ActivitySell {
		shares = 0
	}
	return domain.ActivityRecord{
		ManagerID:      manager,
		Ticker:         ticker,
		Quarter:        q,
		Type:           typ,
		Shares:         shares,
		PctOfPortfolio: pct,
	}
}

func pos(manager, ticker string, pct float64) domain.HoldingRecord {
	return domain.HoldingRecord{
		ManagerID:      manager,
		Ticker:         ticker,
		Quarter:        tq4,
		Shares:         100,
		PctOfPortfolio: pct,
	}
}

// stubPrices serves fixed closes keyed by ticker and date.
type stubPrices struct {
	closes map[string]map[string]float64
}

func (s *stubPrices) GetPrice(ticker string, date time.Time) (float64, error) {
	if byDate, ok := s.closes[ticker]; ok {
		if close, ok := byDate[date.Format("2006-01-02")]; ok {
			return close, nil
		}
	}
	return 0, domain.ErrPriceUnavailable
}

func universe(activities []domain.ActivityRecord, holdings []domain.HoldingRecord, prices domain.PriceProvider) *scoring.Universe {
	return &scoring.Universe{
		AsOf:            tq4,
		Activities:      activities,
		CurrentHoldings: holdings,
		Prices:          prices,
	}
}
