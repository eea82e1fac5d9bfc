package scoring

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/fundtrail/fundtrail/internal/domain"
	"github.com/fundtrail/fundtrail/internal/modules/ledger"
)

// Service builds score universes from the ledger and runs registered
// scorers over them.
type Service struct {
	ledger  *ledger.Repository
	scores  *Repository
	prices  domain.PriceProvider
	scorers []Scorer
	log     zerolog.Logger
}

// NewService creates a scoring service. The price provider may be nil;
// price-dependent sub-scores then degrade per scorer.
func NewService(ledgerRepo *ledger.Repository, scoreRepo *Repository, prices domain.PriceProvider, log zerolog.Logger) *Service {
	return &Service{
		ledger: ledgerRepo,
		scores: scoreRepo,
		prices: prices,
		log:    log.With().Str("module", "scoring").Logger(),
	}
}

// Register adds a scorer to the computation set.
func (s *Service) Register(scorer Scorer) {
	s.scorers = append(s.scorers, scorer)
}

// Scorers returns the registered score type names, sorted.
func (s *Service) Scorers() []string {
	names := make([]string, 0, len(s.scorers))
	for _, sc := range s.scorers {
		names = append(names, sc.Name())
	}
	sort.Strings(names)
	return names
}

// BuildUniverse assembles the scoring input from the current ledger state.
// Returns nil when the ledger is empty.
func (s *Service) BuildUniverse() (*Universe, error) {
	activities, err := s.ledger.Activities(ledger.Query{})
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	if len(activities) == 0 {
		return nil, nil
	}

	asOf := activities[0].Quarter
	managerIDs := make(map[string]bool)
	for _, a := range activities {
		if asOf.Before(a.Quarter) {
			asOf = a.Quarter
		}
		managerIDs[a.ManagerID] = true
	}

	u := &Universe{
		AsOf:       asOf,
		Activities: activities,
		Prices:     s.prices,
	}

	ids := make([]string, 0, len(managerIDs))
	for id := range managerIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		holdings, err := s.ledger.HoldingsAsOf(id, asOf)
		if err != nil {
			return nil, fmt.Errorf("failed to reconstruct holdings for %s: %w", id, err)
		}
		u.CurrentHoldings = append(u.CurrentHoldings, holdings...)
	}

	return u, nil
}

// ComputeAll runs every registered scorer over a fresh universe and persists
// each resulting table. Returns the tables keyed by score type.
func (s *Service) ComputeAll() (map[string][]domain.ScoreRecord, error) {
	u, err := s.BuildUniverse()
	if err != nil {
		return nil, err
	}
	if u == nil {
		s.log.Info().Msg("Ledger empty, nothing to score")
		return map[string][]domain.ScoreRecord{}, nil
	}

	results := make(map[string][]domain.ScoreRecord, len(s.scorers))
	for _, scorer := range s.scorers {
		records, err := scorer.Compute(u)
		if err != nil {
			return nil, fmt.Errorf("scorer %s failed: %w", scorer.Name(), err)
		}

		if err := s.scores.SaveTable(scorer.Name(), u.AsOf, records); err != nil {
			return nil, err
		}
		results[scorer.Name()] = records

		s.log.Info().
			Str("score", scorer.Name()).
			Str("as_of", u.AsOf.String()).
			Int("records", len(records)).
			Msg("Score table computed")
	}

	return results, nil
}

// Latest returns the stored table for one score type.
func (s *Service) Latest(scoreType string) ([]domain.ScoreRecord, error) {
	return s.scores.Latest(scoreType)
}
