// Package di provides dependency injection for repository implementations.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fundtrail/fundtrail/internal/modules/ledger"
	"github.com/fundtrail/fundtrail/internal/modules/normalizer"
	"github.com/fundtrail/fundtrail/internal/modules/prices"
	"github.com/fundtrail/fundtrail/internal/modules/runs"
	"github.com/fundtrail/fundtrail/internal/modules/scoring"
	"github.com/fundtrail/fundtrail/internal/modules/snapshots"
)

// InitializeRepositories creates all repositories and stores them in the container
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	// Snapshot repository (needs snapshotsDB)
	container.SnapshotRepo = snapshots.NewRepository(
		container.SnapshotsDB.Conn(),
		log,
	)

	// Identity repository (needs ledgerDB, managers and aliases live next to
	// the activities they describe)
	container.IdentityRepo = normalizer.NewIdentityRepository(
		container.LedgerDB.Conn(),
		log,
	)

	// Ledger repository (needs ledgerDB)
	container.LedgerRepo = ledger.NewRepository(
		container.LedgerDB.Conn(),
		log,
	)

	// Price repository (needs cacheDB)
	container.PriceRepo = prices.NewRepository(
		container.CacheDB.Conn(),
		log,
	)

	// Score repository (needs cacheDB, score tables are recomputable)
	container.ScoreRepo = scoring.NewRepository(
		container.CacheDB.Conn(),
		log,
	)

	// Run repository (needs cacheDB)
	container.RunRepo = runs.NewRepository(
		container.CacheDB.Conn(),
		log,
	)

	log.Debug().Msg("Repositories initialized")
	return nil
}
