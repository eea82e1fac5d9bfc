// Package di provides dependency injection for service implementations.
package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fundtrail/fundtrail/internal/config"
	"github.com/fundtrail/fundtrail/internal/database"
	"github.com/fundtrail/fundtrail/internal/modules/normalizer"
	"github.com/fundtrail/fundtrail/internal/modules/parser"
	"github.com/fundtrail/fundtrail/internal/modules/scoring"
	"github.com/fundtrail/fundtrail/internal/modules/scoring/scorers"
	"github.com/fundtrail/fundtrail/internal/pipeline"
	"github.com/fundtrail/fundtrail/internal/reliability"
)

// InitializeServices creates all services and stores them in the container
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.Parser = parser.New(log)
	container.Normalizer = normalizer.New(log)

	// Scoring service with the full scorer set. Scorers run in registration
	// order; each persists its own table.
	container.ScoringService = scoring.NewService(
		container.LedgerRepo,
		container.ScoreRepo,
		container.PriceRepo,
		log,
	)
	container.ScoringService.Register(scorers.NewHiddenGemScorer())
	container.ScoringService.Register(scorers.NewTrackRecordScorer())
	container.ScoringService.Register(scorers.NewMomentumScorer())
	container.ScoringService.Register(scorers.NewConcentrationDeltaScorer())
	container.ScoringService.Register(scorers.NewPositionSizingScorer())

	// Pipeline progress events, consumed by the websocket stream
	container.Events = pipeline.NewBroadcaster()

	container.Pipeline = pipeline.New(
		pipeline.Config{Workers: cfg.Workers},
		container.SnapshotRepo,
		container.Parser,
		container.Normalizer,
		container.IdentityRepo,
		container.LedgerRepo,
		container.ScoringService,
		container.RunRepo,
		container.Events,
		log,
	)

	// Backup service is optional, only wired when a bucket is configured
	if cfg.BackupBucket != "" {
		backupService, err := reliability.NewBackupService(
			context.Background(),
			map[string]*database.DB{
				"snapshots": container.SnapshotsDB,
				"ledger":    container.LedgerDB,
				"cache":     container.CacheDB,
			},
			cfg.BackupBucket,
			cfg.BackupPrefix,
			cfg.DataDir,
			log,
		)
		if err != nil {
			return fmt.Errorf("failed to initialize backup service: %w", err)
		}
		container.BackupService = backupService
	}

	log.Debug().Msg("Services initialized")
	return nil
}
