/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application
 * dependencies. The Container is the single source of truth for all service
 * instances and is passed to handlers for access to services.
 */
package di

import (
	"github.com/fundtrail/fundtrail/internal/database"
	"github.com/fundtrail/fundtrail/internal/modules/ledger"
	"github.com/fundtrail/fundtrail/internal/modules/normalizer"
	"github.com/fundtrail/fundtrail/internal/modules/parser"
	"github.com/fundtrail/fundtrail/internal/modules/prices"
	"github.com/fundtrail/fundtrail/internal/modules/runs"
	"github.com/fundtrail/fundtrail/internal/modules/scoring"
	"github.com/fundtrail/fundtrail/internal/modules/snapshots"
	"github.com/fundtrail/fundtrail/internal/pipeline"
	"github.com/fundtrail/fundtrail/internal/reliability"
)

/**
 * Container holds all dependencies for the application.
 *
 * Architecture:
 * - Databases: 3-database architecture (snapshots, ledger, cache)
 * - Repositories: Data access layer (snapshots, holdings/activities, prices, scores, runs)
 * - Services: Business logic layer (scoring, pipeline)
 *
 * All dependencies are injected via constructor injection.
 */
type Container struct {
	// Databases (3-database architecture)
	// Each database uses SQLite with WAL mode and profile-specific PRAGMAs
	SnapshotsDB *database.DB // Raw filing HTML, keyed by manager and period
	LedgerDB    *database.DB // Immutable activity ledger (holdings, activities, managers)
	CacheDB     *database.DB // Recomputable data (prices, runs, score tables)

	// Repositories - Data access layer
	SnapshotRepo *snapshots.Repository         // Raw snapshot storage and import
	IdentityRepo *normalizer.IdentityRepository // Manager identities and aliases
	LedgerRepo   *ledger.Repository            // Holdings and activity records
	PriceRepo    *prices.Repository            // Quarter-end price lookups
	ScoreRepo    *scoring.Repository           // Persisted score tables
	RunRepo      *runs.Repository              // Pipeline run history

	// Services - Business logic layer
	Parser         *parser.Parser         // Filing HTML parsing
	Normalizer     *normalizer.Normalizer // Quarter and name normalization
	ScoringService *scoring.Service       // Multi-factor scoring engine
	Pipeline       *pipeline.Pipeline     // Extraction pipeline orchestration
	Events         *pipeline.Broadcaster  // Pipeline progress events

	// BackupService uploads database archives to object storage (optional,
	// nil when no backup bucket is configured)
	BackupService *reliability.BackupService
}

// Close closes all database connections
func (c *Container) Close() {
	if c.SnapshotsDB != nil {
		c.SnapshotsDB.Close()
	}
	if c.LedgerDB != nil {
		c.LedgerDB.Close()
	}
	if c.CacheDB != nil {
		c.CacheDB.Close()
	}
}
