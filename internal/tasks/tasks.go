package tasks

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/repositories"
	"github.com/desertthunder/bpmx/internal/services"
	"github.com/desertthunder/bpmx/internal/shared"
)

// AnalysisStore defines the persistence surface the pipeline depends on.
// This abstraction allows for easier testing and decoupling from the
// concrete sqlite repository.
type AnalysisStore interface {
	GetByTrackID(trackID string) (*models.TrackAnalysis, error)
	GetByISRC(isrc string) (*models.TrackAnalysis, error)
	Upsert(record *models.TrackAnalysis) error
	UpdateSelection(trackID string, update repositories.SelectionUpdate) error
	UpdateReview(trackID string, update repositories.ReviewUpdate) error
	ListMismatches() ([]*models.TrackAnalysis, error)
}

// Analyzer defines the analysis engine surface the pipeline depends on.
type Analyzer interface {
	SubmitBatch(ctx context.Context, urls []string) (string, error)
	WaitForBatch(ctx context.Context, batchID string) (map[int]services.EngineOutcome, error)
	OpenStream(ctx context.Context, batchID string) (*services.OutcomeStream, error)
}

// RecordingDirectory resolves an ISRC to a canonical recording name. Used to
// enrich the review queue; lookups are best-effort.
type RecordingDirectory interface {
	RecordingByISRC(ctx context.Context, isrc string) (*services.Recording, error)
}

// Pipeline implements the exposed analysis operations.
type Pipeline struct {
	source     services.TrackSource
	isrcLookup services.ISRCProvider
	searches   []services.SearchProvider
	engine     Analyzer
	store      AnalysisStore
	directory  RecordingDirectory
	logger     *log.Logger

	flights singleflight.Group

	providerTimeout time.Duration
	freshness       time.Duration
	defaultCountry  string
	batchChunkSize  int
	streamChunkSize int
	chunkDelay      time.Duration
}

// NewPipeline creates a Pipeline with the provided collaborators. Search
// providers are tried in slice order after the ISRC lookup. The directory is
// optional; everything else is required.
func NewPipeline(
	source services.TrackSource,
	isrcLookup services.ISRCProvider,
	searches []services.SearchProvider,
	engine Analyzer,
	store AnalysisStore,
	directory RecordingDirectory,
	cfg *shared.Config,
	logger *log.Logger,
) *Pipeline {
	if cfg == nil {
		cfg = shared.DefaultConfig()
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	batchChunk := cfg.Engine.BatchChunkSize
	if batchChunk <= 0 {
		batchChunk = 5
	}
	streamChunk := cfg.Engine.StreamChunkSize
	if streamChunk <= 0 {
		streamChunk = 20
	}

	return &Pipeline{
		source:          source,
		isrcLookup:      isrcLookup,
		searches:        searches,
		engine:          engine,
		store:           store,
		directory:       directory,
		logger:          logger,
		providerTimeout: cfg.Providers.Timeout(),
		freshness:       cfg.Cache.Freshness(),
		defaultCountry:  cfg.Providers.DefaultCountry,
		batchChunkSize:  batchChunk,
		streamChunkSize: streamChunk,
		chunkDelay:      cfg.Engine.ChunkDelay(),
	}
}

// Freshness returns the cache freshness window the pipeline applies.
func (p *Pipeline) Freshness() time.Duration {
	return p.freshness
}

// country applies the default when the caller supplied no regional hint.
func (p *Pipeline) country(hint string) string {
	if hint != "" {
		return hint
	}
	return p.defaultCountry
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (p *Pipeline) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}
