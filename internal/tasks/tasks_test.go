package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/repositories"
	"github.com/desertthunder/bpmx/internal/services"
	"github.com/desertthunder/bpmx/internal/shared"
)

// Shared test doubles for the pipeline's collaborators.

type fakeSource struct {
	mu      sync.Mutex
	lookups int
	delay   time.Duration
	tracks  map[string]*models.TrackIdentifiers
	err     error
}

func (f *fakeSource) Lookup(ctx context.Context, trackID string) (*models.TrackIdentifiers, error) {
	f.mu.Lock()
	f.lookups++
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	ids, ok := f.tracks[trackID]
	if !ok {
		return nil, fmt.Errorf("%w: track %s not found", shared.ErrUpstreamLookup, trackID)
	}
	copied := *ids
	return &copied, nil
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) lookupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

type fakeISRCProvider struct {
	mu       sync.Mutex
	calls    int
	previews map[string]string
	err      error
}

func (f *fakeISRCProvider) LookupISRC(ctx context.Context, isrc string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}
	url, ok := f.previews[isrc]
	if !ok {
		return "", fmt.Errorf("%w: no preview for %s", shared.ErrNoPreview, isrc)
	}
	return url, nil
}

func (f *fakeISRCProvider) ISRCTag() models.Provenance { return models.ProvenanceDeezerISRC }

func (f *fakeISRCProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSearchProvider struct {
	mu      sync.Mutex
	calls   int
	tag     models.Provenance
	results []services.SearchCandidate
	err     error
}

func (f *fakeSearchProvider) Search(ctx context.Context, title, artist, country string) ([]services.SearchCandidate, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeSearchProvider) Tag() models.Provenance { return f.tag }

func (f *fakeSearchProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeStore is an in-memory AnalysisStore applying the same merge rules as
// the sqlite repository.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]*models.TrackAnalysis
	upserts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*models.TrackAnalysis)}
}

func (f *fakeStore) GetByTrackID(trackID string) (*models.TrackAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.records[trackID]
	if !ok {
		return nil, fmt.Errorf("%w: analysis not found", shared.ErrRecordNotFound)
	}
	copied := *record
	return &copied, nil
}

func (f *fakeStore) GetByISRC(isrc string) (*models.TrackAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, record := range f.records {
		if record.ISRC != nil && *record.ISRC == isrc {
			copied := *record
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("%w: analysis not found", shared.ErrRecordNotFound)
}

func (f *fakeStore) Upsert(record *models.TrackAnalysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.upserts++
	if record.ID == "" {
		record.ID = shared.GenerateID()
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}

	// Mirror the sqlite repository: an attempt whose ISRC already lives on
	// another track's row merges into that row.
	key := record.TrackID
	if _, ok := f.records[key]; !ok && record.ISRC != nil {
		for trackID, existing := range f.records {
			if existing.ISRC != nil && *existing.ISRC == *record.ISRC {
				key = trackID
				break
			}
		}
	}
	f.records[key] = models.MergeAnalysis(f.records[key], record)
	return nil
}

func (f *fakeStore) UpdateSelection(trackID string, update repositories.SelectionUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.records[trackID]
	if !ok {
		return fmt.Errorf("%w: no analysis for track %s", shared.ErrRecordNotFound, trackID)
	}
	if update.TempoSelected != nil {
		record.TempoSelected = update.TempoSelected
	}
	if update.KeySelected != nil {
		record.KeySelected = update.KeySelected
	}
	if update.TempoManual != nil {
		record.TempoManual = update.TempoManual
	}
	if update.KeyManual != nil {
		record.KeyManual = update.KeyManual
	}
	if update.ScaleManual != nil {
		record.ScaleManual = update.ScaleManual
	}
	record.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeStore) UpdateReview(trackID string, update repositories.ReviewUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	record, ok := f.records[trackID]
	if !ok {
		return fmt.Errorf("%w: no analysis for track %s", shared.ErrRecordNotFound, trackID)
	}
	status := update.Status
	record.ReviewStatus = &status
	record.ReviewedBy = &update.ReviewedBy
	reviewedAt := update.ReviewedAt
	record.ReviewedAt = &reviewedAt
	record.ISRCMismatch = update.Mismatch
	record.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeStore) ListMismatches() ([]*models.TrackAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.TrackAnalysis
	for _, record := range f.records {
		if record.ISRCMismatch && record.ReviewStatus == nil {
			copied := *record
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (f *fakeStore) upsertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts
}

func (f *fakeStore) seed(record *models.TrackAnalysis) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if record.ID == "" {
		record.ID = shared.GenerateID()
	}
	f.records[record.TrackID] = record
}

type fakeEngine struct {
	mu          sync.Mutex
	submissions [][]string
	outcomes    map[int]services.EngineOutcome
	submitErr   error
	waitErr     error
}

func (f *fakeEngine) SubmitBatch(ctx context.Context, urls []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submissions = append(f.submissions, urls)
	return fmt.Sprintf("batch-%d", len(f.submissions)), nil
}

func (f *fakeEngine) WaitForBatch(ctx context.Context, batchID string) (map[int]services.EngineOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return f.outcomes, nil
}

func (f *fakeEngine) OpenStream(ctx context.Context, batchID string) (*services.OutcomeStream, error) {
	return nil, shared.ErrNotImplemented
}

func (f *fakeEngine) submissionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submissions)
}

// testConfig returns a config tuned for fast tests.
func testConfig() *shared.Config {
	cfg := shared.DefaultConfig()
	cfg.Providers.TimeoutSeconds = 1
	cfg.Engine.PollIntervalMS = 10
	cfg.Engine.MaxWaitSeconds = 1
	cfg.Engine.ChunkDelayMS = 1
	return cfg
}

func engineOutcome(tempo, confidence float64) services.EngineOutcome {
	return services.EngineOutcome{
		Primary: &models.AnalysisOutcome{
			Tempo:           &tempo,
			TempoConfidence: &confidence,
		},
	}
}
