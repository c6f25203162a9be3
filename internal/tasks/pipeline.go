package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/repositories"
	"github.com/desertthunder/bpmx/internal/shared"
)

// noPreviewMessage is the human-readable reason cached when every provider
// comes up empty. Review triage and UI disclosure key off this text.
const noPreviewMessage = "No preview audio available from any source (iTunes, Deezer)"

// mismatchMessage is cached when a provider only offered audio for a
// different recording.
const mismatchMessage = "Preview audio identifies a different recording (ISRC mismatch)"

// ResolveSingle resolves one track to its cached analysis, computing it
// first when the cache has no fresh usable record. Concurrent calls for the
// same track ID share one computation and observe one outcome.
//
// The country hint constrains regional catalog availability during preview
// search; empty means the configured default.
func (p *Pipeline) ResolveSingle(ctx context.Context, trackID, countryHint string) (*models.TrackAnalysis, error) {
	trackID = strings.TrimSpace(trackID)
	if trackID == "" {
		return nil, fmt.Errorf("%w: empty track id", shared.ErrInvalidTrackID)
	}

	outcome, err, _ := p.flights.Do(trackID, func() (any, error) {
		return p.resolveTrack(ctx, trackID, p.country(countryHint))
	})

	record, _ := outcome.(*models.TrackAnalysis)
	return record, err
}

// resolveTrack is the uncoordinated resolution path. Every return with a
// non-nil record has already been written to the cache; errors come back
// alongside the best-known record so callers can report failure without
// losing diagnostics.
func (p *Pipeline) resolveTrack(ctx context.Context, trackID, country string) (*models.TrackAnalysis, error) {
	now := time.Now().UTC()

	cached, err := p.store.GetByTrackID(trackID)
	if err != nil {
		cached = nil
	}
	if cached != nil && cached.Usable(now, p.freshness) {
		return cached, nil
	}

	ids, err := p.source.Lookup(ctx, trackID)
	if err != nil {
		return cached, err
	}

	// A recording cached under another platform ID is still the same
	// recording; the ISRC read catches cross-platform duplicates. An
	// unusable duplicate falls through to re-resolution, and the upsert
	// merges the attempt into the existing row on its isrc key.
	if cached == nil && ids.ISRC != "" {
		if byISRC, err := p.store.GetByISRC(ids.ISRC); err == nil && byISRC.Usable(now, p.freshness) {
			return byISRC, nil
		}
	}

	record := recordFromIdentifiers(trackID, ids)
	resolution := p.resolvePreview(ctx, ids, country)
	applyResolution(record, resolution)

	switch {
	case resolution.ISRCMismatch:
		record.Error = strptr(mismatchMessage)
		if err := p.store.Upsert(record); err != nil {
			return cached, err
		}
		return p.storedRecord(record), fmt.Errorf("%w: track %s", shared.ErrISRCMismatch, trackID)
	case resolution.ChosenURL == "":
		// A legitimate terminal outcome, not an error: the absence of any
		// licensed preview is cached and reported through the record itself.
		record.Error = strptr(noPreviewMessage)
		if err := p.store.Upsert(record); err != nil {
			return cached, err
		}
		return p.storedRecord(record), nil
	}

	if err := p.analyzePreview(ctx, record, resolution.ChosenURL); err != nil {
		record.Error = strptr(err.Error())
		if upsertErr := p.store.Upsert(record); upsertErr != nil {
			return cached, upsertErr
		}
		return p.storedRecord(record), err
	}

	if err := p.store.Upsert(record); err != nil {
		return cached, err
	}

	return p.storedRecord(record), nil
}

// storedRecord reads back the row a write landed on. An attempt whose ISRC
// was already cached under another platform ID merges into that recording's
// row, so the track-keyed read falls back to the ISRC before giving up.
func (p *Pipeline) storedRecord(record *models.TrackAnalysis) *models.TrackAnalysis {
	if merged, err := p.store.GetByTrackID(record.TrackID); err == nil {
		return merged
	}
	if record.ISRC != nil {
		if merged, err := p.store.GetByISRC(*record.ISRC); err == nil {
			return merged
		}
	}
	return record
}

// analyzePreview submits one preview URL to the engine and fills the record
// with both algorithms' outcomes, or the engine's per-track error message.
func (p *Pipeline) analyzePreview(ctx context.Context, record *models.TrackAnalysis, url string) error {
	batchID, err := p.engine.SubmitBatch(ctx, []string{url})
	if err != nil {
		return err
	}

	outcomes, err := p.engine.WaitForBatch(ctx, batchID)
	if err != nil {
		return err
	}

	outcome, ok := outcomes[0]
	if !ok {
		return fmt.Errorf("%w: batch %s returned no result", shared.ErrAnalysisEngine, batchID)
	}

	applyOutcome(record, outcome)
	return nil
}

// UpdateSelection changes which source is authoritative for a track's tempo
// and key, optionally storing new manual values. A manual discriminator with
// no manual value stored or supplied is rejected, so the illegal state never
// reaches the cache. Returns the record as stored after the change.
func (p *Pipeline) UpdateSelection(ctx context.Context, trackID string, update repositories.SelectionUpdate) (*models.TrackAnalysis, error) {
	record, err := p.store.GetByTrackID(trackID)
	if err != nil {
		return nil, err
	}

	if update.TempoSelected != nil && !update.TempoSelected.Valid() {
		return nil, fmt.Errorf("%w: unknown tempo selector %q", shared.ErrInvalidArgument, *update.TempoSelected)
	}
	if update.KeySelected != nil && !update.KeySelected.Valid() {
		return nil, fmt.Errorf("%w: unknown key selector %q", shared.ErrInvalidArgument, *update.KeySelected)
	}

	if selectsManual(update.TempoSelected) && update.TempoManual == nil && record.TempoManual == nil {
		return nil, fmt.Errorf("%w: manual tempo selected but no manual tempo stored", shared.ErrInvalidArgument)
	}
	if selectsManual(update.KeySelected) && update.KeyManual == nil && record.KeyManual == nil {
		return nil, fmt.Errorf("%w: manual key selected but no manual key stored", shared.ErrInvalidArgument)
	}

	if err := p.store.UpdateSelection(trackID, update); err != nil {
		return nil, err
	}

	return p.store.GetByTrackID(trackID)
}

// GetAnalysis returns the cached record for a track without triggering
// resolution.
func (p *Pipeline) GetAnalysis(trackID string) (*models.TrackAnalysis, error) {
	return p.store.GetByTrackID(trackID)
}

func selectsManual(sel *models.Selector) bool {
	return sel != nil && *sel == models.SelectorManual
}

func recordFromIdentifiers(trackID string, ids *models.TrackIdentifiers) *models.TrackAnalysis {
	record := &models.TrackAnalysis{
		TrackID:   trackID,
		UpdatedAt: time.Now().UTC(),
	}
	if ids.ISRC != "" {
		record.ISRC = strptr(ids.ISRC)
	}
	if ids.Title != "" {
		record.Title = strptr(ids.Title)
	}
	if ids.Artist != "" {
		record.Artist = strptr(ids.Artist)
	}
	return record
}

func applyResolution(record *models.TrackAnalysis, resolution *models.PreviewResolution) {
	if resolution.ChosenURL != "" {
		record.PreviewURL = strptr(resolution.ChosenURL)
	}
	provenance := resolution.Provenance
	record.Provenance = &provenance
	record.Candidates = resolution.Candidates
	record.ISRCMismatch = resolution.ISRCMismatch
}

func strptr(s string) *string { return &s }
