package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/repositories"
	"github.com/desertthunder/bpmx/internal/shared"
)

// ReviewAction is one of the reviewer verbs on a flagged track.
type ReviewAction string

const (
	// ReviewConfirmMatch clears the mismatch flag: the preview audio is the
	// right recording after all.
	ReviewConfirmMatch ReviewAction = "confirm_match"

	// ReviewConfirmMismatch records that the audio really is wrong; the
	// track keeps no usable tempo.
	ReviewConfirmMismatch ReviewAction = "confirm_mismatch"

	// ReviewResolveISRC re-runs resolution through the authoritative
	// ISRC-keyed provider and, on success, re-enters the normal cache-write
	// path before clearing the flag.
	ReviewResolveISRC ReviewAction = "resolve_isrc"
)

// Valid reports whether a is a known reviewer action.
func (a ReviewAction) Valid() bool {
	switch a {
	case ReviewConfirmMatch, ReviewConfirmMismatch, ReviewResolveISRC:
		return true
	}
	return false
}

// ReviewItem is one review-queue entry, optionally enriched with the
// canonical recording name behind the track's ISRC.
type ReviewItem struct {
	Record          *models.TrackAnalysis `json:"record"`
	CanonicalTitle  string                `json:"canonical_title,omitempty"`
	CanonicalArtist string                `json:"canonical_artist,omitempty"`
}

// Review applies a reviewer action to a track. All actions are idempotent:
// repeating one leaves the record in an identical observable state,
// timestamps included. Returns the record as stored afterwards.
func (p *Pipeline) Review(ctx context.Context, trackID string, action ReviewAction, reviewer string) (*models.TrackAnalysis, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("%w: unknown review action %q", shared.ErrInvalidArgument, action)
	}
	if reviewer == "" {
		return nil, fmt.Errorf("%w: reviewer identity is required", shared.ErrInvalidArgument)
	}

	record, err := p.store.GetByTrackID(trackID)
	if err != nil {
		return nil, err
	}

	switch action {
	case ReviewConfirmMatch:
		return p.applyVerdict(trackID, models.ReviewMatch, reviewer, false)
	case ReviewConfirmMismatch:
		return p.applyVerdict(trackID, models.ReviewMismatch, reviewer, true)
	default:
		return p.resolveViaISRC(ctx, record, reviewer)
	}
}

// ReviewQueue returns tracks with an unreviewed ISRC mismatch. When a
// recording directory is configured, each entry carries the canonical
// recording name for its ISRC; directory failures degrade to a bare entry.
func (p *Pipeline) ReviewQueue(ctx context.Context) ([]ReviewItem, error) {
	records, err := p.store.ListMismatches()
	if err != nil {
		return nil, err
	}

	items := make([]ReviewItem, len(records))
	for i, record := range records {
		items[i] = ReviewItem{Record: record}
		if p.directory == nil || record.ISRC == nil {
			continue
		}

		recording, err := p.directory.RecordingByISRC(ctx, *record.ISRC)
		if err != nil {
			p.logger.Debug("recording lookup failed for review entry", "isrc", *record.ISRC, "error", err)
			continue
		}
		items[i].CanonicalTitle = recording.Title
		items[i].CanonicalArtist = recording.Artist
	}

	return items, nil
}

func (p *Pipeline) applyVerdict(trackID string, status models.ReviewStatus, reviewer string, mismatch bool) (*models.TrackAnalysis, error) {
	record, err := p.store.GetByTrackID(trackID)
	if err != nil {
		return nil, err
	}

	// Repeating a verdict is a no-op, timestamps included. A rewrite would
	// extend the freshness window on every repeat.
	if record.ReviewStatus != nil && *record.ReviewStatus == status &&
		record.ReviewedBy != nil && *record.ReviewedBy == reviewer &&
		record.ISRCMismatch == mismatch {
		return record, nil
	}

	err = p.store.UpdateReview(trackID, repositories.ReviewUpdate{
		Status:     status,
		ReviewedBy: reviewer,
		ReviewedAt: time.Now().UTC(),
		Mismatch:   mismatch,
	})
	if err != nil {
		return nil, err
	}
	return p.store.GetByTrackID(trackID)
}

// resolveViaISRC retries the authoritative ISRC lookup for a flagged track.
// A hit flows through the normal cache-write path (preview, engine,
// upsert) and clears the mismatch; a miss leaves the record flagged.
func (p *Pipeline) resolveViaISRC(ctx context.Context, record *models.TrackAnalysis, reviewer string) (*models.TrackAnalysis, error) {
	if record.ISRC == nil {
		return nil, fmt.Errorf("%w: record has no isrc to resolve against", shared.ErrInvalidArgument)
	}

	url, err := p.lookupISRC(ctx, *record.ISRC)
	if err != nil {
		return record, fmt.Errorf("%w: authoritative lookup failed for %s: %v", shared.ErrNoPreview, *record.ISRC, err)
	}

	next := &models.TrackAnalysis{
		TrackID:      record.TrackID,
		ISRC:         record.ISRC,
		PreviewURL:   strptr(url),
		ISRCMismatch: false,
		UpdatedAt:    time.Now().UTC(),
	}
	tag := p.isrcLookup.ISRCTag()
	next.Provenance = &tag
	next.Candidates = []models.PreviewCandidate{{URL: url, Provider: tag, Succeeded: true}}

	if err := p.analyzePreview(ctx, next, url); err != nil {
		next.Error = strptr(err.Error())
		if upsertErr := p.store.Upsert(next); upsertErr != nil {
			return record, upsertErr
		}
		return record, err
	}

	if err := p.store.Upsert(next); err != nil {
		return record, err
	}

	return p.applyVerdict(record.TrackID, models.ReviewMatch, reviewer, false)
}
