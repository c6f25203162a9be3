package models

import (
	"time"
)

// ReviewStatus records a reviewer's verdict on an ISRC mismatch.
type ReviewStatus string

const (
	ReviewMatch    ReviewStatus = "match"
	ReviewMismatch ReviewStatus = "mismatch"
)

// AnalysisOutcome holds one algorithm's tempo/key result for a track.
//
// All fields are nullable: the engine may return tempo without key,
// key without confidence, or nothing at all for a given algorithm.
type AnalysisOutcome struct {
	Tempo           *float64 `json:"tempo,omitempty"`
	TempoRaw        *float64 `json:"tempo_raw,omitempty"`
	TempoConfidence *float64 `json:"tempo_confidence,omitempty"`
	Key             *string  `json:"key,omitempty"`
	Scale           *string  `json:"scale,omitempty"`
	KeyConfidence   *float64 `json:"key_confidence,omitempty"`
	Transcript      *string  `json:"transcript,omitempty"`
}

// Empty reports whether the outcome carries no data at all.
func (o AnalysisOutcome) Empty() bool {
	return o.Tempo == nil && o.TempoRaw == nil && o.TempoConfidence == nil &&
		o.Key == nil && o.Scale == nil && o.KeyConfidence == nil && o.Transcript == nil
}

// TrackAnalysis is the durable cache record for one platform track.
//
// Identity: unique on TrackID; ISRC unique when non-nil. Records are created
// on the first resolution attempt (successful or failed), updated in place on
// every subsequent attempt, and never deleted.
type TrackAnalysis struct {
	ID      string `json:"id"`
	TrackID string `json:"track_id"`

	ISRC       *string            `json:"isrc,omitempty"`
	Title      *string            `json:"title,omitempty"`
	Artist     *string            `json:"artist,omitempty"`
	PreviewURL *string            `json:"preview_url,omitempty"`
	Provenance *Provenance        `json:"provenance,omitempty"`
	Candidates []PreviewCandidate `json:"candidates,omitempty"`

	Primary   AnalysisOutcome `json:"primary"`
	Secondary AnalysisOutcome `json:"secondary"`

	TempoSelected *Selector `json:"tempo_selected,omitempty"`
	KeySelected   *Selector `json:"key_selected,omitempty"`
	TempoManual   *float64  `json:"tempo_manual,omitempty"`
	KeyManual     *string   `json:"key_manual,omitempty"`
	ScaleManual   *string   `json:"scale_manual,omitempty"`

	Error        *string       `json:"error,omitempty"`
	ISRCMismatch bool          `json:"isrc_mismatch"`
	ReviewStatus *ReviewStatus `json:"review_status,omitempty"`
	ReviewedBy   *string       `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time    `json:"reviewed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stale reports whether the record is older than the freshness window.
func (a *TrackAnalysis) Stale(now time.Time, window time.Duration) bool {
	return now.Sub(a.UpdatedAt) > window
}

// Usable reports whether the record counts as a cache hit for scheduling:
// it must select a non-nil tempo, be younger than the freshness window, and
// carry no unresolved ISRC mismatch. A record with a pending mismatch has no
// usable tempo regardless of populated tempo fields.
func (a *TrackAnalysis) Usable(now time.Time, window time.Duration) bool {
	if a.ISRCMismatch {
		return false
	}
	if a.Stale(now, window) {
		return false
	}
	tempo, _ := a.SelectTempo()
	return tempo != nil
}

// MergeAnalysis applies a partial update over a previous record and returns
// the next record, using field-level coalescing: a nil incoming value never
// overwrites a non-nil stored value for metadata, outcome and manual fields.
//
// Resolution state (preview URL, provenance, candidates, error, mismatch
// flag) always takes the incoming value, since every resolution attempt is
// authoritative for what it just observed. Selection discriminators and
// review state coalesce here; they are replaced only through the targeted
// selection/review updates. The one exception is a newly observed mismatch,
// which clears the stored verdict so the track re-enters the review queue.
//
// The SQL upsert in the repositories package mirrors this function exactly.
// Neither input is modified.
func MergeAnalysis(prev, next *TrackAnalysis) *TrackAnalysis {
	if prev == nil {
		merged := *next
		return &merged
	}

	merged := *prev

	merged.ISRC = coalesce(next.ISRC, prev.ISRC)
	merged.Title = coalesce(next.Title, prev.Title)
	merged.Artist = coalesce(next.Artist, prev.Artist)

	merged.Primary = mergeOutcome(prev.Primary, next.Primary)
	merged.Secondary = mergeOutcome(prev.Secondary, next.Secondary)

	merged.TempoSelected = coalesce(next.TempoSelected, prev.TempoSelected)
	merged.KeySelected = coalesce(next.KeySelected, prev.KeySelected)
	merged.TempoManual = coalesce(next.TempoManual, prev.TempoManual)
	merged.KeyManual = coalesce(next.KeyManual, prev.KeyManual)
	merged.ScaleManual = coalesce(next.ScaleManual, prev.ScaleManual)

	if next.ISRCMismatch && !prev.ISRCMismatch {
		// A newly observed mismatch invalidates any stored verdict; the
		// track must re-enter the review queue.
		merged.ReviewStatus = nil
		merged.ReviewedBy = nil
		merged.ReviewedAt = nil
	} else {
		merged.ReviewStatus = coalesce(next.ReviewStatus, prev.ReviewStatus)
		merged.ReviewedBy = coalesce(next.ReviewedBy, prev.ReviewedBy)
		merged.ReviewedAt = coalesce(next.ReviewedAt, prev.ReviewedAt)
	}

	// Always-overwrite fields: the latest attempt owns these.
	merged.PreviewURL = next.PreviewURL
	merged.Provenance = next.Provenance
	merged.Candidates = next.Candidates
	merged.Error = next.Error
	merged.ISRCMismatch = next.ISRCMismatch

	merged.UpdatedAt = next.UpdatedAt

	return &merged
}

func mergeOutcome(prev, next AnalysisOutcome) AnalysisOutcome {
	return AnalysisOutcome{
		Tempo:           coalesce(next.Tempo, prev.Tempo),
		TempoRaw:        coalesce(next.TempoRaw, prev.TempoRaw),
		TempoConfidence: coalesce(next.TempoConfidence, prev.TempoConfidence),
		Key:             coalesce(next.Key, prev.Key),
		Scale:           coalesce(next.Scale, prev.Scale),
		KeyConfidence:   coalesce(next.KeyConfidence, prev.KeyConfidence),
		Transcript:      coalesce(next.Transcript, prev.Transcript),
	}
}

func coalesce[T any](next, prev *T) *T {
	if next != nil {
		return next
	}
	return prev
}
