package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/shared"
)

// analysisColumns is the full column list in scan order, shared by every
// SELECT so the scan helpers stay in sync with the schema.
const analysisColumns = `
	id, track_id, isrc, title, artist, preview_url, provenance, candidates,
	primary_tempo, primary_tempo_raw, primary_tempo_confidence,
	primary_key_name, primary_scale, primary_key_confidence, primary_transcript,
	secondary_tempo, secondary_tempo_raw, secondary_tempo_confidence,
	secondary_key_name, secondary_scale, secondary_key_confidence, secondary_transcript,
	tempo_selected, key_selected, tempo_manual, key_manual, scale_manual,
	error, isrc_mismatch, review_status, reviewed_by, reviewed_at,
	created_at, updated_at
`

// AnalysisRepository persists [models.TrackAnalysis] records.
type AnalysisRepository struct {
	db *sql.DB
}

// NewAnalysisRepository creates a new AnalysisRepository with the given database connection
func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// SelectionUpdate is a partial change to a track's selection state. Nil
// fields are left untouched, so a caller can move one dimension (tempo)
// without disturbing the other (key).
type SelectionUpdate struct {
	TempoSelected *models.Selector
	KeySelected   *models.Selector
	TempoManual   *float64
	KeyManual     *string
	ScaleManual   *string
}

// ReviewUpdate records a reviewer's verdict. Mismatch is the resulting flag
// value: confirming a match clears it, confirming a mismatch keeps the
// record quarantined.
type ReviewUpdate struct {
	Status     models.ReviewStatus
	ReviewedBy string
	ReviewedAt time.Time
	Mismatch   bool
}

// analysisMergeSet is the field-level merge applied when an insert collides
// with an existing row. It implements the same rules as
// [models.MergeAnalysis]: metadata, outcomes and manual values coalesce;
// resolution state (preview URL, provenance, candidates, error, mismatch
// flag) always takes the incoming value. Review state coalesces too, except
// that a newly observed mismatch clears the stored verdict so the track
// re-enters the review queue.
const analysisMergeSet = `
	title = COALESCE(excluded.title, title),
	artist = COALESCE(excluded.artist, artist),
	preview_url = excluded.preview_url,
	provenance = excluded.provenance,
	candidates = excluded.candidates,
	primary_tempo = COALESCE(excluded.primary_tempo, primary_tempo),
	primary_tempo_raw = COALESCE(excluded.primary_tempo_raw, primary_tempo_raw),
	primary_tempo_confidence = COALESCE(excluded.primary_tempo_confidence, primary_tempo_confidence),
	primary_key_name = COALESCE(excluded.primary_key_name, primary_key_name),
	primary_scale = COALESCE(excluded.primary_scale, primary_scale),
	primary_key_confidence = COALESCE(excluded.primary_key_confidence, primary_key_confidence),
	primary_transcript = COALESCE(excluded.primary_transcript, primary_transcript),
	secondary_tempo = COALESCE(excluded.secondary_tempo, secondary_tempo),
	secondary_tempo_raw = COALESCE(excluded.secondary_tempo_raw, secondary_tempo_raw),
	secondary_tempo_confidence = COALESCE(excluded.secondary_tempo_confidence, secondary_tempo_confidence),
	secondary_key_name = COALESCE(excluded.secondary_key_name, secondary_key_name),
	secondary_scale = COALESCE(excluded.secondary_scale, secondary_scale),
	secondary_key_confidence = COALESCE(excluded.secondary_key_confidence, secondary_key_confidence),
	secondary_transcript = COALESCE(excluded.secondary_transcript, secondary_transcript),
	tempo_selected = COALESCE(excluded.tempo_selected, tempo_selected),
	key_selected = COALESCE(excluded.key_selected, key_selected),
	tempo_manual = COALESCE(excluded.tempo_manual, tempo_manual),
	key_manual = COALESCE(excluded.key_manual, key_manual),
	scale_manual = COALESCE(excluded.scale_manual, scale_manual),
	error = excluded.error,
	isrc_mismatch = excluded.isrc_mismatch,
	review_status = CASE WHEN excluded.isrc_mismatch AND NOT isrc_mismatch
		THEN NULL ELSE COALESCE(excluded.review_status, review_status) END,
	reviewed_by = CASE WHEN excluded.isrc_mismatch AND NOT isrc_mismatch
		THEN NULL ELSE COALESCE(excluded.reviewed_by, reviewed_by) END,
	reviewed_at = CASE WHEN excluded.isrc_mismatch AND NOT isrc_mismatch
		THEN NULL ELSE COALESCE(excluded.reviewed_at, reviewed_at) END,
	updated_at = excluded.updated_at
`

// Upsert inserts the record or merges it into the existing row. Conflicts
// are keyed on track ID first, then on ISRC: a new platform track ID whose
// ISRC is already cached merges into the existing recording's row (the row
// keeps its original track ID). Field-level rules are [analysisMergeSet].
func (r *AnalysisRepository) Upsert(record *models.TrackAnalysis) error {
	if record.TrackID == "" {
		return fmt.Errorf("%w: track id is required", shared.ErrInvalidArgument)
	}
	if record.ID == "" {
		record.ID = shared.GenerateID()
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}

	candidates, err := marshalCandidates(record.Candidates)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO track_analyses (` + analysisColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?)
		ON CONFLICT(track_id) DO UPDATE SET
			isrc = COALESCE(excluded.isrc, isrc),` + analysisMergeSet + `
		ON CONFLICT(isrc) DO UPDATE SET` + analysisMergeSet

	_, err = r.db.Exec(query,
		record.ID,
		record.TrackID,
		record.ISRC,
		record.Title,
		record.Artist,
		record.PreviewURL,
		record.Provenance,
		candidates,
		record.Primary.Tempo,
		record.Primary.TempoRaw,
		record.Primary.TempoConfidence,
		record.Primary.Key,
		record.Primary.Scale,
		record.Primary.KeyConfidence,
		record.Primary.Transcript,
		record.Secondary.Tempo,
		record.Secondary.TempoRaw,
		record.Secondary.TempoConfidence,
		record.Secondary.Key,
		record.Secondary.Scale,
		record.Secondary.KeyConfidence,
		record.Secondary.Transcript,
		record.TempoSelected,
		record.KeySelected,
		record.TempoManual,
		record.KeyManual,
		record.ScaleManual,
		record.Error,
		record.ISRCMismatch,
		record.ReviewStatus,
		record.ReviewedBy,
		record.ReviewedAt,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert analysis: %w", err)
	}

	return nil
}

// GetByTrackID retrieves the analysis record for a platform track ID
func (r *AnalysisRepository) GetByTrackID(trackID string) (*models.TrackAnalysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM track_analyses WHERE track_id = ?`
	return r.scanOne(r.db.QueryRow(query, trackID))
}

// GetByISRC retrieves the analysis record carrying the given ISRC
func (r *AnalysisRepository) GetByISRC(isrc string) (*models.TrackAnalysis, error) {
	query := `SELECT ` + analysisColumns + ` FROM track_analyses WHERE isrc = ? LIMIT 1`
	return r.scanOne(r.db.QueryRow(query, isrc))
}

// UpdateSelection applies a partial selection change to an existing record.
// Nil fields in the update keep their stored values; non-nil fields replace
// them outright, which is how a reviewer moves a track back off a manual
// value without erasing it.
func (r *AnalysisRepository) UpdateSelection(trackID string, update SelectionUpdate) error {
	query := `
		UPDATE track_analyses
		SET tempo_selected = COALESCE(?, tempo_selected),
			key_selected = COALESCE(?, key_selected),
			tempo_manual = COALESCE(?, tempo_manual),
			key_manual = COALESCE(?, key_manual),
			scale_manual = COALESCE(?, scale_manual),
			updated_at = ?
		WHERE track_id = ?
	`

	result, err := r.db.Exec(query,
		update.TempoSelected,
		update.KeySelected,
		update.TempoManual,
		update.KeyManual,
		update.ScaleManual,
		time.Now().UTC(),
		trackID,
	)
	if err != nil {
		return fmt.Errorf("failed to update selection: %w", err)
	}

	return requireRow(result, trackID)
}

// UpdateReview records a reviewer's verdict and sets the mismatch flag to
// the update's resulting value. Repeating a verdict is harmless; the row is
// simply rewritten with the same state.
func (r *AnalysisRepository) UpdateReview(trackID string, update ReviewUpdate) error {
	query := `
		UPDATE track_analyses
		SET review_status = ?,
			reviewed_by = ?,
			reviewed_at = ?,
			isrc_mismatch = ?,
			updated_at = ?
		WHERE track_id = ?
	`

	result, err := r.db.Exec(query,
		string(update.Status),
		update.ReviewedBy,
		update.ReviewedAt,
		update.Mismatch,
		time.Now().UTC(),
		trackID,
	)
	if err != nil {
		return fmt.Errorf("failed to update review: %w", err)
	}

	return requireRow(result, trackID)
}

// ListMismatches returns records flagged with an unreviewed ISRC mismatch,
// oldest first so the queue drains in arrival order.
func (r *AnalysisRepository) ListMismatches() ([]*models.TrackAnalysis, error) {
	query := `
		SELECT ` + analysisColumns + `
		FROM track_analyses
		WHERE isrc_mismatch = 1 AND review_status IS NULL
		ORDER BY updated_at ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query mismatches: %w", err)
	}
	defer rows.Close()

	var records []*models.TrackAnalysis
	for rows.Next() {
		record, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

func requireRow(result sql.Result, trackID string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: no analysis for track %s", shared.ErrRecordNotFound, trackID)
	}
	return nil
}

func marshalCandidates(candidates []models.PreviewCandidate) (*string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to encode candidates: %w", err)
	}
	serialized := string(encoded)
	return &serialized, nil
}

// scanOne scans a single [sql.Row] into a [models.TrackAnalysis]
func (r *AnalysisRepository) scanOne(row *sql.Row) (*models.TrackAnalysis, error) {
	record, err := scanAnalysis(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: analysis not found", shared.ErrRecordNotFound)
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// scanRow scans a row from [sql.Rows] into a [models.TrackAnalysis]
func (r *AnalysisRepository) scanRow(rows *sql.Rows) (*models.TrackAnalysis, error) {
	return scanAnalysis(rows.Scan)
}

func scanAnalysis(scan func(dest ...any) error) (*models.TrackAnalysis, error) {
	var (
		id           string
		trackID      string
		isrc         sql.NullString
		title        sql.NullString
		artist       sql.NullString
		previewURL   sql.NullString
		provenance   sql.NullString
		candidates   sql.NullString
		primary      outcomeColumns
		secondary    outcomeColumns
		tempoSel     sql.NullString
		keySel       sql.NullString
		tempoManual  sql.NullFloat64
		keyManual    sql.NullString
		scaleManual  sql.NullString
		errText      sql.NullString
		isrcMismatch bool
		reviewStatus sql.NullString
		reviewedBy   sql.NullString
		reviewedAt   sql.NullTime
		createdAt    time.Time
		updatedAt    time.Time
	)

	err := scan(
		&id, &trackID, &isrc, &title, &artist, &previewURL, &provenance, &candidates,
		&primary.tempo, &primary.tempoRaw, &primary.tempoConfidence,
		&primary.key, &primary.scale, &primary.keyConfidence, &primary.transcript,
		&secondary.tempo, &secondary.tempoRaw, &secondary.tempoConfidence,
		&secondary.key, &secondary.scale, &secondary.keyConfidence, &secondary.transcript,
		&tempoSel, &keySel, &tempoManual, &keyManual, &scaleManual,
		&errText, &isrcMismatch, &reviewStatus, &reviewedBy, &reviewedAt,
		&createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan analysis: %w", err)
	}

	record := &models.TrackAnalysis{
		ID:           id,
		TrackID:      trackID,
		ISRC:         nullString(isrc),
		Title:        nullString(title),
		Artist:       nullString(artist),
		PreviewURL:   nullString(previewURL),
		TempoManual:  nullFloat(tempoManual),
		KeyManual:    nullString(keyManual),
		ScaleManual:  nullString(scaleManual),
		Error:        nullString(errText),
		ISRCMismatch: isrcMismatch,
		ReviewedBy:   nullString(reviewedBy),
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}

	if provenance.Valid {
		p := models.Provenance(provenance.String)
		record.Provenance = &p
	}
	if tempoSel.Valid {
		s := models.Selector(tempoSel.String)
		record.TempoSelected = &s
	}
	if keySel.Valid {
		s := models.Selector(keySel.String)
		record.KeySelected = &s
	}
	if reviewStatus.Valid {
		s := models.ReviewStatus(reviewStatus.String)
		record.ReviewStatus = &s
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		record.ReviewedAt = &t
	}

	if candidates.Valid {
		if err := json.Unmarshal([]byte(candidates.String), &record.Candidates); err != nil {
			return nil, fmt.Errorf("failed to decode candidates: %w", err)
		}
	}

	record.Primary = primary.toOutcome()
	record.Secondary = secondary.toOutcome()

	return record, nil
}

// outcomeColumns holds one algorithm's seven columns during a scan.
type outcomeColumns struct {
	tempo           sql.NullFloat64
	tempoRaw        sql.NullFloat64
	tempoConfidence sql.NullFloat64
	key             sql.NullString
	scale           sql.NullString
	keyConfidence   sql.NullFloat64
	transcript      sql.NullString
}

func (c outcomeColumns) toOutcome() models.AnalysisOutcome {
	return models.AnalysisOutcome{
		Tempo:           nullFloat(c.tempo),
		TempoRaw:        nullFloat(c.tempoRaw),
		TempoConfidence: nullFloat(c.tempoConfidence),
		Key:             nullString(c.key),
		Scale:           nullString(c.scale),
		KeyConfidence:   nullFloat(c.keyConfidence),
		Transcript:      nullString(c.transcript),
	}
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
