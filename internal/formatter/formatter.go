// package formatter renders analysis records and the review queue to
// various output formats (JSON, CSV, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/shared"
	"github.com/desertthunder/bpmx/internal/tasks"
)

// ToJSON generates a pretty-printed JSON representation of one or more
// analysis records.
func ToJSON(records []*models.TrackAnalysis) ([]byte, error) {
	return shared.MarshalJSON(records, true)
}

// ToCSV converts analysis records to CSV with columns: Track ID, Title,
// Artist, ISRC, Tempo, Tempo Source, Key, Scale, Key Source, Provenance,
// Mismatch, Error, Updated.
func ToCSV(records []*models.TrackAnalysis) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Track ID", "Title", "Artist", "ISRC", "Tempo", "Tempo Source", "Key", "Scale", "Key Source", "Provenance", "Mismatch", "Error", "Updated"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, record := range records {
		tempo, tempoSource := record.SelectTempo()
		key, scale, keySource := record.SelectKey()
		row := []string{
			record.TrackID,
			deref(record.Title),
			deref(record.Artist),
			deref(record.ISRC),
			formatTempo(tempo),
			string(tempoSource),
			deref(key),
			deref(scale),
			string(keySource),
			provenanceString(record.Provenance),
			strconv.FormatBool(record.ISRCMismatch),
			deref(record.Error),
			record.UpdatedAt.Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ToText converts analysis records to plain text, one line per track.
func ToText(records []*models.TrackAnalysis) ([]byte, error) {
	var buf bytes.Buffer

	for i, record := range records {
		buf.WriteString(fmt.Sprintf("%d. %s", i+1, Summary(record)))
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// Summary renders a single-line human-readable summary of a record, used by
// both the text export and the CLI output.
func Summary(record *models.TrackAnalysis) string {
	label := record.TrackID
	if record.Artist != nil && record.Title != nil {
		label = fmt.Sprintf("%s - %s", *record.Artist, *record.Title)
	}

	if record.ISRCMismatch {
		return fmt.Sprintf("%s: needs review (ISRC mismatch)", label)
	}
	if record.Error != nil {
		return fmt.Sprintf("%s: failed (%s)", label, *record.Error)
	}

	tempo, tempoSource := record.SelectTempo()
	if tempo == nil {
		return fmt.Sprintf("%s: no result", label)
	}

	line := fmt.Sprintf("%s: %s BPM (%s)", label, formatTempo(tempo), tempoSource)
	if key, scale, keySource := record.SelectKey(); key != nil {
		keyPart := *key
		if scale != nil {
			keyPart += " " + *scale
		}
		line += fmt.Sprintf(", %s (%s)", keyPart, keySource)
	}
	return line
}

// ReviewQueueToText renders the mismatch review queue, pairing the cached
// track metadata with the canonical recording when the directory found one.
func ReviewQueueToText(items []tasks.ReviewItem) []byte {
	var buf bytes.Buffer

	if len(items) == 0 {
		buf.WriteString("Review queue is empty.\n")
		return buf.Bytes()
	}

	buf.WriteString(fmt.Sprintf("Pending review: %d\n\n", len(items)))
	for i, item := range items {
		record := item.Record
		buf.WriteString(fmt.Sprintf("%d. %s\n", i+1, record.TrackID))
		buf.WriteString(fmt.Sprintf("   Cached:    %s - %s\n", deref(record.Artist), deref(record.Title)))
		if item.CanonicalTitle != "" || item.CanonicalArtist != "" {
			buf.WriteString(fmt.Sprintf("   Canonical: %s - %s\n", item.CanonicalArtist, item.CanonicalTitle))
		}
		if record.ISRC != nil {
			buf.WriteString(fmt.Sprintf("   ISRC:      %s\n", *record.ISRC))
		}
		buf.WriteString(fmt.Sprintf("   Flagged:   %s\n", record.UpdatedAt.Format(time.RFC3339)))
	}

	return buf.Bytes()
}

// WriteCSVExport writes analysis records to {base}_analyses.csv.
//
// Defaults to "bpmx" as the base filename.
func WriteCSVExport(records []*models.TrackAnalysis, baseFilepath string) (string, error) {
	if baseFilepath == "" {
		baseFilepath = "bpmx"
	}

	csvData, err := ToCSV(records)
	if err != nil {
		return "", fmt.Errorf("failed to generate CSV: %w", err)
	}

	outFile := baseFilepath + "_analyses.csv"
	if err := os.WriteFile(outFile, csvData, 0644); err != nil {
		return "", fmt.Errorf("failed to write CSV file: %w", err)
	}

	return outFile, nil
}

func formatTempo(tempo *float64) string {
	if tempo == nil {
		return ""
	}
	return strconv.FormatFloat(*tempo, 'f', 1, 64)
}

func provenanceString(p *models.Provenance) string {
	if p == nil {
		return ""
	}
	return string(*p)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
