package tasks

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/services"
	"github.com/desertthunder/bpmx/internal/shared"
)

// batchEntry tracks one cache miss through identifier resolution, preview
// resolution and engine submission.
type batchEntry struct {
	trackID    string
	ids        *models.TrackIdentifiers
	resolution *models.PreviewResolution
	record     *models.TrackAnalysis
	err        error
}

// ResolveBatch resolves many tracks cache-first, falling back to the
// engine's streaming protocol for misses. The returned map holds the
// best-known record per track ID; tracks whose metadata lookup failed are
// absent from it (lookup failures are surfaced per track, never cached).
//
// Identifier resolutions for misses run in parallel, bounded to the
// configured chunk width. Preview URLs are submitted in fixed-size stream
// chunks, sequentially, with a pacing delay between submissions. Cache
// writes happen per final stream line, so an aborted stream leaves finished
// tracks cached and unfinished ones untouched.
func (p *Pipeline) ResolveBatch(ctx context.Context, trackIDs []string, countryHint string, progress chan<- ProgressUpdate) (map[string]*models.TrackAnalysis, error) {
	ids := dedupe(trackIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no track ids", shared.ErrInvalidTrackID)
	}

	results := make(map[string]*models.TrackAnalysis, len(ids))

	misses := p.readCache(ids, results, progress)
	if len(misses) == 0 {
		return results, nil
	}

	entries, err := p.resolveMisses(ctx, misses, p.country(countryHint), progress)
	if err != nil {
		return results, err
	}

	var pending []*batchEntry
	for _, entry := range entries {
		switch {
		case entry.err != nil:
			p.logger.Warn("skipping track, metadata lookup failed", "track_id", entry.trackID, "error", entry.err)
		case entry.resolution.ISRCMismatch:
			entry.record.Error = strptr(mismatchMessage)
			p.writeEntry(entry, results, progress)
		case entry.resolution.ChosenURL == "":
			entry.record.Error = strptr(noPreviewMessage)
			p.writeEntry(entry, results, progress)
		default:
			pending = append(pending, entry)
		}
	}

	if err := p.streamChunks(ctx, pending, results, progress); err != nil {
		return results, err
	}

	return results, nil
}

// readCache fills results with fresh usable records and returns the IDs
// that still need computation.
func (p *Pipeline) readCache(trackIDs []string, results map[string]*models.TrackAnalysis, progress chan<- ProgressUpdate) []string {
	now := time.Now().UTC()
	var misses []string

	for i, trackID := range trackIDs {
		record, err := p.store.GetByTrackID(trackID)
		if err == nil && record.Usable(now, p.freshness) {
			results[trackID] = record
		} else {
			misses = append(misses, trackID)
		}
		p.sendProgress(progress, cacheLookupUpdate(i+1, len(trackIDs), len(results)))
	}

	return misses
}

// resolveMisses runs identifier and preview resolution for every miss, with
// at most batchChunkSize lookups in flight at once.
func (p *Pipeline) resolveMisses(ctx context.Context, misses []string, country string, progress chan<- ProgressUpdate) ([]*batchEntry, error) {
	entries := make([]*batchEntry, len(misses))
	sem := semaphore.NewWeighted(int64(p.batchChunkSize))
	var wg sync.WaitGroup
	var completed atomic.Int64

	for i, trackID := range misses {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Callers close the progress channel once this returns, so
			// every in-flight lookup must finish sending first.
			wg.Wait()
			return nil, err
		}

		wg.Add(1)
		go func(i int, trackID string) {
			defer wg.Done()
			defer sem.Release(1)

			entry := &batchEntry{trackID: trackID}
			entries[i] = entry

			step := int(completed.Add(1))
			p.sendProgress(progress, identifiersUpdate(step, len(misses), trackID))

			entry.ids, entry.err = p.source.Lookup(ctx, trackID)
			if entry.err != nil {
				return
			}

			entry.resolution = p.resolvePreview(ctx, entry.ids, country)
			entry.record = recordFromIdentifiers(trackID, entry.ids)
			applyResolution(entry.record, entry.resolution)

			p.sendProgress(progress, previewUpdate(step, len(misses), trackID, entry.resolution.ChosenURL != ""))
		}(i, trackID)
	}

	wg.Wait()
	return entries, ctx.Err()
}

// streamChunks submits pending entries to the engine in fixed-size chunks
// and consumes each chunk's stream, caching every final line as it arrives.
func (p *Pipeline) streamChunks(ctx context.Context, pending []*batchEntry, results map[string]*models.TrackAnalysis, progress chan<- ProgressUpdate) error {
	if len(pending) == 0 {
		return nil
	}

	limiter := rate.NewLimiter(rate.Every(p.chunkDelay), 1)
	totalChunks := (len(pending) + p.streamChunkSize - 1) / p.streamChunkSize

	for chunkIndex := 0; chunkIndex*p.streamChunkSize < len(pending); chunkIndex++ {
		start := chunkIndex * p.streamChunkSize
		end := min(start+p.streamChunkSize, len(pending))
		chunk := pending[start:end]

		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		p.sendProgress(progress, submitChunkUpdate(chunkIndex+1, totalChunks, len(chunk)))

		urls := make([]string, len(chunk))
		for i, entry := range chunk {
			urls[i] = entry.resolution.ChosenURL
		}

		batchID, err := p.engine.SubmitBatch(ctx, urls)
		if err != nil {
			p.failChunk(chunk, err, results, progress)
			continue
		}

		if err := p.consumeStream(ctx, batchID, chunk, results, progress); err != nil {
			return err
		}
	}

	return nil
}

// consumeStream reads one chunk's line-delimited results. Final lines are
// cached immediately; tracks the stream never finalized are cached with an
// engine error so the failure is visible and retryable.
func (p *Pipeline) consumeStream(ctx context.Context, batchID string, chunk []*batchEntry, results map[string]*models.TrackAnalysis, progress chan<- ProgressUpdate) error {
	stream, err := p.engine.OpenStream(ctx, batchID)
	if err != nil {
		p.failChunk(chunk, err, results, progress)
		return nil
	}
	defer stream.Close()

	finalized := make(map[int]bool, len(chunk))

	for {
		line, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			p.logger.Warn("stream failed mid-batch", "batch_id", batchID, "error", err)
			break
		}

		if line.Index < 0 || line.Index >= len(chunk) {
			p.logger.Warn("stream line for unknown index", "batch_id", batchID, "index", line.Index)
			continue
		}
		entry := chunk[line.Index]

		if !line.Final() {
			p.sendProgress(progress, streamResultUpdate(len(finalized), len(chunk), entry.trackID, false))
			continue
		}

		applyOutcome(entry.record, line.Outcome)
		finalized[line.Index] = true
		p.writeEntry(entry, results, progress)
		p.sendProgress(progress, streamResultUpdate(len(finalized), len(chunk), entry.trackID, true))
	}

	streamErr := fmt.Errorf("%w: stream for batch %s ended without a final result", shared.ErrAnalysisEngine, batchID)
	for i, entry := range chunk {
		if !finalized[i] {
			entry.record.Error = strptr(streamErr.Error())
			p.writeEntry(entry, results, progress)
		}
	}

	return ctx.Err()
}

// failChunk caches an engine failure for every entry in the chunk. Failures
// carry the same freshness window as successes, so they retry on the next
// cache-miss cycle.
func (p *Pipeline) failChunk(chunk []*batchEntry, err error, results map[string]*models.TrackAnalysis, progress chan<- ProgressUpdate) {
	for _, entry := range chunk {
		entry.record.Error = strptr(err.Error())
		p.writeEntry(entry, results, progress)
	}
}

// writeEntry upserts an entry's record and exposes the merged row in the
// result map.
func (p *Pipeline) writeEntry(entry *batchEntry, results map[string]*models.TrackAnalysis, progress chan<- ProgressUpdate) {
	if err := p.store.Upsert(entry.record); err != nil {
		p.logger.Error("failed to cache outcome", "track_id", entry.trackID, "error", err)
		results[entry.trackID] = entry.record
		return
	}

	results[entry.trackID] = p.storedRecord(entry.record)
	p.sendProgress(progress, writeCacheUpdate(entry.trackID))
}

func applyOutcome(record *models.TrackAnalysis, outcome services.EngineOutcome) {
	if outcome.Error != "" {
		record.Error = strptr(outcome.Error)
		return
	}
	if outcome.Primary != nil {
		record.Primary = *outcome.Primary
	}
	if outcome.Secondary != nil {
		record.Secondary = *outcome.Secondary
	}
}

func dedupe(trackIDs []string) []string {
	seen := make(map[string]bool, len(trackIDs))
	var out []string
	for _, id := range trackIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
