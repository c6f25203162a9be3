package tasks

import "fmt"

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	TrackID string // Track the update concerns, when applicable
}

// Operation phase enumeration
type Phase int

const (
	CacheLookup Phase = iota
	ResolveIdentifiers
	ResolvePreview
	SubmitChunk
	StreamResults
	WriteCache
)

func (p Phase) String() string {
	switch p {
	case CacheLookup:
		return "cache_lookup"
	case ResolveIdentifiers:
		return "resolve_identifiers"
	case ResolvePreview:
		return "resolve_preview"
	case SubmitChunk:
		return "submit_chunk"
	case StreamResults:
		return "stream_results"
	case WriteCache:
		return "write_cache"
	default:
		return ""
	}
}

func cacheLookupUpdate(step, total, hits int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   CacheLookup,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Checked cache for %d tracks (%d fresh)", step, hits),
	}
}

func identifiersUpdate(step, total int, trackID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveIdentifiers,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Resolving %s", step, total, trackID),
		TrackID: trackID,
	}
}

func previewUpdate(step, total int, trackID string, found bool) ProgressUpdate {
	status := "no preview"
	if found {
		status = "preview found"
	}
	return ProgressUpdate{
		Phase:   ResolvePreview,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s: %s", step, total, trackID, status),
		TrackID: trackID,
	}
}

func submitChunkUpdate(chunk, totalChunks, size int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SubmitChunk,
		Step:    chunk,
		Total:   totalChunks,
		Message: fmt.Sprintf("Submitting chunk %d/%d (%d previews)", chunk, totalChunks, size),
	}
}

func streamResultUpdate(step, total int, trackID string, final bool) ProgressUpdate {
	state := "analyzing"
	if final {
		state = "done"
	}
	return ProgressUpdate{
		Phase:   StreamResults,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s: %s", step, total, trackID, state),
		TrackID: trackID,
	}
}

func writeCacheUpdate(trackID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WriteCache,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Cached outcome for %s", trackID),
		TrackID: trackID,
	}
}
