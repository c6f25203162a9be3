package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExchange    = fmt.Errorf("token exchange failed")

	// Pipeline errors
	ErrInvalidTrackID = fmt.Errorf("invalid track id")             // malformed platform track ID, fatal to the caller
	ErrUpstreamLookup = fmt.Errorf("track metadata lookup failed") // identifier resolution failed, surfaced as-is
	ErrNoPreview      = fmt.Errorf("no preview available")         // every provider exhausted, a legitimate cached outcome
	ErrISRCMismatch   = fmt.Errorf("preview ISRC mismatch")        // provider audio identifies a different recording
	ErrAnalysisEngine = fmt.Errorf("analysis engine failure")      // submission, poll or stream failure
	ErrEngineTimeout  = fmt.Errorf("analysis engine timed out")

	// API and storage errors
	ErrAPIRequest      = fmt.Errorf("API request failed")
	ErrRecordNotFound  = fmt.Errorf("analysis record not found")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
