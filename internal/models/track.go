package models

// Provenance tags which provider chain produced a preview URL.
type Provenance string

const (
	ProvenanceDeezerISRC   Provenance = "deezer_isrc"    // authoritative ISRC lookup
	ProvenanceITunesSearch Provenance = "itunes_search"  // free-text search, ISRC verified
	ProvenanceDeezerSearch Provenance = "deezer_search"  // free-text search, ISRC verified
	ProvenancePlatform     Provenance = "platform"       // preview URL supplied by the track lookup itself
	ProvenanceFailed       Provenance = "computed_failed" // every provider exhausted or mismatched
)

// TrackIdentifiers is the canonical metadata for a platform track,
// computed per request and never persisted directly.
type TrackIdentifiers struct {
	TrackID            string // opaque platform track ID
	ISRC               string // empty when the platform has no code on file
	Title              string // parenthetical qualifiers stripped
	Artist             string // joined artist string
	PlatformPreviewURL string // platform-native preview, empty when unlicensed
}

// PreviewCandidate records one URL attempted during preview resolution.
// A resolution produces an ordered candidate list with at most one success.
type PreviewCandidate struct {
	URL       string     `json:"url"`
	Provider  Provenance `json:"provider"`
	Succeeded bool       `json:"succeeded"`
}

// PreviewResolution is the outcome of running the provider chain for one track.
type PreviewResolution struct {
	ChosenURL    string             // empty when no usable preview was found
	Provenance   Provenance
	Candidates   []PreviewCandidate
	ISRCMismatch bool
}
