// package services defines clients for the external collaborators:
// the platform track lookup, the preview catalog providers, the
// bibliographic metadata service and the tempo/key analysis engine.
package services

import (
	"context"

	"github.com/desertthunder/bpmx/internal/models"
)

// TrackSource resolves a platform track ID into canonical metadata.
type TrackSource interface {
	// Lookup fetches title, artists, ISRC and the platform-native preview
	// URL for a track. Failures wrap [shared.ErrUpstreamLookup] and are not
	// retried internally.
	Lookup(ctx context.Context, trackID string) (*models.TrackIdentifiers, error)

	// Name returns the source name for logging.
	Name() string
}

// ISRCProvider supports direct ISRC-to-recording lookup. A hit is always
// trusted: ISRC lookup is authoritative for recording identity.
type ISRCProvider interface {
	// LookupISRC returns a playable preview URL for the recording, or
	// [shared.ErrNoPreview] when the provider has no preview for the code.
	LookupISRC(ctx context.Context, isrc string) (string, error)

	// ISRCTag returns the provenance recorded when an ISRC lookup succeeds.
	// Distinct from [SearchProvider.Tag] because a provider may serve both
	// entry points with different provenance.
	ISRCTag() models.Provenance
}

// SearchCandidate is one result of a free-text catalog search.
type SearchCandidate struct {
	PreviewURL string `json:"preview_url"`
	ISRC       string `json:"isrc,omitempty"`
}

// SearchProvider supports free-text (artist + title) catalog search.
type SearchProvider interface {
	// Search returns candidate previews ordered by provider relevance.
	// The country hint constrains regional catalog availability; providers
	// that have no regional parameter ignore it.
	Search(ctx context.Context, title, artist, country string) ([]SearchCandidate, error)

	// Tag returns the provenance recorded when one of this provider's
	// candidates succeeds.
	Tag() models.Provenance
}

// TokenProvider supplies bearer identity tokens for the analysis engine.
// The service-account credential exchange lives outside this module; a
// static token from configuration satisfies the interface.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider returning a fixed token.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}
