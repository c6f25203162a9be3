// Deezer implementations of [ISRCProvider] and [SearchProvider]
//
// Deezer exposes a direct ISRC-keyed track endpoint, which makes it the
// authoritative first stop in the provider chain, plus a free-text search.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/shared"
)

const defaultDeezerBaseURL = "https://api.deezer.com"

type deezerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type deezerTrack struct {
	ID      int64        `json:"id"`
	Title   string       `json:"title"`
	ISRC    string       `json:"isrc"`
	Preview string       `json:"preview"`
	Error   *deezerError `json:"error"`
}

type deezerSearchResponse struct {
	Data  []deezerTrack `json:"data"`
	Error *deezerError  `json:"error"`
}

// DeezerService talks to the Deezer public API.
type DeezerService struct {
	baseURL    string
	httpClient *http.Client
}

// NewDeezerService creates a Deezer client. baseURL and client default to
// the public API and [http.DefaultClient].
func NewDeezerService(baseURL string, client *http.Client) *DeezerService {
	if baseURL == "" {
		baseURL = defaultDeezerBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &DeezerService{baseURL: baseURL, httpClient: client}
}

// Tag returns the provenance for Deezer free-text search results.
func (d *DeezerService) Tag() models.Provenance {
	return models.ProvenanceDeezerSearch
}

// ISRCTag returns the provenance for authoritative ISRC lookups.
func (d *DeezerService) ISRCTag() models.Provenance {
	return models.ProvenanceDeezerISRC
}

// LookupISRC implements [ISRCProvider] via GET /track/isrc:{isrc}.
//
// Deezer answers 200 with an embedded error object for unknown codes, so
// both the HTTP status and the payload are checked.
func (d *DeezerService) LookupISRC(ctx context.Context, isrc string) (string, error) {
	endpoint := fmt.Sprintf("%s/track/isrc:%s", d.baseURL, url.PathEscape(isrc))

	var track deezerTrack
	if err := d.get(ctx, endpoint, &track); err != nil {
		return "", err
	}

	if track.Error != nil {
		return "", fmt.Errorf("%w: deezer has no track for isrc %s", shared.ErrNoPreview, isrc)
	}
	if track.Preview == "" {
		return "", fmt.Errorf("%w: deezer track for isrc %s has no preview", shared.ErrNoPreview, isrc)
	}

	return track.Preview, nil
}

// Search implements [SearchProvider] via GET /search with Deezer's
// advanced query syntax. Deezer has no regional parameter; country is
// ignored.
func (d *DeezerService) Search(ctx context.Context, title, artist, country string) ([]SearchCandidate, error) {
	query := fmt.Sprintf(`artist:"%s" track:"%s"`, artist, title)
	endpoint := fmt.Sprintf("%s/search?q=%s", d.baseURL, url.QueryEscape(query))

	var response deezerSearchResponse
	if err := d.get(ctx, endpoint, &response); err != nil {
		return nil, err
	}

	if response.Error != nil {
		return nil, fmt.Errorf("%w: deezer search error: %s", shared.ErrAPIRequest, response.Error.Message)
	}

	candidates := make([]SearchCandidate, 0, len(response.Data))
	for _, track := range response.Data {
		if track.Preview == "" {
			continue
		}
		candidates = append(candidates, SearchCandidate{
			PreviewURL: track.Preview,
			ISRC:       track.ISRC,
		})
	}

	return candidates, nil
}

func (d *DeezerService) get(ctx context.Context, endpoint string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: deezer status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: failed to decode deezer response: %v", shared.ErrAPIRequest, err)
	}

	return nil
}
