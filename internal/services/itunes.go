// iTunes Search API implementation of [SearchProvider]
//
// The iTunes catalog varies by storefront, so the country hint matters:
// a preview licensed in one region may be absent in another.
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

const defaultITunesBaseURL = "https://itunes.apple.com"

type itunesResult struct {
	TrackID    int64  `json:"trackId"`
	TrackName  string `json:"trackName"`
	ArtistName string `json:"artistName"`
	PreviewURL string `json:"previewUrl"`
	ISRC       string `json:"isrc"`
}

type itunesSearchResponse struct {
	ResultCount int            `json:"resultCount"`
	Results     []itunesResult `json:"results"`
}

// ITunesService talks to the iTunes Search API.
type ITunesService struct {
	baseURL    string
	httpClient *http.Client
}

// NewITunesService creates an iTunes client. baseURL and client default to
// the public API and [http.DefaultClient].
func NewITunesService(baseURL string, client *http.Client) *ITunesService {
	if baseURL == "" {
		baseURL = defaultITunesBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &ITunesService{baseURL: baseURL, httpClient: client}
}

// Tag returns the provenance for iTunes search results.
func (i *ITunesService) Tag() models.Provenance {
	return models.ProvenanceITunesSearch
}

// Search implements [SearchProvider] via GET /search constrained to songs
// in the given storefront country.
func (i *ITunesService) Search(ctx context.Context, title, artist, country string) ([]SearchCandidate, error) {
	params := url.Values{}
	params.Set("term", fmt.Sprintf("%s %s", artist, title))
	params.Set("media", "music")
	params.Set("entity", "song")
	params.Set("limit", "10")
	if country != "" {
		params.Set("country", country)
	}

	endpoint := fmt.Sprintf("%s/search?%s", i.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: itunes status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	var response itunesSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("%w: failed to decode itunes response: %v", shared.ErrAPIRequest, err)
	}

	candidates := make([]SearchCandidate, 0, len(response.Results))
	for _, result := range response.Results {
		if result.PreviewURL == "" {
			continue
		}
		candidates = append(candidates, SearchCandidate{
			PreviewURL: result.PreviewURL,
			ISRC:       result.ISRC,
		})
	}

	return candidates, nil
}
