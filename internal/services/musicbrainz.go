// MusicBrainz bibliographic metadata client
//
// A deliberately small client: the review workflow uses it to show the
// canonical recording name behind an ISRC so reviewers can judge a mismatch
// without leaving the queue. Requests are limited to 1/s per the
// MusicBrainz API guidelines.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/desertthunder/bpmx/internal/shared"
	"golang.org/x/time/rate"
)

const defaultMusicBrainzBaseURL = "https://musicbrainz.org/ws/2"

// Recording is a MusicBrainz recording entry, reduced to the fields the
// review queue displays.
type Recording struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

type mbArtistCredit struct {
	Name string `json:"name"`
}

type mbRecording struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	ArtistCredit []mbArtistCredit `json:"artist-credit"`
}

type mbISRCResponse struct {
	Recordings []mbRecording `json:"recordings"`
}

// MusicBrainzService looks up recordings by ISRC, rate limited process-wide.
type MusicBrainzService struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewMusicBrainzService creates a MusicBrainz client. MusicBrainz requires a
// descriptive User-Agent identifying the application.
func NewMusicBrainzService(baseURL, userAgent string, client *http.Client) *MusicBrainzService {
	if baseURL == "" {
		baseURL = defaultMusicBrainzBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &MusicBrainzService{
		baseURL:    baseURL,
		userAgent:  userAgent,
		httpClient: client,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// RecordingByISRC returns the first recording registered under the code.
func (m *MusicBrainzService) RecordingByISRC(ctx context.Context, isrc string) (*Recording, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/isrc/%s?fmt=json&inc=artist-credits", m.baseURL, url.PathEscape(isrc))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", m.userAgent)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: no recording for isrc %s", shared.ErrRecordNotFound, isrc)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: musicbrainz status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	var response mbISRCResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("%w: failed to decode musicbrainz response: %v", shared.ErrAPIRequest, err)
	}

	if len(response.Recordings) == 0 {
		return nil, fmt.Errorf("%w: no recording for isrc %s", shared.ErrRecordNotFound, isrc)
	}

	first := response.Recordings[0]
	recording := &Recording{ID: first.ID, Title: first.Title}
	if len(first.ArtistCredit) > 0 {
		recording.Artist = first.ArtistCredit[0].Name
	}

	return recording, nil
}
