// Spotify implementation of [TrackSource]
//
// Track lookup uses the client-credentials flow: reading public track
// metadata needs no user consent, so no authorization-code dance is
// involved. Response types follow
// https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/shared"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"
)

type externalIDs struct {
	ISRC string `json:"isrc"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	DurationMS  int             `json:"duration_ms"`
	ExternalIDs externalIDs     `json:"external_ids"`
	PreviewURL  string          `json:"preview_url"`
	URI         string          `json:"uri"`
}

// SpotifyService implements [TrackSource] against the Spotify Web API.
type SpotifyService struct {
	baseURL    string
	httpClient *http.Client
}

// NewSpotifyService creates a Spotify track source with the given
// client-credentials pair. The returned service owns an HTTP client that
// transparently fetches and refreshes the app token.
func NewSpotifyService(ctx context.Context, credentials map[string]string) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	config := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyTokenURL,
	}

	return &SpotifyService{
		baseURL:    spotifyBaseURL,
		httpClient: config.Client(ctx),
	}, nil
}

// NewSpotifyServiceWithClient creates a Spotify track source against a custom
// base URL and HTTP client. Used by tests and proxy deployments.
func NewSpotifyServiceWithClient(baseURL string, client *http.Client) *SpotifyService {
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &SpotifyService{baseURL: baseURL, httpClient: client}
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// Track retrieves a single track by ID.
func (s *SpotifyService) Track(ctx context.Context, trackID string) (*SpotifyTrack, error) {
	endpoint := fmt.Sprintf("%s/tracks/%s", s.baseURL, trackID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrUpstreamLookup, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: unauthorized (status %d)", shared.ErrUpstreamLookup, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: track %s not found", shared.ErrUpstreamLookup, trackID)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: status %d", shared.ErrUpstreamLookup, resp.StatusCode)
	}

	var track SpotifyTrack
	if err := json.NewDecoder(resp.Body).Decode(&track); err != nil {
		return nil, fmt.Errorf("%w: failed to decode track: %v", shared.ErrUpstreamLookup, err)
	}

	return &track, nil
}

// Lookup implements [TrackSource]: it fetches the track and normalizes it
// into [models.TrackIdentifiers], cleaning the title of remix/version
// qualifiers and joining the artist names.
func (s *SpotifyService) Lookup(ctx context.Context, trackID string) (*models.TrackIdentifiers, error) {
	track, err := s.Track(ctx, trackID)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(track.Artists))
	for _, artist := range track.Artists {
		names = append(names, artist.Name)
	}

	return &models.TrackIdentifiers{
		TrackID:            trackID,
		ISRC:               strings.ToUpper(track.ExternalIDs.ISRC),
		Title:              shared.CleanTitle(track.Name),
		Artist:             strings.Join(names, ", "),
		PlatformPreviewURL: track.PreviewURL,
	}, nil
}
