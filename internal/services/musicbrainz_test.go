package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/desertthunder/bpmx/internal/shared"
)

func TestMusicBrainzService(t *testing.T) {
	t.Run("Looks Up Recording By ISRC", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/isrc/USUM71703861" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if r.URL.Query().Get("fmt") != "json" {
				t.Error("expected fmt=json")
			}
			if r.URL.Query().Get("inc") != "artist-credits" {
				t.Error("expected inc=artist-credits")
			}
			if r.Header.Get("User-Agent") != "bpmx/test (dev@example.com)" {
				t.Errorf("unexpected user agent %q", r.Header.Get("User-Agent"))
			}
			w.Write([]byte(`{
				"recordings": [
					{
						"id": "rec-1",
						"title": "HUMBLE.",
						"artist-credit": [{"name": "Kendrick Lamar"}]
					}
				]
			}`))
		}))
		defer server.Close()

		svc := NewMusicBrainzService(server.URL, "bpmx/test (dev@example.com)", server.Client())

		recording, err := svc.RecordingByISRC(context.Background(), "USUM71703861")
		if err != nil {
			t.Fatalf("expected lookup to succeed, got %v", err)
		}
		if recording.ID != "rec-1" || recording.Title != "HUMBLE." {
			t.Errorf("unexpected recording %+v", recording)
		}
		if recording.Artist != "Kendrick Lamar" {
			t.Errorf("expected first credited artist, got %q", recording.Artist)
		}
	})

	t.Run("Missing Artist Credit", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"recordings": [{"id": "rec-2", "title": "Untitled"}]}`))
		}))
		defer server.Close()

		svc := NewMusicBrainzService(server.URL, "bpmx/test", server.Client())

		recording, err := svc.RecordingByISRC(context.Background(), "GBAYE0601498")
		if err != nil {
			t.Fatalf("expected lookup to succeed, got %v", err)
		}
		if recording.Artist != "" {
			t.Errorf("expected empty artist, got %q", recording.Artist)
		}
	})

	t.Run("Unknown ISRC", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Not Found", http.StatusNotFound)
		}))
		defer server.Close()

		svc := NewMusicBrainzService(server.URL, "bpmx/test", server.Client())

		if _, err := svc.RecordingByISRC(context.Background(), "ZZZZZ0000000"); !errors.Is(err, shared.ErrRecordNotFound) {
			t.Errorf("expected ErrRecordNotFound, got %v", err)
		}
	})

	t.Run("Empty Recording List", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"recordings": []}`))
		}))
		defer server.Close()

		svc := NewMusicBrainzService(server.URL, "bpmx/test", server.Client())

		if _, err := svc.RecordingByISRC(context.Background(), "USUM71703861"); !errors.Is(err, shared.ErrRecordNotFound) {
			t.Errorf("expected ErrRecordNotFound, got %v", err)
		}
	})

	t.Run("Server Error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		svc := NewMusicBrainzService(server.URL, "bpmx/test", server.Client())

		if _, err := svc.RecordingByISRC(context.Background(), "USUM71703861"); !errors.Is(err, shared.ErrAPIRequest) {
			t.Errorf("expected ErrAPIRequest, got %v", err)
		}
	})
}
