package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/repositories"
	"github.com/desertthunder/bpmx/internal/shared"
	"github.com/desertthunder/bpmx/internal/tasks"
)

type fakePipeline struct {
	records     map[string]*models.TrackAnalysis
	queue       []tasks.ReviewItem
	lastCountry string
	lastBatch   []string
	lastUpdate  repositories.SelectionUpdate
	lastAction  tasks.ReviewAction
	lastRevwr   string
	err         error
}

func (f *fakePipeline) ResolveSingle(_ context.Context, trackID, countryHint string) (*models.TrackAnalysis, error) {
	f.lastCountry = countryHint
	if f.err != nil {
		return f.records[trackID], f.err
	}
	record, ok := f.records[trackID]
	if !ok {
		return nil, fmt.Errorf("track %s: %w", trackID, shared.ErrRecordNotFound)
	}
	return record, nil
}

func (f *fakePipeline) ResolveBatch(_ context.Context, trackIDs []string, countryHint string, _ chan<- tasks.ProgressUpdate) (map[string]*models.TrackAnalysis, error) {
	f.lastCountry = countryHint
	f.lastBatch = trackIDs
	if f.err != nil {
		return nil, f.err
	}
	results := make(map[string]*models.TrackAnalysis)
	for _, id := range trackIDs {
		if record, ok := f.records[id]; ok {
			results[id] = record
		}
	}
	return results, nil
}

func (f *fakePipeline) UpdateSelection(_ context.Context, trackID string, update repositories.SelectionUpdate) (*models.TrackAnalysis, error) {
	f.lastUpdate = update
	if f.err != nil {
		return nil, f.err
	}
	record, ok := f.records[trackID]
	if !ok {
		return nil, fmt.Errorf("track %s: %w", trackID, shared.ErrRecordNotFound)
	}
	return record, nil
}

func (f *fakePipeline) Review(_ context.Context, trackID string, action tasks.ReviewAction, reviewer string) (*models.TrackAnalysis, error) {
	f.lastAction = action
	f.lastRevwr = reviewer
	if f.err != nil {
		return f.records[trackID], f.err
	}
	record, ok := f.records[trackID]
	if !ok {
		return nil, fmt.Errorf("track %s: %w", trackID, shared.ErrRecordNotFound)
	}
	return record, nil
}

func (f *fakePipeline) ReviewQueue(context.Context) ([]tasks.ReviewItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.queue, nil
}

func sampleAnalysis(trackID string) *models.TrackAnalysis {
	tempo := 150.0
	title := "HUMBLE."
	artist := "Kendrick Lamar"
	return &models.TrackAnalysis{
		ID:        shared.GenerateID(),
		TrackID:   trackID,
		Title:     &title,
		Artist:    &artist,
		Primary:   models.AnalysisOutcome{Tempo: &tempo},
		UpdatedAt: time.Now().UTC(),
	}
}

func newTestServer(t *testing.T, pipeline PipelineService) *httptest.Server {
	t.Helper()
	logger := shared.NewLogger(io.Discard)
	router := NewBasicRouter()
	router.Handler(NewAPI(pipeline, logger))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func decodeRecord(t *testing.T, body io.Reader) *models.TrackAnalysis {
	t.Helper()
	var record models.TrackAnalysis
	if err := json.NewDecoder(body).Decode(&record); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return &record
}

func TestAPI(t *testing.T) {
	t.Run("Health", func(t *testing.T) {
		srv := newTestServer(t, &fakePipeline{})
		resp, err := http.Get(srv.URL + "/health")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
	})

	t.Run("Get Analysis", func(t *testing.T) {
		pipeline := &fakePipeline{records: map[string]*models.TrackAnalysis{"track-1": sampleAnalysis("track-1")}}
		srv := newTestServer(t, pipeline)

		resp, err := http.Get(srv.URL + "/api/tracks/track-1/analysis")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		record := decodeRecord(t, resp.Body)
		if record.TrackID != "track-1" {
			t.Errorf("expected track-1, got %s", record.TrackID)
		}
		if record.Primary.Tempo == nil || *record.Primary.Tempo != 150 {
			t.Error("expected primary tempo 150")
		}
	})

	t.Run("Country Hint From X-Market Header", func(t *testing.T) {
		pipeline := &fakePipeline{records: map[string]*models.TrackAnalysis{"track-1": sampleAnalysis("track-1")}}
		srv := newTestServer(t, pipeline)

		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/tracks/track-1/analysis", nil)
		req.Header.Set("X-Market", "DE")
		req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()

		if pipeline.lastCountry != "DE" {
			t.Errorf("expected country DE, got %q", pipeline.lastCountry)
		}
	})

	t.Run("Country Hint From Accept-Language", func(t *testing.T) {
		pipeline := &fakePipeline{records: map[string]*models.TrackAnalysis{"track-1": sampleAnalysis("track-1")}}
		srv := newTestServer(t, pipeline)

		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/tracks/track-1/analysis", nil)
		req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()

		if pipeline.lastCountry != "FR" {
			t.Errorf("expected country FR, got %q", pipeline.lastCountry)
		}
	})

	t.Run("Missing Record Is 404", func(t *testing.T) {
		srv := newTestServer(t, &fakePipeline{records: map[string]*models.TrackAnalysis{}})

		resp, err := http.Get(srv.URL + "/api/tracks/absent/analysis")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
	})

	t.Run("Mismatch Is 409 With Record", func(t *testing.T) {
		record := sampleAnalysis("track-1")
		record.ISRCMismatch = true
		pipeline := &fakePipeline{
			records: map[string]*models.TrackAnalysis{"track-1": record},
			err:     fmt.Errorf("track track-1: %w", shared.ErrISRCMismatch),
		}
		srv := newTestServer(t, pipeline)

		resp, err := http.Get(srv.URL + "/api/tracks/track-1/analysis")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("expected 409, got %d", resp.StatusCode)
		}
		var envelope struct {
			Error  string                `json:"error"`
			Record *models.TrackAnalysis `json:"record"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(envelope.Error, "mismatch") {
			t.Errorf("expected mismatch error, got %q", envelope.Error)
		}
		if envelope.Record == nil || !envelope.Record.ISRCMismatch {
			t.Error("expected flagged record in error envelope")
		}
	})

	t.Run("Engine Failure Is 502", func(t *testing.T) {
		pipeline := &fakePipeline{
			records: map[string]*models.TrackAnalysis{},
			err:     fmt.Errorf("submitting batch: %w", shared.ErrAnalysisEngine),
		}
		srv := newTestServer(t, pipeline)

		resp, err := http.Get(srv.URL + "/api/tracks/track-1/analysis")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", resp.StatusCode)
		}
	})

	t.Run("Batch", func(t *testing.T) {
		pipeline := &fakePipeline{records: map[string]*models.TrackAnalysis{
			"track-1": sampleAnalysis("track-1"),
			"track-2": sampleAnalysis("track-2"),
		}}
		srv := newTestServer(t, pipeline)

		body, _ := json.Marshal(map[string][]string{"track_ids": {"track-1", "track-2"}})
		resp, err := http.Post(srv.URL+"/api/analyses/batch", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var results map[string]*models.TrackAnalysis
		if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
			t.Fatal(err)
		}
		if len(results) != 2 {
			t.Errorf("expected 2 results, got %d", len(results))
		}
		if len(pipeline.lastBatch) != 2 {
			t.Errorf("expected 2 track IDs forwarded, got %d", len(pipeline.lastBatch))
		}
	})

	t.Run("Batch Rejects Malformed Body", func(t *testing.T) {
		srv := newTestServer(t, &fakePipeline{})
		resp, err := http.Post(srv.URL+"/api/analyses/batch", "application/json", strings.NewReader("{"))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("Selection Update", func(t *testing.T) {
		pipeline := &fakePipeline{records: map[string]*models.TrackAnalysis{"track-1": sampleAnalysis("track-1")}}
		srv := newTestServer(t, pipeline)

		manual := 152.0
		body, _ := json.Marshal(map[string]any{"tempo_selected": models.SelectorManual, "tempo_manual": manual})
		req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/api/tracks/track-1/selection", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if pipeline.lastUpdate.TempoSelected == nil || *pipeline.lastUpdate.TempoSelected != models.SelectorManual {
			t.Error("expected manual tempo selector forwarded")
		}
		if pipeline.lastUpdate.TempoManual == nil || *pipeline.lastUpdate.TempoManual != 152 {
			t.Error("expected manual tempo value forwarded")
		}
	})

	t.Run("Invalid Selection Is 400", func(t *testing.T) {
		pipeline := &fakePipeline{err: fmt.Errorf("manual selector without value: %w", shared.ErrInvalidArgument)}
		srv := newTestServer(t, pipeline)

		body, _ := json.Marshal(map[string]any{"tempo_selected": models.SelectorManual})
		req, _ := http.NewRequest(http.MethodPatch, srv.URL+"/api/tracks/track-1/selection", bytes.NewReader(body))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("Review", func(t *testing.T) {
		pipeline := &fakePipeline{records: map[string]*models.TrackAnalysis{"track-1": sampleAnalysis("track-1")}}
		srv := newTestServer(t, pipeline)

		body, _ := json.Marshal(map[string]string{"action": string(tasks.ReviewConfirmMatch), "reviewer": "alex"})
		resp, err := http.Post(srv.URL+"/api/tracks/track-1/review", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if pipeline.lastAction != tasks.ReviewConfirmMatch {
			t.Errorf("expected confirm_match, got %s", pipeline.lastAction)
		}
		if pipeline.lastRevwr != "alex" {
			t.Errorf("expected reviewer alex, got %s", pipeline.lastRevwr)
		}
	})

	t.Run("Review Queue", func(t *testing.T) {
		pipeline := &fakePipeline{queue: []tasks.ReviewItem{
			{Record: sampleAnalysis("track-1"), CanonicalTitle: "HUMBLE.", CanonicalArtist: "Kendrick Lamar"},
		}}
		srv := newTestServer(t, pipeline)

		resp, err := http.Get(srv.URL + "/api/review/queue")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		var items []tasks.ReviewItem
		if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
			t.Fatal(err)
		}
		if len(items) != 1 || items[0].CanonicalTitle != "HUMBLE." {
			t.Errorf("unexpected queue contents: %+v", items)
		}
	})

	t.Run("Empty Review Queue Is An Empty Array", func(t *testing.T) {
		srv := newTestServer(t, &fakePipeline{})
		resp, err := http.Get(srv.URL + "/api/review/queue")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		raw, _ := io.ReadAll(resp.Body)
		if strings.TrimSpace(string(raw)) != "[]" {
			t.Errorf("expected empty array, got %s", raw)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("Recover Converts Panic To 500", func(t *testing.T) {
		logger := shared.NewLogger(io.Discard)
		handler := Recover(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
	})

	t.Run("Router Applies Middleware In Order", func(t *testing.T) {
		router := NewBasicRouter()

		var order []string
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, "first")
				next.ServeHTTP(w, r)
			})
		})
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, "second")
				next.ServeHTTP(w, r)
			})
		})
		router.Handle(http.MethodGet, "/ping", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rec.Code)
		}
		if len(order) != 2 || order[0] != "first" || order[1] != "second" {
			t.Errorf("unexpected middleware order: %v", order)
		}
	})
}
