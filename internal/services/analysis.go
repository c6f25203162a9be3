// Analysis engine client
//
// The engine is consumed as an opaque HTTP service over two protocols:
// a synchronous batch submit/poll pair, and a streaming line-delimited
// response consumed incrementally (see stream.go). Both start with the
// same submission call and share a bearer token from a [TokenProvider].
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/shared"
)

// Batch status values reported by the engine.
const (
	BatchStatusPending   = "pending"
	BatchStatusRunning   = "running"
	BatchStatusCompleted = "completed"
	BatchStatusFailed    = "failed"
)

// EngineOutcome is one track's result: both algorithms' tempo/key tuples
// plus an optional per-track error message.
type EngineOutcome struct {
	Primary   *models.AnalysisOutcome `json:"primary,omitempty"`
	Secondary *models.AnalysisOutcome `json:"secondary,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// BatchStatus is the engine's answer to a poll request. Results are keyed
// by submission index, encoded as strings on the wire.
type BatchStatus struct {
	Status  string                   `json:"status"`
	Results map[string]EngineOutcome `json:"results"`
}

// AnalysisService submits preview URLs to the analysis engine and collects
// per-algorithm outcomes.
type AnalysisService struct {
	baseURL             string
	tokens              TokenProvider
	httpClient          *http.Client
	confidenceThreshold float64
	debugLevel          int
	pollInterval        time.Duration
	maxWait             time.Duration
}

// NewAnalysisService creates an engine client from configuration.
func NewAnalysisService(cfg shared.EngineConfig, tokens TokenProvider, client *http.Client) *AnalysisService {
	if client == nil {
		client = http.DefaultClient
	}
	if tokens == nil {
		tokens = StaticToken(cfg.Token)
	}
	return &AnalysisService{
		baseURL:             cfg.BaseURL,
		tokens:              tokens,
		httpClient:          client,
		confidenceThreshold: cfg.ConfidenceThreshold,
		debugLevel:          cfg.DebugLevel,
		pollInterval:        cfg.PollInterval(),
		maxWait:             cfg.MaxWait(),
	}
}

// SubmitBatch submits preview URLs and returns the engine's job identifier.
func (a *AnalysisService) SubmitBatch(ctx context.Context, urls []string) (string, error) {
	if len(urls) == 0 {
		return "", fmt.Errorf("%w: no urls to submit", shared.ErrInvalidArgument)
	}

	payload := struct {
		URLs                []string `json:"urls"`
		ConfidenceThreshold float64  `json:"confidenceThreshold"`
		DebugLevel          int      `json:"debugLevel"`
	}{
		URLs:                urls,
		ConfidenceThreshold: a.confidenceThreshold,
		DebugLevel:          a.debugLevel,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal submission: %v", shared.ErrAnalysisEngine, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/analyze/batch", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := a.authorize(ctx, req); err != nil {
		return "", err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: submission failed: %v", shared.ErrAnalysisEngine, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: submission status %d", shared.ErrAnalysisEngine, resp.StatusCode)
	}

	var submitted struct {
		BatchID string `json:"batchId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		return "", fmt.Errorf("%w: failed to decode submission response: %v", shared.ErrAnalysisEngine, err)
	}
	if submitted.BatchID == "" {
		return "", fmt.Errorf("%w: submission returned no batch id", shared.ErrAnalysisEngine)
	}

	return submitted.BatchID, nil
}

// GetBatch fetches the current status for a submitted batch.
func (a *AnalysisService) GetBatch(ctx context.Context, batchID string) (*BatchStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/batch/"+batchID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if err := a.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: poll failed: %v", shared.ErrAnalysisEngine, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: poll status %d", shared.ErrAnalysisEngine, resp.StatusCode)
	}

	var status BatchStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("%w: failed to decode poll response: %v", shared.ErrAnalysisEngine, err)
	}

	return &status, nil
}

// WaitForBatch polls the batch at a fixed interval until the engine reports
// completed, bounded by the configured max wait. Exceeding the bound is a
// timeout failure, not a partial success: no results are returned.
//
// Results come back indexed by submission order.
func (a *AnalysisService) WaitForBatch(ctx context.Context, batchID string) (map[int]EngineOutcome, error) {
	deadline := time.Now().Add(a.maxWait)
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		status, err := a.GetBatch(ctx, batchID)
		if err != nil {
			return nil, err
		}

		switch status.Status {
		case BatchStatusCompleted:
			return indexResults(status.Results)
		case BatchStatusFailed:
			return nil, fmt.Errorf("%w: engine reported batch %s failed", shared.ErrAnalysisEngine, batchID)
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: batch %s not completed after %s", shared.ErrEngineTimeout, batchID, a.maxWait)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *AnalysisService) authorize(ctx context.Context, req *http.Request) error {
	token, err := a.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrTokenExchange, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

func indexResults(results map[string]EngineOutcome) (map[int]EngineOutcome, error) {
	indexed := make(map[int]EngineOutcome, len(results))
	for key, outcome := range results {
		index, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed result index %q", shared.ErrAnalysisEngine, key)
		}
		indexed[index] = outcome
	}
	return indexed, nil
}
