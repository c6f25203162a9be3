package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/desertthunder/bpmx/internal/shared"
)

// Stream line states. A partial line may be superseded by a later line for
// the same index; a final line is terminal for that index.
const (
	StreamStatePartial = "partial"
	StreamStateFinal   = "final"
)

// StreamLine is one track's outcome on the engine's line-delimited stream.
type StreamLine struct {
	Index   int           `json:"index"`
	State   string        `json:"state"`
	Outcome EngineOutcome `json:"outcome"`
}

// Final reports whether the line is terminal for its index.
func (l StreamLine) Final() bool {
	return l.State == StreamStateFinal
}

// OutcomeStream is a pull-based sequence of parsed stream lines.
//
// Lines may span multiple read chunks, so the stream buffers bytes until a
// newline boundary; a final unterminated line at stream close is still
// delivered. Close aborts the stream and is safe to call at any point.
type OutcomeStream struct {
	body   io.ReadCloser
	cancel context.CancelFunc
	buf    []byte
	done   bool
}

// OpenStream opens the persistent line-delimited response for a submitted
// batch. The caller must Close the stream.
func (a *AnalysisService) OpenStream(ctx context.Context, batchID string) (*OutcomeStream, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, a.baseURL+"/stream/"+batchID, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if err := a.authorize(streamCtx, req); err != nil {
		cancel()
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: stream open failed: %v", shared.ErrAnalysisEngine, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: stream status %d", shared.ErrAnalysisEngine, resp.StatusCode)
	}

	return &OutcomeStream{body: resp.Body, cancel: cancel}, nil
}

// Next returns the next parsed line, or [io.EOF] when the stream is
// exhausted. Blank lines are skipped; malformed lines fail the stream.
func (s *OutcomeStream) Next() (*StreamLine, error) {
	for {
		if i := bytes.IndexByte(s.buf, '\n'); i >= 0 {
			line := bytes.TrimSpace(s.buf[:i])
			s.buf = s.buf[i+1:]
			if len(line) == 0 {
				continue
			}
			return parseStreamLine(line)
		}

		if s.done {
			// Deliver the trailing unterminated line, then report EOF.
			line := bytes.TrimSpace(s.buf)
			s.buf = nil
			if len(line) > 0 {
				return parseStreamLine(line)
			}
			return nil, io.EOF
		}

		chunk := make([]byte, 4096)
		n, err := s.body.Read(chunk)
		if n > 0 {
			s.buf = append(s.buf, chunk[:n]...)
		}
		if err == io.EOF {
			s.done = true
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: stream read failed: %v", shared.ErrAnalysisEngine, err)
		}
	}
}

// Close aborts the stream. Lines already returned stand; anything still in
// flight on the engine side is abandoned.
func (s *OutcomeStream) Close() error {
	s.cancel()
	return s.body.Close()
}

func parseStreamLine(line []byte) (*StreamLine, error) {
	var parsed StreamLine
	if err := json.Unmarshal(line, &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed stream line: %v", shared.ErrAnalysisEngine, err)
	}
	return &parsed, nil
}
