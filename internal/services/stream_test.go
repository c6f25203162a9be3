package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// chunkReader delivers its payload in fixed-size pieces so that lines span
// multiple reads, the way a network body arrives.
type chunkReader struct {
	data  []byte
	size  int
	pos   int
	close func()
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if c.pos >= len(c.data) {
		return 0, io.EOF
	}
	end := c.pos + c.size
	if end > len(c.data) {
		end = len(c.data)
	}
	n := copy(p, c.data[c.pos:end])
	c.pos += n
	return n, nil
}

func (c *chunkReader) Close() error {
	if c.close != nil {
		c.close()
	}
	return nil
}

func newTestStream(payload string, chunkSize int) *OutcomeStream {
	return &OutcomeStream{
		body:   &chunkReader{data: []byte(payload), size: chunkSize},
		cancel: func() {},
	}
}

func collectLines(t *testing.T, stream *OutcomeStream) []StreamLine {
	t.Helper()

	var lines []StreamLine
	for {
		line, err := stream.Next()
		if err == io.EOF {
			return lines
		}
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		lines = append(lines, *line)
	}
}

func TestOutcomeStream(t *testing.T) {
	payload := `{"index": 0, "state": "partial", "outcome": {"primary": {"tempo": 118.0}}}
{"index": 0, "state": "final", "outcome": {"primary": {"tempo": 120.0, "tempo_confidence": 0.9}}}
{"index": 1, "state": "final", "outcome": {"error": "no audio"}}`

	t.Run("Parses Lines Spanning Read Chunks", func(t *testing.T) {
		// Chunk size 7 guarantees every line arrives in several pieces.
		stream := newTestStream(payload+"\n", 7)
		defer stream.Close()

		lines := collectLines(t, stream)

		if len(lines) != 3 {
			t.Fatalf("expected 3 lines, got %d", len(lines))
		}
		if lines[0].Final() {
			t.Error("first line should be partial")
		}
		if !lines[1].Final() || lines[1].Index != 0 {
			t.Errorf("second line should be final for index 0, got %+v", lines[1])
		}
		if *lines[1].Outcome.Primary.Tempo != 120.0 {
			t.Errorf("final line should supersede the partial, got %v", *lines[1].Outcome.Primary.Tempo)
		}
		if lines[2].Outcome.Error != "no audio" {
			t.Errorf("expected per-track error, got %q", lines[2].Outcome.Error)
		}
	})

	t.Run("Delivers Final Unterminated Line", func(t *testing.T) {
		// No trailing newline on the last line.
		stream := newTestStream(payload, 16)
		defer stream.Close()

		lines := collectLines(t, stream)
		if len(lines) != 3 {
			t.Fatalf("expected 3 lines including the unterminated one, got %d", len(lines))
		}
		if lines[2].Index != 1 {
			t.Errorf("expected last line index 1, got %d", lines[2].Index)
		}
	})

	t.Run("Skips Blank Lines", func(t *testing.T) {
		stream := newTestStream("\n\n"+`{"index": 0, "state": "final", "outcome": {}}`+"\n\n", 8)
		defer stream.Close()

		lines := collectLines(t, stream)
		if len(lines) != 1 {
			t.Fatalf("expected 1 line, got %d", len(lines))
		}
	})

	t.Run("Malformed Line Fails The Stream", func(t *testing.T) {
		stream := newTestStream("not json\n", 64)
		defer stream.Close()

		if _, err := stream.Next(); err == nil || errors.Is(err, io.EOF) {
			t.Errorf("expected parse error, got %v", err)
		}
	})

	t.Run("EOF After Exhaustion Is Stable", func(t *testing.T) {
		stream := newTestStream(`{"index": 0, "state": "final", "outcome": {}}`, 64)
		defer stream.Close()

		if _, err := stream.Next(); err != nil {
			t.Fatalf("expected first line, got %v", err)
		}
		for range 3 {
			if _, err := stream.Next(); err != io.EOF {
				t.Fatalf("expected EOF, got %v", err)
			}
		}
	})
}

func TestOpenStream(t *testing.T) {
	t.Run("Reads Lines Over HTTP", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/stream/batch-7" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			flusher := w.(http.Flusher)
			w.Write([]byte(`{"index": 0, "state": "final", "outcome": {"primary": {"tempo": 99.0}}}` + "\n"))
			flusher.Flush()
			w.Write([]byte(`{"index": 1, "state": "final", "outcome": {}}` + "\n"))
		}))
		defer server.Close()

		svc := NewAnalysisService(engineConfig(server.URL), nil, server.Client())

		stream, err := svc.OpenStream(context.Background(), "batch-7")
		if err != nil {
			t.Fatalf("expected stream to open, got %v", err)
		}
		defer stream.Close()

		lines := collectLines(t, stream)
		if len(lines) != 2 {
			t.Fatalf("expected 2 lines, got %d", len(lines))
		}
	})

	t.Run("Close Aborts A Blocked Stream", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.(http.Flusher).Flush()
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		svc := NewAnalysisService(engineConfig(server.URL), nil, server.Client())

		stream, err := svc.OpenStream(context.Background(), "blocked")
		if err != nil {
			t.Fatalf("expected stream to open, got %v", err)
		}

		done := make(chan error, 1)
		go func() {
			_, err := stream.Next()
			done <- err
		}()

		time.Sleep(20 * time.Millisecond)
		stream.Close()

		select {
		case err := <-done:
			if err == nil {
				t.Error("expected aborted stream to surface an error")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("stream did not unblock after Close")
		}
	})

	t.Run("Non-2xx Status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "", http.StatusNotFound)
		}))
		defer server.Close()

		svc := NewAnalysisService(engineConfig(server.URL), nil, server.Client())
		if _, err := svc.OpenStream(context.Background(), "missing"); err == nil {
			t.Error("expected error for missing batch")
		}
	})
}
