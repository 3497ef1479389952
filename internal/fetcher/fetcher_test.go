package fetcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"trackdrop/internal/config"

	"github.com/sirupsen/logrus"
)

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()

	cfg := config.DefaultConfig().Fetch
	cfg.TimeoutSeconds = 5
	cfg.RequestsPerSecond = 1000
	cfg.Burst = 100
	cfg.MaxCoverMB = 1

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := New(&cfg, logger)
	t.Cleanup(f.Close)
	return f
}

func TestFetchAudio(t *testing.T) {
	payload := []byte{0xFF, 0xFB, 0x90, 0x00, 1, 2, 3}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	got, err := f.FetchAudio(context.Background(), srv.URL+"/track.mp3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("expected %X, got %X", payload, got)
	}
}

func TestFetchRejectsUnsupportedScheme(t *testing.T) {
	f := newTestFetcher(t)

	testCases := []string{
		"ftp://example.com/track.mp3",
		"file:///etc/passwd",
		"example.com/track.mp3",
		"http://",
	}

	for _, rawURL := range testCases {
		_, err := f.FetchAudio(context.Background(), rawURL)
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			t.Errorf("%s: expected *FetchError, got %v", rawURL, err)
			continue
		}
		if fetchErr.Kind != KindInvalidURL {
			t.Errorf("%s: expected kind %s, got %s", rawURL, KindInvalidURL, fetchErr.Kind)
		}
	}
}

func TestFetchCoverTooLarge(t *testing.T) {
	big := make([]byte, bytesPerMB+1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(big)
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	_, err := f.FetchCover(context.Background(), srv.URL+"/cover.jpg")
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, ok := f.covers.Get(srv.URL + "/cover.jpg"); ok {
		t.Error("expected oversized cover not to be cached")
	}
}

func TestFetchEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	_, err := f.FetchAudio(context.Background(), srv.URL)
	if !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
}

func TestFetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := newTestFetcher(t)
	_, err := f.FetchAudio(context.Background(), srv.URL+"/missing.mp3")

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fetchErr.Kind != KindRequest {
		t.Errorf("expected kind %s, got %s", KindRequest, fetchErr.Kind)
	}
}

func TestFetchCoverIsCached(t *testing.T) {
	var hits int32
	art := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write(art)
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	for i := 0; i < 3; i++ {
		got, err := f.FetchCover(context.Background(), srv.URL+"/cover.jpg")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !bytes.Equal(got, art) {
			t.Errorf("expected %X, got %X", art, got)
		}
	}

	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("expected 1 upstream request, got %d", n)
	}
}

func TestFetchCancelledContext(t *testing.T) {
	f := newTestFetcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.FetchAudio(ctx, "http://127.0.0.1:1/track.mp3")
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestFetchStopsReadingOversizedStream(t *testing.T) {
	var hits int64
	chunk := make([]byte, 64<<10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		flusher := w.(http.Flusher)
		for i := 0; i < 1024; i++ {
			if _, err := w.Write(chunk); err != nil {
				return
			}
			flusher.Flush()
		}
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	_, err := f.FetchCover(context.Background(), srv.URL+"/huge.jpg")

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || fetchErr.Kind != KindTooLarge {
		t.Fatalf("expected %s FetchError, got %v", KindTooLarge, err)
	}
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
	if n := atomic.LoadInt64(&hits); n != 1 {
		t.Errorf("expected oversized body not to be retried, got %d requests", n)
	}
}

func TestFetchRejectsDeclaredContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "2097152")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte{0xFF, 0xD8})
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	_, err := f.FetchCover(context.Background(), srv.URL+"/cover.jpg")
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestFetchAudioAboveClientBodyCap(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 26<<20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	f := newTestFetcher(t)
	got, err := f.FetchAudio(context.Background(), srv.URL+"/long.wav")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != len(payload) {
		t.Errorf("expected %d bytes, got %d", len(payload), len(got))
	}
}
