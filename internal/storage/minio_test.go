package storage

import (
	"io"
	"testing"
	"time"

	"trackdrop/internal/config"

	"github.com/sirupsen/logrus"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := config.DefaultConfig().Storage
	cfg.PublicBaseURL = "https://cdn.example.com/"

	s, err := New(&cfg, logger)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}

func TestCoverKey(t *testing.T) {
	now := time.UnixMilli(1718000000123)

	testCases := []struct {
		filename string
		expected string
	}{
		{"front.JPG", "1718000000123.jpg"},
		{"cover.png", "1718000000123.png"},
		{"noext", "1718000000123.jpg"},
	}

	for _, tc := range testCases {
		if got := CoverKey(now, tc.filename); got != tc.expected {
			t.Errorf("CoverKey(%q): expected %s, got %s", tc.filename, tc.expected, got)
		}
	}
}

func TestTrackKey(t *testing.T) {
	now := time.UnixMilli(1718000000123)

	testCases := []struct {
		title    string
		filename string
		expected string
	}{
		{"Harbour Lights", "01.mp3", "album-1/1718000000123_Harbour_Lights.mp3"},
		{"Été / Hiver", "x.FLAC", "album-1/1718000000123__t____Hiver.flac"},
		{"夜", "night.wav", "album-1/1718000000123__.wav"},
		{"Plain", "", "album-1/1718000000123_Plain.mp3"},
	}

	for _, tc := range testCases {
		if got := TrackKey("album-1", now, tc.title, tc.filename); got != tc.expected {
			t.Errorf("TrackKey(%q, %q): expected %s, got %s", tc.title, tc.filename, tc.expected, got)
		}
	}
}

func TestPublicURLRoundTrip(t *testing.T) {
	s := newTestStore(t)

	key := "album-1/1718000000123_Harbour Lights.mp3"
	u := s.PublicURL(s.MusicBucket(), key)

	expected := "https://cdn.example.com/music-files/album-1/1718000000123_Harbour%20Lights.mp3"
	if u != expected {
		t.Errorf("expected %s, got %s", expected, u)
	}

	got, ok := s.KeyFromURL(s.MusicBucket(), u)
	if !ok || got != key {
		t.Errorf("expected key %q, got %q (ok=%v)", key, got, ok)
	}

	if _, ok := s.KeyFromURL(s.CoversBucket(), u); ok {
		t.Error("expected URL from another bucket to be rejected")
	}
	if _, ok := s.KeyFromURL(s.MusicBucket(), "https://elsewhere.example.com/music-files/a.mp3"); ok {
		t.Error("expected foreign URL to be rejected")
	}
}
