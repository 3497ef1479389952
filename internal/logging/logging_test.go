package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"trackdrop/internal/config"

	"github.com/sirupsen/logrus"
)

func TestNewLoggerLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := newLogger(&config.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	defer closer.Close()

	if logger.GetLevel() != logrus.WarnLevel {
		t.Errorf("level = %s", logger.GetLevel())
	}

	logger.Info("hidden")
	logger.WithField("album_id", "a1").Warn("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["msg"] != "shown" || entry["album_id"] != "a1" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewLoggerInvalidLevel(t *testing.T) {
	if _, _, err := newLogger(&config.LoggingConfig{Level: "loud"}, &bytes.Buffer{}); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "trackdrop.log")
	var console bytes.Buffer

	logger, closer, err := newLogger(&config.LoggingConfig{
		Level:     "info",
		Format:    "text",
		File:      path,
		MaxSizeMB: 1,
	}, &console)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}

	logger.Info("written twice")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "written twice") {
		t.Errorf("log file = %q", data)
	}
	if !strings.Contains(console.String(), "written twice") {
		t.Errorf("console = %q", console.String())
	}
}
