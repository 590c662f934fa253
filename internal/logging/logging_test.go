package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/machine-hub/server/internal/logging"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		want      slog.Level
	}{
		{0, slog.LevelWarn},
		{1, slog.LevelInfo},
		{2, slog.LevelDebug},
		{5, slog.LevelDebug},
	}
	for _, tt := range tests {
		if got := logging.Level(tt.verbosity); got != tt.want {
			t.Errorf("Level(%d) = %v, want %v", tt.verbosity, got, tt.want)
		}
	}
}

func TestNewHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(logging.NewHandler(&buf, logging.Config{Verbosity: 1, JSON: true}))

	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled at verbosity 1")
	}
	logger.Info("Observer connected", "channel", "dashboard")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %q", buf.String())
	}
	if rec["msg"] != "Observer connected" || rec["channel"] != "dashboard" {
		t.Errorf("record = %v", rec)
	}
}

func TestSetupWritesFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "machinehub.log")
	closer := logging.Setup(logging.Config{Verbosity: 1, File: path, MaxSizeMB: 1})
	slog.Info("hello from test")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !bytes.Contains(data, []byte("hello from test")) {
		t.Errorf("log file = %q", data)
	}
}

func TestSetupQuietStillWritesFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "dashboard-tui.log")
	closer := logging.Setup(logging.Config{Verbosity: 2, Quiet: true, File: path, MaxSizeMB: 1})
	slog.Debug("reconnecting")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !bytes.Contains(data, []byte("reconnecting")) {
		t.Errorf("log file = %q", data)
	}
}
