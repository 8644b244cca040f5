package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/python-kurs/exercise-4-l3enR/internal/config"
)

func TestNewWithWriter_ProdIsJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{AppEnv: "prod", LogLevel: slog.LevelInfo}

	logger := NewWithWriter(&buf, cfg, "1.2.3", "climate-diagram")
	ForStation(logger, "Zugspitze", "run-1").Info("diagram rendered", "months", 12)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("log line is not JSON: %v\n%s", err, buf.String())
	}
	want := map[string]any{
		"msg":     "diagram rendered",
		"app":     "climate-diagram",
		"version": "1.2.3",
		"env":     "prod",
		"station": "Zugspitze",
		"run_id":  "run-1",
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s = %v, want %v", k, rec[k], v)
		}
	}
	if rec["months"] != float64(12) {
		t.Errorf("months = %v, want 12", rec["months"])
	}
}

func TestNewWithWriter_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{AppEnv: "prod", LogLevel: slog.LevelWarn}

	logger := NewWithWriter(&buf, cfg, "1.0.0", "climate-diagram")
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn record missing: %s", out)
	}
}

func TestNewWithWriter_DevIsText(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{AppEnv: "dev", LogLevel: slog.LevelDebug}

	NewWithWriter(&buf, cfg, "dev", "climate-diagram").Debug("loading station")

	out := buf.String()
	if !strings.Contains(out, "loading station") {
		t.Errorf("dev output missing message: %q", out)
	}
	if json.Valid(bytes.TrimSpace(buf.Bytes())) {
		t.Errorf("dev output should be console text, got JSON: %q", out)
	}
}
