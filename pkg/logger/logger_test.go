package logger_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	lcontext "github.com/lanecast/lanecast/pkg/context"
	"github.com/lanecast/lanecast/pkg/logger"
)

func TestCreateLogger(t *testing.T) {
	log := logger.CreateLogger("", "info")
	if log == nil {
		t.Fatal("expected logger to be created")
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"debug", true, true, true},
		{"info", false, true, true},
		{"warn", false, false, true},
		{"error", false, false, false},
		{"bogus", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := logger.CreateLoggerWithOutput(tt.level, &buf)

			log.Debug("debug-line")
			log.Info("info-line")
			log.Warn("warn-line")
			log.Error("error-line")

			output := buf.String()
			if strings.Contains(output, "debug-line") != tt.wantDebug {
				t.Errorf("debug visibility mismatch: %q", output)
			}
			if strings.Contains(output, "info-line") != tt.wantInfo {
				t.Errorf("info visibility mismatch: %q", output)
			}
			if strings.Contains(output, "warn-line") != tt.wantWarn {
				t.Errorf("warn visibility mismatch: %q", output)
			}
			if !strings.Contains(output, "error-line") {
				t.Errorf("expected error line in %q", output)
			}
		})
	}
}

func TestLogger_ComponentAndRun(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("info", &buf)

	log.WithComponent("linker").WithRun("run_42").Info("linked items")

	output := buf.String()
	if !strings.Contains(output, "[linker]") {
		t.Errorf("expected component prefix in %q", output)
	}
	if !strings.Contains(output, "(run_42)") {
		t.Errorf("expected run prefix in %q", output)
	}
}

func TestLogger_FieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("info", &buf)

	log.Info("batch done",
		logger.WithField("zeta", 1),
		logger.WithField("alpha", "x"),
		logger.WithError(errors.New("boom")))

	output := buf.String()
	if !strings.Contains(output, "{alpha=x, error=boom, zeta=1}") {
		t.Errorf("expected sorted fields, got %q", output)
	}
}

func TestLogger_Success(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("info", &buf)

	log.Success("simulation finished")

	output := buf.String()
	if !strings.Contains(output, "DONE: simulation finished") {
		t.Errorf("expected success marker, got %q", output)
	}
	if strings.Contains(output, "success=") {
		t.Errorf("success marker leaked into fields: %q", output)
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	base := logger.CreateLoggerWithOutput("info", &buf)

	ctx := lcontext.WithOperation(lcontext.WithRunID(context.Background(), "run_ctx"), "simulate")
	logger.WithContext(ctx, base).Info("progress")

	output := buf.String()
	if !strings.Contains(output, "run_ctx") {
		t.Errorf("expected run ID from context, got %q", output)
	}
	if !strings.Contains(output, "operation=simulate") {
		t.Errorf("expected operation field, got %q", output)
	}
}

func TestNopLogger(t *testing.T) {
	log := logger.NewNopLogger()
	log.Error("discarded")
	log.WithComponent("x").Warn("discarded")
}
