package logutil

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelTrace)

	logger.Log(t.Context(), LevelTrace, "instruction", "op", "Add")
	out := buf.String()
	if !strings.Contains(out, "level=TRACE") {
		t.Errorf("erwartet level=TRACE, bekommen %q", out)
	}
	if !strings.Contains(out, "source=logutil_test.go:") {
		t.Errorf("erwartet kurze Quellangabe, bekommen %q", out)
	}
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	logger.Log(t.Context(), LevelTrace, "hidden")
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("erwartet keine Ausgabe, bekommen %q", buf.String())
	}

	logger.Info("visible")
	if !strings.Contains(buf.String(), "msg=visible") {
		t.Errorf("erwartet msg=visible, bekommen %q", buf.String())
	}
}
