package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLogger_InvalidLevel(t *testing.T) {
	if _, err := NewLogger(LoggerConfig{Level: "loud"}); err == nil {
		t.Error("Expected error for invalid level")
	}
}

func TestNewLogger_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	log, err := NewLogger(LoggerConfig{Level: "debug", FilePath: path, MaxSize: 1})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	WithFileOperation(log, "in.png", "load").Info("Image loaded")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Log file not written: %v", err)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q: %v", data, err)
	}
	if entry["message"] != "Image loaded" || entry["file"] != "in.png" || entry["operation"] != "load" {
		t.Errorf("Unexpected entry %v", entry)
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("Expected timestamp field")
	}
}

func TestFuncHook(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.DebugLevel)

	var got []string
	log.AddHook(&FuncHook{
		MinLevel: logrus.InfoLevel,
		Fn: func(level, message string, fields logrus.Fields) {
			got = append(got, level+":"+message)
		},
	})

	log.Debug("hidden")
	WithResult(log, "r1").Warn("shown")

	if len(got) != 1 || got[0] != "warning:shown" {
		t.Errorf("Expected only the warning to be forwarded, got %v", got)
	}
}

func TestFuncHook_SkipsMarkedEntriesAndFlattensErrors(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	var got []logrus.Fields
	log.AddHook(&FuncHook{
		MinLevel: logrus.WarnLevel,
		Fn: func(level, message string, fields logrus.Fields) {
			got = append(got, fields)
		},
	})

	log.WithField(SkipHookField, true).Error("not forwarded")
	WithFile(log, "a.png").WithError(os.ErrNotExist).Error("forwarded")

	if len(got) != 1 {
		t.Fatalf("Expected one forwarded entry, got %d", len(got))
	}
	if got[0]["file"] != "a.png" {
		t.Errorf("Expected file field, got %v", got[0])
	}
	if got[0][logrus.ErrorKey] != os.ErrNotExist.Error() {
		t.Errorf("Expected error flattened to string, got %#v", got[0][logrus.ErrorKey])
	}
}

func TestNewLogger_NoFileKeepsStdoutClean(t *testing.T) {
	log, err := NewLogger(LoggerConfig{Level: "info"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if log.Out != os.Stderr {
		t.Error("Expected logger without a file to write to stderr")
	}
}
