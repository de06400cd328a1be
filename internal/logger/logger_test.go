package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestLogger_JSONShape(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("INFO", &buf).Action("accept_ride").With("ride_id", "ride-1")

	log.Error("accept failed", errors.New("boom"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected a JSON line, got %q: %v", buf.String(), err)
	}

	want := map[string]any{
		"message": "accept failed",
		"action":  "accept_ride",
		"ride_id": "ride-1",
		"error":   "boom",
		"level":   "ERROR",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s: expected %v, got %v", k, v, entry[k])
		}
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("missing timestamp key")
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("warn", &buf)

	log.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("expected INFO to be filtered at WARN, got %q", buf.String())
	}

	log.Warn("kept")
	if buf.Len() == 0 {
		t.Error("expected WARN to be written")
	}
}

func TestLogger_ErrorLeavesCallerArgsUntouched(t *testing.T) {
	log := NewWithWriter("INFO", &bytes.Buffer{})

	backing := make([]any, 2, 4)
	backing[0], backing[1] = "ride_id", "ride-1"
	spare := backing[:4]
	spare[2] = "sentinel"

	log.Error("accept failed", errors.New("boom"), backing...)

	if spare[2] != "sentinel" || spare[3] != nil {
		t.Errorf("caller's backing array was written: %v", spare)
	}
}
