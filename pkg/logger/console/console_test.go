package console

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestConsoleLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(ConsoleLoggerParams{Output: &buf})

	l.Debug("hidden")
	l.Warn("[Resolver] Could not resolve entity", "text", "xyz", "category", "SYMPTOM")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug output without debug flag: %q", out)
	}
	if !strings.Contains(out, "Could not resolve entity") || !strings.Contains(out, "xyz") {
		t.Fatalf("missing warn output: %q", out)
	}
}

func TestConsoleLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger(ConsoleLoggerParams{Output: &buf, JSON: true, Debug: true})

	l.Debug("[Neo4j][RunReadQuery] done", "records", 2)

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "[Neo4j][RunReadQuery] done" || entry["records"] != float64(2) {
		t.Fatalf("unexpected entry %v", entry)
	}
}
