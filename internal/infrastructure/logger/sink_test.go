package logger

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/quantfarm/futures-agent/internal/domain/event"
)

func TestEventSink_Emit(t *testing.T) {
	var buf bytes.Buffer
	sink := NewEventSink(New(LevelInfo, &buf))

	sink.Emit(event.Event{
		Time:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		RunID: "run-1",
		Kind:  event.KindPlaced,
		Detail: map[string]interface{}{
			"exchange_order_id": "EX-1",
		},
	})

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry.Level != "INFO" {
		t.Errorf("level = %s, want INFO", entry.Level)
	}
	if entry.Fields["run_id"] != "run-1" {
		t.Errorf("run_id = %v, want run-1", entry.Fields["run_id"])
	}
	if entry.Fields["kind"] != "PLACED" {
		t.Errorf("kind = %v, want PLACED", entry.Fields["kind"])
	}
}

func TestEventSink_Emit_WarnsOnRejection(t *testing.T) {
	var buf bytes.Buffer
	sink := NewEventSink(New(LevelInfo, &buf))

	sink.Emit(event.Event{RunID: "run-1", Kind: event.KindRejected})

	var entry Entry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry.Level != "WARN" {
		t.Errorf("level = %s, want WARN", entry.Level)
	}
}
