package persistence

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cryptoflow/internal/model"
)

func TestFileSinkAppend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "opportunities.ndjson")

	sink := NewFileSink(path)
	defer sink.Close()

	opp := model.Opportunity{
		Kind:      model.KindCross,
		ID:        "test-id-1",
		Pair:      model.Pair{Base: "BTC", Quote: "USDT"},
		NetBps:    42,
		TDetected: time.Now(),
	}
	if err := sink.Append(context.Background(), opp); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := sink.Append(context.Background(), opp); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	sink.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open ndjson file: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var lines int
	for scanner.Scan() {
		lines++
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		if rec.ID != "test-id-1" {
			t.Errorf("rec.ID = %q, want test-id-1", rec.ID)
		}
		if rec.Kind != "cross" {
			t.Errorf("rec.Kind = %q, want cross", rec.Kind)
		}
	}
	if lines != 2 {
		t.Errorf("got %d lines, want 2", lines)
	}
}
