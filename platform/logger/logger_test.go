package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestWithContextAddsCorrelationIDs(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("production", &buf)

	ctx := ContextWith(context.Background(), RunIDKey, "run-1")
	ctx = ContextWith(ctx, BranchIDKey, "branch-9")
	log.WithContext(ctx).Info("dispatch finished")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if record["run_id"] != "run-1" {
		t.Fatalf("expected run_id run-1, got %v", record["run_id"])
	}
	if record["branch_id"] != "branch-9" {
		t.Fatalf("expected branch_id branch-9, got %v", record["branch_id"])
	}
	if _, ok := record["website_id"]; ok {
		t.Fatalf("did not expect website_id without a context value")
	}
}

func TestWithContextNilContextReturnsSameLogger(t *testing.T) {
	log := Discard()
	if got := log.WithContext(nil); got != log {
		t.Fatalf("expected same logger for nil context")
	}
}
