package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"leadflow_backend/internal/leadsync/domain"
	"leadflow_backend/internal/leadsync/repository"

	"github.com/google/uuid"
)

func TestParseSyncFrom(t *testing.T) {
	id := uuid.New()

	websiteID, formID, err := parseSyncFrom([]string{"-website", id.String(), "-form-id", "0"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if websiteID != id || formID != 0 {
		t.Fatalf("unexpected values %s %d", websiteID, formID)
	}

	if _, _, err := parseSyncFrom([]string{"-website", id.String()}); err == nil {
		t.Fatalf("expected missing form id to fail")
	}
	if _, _, err := parseSyncFrom([]string{"-form-id", "4"}); err == nil {
		t.Fatalf("expected missing website to fail")
	}
	if _, _, err := parseSyncFrom([]string{"-website", "nope", "-form-id", "4"}); err == nil {
		t.Fatalf("expected bad website id to fail")
	}
}

func TestHistoryOperationListsTouchedLeads(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	branch := store.AddBranch(domain.Branch{Name: "north", Enabled: true})
	site := store.AddWebsite(domain.Website{Name: "site"})
	_, _ = store.IngestBatch(ctx, site.ID, []domain.NewLead{
		{Phone: "9000000001", Product: "solar"},
		{Phone: "9000000002", Product: "solar"},
	}, 2)
	pending, _ := store.ListPendingLeads(ctx, "solar")

	opID := uuid.New()
	outcome := domain.Outcome{
		BranchID:    branch.ID,
		OperationID: opID,
		SyncedAt:    time.Now(),
		Accepted:    []uuid.UUID{pending[0].ID},
	}
	if _, err := store.ApplyOutcome(ctx, outcome); err != nil {
		t.Fatalf("apply outcome: %v", err)
	}

	var out bytes.Buffer
	if err := history(ctx, store, []string{"-kind", "operation", "-entity", opID.String()}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var rows []domain.Lead
	if err := json.Unmarshal(out.Bytes(), &rows); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(rows) != 1 || rows[0].Phone != "9000000001" {
		t.Fatalf("expected the one accepted lead, got %+v", rows)
	}
}

func TestHistoryRejectsUnknownKindAndMissingEntity(t *testing.T) {
	store := repository.NewMemory()
	var out bytes.Buffer

	if err := history(context.Background(), store, []string{"-kind", "bogus"}, &out); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if err := history(context.Background(), store, []string{"-kind", "operation"}, &out); err == nil {
		t.Fatalf("expected error without -entity")
	}
}
