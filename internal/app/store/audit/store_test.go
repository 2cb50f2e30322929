package audit_test

import (
	"testing"
	"time"

	"github.com/dalemusser/assistanthub/internal/app/store/audit"
	"github.com/dalemusser/assistanthub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStore_Log(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	assistantID := primitive.NewObjectID()
	event := audit.Event{
		Category:    audit.CategoryAssistant,
		EventType:   audit.EventAssistantPublished,
		AssistantID: &assistantID,
		Actor:       "owner@example.com",
		RunID:       "run-1",
		Success:     true,
	}

	if err := store.Log(ctx, event); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := store.GetByAssistant(ctx, assistantID, 10)
	if err != nil {
		t.Fatalf("GetByAssistant failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].ID.IsZero() {
		t.Error("expected ID to be auto-generated")
	}
	if events[0].Actor != "owner@example.com" {
		t.Errorf("Actor: got %q, want %q", events[0].Actor, "owner@example.com")
	}
}

func TestStore_Log_AutoSetsTimestamp(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	before := time.Now().Add(-time.Second)
	if err := store.Log(ctx, audit.Event{Category: audit.CategoryAdmin, EventType: audit.EventOrgCreated, Success: true}); err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	after := time.Now().Add(time.Second)

	events, err := store.Query(ctx, audit.QueryFilter{Limit: 10})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ts := events[0].Timestamp
	if ts.Before(before) || ts.After(after) {
		t.Errorf("timestamp %v not within [%v, %v]", ts, before, after)
	}
}

func TestStore_QueryAndCount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	orgID := primitive.NewObjectID()
	otherOrg := primitive.NewObjectID()
	for i, ev := range []audit.Event{
		{OrganizationID: &orgID, Category: audit.CategoryAssistant, EventType: audit.EventAssistantCreated, Success: true},
		{OrganizationID: &orgID, Category: audit.CategoryAssistant, EventType: audit.EventAssistantPublishFailed, FailureReason: "grant_access"},
		{OrganizationID: &otherOrg, Category: audit.CategoryAssistant, EventType: audit.EventAssistantCreated, Success: true},
	} {
		ev.Timestamp = time.Now().UTC().Add(time.Duration(i) * time.Millisecond)
		if err := store.Log(ctx, ev); err != nil {
			t.Fatalf("Log %d failed: %v", i, err)
		}
	}

	events, err := store.Query(ctx, audit.QueryFilter{OrganizationID: &orgID})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].EventType != audit.EventAssistantPublishFailed {
		t.Errorf("expected newest first, got %q", events[0].EventType)
	}

	n, err := store.CountByFilter(ctx, audit.QueryFilter{EventType: audit.EventAssistantCreated})
	if err != nil {
		t.Fatalf("CountByFilter failed: %v", err)
	}
	if n != 2 {
		t.Errorf("CountByFilter: got %d, want 2", n)
	}
}
