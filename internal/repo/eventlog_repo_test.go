package repo

import (
	"context"
	"testing"

	"github.com/dentalops/recallbridge/internal/domain"
)

func TestAppendEventAndDedupeScan(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := AppendEvent(ctx, db, domain.EventProviderStatus, "run1", "prac1", "status delivered",
		map[string]any{"sid": "SM1"}, "status:SM1:delivered:")
	if err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	found, err := HasRecentDedupeKey(ctx, db, "status:SM1:delivered:", 0)
	if err != nil {
		t.Fatalf("HasRecentDedupeKey: %v", err)
	}
	if !found {
		t.Fatal("expected dedupe key to be found")
	}

	found, err = HasRecentDedupeKey(ctx, db, "status:SM2:delivered:", 0)
	if err != nil {
		t.Fatalf("HasRecentDedupeKey miss: %v", err)
	}
	if found {
		t.Fatal("unexpected hit for unseen dedupe key")
	}

	// Empty key never matches anything.
	if found, _ := HasRecentDedupeKey(ctx, db, "", 0); found {
		t.Fatal("empty dedupe key must not match")
	}
}

func TestHasRecentDedupeKeyWindowBound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := AppendEvent(ctx, db, domain.EventProviderClick, "run1", "prac1", "old", nil, "click:old"); err != nil {
		t.Fatalf("seed old: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := AppendEvent(ctx, db, domain.EventProviderClick, "run1", "prac1", "filler", nil, ""); err != nil {
			t.Fatalf("seed filler: %v", err)
		}
	}

	// A window of 3 no longer covers the first entry.
	found, err := HasRecentDedupeKey(ctx, db, "click:old", 3)
	if err != nil {
		t.Fatalf("HasRecentDedupeKey: %v", err)
	}
	if found {
		t.Fatal("entry outside the scan window must not match")
	}
}

func TestListRecentEvents(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, notes := range []string{"first", "second", "third"} {
		if err := AppendEvent(ctx, db, domain.EventQueuePass, "run1", "prac1", notes, nil, ""); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	got, err := ListRecentEvents(ctx, db, "prac1", 2)
	if err != nil {
		t.Fatalf("ListRecentEvents: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
}
