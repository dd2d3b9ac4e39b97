package store

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestEventRepository_AppendRecent(t *testing.T) {
	repo := newTestStore(t).Events()

	statuses := []string{"requesting camera", "camera active", "hand detected", "searching"}
	for _, status := range statuses {
		e := &Event{SessionID: "cam-1", Status: status, Message: status}
		if err := repo.Append(e); err != nil {
			t.Fatalf("failed to append: %v", err)
		}
		if e.ID == 0 {
			t.Error("ID should be set after append")
		}
		if e.CreatedAt.IsZero() {
			t.Error("CreatedAt should be set after append")
		}
	}

	events, err := repo.Recent(2)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Status != "searching" || events[1].Status != "hand detected" {
		t.Errorf("expected newest first, got %q, %q", events[0].Status, events[1].Status)
	}
}

func TestEventRepository_KeepsTimestamp(t *testing.T) {
	repo := newTestStore(t).Events()

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := repo.Append(&Event{Status: "camera error", Message: "Camera Error: busy", CreatedAt: at}); err != nil {
		t.Fatalf("failed to append: %v", err)
	}

	events, err := repo.Recent(1)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if !events[0].CreatedAt.Equal(at) {
		t.Errorf("CreatedAt = %v, want %v", events[0].CreatedAt, at)
	}
	if events[0].Message != "Camera Error: busy" {
		t.Errorf("Message = %q", events[0].Message)
	}
}

func TestEventRepository_BySession(t *testing.T) {
	repo := newTestStore(t).Events()

	for _, e := range []*Event{
		{SessionID: "a", Status: "camera active"},
		{SessionID: "b", Status: "camera active"},
		{SessionID: "a", Status: "hand detected"},
	} {
		if err := repo.Append(e); err != nil {
			t.Fatalf("failed to append: %v", err)
		}
	}

	events, err := repo.BySession("a")
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Status != "camera active" || events[1].Status != "hand detected" {
		t.Errorf("expected insertion order, got %q, %q", events[0].Status, events[1].Status)
	}

	none, err := repo.BySession("missing")
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no events, got %d", len(none))
	}
}

func TestEventRepository_Prune(t *testing.T) {
	repo := newTestStore(t).Events()

	for i := 0; i < 5; i++ {
		if err := repo.Append(&Event{Status: "searching"}); err != nil {
			t.Fatalf("failed to append: %v", err)
		}
	}

	removed, err := repo.Prune(2)
	if err != nil {
		t.Fatalf("failed to prune: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}

	events, err := repo.Recent(10)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events left, got %d", len(events))
	}
}

func TestEventRepository_ConcurrentAppend(t *testing.T) {
	s := newTestStore(t)
	repo := s.Events()

	if n := s.DB().Stats().MaxOpenConnections; n != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", n)
	}

	const writers, perWriter = 4, 25
	errs := make(chan error, writers*perWriter)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				errs <- repo.Append(&Event{SessionID: fmt.Sprintf("cam-%d", w), Status: "searching"})
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent append failed: %v", err)
		}
	}

	events, err := repo.Recent(writers * perWriter * 2)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(events) != writers*perWriter {
		t.Errorf("expected %d events, got %d", writers*perWriter, len(events))
	}
}
