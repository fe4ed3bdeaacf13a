package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/satriahrh/sandiwara/domain/entities"
	"github.com/satriahrh/sandiwara/domain/repositories"
)

func finishedRecord(sessionID string) *entities.SynthesisRecord {
	record := entities.NewSynthesisRecord(sessionID, "connect", "narrator", "hello")
	record.Finish(entities.SynthesisStatusFinished, 10, nil)
	return record
}

func TestSynthesisRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewSynthesisRepository()

	record := finishedRecord("session-1")
	if err := repo.Create(ctx, record); err != nil {
		t.Fatalf("Failed to create record: %v", err)
	}

	byID, err := repo.GetByID(ctx, record.ID)
	if err != nil {
		t.Fatalf("Failed to get record: %v", err)
	}
	if byID.SessionID != "session-1" {
		t.Errorf("Expected session-1, got %s", byID.SessionID)
	}

	bySession, err := repo.GetBySessionID(ctx, "session-1")
	if err != nil {
		t.Fatalf("Failed to get record by session: %v", err)
	}
	if bySession.ID != record.ID {
		t.Errorf("Expected ID %s, got %s", record.ID, bySession.ID)
	}

	// Returned records are copies
	byID.Speaker = "changed"
	again, _ := repo.GetByID(ctx, record.ID)
	if again.Speaker != "narrator" {
		t.Errorf("Expected stored speaker to be unchanged, got %s", again.Speaker)
	}

	if err := repo.Create(ctx, record); err == nil {
		t.Error("Expected duplicate create to fail")
	}
}

func TestSynthesisRepository_Errors(t *testing.T) {
	ctx := context.Background()
	repo := NewSynthesisRepository()

	if err := repo.Create(ctx, nil); err == nil {
		t.Error("Expected error for nil record")
	}
	unfinished := entities.NewSynthesisRecord("s", "c", "", "x")
	if err := repo.Create(ctx, unfinished); err == nil {
		t.Error("Expected error for record without status")
	}
	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, repositories.ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
	if _, err := repo.GetBySessionID(ctx, "missing"); !errors.Is(err, repositories.ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}

func TestSynthesisRepository_ListRecent(t *testing.T) {
	ctx := context.Background()
	repo := NewSynthesisRepository()

	for i := 0; i < 5; i++ {
		if err := repo.Create(ctx, finishedRecord(fmt.Sprintf("session-%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	records, err := repo.ListRecent(ctx, 3)
	if err != nil {
		t.Fatalf("ListRecent failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(records))
	}
	for i, want := range []string{"session-4", "session-3", "session-2"} {
		if records[i].SessionID != want {
			t.Errorf("Expected %s at %d, got %s", want, i, records[i].SessionID)
		}
	}

	all, _ := repo.ListRecent(ctx, 0)
	if len(all) != 5 {
		t.Errorf("Expected all 5 records, got %d", len(all))
	}
}
