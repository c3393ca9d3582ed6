package memory

import (
	"context"
	"sync"
	"testing"

	"contest-variant-service/internal/domain"
)

func TestCreateStudentIfAbsentIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewContestStore()

	const attempts = 32
	var wg sync.WaitGroup
	created := make(chan string, attempts)
	for i := 0; i < attempts; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			st := domain.Student{
				ID:              "candidate-" + string(rune('a'+i%26)) + string(rune('a'+i/26)),
				ParticipationID: "part-1",
				IdentityHash:    "ABC123",
			}
			_, ok, err := store.CreateStudentIfAbsent(ctx, st)
			if err != nil {
				t.Errorf("create: %v", err)
				return
			}
			if ok {
				created <- st.ID
			}
		}()
	}
	wg.Wait()
	close(created)

	var winners []string
	for id := range created {
		winners = append(winners, id)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one creation to win, got %d", len(winners))
	}

	// Every loser observes the winner's row.
	existing, createdNow, err := store.CreateStudentIfAbsent(ctx, domain.Student{
		ID: "late", ParticipationID: "part-1", IdentityHash: "ABC123",
	})
	if err != nil || createdNow {
		t.Fatalf("expected existing row, created=%v err=%v", createdNow, err)
	}
	if existing.ID != winners[0] {
		t.Fatalf("expected winner %s, got %s", winners[0], existing.ID)
	}
}

func TestApproveRestoreRebindsAndRevokesOthers(t *testing.T) {
	ctx := context.Background()
	store := NewContestStore()

	st := domain.Student{ID: "s1", ParticipationID: "part-1", IdentityHash: "H", SessionID: "old-session"}
	if _, _, err := store.CreateStudentIfAbsent(ctx, st); err != nil {
		t.Fatalf("seed student: %v", err)
	}
	reqs := []domain.RestoreRequest{
		{ID: "r1", StudentID: "s1", ParticipationID: "part-1", SessionID: "new-1", Status: domain.RestorePending},
		{ID: "r2", StudentID: "s1", ParticipationID: "part-1", SessionID: "new-2", Status: domain.RestorePending},
	}
	for _, req := range reqs {
		if err := store.CreateRestore(ctx, req); err != nil {
			t.Fatalf("seed restore: %v", err)
		}
	}

	approved, prevSession, err := store.ApproveRestore(ctx, "r2")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != domain.RestoreApproved || prevSession != "old-session" {
		t.Fatalf("unexpected approval %+v prev=%s", approved, prevSession)
	}

	got, err := store.Student(ctx, "s1")
	if err != nil {
		t.Fatalf("student: %v", err)
	}
	if got.SessionID != "new-2" {
		t.Fatalf("expected rebound session new-2, got %s", got.SessionID)
	}

	pending, err := store.PendingByParticipation(ctx, "part-1")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected every other request revoked, still pending: %+v", pending)
	}

	// A second approval of the same request is expired, not replayed.
	if _, _, err := store.ApproveRestore(ctx, "r2"); err != domain.ErrRestoreExpired {
		t.Fatalf("expected expired, got %v", err)
	}
	if _, _, err := store.ApproveRestore(ctx, "r1"); err != domain.ErrRestoreExpired {
		t.Fatalf("expected revoked request to be expired, got %v", err)
	}
}

func TestRevokePending(t *testing.T) {
	ctx := context.Background()
	store := NewContestStore()
	_ = store.CreateRestore(ctx, domain.RestoreRequest{ID: "r1", StudentID: "s1", ParticipationID: "p", Status: domain.RestorePending})

	if err := store.RevokePending(ctx, "s1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	pending, _ := store.PendingByParticipation(ctx, "p")
	if len(pending) != 0 {
		t.Fatalf("expected no pending requests, got %+v", pending)
	}
}
