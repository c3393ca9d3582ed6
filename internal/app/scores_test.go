package app_test

import (
	"context"
	"testing"
	"time"

	"contest-variant-service/internal/app"
	"contest-variant-service/internal/domain"
	"contest-variant-service/internal/statement"
)

func TestSubmitAnswersPersistsScore(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	out, err := env.service.Register(ctx, "C1", "token-1", identity)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	res, err := statement.Transform(sampleStatement(), out.Student.Variant)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	answers := make(map[int]domain.Answer, len(res.Solution))
	for id, a := range res.Solution {
		answers[id] = a
	}

	result, err := env.service.SubmitAnswers(ctx, out.Student.ID, answers)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	wantTotal := 0
	for _, p := range res.Schema {
		wantTotal += p.Points.Correct
	}
	if result.Total == nil || *result.Total != wantTotal {
		t.Fatalf("expected perfect total %d, got %v", wantTotal, result.Total)
	}
	if len(result.PerProblem) != len(res.Schema) {
		t.Fatalf("expected a breakdown per problem, got %v", result.PerProblem)
	}

	st, err := env.store.Student(ctx, out.Student.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if st.Score == nil || *st.Score != wantTotal {
		t.Fatalf("expected persisted score %d, got %v", wantTotal, st.Score)
	}
}

func TestRecomputeScoresCountsUpdates(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	identities := [][]domain.IdentityField{
		{{Name: "firstName", Value: "Ada"}},
		{{Name: "firstName", Value: "Grace"}},
		{{Name: "firstName", Value: "Emmy"}},
	}
	for _, id := range identities {
		if _, err := env.service.Register(ctx, "C1", "token-1", id); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	updated, err := env.service.RecomputeScores(ctx, "part-1", 2)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if updated != len(identities) {
		t.Fatalf("expected %d students recomputed, got %d", len(identities), updated)
	}

	students, _ := env.store.StudentsByParticipation(ctx, "part-1")
	for _, st := range students {
		if st.Score == nil {
			t.Fatalf("expected a cached score for student %s", st.ID)
		}
	}
}

func TestMonitorReceivesRegistrationEvents(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	events, cancel := env.service.SubscribeMonitor("part-1")
	defer cancel()

	out, err := env.service.Register(ctx, "C1", "token-1", identity)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Type != app.EventRegistered || ev.StudentID != out.Student.ID {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a registered event")
	}

	if _, err := env.service.Register(ctx, "C1", "token-1", identity); err != nil {
		t.Fatalf("duplicate register: %v", err)
	}
	select {
	case ev := <-events:
		if ev.Type != app.EventRestorePending || len(ev.ApprovalCode) != 3 {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a pending-restore event")
	}
}
