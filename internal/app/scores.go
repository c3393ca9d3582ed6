package app

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"contest-variant-service/internal/domain"
	"contest-variant-service/internal/scoring"
)

// SubmitResult reports the graded outcome of an answer submission.
// Total is nil when the score is undefined for this student.
type SubmitResult struct {
	Total      *int
	PerProblem map[int]int
}

// SubmitAnswers stores a student's answers and refreshes the cached
// score against the student's variant schema.
func (s *ContestService) SubmitAnswers(ctx context.Context, studentID string, answers map[int]domain.Answer) (SubmitResult, error) {
	st, err := s.students.Student(ctx, studentID)
	if err != nil {
		return SubmitResult{}, err
	}

	if err := s.students.SaveAnswers(ctx, studentID, answers); err != nil {
		return SubmitResult{}, fmt.Errorf("save answers: %w", err)
	}
	st.Answers = answers

	schema, solution, err := s.variants.Schema(ctx, st.ContestID, st.Variant)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("load schema for %s/%s: %w", st.ContestID, st.Variant, err)
	}

	total := scoring.Score(st, schema, solution)
	if err := s.students.SaveScore(ctx, studentID, total); err != nil {
		return SubmitResult{}, fmt.Errorf("save score: %w", err)
	}
	s.publish(st.ParticipationID, Event{Type: EventScore, StudentID: studentID, Score: total, At: s.now()})

	return SubmitResult{
		Total:      total,
		PerProblem: scoring.PerProblemPoints(st, schema, solution),
	}, nil
}

// RecomputeScores re-derives the cached score of every student in a
// participation. Scoring is pure, so the pass is idempotent and safe to
// re-run after the contest window closes. A student whose schema cannot
// be loaded is skipped rather than failing the batch. Returns the number
// of students updated.
func (s *ContestService) RecomputeScores(ctx context.Context, participationID string, parallelism int) (int, error) {
	students, err := s.students.StudentsByParticipation(ctx, participationID)
	if err != nil {
		return 0, err
	}
	if parallelism < 1 {
		parallelism = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	updated := make(chan struct{}, len(students))
	for _, st := range students {
		st := st
		g.Go(func() error {
			schema, solution, err := s.variants.Schema(ctx, st.ContestID, st.Variant)
			if err != nil {
				log.Printf("recompute: skipping student %s: %v", st.ID, err)
				return nil
			}
			score := scoring.Score(st, schema, solution)
			if err := s.students.SaveScore(ctx, st.ID, score); err != nil {
				return fmt.Errorf("save score for %s: %w", st.ID, err)
			}
			updated <- struct{}{}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return len(updated), err
	}
	return len(updated), nil
}

// SubscribeMonitor attaches a dashboard to a participation's event feed.
// The caller must invoke the returned cancel function.
func (s *ContestService) SubscribeMonitor(participationID string) (<-chan Event, func()) {
	monitor := s.monitors.GetOrCreate(participationID)
	ch, cancel := monitor.Subscribe()
	return ch, func() {
		cancel()
		if monitor.IsEmpty() {
			s.monitors.DeleteIfEmpty(participationID)
		}
	}
}
