package app

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"contest-variant-service/internal/domain"
	"contest-variant-service/internal/registry"
)

// ParticipationStore resolves join tokens against the external store.
type ParticipationStore interface {
	ParticipationByToken(ctx context.Context, token string) (domain.Participation, error)
}

// StudentStore abstracts the transactional student collection. The
// create call must be an atomic compare-and-set keyed by identity hash
// within a participation: two concurrent registrations with the same
// identity must never both observe "absent".
type StudentStore interface {
	// CreateStudentIfAbsent writes the student unless one with the same
	// (participationID, identityHash) exists. It returns the row now in
	// the store and whether this call created it.
	CreateStudentIfAbsent(ctx context.Context, st domain.Student) (domain.Student, bool, error)
	Student(ctx context.Context, id string) (domain.Student, error)
	SaveAnswers(ctx context.Context, studentID string, answers map[int]domain.Answer) error
	SaveScore(ctx context.Context, studentID string, score *int) error
	StudentsByParticipation(ctx context.Context, participationID string) ([]domain.Student, error)
}

// RestoreStore persists device-handoff requests. ApproveRestore must be
// a single transaction: approve the request, rebind the student's active
// session, and revoke every other pending request for that student.
type RestoreStore interface {
	CreateRestore(ctx context.Context, req domain.RestoreRequest) error
	// ApproveRestore returns the approved request and the session id that
	// was bound to the student before the rebind.
	ApproveRestore(ctx context.Context, requestID string) (domain.RestoreRequest, string, error)
	RevokePending(ctx context.Context, studentID string) error
	PendingByParticipation(ctx context.Context, participationID string) ([]domain.RestoreRequest, error)
}

// CredentialIssuer is the external credential collaborator. Credentials
// are bound to session ids: one issue per successful register or
// approve, one revoke per displaced session.
type CredentialIssuer interface {
	Issue(ctx context.Context, sessionID string, claims map[string]string) (string, error)
	Revoke(ctx context.Context, sessionID string) error
}

// VariantRepository loads per-variant grading data (from cache/backing store).
type VariantRepository interface {
	Schema(ctx context.Context, contestID, variantID string) (domain.Schema, domain.Solution, error)
}

// RegistrationState is the terminal state of one registration attempt.
type RegistrationState string

const (
	StateRegistered     RegistrationState = "registered"
	StatePendingRestore RegistrationState = "pendingRestore"
)

// RegisterOutcome reports how a registration attempt ended. Credential
// is set for registered students; Restore for pending handoffs.
type RegisterOutcome struct {
	State      RegistrationState
	Student    domain.Student
	Credential string
	Restore    *domain.RestoreRequest
}

// ContestService contains the registration and grading use cases.
type ContestService struct {
	participations ParticipationStore
	students       StudentStore
	restores       RestoreStore
	credentials    CredentialIssuer
	variants       VariantRepository
	tables         map[string]*registry.Table
	monitors       MonitorRepository

	retryAttempts int
	retryBackoff  time.Duration
	now           func() time.Time
	newID         func() string
}

// NewContestService wires the coordinator. One registry table per
// contest; tables are immutable, so they are built once at startup.
func NewContestService(
	participations ParticipationStore,
	students StudentStore,
	restores RestoreStore,
	credentials CredentialIssuer,
	variants VariantRepository,
	tables []*registry.Table,
	monitors MonitorRepository,
) *ContestService {
	byContest := make(map[string]*registry.Table, len(tables))
	for _, t := range tables {
		byContest[t.ContestID()] = t
	}
	return &ContestService{
		participations: participations,
		students:       students,
		restores:       restores,
		credentials:    credentials,
		variants:       variants,
		tables:         byContest,
		monitors:       monitors,
		retryAttempts:  3,
		retryBackoff:   50 * time.Millisecond,
		now:            time.Now,
		newID:          func() string { return uuid.NewString() },
	}
}

// WithRetry overrides the conflict retry budget.
func (s *ContestService) WithRetry(attempts int, backoff time.Duration) *ContestService {
	if attempts > 0 {
		s.retryAttempts = attempts
	}
	s.retryBackoff = backoff
	return s
}

// WithClock is test-only for deterministic timestamps and ids.
func (s *ContestService) WithClock(now func() time.Time, newID func() string) *ContestService {
	s.now = now
	s.newID = newID
	return s
}

// Register runs one registration attempt to a terminal state: a new
// student, a pending restore for a same-token duplicate, or an error the
// caller can show to the user.
func (s *ContestService) Register(ctx context.Context, contestID, token string, identity []domain.IdentityField) (RegisterOutcome, error) {
	part, err := s.participations.ParticipationByToken(ctx, token)
	if err != nil {
		return RegisterOutcome{}, err
	}
	if part.ContestID != contestID {
		return RegisterOutcome{}, domain.ErrTokenContestMismatch
	}

	table, ok := s.tables[contestID]
	if !ok {
		return RegisterOutcome{}, fmt.Errorf("no variant table for contest %s: %w", contestID, domain.ErrVariantNotFound)
	}

	hash := domain.IdentityHash(identity)
	variant, err := table.VariantForHash(hash)
	if err != nil {
		return RegisterOutcome{}, err
	}

	sessionID := s.newID()
	candidate := domain.Student{
		ID:              s.newID(),
		ParticipationID: part.ID,
		ContestID:       contestID,
		Token:           token,
		Variant:         variant,
		SessionID:       sessionID,
		IdentityHash:    hash,
		Identity:        identity,
		Answers:         map[int]domain.Answer{},
		CreatedAt:       s.now(),
	}

	existing, created, err := s.createWithRetry(ctx, candidate)
	if err != nil {
		return RegisterOutcome{}, err
	}

	if created {
		cred, err := s.credentials.Issue(ctx, sessionID, map[string]string{
			"studentId": candidate.ID,
			"contestId": contestID,
			"variant":   variant,
		})
		if err != nil {
			return RegisterOutcome{}, fmt.Errorf("issue credential: %w", err)
		}
		s.publish(part.ID, Event{Type: EventRegistered, StudentID: candidate.ID, Variant: variant, At: s.now()})
		return RegisterOutcome{State: StateRegistered, Student: candidate, Credential: cred}, nil
	}

	if existing.Token != token {
		return RegisterOutcome{}, domain.ErrDuplicateStudent
	}

	// Same identity, same token: a device switch. Nothing is rebound yet;
	// the teacher must approve the spoken code first.
	req := domain.RestoreRequest{
		ID:              s.newID(),
		StudentID:       existing.ID,
		ParticipationID: part.ID,
		Token:           token,
		SessionID:       sessionID,
		ApprovalCode:    ApprovalCode(sessionID),
		Status:          domain.RestorePending,
		CreatedAt:       s.now(),
	}
	if err := s.restores.CreateRestore(ctx, req); err != nil {
		return RegisterOutcome{}, fmt.Errorf("create restore request: %w", err)
	}
	s.publish(part.ID, Event{Type: EventRestorePending, StudentID: existing.ID, RequestID: req.ID, ApprovalCode: req.ApprovalCode, At: s.now()})
	return RegisterOutcome{State: StatePendingRestore, Student: existing, Restore: &req}, nil
}

// Approve grants a pending restore: the student's active session is
// rebound, every other pending request is revoked, the displaced
// session's credential is invalidated, and a credential is issued for
// the new session.
func (s *ContestService) Approve(ctx context.Context, requestID string) (string, error) {
	req, prevSession, err := s.restores.ApproveRestore(ctx, requestID)
	if err != nil {
		return "", err
	}
	if prevSession != "" {
		if err := s.credentials.Revoke(ctx, prevSession); err != nil {
			return "", fmt.Errorf("revoke displaced session: %w", err)
		}
	}
	cred, err := s.credentials.Issue(ctx, req.SessionID, map[string]string{
		"studentId": req.StudentID,
	})
	if err != nil {
		return "", fmt.Errorf("issue credential: %w", err)
	}
	s.publish(req.ParticipationID, Event{Type: EventRestoreApproved, StudentID: req.StudentID, RequestID: req.ID, At: s.now()})
	return cred, nil
}

// Student returns one student row; transports use it to check that a
// presented credential still belongs to the student's active session.
func (s *ContestService) Student(ctx context.Context, id string) (domain.Student, error) {
	return s.students.Student(ctx, id)
}

// Reject revokes every pending restore request for a student without
// rebinding anything.
func (s *ContestService) Reject(ctx context.Context, studentID string) error {
	return s.restores.RevokePending(ctx, studentID)
}

// PendingRestores lists the open handoff requests of a participation, so
// a teacher can compare spoken approval codes.
func (s *ContestService) PendingRestores(ctx context.Context, participationID string) ([]domain.RestoreRequest, error) {
	return s.restores.PendingByParticipation(ctx, participationID)
}

func (s *ContestService) createWithRetry(ctx context.Context, st domain.Student) (domain.Student, bool, error) {
	var lastErr error
	for attempt := 0; attempt < s.retryAttempts; attempt++ {
		if attempt > 0 && s.retryBackoff > 0 {
			select {
			case <-time.After(s.retryBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				return domain.Student{}, false, ctx.Err()
			}
		}
		existing, created, err := s.students.CreateStudentIfAbsent(ctx, st)
		if err == nil {
			return existing, created, nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return domain.Student{}, false, err
		}
		lastErr = err
	}
	return domain.Student{}, false, fmt.Errorf("registration did not settle after %d attempts: %w", s.retryAttempts, lastErr)
}

func (s *ContestService) publish(participationID string, ev Event) {
	if s.monitors == nil {
		return
	}
	if m, ok := s.monitors.Get(participationID); ok {
		m.Publish(ev)
	}
}

// ApprovalCode derives the 3-digit human-speakable code for a new
// session. Teachers read it back over voice, so it stays short; it
// authorizes nothing on its own, approval happens against the request id.
func ApprovalCode(sessionID string) string {
	sum := sha256.Sum256([]byte(sessionID))
	n := binary.BigEndian.Uint64(sum[:8]) % 1000
	return fmt.Sprintf("%03d", n)
}
