// Package postgres backs the contest stores with Postgres. Queries run
// on a pgx pool; statement data lives in JSONB columns so the grading
// schema can evolve without migrations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"contest-variant-service/internal/domain"
)

// ContestStore implements the participation, student, and restore stores
// over Postgres. The unique (participation_id, identity_hash) index is
// what makes registration a compare-and-set.
type ContestStore struct {
	pool *pgxpool.Pool
}

func NewContestStore(pool *pgxpool.Pool) *ContestStore {
	return &ContestStore{pool: pool}
}

func (s *ContestStore) ParticipationByToken(ctx context.Context, token string) (domain.Participation, error) {
	var p domain.Participation
	err := s.pool.QueryRow(ctx,
		`SELECT id, contest_id, token, started_at FROM participations WHERE token=$1`, token,
	).Scan(&p.ID, &p.ContestID, &p.Token, &p.StartedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Participation{}, domain.ErrInvalidToken
	}
	if err != nil {
		return domain.Participation{}, fmt.Errorf("load participation: %w", err)
	}
	return p, nil
}

// SaveParticipation upserts a participation row; used by seeding and tests.
func (s *ContestStore) SaveParticipation(ctx context.Context, p domain.Participation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO participations (id, contest_id, token, started_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET contest_id=$2, token=$3, started_at=$4`,
		p.ID, p.ContestID, p.Token, p.StartedAt)
	if err != nil {
		return fmt.Errorf("save participation: %w", err)
	}
	return nil
}

// CreateStudentIfAbsent inserts the candidate unless a student with the
// same identity hash already exists in the participation. The insert and
// the fallback read are separate statements, so a concurrent writer can
// slip between them; in that window the read sees nothing and we surface
// a conflict for the caller to retry.
func (s *ContestStore) CreateStudentIfAbsent(ctx context.Context, st domain.Student) (domain.Student, bool, error) {
	identity, err := json.Marshal(st.Identity)
	if err != nil {
		return domain.Student{}, false, fmt.Errorf("marshal identity: %w", err)
	}
	answers, err := json.Marshal(st.Answers)
	if err != nil {
		return domain.Student{}, false, fmt.Errorf("marshal answers: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO students (id, participation_id, contest_id, token, variant,
			session_id, identity_hash, identity, answers, score, disabled, absent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (participation_id, identity_hash) DO NOTHING`,
		st.ID, st.ParticipationID, st.ContestID, st.Token, st.Variant,
		st.SessionID, st.IdentityHash, identity, answers, st.Score, st.Disabled, st.Absent, st.CreatedAt)
	if err != nil {
		return domain.Student{}, false, fmt.Errorf("insert student: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return st, true, nil
	}

	existing, err := s.studentBy(ctx,
		`SELECT `+studentColumns+` FROM students WHERE participation_id=$1 AND identity_hash=$2`,
		st.ParticipationID, st.IdentityHash)
	if errors.Is(err, domain.ErrStudentNotFound) {
		return domain.Student{}, false, domain.ErrConflict
	}
	if err != nil {
		return domain.Student{}, false, err
	}
	return existing, false, nil
}

const studentColumns = `id, participation_id, contest_id, token, variant,
	session_id, identity_hash, identity, answers, score, disabled, absent, created_at`

func (s *ContestStore) Student(ctx context.Context, id string) (domain.Student, error) {
	return s.studentBy(ctx, `SELECT `+studentColumns+` FROM students WHERE id=$1`, id)
}

func (s *ContestStore) studentBy(ctx context.Context, query string, args ...interface{}) (domain.Student, error) {
	var (
		st       domain.Student
		identity []byte
		answers  []byte
	)
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&st.ID, &st.ParticipationID, &st.ContestID, &st.Token, &st.Variant,
		&st.SessionID, &st.IdentityHash, &identity, &answers, &st.Score, &st.Disabled, &st.Absent, &st.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Student{}, domain.ErrStudentNotFound
	}
	if err != nil {
		return domain.Student{}, fmt.Errorf("load student: %w", err)
	}
	if err := json.Unmarshal(identity, &st.Identity); err != nil {
		return domain.Student{}, fmt.Errorf("unmarshal identity: %w", err)
	}
	if err := json.Unmarshal(answers, &st.Answers); err != nil {
		return domain.Student{}, fmt.Errorf("unmarshal answers: %w", err)
	}
	return st, nil
}

func (s *ContestStore) SaveAnswers(ctx context.Context, studentID string, answers map[int]domain.Answer) error {
	raw, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `UPDATE students SET answers=$2 WHERE id=$1`, studentID, raw)
	if err != nil {
		return fmt.Errorf("save answers: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStudentNotFound
	}
	return nil
}

func (s *ContestStore) SaveScore(ctx context.Context, studentID string, score *int) error {
	tag, err := s.pool.Exec(ctx, `UPDATE students SET score=$2 WHERE id=$1`, studentID, score)
	if err != nil {
		return fmt.Errorf("save score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStudentNotFound
	}
	return nil
}

func (s *ContestStore) StudentsByParticipation(ctx context.Context, participationID string) ([]domain.Student, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+studentColumns+` FROM students WHERE participation_id=$1 ORDER BY created_at`,
		participationID)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var out []domain.Student
	for rows.Next() {
		var (
			st       domain.Student
			identity []byte
			answers  []byte
		)
		if err := rows.Scan(
			&st.ID, &st.ParticipationID, &st.ContestID, &st.Token, &st.Variant,
			&st.SessionID, &st.IdentityHash, &identity, &answers, &st.Score, &st.Disabled, &st.Absent, &st.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		if err := json.Unmarshal(identity, &st.Identity); err != nil {
			return nil, fmt.Errorf("unmarshal identity: %w", err)
		}
		if err := json.Unmarshal(answers, &st.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *ContestStore) CreateRestore(ctx context.Context, req domain.RestoreRequest) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO restore_requests (id, student_id, participation_id, token,
			session_id, approval_code, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.ID, req.StudentID, req.ParticipationID, req.Token,
		req.SessionID, req.ApprovalCode, string(req.Status), req.CreatedAt)
	if err != nil {
		return fmt.Errorf("create restore request: %w", err)
	}
	return nil
}

// ApproveRestore runs the rebind in one transaction: the request is
// locked, the student's session swaps, and every other pending request
// of that student is revoked.
func (s *ContestStore) ApproveRestore(ctx context.Context, requestID string) (domain.RestoreRequest, string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.RestoreRequest{}, "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		req    domain.RestoreRequest
		status string
	)
	err = tx.QueryRow(ctx, `
		SELECT id, student_id, participation_id, token, session_id, approval_code, status, created_at
		FROM restore_requests WHERE id=$1 FOR UPDATE`, requestID,
	).Scan(&req.ID, &req.StudentID, &req.ParticipationID, &req.Token,
		&req.SessionID, &req.ApprovalCode, &status, &req.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RestoreRequest{}, "", domain.ErrRestoreNotFound
	}
	if err != nil {
		return domain.RestoreRequest{}, "", fmt.Errorf("load restore request: %w", err)
	}
	if domain.RestoreStatus(status) != domain.RestorePending {
		return domain.RestoreRequest{}, "", domain.ErrRestoreExpired
	}

	var prevSession string
	err = tx.QueryRow(ctx,
		`SELECT session_id FROM students WHERE id=$1 FOR UPDATE`, req.StudentID,
	).Scan(&prevSession)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RestoreRequest{}, "", domain.ErrStudentNotFound
	}
	if err != nil {
		return domain.RestoreRequest{}, "", fmt.Errorf("load student session: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE students SET session_id=$2 WHERE id=$1`, req.StudentID, req.SessionID); err != nil {
		return domain.RestoreRequest{}, "", fmt.Errorf("rebind session: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE restore_requests SET status=$2 WHERE id=$1`, req.ID, string(domain.RestoreApproved)); err != nil {
		return domain.RestoreRequest{}, "", fmt.Errorf("approve request: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE restore_requests SET status=$3
		WHERE student_id=$1 AND id<>$2 AND status=$4`,
		req.StudentID, req.ID, string(domain.RestoreRevoked), string(domain.RestorePending)); err != nil {
		return domain.RestoreRequest{}, "", fmt.Errorf("revoke siblings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.RestoreRequest{}, "", fmt.Errorf("commit: %w", err)
	}
	req.Status = domain.RestoreApproved
	return req, prevSession, nil
}

func (s *ContestStore) RevokePending(ctx context.Context, studentID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE restore_requests SET status=$2 WHERE student_id=$1 AND status=$3`,
		studentID, string(domain.RestoreRevoked), string(domain.RestorePending))
	if err != nil {
		return fmt.Errorf("revoke pending: %w", err)
	}
	return nil
}

func (s *ContestStore) PendingByParticipation(ctx context.Context, participationID string) ([]domain.RestoreRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, student_id, participation_id, token, session_id, approval_code, status, created_at
		FROM restore_requests WHERE participation_id=$1 AND status=$2 ORDER BY created_at`,
		participationID, string(domain.RestorePending))
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	defer rows.Close()

	var out []domain.RestoreRequest
	for rows.Next() {
		var (
			req    domain.RestoreRequest
			status string
		)
		if err := rows.Scan(&req.ID, &req.StudentID, &req.ParticipationID, &req.Token,
			&req.SessionID, &req.ApprovalCode, &status, &req.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan restore request: %w", err)
		}
		req.Status = domain.RestoreStatus(status)
		out = append(out, req)
	}
	return out, rows.Err()
}
