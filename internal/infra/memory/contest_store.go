package memory

import (
	"context"
	"sync"

	"contest-variant-service/internal/domain"
)

// ContestStore is an in-memory implementation of the participation,
// student, and restore stores. The mutex gives the same atomicity the
// postgres store gets from transactions, which makes it a faithful
// stand-in for concurrency tests and demos.
type ContestStore struct {
	mu             sync.Mutex
	participations map[string]domain.Participation // by token
	students       map[string]domain.Student       // by id
	byIdentity     map[string]string               // participationID+"/"+identityHash -> student id
	restores       map[string]domain.RestoreRequest
}

func NewContestStore() *ContestStore {
	return &ContestStore{
		participations: make(map[string]domain.Participation),
		students:       make(map[string]domain.Student),
		byIdentity:     make(map[string]string),
		restores:       make(map[string]domain.RestoreRequest),
	}
}

// SeedParticipation registers a participation for its join token.
func (s *ContestStore) SeedParticipation(p domain.Participation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participations[p.Token] = p
}

func (s *ContestStore) ParticipationByToken(_ context.Context, token string) (domain.Participation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participations[token]
	if !ok {
		return domain.Participation{}, domain.ErrInvalidToken
	}
	return p, nil
}

func identityKey(participationID, hash string) string {
	return participationID + "/" + hash
}

func (s *ContestStore) CreateStudentIfAbsent(_ context.Context, st domain.Student) (domain.Student, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := identityKey(st.ParticipationID, st.IdentityHash)
	if id, ok := s.byIdentity[key]; ok {
		return s.students[id], false, nil
	}
	s.students[st.ID] = st
	s.byIdentity[key] = st.ID
	return st, true, nil
}

func (s *ContestStore) Student(_ context.Context, id string) (domain.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok {
		return domain.Student{}, domain.ErrStudentNotFound
	}
	return st, nil
}

func (s *ContestStore) SaveAnswers(_ context.Context, studentID string, answers map[int]domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[studentID]
	if !ok {
		return domain.ErrStudentNotFound
	}
	copied := make(map[int]domain.Answer, len(answers))
	for k, v := range answers {
		copied[k] = v
	}
	st.Answers = copied
	s.students[studentID] = st
	return nil
}

func (s *ContestStore) SaveScore(_ context.Context, studentID string, score *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[studentID]
	if !ok {
		return domain.ErrStudentNotFound
	}
	st.Score = score
	s.students[studentID] = st
	return nil
}

func (s *ContestStore) StudentsByParticipation(_ context.Context, participationID string) ([]domain.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Student
	for _, st := range s.students {
		if st.ParticipationID == participationID {
			out = append(out, st)
		}
	}
	return out, nil
}

func (s *ContestStore) CreateRestore(_ context.Context, req domain.RestoreRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restores[req.ID] = req
	return nil
}

func (s *ContestStore) ApproveRestore(_ context.Context, requestID string) (domain.RestoreRequest, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.restores[requestID]
	if !ok {
		return domain.RestoreRequest{}, "", domain.ErrRestoreNotFound
	}
	if req.Status != domain.RestorePending {
		return domain.RestoreRequest{}, "", domain.ErrRestoreExpired
	}

	st, ok := s.students[req.StudentID]
	if !ok {
		return domain.RestoreRequest{}, "", domain.ErrStudentNotFound
	}
	prevSession := st.SessionID
	st.SessionID = req.SessionID
	s.students[st.ID] = st

	req.Status = domain.RestoreApproved
	s.restores[req.ID] = req
	for id, other := range s.restores {
		if other.StudentID == req.StudentID && id != req.ID && other.Status == domain.RestorePending {
			other.Status = domain.RestoreRevoked
			s.restores[id] = other
		}
	}
	return req, prevSession, nil
}

func (s *ContestStore) RevokePending(_ context.Context, studentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, req := range s.restores {
		if req.StudentID == studentID && req.Status == domain.RestorePending {
			req.Status = domain.RestoreRevoked
			s.restores[id] = req
		}
	}
	return nil
}

func (s *ContestStore) PendingByParticipation(_ context.Context, participationID string) ([]domain.RestoreRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.RestoreRequest
	for _, req := range s.restores {
		if req.ParticipationID == participationID && req.Status == domain.RestorePending {
			out = append(out, req)
		}
	}
	return out, nil
}
