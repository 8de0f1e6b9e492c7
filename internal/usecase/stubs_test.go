package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/example/exam-proctor/internal/classifier"
	"github.com/example/exam-proctor/internal/detector"
	"github.com/example/exam-proctor/internal/facestore"
	"github.com/example/exam-proctor/internal/repository"
)

type stubViolationStore struct {
	userIDs         map[string]int64
	insertedRecords []*repository.Violation
	insertErr       error
	recordedCalls   []classifier.Severity
	recordErr       error
	summary         *repository.ViolationSummary
	violations      []*repository.Violation
}

func (s *stubViolationStore) FindUserIDByStudentCode(ctx context.Context, code string) (int64, error) {
	if id, ok := s.userIDs[code]; ok {
		return id, nil
	}
	return 0, repository.ErrStudentNotFound
}

func (s *stubViolationStore) InsertViolation(ctx context.Context, violation *repository.Violation) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.insertedRecords = append(s.insertedRecords, violation)
	return nil
}

func (s *stubViolationStore) RecordViolation(ctx context.Context, submissionID, userID, examPeriodID int64, severity classifier.Severity, detectedAt time.Time) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.recordedCalls = append(s.recordedCalls, severity)
	return nil
}

func (s *stubViolationStore) ViolationsBySubmission(ctx context.Context, submissionID int64, limit int) ([]*repository.Violation, error) {
	return s.violations, nil
}

func (s *stubViolationStore) SummaryBySubmission(ctx context.Context, submissionID int64) (*repository.ViolationSummary, error) {
	if s.summary == nil {
		return nil, repository.ErrSummaryNotFound
	}
	return s.summary, nil
}

type stubUploader struct {
	uploads int
	err     error
	lastKey string
}

func (s *stubUploader) UploadViolationImage(ctx context.Context, image []byte, examPeriodID, submissionID, userID int64, violationType string, detectedAt time.Time) (string, string, error) {
	if s.err != nil {
		return "", "", s.err
	}
	s.uploads++
	s.lastKey = violationType
	return "https://cdn.example.com/violation.jpg", "violations/violation.jpg", nil
}

type stubDetector struct {
	bundle *detector.Bundle
	err    error
	calls  int
	// bundles, when set, answers successive calls in order.
	bundles []*detector.Bundle
}

func (s *stubDetector) Analyze(ctx context.Context, image []byte) (*detector.Bundle, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.bundles) > 0 {
		b := s.bundles[0]
		s.bundles = s.bundles[1:]
		return b, nil
	}
	// Copy so flows mutating the bundle do not leak across calls.
	b := *s.bundle
	return &b, nil
}

type stubCache struct {
	setErrs []error
	setKeys []string
	getErr  error
	getVal  string
}

func (s *stubCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	s.setKeys = append(s.setKeys, key)
	if len(s.setErrs) == 0 {
		return nil
	}
	err := s.setErrs[0]
	s.setErrs = s.setErrs[1:]
	return err
}

func (s *stubCache) Get(ctx context.Context, key string) (string, error) {
	return s.getVal, s.getErr
}

// stubFaceStore backs the verifier in tests.
type stubFaceStore struct {
	byStudentID map[string]string
	embeddings  map[string][]float32
	identified  string
	score       float64
}

func (s *stubFaceStore) FindByStudentID(studentID string) (string, bool) {
	name, ok := s.byStudentID[studentID]
	return name, ok
}

func (s *stubFaceStore) Embedding(name string) ([]float32, bool) {
	e, ok := s.embeddings[name]
	return e, ok
}

func (s *stubFaceStore) Identify(query []float32) (string, float64) {
	return s.identified, s.score
}

// stubIdentityStore backs the registration flow in tests.
type stubIdentityStore struct {
	added       map[string][][]float32
	addErr      error
	byStudentID map[string]string
	infos       map[string]facestore.StudentInfo
	deleted     []string
}

func (s *stubIdentityStore) AddIdentity(name string, samples [][]float32, studentID, email string) (int, error) {
	if s.addErr != nil {
		return 0, s.addErr
	}
	if s.added == nil {
		s.added = make(map[string][][]float32)
	}
	s.added[name] = samples
	return len(samples), nil
}

func (s *stubIdentityStore) FindByStudentID(studentID string) (string, bool) {
	name, ok := s.byStudentID[studentID]
	return name, ok
}

func (s *stubIdentityStore) DeletePerson(name string) bool {
	if _, ok := s.infos[name]; !ok {
		return false
	}
	delete(s.infos, name)
	s.deleted = append(s.deleted, name)
	return true
}

func (s *stubIdentityStore) ListAll() []facestore.StudentInfo {
	out := make([]facestore.StudentInfo, 0, len(s.infos))
	for _, info := range s.infos {
		out = append(out, info)
	}
	return out
}

func (s *stubIdentityStore) Info(name string) (facestore.StudentInfo, bool) {
	info, ok := s.infos[name]
	return info, ok
}

func (s *stubIdentityStore) Count() int {
	return len(s.infos) + len(s.added)
}

var errBoom = errors.New("boom")
