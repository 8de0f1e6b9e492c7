package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/example/exam-proctor/internal/detector"
	"github.com/example/exam-proctor/internal/facestore"
)

var (
	// ErrNameRequired is returned when registration lacks a name.
	ErrNameRequired = errors.New("name is required")
	// ErrStudentIDRequired is returned when registration lacks a student id.
	ErrStudentIDRequired = errors.New("student_id is required")
	// ErrInvalidEmail is returned for a malformed email address.
	ErrInvalidEmail = errors.New("invalid email format")
	// ErrStudentIDRegistered is returned when the student id is already taken.
	ErrStudentIDRegistered = errors.New("student id already registered")
	// ErrNoUsableFaces is returned when no sample image yields an embedding.
	ErrNoUsableFaces = errors.New("no valid faces detected in supplied images")
	// ErrStudentNotFound is returned when neither student id nor name matches.
	ErrStudentNotFound = errors.New("student not found")
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// IdentityStore defines the face-store operations the registration flow needs.
type IdentityStore interface {
	AddIdentity(name string, samples [][]float32, studentID, email string) (int, error)
	FindByStudentID(studentID string) (string, bool)
	DeletePerson(name string) bool
	ListAll() []facestore.StudentInfo
	Info(name string) (facestore.StudentInfo, bool)
	Count() int
}

// RegistrationSummary describes the outcome of one registration.
type RegistrationSummary struct {
	Name            string `json:"name"`
	StudentID       string `json:"student_id"`
	Email           string `json:"email"`
	ProcessedImages int    `json:"processed_images"`
	FacesDetected   int    `json:"faces_detected"`
	EmbeddingsUsed  int    `json:"embeddings_used"`
	TotalStudents   int    `json:"total_students"`
}

// StudentUseCase manages the registered-student lifecycle.
type StudentUseCase struct {
	store    IdentityStore
	detector detector.Client
	logger   *zap.Logger
}

// NewStudentUseCase constructs the registration flow.
func NewStudentUseCase(store IdentityStore, det detector.Client, logger *zap.Logger) *StudentUseCase {
	return &StudentUseCase{
		store:    store,
		detector: det,
		logger:   logger.Named("student_usecase"),
	}
}

// Register enrolls a new student: every sample image is run through the
// detector, the first face's embedding is collected, and the store keeps the
// mean of all collected embeddings. Sample images that fail detection are
// skipped, not fatal.
func (uc *StudentUseCase) Register(ctx context.Context, name, studentID, email string, images [][]byte) (*RegistrationSummary, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, ErrStudentIDRequired
	}
	email = strings.TrimSpace(email)
	if email != "" && !emailPattern.MatchString(email) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}

	if existing, ok := uc.store.FindByStudentID(studentID); ok {
		return nil, fmt.Errorf("%w: %q belongs to %q", ErrStudentIDRegistered, studentID, existing)
	}

	var samples [][]float32
	processed := 0
	faceHits := 0
	for i, image := range images {
		processed++
		bundle, err := uc.detector.Analyze(ctx, image)
		if err != nil {
			uc.logger.Warn("skipping sample image, detection failed", zap.Int("index", i), zap.Error(err))
			continue
		}
		if len(bundle.Faces) == 0 {
			continue
		}
		faceHits++
		embedding := bundle.Faces[0].Embedding
		if len(embedding) == 0 {
			continue
		}
		samples = append(samples, embedding)
	}
	if len(samples) == 0 {
		return nil, ErrNoUsableFaces
	}

	used, err := uc.store.AddIdentity(name, samples, studentID, email)
	if err != nil {
		return nil, err
	}

	return &RegistrationSummary{
		Name:            name,
		StudentID:       studentID,
		Email:           email,
		ProcessedImages: processed,
		FacesDetected:   faceHits,
		EmbeddingsUsed:  used,
		TotalStudents:   uc.store.Count(),
	}, nil
}

// Delete removes a student. The identifier may be a student id or a name; a
// student id match takes precedence. Returns the resolved name and the
// remaining student count.
func (uc *StudentUseCase) Delete(identifier string) (string, int, error) {
	name := identifier
	if resolved, ok := uc.store.FindByStudentID(identifier); ok {
		name = resolved
	}
	if !uc.store.DeletePerson(name) {
		return "", 0, fmt.Errorf("%w: %q", ErrStudentNotFound, identifier)
	}
	return name, uc.store.Count(), nil
}

// Get returns one student's metadata by student id or name.
func (uc *StudentUseCase) Get(identifier string) (*facestore.StudentInfo, error) {
	name := identifier
	if resolved, ok := uc.store.FindByStudentID(identifier); ok {
		name = resolved
	}
	info, ok := uc.store.Info(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrStudentNotFound, identifier)
	}
	return &info, nil
}

// List returns all registered students ordered by name.
func (uc *StudentUseCase) List() []facestore.StudentInfo {
	return uc.store.ListAll()
}
