// Package repository persists violation records and per-submission risk
// summaries, and resolves student codes to user ids.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/exam-proctor/internal/classifier"
	"github.com/example/exam-proctor/internal/logging"
)

var (
	// ErrStudentNotFound is returned when no user matches a student code.
	ErrStudentNotFound = errors.New("student not found")
	// ErrSummaryNotFound is returned when a submission has no summary row yet.
	ErrSummaryNotFound = errors.New("violation summary not found")
)

// Violation is one persisted violation record. Immutable once written.
type Violation struct {
	ID            uint      `gorm:"primaryKey"`
	ExamPeriodID  int64     `gorm:"column:exam_period_id;index"`
	SubmissionID  int64     `gorm:"column:submission_id;index"`
	UserID        int64     `gorm:"column:user_id;index"`
	ViolationType string    `gorm:"column:violation_type;size:128"`
	Severity      string    `gorm:"column:severity;size:16"`
	Confidence    float64   `gorm:"column:confidence"`
	ImageURL      string    `gorm:"column:image_url;type:text"`
	ImageKey      string    `gorm:"column:image_key;type:text"`
	DetectionData string    `gorm:"column:detection_data;type:text"`
	DetectedAt    time.Time `gorm:"column:detected_at;index"`
}

// TableName overrides the default table name.
func (Violation) TableName() string {
	return "violations"
}

// ViolationSummary is the rolling risk summary, one row per submission.
type ViolationSummary struct {
	ID               uint      `gorm:"primaryKey"`
	SubmissionID     int64     `gorm:"column:submission_id;uniqueIndex"`
	UserID           int64     `gorm:"column:user_id"`
	ExamPeriodID     int64     `gorm:"column:exam_period_id"`
	TotalViolations  int       `gorm:"column:total_violations"`
	CriticalCount    int       `gorm:"column:critical_count"`
	HighCount        int       `gorm:"column:high_count"`
	MediumCount      int       `gorm:"column:medium_count"`
	LowCount         int       `gorm:"column:low_count"`
	FirstViolationAt time.Time `gorm:"column:first_violation_at"`
	LastViolationAt  time.Time `gorm:"column:last_violation_at"`
	RiskScore        int       `gorm:"column:risk_score"`
}

// TableName overrides the default table name.
func (ViolationSummary) TableName() string {
	return "violation_summaries"
}

// User maps the externally owned users table, read here only to resolve
// student codes.
type User struct {
	ID           int64  `gorm:"primaryKey"`
	EmployeeCode string `gorm:"column:employee_code"`
}

// TableName overrides the default table name.
func (User) TableName() string {
	return "users"
}

// ViolationRepository provides persistence APIs for violations and summaries.
type ViolationRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewViolationRepository creates a new repository instance.
func NewViolationRepository(db *gorm.DB, logger *zap.Logger) *ViolationRepository {
	return &ViolationRepository{
		db:             db,
		logger:         logger.Named("violation_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the violation schema is available. The users table is
// owned by the surrounding platform and is not migrated here.
func (r *ViolationRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&Violation{}, &ViolationSummary{})
}

// FindUserIDByStudentCode resolves the platform user id for a student code.
func (r *ViolationRepository) FindUserIDByStudentCode(ctx context.Context, code string) (int64, error) {
	var user User
	err := r.db.WithContext(ctx).First(&user, "employee_code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("%w: %q", ErrStudentNotFound, code)
	}
	if err != nil {
		return 0, logging.NewOperationError("repository.find_user", code, err)
	}
	return user.ID, nil
}

// InsertViolation persists one violation record.
func (r *ViolationRepository) InsertViolation(ctx context.Context, violation *Violation) error {
	return r.executeWithRetry(ctx, "repository.insert_violation", fmt.Sprint(violation.SubmissionID), func() error {
		return r.db.WithContext(ctx).Create(violation).Error
	})
}

// RecordViolation upserts the summary row for a submission in a single atomic
// statement: the first violation creates the row, every later one increments
// the matching severity bucket, refreshes last_violation_at, and recomputes
// the risk score. Concurrent calls for the same submission serialize at the
// database; different submissions never block each other.
func (r *ViolationRepository) RecordViolation(ctx context.Context, submissionID, userID, examPeriodID int64, severity classifier.Severity, detectedAt time.Time) error {
	row := ViolationSummary{
		SubmissionID: submissionID,
		UserID:       userID,
		ExamPeriodID: examPeriodID,
	}
	applyViolation(&row, severity, detectedAt)

	critical := bucket(severity, classifier.SeverityCritical)
	high := bucket(severity, classifier.SeverityHigh)
	medium := bucket(severity, classifier.SeverityMedium)
	low := bucket(severity, classifier.SeverityLow)

	return r.executeWithRetry(ctx, "repository.record_violation", fmt.Sprint(submissionID), func() error {
		return r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "submission_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"total_violations":  gorm.Expr("violation_summaries.total_violations + 1"),
				"critical_count":    gorm.Expr("violation_summaries.critical_count + ?", critical),
				"high_count":        gorm.Expr("violation_summaries.high_count + ?", high),
				"medium_count":      gorm.Expr("violation_summaries.medium_count + ?", medium),
				"low_count":         gorm.Expr("violation_summaries.low_count + ?", low),
				"last_violation_at": detectedAt,
				"risk_score": gorm.Expr(
					"(violation_summaries.critical_count + ?) * 50 + (violation_summaries.high_count + ?) * 10 + (violation_summaries.medium_count + ?) * 10 + (violation_summaries.low_count + ?) * 10",
					critical, high, medium, low,
				),
			}),
		}).Create(&row).Error
	})
}

// ViolationsBySubmission lists violations for a submission, newest first.
func (r *ViolationRepository) ViolationsBySubmission(ctx context.Context, submissionID int64, limit int) ([]*Violation, error) {
	if limit <= 0 {
		limit = 100
	}
	var violations []*Violation
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("detected_at DESC").
		Limit(limit).
		Find(&violations).Error
	if err != nil {
		return nil, logging.NewOperationError("repository.list_violations", fmt.Sprint(submissionID), err)
	}
	return violations, nil
}

// SummaryBySubmission returns the summary row for a submission.
func (r *ViolationRepository) SummaryBySubmission(ctx context.Context, submissionID int64) (*ViolationSummary, error) {
	var summary ViolationSummary
	err := r.db.WithContext(ctx).First(&summary, "submission_id = ?", submissionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: submission %d", ErrSummaryNotFound, submissionID)
	}
	if err != nil {
		return nil, logging.NewOperationError("repository.get_summary", fmt.Sprint(submissionID), err)
	}
	return &summary, nil
}

// applyViolation merges one violation into a summary in place. It is the
// contract the SQL upsert implements: first violation stamps
// first_violation_at, every violation bumps the matching bucket, the total,
// last_violation_at, and the risk score.
func applyViolation(s *ViolationSummary, severity classifier.Severity, detectedAt time.Time) {
	if s.TotalViolations == 0 {
		s.FirstViolationAt = detectedAt
	}
	s.TotalViolations++
	switch severity {
	case classifier.SeverityCritical:
		s.CriticalCount++
	case classifier.SeverityHigh:
		s.HighCount++
	case classifier.SeverityMedium:
		s.MediumCount++
	case classifier.SeverityLow:
		s.LowCount++
	}
	s.LastViolationAt = detectedAt
	s.RiskScore = riskScore(s.CriticalCount, s.HighCount, s.MediumCount, s.LowCount)
}

// riskScore reproduces the observed weighting: critical counts 50, every
// other severity counts 10.
func riskScore(critical, high, medium, low int) int {
	return critical*50 + high*10 + medium*10 + low*10
}

func bucket(severity, want classifier.Severity) int {
	if severity == want {
		return 1
	}
	return 0
}

func (r *ViolationRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	if r.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
