package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/exam-proctor/internal/classifier"
	"github.com/example/exam-proctor/internal/detector"
	"github.com/example/exam-proctor/internal/logging"
	"github.com/example/exam-proctor/internal/objectstore"
	"github.com/example/exam-proctor/internal/repository"
	"github.com/example/exam-proctor/internal/verifier"
)

// Monitoring result statuses.
const (
	MonitorStatusClear     = "clear"
	MonitorStatusViolation = "violation_detected"
)

// ViolationStore defines the persistence operations the monitoring flow needs.
type ViolationStore interface {
	FindUserIDByStudentCode(ctx context.Context, code string) (int64, error)
	InsertViolation(ctx context.Context, violation *repository.Violation) error
	RecordViolation(ctx context.Context, submissionID, userID, examPeriodID int64, severity classifier.Severity, detectedAt time.Time) error
	ViolationsBySubmission(ctx context.Context, submissionID int64, limit int) ([]*repository.Violation, error)
	SummaryBySubmission(ctx context.Context, submissionID int64) (*repository.ViolationSummary, error)
}

// MonitorRequest is one frame evaluation for a running exam submission.
type MonitorRequest struct {
	StudentID    string
	ExamPeriodID int64
	SubmissionID int64
	Image        []byte
}

// MonitorResult is the verdict returned to the caller for one frame.
type MonitorResult struct {
	RequestID     string              `json:"request_id"`
	StudentID     string              `json:"student_id"`
	Status        string              `json:"status"`
	Message       string              `json:"message,omitempty"`
	ViolationType string              `json:"violation_type,omitempty"`
	Severity      classifier.Severity `json:"severity,omitempty"`
	Confidence    float64             `json:"confidence,omitempty"`
	Flags         []string            `json:"flags,omitempty"`
	ImageURL      string              `json:"image_url,omitempty"`
	DetectedAt    *time.Time          `json:"detected_at,omitempty"`
	Detection     *detector.Bundle    `json:"detection_result,omitempty"`
}

// MonitoringUseCase coordinates detection, identity labeling, classification,
// image persistence, and the risk summary update for each incoming frame.
type MonitoringUseCase struct {
	redisRetrier
	store    ViolationStore
	uploader objectstore.Uploader
	detector detector.Client
	verifier *verifier.Verifier
	metrics  *Metrics
	logger   *zap.Logger
}

// NewMonitoringUseCase constructs the monitoring flow.
func NewMonitoringUseCase(store ViolationStore, uploader objectstore.Uploader, det detector.Client, ver *verifier.Verifier, cache Cache, metrics *Metrics, logger *zap.Logger) *MonitoringUseCase {
	named := logger.Named("monitoring_usecase")
	return &MonitoringUseCase{
		redisRetrier: newRedisRetrier(cache, named),
		store:        store,
		uploader:     uploader,
		detector:     det,
		verifier:     ver,
		metrics:      metrics,
		logger:       named,
	}
}

// Monitor evaluates one frame. A clear frame answers without persisting
// anything; a violation uploads the frame, writes the violation record, and
// updates the submission's risk summary. A detection failure short-circuits
// before anything is written.
func (uc *MonitoringUseCase) Monitor(ctx context.Context, req MonitorRequest) (*MonitorResult, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.monitor", requestID)

	userID, err := uc.store.FindUserIDByStudentCode(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	bundle, err := uc.detector.Analyze(ctx, req.Image)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.detector_analyze", requestID, err)
		opLogger.Error("detection failed, nothing persisted", zap.Error(wrapped))
		return nil, wrapped
	}
	bundle.Faces = uc.verifier.LabelFaces(bundle.Faces)

	result := &MonitorResult{
		RequestID: requestID,
		StudentID: req.StudentID,
		Detection: bundle,
	}

	if bundle.Status == detector.StatusClear {
		result.Status = MonitorStatusClear
		result.Message = "No violations detected"
		uc.metrics.MonitorProcessed(MonitorStatusClear)
		uc.cacheMonitorResult(ctx, requestID, result)
		return result, nil
	}

	detectedAt := time.Now().UTC()
	verdict := classifier.Classify(bundle)
	confidence := classifier.Confidence(bundle)

	imageURL, imageKey, err := uc.uploader.UploadViolationImage(ctx, req.Image, req.ExamPeriodID, req.SubmissionID, userID, verdict.Type, detectedAt)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.upload_image", requestID, err)
		opLogger.Error("violation image upload failed", zap.Error(wrapped))
		return nil, wrapped
	}

	detectionData, err := json.Marshal(bundle)
	if err != nil {
		return nil, logging.NewOperationError("usecase.encode_detection", requestID, err)
	}

	violation := &repository.Violation{
		ExamPeriodID:  req.ExamPeriodID,
		SubmissionID:  req.SubmissionID,
		UserID:        userID,
		ViolationType: verdict.Type,
		Severity:      string(verdict.Severity),
		Confidence:    confidence,
		ImageURL:      imageURL,
		ImageKey:      imageKey,
		DetectionData: string(detectionData),
		DetectedAt:    detectedAt,
	}
	if err := uc.store.InsertViolation(ctx, violation); err != nil {
		wrapped := logging.NewOperationError("usecase.insert_violation", requestID, err)
		opLogger.Error("failed to persist violation", zap.Error(wrapped))
		return nil, wrapped
	}
	if err := uc.store.RecordViolation(ctx, req.SubmissionID, userID, req.ExamPeriodID, verdict.Severity, detectedAt); err != nil {
		wrapped := logging.NewOperationError("usecase.record_summary", requestID, err)
		opLogger.Error("failed to update violation summary", zap.Error(wrapped))
		return nil, wrapped
	}

	uc.metrics.MonitorProcessed(MonitorStatusViolation)
	uc.metrics.ViolationRecorded(verdict.Severity)

	result.Status = MonitorStatusViolation
	result.ViolationType = verdict.Type
	result.Severity = verdict.Severity
	result.Confidence = confidence
	result.Flags = bundle.Flags
	result.ImageURL = imageURL
	result.DetectedAt = &detectedAt
	uc.cacheMonitorResult(ctx, requestID, result)

	opLogger.Info("violation recorded",
		zap.Int64("submission_id", req.SubmissionID),
		zap.String("violation_type", verdict.Type),
		zap.String("severity", string(verdict.Severity)),
	)
	return result, nil
}

// Violations lists persisted violations for a submission, newest first.
func (uc *MonitoringUseCase) Violations(ctx context.Context, submissionID int64, limit int) ([]*repository.Violation, error) {
	return uc.store.ViolationsBySubmission(ctx, submissionID, limit)
}

// Summary returns the rolling risk summary for a submission.
func (uc *MonitoringUseCase) Summary(ctx context.Context, submissionID int64) (*repository.ViolationSummary, error) {
	return uc.store.SummaryBySubmission(ctx, submissionID)
}

func (uc *MonitoringUseCase) cacheMonitorResult(ctx context.Context, requestID string, result *MonitorResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		uc.logger.Warn("failed to serialize monitor result", zap.Error(err))
		return
	}
	key := fmt.Sprintf("monitor:%s", requestID)
	uc.cacheResult(ctx, requestID, "cache.set.monitor_result", key, payload, 5*time.Minute)
}
