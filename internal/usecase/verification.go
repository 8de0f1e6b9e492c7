package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/exam-proctor/internal/detector"
	"github.com/example/exam-proctor/internal/logging"
	"github.com/example/exam-proctor/internal/verifier"
)

// VerificationUseCase checks a student's identity before exam entry.
type VerificationUseCase struct {
	redisRetrier
	detector detector.Client
	verifier *verifier.Verifier
	metrics  *Metrics
	logger   *zap.Logger
}

// NewVerificationUseCase constructs the verification flow.
func NewVerificationUseCase(det detector.Client, ver *verifier.Verifier, cache Cache, metrics *Metrics, logger *zap.Logger) *VerificationUseCase {
	named := logger.Named("verification_usecase")
	return &VerificationUseCase{
		redisRetrier: newRedisRetrier(cache, named),
		detector:     det,
		verifier:     ver,
		metrics:      metrics,
		logger:       named,
	}
}

// VerifyStudent runs detection on the supplied frame and matches the result
// against the student's registered profile. A non-positive threshold selects
// the configured default. The face store is never mutated.
func (uc *VerificationUseCase) VerifyStudent(ctx context.Context, studentID string, image []byte, threshold float64) (*verifier.Outcome, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.verify_student", requestID)

	bundle, err := uc.detector.Analyze(ctx, image)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.detector_analyze", requestID, err)
		opLogger.Error("detection failed during verification", zap.Error(wrapped))
		return nil, wrapped
	}

	outcome := uc.verifier.Verify(studentID, bundle.Faces, threshold)
	uc.metrics.VerificationCompleted(outcome.Status)

	if payload, err := json.Marshal(outcome); err == nil {
		key := fmt.Sprintf("verification:%s", requestID)
		uc.cacheResult(ctx, requestID, "cache.set.verification_result", key, payload, 5*time.Minute)
	} else {
		opLogger.Warn("failed to serialize verification outcome", zap.Error(err))
	}

	opLogger.Info("verification completed",
		zap.String("student_id", studentID),
		zap.String("status", string(outcome.Status)),
		zap.Bool("verified", outcome.Verified),
	)
	return &outcome, nil
}
