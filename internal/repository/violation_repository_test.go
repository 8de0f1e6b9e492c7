package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/exam-proctor/internal/classifier"
	"github.com/example/exam-proctor/internal/logging"
)

type transientTestError struct{}

func (transientTestError) Error() string   { return "transient" }
func (transientTestError) Timeout() bool   { return true }
func (transientTestError) Temporary() bool { return true }

func TestApplyViolationSequence(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)
	t2 := t0.Add(2 * time.Minute)

	var summary ViolationSummary
	applyViolation(&summary, classifier.SeverityCritical, t0)
	applyViolation(&summary, classifier.SeverityMedium, t1)
	applyViolation(&summary, classifier.SeverityMedium, t2)

	if summary.TotalViolations != 3 {
		t.Fatalf("expected 3 total violations, got %d", summary.TotalViolations)
	}
	if summary.CriticalCount != 1 || summary.MediumCount != 2 {
		t.Fatalf("unexpected buckets: critical=%d medium=%d", summary.CriticalCount, summary.MediumCount)
	}
	if summary.HighCount != 0 || summary.LowCount != 0 {
		t.Fatalf("unexpected buckets: high=%d low=%d", summary.HighCount, summary.LowCount)
	}
	if summary.RiskScore != 70 {
		t.Fatalf("expected risk score 70, got %d", summary.RiskScore)
	}
	if !summary.FirstViolationAt.Equal(t0) {
		t.Fatalf("expected first violation at %v, got %v", t0, summary.FirstViolationAt)
	}
	if !summary.LastViolationAt.Equal(t2) {
		t.Fatalf("expected last violation at %v, got %v", t2, summary.LastViolationAt)
	}
}

func TestRiskScoreWeighting(t *testing.T) {
	// High, medium, and low all carry the same weight; only critical differs.
	if got := riskScore(0, 1, 0, 0); got != 10 {
		t.Fatalf("expected high to weigh 10, got %d", got)
	}
	if got := riskScore(0, 0, 1, 0); got != 10 {
		t.Fatalf("expected medium to weigh 10, got %d", got)
	}
	if got := riskScore(0, 0, 0, 1); got != 10 {
		t.Fatalf("expected low to weigh 10, got %d", got)
	}
	if got := riskScore(2, 1, 1, 1); got != 130 {
		t.Fatalf("expected 130, got %d", got)
	}
}

func TestBucketMatchesOnlyItsSeverity(t *testing.T) {
	if bucket(classifier.SeverityCritical, classifier.SeverityCritical) != 1 {
		t.Fatal("expected matching severity to count")
	}
	if bucket(classifier.SeverityHigh, classifier.SeverityCritical) != 0 {
		t.Fatal("expected non-matching severity not to count")
	}
}

func TestExecuteWithRetryRetriesTransientErrors(t *testing.T) {
	repo := &ViolationRepository{
		logger:         zap.NewNop(),
		retryAttempts:  3,
		initialBackoff: time.Millisecond,
		maxBackoff:     2 * time.Millisecond,
	}

	attempts := 0
	err := repo.executeWithRetry(context.Background(), "test.operation", "sub-1", func() error {
		attempts++
		if attempts < 2 {
			return transientTestError{}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestExecuteWithRetryReturnsOperationError(t *testing.T) {
	repo := &ViolationRepository{
		logger:         zap.NewNop(),
		retryAttempts:  2,
		initialBackoff: time.Millisecond,
		maxBackoff:     2 * time.Millisecond,
	}

	attempts := 0
	err := repo.executeWithRetry(context.Background(), "test.operation", "sub-2", func() error {
		attempts++
		return errors.New("boom")
	})

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt for a permanent error, got %d", attempts)
	}

	var opErr *logging.OperationError
	if !errors.As(err, &opErr) {
		t.Fatalf("expected OperationError, got %T", err)
	}
	if opErr.Operation != "test.operation" {
		t.Fatalf("unexpected operation: %s", opErr.Operation)
	}
	if opErr.RequestID != "sub-2" {
		t.Fatalf("unexpected request id: %s", opErr.RequestID)
	}
}
