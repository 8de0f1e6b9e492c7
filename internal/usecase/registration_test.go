package usecase

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/example/exam-proctor/internal/detector"
	"github.com/example/exam-proctor/internal/facestore"
)

func TestRegisterCollectsOneEmbeddingPerImage(t *testing.T) {
	store := &stubIdentityStore{}
	det := &stubDetector{bundles: []*detector.Bundle{
		{Faces: []detector.Face{{Embedding: []float32{1, 0}}}},
		{Faces: []detector.Face{}}, // no face in this sample
		{Faces: []detector.Face{{Embedding: []float32{0, 1}}}},
	}}
	uc := NewStudentUseCase(store, det, zap.NewNop())

	summary, err := uc.Register(context.Background(), "Alice", "S1", "alice@example.com", [][]byte{{1}, {2}, {3}})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if summary.ProcessedImages != 3 {
		t.Fatalf("expected 3 processed images, got %d", summary.ProcessedImages)
	}
	if summary.FacesDetected != 2 {
		t.Fatalf("expected 2 face hits, got %d", summary.FacesDetected)
	}
	if summary.EmbeddingsUsed != 2 {
		t.Fatalf("expected 2 embeddings used, got %d", summary.EmbeddingsUsed)
	}
	if len(store.added["Alice"]) != 2 {
		t.Fatalf("expected 2 samples stored, got %d", len(store.added["Alice"]))
	}
}

func TestRegisterRejectsDuplicateStudentID(t *testing.T) {
	store := &stubIdentityStore{byStudentID: map[string]string{"S1": "Bob"}}
	uc := NewStudentUseCase(store, &stubDetector{}, zap.NewNop())

	_, err := uc.Register(context.Background(), "Alice", "S1", "", [][]byte{{1}})
	if !errors.Is(err, ErrStudentIDRegistered) {
		t.Fatalf("expected ErrStudentIDRegistered, got %v", err)
	}
	if len(store.added) != 0 {
		t.Fatal("expected no identity added on duplicate student id")
	}
}

func TestRegisterValidatesFields(t *testing.T) {
	uc := NewStudentUseCase(&stubIdentityStore{}, &stubDetector{}, zap.NewNop())

	if _, err := uc.Register(context.Background(), "  ", "S1", "", [][]byte{{1}}); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}
	if _, err := uc.Register(context.Background(), "Alice", "", "", [][]byte{{1}}); !errors.Is(err, ErrStudentIDRequired) {
		t.Fatalf("expected ErrStudentIDRequired, got %v", err)
	}
	if _, err := uc.Register(context.Background(), "Alice", "S1", "not-an-email", [][]byte{{1}}); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
}

func TestRegisterFailsWhenNoUsableFaces(t *testing.T) {
	det := &stubDetector{bundle: &detector.Bundle{Faces: []detector.Face{}}}
	uc := NewStudentUseCase(&stubIdentityStore{}, det, zap.NewNop())

	_, err := uc.Register(context.Background(), "Alice", "S1", "", [][]byte{{1}, {2}})
	if !errors.Is(err, ErrNoUsableFaces) {
		t.Fatalf("expected ErrNoUsableFaces, got %v", err)
	}
}

func TestRegisterSkipsFailedDetections(t *testing.T) {
	// One faceless sample followed by one good sample.
	det := &stubDetector{bundles: []*detector.Bundle{
		{Faces: []detector.Face{}},
		{Faces: []detector.Face{{Embedding: []float32{1}}}},
	}}
	uc := NewStudentUseCase(&stubIdentityStore{}, det, zap.NewNop())

	summary, err := uc.Register(context.Background(), "Alice", "S1", "", [][]byte{{1}, {2}})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if summary.EmbeddingsUsed != 1 {
		t.Fatalf("expected 1 embedding used, got %d", summary.EmbeddingsUsed)
	}
}

func TestDeleteResolvesStudentIDFirst(t *testing.T) {
	store := &stubIdentityStore{
		byStudentID: map[string]string{"S1": "Alice"},
		infos:       map[string]facestore.StudentInfo{"Alice": {Name: "Alice", StudentID: "S1"}},
	}
	uc := NewStudentUseCase(store, &stubDetector{}, zap.NewNop())

	name, _, err := uc.Delete("S1")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if name != "Alice" {
		t.Fatalf("expected delete to resolve to Alice, got %q", name)
	}
}

func TestDeleteMissingStudent(t *testing.T) {
	uc := NewStudentUseCase(&stubIdentityStore{}, &stubDetector{}, zap.NewNop())

	_, _, err := uc.Delete("ghost")
	if !errors.Is(err, ErrStudentNotFound) {
		t.Fatalf("expected ErrStudentNotFound, got %v", err)
	}
}

func TestGetByNameFallsBackWhenNotAStudentID(t *testing.T) {
	store := &stubIdentityStore{
		infos: map[string]facestore.StudentInfo{"Alice": {Name: "Alice", StudentID: "S1", Email: "alice@example.com"}},
	}
	uc := NewStudentUseCase(store, &stubDetector{}, zap.NewNop())

	info, err := uc.Get("Alice")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if info.Email != "alice@example.com" {
		t.Fatalf("unexpected info: %+v", info)
	}
}
