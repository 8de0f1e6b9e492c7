package objectstore

import (
	"testing"
	"time"
)

func TestObjectKeyLayout(t *testing.T) {
	detectedAt := time.Date(2025, 6, 1, 9, 30, 15, 123456000, time.UTC)

	key := objectKey("violations", 7, 42, 1001, "Multiple faces in frame", detectedAt)
	want := "violations/exam_7/submission_42/user_1001/multiple_faces_in_frame_20250601_093015_123456.jpg"
	if key != want {
		t.Fatalf("expected %q, got %q", want, key)
	}
}

func TestSlugStripsUnsafeCharacters(t *testing.T) {
	if got := slug("Suspicious object: phone!"); got != "suspicious_object_phone" {
		t.Fatalf("unexpected slug %q", got)
	}
}

func TestObjectURLPrefersPublicURL(t *testing.T) {
	s := &MinioStore{endpoint: "s3.example.com", bucket: "exams", publicURL: "https://cdn.example.com", useSSL: true}
	if got := s.objectURL("violations/a.jpg"); got != "https://cdn.example.com/violations/a.jpg" {
		t.Fatalf("unexpected url %q", got)
	}

	s.publicURL = ""
	if got := s.objectURL("violations/a.jpg"); got != "https://s3.example.com/exams/violations/a.jpg" {
		t.Fatalf("unexpected url %q", got)
	}
}
