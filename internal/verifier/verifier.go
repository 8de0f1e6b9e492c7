// Package verifier matches detected faces against the registered face store
// and decides whether a frame verifies a student's identity.
package verifier

import (
	"fmt"

	"github.com/example/exam-proctor/internal/detector"
	"github.com/example/exam-proctor/internal/facestore"
)

// DefaultThreshold is the minimum cosine similarity for a positive match when
// the caller supplies none.
const DefaultThreshold = 0.5

// Status is the terminal outcome of one verification call.
type Status string

// Verification outcomes, in evaluation precedence order. Exactly one applies
// per call.
const (
	StatusVerified             Status = "VERIFIED"
	StatusStudentNotRegistered Status = "STUDENT_NOT_REGISTERED"
	StatusNoProfileEmbedding   Status = "NO_PROFILE_EMBEDDING"
	StatusNoFaceDetected       Status = "NO_FACE_DETECTED"
	StatusMultipleFaces        Status = "MULTIPLE_FACES"
	StatusExtractionFailed     Status = "EMBEDDING_EXTRACTION_FAILED"
	StatusFaceMismatch         Status = "FACE_MISMATCH"
	StatusBelowThreshold       Status = "BELOW_THRESHOLD"
)

// Outcome reports a verification decision. Confidence is 0.0 whenever no
// similarity was computed.
type Outcome struct {
	Verified     bool    `json:"verified"`
	Status       Status  `json:"status"`
	StudentID    string  `json:"student_id"`
	Name         string  `json:"name,omitempty"`
	MatchedName  string  `json:"matched_name,omitempty"`
	Confidence   float64 `json:"confidence"`
	Threshold    float64 `json:"threshold"`
	Reason       string  `json:"message"`
	FaceDetected bool    `json:"face_detected"`
	FaceCount    int     `json:"face_count"`
}

// Store is the read-only view of the face store the verifier needs. The
// verifier never mutates it.
type Store interface {
	FindByStudentID(studentID string) (string, bool)
	Embedding(name string) ([]float32, bool)
	Identify(query []float32) (string, float64)
}

// Verifier checks query faces against registered identities.
type Verifier struct {
	store     Store
	threshold float64
}

// New builds a verifier. A non-positive threshold selects DefaultThreshold.
func New(store Store, threshold float64) *Verifier {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Verifier{store: store, threshold: threshold}
}

// Threshold returns the configured default match threshold.
func (v *Verifier) Threshold() float64 {
	return v.threshold
}

// Verify decides whether the faces in a frame verify the given student.
// A non-positive threshold selects the verifier's configured default.
func (v *Verifier) Verify(studentID string, faces []detector.Face, threshold float64) Outcome {
	if threshold <= 0 {
		threshold = v.threshold
	}
	out := Outcome{StudentID: studentID, Threshold: threshold}

	name, ok := v.store.FindByStudentID(studentID)
	if !ok {
		out.Status = StatusStudentNotRegistered
		out.Reason = fmt.Sprintf("student ID %q is not registered", studentID)
		return out
	}
	out.Name = name

	if embedding, ok := v.store.Embedding(name); !ok || len(embedding) == 0 {
		out.Status = StatusNoProfileEmbedding
		out.Reason = fmt.Sprintf("student %q found but no face profile is stored", name)
		return out
	}

	out.FaceCount = len(faces)
	if len(faces) == 0 {
		out.Status = StatusNoFaceDetected
		out.Reason = "no face detected in the supplied frame"
		return out
	}
	out.FaceDetected = true

	if len(faces) > 1 {
		out.Status = StatusMultipleFaces
		out.Reason = fmt.Sprintf("%d faces detected; verification requires exactly one", len(faces))
		return out
	}

	query := faces[0].Embedding
	if len(query) == 0 {
		out.Status = StatusExtractionFailed
		out.Reason = "could not extract an embedding from the detected face"
		return out
	}

	matched, score := v.store.Identify(query)
	out.MatchedName = matched
	out.Confidence = score

	switch {
	case matched == name && score >= threshold:
		out.Verified = true
		out.Status = StatusVerified
		out.Reason = fmt.Sprintf("identity verified: %s", name)
	case matched != name:
		out.Status = StatusFaceMismatch
		out.Reason = fmt.Sprintf("face matches %q instead of %q", matched, name)
	default:
		out.Status = StatusBelowThreshold
		out.Reason = fmt.Sprintf("similarity %.3f below threshold %.3f", score, threshold)
	}
	return out
}

// LabelFaces runs store identification over each face in a bundle and fills
// in Label, RawLabel, and Confidence. Matches below the verifier threshold
// are labeled Unknown; faces without an embedding are labeled Unknown with
// zero confidence.
func (v *Verifier) LabelFaces(faces []detector.Face) []detector.Face {
	labeled := make([]detector.Face, len(faces))
	for i, face := range faces {
		if len(face.Embedding) == 0 {
			face.Label = facestore.UnknownLabel
			face.RawLabel = facestore.UnknownLabel
			face.Confidence = 0.0
			labeled[i] = face
			continue
		}
		raw, score := v.store.Identify(face.Embedding)
		face.RawLabel = raw
		face.Confidence = score
		if score < v.threshold {
			face.Label = facestore.UnknownLabel
		} else {
			face.Label = raw
		}
		labeled[i] = face
	}
	return labeled
}
