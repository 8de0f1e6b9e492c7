// Package classifier maps one frame's detection signals to a violation
// verdict. The rules form a fixed priority cascade: the first rule that fires
// wins and later rules are never evaluated.
package classifier

import (
	"math"
	"strings"

	"github.com/example/exam-proctor/internal/detector"
	"github.com/example/exam-proctor/internal/facestore"
)

// Severity is the ordinal violation weight.
type Severity string

// Severity levels, highest first.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Verdict is the classification outcome for one frame.
type Verdict struct {
	Type     string   `json:"violation_type"`
	Severity Severity `json:"severity"`
}

// A rule inspects the bundle and either produces a verdict or passes.
type rule struct {
	name  string
	apply func(b *detector.Bundle) (Verdict, bool)
}

var rules = []rule{
	{name: "multiple_faces", apply: func(b *detector.Bundle) (Verdict, bool) {
		if len(b.Faces) > 1 {
			return Verdict{Type: "Multiple faces in frame", Severity: SeverityCritical}, true
		}
		return Verdict{}, false
	}},
	{name: "no_face", apply: func(b *detector.Bundle) (Verdict, bool) {
		if len(b.Faces) == 0 {
			return Verdict{Type: "No face detected", Severity: SeverityCritical}, true
		}
		return Verdict{}, false
	}},
	{name: "unknown_person", apply: func(b *detector.Bundle) (Verdict, bool) {
		if len(b.Faces) > 0 && b.Faces[0].Label == facestore.UnknownLabel {
			return Verdict{Type: "Unrecognized person", Severity: SeverityCritical}, true
		}
		return Verdict{}, false
	}},
	{name: "suspicious_object", apply: func(b *detector.Bundle) (Verdict, bool) {
		if len(b.Objects) > 0 {
			return Verdict{Type: "Suspicious object detected", Severity: SeverityCritical}, true
		}
		return Verdict{}, false
	}},
	{name: "gaze", apply: classifyGaze},
	{name: "head_orientation", apply: classifyHeadOrientation},
}

// Classify runs the rule cascade over a non-clear signal bundle. When no rule
// fires the frame is still recorded as a generic violation.
func Classify(b *detector.Bundle) Verdict {
	for _, r := range rules {
		if verdict, ok := r.apply(b); ok {
			return verdict
		}
	}
	return Verdict{Type: "Other violation", Severity: SeverityMedium}
}

func classifyGaze(b *detector.Bundle) (Verdict, bool) {
	for _, flag := range b.Flags {
		lower := strings.ToLower(flag)
		if !strings.Contains(lower, "gaze") || strings.Contains(lower, "center") {
			continue
		}
		switch direction(lower) {
		case "up":
			return Verdict{Type: "Gaze directed up", Severity: SeverityMedium}, true
		case "down":
			return Verdict{Type: "Gaze directed down", Severity: SeverityMedium}, true
		case "left":
			return Verdict{Type: "Gaze directed left", Severity: SeverityMedium}, true
		case "right":
			return Verdict{Type: "Gaze directed right", Severity: SeverityMedium}, true
		}
		return Verdict{Type: "Gaze averted", Severity: SeverityMedium}, true
	}
	return Verdict{}, false
}

func classifyHeadOrientation(b *detector.Bundle) (Verdict, bool) {
	for _, flag := range b.Flags {
		lower := strings.ToLower(flag)
		if !strings.Contains(lower, "head orientation") {
			continue
		}
		switch direction(lower) {
		case "up":
			return Verdict{Type: "Head tilted up", Severity: SeverityMedium}, true
		case "down":
			return Verdict{Type: "Head tilted down", Severity: SeverityMedium}, true
		case "left":
			return Verdict{Type: "Head turned left", Severity: SeverityMedium}, true
		case "right":
			return Verdict{Type: "Head turned right", Severity: SeverityMedium}, true
		}
		return Verdict{Type: "Unusual head movement", Severity: SeverityMedium}, true
	}
	return Verdict{}, false
}

func direction(flag string) string {
	switch {
	case strings.Contains(flag, "looking up"):
		return "up"
	case strings.Contains(flag, "looking down"):
		return "down"
	case strings.Contains(flag, "looking left"):
		return "left"
	case strings.Contains(flag, "looking right"):
		return "right"
	}
	return ""
}

// Confidence is the arithmetic mean of every face and object confidence in
// the bundle, rounded to two decimals. 0.0 when no confidences are present.
func Confidence(b *detector.Bundle) float64 {
	var sum float64
	var n int
	for _, face := range b.Faces {
		sum += face.Confidence
		n++
	}
	for _, obj := range b.Objects {
		sum += obj.Confidence
		n++
	}
	if n == 0 {
		return 0.0
	}
	return math.Round(sum/float64(n)*100) / 100
}
