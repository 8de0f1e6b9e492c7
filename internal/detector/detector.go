// Package detector defines the per-frame signal bundle produced by the
// external vision service and the client used to obtain it.
package detector

import (
	"context"
	"errors"
)

// StatusClear is the bundle status when the frame shows no violation signal.
const StatusClear = "clear"

// ErrUnavailable indicates the detector could not produce a usable signal
// bundle for the frame.
var ErrUnavailable = errors.New("detector unavailable")

// Pose holds head orientation angles in degrees.
type Pose struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
	Roll  float64 `json:"roll"`
}

// Face is one detected face. Label carries the recognized identity after
// matching against the face store ("Unknown" when below threshold), RawLabel
// the best match regardless of threshold. Embedding may be absent when the
// detector found a face region but could not derive a vector from it.
type Face struct {
	Label      string    `json:"label"`
	RawLabel   string    `json:"raw_label"`
	Confidence float64   `json:"confidence"`
	Pose       *Pose     `json:"pose,omitempty"`
	BBox       []float64 `json:"bbox,omitempty"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// Object is one detected suspicious object.
type Object struct {
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox,omitempty"`
}

// Bundle is the structured detection output for a single frame.
type Bundle struct {
	Status  string   `json:"status"`
	Faces   []Face   `json:"faces"`
	Objects []Object `json:"objects"`
	Flags   []string `json:"flags"`
}

// Client exposes the subset of detector functionality used by the monitoring
// and verification flows.
type Client interface {
	Analyze(ctx context.Context, image []byte) (*Bundle, error)
}
