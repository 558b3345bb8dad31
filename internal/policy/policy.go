// Package policy converts detection sets into capture readiness verdicts.
//
// The thresholds here are shared by the login and registration flows and
// are fixed policy, not runtime configuration.
package policy

import "github.com/ayusman/facegate/internal/face"

const (
	// ReadinessThreshold is the confidence a single face must exceed for
	// capture to proceed. A confidence equal to the threshold is not ready.
	ReadinessThreshold = 0.7

	// HighlightThreshold is the presentation-only threshold above which the
	// overlay draws a detection in the emphasis color. It never affects
	// readiness.
	HighlightThreshold = 0.8
)

// Reason explains a verdict.
type Reason string

const (
	ReasonOK             Reason = "ok"
	ReasonNoFace         Reason = "no-face"
	ReasonMultipleFaces  Reason = "multiple-faces"
	ReasonLowConfidence  Reason = "low-confidence"
	ReasonDeviceNotReady Reason = "device-not-ready"
)

// Verdict is the readiness decision for the current detection set.
type Verdict struct {
	Ready  bool   `json:"ready"`
	Reason Reason `json:"reason"`
}

// Message returns the user-facing text for the verdict.
func (v Verdict) Message() string {
	return Message(v.Reason)
}

// Evaluate applies the gating policy to a detection set. It is pure and
// deterministic.
func Evaluate(set face.Set) Verdict {
	switch {
	case len(set) == 0:
		return Verdict{Ready: false, Reason: ReasonNoFace}
	case len(set) > 1:
		// Single-subject capture only; several faces make the identity
		// binding ambiguous whatever their confidences are.
		return Verdict{Ready: false, Reason: ReasonMultipleFaces}
	case set[0].Confidence <= ReadinessThreshold:
		return Verdict{Ready: false, Reason: ReasonLowConfidence}
	default:
		return Verdict{Ready: true, Reason: ReasonOK}
	}
}

// DeviceNotReady is the verdict while the video source cannot supply frames.
func DeviceNotReady() Verdict {
	return Verdict{Ready: false, Reason: ReasonDeviceNotReady}
}

// IsHighlighted reports whether a confidence is drawn with emphasis.
func IsHighlighted(confidence float64) bool {
	return confidence > HighlightThreshold
}

// Message returns a distinct user-facing message for each reason.
func Message(r Reason) string {
	switch r {
	case ReasonOK:
		return "Face detected. Ready to capture."
	case ReasonNoFace:
		return "No face detected. Please position your face in front of the camera."
	case ReasonMultipleFaces:
		return "Multiple faces detected. Please make sure only one person is in view."
	case ReasonLowConfidence:
		return "Face not clear enough. Please face the camera in good lighting."
	case ReasonDeviceNotReady:
		return "Camera is not ready. Please wait for the video to start."
	default:
		return "Unknown detection state."
	}
}
