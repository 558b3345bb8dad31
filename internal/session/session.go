// Package session orchestrates gated captures: a single immediate capture
// for login and a timed multi-sample sequence for registration.
//
// Both flows consult the current readiness verdict at trigger time and
// never capture or reach the network while it is not ready.
package session

import (
	"context"
	"errors"

	"github.com/ayusman/facegate/internal/gateway"
	"github.com/ayusman/facegate/internal/policy"
)

var (
	// ErrBusy is returned when an operation is already in progress.
	ErrBusy = errors.New("session busy")

	// ErrCaptureFailed is returned when no still frame could be obtained.
	ErrCaptureFailed = errors.New("capture failed")

	// ErrIncomplete is returned when submitting fewer samples than required.
	ErrIncomplete = errors.New("not all samples captured")

	// ErrAlreadyCapturing is returned by a trigger while a sequence is
	// running. The session is left unchanged.
	ErrAlreadyCapturing = errors.New("capture sequence already running")

	// ErrInvalidState is returned for an operation not allowed in the
	// current state.
	ErrInvalidState = errors.New("operation not allowed in current state")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session closed")
)

// GateError reports a trigger rejected by the readiness gate.
type GateError struct {
	Verdict policy.Verdict
}

func (e *GateError) Error() string { return e.Verdict.Message() }

// Readiness exposes the current gating decision.
type Readiness interface {
	Verdict() policy.Verdict
	ObservedConfidence() float64
}

// Capturer produces one encoded still frame.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

// LoginGateway submits a login still.
type LoginGateway interface {
	SubmitLogin(ctx context.Context, image []byte) (*gateway.LoginResult, error)
}

// RegistrationGateway submits registration samples.
type RegistrationGateway interface {
	SubmitRegistration(ctx context.Context, images [][]byte, p gateway.Profile) (*gateway.RegistrationResult, error)
}

// Attempt kinds and results reported through Outcome.
const (
	KindLogin    = "login"
	KindRegister = "register"

	ResultGated         = "gated"
	ResultCaptureFailed = "capture_failed"
	ResultRejected      = "rejected"
	ResultError         = "error"
	ResultSuccess       = "success"
)

// Outcome summarizes a finished attempt for auditing. It never carries
// image data.
type Outcome struct {
	Kind     string
	Result   string
	Reason   policy.Reason
	Message  string
	UserName string
	Samples  int
}

// failureResult distinguishes a service rejection from a failure to reach
// the service.
func failureResult(err error) string {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) && gwErr.Status > 0 && gwErr.Err == nil {
		return ResultRejected
	}
	return ResultError
}

func emit(fn func(Outcome), o Outcome) {
	if fn != nil {
		fn(o)
	}
}

// detach keeps ctx values but not its cancellation, so that work started by
// a request can outlive it.
func detach(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
