package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/facegate/internal/gateway"
	"github.com/ayusman/facegate/internal/policy"
)

type fakeReadiness struct {
	mu      sync.Mutex
	verdict policy.Verdict
	conf    float64
}

func ready() *fakeReadiness {
	return &fakeReadiness{verdict: policy.Verdict{Ready: true, Reason: policy.ReasonOK}, conf: 0.93}
}

func notReady(r policy.Reason) *fakeReadiness {
	return &fakeReadiness{verdict: policy.Verdict{Reason: r}}
}

func (f *fakeReadiness) Verdict() policy.Verdict {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verdict
}

func (f *fakeReadiness) ObservedConfidence() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conf
}

func (f *fakeReadiness) set(v policy.Verdict) {
	f.mu.Lock()
	f.verdict = v
	f.mu.Unlock()
}

// fakeCapturer returns a distinct still per call. failOn makes the n-th
// call (1-based) fail; block makes every call wait for release.
type fakeCapturer struct {
	mu      sync.Mutex
	calls   int
	failOn  int
	block   chan struct{}
	started chan struct{}
}

func (f *fakeCapturer) Capture(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	n, failOn := f.calls, f.failOn
	block, started := f.block, f.started
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if n == failOn {
		return nil, errors.New("camera unplugged")
	}
	return []byte{0xFF, 0xD8, byte(n)}, nil
}

func (f *fakeCapturer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeLoginGateway struct {
	mu     sync.Mutex
	calls  int
	images [][]byte
	res    *gateway.LoginResult
	err    error
}

func (f *fakeLoginGateway) SubmitLogin(_ context.Context, image []byte) (*gateway.LoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.images = append(f.images, image)
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func (f *fakeLoginGateway) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRegistrationGateway struct {
	mu      sync.Mutex
	calls   int
	images  [][]byte
	profile gateway.Profile
	res     *gateway.RegistrationResult
	err     error
	block   chan struct{}
}

func (f *fakeRegistrationGateway) SubmitRegistration(ctx context.Context, images [][]byte, p gateway.Profile) (*gateway.RegistrationResult, error) {
	f.mu.Lock()
	f.calls++
	f.images = images
	f.profile = p
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, &gateway.Error{Message: gateway.GenericMessage, Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func (f *fakeRegistrationGateway) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (r *outcomeRecorder) record(o Outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
}

func (r *outcomeRecorder) all() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outcome(nil), r.outcomes...)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}
