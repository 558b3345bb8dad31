package session

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/ayusman/facegate/internal/gateway"
	"github.com/ayusman/facegate/internal/policy"
)

func newTestLogin(r Readiness, c Capturer, g LoginGateway, rec *outcomeRecorder) *Login {
	cfg := LoginConfig{Readiness: r, Capturer: c, Gateway: g}
	if rec != nil {
		cfg.OnOutcome = rec.record
	}
	return NewLogin(cfg)
}

func TestLogin_ReadySubmitsOnce(t *testing.T) {
	cam := &fakeCapturer{}
	gw := &fakeLoginGateway{res: &gateway.LoginResult{User: gateway.User{UserID: "ab12cd34", Name: "Asha"}}}
	rec := &outcomeRecorder{}
	l := newTestLogin(ready(), cam, gw, rec)

	res, err := l.Attempt(context.Background())
	if err != nil {
		t.Fatalf("Attempt() error = %v", err)
	}
	if res.Name != "Asha" {
		t.Errorf("Name = %q, want Asha", res.Name)
	}
	if gw.Calls() != 1 {
		t.Errorf("SubmitLogin calls = %d, want 1", gw.Calls())
	}
	if cam.Calls() != 1 {
		t.Errorf("Capture calls = %d, want 1", cam.Calls())
	}
	if l.State() != LoginIdle {
		t.Errorf("State() = %q, want idle", l.State())
	}

	outs := rec.all()
	if len(outs) != 1 || outs[0].Result != ResultSuccess || outs[0].UserName != "Asha" {
		t.Errorf("outcomes = %+v", outs)
	}
}

func TestLogin_GatedNeverCapturesOrSubmits(t *testing.T) {
	reasons := []policy.Reason{
		policy.ReasonNoFace,
		policy.ReasonMultipleFaces,
		policy.ReasonLowConfidence,
		policy.ReasonDeviceNotReady,
	}

	for _, reason := range reasons {
		t.Run(string(reason), func(t *testing.T) {
			cam := &fakeCapturer{}
			gw := &fakeLoginGateway{}
			rec := &outcomeRecorder{}
			l := newTestLogin(notReady(reason), cam, gw, rec)

			_, err := l.Attempt(context.Background())

			var gateErr *GateError
			if !errors.As(err, &gateErr) {
				t.Fatalf("Attempt() error = %v, want *GateError", err)
			}
			if gateErr.Verdict.Reason != reason {
				t.Errorf("Reason = %q, want %q", gateErr.Verdict.Reason, reason)
			}
			if err.Error() != policy.Message(reason) {
				t.Errorf("Error() = %q, want %q", err.Error(), policy.Message(reason))
			}
			if cam.Calls() != 0 || gw.Calls() != 0 {
				t.Errorf("captures = %d, submits = %d, want 0 and 0", cam.Calls(), gw.Calls())
			}
			if outs := rec.all(); len(outs) != 1 || outs[0].Result != ResultGated {
				t.Errorf("outcomes = %+v", outs)
			}
		})
	}
}

func TestLogin_CaptureFailure(t *testing.T) {
	cam := &fakeCapturer{failOn: 1}
	gw := &fakeLoginGateway{}
	l := newTestLogin(ready(), cam, gw, nil)

	_, err := l.Attempt(context.Background())
	if !errors.Is(err, ErrCaptureFailed) {
		t.Fatalf("Attempt() error = %v, want ErrCaptureFailed", err)
	}
	if gw.Calls() != 0 {
		t.Errorf("SubmitLogin calls = %d, want 0", gw.Calls())
	}
	if l.State() != LoginIdle {
		t.Errorf("State() = %q, want idle", l.State())
	}
}

func TestLogin_ServiceRejection(t *testing.T) {
	gw := &fakeLoginGateway{err: &gateway.Error{Status: 200, Message: "Face not recognized."}}
	rec := &outcomeRecorder{}
	l := newTestLogin(ready(), &fakeCapturer{}, gw, rec)

	_, err := l.Attempt(context.Background())
	if err == nil {
		t.Fatal("Attempt() error = nil, want rejection")
	}
	if got := gateway.UserMessage(err); got != "Face not recognized." {
		t.Errorf("UserMessage = %q", got)
	}
	if outs := rec.all(); len(outs) != 1 || outs[0].Result != ResultRejected {
		t.Errorf("outcomes = %+v", outs)
	}
	if l.State() != LoginIdle {
		t.Errorf("State() = %q, want idle", l.State())
	}

	// A transport failure is reported as an error, not a rejection.
	gw.err = &gateway.Error{Message: gateway.GenericMessage, Err: errors.New("connection refused")}
	_, _ = l.Attempt(context.Background())
	if outs := rec.all(); len(outs) != 2 || outs[1].Result != ResultError {
		t.Errorf("outcomes = %+v", outs)
	}
}

func TestLogin_BusyWhileInFlight(t *testing.T) {
	cam := &fakeCapturer{block: make(chan struct{}), started: make(chan struct{}, 1)}
	gw := &fakeLoginGateway{res: &gateway.LoginResult{}}
	l := newTestLogin(ready(), cam, gw, nil)

	done := make(chan error, 1)
	go func() {
		_, err := l.Attempt(context.Background())
		done <- err
	}()
	<-cam.started

	if l.State() != LoginCapturing {
		t.Errorf("State() = %q, want capturing", l.State())
	}
	if _, err := l.Attempt(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("second Attempt() error = %v, want ErrBusy", err)
	}

	close(cam.block)
	if err := <-done; err != nil {
		t.Errorf("first Attempt() error = %v", err)
	}
	if gw.Calls() != 1 {
		t.Errorf("SubmitLogin calls = %d, want 1", gw.Calls())
	}
}

func TestLogin_CloseAbortsInFlight(t *testing.T) {
	cam := &fakeCapturer{block: make(chan struct{}), started: make(chan struct{}, 1)}
	gw := &fakeLoginGateway{res: &gateway.LoginResult{}}
	l := newTestLogin(ready(), cam, gw, nil)

	done := make(chan error, 1)
	go func() {
		_, err := l.Attempt(context.Background())
		done <- err
	}()
	<-cam.started

	l.Close()
	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Errorf("in-flight Attempt() error = %v, want ErrClosed", err)
	}
	if gw.Calls() != 0 {
		t.Errorf("SubmitLogin calls = %d, want 0", gw.Calls())
	}
	if _, err := l.Attempt(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Attempt() after Close error = %v, want ErrClosed", err)
	}
}

// Every capture must happen while the verdict is ready, whatever the
// sequence of verdicts.
func TestLogin_CapturesOnlyWhenReady(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	readiness := ready()
	cam := &fakeCapturer{}
	gw := &fakeLoginGateway{res: &gateway.LoginResult{}}
	l := newTestLogin(readiness, cam, gw, nil)

	wantCaptures := 0
	for i := 0; i < 200; i++ {
		var v policy.Verdict
		switch rng.Intn(4) {
		case 0:
			v = policy.Verdict{Ready: true, Reason: policy.ReasonOK}
			wantCaptures++
		case 1:
			v = policy.Verdict{Reason: policy.ReasonNoFace}
		case 2:
			v = policy.Verdict{Reason: policy.ReasonMultipleFaces}
		default:
			v = policy.DeviceNotReady()
		}
		readiness.set(v)
		_, _ = l.Attempt(context.Background())
	}

	if cam.Calls() != wantCaptures {
		t.Errorf("captures = %d, want %d", cam.Calls(), wantCaptures)
	}
	if gw.Calls() != wantCaptures {
		t.Errorf("submits = %d, want %d", gw.Calls(), wantCaptures)
	}
}
