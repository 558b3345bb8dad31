package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ayusman/facegate/internal/gateway"
)

// LoginState is the login flow state.
type LoginState string

const (
	LoginIdle       LoginState = "idle"
	LoginCapturing  LoginState = "capturing"
	LoginSubmitting LoginState = "submitting"
)

// LoginConfig wires a Login.
type LoginConfig struct {
	Readiness Readiness
	Capturer  Capturer
	Gateway   LoginGateway
	Logger    *slog.Logger
	OnOutcome func(Outcome)
}

// Login runs gated single-capture login attempts.
type Login struct {
	cfg    LoginConfig
	logger *slog.Logger

	mu     sync.Mutex
	state  LoginState
	closed bool
	cancel context.CancelFunc
}

// NewLogin creates an idle login flow.
func NewLogin(cfg LoginConfig) *Login {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Login{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "login"),
		state:  LoginIdle,
	}
}

// State returns the current state.
func (l *Login) State() LoginState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Attempt checks the gate, captures one still and submits it. A gated
// attempt returns a *GateError without capturing or calling the gateway.
// Whatever happens, the flow returns to idle.
func (l *Login) Attempt(ctx context.Context) (*gateway.LoginResult, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, ErrClosed
	}
	if l.state != LoginIdle {
		l.mu.Unlock()
		return nil, ErrBusy
	}
	v := l.cfg.Readiness.Verdict()
	if !v.Ready {
		l.mu.Unlock()
		emit(l.cfg.OnOutcome, Outcome{Kind: KindLogin, Result: ResultGated, Reason: v.Reason, Message: v.Message()})
		return nil, &GateError{Verdict: v}
	}
	ctx, cancel := context.WithCancel(ctx)
	l.state = LoginCapturing
	l.cancel = cancel
	l.mu.Unlock()

	defer func() {
		cancel()
		l.mu.Lock()
		if !l.closed {
			l.state = LoginIdle
		}
		l.cancel = nil
		l.mu.Unlock()
	}()

	img, err := l.cfg.Capturer.Capture(ctx)
	if err != nil {
		if !l.alive() {
			return nil, ErrClosed
		}
		l.logger.Warn("login capture failed", "error", err)
		emit(l.cfg.OnOutcome, Outcome{Kind: KindLogin, Result: ResultCaptureFailed, Message: err.Error()})
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	if !l.transition(LoginSubmitting) {
		return nil, ErrClosed
	}

	res, err := l.cfg.Gateway.SubmitLogin(ctx, img)
	if !l.alive() {
		return nil, ErrClosed
	}
	if err != nil {
		emit(l.cfg.OnOutcome, Outcome{Kind: KindLogin, Result: failureResult(err), Message: gateway.UserMessage(err), Samples: 1})
		return nil, err
	}

	emit(l.cfg.OnOutcome, Outcome{Kind: KindLogin, Result: ResultSuccess, UserName: res.Name, Samples: 1})
	return res, nil
}

func (l *Login) alive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.closed
}

func (l *Login) transition(s LoginState) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.state = s
	return true
}

// Close aborts any in-flight attempt. Further attempts fail with ErrClosed.
func (l *Login) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	if l.cancel != nil {
		l.cancel()
	}
}
