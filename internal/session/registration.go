package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/facegate/internal/clock"
	"github.com/ayusman/facegate/internal/face"
	"github.com/ayusman/facegate/internal/gateway"
)

// State is the registration flow state.
type State string

const (
	StateSetup     State = "setup"
	StateCapturing State = "capturing"
	StateReview    State = "review"
	StateComplete  State = "complete"
)

// Registration sequence defaults.
const (
	DefaultRequired          = 3
	DefaultCountdownFrom     = 3
	DefaultCountdownTick     = time.Second
	DefaultInterCaptureDelay = 2000 * time.Millisecond
)

// User-facing messages.
const (
	msgCaptureFailed = "Capture failed. Please make sure the camera is working and start again."
	msgReview        = "All photos captured. Review and submit."
	msgSubmitting    = "Submitting registration..."
	msgComplete      = "Registration successful."
)

// Snapshot is a copy of the registration state.
type Snapshot struct {
	Version   uint64                      `json:"version"`
	State     State                       `json:"state"`
	Countdown int                         `json:"countdown"`
	Samples   []face.Sample               `json:"samples"`
	Required  int                         `json:"required"`
	Message   string                      `json:"message,omitempty"`
	Result    *gateway.RegistrationResult `json:"result,omitempty"`
}

// RegistrationConfig wires a Registration. Zero durations and counts take
// the defaults.
type RegistrationConfig struct {
	Readiness Readiness
	Capturer  Capturer
	Gateway   RegistrationGateway
	Clock     clock.Clock
	Logger    *slog.Logger

	Required          int
	CountdownFrom     int
	CountdownTick     time.Duration
	InterCaptureDelay time.Duration

	// OnUpdate receives a snapshot after every state change. It is called
	// without internal locks held.
	OnUpdate  func(Snapshot)
	OnOutcome func(Outcome)
}

// Registration runs one registration attempt: Setup, a timed capture
// sequence, Review and submission.
type Registration struct {
	cfg    RegistrationConfig
	logger *slog.Logger

	mu         sync.Mutex
	version    uint64
	state      State
	countdown  int
	samples    []face.Sample
	message    string
	profile    gateway.Profile
	result     *gateway.RegistrationResult
	seq        uint64
	cancel     context.CancelFunc
	submitting bool
	submitStop context.CancelFunc
	closed     bool

	wg sync.WaitGroup
}

// NewRegistration creates a registration in Setup.
func NewRegistration(cfg RegistrationConfig) *Registration {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Required <= 0 {
		cfg.Required = DefaultRequired
	}
	if cfg.CountdownFrom <= 0 {
		cfg.CountdownFrom = DefaultCountdownFrom
	}
	if cfg.CountdownTick <= 0 {
		cfg.CountdownTick = DefaultCountdownTick
	}
	if cfg.InterCaptureDelay <= 0 {
		cfg.InterCaptureDelay = DefaultInterCaptureDelay
	}
	return &Registration{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "registration"),
		state:  StateSetup,
	}
}

// Snapshot returns a copy of the current state.
func (r *Registration) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registration) snapshotLocked() Snapshot {
	samples := make([]face.Sample, len(r.samples))
	copy(samples, r.samples)
	return Snapshot{
		Version:   r.version,
		State:     r.state,
		Countdown: r.countdown,
		Samples:   samples,
		Required:  r.cfg.Required,
		Message:   r.message,
		Result:    r.result,
	}
}

// changedLocked bumps the version and returns the snapshot to publish.
func (r *Registration) changedLocked() Snapshot {
	r.version++
	return r.snapshotLocked()
}

func (r *Registration) notify(s Snapshot) {
	if r.cfg.OnUpdate != nil {
		r.cfg.OnUpdate(s)
	}
}

// Start validates the profile, checks the gate and launches the capture
// sequence. It returns once the sequence is running; progress is reported
// through Snapshot and OnUpdate. A trigger while capturing returns
// ErrAlreadyCapturing and changes nothing.
func (r *Registration) Start(ctx context.Context, p gateway.Profile) error {
	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return ErrClosed
	case r.state == StateCapturing:
		r.mu.Unlock()
		return ErrAlreadyCapturing
	case r.state != StateSetup:
		r.mu.Unlock()
		return fmt.Errorf("%w: start in %s", ErrInvalidState, r.state)
	}

	if err := p.Validate(); err != nil {
		r.mu.Unlock()
		return err
	}

	if v := r.cfg.Readiness.Verdict(); !v.Ready {
		r.message = v.Message()
		snap := r.changedLocked()
		r.mu.Unlock()
		r.notify(snap)
		emit(r.cfg.OnOutcome, Outcome{Kind: KindRegister, Result: ResultGated, Reason: v.Reason, Message: v.Message()})
		return &GateError{Verdict: v}
	}

	seqCtx, cancel := context.WithCancel(detach(ctx))
	r.seq++
	r.cancel = cancel
	r.state = StateCapturing
	r.countdown = r.cfg.CountdownFrom
	r.samples = nil
	r.message = ""
	r.result = nil
	r.profile = p.Normalize()
	seq := r.seq
	snap := r.changedLocked()

	r.wg.Add(1)
	r.mu.Unlock()

	r.notify(snap)
	go r.run(seqCtx, seq)
	r.logger.Info("capture sequence started", "required", r.cfg.Required)
	return nil
}

// run executes the capture sequence. Every state change goes through
// update, which refuses to act once the sequence has been superseded,
// cancelled or the session closed.
func (r *Registration) run(ctx context.Context, seq uint64) {
	defer r.wg.Done()

	for step := 1; step <= r.cfg.Required; step++ {
		for n := r.cfg.CountdownFrom; n >= 1; n-- {
			if !r.update(seq, func() { r.countdown = n }) {
				return
			}
			if !r.sleep(ctx, r.cfg.CountdownTick) {
				return
			}
		}
		if !r.update(seq, func() { r.countdown = 0 }) {
			return
		}

		img, err := r.cfg.Capturer.Capture(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			r.abort(seq, step, err)
			return
		}

		sample := face.Sample{
			SequenceIndex: step,
			Image:         img,
			CapturedAt:    r.cfg.Clock.Now().UnixMilli(),
			Confidence:    r.cfg.Readiness.ObservedConfidence(),
		}
		if !r.update(seq, func() { r.samples = append(r.samples, sample) }) {
			return
		}
		r.logger.Debug("sample captured", "index", step, "confidence", sample.Confidence)

		if step < r.cfg.Required {
			if !r.sleep(ctx, r.cfg.InterCaptureDelay) {
				return
			}
		}
	}

	if r.update(seq, func() {
		r.state = StateReview
		r.message = msgReview
	}) {
		r.logger.Info("capture sequence complete", "samples", r.cfg.Required)
	}
}

// update applies fn if sequence seq is still the live one.
func (r *Registration) update(seq uint64, fn func()) bool {
	r.mu.Lock()
	if r.closed || r.seq != seq || r.state != StateCapturing {
		r.mu.Unlock()
		return false
	}
	fn()
	snap := r.changedLocked()
	r.mu.Unlock()

	r.notify(snap)
	return true
}

// sleep waits d on the session clock, returning false if cancelled first.
func (r *Registration) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-r.cfg.Clock.After(d):
		return ctx.Err() == nil
	case <-ctx.Done():
		return false
	}
}

func (r *Registration) abort(seq uint64, step int, err error) {
	aborted := r.update(seq, func() {
		r.samples = nil
		r.state = StateSetup
		r.countdown = 0
		r.message = msgCaptureFailed
	})
	if !aborted {
		return
	}
	r.logger.Warn("capture sequence aborted", "step", step, "error", err)
	emit(r.cfg.OnOutcome, Outcome{Kind: KindRegister, Result: ResultCaptureFailed, Message: msgCaptureFailed, Samples: step - 1})
}

// Retake discards all samples and returns to Setup, cancelling a running
// sequence. It is not allowed once submission has started or completed.
func (r *Registration) Retake() error {
	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return ErrClosed
	case r.submitting:
		r.mu.Unlock()
		return ErrBusy
	case r.state == StateComplete:
		r.mu.Unlock()
		return fmt.Errorf("%w: retake after completion", ErrInvalidState)
	}

	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.seq++
	r.state = StateSetup
	r.countdown = 0
	r.samples = nil
	r.message = ""
	snap := r.changedLocked()
	r.mu.Unlock()

	r.notify(snap)
	return nil
}

// Submit sends the captured samples. It is allowed only in Review with all
// samples present. On success the session completes and releases the
// samples; on failure it stays in Review with the samples intact.
func (r *Registration) Submit(ctx context.Context) (*gateway.RegistrationResult, error) {
	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return nil, ErrClosed
	case r.submitting:
		r.mu.Unlock()
		return nil, ErrBusy
	case r.state != StateReview:
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: submit in %s", ErrInvalidState, r.state)
	case len(r.samples) != r.cfg.Required:
		r.mu.Unlock()
		return nil, ErrIncomplete
	}

	images := make([][]byte, len(r.samples))
	for i, s := range r.samples {
		images[i] = s.Image
	}
	profile := r.profile
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.submitting = true
	r.submitStop = cancel
	r.message = msgSubmitting
	snap := r.changedLocked()
	r.mu.Unlock()
	r.notify(snap)

	res, err := r.cfg.Gateway.SubmitRegistration(ctx, images, profile)

	r.mu.Lock()
	r.submitting = false
	r.submitStop = nil
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}

	if err != nil {
		r.message = gateway.UserMessage(err)
		snap = r.changedLocked()
		r.mu.Unlock()
		r.notify(snap)
		emit(r.cfg.OnOutcome, Outcome{
			Kind:     KindRegister,
			Result:   failureResult(err),
			Message:  gateway.UserMessage(err),
			UserName: profile.Name,
			Samples:  len(images),
		})
		return nil, err
	}

	r.state = StateComplete
	r.samples = nil
	r.result = res
	r.message = msgComplete
	snap = r.changedLocked()
	r.mu.Unlock()
	r.notify(snap)

	emit(r.cfg.OnOutcome, Outcome{Kind: KindRegister, Result: ResultSuccess, UserName: res.Name, Samples: len(images)})
	return res, nil
}

// Close tears the session down: it cancels any running sequence or
// submission and waits for the sequence goroutine to exit. No state
// changes or captures happen after Close returns.
func (r *Registration) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.seq++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if r.submitStop != nil {
		r.submitStop()
	}
	r.samples = nil
	r.mu.Unlock()

	r.wg.Wait()
}
