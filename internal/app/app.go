// Package app wires the kiosk together: the camera feed, face detection,
// the readiness loop, the overlay and the login and registration sessions.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/facegate/internal/capture"
	"github.com/ayusman/facegate/internal/clock"
	"github.com/ayusman/facegate/internal/detector"
	"github.com/ayusman/facegate/internal/detector/dnn"
	"github.com/ayusman/facegate/internal/face"
	"github.com/ayusman/facegate/internal/gateway"
	"github.com/ayusman/facegate/internal/hook"
	"github.com/ayusman/facegate/internal/loop"
	"github.com/ayusman/facegate/internal/overlay"
	"github.com/ayusman/facegate/internal/policy"
	"github.com/ayusman/facegate/internal/session"
	"github.com/ayusman/facegate/internal/store"
)

// Default display size of the overlay canvas.
const (
	DefaultDisplayWidth  = 640
	DefaultDisplayHeight = 480
)

// Gateway is the remote service the kiosk submits to.
type Gateway interface {
	session.LoginGateway
	session.RegistrationGateway
	Logout(userID, name string) <-chan error
}

// Notifier is told about every finished attempt. Notify must not block.
type Notifier interface {
	Notify(a hook.Attempt)
}

// Config holds the application settings. Camera and Detector are built
// from the other fields when nil; stills are JPEG-encoded with OpenCV
// unless Encoder is set.
type Config struct {
	Camera   capture.Camera
	CameraID int
	Width    int
	Height   int

	Detector detector.Detector
	DNN      dnn.Config

	Encoder capture.Encoder
	Gateway Gateway
	Store   *store.Store
	Hooks   Notifier

	DisplayWidth  int
	DisplayHeight int
	Interval      time.Duration
	Registration  RegistrationTiming

	Clock  clock.Clock
	Logger *slog.Logger
}

// RegistrationTiming overrides the registration sequence defaults.
type RegistrationTiming struct {
	Required          int
	CountdownFrom     int
	CountdownTick     time.Duration
	InterCaptureDelay time.Duration
}

// App is the kiosk application.
type App struct {
	config   Config
	logger   *slog.Logger
	feed     *capture.Feed
	source   *detector.Source
	primary  detector.Detector
	loop     *loop.Loop
	capturer session.Capturer
	login    *session.Login
	events   *hub

	renderer *overlay.Renderer
	canvasMu sync.Mutex
	canvas   *overlay.Canvas

	mu       sync.RWMutex
	reg      *session.Registration
	enabled  bool
	started  bool
	unsubFns []func()
}

// New creates an App. Nothing runs until Start.
func New(config Config) (*App, error) {
	if config.Gateway == nil {
		return nil, errors.New("app: gateway is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.DisplayWidth <= 0 {
		config.DisplayWidth = DefaultDisplayWidth
	}
	if config.DisplayHeight <= 0 {
		config.DisplayHeight = DefaultDisplayHeight
	}
	if config.Camera == nil {
		config.Camera = capture.NewCameraWithSize(config.CameraID, config.Width, config.Height)
	}
	if config.Detector == nil {
		dnnCfg := config.DNN
		if dnnCfg.Logger == nil {
			dnnCfg.Logger = config.Logger
		}
		config.Detector = dnn.New(dnnCfg)
	}

	a := &App{
		config:   config,
		logger:   config.Logger.With("component", "app"),
		primary:  config.Detector,
		events:   newHub(),
		renderer: overlay.NewRenderer(overlay.DefaultStyle()),
		canvas:   overlay.NewCanvas(config.DisplayWidth, config.DisplayHeight),
		enabled:  true,
	}

	a.feed = capture.NewFeed(config.Camera, capture.FeedConfig{Clock: config.Clock, Logger: config.Logger})
	a.source = detector.NewSource(config.Detector, detector.Fallback{}, config.Logger)
	a.loop = loop.New(a.feed, a.source, loop.Config{
		Interval: config.Interval,
		Clock:    config.Clock,
		Logger:   config.Logger,
	})

	if config.Encoder == nil {
		config.Encoder = capture.EncodeJPEG
	}
	a.capturer = capture.NewSnapshotterWithEncoder(a.feed, config.Encoder)

	a.login = session.NewLogin(session.LoginConfig{
		Readiness: a.loop,
		Capturer:  a.capturer,
		Gateway:   config.Gateway,
		Logger:    config.Logger,
		OnOutcome: a.recordOutcome,
	})
	a.reg = a.newRegistration()

	return a, nil
}

func (a *App) newRegistration() *session.Registration {
	t := a.config.Registration
	return session.NewRegistration(session.RegistrationConfig{
		Readiness:         a.loop,
		Capturer:          a.capturer,
		Gateway:           a.config.Gateway,
		Clock:             a.config.Clock,
		Logger:            a.config.Logger,
		Required:          t.Required,
		CountdownFrom:     t.CountdownFrom,
		CountdownTick:     t.CountdownTick,
		InterCaptureDelay: t.InterCaptureDelay,
		OnUpdate:          a.publishRegistration,
		OnOutcome:         a.recordOutcome,
	})
}

// Start opens the camera and, when enabled, starts detection.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return nil
	}
	if err := a.feed.Start(); err != nil {
		return fmt.Errorf("start video: %w", err)
	}
	a.unsubFns = append(a.unsubFns, a.loop.Subscribe(a.publishDetection))
	if a.enabled {
		a.loop.Start()
	}
	a.started = true

	a.logger.Info("kiosk started", "detection", a.enabled)
	return nil
}

// Stop tears everything down: detection stops, sessions are closed and
// the camera and detector are released. The App cannot be restarted.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.loop.Stop()
	for _, fn := range a.unsubFns {
		fn()
	}
	a.unsubFns = nil

	a.login.Close()
	a.reg.Close()

	if err := a.feed.Stop(); err != nil {
		a.logger.Warn("error closing camera", "error", err)
	}
	if err := a.source.Close(); err != nil {
		a.logger.Warn("error closing detector", "error", err)
	}
	a.events.close()
	a.started = false

	a.logger.Info("kiosk stopped")
}

// SetEnabled starts or stops detection. While disabled the verdict is
// device-not-ready and every capture is refused.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.enabled == enabled {
		return
	}
	a.enabled = enabled
	if a.started {
		if enabled {
			a.loop.Start()
		} else {
			a.loop.Stop()
		}
	}
	a.logger.Info("detection toggled", "enabled", enabled)
	a.events.publish(Event{Type: EventEnabled, Data: enabled})
}

// IsEnabled reports whether detection is enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Verdict returns the current readiness verdict.
func (a *App) Verdict() policy.Verdict {
	return a.loop.Verdict()
}

// Latest returns the most recent detection update.
func (a *App) Latest() loop.Update {
	return a.loop.Latest()
}

// Login runs one gated login attempt.
func (a *App) Login(ctx context.Context) (*gateway.LoginResult, error) {
	return a.login.Attempt(ctx)
}

// Logout records a logout with the service and the audit log. It does not
// wait for the service.
func (a *App) Logout(userID, name string) {
	done := a.config.Gateway.Logout(userID, name)
	go func() {
		result := session.ResultSuccess
		msg := ""
		if err := <-done; err != nil {
			result = session.ResultError
			msg = gateway.UserMessage(err)
		}
		a.recordAttempt(&store.Attempt{Kind: store.KindLogout, Outcome: result, Message: msg, UserName: name})
	}()
}

// Registration returns the current registration session.
func (a *App) Registration() *session.Registration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.reg
}

// ResetRegistration discards the current registration session, cancelling
// any running sequence, and starts a fresh one in Setup.
func (a *App) ResetRegistration() session.Snapshot {
	a.mu.Lock()
	old := a.reg
	a.reg = a.newRegistration()
	fresh := a.reg
	a.mu.Unlock()

	old.Close()
	snap := fresh.Snapshot()
	a.publishRegistration(snap)
	return snap
}

// Annotate renders the overlay for the latest detections over frame.
func (a *App) Annotate(frame *face.Frame) *image.RGBA {
	u := a.loop.Latest()

	a.canvasMu.Lock()
	defer a.canvasMu.Unlock()

	a.renderer.Render(a.canvas, u.Set, u.Verdict(), overlay.Geometry{
		NativeWidth:   u.FrameWidth,
		NativeHeight:  u.FrameHeight,
		DisplayWidth:  a.config.DisplayWidth,
		DisplayHeight: a.config.DisplayHeight,
	})
	var img image.Image
	if frame != nil {
		img = frame.Image
	}
	return overlay.Compose(img, a.canvas.Image())
}

// Frames subscribes to raw video frames.
func (a *App) Frames(buffer int) (<-chan *face.Frame, func()) {
	return a.feed.Subscribe(buffer)
}

// Events subscribes to kiosk events.
func (a *App) Events(buffer int) (<-chan Event, func()) {
	return a.events.subscribe(buffer)
}

// Attempts lists audited attempts, newest first.
func (a *App) Attempts(limit int) ([]*store.Attempt, error) {
	if a.config.Store == nil {
		return nil, nil
	}
	return a.config.Store.Attempts().List(limit)
}
