package app

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/facegate/internal/capture"
	"github.com/ayusman/facegate/internal/detector"
	"github.com/ayusman/facegate/internal/gateway"
	"github.com/ayusman/facegate/internal/hook"
	"github.com/ayusman/facegate/internal/policy"
	"github.com/ayusman/facegate/internal/session"
	"github.com/ayusman/facegate/internal/store"
	"github.com/ayusman/facegate/testdata"
)

type fakeGateway struct {
	mu        sync.Mutex
	logins    int
	registers int
	logouts   []string
	loginErr  error
}

func (g *fakeGateway) SubmitLogin(context.Context, []byte) (*gateway.LoginResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.logins++
	if g.loginErr != nil {
		return nil, g.loginErr
	}
	return &gateway.LoginResult{User: gateway.User{UserID: "ab12cd34", Name: "Asha"}}, nil
}

func (g *fakeGateway) SubmitRegistration(_ context.Context, images [][]byte, p gateway.Profile) (*gateway.RegistrationResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.registers++
	return &gateway.RegistrationResult{UserID: "ab12cd34", Name: p.Name, TrainingPhotos: len(images)}, nil
}

func (g *fakeGateway) Logout(_, name string) <-chan error {
	g.mu.Lock()
	g.logouts = append(g.logouts, name)
	g.mu.Unlock()
	done := make(chan error, 1)
	done <- nil
	return done
}

func (g *fakeGateway) counts() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.logins, g.registers
}

func encodeStill(img image.Image) ([]byte, error) {
	return testdata.Encode(img), nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(a hook.Attempt) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, a.Event())
}

func (n *recordingNotifier) seen() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type harness struct {
	app   *App
	det   *detector.MockDetector
	gw    *fakeGateway
	store *store.Store
	hooks *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "kiosk.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cam := capture.NewMockCamera([]image.Image{testdata.Image(testdata.SubjectA, 640, 480, 0)}, true)
	cam.SetFPS(100)
	det := detector.NewMockDetector()
	gw := &fakeGateway{}
	hooks := &recordingNotifier{}

	a, err := New(Config{
		Camera:   cam,
		Detector: det,
		Gateway:  gw,
		Store:    st,
		Hooks:    hooks,
		Encoder:  encodeStill,
		Interval: 5 * time.Millisecond,
		Registration: RegistrationTiming{
			CountdownTick:     time.Millisecond,
			InterCaptureDelay: time.Millisecond,
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(a.Stop)

	return &harness{app: a, det: det, gw: gw, store: st, hooks: hooks}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func (h *harness) waitReason(t *testing.T, reason policy.Reason) {
	t.Helper()
	waitFor(t, func() bool { return h.app.Verdict().Reason == reason }, string(reason))
}

func TestNew_RequiresGateway(t *testing.T) {
	if _, err := New(Config{Camera: capture.NewMockCamera(nil, false), Detector: detector.NewMockDetector()}); err == nil {
		t.Error("New() without gateway should fail")
	}
}

func TestApp_LoginWhenReady(t *testing.T) {
	h := newHarness(t)
	h.det.SetDetections(detector.CenteredFace(640, 480, 0.95))
	h.waitReason(t, policy.ReasonOK)

	res, err := h.app.Login(context.Background())
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if res.Name != "Asha" {
		t.Errorf("Name = %q", res.Name)
	}
	if logins, _ := h.gw.counts(); logins != 1 {
		t.Errorf("gateway logins = %d, want 1", logins)
	}

	attempts, err := h.app.Attempts(10)
	if err != nil {
		t.Fatalf("Attempts() error = %v", err)
	}
	if len(attempts) != 1 || attempts[0].Outcome != session.ResultSuccess || attempts[0].Kind != store.KindLogin {
		t.Errorf("attempts = %+v", attempts)
	}
	if seen := h.hooks.seen(); len(seen) != 1 || seen[0] != "login.success" {
		t.Errorf("hook events = %v, want [login.success]", seen)
	}
}

func TestApp_LoginGatedByTwoFaces(t *testing.T) {
	h := newHarness(t)
	h.det.SetDetections(detector.TwoFaces(640, 480, 0.95))
	h.waitReason(t, policy.ReasonMultipleFaces)

	_, err := h.app.Login(context.Background())

	var gateErr *session.GateError
	if !errors.As(err, &gateErr) || gateErr.Verdict.Reason != policy.ReasonMultipleFaces {
		t.Fatalf("Login() error = %v, want multiple-faces gate", err)
	}
	if logins, _ := h.gw.counts(); logins != 0 {
		t.Errorf("gateway logins = %d, want 0", logins)
	}

	attempts, _ := h.app.Attempts(10)
	if len(attempts) != 1 || attempts[0].Outcome != session.ResultGated || attempts[0].Reason != string(policy.ReasonMultipleFaces) {
		t.Errorf("attempts = %+v", attempts)
	}
}

func TestApp_DisabledIsDeviceNotReady(t *testing.T) {
	h := newHarness(t)
	h.det.SetDetections(detector.CenteredFace(640, 480, 0.95))
	h.waitReason(t, policy.ReasonOK)

	h.app.SetEnabled(false)
	if h.app.IsEnabled() {
		t.Fatal("IsEnabled() = true after disable")
	}
	if v := h.app.Verdict(); v.Reason != policy.ReasonDeviceNotReady {
		t.Fatalf("Verdict() = %+v, want device-not-ready", v)
	}
	if _, err := h.app.Login(context.Background()); err == nil {
		t.Error("Login() succeeded while disabled")
	}

	h.app.SetEnabled(true)
	h.waitReason(t, policy.ReasonOK)
}

func TestApp_RegistrationFlow(t *testing.T) {
	h := newHarness(t)
	events, unsubscribe := h.app.Events(256)
	defer unsubscribe()

	h.det.SetDetections(detector.CenteredFace(640, 480, 0.9))
	h.waitReason(t, policy.ReasonOK)

	reg := h.app.Registration()
	if err := reg.Start(context.Background(), gateway.Profile{Name: "Asha", Email: "asha@example.com"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, func() bool { return reg.Snapshot().State == session.StateReview }, "review")

	res, err := reg.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.TrainingPhotos != session.DefaultRequired {
		t.Errorf("TrainingPhotos = %d", res.TrainingPhotos)
	}

	sawRegistration := false
	timeout := time.After(time.Second)
	for !sawRegistration {
		select {
		case e := <-events:
			sawRegistration = e.Type == EventRegistration
		case <-timeout:
			t.Fatal("no registration event received")
		}
	}

	counts, err := h.store.Attempts().CountByOutcome(store.KindRegister)
	if err != nil {
		t.Fatalf("CountByOutcome() error = %v", err)
	}
	if counts[session.ResultSuccess] != 1 {
		t.Errorf("register outcomes = %v", counts)
	}
}

func TestApp_ResetRegistration(t *testing.T) {
	h := newHarness(t)
	h.det.SetDetections(detector.CenteredFace(640, 480, 0.9))
	h.waitReason(t, policy.ReasonOK)

	old := h.app.Registration()
	if err := old.Start(context.Background(), gateway.Profile{Name: "Asha", Email: "asha@example.com"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	snap := h.app.ResetRegistration()
	if snap.State != session.StateSetup || len(snap.Samples) != 0 {
		t.Errorf("fresh snapshot = %+v", snap)
	}
	if h.app.Registration() == old {
		t.Error("ResetRegistration() kept the old session")
	}
	if err := old.Start(context.Background(), gateway.Profile{Name: "A", Email: "a@example.com"}); !errors.Is(err, session.ErrClosed) {
		t.Errorf("old session Start() error = %v, want ErrClosed", err)
	}
}

func TestApp_AnnotateAndStatus(t *testing.T) {
	h := newHarness(t)
	h.det.SetDetections(detector.CenteredFace(640, 480, 0.9))
	h.waitReason(t, policy.ReasonOK)

	frame, err := h.app.feed.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	img := h.app.Annotate(frame)
	if img.Bounds() != image.Rect(0, 0, DefaultDisplayWidth, DefaultDisplayHeight) {
		t.Errorf("Annotate() bounds = %v", img.Bounds())
	}

	st := h.app.Status()
	if !st.Enabled || !st.VideoOpen || !st.Detection.Ready {
		t.Errorf("Status() = %+v", st)
	}
	if st.Registration.State != session.StateSetup {
		t.Errorf("registration state = %q", st.Registration.State)
	}
}

func TestApp_LogoutIsAudited(t *testing.T) {
	h := newHarness(t)

	h.app.Logout("ab12cd34", "Asha")

	waitFor(t, func() bool {
		counts, err := h.store.Attempts().CountByOutcome(store.KindLogout)
		return err == nil && counts[session.ResultSuccess] == 1
	}, "logout audit")
}
