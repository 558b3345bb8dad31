// Package tray provides a system tray menu for the FaceGate kiosk.
package tray

import (
	"sync"

	"github.com/ayusman/facegate/internal/policy"
	"github.com/getlantern/systray"
)

// Tray is the kiosk's tray menu: a detection toggle, the current readiness
// verdict, a link to the kiosk UI and quit.
type Tray struct {
	onToggle func(enabled bool)
	onOpen   func()
	onQuit   func()
	enabled  bool
	verdict  string
	mu       sync.RWMutex

	menuToggle  *systray.MenuItem
	menuVerdict *systray.MenuItem
}

// New creates a new Tray with detection enabled.
func New() *Tray {
	return &Tray{
		enabled: true,
		verdict: verdictLabel(policy.DeviceNotReady()),
	}
}

// OnToggle sets the callback invoked when detection is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnOpen sets the callback invoked when "Open Kiosk" is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback invoked when quit is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the tray. It blocks until systray.Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit stops the tray from outside the menu.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("FaceGate")
	systray.SetTooltip("FaceGate face-presence kiosk")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleLabel(t.enabled), "Toggle face detection")
	systray.AddSeparator()
	t.menuVerdict = systray.AddMenuItem(t.verdict, "Current capture readiness")
	t.menuVerdict.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open Kiosk...", "Open the kiosk in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit FaceGate")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	t.menuToggle.SetTitle(toggleLabel(enabled))
	callback := t.onToggle
	t.mu.Unlock()

	// Outside the lock: the callback may call SetEnabled.
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetEnabled syncs the toggle with a change made elsewhere, e.g. the web UI.
func (t *Tray) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.enabled = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleLabel(enabled))
	}
}

// SetVerdict updates the readiness label.
func (t *Tray) SetVerdict(v policy.Verdict) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.verdict = verdictLabel(v)
	if t.menuVerdict != nil {
		t.menuVerdict.SetTitle(t.verdict)
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func toggleLabel(enabled bool) string {
	if enabled {
		return "● Detection on"
	}
	return "○ Detection off"
}

func verdictLabel(v policy.Verdict) string {
	switch v.Reason {
	case policy.ReasonOK:
		return "Ready"
	case policy.ReasonNoFace:
		return "No face"
	case policy.ReasonMultipleFaces:
		return "Multiple faces"
	case policy.ReasonLowConfidence:
		return "Low confidence"
	default:
		return "Camera not ready"
	}
}
