package app

import (
	"sync"

	"github.com/ayusman/facegate/internal/capture"
	"github.com/ayusman/facegate/internal/face"
	"github.com/ayusman/facegate/internal/hook"
	"github.com/ayusman/facegate/internal/loop"
	"github.com/ayusman/facegate/internal/policy"
	"github.com/ayusman/facegate/internal/session"
	"github.com/ayusman/facegate/internal/store"
)

// Event types.
const (
	EventDetection    = "detection"
	EventRegistration = "registration"
	EventOutcome      = "outcome"
	EventEnabled      = "enabled"
)

// Event is a kiosk state change pushed to UI clients.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Detection is the payload of a detection event.
type Detection struct {
	Seq         uint64        `json:"seq"`
	Detections  face.Set      `json:"detections"`
	VideoReady  bool          `json:"video_ready"`
	FrameWidth  int           `json:"frame_width"`
	FrameHeight int           `json:"frame_height"`
	Ready       bool          `json:"ready"`
	Reason      policy.Reason `json:"reason"`
	Message     string        `json:"message"`
}

func detectionOf(u loop.Update) Detection {
	v := u.Verdict()
	return Detection{
		Seq:         u.Seq,
		Detections:  u.Set,
		VideoReady:  u.VideoReady,
		FrameWidth:  u.FrameWidth,
		FrameHeight: u.FrameHeight,
		Ready:       v.Ready,
		Reason:      v.Reason,
		Message:     v.Message(),
	}
}

// publishDetection runs on the loop's publish path and must not block or
// take the App lock.
func (a *App) publishDetection(u loop.Update) {
	a.events.publish(Event{Type: EventDetection, Data: detectionOf(u)})
}

func (a *App) publishRegistration(s session.Snapshot) {
	a.events.publish(Event{Type: EventRegistration, Data: s})
}

func (a *App) recordOutcome(o session.Outcome) {
	a.recordAttempt(&store.Attempt{
		Kind:     o.Kind,
		Outcome:  o.Result,
		Reason:   string(o.Reason),
		Message:  o.Message,
		UserName: o.UserName,
		Samples:  o.Samples,
	})
}

func (a *App) recordAttempt(at *store.Attempt) {
	at.CreatedAt = a.config.Clock.Now().UTC()
	if a.config.Store != nil {
		if err := a.config.Store.Attempts().Record(at); err != nil {
			a.logger.Warn("audit record failed", "kind", at.Kind, "error", err)
		}
	}
	if a.config.Hooks != nil {
		a.config.Hooks.Notify(hook.Attempt{
			ID:        at.ID,
			Kind:      at.Kind,
			Outcome:   at.Outcome,
			Reason:    at.Reason,
			Message:   at.Message,
			UserName:  at.UserName,
			Samples:   at.Samples,
			CreatedAt: at.CreatedAt,
		})
	}
	a.events.publish(Event{Type: EventOutcome, Data: at})
}

// Status is a point-in-time view of the kiosk.
type Status struct {
	Enabled       bool              `json:"enabled"`
	VideoOpen     bool              `json:"video_open"`
	Detection     Detection         `json:"detection"`
	DetectorState string            `json:"detector_state"`
	UsingFallback bool              `json:"using_fallback"`
	Registration  session.Snapshot  `json:"registration"`
	Login         string            `json:"login"`
	Feed          capture.FeedStats `json:"feed"`
	Loop          loop.Stats        `json:"loop"`
}

type stater interface {
	State() string
}

// Status reports the current kiosk state.
func (a *App) Status() Status {
	s := Status{
		Enabled:       a.IsEnabled(),
		VideoOpen:     a.feed.IsOpen(),
		Detection:     detectionOf(a.loop.Latest()),
		DetectorState: "custom",
		UsingFallback: a.source.UsingFallback(),
		Registration:  a.Registration().Snapshot(),
		Login:         string(a.login.State()),
		Feed:          a.feed.Stats(),
		Loop:          a.loop.Stats(),
	}
	if st, ok := a.primary.(stater); ok {
		s.DetectorState = st.State()
	}
	return s
}

// hub fans events out to subscribers. Slow subscribers miss events.
type hub struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[int]chan Event)}
}

func (h *hub) subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
	}
}

func (h *hub) publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// close ends every subscription.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
