package capture

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/facegate/internal/clock"
	"github.com/ayusman/facegate/internal/face"
)

// FeedConfig configures a Feed.
type FeedConfig struct {
	Clock  clock.Clock
	Logger *slog.Logger
}

// FeedStats reports publication counters.
type FeedStats struct {
	Published uint64 `json:"published"`
	Sent      uint64 `json:"sent"`
	Dropped   uint64 `json:"dropped"`
	Errors    uint64 `json:"errors"`
}

// Feed owns a Camera: it reads frames at the camera's FPS, keeps the most
// recent one and fans frames out to subscribers. Slow subscribers miss
// frames; the reader never blocks on them.
type Feed struct {
	cam    Camera
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.RWMutex
	latest  *face.Frame
	subs    map[int]chan *face.Frame
	nextID  int
	running bool
	stopCh  chan struct{}
	done    chan struct{}

	published atomic.Uint64
	sent      atomic.Uint64
	dropped   atomic.Uint64
	errors    atomic.Uint64
}

// NewFeed creates a feed over cam. The camera is opened by Start.
func NewFeed(cam Camera, cfg FeedConfig) *Feed {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Feed{
		cam:    cam,
		clock:  cfg.Clock,
		logger: cfg.Logger.With("component", "feed"),
		subs:   make(map[int]chan *face.Frame),
	}
}

// Start opens the camera and begins reading frames. Calling Start on a
// running feed is a no-op.
func (f *Feed) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return nil
	}
	if err := f.cam.Open(); err != nil {
		return fmt.Errorf("start feed: %w", err)
	}

	fps := f.cam.FPS()
	if fps <= 0 {
		fps = DefaultFPS
	}

	f.running = true
	f.stopCh = make(chan struct{})
	f.done = make(chan struct{})
	go f.run(time.Second/time.Duration(fps), f.stopCh, f.done)

	f.logger.Info("feed started", "fps", fps)
	return nil
}

// Stop halts reading and closes the camera. The last frame is discarded so
// that readiness reflects the closed device.
func (f *Feed) Stop() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	close(f.stopCh)
	done := f.done
	f.mu.Unlock()

	<-done

	f.mu.Lock()
	f.latest = nil
	f.mu.Unlock()

	f.logger.Info("feed stopped")
	return f.cam.Close()
}

func (f *Feed) run(interval time.Duration, stopCh, done chan struct{}) {
	defer close(done)

	ticker := f.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			f.poll()
		}
	}
}

func (f *Feed) poll() {
	frame, err := f.cam.ReadFrame()
	if err != nil {
		if f.errors.Add(1) == 1 {
			f.logger.Warn("frame read failed", "error", err)
		}
		return
	}
	f.Publish(frame)
}

// Publish stores frame as the latest and offers it to every subscriber.
func (f *Feed) Publish(frame *face.Frame) {
	f.published.Add(1)

	f.mu.Lock()
	f.latest = frame
	f.mu.Unlock()

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.subs {
		select {
		case ch <- frame:
			f.sent.Add(1)
		default:
			f.dropped.Add(1)
		}
	}
}

// IsOpen reports whether the video source can supply frames: the camera
// is open and at least one frame has arrived.
func (f *Feed) IsOpen() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.latest != nil && f.cam.IsOpen()
}

// ReadFrame returns the most recent frame.
func (f *Feed) ReadFrame() (*face.Frame, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.latest == nil {
		return nil, ErrNoFrame
	}
	return f.latest, nil
}

// Subscribe returns a channel receiving frames as they are read and a
// function that cancels the subscription.
func (f *Feed) Subscribe(buffer int) (<-chan *face.Frame, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan *face.Frame, buffer)

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Stats returns a snapshot of the feed counters.
func (f *Feed) Stats() FeedStats {
	return FeedStats{
		Published: f.published.Load(),
		Sent:      f.sent.Load(),
		Dropped:   f.dropped.Load(),
		Errors:    f.errors.Load(),
	}
}
