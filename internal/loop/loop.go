// Package loop runs the periodic face-detection poll and publishes the
// latest detection set to subscribers.
//
// A poll is started on each tick of the configured interval. Ticks that
// arrive while a poll is still running are skipped, never queued, and poll
// results are dropped if the loop was stopped or restarted, or the video
// source changed state, while they were in flight.
package loop

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/facegate/internal/clock"
	"github.com/ayusman/facegate/internal/face"
	"github.com/ayusman/facegate/internal/policy"
)

// DefaultInterval is the detection poll period.
const DefaultInterval = 200 * time.Millisecond

// FrameSource supplies the current video frame.
type FrameSource interface {
	// IsOpen reports whether the source can currently supply frames.
	IsOpen() bool
	ReadFrame() (*face.Frame, error)
}

// Detector produces detections for a frame. Implementations absorb their
// own failures.
type Detector interface {
	Detect(ctx context.Context, frame *face.Frame) face.Set
}

// Config holds loop settings.
type Config struct {
	Interval time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Update is one published detection result.
type Update struct {
	Seq         uint64    `json:"seq"`
	Set         face.Set  `json:"detections"`
	VideoReady  bool      `json:"video_ready"`
	FrameWidth  int       `json:"frame_width"`
	FrameHeight int       `json:"frame_height"`
	At          time.Time `json:"at"`
}

// Verdict evaluates the update against the gating policy.
func (u Update) Verdict() policy.Verdict {
	if !u.VideoReady {
		return policy.DeviceNotReady()
	}
	return policy.Evaluate(u.Set)
}

// Stats reports loop counters.
type Stats struct {
	Polls     uint64 `json:"polls"`
	Published uint64 `json:"published"`
	Skipped   uint64 `json:"skipped"`
	Stale     uint64 `json:"stale"`
}

type videoState int

const (
	videoUnknown videoState = iota
	videoReady
	videoNotReady
)

// Loop polls a FrameSource through a Detector on a fixed interval.
type Loop struct {
	src    FrameSource
	det    Detector
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	gen     uint64
	cancel  context.CancelFunc
	stopCh  chan struct{}
	done    chan struct{}
	video   videoState
	epoch   uint64
	seq     uint64
	latest  Update
	subs    map[int]func(Update)
	nextSub int

	// pubMu serializes publication. Stop acquires it after flipping
	// running so that it returns only once an in-progress publication has
	// finished.
	pubMu sync.Mutex

	inFlight atomic.Bool

	polls     atomic.Uint64
	published atomic.Uint64
	skipped   atomic.Uint64
	stale     atomic.Uint64
}

// New creates a stopped loop.
func New(src FrameSource, det Detector, cfg Config) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		src:    src,
		det:    det,
		cfg:    cfg,
		logger: cfg.Logger.With("component", "loop"),
		subs:   make(map[int]func(Update)),
	}
}

// Start begins polling. Calling Start on a running loop is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.running = true
	l.gen++
	l.cancel = cancel
	l.stopCh = make(chan struct{})
	l.done = make(chan struct{})
	l.video = videoUnknown

	go l.run(ctx, l.gen, l.stopCh, l.done)
	l.logger.Info("detection loop started", "interval", l.cfg.Interval)
}

// Stop halts polling. It blocks until the tick goroutine has exited and any
// in-progress publication has finished; nothing is published after Stop
// returns. Calling Stop on a stopped loop is a no-op. Stop must not be
// called from a subscriber callback.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.gen++
	l.cancel()
	close(l.stopCh)
	done := l.done
	l.latest = Update{Seq: l.seq}
	l.mu.Unlock()

	<-done

	// Wait out a publication that passed its liveness check before running
	// was cleared.
	l.pubMu.Lock()
	l.pubMu.Unlock()

	l.logger.Info("detection loop stopped")
}

// Running reports whether the loop is polling.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) run(ctx context.Context, gen uint64, stopCh, done chan struct{}) {
	defer close(done)

	ticker := l.cfg.Clock.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			l.tick(ctx, gen)
		}
	}
}

func (l *Loop) tick(ctx context.Context, gen uint64) {
	if !l.src.IsOpen() {
		if epoch, changed := l.setVideo(videoNotReady); changed {
			l.publish(gen, epoch, Update{Set: face.Set{}, VideoReady: false})
		}
		return
	}
	epoch, _ := l.setVideo(videoReady)

	if !l.inFlight.CompareAndSwap(false, true) {
		l.skipped.Add(1)
		return
	}
	go l.poll(ctx, gen, epoch)
}

// setVideo records the video state and reports whether it changed. Every
// change starts a new epoch; polls begun under an older epoch are stale.
func (l *Loop) setVideo(s videoState) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	changed := l.video != s
	if changed {
		l.epoch++
	}
	l.video = s
	return l.epoch, changed
}

func (l *Loop) poll(ctx context.Context, gen, epoch uint64) {
	defer l.inFlight.Store(false)
	l.polls.Add(1)

	frame, err := l.src.ReadFrame()
	if err != nil {
		l.logger.Debug("frame unavailable", "error", err)
		return
	}

	set := l.det.Detect(ctx, frame)
	if set == nil {
		set = face.Set{}
	}

	l.publish(gen, epoch, Update{
		Set:         set.Clone(),
		VideoReady:  true,
		FrameWidth:  frame.Width,
		FrameHeight: frame.Height,
	})
}

func (l *Loop) publish(gen, epoch uint64, u Update) {
	l.pubMu.Lock()
	defer l.pubMu.Unlock()

	l.mu.Lock()
	if !l.running || l.gen != gen || l.epoch != epoch {
		l.mu.Unlock()
		l.stale.Add(1)
		return
	}
	l.seq++
	u.Seq = l.seq
	u.At = l.cfg.Clock.Now()
	l.latest = u

	subs := make([]func(Update), 0, len(l.subs))
	for _, fn := range l.subs {
		subs = append(subs, fn)
	}
	l.mu.Unlock()

	l.published.Add(1)
	for _, fn := range subs {
		fn(copyUpdate(u))
	}
}

func copyUpdate(u Update) Update {
	u.Set = u.Set.Clone()
	return u
}

// Subscribe registers fn to receive every published update, in publication
// order. The returned function removes the subscription.
func (l *Loop) Subscribe(fn func(Update)) (unsubscribe func()) {
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}
}

// Latest returns the most recently published update. A stopped loop
// reports video as not ready.
func (l *Loop) Latest() Update {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyUpdate(l.latest)
}

// Verdict evaluates the latest update.
func (l *Loop) Verdict() policy.Verdict {
	return l.Latest().Verdict()
}

// ObservedConfidence returns the highest confidence in the latest update,
// or 0 when video is not ready.
func (l *Loop) ObservedConfidence() float64 {
	u := l.Latest()
	if !u.VideoReady {
		return 0
	}
	return u.Set.MaxConfidence()
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Polls:     l.polls.Load(),
		Published: l.published.Load(),
		Skipped:   l.skipped.Load(),
		Stale:     l.stale.Load(),
	}
}
