package hook

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultConcurrency bounds how many hooks run at once.
const DefaultConcurrency = 4

// Dispatcher runs subscribed hooks in the background. When all slots are
// busy further runs are dropped so a slow hook never stalls the kiosk.
type Dispatcher struct {
	manager *Manager
	exec    *Executor
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	slots  chan struct{}
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(m *Manager, e *Executor, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		manager: m,
		exec:    e,
		logger:  logger.With("component", "hooks"),
		ctx:     ctx,
		cancel:  cancel,
		slots:   make(chan struct{}, DefaultConcurrency),
	}
}

// Notify starts every hook subscribed to a's event. It does not wait for
// them.
func (d *Dispatcher) Notify(a Attempt) {
	event := a.Event()
	for _, h := range d.manager.Subscribed(event) {
		select {
		case d.slots <- struct{}{}:
		default:
			d.logger.Warn("hook dropped, too many running", "hook", h.Manifest.Name, "event", event)
			continue
		}

		d.wg.Add(1)
		go func(h *Hook) {
			defer d.wg.Done()
			defer func() { <-d.slots }()
			d.run(h, &Request{Event: event, Attempt: a, Config: h.Manifest.Config})
		}(h)
	}
}

func (d *Dispatcher) run(h *Hook, req *Request) {
	resp, err := d.exec.Execute(d.ctx, h, req)
	switch {
	case err != nil:
		d.logger.Warn("hook failed", "hook", h.Manifest.Name, "event", req.Event, "error", err)
	case !resp.Success:
		d.logger.Warn("hook reported failure", "hook", h.Manifest.Name, "event", req.Event, "error", resp.Error)
	default:
		d.logger.Debug("hook ran", "hook", h.Manifest.Name, "event", req.Event)
	}
}

// Wait blocks until running hooks finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close kills running hooks and waits for them.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}
