package detector

import (
	"context"
	"sync"

	"github.com/ayusman/facegate/internal/face"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu     sync.Mutex
	set    face.Set
	err    error
	calls  int
	closed bool
	block  chan struct{}
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetDetections sets the detections that will be returned by Detect.
func (m *MockDetector) SetDetections(set face.Set) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set = set
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Block makes subsequent Detect calls wait until the returned release
// function is called or the context is cancelled.
func (m *MockDetector) Block() (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.block = ch
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.block == ch {
				m.block = nil
			}
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns the number of Detect calls made so far.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close has been called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Detect returns the pre-configured detections or error.
func (m *MockDetector) Detect(ctx context.Context, _ *face.Frame) (face.Set, error) {
	m.mu.Lock()
	m.calls++
	block := m.block
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.set.Clone(), nil
}

// Close marks the detector closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// CenteredFace returns a single detection centered in a frame of the given
// size with the given confidence.
func CenteredFace(width, height int, confidence float64) face.Set {
	w, h := float64(width), float64(height)
	return face.Set{{
		Box:        face.Box{X: w * 0.35, Y: h * 0.25, Width: w * 0.3, Height: h * 0.45},
		Confidence: confidence,
	}}
}

// TwoFaces returns two side-by-side detections.
func TwoFaces(width, height int, confidence float64) face.Set {
	w, h := float64(width), float64(height)
	return face.Set{
		{Box: face.Box{X: w * 0.1, Y: h * 0.3, Width: w * 0.25, Height: h * 0.4}, Confidence: confidence},
		{Box: face.Box{X: w * 0.6, Y: h * 0.3, Width: w * 0.25, Height: h * 0.4}, Confidence: confidence},
	}
}
