package detector

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ayusman/facegate/internal/face"
)

// Source is the DetectionSource polled by the detection loop. It prefers the
// primary detector and substitutes the fallback's result whenever the primary
// fails, so Detect never returns an error.
type Source struct {
	primary  Detector
	fallback Detector
	logger   *slog.Logger

	mu           sync.Mutex
	usingBackup  bool
	loggedFailed bool
	failures     int
}

// NewSource creates a Source. A nil primary means the fallback is used for
// every frame; a nil fallback selects Fallback{}.
func NewSource(primary, fallback Detector, logger *slog.Logger) *Source {
	if fallback == nil {
		fallback = Fallback{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With("component", "detector"),
	}
}

// Detect returns the detections for frame. Failures of the primary detector
// are absorbed per call.
func (s *Source) Detect(ctx context.Context, frame *face.Frame) face.Set {
	if s.primary != nil {
		set, err := s.primary.Detect(ctx, frame)
		if err == nil {
			s.transition(false, nil)
			return set
		}
		s.transition(true, err)
	}

	set, err := s.fallback.Detect(ctx, frame)
	if err != nil {
		s.logger.Warn("fallback detector failed", "error", err)
		return face.Set{}
	}
	return set
}

// UsingFallback reports whether the last call was served by the fallback.
func (s *Source) UsingFallback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usingBackup || s.primary == nil
}

// Failures returns how many times the primary detector has failed.
func (s *Source) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// Close closes both detectors.
func (s *Source) Close() error {
	var errs []error
	if s.primary != nil {
		errs = append(errs, s.primary.Close())
	}
	errs = append(errs, s.fallback.Close())
	return errors.Join(errs...)
}

// transition records which detector served the call, logging only the first
// failure and changes of mode.
func (s *Source) transition(backup bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if backup {
		s.failures++
	}
	if backup == s.usingBackup {
		return
	}
	s.usingBackup = backup

	switch {
	case backup && !s.loggedFailed:
		s.loggedFailed = true
		s.logger.Warn("primary detector failed, using fallback", "error", err)
	case backup:
		s.logger.Info("switched to fallback detector", "error", err)
	default:
		s.logger.Info("primary detector active")
	}
}
