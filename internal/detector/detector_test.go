package detector

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"testing"

	"github.com/ayusman/facegate/internal/face"
)

func testFrame(w, h int) *face.Frame {
	return face.NewFrame(image.NewRGBA(image.Rect(0, 0, w, h)), 0)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFallback_Detect(t *testing.T) {
	tests := []struct {
		name string
		w, h int
		want face.Box
	}{
		{name: "640x480", w: 640, h: 480, want: face.Box{X: 192, Y: 120, Width: 256, Height: 240}},
		{name: "1000x1000", w: 1000, h: 1000, want: face.Box{X: 300, Y: 250, Width: 400, Height: 500}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := Fallback{}.Detect(context.Background(), testFrame(tt.w, tt.h))
			if err != nil {
				t.Fatalf("Detect() error = %v", err)
			}
			if len(set) != 1 {
				t.Fatalf("len(set) = %d, want 1", len(set))
			}
			if set[0].Box != tt.want {
				t.Errorf("Box = %+v, want %+v", set[0].Box, tt.want)
			}
			if set[0].Confidence != FallbackConfidence {
				t.Errorf("Confidence = %f, want %f", set[0].Confidence, FallbackConfidence)
			}
		})
	}
}

func TestSource_PrimarySucceeds(t *testing.T) {
	primary := NewMockDetector()
	primary.SetDetections(TwoFaces(640, 480, 0.9))

	src := NewSource(primary, nil, quietLogger())
	set := src.Detect(context.Background(), testFrame(640, 480))

	if len(set) != 2 {
		t.Fatalf("len(set) = %d, want 2", len(set))
	}
	if src.UsingFallback() {
		t.Error("UsingFallback() = true, want false")
	}
}

func TestSource_FallsBackOnEveryError(t *testing.T) {
	errs := []error{
		ErrNotReady,
		ErrUnavailable,
		errors.New("inference failed"),
	}

	for _, e := range errs {
		t.Run(e.Error(), func(t *testing.T) {
			primary := NewMockDetector()
			primary.SetError(e)

			src := NewSource(primary, nil, quietLogger())
			set := src.Detect(context.Background(), testFrame(640, 480))

			if len(set) != 1 || set[0].Confidence != FallbackConfidence {
				t.Fatalf("got %+v, want the fallback detection", set)
			}
			if !src.UsingFallback() {
				t.Error("UsingFallback() = false, want true")
			}
		})
	}
}

func TestSource_RecoversWhenPrimaryBecomesReady(t *testing.T) {
	primary := NewMockDetector()
	primary.SetError(ErrNotReady)
	src := NewSource(primary, nil, quietLogger())

	src.Detect(context.Background(), testFrame(640, 480))
	src.Detect(context.Background(), testFrame(640, 480))
	if got := src.Failures(); got != 2 {
		t.Errorf("Failures() = %d, want 2", got)
	}

	primary.SetError(nil)
	primary.SetDetections(face.Set{})

	set := src.Detect(context.Background(), testFrame(640, 480))
	if len(set) != 0 {
		t.Errorf("len(set) = %d, want 0 from the recovered primary", len(set))
	}
	if src.UsingFallback() {
		t.Error("UsingFallback() = true after recovery")
	}
}

func TestSource_NilPrimaryUsesFallback(t *testing.T) {
	src := NewSource(nil, nil, quietLogger())

	set := src.Detect(context.Background(), testFrame(320, 240))
	if len(set) != 1 {
		t.Fatalf("len(set) = %d, want 1", len(set))
	}
	if !src.UsingFallback() {
		t.Error("UsingFallback() = false with no primary")
	}
}

func TestSource_FailingFallbackYieldsEmptySet(t *testing.T) {
	primary := NewMockDetector()
	primary.SetError(ErrUnavailable)
	backup := NewMockDetector()
	backup.SetError(errors.New("broken"))

	src := NewSource(primary, backup, quietLogger())
	set := src.Detect(context.Background(), testFrame(640, 480))
	if set == nil || len(set) != 0 {
		t.Errorf("set = %#v, want empty non-nil set", set)
	}
}

func TestSource_Close(t *testing.T) {
	primary := NewMockDetector()
	backup := NewMockDetector()
	src := NewSource(primary, backup, quietLogger())

	if err := src.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !primary.Closed() || !backup.Closed() {
		t.Error("Close() did not close both detectors")
	}
}

func TestMockDetector_ReturnsCopies(t *testing.T) {
	m := NewMockDetector()
	m.SetDetections(CenteredFace(640, 480, 0.9))

	first, _ := m.Detect(context.Background(), nil)
	first[0].Confidence = 0

	second, _ := m.Detect(context.Background(), nil)
	if second[0].Confidence != 0.9 {
		t.Error("mutating a returned set leaked into the mock")
	}
	if m.Calls() != 2 {
		t.Errorf("Calls() = %d, want 2", m.Calls())
	}
}

func TestMockDetector_Block(t *testing.T) {
	m := NewMockDetector()
	release := m.Block()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Detect(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("blocked Detect with cancelled ctx error = %v, want context.Canceled", err)
	}

	release()
	if _, err := m.Detect(context.Background(), nil); err != nil {
		t.Errorf("Detect after release error = %v", err)
	}
}
