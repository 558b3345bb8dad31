// Package dnn implements a face detector backed by the OpenCV DNN module and
// the res10 SSD face model.
package dnn

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/facegate/internal/detector"
	"github.com/ayusman/facegate/internal/face"
)

// Default model assets for the res10 300x300 SSD face detector.
const (
	DefaultModelURL  = "https://raw.githubusercontent.com/opencv/opencv_3rdparty/dnn_samples_face_detector_20170830/res10_300x300_ssd_iter_140000.caffemodel"
	DefaultConfigURL = "https://raw.githubusercontent.com/opencv/opencv/master/samples/dnn/face_detector/deploy.prototxt"

	DefaultFetchTimeout = 30 * time.Second
)

// blobSize and blobMean are fixed by the model's training setup.
var (
	blobSize = image.Pt(300, 300)
	blobMean = gocv.NewScalar(104, 177, 123, 0)
)

// Config holds the asset locations and thresholds for the detector.
type Config struct {
	// ModelPath and ConfigPath point at local model files. When empty or
	// missing, the assets are fetched from ModelURL and ConfigURL into
	// CacheDir.
	ModelPath  string
	ConfigPath string
	ModelURL   string
	ConfigURL  string
	CacheDir   string

	MinConfidence float64
	FetchTimeout  time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

type state int

const (
	stateLoading state = iota
	stateReady
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateLoading:
		return "loading"
	case stateReady:
		return "ready"
	default:
		return "failed"
	}
}

// Detector detects faces with a Caffe SSD network. Construction returns
// immediately; assets load in the background and Detect reports
// detector.ErrNotReady until they have.
type Detector struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	state   state
	initErr error
	net     gocv.Net

	cancel context.CancelFunc
	done   chan struct{}
}

var _ detector.Detector = (*Detector)(nil)

// New creates the detector and starts loading its assets.
func New(cfg Config) *Detector {
	if cfg.ModelURL == "" && cfg.ModelPath == "" {
		cfg.ModelURL = DefaultModelURL
	}
	if cfg.ConfigURL == "" && cfg.ConfigPath == "" {
		cfg.ConfigURL = DefaultConfigURL
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = detector.DefaultConfig().MinConfidence
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Detector{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "dnn"),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go d.load(ctx)
	return d
}

func (d *Detector) load(ctx context.Context) {
	defer close(d.done)

	start := time.Now()
	net, err := d.loadNet(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err != nil {
		d.state = stateFailed
		d.initErr = err
		d.logger.Warn("face model unavailable", "error", err)
		return
	}
	if ctx.Err() != nil {
		net.Close()
		d.state = stateFailed
		d.initErr = ctx.Err()
		return
	}
	d.net = net
	d.state = stateReady
	d.logger.Info("face model loaded", "duration", time.Since(start))
}

func (d *Detector) loadNet(ctx context.Context) (gocv.Net, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, d.cfg.FetchTimeout)
	defer cancel()

	f := fetcher{client: d.cfg.HTTPClient, cacheDir: d.cfg.CacheDir, logger: d.logger}

	model, err := f.resolve(fetchCtx, d.cfg.ModelPath, d.cfg.ModelURL)
	if err != nil {
		return gocv.Net{}, fmt.Errorf("resolve model: %w", err)
	}
	config, err := f.resolve(fetchCtx, d.cfg.ConfigPath, d.cfg.ConfigURL)
	if err != nil {
		return gocv.Net{}, fmt.Errorf("resolve model config: %w", err)
	}

	net := gocv.ReadNet(model, config)
	if net.Empty() {
		net.Close()
		return gocv.Net{}, fmt.Errorf("read net from %s", model)
	}
	return net, nil
}

// Ready returns a channel closed once loading has finished, successfully
// or not.
func (d *Detector) Ready() <-chan struct{} {
	return d.done
}

// State reports "loading", "ready" or "failed".
func (d *Detector) State() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.String()
}

// Detect runs the network on frame. It returns detector.ErrNotReady while
// loading and a wrapped detector.ErrUnavailable once loading has failed.
func (d *Detector) Detect(ctx context.Context, frame *face.Frame) (face.Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case stateLoading:
		return nil, detector.ErrNotReady
	case stateFailed:
		return nil, fmt.Errorf("%w: %v", detector.ErrUnavailable, d.initErr)
	}

	img, err := gocv.ImageToMatRGB(frame.Image)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer img.Close()

	blob := gocv.BlobFromImage(img, 1.0, blobSize, blobMean, false, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	prob := d.net.Forward("")
	defer prob.Close()

	results := prob.Reshape(1, 1)
	defer results.Close()

	return parseDetections(results, frame.Width, frame.Height, d.cfg.MinConfidence), nil
}

// parseDetections reads SSD output rows of [image, class, confidence,
// left, top, right, bottom] with relative coordinates.
func parseDetections(results gocv.Mat, width, height int, minConfidence float64) face.Set {
	w, h := float64(width), float64(height)
	set := face.Set{}

	for i := 0; i+6 < results.Total(); i += 7 {
		confidence := float64(results.GetFloatAt(0, i+2))
		if confidence < minConfidence {
			continue
		}
		left := float64(results.GetFloatAt(0, i+3)) * w
		top := float64(results.GetFloatAt(0, i+4)) * h
		right := float64(results.GetFloatAt(0, i+5)) * w
		bottom := float64(results.GetFloatAt(0, i+6)) * h

		box := face.Box{X: left, Y: top, Width: right - left, Height: bottom - top}.Clamp(width, height)
		if box.Area() == 0 {
			continue
		}
		set = append(set, face.Detection{Box: box, Confidence: confidence})
	}
	return set
}

// Close stops a pending load and releases the network.
func (d *Detector) Close() error {
	d.cancel()
	<-d.done

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == stateReady {
		d.state = stateFailed
		d.initErr = fmt.Errorf("detector closed")
		return d.net.Close()
	}
	return nil
}
