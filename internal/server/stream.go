package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ayusman/facegate/internal/capture"
)

// streamInterval caps the MJPEG stream at roughly 15 FPS.
const streamInterval = 66 * time.Millisecond

// StreamHandler serves the annotated camera feed as MJPEG.
type StreamHandler struct {
	kiosk  Kiosk
	encode capture.Encoder
	logger *slog.Logger
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(k Kiosk, encode capture.Encoder, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{kiosk: k, encode: encode, logger: logger}
}

// ServeHTTP streams MJPEG frames until the client disconnects.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	frames, cancel := h.kiosk.Frames(2)
	defer cancel()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var last time.Time
	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if time.Since(last) < streamInterval {
				continue
			}
			last = time.Now()

			buf, err := h.encode(h.kiosk.Annotate(frame))
			if err != nil {
				h.logger.Debug("encode stream frame", "error", err)
				continue
			}

			fmt.Fprintf(w, "--frame\r\n")
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(buf))
			if _, err := w.Write(buf); err != nil {
				return
			}
			fmt.Fprintf(w, "\r\n")

			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}
