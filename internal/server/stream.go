package server

import (
	"fmt"
	"net/http"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/abhinaya/internal/log"
)

// FrameStream serves the processed camera frames as MJPEG. Frames are
// pushed in by Publish from the tick loop; nothing is encoded while no
// viewer is connected.
type FrameStream struct {
	mu      sync.Mutex
	viewers int
	jpeg    []byte
	ready   chan struct{} // closed and replaced on every new frame
}

// NewFrameStream creates a FrameStream with no frame yet.
func NewFrameStream() *FrameStream {
	return &FrameStream{ready: make(chan struct{})}
}

// Publish encodes frame as JPEG for the connected viewers. It does not
// keep frame.
func (s *FrameStream) Publish(frame *gocv.Mat) {
	if s.Viewers() == 0 || frame == nil || frame.Empty() {
		return
	}

	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		log.Debug("encoding stream frame", "error", err)
		return
	}
	jpeg := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	s.publish(jpeg)
}

func (s *FrameStream) publish(jpeg []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jpeg = jpeg
	close(s.ready)
	s.ready = make(chan struct{})
}

// Viewers returns the number of connected stream clients.
func (s *FrameStream) Viewers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewers
}

// ServeHTTP streams every published frame until the client goes away.
func (s *FrameStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	s.mu.Lock()
	s.viewers++
	ready := s.ready
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.viewers--
		s.mu.Unlock()
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ready:
		}

		s.mu.Lock()
		jpeg := s.jpeg
		ready = s.ready
		s.mu.Unlock()

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(jpeg))
		if _, err := w.Write(jpeg); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
