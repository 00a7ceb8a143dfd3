package events

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// DoneSentinel is the payload of the frame that terminates a stream.
const DoneSentinel = "[DONE]"

// SetStreamHeaders prepares an HTTP response for server-sent events.
func SetStreamHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Writer frames events onto an event stream. It is safe for concurrent use.
// Each frame is flushed immediately when the underlying writer supports it.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	done    bool
	sent    int
}

// NewWriter wraps w. If w implements http.Flusher every frame is flushed.
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

// Send writes one event frame.
func (sw *Writer) Send(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	return sw.frame(payload)
}

// Done writes the terminating sentinel. Later calls to Send or Done fail.
func (sw *Writer) Done() error {
	if err := sw.frame([]byte(DoneSentinel)); err != nil {
		return err
	}
	sw.mu.Lock()
	sw.done = true
	sw.mu.Unlock()
	return nil
}

// Sent returns the number of frames written, sentinel included.
func (sw *Writer) Sent() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.sent
}

func (sw *Writer) frame(payload []byte) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.done {
		return fmt.Errorf("event stream already finished")
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	sw.sent++
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
	return nil
}
