package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"rate_change_notifier/internal/app/progress"

	"github.com/sirupsen/logrus"
)

// sseEmitter delivers progress events over a text/event-stream response,
// flushing after every event. Buffering anywhere between the producer and
// the browser defeats the purpose of the stream, so the nginx buffering
// escape hatch is set too.
type sseEmitter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	log     *logrus.Entry
	dead    bool
}

func newSSEEmitter(w http.ResponseWriter, log *logrus.Entry) (*sseEmitter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported by response writer")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseEmitter{w: w, flusher: flusher, log: log}, nil
}

// Emit writes one event as a single JSON object on one data line. A write
// failure marks the stream dead; the batch itself keeps running against its
// own context.
func (e *sseEmitter) Emit(ev progress.Event) {
	if e.dead {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		e.log.Errorf("Failed to encode %s event: %v", ev.Kind(), err)
		return
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", payload); err != nil {
		e.log.Warnf("Client disconnected during event stream: %v", err)
		e.dead = true
		return
	}
	e.flusher.Flush()
}
