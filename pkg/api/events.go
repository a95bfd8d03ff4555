package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const heartbeat = 25 * time.Second

// handleEvents streams refresh events. The first message carries the
// current status so a fresh page knows what it is looking at.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if h.Bus == nil {
		http.Error(w, "events disabled", http.StatusNotImplemented)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	events := h.Bus.Subscribe(ctx, 8)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	b, _ := json.Marshal(h.status(h.Holder.Current()))
	fmt.Fprintf(w, "event: status\ndata: %s\n\n", b)
	flusher.Flush()

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				fmt.Fprint(w, "event: done\ndata: end\n\n")
				flusher.Flush()
				return
			}
			b, _ := json.Marshal(ev)
			fmt.Fprintf(w, "event: refresh\ndata: %s\n\n", b)
			flusher.Flush()
		}
	}
}
