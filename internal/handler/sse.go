package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hookbin/hookbin/internal/hub"
	"github.com/hookbin/hookbin/internal/store"
)

// SSE streams captured requests as server-sent events for clients that cannot
// speak websockets.
func (h *Handler) SSE(w http.ResponseWriter, r *http.Request) {
	binID := chi.URLParam(r, "binID")
	if !validBinID(binID) {
		http.Error(w, "invalid bin ID format", http.StatusBadRequest)
		return
	}

	sub, err := h.Pipeline.Subscribe(r.Context(), binID)
	if errors.Is(err, store.ErrBinNotFound) {
		http.Error(w, "bin not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to subscribe", http.StatusInternalServerError)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			// Heartbeat to keep the connection alive
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			switch ev.Kind {
			case hub.EventRequest:
				payload, err := json.Marshal(viewOf(ev.Request))
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: new-request\ndata: %s\n\n", payload)
				flusher.Flush()
			case hub.EventBinClosed:
				fmt.Fprintf(w, "event: bin-closed\ndata: {}\n\n")
				flusher.Flush()
				return
			}
		}
	}
}
