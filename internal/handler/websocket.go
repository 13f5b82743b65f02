package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hookbin/hookbin/internal/hub"
	"github.com/hookbin/hookbin/internal/store"
)

// WebSocket streams captured requests for a bin as JSON messages, one per
// request, in the shape of inspect elements.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
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

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	defer sub.Close()

	// Drain client frames so disconnects are noticed promptly.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			switch ev.Kind {
			case hub.EventRequest:
				if err := conn.WriteJSON(viewOf(ev.Request)); err != nil {
					return
				}
			case hub.EventBinClosed:
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "bin expired")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				return
			}
		}
	}
}
