package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hookbin/hookbin/internal/pipeline"
	"github.com/hookbin/hookbin/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin checks are left to the reverse proxy
	},
}

type Handler struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline

	maxBodySize int
	log         *zap.Logger
}

func NewHandler(s store.Store, p *pipeline.Pipeline, maxBodySize int, log *zap.Logger) *Handler {
	return &Handler{Store: s, Pipeline: p, maxBodySize: maxBodySize, log: log}
}

// requestView is the JSON shape shared by inspect responses and live stream
// messages.
type requestView struct {
	ID        int64             `json:"id"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	Body      *string           `json:"body"`
	Timestamp time.Time         `json:"timestamp"`
}

func viewOf(req *store.CapturedRequest) requestView {
	headers := make(map[string]string, len(req.Headers))
	for _, h := range req.Headers {
		if existing, ok := headers[h.Name]; ok {
			// duplicate names collapse to an HTTP list; the stored form
			// keeps them separate
			headers[h.Name] = existing + ", " + h.Value
		} else {
			headers[h.Name] = h.Value
		}
	}

	var body *string
	if req.Body != nil {
		s := string(req.Body)
		body = &s
	}

	return requestView{
		ID:        req.Seq,
		Method:    req.Method,
		Headers:   headers,
		Body:      body,
		Timestamp: req.Timestamp,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func validBinID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
