package handler

import (
	"errors"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hookbin/hookbin/internal/pipeline"
	"github.com/hookbin/hookbin/internal/store"
)

func (h *Handler) CreateBin(w http.ResponseWriter, r *http.Request) {
	bin, err := h.Store.CreateBin(r.Context())
	if err != nil {
		h.log.Error("failed to create bin", zap.Error(err))
		http.Error(w, "failed to create bin", http.StatusInternalServerError)
		return
	}

	h.log.Info("bin created", zap.String("bin_id", bin.ID))
	writeJSON(w, http.StatusOK, map[string]string{
		"bin_id": bin.ID,
		"url":    requestScheme(r) + "://" + r.Host + "/bin/" + bin.ID,
	})
}

// Capture accepts an arbitrary-method request to a bin and runs it through
// the ingestion pipeline.
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	binID := chi.URLParam(r, "binID")
	if !validBinID(binID) {
		http.Error(w, "invalid bin ID format", http.StatusBadRequest)
		return
	}

	// Read at most one byte past the cap so the pipeline sees the violation
	// without the handler buffering an unbounded body.
	body, err := io.ReadAll(io.LimitReader(r.Body, int64(h.maxBodySize)+1))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusInternalServerError)
		return
	}
	defer r.Body.Close()
	if len(body) == 0 {
		body = nil
	}

	stored, err := h.Pipeline.Ingest(r.Context(), binID, sourceAddr(r), r.Method, flattenHeaders(r.Header), body)
	if err != nil {
		h.writeIngestError(w, binID, err)
		return
	}

	w.Header().Set("X-Request-Seq", formatSeq(stored.Seq))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("request logged"))
}

func (h *Handler) writeIngestError(w http.ResponseWriter, binID string, err error) {
	switch {
	case errors.Is(err, store.ErrBinNotFound):
		http.Error(w, "bin not found", http.StatusNotFound)
	case errors.Is(err, pipeline.ErrThrottled):
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
	case errors.Is(err, pipeline.ErrPayloadTooLarge):
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
	default:
		h.log.Error("ingestion failed", zap.String("bin_id", binID), zap.Error(err))
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
	}
}

func (h *Handler) Inspect(w http.ResponseWriter, r *http.Request) {
	binID := chi.URLParam(r, "binID")
	if !validBinID(binID) {
		http.Error(w, "invalid bin ID format", http.StatusBadRequest)
		return
	}

	reqs, err := h.Store.List(r.Context(), binID)
	if errors.Is(err, store.ErrBinNotFound) {
		http.Error(w, "bin not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("failed to list requests", zap.String("bin_id", binID), zap.Error(err))
		http.Error(w, "failed to fetch logged requests", http.StatusInternalServerError)
		return
	}

	views := make([]requestView, 0, len(reqs))
	for _, req := range reqs {
		views = append(views, viewOf(req))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) BinExpiry(w http.ResponseWriter, r *http.Request) {
	binID := chi.URLParam(r, "binID")
	if !validBinID(binID) {
		http.Error(w, "invalid bin ID format", http.StatusBadRequest)
		return
	}

	bin, err := h.Store.GetBin(r.Context(), binID)
	if errors.Is(err, store.ErrBinNotFound) {
		http.Error(w, "bin not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("failed to fetch bin", zap.String("bin_id", binID), zap.Error(err))
		http.Error(w, "failed to fetch expiration", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"last_activity": bin.LastActivity})
}

func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	message := r.URL.Query().Get("message")
	if message == "" {
		message = "pong"
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": message})
}

// flattenHeaders turns an http.Header into ordered name/value pairs. Go's
// header map does not retain arrival order, so keys are sorted for a stable
// serialization; values within a name keep their order.
func flattenHeaders(header http.Header) []store.Header {
	names := make([]string, 0, len(header))
	for name := range header {
		names = append(names, name)
	}
	sort.Strings(names)

	var headers []store.Header
	for _, name := range names {
		for _, value := range header[name] {
			headers = append(headers, store.Header{Name: name, Value: value})
		}
	}
	return headers
}

func formatSeq(seq int64) string {
	return strconv.FormatInt(seq, 10)
}

func sourceAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		return "https"
	}
	return "http"
}
