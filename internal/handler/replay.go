package handler

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hookbin/hookbin/internal/store"
)

// ReplayRequest re-sends a stored request at its own bin, so it runs through
// the full capture pipeline again and appears as a new entry.
func (h *Handler) ReplayRequest(w http.ResponseWriter, r *http.Request) {
	binID := chi.URLParam(r, "binID")
	if !validBinID(binID) {
		http.Error(w, "invalid bin ID format", http.StatusBadRequest)
		return
	}
	seq, err := strconv.ParseInt(chi.URLParam(r, "seq"), 10, 64)
	if err != nil {
		http.Error(w, "invalid request sequence", http.StatusBadRequest)
		return
	}

	reqData, err := h.Store.GetRequest(r.Context(), binID, seq)
	if errors.Is(err, store.ErrRequestNotFound) {
		http.Error(w, "request not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "failed to fetch request", http.StatusInternalServerError)
		return
	}

	targetURL := requestScheme(r) + "://" + r.Host + "/bin/" + binID
	newReq, err := http.NewRequestWithContext(r.Context(), reqData.Method, targetURL, bytes.NewReader(reqData.Body))
	if err != nil {
		http.Error(w, "failed to create replay request", http.StatusInternalServerError)
		return
	}

	for _, hdr := range reqData.Headers {
		// Don't replay headers that should be unique to the new request
		if hdr.Name == "Host" || hdr.Name == "Content-Length" || hdr.Name == "Connection" {
			continue
		}
		newReq.Header.Add(hdr.Name, hdr.Value)
	}

	resp, err := http.DefaultClient.Do(newReq)
	if err != nil {
		http.Error(w, "failed to replay request: "+err.Error(), http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("replayed, response status: " + resp.Status))
}
