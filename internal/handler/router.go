package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes builds the full router. Capture paths skip the request logger so
// high-rate webhook traffic does not flood the log.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.HasPrefix(req.URL.Path, "/bin/") {
				next.ServeHTTP(w, req)
			} else {
				middleware.Logger(next).ServeHTTP(w, req)
			}
		})
	})

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"},
		AllowedHeaders: []string{"*"},
	}))

	r.Post("/create", h.CreateBin)
	r.Get("/ping", h.Ping)

	r.Get("/bin/{binID}/inspect", h.Inspect)
	r.Get("/bin/{binID}/expiry", h.BinExpiry)
	r.Post("/bin/{binID}/requests/{seq}/replay", h.ReplayRequest)

	r.Get("/ws/{binID}", h.WebSocket)
	r.Get("/events/{binID}", h.SSE)

	// Capture endpoint: any method, any subpath
	r.HandleFunc("/bin/{binID}", h.Capture)
	r.HandleFunc("/bin/{binID}/*", h.Capture)

	return r
}
