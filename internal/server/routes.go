package server

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
)

//go:embed ui
var uiFiles embed.FS

// Config contains server configuration options.
type Config struct {
	// CORSOrigin is the allowed CORS origin; "*" allows any.
	CORSOrigin string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		CORSOrigin: "*",
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing and serves the
// embedded single-page UI at the root.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	// API routes with method-based patterns (Go 1.22+)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /jobs", h.CreateJob)
	mux.HandleFunc("GET /jobs", h.ListJobs)
	mux.HandleFunc("GET /jobs/{id}", h.GetJob)
	mux.HandleFunc("GET /jobs/{id}/result", h.GetResult)

	// Embedded browser UI
	ui, err := fs.Sub(uiFiles, "ui")
	if err != nil {
		// The embed directive guarantees the directory exists.
		panic(err)
	}
	mux.Handle("GET /static/", http.FileServerFS(ui))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, ui, "index.html")
	})

	// Apply middleware chain
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.CORSOrigin),
	)

	return chain(mux)
}
