package httpserver

import (
	"net/http"
	"time"
)

// New builds the HTTP server. Read and write timeouts stay unset because the
// server carries both multipart document uploads and long-lived websocket
// notification streams; per-request deadlines come from the timeout
// middleware instead.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
