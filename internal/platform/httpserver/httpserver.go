// Package httpserver builds the process's http.Server. Only listener-level
// timeouts live here; per-request deadlines come from the router middleware.
package httpserver

import (
	"net/http"
	"time"
)

// New returns the server fronting the stampgate API. ReadHeaderTimeout keeps
// slow-header clients from pinning connections; idle keep-alives are bounded
// so dashboard pollers recycle connections.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
