package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the exposition handler for everything registered in this
// package.
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewServer returns an HTTP server exposing the registered collectors on
// addr under /metrics. The caller owns its lifecycle.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return &http.Server{Addr: addr, Handler: mux}
}
