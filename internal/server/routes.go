package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /whoami", s.handleWhoAmI)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	// Key/value access. The handler switches on method so GET, HEAD, PUT
	// and DELETE share one authorization path.
	mux.HandleFunc("/kv/{key...}", s.handleKV)
	mux.HandleFunc("GET /kvlist/{prefix...}", s.handleList)

	return mux
}
