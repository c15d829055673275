package httpx

import (
	"net/http"
)

// Relay routes. The verify and activate paths are fixed by the collector.
const (
	PathVerify   = "/prototype/api/verify"
	PathActivate = "/api/script/activate"
)

func NewMux(e Env) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", e.Healthz)
	mux.HandleFunc("/readyz", e.Readyz)
	mux.HandleFunc(PathVerify, e.Verify)
	mux.HandleFunc(PathActivate, e.Activate)

	return RequestLogger(e.Logger)(MetricsMiddleware(e.Metrics)(cors(e.Cfg.AllowedOrigins)(mux)))
}
