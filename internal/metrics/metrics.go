package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "requests_total", Help: "Requests handled by type and outcome"},
		[]string{"type", "status"},
	)
	PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "predictions_total", Help: "Predictions served by action"},
		[]string{"action"},
	)
)

func init() {
	prometheus.MustRegister(RequestsTotal, PredictionsTotal)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
