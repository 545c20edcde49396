package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// NewHandler returns the mux serving /metrics and /healthz.
func NewHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

// StartServer serves metrics on addr in the background. Stop it with Close
// or Shutdown on the returned server.
func StartServer(addr string) *http.Server {
	srv := &http.Server{
		Addr:    addr,
		Handler: NewHandler(),
	}

	go func() {
		log.WithField("addr", addr).Info("Metrics server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Metrics server error")
		}
	}()

	return srv
}
