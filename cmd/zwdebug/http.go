package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/skobkin/zwavelink/internal/connectors"
)

const (
	httpReadHeaderTimeout = 5 * time.Second
	httpShutdownTimeout   = 3 * time.Second
)

type healthResponse struct {
	State     connectors.ConnectionState `json:"state"`
	Transport string                     `json:"transport"`
	Target    string                     `json:"target,omitempty"`
	Error     string                     `json:"error,omitempty"`
}

// newHTTPRouter serves /metrics, /healthz, the /events websocket and POST /db/clear.
// healthz answers 503 until the radio link is up.
func newHTTPRouter(metricsHandler, eventsHandler http.Handler, status func() (connectors.ConnStatus, bool), clearDB func(context.Context) error) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", metricsHandler)
	r.Method(http.MethodGet, "/events", eventsHandler)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		st, _ := status()
		code := http.StatusOK
		if st.State != connectors.ConnectionStateConnected {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(healthResponse{
			State:     st.State,
			Transport: st.TransportName,
			Target:    st.Target,
			Error:     st.Err,
		})
	})

	r.Post("/db/clear", func(w http.ResponseWriter, req *http.Request) {
		if err := clearDB(req.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

// serveHTTP runs the server until ctx is done.
func serveHTTP(ctx context.Context, logger *slog.Logger, addr string, handler http.Handler) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: httpReadHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown", "error", err)
		}
	}()

	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
		}
	}()
}
