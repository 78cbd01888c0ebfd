package diag

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// ChannelStatus is one thermal channel in a status report.
type ChannelStatus struct {
	Name     string  `json:"name"`
	State    string  `json:"state"`
	Measured float64 `json:"measured"`
	Setpoint float64 `json:"setpoint"`
	Duty     float64 `json:"duty"`
}

// Status is the machine snapshot served at /status and published over
// MQTT.
type Status struct {
	Position   map[string]float64 `json:"position"`
	Homed      map[string]bool    `json:"homed"`
	Feedrate   float64            `json:"feedrate"`
	Multiplier float64            `json:"multiplier"`
	Channels   []ChannelStatus    `json:"channels"`
	FanSpeed   float64            `json:"fan_speed"`
	Printing   bool               `json:"printing"`
}

// StatusSource produces the current machine snapshot.
type StatusSource interface {
	Status() Status
}

// Server is the diagnostics HTTP endpoint.
type Server struct {
	src  StatusSource
	log  zerolog.Logger
	addr string
}

func NewServer(addr string, src StatusSource, log zerolog.Logger) *Server {
	return &Server{
		src:  src,
		log:  log.With().Str("task", "diag-http").Logger(),
		addr: addr,
	}
}

// Handler builds the router. Exposed separately so tests can drive it
// without a listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.src.Status()); err != nil {
			s.log.Error().Err(err).Msg("status encode failed")
		}
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info().Str("addr", s.addr).Msg("diagnostics server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
