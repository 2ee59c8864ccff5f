package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tus/flashfile/pkg/prometheuscollector"
	"github.com/tus/flashfile/pkg/session"
	"golang.org/x/exp/slog"
)

var MetricsScriptsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "flashfile_scripts_running",
	Help: "Current number of running Lua scripts.",
})

var MetricsScriptErrors = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "flashfile_script_errors_total",
	Help: "Total number of Lua scripts which terminated with an error.",
})

// SetupMetrics registers the collectors for s and starts serving them on
// the configured address. The returned function stops the server.
func SetupMetrics(s *session.Session) (stop func(), err error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(MetricsScriptsRunning)
	registry.MustRegister(MetricsScriptErrors)
	registry.MustRegister(prometheuscollector.New(s.Metrics))

	mux := http.NewServeMux()
	mux.Handle(Flags.MetricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	address := net.JoinHostPort(Flags.MetricsHost, Flags.MetricsPort)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("MetricsServerFailed", "error", err)
		}
	}()

	slog.Info("MetricsExposed", "address", "http://"+listener.Addr().String()+Flags.MetricsPath)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, nil
}
