package relay

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inercia/violet/pkg/common"
)

// Metrics holds the Prometheus collectors of one relay.
type Metrics struct {
	registry *prometheus.Registry

	authAttempts       *prometheus.CounterVec
	authThrottled      prometheus.Counter
	quotaRejections    *prometheus.CounterVec
	permissionDenials  prometheus.Counter
	allocationsCreated prometheus.Counter
	allocationsDeleted prometheus.Counter
	allocationErrors   prometheus.Counter
}

func newMetrics(live func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "violet",
			Name:      "auth_attempts_total",
			Help:      "Authenticated TURN requests by method and verdict.",
		}, []string{"method", "verdict"}),
		authThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "violet",
			Name:      "auth_throttled_total",
			Help:      "Authentication attempts rejected by the per-client rate limit.",
		}),
		quotaRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "violet",
			Name:      "quota_rejections_total",
			Help:      "Allocate requests rejected by a quota.",
		}, []string{"reason"}),
		permissionDenials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "violet",
			Name:      "permission_denials_total",
			Help:      "CreatePermission and ChannelBind requests rejected by the peer policy.",
		}),
		allocationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "violet",
			Name:      "allocations_created_total",
			Help:      "Allocations created.",
		}),
		allocationsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "violet",
			Name:      "allocations_deleted_total",
			Help:      "Allocations deleted or expired.",
		}),
		allocationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "violet",
			Name:      "allocation_errors_total",
			Help:      "Datagrams the TURN server failed to handle.",
		}),
	}

	m.registry.MustRegister(
		m.authAttempts,
		m.authThrottled,
		m.quotaRejections,
		m.permissionDenials,
		m.allocationsCreated,
		m.allocationsDeleted,
		m.allocationErrors,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "violet",
			Name:      "allocations",
			Help:      "Live allocations.",
		}, func() float64 { return float64(live()) }),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Readiness tracks whether the relay is serving.
type Readiness struct {
	listenerBound atomic.Bool
	closing       atomic.Bool
}

// Ready reports whether the relay socket is bound and the relay is not
// shutting down.
func (r *Readiness) Ready() bool {
	return r.listenerBound.Load() && !r.closing.Load()
}

func newMetricsHandler(m *Metrics, ready *Readiness) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/live", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if ready.Ready() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	return mux
}

// metricsServer serves the metrics handler until it is shut down.
type metricsServer struct {
	srv *http.Server
	ln  net.Listener
}

func startMetricsServer(address string, handler http.Handler, logger *common.Logger) (*metricsServer, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}

	ms := &metricsServer{
		srv: &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := ms.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error: %v", err)
		}
	}()

	logger.Info("Metrics listening on %s", ln.Addr())
	return ms, nil
}

func (ms *metricsServer) Addr() net.Addr {
	return ms.ln.Addr()
}

func (ms *metricsServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ms.srv.Shutdown(ctx)
}
