package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var EventsRouted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modrelay_events_routed_total",
	Help: "Number of gateway events by terminal route",
}, []string{"route"})

var FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modrelay_frames_dropped_total",
	Help: "Number of gateway frames dropped before routing, by reason",
}, []string{"reason"})

var GatewayReconnects = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modrelay_gateway_reconnects_total",
	Help: "Number of gateway stream connection attempts after the first",
})

var GatewayCommands = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modrelay_gateway_commands_total",
	Help: "Number of gateway commands sent, by action and outcome",
}, []string{"action", "status"})

var ImageFetches = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modrelay_image_fetches_total",
	Help: "Number of image attachment downloads, by outcome",
}, []string{"status"})

var ClassifyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "modrelay_classify_duration_sec",
	Help:    "Duration of image classification calls, by source",
	Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
}, []string{"source"})

var ClassifyResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modrelay_classify_results_total",
	Help: "Number of classification results, by source and outcome",
}, []string{"source", "outcome"})

var ClassifyCacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "modrelay_classify_cache_hits_total",
	Help: "Number of classifications served from the result cache",
})

var Violations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modrelay_violations_total",
	Help: "Number of confirmed violations, by action taken",
}, []string{"action"})

var EvidenceWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modrelay_evidence_writes_total",
	Help: "Number of evidence writes, by outcome",
}, []string{"status"})

var PolicyMutations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modrelay_policy_mutations_total",
	Help: "Number of policy mutations, by operation and persistence outcome",
}, []string{"op", "status"})

var WorkItemsAdded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modrelay_scheduler_work_items_added_total",
	Help: "Total number of work items added to the worker pool",
}, []string{"pool"})

var WorkItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modrelay_scheduler_work_items_processed_total",
	Help: "Total number of work items processed by the worker pool",
}, []string{"pool"})

var WorkItemsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modrelay_scheduler_work_items_failed_total",
	Help: "Total number of work items that returned an error or panicked",
}, []string{"pool"})

var WorkersActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "modrelay_scheduler_workers_active",
	Help: "Number of workers currently running",
}, []string{"pool"})

// Server exposes the default registry over HTTP
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer creates a metrics server; an empty address disables it
func NewServer(addr string, logger *zap.Logger) *Server {
	if addr == "" {
		return &Server{logger: logger}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start begins serving in the background
func (s *Server) Start() {
	if s.srv == nil {
		return
	}
	go func() {
		s.logger.Info("Starting metrics listener", zap.String("address", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics listener failed", zap.Error(err))
		}
	}()
}

// Stop shuts the listener down
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
