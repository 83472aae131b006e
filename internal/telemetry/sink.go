package telemetry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/opensvm/solana-mcp-gateway/internal/validate"
)

// Sink is the gateway's single process-wide metrics and logging facade. It
// holds the Prometheus view and the in-process JSON-totals view described in
// SPEC_FULL.md §3 behind one constructed value. The totals are per Sink; the
// Prometheus series of NewSink are one package-level set registered once on
// the default registry and shared by every Sink it builds, while
// NewSinkWithRegisterer registers a separate set on the registry it is given.
type Sink struct {
	logger *zap.Logger
	prom   *promMetrics

	mu          sync.Mutex
	totals      Totals
	byMethod    map[string]*methodTotals
	byErrorType map[string]int64
}

// Totals is the JSON-serializable in-process metrics dump served alongside
// the Prometheus text endpoint.
type Totals struct {
	TotalCalls      int64            `json:"total_calls"`
	SuccessfulCalls int64            `json:"successful_calls"`
	FailedCalls     int64            `json:"failed_calls"`
	TotalDurationMs float64          `json:"total_duration_ms"`
	AvgDurationMs   float64          `json:"avg_duration_ms"`
	LatencyBuckets  LatencyHistogram `json:"latency_histogram_ms"`
	ByMethod        map[string]methodTotals `json:"by_method"`
	ByErrorType     map[string]int64       `json:"by_error_type"`
}

// LatencyHistogram is the custom 6-bucket histogram SPEC_FULL.md §3 requires
// for the JSON totals view, distinct from the Prometheus histogram buckets.
type LatencyHistogram struct {
	Under10ms    int64 `json:"under_10ms"`
	From10To49   int64 `json:"from_10_to_49ms"`
	From50To99   int64 `json:"from_50_to_99ms"`
	From100To499 int64 `json:"from_100_to_499ms"`
	From500To999 int64 `json:"from_500_to_999ms"`
	Over1000ms   int64 `json:"over_1000ms"`
}

func (h *LatencyHistogram) record(durationMs float64) {
	switch {
	case durationMs < 10:
		h.Under10ms++
	case durationMs < 50:
		h.From10To49++
	case durationMs < 100:
		h.From50To99++
	case durationMs < 500:
		h.From100To499++
	case durationMs < 1000:
		h.From500To999++
	default:
		h.Over1000ms++
	}
}

type methodTotals struct {
	Calls           int64   `json:"calls"`
	SuccessfulCalls int64   `json:"successful_calls"`
	FailedCalls     int64   `json:"failed_calls"`
	TotalDurationMs float64 `json:"total_duration_ms"`
}

// NewSink constructs a Sink bound to logger and the process-wide Prometheus
// registry.
func NewSink(logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		logger:      logger,
		prom:        newPromMetrics(),
		byMethod:    make(map[string]*methodTotals),
		byErrorType: make(map[string]int64),
	}
}

// NewSinkWithRegisterer builds a Sink against an isolated Prometheus
// registry, for tests that must not collide on global registration.
func NewSinkWithRegisterer(logger *zap.Logger, reg prometheus.Registerer) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		logger:      logger,
		prom:        NewPromMetricsWithRegisterer(reg),
		byMethod:    make(map[string]*methodTotals),
		byErrorType: make(map[string]int64),
	}
}

// NewRequestID allocates a UUIDv4 request id.
func NewRequestID() string {
	return uuid.NewString()
}

// RequestStart logs phase one of the three-phase request log.
func (s *Sink) RequestStart(requestID, method, url string) {
	s.logger.Info("request_start",
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("url", validate.SanitizeForLogging(url)),
	)
}

// RequestSuccess logs phase two and records all success-path metrics.
func (s *Sink) RequestSuccess(requestID, method, network string, duration time.Duration) {
	durMs := float64(duration.Microseconds()) / 1000.0

	s.prom.requestsTotal.WithLabelValues(method, network).Inc()
	s.prom.requestsSuccessfulTotal.WithLabelValues(method, network).Inc()
	s.prom.requestDuration.WithLabelValues(method, network).Observe(duration.Seconds())

	s.mu.Lock()
	s.totals.TotalCalls++
	s.totals.SuccessfulCalls++
	s.totals.TotalDurationMs += durMs
	s.totals.LatencyBuckets.record(durMs)
	mt := s.methodTotalsLocked(method)
	mt.Calls++
	mt.SuccessfulCalls++
	mt.TotalDurationMs += durMs
	s.mu.Unlock()

	s.logger.Info("request_success",
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.Float64("duration_ms", durMs),
	)
}

// RequestFailure logs phase three and records all failure-path metrics.
func (s *Sink) RequestFailure(requestID, method, network, errorType string, duration time.Duration) {
	durMs := float64(duration.Microseconds()) / 1000.0

	s.prom.requestsTotal.WithLabelValues(method, network).Inc()
	s.prom.requestsFailedTotal.WithLabelValues(method, network, errorType).Inc()
	s.prom.errorsTotal.WithLabelValues(errorType, method).Inc()
	s.prom.requestDuration.WithLabelValues(method, network).Observe(duration.Seconds())

	s.mu.Lock()
	s.totals.TotalCalls++
	s.totals.FailedCalls++
	s.totals.TotalDurationMs += durMs
	s.totals.LatencyBuckets.record(durMs)
	s.byErrorType[errorType]++
	mt := s.methodTotalsLocked(method)
	mt.Calls++
	mt.FailedCalls++
	mt.TotalDurationMs += durMs
	s.mu.Unlock()

	s.logger.Warn("request_failure",
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("error_type", errorType),
		zap.Float64("duration_ms", durMs),
	)
}

func (s *Sink) methodTotalsLocked(method string) *methodTotals {
	mt, ok := s.byMethod[method]
	if !ok {
		mt = &methodTotals{}
		s.byMethod[method] = mt
	}
	return mt
}

// CacheHit/CacheMiss/SetCacheSize feed the cache's dedicated series.
func (s *Sink) CacheHit(method string)  { s.prom.cacheHits.WithLabelValues(method).Inc() }
func (s *Sink) CacheMiss(method string) { s.prom.cacheMisses.WithLabelValues(method).Inc() }
func (s *Sink) SetCacheSize(n int64)    { s.prom.cacheSize.Set(float64(n)) }

// JSONTotals returns a point-in-time snapshot of the in-process totals view.
func (s *Sink) JSONTotals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.totals
	out.ByMethod = make(map[string]methodTotals, len(s.byMethod))
	for k, v := range s.byMethod {
		out.ByMethod[k] = *v
	}
	out.ByErrorType = make(map[string]int64, len(s.byErrorType))
	for k, v := range s.byErrorType {
		out.ByErrorType[k] = v
	}
	if out.TotalCalls > 0 {
		out.AvgDurationMs = out.TotalDurationMs / float64(out.TotalCalls)
	}
	return out
}
