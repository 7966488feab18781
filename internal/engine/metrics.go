package engine

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько времени заняла обработка (включая avatar)
	RequestDuration *prometheus.HistogramVec

	// Traffic: общее кол-во запросов по типу операции
	TotalRequests *prometheus.CounterVec

	// Решения PDP: result = allow|deny, reason = код причины отказа
	Decisions *prometheus.CounterVec

	// Errors: отказы исполнения (timeout, rate_limit, circuit_open, execution)
	ErrorTotal *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - closed, 1 - half-open, 2 - open)
	CircuitBreakerState *prometheus.GaugeVec

	// Audit: заполненность буфера (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		RequestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "modifier_request_duration_seconds",
			Help:    "Histogram of request latencies.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"status"}),

		TotalRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "modifier_requests_total",
			Help: "Total number of processed requests.",
		}, []string{"operation"}),

		Decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "modifier_decisions_total",
			Help: "Authorization decisions by result and reason.",
		}, []string{"result", "reason"}),

		ErrorTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "modifier_errors_total",
			Help: "Total number of execution errors by type.",
		}, []string{"type"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "modifier_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"breaker"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "modifier_audit_buffer_utilization",
			Help: "Current number of events in audit buffer.",
		}),
	}
}

// BufferGauge отдает текущую заполненность буфера (audit.Journal).
type BufferGauge interface {
	Pending() int
}

// WatchAuditBuffer периодически публикует заполненность буфера аудита до отмены ctx.
func (m *Metrics) WatchAuditBuffer(ctx context.Context, buf BufferGauge, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		m.AuditBufferFill.Set(float64(buf.Pending()))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
