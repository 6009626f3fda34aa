package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// Metrics owns its registry so tests and multiple servers never collide on
// the default one. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry   *prometheus.Registry
	requests   *prometheus.CounterVec
	detections *prometheus.CounterVec
	rejected   *prometheus.CounterVec
	latency    prometheus.Histogram
	memUsage   prometheus.Gauge
	cpuUsage   prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nutbolt_requests_total",
			Help: "Detection requests by transport and outcome",
		}, []string{"transport", "outcome"}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nutbolt_detections_total",
			Help: "Accepted detections by class",
		}, []string{"class"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nutbolt_rejected_boxes_total",
			Help: "Raw boxes dropped by the size and ratio filters",
		}, []string{"reason"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nutbolt_detect_duration_seconds",
			Help:    "End-to-end detection latency",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		memUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "memory_usage_megabytes",
			Help: "Memory usage in Megabytes",
		}),
		cpuUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cpu_usage_percent",
			Help: "CPU usage in percent",
		}),
	}
	m.Registry.MustRegister(m.requests, m.detections, m.rejected, m.latency, m.memUsage, m.cpuUsage)
	return m
}

func (m *Metrics) ObserveRequest(transport, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(transport, outcome).Inc()
}

func (m *Metrics) ObserveDetections(counts, rejected map[string]int, elapsed time.Duration) {
	if m == nil {
		return
	}
	for class, n := range counts {
		m.detections.WithLabelValues(class).Add(float64(n))
	}
	for reason, n := range rejected {
		m.rejected.WithLabelValues(reason).Add(float64(n))
	}
	m.latency.Observe(elapsed.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// CheckProcessInfo samples RSS and CPU of proc into the gauges.
func (m *Metrics) CheckProcessInfo(proc *process.Process) {
	if m == nil || proc == nil {
		return
	}
	if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
		m.memUsage.Set(float64(memInfo.RSS / 1024 / 1024))
	}
	if cpuPercent, err := proc.CPUPercent(); err == nil {
		m.cpuUsage.Set(math.Round(cpuPercent*100) / 100)
	}
}

// StartMon serves /metrics on port and samples this process every 500ms
// until ctx is done.
func (m *Metrics) StartMon(ctx context.Context, port int, log *zap.Logger) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("process sampling disabled", zap.Error(err))
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("metrics server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server ListenAndServe error", zap.Error(err))
		}
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
checkPcs:
	for {
		select {
		case <-ctx.Done():
			break checkPcs
		case <-ticker.C:
			m.CheckProcessInfo(proc)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics server shutdown error", zap.Error(err))
	}
}
