package metrics

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

var (
	// RequestCounter counts HTTP requests by route template.
	RequestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platevision_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	ResponseTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "platevision_http_response_time_seconds",
		Help:    "HTTP response time in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"method", "path", "status"})

	// InferenceDuration times every detector and recognizer call.
	InferenceDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "platevision_inference_duration_seconds",
		Help:    "Model call duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"stage", "backend", "status"})

	BoxesPerImage = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "platevision_boxes_per_image",
		Help:    "Number of plate boxes returned by the detector per image",
		Buckets: []float64{0, 1, 2, 3, 5, 10, 25, 100},
	})

	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "platevision_cache_lookups_total",
		Help: "Plate result cache lookups",
	}, []string{"result"})

	SystemUsage = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "platevision_system_usage_ratio",
		Help: "Host CPU and memory usage between 0 and 1",
	}, []string{"resource"})
)

var (
	registerOnce sync.Once

	usageMu         sync.Mutex
	lastUsageUpdate time.Time
)

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			ResponseTime,
			InferenceDuration,
			BoxesPerImage,
			CacheLookups,
			SystemUsage,
		)
	})
}

func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

func RecordRequest(method, path, status string, duration float64) {
	RequestCounter.WithLabelValues(method, path, status).Inc()
	ResponseTime.WithLabelValues(method, path, status).Observe(duration)
}

func ObserveInference(stage, backend string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	InferenceDuration.WithLabelValues(stage, backend, status).Observe(duration.Seconds())
}

func ObserveBoxes(n int) {
	BoxesPerImage.Observe(float64(n))
}

func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookups.WithLabelValues(result).Inc()
}

// UpdateSystemUsage samples CPU and memory at most once every 10 seconds.
func UpdateSystemUsage() {
	usageMu.Lock()
	if time.Since(lastUsageUpdate) < 10*time.Second {
		usageMu.Unlock()
		return
	}
	lastUsageUpdate = time.Now()
	usageMu.Unlock()

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		SystemUsage.WithLabelValues("cpu").Set(percents[0] / 100)
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		SystemUsage.WithLabelValues("memory").Set(vm.UsedPercent / 100)
	}
}
