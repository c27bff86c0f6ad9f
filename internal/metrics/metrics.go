package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Request metrics
	requestCount    map[string]*uint64    // endpoint:method -> count
	requestDuration map[string]*Histogram // endpoint:method -> duration histogram
	requestErrors   map[string]*uint64    // endpoint:method:status_class -> count

	// Pipeline metrics
	searchFallbacks  uint64
	segmentsStreamed uint64
	segmentsSkipped  uint64
	bytesStreamed    uint64
	activeStreams    int64

	startTime time.Time
}

// Histogram tracks value distributions
type Histogram struct {
	mu    sync.Mutex
	count uint64
	sum   float64
	// Buckets: 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s, 2.5s, 5s, 10s
	buckets    []float64
	bucketVals []uint64
}

// NewHistogram creates a new histogram with default buckets
func NewHistogram() *Histogram {
	return &Histogram{
		buckets:    []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		bucketVals: make([]uint64, 11),
	}
}

// Observe records a value
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, b := range h.buckets {
		if v <= b {
			h.bucketVals[i]++
		}
	}
}

// New creates a new Metrics instance
func New() *Metrics {
	return &Metrics{
		requestCount:    make(map[string]*uint64),
		requestDuration: make(map[string]*Histogram),
		requestErrors:   make(map[string]*uint64),
		startTime:       time.Now(),
	}
}

// global metrics instance
var defaultMetrics = New()

// Default returns the default metrics instance
func Default() *Metrics {
	return defaultMetrics
}

// RecordRequest records a request
func (m *Metrics) RecordRequest(method, path string, statusCode int, duration time.Duration) {
	key := fmt.Sprintf("%s:%s", path, method)

	// Grab the counter and histogram pointers under the lock; the maps may
	// be written concurrently by first hits on other endpoints.
	m.mu.Lock()
	count := m.requestCount[key]
	if count == nil {
		count = new(uint64)
		m.requestCount[key] = count
	}
	hist := m.requestDuration[key]
	if hist == nil {
		hist = NewHistogram()
		m.requestDuration[key] = hist
	}
	m.mu.Unlock()

	atomic.AddUint64(count, 1)
	hist.Observe(duration.Seconds())

	if statusCode >= 400 {
		errorKey := fmt.Sprintf("%s:%d", key, statusCode/100*100)
		m.mu.Lock()
		errCount := m.requestErrors[errorKey]
		if errCount == nil {
			errCount = new(uint64)
			m.requestErrors[errorKey] = errCount
		}
		m.mu.Unlock()
		atomic.AddUint64(errCount, 1)
	}
}

// RecordSearchFallback counts a fall-through from the platform search API to
// the web-search strategy.
func (m *Metrics) RecordSearchFallback() {
	atomic.AddUint64(&m.searchFallbacks, 1)
}

// RecordSegment records one streamed segment and its size.
func (m *Metrics) RecordSegment(bytes int64) {
	atomic.AddUint64(&m.segmentsStreamed, 1)
	atomic.AddUint64(&m.bytesStreamed, uint64(bytes))
}

// RecordSkippedSegment counts a segment dropped mid-stream.
func (m *Metrics) RecordSkippedSegment() {
	atomic.AddUint64(&m.segmentsSkipped, 1)
}

// IncActiveStreams increments the in-flight download counter.
func (m *Metrics) IncActiveStreams() {
	atomic.AddInt64(&m.activeStreams, 1)
}

// DecActiveStreams decrements the in-flight download counter.
func (m *Metrics) DecActiveStreams() {
	atomic.AddInt64(&m.activeStreams, -1)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder

		uptime := time.Since(m.startTime).Seconds()
		sb.WriteString("# HELP dsb_uptime_seconds Time since the server started\n")
		sb.WriteString("# TYPE dsb_uptime_seconds gauge\n")
		sb.WriteString(fmt.Sprintf("dsb_uptime_seconds %f\n\n", uptime))

		sb.WriteString("# HELP dsb_streams_active In-flight download streams\n")
		sb.WriteString("# TYPE dsb_streams_active gauge\n")
		sb.WriteString(fmt.Sprintf("dsb_streams_active %d\n\n", atomic.LoadInt64(&m.activeStreams)))

		sb.WriteString("# HELP dsb_search_fallbacks_total Searches served by the web-search fallback\n")
		sb.WriteString("# TYPE dsb_search_fallbacks_total counter\n")
		sb.WriteString(fmt.Sprintf("dsb_search_fallbacks_total %d\n\n", atomic.LoadUint64(&m.searchFallbacks)))

		sb.WriteString("# HELP dsb_segments_streamed_total Media segments forwarded to clients\n")
		sb.WriteString("# TYPE dsb_segments_streamed_total counter\n")
		sb.WriteString(fmt.Sprintf("dsb_segments_streamed_total %d\n\n", atomic.LoadUint64(&m.segmentsStreamed)))

		sb.WriteString("# HELP dsb_segments_skipped_total Media segments dropped after fetch failure\n")
		sb.WriteString("# TYPE dsb_segments_skipped_total counter\n")
		sb.WriteString(fmt.Sprintf("dsb_segments_skipped_total %d\n\n", atomic.LoadUint64(&m.segmentsSkipped)))

		sb.WriteString("# HELP dsb_bytes_streamed_total Media bytes forwarded to clients\n")
		sb.WriteString("# TYPE dsb_bytes_streamed_total counter\n")
		sb.WriteString(fmt.Sprintf("dsb_bytes_streamed_total %d\n\n", atomic.LoadUint64(&m.bytesStreamed)))

		// Request counts
		m.mu.RLock()
		if len(m.requestCount) > 0 {
			sb.WriteString("# HELP dsb_http_requests_total Total HTTP requests\n")
			sb.WriteString("# TYPE dsb_http_requests_total counter\n")
			keys := make([]string, 0, len(m.requestCount))
			for k := range m.requestCount {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, key := range keys {
				parts := strings.SplitN(key, ":", 2)
				if len(parts) == 2 {
					count := atomic.LoadUint64(m.requestCount[key])
					sb.WriteString(fmt.Sprintf("dsb_http_requests_total{endpoint=%q,method=%q} %d\n", parts[0], parts[1], count))
				}
			}
			sb.WriteString("\n")
		}

		// Request duration histograms
		if len(m.requestDuration) > 0 {
			sb.WriteString("# HELP dsb_http_request_duration_seconds HTTP request latency\n")
			sb.WriteString("# TYPE dsb_http_request_duration_seconds histogram\n")
			keys := make([]string, 0, len(m.requestDuration))
			for k := range m.requestDuration {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, key := range keys {
				parts := strings.SplitN(key, ":", 2)
				if len(parts) == 2 {
					h := m.requestDuration[key]
					h.mu.Lock()
					for i, bucket := range h.buckets {
						sb.WriteString(fmt.Sprintf("dsb_http_request_duration_seconds_bucket{endpoint=%q,method=%q,le=\"%g\"} %d\n", parts[0], parts[1], bucket, h.bucketVals[i]))
					}
					sb.WriteString(fmt.Sprintf("dsb_http_request_duration_seconds_bucket{endpoint=%q,method=%q,le=\"+Inf\"} %d\n", parts[0], parts[1], h.count))
					sb.WriteString(fmt.Sprintf("dsb_http_request_duration_seconds_sum{endpoint=%q,method=%q} %f\n", parts[0], parts[1], h.sum))
					sb.WriteString(fmt.Sprintf("dsb_http_request_duration_seconds_count{endpoint=%q,method=%q} %d\n", parts[0], parts[1], h.count))
					h.mu.Unlock()
				}
			}
			sb.WriteString("\n")
		}

		// Error counts
		if len(m.requestErrors) > 0 {
			sb.WriteString("# HELP dsb_http_errors_total Total HTTP errors by status class\n")
			sb.WriteString("# TYPE dsb_http_errors_total counter\n")
			keys := make([]string, 0, len(m.requestErrors))
			for k := range m.requestErrors {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, key := range keys {
				parts := strings.Split(key, ":")
				if len(parts) >= 3 {
					count := atomic.LoadUint64(m.requestErrors[key])
					sb.WriteString(fmt.Sprintf("dsb_http_errors_total{endpoint=%q,method=%q,status=%q} %d\n", parts[0], parts[1], parts[2], count))
				}
			}
		}
		m.mu.RUnlock()

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(sb.String()))
	}
}
