// Package metrics provides metrics collection for browser fetch operations.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector collects and aggregates metrics.
type Collector struct {
	mu sync.RWMutex

	// Counters
	navigationsStarted   atomic.Int64
	navigationsCompleted atomic.Int64
	contentFetches       atomic.Int64
	bytesFetched         atomic.Int64
	gesturesRun          atomic.Int64
	errorsTotal          atomic.Int64

	// Rate tracking
	navigationsInWindow atomic.Int64
	errorsInWindow      atomic.Int64
	windowStart         atomic.Int64

	// Response time tracking
	responseTimesSum atomic.Int64
	responseTimesNum atomic.Int64

	// Histograms (buckets for response times in ms)
	responseTimeBuckets [10]atomic.Int64 // <10, <50, <100, <250, <500, <1000, <2500, <5000, <10000, >=10000

	// Error breakdown
	errorCounts map[string]*atomic.Int64
	errorMu     sync.RWMutex

	// Detection breakdown
	detections  map[string]*atomic.Int64
	detectionMu sync.RWMutex

	// Start time
	startTime time.Time
}

// New creates a new metrics collector.
func New() *Collector {
	now := time.Now()
	c := &Collector{
		errorCounts: make(map[string]*atomic.Int64),
		detections:  make(map[string]*atomic.Int64),
		startTime:   now,
	}
	c.windowStart.Store(now.UnixNano())
	return c
}

// RecordNavigation records a started navigation.
func (c *Collector) RecordNavigation() {
	c.navigationsStarted.Add(1)
	c.navigationsInWindow.Add(1)
}

// RecordNavigationComplete records a navigation that reached its target.
func (c *Collector) RecordNavigationComplete() {
	c.navigationsCompleted.Add(1)
}

// RecordContentFetch records a content extraction.
func (c *Collector) RecordContentFetch() {
	c.contentFetches.Add(1)
}

// RecordBytes records fetched content bytes.
func (c *Collector) RecordBytes(n int64) {
	c.bytesFetched.Add(n)
}

// RecordGesture records a completed evasion gesture.
func (c *Collector) RecordGesture() {
	c.gesturesRun.Add(1)
}

// RecordError records an error.
func (c *Collector) RecordError(errorType string) {
	c.errorsTotal.Add(1)
	c.errorsInWindow.Add(1)

	c.errorMu.Lock()
	if c.errorCounts[errorType] == nil {
		c.errorCounts[errorType] = &atomic.Int64{}
	}
	c.errorCounts[errorType].Add(1)
	c.errorMu.Unlock()
}

// RecordDetection records a detection hit for a category (waf, captcha, tech).
func (c *Collector) RecordDetection(category string) {
	c.detectionMu.Lock()
	if c.detections[category] == nil {
		c.detections[category] = &atomic.Int64{}
	}
	c.detections[category].Add(1)
	c.detectionMu.Unlock()
}

// RecordResponseTime records an operation round trip time.
func (c *Collector) RecordResponseTime(d time.Duration) {
	ms := d.Milliseconds()
	c.responseTimesSum.Add(ms)
	c.responseTimesNum.Add(1)

	// Update histogram bucket
	bucket := c.getBucket(ms)
	c.responseTimeBuckets[bucket].Add(1)
}

// getBucket returns the histogram bucket for a given response time.
func (c *Collector) getBucket(ms int64) int {
	switch {
	case ms < 10:
		return 0
	case ms < 50:
		return 1
	case ms < 100:
		return 2
	case ms < 250:
		return 3
	case ms < 500:
		return 4
	case ms < 1000:
		return 5
	case ms < 2500:
		return 6
	case ms < 5000:
		return 7
	case ms < 10000:
		return 8
	default:
		return 9
	}
}

// GetNavigationsPerSecond returns the current navigations per second rate.
func (c *Collector) GetNavigationsPerSecond() float64 {
	return c.getRatePerSecond(&c.navigationsInWindow)
}

// GetErrorsPerSecond returns the current errors per second rate.
func (c *Collector) GetErrorsPerSecond() float64 {
	return c.getRatePerSecond(&c.errorsInWindow)
}

// getRatePerSecond calculates rate per second with window rotation.
func (c *Collector) getRatePerSecond(counter *atomic.Int64) float64 {
	windowDuration := time.Duration(10) * time.Second
	now := time.Now().UnixNano()
	windowStart := c.windowStart.Load()

	elapsed := time.Duration(now - windowStart)
	if elapsed >= windowDuration {
		// Rotate window
		if c.windowStart.CompareAndSwap(windowStart, now) {
			c.navigationsInWindow.Store(0)
			c.errorsInWindow.Store(0)
		}
		return 0
	}

	count := counter.Load()
	if elapsed <= 0 {
		return 0
	}

	return float64(count) / elapsed.Seconds()
}

// GetAverageResponseTime returns the average response time.
func (c *Collector) GetAverageResponseTime() time.Duration {
	sum := c.responseTimesSum.Load()
	num := c.responseTimesNum.Load()
	if num == 0 {
		return 0
	}
	return time.Duration(sum/num) * time.Millisecond
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	c.mu.RLock()
	startTime := c.startTime
	c.mu.RUnlock()

	s := &Snapshot{
		Timestamp:            time.Now(),
		Uptime:               time.Since(startTime),
		NavigationsStarted:   c.navigationsStarted.Load(),
		NavigationsCompleted: c.navigationsCompleted.Load(),
		ContentFetches:       c.contentFetches.Load(),
		BytesFetched:         c.bytesFetched.Load(),
		GesturesRun:          c.gesturesRun.Load(),
		ErrorsTotal:          c.errorsTotal.Load(),
		NavigationsPerSecond: c.GetNavigationsPerSecond(),
		ErrorsPerSecond:      c.GetErrorsPerSecond(),
		AverageResponseTime:  c.GetAverageResponseTime(),
		ErrorCounts:          make(map[string]int64),
		Detections:           make(map[string]int64),
		ResponseTimeHist:     make([]int64, 10),
	}

	// Copy error counts
	c.errorMu.RLock()
	for k, v := range c.errorCounts {
		s.ErrorCounts[k] = v.Load()
	}
	c.errorMu.RUnlock()

	// Copy detections
	c.detectionMu.RLock()
	for k, v := range c.detections {
		s.Detections[k] = v.Load()
	}
	c.detectionMu.RUnlock()

	// Copy histogram
	for i := 0; i < 10; i++ {
		s.ResponseTimeHist[i] = c.responseTimeBuckets[i].Load()
	}

	return s
}

// Reset resets all metrics.
func (c *Collector) Reset() {
	c.navigationsStarted.Store(0)
	c.navigationsCompleted.Store(0)
	c.contentFetches.Store(0)
	c.bytesFetched.Store(0)
	c.gesturesRun.Store(0)
	c.errorsTotal.Store(0)
	c.navigationsInWindow.Store(0)
	c.errorsInWindow.Store(0)
	c.responseTimesSum.Store(0)
	c.responseTimesNum.Store(0)

	for i := 0; i < 10; i++ {
		c.responseTimeBuckets[i].Store(0)
	}

	c.errorMu.Lock()
	c.errorCounts = make(map[string]*atomic.Int64)
	c.errorMu.Unlock()

	c.detectionMu.Lock()
	c.detections = make(map[string]*atomic.Int64)
	c.detectionMu.Unlock()

	now := time.Now()
	c.windowStart.Store(now.UnixNano())
	c.mu.Lock()
	c.startTime = now
	c.mu.Unlock()
}

// Snapshot represents a point-in-time view of metrics.
type Snapshot struct {
	Timestamp            time.Time        `json:"timestamp"`
	Uptime               time.Duration    `json:"uptime"`
	NavigationsStarted   int64            `json:"navigations_started"`
	NavigationsCompleted int64            `json:"navigations_completed"`
	ContentFetches       int64            `json:"content_fetches"`
	BytesFetched         int64            `json:"bytes_fetched"`
	GesturesRun          int64            `json:"gestures_run"`
	ErrorsTotal          int64            `json:"errors_total"`
	NavigationsPerSecond float64          `json:"navigations_per_second"`
	ErrorsPerSecond      float64          `json:"errors_per_second"`
	AverageResponseTime  time.Duration    `json:"average_response_time"`
	ErrorCounts          map[string]int64 `json:"error_counts"`
	Detections           map[string]int64 `json:"detections"`
	ResponseTimeHist     []int64          `json:"response_time_histogram"`
}

// ErrorRate returns the error rate (errors/navigations).
func (s *Snapshot) ErrorRate() float64 {
	if s.NavigationsStarted == 0 {
		return 0
	}
	return float64(s.ErrorsTotal) / float64(s.NavigationsStarted)
}

// CompletionRate returns the share of started navigations that completed.
func (s *Snapshot) CompletionRate() float64 {
	if s.NavigationsStarted == 0 {
		return 0
	}
	return float64(s.NavigationsCompleted) / float64(s.NavigationsStarted)
}

// Summary returns a human-readable summary.
func (s *Snapshot) Summary() map[string]interface{} {
	return map[string]interface{}{
		"uptime":                 s.Uptime.String(),
		"navigations_started":    s.NavigationsStarted,
		"navigations_completed":  s.NavigationsCompleted,
		"content_fetches":        s.ContentFetches,
		"bytes_fetched":          s.BytesFetched,
		"gestures_run":           s.GesturesRun,
		"errors_total":           s.ErrorsTotal,
		"error_rate":             s.ErrorRate(),
		"navigations_per_second": s.NavigationsPerSecond,
		"avg_response_time_ms":   s.AverageResponseTime.Milliseconds(),
	}
}

// Global metrics collector.
var globalCollector = New()

// SetGlobal sets the global metrics collector.
func SetGlobal(c *Collector) {
	globalCollector = c
}

// Global returns the global metrics collector.
func Global() *Collector {
	return globalCollector
}
