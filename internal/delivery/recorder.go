package delivery

import (
	"math"
	"sort"
	"sync"
	"time"
)

// ChannelMetrics is a point-in-time view of one channel's rolling window.
type ChannelMetrics struct {
	Channel      Channel `json:"channel"`
	Count        int     `json:"count"`
	Successes    int     `json:"successes"`
	Failures     int     `json:"failures"`
	DeliveryRate float64 `json:"delivery_rate"`
	ErrorRate    float64 `json:"error_rate"`
	P50LatencyMs float64 `json:"p50_latency_ms"`
	P95LatencyMs float64 `json:"p95_latency_ms"`
	P99LatencyMs float64 `json:"p99_latency_ms"`
}

type attemptSample struct {
	success   bool
	latencyMs float64
}

type channelWindow struct {
	samples []attemptSample
	next    int
	full    bool
}

// Recorder keeps a bounded rolling window of attempt outcomes and latencies
// per channel. Oldest samples are evicted once the window is full. Safe for
// concurrent use by many in-flight cascades.
type Recorder struct {
	mu         sync.Mutex
	windowSize int
	channels   map[Channel]*channelWindow
}

// NewRecorder creates a recorder with the given per-channel window size.
func NewRecorder(windowSize int) *Recorder {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &Recorder{
		windowSize: windowSize,
		channels:   make(map[Channel]*channelWindow),
	}
}

// Record adds one attempt outcome to the channel's rolling window.
func (r *Recorder) Record(ch Channel, success bool, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.channels[ch]
	if !ok {
		w = &channelWindow{samples: make([]attemptSample, r.windowSize)}
		r.channels[ch] = w
	}

	w.samples[w.next] = attemptSample{
		success:   success,
		latencyMs: float64(latency.Milliseconds()),
	}
	w.next++
	if w.next == r.windowSize {
		w.next = 0
		w.full = true
	}
}

// Snapshot returns the current rolling metrics for one channel.
func (r *Recorder) Snapshot(ch Channel) ChannelMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := ChannelMetrics{Channel: ch}

	w, ok := r.channels[ch]
	if !ok {
		return m
	}

	n := w.next
	if w.full {
		n = r.windowSize
	}
	if n == 0 {
		return m
	}

	latencies := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		s := w.samples[i]
		if s.success {
			m.Successes++
		} else {
			m.Failures++
		}
		latencies = append(latencies, s.latencyMs)
	}

	m.Count = n
	m.DeliveryRate = float64(m.Successes) / float64(n)
	m.ErrorRate = float64(m.Failures) / float64(n)

	sort.Float64s(latencies)
	m.P50LatencyMs = percentile(latencies, 0.50)
	m.P95LatencyMs = percentile(latencies, 0.95)
	m.P99LatencyMs = percentile(latencies, 0.99)

	return m
}

// SnapshotAll returns rolling metrics for every channel seen so far.
func (r *Recorder) SnapshotAll() map[Channel]ChannelMetrics {
	r.mu.Lock()
	channels := make([]Channel, 0, len(r.channels))
	for ch := range r.channels {
		channels = append(channels, ch)
	}
	r.mu.Unlock()

	out := make(map[Channel]ChannelMetrics, len(channels))
	for _, ch := range channels {
		out[ch] = r.Snapshot(ch)
	}
	return out
}

// percentile uses nearest-rank on an already sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := int(math.Ceil(p * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
