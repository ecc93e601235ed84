package delivery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_EmptyChannel(t *testing.T) {
	r := NewRecorder(10)

	m := r.Snapshot(ChannelPush)
	assert.Equal(t, 0, m.Count)
	assert.Equal(t, 0.0, m.DeliveryRate)
}

func TestRecorder_RatesAndCounts(t *testing.T) {
	r := NewRecorder(10)

	for i := 0; i < 8; i++ {
		r.Record(ChannelPush, true, 10*time.Millisecond)
	}
	r.Record(ChannelPush, false, 50*time.Millisecond)
	r.Record(ChannelPush, false, 50*time.Millisecond)

	m := r.Snapshot(ChannelPush)
	assert.Equal(t, 10, m.Count)
	assert.Equal(t, 8, m.Successes)
	assert.Equal(t, 2, m.Failures)
	assert.InDelta(t, 0.8, m.DeliveryRate, 1e-9)
	assert.InDelta(t, 0.2, m.ErrorRate, 1e-9)
}

func TestRecorder_Percentiles(t *testing.T) {
	r := NewRecorder(100)

	// 1..100 ms: nearest-rank p50 = 50, p95 = 95, p99 = 99.
	for i := 1; i <= 100; i++ {
		r.Record(ChannelEmail, true, time.Duration(i)*time.Millisecond)
	}

	m := r.Snapshot(ChannelEmail)
	assert.Equal(t, 50.0, m.P50LatencyMs)
	assert.Equal(t, 95.0, m.P95LatencyMs)
	assert.Equal(t, 99.0, m.P99LatencyMs)
}

func TestRecorder_WindowEvictsOldest(t *testing.T) {
	r := NewRecorder(5)

	for i := 0; i < 5; i++ {
		r.Record(ChannelSMS, false, time.Millisecond)
	}
	// Five newer successes push every failure out of the window.
	for i := 0; i < 5; i++ {
		r.Record(ChannelSMS, true, time.Millisecond)
	}

	m := r.Snapshot(ChannelSMS)
	assert.Equal(t, 5, m.Count)
	assert.Equal(t, 5, m.Successes)
	assert.Equal(t, 0, m.Failures)
	assert.Equal(t, 1.0, m.DeliveryRate)
}

func TestRecorder_SnapshotAll(t *testing.T) {
	r := NewRecorder(10)
	r.Record(ChannelPush, true, time.Millisecond)
	r.Record(ChannelEmail, false, time.Millisecond)

	all := r.SnapshotAll()
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[ChannelPush].Successes)
	assert.Equal(t, 1, all[ChannelEmail].Failures)
}
