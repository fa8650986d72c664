package iostream

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks performance and operational statistics for a device.
type Metrics struct {
	// I/O operation counters
	ReadOps  atomic.Uint64
	WriteOps atomic.Uint64
	SeekOps  atomic.Uint64

	// Byte counters
	ReadBytes  atomic.Uint64
	WriteBytes atomic.Uint64

	// Error counters
	ReadErrors  atomic.Uint64
	WriteErrors atomic.Uint64

	// Granule buffer-wait statistics: how long a task waited for a granule
	// to become ready via GetBuffer, or for a free granule on Acquire.
	BufferWaitTotalNs atomic.Uint64
	BufferWaitCount   atomic.Uint64

	// ForceCleanupCount counts invocations of the starvation-recovery
	// protocol that actually killed a task.
	ForceCleanupCount atomic.Uint64

	// Pool occupancy statistics
	PoolOccupiedTotal atomic.Uint64 // cumulative held-granule samples
	PoolSampleCount   atomic.Uint64
	MaxPoolOccupied   atomic.Uint32

	// Performance tracking
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// Latency histogram buckets (cumulative counts); bucket[i] holds the
	// count of operations with latency <= LatencyBuckets[i].
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Device lifecycle
	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordRead records a read operation.
func (m *Metrics) RecordRead(bytes uint64, latencyNs uint64, success bool) {
	m.ReadOps.Add(1)
	if success {
		m.ReadBytes.Add(bytes)
	} else {
		m.ReadErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordWrite records a write operation.
func (m *Metrics) RecordWrite(bytes uint64, latencyNs uint64, success bool) {
	m.WriteOps.Add(1)
	if success {
		m.WriteBytes.Add(bytes)
	} else {
		m.WriteErrors.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordSeek records a seek operation.
func (m *Metrics) RecordSeek(latencyNs uint64) {
	m.SeekOps.Add(1)
	m.recordLatency(latencyNs)
}

// RecordBufferWait records time a consumer or scheduler spent waiting for
// a granule.
func (m *Metrics) RecordBufferWait(latencyNs uint64) {
	m.BufferWaitTotalNs.Add(latencyNs)
	m.BufferWaitCount.Add(1)
}

// RecordForceCleanup records one invocation of the starvation-recovery
// protocol that killed a task.
func (m *Metrics) RecordForceCleanup() {
	m.ForceCleanupCount.Add(1)
}

// RecordPoolOccupancy records the number of granules currently held by
// tasks, for occupancy statistics.
func (m *Metrics) RecordPoolOccupancy(held uint32) {
	m.PoolOccupiedTotal.Add(uint64(held))
	m.PoolSampleCount.Add(1)

	for {
		current := m.MaxPoolOccupied.Load()
		if held <= current {
			break
		}
		if m.MaxPoolOccupied.CompareAndSwap(current, held) {
			break
		}
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the device as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics.
type MetricsSnapshot struct {
	ReadOps  uint64
	WriteOps uint64
	SeekOps  uint64

	ReadBytes  uint64
	WriteBytes uint64

	ReadErrors  uint64
	WriteErrors uint64

	ForceCleanupCount uint64

	AvgPoolOccupied float64
	MaxPoolOccupied uint32

	AvgBufferWaitNs uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64

	ReadIOPS       float64
	WriteIOPS      float64
	ReadBandwidth  float64
	WriteBandwidth float64
	TotalOps       uint64
	TotalBytes     uint64
	ErrorRate      float64
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		ReadOps:           m.ReadOps.Load(),
		WriteOps:          m.WriteOps.Load(),
		SeekOps:           m.SeekOps.Load(),
		ReadBytes:         m.ReadBytes.Load(),
		WriteBytes:        m.WriteBytes.Load(),
		ReadErrors:        m.ReadErrors.Load(),
		WriteErrors:       m.WriteErrors.Load(),
		ForceCleanupCount: m.ForceCleanupCount.Load(),
		MaxPoolOccupied:   m.MaxPoolOccupied.Load(),
	}

	snap.TotalOps = snap.ReadOps + snap.WriteOps + snap.SeekOps
	snap.TotalBytes = snap.ReadBytes + snap.WriteBytes

	poolTotal := m.PoolOccupiedTotal.Load()
	poolCount := m.PoolSampleCount.Load()
	if poolCount > 0 {
		snap.AvgPoolOccupied = float64(poolTotal) / float64(poolCount)
	}

	waitTotal := m.BufferWaitTotalNs.Load()
	waitCount := m.BufferWaitCount.Load()
	if waitCount > 0 {
		snap.AvgBufferWaitNs = waitTotal / waitCount
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	if snap.UptimeNs > 0 {
		uptimeSeconds := float64(snap.UptimeNs) / 1e9
		snap.ReadIOPS = float64(snap.ReadOps) / uptimeSeconds
		snap.WriteIOPS = float64(snap.WriteOps) / uptimeSeconds
		snap.ReadBandwidth = float64(snap.ReadBytes) / uptimeSeconds
		snap.WriteBandwidth = float64(snap.WriteBytes) / uptimeSeconds
	}

	totalErrors := snap.ReadErrors + snap.WriteErrors
	if snap.TotalOps > 0 {
		snap.ErrorRate = float64(totalErrors) / float64(snap.TotalOps) * 100.0
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile
// (0.0-1.0) using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters (useful for testing).
func (m *Metrics) Reset() {
	m.ReadOps.Store(0)
	m.WriteOps.Store(0)
	m.SeekOps.Store(0)
	m.ReadBytes.Store(0)
	m.WriteBytes.Store(0)
	m.ReadErrors.Store(0)
	m.WriteErrors.Store(0)
	m.ForceCleanupCount.Store(0)
	m.PoolOccupiedTotal.Store(0)
	m.PoolSampleCount.Store(0)
	m.MaxPoolOccupied.Store(0)
	m.BufferWaitTotalNs.Store(0)
	m.BufferWaitCount.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection.
type Observer interface {
	ObserveRead(bytes uint64, latencyNs uint64, success bool)
	ObserveWrite(bytes uint64, latencyNs uint64, success bool)
	ObserveSeek(latencyNs uint64)
	ObserveBufferWait(latencyNs uint64)
	ObserveForceCleanup()
	ObservePoolOccupancy(held uint32)
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveRead(uint64, uint64, bool) {}
func (NoOpObserver) ObserveWrite(uint64, uint64, bool) {}
func (NoOpObserver) ObserveSeek(uint64)           {}
func (NoOpObserver) ObserveBufferWait(uint64)     {}
func (NoOpObserver) ObserveForceCleanup()         {}
func (NoOpObserver) ObservePoolOccupancy(uint32)  {}

// MetricsObserver implements Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveRead(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordRead(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveWrite(bytes uint64, latencyNs uint64, success bool) {
	o.metrics.RecordWrite(bytes, latencyNs, success)
}

func (o *MetricsObserver) ObserveSeek(latencyNs uint64) {
	o.metrics.RecordSeek(latencyNs)
}

func (o *MetricsObserver) ObserveBufferWait(latencyNs uint64) {
	o.metrics.RecordBufferWait(latencyNs)
}

func (o *MetricsObserver) ObserveForceCleanup() {
	o.metrics.RecordForceCleanup()
}

func (o *MetricsObserver) ObservePoolOccupancy(held uint32) {
	o.metrics.RecordPoolOccupancy(held)
}

// Compile-time interface checks
var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
