package receiver

import (
	"sync"
	"time"
)

// DefaultStatsInterval is how often telemetry is reported.
const DefaultStatsInterval = 2 * time.Second

// Report is one telemetry tick's worth of derived rates.
type Report struct {
	FPS         float64
	Kbps        float64
	AvgDecodeMs float64
	Frames      uint64 // frames decoded this interval
	TotalFrames uint64 // frames decoded since connect
}

// Snapshot is a point-in-time copy of the cumulative counters, served by the
// admin status endpoint.
type Snapshot struct {
	TotalFrames      uint64  `json:"frames_total"`
	TotalBytes       uint64  `json:"bytes_total"`
	DecodeErrors     uint64  `json:"decode_errors_total"`
	OverflowDiscards uint64  `json:"overflow_discards_total"`
	LastFPS          float64 `json:"fps"`
	LastKbps         float64 `json:"kbps"`
	LastAvgDecodeMs  float64 `json:"avg_decode_ms"`
}

// Stats accumulates throughput and latency counters for the pipeline. The
// pipeline goroutine is the only writer; the mutex exists because the admin
// HTTP handlers read snapshots from other goroutines. Interval accumulators
// reset each tick, cumulative totals reset on a new connection.
type Stats struct {
	mu       sync.Mutex
	interval time.Duration
	lastTick time.Time

	// interval accumulators
	frames     uint64
	bytes      uint64
	decodeTime time.Duration

	// cumulative since connect
	totalFrames      uint64
	totalBytes       uint64
	decodeErrors     uint64
	overflowDiscards uint64

	// last computed rates, retained for the status endpoint
	lastFPS         float64
	lastKbps        float64
	lastAvgDecodeMs float64
}

// NewStats returns a Stats reporting every interval; zero or negative takes
// the default.
func NewStats(interval time.Duration) *Stats {
	if interval <= 0 {
		interval = DefaultStatsInterval
	}
	return &Stats{interval: interval, lastTick: time.Now()}
}

// Reset clears everything. Called when a new sender connects so one session's
// numbers never bleed into the next.
func (s *Stats) Reset(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames, s.bytes, s.decodeTime = 0, 0, 0
	s.totalFrames, s.totalBytes = 0, 0
	s.decodeErrors, s.overflowDiscards = 0, 0
	s.lastFPS, s.lastKbps, s.lastAvgDecodeMs = 0, 0, 0
	s.lastTick = now
}

// AddBytes records n stream bytes read from the socket.
func (s *Stats) AddBytes(n int) {
	s.mu.Lock()
	s.bytes += uint64(n)
	s.totalBytes += uint64(n)
	s.mu.Unlock()
}

// RecordFrame records one successfully decoded frame and its decode latency.
func (s *Stats) RecordFrame(decode time.Duration) {
	s.mu.Lock()
	s.frames++
	s.totalFrames++
	s.decodeTime += decode
	s.mu.Unlock()
}

// RecordDecodeError records one undecodable frame.
func (s *Stats) RecordDecodeError() {
	s.mu.Lock()
	s.decodeErrors++
	s.mu.Unlock()
}

// RecordOverflowDiscard records one buffer shed.
func (s *Stats) RecordOverflowDiscard() {
	s.mu.Lock()
	s.overflowDiscards++
	s.mu.Unlock()
}

// Tick reports whether a reporting interval has elapsed, and if so computes
// the interval's rates, resets the interval accumulators, and returns the
// report. Cheap when no tick is due: one lock and a time comparison.
func (s *Stats) Tick(now time.Time) (Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	elapsed := now.Sub(s.lastTick)
	if elapsed < s.interval {
		return Report{}, false
	}

	secs := elapsed.Seconds()
	r := Report{
		FPS:         float64(s.frames) / secs,
		Kbps:        float64(s.bytes) * 8 / (secs * 1000),
		Frames:      s.frames,
		TotalFrames: s.totalFrames,
	}
	if s.frames > 0 {
		r.AvgDecodeMs = float64(s.decodeTime.Milliseconds()) / float64(s.frames)
	}

	s.lastFPS = r.FPS
	s.lastKbps = r.Kbps
	s.lastAvgDecodeMs = r.AvgDecodeMs
	s.frames, s.bytes, s.decodeTime = 0, 0, 0
	s.lastTick = now
	return r, true
}

// Snapshot returns a copy of the cumulative counters and last computed rates.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		TotalFrames:      s.totalFrames,
		TotalBytes:       s.totalBytes,
		DecodeErrors:     s.decodeErrors,
		OverflowDiscards: s.overflowDiscards,
		LastFPS:          s.lastFPS,
		LastKbps:         s.lastKbps,
		LastAvgDecodeMs:  s.lastAvgDecodeMs,
	}
}
