package receiver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mjpeg-receiver/internal/platform/metrics"
)

// State identifies the pipeline's position in its connection lifecycle.
type State string

const (
	// StateWaiting means no sender is connected; the pipeline polls accept.
	StateWaiting State = "waiting_for_client"
	// StateStreaming means a sender is connected and frames are flowing.
	StateStreaming State = "streaming"
)

// minScanFill is the smallest fill worth scanning: an SOI plus an EOI.
const minScanFill = 4

// WaitingDisplay is re-shown whenever the pipeline returns to the waiting
// state so a stale frame never lingers on screen.
type WaitingDisplay interface {
	ShowWaiting()
}

// Pipeline is the single-goroutine receive/decode/render loop. It owns the
// receive buffer, the staging read slice, and the telemetry accumulators;
// nothing else mutates them. Each cycle services the connection, drains the
// socket into the buffer, extracts and renders at most one frame, applies the
// overflow policy, and emits telemetry.
type Pipeline struct {
	src     Source
	buf     *FrameBuffer
	stage   []byte
	sink    *RenderSink
	stats   *Stats
	log     *slog.Logger
	metrics *metrics.Metrics
	idle    WaitingDisplay

	// mu guards state and remote: the pipeline goroutine writes them on
	// connection transitions and the admin handlers read them from other
	// goroutines, same discipline as Stats.
	mu     sync.Mutex
	state  State
	remote string
}

// Options configures a Pipeline. Zero fields take defaults.
type Options struct {
	FrameBufferSize int           // assembly capacity, default 100 KiB
	ReadBufferSize  int           // socket read staging size, default 32 KiB
	GuardBand       int           // overflow headroom, default 1 KiB
	StatsInterval   time.Duration // telemetry period, default 2s
}

// NewPipeline wires a pipeline from its collaborators. m may be nil to
// disable metric recording (e.g. in tests); idle may be nil when the display
// has no waiting screen.
func NewPipeline(src Source, sink *RenderSink, idle WaitingDisplay, log *slog.Logger, m *metrics.Metrics, opts Options) *Pipeline {
	readSize := opts.ReadBufferSize
	if readSize <= 0 {
		readSize = DefaultReadBufferSize
	}
	return &Pipeline{
		src:     src,
		buf:     NewFrameBuffer(opts.FrameBufferSize, opts.GuardBand),
		stage:   make([]byte, readSize),
		sink:    sink,
		stats:   NewStats(opts.StatsInterval),
		log:     log,
		metrics: m,
		idle:    idle,
		state:   StateWaiting,
	}
}

// Stats exposes the telemetry accumulator for the admin status endpoint.
func (p *Pipeline) Stats() *Stats {
	return p.stats
}

// State returns the current lifecycle state. Read by the admin handlers; the
// value is advisory and may trail the pipeline by one cycle.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// RemoteAddr returns the connected sender's address, or "" when waiting.
func (p *Pipeline) RemoteAddr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

// setSession records a connection transition.
func (p *Pipeline) setSession(state State, remote string) {
	p.mu.Lock()
	p.state = state
	p.remote = remote
	p.mu.Unlock()
}

// Run executes the pipeline until ctx is cancelled. It never returns an
// error: every stream-level failure is absorbed by the discard-and-continue
// policy, and connection failures reset the pipeline to the waiting state.
func (p *Pipeline) Run(ctx context.Context) {
	if p.idle != nil {
		p.idle.ShowWaiting()
	}
	for {
		select {
		case <-ctx.Done():
			p.src.CloseConn()
			return
		default:
		}
		p.cycle()
	}
}

// cycle performs one iteration of the cooperative loop. Blocking is bounded:
// Accept and Read carry short poll deadlines, and the synchronous decode is
// the only multi-millisecond step, which is the useful work.
func (p *Pipeline) cycle() {
	if !p.src.Live() {
		if p.src.Accept() {
			p.onConnect()
		}
		return
	}

	room := p.buf.Cap() - p.buf.Len()
	if room > 0 {
		limit := room
		if limit > len(p.stage) {
			limit = len(p.stage)
		}
		n, err := p.src.Read(p.stage[:limit])
		if err != nil {
			p.onDisconnect(err)
			return
		}
		if n > 0 {
			p.buf.Append(p.stage[:n])
			p.stats.AddBytes(n)
			if p.metrics != nil {
				p.metrics.AddBytesReceived(n)
			}
		}
	}

	extracted := false
	if p.buf.Len() >= minScanFill {
		if start, size, ok := FindFrame(p.buf.Bytes()); ok {
			p.renderFrame(p.buf.Bytes()[start : start+size])
			// Compaction also drops any filler bytes before the frame.
			p.buf.Compact(start + size)
			extracted = true
		}
	}

	if !extracted && p.buf.Shed() {
		p.log.Warn("receive buffer overflow, discarding accumulated data",
			slog.Int("capacity", p.buf.Cap()))
		p.stats.RecordOverflowDiscard()
		if p.metrics != nil {
			p.metrics.IncFramesDropped()
		}
	}

	if r, ok := p.stats.Tick(time.Now()); ok {
		p.log.Info("telemetry",
			slog.Float64("fps", r.FPS),
			slog.Float64("kbps", r.Kbps),
			slog.Float64("avg_decode_ms", r.AvgDecodeMs),
			slog.Uint64("frames_total", r.TotalFrames))
	}
}

// renderFrame hands one located frame to the sink. Decode failures are
// counted and logged; the caller compacts past the frame either way so the
// same bytes are never re-attempted.
func (p *Pipeline) renderFrame(frame []byte) {
	took, err := p.sink.Render(frame)
	if err != nil {
		p.log.Warn("frame decode failed",
			slog.Int("frame_size", len(frame)),
			slog.String("error", err.Error()))
		p.stats.RecordDecodeError()
		if p.metrics != nil {
			p.metrics.IncDecodeErrors()
		}
		return
	}
	p.stats.RecordFrame(took)
	if p.metrics != nil {
		p.metrics.IncFramesDecoded()
	}
}

// onConnect resets all downstream state for the new session. A partial frame
// or counter from a previous sender must never survive into this one.
func (p *Pipeline) onConnect() {
	p.buf.Reset()
	p.stats.Reset(time.Now())
	p.setSession(StateStreaming, p.src.RemoteAddr())
	p.log.Info("sender connected", slog.String("remote", p.RemoteAddr()))
	if p.metrics != nil {
		p.metrics.IncConnects()
		p.metrics.SetClientConnected(true)
	}
}

// onDisconnect returns the pipeline to the waiting state.
func (p *Pipeline) onDisconnect(cause error) {
	p.buf.Reset()
	p.log.Info("sender disconnected",
		slog.String("remote", p.RemoteAddr()),
		slog.String("cause", cause.Error()))
	p.setSession(StateWaiting, "")
	if p.metrics != nil {
		p.metrics.IncDisconnects()
		p.metrics.SetClientConnected(false)
	}
	if p.idle != nil {
		p.idle.ShowWaiting()
	}
}
