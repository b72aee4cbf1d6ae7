package receiver

// DefaultFrameBufferSize is the assembly capacity for the largest supported
// single frame.
const DefaultFrameBufferSize = 100 * 1024

// DefaultReadBufferSize is the staging size for a single socket read.
const DefaultReadBufferSize = 32 * 1024

// DefaultGuardBand is the headroom below capacity that triggers overflow
// shedding before the buffer is completely full.
const DefaultGuardBand = 1024

// FrameBuffer is a fixed-capacity byte accumulator. Incoming stream bytes are
// appended at the fill cursor and consumed frames are compacted off the front.
// The backing array is allocated once at construction and never grows: the
// capacity is a hard memory ceiling, and an unframeable overrun is shed rather
// than accommodated.
type FrameBuffer struct {
	data  []byte
	fill  int
	guard int
}

// NewFrameBuffer allocates a buffer with the given capacity and guard band.
// capacity must exceed the guard band; zero or negative values take defaults.
func NewFrameBuffer(capacity, guard int) *FrameBuffer {
	if capacity <= 0 {
		capacity = DefaultFrameBufferSize
	}
	if guard <= 0 {
		guard = DefaultGuardBand
	}
	if guard >= capacity {
		guard = capacity / 4
	}
	return &FrameBuffer{
		data:  make([]byte, capacity),
		guard: guard,
	}
}

// Append copies as many bytes of p as fit in the remaining capacity and
// returns how many were taken. A full buffer takes nothing; it never blocks
// and never grows.
func (b *FrameBuffer) Append(p []byte) int {
	n := copy(b.data[b.fill:], p)
	b.fill += n
	return n
}

// Compact removes the prefix [0, upto) by shifting the remainder to the
// front. Compacting at or past the fill length empties the buffer.
func (b *FrameBuffer) Compact(upto int) {
	if upto <= 0 {
		return
	}
	if upto >= b.fill {
		b.fill = 0
		return
	}
	copy(b.data, b.data[upto:b.fill])
	b.fill -= upto
}

// Shed discards the entire contents if the fill has crossed into the guard
// band, reporting whether a discard happened. Called when a scan found no
// frame: a buffer this full with no recoverable boundary holds either garbage
// or a frame too large to ever assemble, and holding onto it would wedge the
// pipeline permanently.
func (b *FrameBuffer) Shed() bool {
	if b.fill <= len(b.data)-b.guard {
		return false
	}
	b.fill = 0
	return true
}

// Reset empties the buffer. Used on connection transitions so no partial
// frame survives into a new session.
func (b *FrameBuffer) Reset() {
	b.fill = 0
}

// Bytes returns the accumulated contents. The slice aliases the backing array
// and is valid only until the next Append, Compact, or Reset.
func (b *FrameBuffer) Bytes() []byte {
	return b.data[:b.fill]
}

// Len returns the current fill length.
func (b *FrameBuffer) Len() int {
	return b.fill
}

// Cap returns the fixed capacity.
func (b *FrameBuffer) Cap() int {
	return len(b.data)
}
