package receiver

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"mjpeg-receiver/internal/decoder"
	"mjpeg-receiver/internal/display"
	"mjpeg-receiver/internal/platform/logger"
)

// step is one scripted event for a fake Source: a connection arriving, a
// chunk of stream bytes, or a connection-level error.
type step struct {
	connect bool
	data    []byte
	err     error
}

// scriptSource feeds the pipeline a fixed sequence of events.
type scriptSource struct {
	steps []step
	live  bool
}

func (s *scriptSource) Accept() bool {
	if s.live || len(s.steps) == 0 || !s.steps[0].connect {
		return false
	}
	s.steps = s.steps[1:]
	s.live = true
	return true
}

func (s *scriptSource) Live() bool { return s.live }

func (s *scriptSource) Read(p []byte) (int, error) {
	if !s.live {
		return 0, ErrNotConnected
	}
	if len(s.steps) == 0 || s.steps[0].connect {
		return 0, nil // no data this cycle
	}
	st := s.steps[0]
	if st.err != nil {
		s.steps = s.steps[1:]
		s.live = false
		return 0, st.err
	}
	n := copy(p, st.data)
	if n < len(st.data) {
		s.steps[0].data = st.data[n:]
	} else {
		s.steps = s.steps[1:]
	}
	return n, nil
}

func (s *scriptSource) RemoteAddr() string { return "script:0" }
func (s *scriptSource) CloseConn()         { s.live = false }
func (s *scriptSource) Close() error       { return nil }

// captureDecoder records every frame handed to it and optionally fails.
type captureDecoder struct {
	frames  [][]byte
	failing bool
}

func (d *captureDecoder) Decode(data []byte, out decoder.BlockFunc) error {
	d.frames = append(d.frames, append([]byte(nil), data...))
	if d.failing {
		return errors.New("bad frame")
	}
	return nil
}

// waitCounter counts waiting-screen displays.
type waitCounter struct{ n int }

func (w *waitCounter) ShowWaiting() { w.n++ }

func newTestPipeline(t *testing.T, src Source, dec decoder.Decoder, opts Options) (*Pipeline, *waitCounter) {
	t.Helper()
	log := logger.Discard()
	fb := display.NewFramebuffer(8, 8)
	sink := NewRenderSink(dec, fb, log)
	idle := &waitCounter{}
	return NewPipeline(src, sink, idle, log, nil, opts), idle
}

func cycles(p *Pipeline, n int) {
	for i := 0; i < n; i++ {
		p.cycle()
	}
}

func frame(payload ...byte) []byte {
	b := []byte{0xFF, 0xD8}
	b = append(b, payload...)
	return append(b, 0xFF, 0xD9)
}

func TestPipeline_DecodesFramesInOrder(t *testing.T) {
	src := &scriptSource{steps: []step{
		{connect: true},
		{data: append(frame(0x01), frame(0x02)...)}, // two back-to-back frames
	}}
	dec := &captureDecoder{}
	p, _ := newTestPipeline(t, src, dec, Options{})

	// connect, read+first frame, second frame.
	cycles(p, 3)

	if len(dec.frames) != 2 {
		t.Fatalf("decoded %d frames, want 2", len(dec.frames))
	}
	if !bytes.Equal(dec.frames[0], frame(0x01)) {
		t.Errorf("first frame = % X, want % X", dec.frames[0], frame(0x01))
	}
	if !bytes.Equal(dec.frames[1], frame(0x02)) {
		t.Errorf("second frame = % X, want % X", dec.frames[1], frame(0x02))
	}
	if p.State() != StateStreaming {
		t.Errorf("state = %s, want %s", p.State(), StateStreaming)
	}
}

func TestPipeline_SkipsFillerBeforeFrame(t *testing.T) {
	payload := append([]byte{0xDE, 0xAD, 0xBE}, frame(0x07)...)
	src := &scriptSource{steps: []step{
		{connect: true},
		{data: payload},
	}}
	dec := &captureDecoder{}
	p, _ := newTestPipeline(t, src, dec, Options{})

	cycles(p, 2)

	if len(dec.frames) != 1 {
		t.Fatalf("decoded %d frames, want 1", len(dec.frames))
	}
	if !bytes.Equal(dec.frames[0], frame(0x07)) {
		t.Errorf("frame = % X, want % X", dec.frames[0], frame(0x07))
	}
	if p.buf.Len() != 0 {
		t.Errorf("filler not compacted away, fill = %d", p.buf.Len())
	}
}

func TestPipeline_DecodeFailureIsNonFatal(t *testing.T) {
	src := &scriptSource{steps: []step{
		{connect: true},
		{data: frame(0x01)},
		{data: frame(0x02)},
	}}
	dec := &captureDecoder{failing: true}
	p, _ := newTestPipeline(t, src, dec, Options{})

	cycles(p, 2)
	if len(dec.frames) != 1 {
		t.Fatalf("first frame not attempted, got %d decodes", len(dec.frames))
	}
	if p.buf.Len() != 0 {
		t.Errorf("failed frame not compacted, fill = %d", p.buf.Len())
	}

	// The pipeline keeps going: the next frame is attempted, not the same bytes.
	dec.failing = false
	cycles(p, 2)
	if len(dec.frames) != 2 {
		t.Fatalf("decoded %d frames total, want 2", len(dec.frames))
	}
	if !bytes.Equal(dec.frames[1], frame(0x02)) {
		t.Errorf("second attempt = % X, want % X", dec.frames[1], frame(0x02))
	}

	snap := p.Stats().Snapshot()
	if snap.DecodeErrors != 1 {
		t.Errorf("decode errors = %d, want 1", snap.DecodeErrors)
	}
	if snap.TotalFrames != 1 {
		t.Errorf("frames total = %d, want 1", snap.TotalFrames)
	}
}

func TestPipeline_DisconnectResetsBuffer(t *testing.T) {
	src := &scriptSource{steps: []step{
		{connect: true},
		{data: []byte{0xFF, 0xD8, 0x01, 0x02}}, // partial frame, no EOI
		{err: io.EOF},
		{connect: true},
		{data: frame(0xAA)},
	}}
	dec := &captureDecoder{}
	p, idle := newTestPipeline(t, src, dec, Options{})

	cycles(p, 5)

	if len(dec.frames) != 1 {
		t.Fatalf("decoded %d frames, want 1", len(dec.frames))
	}
	// No residue of the first session's partial frame.
	if !bytes.Equal(dec.frames[0], frame(0xAA)) {
		t.Errorf("frame = % X, want % X (stale bytes leaked)", dec.frames[0], frame(0xAA))
	}
	if idle.n < 1 {
		t.Error("waiting screen not re-shown after disconnect")
	}
}

func TestPipeline_ReadTimeoutTransitionsToWaiting(t *testing.T) {
	src := &scriptSource{steps: []step{
		{connect: true},
		{err: ErrReadTimeout},
	}}
	dec := &captureDecoder{}
	p, _ := newTestPipeline(t, src, dec, Options{})

	cycles(p, 2)
	if p.State() != StateWaiting {
		t.Errorf("state = %s, want %s", p.State(), StateWaiting)
	}
	if p.RemoteAddr() != "" {
		t.Errorf("remote addr = %q, want empty after teardown", p.RemoteAddr())
	}
}

func TestPipeline_OverflowShedsWithoutGrowth(t *testing.T) {
	// Garbage with no markers; capacity 64, guard 8 → shed above fill 56.
	src := &scriptSource{steps: []step{
		{connect: true},
		{data: bytes.Repeat([]byte{0x55}, 60)},
	}}
	dec := &captureDecoder{}
	p, _ := newTestPipeline(t, src, dec, Options{
		FrameBufferSize: 64,
		ReadBufferSize:  64,
		GuardBand:       8,
	})

	cycles(p, 2)

	if p.buf.Len() != 0 {
		t.Errorf("fill = %d after shed, want 0", p.buf.Len())
	}
	if p.buf.Cap() != 64 {
		t.Errorf("capacity = %d, the buffer must never grow", p.buf.Cap())
	}
	if snap := p.Stats().Snapshot(); snap.OverflowDiscards != 1 {
		t.Errorf("overflow discards = %d, want 1", snap.OverflowDiscards)
	}
	if len(dec.frames) != 0 {
		t.Errorf("decoded %d frames from garbage, want 0", len(dec.frames))
	}
}

func TestPipeline_FrameExtractionSkipsShed(t *testing.T) {
	// A frame filling most of the buffer must be extracted, not shed, even
	// though its fill crosses the guard threshold.
	big := frame(bytes.Repeat([]byte{0x11}, 56)...)
	src := &scriptSource{steps: []step{
		{connect: true},
		{data: big},
	}}
	dec := &captureDecoder{}
	p, _ := newTestPipeline(t, src, dec, Options{
		FrameBufferSize: 64,
		ReadBufferSize:  64,
		GuardBand:       8,
	})

	cycles(p, 2)

	if len(dec.frames) != 1 {
		t.Fatalf("decoded %d frames, want 1", len(dec.frames))
	}
	if snap := p.Stats().Snapshot(); snap.OverflowDiscards != 0 {
		t.Errorf("overflow discards = %d, want 0", snap.OverflowDiscards)
	}
}

// TestPipeline_ConcurrentStateReads drives connection churn through the
// cycle while another goroutine polls the lifecycle accessors the admin
// handlers use. Run with -race; the accessors must be safe against the
// pipeline goroutine's transition writes.
func TestPipeline_ConcurrentStateReads(t *testing.T) {
	var steps []step
	for i := 0; i < 50; i++ {
		steps = append(steps,
			step{connect: true},
			step{data: frame(byte(i))},
			step{err: io.EOF},
		)
	}
	src := &scriptSource{steps: steps}
	p, _ := newTestPipeline(t, src, &captureDecoder{}, Options{})

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if p.State() == StateStreaming && p.RemoteAddr() == "" {
				t.Error("streaming state with empty remote addr")
				return
			}
		}
	}()

	cycles(p, 200)
	close(stop)
	<-done

	if p.State() != StateWaiting {
		t.Errorf("state = %s after final disconnect, want %s", p.State(), StateWaiting)
	}
}

func TestPipeline_ConnectResetsStats(t *testing.T) {
	src := &scriptSource{steps: []step{
		{connect: true},
		{data: frame(0x01)},
		{err: io.EOF},
		{connect: true},
	}}
	dec := &captureDecoder{}
	p, _ := newTestPipeline(t, src, dec, Options{})

	cycles(p, 4)

	if snap := p.Stats().Snapshot(); snap.TotalFrames != 0 {
		t.Errorf("frames total = %d after reconnect, want 0", snap.TotalFrames)
	}
}
