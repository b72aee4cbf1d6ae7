package receiver

import (
	"log/slog"
	"time"

	"mjpeg-receiver/internal/decoder"
	"mjpeg-receiver/internal/display"
)

// RenderSink hands located frames to the decoder and forwards the decoded
// pixel blocks to the display, clipping each block to the display bounds.
// Blocks overflowing the right or bottom edge are truncated, never scaled.
type RenderSink struct {
	dec  decoder.Decoder
	disp display.Display
	log  *slog.Logger

	// scratch holds column-clipped blocks so clipping does not allocate per
	// block. Grown on demand, reused across frames.
	scratch []uint16
}

// NewRenderSink returns a sink rendering through dec onto disp.
func NewRenderSink(dec decoder.Decoder, disp display.Display, log *slog.Logger) *RenderSink {
	return &RenderSink{dec: dec, disp: disp, log: log}
}

// Render decodes one complete frame synchronously and blits its pixel blocks.
// The returned duration is the wall time of the decode, for telemetry. A
// decode error is returned for accounting but is never fatal: the caller
// discards the frame bytes and the pipeline continues.
func (s *RenderSink) Render(frame []byte) (time.Duration, error) {
	start := time.Now()
	err := s.dec.Decode(frame, s.emit)
	return time.Since(start), err
}

// emit is the decoder's pixel-block callback.
func (s *RenderSink) emit(x, y, w, h int, pix []uint16) bool {
	dw, dh := s.disp.Size()
	if x >= dw || y >= dh || x < 0 || y < 0 {
		return true
	}

	cw, ch := w, h
	if x+cw > dw {
		cw = dw - x
	}
	if y+ch > dh {
		ch = dh - y
	}

	if cw == w {
		s.disp.Blit(x, y, cw, ch, pix)
		return true
	}

	// Column clipping changes the row stride, so the surviving columns are
	// repacked into a contiguous block first.
	if cap(s.scratch) < cw*ch {
		s.scratch = make([]uint16, cw*ch)
	}
	clipped := s.scratch[:cw*ch]
	for row := 0; row < ch; row++ {
		copy(clipped[row*cw:(row+1)*cw], pix[row*w:row*w+cw])
	}
	s.disp.Blit(x, y, cw, ch, clipped)
	return true
}
