package display

import (
	"image"
	"image/color"
	"sync"
)

// Display is the sink the render pipeline blits decoded pixel blocks into.
// Blit is assumed synchronous and always succeeding; coordinates are already
// clipped to the display bounds by the caller.
type Display interface {
	Size() (w, h int)
	Blit(x, y, w, h int, pix []uint16)
}

// Framebuffer is an in-memory RGB565 pixel plane of fixed size. It stands in
// for the physical panel: the pipeline blits into it and the admin surface can
// take snapshots for inspection. Blit and Snapshot may run on different
// goroutines, so the plane is mutex-guarded.
type Framebuffer struct {
	mu     sync.Mutex
	width  int
	height int
	pix    []uint16
}

// NewFramebuffer allocates a cleared framebuffer of the given dimensions.
func NewFramebuffer(width, height int) *Framebuffer {
	return &Framebuffer{
		width:  width,
		height: height,
		pix:    make([]uint16, width*height),
	}
}

// Size returns the framebuffer dimensions.
func (f *Framebuffer) Size() (w, h int) {
	return f.width, f.height
}

// Blit copies a w*h block of RGB565 pixels to position (x, y). The source
// block is row-major with stride w. Callers must pre-clip; rows and columns
// falling outside the plane are a programming error and are dropped.
func (f *Framebuffer) Blit(x, y, w, h int, pix []uint16) {
	if w <= 0 || h <= 0 || len(pix) < w*h || x < 0 || x >= f.width {
		return
	}
	cw := w
	if x+cw > f.width {
		cw = f.width - x
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for row := 0; row < h; row++ {
		dy := y + row
		if dy < 0 || dy >= f.height {
			continue
		}
		src := pix[row*w : row*w+cw]
		dst := f.pix[dy*f.width+x : dy*f.width+x+cw]
		copy(dst, src)
	}
}

// Clear fills the entire plane with the given RGB565 color.
func (f *Framebuffer) Clear(c uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.pix {
		f.pix[i] = c
	}
}

// ShowWaiting paints the idle screen shown before the first connection and
// after every disconnect. The headless port has no text renderer; the textual
// part of the device's waiting screen (address, port, state) lives on the
// admin status endpoint instead.
func (f *Framebuffer) ShowWaiting() {
	f.Clear(0x0000)
}

// Snapshot returns an RGBA copy of the current plane contents.
func (f *Framebuffer) Snapshot() *image.RGBA {
	f.mu.Lock()
	defer f.mu.Unlock()
	img := image.NewRGBA(image.Rect(0, 0, f.width, f.height))
	for y := 0; y < f.height; y++ {
		for x := 0; x < f.width; x++ {
			img.SetRGBA(x, y, rgb565ToRGBA(f.pix[y*f.width+x]))
		}
	}
	return img
}

// rgb565ToRGBA expands a packed RGB565 value to 8-bit channels, replicating
// the high bits into the low bits so full intensity maps to 255.
func rgb565ToRGBA(p uint16) color.RGBA {
	r := uint8((p >> 11) & 0x1F)
	g := uint8((p >> 5) & 0x3F)
	b := uint8(p & 0x1F)
	return color.RGBA{
		R: (r << 3) | (r >> 2),
		G: (g << 2) | (g >> 4),
		B: (b << 3) | (b >> 2),
		A: 255,
	}
}

// PackRGB565 packs 8-bit channels into an RGB565 value.
func PackRGB565(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}
