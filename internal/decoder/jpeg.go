package decoder

import (
	"bytes"
	"fmt"
	"image/jpeg"

	"mjpeg-receiver/internal/display"
)

// BlockFunc receives one decoded pixel block: a w*h row-major slab of RGB565
// pixels positioned at (x, y) in image coordinates. Returning false stops the
// decode early; remaining blocks are not delivered.
type BlockFunc func(x, y, w, h int, pix []uint16) bool

// Decoder turns one complete compressed frame into pixel blocks delivered
// through the callback. A non-nil error means the frame was undecodable; any
// blocks already delivered may have been painted.
type Decoder interface {
	Decode(data []byte, out BlockFunc) error
}

// StripeHeight is the row height of the blocks a JPEG decode emits. Embedded
// JPEG decoders deliver MCU-sized slabs; 16 rows matches the tallest MCU of
// 4:2:0 subsampled images.
const StripeHeight = 16

// JPEG decodes baseline and progressive JPEG frames using the standard
// library decoder and emits full-width RGB565 stripes of at most StripeHeight
// rows each.
type JPEG struct {
	// stripe is reused across frames to keep the hot path free of per-frame
	// allocation beyond the decode itself.
	stripe []uint16
}

// NewJPEG returns a JPEG decoder.
func NewJPEG() *JPEG {
	return &JPEG{}
}

// Decode implements Decoder.
func (d *JPEG) Decode(data []byte, out BlockFunc) error {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode jpeg: %w", err)
	}

	bounds := img.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return fmt.Errorf("decode jpeg: empty image %dx%d", w, h)
	}

	if cap(d.stripe) < w*StripeHeight {
		d.stripe = make([]uint16, w*StripeHeight)
	}

	for top := 0; top < h; top += StripeHeight {
		rows := StripeHeight
		if top+rows > h {
			rows = h - top
		}
		stripe := d.stripe[:w*rows]
		for y := 0; y < rows; y++ {
			for x := 0; x < w; x++ {
				r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+top+y).RGBA()
				stripe[y*w+x] = display.PackRGB565(uint8(r>>8), uint8(g>>8), uint8(b>>8))
			}
		}
		if !out(0, top, w, rows, stripe) {
			break
		}
	}
	return nil
}
