package decoder

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func encodeTestImage(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestJPEG_EmitsStripesCoveringImage(t *testing.T) {
	const w, h = 48, 50 // 50 rows: three full stripes and a 2-row tail
	data := encodeTestImage(t, w, h, color.RGBA{R: 200, G: 40, B: 40, A: 255})

	dec := NewJPEG()
	var rows int
	var blocks int
	err := dec.Decode(data, func(x, y, bw, bh int, pix []uint16) bool {
		if x != 0 || bw != w {
			t.Errorf("block %d: x=%d w=%d, want full-width stripes", blocks, x, bw)
		}
		if y != rows {
			t.Errorf("block %d: y=%d, want contiguous stripes at %d", blocks, y, rows)
		}
		if bh > StripeHeight {
			t.Errorf("block %d: height %d exceeds stripe height %d", blocks, bh, StripeHeight)
		}
		if len(pix) != bw*bh {
			t.Errorf("block %d: %d pixels for %dx%d", blocks, len(pix), bw, bh)
		}
		rows += bh
		blocks++
		return true
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rows != h {
		t.Errorf("stripes covered %d rows, want %d", rows, h)
	}
	if blocks != 4 {
		t.Errorf("got %d stripes, want 4", blocks)
	}
}

func TestJPEG_PixelValuesSurviveRoundTrip(t *testing.T) {
	data := encodeTestImage(t, 32, 32, color.RGBA{R: 250, G: 10, B: 10, A: 255})

	dec := NewJPEG()
	var sample uint16
	err := dec.Decode(data, func(x, y, w, h int, pix []uint16) bool {
		sample = pix[0]
		return false // first stripe is enough
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	// JPEG is lossy; only check the dominant channel survived.
	r := (sample >> 11) & 0x1F
	b := sample & 0x1F
	if r < 24 {
		t.Errorf("red channel = %d/31, want near full", r)
	}
	if b > 8 {
		t.Errorf("blue channel = %d/31, want near zero", b)
	}
}

func TestJPEG_CallbackCanStopDecode(t *testing.T) {
	data := encodeTestImage(t, 32, 64, color.RGBA{R: 0, G: 255, B: 0, A: 255})

	dec := NewJPEG()
	calls := 0
	err := dec.Decode(data, func(x, y, w, h int, pix []uint16) bool {
		calls++
		return false
	})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if calls != 1 {
		t.Errorf("callback ran %d times after returning false, want 1", calls)
	}
}

func TestJPEG_RejectsGarbage(t *testing.T) {
	dec := NewJPEG()
	err := dec.Decode([]byte{0xFF, 0xD8, 0x00, 0x01, 0x02, 0xFF, 0xD9}, func(x, y, w, h int, pix []uint16) bool {
		t.Error("callback invoked for undecodable frame")
		return true
	})
	if err == nil {
		t.Fatal("expected an error for garbage input")
	}
}
