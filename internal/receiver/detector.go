package receiver

// JPEG frame delimiters. Everything between an SOI and the next EOI,
// inclusive, is one frame; bytes outside that span are discardable filler.
const (
	markerPrefix = 0xFF
	markerSOI    = 0xD8
	markerEOI    = 0xD9
)

// FindFrame scans b for the first complete frame: the first SOI marker
// followed anywhere by an EOI marker. It returns the frame's start offset and
// its size including both markers. ok is false when no SOI exists, or when an
// SOI exists but its EOI has not arrived yet — the caller should accumulate
// more bytes and rescan. Scanning always covers the full accumulated buffer,
// so a marker split across two socket reads is found once both halves are in.
func FindFrame(b []byte) (start, size int, ok bool) {
	for i := 0; i+1 < len(b); i++ {
		if b[i] != markerPrefix || b[i+1] != markerSOI {
			continue
		}
		for j := i + 2; j+1 < len(b); j++ {
			if b[j] == markerPrefix && b[j+1] == markerEOI {
				return i, j + 2 - i, true
			}
		}
		// SOI without EOI: the frame is still in flight. Later SOIs need
		// not be checked; the first one anchors the next frame.
		return 0, 0, false
	}
	return 0, 0, false
}
