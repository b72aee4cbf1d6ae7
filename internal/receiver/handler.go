package receiver

import (
	"encoding/json"
	"image/png"
	"log/slog"
	"net/http"

	"mjpeg-receiver/internal/display"
)

// Handler exposes the receiver's admin endpoints using go-chi. Everything
// here is advisory: handlers read snapshots and never touch pipeline state.
type Handler struct {
	pipe *Pipeline
	fb   *display.Framebuffer
	log  *slog.Logger
}

// NewHandler returns a Handler reporting on pipe and fb. fb may be nil when
// the display is not snapshot-capable; the frame endpoint then returns 404.
func NewHandler(pipe *Pipeline, fb *display.Framebuffer, log *slog.Logger) *Handler {
	return &Handler{pipe: pipe, fb: fb, log: log}
}

// statusResponse is the JSON body served by GET /status.
type statusResponse struct {
	State      State  `json:"state"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	Width      int    `json:"display_width"`
	Height     int    `json:"display_height"`
	Snapshot
}

// Status handles GET /status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		State:      h.pipe.State(),
		RemoteAddr: h.pipe.RemoteAddr(),
		Snapshot:   h.pipe.Stats().Snapshot(),
	}
	if h.fb != nil {
		resp.Width, resp.Height = h.fb.Size()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("encode status failed", slog.String("error", err.Error()))
	}
}

// FramePNG handles GET /frame.png: a PNG snapshot of the current framebuffer
// contents. The snapshot is a copy, so encoding never blocks the pipeline.
func (h *Handler) FramePNG(w http.ResponseWriter, r *http.Request) {
	if h.fb == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	img := h.fb.Snapshot()
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, img); err != nil {
		h.log.Error("encode frame snapshot failed", slog.String("error", err.Error()))
	}
}
