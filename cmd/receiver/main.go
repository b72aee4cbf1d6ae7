package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mjpeg-receiver/internal/decoder"
	"mjpeg-receiver/internal/display"
	"mjpeg-receiver/internal/platform/config"
	"mjpeg-receiver/internal/platform/logger"
	"mjpeg-receiver/internal/platform/metrics"
	"mjpeg-receiver/internal/receiver"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 5 * time.Second

func main() {
	_ = config.Load()

	streamPort := config.GetEnv("STREAM_PORT", "8090")
	httpPort := config.GetEnv("HTTP_PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	width := config.GetEnvInt("DISPLAY_WIDTH", 280)
	height := config.GetEnvInt("DISPLAY_HEIGHT", 240)
	frameBufKB := config.GetEnvInt("FRAME_BUFFER_KB", 100)
	readBufKB := config.GetEnvInt("READ_BUFFER_KB", 32)
	readTimeout := config.GetEnvDuration("READ_TIMEOUT", 5*time.Second)
	statsInterval := config.GetEnvDuration("STATS_INTERVAL", 2*time.Second)

	log := logger.New(logLevel, logFormat)

	fb := display.NewFramebuffer(width, height)
	dec := decoder.NewJPEG()

	src, err := receiver.ListenTCP(":"+streamPort, readTimeout)
	if err != nil {
		// Precondition failure: nothing to receive on. The device analog
		// shows an alert and restarts; here the supervisor restarts us.
		log.Error("cannot listen for stream", "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	sink := receiver.NewRenderSink(dec, fb, log)
	pipe := receiver.NewPipeline(src, sink, fb, log, met, receiver.Options{
		FrameBufferSize: frameBufKB * 1024,
		ReadBufferSize:  readBufKB * 1024,
		StatsInterval:   statsInterval,
	})
	h := receiver.NewHandler(pipe, fb, log)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Method(http.MethodGet, "/metrics", met.Handler())
	r.Get("/status", h.Status)
	r.Get("/frame.png", h.FramePNG)

	srv := &http.Server{Addr: ":" + httpPort, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin server error", "error", err)
			os.Exit(1)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pipe.Run(ctx)
		close(done)
	}()

	log.Info("receiver started",
		"stream_addr", src.Addr(),
		"http_port", httpPort,
		"display_width", width,
		"display_height", height,
		"frame_buffer_kb", frameBufKB,
		"read_buffer_kb", readBufKB,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received")
	cancel()
	<-done
	src.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("admin shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("receiver stopped")
}
