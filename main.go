package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"
	"gopkg.in/natefinch/lumberjack.v2"

	"rtspgate/api"
	"rtspgate/config"
	"rtspgate/handlers"
	"rtspgate/services/nvr"
	"rtspgate/services/segments"
	"rtspgate/services/streaming"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	hostOverride := flag.String("host", "", "override bind host from config")
	flag.Parse()

	configPath := os.Getenv("RTSPGATE_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation when configured.
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			log.Printf("warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}
	if *hostOverride != "" {
		settings.Server.Host = *hostOverride
	}

	spawner := &streaming.FFmpegSpawner{
		Path:    settings.Transcode.FFmpegPath,
		ShowLog: settings.Transcode.ShowFFmpegLog,
	}
	registry := streaming.NewRegistry(spawner)
	segmentManager := segments.NewManager(afero.NewOsFs(), spawner, segments.Config{
		BaseDir:      settings.Segments.Directory,
		IdleTimeout:  time.Duration(settings.Segments.IdleTimeoutSeconds) * time.Second,
		ReadyTimeout: time.Duration(settings.Segments.ReadyTimeoutSeconds) * time.Second,
		ReapInterval: time.Duration(settings.Segments.ReapIntervalSeconds) * time.Second,
	})
	nvrClient := nvr.NewClient(nil)

	streamsHandler := handlers.NewStreamsHandler(registry)
	directHandler := handlers.NewDirectHandler(spawner)
	hlsHandler := handlers.NewSegmentsHandler(segmentManager, "/stream/hls")
	proxyHLSHandler := handlers.NewSegmentsHandler(segmentManager, "/proxyhl/segment")
	nvrHandler := handlers.NewNVRHandler(nvrClient, spawner, proxyHLSHandler, settings.NVR.DefaultPort, settings.NVR.DefaultUsername)

	r := mux.NewRouter()
	api.Register(r, streamsHandler, directHandler, hlsHandler, proxyHLSHandler, nvrHandler)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout for streaming
		IdleTimeout:  120 * time.Second,
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("server listening on http://%s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	registry.Shutdown()
	segmentManager.Shutdown()

	log.Println("shutdown complete")
}
