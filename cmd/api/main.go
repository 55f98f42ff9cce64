package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/reminisce-app/reminisce/internal/api"
	"github.com/reminisce-app/reminisce/internal/config"
	"github.com/reminisce-app/reminisce/internal/db"
	"github.com/reminisce-app/reminisce/internal/pipeline"
	"github.com/reminisce-app/reminisce/internal/queue"
	"github.com/reminisce-app/reminisce/internal/services"
	"github.com/reminisce-app/reminisce/internal/storage"
	"github.com/reminisce-app/reminisce/internal/worker"
)

func main() {
	log.Println("Starting Reminisce API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.InitSchema(initCtx); err != nil {
		initCancel()
		log.Fatalf("Failed to initialize schema: %v", err)
	}
	initCancel()
	log.Println("Connected to database")

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Initialize media storage
	files, err := storage.New(cfg.MediaRoot)
	if err != nil {
		log.Fatalf("Failed to initialize media storage: %v", err)
	}
	log.Printf("Media root: %s", cfg.MediaRoot)

	codes := services.NewShareCodeGenerator()

	// Create API handler
	handler := api.NewHandler(database, q, files, codes)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
		MediaRoot:          cfg.MediaRoot,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Root context canceled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// Start worker if enabled
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		ffmpegSvc := services.NewFFmpegService(cfg.TempDir)
		driveSvc := services.NewDriveService(cfg.DriveUploadURL, cfg.DriveToken, cfg.DriveFolderID)
		if driveSvc.Enabled() {
			log.Println("Drive upload enabled")
		} else {
			log.Println("Drive upload disabled, artifacts are served locally only")
		}

		p := pipeline.New(database, ffmpegSvc, driveSvc, codes, files, cfg.AudioDir)
		w := worker.New(q, p, cfg.RunTimeout)

		g.Go(func() error {
			w.Start(gctx, cfg.MaxConcurrentRuns)
			return nil
		})
	}

	g.Go(func() error {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}

	log.Println("Server exited")
}
