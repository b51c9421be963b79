package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/speech-recognition/internal/cleanup"
	"github.com/codebuildervaibhav/speech-recognition/internal/config"
	"github.com/codebuildervaibhav/speech-recognition/internal/handlers"
	"github.com/codebuildervaibhav/speech-recognition/internal/logging"
	"github.com/codebuildervaibhav/speech-recognition/internal/pipeline"
	"github.com/codebuildervaibhav/speech-recognition/internal/queue"
	"github.com/codebuildervaibhav/speech-recognition/internal/segment"
	"github.com/codebuildervaibhav/speech-recognition/internal/storage"
	"github.com/codebuildervaibhav/speech-recognition/internal/transcription"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	if err := cleanup.EnsureTempDirExists(cfg.Storage.TempDir); err != nil {
		return fmt.Errorf("create temp directory: %w", err)
	}

	log.Info().Msg("initializing components")

	recognizer, err := newRecognizer(cfg.Recognizer)
	if err != nil {
		return err
	}
	restorer, err := newRestorer(cfg.Restorer)
	if err != nil {
		return err
	}
	log.Info().Str("recognizer", recognizer.Name()).Str("restorer", restorer.Name()).Msg("collaborators ready")

	formats := transcription.NewFormats(cfg.Formats.Native, cfg.Formats.Transcode)
	proc := pipeline.New(pipeline.Deps{
		Formats:    formats,
		Transcoder: transcription.NewFFmpegTranscoder(cfg.Transcoder.Binary, cfg.Transcoder.SampleRate),
		Recognizer: recognizer,
		Restorer:   restorer,
		Segmenter: segment.New(segment.Options{
			MaxLength: cfg.Segmenter.MaxLength,
			Boundary:  segment.Boundary(cfg.Segmenter.Boundary),
			ForceCut:  cfg.Segmenter.ForceCutEnabled(),
		}),
	}, pipeline.Options{
		TempDir:            cfg.Storage.TempDir,
		RestoreConcurrency: cfg.Restorer.Concurrency,
		RestoreTimeout:     cfg.Restorer.Timeout,
		RestoreAttempts:    cfg.Restorer.MaxAttempts,
		RetryInterval:      cfg.Restorer.RetryInterval,
	}, logging.Component(log, "pipeline"))

	// Request history (optional)
	var history *storage.HistoryDB
	if cfg.Storage.Database != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Database), 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
		history, err = storage.NewHistoryDB(cfg.Storage.Database)
		if err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}
		defer history.Close()
	} else {
		log.Info().Msg("no database configured, request history disabled")
	}

	archivers := newArchivers(cfg, log)

	workerPool := queue.NewWorkerPool(queue.Options{
		Workers:   cfg.Workers.Count,
		QueueSize: cfg.Workers.QueueSize,
	}, historyOrNil(history), archivers, log)
	workerPool.Start()

	sweeper := cleanup.NewScheduler(
		cfg.Storage.TempDir,
		time.Duration(cfg.Cleanup.IntervalMinutes)*time.Minute,
		time.Duration(cfg.Cleanup.MaxAgeMinutes)*time.Minute,
		log,
	)
	sweeper.Start()
	defer sweeper.Stop()

	app := fiber.New(fiber.Config{
		BodyLimit:             handlers.BodyLimit(cfg.Limits.MaxFileSizeMB),
		ErrorHandler:          handlers.NewErrorHandler(cfg.Limits.MaxFileSizeMB, log),
		DisableStartupMessage: true,
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(logger.New(logger.Config{Output: logging.Component(log, "http")}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	opts := handlers.Options{
		MaxFileSizeMB: cfg.Limits.MaxFileSizeMB,
		Timeout:       cfg.Server.RequestTimeout,
		SuccessCode:   cfg.Response.SuccessCode,
	}
	uploadHandler := handlers.NewUploadHandler(proc, workerPool, opts, log)
	streamHandler := handlers.NewStreamHandler(proc, workerPool, opts, log)
	healthHandler := handlers.NewHealthHandler(cfg.Response.SuccessCode)

	app.Get("/health", healthHandler.Handle)
	app.Post("/recognize", uploadHandler.Handle)

	app.Use("/ws", streamHandler.Upgrade)
	app.Get("/ws/recognize", websocket.New(streamHandler.Handle))

	if history != nil {
		app.Get("/transcripts", handlers.NewTranscriptsHandler(history, cfg.Response.SuccessCode, log).Handle)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info().
		Str("addr", addr).
		Strs("formats", formats.Accepted()).
		Int("max_segment_length", cfg.Segmenter.MaxLength).
		Msg("server starting")

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.Listen(addr)
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case sig := <-sigint:
		log.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := workerPool.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("worker pool shutdown")
	}
	log.Info().Msg("server stopped")
	return nil
}

func newRecognizer(cfg config.RecognizerConfig) (transcription.Recognizer, error) {
	switch cfg.Backend {
	case "paddlespeech":
		return transcription.NewPaddleSpeechRecognizer(transcription.PaddleSpeechConfig{
			Binary: cfg.Binary,
			Lang:   cfg.Lang,
			Model:  cfg.Model,
		}), nil
	case "openai":
		return transcription.NewWhisperRecognizer(transcription.OpenAIConfig{
			APIKey:   cfg.APIKey,
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			Language: cfg.Lang,
		}), nil
	}
	return nil, fmt.Errorf("unknown recognizer backend %q", cfg.Backend)
}

func newRestorer(cfg config.RestorerConfig) (transcription.Restorer, error) {
	switch cfg.Backend {
	case "paddlespeech":
		return transcription.NewPaddleSpeechRestorer(transcription.PaddleSpeechConfig{
			Binary: cfg.Binary,
			Model:  cfg.Model,
		}), nil
	case "openai":
		return transcription.NewChatRestorer(transcription.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}), nil
	}
	return nil, fmt.Errorf("unknown restorer backend %q", cfg.Backend)
}

// newArchivers builds the configured transcript archives. Drive is optional
// and only warns when it cannot be reached.
func newArchivers(cfg *config.Config, log zerolog.Logger) []storage.Archiver {
	var archivers []storage.Archiver
	if cfg.Archive.Local {
		archivers = append(archivers, storage.NewLocalStorage(cfg.Storage.OutputDir))
		log.Info().Str("dir", cfg.Storage.OutputDir).Msg("local transcript archive enabled")
	}
	if !cfg.Archive.Drive {
		return archivers
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	driveClient, err := storage.NewDriveClient(ctx,
		cfg.GoogleDrive.CredentialsFile,
		cfg.GoogleDrive.TokenFile,
		cfg.GoogleDrive.FolderName,
	)
	switch {
	case errors.Is(err, storage.ErrNoToken):
		log.Warn().Err(err).Msg("Google Drive archive disabled, provision a token first")
	case err != nil:
		log.Warn().Err(err).Msg("Google Drive not available")
	default:
		archivers = append(archivers, driveClient)
		log.Info().Str("folder", cfg.GoogleDrive.FolderName).Msg("Google Drive archive enabled")
	}
	return archivers
}

// historyOrNil keeps a nil *HistoryDB from becoming a non-nil interface.
func historyOrNil(h *storage.HistoryDB) queue.History {
	if h == nil {
		return nil
	}
	return h
}
