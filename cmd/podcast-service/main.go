// main package for the podcast-service
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/podcast-service/internal/config"
	"github.com/book-expert/podcast-service/internal/library"
	"github.com/book-expert/podcast-service/internal/links"
	"github.com/book-expert/podcast-service/internal/metrics"
	"github.com/book-expert/podcast-service/internal/objectstore"
	"github.com/book-expert/podcast-service/internal/pipeline"
	"github.com/book-expert/podcast-service/internal/services"
	"github.com/book-expert/podcast-service/internal/worker"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), "podcast-service-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	envErr := godotenv.Load()
	if envErr != nil {
		bootstrapLog.Warn("No .env file loaded, using process environment: %v", envErr)
	}

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, "podcast-service.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, finalLog)
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	// 4. Connect to NATS and bind the object store
	natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name("podcast-service"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.ObjectStoreBucket)
	if err != nil {
		return fmt.Errorf("failed to open object store: %w", err)
	}

	avatarLibrary := library.New(store, cfg.NATS.LibraryKey)

	loadErr := avatarLibrary.Load(ctx)
	if loadErr != nil {
		log.Warn("Starting with an empty avatar library: %v", loadErr)
	}

	// 5. Collaborator clients, metrics and the pipeline factory
	recorder := metrics.NewRecorder()
	pipelineServices := newPipelineServices(cfg)

	factory := func() (*pipeline.Controller, error) {
		return pipeline.NewController(pipelineServices, pipeline.Options{
			SpeakerCount:         cfg.Pipeline.SpeakerCount,
			DefaultModelID:       cfg.Pipeline.DefaultModelID,
			VideoDurationSeconds: cfg.Pipeline.VideoDurationSeconds,
			ExclusivePlayback:    cfg.Pipeline.ExclusivePlayback,
			NormalizeText:        cfg.Pipeline.NormalizeText,
			EmotionTags:          cfg.Pipeline.Emotions,
			MovementTags:         cfg.Pipeline.Movements,
			Store:                store,
			Recorder:             recorder,
			Sink:                 avatarLibrary,
			Clock:                nil,
		}, log)
	}

	jobWorker, err := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.JobSubject,
		factory,
		cfg.Pipeline.Voices,
		links.NewDigester(nil),
		recorder,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	// 6. Metrics and health endpoint
	httpServer := newHTTPServer(cfg.Metrics.ListenAddress, recorder, natsConnection)
	if httpServer != nil {
		go func() {
			listenErr := httpServer.ListenAndServe()
			if listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
				log.Error("Metrics server stopped: %v", listenErr)
			}
		}()
	}

	log.System("Podcast-Service successfully initialized. Listening for jobs on subject: %s", cfg.NATS.JobSubject)

	// 7. Run until a signal arrives
	runErr := jobWorker.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if httpServer != nil {
		shutdownErr := httpServer.Shutdown(shutdownCtx)
		if shutdownErr != nil {
			log.Warn("Metrics server shutdown: %v", shutdownErr)
		}
	}

	saveErr := avatarLibrary.Save(shutdownCtx)
	if saveErr != nil {
		log.Error("Failed to save avatar library: %v", saveErr)
	}

	log.System("Podcast-Service stopped.")

	if runErr != nil {
		return fmt.Errorf("worker stopped with error: %w", runErr)
	}

	return nil
}

func newPipelineServices(cfg *config.Config) pipeline.Services {
	set := services.NewSet(cfg.Services)

	return pipeline.Services{
		Script: set.Script,
		Voice:  set.Voice,
		Image:  set.Image,
		Video:  set.Video,
	}
}

// newHTTPServer serves /metrics and /health; it returns nil when no address is configured.
func newHTTPServer(address string, recorder *metrics.Recorder, natsConnection *nats.Conn) *http.Server {
	if address == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		if !natsConnection.IsConnected() {
			http.Error(w, "nats disconnected", http.StatusServiceUnavailable)

			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
