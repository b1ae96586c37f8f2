package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/universalautobrokers/dealerdocs/internal/api"
	"github.com/universalautobrokers/dealerdocs/internal/config"
	"github.com/universalautobrokers/dealerdocs/internal/db"
	"github.com/universalautobrokers/dealerdocs/internal/draft"
	"github.com/universalautobrokers/dealerdocs/internal/generator"
	"github.com/universalautobrokers/dealerdocs/internal/objstore"
	"github.com/universalautobrokers/dealerdocs/internal/preview"
	"github.com/universalautobrokers/dealerdocs/internal/registry"
	"github.com/universalautobrokers/dealerdocs/internal/signature"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

func setupLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

func printVersion() {
	fmt.Printf("dealerdocs %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
	fmt.Printf("  Go version: %s\n", runtime.Version())
	fmt.Printf("  Platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	// Local .env files are optional; flags and real env still win.
	_ = godotenv.Load()

	cfg, err := config.LoadFromFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := setupLogger(cfg)
	if version != "dev" {
		cfg.Version = version
	}
	log.WithField("config", cfg.String()).Info("starting dealerdocs")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cancel, cfg, log); err != nil {
		log.WithError(err).Fatal("dealerdocs exited with error")
	}
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, log *logrus.Logger) error {
	gdb, err := db.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	var blobs *objstore.Store
	if cfg.GCSBucket != "" {
		blobs, err = objstore.New(ctx, cfg.GCSBucket, log)
		if err != nil {
			return fmt.Errorf("open object storage: %w", err)
		}
		log.WithField("bucket", cfg.GCSBucket).Info("object storage attached")
	} else {
		log.Warn("no object storage bucket configured; template blanks stay local")
	}

	// Interface-typed nils must stay nil, not wrap a nil *Store.
	var registryBlobs registry.BlobStore
	var serviceBlobs api.Blobs
	var signatureBlobs signature.Blobs
	if blobs != nil {
		registryBlobs = blobs
		serviceBlobs = blobs
		signatureBlobs = blobs
	}

	reg, err := registry.New(gdb, registryBlobs, log)
	if err != nil {
		return err
	}
	drafts, err := draft.NewStore(gdb, log)
	if err != nil {
		return err
	}
	sigs, err := signature.NewService(gdb, signatureBlobs, cfg.Retention, log)
	if err != nil {
		return err
	}

	docs, err := api.NewDocumentService(gdb, reg, generator.New(log), drafts, serviceBlobs, log)
	if err != nil {
		return err
	}
	previews := preview.NewManager(docs, cfg.AckTimeout, log)
	docs.SetPreviews(previews)

	if blobs != nil {
		reaper := signature.NewReaper(gdb, signatureBlobs, cfg.ReaperInterval, log)
		go reaper.Run(ctx)
	}

	server := api.NewServer(docs, reg, drafts, sigs, previews, log, cfg.IsDebug())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Run(ctx, cfg.Address())
	}()

	select {
	case sig := <-signalCh:
		log.WithField("signal", sig.String()).Info("shutting down")
		cancel()
		if err := <-serverErrCh; err != nil {
			return err
		}
	case err := <-serverErrCh:
		if err != nil {
			return err
		}
	}

	log.Info("dealerdocs stopped")
	return nil
}
