package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/techresidents/archivesvc/internal/archiver"
	"github.com/techresidents/archivesvc/internal/config"
	"github.com/techresidents/archivesvc/internal/db"
	"github.com/techresidents/archivesvc/internal/fetcher"
	"github.com/techresidents/archivesvc/internal/jobqueue"
	"github.com/techresidents/archivesvc/internal/logger"
	"github.com/techresidents/archivesvc/internal/metrics"
	"github.com/techresidents/archivesvc/internal/persister"
	"github.com/techresidents/archivesvc/internal/pipeline"
	"github.com/techresidents/archivesvc/internal/stitcher"
	"github.com/techresidents/archivesvc/internal/storagepool"
	"github.com/techresidents/archivesvc/internal/waveform"
	"github.com/techresidents/archivesvc/internal/workerpool"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Close()

	logger.Log.Info("archivesvc starting",
		zap.Int("archiver_threads", cfg.ArchiverThreads),
		zap.String("http_addr", cfg.HTTPAddr),
	)

	gdb, err := db.Connect(cfg.DBConnection)
	if err != nil {
		logger.FatalWithFields("failed to connect to database", err)
	}
	if err := db.Migrate(gdb); err != nil {
		logger.FatalWithFields("failed to migrate database", err)
	}
	logger.Log.Info("database connected and migrated")

	ctx := context.Background()

	local, err := newLocalPool(cfg)
	if err != nil {
		logger.FatalWithFields("failed to initialize local storage pool", err)
	}
	public, err := newS3Pool(ctx, cfg, cfg.StoragePublicContainer)
	if err != nil {
		logger.FatalWithFields("failed to initialize public storage pool", err)
	}
	private, err := newS3Pool(ctx, cfg, cfg.StoragePrivateContainer)
	if err != nil {
		logger.FatalWithFields("failed to initialize private storage pool", err)
	}

	provider := fetcher.NewHTTPProvider(cfg.ProviderBaseURL, cfg.ProviderAccount, cfg.ProviderAuthToken)
	f := fetcher.New(provider, local)
	s := stitcher.New(cfg.ToolsFFmpegPath, cfg.ToolsSoxPath, local, local)
	w := waveform.New(cfg.ToolsFFmpegPath, local, local)
	store := persister.NewGormStore(gdb)
	p := persister.New(public, private, local, store)
	runner := pipeline.New(f, s, w, p, cfg.ArchiverTimestampFilenames)

	queueStore := jobqueue.NewGormStore(gdb)
	queue := jobqueue.NewQueue(queueStore, cfg.ArchiverPollSeconds, cfg.ArchiverThreads*4)
	pool := workerpool.NewPool(queue, runner, cfg.ArchiverThreads, cfg.ArchiverRetrySeconds, "archivesvc-worker")
	a := archiver.New(queue, pool)

	metrics.Initialize()
	a.Start()
	logger.Log.Info("archiver started")

	srv := startHTTPServer(cfg, a)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("shutting down")

	a.Stop()
	if err := a.Join(30 * time.Second); err != nil {
		logger.Log.Warn("archiver did not shut down cleanly within timeout", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.ErrorWithFields("http server forced to shutdown", err)
	}

	logger.Log.Info("archivesvc exited")
}

func newLocalPool(cfg *config.Config) (*storagepool.Pool, error) {
	handles := make([]storagepool.Storage, cfg.StoragePoolSize)
	for i := range handles {
		fs, err := storagepool.NewFilesystemStorage(cfg.ToolsWorkingDirectory)
		if err != nil {
			return nil, err
		}
		handles[i] = fs
	}
	return storagepool.NewPool(handles), nil
}

func newS3Pool(ctx context.Context, cfg *config.Config, bucket string) (*storagepool.Pool, error) {
	handles := make([]storagepool.Storage, cfg.StoragePoolSize)
	for i := range handles {
		s3Storage, err := storagepool.NewS3Storage(ctx, cfg.AWSRegion, bucket)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			if err := s3Storage.CheckBucketAccess(ctx); err != nil {
				logger.Log.Warn("bucket access check failed", zap.String("bucket", bucket), zap.Error(err))
			}
		}
		handles[i] = s3Storage
	}
	return storagepool.NewPool(handles), nil
}

// startHTTPServer exposes the archiver's inbound RPC surface: a thin
// start/stop/reinitialize control façade (reinitialize is a no-op),
// /healthz, and /metrics.
func startHTTPServer(cfg *config.Config, a *archiver.Archiver) *http.Server {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/start", func(c *gin.Context) {
		a.Start()
		c.JSON(http.StatusOK, gin.H{"status": "started"})
	})
	r.POST("/stop", func(c *gin.Context) {
		a.Stop()
		c.JSON(http.StatusOK, gin.H{"status": "stopped"})
	})
	r.POST("/reinitialize", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "noop"})
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalWithFields("http server failed", err)
		}
	}()
	return srv
}
