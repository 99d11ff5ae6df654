package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/PravakarDas/YT-Playlist-Downloader/internal/api"
	"github.com/PravakarDas/YT-Playlist-Downloader/internal/config"
	"github.com/PravakarDas/YT-Playlist-Downloader/internal/fetch"
	fileutil "github.com/PravakarDas/YT-Playlist-Downloader/internal/file"
	"github.com/PravakarDas/YT-Playlist-Downloader/internal/job"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load("config.yml")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if err := fileutil.EnsureDir(cfg.DownloadRoot); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DownloadRoot).Msg("ensure download root")
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())

	fetch.EnsureInstalled(baseCtx)
	fetcher := fetch.New()

	manager := job.NewManager(fetcher, job.Options{
		DownloadRoot:       cfg.DownloadRoot,
		GlobalMaxDownloads: cfg.GlobalMaxDownloads,
		PerJobDownloads:    cfg.PerJobDownloads,
		IdleTTL:            cfg.IdleTTL.Std(),
		SweepInterval:      cfg.SweepInterval.Std(),
		FetchTimeout:       cfg.FetchTimeout.Std(),
	})
	manager.SetBaseContext(baseCtx)
	go manager.RunSweeper(baseCtx)

	router := setupRouter()
	apiHandler := api.NewAPI(manager, fetcher, cfg.IdleTTL.Std())
	apiHandler.RegisterRoutes(router)

	const (
		readHeaderTimeout = 5 * time.Second
		shutdownTimeout   = 10 * time.Second
	)

	srv := newHTTPServer(cfg.Port, router, readHeaderTimeout)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdownSignal()

	gracefulShutdown(srv, baseCancel, manager, shutdownTimeout)
}

func setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(api.ZerologLogger())
	return r
}

func newHTTPServer(port int, handler http.Handler, readHeaderTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func waitForShutdownSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")
}

func gracefulShutdown(srv *http.Server, cancelBase context.CancelFunc, manager *job.Manager, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown warning")
	}

	cancelBase()
	if !manager.WaitAll(ctx) {
		log.Warn().Msg("background workers did not finish before timeout")
	}
	log.Info().Msg("server exited cleanly")
}
