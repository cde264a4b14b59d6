package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"

	"mediavault/api"
	"mediavault/config"
	"mediavault/handlers"
	"mediavault/internal/database"
	"mediavault/services/catalog"
	"mediavault/services/loader"
	"mediavault/services/publisher"
	"mediavault/utils"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the settings file")
	flag.Parse()

	cfgManager := config.NewManager(*configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("[main] failed to load settings: %v", err)
	}

	if settings.Server.LogFile != "" {
		log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   settings.Server.LogFile,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
		}))
	}

	loaderClient := loader.NewClient(
		settings.Loader.BaseURL,
		afero.NewOsFs(),
		settings.Loader.CacheDir,
		settings.Loader.CacheTTLHours,
	)

	// The publish journal is optional; the publish flow never depends on it.
	var db *database.DB
	var journal publisher.Journal
	if settings.Publish.JournalPath != "" {
		db, err = database.NewDB(database.Config{DatabasePath: settings.Publish.JournalPath})
		if err != nil {
			log.Printf("[main] warning: publish journal unavailable: %v", err)
		} else {
			journal = db.Repository
			defer db.Close()
		}
	}

	var sink catalog.Sink
	if settings.Publish.SinkURL != "" {
		sink = publisher.NewClient(settings.Publish.SinkURL, journal)
	}

	svc := catalog.New(loaderClient, sink)

	// Initial index load is best-effort: the server still comes up and the UI
	// can trigger a reload once the remote is reachable.
	bootCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := svc.LoadIndex(bootCtx); err != nil {
		log.Printf("[main] initial index load failed: %v", err)
	}
	cancel()

	router := utils.NewRouter()
	router.Use(api.RequestLogMiddleware)

	limiter := api.NewIPRateLimiter(rate.Every(time.Second), 10)
	h := handlers.NewCatalogHandler(svc)
	h.SetGroupWarmer(loaderClient)
	if db != nil {
		h.SetPublishHistory(db.Repository)
	}
	h.RegisterRoutes(router, limiter)

	srv := &http.Server{
		Addr:              settings.Server.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[main] listening on %s", settings.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[main] server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Printf("[main] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] shutdown error: %v", err)
	}
}
