package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"garage-monitor/internal/anpr"
	"garage-monitor/internal/config"
	"garage-monitor/internal/db"
	garagehttp "garage-monitor/internal/http"
	"garage-monitor/internal/metrics"
	"garage-monitor/internal/occupancy"
	"garage-monitor/internal/repository"
	"garage-monitor/internal/service"
	"garage-monitor/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Log)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stderr)
	if cfg.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func run(cfg *config.Config, log zerolog.Logger) error {
	if err := os.MkdirAll(cfg.Server.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	database, err := db.Connect(cfg.Database.DSN(), log)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	repo := repository.NewGarageRepository(database)
	m := metrics.New()
	counter := occupancy.NewCounter(cfg.Garage.TotalSlots)
	hub := ws.NewHub(log)

	extractor, err := anpr.NewTextExtractor(log)
	if err != nil {
		return fmt.Errorf("init text extractor: %w", err)
	}

	localizer := anpr.NewLocalizer(cfg.Detector.PlateModelPath, cfg.Detector.Confidence, log)

	var vehicles anpr.VehicleDetector
	if detector := anpr.NewVehicleDetector(cfg.Detector.VehicleModelPath, log); detector != nil {
		vehicles = detector
	}

	pipeline := anpr.NewPipeline(localizer, extractor, vehicles, m, log)
	defer pipeline.Close()

	camera := anpr.NewCameraClient(time.Duration(cfg.Camera.FetchTimeout)*time.Second, m, log)

	garageService := service.NewGarageService(repo, counter, m, hub, log)
	detectService := service.NewDetectService(
		camera, pipeline, repo, counter, m, hub,
		cfg.Server.DataDir, cfg.Camera.URL,
		time.Duration(cfg.Camera.FetchTimeout)*time.Second,
		cfg.Detector.QueueSize, log,
	)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	detectService.Start(workerCtx, cfg.Detector.Workers)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	handler := garagehttp.NewHandler(garageService, detectService, cfg, log)
	handler.Register(router, garagehttp.JWTAuth(cfg.Auth.JWTSecret))
	handler.RegisterDashboard(router)
	router.GET("/ws", hub.Handle)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("server listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errc:
		return err
	case <-sigCtx.Done():
	}

	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}

	stopWorkers()
	detectService.Wait()

	log.Info().Msg("stopped")
	return nil
}
