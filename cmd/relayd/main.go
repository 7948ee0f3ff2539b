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

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/parlaydesk/rfqrelay/internal/auction"
	"github.com/parlaydesk/rfqrelay/internal/config"
	"github.com/parlaydesk/rfqrelay/internal/relay/events"
	"github.com/parlaydesk/rfqrelay/internal/relay/gateway"
)

func main() {
	configPath := flag.String("config", "relay.yaml", "path to yaml config")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()

	var sink auction.EventSink
	if cfg.NATSURL != "" {
		jsCfg := events.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATSURL
		publisher, err := events.NewPublisher(jsCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect lifecycle event publisher")
		}
		defer publisher.Close()
		sink = publisher
	}

	var archiver auction.Archiver
	if cfg.PostgresDSN != "" {
		archive, err := auction.OpenPostgresArchive(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open auction archive")
		}
		defer archive.Close()
		archiver = archive
	}

	registry := auction.NewRegistry(
		auction.NewMemoryStore(),
		clock,
		auction.Config{
			DefaultDuration: cfg.AuctionDefault(),
			MaxDuration:     cfg.AuctionMax(),
			SweepInterval:   cfg.SweepInterval(),
			SweepGrace:      cfg.SweepGrace(),
		},
		sink,
		archiver,
	)

	connCfg := gateway.DefaultConnectionConfig()
	connCfg.MaxMessageSize = int64(cfg.MaxMessageBytes)
	connCfg.RateLimitWindow = cfg.RateLimitWindow()
	connCfg.RateLimitMax = cfg.RateLimitMax

	service := gateway.NewService(registry, connCfg, clock)
	go service.Start(ctx)

	server := setupServer(cfg, service)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("relay listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
}

func setupServer(cfg config.Config, service *gateway.Service) *http.Server {
	mux := http.NewServeMux()
	service.RegisterRoutes(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodHead, http.MethodGet, http.MethodPost},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: c.Handler(mux),
	}
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if os.Getenv("RELAY_LOG_PRETTY") != "" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
