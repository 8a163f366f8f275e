package main

import (
	"context"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/podpairer/server/internal/clock"
	"github.com/podpairer/server/internal/config"
	"github.com/podpairer/server/internal/database"
	"github.com/podpairer/server/internal/handler"
	"github.com/podpairer/server/internal/httputil"
	"github.com/podpairer/server/internal/jobs"
	"github.com/podpairer/server/internal/metrics"
	"github.com/podpairer/server/internal/middleware"
	"github.com/podpairer/server/internal/redis"
	"github.com/podpairer/server/internal/repository"
	"github.com/podpairer/server/internal/service"
	"github.com/podpairer/server/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("APP_ENV") == "production"
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	if cfg.RunMigrations {
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	ctx := context.Background()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewCollector(registry)

	participantRepo := repository.NewParticipantRepository(db.DB)
	podRepo := repository.NewPodRepository(db.DB)
	matchRepo := repository.NewMatchRepository(db.DB)
	ratingRepo := repository.NewRatingRepository(db.DB)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	clk := clock.Real{}
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))

	assembler := service.NewPodAssembler(
		db, participantRepo, podRepo, service.NewHistorySource(matchRepo, ratingRepo),
		broker, recorder, clk, rng,
		service.AssemblerConfig{
			ConfirmWindow: cfg.ConfirmWindow(),
			Trials:        cfg.AssemblyTrials,
			Weights:       cfg.ScoringWeights(),
		},
	)
	reaper := service.NewTimeoutReaper(db, participantRepo, podRepo, broker, recorder, clk)
	podService := service.NewPodService(db, participantRepo, podRepo, matchRepo, broker, recorder, clk)
	queueService := service.NewQueueService(participantRepo)
	ratingService := service.NewRatingService(podRepo, ratingRepo)

	authMiddleware := middleware.NewAuthMiddleware(participantRepo)
	adminMiddleware := middleware.NewAdminMiddleware(cfg.AdminToken)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(
		middleware.NewRedisRateLimiter(redisClient.Client), cfg.PodActionLimitPerMin,
	)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	queueHandler := handler.NewQueueHandler(queueService)
	podHandler := handler.NewPodHandler(podService, ratingService, rateLimitMiddleware.Handler)
	adminHandler := handler.NewAdminHandler(assembler, reaper)
	eventsHandler := handler.NewEventsHandler(broker)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
		defer cancel()

		status, code := "ok", http.StatusOK
		if err := db.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("health check: database unreachable")
			status, code = "degraded", http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, map[string]any{
			"status":      status,
			"timestamp":   time.Now().UnixMilli(),
			"sseClients":  broker.TotalClients(),
			"redisHealth": redisClient.Healthy(ctx),
		})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(registry))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Handler)

			// Streams outlive the request timeout.
			r.Get("/events", eventsHandler.ServeHTTP)

			r.Group(func(r chi.Router) {
				r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
				r.Mount("/queue", queueHandler.Routes())
				r.Mount("/pods", podHandler.Routes())
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(adminMiddleware.Handler)
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Mount("/admin", adminHandler.Routes())
		})
	})

	scheduler := jobs.NewPodScheduler(
		assembler, reaper, clk, recorder, cfg.AssemblyInterval(), cfg.TimeoutInterval(),
	)
	scheduler.Start()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.AdminTokenHeader},
		AllowCredentials: true,
	}).Handler(r)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      corsHandler,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	// Close the broker first so open SSE streams return and Shutdown can finish.
	broker.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
