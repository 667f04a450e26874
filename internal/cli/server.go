package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quizcraft-service/internal/app"
	"quizcraft-service/internal/clients/gemini"
	"quizcraft-service/internal/clients/pexels"
	"quizcraft-service/internal/config"
	"quizcraft-service/internal/infra/memory"
	"quizcraft-service/internal/infra/postgres"
	redisstore "quizcraft-service/internal/infra/redis"
	"quizcraft-service/internal/logger"
	"quizcraft-service/internal/multiplayer"
	transport "quizcraft-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	roomTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	var store app.Store = memory.NewStore()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = postgres.NewStore(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute)
	var (
		quizzes app.QuizReader
		rooms   multiplayer.RoomStore
	)
	if redisClient != nil {
		quizzes = redisstore.NewQuizCache(redisClient, store, quizTTL)
		rooms = redisstore.NewRoomStore(redisClient, roomTTL)
	} else {
		quizzes = memory.NewQuizCache(store, quizTTL)
		rooms = memory.NewRoomStore()
	}

	deps := app.Deps{
		Store:           app.WithQuizCache(store, quizzes),
		Rooms:           rooms,
		RoomQuiz:        app.RoomQuizConfig{Topic: cfg.Multiplayer.Topic, NumQuestions: cfg.Multiplayer.NumQuestions},
		PublicURL:       cfg.Server.PublicURL,
		TimePerQuestion: cfg.Quiz.DefaultTimePerQuestion,
		APIKeyStatus:    cfg.Warnings(),
		Log:             log,
	}
	if ai := gemini.New(gemini.Config{
		APIKey:  cfg.Gemini.APIKey,
		BaseURL: cfg.Gemini.BaseURL,
		Model:   cfg.Gemini.Model,
		Timeout: config.TTLDuration(cfg.Gemini.Timeout, 60*time.Second),
	}); ai != nil {
		deps.Generator = ai
		deps.Simplifier = ai
		deps.Tutor = ai
	}
	deps.Images = pexels.New(pexels.Config{
		APIKey:  cfg.Pexels.APIKey,
		BaseURL: cfg.Pexels.BaseURL,
		Timeout: config.TTLDuration(cfg.Pexels.Timeout, 10*time.Second),
	})
	if msg := deps.APIKeyStatus; msg != "" {
		log.Warn("degraded features", "reason", msg)
	}

	router := transport.NewRouter(transport.RouterConfig{
		Store:          deps.Store,
		Sessions:       transport.NewSessionHandler(deps, log),
		Log:            log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	// No WriteTimeout: websocket sessions outlive any single response.
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting quiz service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
