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
	"go.uber.org/zap"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/file"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/postgres"
	redisinfra "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"
)

// quizSource is where quiz definitions come from before caching.
type quizSource interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	ListQuizIDs(ctx context.Context, owner string) ([]string, error)
}

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

func runServer(parent context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, logger); err != nil {
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
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not reachable at startup", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var source quizSource
	var fileLoader *file.Loader
	switch {
	case pool != nil:
		source = postgres.NewQuizLoader(pool)
	case cfg.Quiz.File != "":
		fileLoader, err = file.NewLoader(cfg.Quiz.File, logger)
		if err != nil {
			return err
		}
		source = fileLoader
	default:
		logger.Info("no quiz store configured, serving built-in sample quizzes")
		source = memory.NewStaticQuizLoader(sampleQuizzes())
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	var invalidate func()
	if redisClient != nil {
		repo := redisinfra.NewQuizRepository(redisClient, source, quizTTL)
		quizRepo = repo
		invalidate = func() {
			if err := repo.Invalidate(ctx); err != nil {
				logger.Warn("quiz cache invalidation failed", zap.Error(err))
			}
		}
	} else {
		repo := memory.NewQuizRepository(source, quizTTL)
		quizRepo = repo
		invalidate = func() { repo.Invalidate() }
	}
	if fileLoader != nil {
		go func() {
			if err := fileLoader.Watch(ctx, invalidate); err != nil {
				logger.Warn("quiz file watch stopped", zap.Error(err))
			}
		}()
	}

	var store app.SessionRepository
	if redisClient != nil {
		instance, _ := os.Hostname()
		redisStore := redisinfra.NewSessionStore(redisClient, redisTTL, instance)
		if redisTTL > 0 {
			go redisStore.KeepAlive(ctx, redisTTL/3)
		}
		store = redisStore
	} else {
		store = memory.NewSessionStore()
	}

	events := app.NewBroadcaster(logger)
	registry := app.NewRegistry(store, quizRepo, events)
	opts := []app.ServiceOption{app.WithCatalog(source)}
	var relay *redisinfra.EventRelay
	if redisClient != nil && cfg.Redis.PublishEvents {
		relay = redisinfra.NewEventRelay(redisClient, logger, 1024)
		go relay.Run(ctx)
		opts = append(opts, app.WithRelay(relay))
	}
	service := app.NewQuizService(registry, events, logger, opts...)

	go service.RunReaper(ctx,
		config.TTLDuration(cfg.Sessions.ReapInterval, time.Minute),
		config.TTLDuration(cfg.Sessions.TTL, time.Hour),
	)

	handler := transport.NewHandler(service, logger, cfg.Server.AllowedOrigins)
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("server failed", zap.Error(err))
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
		return err
	}
	if relay != nil {
		select {
		case <-relay.Done():
		case <-shutdownCtx.Done():
			logger.Warn("event relay did not drain before shutdown")
		}
	}
	logger.Info("server stopped")
	return nil
}

// sampleQuizzes is served when neither Postgres nor a quiz file is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Name:  "Warm-up",
			Owner: "demo",
			Questions: []domain.Question{
				{
					ID:               "q1",
					Text:             "What is 2 + 2?",
					TimeLimitSeconds: 30,
					Answers: []domain.Answer{
						{ID: "a1", Text: "3"},
						{ID: "a2", Text: "4", Correct: true},
						{ID: "a3", Text: "5"},
					},
				},
				{
					ID:               "q2",
					Text:             "Which planet is known as the red planet?",
					TimeLimitSeconds: 30,
					Answers: []domain.Answer{
						{ID: "a1", Text: "Mars", Correct: true},
						{ID: "a2", Text: "Venus"},
					},
				},
			},
		},
	}
}
