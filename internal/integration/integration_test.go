package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/postgres"
	infraredis "live-quiz-service/internal/infra/redis"
)

func TestSingleQuestionSessionEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuiz(t, ctx, pgURL, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := postgres.NewQuizLoader(pool)
	ids, err := loader.ListQuizIDs(ctx, "integration")
	if err != nil || len(ids) != 1 || ids[0] != "quiz-1" {
		t.Fatalf("expected quiz-1 listed for owner, got %v (err %v)", ids, err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	logger := zaptest.NewLogger(t)
	quizRepo := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute)
	sessionStore := infraredis.NewSessionStore(redisClient, 5*time.Minute, "integration")
	relay := infraredis.NewEventRelay(redisClient, logger, 64)
	go relay.Run(ctx)

	events := app.NewBroadcaster(logger)
	registry := app.NewRegistry(sessionStore, quizRepo, events)
	service := app.NewQuizService(registry, events, logger, app.WithRelay(relay), app.WithCatalog(loader))

	sessionID, err := service.CreateSession(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if n, err := redisClient.Exists(ctx, "quiz:session:"+sessionID).Result(); err != nil || n != 1 {
		t.Fatalf("expected session marker in redis, got %d (err %v)", n, err)
	}

	pubsub := redisClient.Subscribe(ctx, infraredis.Channel(sessionID))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := service.StartSession(ctx, sessionID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if ok, err := service.AddParticipant(ctx, sessionID, "P1"); !ok || err != nil {
		t.Fatalf("add participant: ok=%v err=%v", ok, err)
	}
	if ok, err := service.SubmitAnswer(ctx, sessionID, "P1", "a2"); !ok || err != nil {
		t.Fatalf("submit: ok=%v err=%v", ok, err)
	}

	messages := pubsub.Channel()
	timeout := time.After(10 * time.Second)
	for {
		select {
		case msg := <-messages:
			var envelope struct {
				Type    string                     `json:"type"`
				Payload domain.ResultsUpdatedEvent `json:"payload"`
			}
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				t.Fatalf("decode relayed event: %v", err)
			}
			if envelope.Type != string(domain.EventResultsUpdated) || !envelope.Payload.Finished {
				continue
			}
			p := envelope.Payload.Participants
			if len(p) != 1 || p[0].Nickname != "P1" || p[0].Score != 1 {
				t.Fatalf("expected P1 with score 1, got %+v", p)
			}
			return
		case <-timeout:
			t.Fatalf("timed out waiting for finished results on redis")
		}
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	addr, cleanup := startContainer(t, ctx, tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	})
	return fmt.Sprintf("postgres://quiz:quizpass@%s/quizdb?sslmode=disable", addr), cleanup
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	addr, cleanup := startContainer(t, ctx, tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	})
	return "redis://" + addr, cleanup
}

// startContainer runs req and returns host:port of its first exposed port.
func startContainer(t *testing.T, ctx context.Context, req tc.ContainerRequest) (string, func()) {
	t.Helper()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start %s: %v", req.Image, err)
	}
	cleanup := func() { _ = container.Terminate(context.Background()) }

	host, err := container.Host(ctx)
	if err != nil {
		cleanup()
		t.Fatalf("%s host: %v", req.Image, err)
	}
	port, err := container.MappedPort(ctx, nat.Port(req.ExposedPorts[0]))
	if err != nil {
		cleanup()
		t.Fatalf("%s port: %v", req.Image, err)
	}
	return net.JoinHostPort(host, port.Port()), cleanup
}

func seedQuiz(t *testing.T, ctx context.Context, dsn string, quiz domain.Quiz) {
	t.Helper()
	db := postgres.OpenBun(dsn)
	defer db.Close()

	if _, err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := postgres.NewQuizWriter(db).Upsert(ctx, quiz); err != nil {
		t.Fatalf("upsert quiz: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Name:  "Arithmetic",
		Owner: "integration",
		Questions: []domain.Question{
			{
				ID:               "q1",
				Text:             "What is 2 + 2?",
				TimeLimitSeconds: 120,
				Answers: []domain.Answer{
					{ID: "a1", Text: "3"},
					{ID: "a2", Text: "4", Correct: true},
					{ID: "a3", Text: "5"},
				},
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	provider, err := tc.NewDockerProvider()
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	_ = provider.Close()
}
