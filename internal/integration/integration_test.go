package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"medprep-study-service/internal/app"
	"medprep-study-service/internal/domain"
	pgstore "medprep-study-service/internal/infra/postgres"
	pgmigrations "medprep-study-service/internal/infra/postgres/migrations"
	redisstore "medprep-study-service/internal/infra/redis"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestStudyFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	runMigrations(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	durable := pgstore.NewBlobStore(pool)
	blobs := redisstore.NewCachedStore(redisClient, durable, 5*time.Minute)
	service := app.NewStudyService(app.Deps{Blobs: blobs, SessionSize: 2})

	login, err := service.Login(ctx, "demo@medmaster.com", "demo123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	userID := login.User.ID
	if !login.FirstLogin {
		t.Fatalf("expected first login on an empty database")
	}

	if _, err := service.StartSession(ctx, userID, app.StartRequest{Specialty: "Cardiologia", Mode: domain.ModeObjective}); err != nil {
		t.Fatalf("start: %v", err)
	}
	question := domain.ObjectiveQuestion{
		Question:           "Qual o primeiro exame na suspeita de IAM?",
		Options:            []string{"ECG", "Troponina", "Eco", "RX", "TC"},
		CorrectAnswerIndex: 0,
	}
	var last app.AnswerResult
	for _, sel := range []int{0, 3} {
		last, err = service.SubmitObjective(ctx, userID, app.ObjectiveAnswer{Question: question, Selected: sel})
		if err != nil {
			t.Fatalf("answer %d: %v", sel, err)
		}
	}
	if !last.Completed || last.Experience != 15 {
		t.Fatalf("expected completed session with 15 xp, got completed=%v xp=%d", last.Completed, last.Experience)
	}

	// The durable row must hold the same record the cache serves.
	data, err := durable.Load(ctx, app.ProgressKey(userID))
	if err != nil {
		t.Fatalf("load from postgres: %v", err)
	}
	stored, err := domain.DecodeProgress(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stored.TotalQuestions != 2 || stored.CorrectAnswers != 1 {
		t.Fatalf("expected 2 answers with 1 correct in postgres, got %d/%d", stored.TotalQuestions, stored.CorrectAnswers)
	}
	if stored.Specialties["Cardiologia"].Total != 2 {
		t.Fatalf("expected specialty tally of 2, got %+v", stored.Specialties)
	}

	// A fresh service over an empty cache reads the record back from postgres.
	if err := redisClient.FlushAll(ctx).Err(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	reopened := app.NewStudyService(app.Deps{Blobs: redisstore.NewCachedStore(redisClient, durable, 5*time.Minute)})
	rec, err := reopened.Progress(ctx, userID)
	if err != nil {
		t.Fatalf("progress after flush: %v", err)
	}
	if rec.TotalQuestions != 2 || rec.CurrentSession == nil || rec.CurrentSession.IsActive {
		t.Fatalf("unexpected record after reopen: total=%d session=%+v", rec.TotalQuestions, rec.CurrentSession)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "medprep", "POSTGRES_PASSWORD": "medpass", "POSTGRES_DB": "medprep"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://medprep:medpass@%s:%s/medprep?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func runMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
