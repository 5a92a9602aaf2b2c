package test

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/suite"

	"github.com/2beens/notesbox/internal"
	"github.com/2beens/notesbox/internal/config"
)

const (
	serverPort = 9000
	serverHost = "127.0.0.1"
)

var serverEndpoint = fmt.Sprintf("http://%s:%d", serverHost, serverPort)

// Define the suite, and absorb the built-in basic suite
// functionality from testify - including a T() method which
// returns the current testing context
type IntegrationTestSuite struct {
	suite.Suite

	DB         *sql.DB
	httpClient *http.Client
	dockerPool *dockertest.Pool
	server     *internal.Server
	teardown   []func()
}

// In order for 'go test' to run this suite, we need to create
// a normal test function and pass our suite to suite.Run
func TestIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}

// runs before all tests are executed
func (s *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()
	fmt.Println("setting up test suite...")

	s.teardown = make([]func(), 0)
	s.httpClient = http.DefaultClient

	// uses a sensible default on windows (tcp/http) and linux/osx (socket)
	var err error
	s.dockerPool, err = dockertest.NewPool("")
	if err != nil {
		log.Fatalf("could not create new dockertest pool: %s", err)
	}
	fmt.Println("dockertest pool created")

	// uses pool to try to connect to Docker
	if err = s.dockerPool.Client.Ping(); err != nil {
		log.Fatalf("could not ping dockertest pool: %s", err)
	}
	fmt.Println("dockertest pool ping successful")

	redisPort, err := s.redisSetup()
	if err != nil {
		s.cleanup()
		log.Fatalf("failed to setup redis: %s", err.Error())
	}
	fmt.Println("redis setup successful")

	pgPort, err := s.postgresSetup(ctx)
	if err != nil {
		s.cleanup()
		log.Fatalf("failed to setup postgres: %s", err)
	}
	fmt.Println("postgres setup successful")

	cfg := getTestConfig(redisPort, pgPort)
	s.server, err = internal.NewServer(
		ctx,
		internal.NewServerParams{
			Config:                  cfg,
			VersionInfo:             "test-version-info",
			DBPassword:              "",
			RedisPassword:           "",
			HoneycombTracingEnabled: false,
		},
	)
	if err != nil {
		s.cleanup()
		log.Fatalf("new server: %s", err)
	}
	fmt.Println("server created")

	s.server.Serve(ctx, cfg.Host, cfg.Port)
	fmt.Println("server started")
}

func (s *IntegrationTestSuite) TearDownSuite() {
	s.cleanup()
}

func (s *IntegrationTestSuite) cleanup() {
	fmt.Println(" --> cleaning up test suite...")
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			fmt.Printf(" --> test suite db close error: %s\n", err)
		}
	}
	fmt.Println(" --> test suite db closed")
	if s.server != nil {
		s.server.GracefulShutdown()
	}
	fmt.Println(" --> test suite server shut down")
	for _, teardown := range s.teardown {
		teardown()
	}
	fmt.Println(" --> test suite cleanup done")
}

func getTestConfig(redisPort, postgresPort string) *config.Config {
	return &config.Config{
		Environment:           "development",
		Host:                  serverHost,
		Port:                  serverPort,
		LogToStdout:           true,
		RedisHost:             "localhost",
		RedisPort:             redisPort,
		DBPort:                postgresPort,
		DBHost:                "localhost",
		DBName:                "notesbox",
		PrometheusMetricsPort: 2112,
	}
}

func (s *IntegrationTestSuite) redisSetup() (string, error) {
	redisResource, err := s.dockerPool.RunWithOptions(&dockertest.RunOptions{
		Repository: "redis",
		Name:       "redis",
		Tag:        "6.2",
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
	})
	if err != nil {
		return "", fmt.Errorf("run redis: %s", err)
	}

	s.teardown = append(s.teardown, func() {
		if err := redisResource.Close(); err != nil {
			fmt.Printf("redis teardown: %s\n", err)
		}
	})

	redisPort := redisResource.GetPort("6379/tcp")
	return redisPort, nil
}

func (s *IntegrationTestSuite) postgresSetup(ctx context.Context) (string, error) {
	pgResource, err := s.dockerPool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "12",
		Env: []string{
			"POSTGRES_USER=postgres",
			"POSTGRES_DB=notesbox",
			"POSTGRES_HOST_AUTH_METHOD=trust",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{
			Name: "no",
		}
	})
	if err != nil {
		return "", fmt.Errorf("dockerpool run postgres: %s", err)
	}

	s.teardown = append(s.teardown, func() {
		if err := pgResource.Close(); err != nil {
			fmt.Printf("postgres teardown: %s\n", err)
		}
	})

	pgPort := pgResource.GetPort("5432/tcp")
	dsn := fmt.Sprintf(
		"postgres://postgres@localhost:%s/notesbox?sslmode=disable",
		pgPort,
	)
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return "", fmt.Errorf("parse db config: %w", err)
	}

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return "", fmt.Errorf("create connection pool: %w", err)
	}

	if err := s.dockerPool.Retry(func() error {
		return db.Ping(ctx)
	}); err != nil {
		panic(fmt.Errorf("connect to db: %s", err))
	}

	res, err := db.Exec(ctx, initSQL)
	if err != nil {
		return "", fmt.Errorf("run init script: %s", err)
	}

	log.Printf("postgres setup result: %d\n", res.RowsAffected())

	// a plain database/sql handle, for checking raw table contents in tests
	s.DB, err = sql.Open("postgres", dsn)
	if err != nil {
		return "", fmt.Errorf("open sql db: %w", err)
	}

	return pgPort, nil
}

const initSQL = `
CREATE TABLE public.users
(
    id            SERIAL PRIMARY KEY,
    username      VARCHAR NOT NULL UNIQUE,
    password_hash VARCHAR NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL
);

ALTER TABLE public.users OWNER TO postgres;

CREATE TABLE public.notes
(
    id         SERIAL PRIMARY KEY,
    title      VARCHAR NOT NULL,
    content    TEXT    NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    deleted_at TIMESTAMPTZ,
    created_by INTEGER NOT NULL,
    updated_by INTEGER NOT NULL,
    deleted_by INTEGER
);

ALTER TABLE public.notes OWNER TO postgres;
CREATE INDEX ix_notes_created_by ON public.notes (created_by);
CREATE INDEX ix_notes_deleted_at ON public.notes (deleted_at) WHERE deleted_at IS NULL;
`
