package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"contest-variant-service/internal/app"
	"contest-variant-service/internal/auth"
	"contest-variant-service/internal/config"
	"contest-variant-service/internal/infra/memory"
	pginfra "contest-variant-service/internal/infra/postgres"
	redisinfra "contest-variant-service/internal/infra/redis"
	"contest-variant-service/internal/registry"
	transport "contest-variant-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the contest server",
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

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
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
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	tables := make([]*registry.Table, 0, len(cfg.Contests))
	for _, contest := range cfg.Contests {
		table, err := registry.Build(contest.ID, contest.Secret, contest.Variants)
		if err != nil {
			return err
		}
		tables = append(tables, table)
	}

	var loader memory.VariantLoader = memory.NewStaticVariantLoader()
	if pool != nil {
		loader = pginfra.NewVariantLoader(pool)
	}

	variantTTL := config.TTLDuration(cfg.Variant.TTL, 10*time.Minute)
	var variants app.VariantRepository
	if redisClient != nil {
		variants = redisinfra.NewVariantRepository(redisClient, loader, variantTTL)
	} else {
		variants = memory.NewVariantRepository(loader, variantTTL)
	}

	var revocations auth.RevocationStore = auth.NewMemoryRevocations()
	if redisClient != nil {
		revocations = redisinfra.NewRevocationStore(redisClient)
	}
	credentialTTL := config.TTLDuration(cfg.Credential.TTL, 8*time.Hour)
	issuer := auth.NewIssuer(cfg.Credential.Secret, credentialTTL, revocations)

	var monitors app.MonitorRepository = memory.NewMonitorStore()
	if redisClient != nil {
		monitors = redisinfra.NewMonitorStore(redisClient, redisTTL)
	}

	var participations app.ParticipationStore
	var students app.StudentStore
	var restores app.RestoreStore
	if pool != nil {
		store := pginfra.NewContestStore(pool)
		participations, students, restores = store, store, store
	} else {
		store := memory.NewContestStore()
		participations, students, restores = store, store, store
	}

	service := app.NewContestService(participations, students, restores, issuer, variants, tables, monitors)
	if cfg.Registration.RetryAttempts > 0 {
		backoff := config.TTLDuration(cfg.Registration.RetryBackoff, 50*time.Millisecond)
		service.WithRetry(cfg.Registration.RetryAttempts, backoff)
	}

	mux := http.NewServeMux()
	transport.NewHandler(service, issuer).Register(mux, transport.NewWSHandler(service))

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting contest service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
