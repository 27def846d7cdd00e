package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-iam/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-iam/internal/app"
	"github.com/odyssey-erp/odyssey-iam/internal/audit"
	audithttp "github.com/odyssey-erp/odyssey-iam/internal/audit/http"
	"github.com/odyssey-erp/odyssey-iam/internal/auth"
	"github.com/odyssey-erp/odyssey-iam/internal/observability"
	"github.com/odyssey-erp/odyssey-iam/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/rbac"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
	"github.com/odyssey-erp/odyssey-iam/internal/users"
	"github.com/odyssey-erp/odyssey-iam/jobs"
)

const usage = `usage: odyssey [serve | migrate | seed-admin --user ID [--role NAME] | jobs (stats|scheduled|retry|trigger NAME)]`

func main() {
	if app.SkipStartup(nil, "odyssey") {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	command, args := "serve", []string(nil)
	if len(os.Args) > 1 {
		command, args = os.Args[1], os.Args[2:]
	}

	switch command {
	case "serve":
		err = serve(ctx, stop, cfg, logger)
	case "migrate":
		os.Exit(runMigrate(ctx, cfg))
	case "seed-admin":
		os.Exit(runSeedAdmin(ctx, cfg, logger, args))
	case "jobs":
		os.Exit(runJobs(ctx, cfg, args))
	default:
		_, _ = fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("odyssey", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	var auditSink rbac.AuditSink = shared.NewAuditLogger(dbpool)
	if cfg.AuditAsync {
		client, err := jobs.NewClient(redisOpts(cfg))
		if err != nil {
			return fmt.Errorf("init job client: %w", err)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		auditSink = jobs.NewAuditEnqueuer(client)
	}

	usersService := users.NewService(users.NewRepository(dbpool))
	rbacService := rbac.NewService(rbac.NewPGRepository(dbpool), usersService, rbac.ServiceOptions{
		Audit:   auditSink,
		Metrics: metrics,
		Logger:  logger,
	})
	guard := rbac.Guard{Logger: logger, Metrics: metrics}

	issuer, err := auth.NewTokenIssuer(cfg.TokenSecret, cfg.TokenIssuer, cfg.TokenTTL)
	if err != nil {
		return err
	}
	sessions := auth.NewSessionRegistry(redisClient)
	authService := auth.NewService(auth.NewRepository(dbpool), auth.NewSnapshotter(rbacService), issuer, sessions, logger)

	inspector := asynq.NewInspector(redisOpts(cfg))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		Authenticator: &auth.Authenticator{Issuer: issuer, Sessions: sessions, Logger: logger},
		AuthHandler:   auth.NewHandler(logger, authService),
		RBACHandler:   rbac.NewHandler(logger, rbacService, guard),
		UsersHandler:  users.NewHandler(logger, usersService, guard),
		AuditHandler:  audithttp.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), guard),
		JobHandler:    jobs.NewHandler(inspector, logger),
		Metrics:       metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.Bool("audit_async", cfg.AuditAsync))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func runMigrate(ctx context.Context, cfg *app.Config) int {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		return 1
	}
	defer pool.Close()
	admin := cli.NewAdminCLI(migrator(pool), nil)
	return admin.MigrateCommand(ctx, cli.CommandIO{})
}

func runSeedAdmin(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("seed-admin", flag.ContinueOnError)
	userID := fs.Int64("user", 0, "id of the user receiving the admin role")
	roleName := fs.String("role", cli.DefaultAdminRole, "name of the admin role")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "seed-admin: %v\n", err)
		return 1
	}
	defer pool.Close()

	usersService := users.NewService(users.NewRepository(pool))
	rbacService := rbac.NewService(rbac.NewPGRepository(pool), usersService, rbac.ServiceOptions{
		Audit:  shared.NewAuditLogger(pool),
		Logger: logger,
	})
	admin := cli.NewAdminCLI(migrator(pool), rbacService)
	return admin.SeedAdminCommand(ctx, cli.SeedAdminOptions{UserID: *userID, RoleName: *roleName})
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	jobsCLI, err := cli.NewJobsCLI(redisOpts(cfg))
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()

	switch args[0] {
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
			return 1
		}
		fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	case "scheduled":
		tasks, err := jobsCLI.ListScheduled(ctx, 20)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
			return 1
		}
		for _, task := range tasks {
			fmt.Printf("%s %s next=%s\n", task.ID, task.Type, task.NextProcessAt.Format(time.RFC3339))
		}
	case "retry":
		tasks, err := jobsCLI.ListRetrying(ctx, 20)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
			return 1
		}
		for _, task := range tasks {
			fmt.Printf("%s %s retried=%d last_err=%q\n", task.ID, task.Type, task.Retried, task.LastErr)
		}
	case "trigger":
		if len(args) < 2 {
			_, _ = fmt.Fprintln(os.Stderr, "jobs trigger: task name required")
			return 2
		}
		info, err := jobsCLI.Trigger(ctx, args[1])
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
			return 1
		}
		fmt.Printf("enqueued %s id=%s\n", info.Type, info.ID)
	default:
		_, _ = fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	return 0
}

func migrator(pool *pgxpool.Pool) cli.Migrator {
	return func(ctx context.Context, statements []string) error {
		return db.Migrate(ctx, pool, statements)
	}
}

func redisOpts(cfg *app.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
}
