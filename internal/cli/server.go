package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"report-card-service/internal/app"
	"report-card-service/internal/config"
	"report-card-service/internal/infra/memory"
	redisstore "report-card-service/internal/infra/redis"
	"report-card-service/internal/render"
	transport "report-card-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the report card server",
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
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

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

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	rosterTTL := config.TTLDuration(cfg.Roster.TTL, 10*time.Minute)
	sessionTTL := config.TTLDuration(cfg.Session.TTL, 30*time.Minute)

	var roster app.RosterRepository
	var store app.SessionRepository
	if b.redis != nil {
		roster = redisstore.NewRosterRepository(b.redis, b.loader, rosterTTL, log)
		store = redisstore.NewSessionStore(b.redis, roster, sessionTTL, log)
	} else {
		roster = memory.NewRosterRepository(b.loader, rosterTTL)
		store = memory.NewSessionStore(roster, sessionTTL)
	}
	service := app.NewReportService(store, render.NewRenderer())

	sweeper, err := startSweeper(service, cfg.Session.SweepSchedule, log)
	if err != nil {
		return err
	}
	defer func() { <-sweeper.Stop().Done() }()

	handler := transport.NewHandler(service, log, defaultClass(cfg))
	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler.Router(),
		ReadTimeout:  config.TTLDuration(cfg.Server.ReadTimeout, 15*time.Second),
		WriteTimeout: config.TTLDuration(cfg.Server.WriteTimeout, 30*time.Second),
	}

	go func() {
		log.Info("starting report card service", zap.String("addr", server.Addr), zap.Bool("redis", b.redis != nil), zap.Bool("postgres", b.pool != nil))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", zap.Error(err))
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

// startSweeper removes idle sessions on the configured schedule.
func startSweeper(service *app.ReportService, schedule string, log *zap.Logger) (*cron.Cron, error) {
	if schedule == "" {
		schedule = "@every 1m"
	}
	logger := cronLogger{log: log.Sugar()}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger)))

	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if n := service.SweepSessions(ctx); n > 0 {
			log.Info("swept idle sessions", zap.Int("count", n))
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

func defaultClass(cfg config.Config) string {
	if cfg.Roster.DefaultClass != "" {
		return cfg.Roster.DefaultClass
	}
	return memory.DemoClassID
}
