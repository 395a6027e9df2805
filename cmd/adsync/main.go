package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/api/option"

	"github.com/splax/adsync/internal/ads"
	"github.com/splax/adsync/internal/app/migrate"
	httpx "github.com/splax/adsync/internal/http"
	"github.com/splax/adsync/internal/repository/postgres"
	"github.com/splax/adsync/internal/scheduler"
	"github.com/splax/adsync/internal/service/archive"
	"github.com/splax/adsync/internal/service/ping"
	"github.com/splax/adsync/internal/service/report"
	"github.com/splax/adsync/internal/sheets"
	"github.com/splax/adsync/internal/status"
	"github.com/splax/adsync/pkg/config"
	"github.com/splax/adsync/pkg/logger"
)

const (
	jobReport = "report"
	jobPing   = "ping"
	jobAll    = "all"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	once := flag.Bool("once", false, "run the selected jobs once and exit")
	jobFlag := flag.String("job", jobAll, "job to run (report|ping|all)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New("adsync", slog.LevelInfo).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New("adsync", logger.ParseLevel(cfg.LogLevel))

	selected := strings.ToLower(strings.TrimSpace(*jobFlag))
	if selected != jobReport && selected != jobPing && selected != jobAll {
		log.Error("unsupported job", "job", *jobFlag)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := status.NewMemoryStore()
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		redisStore, err := status.NewRedisStore(addr, cfg.RedisPassword, cfg.RedisDB, log)
		if err != nil {
			log.Warn("redis status store unavailable", "error", err)
		} else {
			store = redisStore
		}
	}
	defer store.Close()

	var (
		archiveSvc *archive.Service
		runner     *migrate.Runner
	)
	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}

		r, err := migrate.New(pool, dsn, cfg.MigrationsDir, log)
		if err != nil {
			log.Error("failed to configure migrations", "error", err)
			os.Exit(1)
		}
		defer r.Close()
		if err := r.Ping(ctx); err != nil {
			log.Error("database ping failed", "error", err)
			os.Exit(1)
		}
		if cfg.DatabaseAutoMigrate {
			if err := r.Ensure(ctx); err != nil {
				log.Error("migrations failed", "error", err)
				os.Exit(1)
			}
		} else {
			log.Info("automatic migrations disabled")
		}
		runner = &r

		repo := postgres.New(pool)
		svc := archive.New(repo, repo, log)
		archiveSvc = &svc
	}

	routerOpts := []httpx.Option{}
	if archiveSvc != nil {
		routerOpts = append(routerOpts, httpx.WithArchive(archiveSvc), httpx.WithDatabase(runner))
	}
	router := httpx.New(log, store, routerOpts...)

	sched := scheduler.New(store, router, log)

	if selected == jobReport || selected == jobAll {
		dispatcher, err := buildDispatcher(ctx, cfg, log, archiveSvc)
		if err != nil {
			log.Error("failed to configure report job", "error", err)
			os.Exit(1)
		}
		job := scheduler.NewJob(jobReport, func(ctx context.Context) error {
			return dispatcher.Run(ctx)
		})
		if err := sched.Add(job, cfg.ReportInterval); err != nil {
			log.Error("failed to schedule report job", "error", err)
			os.Exit(1)
		}
	}

	if selected == jobPing || selected == jobAll {
		pinger := ping.New(cfg.PingURL, &http.Client{Timeout: cfg.PingTimeout}, nil, log)
		if archiveSvc != nil {
			pinger.WithRecorder(archiveSvc)
		}
		job := scheduler.NewJob(jobPing, func(ctx context.Context) error {
			router.RecordPing(pinger.Ping(ctx))
			return nil
		})
		if err := sched.Add(job, cfg.PingInterval); err != nil {
			log.Error("failed to schedule ping job", "error", err)
			os.Exit(1)
		}
	}

	if *once {
		failed := false
		for _, name := range sched.Jobs() {
			if err := sched.RunOnce(ctx, name); err != nil {
				failed = true
			}
		}
		if failed {
			os.Exit(1)
		}
		return
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go sched.Run(ctx)

	errorCh := make(chan error, 1)
	go func() {
		log.Info("adsync server starting", "addr", cfg.Addr, "jobs", sched.Jobs())
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("adsync server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}

func buildDispatcher(ctx context.Context, cfg config.Config, log *slog.Logger, archiveSvc *archive.Service) (*report.Dispatcher, error) {
	credentials := cfg.AdsCredentialsFile
	if strings.TrimSpace(credentials) == "" {
		credentials = cfg.SheetCredentialsFile
	}
	tokens, err := ads.TokenSource(ctx, credentials)
	if err != nil {
		return nil, err
	}
	source, err := ads.NewClient(ads.Config{
		BaseURL:         cfg.AdsBaseURL,
		APIVersion:      cfg.AdsAPIVersion,
		CustomerID:      cfg.AdsCustomerID,
		LoginCustomerID: cfg.AdsLoginCustomerID,
		DeveloperToken:  cfg.AdsDeveloperToken,
		TokenSource:     tokens,
	}, &http.Client{Timeout: cfg.AdsTimeout})
	if err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if path := strings.TrimSpace(cfg.SheetCredentialsFile); path != "" {
		opts = append(opts, option.WithCredentialsFile(path))
	}
	exporter, err := sheets.New(ctx, cfg.SheetURL, cfg.SheetName, log, opts...)
	if err != nil {
		return nil, err
	}

	sink := report.FanOut{exporter}
	if archiveSvc != nil {
		sink = append(sink, *archiveSvc)
	}
	return report.New(source, sink, log, cfg)
}
