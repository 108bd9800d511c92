package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inkwell/api/internal/article"
	"inkwell/api/internal/articleid"
	"inkwell/api/internal/config"
	"inkwell/api/internal/history"
	"inkwell/api/internal/indexsync"
	"inkwell/api/internal/lease"
	"inkwell/api/internal/logger"
	"inkwell/api/internal/operation"
	"inkwell/api/internal/search"
	"inkwell/api/internal/store"
)

type articleStore interface {
	Ping(ctx context.Context) error
	MarkAllDirty(ctx context.Context, now int64) (int64, error)
}

func main() {
	once := flag.Bool("once", false, "drain the dirty queue and exit")
	reindex := flag.Bool("reindex", false, "mark every article dirty before syncing")
	memory := flag.Bool("memory", false, "use in-memory store and index")
	flag.Parse()

	cfg := config.Load()
	logger.Init(logger.ParseFormat(cfg.LogFormat), logger.ParseLevel(cfg.LogLevel))
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := articleid.NewClock()
	ids, err := articleid.New(cfg.IDSalt, cfg.IDMinLength, clock)
	if err != nil {
		fatal("article id generator", err)
	}

	var index search.Indexer
	if *memory || strings.TrimSpace(cfg.MeiliURL) == "" {
		slog.Info("using in-memory search index")
		index = search.NewMemoryIndex()
	} else {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, cfg.MeiliIndex)
		defer meili.Close()
		index = meili
	}

	metrics := indexsync.NewMetrics("inkwell")
	var (
		st      articleStore
		worker  *indexsync.Worker
		service *article.Service
	)
	if *memory {
		mem := store.NewMemoryStore()
		st = mem
		worker = indexsync.NewWorker(mem, index, cfg.SyncBatchSize, metrics)
		service = article.NewService(mem, ids, history.NewRecorder(mem, clock), clock)
	} else {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			fatal("database connection failed", err)
		}
		defer db.Close()
		if err := store.ApplyMigrations(ctx, db.DB, cfg.MigrationsDir); err != nil {
			fatal("migrations failed", err)
		}
		pg := store.NewPostgresStore(db)
		st = pg
		worker = indexsync.NewWorker(pg, index, cfg.SyncBatchSize, metrics)
		service = article.NewService(pg, ids, history.NewRecorder(pg, clock), clock)
	}

	registry, err := operation.NewRegistry(operation.ArticleOperations(service, nil)...)
	if err != nil {
		fatal("register operations", err)
	}

	if *reindex {
		n, err := st.MarkAllDirty(ctx, clock.Now())
		if err != nil {
			fatal("reindex", err)
		}
		slog.Info("marked articles for reindex", "count", n)
	}

	if *once {
		report, err := worker.RunUntilClean(ctx, 0)
		if err != nil {
			fatal("index sync", err)
		}
		slog.Info("index sync drained", "upserted", report.Upserted, "deleted", report.Deleted, "failed", report.Failed)
		return
	}

	var syncLease indexsync.Lease
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisLease, err := lease.NewRedisLease(cfg.RedisURL, "indexsync", cfg.SyncLeaseTTL)
		if err != nil {
			fatal("redis connection failed", err)
		}
		defer redisLease.Close()
		syncLease = redisLease
	}

	scheduler, err := indexsync.NewScheduler(worker, cfg.SyncSchedule, syncLease, cfg.SyncLeaseTTL)
	if err != nil {
		fatal("scheduler", err)
	}
	scheduler.Start(ctx)

	server := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           opsHandler(st, metrics, registry),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		slog.Info("index sync listening", "addr", cfg.MetricsAddr, "schedule", cfg.SyncSchedule)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server failed", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown error", "err", err)
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		slog.Warn("scheduler stop", "err", err)
	}
}

func opsHandler(st articleStore, metrics *indexsync.Metrics, registry *operation.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /operations", func(w http.ResponseWriter, _ *http.Request) {
		schemas := make([]operation.Schema, 0)
		for _, name := range registry.Names() {
			op, _ := registry.Lookup(name)
			schemas = append(schemas, op.Schema())
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(schemas)
	})
	return mux
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
