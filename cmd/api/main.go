package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crm-calls/internal/auth"
	"crm-calls/internal/calllog"
	"crm-calls/internal/calls"
	"crm-calls/internal/config"
	"crm-calls/internal/httpapi"
	"crm-calls/internal/jobs"
	"crm-calls/internal/media"
	"crm-calls/internal/metrics"
	"crm-calls/internal/presence"
	"crm-calls/internal/reporting"
	"crm-calls/internal/rtc"
	"crm-calls/internal/schema"
	"crm-calls/internal/signaling"
	"crm-calls/pkg/logger"
	"crm-calls/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, cfg.App.LogLevel)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenDatabase(rootCtx, cfg.DB.Driver, cfg.DatabaseDSN(), utils.PoolConfig{})
	if err != nil {
		log.Error("database init failed", "driver", cfg.DB.Driver, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := schema.Apply(rootCtx, db); err != nil {
		log.Error("schema apply failed", "err", err)
		os.Exit(1)
	}

	var (
		rdb *redis.Client
		bus signaling.Bus
	)
	if cfg.UsesRedis() {
		rdb, err = utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		bus = signaling.NewRedisBus(rdb, log)
	} else {
		bus = signaling.NewMemoryBus()
	}
	defer bus.Close()

	m := metrics.Default()

	sessionRepo := calls.NewSQLRepo(db)
	logRepo := calllog.NewSQLRepo(db)
	feed := calls.NewFeed(bus, cfg.Signaling.FeedTopic, log)
	store := calls.NewStore(sessionRepo, calllog.NewService(logRepo),
		calls.WithNotifier(feed), calls.WithLogger(log))

	presenceSvc := presence.NewService(presence.NewSQLRepo(db), m)

	src, err := media.New(cfg.Media.Source)
	if err != nil {
		log.Error("media source init failed", "source", cfg.Media.Source, "err", err)
		os.Exit(1)
	}
	peers, err := rtc.NewPionFactory(src, rtc.PionConfig{
		STUNURLs:            cfg.Media.STUNURLs,
		DisconnectedTimeout: cfg.Media.ICEDisconnectedTimeout,
		FailedTimeout:       cfg.Media.ICEFailedTimeout,
	})
	if err != nil {
		log.Error("webrtc init failed", "err", err)
		os.Exit(1)
	}

	var guard rtc.Guard = rtc.NewLocalGuard()
	if rdb != nil {
		guard = rtc.NewRedisGuard(rdb, cfg.Calls.GuardTTL)
	}

	hub := rtc.NewHub(rtc.Config{
		Store:       store,
		Feed:        feed,
		Bus:         bus,
		Topic:       cfg.Signaling.Topic,
		Media:       src,
		Peers:       peers,
		Guard:       guard,
		RingTimeout: cfg.Calls.RingTimeout,
		Metrics:     m,
		Log:         log,
	})

	reaper := jobs.NewReaper(store, presenceSvc, cfg.Calls.StaleAfter, cfg.Presence.StaleAfter,
		jobs.WithMetrics(m), jobs.WithLogger(log))
	if err := reaper.Start(cfg.Calls.ReaperSchedule); err != nil {
		log.Error("reaper init failed", "err", err)
		os.Exit(1)
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, db, auth.RequireAccessToken(authManager), httpapi.Handlers{
		Auth:      authManager,
		Calls:     hub,
		Presence:  presenceSvc,
		Reports:   reporting.NewService(reporting.NewStoreRepo(sessionRepo, logRepo)),
		DevLogin:  !cfg.IsProduction(),
		Heartbeat: cfg.Presence.HeartbeatInterval,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// The event socket is long-lived; per-write deadlines are set on the connection.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env,
			"db", cfg.DB.Driver, "signaling", cfg.Signaling.Backend, "media", cfg.Media.Source)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// Ends held calls and closes event streams so websocket handlers return.
	hub.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	select {
	case <-reaper.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn("reaper did not stop in time")
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
