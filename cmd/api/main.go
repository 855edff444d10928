package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis"
	"github.com/xpanvictor/voxline/internal/app"
	"github.com/xpanvictor/voxline/internal/config"
	"github.com/xpanvictor/voxline/internal/database"
	"github.com/xpanvictor/voxline/internal/db"
	"github.com/xpanvictor/voxline/internal/server"
	"github.com/xpanvictor/voxline/pkg/Logger"
	"gorm.io/gorm"
)

// Loads config, wires the voice pipeline and serves it until SIGINT/SIGTERM.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := Logger.New(cfg.Debug)
	defer logger.Sync()
	logger.Info("Logger initialized")

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	var gdb *gorm.DB
	if cfg.DB.Enabled() {
		gdb, err = db.InitDB(cfg.DB, cfg.Debug)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		if err := database.MigrateDB(gdb); err != nil {
			logger.Fatalf("Migration failed: %v", err)
		}
	} else {
		logger.Info("database not configured, turns will not be archived")
	}

	var rc *redis.Client
	if cfg.Session.Snapshots {
		rc, err = database.NewRedis(cfg.Redis)
		if err != nil {
			logger.Errorf("session snapshots disabled: %v", err)
			rc = nil
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.NewApp(ctx, cfg, logger, gdb, rc)
	if err != nil {
		logger.Fatalf("Failed to build application: %v", err)
	}
	if err := a.Start(); err != nil {
		logger.Fatalf("Failed to start system tasks: %v", err)
	}

	router := gin.New()
	server.InitializeRoutes(router, a.ServerDeps)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router.Handler(),
	}
	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server exited: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	// hijacked websocket connections are not tracked by srv.Shutdown
	if err := a.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("app shutdown: %v", err)
	}

	if rc != nil {
		rc.Close()
	}
	if gdb != nil {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	}
	logger.Info("Shutdown system")
}
