package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"emergency-dispatch-be/internal/bootstrap"
	"emergency-dispatch-be/internal/config"
	"emergency-dispatch-be/internal/server"
	"emergency-dispatch-be/internal/tracer"
	"emergency-dispatch-be/pkg/database"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Initialize Database (optional)
	var gormDB *gorm.DB
	if cfg.Database.Connection != "" {
		db, err := database.NewGormDBFromDSN(cfg.Database.Connection, !cfg.IsProduction())
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
		gormDB = db
	}

	// 3. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(ctx, gormDB, cfg)
	if err != nil {
		log.Panicf("Unable to bootstrap: %v", err)
	}
	defer container.Close()

	shutdownTracer := tracer.InitTracer(cfg.Tracing, container.Logger)

	// 4. Start Background Services
	srv := server.New(cfg, container)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		container.WebSocketHub.Run(gctx)
		return nil
	})
	if container.ConsumerService != nil {
		g.Go(func() error {
			return container.ConsumerService.Consume(gctx)
		})
	}
	if container.AuditService != nil {
		g.Go(func() error {
			return container.AuditService.Start(gctx)
		})
	}

	// 5. Run Server
	g.Go(srv.Run)
	g.Go(func() error {
		<-gctx.Done()
		return srv.Shutdown()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		container.Logger.Error("Main", "Service stopped with error", map[string]interface{}{"error": err.Error()})
	}

	// In-flight observer deliveries finish before the bus connections close.
	container.Coordinator.Wait()
	_ = shutdownTracer(context.Background())
}
