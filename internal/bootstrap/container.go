package bootstrap

import (
	"context"

	"emergency-dispatch-be/internal/config"
	"emergency-dispatch-be/internal/controller"
	"emergency-dispatch-be/internal/entity"
	"emergency-dispatch-be/internal/handler"
	"emergency-dispatch-be/internal/pkg/logger"
	"emergency-dispatch-be/internal/pkg/serverutils"
	"emergency-dispatch-be/internal/repository/contract"
	"emergency-dispatch-be/internal/repository/implementation"
	"emergency-dispatch-be/internal/repository/memory"
	"emergency-dispatch-be/internal/repository/specification"
	"emergency-dispatch-be/internal/repository/unitofwork"
	"emergency-dispatch-be/internal/service"
	"emergency-dispatch-be/internal/websocket"
	"emergency-dispatch-be/pkg/emergency/directory"
	"emergency-dispatch-be/pkg/emergency/escalation"
	"emergency-dispatch-be/pkg/emergency/matcher"
	"emergency-dispatch-be/pkg/lease"
	"emergency-dispatch-be/pkg/metrics"

	pktNats "emergency-dispatch-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const module = "Bootstrap"

type Container struct {
	Config *config.Config
	Logger *logger.ZapLogger

	// Controllers
	SessionController   controller.ISessionController
	DispatchController  controller.IDispatchController
	ResponderController controller.IResponderController

	// Engine
	Coordinator *escalation.Coordinator
	Directory   *directory.Directory
	Metrics     *metrics.Collector

	JwtMiddleware fiber.Handler

	// Background services, nil when their infrastructure is missing.
	ConsumerService service.IConsumerService
	AuditService    *service.AuditService

	// WebSockets
	FeedHandler  *handler.FeedHandler
	WebSocketHub *websocket.Hub

	closers []func()
}

// NewContainer wires the engine. db may be nil, in which case sessions and
// assignments live in memory only and responders start empty.
func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Core facades
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	collector := metrics.NewCollector()
	c := &Container{Config: cfg, Logger: sysLogger, Metrics: collector}

	rdb := connectRedis(ctx, cfg.App.RedisURL, sysLogger)
	if rdb != nil {
		c.closers = append(c.closers, func() { _ = rdb.Close() })
	}

	// 2. Responder directory
	var dirOpts []directory.Option
	if db != nil {
		dirOpts = append(dirOpts, directory.WithStore(implementation.NewResponderRepository(db)))
	}
	if cfg.Dispatch.LeaseEnabled && rdb != nil {
		dirOpts = append(dirOpts, directory.WithLease(lease.NewRedisLease(rdb, cfg.Dispatch.LeaseTTL)))
	}
	dir := directory.New(sysLogger, dirOpts...)
	if db != nil {
		responders, err := loadResponders(ctx, db)
		if err != nil {
			return nil, err
		}
		dir.Load(responders)
		sysLogger.Info(module, "Responders loaded", map[string]interface{}{"count": len(responders)})
	}
	c.Directory = dir

	dispatcher := matcher.New(dir, matcher.Config{
		MaxAssignments: cfg.Dispatch.MaxAssignments,
		Timeout:        cfg.Dispatch.Timeout,
	}, sysLogger, matcher.WithRecorder(collector))

	var assignments contract.IncidentAssignmentRepository
	if db != nil {
		assignments = implementation.NewIncidentAssignmentRepository(db)
	} else {
		assignments = memory.NewAssignmentRepository()
	}

	// 3. Observers
	wsHub := websocket.NewHub(rdb, logger.NewIsolatedLogger(cfg.App.FeedLogFilePath))
	c.WebSocketHub = wsHub
	observers := []escalation.Observer{collector, wsHub}

	if db != nil {
		pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
		c.closers = append(c.closers, func() { _ = pubSub.Close() })
		observers = append(observers, service.NewPublisherService(cfg.Session.SnapshotTopic, pubSub))
		c.ConsumerService = service.NewConsumerService(pubSub, cfg.Session.SnapshotTopic, unitofwork.NewRepositoryFactory(db), sysLogger)
	}

	if cfg.App.NatsURL != "" {
		observers = append(observers, c.connectEventBus(cfg, sysLogger)...)
	}

	// 4. Coordinator
	coordinator := escalation.New(
		memory.NewSessionRepository(cfg.Session.HistoryTTL),
		dir,
		dispatcher,
		sysLogger,
		escalation.WithAssignmentLog(assignments),
		escalation.WithObservers(observers...),
		escalation.WithEmergencyNumber(cfg.Dispatch.EmergencyNumber),
	)
	if db != nil {
		if err := adoptSessions(ctx, db, coordinator, sysLogger); err != nil {
			return nil, err
		}
	}
	c.Coordinator = coordinator

	// 5. Services and controllers
	sessionService := service.NewSessionService(coordinator)
	responderService := service.NewResponderService(dir, assignments)

	c.SessionController = controller.NewSessionController(sessionService)
	c.DispatchController = controller.NewDispatchController(sessionService)
	c.ResponderController = controller.NewResponderController(responderService)
	c.JwtMiddleware = serverutils.JwtMiddleware(cfg.App.JwtSecret)
	c.FeedHandler = handler.NewFeedHandler(sessionService, wsHub, cfg.App.JwtSecret, sysLogger)

	return c, nil
}

// Close releases infrastructure connections in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	_ = c.Logger.Sync()
}

// connectEventBus wires lifecycle events to NATS and starts the audit trail on
// the same stream. Either half is skipped when its connection fails.
func (c *Container) connectEventBus(cfg *config.Config, log logger.ILogger) []escalation.Observer {
	var observers []escalation.Observer
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, log)
	if err != nil {
		log.Warn(module, "NATS publisher unavailable", map[string]interface{}{"error": err.Error()})
	} else {
		c.closers = append(c.closers, natsPub.Close)
		observers = append(observers, service.NewEventService(natsPub))
	}

	natsSub, err := pktNats.NewSubscriber(cfg.App.NatsURL, log)
	if err != nil {
		log.Warn(module, "NATS subscriber unavailable", map[string]interface{}{"error": err.Error()})
	} else {
		c.closers = append(c.closers, natsSub.Close)
		c.AuditService = service.NewAuditService(natsSub, logger.NewIsolatedLogger(cfg.App.AuditLogFilePath), log)
	}
	return observers
}

func connectRedis(ctx context.Context, url string, log logger.ILogger) *redis.Client {
	if url == "" {
		return nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Warn(module, "Failed to parse Redis URL, using direct Addr", map[string]interface{}{"error": err.Error()})
		opt = &redis.Options{Addr: url}
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn(module, "Redis unavailable, running single instance", map[string]interface{}{"error": err.Error()})
		_ = rdb.Close()
		return nil
	}
	return rdb
}

func loadResponders(ctx context.Context, db *gorm.DB) ([]entity.Responder, error) {
	rows, err := implementation.NewResponderRepository(db).FindAll(ctx, specification.OrderBy{Field: "id"})
	if err != nil {
		return nil, err
	}
	responders := make([]entity.Responder, 0, len(rows))
	for _, r := range rows {
		responders = append(responders, *r)
	}
	return responders, nil
}

// adoptSessions brings open sessions from the previous run back under management.
func adoptSessions(ctx context.Context, db *gorm.DB, coordinator *escalation.Coordinator, log logger.ILogger) error {
	rows, err := implementation.NewEmergencySessionRepository(db).FindAll(ctx, specification.NotResolved{})
	if err != nil {
		return err
	}
	for _, s := range rows {
		if err := coordinator.Adopt(ctx, *s); err != nil {
			log.Warn(module, "Skipping unrecoverable session", map[string]interface{}{
				"session_id": s.Id,
				"error":      err.Error(),
			})
		}
	}
	log.Info(module, "Open sessions adopted", map[string]interface{}{"count": len(rows)})
	return nil
}
