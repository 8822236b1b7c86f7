package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/real-kijmoshi/Skiing-v2/internal/config"
	"github.com/real-kijmoshi/Skiing-v2/internal/db"
	"github.com/real-kijmoshi/Skiing-v2/internal/metrics"
	"github.com/real-kijmoshi/Skiing-v2/internal/position"
	"github.com/real-kijmoshi/Skiing-v2/internal/relay"
	"github.com/real-kijmoshi/Skiing-v2/internal/session"
	"github.com/real-kijmoshi/Skiing-v2/internal/stats"
	"github.com/real-kijmoshi/Skiing-v2/internal/stream"
	"github.com/real-kijmoshi/Skiing-v2/internal/user"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	apiName    = "Skiing App API Server"
	apiVersion = "1.0.0"
)

type Server struct {
	App     *fiber.App
	Cfg     config.Config
	DB      db.Querier
	Redis   *redis.Client
	Log     *zap.Logger
	Metrics *metrics.Metrics
	Stats   *stats.Store
	Relay   *relay.Relay
	Bridge  *stream.Bridge

	registry *prometheus.Registry
	reader   stats.Reader
}

// NewServer wires the HTTP and WebSocket surface. q may be nil, in which case
// stats live in memory and the database-backed endpoints answer 503.
// redisClient may be nil, which disables the cross-instance bridge.
func NewServer(cfg config.Config, q db.Querier, redisClient *redis.Client, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	app := fiber.New(fiber.Config{
		AppName:               apiName,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(log),
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	s := &Server{
		App:      app,
		Cfg:      cfg,
		DB:       q,
		Redis:    redisClient,
		Log:      log,
		Metrics:  m,
		registry: reg,
	}

	var repo interface {
		stats.Repository
		stats.Reader
	}
	if q != nil {
		repo = stats.NewPostgresRepository(q)
	} else {
		log.Warn("no database configured, keeping stats in memory")
		repo = stats.NewMemoryRepository()
	}
	s.reader = repo
	s.Stats = stats.NewStore(repo, stats.WithLogger(log.Named("stats")), stats.WithMetrics(m))

	s.Relay = relay.New(relay.NewRegistry(), s.Stats, relay.WithLogger(log.Named("relay")), relay.WithMetrics(m))
	if redisClient != nil {
		s.Bridge = stream.NewBridge(redisClient, cfg.InstanceID, log.Named("bridge"), m)
	}

	registerRoutes(s)
	return s
}

// Start runs the optional schema bootstrap and subscribes the bridge. The
// relay publishes through the bridge only once it is running. The bridge
// stops when ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	if s.Cfg.InitSchema && s.DB != nil {
		if err := db.EnsureSchema(ctx, s.DB); err != nil {
			return err
		}
		s.Log.Info("database schema ready")
	}

	if s.Bridge != nil {
		if err := s.Bridge.Start(ctx, s.deliverRemote); err != nil {
			s.Log.Warn("cross-instance bridge unavailable", zap.Error(err))
			return nil
		}
		s.Relay.SetPublisher(s.Bridge)
		s.Log.Info("cross-instance bridge started", zap.String("instance_id", s.Bridge.InstanceID()))
	}
	return nil
}

// Stop waits for background work started by Start to finish. Cancel the
// context given to Start first.
func (s *Server) Stop() {
	if s.Bridge != nil {
		s.Bridge.Wait()
	}
}

func (s *Server) deliverRemote(sessionID string, payload []byte) {
	s.Relay.Fanout(sessionID, payload).Deliver()
}

func registerRoutes(s *Server) {
	ws := stream.NewHandler(s.Relay, s.Log.Named("ws"), s.Cfg.WSSendBuffer, s.Cfg.WSWriteTimeout)

	s.App.Get("/", func(c *fiber.Ctx) error {
		if stream.IsUpgrade(c) {
			return c.Next()
		}
		return c.JSON(fiber.Map{
			"message": apiName,
			"version": apiVersion,
			"endpoints": fiber.Map{
				"users":     "/api/users",
				"sessions":  "/api/sessions",
				"positions": "/api/positions",
				"stats":     "/api/stats",
				"websocket": "ws://" + c.Hostname(),
			},
		})
	}, ws.Upgrade())
	stream.RegisterRoutes(s.App, ws)

	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "timestamp": time.Now().UTC().Format(time.RFC3339Nano)})
	})
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	api := s.App.Group("/api")
	stats.RegisterRoutes(api.Group("/stats"), s.reader)
	if s.DB != nil {
		user.RegisterRoutes(api.Group("/users"), user.NewService(s.DB))
		session.RegisterRoutes(api.Group("/sessions"), session.NewService(s.DB))
		position.RegisterRoutes(api.Group("/positions"), position.NewService(s.DB, s.Relay))
	} else {
		for _, prefix := range []string{"/users", "/sessions", "/positions"} {
			api.Group(prefix, databaseUnavailable)
		}
	}

	s.App.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Endpoint not found")
	})
}

func databaseUnavailable(c *fiber.Ctx) error {
	return fiber.NewError(fiber.StatusServiceUnavailable, "Database unavailable")
}

// errorHandler renders every error as {"error": message}.
func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		msg := err.Error()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			msg = fe.Message
		}
		if code >= fiber.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Method()), zap.String("path", c.Path()), zap.Int("status", code), zap.Error(err))
		}
		return c.Status(code).JSON(fiber.Map{"error": msg})
	}
}
