package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq" // PostgreSQL driver

	"leadrouter/internal/assignment"
	"leadrouter/internal/config"
	"leadrouter/internal/constants"
	"leadrouter/internal/dedup"
	"leadrouter/internal/escalation"
	"leadrouter/internal/eventbus"
	"leadrouter/internal/jobqueue"
	"leadrouter/internal/logger"
	"leadrouter/internal/migration"
	"leadrouter/internal/platform"
	"leadrouter/internal/routing"
	"leadrouter/internal/webhook"
	"leadrouter/internal/workflow"
	"leadrouter/pkg/bootstrap"
	"leadrouter/pkg/cel"
	"leadrouter/pkg/health"
	"leadrouter/pkg/metrics"
	"leadrouter/pkg/middleware"
	"leadrouter/pkg/ratelimit"
	"leadrouter/pkg/tracing"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// forwardedEvents are mirrored to the domain events topic when eventbus.forward_events is set.
var forwardedEvents = []string{
	eventbus.EventMessageRouted,
	eventbus.EventConversationEscalated,
	eventbus.EventBrokerReleased,
}

type App struct {
	*bootstrap.Base

	dbConnector *bootstrap.DatabaseConnector
	redis       *redis.Client
	db          *sql.DB

	bus         *eventbus.Bus
	memoryStore *dedup.MemoryStore
	limiter     *ratelimit.Limiter
	detachBus   func()

	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.InitProducer(); err != nil {
		return fmt.Errorf("failed to initialize job queue: %w", err)
	}

	a.bus = eventbus.New(eventbus.OptionsFromConfig(a.Config.EventBus), a.Logger)
	if a.Config.EventBus.ForwardEvents {
		if a.Producer == nil {
			a.Logger.WarnwCtx(ctx, "Event forwarding requested without a broker, skipping")
		} else {
			a.detachBus = jobqueue.NewEventForwarder(a.Producer, a.Logger).Attach(a.bus, forwardedEvents...)
		}
	}

	if err := a.initRouter(ctx); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.Config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.Config.Server.WriteTimeoutSeconds,
	}
	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	a.redis = rdb

	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db
	return nil
}

func (a *App) dedupStore() dedup.Store {
	if a.Config.Dedup.Store == constants.StoreTypeRedis && a.redis != nil {
		return dedup.NewCircuitBreakerStore(dedup.NewRedisStore(a.redis), a.Config.CircuitBreaker)
	}
	a.memoryStore = dedup.NewMemoryStore()
	return a.memoryStore
}

func (a *App) policySource() migration.Source {
	fallback := migration.PolicyFromConfig(a.Config.Migration)
	if a.Config.Migration.Source == constants.PolicySourceRedis && a.redis != nil {
		return migration.NewRedisSource(a.redis, a.Config.Migration.RedisKey, a.Config.Migration.CacheTTL, fallback)
	}
	return migration.NewStaticSource(fallback)
}

func (a *App) brokerStore(ctx context.Context) assignment.Store {
	if a.db != nil {
		return assignment.NewPostgresRepository(a.db)
	}
	a.Logger.WarnwCtx(ctx, "PostgreSQL not configured, broker assignments are in-memory only")
	return assignment.NewMemoryStore()
}

func (a *App) initRouter(ctx context.Context) error {
	eligibility, err := cel.NewPredicate(a.Config.Routing.EligibilityExpression)
	if err != nil {
		return fmt.Errorf("invalid eligibility expression: %w", err)
	}

	suppressor := dedup.NewSuppressor(a.dedupStore(), a.Config.Dedup, a.Logger)
	brokers := a.brokerStore(ctx)

	platformClient := platform.NewClient(a.Config.Platform, a.Config.CircuitBreaker, a.Logger)
	escalator := escalation.NewHandler(platformClient, suppressor, brokers, a.bus, a.Config.Escalation, a.Logger)

	var opts []routing.Option
	if a.Producer != nil {
		opts = append(opts, routing.WithQueue(a.Producer))
	}
	if a.Config.Workflow.URL != "" {
		opts = append(opts, routing.WithWorkflow(workflow.NewClient(a.Config.Workflow, a.Config.CircuitBreaker, a.Logger)))
	}
	router := routing.NewRouter(a.policySource(), brokers, escalator, a.bus, a.Logger, opts...)

	pipeline := webhook.NewPipeline(eligibility, suppressor, router, a.bus, a.Logger)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	if a.Config.Tracing.Enabled {
		engine.Use(tracing.GinMiddleware(constants.ServiceName))
	}

	engine.Use(middleware.RecoveryMiddleware(a.Logger))
	engine.Use(middleware.LoggerMiddleware(a.Logger))
	engine.Use(middleware.CorrelationIDMiddleware())

	if a.Config.RateLimit.Enabled {
		a.limiter = ratelimit.NewLimiter(ratelimit.Config{
			RPS:             a.Config.RateLimit.RPS,
			Burst:           a.Config.RateLimit.Burst,
			CleanupInterval: time.Duration(a.Config.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.Config.RateLimit.MaxAge) * time.Second,
		})
		engine.Use(a.limiter.Middleware())
		a.Logger.InfowCtx(ctx, "Rate limiting enabled", "rps", a.Config.RateLimit.RPS, "burst", a.Config.RateLimit.Burst)
	}

	webhook.NewHandler(pipeline, a.bus, a.Logger).RegisterRoutes(engine, a.Config.Server.WebhookPath)

	metrics.RegisterAll()

	healthRegistry := health.NewCheckerRegistry(constants.ServiceName)
	if a.redis != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redis))
	}
	if a.db != nil {
		healthRegistry.Register(health.NewPostgreSQLChecker(a.db))
	}
	healthRegistry.Register(health.NewFuncChecker("eventbus", func(checkCtx context.Context) error {
		open := 0
		for eventType, br := range a.bus.Metrics().CircuitBreakers {
			if br.State == "open" {
				open++
				a.Logger.DebugwCtx(checkCtx, "Event bus breaker open", "event_type", eventType)
			}
		}
		if open > 0 {
			return fmt.Errorf("%d event type breaker(s) open", open)
		}
		return nil
	}))

	engine.GET("/health", healthRegistry.Handler())
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = engine
	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(gctx, "Server listening", "port", a.Config.Server.Port, "webhook_path", a.Config.Server.WebhookPath)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if a.memoryStore != nil {
		g.Go(func() error {
			a.memoryStore.Run(gctx, a.Config.Dedup.DuplicateWindow)
			return nil
		})
	}

	if a.limiter != nil {
		g.Go(func() error {
			a.limiter.RunCleanup(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown(context.WithoutCancel(gctx))
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.Base.Shutdown(ctx, func(ctx context.Context) []error {
		shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
		defer cancel()

		var errs []error

		if a.server != nil {
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
			}
		}

		if a.detachBus != nil {
			a.detachBus()
		}
		if a.bus != nil {
			a.bus.Close()
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(a.redis, a.db)...)
		return errs
	})
}
