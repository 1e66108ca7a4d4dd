package dispatchservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"ride-dispatch/internal/domain/saga"
	"ride-dispatch/internal/general/config"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/rabbitmq"
	"ride-dispatch/internal/general/redis"
	"ride-dispatch/internal/ports"
	"ride-dispatch/internal/software/dispatch/handler"
	"ride-dispatch/internal/software/dispatch/service"
	"ride-dispatch/internal/software/dispatch/workitem"
	"ride-dispatch/internal/software/process"

	"github.com/gin-gonic/gin"
)

// Run wires the dispatch service and blocks until ctx is cancelled.
func Run(ctx context.Context, configPath string, maxConcurrent int) error {
	// load a config from file
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	// set up a new logger and context with a static request ID for startup logs
	log := logger.New(cfg.Service.Name).WithLevel(logger.ParseLevel(cfg.Service.LogLevel))
	startCtx := logger.WithRequestID(ctx, "startup-001")

	// storage: postgres or memory
	st, err := openStorage(startCtx, cfg, log)
	if err != nil {
		log.Error(startCtx, "storage_init_failed", "Failed to initialize storage", err, map[string]any{"storage": cfg.Storage})
		return err
	}
	defer st.close()

	// connect to RabbitMQ; the topology is declared on every (re)connect
	rmq, err := rabbitmq.ConnectRabbitMQ(startCtx, cfg, log)
	if err != nil {
		log.Error(startCtx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()
	pub := rabbitmq.NewMQPublisher(rmq)

	checks := map[string]handler.HealthCheck{
		"rabbitmq": func(context.Context) error {
			if !rmq.Ready() {
				return errors.New("not connected")
			}
			return nil
		},
	}
	if st.check != nil {
		checks["postgres"] = st.check
	}

	// optional duplicate filter
	var dedup ports.MessageDeduplicator
	if cfg.Redis.Enabled {
		rdb, err := redis.NewClient(startCtx, cfg)
		if err != nil {
			log.Error(startCtx, "redis_connection_failed", "Failed to connect to Redis", err, nil)
			return err
		}
		defer rdb.Close()
		dedup = redis.NewDeduplicator(rdb, cfg.Redis.DedupTTL)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// process engine with its work items
	processID := cfg.ProcessKey()
	engine := process.NewEngine(log, st.uow, st.instances, st.history, map[string]ports.WorkItemHandler{
		saga.WorkItemSendMessage: workitem.NewSendMessageHandler(
			log, st.uow, st.rides, pub, cfg.Sender.Destinations, workitem.DefaultPayloadBuilders(), cfg.Service.Sender,
		),
		saga.WorkItemUpdateRide: workitem.NewUpdateRideHandler(log, st.rides),
	}, saga.DispatchProcess(processID))

	// routers and consumers
	routers := service.NewRouters(log, st.uow, st.rides, engine, service.RouterOptions{
		ProcessID:       processID,
		Expiry:          cfg.Dispatch.AssignDriverExpire,
		SymmetricGuards: cfg.Dispatch.SymmetricGuards,
	})
	consumer := service.NewConsumer(log, dedup, routers...)

	// consumer and HTTP failures both end the service
	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	goReport(&wg, errCh, func() error {
		if err := consumer.Run(ctx, rmq, cfg); err != nil {
			log.Error(startCtx, "consumer_start_failed", "Consumers did not start", err, nil)
			return fmt.Errorf("consumers: %w", err)
		}
		return nil
	})
	goReport(&wg, errCh, func() error {
		engine.RunTimers(ctx, cfg.Dispatch.TimerPollInterval, cfg.Dispatch.TimerBatchSize)
		return nil
	})

	// HTTP query API
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), withConcurrencyLimit(maxConcurrent))
	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, cfg.JWT.AccessTTL)
	query := service.NewQueryService(st.uow, st.rides, st.instances, st.history)
	handler.NewQueryHTTPHandler(query, log, jwtManager, checks).RegisterRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Service.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	log.Info(startCtx, "service_started",
		fmt.Sprintf("Dispatch service started on port %d", cfg.Service.HTTPPort),
		map[string]any{
			"port":            cfg.Service.HTTPPort,
			"process_id":      processID,
			"storage":         cfg.Storage,
			"redis_dedup":     cfg.Redis.Enabled,
			"symmetric_guard": cfg.Dispatch.SymmetricGuards,
		},
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Error(startCtx, "service_failed", "Dispatch service terminated with error", err, map[string]any{"port": cfg.Service.HTTPPort})
			runErr = err
		}
	}

	// graceful HTTP shutdown, then wait for consumers and timers to drain
	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info(startCtx, "shutdown_started", "Shutting down dispatch service", nil)
	if err := srv.Shutdown(shCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error(startCtx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
	}
	stop()
	wg.Wait()
	log.Info(startCtx, "shutdown_complete", "Dispatch service stopped", nil)
	return runErr
}

// goReport runs fn on wg and forwards a non-nil result to errCh.
func goReport(wg *sync.WaitGroup, errCh chan<- error, fn func() error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := fn(); err != nil {
			errCh <- err
		}
	}()
}

// withConcurrencyLimit caps in-flight HTTP requests; waiting requests give up with their context.
func withConcurrencyLimit(n int) gin.HandlerFunc {
	if n <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	sem := make(chan struct{}, n)
	return func(c *gin.Context) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			c.Next()
		case <-c.Request.Context().Done():
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": http.StatusText(http.StatusServiceUnavailable)})
		}
	}
}
