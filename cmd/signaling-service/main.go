package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"friendclub-backend/internal/database"
	"friendclub-backend/internal/events"
	callHandler "friendclub-backend/internal/handler/http/call"
	chatHandler "friendclub-backend/internal/handler/http/chat"
	presenceHandler "friendclub-backend/internal/handler/http/presence"
	wsHandler "friendclub-backend/internal/handler/ws"
	"friendclub-backend/internal/middleware"
	"friendclub-backend/internal/repository/cassandra"
	"friendclub-backend/internal/repository/cockroach"
	redisRepo "friendclub-backend/internal/repository/redis"
	callService "friendclub-backend/internal/service/call"
	chatService "friendclub-backend/internal/service/chat"
	"friendclub-backend/internal/signaling"
	"friendclub-backend/pkg/config"
	pkgDatabase "friendclub-backend/pkg/database"
	"friendclub-backend/pkg/jwt"
	"friendclub-backend/pkg/logger"
	"friendclub-backend/pkg/metrics"
	"friendclub-backend/pkg/resilience"
	"friendclub-backend/pkg/response"
)

func main() {
	// 1. Configuration and logging
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
		Service:  cfg.Server.ServiceName,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 2. Metrics
	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)

	// 3. Redis with degraded mode support
	redisDB := database.NewRedisDB(&database.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		Timeout:  cfg.Redis.Timeout,
	}, appMetrics.GetRegistry())
	defer redisDB.Close()

	if err := redisDB.HealthCheck(ctx); err != nil {
		logger.Warn("Redis unavailable at startup, running degraded", zap.Error(err))
	}
	redisDB.StartHealthCheck(ctx, cfg.Redis.HealthCheckInterval)

	// 4. CockroachDB for call logs
	var callRepo *cockroach.CallRepository
	db, err := pkgDatabase.ConnectCockroachWithRetry(ctx, &pkgDatabase.CockroachConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	}, cfg.Database.ConnectRetries)
	if err != nil {
		logger.Warn("Running without call log persistence", zap.Error(err))
	} else {
		defer db.Close()
		callRepo = cockroach.NewCallRepository(db.Pool).
			WithBreaker(resilience.NewBreaker("call_logs", 5, 30*time.Second, appMetrics.GetRegistry()))

		// Live call state does not survive a restart
		swept, err := callRepo.SweepStale(ctx, time.Now().UTC())
		if err != nil {
			logger.Warn("Stale call sweep failed", zap.Error(err))
		} else if swept > 0 {
			logger.Info("Closed stale call records", zap.Int64("count", swept))
		}
	}

	// 5. Cassandra for chat messages
	var messageRepo *cassandra.MessageRepository
	cassandraDB, err := pkgDatabase.NewCassandraDB(&pkgDatabase.CassandraConfig{
		Hosts:    cfg.Cassandra.Hosts,
		Keyspace: cfg.Cassandra.Keyspace,
		Username: cfg.Cassandra.Username,
		Password: cfg.Cassandra.Password,
		Timeout:  cfg.Cassandra.Timeout,
	})
	if err != nil {
		logger.Warn("Running without chat message persistence", zap.Error(err))
	} else {
		defer cassandraDB.Close()
		messageRepo = cassandra.NewMessageRepository(cassandraDB.Session).
			WithBreaker(resilience.NewBreaker("chat_messages", 5, 30*time.Second, appMetrics.GetRegistry()))
		logger.Info("Connected to Cassandra", zap.String("keyspace", cfg.Cassandra.Keyspace))
	}

	// 6. Signaling loop, persistence worker and timers
	presenceRepo := redisRepo.NewPresenceRepository(redisDB, cfg.Signaling.PresenceTTL)
	hub := wsHandler.NewSignalingHub(wsHandler.HubConfig{
		MaxConnections: cfg.Signaling.MaxConnections,
		AllowedOrigins: cfg.Signaling.AllowedOrigins,
		RequireAuth:    cfg.Signaling.RequireAuth,
	}, appMetrics)
	queue := signaling.NewWorkerQueue(hub.Post, cfg.Signaling.PersistQueueSize, cfg.Signaling.PersistTimeout, appMetrics)

	opts := signaling.Options{
		RingTimeout: cfg.Signaling.RingTimeout,
		Presence:    presenceRepo,
		Publisher:   events.NewRedisPublisher(redisDB, cfg.Signaling.CallEventsChannel),
		Queue:       queue,
		Scheduler:   signaling.NewLoopScheduler(hub.Post),
		Metrics:     appMetrics,
	}
	if callRepo != nil {
		opts.Calls = callRepo
	}
	if messageRepo != nil {
		opts.Messages = messageRepo
	}
	svc := signaling.NewService(opts)

	queueCtx, stopQueue := context.WithCancel(context.Background())
	queueDone := make(chan struct{})
	go func() {
		defer close(queueDone)
		queue.Run(queueCtx)
	}()

	hubCtx, stopHub := context.WithCancel(ctx)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(hubCtx, svc)
	}()

	// 7. Router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware(cfg.Signaling.AllowedOrigins))
	router.Use(middleware.NewPrometheusMiddleware(appMetrics).Handler())

	router.GET("/health", func(c *gin.Context) {
		stats, err := hub.Snapshot(c.Request.Context())
		if err != nil {
			response.ServiceUnavailable(c, "Signaling loop unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":         "healthy",
			"service":        cfg.Server.ServiceName,
			"time":           time.Now().UTC(),
			"connections":    stats.Connections,
			"online_users":   stats.OnlineUsers,
			"active_rooms":   stats.ActiveRooms,
			"active_calls":   stats.ActiveCalls,
			"redis_degraded": redisDB.IsDegraded(),
		})
	})
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Audience, cfg.JWT.AccessTokenExpiry)
	revocationChecker := middleware.NewRedisRevocationChecker(redisDB)
	rateLimiter := middleware.NewRateLimiter(redisDB, 120, time.Minute)

	router.GET("/v1/signaling/ws", middleware.OptionalAuth(jwtManager, revocationChecker), hub.ServeWS)

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager, revocationChecker))
	v1.Use(rateLimiter.Middleware())
	{
		presenceHdlr := presenceHandler.NewHandler(hub, presenceRepo)
		v1.GET("/presence/online", presenceHdlr.GetOnline)
		v1.GET("/presence/:userId", presenceHdlr.GetPresence)

		if callRepo != nil {
			callHdlr := callHandler.NewHandler(callService.NewService(callRepo))
			v1.GET("/calls/history", callHdlr.GetHistory)
			v1.GET("/calls/stats", callHdlr.GetStats)
			v1.GET("/calls/:id", callHdlr.GetCall)
		}
		if messageRepo != nil {
			chatHdlr := chatHandler.NewHandler(chatService.NewService(messageRepo))
			v1.GET("/chat/history/:roomName", chatHdlr.GetRoomHistory)
		}
	}

	// 8. Serve until signalled
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Signaling service starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("environment", cfg.Server.Environment),
			zap.Duration("ring_timeout", cfg.Signaling.RingTimeout))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("ListenAndServe failed", zap.Error(err))
		}
	}()

	<-done
	logger.Info("Shutting down signaling service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by Shutdown; the hub closes them.
	stopHub()
	<-hubDone
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server shutdown failed", zap.Error(err))
	}

	stopQueue()
	select {
	case <-queueDone:
	case <-shutdownCtx.Done():
		logger.Warn("Persistence queue did not drain before shutdown timeout")
	}

	stop()
	logger.Info("Signaling service exited")
}
