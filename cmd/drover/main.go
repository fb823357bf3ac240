// Drover is the single-binary agent fleet server: it runs the durable task
// queue, the worker pool that drives coding-agent subprocesses, the HTTP API,
// the WebSocket gateway, and (when enabled) the embedded MCP server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/drover/drover/internal/agent/runner"
	"github.com/drover/drover/internal/common/config"
	"github.com/drover/drover/internal/common/httpmw"
	"github.com/drover/drover/internal/common/logger"
	"github.com/drover/drover/internal/common/tracing"
	"github.com/drover/drover/internal/db"
	"github.com/drover/drover/internal/events"
	gatewayws "github.com/drover/drover/internal/gateway/websocket"
	"github.com/drover/drover/internal/mcpserver"
	"github.com/drover/drover/internal/orchestrator"
	"github.com/drover/drover/internal/orchestrator/planner"
	taskhandlers "github.com/drover/drover/internal/task/handlers"
	"github.com/drover/drover/internal/task/service"
	"github.com/drover/drover/internal/task/store"
	ws "github.com/drover/drover/pkg/websocket"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting Drover...")

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Initialize event bus (in-memory by default, NATS if configured)
	if cfg.NATS.URL != "" {
		log.Info("Connecting to NATS...", zap.String("url", cfg.NATS.URL))
	} else {
		log.Info("Using in-memory event bus")
	}
	providedBus, busCleanup, err := events.Provide(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize event bus", zap.Error(err))
	}
	defer busCleanup()
	eventBus := providedBus.Bus

	// 5. Initialize database and task store
	pool, dbCleanup, err := db.Open(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer dbCleanup()

	st, err := store.New(pool.Writer(), pool.Reader())
	if err != nil {
		log.Fatal("Failed to initialize task store", zap.Error(err))
	}

	// 6. Agent runner shared by the worker pool and the plan manager
	agentRunner := runner.New(cfg.Agent.Command, log)

	// 7. Orchestrator and planner
	orch := orchestrator.New(st, agentRunner, eventBus, cfg.Orchestrator, log)
	planMgr := planner.New(st, agentRunner, eventBus, cfg.Orchestrator, log)

	// 8. Task service
	svc := service.NewService(st, eventBus, log)
	svc.SetWorkerReporter(orch)
	svc.SetPlanner(planMgr)

	// 9. WebSocket gateway
	gateway := gatewayws.NewGateway(log)
	go gateway.Hub.Run(ctx)
	gatewayws.RegisterTaskNotifications(ctx, eventBus, gateway.Hub, log)

	// Replay persisted run logs to clients when they subscribe to a task, in
	// the same notification shape the live broadcaster uses.
	gateway.Hub.SetLogReplayProvider(func(ctx context.Context, taskID int64) ([]*ws.Message, error) {
		entries, err := svc.TaskLogs(ctx, taskID)
		if err != nil {
			return nil, err
		}
		result := make([]*ws.Message, 0, len(entries))
		for _, entry := range entries {
			notification, err := ws.NewNotification(events.TaskEvent, map[string]interface{}{
				"task_id":    entry.TaskID,
				"type":       entry.EventType,
				"content":    entry.Content,
				"created_at": entry.CreatedAt.Format(time.RFC3339),
			})
			if err != nil {
				continue
			}
			result = append(result, notification)
		}
		return result, nil
	})

	// 10. Start the worker pool
	if err := orch.Start(ctx); err != nil {
		log.Fatal("Failed to start orchestrator", zap.Error(err))
	}
	log.Info("Orchestrator started", zap.Int("max_workers", cfg.Orchestrator.MaxWorkers))

	// ============================================
	// HTTP SERVER (WebSocket + HTTP endpoints)
	// ============================================
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(httpmw.OtelTracing("drover"))
	router.Use(httpmw.RequestLogger(log, "drover"))

	// WebSocket endpoint - primary realtime transport
	gateway.SetupRoutes(router)

	// Task queue handlers (HTTP + WebSocket actions)
	taskhandlers.RegisterTaskRoutes(router, gateway.Dispatcher, svc, log)

	// Health check (simple HTTP for load balancers/monitoring)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "drover",
		})
	})

	// Create HTTP server
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	// Start server
	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 11. Embedded MCP server proxying the HTTP API
	var mcpCleanup func() error
	if cfg.MCP.Enabled {
		mcpSrv, cleanup, err := mcpserver.Provide(ctx, mcpserver.Config{
			Port:      cfg.MCP.Port,
			DroverURL: fmt.Sprintf("http://localhost:%d", port),
		}, log)
		if err != nil {
			log.Fatal("Failed to start MCP server", zap.Error(err))
		}
		mcpCleanup = cleanup
		log.Info("MCP server listening",
			zap.String("sse", mcpSrv.SSEEndpoint()),
			zap.String("streamable_http", mcpSrv.StreamableHTTPEndpoint()))
	}

	// Print routes summary
	log.Info("API configured",
		zap.String("websocket", "/ws"),
		zap.String("health", "/health"),
		zap.String("http", "/api/v1"),
	)

	// ============================================
	// GRACEFUL SHUTDOWN
	// ============================================
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Drover...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := orch.Stop(); err != nil {
		log.Error("Orchestrator stop error", zap.Error(err))
	}

	if mcpCleanup != nil {
		if err := mcpCleanup(); err != nil {
			log.Error("MCP server stop error", zap.Error(err))
		}
	}

	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracing shutdown error", zap.Error(err))
	}

	log.Info("Drover stopped")
}

// corsMiddleware returns a CORS middleware for HTTP and WebSocket connections
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version, Sec-WebSocket-Protocol")
		c.Header("Access-Control-Allow-Credentials", "true")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
