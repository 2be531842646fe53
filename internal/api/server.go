// Package api exposes the HTTP surface: thin enqueue-only entry points for
// the trading pipeline, a few read endpoints, and a websocket feed of system
// events. Handlers never run domain logic inline; work goes through the task
// queue so a slow detection pass cannot stall the request path.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"trendline-trading-bot/internal/detect"
	"trendline-trading-bot/internal/events"
	"trendline-trading-bot/internal/execution"
	"trendline-trading-bot/internal/queue"
	"trendline-trading-bot/internal/risk"
)

// Enqueuer is the producer side of the task queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, lane queue.Lane, kind string, payload interface{}) (string, error)
	Depth(ctx context.Context, lane queue.Lane) (int64, error)
	DeadTasks(ctx context.Context) ([]*queue.Task, error)
}

// TrendlineReader serves the read endpoints for detection state.
type TrendlineReader interface {
	LiveTrendlines(ctx context.Context, userID, instrument string) ([]*detect.Trendline, error)
}

// AlertReader lists recent alerts.
type AlertReader interface {
	RecentAlerts(ctx context.Context, userID string, limit int) ([]*detect.Alert, error)
}

// PositionReader lists open positions.
type PositionReader interface {
	OpenPositions(ctx context.Context, userID string) ([]*execution.Position, error)
}

// BreakerControl is the operator surface of the circuit breaker.
type BreakerControl interface {
	State(ctx context.Context, userID string) (risk.BreakerState, int, error)
	Reset(ctx context.Context, userID string) error
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string
	Port           int
	ProductionMode bool
	AllowedOrigins []string
}

// Server is the HTTP API server.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	hub        *Hub
	logger     zerolog.Logger

	queue      Enqueuer
	trendlines TrendlineReader
	alerts     AlertReader
	positions  PositionReader
	breaker    BreakerControl
}

// NewServer builds the router and wires the websocket hub to the event bus.
func NewServer(
	cfg ServerConfig,
	q Enqueuer,
	trendlines TrendlineReader,
	alerts AlertReader,
	positions PositionReader,
	breaker BreakerControl,
	bus *events.Bus,
	logger zerolog.Logger,
) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:     router,
		hub:        NewHub(logger),
		logger:     logger.With().Str("component", "api").Logger(),
		queue:      q,
		trendlines: trendlines,
		alerts:     alerts,
		positions:  positions,
		breaker:    breaker,
	}

	if bus != nil {
		s.hub.AttachBus(bus)
	}

	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api")
	{
		api.POST("/candles", s.handleUpsertCandle)
		api.POST("/detect", s.handleDetect)
		api.POST("/recalculate", s.handleRecalculate)
		api.POST("/alerts/evaluate", s.handleEvaluateAlerts)
		api.GET("/alerts", s.handleListAlerts)
		api.GET("/trendlines", s.handleListTrendlines)

		api.POST("/signals", s.handleCreateSignal)
		api.POST("/prices", s.handlePriceUpdate)
		api.POST("/reconcile", s.handleReconcile)
		api.POST("/flatten", s.handleFlatten)
		api.GET("/positions", s.handleListPositions)

		api.GET("/breaker", s.handleBreakerState)
		api.POST("/breaker/reset", s.handleBreakerReset)

		api.GET("/queue/dead", s.handleDeadTasks)
	}
}

// Start runs the hub and the HTTP listener. Blocks until the listener stops.
func (s *Server) Start() error {
	go s.hub.Run()
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
