package adminapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tradehost/internal/logging"
	"tradehost/internal/pluginsupervisor"
	"tradehost/internal/storage"
	"tradehost/internal/userfeed"
)

// Config controls the HTTP listener and token signing.
type Config struct {
	Host           string
	Port           int
	ProductionMode bool
	TokenSecret    string
	TokenTTL       time.Duration
	AllowedOrigins []string
}

// Server is the admin HTTP surface.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     Config
	tokens     *TokenManager

	supervisor *pluginsupervisor.Supervisor
	userFeeds  *userfeed.Registry
	store      *storage.Store
	logger     *logging.Logger
}

// NewServer wires the three documented collaborators into a gin router.
func NewServer(cfg Config, supervisor *pluginsupervisor.Supervisor, userFeeds *userfeed.Registry, store *storage.Store, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 12 * time.Hour
	}

	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(requestIDMiddleware())
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:5173"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:     router,
		config:     cfg,
		tokens:     NewTokenManager(cfg.TokenSecret, cfg.TokenTTL),
		supervisor: supervisor,
		userFeeds:  userFeeds,
		store:      store,
		logger:     logger.WithComponent("adminapi"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/")
	api.Use(authMiddleware(s.tokens))
	{
		api.POST("/instances", s.handleStartInstance)
		api.DELETE("/instances/:id", s.handleStopInstance)
		api.GET("/instances", s.handleListInstances)

		api.POST("/credentials", s.handleConnectCredentials)
		api.DELETE("/credentials/:hash", s.handleDisconnectCredentials)
		api.GET("/credentials", s.handleListCredentials)

		api.POST("/artifacts", s.handleUpsertArtifact)
		api.GET("/artifacts", s.handleListArtifacts)
		api.GET("/artifacts/:strategyID/:symbol", s.handleGetArtifact)
		api.DELETE("/artifacts/:strategyID/:symbol", s.handleDeleteArtifact)
	}
}

// Start runs the HTTP server until it is shut down or fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info("admin api listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin api listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// requestIDHeader is the header a caller can set to propagate its own
// correlation id; when absent one is generated per request.
const requestIDHeader = "X-Request-ID"

// requestIDMiddleware stamps every request with a correlation id, echoes
// it back on the response, and attaches a logger carrying it to the
// request context so any handler can retrieve it via logging.FromContext.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		ctx, _ := logging.WithTraceContext(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	dbStatus := "disabled"
	if s.store != nil {
		dbStatus = "healthy"
		if err := s.store.HealthCheck(ctx); err != nil {
			dbStatus = "unhealthy"
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	c.JSON(code, gin.H{"status": status, "storage": dbStatus})
}
