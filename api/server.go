package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/moyoez/submitsession/api/controllers"
	"github.com/moyoez/submitsession/api/middlewares"
	"github.com/moyoez/submitsession/api/models"
	"github.com/moyoez/submitsession/tool"
)

// Server represents the local HTTP API driving submission sessions
type Server struct {
	port   int
	engine *gin.Engine
	server *http.Server
	mu     sync.RWMutex
}

// NewServer creates a new API server instance listening on port
func NewServer(port int) *Server {
	return &Server{port: port}
}

// Handler builds the routes without listening. Used by Start and tests.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		s.engine = setupRoutes()
	}
	return s.engine
}

func setupRoutes() *gin.Engine {
	if tool.DefaultLogger.GetLevel() == log.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())
	engine.Use(middlewares.AllowAllCORS())

	v1 := engine.Group("/api/submission/v1", middlewares.OnlyAllowLocal)
	{
		v1.GET("/status", controllers.Status)
		v1.GET("/config", controllers.ConfigGet)
		if hub := models.GetNotifyHub(); hub != nil {
			v1.GET("/notify-ws", controllers.HandleNotifyWS(hub))
		}

		v1.POST("/sessions", controllers.CreateSession)
		v1.GET("/sessions/:id", controllers.GetSession)
		v1.DELETE("/sessions/:id", controllers.DeleteSession)
		v1.GET("/sessions/:id/qrcode", controllers.SessionQRCode)

		v1.POST("/sessions/:id/files", controllers.AddFiles)
		v1.DELETE("/sessions/:id/files/:itemId", controllers.RemoveFile)
		v1.POST("/sessions/:id/links", controllers.AddLink)
		v1.DELETE("/sessions/:id/links/:itemId", controllers.RemoveLink)
		v1.PUT("/sessions/:id/text", controllers.SetText)
		v1.PUT("/sessions/:id/article-type", controllers.SetArticleType)

		v1.POST("/sessions/:id/start", controllers.StartSession)
		v1.POST("/sessions/:id/cancel", controllers.CancelSession)
		v1.POST("/sessions/:id/reset", controllers.ResetSession)
	}
	return engine
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	handler := s.Handler()

	s.mu.Lock()
	s.server = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler: handler,
	}
	srv := s.server
	s.mu.Unlock()

	tool.DefaultLogger.Infof("Starting API server on http://%s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve API: %v", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
