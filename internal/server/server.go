package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"celebdetect/internal/config"
	"celebdetect/internal/handler"
	"celebdetect/web"
)

type Server struct {
	httpServer *http.Server
	cfg        *config.Config
	log        *zap.Logger
}

// NewRouter registers every route on a fresh gin engine.
func NewRouter(cfg *config.Config, h *handler.Handler, log *zap.Logger) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestID(), accessLog(log), limitBody(cfg.App.MaxUploadSize))
	router.MaxMultipartMemory = cfg.App.MaxFormSize

	tmpl, err := web.Templates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	router.GET("/", h.Index)
	router.POST("/", h.Index)
	router.GET("/health", h.HealthCheck)

	if cfg.App.ArchiveEnabled {
		api := router.Group("/api")
		{
			api.GET("/detections", h.ListDetections)
			api.GET("/detections/:id", h.GetDetection)
		}
	}

	return router, nil
}

func New(cfg *config.Config, h *handler.Handler, log *zap.Logger) (*Server, error) {
	router, err := NewRouter(cfg, h, log)
	if err != nil {
		return nil, err
	}

	server := &Server{
		httpServer: &http.Server{
			Addr:           cfg.Server.Host + ":" + cfg.Server.Port,
			Handler:        router,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			MaxHeaderBytes: 1 << 20, // 1 MB
		},
		cfg: cfg,
		log: log,
	}

	log.Info("Server created successfully",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.Bool("archive", cfg.App.ArchiveEnabled))

	return server, nil
}

func (s *Server) Run() error {
	s.log.Info("Server is running",
		zap.String("address", s.httpServer.Addr))

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server")
	return s.httpServer.Shutdown(ctx)
}
