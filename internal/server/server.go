package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ALex-Everett-Liu/screenshot-note/internal/config"
	"github.com/ALex-Everett-Liu/screenshot-note/internal/handler"
	"github.com/ALex-Everett-Liu/screenshot-note/internal/middleware"
)

type Server struct {
	httpServer *http.Server
	services   *Services
	cfg        *config.Config
	log        *zap.Logger
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Server, error) {
	services, err := NewServices(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.S3.SyncOnStart && services.Mirror.Enabled() {
		go func() {
			synced, err := services.Mirror.SyncMissingAssets(context.Background())
			if err != nil {
				log.Error("Failed to sync assets from S3", zap.Error(err))
				return
			}
			log.Info("Synced assets from S3", zap.Int("count", synced))
		}()
	}

	h := handler.NewHandler(services.Screenshots, services.Ingestion, services.Mirror, &cfg.App, log)

	server := &Server{
		httpServer: &http.Server{
			Addr:           cfg.Server.Host + ":" + cfg.Server.Port,
			Handler:        NewRouter(h, cfg),
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxHeaderBytes: 1 << 20, // 1 MB
		},
		services: services,
		cfg:      cfg,
		log:      log,
	}

	log.Info("Server created successfully",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.Int("screenshots", services.Store.Len()),
		zap.Bool("s3_mirror", services.Mirror.Enabled()))

	return server, nil
}

// NewRouter registers the API routes and the static asset directories.
func NewRouter(h *handler.Handler, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(&cfg.Server))

	// Multipart bodies beyond this spill to temp files; per-file limits are enforced during ingestion.
	router.MaxMultipartMemory = cfg.App.MaxUploadSize

	api := router.Group("/api")
	{
		api.GET("/health", h.HealthCheck)
		api.GET("/info", h.Info)

		api.GET("/screenshots", h.ListScreenshots)
		api.POST("/screenshots", h.SaveScreenshots)
		api.DELETE("/screenshots", h.ClearScreenshots)
		api.POST("/screenshots/import", h.ImportScreenshots)
		api.GET("/screenshots/export", h.ExportScreenshots)
		api.PATCH("/screenshots/:id", h.UpdateDescription)
		api.DELETE("/screenshots/:id", h.RemoveScreenshot)

		api.POST("/upload", h.UploadScreenshots)
		api.POST("/ingest", h.IngestScreenshots)
		api.POST("/backup", h.Backup)

		api.GET("/data", h.ListData)
		api.GET("/data/:filename", h.LoadData)
		api.POST("/data/:filename", h.SaveData)
	}

	router.Static("/assets", cfg.App.AssetsDir)
	router.Static("/data", cfg.App.DataDir)

	return router
}

func (s *Server) Run() error {
	s.log.Info("Server is running",
		zap.String("host", s.cfg.Server.Host),
		zap.String("port", s.cfg.Server.Port),
		zap.String("address", s.httpServer.Addr))

	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests and writes any pending edits.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server")
	err := s.httpServer.Shutdown(ctx)
	if flushErr := s.services.Close(); flushErr != nil {
		s.log.Error("Failed to flush screenshots", zap.Error(flushErr))
		if err == nil {
			err = fmt.Errorf("failed to flush screenshots: %w", flushErr)
		}
	}
	return err
}
