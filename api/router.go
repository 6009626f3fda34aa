package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"NutBoltDetServer/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const RequestIDHeader = "X-Request-ID"

var availableEndpoints = []string{
	"GET /health - Check API status",
	"POST /detect - Run detection on image",
	"GET /config - Get configuration",
	"POST /config - Update configuration",
	"GET /history - Recent detection requests",
	"GET /ws/detect - Stream images over a websocket",
}

type Config struct {
	Port int `yaml:"port"`
	// MaxBodyMB bounds /detect bodies and websocket frames.
	MaxBodyMB int `yaml:"maxBodyMB"`
	// WSIdleTimeout closes websocket sessions that stay silent this long.
	WSIdleTimeout time.Duration `yaml:"wsIdleTimeout"`
}

func DefaultConfig() Config {
	return Config{Port: 5000, MaxBodyMB: 20, WSIdleTimeout: 60 * time.Second}
}

type handler struct {
	svc *service.Service
	cfg Config
	log *zap.Logger
}

// NewRouter builds the gin engine for svc.
func NewRouter(svc *service.Service, cfg Config, log *zap.Logger) *gin.Engine {
	if cfg.MaxBodyMB <= 0 {
		cfg.MaxBodyMB = DefaultConfig().MaxBodyMB
	}
	h := &handler{svc: svc, cfg: cfg, log: log}

	r := gin.New()
	r.Use(Recovery(log), RequestLogger(log), CORS())

	r.GET("/health", h.health)
	r.POST("/detect", h.detect)
	r.GET("/config", h.getConfig)
	r.POST("/config", h.updateConfig)
	r.GET("/history", h.history)
	r.GET("/ws/detect", h.wsDetect)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":               "Endpoint not found",
			"available_endpoints": availableEndpoints,
		})
	})
	return r
}

// Start serves router on cfg.Port in the background and returns the server
// so the caller can shut it down.
func Start(router http.Handler, cfg Config, log *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server ListenAndServe error", zap.Error(err))
		}
	}()
	return srv
}

func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
