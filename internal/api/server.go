package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/hewenyu/pulse-registry/internal/api/handler"
	apimiddleware "github.com/hewenyu/pulse-registry/internal/api/middleware"
	"github.com/hewenyu/pulse-registry/internal/api/router"
	"github.com/hewenyu/pulse-registry/internal/config"
	"github.com/hewenyu/pulse-registry/pkg/storage"
)

// CustomValidator 实现echo.Validator接口
type CustomValidator struct {
	validator *validator.Validate
}

// Validate 校验请求结构体
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// Server 表示注册与发现API服务
type Server struct {
	e      *echo.Echo
	host   string
	port   int
	logger config.Logger
}

// NewServer 创建注册与发现API服务
func NewServer(cfg *config.Config, logger config.Logger, registry storage.Registry, stats handler.StatsProvider) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	discoveryHandler := handler.NewDiscoveryHandler(registry, logger)
	healthHandler := handler.NewHealthHandler(nil)
	statsHandler := handler.NewStatsHandler(stats)

	auth := apimiddleware.BearerAuth(cfg.Auth.Secret)
	rateLimit := apimiddleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	router.RegisterRoutes(e, discoveryHandler, healthHandler, statsHandler, auth, rateLimit)

	return &Server{
		e:      e,
		host:   cfg.Server.Host,
		port:   cfg.Server.Port,
		logger: logger,
	}
}

// Echo 返回底层echo实例，供测试使用
func (s *Server) Echo() *echo.Echo {
	return s.e
}

// Start 以非阻塞方式启动服务
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	s.logger.Info("注册API服务启动", zap.String("addr", addr))

	go func() {
		if err := s.e.Start(addr); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("注册API服务启动失败", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown 优雅关闭服务
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}
