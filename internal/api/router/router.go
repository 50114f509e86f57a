package router

import (
	"github.com/labstack/echo/v4"

	"github.com/hewenyu/pulse-registry/internal/api/handler"
)

// RegisterRoutes 配置服务发现相关路由
// 写操作要求Bearer鉴权，读操作开放；限流作用于整个/v1/discovery分组
func RegisterRoutes(e *echo.Echo, discovery *handler.DiscoveryHandler, health *handler.HealthHandler, stats *handler.StatsHandler, auth echo.MiddlewareFunc, rateLimit echo.MiddlewareFunc) {
	v1 := e.Group("/v1/discovery", rateLimit)

	// 写操作
	v1.POST("/register", discovery.Register, auth)
	v1.POST("/heartbeat", discovery.Heartbeat, auth)
	v1.DELETE("/unregister/:service_name/:instance_id", discovery.Unregister, auth)

	// 发现查询
	v1.GET("/services", discovery.ListServices)
	v1.GET("/services/topics", discovery.GetTopics)
	v1.GET("/services/:service_name", discovery.GetServiceInstances)
	v1.GET("/services/:service_name/healthy", discovery.GetHealthyInstances)
	v1.GET("/services/:service_name/instances", discovery.GetPrometheusTargets)

	// 监控统计
	v1.GET("/stats", stats.GetStats)

	// 注册中心自身健康检查
	e.GET("/health", health.HealthCheck)
	e.GET("/", health.Banner)
}
