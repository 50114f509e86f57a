package handler

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
)

// serviceIdentity 注册中心自身的服务标识
const serviceIdentity = "pulse-registry"

// HealthResponse 注册中心自身的健康检查响应
type HealthResponse struct {
	Status         string                 `json:"status"`
	Service        string                 `json:"service"`
	LoadPercentage float64                `json:"load_percentage"`
	Timestamp      time.Time              `json:"timestamp"`
	Details        map[string]interface{} `json:"details,omitempty"`
}

// HealthHandler 注册中心自身的健康检查处理器
type HealthHandler struct {
	loadFunc func() float64
}

// NewHealthHandler 创建健康检查处理器
// loadFunc返回注册中心进程自身的负载，为nil时始终上报0
func NewHealthHandler(loadFunc func() float64) *HealthHandler {
	if loadFunc == nil {
		loadFunc = func() float64 { return 0.0 }
	}
	return &HealthHandler{
		loadFunc: loadFunc,
	}
}

// HealthCheck 健康检查处理函数
func (h *HealthHandler) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:         "healthy",
		Service:        serviceIdentity,
		LoadPercentage: h.loadFunc(),
		Timestamp:      time.Now(),
		Details: map[string]interface{}{
			"uptime":     time.Since(startTime).String(),
			"resources":  getResourceUsage(),
			"goroutines": runtime.NumGoroutine(),
		},
	})
}

// Banner 根路径的存活提示
func (h *HealthHandler) Banner(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"service": serviceIdentity,
		"message": "Pulse Registry 运行正常",
		"status":  "running",
	})
}

// 应用启动时间
var startTime = time.Now()

// getResourceUsage 获取资源使用情况
func getResourceUsage() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return map[string]interface{}{
		"memory_alloc": formatBytes(memStats.Alloc),
		"memory_sys":   formatBytes(memStats.Sys),
		"memory_heap":  formatBytes(memStats.HeapAlloc),
		"num_gc":       memStats.NumGC,
	}
}

// formatBytes 将字节数格式化为可读形式
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
