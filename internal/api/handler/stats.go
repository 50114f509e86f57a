package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hewenyu/pulse-registry/internal/monitor"
)

// StatsProvider 提供健康监控统计数据
type StatsProvider interface {
	Stats() monitor.Stats
}

// StatsHandler 监控统计处理器
type StatsHandler struct {
	provider StatsProvider
}

// NewStatsHandler 创建监控统计处理器
func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{
		provider: provider,
	}
}

// GetStats 获取健康监控统计数据
func (h *StatsHandler) GetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.provider.Stats())
}
