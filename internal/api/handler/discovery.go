package handler

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/hewenyu/pulse-registry/internal/config"
	"github.com/hewenyu/pulse-registry/pkg/model"
	"github.com/hewenyu/pulse-registry/pkg/storage"
)

// RegisterRequest 服务注册请求
type RegisterRequest struct {
	ServiceName    string            `json:"service_name" validate:"required"`
	InstanceID     string            `json:"instance_id" validate:"required"`
	Host           string            `json:"host" validate:"required"`
	Port           int               `json:"port" validate:"required,min=1,max=65535"`
	HealthEndpoint string            `json:"health_endpoint"`
	Metadata       map[string]string `json:"metadata"`
	Topics         []string          `json:"topics"`
}

// HeartbeatRequest 心跳请求
type HeartbeatRequest struct {
	ServiceName string `json:"service_name" validate:"required"`
	InstanceID  string `json:"instance_id" validate:"required"`
}

// APIResponse 写操作的通用响应
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ServiceListResponse 所有服务的列表响应
type ServiceListResponse struct {
	Services map[string][]*model.ServiceInstance `json:"services"`
}

// ServiceInstancesResponse 单个服务的实例列表响应
type ServiceInstancesResponse struct {
	ServiceName string                   `json:"service_name"`
	Instances   []*model.ServiceInstance `json:"instances"`
}

// HealthyInstancesResponse 单个服务的健康实例列表响应
type HealthyInstancesResponse struct {
	ServiceName      string                   `json:"service_name"`
	HealthyInstances []*model.ServiceInstance `json:"healthy_instances"`
}

// TopicSubscription 单个主题的订阅服务列表
type TopicSubscription struct {
	Topic    string   `json:"topic"`
	Services []string `json:"services"`
}

// TopicsResponse 主题订阅聚合响应
type TopicsResponse struct {
	Topics []TopicSubscription `json:"topics"`
}

// PrometheusTarget Prometheus HTTP服务发现格式的抓取目标
type PrometheusTarget struct {
	Targets []string          `json:"targets"`
	Labels  map[string]string `json:"labels"`
}

// DiscoveryHandler 处理服务注册与发现API
type DiscoveryHandler struct {
	registry storage.Registry
	logger   config.Logger
}

// NewDiscoveryHandler 创建服务发现处理器
func NewDiscoveryHandler(registry storage.Registry, logger config.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		registry: registry,
		logger:   logger,
	}
}

// Register 注册服务实例，重复注册按覆盖处理
func (h *DiscoveryHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIResponse{
			Success: false,
			Message: "请求参数无效: " + err.Error(),
		})
	}

	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIResponse{
			Success: false,
			Message: "参数验证失败: " + err.Error(),
		})
	}

	instance := &model.ServiceInstance{
		ServiceName:    req.ServiceName,
		InstanceID:     req.InstanceID,
		Host:           req.Host,
		Port:           req.Port,
		HealthEndpoint: req.HealthEndpoint,
		Metadata:       req.Metadata,
		Topics:         req.Topics,
	}

	if err := h.registry.Register(c.Request().Context(), instance); err != nil {
		return h.errorResponse(c, "服务注册失败", err)
	}

	h.logger.Info("服务实例已注册",
		zap.String("service_name", req.ServiceName),
		zap.String("instance_id", req.InstanceID),
		zap.String("address", fmt.Sprintf("%s:%d", req.Host, req.Port)))

	return c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: fmt.Sprintf("服务 %s:%s 注册成功", req.ServiceName, req.InstanceID),
	})
}

// Heartbeat 更新服务实例心跳
func (h *DiscoveryHandler) Heartbeat(c echo.Context) error {
	var req HeartbeatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIResponse{
			Success: false,
			Message: "请求参数无效: " + err.Error(),
		})
	}

	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, APIResponse{
			Success: false,
			Message: "参数验证失败: " + err.Error(),
		})
	}

	if err := h.registry.Heartbeat(c.Request().Context(), req.ServiceName, req.InstanceID); err != nil {
		return h.errorResponse(c, "心跳更新失败", err)
	}

	return c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: "心跳更新成功",
	})
}

// Unregister 注销服务实例，实例不存在时也返回成功
func (h *DiscoveryHandler) Unregister(c echo.Context) error {
	serviceName := c.Param("service_name")
	instanceID := c.Param("instance_id")

	if err := h.registry.Unregister(c.Request().Context(), serviceName, instanceID); err != nil {
		return h.errorResponse(c, "服务注销失败", err)
	}

	h.logger.Info("服务实例已注销",
		zap.String("service_name", serviceName),
		zap.String("instance_id", instanceID))

	return c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Message: fmt.Sprintf("服务 %s:%s 注销成功", serviceName, instanceID),
	})
}

// ListServices 获取所有已注册的服务及其实例
func (h *DiscoveryHandler) ListServices(c echo.Context) error {
	services, err := h.registry.ListAll(c.Request().Context())
	if err != nil {
		return h.errorResponse(c, "获取服务列表失败", err)
	}

	return c.JSON(http.StatusOK, ServiceListResponse{Services: services})
}

// GetServiceInstances 获取指定服务的所有实例，服务不存在时返回空列表
func (h *DiscoveryHandler) GetServiceInstances(c echo.Context) error {
	serviceName := c.Param("service_name")

	instances, err := h.registry.ListForService(c.Request().Context(), serviceName)
	if err != nil {
		return h.errorResponse(c, "获取服务实例失败", err)
	}

	return c.JSON(http.StatusOK, ServiceInstancesResponse{
		ServiceName: serviceName,
		Instances:   instances,
	})
}

// GetHealthyInstances 获取指定服务的健康实例
func (h *DiscoveryHandler) GetHealthyInstances(c echo.Context) error {
	serviceName := c.Param("service_name")

	instances, err := h.registry.ListHealthy(c.Request().Context(), serviceName)
	if err != nil {
		return h.errorResponse(c, "获取健康实例失败", err)
	}

	return c.JSON(http.StatusOK, HealthyInstancesResponse{
		ServiceName:      serviceName,
		HealthyInstances: instances,
	})
}

// GetPrometheusTargets 以Prometheus HTTP服务发现格式返回健康实例
func (h *DiscoveryHandler) GetPrometheusTargets(c echo.Context) error {
	serviceName := c.Param("service_name")

	instances, err := h.registry.ListHealthy(c.Request().Context(), serviceName)
	if err != nil {
		return h.errorResponse(c, "获取抓取目标失败", err)
	}

	targets := make([]PrometheusTarget, 0, len(instances))
	for _, instance := range instances {
		labels := map[string]string{
			"instance":        instance.InstanceID,
			"service_name":    instance.ServiceName,
			"status":          string(instance.Status),
			"load_percentage": strconv.FormatFloat(instance.LoadPercentage, 'f', -1, 64),
		}
		for k, v := range instance.Metadata {
			labels[k] = v
		}
		targets = append(targets, PrometheusTarget{
			Targets: []string{instance.Address()},
			Labels:  labels,
		})
	}

	return c.JSON(http.StatusOK, targets)
}

// GetTopics 获取事件主题到订阅服务的聚合
func (h *DiscoveryHandler) GetTopics(c echo.Context) error {
	topics, err := h.registry.Topics(c.Request().Context())
	if err != nil {
		return h.errorResponse(c, "获取主题订阅失败", err)
	}

	names := make([]string, 0, len(topics))
	for topic := range topics {
		names = append(names, topic)
	}
	sort.Strings(names)

	subscriptions := make([]TopicSubscription, 0, len(names))
	for _, topic := range names {
		subscriptions = append(subscriptions, TopicSubscription{
			Topic:    topic,
			Services: topics[topic],
		})
	}

	return c.JSON(http.StatusOK, TopicsResponse{Topics: subscriptions})
}

// errorResponse 将存储层错误映射为HTTP响应
func (h *DiscoveryHandler) errorResponse(c echo.Context, prefix string, err error) error {
	if se, ok := err.(*storage.StorageError); ok {
		switch se.Code {
		case storage.ErrNotFound:
			return c.JSON(http.StatusNotFound, APIResponse{
				Success: false,
				Message: se.Error(),
			})
		case storage.ErrInvalidArgument:
			return c.JSON(http.StatusBadRequest, APIResponse{
				Success: false,
				Message: se.Error(),
			})
		}
	}

	h.logger.Error(prefix, zap.Error(err))
	return c.JSON(http.StatusInternalServerError, APIResponse{
		Success: false,
		Message: prefix + ": " + err.Error(),
	})
}
