package model

import (
	"fmt"
	"time"
)

// DefaultHealthEndpoint 未指定时使用的健康检查路径
const DefaultHealthEndpoint = "/health"

// HealthStatus 表示服务实例健康状态
type HealthStatus string

const (
	// HealthStatusHealthy 健康状态
	HealthStatusHealthy HealthStatus = "healthy"
	// HealthStatusUnhealthy 不健康状态
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	// HealthStatusUnknown 未知状态（注册后首次探测前）
	HealthStatusUnknown HealthStatus = "unknown"
)

// ServiceInstance 表示一个已注册的服务实例
type ServiceInstance struct {
	ServiceName     string            `json:"service_name"`      // 服务名称
	InstanceID      string            `json:"instance_id"`       // 实例ID（服务内唯一）
	Host            string            `json:"host"`              // 实例主机地址
	Port            int               `json:"port"`              // 实例端口
	HealthEndpoint  string            `json:"health_endpoint"`   // 健康检查路径
	Status          HealthStatus      `json:"status"`            // 健康状态
	LoadPercentage  float64           `json:"load_percentage"`   // 最近上报的负载，范围[0,1]
	LastHealthCheck time.Time         `json:"last_health_check"` // 最近一次健康检查时间
	LastHeartbeat   time.Time         `json:"last_heartbeat"`    // 最近一次心跳时间
	Metadata        map[string]string `json:"metadata"`          // 服务元数据
	Topics          []string          `json:"topics"`            // 订阅的事件主题
	RegisteredAt    time.Time         `json:"registered_at"`     // 首次注册时间
}

// Key 返回实例的唯一标识
func (s *ServiceInstance) Key() string {
	return fmt.Sprintf("%s:%s", s.ServiceName, s.InstanceID)
}

// Address 返回实例的网络地址
func (s *ServiceInstance) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Clone 返回实例的深拷贝，调用方修改副本不会影响注册表内部状态
func (s *ServiceInstance) Clone() *ServiceInstance {
	clone := *s
	if s.Metadata != nil {
		clone.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			clone.Metadata[k] = v
		}
	}
	if s.Topics != nil {
		clone.Topics = make([]string, len(s.Topics))
		copy(clone.Topics, s.Topics)
	}
	return &clone
}
