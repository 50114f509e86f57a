package storage

import (
	"context"
	"time"

	"github.com/hewenyu/pulse-registry/pkg/model"
)

// Registry 定义服务注册表接口
type Registry interface {
	// Register 注册服务实例，按(service_name, instance_id)幂等覆盖
	Register(ctx context.Context, instance *model.ServiceInstance) error

	// Heartbeat 更新服务实例心跳时间
	Heartbeat(ctx context.Context, serviceName, instanceID string) error

	// Unregister 注销服务实例，实例不存在时静默成功
	Unregister(ctx context.Context, serviceName, instanceID string) error

	// ListAll 获取所有服务实例（按服务名分组，返回深拷贝）
	ListAll(ctx context.Context) (map[string][]*model.ServiceInstance, error)

	// ListForService 获取指定服务的所有实例
	ListForService(ctx context.Context, serviceName string) ([]*model.ServiceInstance, error)

	// ListHealthy 获取指定服务的健康实例
	ListHealthy(ctx context.Context, serviceName string) ([]*model.ServiceInstance, error)

	// ApplyProbeResult 应用健康检查结果，实例已被注销时静默忽略
	ApplyProbeResult(ctx context.Context, serviceName, instanceID string, status model.HealthStatus, load float64, checkedAt time.Time) error

	// ReapExpired 移除心跳超过TTL的实例，返回被移除实例的副本
	ReapExpired(ctx context.Context, ttl time.Duration) ([]*model.ServiceInstance, error)

	// Topics 获取事件主题到订阅服务名的聚合映射
	Topics(ctx context.Context) (map[string][]string, error)
}

// StorageError 定义存储操作可能返回的错误类型
type StorageError struct {
	Code    int
	Message string
}

// Error 实现error接口
func (e *StorageError) Error() string {
	return e.Message
}

// 定义错误代码
const (
	// ErrNotFound 资源不存在
	ErrNotFound = iota + 1
	// ErrInvalidArgument 参数无效
	ErrInvalidArgument
	// ErrInternal 内部错误
	ErrInternal
)

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(message string) *StorageError {
	return &StorageError{
		Code:    ErrNotFound,
		Message: message,
	}
}

// NewInvalidArgumentError 创建参数无效错误
func NewInvalidArgumentError(message string) *StorageError {
	return &StorageError{
		Code:    ErrInvalidArgument,
		Message: message,
	}
}

// NewInternalError 创建内部错误
func NewInternalError(message string) *StorageError {
	return &StorageError{
		Code:    ErrInternal,
		Message: message,
	}
}
