package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hewenyu/pulse-registry/pkg/model"
	"github.com/hewenyu/pulse-registry/pkg/storage"
)

// MemoryRegistry 是基于内存的服务注册表实现
type MemoryRegistry struct {
	services map[string]map[string]*model.ServiceInstance
	mutex    sync.RWMutex
}

// NewMemoryRegistry 创建新的内存注册表
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		services: make(map[string]map[string]*model.ServiceInstance),
	}
}

// Register 注册服务实例，按(service_name, instance_id)幂等覆盖
func (m *MemoryRegistry) Register(ctx context.Context, instance *model.ServiceInstance) error {
	if err := validateInstance(instance); err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := time.Now()

	// 内部保存副本，调用方后续修改入参不影响注册表
	record := instance.Clone()
	if record.HealthEndpoint == "" {
		record.HealthEndpoint = model.DefaultHealthEndpoint
	}
	record.Status = model.HealthStatusUnknown
	record.LoadPercentage = 0.0
	record.LastHealthCheck = time.Time{}
	record.LastHeartbeat = now
	record.RegisteredAt = now

	bucket, exists := m.services[record.ServiceName]
	if !exists {
		bucket = make(map[string]*model.ServiceInstance)
		m.services[record.ServiceName] = bucket
	}

	// 重复注册保留首次注册时间
	if prev, ok := bucket[record.InstanceID]; ok {
		record.RegisteredAt = prev.RegisteredAt
	}

	bucket[record.InstanceID] = record
	return nil
}

// Heartbeat 更新服务实例心跳时间
func (m *MemoryRegistry) Heartbeat(ctx context.Context, serviceName, instanceID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	instance, ok := m.lookup(serviceName, instanceID)
	if !ok {
		return storage.NewNotFoundError(fmt.Sprintf("服务实例不存在: %s:%s", serviceName, instanceID))
	}

	instance.LastHeartbeat = time.Now()
	return nil
}

// Unregister 注销服务实例，实例不存在时静默成功
func (m *MemoryRegistry) Unregister(ctx context.Context, serviceName, instanceID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.lookup(serviceName, instanceID); !ok {
		return nil
	}

	delete(m.services[serviceName], instanceID)
	m.cleanupEmptyService(serviceName)
	return nil
}

// ListAll 获取所有服务实例（按服务名分组，返回深拷贝）
func (m *MemoryRegistry) ListAll(ctx context.Context) (map[string][]*model.ServiceInstance, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make(map[string][]*model.ServiceInstance, len(m.services))
	for name, bucket := range m.services {
		instances := make([]*model.ServiceInstance, 0, len(bucket))
		for _, instance := range bucket {
			instances = append(instances, instance.Clone())
		}
		sortByRegistration(instances)
		result[name] = instances
	}

	return result, nil
}

// ListForService 获取指定服务的所有实例，服务不存在时返回空列表
func (m *MemoryRegistry) ListForService(ctx context.Context, serviceName string) ([]*model.ServiceInstance, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	instances := make([]*model.ServiceInstance, 0)
	for _, instance := range m.services[serviceName] {
		instances = append(instances, instance.Clone())
	}
	sortByRegistration(instances)

	return instances, nil
}

// ListHealthy 获取指定服务的健康实例
func (m *MemoryRegistry) ListHealthy(ctx context.Context, serviceName string) ([]*model.ServiceInstance, error) {
	instances, err := m.ListForService(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	healthy := make([]*model.ServiceInstance, 0, len(instances))
	for _, instance := range instances {
		if instance.Status == model.HealthStatusHealthy {
			healthy = append(healthy, instance)
		}
	}

	return healthy, nil
}

// ApplyProbeResult 应用健康检查结果，实例已被注销时静默忽略
func (m *MemoryRegistry) ApplyProbeResult(ctx context.Context, serviceName, instanceID string, status model.HealthStatus, load float64, checkedAt time.Time) error {
	if load < 0 || load > 1 {
		return storage.NewInvalidArgumentError(fmt.Sprintf("负载必须在0-1之间: %f", load))
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	instance, ok := m.lookup(serviceName, instanceID)
	if !ok {
		return nil
	}

	instance.Status = status
	instance.LoadPercentage = load
	if checkedAt.After(instance.LastHealthCheck) {
		instance.LastHealthCheck = checkedAt
	}
	return nil
}

// ReapExpired 移除心跳超过TTL的实例，返回被移除实例的副本
func (m *MemoryRegistry) ReapExpired(ctx context.Context, ttl time.Duration) ([]*model.ServiceInstance, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := time.Now()
	removed := make([]*model.ServiceInstance, 0)

	for name, bucket := range m.services {
		for id, instance := range bucket {
			if now.Sub(instance.LastHeartbeat) > ttl {
				removed = append(removed, instance.Clone())
				delete(bucket, id)
			}
		}
		m.cleanupEmptyService(name)
	}

	return removed, nil
}

// Topics 获取事件主题到订阅服务名的聚合映射
func (m *MemoryRegistry) Topics(ctx context.Context) (map[string][]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	subscribers := make(map[string]map[string]struct{})
	for name, bucket := range m.services {
		for _, instance := range bucket {
			for _, topic := range instance.Topics {
				if subscribers[topic] == nil {
					subscribers[topic] = make(map[string]struct{})
				}
				subscribers[topic][name] = struct{}{}
			}
		}
	}

	result := make(map[string][]string, len(subscribers))
	for topic, names := range subscribers {
		services := make([]string, 0, len(names))
		for name := range names {
			services = append(services, name)
		}
		sort.Strings(services)
		result[topic] = services
	}

	return result, nil
}

// lookup 查找实例，调用方必须持有锁
func (m *MemoryRegistry) lookup(serviceName, instanceID string) (*model.ServiceInstance, bool) {
	bucket, ok := m.services[serviceName]
	if !ok {
		return nil, false
	}
	instance, ok := bucket[instanceID]
	return instance, ok
}

// cleanupEmptyService 移除没有任何实例的服务条目，调用方必须持有锁
func (m *MemoryRegistry) cleanupEmptyService(serviceName string) {
	if bucket, ok := m.services[serviceName]; ok && len(bucket) == 0 {
		delete(m.services, serviceName)
	}
}

// sortByRegistration 按注册时间排序，时间相同时按实例ID排序
func sortByRegistration(instances []*model.ServiceInstance) {
	sort.Slice(instances, func(i, j int) bool {
		if instances[i].RegisteredAt.Equal(instances[j].RegisteredAt) {
			return instances[i].InstanceID < instances[j].InstanceID
		}
		return instances[i].RegisteredAt.Before(instances[j].RegisteredAt)
	})
}

// validateInstance 校验注册请求
func validateInstance(instance *model.ServiceInstance) error {
	if instance == nil {
		return storage.NewInvalidArgumentError("服务实例不能为空")
	}
	if instance.ServiceName == "" {
		return storage.NewInvalidArgumentError("服务名称不能为空")
	}
	if instance.InstanceID == "" {
		return storage.NewInvalidArgumentError("实例ID不能为空")
	}
	if instance.Host == "" {
		return storage.NewInvalidArgumentError("主机地址不能为空")
	}
	if instance.Port <= 0 || instance.Port > 65535 {
		return storage.NewInvalidArgumentError(fmt.Sprintf("端口必须在1-65535之间: %d", instance.Port))
	}
	if instance.HealthEndpoint != "" && !strings.HasPrefix(instance.HealthEndpoint, "/") {
		return storage.NewInvalidArgumentError("健康检查路径必须以/开头")
	}
	return nil
}
