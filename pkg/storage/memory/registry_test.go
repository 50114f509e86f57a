package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hewenyu/pulse-registry/pkg/model"
	"github.com/hewenyu/pulse-registry/pkg/storage"
)

func newTestInstance(serviceName, instanceID string) *model.ServiceInstance {
	return &model.ServiceInstance{
		ServiceName: serviceName,
		InstanceID:  instanceID,
		Host:        "192.168.1.100",
		Port:        8080,
		Metadata:    map[string]string{"version": "1.0"},
	}
}

func TestMemoryRegistry_Register(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	// 注册服务实例
	err := r.Register(ctx, newTestInstance("test-service", "instance-1"))
	require.NoError(t, err)

	// 验证注册是否成功
	instances, err := r.ListForService(ctx, "test-service")
	require.NoError(t, err)
	require.Len(t, instances, 1)

	saved := instances[0]
	assert.Equal(t, "test-service", saved.ServiceName)
	assert.Equal(t, "instance-1", saved.InstanceID)
	assert.Equal(t, "192.168.1.100", saved.Host)
	assert.Equal(t, 8080, saved.Port)
	assert.Equal(t, model.DefaultHealthEndpoint, saved.HealthEndpoint)
	assert.Equal(t, model.HealthStatusUnknown, saved.Status)
	assert.Equal(t, 0.0, saved.LoadPercentage)
	assert.False(t, saved.RegisteredAt.IsZero())
	assert.False(t, saved.LastHeartbeat.IsZero())
	assert.True(t, saved.LastHealthCheck.IsZero())

	// 测试无效参数
	invalidCases := []*model.ServiceInstance{
		{InstanceID: "i", Host: "h", Port: 80},
		{ServiceName: "s", Host: "h", Port: 80},
		{ServiceName: "s", InstanceID: "i", Port: 80},
		{ServiceName: "s", InstanceID: "i", Host: "h", Port: 0},
		{ServiceName: "s", InstanceID: "i", Host: "h", Port: 65536},
		{ServiceName: "s", InstanceID: "i", Host: "h", Port: 80, HealthEndpoint: "health"},
	}
	for _, instance := range invalidCases {
		err := r.Register(ctx, instance)
		require.Error(t, err)
		storageErr, ok := err.(*storage.StorageError)
		require.True(t, ok)
		assert.Equal(t, storage.ErrInvalidArgument, storageErr.Code)
	}
}

func TestMemoryRegistry_RegisterUpsert(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	// 首次注册
	err := r.Register(ctx, newTestInstance("test-service", "instance-1"))
	require.NoError(t, err)

	instances, err := r.ListForService(ctx, "test-service")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	firstRegisteredAt := instances[0].RegisteredAt

	time.Sleep(10 * time.Millisecond)

	// 重复注册覆盖原记录
	updated := newTestInstance("test-service", "instance-1")
	updated.Host = "192.168.1.200"
	updated.Port = 9090
	err = r.Register(ctx, updated)
	require.NoError(t, err)

	// 仍然只有一条记录，字段来自最近一次注册
	instances, err = r.ListForService(ctx, "test-service")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, "192.168.1.200", instances[0].Host)
	assert.Equal(t, 9090, instances[0].Port)
	assert.Equal(t, model.HealthStatusUnknown, instances[0].Status)

	// 首次注册时间保持不变
	assert.True(t, instances[0].RegisteredAt.Equal(firstRegisteredAt))
	// 心跳时间刷新
	assert.True(t, instances[0].LastHeartbeat.After(firstRegisteredAt))
}

func TestMemoryRegistry_Heartbeat(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	err := r.Register(ctx, newTestInstance("test-service", "instance-1"))
	require.NoError(t, err)

	instances, err := r.ListForService(ctx, "test-service")
	require.NoError(t, err)
	initialHeartbeat := instances[0].LastHeartbeat

	time.Sleep(10 * time.Millisecond)

	// 更新心跳
	err = r.Heartbeat(ctx, "test-service", "instance-1")
	require.NoError(t, err)

	instances, err = r.ListForService(ctx, "test-service")
	require.NoError(t, err)
	assert.True(t, instances[0].LastHeartbeat.After(initialHeartbeat))

	// 未注册的实例心跳返回NotFound，且不产生记录
	err = r.Heartbeat(ctx, "test-service", "unknown-instance")
	require.Error(t, err)
	storageErr, ok := err.(*storage.StorageError)
	require.True(t, ok)
	assert.Equal(t, storage.ErrNotFound, storageErr.Code)

	err = r.Heartbeat(ctx, "unknown-service", "instance-1")
	require.Error(t, err)

	instances, err = r.ListForService(ctx, "test-service")
	require.NoError(t, err)
	assert.Len(t, instances, 1)
}

func TestMemoryRegistry_UnregisterIdempotent(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	err := r.Register(ctx, newTestInstance("test-service", "instance-1"))
	require.NoError(t, err)

	// 注销存在的实例
	err = r.Unregister(ctx, "test-service", "instance-1")
	require.NoError(t, err)

	// 再次注销同一实例仍然成功
	err = r.Unregister(ctx, "test-service", "instance-1")
	require.NoError(t, err)

	// 注销从未注册过的实例也成功
	err = r.Unregister(ctx, "never-registered", "instance-x")
	require.NoError(t, err)

	// 最后一个实例注销后，服务条目被移除
	all, err := r.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMemoryRegistry_ListAll(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	// 注册多个服务实例
	require.NoError(t, r.Register(ctx, newTestInstance("service-a", "a-1")))
	require.NoError(t, r.Register(ctx, newTestInstance("service-b", "b-1")))
	require.NoError(t, r.Register(ctx, newTestInstance("service-a", "a-2")))

	all, err := r.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	require.Len(t, all["service-a"], 2)
	require.Len(t, all["service-b"], 1)

	// 实例按注册顺序返回
	assert.Equal(t, "a-1", all["service-a"][0].InstanceID)
	assert.Equal(t, "a-2", all["service-a"][1].InstanceID)

	// 返回的是副本，修改副本不影响注册表内部状态
	all["service-a"][0].Host = "modified"
	all["service-a"][0].Metadata["version"] = "modified"

	instances, err := r.ListForService(ctx, "service-a")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.100", instances[0].Host)
	assert.Equal(t, "1.0", instances[0].Metadata["version"])
}

func TestMemoryRegistry_ListForServiceUnknown(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	// 未知服务返回空列表而不是错误
	instances, err := r.ListForService(ctx, "unknown-service")
	require.NoError(t, err)
	assert.NotNil(t, instances)
	assert.Empty(t, instances)
}

func TestMemoryRegistry_ListHealthy(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, newTestInstance("test-service", "healthy-1")))
	require.NoError(t, r.Register(ctx, newTestInstance("test-service", "unhealthy-1")))
	require.NoError(t, r.Register(ctx, newTestInstance("test-service", "unknown-1")))

	now := time.Now()
	require.NoError(t, r.ApplyProbeResult(ctx, "test-service", "healthy-1", model.HealthStatusHealthy, 0.3, now))
	require.NoError(t, r.ApplyProbeResult(ctx, "test-service", "unhealthy-1", model.HealthStatusUnhealthy, 0.0, now))

	// 只返回健康实例，unknown和unhealthy都被过滤
	healthy, err := r.ListHealthy(ctx, "test-service")
	require.NoError(t, err)
	require.Len(t, healthy, 1)
	assert.Equal(t, "healthy-1", healthy[0].InstanceID)
	assert.Equal(t, 0.3, healthy[0].LoadPercentage)
}

func TestMemoryRegistry_ApplyProbeResult(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, newTestInstance("test-service", "instance-1")))

	// 应用探测结果
	checkedAt := time.Now()
	err := r.ApplyProbeResult(ctx, "test-service", "instance-1", model.HealthStatusHealthy, 0.5, checkedAt)
	require.NoError(t, err)

	instances, err := r.ListForService(ctx, "test-service")
	require.NoError(t, err)
	assert.Equal(t, model.HealthStatusHealthy, instances[0].Status)
	assert.Equal(t, 0.5, instances[0].LoadPercentage)
	assert.True(t, instances[0].LastHealthCheck.Equal(checkedAt))

	// 实例已被注销时静默忽略
	require.NoError(t, r.Unregister(ctx, "test-service", "instance-1"))
	err = r.ApplyProbeResult(ctx, "test-service", "instance-1", model.HealthStatusHealthy, 0.5, time.Now())
	require.NoError(t, err)

	all, err := r.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	// 负载越界返回参数错误
	err = r.ApplyProbeResult(ctx, "test-service", "instance-1", model.HealthStatusHealthy, 1.5, time.Now())
	require.Error(t, err)
	storageErr, ok := err.(*storage.StorageError)
	require.True(t, ok)
	assert.Equal(t, storage.ErrInvalidArgument, storageErr.Code)
}

func TestMemoryRegistry_ReapExpired(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	ttl := 60 * time.Second

	require.NoError(t, r.Register(ctx, newTestInstance("test-service", "expired-1")))
	require.NoError(t, r.Register(ctx, newTestInstance("test-service", "alive-1")))
	require.NoError(t, r.Register(ctx, newTestInstance("other-service", "expired-2")))

	// 直接修改内存中的心跳时间
	now := time.Now()
	r.mutex.Lock()
	r.services["test-service"]["expired-1"].LastHeartbeat = now.Add(-ttl - time.Second)
	r.services["test-service"]["alive-1"].LastHeartbeat = now.Add(-ttl + time.Second)
	r.services["other-service"]["expired-2"].LastHeartbeat = now.Add(-ttl - time.Second)
	r.mutex.Unlock()

	removed, err := r.ReapExpired(ctx, ttl)
	require.NoError(t, err)
	require.Len(t, removed, 2)

	removedKeys := make(map[string]bool)
	for _, instance := range removed {
		removedKeys[instance.Key()] = true
	}
	assert.True(t, removedKeys["test-service:expired-1"])
	assert.True(t, removedKeys["other-service:expired-2"])

	// 未过期实例仍然存在
	instances, err := r.ListForService(ctx, "test-service")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, "alive-1", instances[0].InstanceID)

	// 实例清空后服务条目被移除
	all, err := r.ListAll(ctx)
	require.NoError(t, err)
	_, exists := all["other-service"]
	assert.False(t, exists)
}

func TestMemoryRegistry_Topics(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	billing := newTestInstance("billing-service", "b-1")
	billing.Topics = []string{"order.created", "payment.failed"}
	require.NoError(t, r.Register(ctx, billing))

	// 同一服务的第二个实例订阅相同主题，聚合结果去重
	billing2 := newTestInstance("billing-service", "b-2")
	billing2.Topics = []string{"order.created"}
	require.NoError(t, r.Register(ctx, billing2))

	notification := newTestInstance("notification-service", "n-1")
	notification.Topics = []string{"order.created", "user.registered"}
	require.NoError(t, r.Register(ctx, notification))

	// 没有订阅主题的服务不出现在聚合结果中
	require.NoError(t, r.Register(ctx, newTestInstance("plain-service", "p-1")))

	topics, err := r.Topics(ctx)
	require.NoError(t, err)
	assert.Len(t, topics, 3)
	assert.Equal(t, []string{"billing-service", "notification-service"}, topics["order.created"])
	assert.Equal(t, []string{"billing-service"}, topics["payment.failed"])
	assert.Equal(t, []string{"notification-service"}, topics["user.registered"])
}

func TestMemoryRegistry_ConcurrentRegister(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	const n = 50

	// 并发注册同一服务的不同实例
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			instance := newTestInstance("concurrent-service", fmt.Sprintf("instance-%d", i))
			assert.NoError(t, r.Register(ctx, instance))
		}(i)
	}
	wg.Wait()

	// 所有实例都注册成功
	instances, err := r.ListForService(ctx, "concurrent-service")
	require.NoError(t, err)
	assert.Len(t, instances, n)
}
