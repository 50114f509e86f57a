package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hewenyu/pulse-registry/internal/config"
	"github.com/hewenyu/pulse-registry/pkg/model"
	"github.com/hewenyu/pulse-registry/pkg/storage"
)

// Stats 健康监控的累计统计
type Stats struct {
	TotalChecks      int64     `json:"total_checks"`
	SuccessfulChecks int64     `json:"successful_checks"`
	FailedChecks     int64     `json:"failed_checks"`
	CriticalAlerts   int64     `json:"critical_alerts"`
	EmergencyAlerts  int64     `json:"emergency_alerts"`
	InstancesReaped  int64     `json:"instances_reaped"`
	LastCycleChecked int       `json:"last_cycle_checked"`
	LastCycleAt      time.Time `json:"last_cycle_at"`
}

// HealthMonitor 周期性探测所有已注册实例的健康状态
// 每个周期：快照 -> 有界并发探测 -> 写回结果 -> 高负载告警 -> TTL清理
type HealthMonitor struct {
	registry   storage.Registry
	prober     Prober
	dispatcher Dispatcher
	logger     config.Logger

	interval           time.Duration
	maxConcurrent      int
	criticalThreshold  float64
	emergencyThreshold float64
	registrationTTL    time.Duration

	statsMutex sync.RWMutex
	stats      Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHealthMonitor 创建健康监控器
func NewHealthMonitor(cfg *config.Config, registry storage.Registry, prober Prober, dispatcher Dispatcher, logger config.Logger) *HealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	maxConcurrent := cfg.HealthCheck.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	return &HealthMonitor{
		registry:           registry,
		prober:             prober,
		dispatcher:         dispatcher,
		logger:             logger,
		interval:           cfg.HealthCheck.Interval,
		maxConcurrent:      maxConcurrent,
		criticalThreshold:  cfg.HealthCheck.CriticalLoadThreshold,
		emergencyThreshold: cfg.HealthCheck.EmergencyLoadThreshold,
		registrationTTL:    cfg.Registration.TTL,
		ctx:                ctx,
		cancel:             cancel,
	}
}

// Start 在后台启动监控循环
func (m *HealthMonitor) Start() {
	m.logger.Info("启动健康监控",
		zap.Duration("interval", m.interval),
		zap.Int("max_concurrent", m.maxConcurrent),
		zap.Float64("critical_load_threshold", m.criticalThreshold),
		zap.Duration("registration_ttl", m.registrationTTL))

	m.wg.Add(1)
	go m.run()
}

// Stop 停止监控循环并等待当前周期结束
func (m *HealthMonitor) Stop() {
	m.cancel()
	m.wg.Wait()
	m.logger.Info("健康监控已停止")
}

// Stats 返回当前统计数据的副本
func (m *HealthMonitor) Stats() Stats {
	m.statsMutex.RLock()
	defer m.statsMutex.RUnlock()
	return m.stats
}

// run 监控主循环，只能被取消停止，单次探测失败不会终止循环
func (m *HealthMonitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.runCycle(m.ctx)
		case <-m.ctx.Done():
			return
		}
	}
}

// runCycle 执行一个完整的监控周期
func (m *HealthMonitor) runCycle(ctx context.Context) {
	services, err := m.registry.ListAll(ctx)
	if err != nil {
		m.logger.Error("获取实例快照失败", zap.Error(err))
		return
	}

	snapshot := make([]*model.ServiceInstance, 0)
	for _, instances := range services {
		snapshot = append(snapshot, instances...)
	}

	// 有界并发探测，单个慢实例不会拖延其他实例的评估
	sem := make(chan struct{}, m.maxConcurrent)
	var wg sync.WaitGroup
	for _, instance := range snapshot {
		wg.Add(1)
		sem <- struct{}{}
		go func(instance *model.ServiceInstance) {
			defer wg.Done()
			defer func() { <-sem }()
			m.checkInstance(ctx, instance)
		}(instance)
	}
	wg.Wait()

	m.reapExpired(ctx)

	m.statsMutex.Lock()
	m.stats.LastCycleChecked = len(snapshot)
	m.stats.LastCycleAt = time.Now()
	m.statsMutex.Unlock()
}

// checkInstance 探测单个实例并将结果写回注册表
func (m *HealthMonitor) checkInstance(ctx context.Context, instance *model.ServiceInstance) {
	outcome := m.prober.Probe(ctx, instance)
	checkedAt := time.Now()

	// 探测失败时保留实例上一次的负载值
	load := instance.LoadPercentage
	if outcome.Status == model.HealthStatusHealthy {
		load = outcome.Load
	}

	if err := m.registry.ApplyProbeResult(ctx, instance.ServiceName, instance.InstanceID, outcome.Status, load, checkedAt); err != nil {
		m.logger.Error("写回探测结果失败",
			zap.String("service_name", instance.ServiceName),
			zap.String("instance_id", instance.InstanceID),
			zap.Error(err))
	}

	m.statsMutex.Lock()
	m.stats.TotalChecks++
	if outcome.Status == model.HealthStatusHealthy {
		m.stats.SuccessfulChecks++
	} else {
		m.stats.FailedChecks++
	}
	m.statsMutex.Unlock()

	if outcome.Status == model.HealthStatusHealthy {
		if outcome.Load >= m.criticalThreshold {
			m.statsMutex.Lock()
			if outcome.Load >= m.emergencyThreshold {
				m.stats.EmergencyAlerts++
			} else {
				m.stats.CriticalAlerts++
			}
			m.statsMutex.Unlock()

			m.dispatcher.Dispatch(instance.ServiceName, instance.InstanceID, outcome.Load)
		}
		m.logger.Debug("健康检查通过",
			zap.String("service_name", instance.ServiceName),
			zap.String("instance_id", instance.InstanceID),
			zap.Float64("load_percentage", outcome.Load))
	} else {
		m.logger.Warn("健康检查失败",
			zap.String("service_name", instance.ServiceName),
			zap.String("instance_id", instance.InstanceID),
			zap.String("reason", outcome.Reason))
	}
}

// reapExpired 清理心跳超过TTL的实例
func (m *HealthMonitor) reapExpired(ctx context.Context) {
	removed, err := m.registry.ReapExpired(ctx, m.registrationTTL)
	if err != nil {
		m.logger.Error("清理过期实例失败", zap.Error(err))
		return
	}
	if len(removed) == 0 {
		return
	}

	for _, instance := range removed {
		m.logger.Info("实例心跳超时，已从注册表移除",
			zap.String("service_name", instance.ServiceName),
			zap.String("instance_id", instance.InstanceID),
			zap.Time("last_heartbeat", instance.LastHeartbeat))
	}

	m.statsMutex.Lock()
	m.stats.InstancesReaped += int64(len(removed))
	m.statsMutex.Unlock()
}
