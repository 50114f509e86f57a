package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hewenyu/pulse-registry/internal/config"
)

// AlertLevel 告警级别
type AlertLevel string

const (
	// AlertLevelCritical 负载达到临界阈值
	AlertLevelCritical AlertLevel = "critical"
	// AlertLevelEmergency 负载达到紧急阈值
	AlertLevelEmergency AlertLevel = "emergency"
)

// Dispatcher 定义告警分发器接口
type Dispatcher interface {
	// Dispatch 发送一条高负载告警，调用不阻塞监控循环，失败只记录日志
	Dispatch(serviceName, instanceID string, load float64)
}

// alertState 记录单个实例的告警历史，用于冷却期抑制
type alertState struct {
	lastSent   time.Time
	suppressed int
}

// AlertDispatcher 实现Dispatcher接口
// 日志始终输出；配置了webhook时在冷却期外额外POST到外部告警系统
type AlertDispatcher struct {
	logger             config.Logger
	emergencyThreshold float64
	cooldown           time.Duration
	webhookURL         string
	httpClient         *http.Client

	mutex  sync.Mutex
	states map[string]*alertState
}

// AlertPayload webhook告警的请求体
type AlertPayload struct {
	Level          AlertLevel `json:"level"`
	ServiceName    string     `json:"service_name"`
	InstanceID     string     `json:"instance_id"`
	LoadPercentage float64    `json:"load_percentage"`
	RepeatCount    int        `json:"repeat_count"`
	Timestamp      time.Time  `json:"timestamp"`
}

// NewAlertDispatcher 创建告警分发器
func NewAlertDispatcher(cfg *config.Config, logger config.Logger) *AlertDispatcher {
	return &AlertDispatcher{
		logger:             logger,
		emergencyThreshold: cfg.HealthCheck.EmergencyLoadThreshold,
		cooldown:           cfg.Alert.Cooldown,
		webhookURL:         cfg.Alert.WebhookURL,
		httpClient: &http.Client{
			Timeout: cfg.Alert.Timeout,
		},
		states: make(map[string]*alertState),
	}
}

// Dispatch 发送一条高负载告警
func (d *AlertDispatcher) Dispatch(serviceName, instanceID string, load float64) {
	level := AlertLevelCritical
	if load >= d.emergencyThreshold {
		level = AlertLevelEmergency
	}

	key := fmt.Sprintf("%s:%s", serviceName, instanceID)

	// 冷却期内只计数不重复发送，冷却期过后携带被抑制的次数
	d.mutex.Lock()
	state, ok := d.states[key]
	if !ok {
		state = &alertState{}
		d.states[key] = state
	}
	now := time.Now()
	inCooldown := !state.lastSent.IsZero() && now.Sub(state.lastSent) < d.cooldown
	repeatCount := state.suppressed
	if inCooldown {
		state.suppressed++
	} else {
		state.lastSent = now
		state.suppressed = 0
	}
	d.mutex.Unlock()

	fields := []zap.Field{
		zap.String("service_name", serviceName),
		zap.String("instance_id", instanceID),
		zap.Float64("load_percentage", load),
		zap.String("level", string(level)),
	}

	if inCooldown {
		d.logger.Debug("高负载告警处于冷却期，跳过外部通知", fields...)
		return
	}

	switch level {
	case AlertLevelEmergency:
		d.logger.Error("实例负载达到紧急阈值", fields...)
	default:
		d.logger.Warn("实例负载达到临界阈值", fields...)
	}

	if d.webhookURL == "" {
		return
	}

	payload := AlertPayload{
		Level:          level,
		ServiceName:    serviceName,
		InstanceID:     instanceID,
		LoadPercentage: load,
		RepeatCount:    repeatCount,
		Timestamp:      now,
	}
	if err := d.postWebhook(payload); err != nil {
		// 告警尽力而为，发送失败不影响监控循环
		d.logger.Warn("发送webhook告警失败", zap.String("url", d.webhookURL), zap.Error(err))
	}
}

// postWebhook 将告警POST到配置的webhook地址
func (d *AlertDispatcher) postWebhook(payload AlertPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化告警失败: %w", err)
	}

	resp, err := d.httpClient.Post(d.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("发送告警请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("告警接收端返回状态码: %d", resp.StatusCode)
	}
	return nil
}
