package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hewenyu/pulse-registry/pkg/model"
)

// ProbeOutcome 表示一次健康探测的结果
type ProbeOutcome struct {
	// Status 探测得出的健康状态
	Status model.HealthStatus
	// Load 实例上报的负载，已裁剪到[0,1]，仅在Status为healthy时有效
	Load float64
	// Reason 探测失败的原因，仅用于诊断日志
	Reason string
}

// Prober 定义健康探测器接口
type Prober interface {
	// Probe 对单个实例执行一次健康探测，调用自带超时，从不内部重试
	Probe(ctx context.Context, instance *model.ServiceInstance) ProbeOutcome
}

// healthReport 实例健康端点返回的响应体
type healthReport struct {
	Status         string  `json:"status"`
	LoadPercentage float64 `json:"load_percentage"`
}

// HTTPProber 基于HTTP GET的健康探测器实现
type HTTPProber struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPProber 创建HTTP健康探测器，timeout为单次探测的总超时
func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// Probe 对实例的健康端点发起GET请求并解析状态和负载
func (p *HTTPProber) Probe(ctx context.Context, instance *model.ServiceInstance) ProbeOutcome {
	endpoint := instance.HealthEndpoint
	if endpoint == "" {
		endpoint = model.DefaultHealthEndpoint
	}
	url := fmt.Sprintf("http://%s:%d%s", instance.Host, instance.Port, endpoint)

	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return unhealthyOutcome(fmt.Sprintf("创建探测请求失败: %v", err))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// 超时和连接失败统一按不健康处理，原因仅用于日志
		return unhealthyOutcome(fmt.Sprintf("探测请求失败: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return unhealthyOutcome(fmt.Sprintf("健康端点返回状态码: %d", resp.StatusCode))
	}

	var report healthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return unhealthyOutcome(fmt.Sprintf("解析健康响应失败: %v", err))
	}

	if report.Status != string(model.HealthStatusHealthy) {
		return unhealthyOutcome(fmt.Sprintf("实例上报状态: %s", report.Status))
	}

	return ProbeOutcome{
		Status: model.HealthStatusHealthy,
		Load:   clampLoad(report.LoadPercentage),
	}
}

// unhealthyOutcome 构造不健康的探测结果
func unhealthyOutcome(reason string) ProbeOutcome {
	return ProbeOutcome{
		Status: model.HealthStatusUnhealthy,
		Reason: reason,
	}
}

// clampLoad 将越界的负载值裁剪到[0,1]
func clampLoad(load float64) float64 {
	if load < 0 {
		return 0
	}
	if load > 1 {
		return 1
	}
	return load
}
