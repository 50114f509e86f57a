package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Config SDK客户端配置
type Config struct {
	// 注册中心地址，如 "localhost:3004"
	ServerAddr string `json:"server_addr"`
	// 服务名称
	ServiceName string `json:"service_name"`
	// 实例ID，为空时自动生成
	InstanceID string `json:"instance_id"`
	// 实例主机地址
	Host string `json:"host"`
	// 实例端口
	Port int `json:"port"`
	// 健康检查路径，为空时注册中心使用默认值
	HealthEndpoint string `json:"health_endpoint"`
	// 元数据
	Metadata map[string]string `json:"metadata"`
	// 订阅的事件主题
	Topics []string `json:"topics"`
	// 心跳间隔
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	// 操作超时时间
	Timeout time.Duration `json:"timeout"`
	// 内部通信共享密钥
	Secret string `json:"secret"`
	// 是否使用HTTPS
	Secure bool `json:"secure"`
}

// Client SDK客户端
type Client struct {
	config       *Config
	httpClient   *http.Client
	isRegistered bool
	stopChan     chan struct{}
}

// Response API响应结构
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// NewClient 创建SDK客户端
func NewClient(config *Config) (*Client, error) {
	// 验证必填配置
	if config.ServerAddr == "" {
		return nil, fmt.Errorf("注册中心地址不能为空")
	}
	if config.ServiceName == "" {
		return nil, fmt.Errorf("服务名称不能为空")
	}
	if config.Host == "" {
		return nil, fmt.Errorf("主机地址不能为空")
	}
	if config.Port <= 0 {
		return nil, fmt.Errorf("端口必须大于0")
	}

	// 设置默认值
	if config.InstanceID == "" {
		config.InstanceID = uuid.New().String()
	}
	if config.HeartbeatInterval == 0 {
		config.HeartbeatInterval = 60 * time.Second
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		stopChan:   make(chan struct{}),
	}, nil
}

// InstanceID 返回实例ID
func (c *Client) InstanceID() string {
	return c.config.InstanceID
}

// 构建API地址
func (c *Client) buildURL(path string) string {
	protocol := "http"
	if c.config.Secure {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s%s", protocol, c.config.ServerAddr, path)
}

// 发送HTTP请求
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (*Response, error) {
	url := c.buildURL(path)

	// 准备请求体
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("序列化请求体失败: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}

	// 设置请求头
	req.Header.Set("Content-Type", "application/json")
	if c.config.Secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	var apiResp Response
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w, 响应内容: %s", err, string(respBody))
	}

	if resp.StatusCode != http.StatusOK {
		return &apiResp, fmt.Errorf("API请求失败: %s (状态码: %d)", apiResp.Message, resp.StatusCode)
	}

	return &apiResp, nil
}
