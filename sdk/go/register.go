package sdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// RegisterRequest 服务注册请求
type RegisterRequest struct {
	ServiceName    string            `json:"service_name"`
	InstanceID     string            `json:"instance_id"`
	Host           string            `json:"host"`
	Port           int               `json:"port"`
	HealthEndpoint string            `json:"health_endpoint,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Topics         []string          `json:"topics,omitempty"`
}

// HeartbeatRequest 心跳请求
type HeartbeatRequest struct {
	ServiceName string `json:"service_name"`
	InstanceID  string `json:"instance_id"`
}

// Register 向注册中心注册当前实例，重复调用按覆盖处理
func (c *Client) Register(ctx context.Context) error {
	req := RegisterRequest{
		ServiceName:    c.config.ServiceName,
		InstanceID:     c.config.InstanceID,
		Host:           c.config.Host,
		Port:           c.config.Port,
		HealthEndpoint: c.config.HealthEndpoint,
		Metadata:       c.config.Metadata,
		Topics:         c.config.Topics,
	}

	_, err := c.doRequest(ctx, http.MethodPost, "/v1/discovery/register", req)
	if err != nil {
		return fmt.Errorf("服务注册失败: %w", err)
	}

	c.isRegistered = true
	return nil
}

// Unregister 注销当前实例
func (c *Client) Unregister(ctx context.Context) error {
	path := fmt.Sprintf("/v1/discovery/unregister/%s/%s",
		url.PathEscape(c.config.ServiceName), url.PathEscape(c.config.InstanceID))

	_, err := c.doRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return fmt.Errorf("服务注销失败: %w", err)
	}

	c.isRegistered = false
	return nil
}

// IsRegistered 检查服务是否已注册
func (c *Client) IsRegistered() bool {
	return c.isRegistered
}
