package sdk

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"
)

// SendHeartbeat 发送一次心跳
func (c *Client) SendHeartbeat(ctx context.Context) error {
	req := HeartbeatRequest{
		ServiceName: c.config.ServiceName,
		InstanceID:  c.config.InstanceID,
	}

	_, err := c.doRequest(ctx, http.MethodPost, "/v1/discovery/heartbeat", req)
	if err != nil {
		return fmt.Errorf("发送心跳失败: %w", err)
	}

	return nil
}

// StartHeartbeat 启动后台心跳任务，按配置的间隔发送直到Close
func (c *Client) StartHeartbeat() {
	// 停止已有心跳任务
	c.StopHeartbeat()

	c.stopChan = make(chan struct{})

	go func() {
		ticker := time.NewTicker(c.config.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
				// 单次失败不终止任务，等待下个周期重试
				if err := c.SendHeartbeat(ctx); err != nil {
					log.Printf("心跳发送失败: %v, 将在下一个周期重试", err)
				}
				cancel()
			case <-c.stopChan:
				return
			}
		}
	}()
}

// StopHeartbeat 停止心跳任务
func (c *Client) StopHeartbeat() {
	if c.stopChan != nil {
		select {
		case <-c.stopChan:
			// 已经关闭
		default:
			close(c.stopChan)
		}
	}
}

// Close 关闭客户端：停止心跳并注销服务
func (c *Client) Close(ctx context.Context) error {
	c.StopHeartbeat()

	if c.isRegistered {
		if err := c.Unregister(ctx); err != nil {
			return fmt.Errorf("注销服务失败: %w", err)
		}
	}

	return nil
}
