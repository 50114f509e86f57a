package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdk "github.com/hewenyu/pulse-registry/sdk/go"
)

func main() {
	// 配置SDK客户端
	config := &sdk.Config{
		ServerAddr:        "localhost:3004",
		ServiceName:       "example-service",
		Host:              "127.0.0.1",
		Port:              8000,
		HealthEndpoint:    "/health",
		Metadata:          map[string]string{"version": "1.0.0"},
		Topics:            []string{"order.created"},
		HeartbeatInterval: 60 * time.Second,
		Timeout:           5 * time.Second,
		Secret:            os.Getenv("PULSE_REGISTRY_AUTH_SECRET"),
	}

	// 创建SDK客户端
	client, err := sdk.NewClient(config)
	if err != nil {
		log.Fatalf("创建SDK客户端失败: %v", err)
	}

	// 注册服务
	ctx := context.Background()
	if err := client.Register(ctx); err != nil {
		log.Fatalf("服务注册失败: %v", err)
	}
	log.Printf("服务注册成功，实例ID: %s", client.InstanceID())

	// 启动心跳
	client.StartHeartbeat()
	log.Printf("心跳任务已启动，间隔: %s", config.HeartbeatInterval)

	// 等待终止信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	log.Println("服务已启动，按Ctrl+C终止...")
	<-quit

	// 优雅关闭
	log.Println("正在关闭服务...")
	if err := client.Close(ctx); err != nil {
		log.Printf("关闭SDK客户端失败: %v", err)
	}
	log.Println("服务已关闭")
}
