package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hewenyu/pulse-registry/internal/api"
	"github.com/hewenyu/pulse-registry/internal/config"
	"github.com/hewenyu/pulse-registry/internal/dnsserver"
	"github.com/hewenyu/pulse-registry/internal/monitor"
	"github.com/hewenyu/pulse-registry/pkg/storage/memory"
)

var configFile string

func init() {
	// 解析命令行参数
	flag.StringVar(&configFile, "config", "", "配置文件路径")
}

func main() {
	flag.Parse()

	// 加载配置
	appConfig, err := config.LoadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger, err := config.NewLogger(appConfig.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	// 打印启动信息
	logger.Info("Pulse Registry Starting...",
		zap.String("version", "0.1.0"),
		zap.Int("api_port", appConfig.Server.Port),
		zap.Duration("health_check_interval", appConfig.HealthCheck.Interval),
		zap.Duration("registration_ttl", appConfig.Registration.TTL),
		zap.Bool("dns_enabled", appConfig.DNS.Enabled),
	)

	// 创建内存注册表，进程重启后注册表为空，由实例重新注册填充
	registry := memory.NewMemoryRegistry()

	// 创建健康监控组件
	prober := monitor.NewHTTPProber(appConfig.HealthCheck.Timeout)
	dispatcher := monitor.NewAlertDispatcher(appConfig, logger)
	healthMonitor := monitor.NewHealthMonitor(appConfig, registry, prober, dispatcher, logger)
	healthMonitor.Start()

	// 启动注册API服务
	apiServer := api.NewServer(appConfig, logger, registry, healthMonitor)
	if err := apiServer.Start(); err != nil {
		logger.Error("启动注册API服务失败", zap.Error(err))
		os.Exit(1)
	}

	// 按配置启动DNS发现服务
	var dnsServer dnsserver.Server
	if appConfig.DNS.Enabled {
		dnsServer = dnsserver.NewDNSServer(appConfig, logger, registry)
		if err := dnsServer.Start(); err != nil {
			logger.Error("启动DNS服务器失败", zap.Error(err))
			os.Exit(1)
		}
	}

	// 等待信号以优雅关闭
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("接收到关闭信号，正在优雅关闭...")

	healthMonitor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("关闭注册API服务出错", zap.Error(err))
	}
	if dnsServer != nil {
		if err := dnsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("关闭DNS服务器出错", zap.Error(err))
		}
	}

	logger.Info("Pulse Registry 已关闭")
}
