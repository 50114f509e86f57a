package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用程序配置结构
type Config struct {
	// 注册API服务配置
	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`

	// DNS发现服务配置
	DNS struct {
		Enabled       bool   `mapstructure:"enabled"`
		ListenAddress string `mapstructure:"listen_address"`
		Port          int    `mapstructure:"port"`
		Protocol      string `mapstructure:"protocol"` // "udp", "tcp", 或 "both"
		Domain        string `mapstructure:"domain"`   // 服务查询域，如 discovery.local
	} `mapstructure:"dns"`

	// 健康检查配置
	HealthCheck struct {
		Interval               time.Duration `mapstructure:"interval"`
		Timeout                time.Duration `mapstructure:"timeout"`
		MaxConcurrent          int           `mapstructure:"max_concurrent"`
		CriticalLoadThreshold  float64       `mapstructure:"critical_load_threshold"`
		EmergencyLoadThreshold float64       `mapstructure:"emergency_load_threshold"`
	} `mapstructure:"health_check"`

	// 服务注册配置
	Registration struct {
		TTL               time.Duration `mapstructure:"ttl"`
		HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	} `mapstructure:"registration"`

	// 告警配置
	Alert struct {
		Cooldown   time.Duration `mapstructure:"cooldown"`
		WebhookURL string        `mapstructure:"webhook_url"`
		Timeout    time.Duration `mapstructure:"timeout"`
	} `mapstructure:"alert"`

	// 内部通信鉴权配置
	Auth struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"auth"`

	// 注册API限流配置，RPS小于等于0时关闭限流
	RateLimit struct {
		RPS   float64 `mapstructure:"rps"`
		Burst int     `mapstructure:"burst"`
	} `mapstructure:"rate_limit"`

	// 日志配置
	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
}

// LoadConfig 从文件和环境变量加载配置
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 如果指定了配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// 设置配置文件名和路径
		v.SetConfigName("config")                 // 配置文件名（无扩展名）
		v.AddConfigPath(".")                      // 当前目录
		v.AddConfigPath("./configs")              // configs目录
		v.AddConfigPath("$HOME/.pulse-registry")  // 用户目录
		v.AddConfigPath("/etc/pulse-registry")    // 系统目录
	}

	// 配置文件格式
	v.SetConfigType("yaml")

	// 尝试从配置文件加载
	if err := v.ReadInConfig(); err != nil {
		// 如果找不到配置文件，仅记录警告；其他错误则返回
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件错误: %w", err)
		}
	}

	// 绑定环境变量
	v.SetEnvPrefix("PULSE_REGISTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 从环境变量覆盖
	bindEnvVariables(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置错误: %w", err)
	}

	return &config, nil
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	// 注册API服务默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3004)

	// DNS发现服务默认配置
	v.SetDefault("dns.enabled", false)
	v.SetDefault("dns.listen_address", "0.0.0.0")
	v.SetDefault("dns.port", 53)
	v.SetDefault("dns.protocol", "both")
	v.SetDefault("dns.domain", "discovery.local")

	// 健康检查默认配置
	v.SetDefault("health_check.interval", 30*time.Second)
	v.SetDefault("health_check.timeout", 5*time.Second)
	v.SetDefault("health_check.max_concurrent", 10)
	v.SetDefault("health_check.critical_load_threshold", 0.8)
	v.SetDefault("health_check.emergency_load_threshold", 0.95)

	// 服务注册默认配置
	v.SetDefault("registration.ttl", 5*time.Minute)
	v.SetDefault("registration.heartbeat_interval", time.Minute)

	// 告警默认配置
	v.SetDefault("alert.cooldown", 5*time.Minute)
	v.SetDefault("alert.webhook_url", "")
	v.SetDefault("alert.timeout", 5*time.Second)

	// 鉴权默认配置
	v.SetDefault("auth.secret", "pulse-registry-secret-change-me")

	// 限流默认配置（默认关闭）
	v.SetDefault("rate_limit.rps", 0.0)
	v.SetDefault("rate_limit.burst", 0)

	// 日志默认配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", true)
}

// bindEnvVariables 绑定特定的环境变量
func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("server.port", "PULSE_REGISTRY_SERVER_PORT")
	v.BindEnv("dns.port", "PULSE_REGISTRY_DNS_PORT")
	v.BindEnv("auth.secret", "PULSE_REGISTRY_AUTH_SECRET")
	v.BindEnv("alert.webhook_url", "PULSE_REGISTRY_ALERT_WEBHOOK_URL")
}

// GetDefaultConfigPath 返回默认配置文件路径
func GetDefaultConfigPath() string {
	// 按顺序检查不同位置的配置文件
	paths := []string{
		"./config.yaml",
		"./configs/config.yaml",
		os.Getenv("HOME") + "/.pulse-registry/config.yaml",
		"/etc/pulse-registry/config.yaml",
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}
