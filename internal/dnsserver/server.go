package dnsserver

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/hewenyu/pulse-registry/internal/config"
	"github.com/hewenyu/pulse-registry/pkg/storage"
)

// recordTTL DNS应答的TTL（秒），发现结果随健康状态变化，保持较短
const recordTTL = 30

// Server 定义DNS服务器接口
type Server interface {
	// Start 启动DNS服务器
	Start() error

	// Shutdown 优雅关闭DNS服务器
	Shutdown(ctx context.Context) error
}

// DNSServer 实现Server接口
// 将 <服务名>.<基础域> 的A/SRV查询解析为该服务当前的健康实例
type DNSServer struct {
	udpServer   *dns.Server
	tcpServer   *dns.Server
	cfg         *config.Config
	logger      config.Logger
	registry    storage.Registry
	shutdownErr chan error
}

// NewDNSServer 创建一个新的DNS服务器
func NewDNSServer(cfg *config.Config, logger config.Logger, registry storage.Registry) Server {
	return &DNSServer{
		cfg:         cfg,
		logger:      logger,
		registry:    registry,
		shutdownErr: make(chan error, 2), // 用于收集UDP和TCP服务器的关闭错误
	}
}

// Start 启动DNS服务器
func (s *DNSServer) Start() error {
	s.logger.Info("启动DNS发现服务器",
		zap.String("address", s.cfg.DNS.ListenAddress),
		zap.Int("port", s.cfg.DNS.Port),
		zap.String("protocol", s.cfg.DNS.Protocol),
		zap.String("domain", s.cfg.DNS.Domain))

	handler := dns.NewServeMux()
	handler.HandleFunc(".", s.handleDNSRequest)

	addr := net.JoinHostPort(s.cfg.DNS.ListenAddress, strconv.Itoa(s.cfg.DNS.Port))

	// 根据配置启动对应协议的服务器
	switch s.cfg.DNS.Protocol {
	case "udp":
		return s.startUDPServer(addr, handler)
	case "tcp":
		return s.startTCPServer(addr, handler)
	case "both":
		if err := s.startUDPServer(addr, handler); err != nil {
			return err
		}
		return s.startTCPServer(addr, handler)
	default:
		return fmt.Errorf("不支持的DNS协议: %s", s.cfg.DNS.Protocol)
	}
}

// startUDPServer 启动UDP服务器
func (s *DNSServer) startUDPServer(addr string, handler dns.Handler) error {
	s.udpServer = &dns.Server{
		Addr:    addr,
		Net:     "udp",
		Handler: handler,
	}

	// 在后台启动UDP服务器
	go func() {
		if err := s.udpServer.ListenAndServe(); err != nil {
			// miekg/dns没有ErrServerClosed，我们需要自己判断服务关闭情况
			s.logger.Error("UDP DNS服务器错误", zap.Error(err))
			s.shutdownErr <- err
		}
	}()

	return nil
}

// startTCPServer 启动TCP服务器
func (s *DNSServer) startTCPServer(addr string, handler dns.Handler) error {
	s.tcpServer = &dns.Server{
		Addr:    addr,
		Net:     "tcp",
		Handler: handler,
	}

	// 在后台启动TCP服务器
	go func() {
		if err := s.tcpServer.ListenAndServe(); err != nil {
			s.logger.Error("TCP DNS服务器错误", zap.Error(err))
			s.shutdownErr <- err
		}
	}()

	return nil
}

// Shutdown 优雅关闭DNS服务器
func (s *DNSServer) Shutdown(ctx context.Context) error {
	s.logger.Info("正在关闭DNS服务器...")

	if s.udpServer != nil {
		if err := s.udpServer.ShutdownContext(ctx); err != nil {
			s.logger.Error("关闭UDP DNS服务器出错", zap.Error(err))
			return err
		}
	}

	if s.tcpServer != nil {
		if err := s.tcpServer.ShutdownContext(ctx); err != nil {
			s.logger.Error("关闭TCP DNS服务器出错", zap.Error(err))
			return err
		}
	}

	return nil
}

// handleDNSRequest 处理DNS请求
func (s *DNSServer) handleDNSRequest(w dns.ResponseWriter, r *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(r)
	m.Authoritative = true

	for _, q := range r.Question {
		s.logger.Debug("收到DNS查询",
			zap.String("name", q.Name),
			zap.String("type", dns.TypeToString[q.Qtype]),
			zap.String("client", w.RemoteAddr().String()))

		// 任一问题无答案时整体返回NXDOMAIN
		if !s.handleQuery(q, m) {
			m.SetRcode(r, dns.RcodeNameError)
		}
	}

	if err := w.WriteMsg(m); err != nil {
		s.logger.Error("发送DNS响应失败", zap.Error(err))
	}
}

// handleQuery 处理单个DNS查询问题，有答案时返回true
func (s *DNSServer) handleQuery(q dns.Question, m *dns.Msg) bool {
	domain := strings.TrimSuffix(strings.ToLower(q.Name), ".")

	// 只应答 <服务名>.<基础域> 形式的查询
	suffix := "." + strings.ToLower(s.cfg.DNS.Domain)
	if !strings.HasSuffix(domain, suffix) {
		return false
	}
	serviceName := strings.TrimSuffix(domain, suffix)
	if serviceName == "" {
		return false
	}

	instances, err := s.registry.ListHealthy(context.Background(), serviceName)
	if err != nil {
		s.logger.Error("查询健康实例失败",
			zap.String("service_name", serviceName),
			zap.Error(err))
		return false
	}
	if len(instances) == 0 {
		return false
	}

	answered := false
	switch q.Qtype {
	case dns.TypeA:
		for _, instance := range instances {
			// A记录只能携带IPv4地址，主机名实例跳过
			ip := net.ParseIP(instance.Host)
			if ip == nil || ip.To4() == nil {
				continue
			}
			rr, err := dns.NewRR(fmt.Sprintf("%s. %d IN A %s", domain, recordTTL, ip.To4().String()))
			if err != nil {
				s.logger.Error("创建A记录失败", zap.Error(err))
				continue
			}
			m.Answer = append(m.Answer, rr)
			answered = true
		}

	case dns.TypeSRV:
		for _, instance := range instances {
			rr, err := dns.NewRR(fmt.Sprintf("%s. %d IN SRV 0 0 %d %s.", domain, recordTTL, instance.Port, instance.Host))
			if err != nil {
				s.logger.Error("创建SRV记录失败", zap.Error(err))
				continue
			}
			m.Answer = append(m.Answer, rr)
			answered = true
		}

	default:
		s.logger.Debug("不支持的DNS记录类型",
			zap.String("domain", domain),
			zap.String("type", dns.TypeToString[q.Qtype]))
	}

	return answered
}
