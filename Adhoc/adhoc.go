package Adhoc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"NutBoltDetServer/service"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	CpuInstance    = 0x2002
	RemoteInstance = 0x2005
	TimeOutSeconds = 5
)

type RegisterRequest struct {
	Id            string   `json:"id"`
	IP            string   `json:"ip"`
	Port          int      `json:"port"`
	GRPCPort      int      `json:"grpcPort"`
	InstanceClass int      `json:"instanceClass"`
	ModelLoaded   bool     `json:"modelLoaded"`
	ClassNames    []string `json:"classNames"`
	TimeStamp     int64    `json:"timestamp"`
}

type RegisterResponse struct {
	Id      string `json:"id"`
	Success bool   `json:"success"`
}

// RegServerConfig points at the registration server. Disabled when Addr
// is empty.
type RegServerConfig struct {
	Addr     string        `yaml:"addr"`
	Port     int           `yaml:"port"`
	Interval time.Duration `yaml:"interval"`
	// AdvertiseIP overrides the auto-detected outbound address.
	AdvertiseIP string `yaml:"advertiseIP"`
}

func (reg RegServerConfig) Enabled() bool {
	return reg.Addr != ""
}

func (reg RegServerConfig) url() string {
	addr := reg.Addr
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	if reg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", addr, reg.Port)
	}
	return addr + "/api/register"
}

// Node is what this instance announces about itself.
type Node struct {
	HTTPPort      int
	GRPCPort      int
	InstanceClass int
}

// Heartbeat announces this node to the registration server until its
// context is cancelled.
type Heartbeat struct {
	cfg    RegServerConfig
	node   Node
	status func() service.Health
	client *resty.Client
	id     string
	ip     string
	log    *zap.Logger
}

func NewHeartbeat(cfg RegServerConfig, node Node, status func() service.Health, log *zap.Logger) *Heartbeat {
	if cfg.Interval <= 0 {
		cfg.Interval = TimeOutSeconds * time.Second
	}
	ip := cfg.AdvertiseIP
	if ip == "" {
		ip = OutboundIP()
	}
	return &Heartbeat{
		cfg:    cfg,
		node:   node,
		status: status,
		client: resty.New().SetTimeout(TimeOutSeconds * time.Second),
		id:     uuid.NewString(),
		ip:     ip,
		log:    log,
	}
}

func (h *Heartbeat) ID() string {
	return h.id
}

// SendAliveMessage posts one registration. A non-2xx reply or a reply with
// success=false is an error.
func (h *Heartbeat) SendAliveMessage(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("SendAliveMessage panic recovered: %v", r)
		}
	}()
	health := h.status()
	var respBody RegisterResponse
	reqBody := RegisterRequest{
		Id:            h.id,
		IP:            h.ip,
		Port:          h.node.HTTPPort,
		GRPCPort:      h.node.GRPCPort,
		InstanceClass: h.node.InstanceClass,
		ModelLoaded:   health.ModelLoaded,
		ClassNames:    health.ClassNames,
		TimeStamp:     time.Now().Unix(),
	}
	resp, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		SetResult(&respBody).
		Post(h.cfg.url())
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("server returned error: %s, body: %s", resp.Status(), resp.String())
	}
	if !respBody.Success {
		return errors.New("registration rejected by server")
	}
	return nil
}

// Run sends a heartbeat immediately and then every interval.
func (h *Heartbeat) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	send := func() {
		if err := h.SendAliveMessage(ctx); err != nil && ctx.Err() == nil {
			h.log.Warn("heartbeat failed", zap.String("id", h.id), zap.Error(err))
		}
	}
	h.log.Info("heartbeat started", zap.String("id", h.id), zap.String("ip", h.ip), zap.String("url", h.cfg.url()))
	send()
	for {
		select {
		case <-ctx.Done():
			h.log.Info("heartbeat context cancelled, exiting goroutine")
			return
		case <-ticker.C:
			send()
		}
	}
}

// OutboundIP returns the local address used for outbound traffic, or
// 127.0.0.1 when there is no route. No packet is sent.
func OutboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
