package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/mdns"
	"go.bug.st/serial"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/pkg/interfaces"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// mDNS 服务名
const (
	ServiceWiThrottle = "_withrottle._tcp"
	ServiceDCCEx      = "_dccex._tcp"
)

// ServiceFor 返回协议对应的 mDNS 服务名
func ServiceFor(p types.Protocol) string {
	if p == types.ProtocolDCCEx {
		return ServiceDCCEx
	}
	return ServiceWiThrottle
}

// DefaultPortFor 返回协议的默认端口
func DefaultPortFor(p types.Protocol) int {
	if p == types.ProtocolDCCEx {
		return config.DefaultDCCExPort
	}
	return config.DefaultWiThrottlePort
}

// ============================================================================
//                              StaticDialer
// ============================================================================

// StaticDialer 固定地址的 TCP 拨号
type StaticDialer struct {
	Address      string
	Timeout      time.Duration
	WriteTimeout time.Duration
}

// Dial 建立链路
func (d *StaticDialer) Dial(ctx context.Context) (interfaces.Link, error) {
	return dialTCP(ctx, d.Address, d.Timeout, d.WriteTimeout)
}

// String 返回描述
func (d *StaticDialer) String() string { return "tcp://" + d.Address }

func dialTCP(ctx context.Context, addr string, timeout, writeTimeout time.Duration) (interfaces.Link, error) {
	nd := net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return NewConnLink(conn, writeTimeout), nil
}

// ============================================================================
//                              MDNSDialer
// ============================================================================

// LookupFunc 查询服务并返回 host:port
type LookupFunc func(ctx context.Context, service string, timeout time.Duration) (string, error)

// MDNSDialer 通过 mDNS 发现指令站
//
// 依次查询 Services 中的服务名，使用第一个有应答的服务。
type MDNSDialer struct {
	Services     []string
	Timeout      time.Duration
	DialTimeout  time.Duration
	WriteTimeout time.Duration

	// Lookup 为空时使用 hashicorp/mdns 查询
	Lookup LookupFunc
}

// NewMDNSDialer 按首选协议创建，首选服务未应答时回退到另一种
func NewMDNSDialer(preferred types.Protocol, timeout, dialTimeout time.Duration) *MDNSDialer {
	other := types.ProtocolDCCEx
	if preferred == types.ProtocolDCCEx {
		other = types.ProtocolWiThrottle
	}
	return &MDNSDialer{
		Services:    []string{ServiceFor(preferred), ServiceFor(other)},
		Timeout:     timeout,
		DialTimeout: dialTimeout,
	}
}

// Dial 发现并建立链路
func (d *MDNSDialer) Dial(ctx context.Context) (interfaces.Link, error) {
	lookup := d.Lookup
	if lookup == nil {
		lookup = QueryService
	}
	for _, svc := range d.Services {
		addr, err := lookup(ctx, svc, d.Timeout)
		if err != nil {
			log.Debug("mDNS 查询无结果", "service", svc, "err", err)
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		log.Info("mDNS 发现指令站", "service", svc, "addr", addr)
		return dialTCP(ctx, addr, d.DialTimeout, d.WriteTimeout)
	}
	return nil, ErrNoService
}

// String 返回描述
func (d *MDNSDialer) String() string { return fmt.Sprintf("mdns://%v", d.Services) }

// QueryService 使用 hashicorp/mdns 查询一个服务
func QueryService(ctx context.Context, service string, timeout time.Duration) (string, error) {
	params := mdns.DefaultParams(service)
	params.Timeout = timeout
	params.DisableIPv6 = true
	params.WantUnicastResponse = true

	// 结果通道必须传给 mdns.Query，否则收不到应答
	entries := make(chan *mdns.ServiceEntry, 8)
	params.Entries = entries

	go func() {
		if err := mdns.Query(params); err != nil {
			log.Debug("mDNS 查询失败", "service", service, "err", err)
		}
		close(entries)
	}()

	drain := func() {
		go func() {
			for range entries {
			}
		}()
	}

	for {
		select {
		case e, ok := <-entries:
			if !ok {
				return "", ErrNoService
			}
			if e == nil || e.Port == 0 {
				continue
			}
			var host string
			switch {
			case e.AddrV4 != nil:
				host = e.AddrV4.String()
			case e.AddrV6 != nil:
				host = e.AddrV6.String()
			default:
				continue
			}
			drain()
			return net.JoinHostPort(host, strconv.Itoa(e.Port)), nil
		case <-ctx.Done():
			drain()
			return "", ctx.Err()
		}
	}
}

// ============================================================================
//                              SerialDialer
// ============================================================================

// SerialDialer 直连串口
type SerialDialer struct {
	Device   string
	BaudRate int
}

// Dial 打开串口
func (d *SerialDialer) Dial(_ context.Context) (interfaces.Link, error) {
	port, err := serial.Open(d.Device, &serial.Mode{
		BaudRate: d.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", d.Device, err)
	}
	return NewFrameLink(port, d.String(), 0), nil
}

// String 返回描述
func (d *SerialDialer) String() string {
	return fmt.Sprintf("serial://%s@%d", d.Device, d.BaudRate)
}

// ============================================================================
//                              选择策略
// ============================================================================

// NewDialer 按上游配置选择拨号策略
func NewDialer(cfg config.UpstreamConfig) (interfaces.Dialer, error) {
	if cfg.Transport == config.TransportSerial {
		if cfg.SerialDevice == "" {
			return nil, fmt.Errorf("%w: serial device", ErrNoAddress)
		}
		return &SerialDialer{Device: cfg.SerialDevice, BaudRate: cfg.BaudRate}, nil
	}
	if cfg.Address != "" {
		addr := cfg.Address
		if _, _, err := net.SplitHostPort(addr); err != nil {
			addr = net.JoinHostPort(addr, strconv.Itoa(DefaultPortFor(cfg.PreferredProtocol)))
		}
		return &StaticDialer{Address: addr, Timeout: cfg.DialTimeout}, nil
	}
	if cfg.MDNS {
		return NewMDNSDialer(cfg.PreferredProtocol, cfg.MDNSTimeout, cfg.DialTimeout), nil
	}
	return nil, ErrNoAddress
}
