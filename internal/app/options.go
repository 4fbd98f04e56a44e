package app

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/pkg/interfaces"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// 默认超时
const (
	// DefaultStartTimeout fx 启动超时
	DefaultStartTimeout = 30 * time.Second
	// DefaultStopTimeout fx 停止超时
	DefaultStopTimeout = 30 * time.Second
)

// Option 引导选项
type Option func(*options) error

// options 内部选项集合
type options struct {
	dataDir      string
	server       string
	serialDevice string
	metricsAddr  string
	introspect   string

	configure []func(*config.Config)

	clock   clock.Clock
	dialer  interfaces.Dialer
	display interfaces.Display

	startTimeout time.Duration
	stopTimeout  time.Duration

	userFxOptions []fx.Option
}

func newOptions(opts []Option) (*options, error) {
	o := &options{
		clock:        clock.New(),
		startTimeout: DefaultStartTimeout,
		stopTimeout:  DefaultStopTimeout,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// apply 把命令行覆盖项写入配置
func (o *options) apply(cfg *config.Config) {
	cfg.Storage.Dir = o.dataDir
	if o.server != "" {
		cfg.Upstream.Address = o.server
		cfg.Upstream.Transport = config.TransportTCP
	}
	if o.serialDevice != "" {
		cfg.Upstream.SerialDevice = o.serialDevice
		cfg.Upstream.Transport = config.TransportSerial
		cfg.Upstream.PreferredProtocol = types.ProtocolDCCEx
	}
	if o.metricsAddr != "" {
		cfg.Metrics.Addr = o.metricsAddr
	}
	if o.introspect != "" {
		cfg.Metrics.IntrospectAddr = o.introspect
	}
	for _, fn := range o.configure {
		fn(cfg)
	}
}

// ============================================================================
//                              选项
// ============================================================================

// WithDataDir 配置存储目录，为空时使用内存存储
func WithDataDir(dir string) Option {
	return func(o *options) error {
		o.dataDir = dir
		return nil
	}
}

// WithServer 覆盖指令站地址 host:port
func WithServer(addr string) Option {
	return func(o *options) error {
		o.server = addr
		return nil
	}
}

// WithSerialDevice 使用串口直连指令站（只支持 DCC-Ex）
func WithSerialDevice(dev string) Option {
	return func(o *options) error {
		o.serialDevice = dev
		return nil
	}
}

// WithMetricsAddr 开启 /metrics 导出
func WithMetricsAddr(addr string) Option {
	return func(o *options) error {
		o.metricsAddr = addr
		return nil
	}
}

// WithIntrospectAddr 开启 JSON 自省与 pprof 端点
func WithIntrospectAddr(addr string) Option {
	return func(o *options) error {
		o.introspect = addr
		return nil
	}
}

// WithConfigure 在加载配置后、校验前修改配置
func WithConfigure(fn func(*config.Config)) Option {
	return func(o *options) error {
		if fn == nil {
			return errors.New("app: nil configure func")
		}
		o.configure = append(o.configure, fn)
		return nil
	}
}

// WithClock 替换时钟（测试使用）
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		if clk == nil {
			return errors.New("app: nil clock")
		}
		o.clock = clk
		return nil
	}
}

// WithDialer 替换上游拨号器
func WithDialer(d interfaces.Dialer) Option {
	return func(o *options) error {
		o.dialer = d
		return nil
	}
}

// WithDisplay 替换状态显示，默认写日志和诊断队列
func WithDisplay(d interfaces.Display) Option {
	return func(o *options) error {
		o.display = d
		return nil
	}
}

// WithTimeouts 设置 fx 启动与停止超时
func WithTimeouts(start, stop time.Duration) Option {
	return func(o *options) error {
		if start <= 0 || stop <= 0 {
			return errors.New("app: timeouts must be positive")
		}
		o.startTimeout = start
		o.stopTimeout = stop
		return nil
	}
}

// WithFxOptions 追加用户 fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.userFxOptions = append(o.userFxOptions, opts...)
		return nil
	}
}
