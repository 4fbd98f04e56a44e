package config

import (
	"fmt"
	"strings"

	"github.com/dep2p/go-minithrottle/pkg/types"
)

// ValidationError 配置校验错误
type ValidationError struct {
	Field   string
	Message string

	// Conflict 为 true 表示启动冲突（errors.Is(err, ErrStartupConflict) 成立）
	Conflict bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("配置错误 [%s]: %s", e.Field, e.Message)
}

// ValidationErrors 多个配置校验错误
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}

	msgs := make([]string, 0, len(e))
	for i := range e {
		msgs = append(msgs, e[i].Error())
	}
	return strings.Join(msgs, "; ")
}

// Is 支持 errors.Is(err, ErrStartupConflict)
func (e ValidationErrors) Is(target error) bool {
	if target != ErrStartupConflict {
		return false
	}
	for i := range e {
		if e[i].Conflict {
			return true
		}
	}
	return false
}

// HasErrors 是否有错误
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator 配置校验器
type Validator struct {
	errors ValidationErrors
}

// NewValidator 创建校验器
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

func (v *Validator) addConflict(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message, Conflict: true})
}

// Errors 返回所有错误
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

// Validate 校验配置
func (c *Config) Validate() error {
	return Validate(c)
}

// Validate 校验配置
func Validate(config *Config) error {
	v := NewValidator()

	if strings.TrimSpace(config.Name) == "" {
		v.addError("name", "不能为空")
	}

	v.validateUpstream(&config.Upstream)
	v.validateRelay(&config.Relay)
	v.validateDiag(&config.Diag)
	v.validateKeepalive(&config.Keepalive)
	v.validateFastClock(&config.FastClock)
	v.validateRoute(&config.Route)
	v.validateThrottle(&config.Throttle)
	v.validateLog(&config.Log)
	v.validateConflicts(config)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

func (v *Validator) validateUpstream(cfg *UpstreamConfig) {
	switch cfg.Transport {
	case TransportTCP:
	case TransportSerial:
		if cfg.SerialDevice == "" {
			v.addError("upstream.serial_device", "串口模式必须指定设备")
		}
		if cfg.BaudRate <= 0 {
			v.addError("upstream.baud_rate", "必须为正数")
		}
	default:
		v.addError("upstream.transport", fmt.Sprintf("未知链路类型 %q", cfg.Transport))
	}

	if cfg.PreferredProtocol != types.ProtocolWiThrottle && cfg.PreferredProtocol != types.ProtocolDCCEx {
		v.addError("upstream.preferred_protocol", "必须为 WiThrottle 或 DCC-Ex")
	}
	if cfg.DetectWindow <= 0 {
		v.addError("upstream.detect_window", "必须为正数")
	}
	if cfg.Backoff.Initial <= 0 {
		v.addError("upstream.backoff.initial", "必须为正数")
	}
	if cfg.Backoff.Max < cfg.Backoff.Initial {
		v.addError("upstream.backoff.max", "不能小于 initial")
	}
	if cfg.Backoff.Multiplier < 1 {
		v.addError("upstream.backoff.multiplier", "不能小于 1")
	}
	if cfg.WriteRate <= 0 || cfg.WriteBurst <= 0 {
		v.addError("upstream.write_rate", "速率与突发必须为正数")
	}
}

func (v *Validator) validateRelay(cfg *RelayConfig) {
	if !cfg.Enabled() {
		return
	}
	if cfg.Mode != types.RelayWiThrottle && cfg.Mode != types.RelayDCCEx {
		v.addError("relay.mode", "未知中继模式")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		v.addError("relay.port", "端口越界")
	}
	if cfg.MaxClients < 1 {
		v.addError("relay.max_clients", "至少为 1")
	}
	if cfg.MaxClients > AbsoluteMaxRelay {
		v.addConflict("relay.max_clients", fmt.Sprintf("超过绝对上限 %d", AbsoluteMaxRelay))
	}
	if cfg.KeepAlive < 1 {
		v.addError("relay.keepalive", "至少为 1 秒")
	}
	if cfg.OutQueue < 1 {
		v.addError("relay.out_queue", "至少为 1")
	}
	if cfg.InRate <= 0 || cfg.InBurst < 1 {
		v.addError("relay.in_rate", "速率与突发必须为正数")
	}
}

func (v *Validator) validateDiag(cfg *DiagConfig) {
	if !cfg.Enabled {
		return
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		v.addError("diag.port", "端口越界")
	}
	if cfg.MaxSessions < 1 {
		v.addError("diag.max_sessions", "至少为 1")
	}
	if cfg.QueueSize < 1 {
		v.addError("diag.queue_size", "至少为 1")
	}
}

func (v *Validator) validateKeepalive(cfg *KeepaliveConfig) {
	if cfg.Interval <= 0 {
		v.addError("keepalive.interval", "必须为正数")
	}
	if cfg.Margin < 0 {
		v.addError("keepalive.margin", "不能为负数")
	}
	if cfg.CheckInterval <= 0 {
		v.addError("keepalive.check_interval", "必须为正数")
	}
}

func (v *Validator) validateFastClock(cfg *FastClockConfig) {
	if cfg.Hour < 0 || cfg.Hour > 23 {
		v.addError("fastclock.hour", "取值 0..23")
	}
	if cfg.Minute < 0 || cfg.Minute > 59 {
		v.addError("fastclock.minute", "取值 0..59")
	}
	if cfg.Rate < 0 || cfg.Rate > MaxFastClockRate {
		v.addError("fastclock.rate", fmt.Sprintf("取值 0..%d", MaxFastClockRate))
	}
	if cfg.BroadcastInterval <= 0 {
		v.addError("fastclock.broadcast_interval", "必须为正数")
	}
}

func (v *Validator) validateRoute(cfg *RouteConfig) {
	if cfg.StepDelay < 0 {
		v.addError("route.step_delay", "不能为负数")
	}
}

func (v *Validator) validateThrottle(cfg *ThrottleConfig) {
	if cfg.Count < 1 || cfg.Count > 26 {
		v.addError("throttle.count", "取值 1..26")
	}
	if cfg.MaxConsist < 1 || cfg.MaxConsist > MaxConsistSize {
		v.addError("throttle.max_consist", fmt.Sprintf("取值 1..%d", MaxConsistSize))
	}
	if cfg.LockTimeout <= 0 {
		v.addError("throttle.lock_timeout", "必须为正数")
	}
	if cfg.LatchDefault >= 1<<types.MaxFunctions || cfg.LeadDefault >= 1<<types.MaxFunctions {
		v.addError("throttle.latch_default", "超出功能位数")
	}
}

func (v *Validator) validateLog(cfg *LogConfig) {
	if cfg.DebugLevel < 0 || cfg.DebugLevel > 3 {
		v.addError("log.debug_level", "取值 0..3")
	}
}

// validateConflicts 检查跨组件的启动冲突
func (v *Validator) validateConflicts(c *Config) {
	if c.Relay.Enabled() && c.Diag.Enabled && c.Relay.ListenPort() == c.Diag.Port {
		v.addConflict("relay.port", fmt.Sprintf("与诊断端口 %d 冲突", c.Diag.Port))
	}
	if c.Upstream.Transport == TransportTCP && c.Upstream.Address == "" && !c.Upstream.MDNS {
		v.addConflict("upstream.address", "未指定地址且 mDNS 已禁用，无法找到指令站")
	}
	if c.Upstream.Transport == TransportSerial && c.Upstream.PreferredProtocol == types.ProtocolWiThrottle {
		v.addConflict("upstream.preferred_protocol", "串口链路只支持 DCC-Ex")
	}
}
