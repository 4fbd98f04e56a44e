package app

import (
	"context"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/internal/core/connmgr"
	"github.com/dep2p/go-minithrottle/internal/core/diag"
	"github.com/dep2p/go-minithrottle/internal/core/dispatch"
	"github.com/dep2p/go-minithrottle/internal/core/eventbus"
	"github.com/dep2p/go-minithrottle/internal/core/fastclock"
	"github.com/dep2p/go-minithrottle/internal/core/introspect"
	"github.com/dep2p/go-minithrottle/internal/core/liveness"
	"github.com/dep2p/go-minithrottle/internal/core/metrics"
	"github.com/dep2p/go-minithrottle/internal/core/relay"
	"github.com/dep2p/go-minithrottle/internal/core/state"
	"github.com/dep2p/go-minithrottle/pkg/interfaces"
)

// Runtime 表示一个已通过 fx 组装完成的网关运行时。
//
// Relay、Diag 和 Introspect 在对应功能未启用时为 nil。
type Runtime struct {
	Config     *config.Config
	Store      interfaces.ConfigStore
	Bus        *eventbus.Bus
	Tables     *state.Tables
	Metrics    *metrics.Metrics
	Dispatcher *dispatch.Dispatcher
	Manager    *connmgr.Manager
	Liveness   *liveness.Service
	FastClock  *fastclock.Service
	Relay      *relay.Server
	Diag       *diag.Server
	Introspect *introspect.Server
	Display    interfaces.Display

	stop func(ctx context.Context) error
}

// Stop 停止运行时（触发 fx 生命周期 OnStop）。
func (r *Runtime) Stop(ctx context.Context) error {
	if r.stop == nil {
		return nil
	}
	return r.stop(ctx)
}
