package dispatch

import (
	"context"
	"fmt"

	"github.com/dep2p/go-minithrottle/internal/core/protocol/dccex"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// ============================================================================
//                              编程轨
// ============================================================================

// ReadCV 读编程轨机车的 CV
func (d *Dispatcher) ReadCV(ctx context.Context, cv int) (int, error) {
	if cv < 1 || cv > 1024 {
		return 0, fmt.Errorf("%w: cv %d", types.ErrMalformedFrame, cv)
	}
	res, err := d.cvRequest(ctx, dccex.ReadCV(cv))
	return res.Value, err
}

// WriteCV 写编程轨机车的 CV
func (d *Dispatcher) WriteCV(ctx context.Context, cv, value int) error {
	if cv < 1 || cv > 1024 || value < 0 || value > 255 {
		return fmt.Errorf("%w: cv %d=%d", types.ErrMalformedFrame, cv, value)
	}
	_, err := d.cvRequest(ctx, dccex.WriteCV(cv, value))
	return err
}

// ReadAddress 读编程轨机车的地址
func (d *Dispatcher) ReadAddress(ctx context.Context) (int, error) {
	res, err := d.cvRequest(ctx, dccex.ReadAddress())
	return res.Value, err
}

// cvRequest 发送 CV 请求并在 cvTimeout 内等待应答
//
// 同一时刻只允许一个请求在途，应答经 CV 队列送回。
func (d *Dispatcher) cvRequest(ctx context.Context, frame string) (types.CVResult, error) {
	if d.UpstreamProtocol() != types.ProtocolDCCEx {
		return types.CVResult{Value: -1}, fmt.Errorf("%w: cv access needs a DCC-Ex command station", types.ErrUnsupported)
	}
	if !d.cvPending.CompareAndSwap(false, true) {
		return types.CVResult{Value: -1}, ErrCVBusy
	}
	d.cvSeq.Add(1)
	d.cvOwner.Store(types.NoSlot)
	d.bus.CV.Drain()

	if err := d.sendUpstream(ctx, frame); err != nil {
		d.cvPending.Store(false)
		return types.CVResult{Value: -1}, err
	}

	res, ok, err := d.bus.CV.Receive(ctx, d.cvTimeout)
	if !ok {
		d.cvPending.Store(false)
		if err != nil {
			return types.CVResult{Value: -1}, err
		}
		return types.CVResult{Value: -1}, ErrCVTimeout
	}
	if !res.OK() {
		return res, ErrCVFailed
	}
	return res, nil
}

// relayCV 转发 DCC-Ex 中继客户端的 CV 请求，应答直接回给该客户端
func (d *Dispatcher) relayCV(ctx context.Context, slot int, frame string) error {
	if d.UpstreamProtocol() != types.ProtocolDCCEx {
		d.reply(slot, dccex.Fail())
		return nil
	}
	if !d.cvPending.CompareAndSwap(false, true) {
		d.reply(slot, dccex.Fail())
		return nil
	}
	seq := d.cvSeq.Add(1)
	d.cvOwner.Store(int32(slot))
	if err := d.sendUpstream(ctx, frame); err != nil {
		d.cvPending.Store(false)
		d.cvOwner.Store(types.NoSlot)
		return d.replyError(slot, err)
	}

	// 指令站始终无应答时释放占位
	d.clock.AfterFunc(d.cvTimeout, func() {
		if d.cvSeq.Load() == seq && d.cvPending.CompareAndSwap(true, false) {
			d.deliverCV(types.CVResult{Value: -1})
		}
	})
	return nil
}

// deliverCV 把 CV 应答交给发起方
func (d *Dispatcher) deliverCV(res types.CVResult) {
	owner := int(d.cvOwner.Swap(types.NoSlot))
	if owner != types.NoSlot {
		if res.OK() {
			d.reply(owner, dccex.CVReply(res))
		} else {
			d.reply(owner, dccex.Fail())
		}
		return
	}
	d.bus.CV.Emit(res)
}
