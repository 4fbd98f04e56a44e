package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/internal/core/eventbus"
	"github.com/dep2p/go-minithrottle/internal/core/metrics"
	"github.com/dep2p/go-minithrottle/internal/core/state"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// ============================================================================
//                              fakeUpstream
// ============================================================================

type fakeUpstream struct {
	mu        sync.Mutex
	proto     types.Protocol
	connected bool
	clk       clock.Clock
	frames    []string
	times     []time.Time
	fail      map[string]error
}

func (u *fakeUpstream) Send(_ context.Context, frame string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.connected {
		return types.ErrNotConnected
	}
	if err := u.fail[frame]; err != nil {
		return err
	}
	u.frames = append(u.frames, frame)
	u.times = append(u.times, u.clk.Now())
	return nil
}

func (u *fakeUpstream) Protocol() types.Protocol {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.proto
}

func (u *fakeUpstream) Connected() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.connected
}

func (u *fakeUpstream) setConnected(on bool) {
	u.mu.Lock()
	u.connected = on
	u.mu.Unlock()
}

func (u *fakeUpstream) failOn(frame string, err error) {
	u.mu.Lock()
	if u.fail == nil {
		u.fail = make(map[string]error)
	}
	u.fail[frame] = err
	u.mu.Unlock()
}

func (u *fakeUpstream) sent() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.frames...)
}

func (u *fakeUpstream) sentAt() []time.Time {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]time.Time(nil), u.times...)
}

func (u *fakeUpstream) reset() {
	u.mu.Lock()
	u.frames = nil
	u.times = nil
	u.mu.Unlock()
}

// ============================================================================
//                              fakeFanout
// ============================================================================

type fakeFanout struct {
	mu           sync.Mutex
	proto        types.Protocol
	changes      []types.Change
	sent         map[int][]string
	bound        map[int]map[byte][]uint16
	disconnected []int
}

func newFakeFanout(proto types.Protocol) *fakeFanout {
	return &fakeFanout{
		proto: proto,
		sent:  make(map[int][]string),
		bound: make(map[int]map[byte][]uint16),
	}
}

func (f *fakeFanout) Active() bool             { return true }
func (f *fakeFanout) Protocol() types.Protocol { return f.proto }

func (f *fakeFanout) Publish(c types.Change) {
	f.mu.Lock()
	f.changes = append(f.changes, c)
	f.mu.Unlock()
}

func (f *fakeFanout) SendTo(slot int, frames ...string) {
	f.mu.Lock()
	f.sent[slot] = append(f.sent[slot], frames...)
	f.mu.Unlock()
}

func (f *fakeFanout) Bind(slot int, th byte, id uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bound[slot] == nil {
		f.bound[slot] = make(map[byte][]uint16)
	}
	f.bound[slot][th] = append(f.bound[slot][th], id)
}

func (f *fakeFanout) Unbind(slot int, th byte, id uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.bound[slot][th]
	for i, v := range ids {
		if v == id {
			f.bound[slot][th] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

func (f *fakeFanout) Bound(slot int, th byte) []uint16 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint16(nil), f.bound[slot][th]...)
}

func (f *fakeFanout) Disconnect(slot int) {
	f.mu.Lock()
	f.disconnected = append(f.disconnected, slot)
	f.mu.Unlock()
}

func (f *fakeFanout) sentTo(slot int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent[slot]...)
}

func (f *fakeFanout) published(kind types.ChangeKind) []types.Change {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Change
	for _, c := range f.changes {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeFanout) reset() {
	f.mu.Lock()
	f.changes = nil
	f.sent = make(map[int][]string)
	f.mu.Unlock()
}

// ============================================================================
//                              fakeClock（快钟）
// ============================================================================

type fakeFastClock struct {
	mu            sync.Mutex
	now           types.FastClockTime
	authoritative bool
}

func (c *fakeFastClock) Observe(t types.FastClockTime) { c.mu.Lock(); c.now = t; c.mu.Unlock() }
func (c *fakeFastClock) Set(t types.FastClockTime)     { c.mu.Lock(); c.now = t; c.mu.Unlock() }
func (c *fakeFastClock) Now() types.FastClockTime {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}
func (c *fakeFastClock) Authoritative() bool { return c.authoritative }

// ============================================================================
//                              测试装配
// ============================================================================

type harness struct {
	d      *Dispatcher
	up     *fakeUpstream
	fan    *fakeFanout
	clk    *clock.Mock
	cfg    *config.Config
	tables *state.Tables
}

func newHarness(t *testing.T, upstream, relay types.Protocol) *harness {
	t.Helper()
	cfg := config.NewConfig()
	switch relay {
	case types.ProtocolWiThrottle:
		cfg.Relay.Mode = types.RelayWiThrottle
	case types.ProtocolDCCEx:
		cfg.Relay.Mode = types.RelayDCCEx
	}
	cfg.Route.StepDelay = time.Second
	cfg.Route.AbortOnError = true

	mock := clock.NewMock()
	tables := state.NewTables(cfg)
	bus := eventbus.NewBus()
	t.Cleanup(bus.Close)

	d := New(cfg, tables, bus, metrics.New(), mock)
	up := &fakeUpstream{proto: upstream, connected: upstream != types.ProtocolUndefined, clk: mock}
	fan := newFakeFanout(relay)
	d.SetUpstream(up)
	d.SetFanout(fan)
	t.Cleanup(func() { _ = d.Stop(context.Background()) })

	return &harness{d: d, up: up, fan: fan, clk: mock, cfg: cfg, tables: tables}
}

func (h *harness) upstream(frames ...string) {
	for _, f := range frames {
		h.d.HandleFrame(context.Background(), types.UpstreamSource(), f)
	}
}

func (h *harness) client(slot int, frames ...string) {
	for _, f := range frames {
		h.d.HandleFrame(context.Background(), types.RelaySource(slot), f)
	}
}
