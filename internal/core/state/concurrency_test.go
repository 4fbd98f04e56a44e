package state

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

func newTestTables(maxRelay int) *Tables {
	cfg := config.NewConfig()
	cfg.Relay.Mode = types.RelayWiThrottle
	cfg.Relay.MaxClients = maxRelay
	cfg.Throttle.LockTimeout = 2 * time.Second
	return NewTables(cfg)
}

func TestNewTables_RelayDisabled(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Relay.Mode = types.NoRelay
	tb := NewTables(cfg)
	assert.Zero(t, tb.Relay.Capacity())
}

func TestTables_ResetSession(t *testing.T) {
	ctx := context.Background()
	tb := newTestTables(2)

	_, _ = tb.Roster.Ensure(ctx, 3, 0)
	_, _ = tb.Turnouts.Define(ctx, types.Turnout{SysName: "LT1"})
	require.NoError(t, tb.Routes.Define(ctx, types.Route{SysName: "IR1"}))
	_, err := tb.Relay.Allocate(ctx, "c", types.ProtocolWiThrottle, time.Now())
	require.NoError(t, err)

	require.NoError(t, tb.ResetSession(ctx))

	snap, err := tb.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Locos)
	assert.Empty(t, snap.Turnouts)
	assert.Empty(t, snap.Routes)
	assert.Len(t, snap.Relay, 1, "relay connections survive an upstream session reset")
	assert.Equal(t, "Thrown", snap.Labels[types.TurnoutThrown])
}

// ============================================================================
//                              并发
// ============================================================================

func TestTables_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	tb := newTestTables(4)

	turnouts := make([]types.Turnout, 8)
	for i := range turnouts {
		turnouts[i] = types.Turnout{SysName: fmt.Sprintf("LT%d", i), State: types.TurnoutClosed}
	}
	require.NoError(t, tb.Turnouts.DefineAll(ctx, turnouts))
	require.NoError(t, tb.Routes.Define(ctx, types.Route{
		SysName: "R",
		Steps:   []types.RouteStep{{Turnout: "LT0", State: types.TurnoutThrown}},
	}))

	var wg sync.WaitGroup
	errs := make(chan error, 1024)
	run := func(fn func(i int) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if err := fn(i); err != nil {
					errs <- err
				}
			}
		}()
	}

	run(func(i int) error {
		st := types.TurnoutClosed
		if i%2 == 0 {
			st = types.TurnoutThrown
		}
		_, _, _, err := tb.ApplyTurnoutState(ctx, fmt.Sprintf("LT%d", i%8), st)
		return err
	})
	run(func(i int) error {
		_, _, err := tb.Routes.SetState(ctx, "R", types.RouteConfirmed)
		return err
	})
	run(func(i int) error {
		_, _, err := tb.Roster.Upsert(ctx, uint16(i%10+1), func(l *types.Locomotive) { l.Speed = int16(i) })
		return err
	})
	run(func(i int) error {
		_, err := tb.Snapshot(ctx)
		return err
	})
	run(func(i int) error {
		_, err := tb.RouteSatisfied(ctx, "R")
		return err
	})

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}

	// 收尾：道岔与进路保持一致
	_, _, _, err := tb.ApplyTurnoutState(ctx, "LT0", types.TurnoutThrown)
	require.NoError(t, err)
	_, _, err = tb.Routes.SetState(ctx, "R", types.RouteConfirmed)
	require.NoError(t, err)
	_, _, _, err = tb.ApplyTurnoutState(ctx, "LT0", types.TurnoutClosed)
	require.NoError(t, err)
	rt, _, _ := tb.Routes.Get(ctx, "R")
	assert.NotEqual(t, types.RouteConfirmed, rt.State)
}

func TestTables_LockTimeoutSurfaces(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Throttle.LockTimeout = 20 * time.Millisecond
	tb := NewTables(cfg)

	require.NoError(t, tb.Routes.Guard().Acquire(context.Background()))
	defer tb.Routes.Guard().Release()

	_, _, _, err := tb.ApplyTurnoutState(context.Background(), "LT1", types.TurnoutThrown)
	assert.ErrorIs(t, err, types.ErrLockTimeout)

	// 单表操作不受影响
	_, err = tb.Roster.Ensure(context.Background(), 3, 0)
	assert.NoError(t, err)
}
