package state

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-minithrottle/pkg/types"
)

func TestTurnouts_DefineAndSetState(t *testing.T) {
	ctx := context.Background()
	to := NewTurnouts(time.Second)

	changed, err := to.Define(ctx, types.Turnout{SysName: "LT12", UserName: "Yard East"})
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = to.Define(ctx, types.Turnout{SysName: "LT12", UserName: "Yard East"})
	require.NoError(t, err)
	assert.False(t, changed)

	got, ok, err := to.Get(ctx, "LT12")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.TurnoutUnknown, got.State)

	got, changed, err = to.SetState(ctx, "LT12", types.TurnoutThrown)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, types.TurnoutThrown, got.State)

	_, changed, err = to.SetState(ctx, "LT12", types.TurnoutThrown)
	require.NoError(t, err)
	assert.False(t, changed)

	_, _, err = to.SetState(ctx, "LT99", types.TurnoutThrown)
	assert.ErrorIs(t, err, types.ErrUnknownTurnout)

	_, _, err = to.SetState(ctx, "LT12", types.TurnoutState(3))
	assert.ErrorIs(t, err, types.ErrInvalidTurnoutState)

	found, ok, err := to.Find(ctx, "Yard East")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "LT12", found.SysName)
}

func TestTurnouts_RemoveClearLabels(t *testing.T) {
	ctx := context.Background()
	to := NewTurnouts(time.Second)

	require.NoError(t, to.DefineAll(ctx, []types.Turnout{
		{SysName: "1"}, {SysName: "2"}, {SysName: ""}, {SysName: "3", State: types.TurnoutClosed},
	}))
	list, _ := to.List(ctx)
	require.Len(t, list, 3)
	assert.Equal(t, "1", list[0].UserName, "user name defaults to system name")

	removed, err := to.Remove(ctx, "2")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, _ = to.Remove(ctx, "2")
	assert.False(t, removed)

	require.NoError(t, to.SetLabels(ctx, map[types.TurnoutState]string{types.TurnoutThrown: "Diverging"}))
	labels, _ := to.Labels(ctx)
	assert.Equal(t, "Diverging", labels[types.TurnoutThrown])
	assert.Equal(t, "Closed", labels[types.TurnoutClosed])

	require.NoError(t, to.Clear(ctx))
	list, _ = to.List(ctx)
	assert.Empty(t, list)
}

func TestRoutes_TooManySteps(t *testing.T) {
	ctx := context.Background()
	r := NewRoutes(time.Second)

	steps := make([]types.RouteStep, types.MaxRouteSteps+1)
	for i := range steps {
		steps[i] = types.RouteStep{Turnout: fmt.Sprint(i), State: types.TurnoutClosed}
	}

	err := r.Define(ctx, types.Route{SysName: "big", Steps: steps})
	assert.ErrorIs(t, err, types.ErrTooManySteps)

	require.NoError(t, r.Define(ctx, types.Route{SysName: "ok", Steps: steps[:types.MaxRouteSteps]}))

	err = r.Define(ctx, types.Route{SysName: "bad", Steps: []types.RouteStep{{Turnout: "1", State: types.TurnoutUnknown}}})
	assert.ErrorIs(t, err, types.ErrInvalidTurnoutState)
}

func TestRoutes_StateAndLookup(t *testing.T) {
	ctx := context.Background()
	r := NewRoutes(time.Second)

	require.NoError(t, r.Define(ctx, types.Route{SysName: "IR1", UserName: "Main to Yard"}))

	rt, changed, err := r.SetState(ctx, "IR1", types.RouteConfirmed)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, types.RouteConfirmed, rt.State)
	assert.False(t, rt.Local())

	_, _, err = r.SetState(ctx, "nope", types.RouteIdle)
	assert.ErrorIs(t, err, types.ErrUnknownRoute)

	found, ok, err := r.Find(ctx, "Main to Yard")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "IR1", found.SysName)

	removed, err := r.Remove(ctx, "IR1")
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestRoutes_ReplaceUpstreamSkipsInvalid(t *testing.T) {
	ctx := context.Background()
	r := NewRoutes(time.Second)

	require.NoError(t, r.ReplaceUpstream(ctx, []types.Route{
		{SysName: "a"},
		{SysName: ""},
		{SysName: "b", Steps: make([]types.RouteStep, types.MaxRouteSteps+1)},
	}))
	list, _ := r.List(ctx)
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].SysName)
}

func TestRoutes_ReplaceUpstreamKeepsLocal(t *testing.T) {
	ctx := context.Background()
	r := NewRoutes(time.Second)
	yard := types.Route{SysName: "yard", Steps: []types.RouteStep{{Turnout: "1", State: types.TurnoutThrown}}}

	require.NoError(t, r.ReplaceUpstream(ctx, []types.Route{{SysName: "old"}}))
	require.NoError(t, r.Define(ctx, yard))
	require.NoError(t, r.ReplaceUpstream(ctx, []types.Route{{SysName: "new"}, {SysName: "yard"}}))

	list, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "new", list[0].SysName)
	assert.Equal(t, "yard", list[1].SysName)
	assert.True(t, list[1].Local(), "local definition wins over an upstream route of the same name")
}

func TestRoutes_ReplaceUpstreamConcurrentDefine(t *testing.T) {
	ctx := context.Background()
	r := NewRoutes(2 * time.Second)
	upstream := []types.Route{{SysName: "IR1"}, {SysName: "IR2"}}

	const locals = 50
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < locals; i++ {
			assert.NoError(t, r.ReplaceUpstream(ctx, upstream))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < locals; i++ {
			assert.NoError(t, r.Define(ctx, types.Route{
				SysName: fmt.Sprintf("local-%d", i),
				Steps:   []types.RouteStep{{Turnout: "1", State: types.TurnoutClosed}},
			}))
		}
	}()
	wg.Wait()

	list, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, len(upstream)+locals, "no local route is lost to a concurrent upstream list")
}

func TestTables_TurnoutInvalidatesRoute(t *testing.T) {
	ctx := context.Background()
	tb := newTestTables(2)

	require.NoError(t, tb.Turnouts.DefineAll(ctx, []types.Turnout{
		{SysName: "A", State: types.TurnoutThrown},
		{SysName: "B", State: types.TurnoutClosed},
	}))
	require.NoError(t, tb.Routes.Define(ctx, types.Route{
		SysName: "R1",
		Steps: []types.RouteStep{
			{Turnout: "A", State: types.TurnoutThrown},
			{Turnout: "B", State: types.TurnoutClosed},
		},
	}))

	ok, err := tb.RouteSatisfied(ctx, "R1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, err = tb.Routes.SetState(ctx, "R1", types.RouteConfirmed)
	require.NoError(t, err)

	// 不相关的状态变化不影响进路
	_, changed, affected, err := tb.ApplyTurnoutState(ctx, "A", types.TurnoutThrown)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, affected)

	_, changed, affected, err = tb.ApplyTurnoutState(ctx, "B", types.TurnoutThrown)
	require.NoError(t, err)
	assert.True(t, changed)
	require.Len(t, affected, 1)
	assert.Equal(t, types.RouteIdle, affected[0].State)

	rt, _, _ := tb.Routes.Get(ctx, "R1")
	assert.Equal(t, types.RouteIdle, rt.State)

	ok, err = tb.RouteSatisfied(ctx, "R1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = tb.RouteSatisfied(ctx, "nope")
	assert.ErrorIs(t, err, types.ErrUnknownRoute)
}

func TestRoutes_BeginRefusesBusy(t *testing.T) {
	ctx := context.Background()
	r := NewRoutes(time.Second)
	require.NoError(t, r.Define(ctx, types.Route{
		SysName: "IR1",
		Steps:   []types.RouteStep{{Turnout: "LT1", State: types.TurnoutThrown}},
	}))

	rt, err := r.Begin(ctx, "IR1")
	require.NoError(t, err)
	assert.Equal(t, types.RouteInProgress, rt.State)

	_, err = r.Begin(ctx, "IR1")
	assert.ErrorIs(t, err, types.ErrRouteBusy)

	_, _, err = r.SetState(ctx, "IR1", types.RouteConfirmed)
	require.NoError(t, err)
	_, err = r.Begin(ctx, "IR1")
	assert.NoError(t, err)

	_, err = r.Begin(ctx, "IR9")
	assert.ErrorIs(t, err, types.ErrUnknownRoute)
}
