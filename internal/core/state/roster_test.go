package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-minithrottle/pkg/types"
)

func newTestRoster() *Roster {
	return NewRoster(RosterConfig{
		LockTimeout:  time.Second,
		MaxConsist:   2,
		LatchDefault: types.DefaultLatchMask,
		LeadDefault:  types.DefaultLeadOnlyMask,
	})
}

// ============================================================================
//                              基本读写
// ============================================================================

func TestRoster_EnsureAndGet(t *testing.T) {
	ctx := context.Background()
	r := newTestRoster()

	l, err := r.Ensure(ctx, 341, 0)
	require.NoError(t, err)
	assert.Equal(t, types.AddrLong, l.Kind)
	assert.Equal(t, int16(types.SpeedUnknown), l.Speed)

	_, err = r.Ensure(ctx, 3, types.AddrLong)
	require.NoError(t, err)

	got, ok, err := r.Get(ctx, 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "L3", got.Address())

	_, ok, err = r.Get(ctx, 999)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.Ensure(ctx, 20000, 0)
	assert.ErrorIs(t, err, types.ErrInvalidAddress)
}

func TestRoster_UpdateReportsChange(t *testing.T) {
	ctx := context.Background()
	r := newTestRoster()
	_, _ = r.Ensure(ctx, 3, 0)

	l, changed, err := r.Update(ctx, 3, func(l *types.Locomotive) { l.Speed = 40 })
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int16(40), l.Speed)

	_, changed, err = r.Update(ctx, 3, func(l *types.Locomotive) { l.Speed = 40 })
	require.NoError(t, err)
	assert.False(t, changed, "same value is not a change")

	l, _, err = r.Update(ctx, 3, func(l *types.Locomotive) { l.Speed = 500; l.Functions = 0xFFFFFFFF })
	require.NoError(t, err)
	assert.Equal(t, int16(types.MaxSpeed), l.Speed)
	assert.Equal(t, uint32(1<<30-1), l.Functions)

	_, _, err = r.Update(ctx, 77, func(*types.Locomotive) {})
	assert.ErrorIs(t, err, types.ErrUnknownLoco)
}

func TestRoster_Upsert(t *testing.T) {
	ctx := context.Background()
	r := newTestRoster()

	l, changed, err := r.Upsert(ctx, 12, func(l *types.Locomotive) { l.Speed = 0 })
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int16(0), l.Speed)

	_, changed, err = r.Upsert(ctx, 12, func(l *types.Locomotive) { l.Speed = 0 })
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestRoster_LoadKeepsOwnedLocos(t *testing.T) {
	ctx := context.Background()
	r := newTestRoster()

	_, err := r.Acquire(ctx, 5, 0)
	require.NoError(t, err)
	_, _ = r.Ensure(ctx, 6, 0)
	_, _, err = r.Upsert(ctx, 7, func(l *types.Locomotive) { l.Speed = 30 })
	require.NoError(t, err)

	labels, latch := types.ParseFunctionLabels("Light/*Horn")
	require.NoError(t, r.Load(ctx, []types.Locomotive{
		{ID: 100, Name: "Big Boy", Kind: types.AddrLong, FunctionLabels: labels, Latch: latch},
		{ID: 101, Name: "Shunter"},
		{ID: 100, Name: "dup"},
	}))

	list, err := r.List(ctx)
	require.NoError(t, err)
	ids := make([]uint16, 0, len(list))
	for _, l := range list {
		ids = append(ids, l.ID)
	}
	assert.Equal(t, []uint16{100, 101, 5, 6, 7}, ids, "locos outside the roster are kept")

	seven, ok, err := r.Get(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 30, seven.Speed)

	// 名册再次推送也不删除表项
	require.NoError(t, r.Load(ctx, []types.Locomotive{{ID: 3}, {ID: 4}}))
	n, err := r.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	require.NoError(t, r.Clear(ctx))
	n, err = r.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	big, _, _ := r.Get(ctx, 100)
	assert.Equal(t, "Big Boy", big.Name)
	assert.Equal(t, "Horn", big.Label(1))
	assert.False(t, big.Latches(1))
}

// ============================================================================
//                              占用
// ============================================================================

func TestRoster_AcquireStealRelease(t *testing.T) {
	ctx := context.Background()
	r := newTestRoster()

	l, err := r.Acquire(ctx, 3, 0)
	require.NoError(t, err)
	assert.True(t, l.Owned)
	assert.Equal(t, 0, l.Throttle)

	// 重复占用是幂等的
	_, err = r.Acquire(ctx, 3, 0)
	require.NoError(t, err)

	l, err = r.Acquire(ctx, 3, 1)
	assert.ErrorIs(t, err, types.ErrStealPending)
	assert.True(t, l.Steal)
	assert.Equal(t, 1, l.StealBy)
	assert.Equal(t, 0, l.Throttle, "owner unchanged until steal confirmed")

	l, err = r.ConfirmSteal(ctx, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, l.Throttle)
	assert.False(t, l.Steal)

	_, err = r.Release(ctx, 3, 0)
	assert.ErrorIs(t, err, types.ErrNotOwned)

	l, err = r.Release(ctx, 3, 1)
	require.NoError(t, err)
	assert.False(t, l.Owned)
	assert.Equal(t, types.NoThrottle, l.Throttle)
}

func TestRoster_ConsistFull(t *testing.T) {
	ctx := context.Background()
	r := newTestRoster()

	_, err := r.Acquire(ctx, 1, 0)
	require.NoError(t, err)
	_, err = r.Acquire(ctx, 2, 0)
	require.NoError(t, err)
	_, err = r.Acquire(ctx, 3, 0)
	assert.ErrorIs(t, err, types.ErrConsistFull)

	owned, err := r.OwnedBy(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, owned, 2)
}

func TestRoster_AtMostOneOwner(t *testing.T) {
	ctx := context.Background()
	r := NewRoster(RosterConfig{LockTimeout: time.Second, MaxConsist: 8})

	var wg sync.WaitGroup
	winners := make(chan int, 16)
	for th := 0; th < 16; th++ {
		wg.Add(1)
		go func(th int) {
			defer wg.Done()
			if _, err := r.Acquire(ctx, 42, th); err == nil {
				winners <- th
			}
		}(th)
	}
	wg.Wait()
	close(winners)

	var got []int
	for th := range winners {
		got = append(got, th)
	}
	require.Len(t, got, 1)

	l, _, _ := r.Get(ctx, 42)
	assert.Equal(t, got[0], l.Throttle)
}

func TestRoster_ReleaseSlot(t *testing.T) {
	ctx := context.Background()
	r := newTestRoster()

	for _, id := range []uint16{1, 2, 3} {
		slot := 0
		if id == 2 {
			slot = 1
		}
		_, _, err := r.Upsert(ctx, id, func(l *types.Locomotive) { l.RelaySlot = slot })
		require.NoError(t, err)
	}

	released, err := r.ReleaseSlot(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, released, 2)

	l, _, _ := r.Get(ctx, 2)
	assert.Equal(t, 1, l.RelaySlot)
}

func TestRoster_ResetAndClear(t *testing.T) {
	ctx := context.Background()
	r := newTestRoster()

	_, err := r.Acquire(ctx, 3, 0)
	require.NoError(t, err)
	_, _, _ = r.Update(ctx, 3, func(l *types.Locomotive) { l.Speed = 20; l.Functions = 1 })

	require.NoError(t, r.Reset(ctx))
	l, ok, _ := r.Get(ctx, 3)
	require.True(t, ok)
	assert.False(t, l.Owned)
	assert.Equal(t, int16(types.SpeedUnknown), l.Speed)
	assert.Zero(t, l.Functions)

	require.NoError(t, r.Clear(ctx))
	n, _ := r.Len(ctx)
	assert.Zero(t, n)
}

// ============================================================================
//                              最后写入者胜出
// ============================================================================

func TestRoster_LastWriterWins(t *testing.T) {
	ctx := context.Background()
	r := newTestRoster()
	_, _ = r.Ensure(ctx, 3, 0)

	// 两个写者各自写入递增序列，最终值必须是某个写者的最后一次写入
	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func(base int16) {
			defer wg.Done()
			for i := int16(0); i < 50; i++ {
				v := base + i
				_, _, err := r.Update(ctx, 3, func(l *types.Locomotive) { l.Speed = v })
				assert.NoError(t, err)
			}
		}(int16(w * 60))
	}
	wg.Wait()

	l, _, _ := r.Get(ctx, 3)
	assert.Contains(t, []int16{49, 109}, l.Speed)
}
