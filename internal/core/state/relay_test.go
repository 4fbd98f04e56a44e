package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-minithrottle/pkg/types"
)

func TestRelayTable_AllocateLowestFree(t *testing.T) {
	ctx := context.Background()
	tb := NewRelayTable(3, time.Second)
	now := time.Unix(1000, 0)

	for want := 0; want < 3; want++ {
		c, err := tb.Allocate(ctx, "10.0.0.1:5000", types.ProtocolWiThrottle, now)
		require.NoError(t, err)
		assert.Equal(t, want, c.Slot)
		assert.NotEmpty(t, c.SessionID)
	}

	_, err := tb.Allocate(ctx, "10.0.0.9:5000", types.ProtocolWiThrottle, now)
	assert.ErrorIs(t, err, types.ErrPoolFull)

	// 释放中间槽位，其余不受影响，新连接复用该槽位
	require.NoError(t, tb.Release(ctx, 1))
	snap, _ := tb.Snapshot(ctx)
	require.Len(t, snap, 2)
	assert.Equal(t, 0, snap[0].Slot)
	assert.Equal(t, 2, snap[1].Slot)

	c, err := tb.Allocate(ctx, "10.0.0.4:5000", types.ProtocolWiThrottle, now)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Slot)

	n, _ := tb.Count(ctx)
	hw, _ := tb.HighWater(ctx)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, hw)

	assert.ErrorIs(t, tb.Release(ctx, 7), types.ErrUnknownSlot)
}

func TestRelayTable_TouchAndExpire(t *testing.T) {
	ctx := context.Background()
	tb := NewRelayTable(2, time.Second)
	t0 := time.Unix(1000, 0)

	a, _ := tb.Allocate(ctx, "a", types.ProtocolDCCEx, t0)
	b, _ := tb.Allocate(ctx, "b", types.ProtocolDCCEx, t0)

	require.NoError(t, tb.Touch(ctx, a.Slot, 1, 2, t0.Add(8*time.Second)))
	require.NoError(t, tb.SetNodeName(ctx, b.Slot, "Engine Driver"))

	expired, err := tb.Expired(ctx, t0.Add(12*time.Second), 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []int{b.Slot}, expired)

	got, err := tb.Get(ctx, a.Slot)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.InFrames)
	assert.Equal(t, uint64(2), got.OutFrames)

	got, _ = tb.Get(ctx, b.Slot)
	assert.Equal(t, "Engine Driver", got.NodeName)

	assert.ErrorIs(t, tb.Touch(ctx, 5, 1, 0, t0), types.ErrUnknownSlot)
}

func TestRelayTable_ZeroCapacity(t *testing.T) {
	tb := NewRelayTable(0, time.Second)
	_, err := tb.Allocate(context.Background(), "x", types.ProtocolWiThrottle, time.Now())
	assert.ErrorIs(t, err, types.ErrPoolFull)
}
