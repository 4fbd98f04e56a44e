package state

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dep2p/go-minithrottle/pkg/types"
)

// RelayTable 中继连接槽位池
//
// 槽位按最小空闲编号分配，只有在 Release 完成后才会被复用。
type RelayTable struct {
	guard *Guard

	slots     []*types.RelayConnection
	count     int
	highWater int
}

// NewRelayTable 创建槽位池
func NewRelayTable(max int, lockTimeout time.Duration) *RelayTable {
	if max < 0 {
		max = 0
	}
	return &RelayTable{
		guard: NewGuard(RankRelay, lockTimeout),
		slots: make([]*types.RelayConnection, max),
	}
}

// Guard 返回 relay 锁
func (t *RelayTable) Guard() *Guard { return t.guard }

// Capacity 槽位总数
func (t *RelayTable) Capacity() int { return len(t.slots) }

// Allocate 分配槽位，池满时返回 ErrPoolFull
func (t *RelayTable) Allocate(ctx context.Context, remote string, proto types.Protocol, now time.Time) (types.RelayConnection, error) {
	var (
		out  types.RelayConnection
		fail error
	)
	err := t.guard.Do(ctx, func() {
		for i, c := range t.slots {
			if c != nil {
				continue
			}
			conn := &types.RelayConnection{
				Slot:         i,
				SessionID:    uuid.NewString(),
				RemoteAddr:   remote,
				Protocol:     proto,
				ConnectedAt:  now,
				LastActivity: now,
			}
			t.slots[i] = conn
			t.count++
			if t.count > t.highWater {
				t.highWater = t.count
			}
			out = *conn
			return
		}
		fail = types.ErrPoolFull
	})
	if err != nil {
		return types.RelayConnection{}, err
	}
	return out, fail
}

func (t *RelayTable) slotLocked(slot int) (*types.RelayConnection, error) {
	if slot < 0 || slot >= len(t.slots) || t.slots[slot] == nil {
		return nil, fmt.Errorf("%w: %d", types.ErrUnknownSlot, slot)
	}
	return t.slots[slot], nil
}

// Release 归还槽位
func (t *RelayTable) Release(ctx context.Context, slot int) error {
	var fail error
	err := t.guard.Do(ctx, func() {
		if _, fail = t.slotLocked(slot); fail != nil {
			return
		}
		t.slots[slot] = nil
		t.count--
	})
	if err != nil {
		return err
	}
	return fail
}

// Touch 记录收发活动
func (t *RelayTable) Touch(ctx context.Context, slot int, in, out int, now time.Time) error {
	var fail error
	err := t.guard.Do(ctx, func() {
		var c *types.RelayConnection
		if c, fail = t.slotLocked(slot); fail != nil {
			return
		}
		c.InFrames += uint64(in)
		c.OutFrames += uint64(out)
		c.LastActivity = now
	})
	if err != nil {
		return err
	}
	return fail
}

// SetNodeName 记录客户端自报名称
func (t *RelayTable) SetNodeName(ctx context.Context, slot int, name string) error {
	var fail error
	err := t.guard.Do(ctx, func() {
		var c *types.RelayConnection
		if c, fail = t.slotLocked(slot); fail != nil {
			return
		}
		c.NodeName = name
	})
	if err != nil {
		return err
	}
	return fail
}

// Get 返回槽位记录
func (t *RelayTable) Get(ctx context.Context, slot int) (types.RelayConnection, error) {
	var (
		out  types.RelayConnection
		fail error
	)
	err := t.guard.Do(ctx, func() {
		var c *types.RelayConnection
		if c, fail = t.slotLocked(slot); fail == nil {
			out = *c
		}
	})
	if err != nil {
		return types.RelayConnection{}, err
	}
	return out, fail
}

// Snapshot 返回所有占用槽位
func (t *RelayTable) Snapshot(ctx context.Context) ([]types.RelayConnection, error) {
	var out []types.RelayConnection
	err := t.guard.Do(ctx, func() {
		out = t.snapshotLocked()
	})
	return out, err
}

func (t *RelayTable) snapshotLocked() []types.RelayConnection {
	out := make([]types.RelayConnection, 0, t.count)
	for _, c := range t.slots {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out
}

// Expired 返回静默超过 timeout 的槽位
func (t *RelayTable) Expired(ctx context.Context, now time.Time, timeout time.Duration) ([]int, error) {
	var out []int
	err := t.guard.Do(ctx, func() {
		for _, c := range t.slots {
			if c != nil && c.Idle(now) > timeout {
				out = append(out, c.Slot)
			}
		}
	})
	return out, err
}

// Count 当前占用数
func (t *RelayTable) Count(ctx context.Context) (int, error) {
	var n int
	err := t.guard.Do(ctx, func() { n = t.count })
	return n, err
}

// HighWater 历史最高占用数
func (t *RelayTable) HighWater(ctx context.Context) (int, error) {
	var n int
	err := t.guard.Do(ctx, func() { n = t.highWater })
	return n, err
}
