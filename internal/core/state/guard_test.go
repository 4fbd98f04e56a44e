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

func TestGuard_Timeout(t *testing.T) {
	g := NewGuard(RankLoco, 30*time.Millisecond)
	require.NoError(t, g.Acquire(context.Background()))

	start := time.Now()
	err := g.Acquire(context.Background())
	assert.ErrorIs(t, err, types.ErrLockTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)

	g.Release()
	require.NoError(t, g.Acquire(context.Background()))
	g.Release()
}

func TestGuard_Do(t *testing.T) {
	g := NewGuard(RankTurnout, time.Second)

	ran := false
	require.NoError(t, g.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)

	// Do 之后锁已释放
	assert.True(t, g.sem.TryAcquire(1))
	g.Release()
}

func TestAcquireAll_OrdersByRank(t *testing.T) {
	loco := NewGuard(RankLoco, 50*time.Millisecond)
	turnout := NewGuard(RankTurnout, 50*time.Millisecond)
	route := NewGuard(RankRoute, 50*time.Millisecond)

	// 两个协程以相反顺序请求同一组锁，不应死锁
	var wg sync.WaitGroup
	errs := make(chan error, 200)
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			release, err := AcquireAll(context.Background(), route, turnout, loco)
			if err != nil {
				errs <- err
				return
			}
			release()
		}()
		go func() {
			defer wg.Done()
			release, err := AcquireAll(context.Background(), loco, turnout, route)
			if err != nil {
				errs <- err
				return
			}
			release()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAcquireAll_UnwindsOnTimeout(t *testing.T) {
	loco := NewGuard(RankLoco, 20*time.Millisecond)
	route := NewGuard(RankRoute, 20*time.Millisecond)

	require.NoError(t, route.Acquire(context.Background()))

	_, err := AcquireAll(context.Background(), route, loco)
	assert.ErrorIs(t, err, types.ErrLockTimeout)

	// loco 已被回退释放
	assert.True(t, loco.sem.TryAcquire(1))
	loco.Release()
	route.Release()
}

func TestRank_String(t *testing.T) {
	tests := []struct {
		r    Rank
		want string
	}{
		{RankLoco, "loco"},
		{RankTurnout, "turnout"},
		{RankRoute, "route"},
		{RankRelay, "relay"},
		{RankLink, "link"},
		{RankConsole, "console"},
		{Rank(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.String())
		})
	}
}
