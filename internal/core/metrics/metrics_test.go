package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-minithrottle/pkg/types"
)

// ============================================================================
// RateMeter
// ============================================================================

func TestRateMeter_Window(t *testing.T) {
	mock := clock.NewMock()
	r := NewRateMeterWithClock(mock)

	r.Add(30)
	mock.Add(time.Second)
	r.Add(30)
	assert.Equal(t, int64(60), r.Window())
	assert.InDelta(t, 1.0, r.Rate(), 0.001)

	// 60 秒后旧桶滑出窗口
	mock.Add(59 * time.Second)
	assert.Equal(t, int64(30), r.Window())

	mock.Add(2 * time.Minute)
	assert.Equal(t, int64(0), r.Window())

	r.Add(5)
	r.Reset()
	assert.Equal(t, int64(0), r.Window())
}

// ============================================================================
// FrameCounter
// ============================================================================

func TestFrameCounter_BySource(t *testing.T) {
	fc := NewFrameCounterWithClock(clock.NewMock())

	fc.In("upstream")
	fc.In("upstream")
	fc.In("relay")
	fc.Out("upstream")

	totals := fc.Totals()
	assert.Equal(t, int64(3), totals.TotalIn)
	assert.Equal(t, int64(1), totals.TotalOut)

	by := fc.BySource()
	assert.Equal(t, int64(2), by["upstream"].TotalIn)
	assert.Equal(t, int64(1), by["upstream"].TotalOut)
	assert.Equal(t, int64(1), by["relay"].TotalIn)

	fc.Drop(DropMalformed)
	fc.Drop(DropMalformed)
	assert.Equal(t, int64(2), fc.Dropped()[DropMalformed])

	fc.Reset()
	assert.Equal(t, Stats{}, fc.Totals())
	assert.Empty(t, fc.BySource())
	assert.Empty(t, fc.Dropped())
}

func TestFrameCounter_Concurrent(t *testing.T) {
	fc := NewFrameCounter()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			label := "relay"
			if i%2 == 0 {
				label = "upstream"
			}
			for j := 0; j < 100; j++ {
				fc.In(label)
				fc.Out(label)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(2000), fc.Totals().TotalIn)
	assert.Equal(t, int64(1000), fc.BySource()["relay"].TotalOut)
}

// ============================================================================
// Metrics
// ============================================================================

func TestMetrics_Collectors(t *testing.T) {
	m := New()

	m.LogFrameIn(types.UpstreamSource())
	m.LogFrameIn(types.RelaySource(3))
	m.LogFrameOut(types.RelaySource(1))
	m.LogDropped(DropRateLimit)
	m.LogLockTimeout()
	m.LogRoute(types.RouteConfirmed)
	m.LogReconnect()
	m.LogRelayRefused()
	m.SetConnState(types.ConnConnected)
	m.SetRelayClients(2, 5)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesIn.WithLabelValues("relay")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesOut.WithLabelValues("relay")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesDropped.WithLabelValues(DropRateLimit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lockTimeouts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.routes.WithLabelValues("confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconnects))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.relayRefused))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.connState))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.relayClients))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.relayHigh))

	assert.Equal(t, int64(2), m.Totals().TotalIn)
}

func TestSourceLabel(t *testing.T) {
	assert.Equal(t, "upstream", SourceLabel(types.UpstreamSource()))
	assert.Equal(t, "relay", SourceLabel(types.RelaySource(7)))
	assert.Equal(t, "local", SourceLabel(types.LocalSource()))
}

func TestServer_ServesMetrics(t *testing.T) {
	m := New()
	m.LogReconnect()

	srv := NewServer("127.0.0.1:0", m)
	require.NoError(t, srv.Start(context.Background()))
	defer srv.Stop(context.Background())

	resp, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "minithrottle_upstream_reconnects_total 1"))
}
