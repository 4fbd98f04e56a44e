package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-minithrottle/internal/core/protocol/withrottle"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// ============================================================================
//                              WiThrottle 客户端
// ============================================================================

func TestClientWiThrottle_DrivesDCCExStation(t *testing.T) {
	h := newHarness(t, types.ProtocolDCCEx, types.ProtocolWiThrottle)

	h.client(0, "MT+S3<;>S3")
	assert.Empty(t, h.up.sent())
	require.NotEmpty(t, h.fan.sentTo(0))
	assert.Equal(t, "MT+S3<;>", h.fan.sentTo(0)[0])
	assert.Equal(t, []uint16{3}, h.fan.Bound(0, 'T'))

	h.client(0, "MTAS3<;>V20")
	assert.Equal(t, []string{"<t 3 20 1>"}, h.up.sent())

	l, _, err := h.tables.Roster.Get(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int16(20), l.Speed)
	assert.Equal(t, 0, l.RelaySlot)
}

func TestClientWiThrottle_ActionNeedsAcquire(t *testing.T) {
	h := newHarness(t, types.ProtocolDCCEx, types.ProtocolWiThrottle)
	h.client(0, "MTAS3<;>V20")
	assert.Empty(t, h.up.sent())
	assert.NotEmpty(t, h.d.metrics.Dropped())
}

func TestClientWiThrottle_AcquireThroughWiThrottleStation(t *testing.T) {
	h := newHarness(t, types.ProtocolWiThrottle, types.ProtocolWiThrottle)

	h.client(2, "MT+L4014<;>L4014")
	assert.Equal(t, []string{"Mc+L4014<;>L4014"}, h.up.sent())

	h.client(2, "MTAL4014<;>R0")
	assert.Equal(t, "McAL4014<;>R0", h.up.sent()[1])
}

func TestClientWiThrottle_NotConnected(t *testing.T) {
	h := newHarness(t, types.ProtocolUndefined, types.ProtocolWiThrottle)

	h.client(0, "MT+S3<;>S3")
	assert.Equal(t, []string{withrottle.Alert(NotConnectedText)}, h.fan.sentTo(0))
	assert.Equal(t, "HMNot connected to command station", h.fan.sentTo(0)[0])
}

func TestClientWiThrottle_LocallyOwnedNeedsSteal(t *testing.T) {
	h := newHarness(t, types.ProtocolDCCEx, types.ProtocolWiThrottle)
	ctx := context.Background()
	_, err := h.d.AcquireLoco(ctx, 0, 3)
	require.NoError(t, err)

	h.client(0, "MT+S3<;>S3")
	assert.Equal(t, []string{"MTSS3<;>S3"}, h.fan.sentTo(0))

	h.fan.reset()
	h.client(0, "MTSS3<;>S3")
	l, _, err := h.tables.Roster.Get(ctx, 3)
	require.NoError(t, err)
	assert.False(t, l.Owned)
	assert.Equal(t, 0, l.RelaySlot)

	owned, err := h.tables.Roster.OwnedBy(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, owned)
}

func TestClientWiThrottle_UpstreamStealForwarded(t *testing.T) {
	h := newHarness(t, types.ProtocolWiThrottle, types.ProtocolWiThrottle)
	h.client(2, "MT+S3<;>S3")
	h.fan.reset()

	// 上游要求以槽位 2 的字母确认抢占
	h.upstream("McSS3<;>S3")
	assert.Equal(t, []string{"MTSS3<;>S3"}, h.fan.sentTo(2))
}

func TestClientWiThrottle_NameAndPowerToggle(t *testing.T) {
	h := newHarness(t, types.ProtocolDCCEx, types.ProtocolWiThrottle)
	ctx := context.Background()
	conn, err := h.tables.Relay.Allocate(ctx, "192.168.1.20:51000", types.ProtocolWiThrottle, time.Now())
	require.NoError(t, err)

	h.client(conn.Slot, "NEngine Driver")
	assert.Equal(t, []string{"*10"}, h.fan.sentTo(conn.Slot))
	got, err := h.tables.Relay.Get(ctx, conn.Slot)
	require.NoError(t, err)
	assert.Equal(t, "Engine Driver", got.NodeName)

	h.client(conn.Slot, "PPA2")
	assert.Equal(t, []string{"<1>"}, h.up.sent())
}

func TestClientGone_ReleasesUpstream(t *testing.T) {
	h := newHarness(t, types.ProtocolWiThrottle, types.ProtocolWiThrottle)
	ctx := context.Background()
	h.client(1, "MT+S3<;>S3")
	h.fan.reset()

	h.d.ClientGone(ctx, 1)
	assert.Equal(t, "Mb-S3<;>r", h.up.sent()[1])

	l, _, err := h.tables.Roster.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, types.NoSlot, l.RelaySlot)
	assert.Len(t, h.fan.published(types.ChangeLoco), 1)

	// 释放后本地手柄可直接占用
	_, err = h.d.AcquireLoco(ctx, 0, 3)
	assert.NoError(t, err)
}

// ============================================================================
//                              DCC-Ex 客户端
// ============================================================================

func TestClientDCCEx_AlwaysRepliesToThrottle(t *testing.T) {
	h := newHarness(t, types.ProtocolDCCEx, types.ProtocolDCCEx)

	h.client(0, "<t 3 20 1>", "<t 3 20 1>")
	assert.Equal(t, []string{"<t 3 20 1>", "<t 3 20 1>"}, h.up.sent())
	assert.Equal(t, []string{"<l 3 0 149 0>", "<l 3 0 149 0>"}, h.fan.sentTo(0))
	assert.Len(t, h.fan.published(types.ChangeLoco), 1)

	h.client(0, "<t 3>")
	assert.Equal(t, "<l 3 0 149 0>", h.fan.sentTo(0)[2])
}

func TestClientDCCEx_NotConnected(t *testing.T) {
	h := newHarness(t, types.ProtocolUndefined, types.ProtocolDCCEx)

	h.client(0, "<t 3 20 1>")
	assert.Equal(t, []string{"<X>"}, h.fan.sentTo(0))
}

func TestClientDCCEx_StatusAndSlots(t *testing.T) {
	h := newHarness(t, types.ProtocolDCCEx, types.ProtocolDCCEx)

	h.client(0, "<s>", "<#>")
	sent := h.fan.sentTo(0)
	require.Len(t, sent, 3)
	assert.Contains(t, sent[0], "DCC-EX V-"+StationVersion)
	assert.Equal(t, "<p0>", sent[1])
	assert.Equal(t, "<# 50>", sent[2])
}

func TestClientDCCEx_TurnoutTranslatedForWiThrottleStation(t *testing.T) {
	h := newHarness(t, types.ProtocolWiThrottle, types.ProtocolDCCEx)
	h.upstream(`PTL]\[LT12}|{Yard}|{2`)

	h.client(0, "<T 12 1>")
	assert.Equal(t, []string{"PTATLT12"}, h.up.sent())
}
