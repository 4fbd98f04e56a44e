package diag

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/internal/core/eventbus"
)

type diagClient struct {
	conn net.Conn
	r    *bufio.Reader
}

func dialDiag(t *testing.T, addr string) *diagClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &diagClient{conn: conn, r: bufio.NewReader(conn)}
}

func (c *diagClient) line(t *testing.T) string {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	s, err := c.r.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimRight(s, "\r\n")
}

func (c *diagClient) send(t *testing.T, s string) {
	t.Helper()
	_, err := c.conn.Write([]byte(s + "\r\n"))
	require.NoError(t, err)
}

// until 读取直到出现包含 want 的行
func (c *diagClient) until(t *testing.T, want string) string {
	t.Helper()
	for {
		if l := c.line(t); strings.Contains(l, want) {
			return l
		}
	}
}

func startDiag(t *testing.T, bus *eventbus.Bus) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.PollTimeout = 20 * time.Millisecond
	srv := New(cfg, NewConsole(newFakeController(), nil, nil, nil, nil), bus)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })
	return srv
}

func TestConfigFromUnified(t *testing.T) {
	uc := config.NewConfig()
	uc.Diag.Port = 2323
	uc.Diag.MaxSessions = 9

	cfg := ConfigFromUnified(uc)
	assert.Equal(t, ":2323", cfg.ListenAddr)
	assert.Equal(t, config.MaxDiagSessions, cfg.MaxSessions)
}

func TestServer_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	srv := New(cfg, nil, nil)
	require.NoError(t, srv.Start(context.Background()))
	assert.Empty(t, srv.Addr())
	assert.NoError(t, srv.Stop(context.Background()))
}

func TestServer_CommandsAndQuit(t *testing.T) {
	srv := startDiag(t, nil)

	c := dialDiag(t, srv.Addr())
	assert.Contains(t, c.line(t), "type help")

	c.send(t, "power on")
	assert.Equal(t, "power on", c.line(t))

	c.send(t, "quit")
	assert.Equal(t, "bye", c.line(t))
	require.Eventually(t, func() bool { return srv.Sessions() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestServer_LimitsSessions(t *testing.T) {
	srv := startDiag(t, nil)

	a := dialDiag(t, srv.Addr())
	a.line(t)
	b := dialDiag(t, srv.Addr())
	b.line(t)
	require.Equal(t, 2, srv.Sessions())

	extra := dialDiag(t, srv.Addr())
	assert.Equal(t, TooManySessionsText, extra.line(t))

	// 已有会话不受影响
	a.send(t, "show clock")
	assert.Equal(t, "fast clock not set", a.line(t))

	// 释放一个会话后可再次接入
	b.send(t, "quit")
	b.until(t, "bye")
	require.Eventually(t, func() bool { return srv.Sessions() == 1 }, 2*time.Second, 5*time.Millisecond)
	again := dialDiag(t, srv.Addr())
	assert.Contains(t, again.line(t), "type help")
}

func TestServer_StreamsDiagnosticLines(t *testing.T) {
	bus := eventbus.NewBus()
	srv := startDiag(t, bus)

	a := dialDiag(t, srv.Addr())
	a.line(t)
	b := dialDiag(t, srv.Addr())
	b.line(t)
	require.Eventually(t, func() bool { return srv.Sessions() == 2 }, 2*time.Second, 5*time.Millisecond)

	bus.Diagf("<- upstream %s", "<p1>")
	assert.True(t, strings.HasSuffix(a.line(t), "<- upstream <p1>"))
	assert.True(t, strings.HasSuffix(b.line(t), "<- upstream <p1>"))
}

func TestServer_StopClosesSessions(t *testing.T) {
	srv := startDiag(t, eventbus.NewBus())
	c := dialDiag(t, srv.Addr())
	c.line(t)

	require.NoError(t, srv.Stop(context.Background()))
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := c.r.ReadString('\n')
	assert.Error(t, err)
	assert.NoError(t, srv.Stop(context.Background()))
}
