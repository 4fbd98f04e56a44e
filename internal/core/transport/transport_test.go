package transport

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-minithrottle/internal/config"
	"github.com/dep2p/go-minithrottle/pkg/types"
)

// ============================================================================
//                              SplitFrames
// ============================================================================

func scanAll(t *testing.T, input string) []string {
	t.Helper()
	sc := bufio.NewScanner(strings.NewReader(input))
	sc.Buffer(make([]byte, 0, 64), 4*MaxFrameSize)
	sc.Split(SplitFrames)
	var out []string
	for sc.Scan() {
		if sc.Text() != "" {
			out = append(out, sc.Text())
		}
	}
	require.NoError(t, sc.Err())
	return out
}

func TestSplitFrames(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"withrottle lines", "VN2.0\nPPA1\r\n*10\n", []string{"VN2.0", "PPA1", "*10"}},
		{"dccex back to back", "<p1><H 1 0>\n<l 3 0 128 0>", []string{"<p1>", "<H 1 0>", "<l 3 0 128 0>"}},
		{"mixed whitespace", "  \r\n<s>\r\n\r\nPPA0\n", []string{"<s>", "PPA0"}},
		{"trailing at eof", "PPA1", []string{"PPA1"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scanAll(t, tt.input))
		})
	}
}

func TestSplitFrames_Oversized(t *testing.T) {
	big := "<" + strings.Repeat("x", MaxFrameSize+10) + ">"
	got := scanAll(t, big+"\nPPA1\n")
	assert.Equal(t, []string{"PPA1"}, got)

	noTerm := strings.Repeat("y", MaxFrameSize*2)
	got = scanAll(t, noTerm+"\n<p1>")
	assert.Equal(t, []string{"<p1>"}, got[len(got)-1:])
}

// ============================================================================
//                              FrameLink
// ============================================================================

func TestFrameLink_ReadWrite(t *testing.T) {
	a, b := net.Pipe()
	la := NewConnLink(a, time.Second)
	lb := NewConnLink(b, time.Second)
	defer la.Close()
	defer lb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		_ = la.WriteFrame(ctx, "<t 3 50 1>")
		_ = la.WriteFrame(ctx, "PPA1")
	}()

	f, err := lb.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, "<t 3 50 1>", f)

	f, err = lb.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, "PPA1", f)

	in, _ := lb.Stats()
	assert.Equal(t, uint64(2), in)
	_, out := la.Stats()
	assert.Equal(t, uint64(2), out)
}

func TestFrameLink_ReadCancel(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	l := NewConnLink(a, time.Second)
	defer l.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := l.ReadFrame(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFrameLink_CloseUnblocksRead(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	l := NewConnLink(a, time.Second)

	errCh := make(chan error, 1)
	go func() {
		_, err := l.ReadFrame(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, l.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrLinkClosed)
	case <-time.After(time.Second):
		t.Fatal("ReadFrame not unblocked by Close")
	}

	assert.ErrorIs(t, l.WriteFrame(context.Background(), "x"), ErrLinkClosed)
}

func TestFrameLink_PeerClose(t *testing.T) {
	a, b := net.Pipe()
	l := NewConnLink(a, time.Second)
	defer l.Close()

	require.NoError(t, b.Close())

	_, err := l.ReadFrame(context.Background())
	assert.Error(t, err)
}

func TestFrameLink_WriteTimeout(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	l := NewConnLink(a, 20*time.Millisecond)
	defer l.Close()

	// 对端不读取，net.Pipe 写入阻塞直到超时
	err := l.WriteFrame(context.Background(), "PPA1")
	require.Error(t, err)
	var ne net.Error
	assert.True(t, errors.As(err, &ne) && ne.Timeout())
}

// ============================================================================
//                              Dialer
// ============================================================================

func TestStaticDialer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		_, _ = c.Write([]byte("VN2.0\n"))
		time.Sleep(50 * time.Millisecond)
		c.Close()
	}()

	d := &StaticDialer{Address: ln.Addr().String(), Timeout: time.Second}
	link, err := d.Dial(context.Background())
	require.NoError(t, err)
	defer link.Close()

	f, err := link.ReadFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "VN2.0", f)
	assert.True(t, strings.HasPrefix(d.String(), "tcp://127.0.0.1:"))
}

func TestMDNSDialer_FallsBack(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		if c, err := ln.Accept(); err == nil {
			c.Close()
		}
	}()

	var asked []string
	d := NewMDNSDialer(types.ProtocolDCCEx, 10*time.Millisecond, time.Second)
	d.Lookup = func(_ context.Context, svc string, _ time.Duration) (string, error) {
		asked = append(asked, svc)
		if svc == ServiceWiThrottle {
			return ln.Addr().String(), nil
		}
		return "", ErrNoService
	}

	link, err := d.Dial(context.Background())
	require.NoError(t, err)
	link.Close()
	assert.Equal(t, []string{ServiceDCCEx, ServiceWiThrottle}, asked)
}

func TestMDNSDialer_NoService(t *testing.T) {
	d := NewMDNSDialer(types.ProtocolWiThrottle, 10*time.Millisecond, time.Second)
	d.Lookup = func(context.Context, string, time.Duration) (string, error) {
		return "", ErrNoService
	}
	_, err := d.Dial(context.Background())
	assert.ErrorIs(t, err, ErrNoService)
}

func TestNewDialer(t *testing.T) {
	cfg := config.DefaultUpstreamConfig()

	cfg.Address = "192.168.4.1"
	d, err := NewDialer(cfg)
	require.NoError(t, err)
	assert.Equal(t, "tcp://192.168.4.1:12090", d.String())

	cfg.PreferredProtocol = types.ProtocolDCCEx
	d, _ = NewDialer(cfg)
	assert.Equal(t, "tcp://192.168.4.1:2560", d.String())

	cfg.Address = "cs.local:3000"
	d, _ = NewDialer(cfg)
	assert.Equal(t, "tcp://cs.local:3000", d.String())

	cfg.Address = ""
	d, _ = NewDialer(cfg)
	_, ok := d.(*MDNSDialer)
	assert.True(t, ok)

	cfg.MDNS = false
	_, err = NewDialer(cfg)
	assert.ErrorIs(t, err, ErrNoAddress)

	cfg.Transport = config.TransportSerial
	cfg.SerialDevice = "/dev/ttyUSB0"
	d, err = NewDialer(cfg)
	require.NoError(t, err)
	assert.Equal(t, "serial:///dev/ttyUSB0@115200", d.String())
}
