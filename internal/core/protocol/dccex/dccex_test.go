package dccex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-minithrottle/pkg/types"
)

// ============================================================================
//                              Parse
// ============================================================================

func TestParse_Opcodes(t *testing.T) {
	tests := []struct {
		frame string
		op    string
		args  []string
	}{
		{"<s>", "s", nil},
		{"<p1>", "p", []string{"1"}},
		{"<p1 MAIN>", "p", []string{"1", "MAIN"}},
		{"<t 3 50 1>", "t", []string{"3", "50", "1"}},
		{"<l 3 0 179 1>", "l", []string{"3", "0", "179", "1"}},
		{"<H 12 1>", "H", []string{"12", "1"}},
		{"<jT 12 13>", "jT", []string{"12", "13"}},
		{`<jT 12 C "Yard East">`, "jT", []string{"12", "C", "Yard East"}},
		{`<jR 3 "Shunter" "Lights/*Horn">`, "jR", []string{"3", "Shunter", "Lights/*Horn"}},
		{"<J T>", "J", []string{"T"}},
		{"<JC 360 4>", "JC", []string{"360", "4"}},
		{"<jC 360 4>", "jC", []string{"360", "4"}},
		{"</ START 5>", "/", []string{"START", "5"}},
		{"<r 10812|22112|29 3>", "r", []string{"10812|22112|29", "3"}},
		{"<#>", "#", nil},
		{"<!>", "!", nil},
		{"<X>", "X", nil},
	}

	for _, tt := range tests {
		t.Run(tt.frame, func(t *testing.T) {
			c, err := Parse(tt.frame)
			require.NoError(t, err)
			assert.Equal(t, tt.op, c.Op)
			assert.Equal(t, tt.args, c.Args)
		})
	}
}

func TestParse_Banner(t *testing.T) {
	c, err := Parse("<iDCC-EX V-5.0.4 / MEGA / STANDARD_MOTOR_SHIELD G-c389fe9>")
	require.NoError(t, err)
	assert.Equal(t, "i", c.Op)
	assert.Equal(t, "DCC-EX V-5.0.4 / MEGA / STANDARD_MOTOR_SHIELD G-c389fe9", c.Text)
}

func TestParse_Errors(t *testing.T) {
	for _, f := range []string{"", "<>", "s", "<s", "hello"} {
		_, err := Parse(f)
		assert.ErrorIs(t, err, types.ErrMalformedFrame, f)
	}

	_, err := Parse(`<jT 1 C "open>`)
	assert.ErrorIs(t, err, types.ErrMalformedFrame)
}

func TestCommand_Int(t *testing.T) {
	c, _ := Parse("<t 3 x 1>")
	v, err := c.Int(0)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	_, err = c.Int(1)
	assert.ErrorIs(t, err, types.ErrMalformedFrame)
	_, err = c.Int(9)
	assert.ErrorIs(t, err, types.ErrMalformedFrame)
	assert.Equal(t, "", c.Arg(9))

	_, err = c.Ints()
	assert.Error(t, err)
}

func TestParseCVReply(t *testing.T) {
	c, _ := Parse("<r 10812|22112|29 34>")
	r, err := ParseCVReply(c)
	require.NoError(t, err)
	assert.Equal(t, types.CVResult{CV: 29, Value: 34}, r)

	c, _ = Parse("<r 3>")
	r, err = ParseCVReply(c)
	require.NoError(t, err)
	assert.Equal(t, types.CVResult{CV: 0, Value: 3}, r)

	c, _ = Parse("<v 1 -1>")
	r, err = ParseCVReply(c)
	require.NoError(t, err)
	assert.False(t, r.OK())

	c, _ = Parse("<p1>")
	_, err = ParseCVReply(c)
	assert.ErrorIs(t, err, types.ErrUnknownFrame)
}

func TestNumericID(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"12", 12, true},
		{"LT12", 12, true},
		{"IR007", 7, true},
		{"Yard", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, ok := NumericID(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, v)
		})
	}
}

// ============================================================================
//                              速度字节
// ============================================================================

func TestSpeedByte(t *testing.T) {
	tests := []struct {
		name  string
		speed int
		dir   types.Direction
		b     int
	}{
		{"stop forward", 0, types.DirForward, 0x80},
		{"stop reverse", 0, types.DirReverse, 0x00},
		{"estop", -1, types.DirForward, 0x81},
		{"speed 1 forward", 1, types.DirForward, 0x82},
		{"speed 50 reverse", 50, types.DirReverse, 51},
		{"max", 126, types.DirForward, 0xff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.b, EncodeSpeedByte(tt.speed, tt.dir))

			speed, dir, estop := DecodeSpeedByte(tt.b)
			assert.Equal(t, tt.speed < 0, estop)
			if tt.speed >= 0 {
				assert.Equal(t, tt.speed, speed)
			}
			assert.Equal(t, tt.dir, dir)
		})
	}

	assert.Equal(t, 0xff, EncodeSpeedByte(500, types.DirForward))
}

// ============================================================================
//                              编码
// ============================================================================

func TestEncode_Client(t *testing.T) {
	assert.Equal(t, "<1 MAIN>", PowerOn(types.TrackMainOnly))
	assert.Equal(t, "<1>", PowerOn(types.TrackBoth))
	assert.Equal(t, "<0>", PowerOff())
	assert.Equal(t, "<t 3 50 1>", Throttle(3, 50, types.DirForward))
	assert.Equal(t, "<t 3 -1 0>", Throttle(3, -1, types.DirReverse))
	assert.Equal(t, "<F 3 12 1>", Function(3, 12, true))
	assert.Equal(t, "<T 12 0>", Turnout(12, false))
	assert.Equal(t, "<J T 12>", QueryTurnout(12))
	assert.Equal(t, "<JC 360 4>", SetClock(types.FastClockTime{Seconds: 6 * 3600, Rate: 4}))
	assert.Equal(t, "</ START 5>", StartRoute(5))
	assert.Equal(t, "<R 29 10812 22112>", ReadCV(29))
	assert.Equal(t, "<W 1 3 10812 22112>", WriteCV(1, 3))
	assert.Equal(t, "<- 3>", Forget(3))
}

func TestEncode_Station(t *testing.T) {
	l := types.NewLocomotive(3, "Shunter")
	l.Speed = 50
	l.Direction = types.DirForward
	l.Functions = 5
	assert.Equal(t, "<l 3 0 179 5>", LocoState(l))

	assert.Equal(t, "<H 12 1>", TurnoutState(12, types.TurnoutThrown))
	assert.Equal(t, "<jT 1 2 3>", IDList("jT", []int{1, 2, 3}))
	assert.Equal(t, `<jT 12 C "Yard East">`, TurnoutDetail(12, types.Turnout{SysName: "12", UserName: "Yard East", State: types.TurnoutClosed}))
	assert.Equal(t, `<jA 5 R "Main">`, RouteDetail(5, types.Route{SysName: "5", UserName: "Main"}))
	assert.Equal(t, "<jC 360 4>", Clock(types.FastClockTime{Seconds: 6 * 3600, Rate: 4}))
	assert.Equal(t, "<r 10812|22112|29 3>", CVReply(types.CVResult{CV: 29, Value: 3}))
	assert.Equal(t, "<p1>", PowerState(types.PowerOn))
	assert.Equal(t, "<jT 99 X>", Unknown("jT", 99))

	l.FunctionLabels = []string{"Lights", "Horn"}
	l.Latch = 1
	assert.Equal(t, `<jR 3 "Shunter" "Lights/*Horn">`, RosterDetail(l))
}

func TestTurnoutStateChar(t *testing.T) {
	assert.Equal(t, "C", TurnoutStateChar(types.TurnoutClosed))
	assert.Equal(t, "T", TurnoutStateChar(types.TurnoutThrown))
	assert.Equal(t, "X", TurnoutStateChar(types.TurnoutUnknown))
	assert.Equal(t, types.TurnoutThrown, TurnoutStateFromChar("1"))
	assert.Equal(t, types.TurnoutUnknown, TurnoutStateFromChar("X"))
}
