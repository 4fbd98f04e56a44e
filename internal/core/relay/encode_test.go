package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dep2p/go-minithrottle/pkg/types"
)

func noLetters(uint16) []byte { return nil }

func testLoco(speed int16, dir types.Direction, fns uint32) types.Locomotive {
	l := types.NewLocomotive(3, "")
	l.Speed = speed
	l.Direction = dir
	l.Functions = fns
	return l
}

func TestEncodeChange_WiThrottleLoco(t *testing.T) {
	c := types.Change{Kind: types.ChangeLoco, Loco: testLoco(50, types.DirForward, 0)}

	assert.Equal(t, []string{"MTAS3<;>R1", "MTAS3<;>V50"}, encodeChange(types.ProtocolWiThrottle, c, noLetters))

	both := func(uint16) []byte { return []byte{'A', 'S'} }
	assert.Equal(t, []string{
		"MAAS3<;>R1", "MAAS3<;>V50",
		"MSAS3<;>R1", "MSAS3<;>V50",
	}, encodeChange(types.ProtocolWiThrottle, c, both))
}

func TestEncodeChange_WiThrottleLayout(t *testing.T) {
	tests := []struct {
		name string
		c    types.Change
		want []string
	}{
		{"power", types.Change{Kind: types.ChangePower, Power: types.PowerOff}, []string{"PPA0"}},
		{"turnout", types.Change{Kind: types.ChangeTurnout, Turnout: types.Turnout{SysName: "LT12", State: types.TurnoutThrown}}, []string{"PTA4LT12"}},
		{"link down", types.Change{Kind: types.ChangeLinkDown, Message: "Not connected to command station"}, []string{"HMNot connected to command station"}},
		{"link up", types.Change{Kind: types.ChangeLinkUp, Message: "DCC-Ex"}, []string{"HmConnected to DCC-Ex"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, encodeChange(types.ProtocolWiThrottle, tt.c, noLetters))
		})
	}
}

func TestEncodeChange_DCCEx(t *testing.T) {
	tests := []struct {
		name string
		c    types.Change
		want []string
	}{
		{"loco", types.Change{Kind: types.ChangeLoco, Loco: testLoco(50, types.DirForward, 5)}, []string{"<l 3 0 179 5>"}},
		{"function", types.Change{Kind: types.ChangeFunction, Loco: testLoco(0, types.DirForward, 1), Function: 0}, []string{"<l 3 0 128 1>"}},
		{"turnout", types.Change{Kind: types.ChangeTurnout, Turnout: types.Turnout{SysName: "LT12", State: types.TurnoutThrown}}, []string{"<H 12 1>"}},
		{"power", types.Change{Kind: types.ChangePower, Power: types.PowerOn}, []string{"<p1>"}},
		{"link down", types.Change{Kind: types.ChangeLinkDown}, []string{"<X>"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, encodeChange(types.ProtocolDCCEx, tt.c, noLetters))
		})
	}
}

func TestEncodeChange_DCCExSkipsUnrepresentable(t *testing.T) {
	assert.Nil(t, encodeChange(types.ProtocolDCCEx, types.Change{
		Kind:    types.ChangeTurnout,
		Turnout: types.Turnout{SysName: "IT", State: types.TurnoutClosed},
	}, noLetters))
	assert.Nil(t, encodeChange(types.ProtocolDCCEx, types.Change{Kind: types.ChangeRoute}, noLetters))
	assert.Nil(t, encodeChange(types.ProtocolDCCEx, types.Change{Kind: types.ChangeRoster}, noLetters))
}

func TestRefusal(t *testing.T) {
	assert.Equal(t, "HM"+RefusalText, refusal(types.ProtocolWiThrottle))
	assert.Equal(t, "<X>", refusal(types.ProtocolDCCEx))
}
