package types

import "testing"

func TestProtocol(t *testing.T) {
	tests := []struct {
		p    Protocol
		want string
	}{
		{ProtocolUndefined, "Undefined"},
		{ProtocolWiThrottle, "WiThrottle"},
		{ProtocolDCCEx, "DCC-Ex"},
		{Protocol(99), "Undefined"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.p.String(); got != tt.want {
				t.Errorf("Protocol(%d).String() = %q, want %q", tt.p, got, tt.want)
			}
		})
	}
}

func TestParseProtocol(t *testing.T) {
	tests := []struct {
		in   string
		want Protocol
	}{
		{"withrottle", ProtocolWiThrottle},
		{"WiThrottle", ProtocolWiThrottle},
		{"dccex", ProtocolDCCEx},
		{" DCC-Ex ", ProtocolDCCEx},
		{"2", ProtocolDCCEx},
		{"", ProtocolUndefined},
		{"loconet", ProtocolUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseProtocol(tt.in); got != tt.want {
				t.Errorf("ParseProtocol(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRelayMode(t *testing.T) {
	tests := []struct {
		m     RelayMode
		want  string
		proto Protocol
	}{
		{NoRelay, "none", ProtocolUndefined},
		{RelayWiThrottle, "withrottle", ProtocolWiThrottle},
		{RelayDCCEx, "dccex", ProtocolDCCEx},
		{RelayMode(9), "none", ProtocolUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.m.String(); got != tt.want {
				t.Errorf("RelayMode(%d).String() = %q, want %q", tt.m, got, tt.want)
			}
			if got := tt.m.Protocol(); got != tt.proto {
				t.Errorf("RelayMode(%d).Protocol() = %v, want %v", tt.m, got, tt.proto)
			}
		})
	}
}

func TestDirection(t *testing.T) {
	tests := []struct {
		d    Direction
		want string
	}{
		{DirForward, "forward"},
		{DirStop, "stop"},
		{DirReverse, "reverse"},
		{DirUnchanged, "unchanged"},
		{Direction(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.d.String(); got != tt.want {
				t.Errorf("Direction(%d).String() = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}

func TestTurnoutState(t *testing.T) {
	tests := []struct {
		s     TurnoutState
		want  string
		valid bool
	}{
		{TurnoutUnknown, "unknown", true},
		{TurnoutClosed, "closed", true},
		{TurnoutThrown, "thrown", true},
		{TurnoutInconsistent, "inconsistent", true},
		{TurnoutState(3), "unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.s.String(); got != tt.want {
				t.Errorf("TurnoutState(%d).String() = %q, want %q", tt.s, got, tt.want)
			}
			if got := tt.s.Valid(); got != tt.valid {
				t.Errorf("TurnoutState(%d).Valid() = %v, want %v", tt.s, got, tt.valid)
			}
		})
	}
}

func TestRouteState(t *testing.T) {
	tests := []struct {
		s    RouteState
		want string
	}{
		{RouteIdle, "idle"},
		{RouteArmed, "armed"},
		{RouteInProgress, "in-progress"},
		{RouteConfirmed, "confirmed"},
		{RouteFailed, "failed"},
		{RouteState(77), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.s.String(); got != tt.want {
				t.Errorf("RouteState(%d).String() = %q, want %q", tt.s, got, tt.want)
			}
		})
	}
}

func TestTrackPower(t *testing.T) {
	tests := []struct {
		in   string
		want TrackPower
	}{
		{"BOTH", TrackBoth},
		{"mainonly", TrackMainOnly},
		{"PROGONLY", TrackProgOnly},
		{"join", TrackJoin},
		{"garbage", TrackBoth},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseTrackPower(tt.in); got != tt.want {
				t.Errorf("ParseTrackPower(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestConnState(t *testing.T) {
	tests := []struct {
		s    ConnState
		want string
	}{
		{ConnDisconnected, "disconnected"},
		{ConnConnecting, "connecting"},
		{ConnDetecting, "detecting"},
		{ConnConnected, "connected"},
		{ConnState(9), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.s.String(); got != tt.want {
				t.Errorf("ConnState(%d).String() = %q, want %q", tt.s, got, tt.want)
			}
		})
	}
}
