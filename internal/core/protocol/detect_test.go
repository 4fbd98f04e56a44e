package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dep2p/go-minithrottle/pkg/types"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		frame string
		want  types.Protocol
	}{
		{"VN2.0", types.ProtocolWiThrottle},
		{`RL1]\[Big Boy}|{4014}|{L`, types.ProtocolWiThrottle},
		{"PPA1", types.ProtocolWiThrottle},
		{"PW12080", types.ProtocolWiThrottle},
		{"HTJMRI", types.ProtocolWiThrottle},
		{"HtJMRI 5.4", types.ProtocolWiThrottle},
		{"*10", types.ProtocolWiThrottle},
		{"<iDCC-EX V-5.0.4 / MEGA>", types.ProtocolDCCEx},
		{"<p0>", types.ProtocolDCCEx},
		{"<* debug *>", types.ProtocolDCCEx},
		{"<H 1 0>", types.ProtocolDCCEx},
		{"", types.ProtocolUndefined},
		{"*", types.ProtocolUndefined},
		{"garbage", types.ProtocolUndefined},
		{"<unterminated", types.ProtocolUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.frame, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.frame))
		})
	}
}

func TestProbeAndKeepalive(t *testing.T) {
	assert.Equal(t, "<s>", Probe(types.ProtocolDCCEx))
	assert.Empty(t, Probe(types.ProtocolWiThrottle))
	assert.Empty(t, Probe(types.ProtocolUndefined))

	assert.Equal(t, "*", Keepalive(types.ProtocolWiThrottle))
	assert.Equal(t, "<#>", Keepalive(types.ProtocolDCCEx))
	assert.Empty(t, Keepalive(types.ProtocolUndefined))
}
