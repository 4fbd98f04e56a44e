package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
//                              地址
// ============================================================================

func TestFormatAddress(t *testing.T) {
	assert.Equal(t, "S3", FormatAddress(3, AddrShort))
	assert.Equal(t, "L341", FormatAddress(341, AddrLong))
	assert.Equal(t, "L3", FormatAddress(3, AddrLong), "explicit long kind kept for low numbers")
	assert.Equal(t, "L1024", FormatAddress(1024, 0), "kind inferred when unset")
}

func TestParseAddress(t *testing.T) {
	id, kind, err := ParseAddress("L341")
	require.NoError(t, err)
	assert.Equal(t, uint16(341), id)
	assert.Equal(t, AddrLong, kind)

	id, kind, err = ParseAddress("S3")
	require.NoError(t, err)
	assert.Equal(t, uint16(3), id)
	assert.Equal(t, AddrShort, kind)

	for _, bad := range []string{"", "L", "X12", "Labc", "L99999"} {
		_, _, err := ParseAddress(bad)
		assert.True(t, errors.Is(err, ErrInvalidAddress), "input %q", bad)
	}
}

// ============================================================================
//                              Locomotive
// ============================================================================

func TestNewLocomotive(t *testing.T) {
	l := NewLocomotive(3, "")
	assert.Equal(t, "3", l.Name)
	assert.Equal(t, AddrShort, l.Kind)
	assert.Equal(t, int16(SpeedUnknown), l.Speed)
	assert.Equal(t, NoThrottle, l.Throttle)
	assert.Equal(t, NoSlot, l.RelaySlot)
	assert.False(t, l.Owned)
	assert.Equal(t, "S3", l.Address())
}

func TestLocomotive_Functions(t *testing.T) {
	l := NewLocomotive(341, "Big Boy")
	l.Functions = 1<<0 | 1<<2

	assert.True(t, l.FunctionOn(0))
	assert.False(t, l.FunctionOn(1))
	assert.True(t, l.FunctionOn(2))
	assert.False(t, l.FunctionOn(-1))
	assert.False(t, l.FunctionOn(MaxFunctions))

	assert.True(t, l.Latches(0))
	assert.False(t, l.Latches(2))
	assert.True(t, l.Latches(5))
}

func TestLocomotive_CloneIndependent(t *testing.T) {
	l := NewLocomotive(10, "x")
	l.FunctionLabels = []string{"Light", "Bell"}

	c := l.Clone()
	c.FunctionLabels[0] = "Horn"

	assert.Equal(t, "Light", l.FunctionLabels[0])
	assert.False(t, l.SameState(c))
	assert.True(t, l.SameState(l.Clone()))
}

func TestParseFunctionLabels(t *testing.T) {
	labels, latch := ParseFunctionLabels("Lights/Bell/*Horn")
	assert.Equal(t, []string{"Lights", "Bell", "Horn"}, labels)
	assert.Equal(t, uint32(0b011), latch)

	labels, latch = ParseFunctionLabels("")
	assert.Nil(t, labels)
	assert.Equal(t, DefaultLatchMask, latch)
}

func TestFastClockTime(t *testing.T) {
	ft := FastClockTime{Seconds: 13*3600 + 25*60 + 7, Rate: 4}
	assert.Equal(t, 13, ft.Hour())
	assert.Equal(t, 25, ft.Minute())
	assert.Equal(t, 13*60+25, ft.Minutes())
}
