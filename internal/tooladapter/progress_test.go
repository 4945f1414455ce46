package tooladapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProgressLine(t *testing.T) {
	tick, ok := ParseProgressLine("frame=120 fps=23.98 bitrate=4500kbits/s speed=1.02x out_time_seconds=5.01")
	require.True(t, ok)
	assert.Equal(t, int64(120), tick.Frame)
	assert.InDelta(t, 23.98, tick.FPS, 0.001)
	assert.Equal(t, "4500kbits/s", tick.Bitrate)
	assert.InDelta(t, 1.02, tick.Speed, 0.001)
	assert.InDelta(t, 5.01, tick.OutTimeSeconds, 0.001)
}

func TestParseProgressLineIgnoresUnrecognized(t *testing.T) {
	_, ok := ParseProgressLine("")
	assert.False(t, ok)

	_, ok = ParseProgressLine("not a progress line at all")
	assert.False(t, ok)
}
