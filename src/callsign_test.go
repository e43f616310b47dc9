package loratnc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestParseStationID(t *testing.T) {
	var id, err = ParseStationID("w1aw-7")
	require.NoError(t, err)
	assert.Equal(t, StationID{Call: "W1AW", SSID: 7}, id)
	assert.Equal(t, "W1AW-7", id.String())

	id, err = ParseStationID("N0CALL")
	require.NoError(t, err)
	assert.Equal(t, "N0CALL", id.String())

	for _, bad := range []string{"", "-3", "W1AW-", "W1AW-16", "W1AW-x", "TOOLONG1", "W1/AW"} {
		_, err = ParseStationID(bad)
		assert.ErrorIs(t, err, ErrConfigInvalid, bad)
	}
}

func TestStationID_IsSetAndEqual(t *testing.T) {
	assert.False(t, StationID{}.IsSet())
	assert.False(t, StationID{Call: "nocall"}.IsSet())
	assert.True(t, StationID{Call: "W1AW"}.IsSet())

	assert.True(t, StationID{Call: "w1aw", SSID: 1}.Equal(StationID{Call: "W1AW", SSID: 1}))
	assert.False(t, StationID{Call: "W1AW", SSID: 1}.Equal(StationID{Call: "W1AW", SSID: 2}))
}

func Test_StationIDRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var call = rapid.StringMatching(`[A-Z0-9]{1,6}`).Draw(t, "call")
		var ssid = rapid.IntRange(0, MAX_SSID).Draw(t, "ssid")

		var id, err = NewStationID(call, ssid)
		require.NoError(t, err)

		var back, perr = ParseStationID(id.String())
		require.NoError(t, perr)
		assert.Equal(t, id, back)
	})
}
