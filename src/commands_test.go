package loratnc

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_Basics(t *testing.T) {
	var tnc, _, _ = newTestTNC(t, "K1AAA")

	var r = tnc.Execute("   ")
	assert.True(t, r.OK())
	assert.Empty(t, r.Lines)

	r = tnc.Execute("frob 1 2")
	assert.Equal(t, CodeUsage, r.Code)
	assert.Equal(t, []string{"ERROR: Unknown command FROB (try HELP)"}, r.Lines)

	r = tnc.Execute("version")
	assert.Equal(t, []string{firmwareID(), "KISS protocol 1.0"}, r.Lines)

	var help = tnc.Execute("HELP")
	assert.Equal(t, "LoRaTNCX Commands", help.Lines[0])
	assert.Equal(t, help, tnc.Execute("?"))
}

func TestExecute_Connect(t *testing.T) {
	var tnc, radio, _ = newTestTNC(t, "K1AAA")

	var r = tnc.Execute("CONNECT")
	require.True(t, r.OK())
	assert.Contains(t, r.Lines, "(No active connections)")

	r = tnc.Execute("c w1aw 7")
	require.True(t, r.OK(), r.String())
	assert.Equal(t, []string{"Connecting to W1AW-7...", "Sent SABM frame, waiting for UA response"}, r.Lines)
	assert.Equal(t, []string{"SABM:K1AAA>W1AW-7:CONNECT_REQUEST:0"}, radio.SentText())

	r = tnc.Execute("CONNECT W1AW-7")
	assert.Equal(t, CodeAlreadyActive, r.Code)
	assert.Equal(t, []string{"ERROR: Already connected/connecting to W1AW-7"}, r.Lines)

	r = tnc.Execute("CONNECT")
	assert.Contains(t, r.Lines, "1. W1AW-7 [CONNECTING]")

	r = tnc.Execute("CONNECT W1AW 99")
	assert.Equal(t, CodeConfigInvalid, r.Code)
	assert.Equal(t, []string{"ERROR: SSID must be 0-15"}, r.Lines)

	r = tnc.Execute("CONNECT W1/AW")
	assert.False(t, r.OK())
	assert.Equal(t, []string{"ERROR: Invalid callsign W1/AW"}, r.Lines)
}

func TestExecute_ConnectNeedsCallsign(t *testing.T) {
	var tnc, radio, _ = newTestTNC(t, "")

	var r = tnc.Execute("CONNECT W1AW")
	assert.Equal(t, CodeNoLocalIdentity, r.Code)
	assert.Equal(t, []string{"ERROR: Set station callsign first (MYCALL command)"}, r.Lines)
	assert.Empty(t, radio.Sent())

	r = tnc.Execute("DIGI ON")
	assert.Equal(t, CodeNoLocalIdentity, r.Code)
	assert.False(t, tnc.Digipeater().Enabled())
}

func TestExecute_ConnectTableFull(t *testing.T) {
	var tnc, _, _ = newTestTNC(t, "K1AAA")

	for ssid := range MAX_CONNECTIONS {
		require.True(t, tnc.Execute("CONNECT W1AW "+string(rune('0'+ssid))).OK())
	}

	var r = tnc.Execute("CONNECT N0XYZ")
	assert.Equal(t, CodeTableFull, r.Code)
	assert.Equal(t, []string{"ERROR: Maximum connections reached (8)"}, r.Lines)
}

func TestExecute_Disconnect(t *testing.T) {
	var tnc, radio, clock = newTestTNC(t, "K1AAA")

	var r = tnc.Execute("DISCONNECT")
	assert.Equal(t, []string{"No active connections to disconnect"}, r.Lines)

	r = tnc.Execute("DISCONNECT W1AW")
	assert.Equal(t, CodeNotConnected, r.Code)
	assert.Equal(t, []string{"ERROR: No active connection to W1AW"}, r.Lines)

	require.True(t, tnc.Execute("CONNECT W1AW").OK())
	radio.Inject([]byte("UA:W1AW>K1AAA:CONNECT_ACKNOWLEDGED:10"), -80, 5)
	tnc.Poll()

	clock.Advance(75 * time.Second)

	r = tnc.Execute("D W1AW")
	require.True(t, r.OK(), r.String())
	assert.Equal(t, []string{"Disconnected from W1AW", "Connection duration: 75 seconds"}, r.Lines)

	require.True(t, tnc.Execute("CONNECT W1AW").OK())
	require.True(t, tnc.Execute("CONNECT N0XYZ").OK())

	r = tnc.Execute("DISCONNECT")
	require.True(t, r.OK())
	assert.Equal(t, "Disconnected 2 connection(s)", r.Lines[len(r.Lines)-1])
	assert.Empty(t, tnc.Links().Connections())
}

func TestExecute_Send(t *testing.T) {
	var tnc, radio, _ = newTestTNC(t, "K1AAA")

	var r = tnc.Execute("SEND W1AW")
	assert.Equal(t, CodeUsage, r.Code)

	r = tnc.Execute("SEND W1AW hello")
	assert.Equal(t, CodeNotConnected, r.Code)
	assert.Equal(t, []string{"ERROR: Not connected to W1AW"}, r.Lines)

	require.True(t, tnc.Execute("CONNECT W1AW").OK())
	radio.Inject([]byte("UA:W1AW>K1AAA:CONNECT_ACKNOWLEDGED:10"), -80, 5)
	tnc.Poll()
	radio.ClearSent()

	r = tnc.Execute("SEND W1AW hello   there")
	require.True(t, r.OK(), r.String())
	assert.Equal(t, []string{"Sent 11 bytes to W1AW"}, r.Lines)
	assert.Equal(t, []string{"I:K1AAA>W1AW:hello there"}, radio.SentText())
}

func TestExecute_Digi(t *testing.T) {
	var tnc, _, _ = newTestTNC(t, "K1AAA")

	var r = tnc.Execute("DIGI")
	assert.Contains(t, r.Lines, "Status: OFF")

	r = tnc.Execute("DIGI TEST W1AW>APRS,WIDE2-2")
	assert.Equal(t, []string{"Testing path: W1AW>APRS,WIDE2-2", "Would NOT digipeat this path", "(digipeater is off)"}, r.Lines)

	r = tnc.Execute("digi on")
	require.True(t, r.OK())
	assert.Equal(t, []string{"Digipeater enabled", "Using callsign: K1AAA"}, r.Lines)
	assert.True(t, tnc.Config().Digipeater.Enabled)

	r = tnc.Execute("DIGI TEST W1AW>APRS,WIDE2-2")
	assert.Contains(t, r.Lines, "Would digipeat with path: W1AW>APRS,WIDE2-1")

	r = tnc.Execute("DIGI HOPS 9")
	assert.Equal(t, CodeConfigInvalid, r.Code)
	assert.Equal(t, []string{"ERROR: Max hops must be 1-7"}, r.Lines)

	r = tnc.Execute("DIGI HOPS 1")
	require.True(t, r.OK())
	assert.Equal(t, 1, tnc.Digipeater().MaxHops())
	assert.Equal(t, 1, tnc.Config().Digipeater.MaxHops)

	r = tnc.Execute("DIGI TEST W1AW>APRS,WIDE2-2")
	assert.Contains(t, r.Lines, "(WIDE2-2 exceeds hop limit 1)")

	r = tnc.Execute("DIGI STATS")
	assert.Equal(t, []string{"Digipeater Statistics:", "Packets digipeated: 0", "Packets dropped: 0"}, r.Lines)

	r = tnc.Execute("DIGI OFF")
	assert.Equal(t, []string{"Digipeater disabled"}, r.Lines)
	assert.False(t, tnc.Digipeater().Enabled())

	r = tnc.Execute("DIGI SIDEWAYS")
	assert.Equal(t, CodeUsage, r.Code)
}

func TestExecute_Route(t *testing.T) {
	var tnc, _, clock = newTestTNC(t, "K1AAA")

	var r = tnc.Execute("ROUTE")
	assert.Contains(t, r.Lines, "(No routes configured)")

	r = tnc.Execute("ROUTE ADD w1aw n1dig 2 0.9")
	require.True(t, r.OK(), r.String())
	assert.Equal(t, []string{"Added route to W1AW via N1DIG (2 hops, Q=0.90)"}, r.Lines)

	r = tnc.Execute("ROUTE ADD W1AW N2DIG")
	assert.Equal(t, []string{"Updated route to W1AW via N2DIG"}, r.Lines)

	clock.Advance(30 * time.Second)

	r = tnc.Execute("ROUTE")
	assert.Contains(t, r.Lines, "W1AW      N2DIG     1    0.80    30s       30s       ACTIVE")

	r = tnc.Execute("ROUTE ADD W1AW N2DIG 8")
	assert.Equal(t, []string{"ERROR: Hops must be 1-7"}, r.Lines)

	r = tnc.Execute("ROUTE ADD W1AW N2DIG 1 1.5")
	assert.Equal(t, []string{"ERROR: Quality must be 0.0-1.0"}, r.Lines)

	r = tnc.Execute("ROUTE ADD W1AW N2DIG 2 NaN")
	assert.Equal(t, []string{"ERROR: Quality must be 0.0-1.0"}, r.Lines)

	var kept, _ = tnc.Routes().Lookup("W1AW")
	assert.InDelta(t, 0.8, kept.Quality, 0.001)

	r = tnc.Execute("ROUTE DEL N0NE")
	assert.Equal(t, CodeNotFound, r.Code)

	r = tnc.Execute("ROUTE DEL W1AW")
	assert.Equal(t, []string{"Deleted route to W1AW"}, r.Lines)

	tnc.Execute("ROUTE ADD A1A B1B")
	r = tnc.Execute("ROUTE CLEAR")
	assert.Equal(t, []string{"Routing table cleared"}, r.Lines)
	assert.Empty(t, tnc.Routes().Routes())

	r = tnc.Execute("ROUTE PURGE")
	assert.Equal(t, []string{"Purged 0 stale routes"}, r.Lines)

	r = tnc.Execute("ROUTE ADD W1AW")
	assert.Equal(t, CodeUsage, r.Code)
}

func TestExecute_RouteTableFull(t *testing.T) {
	var tnc, _, _ = newTestTNC(t, "K1AAA", func(c *Config) { c.Routes.Capacity = 1 })

	require.True(t, tnc.Execute("ROUTE ADD A1A N1DIG").OK())

	var r = tnc.Execute("ROUTE ADD B1B N1DIG")
	assert.Equal(t, CodeTableFull, r.Code)
	assert.Equal(t, []string{"ERROR: Routing table full (max 1 routes)"}, r.Lines)
}

func TestExecute_Nodes(t *testing.T) {
	var tnc, _, clock = newTestTNC(t, "K1AAA")

	var r = tnc.Execute("NODES")
	assert.Contains(t, r.Lines, "(No stations heard yet)")

	tnc.Heard().Observe("W1AW-7", -90, 5.5, 12, 125, "a fairly long message that is cut")
	tnc.Heard().Observe("N1DIG", -70, 9, 12, 125, "beacon")
	clock.Advance(3 * time.Minute)

	r = tnc.Execute("MHEARD")
	assert.Contains(t, r.Lines, "N1DIG     -70    9.0   1     3m      yes  beacon")
	assert.Contains(t, r.Lines, "W1AW-7    -90    5.5   1     3m           a fairly long mes...")
	assert.Contains(t, r.Lines, "Total nodes: 2")
	assert.Contains(t, r.Lines, "Best signal: N1DIG (-70 dBm)")

	/* Cut by character, not byte. */
	tnc.Heard().Observe("K1ZZZ-1", -100, 1, 12, 125, strings.Repeat("é", 25))

	r = tnc.Execute("NODES K1Z*")
	assert.Contains(t, r.Lines, "K1ZZZ-1   -100   1.0   1     0m           "+strings.Repeat("é", 17)+"...")

	r = tnc.Execute("NODES w1*")
	assert.Contains(t, r.Lines, "Total nodes: 1")
	assert.NotContains(t, r.Lines, "Best signal: N1DIG (-70 dBm)")

	r = tnc.Execute("NODES CLEAR")
	assert.Equal(t, []string{"Node table cleared"}, r.Lines)
	assert.Equal(t, 0, tnc.Heard().Len())

	r = tnc.Execute("NODES PURGE")
	assert.Equal(t, []string{"Purged 0 old nodes"}, r.Lines)
}

func TestExecute_MyCall(t *testing.T) {
	var tnc, _, _ = newTestTNC(t, "")

	assert.Equal(t, []string{"MYCALL: " + NOCALL}, tnc.Execute("MYCALL").Lines)

	var r = tnc.Execute("mycall w1aw-7")
	require.True(t, r.OK())
	assert.Equal(t, []string{"MYCALL set to W1AW-7"}, r.Lines)
	assert.Equal(t, StationID{Call: "W1AW", SSID: 7}, tnc.MyCall())
	assert.Equal(t, StationConfig{MyCall: "W1AW", SSID: 7}, tnc.Config().Station)
	assert.Equal(t, tnc.MyCall(), tnc.Links().MyCall())

	r = tnc.Execute("MYCALL TOOLONGCALL")
	assert.Equal(t, CodeConfigInvalid, r.Code)
	assert.Equal(t, StationID{Call: "W1AW", SSID: 7}, tnc.MyCall())
}

func TestExecute_Status(t *testing.T) {
	var tnc, radio, clock = newTestTNC(t, "K1AAA")

	radio.Inject([]byte("W1AW>APRS:hi"), -101, -3.5)
	tnc.Poll()
	clock.Advance(90 * time.Second)

	var r = tnc.Execute("STATUS")
	require.True(t, r.OK())

	for _, want := range []string{
		"Callsign: K1AAA",
		"Uptime: 1m30s",
		"Frames received: 1 (12 bytes)",
		"Last RSSI: -101 dBm, SNR: -3.5 dB",
		"Connections: 0 of 8",
		"Receive indications: OFF",
		"TXDELAY 50 PERSIST 63 SLOTTIME 10 TXTAIL 30 FULLDUPLEX OFF",
	} {
		assert.Contains(t, r.Lines, want)
	}
}
