package loratnc

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func station(t *testing.T, text string) StationID {
	t.Helper()

	var id, err = ParseStationID(text)
	require.NoError(t, err)

	return id
}

func newTestLinks(t *testing.T) (*ConnectionManager, *MemoryRadio, *ManualClock) {
	t.Helper()

	var radio = NewMemoryRadio()
	var clock = NewManualClock(t0)
	var m = NewConnectionManager(radio, clock, DefaultLinkConfig(), nil, nil)

	m.SetMyCall(station(t, "N0CALL-1"))

	return m, radio, clock
}

func TestConnect_SendsSABM(t *testing.T) {
	var m, radio, _ = newTestLinks(t)

	require.NoError(t, m.Connect(station(t, "W1AW")))

	var sent = radio.SentText()
	require.Len(t, sent, 1)
	assert.Equal(t, "SABM:N0CALL-1>W1AW:CONNECT_REQUEST:0", sent[0])

	var c, ok = m.Lookup(station(t, "w1aw"))
	require.True(t, ok)
	assert.Equal(t, StateConnecting, c.State)
	assert.True(t, c.PollBit)
}

func TestConnect_Errors(t *testing.T) {
	var radio = NewMemoryRadio()
	var m = NewConnectionManager(radio, NewManualClock(t0), DefaultLinkConfig(), nil, nil)

	assert.ErrorIs(t, m.Connect(station(t, "W1AW")), ErrNoLocalIdentity)

	m.SetMyCall(station(t, "N0CALL"))

	require.NoError(t, m.Connect(station(t, "W1AW")))
	assert.ErrorIs(t, m.Connect(station(t, "W1AW")), ErrAlreadyActive)

	/* Different SSID is a different station. */
	require.NoError(t, m.Connect(station(t, "W1AW-2")))
}

func TestConnect_TransmitFailureHoldsNoSlot(t *testing.T) {
	var m, radio, _ = newTestLinks(t)

	radio.FailTransmit(true)

	var err = m.Connect(station(t, "W1AW"))
	assert.ErrorIs(t, err, ErrRadioFailure)
	assert.Empty(t, m.Connections())

	radio.FailTransmit(false)
	require.NoError(t, m.Connect(station(t, "W1AW")))
}

func TestConnect_TableFull(t *testing.T) {
	var m, _, _ = newTestLinks(t)

	for i := range MAX_CONNECTIONS {
		require.NoError(t, m.Connect(station(t, fmt.Sprintf("K1AB-%d", i))))
	}

	assert.ErrorIs(t, m.Connect(station(t, "W1AW")), ErrTableFull)
	assert.Len(t, m.Connections(), MAX_CONNECTIONS)
}

func TestConnect_StaleHandshakeIsReclaimed(t *testing.T) {
	var m, _, clock = newTestLinks(t)

	for i := range MAX_CONNECTIONS {
		require.NoError(t, m.Connect(station(t, fmt.Sprintf("K1AB-%d", i))))
	}

	clock.Advance(DefaultLinkConfig().ConnectTimeout)

	require.NoError(t, m.Connect(station(t, "W1AW")))

	var _, ok = m.Lookup(station(t, "K1AB-0"))
	assert.False(t, ok)
}

func TestTick_ConnectTimeout(t *testing.T) {
	var m, _, clock = newTestLinks(t)
	var w1aw = station(t, "W1AW")

	require.NoError(t, m.Connect(w1aw))

	clock.Advance(89 * time.Second)
	m.Tick()

	var c, ok = m.Lookup(w1aw)
	require.True(t, ok)
	assert.Equal(t, StateConnecting, c.State)

	clock.Advance(time.Second)

	var events = m.Tick()
	require.Len(t, events, 1)
	assert.Equal(t, LinkTimedOut, events[0].Kind)
	assert.True(t, events[0].Remote.Equal(w1aw))
	assert.ErrorIs(t, events[0].Err, ErrTimeout)

	_, ok = m.Lookup(w1aw)
	assert.False(t, ok, "slot is DISCONNECTED and free")
	assert.Empty(t, m.Connections())
}

func TestTick_ResendsSABM(t *testing.T) {
	var m, radio, clock = newTestLinks(t)

	require.NoError(t, m.Connect(station(t, "W1AW")))

	clock.Advance(8 * time.Second)
	m.Tick()
	clock.Advance(time.Second)
	m.Tick()

	assert.Len(t, radio.Sent(), 2)

	var c, _ = m.Lookup(station(t, "W1AW"))
	assert.Equal(t, 1, c.Retries)
}

func TestTick_IdleTimeout(t *testing.T) {
	var m, radio, clock = newTestLinks(t)
	var cfg = DefaultLinkConfig()
	cfg.IdleTimeout = 5 * time.Minute
	m.SetConfig(cfg)

	var w1aw = station(t, "W1AW")
	require.NoError(t, m.Connect(w1aw))

	var _, ours = m.HandleFrame(LinkFrame{Type: LinkUA, Source: w1aw, Dest: m.MyCall()})
	require.True(t, ours)

	radio.ClearSent()
	clock.Advance(5 * time.Minute)

	var events = m.Tick()
	require.Len(t, events, 1)
	assert.Equal(t, LinkIdle, events[0].Kind)
	assert.Equal(t, 5*time.Minute, events[0].Duration)
	assert.Contains(t, radio.SentText()[0], "DISC:N0CALL-1>W1AW:DISCONNECT_REQUEST")
}

func TestHandshake(t *testing.T) {
	var m, radio, clock = newTestLinks(t)
	var w1aw = station(t, "W1AW")

	require.NoError(t, m.Connect(w1aw))
	clock.Advance(2 * time.Second)

	var ev, ours = m.HandleFrame(LinkFrame{Type: LinkUA, Source: w1aw, Dest: m.MyCall()})
	require.True(t, ours)
	assert.Equal(t, LinkUp, ev.Kind)

	var c, _ = m.Lookup(w1aw)
	assert.Equal(t, StateConnected, c.State)
	assert.Equal(t, t0.Add(2*time.Second), c.ConnectTime)

	require.NoError(t, m.Send(w1aw, "hello"))
	assert.Equal(t, "I:N0CALL-1>W1AW:hello", radio.SentText()[1])

	c, _ = m.Lookup(w1aw)
	assert.Equal(t, uint8(1), c.VS)

	clock.Advance(30 * time.Second)

	var r, err = m.Disconnect(w1aw)
	require.NoError(t, err)
	assert.True(t, r.WasConnected)
	assert.Equal(t, 30*time.Second, r.Duration)

	var _, ok = m.Lookup(w1aw)
	assert.False(t, ok)
}

func TestDisconnect_NotConnected(t *testing.T) {
	var m, _, _ = newTestLinks(t)

	var _, err = m.Disconnect(station(t, "W1AW"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDisconnect_TransmitFailureKeepsSlot(t *testing.T) {
	var m, radio, _ = newTestLinks(t)
	var w1aw = station(t, "W1AW")

	require.NoError(t, m.Connect(w1aw))
	radio.FailTransmit(true)

	var _, err = m.Disconnect(w1aw)
	assert.ErrorIs(t, err, ErrRadioFailure)

	var c, ok = m.Lookup(w1aw)
	require.True(t, ok)
	assert.Equal(t, StateConnecting, c.State)
}

func TestDisconnectAll(t *testing.T) {
	var m, _, _ = newTestLinks(t)

	require.NoError(t, m.Connect(station(t, "W1AW")))
	require.NoError(t, m.Connect(station(t, "K1ABC")))

	var results = m.DisconnectAll()
	require.Len(t, results, 2)

	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.False(t, r.WasConnected)
	}

	assert.Empty(t, m.Connections())
	assert.Empty(t, m.DisconnectAll())
}

func TestSend_NotConnected(t *testing.T) {
	var m, _, _ = newTestLinks(t)
	var w1aw = station(t, "W1AW")

	assert.ErrorIs(t, m.Send(w1aw, "x"), ErrNotConnected)

	require.NoError(t, m.Connect(w1aw))
	assert.ErrorIs(t, m.Send(w1aw, "x"), ErrNotConnected, "still CONNECTING")
}

func TestHandleFrame_IncomingSABM(t *testing.T) {
	var m, radio, _ = newTestLinks(t)
	var k1abc = station(t, "K1ABC-7")

	var ev, ours = m.HandleFrame(LinkFrame{Type: LinkSABM, Source: k1abc, Dest: m.MyCall()})
	require.True(t, ours)
	assert.Equal(t, LinkUp, ev.Kind)
	assert.NoError(t, ev.Err)
	assert.Contains(t, radio.SentText()[0], "UA:N0CALL-1>K1ABC-7:CONNECT_ACKNOWLEDGED:")

	var c, _ = m.Lookup(k1abc)
	assert.Equal(t, StateConnected, c.State)

	/* A repeated SABM is answered but not reported again. */
	ev, _ = m.HandleFrame(LinkFrame{Type: LinkSABM, Source: k1abc, Dest: m.MyCall()})
	assert.Equal(t, LinkEventKind(0), ev.Kind)
	assert.Len(t, radio.Sent(), 2)

	ev, _ = m.HandleFrame(LinkFrame{Type: LinkI, Source: k1abc, Dest: m.MyCall(), Info: "hi there"})
	assert.Equal(t, LinkData, ev.Kind)
	assert.Equal(t, "hi there", ev.Info)

	c, _ = m.Lookup(k1abc)
	assert.Equal(t, uint8(1), c.VR)

	ev, _ = m.HandleFrame(LinkFrame{Type: LinkDISC, Source: k1abc, Dest: m.MyCall()})
	assert.Equal(t, LinkDown, ev.Kind)
	assert.Empty(t, m.Connections())
	require.Len(t, radio.Sent(), 3)
	assert.Contains(t, radio.SentText()[2], "UA:N0CALL-1>K1ABC-7:")
}

func TestHandleFrame_DISCWithoutSlot(t *testing.T) {
	var m, radio, _ = newTestLinks(t)

	var ev, ours = m.HandleFrame(LinkFrame{Type: LinkDISC, Source: station(t, "K1ABC-7"), Dest: m.MyCall()})
	require.True(t, ours)
	assert.Equal(t, LinkEventKind(0), ev.Kind)
	assert.Empty(t, radio.Sent(), "no UA for a station without a slot")
}

func TestHandleFrame_NotForUs(t *testing.T) {
	var m, radio, _ = newTestLinks(t)

	var _, ours = m.HandleFrame(LinkFrame{Type: LinkSABM, Source: station(t, "K1ABC"), Dest: station(t, "W1AW")})
	assert.False(t, ours)
	assert.Empty(t, radio.Sent())
}

func TestHandleFrame_SABMWithTableFull(t *testing.T) {
	var m, _, _ = newTestLinks(t)

	for i := range MAX_CONNECTIONS {
		var _, ours = m.HandleFrame(LinkFrame{Type: LinkSABM, Source: station(t, fmt.Sprintf("K1AB-%d", i)), Dest: m.MyCall()})
		require.True(t, ours)
	}

	var ev, _ = m.HandleFrame(LinkFrame{Type: LinkSABM, Source: station(t, "W1AW"), Dest: m.MyCall()})
	assert.Equal(t, LinkRejected, ev.Kind)
	assert.ErrorIs(t, ev.Err, ErrTableFull)
}

func TestLinkFrame_Parse(t *testing.T) {
	var f, err = ParseLinkFrame([]byte("SABM:W1AW-3>N0CALL:CONNECT_REQUEST:4711"))
	require.NoError(t, err)
	assert.Equal(t, LinkSABM, f.Type)
	assert.Equal(t, "W1AW-3", f.Source.String())
	assert.Equal(t, "N0CALL", f.Dest.String())
	assert.Equal(t, int64(4711), f.Timestamp)

	f, err = ParseLinkFrame([]byte("I:W1AW>N0CALL:text: with colons"))
	require.NoError(t, err)
	assert.Equal(t, "text: with colons", f.Info)

	for _, bad := range []string{
		"W1AW>APRS,WIDE1-1:hello",
		"XYZ:W1AW>N0CALL:foo",
		"UA:W1AW",
		"DISC:W1AW N0CALL:DISCONNECT_REQUEST:1",
		"UA:W1AW-99>N0CALL:CONNECT_ACKNOWLEDGED:1",
	} {
		_, err = ParseLinkFrame([]byte(bad))
		assert.ErrorIs(t, err, ErrInvalidFrame, bad)
	}
}

func TestLinkFrame_EncodeParse(t *testing.T) {
	var f = LinkFrame{Type: LinkDISC, Source: station(t, "N0CALL-1"), Dest: station(t, "W1AW"), Timestamp: 99}

	var back, err = ParseLinkFrame(f.Encode())
	require.NoError(t, err)
	assert.Equal(t, f, back)
}

func TestLinkConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultLinkConfig().Validate())

	var cfg = DefaultLinkConfig()
	cfg.Frack = 20 * time.Second
	assert.ErrorIs(t, cfg.Validate(), ErrConfigInvalid)

	cfg = DefaultLinkConfig()
	cfg.ConnectTimeout = 0
	assert.ErrorIs(t, cfg.Validate(), ErrConfigInvalid)
}

func TestLinkState_String(t *testing.T) {
	assert.Equal(t, "CONNECTED", StateConnected.String())
	assert.Equal(t, "DISCONNECTING", StateDisconnecting.String())
}
