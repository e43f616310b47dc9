package loratnc

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/strftime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKissUtil() (*kissUtil, *bytes.Buffer, *bytes.Buffer) {
	var tnc, out bytes.Buffer

	var ku = &kissUtil{ //nolint:exhaustruct
		tnc: &tnc,
		out: &out,
		now: func() time.Time { return t0.Add(250 * time.Millisecond) },
	}

	return ku, &tnc, &out
}

// sentFrames decodes what kissutil wrote to the TNC.
func sentFrames(t *testing.T, b *bytes.Buffer) []Frame {
	t.Helper()

	var frames []Frame

	var dec = NewDecoder(MAX_KISS_LEN, func(f Frame) { frames = append(frames, f) }, func(err error) {
		t.Errorf("decode: %s", err)
	})
	dec.Write(b.Bytes()) //nolint:errcheck

	return frames
}

func TestKissUtil_ProcessInput(t *testing.T) {
	var ku, tnc, out = newTestKissUtil()

	for _, line := range []string{
		"W1AW>APRS,WIDE2-2:hello\n",
		"d 30",
		"p",
		"f 1",
		"h TNC:",
		"h 03 0a",
		"m 433.775",
		"g",
		"q",
		"b",
		"v",
		"r 0",
		"x",
		"",
	} {
		ku.processInput(line)
	}

	assert.Equal(t, "Missing number for KISS command.  Using default 63.\n"+
		"Missing number for KISS command.  Using default 1.\n", out.String())

	var want = []Frame{
		{Command: CmdData, Payload: []byte("W1AW>APRS,WIDE2-2:hello")},
		{Command: CmdTxDelay, Payload: []byte{30}},
		{Command: CmdPersistence, Payload: []byte{63}},
		{Command: CmdFullDuplex, Payload: []byte{1}},
		{Command: CmdSetHardware, Payload: []byte("TNC:")},
		{Command: CmdSetHardware, Payload: []byte{HW_SET_SPREADING, 10}},
		{Command: CmdSetHardware, Payload: append([]byte{HW_SET_FREQUENCY}, binary.BigEndian.AppendUint32(nil, math.Float32bits(433.775))...)},
		{Command: CmdSetHardware, Payload: []byte{HW_GET_CONFIG}},
		{Command: CmdStatusRequest, Payload: []byte{}},
		{Command: CmdBufferStatus, Payload: []byte{}},
		{Command: CmdProtocolVersion, Payload: []byte{}},
		{Command: CmdEnhancedConfig, Payload: []byte{ENH_RX_INDICATIONS, 0}},
		{Command: CmdFlowControl, Payload: []byte{1}},
	}

	assert.Equal(t, want, sentFrames(t, tnc))
}

func TestKissUtil_BadInput(t *testing.T) {
	var ku, tnc, out = newTestKissUtil()

	ku.processInput("d 300")
	assert.Contains(t, out.String(), "out of range 0-255.  Using default 50.")

	out.Reset()
	ku.processInput("z")
	assert.Contains(t, out.String(), "Invalid command. Must be one of d p s t f h m g q b v r x.")
	assert.Contains(t, out.String(), "RSSI/SNR indications")

	out.Reset()
	ku.processInput("h 0x")
	assert.Equal(t, "Set hardware expects text like TNC: or hexadecimal bytes like 05 14.\n", out.String())

	out.Reset()
	ku.processInput("m four")
	assert.Equal(t, "Frequency in MHz expected, e.g. m 433.775\n", out.String())

	out.Reset()
	ku.processInput("<nonsense>")
	assert.Contains(t, out.String(), "starting with upper case letter or digit")

	/* Only the clamped txdelay went out. */
	assert.Len(t, sentFrames(t, tnc), 1)
}

func TestKissUtil_Verbose(t *testing.T) {
	var ku, _, out = newTestKissUtil()
	ku.verbose = true

	ku.processInput("q")

	assert.Equal(t, "Sending to KISS TNC:\n  000:  c0 10 c0"+strings.Repeat("   ", 13)+"  ...\n", out.String())
}

func TestKissUtil_ProcessFrame(t *testing.T) {
	var ku, _, out = newTestKissUtil()

	var show = func(frame []byte) string {
		t.Helper()

		out.Reset()

		var f, err = Unwrap(frame)
		require.NoError(t, err)

		ku.processFrame(f)

		return out.String()
	}

	assert.Equal(t, "W1AW>APRS:hi<0x0d>\n", show(Encapsulate(CmdData, []byte("W1AW>APRS:hi\r"))))

	assert.Equal(t, "[-97 dBm 6.2 dB] W1AW>APRS:x\n",
		show(RxIndication{RSSI: -97, SNR: 6.2, Timestamp: 1, Payload: []byte("W1AW>APRS:x")}.Encode()))

	assert.Equal(t, "Radio: "+DefaultRadioParams().String()+"\n", show(EncodeHardwareConfig(DefaultRadioParams())))

	assert.Equal(t, "h TXBUF:0\n", show(Encapsulate(CmdSetHardware, []byte("TXBUF:0"))))

	assert.Equal(t, "Statistics: rx 3, tx 2, errors 1, uptime 60s, last RSSI -90 dBm, SNR 4.5 dB\n",
		show(StatisticsReport{RxFrames: 3, TxFrames: 2, Errors: 1, Uptime: 60, RSSI: -90, SNR: 4.5}.Encode()))

	assert.Equal(t, "TNC error 5: link timeout: W1AW\n",
		show(ErrorReport{Code: 5, Description: "link timeout: W1AW"}.Encode()))

	assert.Equal(t, "Buffer: backlog 1/32, decoder 0/512, paused true\n",
		show(BufferStatus{Backlog: 1, BacklogCapacity: 32, DecoderCapacity: 512, Paused: true}.Encode()))

	assert.Equal(t, "Protocol 1.0, LoRaTNCX test\n",
		show(ProtocolVersion{Major: 1, Minor: 0, Firmware: "LoRaTNCX test"}.Encode()))

	assert.Equal(t, "ERROR - statistics of 2 bytes: invalid frame\n", show(Encapsulate(CmdStatistics, []byte{1, 2})))

	assert.Contains(t, show(Encapsulate(CmdTxDelay, []byte{1})), "Unexpected KISS command")
}

func TestKissUtil_TimestampAndSave(t *testing.T) {
	var ku, _, out = newTestKissUtil()
	var dir = t.TempDir()

	var f, err = strftime.New("%H:%M:%S")
	require.NoError(t, err)

	ku.timestamp = f
	ku.receiveOutput = dir

	ku.processFrame(Frame{Command: CmdData, Payload: []byte("W1AW>APRS:hi")})

	var saved = filepath.Join(dir, "20250301-120000-250")

	assert.Equal(t, "[12:00:00] W1AW>APRS:hi\nSave received frame to "+saved+"\n", out.String())

	var content, readErr = os.ReadFile(saved)
	require.NoError(t, readErr)
	assert.Equal(t, "[12:00:00] W1AW>APRS:hi\n", string(content))
}

func TestKissUtil_Listen(t *testing.T) {
	var ku, _, out = newTestKissUtil()

	var stream bytes.Buffer
	stream.WriteString("\r\ncmd:MYCALL: W1AW\r")
	stream.Write(Encapsulate(CmdData, []byte("W1AW>APRS:one")))
	stream.Write([]byte{FEND, 0x42, FEND})

	ku.listen(&stream)

	assert.Equal(t, "\ncmd:MYCALL: W1AW\nW1AW>APRS:one\nERROR - unknown command 0x42: invalid frame\n\nError reading from KISS TNC: EOF\n", out.String())
}

func TestParseNumber(t *testing.T) {
	var out bytes.Buffer

	assert.Equal(t, 7, parseNumber(&out, " 7 ", 1))
	assert.Equal(t, 255, parseNumber(&out, "255", 1))
	assert.Empty(t, out.String())

	assert.Equal(t, 1, parseNumber(&out, "-1", 1))
	assert.Equal(t, 1, parseNumber(&out, "x", 1))
	assert.Equal(t, 1, parseNumber(&out, "", 1))
	assert.Equal(t, 3, strings.Count(out.String(), "Using default 1."))
}

func TestSafePrint(t *testing.T) {
	assert.Equal(t, "abc", safePrint([]byte("abc")))
	assert.Equal(t, "a<0x00>b<0x7f><0xc0>", safePrint([]byte{'a', 0, 'b', 0x7f, 0xc0}))
}

func TestTimestampFilename(t *testing.T) {
	assert.Equal(t, "20250301-120000-000", timestampFilename(t0))
	assert.Equal(t, "20250301-120001-007", timestampFilename(t0.Add(1007*time.Millisecond)))
}

func TestHexDump(t *testing.T) {
	var out bytes.Buffer

	hexDump(&out, []byte("0123456789abcdef\x01Z"))

	assert.Equal(t,
		"  000:  30 31 32 33 34 35 36 37 38 39 61 62 63 64 65 66  0123456789abcdef\n"+
			"  010:  01 5a"+strings.Repeat("   ", 14)+"  .Z\n",
		out.String())

	out.Reset()
	hexDump(&out, nil)
	assert.Empty(t, out.String())
}
