package loratnc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var knownCommands = []Command{
	CmdData, CmdTxDelay, CmdPersistence, CmdSlotTime, CmdTxTail, CmdFullDuplex, CmdSetHardware,
	CmdStatusRequest, CmdStatistics, CmdErrorReport, CmdRxIndication, CmdFlowControl,
	CmdBufferStatus, CmdProtocolVersion, CmdEnhancedConfig, CmdReturn,
}

// collect returns a decoder which saves everything it reports.
func collect(capacity int) (*Decoder, *[]Frame, *[]error) {
	var frames []Frame
	var errs []error

	var d = NewDecoder(capacity, func(f Frame) {
		frames = append(frames, f)
	}, func(err error) {
		errs = append(errs, err)
	})

	return d, &frames, &errs
}

func TestEncapsulate_Escapes(t *testing.T) {
	var got = Encapsulate(CmdData, []byte{'A', FEND, 'B', FESC, 'C'})

	assert.Equal(t, []byte{FEND, 0x00, 'A', FESC, TFEND, 'B', FESC, TFESC, 'C', FEND}, got)
}

func TestEncapsulate_Empty(t *testing.T) {
	assert.Equal(t, []byte{FEND, 0x00, FEND}, Encapsulate(CmdData, nil))
}

func TestEncapsulate_CommandIsEscapedToo(t *testing.T) {
	assert.Equal(t, []byte{FEND, FESC, TFEND, FEND}, Encapsulate(Command(FEND), nil))
}

func TestUnwrap(t *testing.T) {
	var f, err = Unwrap([]byte{FEND, 0x01, 0x32, FEND})

	require.NoError(t, err)
	assert.Equal(t, CmdTxDelay, f.Command)
	assert.Equal(t, []byte{0x32}, f.Payload)
}

func TestUnwrap_OptionalDelimiters(t *testing.T) {
	var f, err = Unwrap([]byte{0x00, 'h', 'i'})

	require.NoError(t, err)
	assert.Equal(t, CmdData, f.Command)
	assert.Equal(t, []byte("hi"), f.Payload)
}

func TestUnwrap_Errors(t *testing.T) {
	var _, err = Unwrap([]byte{FEND, FEND})
	assert.ErrorIs(t, err, ErrInvalidFrame)

	_, err = Unwrap([]byte{FEND, 0x00, FESC, 'x', FEND})
	assert.ErrorIs(t, err, ErrInvalidFrame)

	_, err = Unwrap([]byte{FEND, 0x7E, 'x', FEND})
	assert.ErrorIs(t, err, ErrInvalidFrame, "0x7E is not a command")
}

func TestCommand_Kind(t *testing.T) {
	var k, ok = CmdData.Kind()
	assert.True(t, ok)
	assert.Equal(t, KindData, k)

	k, ok = CmdSetHardware.Kind()
	assert.True(t, ok)
	assert.Equal(t, KindHardware, k)

	k, ok = CmdRxIndication.Kind()
	assert.True(t, ok)
	assert.Equal(t, KindEnhanced, k)

	_, ok = Command(0x42).Kind()
	assert.False(t, ok)

	assert.Equal(t, "TXDELAY", CmdTxDelay.String())
	assert.Equal(t, "CMD_42", Command(0x42).String())
}

func TestDecoder_SharedDelimiter(t *testing.T) {
	var d, frames, errs = collect(MAX_KISS_LEN)

	d.Write([]byte{FEND, 0x00, 'A', FEND, 0x00, 'B', FEND}) //nolint:errcheck

	require.Len(t, *frames, 2)
	assert.Empty(t, *errs)
	assert.Equal(t, []byte("A"), (*frames)[0].Payload)
	assert.Equal(t, []byte("B"), (*frames)[1].Payload)
}

func TestDecoder_IdleFill(t *testing.T) {
	var d, frames, errs = collect(MAX_KISS_LEN)

	d.Write([]byte{FEND, FEND, FEND, 0x05, 0x01, FEND, FEND}) //nolint:errcheck

	require.Len(t, *frames, 1)
	assert.Empty(t, *errs)
	assert.Equal(t, CmdFullDuplex, (*frames)[0].Command)
}

func TestDecoder_OverflowIsContained(t *testing.T) {
	var d, frames, errs = collect(8)

	d.PutByte(FEND)
	d.Write(bytes.Repeat([]byte{'x'}, 20)) //nolint:errcheck
	d.PutByte(FEND)

	require.Len(t, *errs, 1)
	assert.ErrorIs(t, (*errs)[0], ErrBufferOverflow)
	assert.Empty(t, *frames)

	/* The next frame is unaffected. */
	d.Write(Encapsulate(CmdData, []byte("ok"))) //nolint:errcheck

	require.Len(t, *frames, 1)
	assert.Equal(t, []byte("ok"), (*frames)[0].Payload)
	assert.Equal(t, 0, d.Buffered())
}

func TestDecoder_BadEscapeResyncs(t *testing.T) {
	var d, frames, errs = collect(MAX_KISS_LEN)

	d.Write([]byte{FEND, 0x00, FESC, 'q', 'z', 'z', FEND, 0x00, 'y', FEND}) //nolint:errcheck

	require.Len(t, *errs, 1)
	assert.ErrorIs(t, (*errs)[0], ErrInvalidFrame)
	require.Len(t, *frames, 1)
	assert.Equal(t, []byte("y"), (*frames)[0].Payload)
}

func TestDecoder_Noise(t *testing.T) {
	var d, _, _ = collect(MAX_KISS_LEN)
	var lines []string

	d.OnNoise = func(line []byte) {
		lines = append(lines, string(line))
	}

	d.Write([]byte("STATUS\rMYCALL\r")) //nolint:errcheck

	assert.Equal(t, []string{"STATUS\r", "MYCALL\r"}, lines)
	assert.Equal(t, WaitDelimiter, d.State())
}

func TestDecoder_FailedFrameIsNotNoise(t *testing.T) {
	var d, frames, errs = collect(8)
	var lines []string

	d.OnNoise = func(line []byte) {
		lines = append(lines, string(line))
	}

	d.PutByte(FEND)
	d.Write(bytes.Repeat([]byte{'x'}, 20))      //nolint:errcheck
	d.Write([]byte("\rROUTE CLEAR\r"))          //nolint:errcheck
	d.Write([]byte{FEND, 0x00, FESC, 'Z'})      //nolint:errcheck
	d.Write([]byte("\rDISCONNECT ALL\r"))       //nolint:errcheck
	d.Write(Encapsulate(CmdData, []byte("ok"))) //nolint:errcheck

	assert.Empty(t, lines)
	require.Len(t, *errs, 2)
	assert.ErrorIs(t, (*errs)[0], ErrBufferOverflow)
	assert.ErrorIs(t, (*errs)[1], ErrInvalidFrame)
	require.Len(t, *frames, 1)
	assert.Equal(t, []byte("ok"), (*frames)[0].Payload)

	/* Text between good frames still counts. */
	d.Write([]byte("STATUS\r")) //nolint:errcheck
	assert.Equal(t, []string{"STATUS\r"}, lines)
}

func TestDecoder_StateAndReset(t *testing.T) {
	var d, frames, _ = collect(MAX_KISS_LEN)

	d.Write([]byte{FEND, 0x00, 'a', 'b'}) //nolint:errcheck
	assert.Equal(t, InFrame, d.State())
	assert.Equal(t, 3, d.Buffered())

	d.PutByte(FESC)
	assert.Equal(t, Escaped, d.State())

	d.Reset()
	assert.Equal(t, WaitDelimiter, d.State())
	assert.Equal(t, 0, d.Buffered())
	assert.Empty(t, *frames)
}

func Test_EncapsulateRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var cmd = rapid.SampledFrom(knownCommands).Draw(t, "cmd")
		var payload = rapid.SliceOfN(rapid.Byte(), 0, MAX_KISS_LEN-1).Draw(t, "payload")

		var encoded = Encapsulate(cmd, payload)

		/* Only the delimiters are FEND. */
		assert.Equal(t, FEND, int(encoded[0]))
		assert.Equal(t, FEND, int(encoded[len(encoded)-1]))
		assert.NotContains(t, encoded[1:len(encoded)-1], byte(FEND))

		var f, err = Unwrap(encoded)

		require.NoError(t, err)
		assert.Equal(t, cmd, f.Command)
		assert.Equal(t, payload, f.Payload)
	})
}

func Test_DecoderStream(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var payloads = rapid.SliceOfN(rapid.SliceOfN(rapid.Byte(), 0, 64), 1, 8).Draw(t, "payloads")

		var stream []byte
		for _, p := range payloads {
			stream = append(stream, Encapsulate(CmdData, p)...)
		}

		var d, frames, errs = collect(MAX_KISS_LEN)

		/* Arbitrary chunking makes no difference. */
		for len(stream) > 0 {
			var n = rapid.IntRange(1, len(stream)).Draw(t, "chunk")
			d.Write(stream[:n]) //nolint:errcheck
			stream = stream[n:]
		}

		assert.Empty(t, *errs)
		require.Len(t, *frames, len(payloads))

		for i, p := range payloads {
			assert.Equal(t, p, (*frames)[i].Payload)
		}
	})
}
