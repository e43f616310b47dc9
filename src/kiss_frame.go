package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:   	KISS framing shared by every host transport and by
 *		the enhanced status path.
 *
 * Description: The KISS TNC protocol is described in http://www.ka9q.net/papers/kiss.html
 *
 * 		Briefly, a frame is composed of
 *
 *			* FEND (0xC0)
 *			* Contents - with special escape sequences so a 0xc0
 *				byte in the data is not taken as end of frame.
 *			* FEND
 *
 *		The first byte of the contents is the command.
 *		Unlike classic multi-port KISS the whole byte is the
 *		command because the enhanced codes (0x10 and up) would
 *		otherwise collide with port numbers.
 *
 *		Commands from application to TNC:
 *
 *			00	Data Frame	Payload to transmit over LoRa.
 *			01	TXDELAY		Accepted, stored, no effect on LoRa.
 *			02	Persistence	"	"
 *			03 	SlotTime	"	"
 *			04	TXtail		"	"
 *			05	FullDuplex	"	"
 *			06	SetHardware	LoRa radio parameters.
 *			10	Status		Request a statistics frame.
 *			18	Flow control	Pause / resume delivery.
 *			19	Buffer status	Request a buffer status frame.
 *			20	Version		Request protocol version.
 *			21	Enhanced config	Toggle receive indications.
 *			FF	Return		Exit KISS mode.  Ignored.
 *
 *		Messages sent to client application:
 *
 *			00	Data Frame	Received payload.
 *			06	SetHardware	Response to a get config query.
 *			11	Statistics
 *			12	Error report
 *			13	Receive indication with RSSI, SNR and time.
 *			19	Buffer status
 *			20	Protocol version
 *
 *---------------------------------------------------------------*/

import (
	"bytes"
	"fmt"
)

/*
 * Special characters used by SLIP protocol.
 */

const FEND = 0xC0
const FESC = 0xDB
const TFEND = 0xDC
const TFESC = 0xDD

type Command byte

const (
	CmdData            Command = 0x00
	CmdTxDelay         Command = 0x01
	CmdPersistence     Command = 0x02
	CmdSlotTime        Command = 0x03
	CmdTxTail          Command = 0x04
	CmdFullDuplex      Command = 0x05
	CmdSetHardware     Command = 0x06
	CmdStatusRequest   Command = 0x10
	CmdStatistics      Command = 0x11
	CmdErrorReport     Command = 0x12
	CmdRxIndication    Command = 0x13
	CmdFlowControl     Command = 0x18
	CmdBufferStatus    Command = 0x19
	CmdProtocolVersion Command = 0x20
	CmdEnhancedConfig  Command = 0x21
	CmdReturn          Command = 0xFF
)

type FrameKind int

const (
	KindData FrameKind = iota
	KindHardware
	KindEnhanced
)

func (k FrameKind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindHardware:
		return "hardware"
	case KindEnhanced:
		return "enhanced"
	default:
		return fmt.Sprintf("FrameKind(%d)", int(k))
	}
}

var commandNames = map[Command]string{
	CmdData:            "DATA",
	CmdTxDelay:         "TXDELAY",
	CmdPersistence:     "PERSIST",
	CmdSlotTime:        "SLOTTIME",
	CmdTxTail:          "TXTAIL",
	CmdFullDuplex:      "FULLDUPLEX",
	CmdSetHardware:     "SETHARDWARE",
	CmdStatusRequest:   "STATUS",
	CmdStatistics:      "STATISTICS",
	CmdErrorReport:     "ERROR",
	CmdRxIndication:    "RXIND",
	CmdFlowControl:     "FLOWCONTROL",
	CmdBufferStatus:    "BUFSTATUS",
	CmdProtocolVersion: "VERSION",
	CmdEnhancedConfig:  "ENHCONFIG",
	CmdReturn:          "RETURN",
}

func (c Command) String() string {
	var name, ok = commandNames[c]
	if !ok {
		return fmt.Sprintf("CMD_%02X", byte(c))
	}

	return name
}

// Kind classifies a command byte.  ok is false for bytes that are not commands.
func (c Command) Kind() (FrameKind, bool) {
	switch {
	case c == CmdData:
		return KindData, true
	case c >= CmdTxDelay && c <= CmdSetHardware, c == CmdReturn:
		return KindHardware, true
	default:
		var _, known = commandNames[c]

		return KindEnhanced, known
	}
}

// Frame is one decoded KISS frame.  Payload excludes the command byte.
type Frame struct {
	Command Command
	Payload []byte
}

func (f Frame) Kind() FrameKind {
	var k, _ = f.Command.Kind()

	return k
}

/*-------------------------------------------------------------------
 *
 * Name:        Encapsulate
 *
 * Purpose:     Wrap command and payload into the KISS wire format.
 *
 * Returns:	FEND, escaped command, escaped payload, FEND.
 *		The output never contains FEND or FESC except as
 *		the delimiters and escape prefixes.
 *
 *--------------------------------------------------------------------*/

func Encapsulate(cmd Command, payload []byte) []byte {
	var buf bytes.Buffer

	buf.Grow(len(payload) + 4)
	buf.WriteByte(FEND)
	writeEscaped(&buf, byte(cmd))

	for _, b := range payload {
		writeEscaped(&buf, b)
	}

	buf.WriteByte(FEND)

	return buf.Bytes()
}

func (f Frame) Encode() []byte {
	return Encapsulate(f.Command, f.Payload)
}

func writeEscaped(buf *bytes.Buffer, b byte) {
	switch b {
	case FEND:
		buf.WriteByte(FESC)
		buf.WriteByte(TFEND)
	case FESC:
		buf.WriteByte(FESC)
		buf.WriteByte(TFESC)
	default:
		buf.WriteByte(b)
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        Unwrap
 *
 * Purpose:     Decode one complete KISS frame held in memory.
 *
 * Inputs:	in	- Encoded frame.  Leading and trailing FEND are
 *			  both optional.
 *
 * Returns:	The frame, or an error wrapping ErrInvalidFrame.
 *
 *--------------------------------------------------------------------*/

func Unwrap(in []byte) (Frame, error) {
	var frame Frame
	var got bool
	var decodeErr error

	var d = NewDecoder(len(in)+1, func(f Frame) {
		if !got {
			frame = f
			got = true
		}
	}, func(err error) {
		if decodeErr == nil {
			decodeErr = err
		}
	})

	if len(in) == 0 || in[0] != FEND {
		d.PutByte(FEND)
	}

	d.Write(in) //nolint:errcheck

	if len(in) == 0 || in[len(in)-1] != FEND {
		d.PutByte(FEND)
	}

	if decodeErr != nil {
		return Frame{}, decodeErr
	}

	if !got {
		return Frame{}, fmt.Errorf("no frame content: %w", ErrInvalidFrame)
	}

	return frame, nil
}

type decoderState int

const (
	WaitDelimiter decoderState = iota /* Looking for FEND to start a frame. */
	InFrame                           /* Collecting frame content. */
	Escaped                           /* Previous byte was FESC. */
)

func (s decoderState) String() string {
	switch s {
	case WaitDelimiter:
		return "WAIT_DELIMITER"
	case InFrame:
		return "IN_FRAME"
	case Escaped:
		return "ESCAPED"
	default:
		return fmt.Sprintf("decoderState(%d)", int(s))
	}
}

// Frames longer than this are dropped.  Command byte included.
const MAX_KISS_LEN = 512

const MAX_NOISE_LEN = 100

/*-------------------------------------------------------------------
 *
 * Name:        Decoder
 *
 * Purpose:     Byte at a time KISS receiver.
 *
 * Description:	OnFrame fires exactly once per complete frame, from
 *		inside PutByte, before the next byte is looked at.
 *		The payload handed over is a fresh copy.
 *
 *		OnError receives ErrBufferOverflow or ErrInvalidFrame
 *		(wrapped) and the decoder resynchronizes on the next FEND.
 *		Bytes up to that FEND are dropped, never taken as noise.
 *
 *		OnNoise, if set, receives text typed between frames
 *		each time a carriage return arrives.  Some applications
 *		poke the TNC with a "reset" or a bare return before
 *		switching it into KISS mode and expect an answer.
 *
 *		A closing FEND also opens the following frame, so
 *		frames sharing a delimiter are both delivered.
 *
 *--------------------------------------------------------------------*/

type Decoder struct {
	OnFrame func(Frame)
	OnError func(error)
	OnNoise func(line []byte)

	state      decoderState
	buf        []byte
	capacity   int
	noise      []byte
	discarding bool /* Rest of a failed frame, up to the next FEND. */
}

func NewDecoder(capacity int, onFrame func(Frame), onError func(error)) *Decoder {
	if capacity <= 0 {
		capacity = MAX_KISS_LEN
	}

	return &Decoder{ //nolint:exhaustruct
		OnFrame:  onFrame,
		OnError:  onError,
		state:    WaitDelimiter,
		buf:      make([]byte, 0, capacity),
		capacity: capacity,
	}
}

func (d *Decoder) State() decoderState {
	return d.state
}

// Buffered is the number of content bytes held for the frame in progress.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func (d *Decoder) Capacity() int {
	return d.capacity
}

// Reset drops any partial frame.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.noise = d.noise[:0]
	d.state = WaitDelimiter
	d.discarding = false
}

// Write feeds every byte of p.  It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	for _, b := range p {
		d.PutByte(b)
	}

	return len(p), nil
}

func (d *Decoder) PutByte(ch byte) {
	switch d.state {
	case WaitDelimiter:
		if ch == FEND {
			d.noise = d.noise[:0]
			d.buf = d.buf[:0]
			d.state = InFrame
			d.discarding = false

			return
		}

		if d.discarding {
			return
		}

		d.collectNoise(ch)

	case InFrame:
		switch ch {
		case FEND:
			if len(d.buf) == 0 {
				/* Idle fill between frames. */
				return
			}

			d.deliver()
		case FESC:
			d.state = Escaped
		default:
			d.append(ch)
		}

	case Escaped:
		switch ch {
		case TFEND:
			d.state = InFrame
			d.append(FEND)
		case TFESC:
			d.state = InFrame
			d.append(FESC)
		default:
			d.fail(fmt.Errorf("FESC followed by 0x%02x: %w", ch, ErrInvalidFrame))

			if ch == FEND {
				/* That FEND can start the next frame. */
				d.state = InFrame
				d.discarding = false
			}
		}
	}
} /* end PutByte */

func (d *Decoder) append(ch byte) {
	if len(d.buf) >= d.capacity {
		d.fail(fmt.Errorf("KISS frame exceeded %d bytes: %w", d.capacity, ErrBufferOverflow))

		return
	}

	d.buf = append(d.buf, ch)
}

func (d *Decoder) fail(err error) {
	d.buf = d.buf[:0]
	d.noise = d.noise[:0]
	d.state = WaitDelimiter
	d.discarding = true

	if d.OnError != nil {
		d.OnError(err)
	}
}

func (d *Decoder) deliver() {
	var cmd = Command(d.buf[0])
	var payload = bytes.Clone(d.buf[1:])

	if payload == nil {
		payload = []byte{}
	}

	d.buf = d.buf[:0]

	if _, ok := cmd.Kind(); !ok {
		if d.OnError != nil {
			d.OnError(fmt.Errorf("unknown command 0x%02x: %w", byte(cmd), ErrInvalidFrame))
		}

		return
	}

	if d.OnFrame != nil {
		d.OnFrame(Frame{Command: cmd, Payload: payload})
	}
}

func (d *Decoder) collectNoise(ch byte) {
	if len(d.noise) < MAX_NOISE_LEN {
		d.noise = append(d.noise, ch)
	}

	if ch == '\r' {
		if d.OnNoise != nil {
			d.OnNoise(bytes.Clone(d.noise))
		}

		d.noise = d.noise[:0]
	}
}

/* end kiss_frame.go */
