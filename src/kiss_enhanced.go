package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:   	Payload layouts for the enhanced KISS commands.
 *
 * Description:	Each report has an Encode method producing the
 *		complete escaped KISS frame, and a matching Parse
 *		function taking the payload after the command byte.
 *		Client tools use the Parse side.
 *
 *		Receive indication (0x13):
 *
 *			int16 BE	RSSI, dBm
 *			int8		SNR integer part
 *			int8		SNR tenths, same sign as the SNR
 *			uint32 LE	timestamp, ms since TNC start
 *			...		received payload
 *
 *		Statistics (0x11), all little endian:
 *
 *			uint32	frames received
 *			uint32	frames transmitted
 *			uint32	errors
 *			uint32	uptime, seconds
 *			int16	last RSSI
 *			int16	last SNR x 10
 *
 *		Error report (0x12):
 *
 *			uint8	error code
 *			...	description, at most 64 bytes
 *
 *---------------------------------------------------------------*/

import (
	"encoding/binary"
	"fmt"
	"math"
)

const MAX_ERROR_DESCRIPTION = 64

const (
	PROTOCOL_MAJOR = 1
	PROTOCOL_MINOR = 0
)

const rxIndicationHeaderLen = 8
const statisticsLen = 20

/*-------------------------------------------------------------------
 *
 * Name:        SplitSNR
 *
 * Purpose:     Represent SNR as a signed integer part and signed tenths.
 *
 * Description:	Round to the nearest tenth first so 7.3 does not
 *		become 7 and 2 tenths through float error.  The integer
 *		part saturates at the int8 range.
 *
 *--------------------------------------------------------------------*/

func SplitSNR(snr float32) (int8, int8) {
	var tenths = math.Round(float64(snr) * 10)
	tenths = math.Max(-1289, math.Min(1279, tenths))

	var t = int(tenths)

	return int8(t / 10), int8(t % 10)
}

func JoinSNR(whole int8, tenths int8) float32 {
	return float32(whole) + float32(tenths)/10
}

func snrTimesTen(snr float32) int16 {
	var v = math.Round(float64(snr) * 10)

	return int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, v)))
}

type RxIndication struct {
	RSSI      int16
	SNR       float32
	Timestamp uint32
	Payload   []byte
}

func (r RxIndication) Encode() []byte {
	var buf = make([]byte, rxIndicationHeaderLen, rxIndicationHeaderLen+len(r.Payload))
	var whole, tenths = SplitSNR(r.SNR)

	binary.BigEndian.PutUint16(buf[0:2], uint16(r.RSSI))
	buf[2] = byte(whole)
	buf[3] = byte(tenths)
	binary.LittleEndian.PutUint32(buf[4:8], r.Timestamp)
	buf = append(buf, r.Payload...)

	return Encapsulate(CmdRxIndication, buf)
}

func ParseRxIndication(payload []byte) (RxIndication, error) {
	if len(payload) < rxIndicationHeaderLen {
		return RxIndication{}, fmt.Errorf("receive indication of %d bytes: %w", len(payload), ErrInvalidFrame)
	}

	return RxIndication{
		RSSI:      int16(binary.BigEndian.Uint16(payload[0:2])),
		SNR:       JoinSNR(int8(payload[2]), int8(payload[3])),
		Timestamp: binary.LittleEndian.Uint32(payload[4:8]),
		Payload:   append([]byte{}, payload[rxIndicationHeaderLen:]...),
	}, nil
}

type StatisticsReport struct {
	RxFrames uint32
	TxFrames uint32
	Errors   uint32
	Uptime   uint32
	RSSI     int16
	SNR      float32
}

func (s StatisticsReport) Encode() []byte {
	var buf = make([]byte, statisticsLen)

	binary.LittleEndian.PutUint32(buf[0:4], s.RxFrames)
	binary.LittleEndian.PutUint32(buf[4:8], s.TxFrames)
	binary.LittleEndian.PutUint32(buf[8:12], s.Errors)
	binary.LittleEndian.PutUint32(buf[12:16], s.Uptime)
	binary.LittleEndian.PutUint16(buf[16:18], uint16(s.RSSI))
	binary.LittleEndian.PutUint16(buf[18:20], uint16(snrTimesTen(s.SNR)))

	return Encapsulate(CmdStatistics, buf)
}

func ParseStatistics(payload []byte) (StatisticsReport, error) {
	if len(payload) != statisticsLen {
		return StatisticsReport{}, fmt.Errorf("statistics of %d bytes: %w", len(payload), ErrInvalidFrame)
	}

	return StatisticsReport{
		RxFrames: binary.LittleEndian.Uint32(payload[0:4]),
		TxFrames: binary.LittleEndian.Uint32(payload[4:8]),
		Errors:   binary.LittleEndian.Uint32(payload[8:12]),
		Uptime:   binary.LittleEndian.Uint32(payload[12:16]),
		RSSI:     int16(binary.LittleEndian.Uint16(payload[16:18])),
		SNR:      float32(int16(binary.LittleEndian.Uint16(payload[18:20]))) / 10,
	}, nil
}

type ErrorReport struct {
	Code        byte
	Description string
}

// Encode truncates the description to MAX_ERROR_DESCRIPTION bytes.
func (e ErrorReport) Encode() []byte {
	var desc = e.Description
	if len(desc) > MAX_ERROR_DESCRIPTION {
		desc = desc[:MAX_ERROR_DESCRIPTION]
	}

	var buf = make([]byte, 0, 1+len(desc))
	buf = append(buf, e.Code)
	buf = append(buf, desc...)

	return Encapsulate(CmdErrorReport, buf)
}

// ErrorReportFor describes err for the host.
func ErrorReportFor(err error) ErrorReport {
	return ErrorReport{
		Code:        CodeOf(err).WireCode(),
		Description: err.Error(),
	}
}

func ParseErrorReport(payload []byte) (ErrorReport, error) {
	if len(payload) < 1 {
		return ErrorReport{}, fmt.Errorf("empty error report: %w", ErrInvalidFrame)
	}

	return ErrorReport{Code: payload[0], Description: string(payload[1:])}, nil
}

type ProtocolVersion struct {
	Major    byte
	Minor    byte
	Firmware string
}

func (v ProtocolVersion) Encode() []byte {
	var buf = []byte{v.Major, v.Minor}
	buf = append(buf, v.Firmware...)

	return Encapsulate(CmdProtocolVersion, buf)
}

func ParseProtocolVersion(payload []byte) (ProtocolVersion, error) {
	if len(payload) < 2 {
		return ProtocolVersion{}, fmt.Errorf("protocol version of %d bytes: %w", len(payload), ErrInvalidFrame)
	}

	return ProtocolVersion{Major: payload[0], Minor: payload[1], Firmware: string(payload[2:])}, nil
}

// BufferStatus reports host delivery backlog and decoder use, little endian uint16 each.
type BufferStatus struct {
	Backlog         uint16
	BacklogCapacity uint16
	DecoderUsed     uint16
	DecoderCapacity uint16
	Paused          bool
}

func (b BufferStatus) Encode() []byte {
	var buf = make([]byte, 9)

	binary.LittleEndian.PutUint16(buf[0:2], b.Backlog)
	binary.LittleEndian.PutUint16(buf[2:4], b.BacklogCapacity)
	binary.LittleEndian.PutUint16(buf[4:6], b.DecoderUsed)
	binary.LittleEndian.PutUint16(buf[6:8], b.DecoderCapacity)

	if b.Paused {
		buf[8] = 1
	}

	return Encapsulate(CmdBufferStatus, buf)
}

func ParseBufferStatus(payload []byte) (BufferStatus, error) {
	if len(payload) != 9 {
		return BufferStatus{}, fmt.Errorf("buffer status of %d bytes: %w", len(payload), ErrInvalidFrame)
	}

	return BufferStatus{
		Backlog:         binary.LittleEndian.Uint16(payload[0:2]),
		BacklogCapacity: binary.LittleEndian.Uint16(payload[2:4]),
		DecoderUsed:     binary.LittleEndian.Uint16(payload[4:6]),
		DecoderCapacity: binary.LittleEndian.Uint16(payload[6:8]),
		Paused:          payload[8] != 0,
	}, nil
}
