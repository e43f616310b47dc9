package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:   	Error taxonomy shared by the codec, the link layer,
 *		the routing and heard tables and the command layer.
 *
 * Description:	Every failure is one of the sentinel errors below,
 *		possibly wrapped with more context.  CodeOf maps an
 *		error back to its Code, which in turn knows the byte
 *		sent in an enhanced KISS error report.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidFrame    = errors.New("invalid frame")
	ErrBufferOverflow  = errors.New("buffer overflow")
	ErrRadioFailure    = errors.New("radio failure")
	ErrConfigInvalid   = errors.New("invalid configuration")
	ErrTimeout         = errors.New("timeout")
	ErrCRCFailure      = errors.New("CRC failure")
	ErrTableFull       = errors.New("table full")
	ErrNotFound        = errors.New("not found")
	ErrAlreadyActive   = errors.New("already active")
	ErrNotConnected    = errors.New("not connected")
	ErrNoLocalIdentity = errors.New("station callsign not set")
	ErrUsage           = errors.New("usage")
)

// ErrLinkTimeout is reported by the link layer when a handshake gives up.
var ErrLinkTimeout = fmt.Errorf("link %w", ErrTimeout)

// ErrTransmitFailed is reported when the radio rejects a link frame.
var ErrTransmitFailed = fmt.Errorf("transmit failed: %w", ErrRadioFailure)

type Code int

const (
	CodeOK Code = iota
	CodeBufferOverflow
	CodeInvalidFrame
	CodeRadioFailure
	CodeConfigInvalid
	CodeTimeout
	CodeCRCFailure
	CodeTableFull
	CodeNotFound
	CodeAlreadyActive
	CodeNotConnected
	CodeNoLocalIdentity
	CodeUsage
)

var codeNames = map[Code]string{
	CodeOK:              "OK",
	CodeBufferOverflow:  "BufferOverflow",
	CodeInvalidFrame:    "InvalidFrame",
	CodeRadioFailure:    "RadioFailure",
	CodeConfigInvalid:   "ConfigInvalid",
	CodeTimeout:         "Timeout",
	CodeCRCFailure:      "CrcFailure",
	CodeTableFull:       "TableFull",
	CodeNotFound:        "NotFound",
	CodeAlreadyActive:   "AlreadyActive",
	CodeNotConnected:    "NotConnected",
	CodeNoLocalIdentity: "NoLocalIdentity",
	CodeUsage:           "Usage",
}

func (c Code) String() string {
	var name, ok = codeNames[c]
	if !ok {
		return fmt.Sprintf("Code(%d)", int(c))
	}

	return name
}

/*-------------------------------------------------------------------
 *
 * Name:	WireCode
 *
 * Purpose:	Byte carried in an enhanced KISS error report.
 *
 * Description:	Only the first seven codes exist on the wire.
 *		Table level failures are reported to the host as
 *		invalid configuration since that is what caused them.
 *
 *--------------------------------------------------------------------*/

func (c Code) WireCode() byte {
	switch c {
	case CodeOK, CodeBufferOverflow, CodeInvalidFrame, CodeRadioFailure,
		CodeConfigInvalid, CodeTimeout, CodeCRCFailure:
		return byte(c)
	case CodeNotConnected:
		return byte(CodeTimeout)
	default:
		return byte(CodeConfigInvalid)
	}
}

var codeErrors = []struct {
	err  error
	code Code
}{
	{ErrBufferOverflow, CodeBufferOverflow},
	{ErrInvalidFrame, CodeInvalidFrame},
	{ErrRadioFailure, CodeRadioFailure},
	{ErrConfigInvalid, CodeConfigInvalid},
	{ErrTimeout, CodeTimeout},
	{ErrCRCFailure, CodeCRCFailure},
	{ErrTableFull, CodeTableFull},
	{ErrNotFound, CodeNotFound},
	{ErrAlreadyActive, CodeAlreadyActive},
	{ErrNotConnected, CodeNotConnected},
	{ErrNoLocalIdentity, CodeNoLocalIdentity},
	{ErrUsage, CodeUsage},
}

// CodeOf classifies err.  nil is CodeOK and anything unknown is a radio failure.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}

	for _, ce := range codeErrors {
		if errors.Is(err, ce.err) {
			return ce.code
		}
	}

	return CodeRadioFailure
}
