package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:   	Text link frames exchanged over the air by the
 *		connected mode link layer.
 *
 * Description:	LoRa packets are short and most stations on the
 *		band are humans with terminal programs, so the
 *		supervisory frames are plain text:
 *
 *			SABM:<src>><dst>:CONNECT_REQUEST:<ms>
 *			UA:<src>><dst>:CONNECT_ACKNOWLEDGED:<ms>
 *			DISC:<src>><dst>:DISCONNECT_REQUEST:<ms>
 *			I:<src>><dst>:<text>
 *
 *		<ms> is the sender's monotonic clock in milliseconds.
 *		Station ids carry "-n" only for a non-zero SSID.
 *		A UA answers both SABM and DISC.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"strconv"
	"strings"
)

type LinkFrameType string

const (
	LinkSABM LinkFrameType = "SABM"
	LinkUA   LinkFrameType = "UA"
	LinkDISC LinkFrameType = "DISC"
	LinkI    LinkFrameType = "I"
)

var linkFrameTags = map[LinkFrameType]string{
	LinkSABM: "CONNECT_REQUEST",
	LinkUA:   "CONNECT_ACKNOWLEDGED",
	LinkDISC: "DISCONNECT_REQUEST",
}

type LinkFrame struct {
	Type      LinkFrameType
	Source    StationID
	Dest      StationID
	Timestamp int64  // SABM, UA, DISC
	Info      string // I
}

func (f LinkFrame) Encode() []byte {
	if f.Type == LinkI {
		return []byte(fmt.Sprintf("I:%s>%s:%s", f.Source, f.Dest, f.Info))
	}

	return []byte(fmt.Sprintf("%s:%s>%s:%s:%d", f.Type, f.Source, f.Dest, linkFrameTags[f.Type], f.Timestamp))
}

func (f LinkFrame) String() string {
	return string(f.Encode())
}

/*-------------------------------------------------------------------
 *
 * Name:        ParseLinkFrame
 *
 * Purpose:     Recognize a received packet as a link frame.
 *
 * Returns:	Error wrapping ErrInvalidFrame when the packet is
 *		something else, such as an APRS monitor line.
 *
 *--------------------------------------------------------------------*/

func ParseLinkFrame(packet []byte) (LinkFrame, error) {
	var text = string(packet)

	var kind, rest, ok = strings.Cut(text, ":")
	if !ok {
		return LinkFrame{}, fmt.Errorf("not a link frame: %w", ErrInvalidFrame)
	}

	var frame LinkFrame
	frame.Type = LinkFrameType(kind)

	switch frame.Type {
	case LinkSABM, LinkUA, LinkDISC, LinkI:
	default:
		return LinkFrame{}, fmt.Errorf("link frame type %q: %w", kind, ErrInvalidFrame)
	}

	var addrs, body string
	addrs, body, ok = strings.Cut(rest, ":")
	if !ok {
		return LinkFrame{}, fmt.Errorf("%s frame without body: %w", kind, ErrInvalidFrame)
	}

	var src, dst, hasDst = strings.Cut(addrs, ">")
	if !hasDst {
		return LinkFrame{}, fmt.Errorf("%s frame address %q: %w", kind, addrs, ErrInvalidFrame)
	}

	var err error

	if frame.Source, err = ParseStationID(src); err != nil {
		return LinkFrame{}, fmt.Errorf("%s frame source: %w", kind, ErrInvalidFrame)
	}

	if frame.Dest, err = ParseStationID(dst); err != nil {
		return LinkFrame{}, fmt.Errorf("%s frame destination: %w", kind, ErrInvalidFrame)
	}

	if frame.Type == LinkI {
		frame.Info = body

		return frame, nil
	}

	var _, stamp, hasStamp = strings.Cut(body, ":")
	if hasStamp {
		/* Missing or odd timestamps are tolerated. */
		frame.Timestamp, _ = strconv.ParseInt(stamp, 10, 64)
	}

	return frame, nil
}
