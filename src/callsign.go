package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:   	Station identifiers: a callsign plus a 0-15 SSID.
 *
 * Description:	Text form is "CALL" when the SSID is zero and
 *		"CALL-n" otherwise, as AX.25 tools conventionally
 *		display them.  Parsing accepts either form, in any case.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"strconv"
	"strings"
)

const MAX_SSID = 15

// Placeholder used by unconfigured stations.
const NOCALL = "NOCALL"

const maxCallsignLen = 6

type StationID struct {
	Call string
	SSID int
}

func (s StationID) String() string {
	if s.SSID > 0 {
		return fmt.Sprintf("%s-%d", s.Call, s.SSID)
	}

	return s.Call
}

// IsSet reports whether s names a real station.
func (s StationID) IsSet() bool {
	return s.Call != "" && !strings.EqualFold(s.Call, NOCALL)
}

// Equal compares callsigns case-insensitively.
func (s StationID) Equal(o StationID) bool {
	return s.SSID == o.SSID && strings.EqualFold(s.Call, o.Call)
}

/*-------------------------------------------------------------------
 *
 * Name:	NewStationID
 *
 * Purpose:	Build an identifier from separate callsign and SSID,
 *		as the CONNECT command supplies them.
 *
 * Errors:	ErrConfigInvalid for an empty or overlong callsign,
 *		non alphanumeric characters or SSID out of range.
 *
 *--------------------------------------------------------------------*/

func NewStationID(call string, ssid int) (StationID, error) {
	call = strings.ToUpper(strings.TrimSpace(call))

	if call == "" || len(call) > maxCallsignLen {
		return StationID{}, fmt.Errorf("callsign %q must be 1 to %d characters: %w", call, maxCallsignLen, ErrConfigInvalid)
	}

	for _, ch := range call {
		if (ch < 'A' || ch > 'Z') && (ch < '0' || ch > '9') {
			return StationID{}, fmt.Errorf("callsign %q contains %q: %w", call, ch, ErrConfigInvalid)
		}
	}

	if ssid < 0 || ssid > MAX_SSID {
		return StationID{}, fmt.Errorf("SSID must be 0-%d: %w", MAX_SSID, ErrConfigInvalid)
	}

	return StationID{Call: call, SSID: ssid}, nil
}

// ParseStationID accepts "CALL" or "CALL-n".
func ParseStationID(text string) (StationID, error) {
	var call, ssidText, hasSSID = strings.Cut(strings.TrimSpace(text), "-")
	if !hasSSID {
		return NewStationID(call, 0)
	}

	var ssid, err = strconv.Atoi(ssidText)
	if err != nil {
		return StationID{}, fmt.Errorf("SSID %q is not a number: %w", ssidText, ErrConfigInvalid)
	}

	return NewStationID(call, ssid)
}
