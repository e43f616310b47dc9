package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:   	Text command interface.
 *
 * Description:	The same commands are available from the console
 *		(stdin of the daemon) and from anything typed at a host
 *		port before it starts talking KISS.
 *
 *			CONNECT [call [ssid]]
 *			DISCONNECT [call [ssid]]
 *			SEND call text
 *			DIGI [ON|OFF|HOPS n|TEST path|STATS]
 *			ROUTE [ADD dest nexthop [hops] [quality]|DEL dest|CLEAR|PURGE]
 *			NODES [CLEAR|PURGE|pattern]
 *			MYCALL [call[-ssid]]
 *			STATUS
 *			VERSION
 *			HELP
 *
 *		Each command produces a result code and some lines of
 *		text for a human.  The tables do the work; nothing here
 *		holds any state of its own.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Reply is the outcome of one text command.
type Reply struct {
	Code  Code
	Lines []string
}

func (r Reply) String() string {
	return strings.Join(r.Lines, "\n")
}

func (r Reply) OK() bool {
	return r.Code == CodeOK
}

type replyBuilder struct {
	code  Code
	lines []string
}

func (b *replyBuilder) say(format string, a ...any) {
	b.lines = append(b.lines, fmt.Sprintf(format, a...))
}

func (b *replyBuilder) fail(code Code, format string, a ...any) Reply {
	b.code = code
	b.say(format, a...)

	return b.done()
}

func (b *replyBuilder) done() Reply {
	return Reply{Code: b.code, Lines: b.lines}
}

type commandFunc func(t *TNC, b *replyBuilder, args []string) Reply

var commands map[string]commandFunc

func init() {
	commands = map[string]commandFunc{
		"CONNECT":    cmdConnect,
		"C":          cmdConnect,
		"DISCONNECT": cmdDisconnect,
		"D":          cmdDisconnect,
		"SEND":       cmdSend,
		"DIGI":       cmdDigi,
		"ROUTE":      cmdRoute,
		"NODES":      cmdNodes,
		"MHEARD":     cmdNodes,
		"MYCALL":     cmdMyCall,
		"STATUS":     cmdStatus,
		"VERSION":    cmdVersion,
		"HELP":       cmdHelp,
		"?":          cmdHelp,
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        Execute
 *
 * Purpose:     Run one text command.
 *
 * Inputs:	line	- e.g. "ROUTE ADD W1AW N1DIG 2 0.9".  Command
 *			  names are not case sensitive.
 *
 *		Must be called from the control loop, or with the
 *		loop not running.  Other goroutines use Exec.
 *
 *--------------------------------------------------------------------*/

func (t *TNC) Execute(line string) Reply {
	var fields = strings.Fields(line)
	var b replyBuilder

	if len(fields) == 0 {
		return b.done()
	}

	var name = strings.ToUpper(fields[0])

	var fn, ok = commands[name]
	if !ok {
		return b.fail(CodeUsage, "ERROR: Unknown command %s (try HELP)", name)
	}

	t.logger.Debug("Command", "line", line)

	return fn(t, &b, fields[1:])
}

// stationArgs accepts "W1AW", "W1AW-7" or "W1AW 7".
func stationArgs(b *replyBuilder, args []string) (StationID, bool) {
	var id, err = ParseStationID(args[0])
	if err != nil {
		b.code = CodeOf(err)
		b.say("ERROR: Invalid callsign %s", strings.ToUpper(args[0]))

		return StationID{}, false //nolint:exhaustruct
	}

	if len(args) >= 2 {
		var ssid, err = strconv.Atoi(args[1])
		if err != nil || ssid < 0 || ssid > MAX_SSID {
			b.code = CodeConfigInvalid
			b.say("ERROR: SSID must be 0-%d", MAX_SSID)

			return StationID{}, false //nolint:exhaustruct
		}

		id.SSID = ssid
	}

	return id, true
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

func cmdConnect(t *TNC, b *replyBuilder, args []string) Reply {
	if len(args) == 0 {
		b.say("Active Connections:")
		b.say("==================")

		var conns = t.links.Connections()
		var now = t.clock.Now()

		for i, c := range conns {
			b.say("%d. %s [%s]", i+1, c.Remote, c.State)

			if c.State == StateConnected {
				b.say("   Connected for %d seconds", seconds(now.Sub(c.ConnectTime)))
			}
		}

		if len(conns) == 0 {
			b.say("(No active connections)")
		}

		b.say("")
		b.say("Usage: CONNECT <callsign> [ssid]")

		return b.done()
	}

	var remote, ok = stationArgs(b, args)
	if !ok {
		return b.done()
	}

	var err = t.links.Connect(remote)

	switch {
	case err == nil:
		b.say("Connecting to %s...", remote)
		b.say("Sent SABM frame, waiting for UA response")

		return b.done()
	case errors.Is(err, ErrNoLocalIdentity):
		return b.fail(CodeNoLocalIdentity, "ERROR: Set station callsign first (MYCALL command)")
	case errors.Is(err, ErrAlreadyActive):
		return b.fail(CodeAlreadyActive, "ERROR: Already connected/connecting to %s", remote)
	case errors.Is(err, ErrTableFull):
		return b.fail(CodeTableFull, "ERROR: Maximum connections reached (%d)", MAX_CONNECTIONS)
	default:
		return b.fail(CodeOf(err), "ERROR: Failed to send connection request")
	}
}

func cmdDisconnect(t *TNC, b *replyBuilder, args []string) Reply {
	if len(args) == 0 {
		var results = t.links.DisconnectAll()
		var n int

		for _, r := range results {
			if r.Err != nil {
				b.code = CodeOf(r.Err)
				b.say("Failed to disconnect from %s", r.Remote)

				continue
			}

			n++
			b.say("Disconnected from %s", r.Remote)
		}

		if len(results) == 0 {
			b.say("No active connections to disconnect")
		} else if n > 0 {
			b.say("Disconnected %d connection(s)", n)
		}

		return b.done()
	}

	var remote, ok = stationArgs(b, args)
	if !ok {
		return b.done()
	}

	var r, err = t.links.Disconnect(remote)

	switch {
	case errors.Is(err, ErrNotConnected):
		return b.fail(CodeNotConnected, "ERROR: No active connection to %s", remote)
	case err != nil:
		return b.fail(CodeOf(err), "Failed to disconnect from %s", remote)
	}

	b.say("Disconnected from %s", remote)

	if r.WasConnected {
		b.say("Connection duration: %d seconds", seconds(r.Duration))
	}

	return b.done()
}

func cmdSend(t *TNC, b *replyBuilder, args []string) Reply {
	if len(args) < 2 {
		return b.fail(CodeUsage, "Usage: SEND <callsign> <text>")
	}

	var remote, ok = stationArgs(b, args[:1])
	if !ok {
		return b.done()
	}

	var text = strings.Join(args[1:], " ")

	if err := t.links.Send(remote, text); err != nil {
		if errors.Is(err, ErrNotConnected) {
			return b.fail(CodeNotConnected, "ERROR: Not connected to %s", remote)
		}

		return b.fail(CodeOf(err), "ERROR: Failed to send to %s", remote)
	}

	b.say("Sent %d bytes to %s", len(text), remote)

	return b.done()
}

func cmdDigi(t *TNC, b *replyBuilder, args []string) Reply {
	var d = t.digi

	if len(args) == 0 {
		b.say("Digipeater Configuration:")
		b.say("Status: %s", onOff(d.Enabled()))

		if d.Enabled() {
			b.say("Max hops: %d", d.MaxHops())
			b.say("Callsign: %s", t.mycall)
		}

		if aliases := d.Config().Aliases; len(aliases) > 0 {
			b.say("Aliases: %s", strings.Join(aliases, ","))
		}

		b.say("Trace: %s", onOff(d.Config().Trace))

		return b.done()
	}

	var sub = strings.ToUpper(args[0])

	switch {
	case sub == "ON" || sub == "1":
		if err := d.SetEnabled(true); err != nil {
			return b.fail(CodeOf(err), "ERROR: Set station callsign first (MYCALL command)")
		}

		t.cfg.Digipeater.Enabled = true

		b.say("Digipeater enabled")
		b.say("Using callsign: %s", t.mycall)

	case sub == "OFF" || sub == "0":
		d.SetEnabled(false) //nolint:errcheck

		t.cfg.Digipeater.Enabled = false

		b.say("Digipeater disabled")

	case sub == "HOPS" && len(args) > 1:
		var n, err = strconv.Atoi(args[1])
		if err == nil {
			err = d.SetMaxHops(n)
		}

		if err != nil {
			return b.fail(CodeConfigInvalid, "ERROR: Max hops must be 1-%d", MAX_HOPS)
		}

		t.cfg.Digipeater.MaxHops = n

		b.say("Max hops set to %d", n)

	case sub == "TEST" && len(args) > 1:
		var path = strings.Join(args[1:], "")

		b.say("Testing path: %s", path)

		var dec = d.Evaluate(path)
		if dec.Repeat {
			b.say("Would digipeat with path: %s", dec.Path)
		} else {
			b.say("Would NOT digipeat this path")

			if dec.Reason != "" {
				b.say("(%s)", dec.Reason)
			}
		}

	case sub == "STATS":
		var s = d.Stats()

		b.say("Digipeater Statistics:")
		b.say("Packets digipeated: %d", s.Repeated)
		b.say("Packets dropped: %d", s.Dropped)

	default:
		return b.fail(CodeUsage, "Usage: DIGI [ON|OFF|HOPS <1-%d>|TEST <path>|STATS]", MAX_HOPS)
	}

	return b.done()
} /* end cmdDigi */

func onOff(on bool) string {
	if on {
		return "ON"
	}

	return "OFF"
}

func ago(now, then time.Time) string {
	if then.IsZero() {
		return "-"
	}

	return strconv.FormatInt(seconds(now.Sub(then)), 10) + "s"
}

func cmdRoute(t *TNC, b *replyBuilder, args []string) Reply {
	if len(args) == 0 {
		var now = t.clock.Now()
		var routes = t.routes.Routes()

		b.say("Routing Table:")
		b.say("==============")
		b.say("Dest      NextHop   Hops Quality LastUsed  LastUpd   Status")
		b.say("--------- --------- ---- ------- --------- --------- ------")

		for _, r := range routes {
			var status = "STALE"
			if r.Active {
				status = "ACTIVE"
			}

			b.say("%-9s %-9s %-4d %-7.2f %-9s %-9s %s",
				r.Destination, r.NextHop, r.Hops, r.Quality, ago(now, r.LastUsed), ago(now, r.LastUpdated), status)
		}

		if len(routes) == 0 {
			b.say("(No routes configured)")
		}

		b.say("")
		b.say("Usage: ROUTE ADD <dest> <nexthop> [hops] [quality]")
		b.say("       ROUTE DEL <dest>")
		b.say("       ROUTE CLEAR")
		b.say("       ROUTE PURGE (remove stale routes)")

		return b.done()
	}

	var sub = strings.ToUpper(args[0])

	switch {
	case sub == "ADD" && len(args) >= 3:
		var dest, next = strings.ToUpper(args[1]), strings.ToUpper(args[2])
		var hops = 1
		var quality float32 = DEFAULT_ROUTE_QUALITY

		if len(args) >= 4 {
			var n, err = strconv.Atoi(args[3])
			if err != nil || n < 1 || n > MAX_HOPS {
				return b.fail(CodeConfigInvalid, "ERROR: Hops must be 1-%d", MAX_HOPS)
			}

			hops = n
		}

		if len(args) >= 5 {
			var q, err = strconv.ParseFloat(args[4], 32)
			if err != nil || !(q >= 0 && q <= 1) {
				return b.fail(CodeConfigInvalid, "ERROR: Quality must be 0.0-1.0")
			}

			quality = float32(q)
		}

		var updated, err = t.routes.Add(dest, next, hops, quality)

		switch {
		case errors.Is(err, ErrTableFull):
			return b.fail(CodeTableFull, "ERROR: Routing table full (max %d routes)", t.routes.Capacity())
		case err != nil:
			return b.fail(CodeOf(err), "ERROR: %s", err)
		case updated:
			b.say("Updated route to %s via %s", dest, next)
		default:
			b.say("Added route to %s via %s (%d hops, Q=%.2f)", dest, next, hops, quality)
		}

	case sub == "DEL" && len(args) >= 2:
		var dest = strings.ToUpper(args[1])

		if err := t.routes.Delete(dest); err != nil {
			return b.fail(CodeNotFound, "Route to %s not found", dest)
		}

		b.say("Deleted route to %s", dest)

	case sub == "CLEAR":
		t.routes.Clear()
		b.say("Routing table cleared")

	case sub == "PURGE":
		b.say("Purged %d stale routes", t.routes.Purge())

	default:
		return b.fail(CodeUsage, "Usage: ROUTE [ADD <dest> <nexthop> [hops] [quality]|DEL <dest>|CLEAR|PURGE]")
	}

	return b.done()
} /* end cmdRoute */

func cmdNodes(t *TNC, b *replyBuilder, args []string) Reply {
	var stations []StationHeard

	if len(args) > 0 {
		switch strings.ToUpper(args[0]) {
		case "CLEAR":
			t.heard.Clear()
			b.say("Node table cleared")

			return b.done()
		case "PURGE":
			b.say("Purged %d old nodes", t.heard.Purge())

			return b.done()
		default:
			stations = t.heard.Match(args[0])
		}
	} else {
		stations = t.heard.Stations()
	}

	var now = t.clock.Now()

	b.say("Heard Stations:")
	b.say("===============")
	b.say("Callsign  RSSI   SNR   Count Last    Digi Last Packet")
	b.say("--------- ------ ----- ----- ------- ---- ------------")

	for _, s := range stations {
		var digi = ""
		if s.IsDigipeater {
			digi = "yes"
		}

		var msg = s.LastMessage
		if utf8.RuneCountInString(msg) > 20 {
			msg = string([]rune(msg)[:17]) + "..."
		}

		b.say("%-9s %-6d %-5.1f %-5d %-7s %-4s %s",
			s.Callsign, s.RSSI, s.SNR, s.PacketCount, heardMinutes(now, s.LastHeard), digi, msg)
	}

	if len(stations) == 0 {
		b.say("(No stations heard yet)")

		return b.done()
	}

	b.say("")
	b.say("Total nodes: %d", len(stations))

	if best, ok := t.heard.Best(); ok && len(args) == 0 {
		b.say("Best signal: %s (%d dBm)", best.Callsign, best.RSSI)
	}

	return b.done()
} /* end cmdNodes */

func heardMinutes(now, then time.Time) string {
	return strconv.FormatInt(int64(now.Sub(then)/time.Minute), 10) + "m"
}

func cmdMyCall(t *TNC, b *replyBuilder, args []string) Reply {
	if len(args) == 0 {
		if !t.mycall.IsSet() {
			b.say("MYCALL: %s", NOCALL)
		} else {
			b.say("MYCALL: %s", t.mycall)
		}

		return b.done()
	}

	var id, ok = stationArgs(b, args)
	if !ok {
		return b.done()
	}

	t.SetMyCall(id)

	b.say("MYCALL set to %s", id)

	return b.done()
}

func cmdStatus(t *TNC, b *replyBuilder, _ []string) Reply {
	var now = t.clock.Now()
	var s = t.stats

	b.say("LoRaTNCX Status:")
	b.say("================")
	b.say("Callsign: %s", t.cfg.Station.MyCall)
	b.say("Radio: %s", t.radioParams)
	b.say("Uptime: %s", s.Uptime(now).Truncate(time.Second))
	b.say("Frames received: %d (%d bytes)", s.FramesRx, s.BytesRx)
	b.say("Frames sent: %d (%d bytes)", s.FramesTx, s.BytesTx)
	b.say("Commands received: %d", s.CommandsRx)
	b.say("Errors: %d (buffer overflows %d, CRC %d)", s.Errors, s.BufferOverflows, s.CRCErrors)

	if s.LastRSSI != NO_RSSI {
		b.say("Last RSSI: %d dBm, SNR: %.1f dB", s.LastRSSI, s.LastSNR)
	}

	b.say("Connections: %d of %d", len(t.links.Connections()), MAX_CONNECTIONS)
	b.say("Transmit queue: %d packets", t.txq.Count(-1))
	b.say("Receive indications: %s", onOff(t.rxIndications))

	var p = t.params
	b.say("TXDELAY %d PERSIST %d SLOTTIME %d TXTAIL %d FULLDUPLEX %s",
		p.TxDelay, p.Persist, p.SlotTime, p.TxTail, onOff(p.FullDuplex))

	return b.done()
}

func cmdVersion(_ *TNC, b *replyBuilder, _ []string) Reply {
	b.say("%s", firmwareID())
	b.say("KISS protocol %d.%d", PROTOCOL_MAJOR, PROTOCOL_MINOR)

	return b.done()
}

func cmdHelp(_ *TNC, b *replyBuilder, _ []string) Reply {
	b.say("LoRaTNCX Commands")
	b.say("=================")
	b.say("  CONNECT [call [ssid]]      - Connect, or list connections")
	b.say("  DISCONNECT [call [ssid]]   - Disconnect one or all")
	b.say("  SEND call text             - Send text on a connection")
	b.say("  DIGI [ON|OFF|HOPS n|TEST path|STATS]")
	b.say("  ROUTE [ADD dest next [hops] [quality]|DEL dest|CLEAR|PURGE]")
	b.say("  NODES [CLEAR|PURGE|pattern] - Heard stations")
	b.say("  MYCALL [call[-ssid]]       - Show/set station callsign")
	b.say("  STATUS                     - Statistics and settings")
	b.say("  VERSION                    - Firmware version")
	b.say("  HELP                       - This list")

	return b.done()
}

/* end commands.go */
