package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:   	Connected mode link layer.  SABM / UA / DISC
 *		handshake and I frames, one slot per remote station.
 *
 * Description:	This is a much reduced AX.25 data link.  There is no
 *		windowing and no retransmission of I frames; the
 *		sequence numbers are kept for display and for a
 *		future fuller implementation.
 *
 *		Slot lifecycle:
 *
 *		  DISCONNECTED --Connect--> CONNECTING --UA--> CONNECTED
 *		  CONNECTED --Disconnect--> DISCONNECTING --sent--> DISCONNECTED
 *		  CONNECTING --timeout (Tick)--> DISCONNECTED
 *		  (any) --DISC received--> DISCONNECTED
 *
 *		DISCONNECTING only lasts while the DISC is being
 *		transmitted.  If the transmit fails the slot goes back
 *		to where it was.
 *
 *		The table is a fixed array.  A slot is free when it is
 *		DISCONNECTED; nothing is allocated at run time.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

const MAX_CONNECTIONS = 8

// Sequence numbers count modulo this.
const SEQ_MODULUS = 8

type LinkState int

const (
	StateDisconnected LinkState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s LinkState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnecting:
		return "DISCONNECTING"
	default:
		return fmt.Sprintf("LinkState(%d)", int(s))
	}
}

type Connection struct {
	Remote       StationID
	State        LinkState
	VS           uint8 // Next send sequence.
	VR           uint8 // Next expected receive sequence.
	VA           uint8 // Last acknowledged.
	Retries      int
	PollBit      bool
	ConnectTime  time.Time
	LastActivity time.Time
}

type LinkConfig struct {
	// Give up on a CONNECTING slot after this long.
	ConnectTimeout time.Duration `yaml:"connect-timeout"`

	// Resend SABM this often while CONNECTING.
	Frack time.Duration `yaml:"frack"`

	// At most this many resends.
	Retry int `yaml:"retry"`

	// Drop CONNECTED slots idle this long.  Zero disables.
	IdleTimeout time.Duration `yaml:"idle-timeout"`
}

func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		ConnectTimeout: 90 * time.Second,
		Frack:          8 * time.Second,
		Retry:          10,
		IdleTimeout:    0,
	}
}

func (c LinkConfig) Validate() error {
	switch {
	case c.ConnectTimeout <= 0:
		return fmt.Errorf("connect timeout must be positive: %w", ErrConfigInvalid)
	case c.Frack < time.Second || c.Frack > 15*time.Second:
		return fmt.Errorf("FRACK %s outside 1-15 seconds: %w", c.Frack, ErrConfigInvalid)
	case c.Retry < 0 || c.Retry > 15:
		return fmt.Errorf("RETRY %d outside 0-15: %w", c.Retry, ErrConfigInvalid)
	case c.IdleTimeout < 0:
		return fmt.Errorf("idle timeout is negative: %w", ErrConfigInvalid)
	}

	return nil
}

type LinkEventKind int

const (
	LinkUp LinkEventKind = iota + 1
	LinkDown
	LinkTimedOut
	LinkIdle
	LinkData
	LinkRejected
)

func (k LinkEventKind) String() string {
	switch k {
	case LinkUp:
		return "connected"
	case LinkDown:
		return "disconnected"
	case LinkTimedOut:
		return "timeout"
	case LinkIdle:
		return "idle"
	case LinkData:
		return "data"
	case LinkRejected:
		return "rejected"
	default:
		return fmt.Sprintf("LinkEventKind(%d)", int(k))
	}
}

// LinkEvent tells the caller about something the remote end or the clock did.
type LinkEvent struct {
	Kind     LinkEventKind
	Remote   StationID
	Duration time.Duration // Time spent CONNECTED, for LinkDown and LinkIdle.
	Info     string        // LinkData text.
	Err      error
}

type DisconnectResult struct {
	Remote       StationID
	WasConnected bool
	Duration     time.Duration
	Err          error
}

// Transmitter is the part of Radio the link layer needs.
type Transmitter interface {
	Transmit(payload []byte) error
}

type ConnectionManager struct {
	slots  [MAX_CONNECTIONS]Connection
	mycall StationID
	tx     Transmitter
	clock  Clock
	cfg    LinkConfig
	stats  *Statistics
	start  time.Time
	logger *log.Logger
}

func NewConnectionManager(tx Transmitter, clock Clock, cfg LinkConfig, stats *Statistics, logger *log.Logger) *ConnectionManager {
	var now = clock.Now()

	if stats == nil {
		stats = NewStatistics(now)
	}

	return &ConnectionManager{ //nolint:exhaustruct
		tx:     tx,
		clock:  clock,
		cfg:    cfg,
		stats:  stats,
		start:  now,
		logger: componentLogger(logger, "link"),
	}
}

func (m *ConnectionManager) SetMyCall(id StationID) {
	m.mycall = id
}

func (m *ConnectionManager) MyCall() StationID {
	return m.mycall
}

func (m *ConnectionManager) SetConfig(cfg LinkConfig) {
	m.cfg = cfg
}

// Milliseconds since the manager started.  Goes into supervisory frames.
func (m *ConnectionManager) stamp() int64 {
	return m.clock.Now().Sub(m.start).Milliseconds()
}

func (m *ConnectionManager) find(remote StationID) int {
	for i := range m.slots {
		if m.slots[i].State != StateDisconnected && m.slots[i].Remote.Equal(remote) {
			return i
		}
	}

	return -1
}

// A handshake that has outlived its timeout can be reused even before Tick notices.
func (m *ConnectionManager) reclaimable(i int, now time.Time) bool {
	var c = &m.slots[i]

	switch c.State {
	case StateDisconnected:
		return true
	case StateConnecting, StateDisconnecting:
		return now.Sub(c.ConnectTime) >= m.cfg.ConnectTimeout
	default:
		return false
	}
}

func (m *ConnectionManager) allocate(now time.Time) int {
	for i := range m.slots {
		if m.slots[i].State == StateDisconnected {
			return i
		}
	}

	for i := range m.slots {
		if m.reclaimable(i, now) {
			m.logger.Info("Reclaiming stale slot", "remote", m.slots[i].Remote, "state", m.slots[i].State)

			return i
		}
	}

	return -1
}

func (m *ConnectionManager) transmit(f LinkFrame) error {
	var data = f.Encode()

	if err := m.tx.Transmit(data); err != nil {
		m.stats.CountError(err)

		return fmt.Errorf("%w: %s to %s: %w", ErrTransmitFailed, f.Type, f.Dest, err)
	}

	m.stats.CountTx(len(data), m.clock.Now())

	return nil
}

func (m *ConnectionManager) supervisory(t LinkFrameType, remote StationID) LinkFrame {
	return LinkFrame{Type: t, Source: m.mycall, Dest: remote, Timestamp: m.stamp()} //nolint:exhaustruct
}

/*-------------------------------------------------------------------
 *
 * Name:        Connect
 *
 * Purpose:     Start a connection to a remote station.
 *
 * Returns:	nil once the SABM is on the air.  The slot is then
 *		CONNECTING until a UA arrives or Tick times it out.
 *
 * Errors:	ErrNoLocalIdentity, ErrAlreadyActive, ErrTableFull,
 *		ErrTransmitFailed.  On any error no slot is held.
 *
 *--------------------------------------------------------------------*/

func (m *ConnectionManager) Connect(remote StationID) error {
	if !m.mycall.IsSet() {
		return fmt.Errorf("set station callsign first: %w", ErrNoLocalIdentity)
	}

	if i := m.find(remote); i >= 0 {
		return fmt.Errorf("already connected/connecting to %s: %w", remote, ErrAlreadyActive)
	}

	var now = m.clock.Now()

	var i = m.allocate(now)
	if i < 0 {
		return fmt.Errorf("maximum connections reached (%d): %w", MAX_CONNECTIONS, ErrTableFull)
	}

	m.slots[i] = Connection{
		Remote:       remote,
		State:        StateConnecting,
		PollBit:      true,
		ConnectTime:  now,
		LastActivity: now,
	} //nolint:exhaustruct

	if err := m.transmit(m.supervisory(LinkSABM, remote)); err != nil {
		m.slots[i] = Connection{} //nolint:exhaustruct

		return err
	}

	m.logger.Info("Connecting", "remote", remote, "slot", i)

	return nil
}

/*-------------------------------------------------------------------
 *
 * Name:        Disconnect
 *
 * Purpose:     Send DISC to one remote station and free its slot.
 *
 * Returns:	How long the link was up, if it was CONNECTED.
 *
 * Errors:	ErrNotConnected if there is no active slot.
 *		ErrTransmitFailed leaves the slot as it was.
 *
 *--------------------------------------------------------------------*/

func (m *ConnectionManager) Disconnect(remote StationID) (DisconnectResult, error) {
	var i = m.find(remote)
	if i < 0 {
		var err = fmt.Errorf("not connected to %s: %w", remote, ErrNotConnected)

		return DisconnectResult{Remote: remote, Err: err}, err //nolint:exhaustruct
	}

	return m.disconnectSlot(i)
}

// DisconnectAll tries every CONNECTING or CONNECTED slot.  Each result carries its own error.
func (m *ConnectionManager) DisconnectAll() []DisconnectResult {
	var results []DisconnectResult

	for i := range m.slots {
		switch m.slots[i].State {
		case StateConnecting, StateConnected:
			var r, _ = m.disconnectSlot(i)
			results = append(results, r)
		}
	}

	return results
}

func (m *ConnectionManager) disconnectSlot(i int) (DisconnectResult, error) {
	var c = &m.slots[i]
	var prev = c.State
	var now = m.clock.Now()
	var result = DisconnectResult{Remote: c.Remote} //nolint:exhaustruct

	c.State = StateDisconnecting

	if err := m.transmit(m.supervisory(LinkDISC, c.Remote)); err != nil {
		c.State = prev
		result.Err = err

		return result, err
	}

	if prev == StateConnected {
		result.WasConnected = true
		result.Duration = now.Sub(c.ConnectTime)
	}

	m.logger.Info("Disconnected", "remote", c.Remote, "was", prev, "duration", result.Duration)

	*c = Connection{} //nolint:exhaustruct

	return result, nil
}

// Send transmits text in an I frame on an established link.
func (m *ConnectionManager) Send(remote StationID, text string) error {
	var i = m.find(remote)
	if i < 0 || m.slots[i].State != StateConnected {
		return fmt.Errorf("not connected to %s: %w", remote, ErrNotConnected)
	}

	var f = LinkFrame{Type: LinkI, Source: m.mycall, Dest: remote, Info: text} //nolint:exhaustruct
	if err := m.transmit(f); err != nil {
		return err
	}

	var c = &m.slots[i]
	c.VS = (c.VS + 1) % SEQ_MODULUS
	c.LastActivity = m.clock.Now()

	return nil
}

/*-------------------------------------------------------------------
 *
 * Name:        Tick
 *
 * Purpose:     Timer processing.  Called periodically from the
 *		control loop.
 *
 * Description:	CONNECTING:	resend SABM every FRACK up to RETRY
 *				times; after the connect timeout free
 *				the slot and report LinkTimedOut.
 *
 *		DISCONNECTING:	left over from an interrupted
 *				disconnect; freed after the timeout.
 *
 *		CONNECTED:	freed after the idle timeout if one is
 *				configured, with a best effort DISC.
 *
 *--------------------------------------------------------------------*/

func (m *ConnectionManager) Tick() []LinkEvent {
	var now = m.clock.Now()
	var events []LinkEvent

	for i := range m.slots {
		var c = &m.slots[i]

		switch c.State {
		case StateConnecting:
			if now.Sub(c.ConnectTime) >= m.cfg.ConnectTimeout {
				m.logger.Warn("Connect timed out", "remote", c.Remote, "retries", c.Retries)
				events = append(events, LinkEvent{Kind: LinkTimedOut, Remote: c.Remote, Err: ErrLinkTimeout}) //nolint:exhaustruct
				*c = Connection{}                                                                            //nolint:exhaustruct

				continue
			}

			if now.Sub(c.LastActivity) >= m.cfg.Frack && c.Retries < m.cfg.Retry {
				c.Retries++
				c.LastActivity = now

				if err := m.transmit(m.supervisory(LinkSABM, c.Remote)); err != nil {
					m.logger.Error("SABM resend failed", "remote", c.Remote, "err", err)
				}
			}

		case StateDisconnecting:
			if now.Sub(c.LastActivity) >= m.cfg.ConnectTimeout {
				events = append(events, LinkEvent{Kind: LinkDown, Remote: c.Remote}) //nolint:exhaustruct
				*c = Connection{}                                                    //nolint:exhaustruct
			}

		case StateConnected:
			if m.cfg.IdleTimeout > 0 && now.Sub(c.LastActivity) >= m.cfg.IdleTimeout {
				var remote = c.Remote
				var duration = now.Sub(c.ConnectTime)

				if err := m.transmit(m.supervisory(LinkDISC, remote)); err != nil {
					m.logger.Error("DISC for idle link failed", "remote", remote, "err", err)
				}

				events = append(events, LinkEvent{Kind: LinkIdle, Remote: remote, Duration: duration}) //nolint:exhaustruct
				*c = Connection{}                                                                      //nolint:exhaustruct
			}
		}
	}

	return events
}

/*-------------------------------------------------------------------
 *
 * Name:        HandleFrame
 *
 * Purpose:     Process a link frame received over the air.
 *
 * Returns:	ok is false when the frame is not addressed to us.
 *		The event Kind is zero when nothing worth reporting
 *		happened.
 *
 *--------------------------------------------------------------------*/

func (m *ConnectionManager) HandleFrame(f LinkFrame) (LinkEvent, bool) {
	if !m.mycall.IsSet() || !f.Dest.Equal(m.mycall) {
		return LinkEvent{}, false //nolint:exhaustruct
	}

	var now = m.clock.Now()
	var remote = f.Source
	var i = m.find(remote)

	switch f.Type {
	case LinkSABM:
		var ev = LinkEvent{Kind: LinkUp, Remote: remote} //nolint:exhaustruct

		if i < 0 {
			i = m.allocate(now)
			if i < 0 {
				m.logger.Warn("Connect request refused, no free slot", "remote", remote)

				return LinkEvent{Kind: LinkRejected, Remote: remote, Err: ErrTableFull}, true //nolint:exhaustruct
			}

			m.slots[i] = Connection{Remote: remote} //nolint:exhaustruct
		} else if m.slots[i].State == StateConnected {
			/* Repeated SABM.  Our UA was probably lost. */
			ev.Kind = 0
		}

		var c = &m.slots[i]
		if c.State != StateConnected {
			c.ConnectTime = now
			c.VS, c.VR, c.VA = 0, 0, 0
		}

		c.State = StateConnected
		c.Retries = 0
		c.PollBit = false
		c.LastActivity = now

		ev.Err = m.transmit(m.supervisory(LinkUA, remote))

		return ev, true

	case LinkUA:
		if i < 0 {
			return LinkEvent{}, true //nolint:exhaustruct
		}

		var c = &m.slots[i]

		switch c.State {
		case StateConnecting:
			c.State = StateConnected
			c.ConnectTime = now
			c.LastActivity = now
			c.Retries = 0
			c.PollBit = false

			m.logger.Info("Connected", "remote", remote)

			return LinkEvent{Kind: LinkUp, Remote: remote}, true //nolint:exhaustruct
		case StateDisconnecting:
			*c = Connection{} //nolint:exhaustruct

			return LinkEvent{Kind: LinkDown, Remote: remote}, true //nolint:exhaustruct
		}

		return LinkEvent{}, true //nolint:exhaustruct

	case LinkDISC:
		/* Only a station we hold a slot for gets a UA. */
		if i < 0 {
			return LinkEvent{}, true //nolint:exhaustruct
		}

		var ev = LinkEvent{Kind: LinkDown, Remote: remote} //nolint:exhaustruct

		if m.slots[i].State == StateConnected {
			ev.Duration = now.Sub(m.slots[i].ConnectTime)
		}

		m.slots[i] = Connection{} //nolint:exhaustruct

		ev.Err = m.transmit(m.supervisory(LinkUA, remote))

		return ev, true

	case LinkI:
		if i >= 0 && m.slots[i].State == StateConnected {
			var c = &m.slots[i]
			c.VR = (c.VR + 1) % SEQ_MODULUS
			c.VA = c.VS
			c.LastActivity = now
		}

		return LinkEvent{Kind: LinkData, Remote: remote, Info: f.Info}, true //nolint:exhaustruct
	}

	return LinkEvent{}, false //nolint:exhaustruct
}

// Connections lists the slots in use, in slot order.
func (m *ConnectionManager) Connections() []Connection {
	var out []Connection

	for _, c := range m.slots {
		if c.State != StateDisconnected {
			out = append(out, c)
		}
	}

	return out
}

func (m *ConnectionManager) Lookup(remote StationID) (Connection, bool) {
	var i = m.find(remote)
	if i < 0 {
		return Connection{}, false //nolint:exhaustruct
	}

	return m.slots[i], true
}

/* end link.go */
