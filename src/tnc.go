package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:   	The TNC proper.  Owns every table and runs the single
 *		control loop everything else feeds.
 *
 * Description:	Host transports (serial port, pseudo terminal, TCP
 *		clients) each attach as a Host and hand over raw bytes
 *		from their own goroutine with Feed.  The loop decodes
 *		them with that host's KISS decoder, so a frame callback
 *		runs to completion before the next byte is looked at.
 *
 *		The loop also polls the radio, drains the transmit
 *		queue, runs the link layer timers and sweeps the heard
 *		list and routing table now and then.
 *
 *		Everything received over the radio is passed to every
 *		host, as a plain data frame or, when the host asked
 *		for it, as a receive indication carrying RSSI and SNR.
 *		It is then looked at more closely:
 *
 *		  - Link frames addressed to us go to the connection
 *		    manager.
 *		  - Monitor format packets, SRC>DST,PATH:info, update
 *		    the heard list and are offered to the digipeater,
 *		    which also learns routes from them.
 *
 *		Poll, Tick and Input are exported so tests can step
 *		the TNC without running the loop.  Only one goroutine
 *		may call them at a time.
 *
 *---------------------------------------------------------------*/

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

const RADIO_POLL_INTERVAL = 10 * time.Millisecond

const TICK_INTERVAL = 250 * time.Millisecond

const HOUSEKEEPING_INTERVAL = time.Minute

const hostInboxLen = 64

// Host is one attached KISS application.
type Host struct {
	ID   int
	Name string

	send    func([]byte) error
	decoder *Decoder
}

type hostInput struct {
	host *Host
	data []byte
}

type execRequest struct {
	line  string
	reply chan Reply
}

type TNC struct {
	cfg    *Config
	clock  Clock
	radio  Radio
	logger *log.Logger

	stats  *Statistics
	links  *ConnectionManager
	routes *RoutingTable
	heard  *HeardCache
	digi   *Digipeater
	txq    *TransmitQueue
	plog   *PacketLog

	mycall        StationID
	params        KissParams
	radioParams   RadioParams
	rxIndications bool

	paused  bool
	backlog [][]byte

	lastHousekeeping time.Time

	mu     sync.Mutex /* Protects hosts and nextID. */
	hosts  map[int]*Host
	nextID int

	inbox chan hostInput
	execs chan execRequest
	done  chan struct{}
	once  sync.Once
}

/*-------------------------------------------------------------------
 *
 * Name:        NewTNC
 *
 * Purpose:     Build the TNC around a radio.
 *
 * Inputs:	cfg	- Validated configuration.  Kept, and written
 *			  back by the SETHARDWARE save command.
 *		radio	- Anything implementing Radio.  If it is also
 *			  Tunable it is given the configured parameters.
 *		clock	- SystemClock() except in tests.
 *
 *--------------------------------------------------------------------*/

func NewTNC(cfg *Config, radio Radio, clock Clock, logger *log.Logger) (*TNC, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var mycall, _ = cfg.StationID()
	var now = clock.Now()

	var t = &TNC{ //nolint:exhaustruct
		cfg:              cfg,
		clock:            clock,
		radio:            radio,
		logger:           componentLogger(logger, "tnc"),
		stats:            NewStatistics(now),
		routes:           NewRoutingTable(cfg.Routes.Capacity, cfg.Routes.StaleAfter, clock, logger),
		heard:            NewHeardCache(cfg.Heard.Capacity, cfg.Heard.MaxAge, clock, logger),
		txq:              NewTransmitQueue(DEFAULT_TQ_DEPTH),
		params:           cfg.Radio.Params,
		radioParams:      cfg.Radio.LoRa,
		rxIndications:    cfg.Kiss.RxIndications,
		lastHousekeeping: now,
		hosts:            make(map[int]*Host),
		inbox:            make(chan hostInput, hostInboxLen),
		execs:            make(chan execRequest),
		done:             make(chan struct{}),
	}

	var err error

	t.links = NewConnectionManager(radio, clock, cfg.Connections, t.stats, logger)

	if t.digi, err = NewDigipeater(cfg.Digipeater, t.routes, logger); err != nil {
		return nil, err
	}

	if tun, ok := radio.(Tunable); ok {
		if err := tun.Tune(t.radioParams); err != nil {
			return nil, err
		}
	}

	if t.plog, err = OpenPacketLog(cfg.Log.Daily, cfg.Log.PacketLog, clock, logger); err != nil {
		return nil, err
	}

	t.SetMyCall(mycall)

	return t, nil
}

func (t *TNC) SetMyCall(id StationID) {
	t.mycall = id
	t.links.SetMyCall(id)
	t.digi.SetMyCall(id)

	if id.IsSet() {
		t.cfg.Station = StationConfig{MyCall: id.Call, SSID: id.SSID}
	} else {
		t.cfg.Station = StationConfig{MyCall: NOCALL, SSID: 0}
	}
}

func (t *TNC) MyCall() StationID { return t.mycall }
func (t *TNC) Stats() *Statistics { return t.stats }
func (t *TNC) Links() *ConnectionManager { return t.links }
func (t *TNC) Routes() *RoutingTable { return t.routes }
func (t *TNC) Heard() *HeardCache { return t.heard }
func (t *TNC) Digipeater() *Digipeater { return t.digi }
func (t *TNC) KissParams() KissParams { return t.params }
func (t *TNC) RadioParams() RadioParams { return t.radioParams }
func (t *TNC) RxIndications() bool { return t.rxIndications }
func (t *TNC) Paused() bool { return t.paused }
func (t *TNC) TransmitQueue() *TransmitQueue { return t.txq }
func (t *TNC) Config() *Config { return t.cfg }
func (t *TNC) Backlog() int { return len(t.backlog) }

/*-------------------------------------------------------------------
 *
 * Name:        AttachHost
 *
 * Purpose:     Register a KISS application.
 *
 * Inputs:	name	- For log messages.
 *		send	- Writes bytes to the application.  Called from
 *			  the control loop.
 *
 * Returns:	Handle for Feed and DetachHost.
 *
 *		Safe to call from any goroutine.
 *
 *--------------------------------------------------------------------*/

func (t *TNC) AttachHost(name string, send func([]byte) error) *Host {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++

	var h = &Host{ID: t.nextID, Name: name, send: send} //nolint:exhaustruct

	h.decoder = NewDecoder(t.cfg.Kiss.BufferSize, func(f Frame) {
		t.hostFrame(h, f)
	}, func(err error) {
		t.hostError(h, err)
	})
	h.decoder.OnNoise = func(line []byte) {
		t.hostNoise(h, line)
	}

	t.hosts[h.ID] = h

	t.logger.Info("Attached to KISS client application", "host", name)

	return h
}

func (t *TNC) DetachHost(h *Host) {
	t.mu.Lock()
	delete(t.hosts, h.ID)
	t.mu.Unlock()

	t.logger.Info("KISS client application has gone away", "host", h.Name)
}

func (t *TNC) hostList() []*Host {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out = make([]*Host, 0, len(t.hosts))
	for _, h := range t.hosts {
		out = append(out, h)
	}

	return out
}

// Feed hands bytes from a host to the control loop.  It blocks while the loop is busy.
func (t *TNC) Feed(h *Host, data []byte) {
	select {
	case t.inbox <- hostInput{host: h, data: bytes.Clone(data)}:
	case <-t.done:
	}
}

// Exec runs a text command on the control loop.
func (t *TNC) Exec(ctx context.Context, line string) (Reply, error) {
	var req = execRequest{line: line, reply: make(chan Reply, 1)}

	select {
	case t.execs <- req:
	case <-ctx.Done():
		return Reply{}, ctx.Err() //nolint:exhaustruct
	case <-t.done:
		return Reply{}, errStopped //nolint:exhaustruct
	}

	select {
	case r := <-req.reply:
		return r, nil
	case <-ctx.Done():
		return Reply{}, ctx.Err() //nolint:exhaustruct
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        Run
 *
 * Purpose:     The control loop.  Returns when ctx is cancelled.
 *
 *--------------------------------------------------------------------*/

func (t *TNC) Run(ctx context.Context) error {
	var poll = time.NewTicker(RADIO_POLL_INTERVAL)
	var tick = time.NewTicker(TICK_INTERVAL)

	defer poll.Stop()
	defer tick.Stop()
	defer t.once.Do(func() { close(t.done) })

	t.logger.Info("TNC running", "mycall", t.mycall, "radio", t.radioParams)

	for {
		select {
		case <-ctx.Done():
			t.plog.Close()

			return nil
		case in := <-t.inbox:
			t.Input(in.host, in.data)
		case req := <-t.execs:
			req.reply <- t.Execute(req.line)
		case <-poll.C:
			t.Poll()
		case <-tick.C:
			t.Tick()
		}
	}
}

// Input decodes bytes received from a host.
func (t *TNC) Input(h *Host, data []byte) {
	h.decoder.Write(data) //nolint:errcheck
}

func (t *TNC) reply(h *Host, frame []byte) {
	if h == nil || h.send == nil {
		return
	}

	if err := h.send(frame); err != nil {
		t.logger.Warn("Error sending to KISS client application", "host", h.Name, "err", err)
	}
}

// broadcast goes to every host regardless of flow control.
func (t *TNC) broadcast(frame []byte) {
	for _, h := range t.hostList() {
		t.reply(h, frame)
	}
}

// deliverToHosts holds received traffic back while the host has paused delivery.
func (t *TNC) deliverToHosts(frame []byte) {
	if !t.paused {
		t.broadcast(frame)

		return
	}

	if len(t.backlog) >= t.cfg.Kiss.Backlog {
		t.stats.CountError(errBacklogFull)
		t.logger.Warn("Host backlog full, received frame dropped", "backlog", len(t.backlog))

		return
	}

	t.backlog = append(t.backlog, frame)
}

var errBacklogFull = fmt.Errorf("host backlog full: %w", ErrBufferOverflow)

func (t *TNC) resume() {
	t.paused = false

	var held = t.backlog
	t.backlog = nil

	for _, frame := range held {
		t.broadcast(frame)
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        hostFrame
 *
 * Purpose:     Act on one KISS frame from a host application.
 *
 *--------------------------------------------------------------------*/

func (t *TNC) hostFrame(h *Host, f Frame) {
	if f.Command != CmdData {
		t.stats.CommandsRx++
	}

	switch f.Command {
	case CmdData:
		if len(f.Payload) == 0 {
			t.hostError(h, errEmptyData)

			return
		}

		if err := t.txq.Append(TQ_PRIO_1_LO, f.Payload); err != nil {
			t.hostError(h, err)
		}

	case CmdTxDelay, CmdPersistence, CmdSlotTime, CmdTxTail, CmdFullDuplex:
		if err := t.params.Set(f.Command, f.Payload); err != nil {
			t.hostError(h, err)

			return
		}

		t.logger.Info("KISS protocol set", "param", f.Command, "value", f.Payload[0])

	case CmdSetHardware:
		t.setHardware(h, f.Payload)

	case CmdReturn:
		t.logger.Info("KISS protocol: exit KISS mode requested, ignored", "host", h.Name)

	case CmdStatusRequest:
		t.reply(h, t.stats.Report(t.clock.Now()).Encode())

	case CmdFlowControl:
		if len(f.Payload) < 1 {
			t.hostError(h, errMissingValue)

			return
		}

		if f.Payload[0] == 0 {
			t.paused = true
			t.logger.Debug("Host paused delivery", "host", h.Name)
		} else {
			t.resume()
			t.logger.Debug("Host resumed delivery", "host", h.Name)
		}

	case CmdBufferStatus:
		t.reply(h, BufferStatus{
			Backlog:         uint16(len(t.backlog)),
			BacklogCapacity: uint16(t.cfg.Kiss.Backlog),
			DecoderUsed:     uint16(h.decoder.Buffered()),
			DecoderCapacity: uint16(h.decoder.Capacity()),
			Paused:          t.paused,
		}.Encode())

	case CmdProtocolVersion:
		t.reply(h, ProtocolVersion{Major: PROTOCOL_MAJOR, Minor: PROTOCOL_MINOR, Firmware: firmwareID()}.Encode())

	case CmdEnhancedConfig:
		if len(f.Payload) < 2 || f.Payload[0] != ENH_RX_INDICATIONS {
			t.hostError(h, errEnhancedConfig)

			return
		}

		t.rxIndications = f.Payload[1] != 0
		t.logger.Info("Receive indications", "enabled", t.rxIndications)

	default:
		/* Statistics, error reports and receive indications only go the other way. */
		t.hostError(h, errTNCToHostOnly)
	}
} /* end hostFrame */

// Enhanced config sub-command selecting receive indications.
const ENH_RX_INDICATIONS = 0x01

var (
	errEmptyData      = fmt.Errorf("empty data frame: %w", ErrInvalidFrame)
	errMissingValue   = fmt.Errorf("flow control without a value: %w", ErrInvalidFrame)
	errEnhancedConfig = fmt.Errorf("unknown enhanced config sub-command: %w", ErrInvalidFrame)
	errTNCToHostOnly  = fmt.Errorf("command is only sent from TNC to host: %w", ErrInvalidFrame)
	errStopped        = errors.New("TNC has stopped")
)

// hostError counts a problem with host input and tells that host about it.
func (t *TNC) hostError(h *Host, err error) {
	t.stats.CountError(err)
	t.logger.Warn("KISS input problem", "host", h.Name, "err", err)
	t.reply(h, ErrorReportFor(err).Encode())
}

/*-------------------------------------------------------------------
 *
 * Name:        hostNoise
 *
 * Purpose:     Text arriving outside of KISS frames.
 *
 * Description:	An application might think it is attached to a
 *		traditional TNC with a command mode.  Anything it types
 *		is run as a command and a prompt is sent back, which
 *		keeps such applications happy and makes the port usable
 *		from a plain terminal program.
 *
 *--------------------------------------------------------------------*/

func (t *TNC) hostNoise(h *Host, line []byte) {
	var text = strings.TrimSpace(string(line))

	var out bytes.Buffer

	if text != "" {
		var r = t.Execute(text)

		for _, l := range r.Lines {
			out.WriteString(l)
			out.WriteString("\r\n")
		}
	}

	out.WriteString("\r\ncmd:")

	t.reply(h, out.Bytes())
}

func (t *TNC) setHardware(h *Host, payload []byte) {
	var next, action, err = applyHardware(t.radioParams, payload)
	if err != nil {
		t.hostError(h, err)

		return
	}

	switch action {
	case hwText:
		var resp, terr = hardwareText(payload, t.txq.Bytes())
		if terr != nil {
			t.hostError(h, terr)

			return
		}

		t.reply(h, Encapsulate(CmdSetHardware, []byte(resp)))

	case hwQuery:
		t.reply(h, EncodeHardwareConfig(t.radioParams))

	case hwSave:
		t.cfg.Radio.LoRa = t.radioParams
		t.cfg.Radio.Params = t.params

		if err := t.cfg.Save(""); err != nil {
			t.hostError(h, err)

			return
		}

		t.logger.Info("Configuration saved", "file", t.cfg.Path())

	case hwApply:
		if tun, ok := t.radio.(Tunable); ok {
			if err := tun.Tune(next); err != nil {
				t.hostError(h, err)

				return
			}
		}

		t.radioParams = next
		t.logger.Info("Radio parameters changed", "params", next)
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        Poll
 *
 * Purpose:     Take everything the radio has received, then send
 *		everything waiting in the transmit queue.
 *
 *--------------------------------------------------------------------*/

func (t *TNC) Poll() {
	for t.radio.Available() {
		var payload, err = t.radio.Receive()

		if errors.Is(err, ErrNotFound) {
			break
		}

		if err != nil {
			t.stats.CountError(err)
			t.logger.Warn("Receive failed", "err", err)
			t.broadcast(ErrorReportFor(err).Encode())

			continue
		}

		t.received(payload, t.radio.SignalStrength(), t.radio.SignalQuality())
	}

	for {
		var p, ok = t.txq.Remove()
		if !ok {
			break
		}

		t.transmit(p)
	}
}

func (t *TNC) transmit(p []byte) {
	if err := t.radio.Transmit(p); err != nil {
		t.stats.CountError(err)
		t.logger.Error("Transmit failed", "len", len(p), "err", err)
		t.broadcast(ErrorReportFor(err).Encode())

		return
	}

	t.stats.CountTx(len(p), t.clock.Now())
}

func (t *TNC) received(payload []byte, rssi int16, snr float32) {
	var now = t.clock.Now()

	t.stats.CountRx(len(payload), rssi, snr, now)

	if t.rxIndications {
		t.stats.RxIndications++
		t.deliverToHosts(RxIndication{
			RSSI:      rssi,
			SNR:       snr,
			Timestamp: uint32(t.stats.Uptime(now).Milliseconds()), //nolint:gosec
			Payload:   payload,
		}.Encode())
	} else {
		t.deliverToHosts(Encapsulate(CmdData, payload))
	}

	var rec = t.interpret(payload, rssi, snr)

	if err := t.plog.Write(rec); err != nil {
		t.logger.Warn("Packet log", "err", err)
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        interpret
 *
 * Purpose:     Work out what a received packet is and let the
 *		tables and state machines see it.
 *
 * Returns:	Description for the packet log.
 *
 *--------------------------------------------------------------------*/

func (t *TNC) interpret(payload []byte, rssi int16, snr float32) PacketRecord {
	var sf, bw = t.radioParams.SpreadingFactor, t.radioParams.BandwidthKHz

	var rec = PacketRecord{RSSI: rssi, SNR: snr, SF: sf, BW: bw, Kind: "raw", Info: string(payload)} //nolint:exhaustruct

	if lf, err := ParseLinkFrame(payload); err == nil {
		t.heard.Observe(lf.Source.String(), rssi, snr, sf, bw, lf.Info)

		if ev, ours := t.links.HandleFrame(lf); ours {
			t.linkEvent(ev)
		}

		rec.Source = lf.Source.String()
		rec.Dest = lf.Dest.String()
		rec.Kind = "link"
		rec.Info = string(lf.Type) + " " + lf.Info

		return rec
	}

	var header, info, ok = strings.Cut(string(payload), ":")
	if !ok || strings.ContainsAny(header, " \r\n") {
		return rec
	}

	var source, rest, addressed = strings.Cut(header, ">")
	if !addressed || source == "" {
		return rec
	}

	var dest, path, _ = strings.Cut(rest, ",")

	rec.Source = strings.ToUpper(source)
	rec.Dest = strings.ToUpper(dest)
	rec.Path = path
	rec.Kind = "monitor"
	rec.Info = info

	if !strings.EqualFold(source, t.mycall.String()) {
		t.heard.Observe(source, rssi, snr, sf, bw, info)
	}

	var d = t.digi.Process(header, QualityFromSNR(snr))
	if d.Repeat {
		if err := t.txq.Append(TQ_PRIO_0_HI, []byte(d.Path+":"+info)); err != nil {
			t.stats.CountError(err)
			t.logger.Warn("Digipeat dropped", "err", err)
		}
	}

	return rec
} /* end interpret */

func (t *TNC) linkEvent(ev LinkEvent) {
	switch ev.Kind {
	case 0:
	case LinkData:
		t.logger.Info("Link data", "from", ev.Remote, "text", ev.Info)
	case LinkTimedOut:
		t.logger.Warn("Connection timed out", "remote", ev.Remote)
		t.broadcast(ErrorReport{
			Code:        CodeTimeout.WireCode(),
			Description: "link timeout: " + ev.Remote.String(),
		}.Encode())
	default:
		t.logger.Info("Link", "event", ev.Kind, "remote", ev.Remote, "duration", ev.Duration)
	}

	if ev.Err != nil && ev.Kind != LinkTimedOut {
		t.logger.Warn("Link", "remote", ev.Remote, "err", ev.Err)
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        Tick
 *
 * Purpose:     Timer processing.  Link layer timeouts and retries
 *		every time, table sweeps once per housekeeping interval.
 *
 *--------------------------------------------------------------------*/

func (t *TNC) Tick() {
	for _, ev := range t.links.Tick() {
		t.linkEvent(ev)
	}

	var now = t.clock.Now()

	if now.Sub(t.lastHousekeeping) < HOUSEKEEPING_INTERVAL {
		return
	}

	t.lastHousekeeping = now

	var stations = t.heard.Purge()
	var routes = t.routes.Purge()

	if stations > 0 || routes > 0 {
		t.logger.Debug("Housekeeping", "stations", stations, "routes", routes)
	}
}

// Close releases files.  Transports are closed by whoever opened them.
func (t *TNC) Close() {
	t.once.Do(func() { close(t.done) })
	t.plog.Close()
}

/* end tnc.go */
