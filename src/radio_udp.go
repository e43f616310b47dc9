package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:   	Simulated RF link over UDP.
 *
 * Description:	Several TNC instances on one machine or LAN can be
 *		wired together for testing without radios.  Every
 *		packet is sent to each configured peer with a
 *		CRC-16/X.25 frame check sequence appended, low byte
 *		first, just as an HDLC radio frame carries it.
 *		Damaged datagrams come back from Receive as
 *		ErrCRCFailure so they show up in the statistics.
 *
 *		Signal strength and quality are fixed, configured
 *		values since there is no real channel.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/sigurn/crc16"
)

var fcsTable = crc16.MakeTable(crc16.CRC16_X_25)

const udpRxQueueLen = 64

const maxDatagram = 1500

// AppendFCS returns payload followed by its 2 byte FCS.
func AppendFCS(payload []byte) []byte {
	var fcs = crc16.Checksum(payload, fcsTable)
	var out = make([]byte, len(payload), len(payload)+2)

	copy(out, payload)

	return binary.LittleEndian.AppendUint16(out, fcs)
}

// CheckFCS strips and verifies the trailing FCS.
func CheckFCS(frame []byte) ([]byte, error) {
	if len(frame) < 2 {
		return nil, fmt.Errorf("frame of %d bytes has no FCS: %w", len(frame), ErrCRCFailure)
	}

	var payload = frame[:len(frame)-2]
	var got = binary.LittleEndian.Uint16(frame[len(frame)-2:])
	var want = crc16.Checksum(payload, fcsTable)

	if got != want {
		return nil, fmt.Errorf("FCS 0x%04x, computed 0x%04x: %w", got, want, ErrCRCFailure)
	}

	return payload, nil
}

type UDPRadio struct {
	conn   *net.UDPConn
	peers  []*net.UDPAddr
	rx     chan []byte
	logger *log.Logger

	mu     sync.Mutex
	params RadioParams

	rssi     int16
	snr      float32
	lastRSSI int16
	lastSNR  float32

	done chan struct{}
}

/*-------------------------------------------------------------------
 *
 * Name:        NewUDPRadio
 *
 * Inputs:	listen	- Local address, e.g. ":8001".
 *		peers	- host:port of every other station.
 *		rssi	- Reported for every received packet.
 *		snr	- Likewise.
 *
 *--------------------------------------------------------------------*/

func NewUDPRadio(logger *log.Logger, listen string, peers []string, rssi int16, snr float32) (*UDPRadio, error) {
	var laddr, err = net.ResolveUDPAddr("udp", listen)
	if err != nil {
		return nil, fmt.Errorf("udp radio listen address %q: %w", listen, err)
	}

	var r = &UDPRadio{ //nolint:exhaustruct
		rx:     make(chan []byte, udpRxQueueLen),
		logger: componentLogger(logger, "udp-radio"),
		params: DefaultRadioParams(),
		rssi:   rssi,
		snr:    snr,
		done:   make(chan struct{}),
	}

	for _, p := range peers {
		var paddr, perr = net.ResolveUDPAddr("udp", p)
		if perr != nil {
			return nil, fmt.Errorf("udp radio peer %q: %w", p, perr)
		}

		r.peers = append(r.peers, paddr)
	}

	r.conn, err = net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("udp radio: %w", err)
	}

	r.logger.Info("Simulated radio link up", "listen", r.conn.LocalAddr(), "peers", len(r.peers))

	go r.readLoop()

	return r, nil
}

func (r *UDPRadio) LocalAddr() net.Addr {
	return r.conn.LocalAddr()
}

func (r *UDPRadio) readLoop() {
	var buf = make([]byte, maxDatagram)

	for {
		var n, from, err = r.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-r.done:
			default:
				r.logger.Error("Read failed, receiver stopped", "err", err)
			}

			return
		}

		select {
		case r.rx <- append([]byte{}, buf[:n]...):
		default:
			r.logger.Warn("Receive queue full, packet dropped", "from", from)
		}
	}
}

func (r *UDPRadio) Transmit(payload []byte) error {
	var frame = AppendFCS(payload)

	for _, p := range r.peers {
		if _, err := r.conn.WriteToUDP(frame, p); err != nil {
			return fmt.Errorf("udp radio send to %s: %v: %w", p, err, ErrRadioFailure)
		}
	}

	return nil
}

func (r *UDPRadio) Available() bool {
	return len(r.rx) > 0
}

func (r *UDPRadio) Receive() ([]byte, error) {
	select {
	case frame := <-r.rx:
		r.lastRSSI = r.rssi
		r.lastSNR = r.snr

		return CheckFCS(frame)
	default:
		return nil, fmt.Errorf("udp radio: nothing received: %w", ErrNotFound)
	}
}

func (r *UDPRadio) SignalStrength() int16 {
	return r.lastRSSI
}

func (r *UDPRadio) SignalQuality() float32 {
	return r.lastSNR
}

func (r *UDPRadio) Tune(p RadioParams) error {
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	r.params = p
	r.mu.Unlock()

	r.logger.Info("Parameters changed", "params", p)

	return nil
}

func (r *UDPRadio) Close() error {
	close(r.done)

	return r.conn.Close()
}
