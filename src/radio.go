package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:   	The radio as seen by the TNC.
 *
 * Description:	The link stack never touches hardware.  It is handed
 *		something implementing Radio and calls it from the
 *		control loop only.  Implementations must not block for
 *		long in any method; anything slow happens in their own
 *		goroutine and is handed over through a queue.
 *
 *		Available
 *		implementations:
 *
 *			MemoryRadio	In process, for tests and for
 *					wiring two TNCs back to back.
 *
 *			UDPRadio	Simulated RF over UDP between
 *					TNC instances, with an FCS.
 *
 *			RYLRRadio	REYAX RYLR896 style LoRa module
 *					driven with AT commands over a
 *					serial port.
 *
 *---------------------------------------------------------------*/

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

type Radio interface {
	// Transmit sends one packet.  An error means nothing went out.
	Transmit(payload []byte) error

	// Available reports whether Receive has a packet ready.
	Available() bool

	// Receive returns the next packet.  Errors wrapping ErrCRCFailure
	// mean a packet arrived but was damaged.
	Receive() ([]byte, error)

	// Signal of the last packet returned by Receive.
	SignalStrength() int16
	SignalQuality() float32
}

// Tunable radios accept new LoRa parameters while running.
type Tunable interface {
	Tune(p RadioParams) error
}

type RadioParams struct {
	FrequencyMHz    float32 `yaml:"frequency"`
	BandwidthKHz    float32 `yaml:"bandwidth"`
	SpreadingFactor int     `yaml:"spreading-factor"`
	CodingRate      int     `yaml:"coding-rate"`
	PowerDBm        int     `yaml:"power"`
	SyncWord        uint16  `yaml:"sync-word"`
}

// 70cm LoRa APRS style defaults.
func DefaultRadioParams() RadioParams {
	return RadioParams{
		FrequencyMHz:    433.775,
		BandwidthKHz:    125,
		SpreadingFactor: 12,
		CodingRate:      5,
		PowerDBm:        20,
		SyncWord:        0x12,
	}
}

// Bandwidths a LoRa transceiver can be set to, kHz.
var loraBandwidths = []float32{7.8, 10.4, 15.6, 20.8, 31.25, 41.7, 62.5, 125, 250, 500}

// Index order used by the SETHARDWARE bandwidth sub-command.
var hardwareBandwidths = []float32{125, 250, 500}

func (p RadioParams) Validate() error {
	switch {
	case p.FrequencyMHz < 137 || p.FrequencyMHz > 1020:
		return fmt.Errorf("frequency %.3f MHz outside 137-1020: %w", p.FrequencyMHz, ErrConfigInvalid)
	case !slices.Contains(loraBandwidths, p.BandwidthKHz):
		return fmt.Errorf("bandwidth %g kHz not supported: %w", p.BandwidthKHz, ErrConfigInvalid)
	case p.SpreadingFactor < 7 || p.SpreadingFactor > 12:
		return fmt.Errorf("spreading factor %d outside 7-12: %w", p.SpreadingFactor, ErrConfigInvalid)
	case p.CodingRate < 5 || p.CodingRate > 8:
		return fmt.Errorf("coding rate 4/%d outside 4/5-4/8: %w", p.CodingRate, ErrConfigInvalid)
	case p.PowerDBm < 2 || p.PowerDBm > 22:
		return fmt.Errorf("power %d dBm outside 2-22: %w", p.PowerDBm, ErrConfigInvalid)
	}

	return nil
}

func (p RadioParams) String() string {
	return fmt.Sprintf("%.3f MHz BW %g kHz SF%d CR4/%d %d dBm sync 0x%02X",
		p.FrequencyMHz, p.BandwidthKHz, p.SpreadingFactor, p.CodingRate, p.PowerDBm, p.SyncWord)
}

var errRadioClosed = errors.New("radio closed")

type memoryPacket struct {
	payload []byte
	rssi    int16
	snr     float32
}

/*-------------------------------------------------------------------
 *
 * Name:        MemoryRadio
 *
 * Purpose:     Radio living entirely in memory.
 *
 * Description:	Inject queues a received packet.  Everything
 *		transmitted is recorded and, when a peer has been
 *		attached with Link, also queued at the peer.
 *		FailTransmit makes every Transmit return an error.
 *		Safe to use from several goroutines.
 *
 *--------------------------------------------------------------------*/

type MemoryRadio struct {
	mu           sync.Mutex
	rx           []memoryPacket
	sent         [][]byte
	peers        []*MemoryRadio
	lastRSSI     int16
	lastSNR      float32
	failTransmit bool
	params       RadioParams

	// Signal reported at a peer for packets we transmit.
	LinkRSSI int16
	LinkSNR  float32
}

func NewMemoryRadio() *MemoryRadio {
	return &MemoryRadio{ //nolint:exhaustruct
		params:   DefaultRadioParams(),
		LinkRSSI: -80,
		LinkSNR:  7.5,
	}
}

// Link makes a and b hear each other.
func Link(a, b *MemoryRadio) {
	a.mu.Lock()
	a.peers = append(a.peers, b)
	a.mu.Unlock()

	b.mu.Lock()
	b.peers = append(b.peers, a)
	b.mu.Unlock()
}

func (r *MemoryRadio) Inject(payload []byte, rssi int16, snr float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rx = append(r.rx, memoryPacket{payload: append([]byte{}, payload...), rssi: rssi, snr: snr})
}

func (r *MemoryRadio) FailTransmit(fail bool) {
	r.mu.Lock()
	r.failTransmit = fail
	r.mu.Unlock()
}

// Sent returns copies of everything transmitted so far.
func (r *MemoryRadio) Sent() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out = make([][]byte, 0, len(r.sent))
	for _, p := range r.sent {
		out = append(out, append([]byte{}, p...))
	}

	return out
}

// SentText is Sent as strings, handy for the text link frames.
func (r *MemoryRadio) SentText() []string {
	var out []string
	for _, p := range r.Sent() {
		out = append(out, string(p))
	}

	return out
}

func (r *MemoryRadio) ClearSent() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}

func (r *MemoryRadio) Transmit(payload []byte) error {
	r.mu.Lock()

	if r.failTransmit {
		r.mu.Unlock()

		return fmt.Errorf("memory radio: %w", ErrRadioFailure)
	}

	r.sent = append(r.sent, append([]byte{}, payload...))

	var peers = slices.Clone(r.peers)
	var rssi, snr = r.LinkRSSI, r.LinkSNR
	r.mu.Unlock()

	for _, p := range peers {
		p.Inject(payload, rssi, snr)
	}

	return nil
}

func (r *MemoryRadio) Available() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.rx) > 0
}

func (r *MemoryRadio) Receive() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.rx) == 0 {
		return nil, fmt.Errorf("memory radio: nothing received: %w", ErrNotFound)
	}

	var p = r.rx[0]
	r.rx = r.rx[1:]
	r.lastRSSI = p.rssi
	r.lastSNR = p.snr

	return p.payload, nil
}

func (r *MemoryRadio) SignalStrength() int16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lastRSSI
}

func (r *MemoryRadio) SignalQuality() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lastSNR
}

func (r *MemoryRadio) Tune(p RadioParams) error {
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	r.params = p
	r.mu.Unlock()

	return nil
}

func (r *MemoryRadio) Params() RadioParams {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.params
}
