package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:   	LoRa module with an AT command interface, such as
 *		the REYAX RYLR896 / RYLR406, on a serial port.
 *
 * Description:	Commands and responses are CR LF terminated lines.
 *
 *			AT+SEND=<addr>,<len>,<data>	-> +OK
 *			AT+BAND=<Hz>			-> +OK
 *			AT+PARAMETER=<sf>,<bw>,<cr>,<pp> -> +OK
 *			AT+CRFOP=<dBm>			-> +OK
 *			+RCV=<addr>,<len>,<data>,<rssi>,<snr>	unsolicited
 *			+ERR=<n>			failure
 *
 *		A reader goroutine splits the stream into lines.
 *		Received packets go to one queue, command responses
 *		to another, so the control loop never waits on the
 *		port except briefly for a command response.
 *
 *		The module's payload is text safe but not binary
 *		safe at the line level, so packets are limited to
 *		bytes other than CR and LF.  The link layer's frames
 *		are text, so this costs nothing in practice.
 *
 *---------------------------------------------------------------*/

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"go.bug.st/serial"
)

const rylrBroadcast = 0

const rylrMaxPayload = 240

const rylrCommandTimeout = 2 * time.Second

type rylrPacket struct {
	payload []byte
	rssi    int16
	snr     float32
}

type RYLRRadio struct {
	port   serial.Port
	logger *log.Logger

	rx        chan rylrPacket
	responses chan string

	lastRSSI int16
	lastSNR  float32
}

/*-------------------------------------------------------------------
 *
 * Name:        OpenRYLRRadio
 *
 * Inputs:	device	- Serial port, e.g. /dev/ttyUSB0.
 *		baud	- Module UART speed, 115200 by default.
 *		address	- Our module address, 0-65535.
 *		network	- Network id, must match the other stations.
 *		params	- Initial radio parameters.
 *
 *--------------------------------------------------------------------*/

func OpenRYLRRadio(logger *log.Logger, device string, baud int, address int, network int, params RadioParams) (*RYLRRadio, error) {
	var mode = &serial.Mode{ //nolint:exhaustruct
		BaudRate: baud,
	}

	var port, err = serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("open LoRa module %s: %v: %w", device, err, ErrRadioFailure)
	}

	var r = &RYLRRadio{ //nolint:exhaustruct
		port:      port,
		logger:    componentLogger(logger, "rylr"),
		rx:        make(chan rylrPacket, udpRxQueueLen),
		responses: make(chan string, 4),
	}

	go r.readLoop()

	for _, cmd := range []string{
		fmt.Sprintf("AT+ADDRESS=%d", address),
		fmt.Sprintf("AT+NETWORKID=%d", network),
	} {
		if err := r.command(cmd); err != nil {
			port.Close()

			return nil, err
		}
	}

	if err := r.Tune(params); err != nil {
		port.Close()

		return nil, err
	}

	r.logger.Info("LoRa module ready", "device", device, "address", address, "network", network)

	return r, nil
}

func (r *RYLRRadio) readLoop() {
	var scanner = bufio.NewScanner(r.port)

	for scanner.Scan() {
		var line = strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "+RCV=") {
			var p, err = parseRCV(line)
			if err != nil {
				r.logger.Warn("Unparsable receive line", "line", line, "err", err)

				continue
			}

			select {
			case r.rx <- p:
			default:
				r.logger.Warn("Receive queue full, packet dropped")
			}

			continue
		}

		select {
		case r.responses <- line:
		default:
			r.logger.Debug("Unexpected module output", "line", line)
		}
	}

	if err := scanner.Err(); err != nil {
		r.logger.Error("Serial read failed, receiver stopped", "err", err)
	}
}

// parseRCV handles "+RCV=<addr>,<len>,<data>,<rssi>,<snr>".  The data may contain commas.
func parseRCV(line string) (rylrPacket, error) {
	var body = strings.TrimPrefix(line, "+RCV=")

	var _, rest, ok = strings.Cut(body, ",")
	if !ok {
		return rylrPacket{}, fmt.Errorf("missing length: %w", ErrInvalidFrame)
	}

	var lenText string
	lenText, rest, ok = strings.Cut(rest, ",")
	if !ok {
		return rylrPacket{}, fmt.Errorf("missing data: %w", ErrInvalidFrame)
	}

	var n, err = strconv.Atoi(lenText)
	if err != nil || n < 0 || n > len(rest) {
		return rylrPacket{}, fmt.Errorf("bad length %q: %w", lenText, ErrInvalidFrame)
	}

	var data = rest[:n]
	var signal = strings.Split(strings.TrimPrefix(rest[n:], ","), ",")

	if len(signal) != 2 {
		return rylrPacket{}, fmt.Errorf("missing RSSI/SNR: %w", ErrInvalidFrame)
	}

	var rssi, rssiErr = strconv.Atoi(signal[0])
	var snr, snrErr = strconv.ParseFloat(signal[1], 32)

	if rssiErr != nil || snrErr != nil {
		return rylrPacket{}, fmt.Errorf("bad RSSI/SNR %q: %w", signal, ErrInvalidFrame)
	}

	return rylrPacket{payload: []byte(data), rssi: int16(rssi), snr: float32(snr)}, nil
}

func (r *RYLRRadio) command(cmd string) error {
	if _, err := r.port.Write([]byte(cmd + "\r\n")); err != nil {
		return fmt.Errorf("%s: %v: %w", cmd, err, ErrRadioFailure)
	}

	select {
	case resp := <-r.responses:
		if resp == "+OK" || strings.HasPrefix(resp, "+READY") {
			return nil
		}

		return fmt.Errorf("%s: module answered %q: %w", cmd, resp, ErrRadioFailure)
	case <-time.After(rylrCommandTimeout):
		return fmt.Errorf("%s: no answer from module: %w", cmd, ErrTimeout)
	}
}

func (r *RYLRRadio) Transmit(payload []byte) error {
	if len(payload) > rylrMaxPayload {
		return fmt.Errorf("%d bytes exceeds module limit of %d: %w", len(payload), rylrMaxPayload, ErrRadioFailure)
	}

	if bytes.ContainsAny(payload, "\r\n") {
		return fmt.Errorf("payload contains line ending: %w", ErrRadioFailure)
	}

	return r.command(fmt.Sprintf("AT+SEND=%d,%d,%s", rylrBroadcast, len(payload), payload))
}

func (r *RYLRRadio) Available() bool {
	return len(r.rx) > 0
}

func (r *RYLRRadio) Receive() ([]byte, error) {
	select {
	case p := <-r.rx:
		r.lastRSSI = p.rssi
		r.lastSNR = p.snr

		return p.payload, nil
	default:
		return nil, fmt.Errorf("LoRa module: nothing received: %w", ErrNotFound)
	}
}

func (r *RYLRRadio) SignalStrength() int16 {
	return r.lastRSSI
}

func (r *RYLRRadio) SignalQuality() float32 {
	return r.lastSNR
}

// Module bandwidth codes 0-9, in the order of loraBandwidths.
func rylrBandwidthCode(khz float32) (int, bool) {
	var i = slices.Index(loraBandwidths, khz)

	return i, i >= 0
}

func (r *RYLRRadio) Tune(p RadioParams) error {
	if err := p.Validate(); err != nil {
		return err
	}

	var bw, _ = rylrBandwidthCode(p.BandwidthKHz)

	// The module tops out at 15 dBm.
	var power = min(p.PowerDBm, 15)

	for _, cmd := range []string{
		fmt.Sprintf("AT+BAND=%d", frequencyHz(p.FrequencyMHz)),
		fmt.Sprintf("AT+PARAMETER=%d,%d,%d,%d", p.SpreadingFactor, bw, p.CodingRate-4, 4),
		fmt.Sprintf("AT+CRFOP=%d", power),
	} {
		if err := r.command(cmd); err != nil {
			return err
		}
	}

	r.logger.Info("Parameters changed", "params", p)

	return nil
}

// Whole kHz, so float32 rounding cannot leave a few Hz of error.
func frequencyHz(mhz float32) int64 {
	return int64(math.Round(float64(mhz)*1000)) * 1000
}

func (r *RYLRRadio) Close() error {
	return r.port.Close()
}
