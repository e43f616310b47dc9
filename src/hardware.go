package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:   	KISS parameter commands and the SETHARDWARE (0x06)
 *		sub-commands that change the LoRa radio.
 *
 * Description:	TXDELAY, PERSIST, SLOTTIME, TXTAIL and FULLDUPLEX come
 *		from the days of FM transmitters with slow keying.  A
 *		LoRa module keys itself, but applications send them
 *		anyway, so they are accepted, kept and reported.
 *
 *		SETHARDWARE payloads start with a sub-command byte:
 *
 *			01	frequency	float32 BE, MHz
 *			02	bandwidth	0 = 125, 1 = 250, 2 = 500 kHz
 *			03	spreading factor 7 - 12
 *			04	coding rate	5 - 8 for 4/5 - 4/8
 *			05	power		int8, dBm
 *			06	get config	answered with a 06 frame
 *			07	save config
 *			08	sync word	uint16 BE
 *			FF	reset to defaults
 *
 *		The get config answer is
 *
 *			06, frequency f32 BE, bandwidth f32 BE, sf, cr,
 *			power int8, sync word u16 BE
 *
 *		Text queries of the form "NAME:" are also recognized,
 *		as other TNCs do:
 *
 *			TNC:		TNC:LoRaTNCX 1.0
 *			TXBUF:		TXBUF:999	bytes waiting to be sent.
 *
 *---------------------------------------------------------------*/

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
)

type KissParams struct {
	TxDelay    uint8 `yaml:"txdelay"`
	Persist    uint8 `yaml:"persist"`
	SlotTime   uint8 `yaml:"slottime"`
	TxTail     uint8 `yaml:"txtail"`
	FullDuplex bool  `yaml:"fullduplex"`
}

func DefaultKissParams() KissParams {
	return KissParams{
		TxDelay:    50,
		Persist:    63,
		SlotTime:   10,
		TxTail:     30,
		FullDuplex: false,
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        Set
 *
 * Purpose:     Apply one of the classic KISS parameter commands.
 *
 * Inputs:	cmd	- CmdTxDelay through CmdFullDuplex.
 *		payload	- One value byte.
 *
 *--------------------------------------------------------------------*/

func (p *KissParams) Set(cmd Command, payload []byte) error {
	if len(payload) < 1 {
		return fmt.Errorf("KISS %s without a value: %w", cmd, ErrInvalidFrame)
	}

	var v = payload[0]

	switch cmd {
	case CmdTxDelay:
		p.TxDelay = v
	case CmdPersistence:
		p.Persist = v
	case CmdSlotTime:
		p.SlotTime = v
	case CmdTxTail:
		p.TxTail = v
	case CmdFullDuplex:
		p.FullDuplex = v != 0
	default:
		return fmt.Errorf("KISS %s is not a parameter: %w", cmd, ErrInvalidFrame)
	}

	return nil
}

const (
	HW_SET_FREQUENCY  byte = 0x01
	HW_SET_BANDWIDTH  byte = 0x02
	HW_SET_SPREADING  byte = 0x03
	HW_SET_CODINGRATE byte = 0x04
	HW_SET_POWER      byte = 0x05
	HW_GET_CONFIG     byte = 0x06
	HW_SAVE_CONFIG    byte = 0x07
	HW_SET_SYNCWORD   byte = 0x08
	HW_RESET_CONFIG   byte = 0xFF
)

const hardwareConfigLen = 14

type hardwareAction int

const (
	hwApply hardwareAction = iota /* New parameters to hand to the radio. */
	hwQuery                       /* Answer with the current configuration. */
	hwSave                        /* Write the configuration file. */
	hwText                        /* Text query, see hardwareText. */
)

func needBytes(sub byte, value []byte, n int) error {
	if len(value) < n {
		return fmt.Errorf("SETHARDWARE 0x%02x needs %d value bytes, got %d: %w", sub, n, len(value), ErrInvalidFrame)
	}

	return nil
}

/*-------------------------------------------------------------------
 *
 * Name:        applyHardware
 *
 * Purpose:     Work out what a SETHARDWARE payload asks for.
 *
 * Inputs:	cur	- Current radio parameters.
 *		payload	- Everything after the command byte.
 *
 * Returns:	The parameters after the change and what to do next.
 *		For hwApply they have already been validated.
 *
 * Errors:	ErrInvalidFrame for a malformed payload,
 *		ErrConfigInvalid for a value out of range.
 *
 *--------------------------------------------------------------------*/

func applyHardware(cur RadioParams, payload []byte) (RadioParams, hardwareAction, error) {
	if len(payload) == 0 {
		return cur, hwApply, fmt.Errorf("empty SETHARDWARE: %w", ErrInvalidFrame)
	}

	if bytes.IndexByte(payload, ':') > 0 && payload[0] >= 'A' && payload[0] <= 'Z' {
		return cur, hwText, nil
	}

	var sub, value = payload[0], payload[1:]
	var next = cur

	switch sub {
	case HW_SET_FREQUENCY:
		if err := needBytes(sub, value, 4); err != nil {
			return cur, hwApply, err
		}

		next.FrequencyMHz = math.Float32frombits(binary.BigEndian.Uint32(value))

	case HW_SET_BANDWIDTH:
		if err := needBytes(sub, value, 1); err != nil {
			return cur, hwApply, err
		}

		if int(value[0]) >= len(hardwareBandwidths) {
			return cur, hwApply, fmt.Errorf("bandwidth index %d, expected 0-%d: %w", value[0], len(hardwareBandwidths)-1, ErrConfigInvalid)
		}

		next.BandwidthKHz = hardwareBandwidths[value[0]]

	case HW_SET_SPREADING:
		if err := needBytes(sub, value, 1); err != nil {
			return cur, hwApply, err
		}

		next.SpreadingFactor = int(value[0])

	case HW_SET_CODINGRATE:
		if err := needBytes(sub, value, 1); err != nil {
			return cur, hwApply, err
		}

		next.CodingRate = int(value[0])

	case HW_SET_POWER:
		if err := needBytes(sub, value, 1); err != nil {
			return cur, hwApply, err
		}

		next.PowerDBm = int(int8(value[0]))

	case HW_SET_SYNCWORD:
		if err := needBytes(sub, value, 2); err != nil {
			return cur, hwApply, err
		}

		next.SyncWord = binary.BigEndian.Uint16(value)

	case HW_GET_CONFIG:
		return cur, hwQuery, nil

	case HW_SAVE_CONFIG:
		return cur, hwSave, nil

	case HW_RESET_CONFIG:
		next = DefaultRadioParams()

	default:
		return cur, hwApply, fmt.Errorf("unknown SETHARDWARE sub-command 0x%02x: %w", sub, ErrInvalidFrame)
	}

	if err := next.Validate(); err != nil {
		return cur, hwApply, err
	}

	return next, hwApply, nil
} /* end applyHardware */

// EncodeHardwareConfig builds the SETHARDWARE frame answering a get config query.
func EncodeHardwareConfig(p RadioParams) []byte {
	var buf = make([]byte, hardwareConfigLen)

	buf[0] = HW_GET_CONFIG
	binary.BigEndian.PutUint32(buf[1:5], math.Float32bits(p.FrequencyMHz))
	binary.BigEndian.PutUint32(buf[5:9], math.Float32bits(p.BandwidthKHz))
	buf[9] = byte(p.SpreadingFactor)
	buf[10] = byte(p.CodingRate)
	buf[11] = byte(int8(p.PowerDBm)) //nolint:gosec
	binary.BigEndian.PutUint16(buf[12:14], p.SyncWord)

	return Encapsulate(CmdSetHardware, buf)
}

func ParseHardwareConfig(payload []byte) (RadioParams, error) {
	if len(payload) != hardwareConfigLen || payload[0] != HW_GET_CONFIG {
		return RadioParams{}, fmt.Errorf("hardware config of %d bytes: %w", len(payload), ErrInvalidFrame)
	}

	return RadioParams{
		FrequencyMHz:    math.Float32frombits(binary.BigEndian.Uint32(payload[1:5])),
		BandwidthKHz:    math.Float32frombits(binary.BigEndian.Uint32(payload[5:9])),
		SpreadingFactor: int(payload[9]),
		CodingRate:      int(payload[10]),
		PowerDBm:        int(int8(payload[11])),
		SyncWord:        binary.BigEndian.Uint16(payload[12:14]),
	}, nil
}

// HardwareCommand builds a SETHARDWARE frame for a client to send.
func HardwareCommand(sub byte, value ...byte) []byte {
	return Encapsulate(CmdSetHardware, slices.Concat([]byte{sub}, value))
}

func FrequencyCommand(mhz float32) []byte {
	return HardwareCommand(HW_SET_FREQUENCY, binary.BigEndian.AppendUint32(nil, math.Float32bits(mhz))...)
}

/*-------------------------------------------------------------------
 *
 * Name:        hardwareText
 *
 * Purpose:     Answer a human readable SETHARDWARE query.
 *
 * Inputs:	command	- e.g. "TXBUF:"
 *		txbuf	- Bytes in the transmit queue.
 *
 * Returns:	Response text, or an error for something unrecognized.
 *
 *--------------------------------------------------------------------*/

func hardwareText(command []byte, txbuf int) (string, error) {
	var cmd, value, found = bytes.Cut(command, []byte{':'})

	if !found {
		return "", fmt.Errorf("SETHARDWARE %q expected the form COMMAND:[parameter]: %w", command, ErrInvalidFrame)
	}

	if len(value) > 0 {
		logger.Warn("KISS Set Hardware: did not expect a parameter", "command", string(cmd))
	}

	switch string(cmd) {
	case "TNC":
		return "TNC:" + firmwareID(), nil
	case "TXBUF":
		return fmt.Sprintf("TXBUF:%d", txbuf), nil
	default:
		return "", fmt.Errorf("SETHARDWARE unrecognized command %q: %w", cmd, ErrInvalidFrame)
	}
}

/* end hardware.go */
