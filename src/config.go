package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:   	Read configuration information from a file.
 *
 * Description:	The configuration is a YAML document with one section
 *		per part of the TNC:
 *
 *			station:	mycall, ssid
 *			kiss:		host side transports
 *			radio:		which radio and its LoRa parameters
 *			digipeater:	enabled, hops, trace, aliases
 *			connections:	link layer timers
 *			routes:		routing table size and staleness
 *			heard:		heard list size and maximum age
 *			log:		log level, packet log
 *
 *		Anything left out keeps its default.  Loading goes
 *		through three steps: decode over the defaults,
 *		normalize (upper case callsigns and the like), then
 *		validate without changing anything.
 *
 *		Save writes the current values back, which is how the
 *		SETHARDWARE save command makes radio changes stick.
 *
 *---------------------------------------------------------------*/

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DEFAULT_KISS_TCP_PORT = 8001

const DEFAULT_SERIAL_SPEED = 115200

const DEFAULT_HOST_BACKLOG = 32

// The pseudo terminal name changes every time.  Applications can use this instead.
const TMP_KISSTNC_SYMLINK = "/tmp/kisstnc"

type StationConfig struct {
	MyCall string `yaml:"mycall"`
	SSID   int    `yaml:"ssid"`
}

type KissConfig struct {
	SerialPort    string `yaml:"serial-port"` // Empty disables.
	SerialSpeed   int    `yaml:"serial-speed"`
	Pty           bool   `yaml:"pty"`
	PtySymlink    string `yaml:"pty-symlink"`
	TCPPort       int    `yaml:"tcp-port"` // 0 disables.
	DNSSD         bool   `yaml:"dns-sd"`
	DNSSDName     string `yaml:"dns-sd-name"`
	BufferSize    int    `yaml:"buffer-size"`
	Backlog       int    `yaml:"backlog"`
	RxIndications bool   `yaml:"rx-indications"`
	Console       bool   `yaml:"console"`
}

type UDPRadioConfig struct {
	Listen string   `yaml:"listen"`
	Peers  []string `yaml:"peers"`
	RSSI   int16    `yaml:"rssi"`
	SNR    float32  `yaml:"snr"`
}

type RYLRRadioConfig struct {
	Device  string `yaml:"device"`
	Baud    int    `yaml:"baud"`
	Address int    `yaml:"address"`
	Network int    `yaml:"network"`
}

const (
	RadioMemory = "memory"
	RadioUDP    = "udp"
	RadioRYLR   = "rylr"
)

type RadioConfig struct {
	Type   string          `yaml:"type"`
	LoRa   RadioParams     `yaml:"lora"`
	UDP    UDPRadioConfig  `yaml:"udp"`
	RYLR   RYLRRadioConfig `yaml:"rylr"`
	Params KissParams      `yaml:"kiss-params"`
}

type RoutesConfig struct {
	Capacity   int           `yaml:"capacity"`
	StaleAfter time.Duration `yaml:"stale-after"`
}

type HeardConfig struct {
	Capacity   int           `yaml:"capacity"`
	MaxAge     time.Duration `yaml:"max-age"`
	TimeFormat string        `yaml:"time-format"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Timestamps bool   `yaml:"timestamps"`
	PacketLog  string `yaml:"packet-log"` // File, or directory when Daily.
	Daily      bool   `yaml:"daily"`
}

type Config struct {
	Station     StationConfig    `yaml:"station"`
	Kiss        KissConfig       `yaml:"kiss"`
	Radio       RadioConfig      `yaml:"radio"`
	Digipeater  DigipeaterConfig `yaml:"digipeater"`
	Connections LinkConfig       `yaml:"connections"`
	Routes      RoutesConfig     `yaml:"routes"`
	Heard       HeardConfig      `yaml:"heard"`
	Log         LogConfig        `yaml:"log"`

	// Where it came from, for Save.  Empty when built from defaults.
	path string
}

func DefaultConfig() *Config {
	return &Config{
		Station: StationConfig{MyCall: NOCALL, SSID: 0},
		Kiss: KissConfig{ //nolint:exhaustruct
			SerialSpeed: DEFAULT_SERIAL_SPEED,
			PtySymlink:  TMP_KISSTNC_SYMLINK,
			TCPPort:     DEFAULT_KISS_TCP_PORT,
			BufferSize:  MAX_KISS_LEN,
			Backlog:     DEFAULT_HOST_BACKLOG,
		},
		Radio: RadioConfig{
			Type: RadioMemory,
			LoRa: DefaultRadioParams(),
			UDP: UDPRadioConfig{ //nolint:exhaustruct
				Listen: ":8101",
				RSSI:   -80,
				SNR:    7.5,
			},
			RYLR: RYLRRadioConfig{
				Device:  "/dev/ttyUSB0",
				Baud:    115200,
				Address: 0,
				Network: 18,
			},
			Params: DefaultKissParams(),
		},
		Digipeater:  DefaultDigipeaterConfig(),
		Connections: DefaultLinkConfig(),
		Routes: RoutesConfig{
			Capacity:   DEFAULT_MAX_ROUTES,
			StaleAfter: DEFAULT_ROUTE_STALE,
		},
		Heard: HeardConfig{
			Capacity:   DEFAULT_MAX_STATIONS,
			MaxAge:     DEFAULT_HEARD_MAX_AGE,
			TimeFormat: "%Y-%m-%d %H:%M:%S",
		},
		Log: LogConfig{ //nolint:exhaustruct
			Level: "info",
		},
		path: "",
	}
}

/*
 * Where to look when no file is named.  The first one found is used.
 */

var configSearchList = []string{
	"loratnc.yaml",
	"$HOME/.config/loratnc/loratnc.yaml",
	"/etc/loratnc/loratnc.yaml",
}

// FindConfig returns the first existing file in the search list, or "".
func FindConfig() string {
	for _, p := range configSearchList {
		p = os.ExpandEnv(p)

		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}

	return ""
}

/*-------------------------------------------------------------------
 *
 * Name:        LoadConfig
 *
 * Purpose:     Read, normalize and validate a configuration file.
 *
 * Inputs:	path	- File name.  Empty means defaults only.
 *
 * Errors:	Wraps ErrConfigInvalid for unknown keys, bad values
 *		or unreadable files.
 *
 *--------------------------------------------------------------------*/

func LoadConfig(path string) (*Config, error) {
	var cfg = DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	var data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %v: %w", path, err, ErrConfigInvalid)
	}

	if err := cfg.decode(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	cfg.path = path

	return cfg, nil
}

// ParseConfig is LoadConfig for text already in memory.
func ParseConfig(r io.Reader) (*Config, error) {
	var cfg = DefaultConfig()

	if err := cfg.decode(r); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	var dec = yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%v: %w", err, ErrConfigInvalid)
	}

	c.Normalize()

	return c.Validate()
}

func (c *Config) Path() string {
	return c.path
}

// Normalize puts values in canonical form.  It is the only step allowed to change them.
func (c *Config) Normalize() {
	c.Station.MyCall = strings.ToUpper(strings.TrimSpace(c.Station.MyCall))
	if c.Station.MyCall == "" {
		c.Station.MyCall = NOCALL
	}

	c.Radio.Type = strings.ToLower(strings.TrimSpace(c.Radio.Type))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))

	for i, a := range c.Digipeater.Aliases {
		c.Digipeater.Aliases[i] = strings.ToUpper(strings.TrimSpace(a))
	}

	if c.Kiss.BufferSize <= 0 {
		c.Kiss.BufferSize = MAX_KISS_LEN
	}

	if c.Kiss.Backlog <= 0 {
		c.Kiss.Backlog = DEFAULT_HOST_BACKLOG
	}
}

// Validate reports the first problem found.  It does not change anything.
func (c *Config) Validate() error {
	if _, err := c.StationID(); err != nil {
		return err
	}

	switch c.Radio.Type {
	case RadioMemory, RadioUDP, RadioRYLR:
	default:
		return fmt.Errorf("radio type %q, expected memory, udp or rylr: %w", c.Radio.Type, ErrConfigInvalid)
	}

	if err := c.Radio.LoRa.Validate(); err != nil {
		return fmt.Errorf("radio: %w", err)
	}

	if c.Kiss.TCPPort < 0 || c.Kiss.TCPPort > 65535 {
		return fmt.Errorf("kiss tcp-port %d: %w", c.Kiss.TCPPort, ErrConfigInvalid)
	}

	if c.Kiss.BufferSize < 16 {
		return fmt.Errorf("kiss buffer-size %d is too small: %w", c.Kiss.BufferSize, ErrConfigInvalid)
	}

	if err := c.Digipeater.Validate(); err != nil {
		return fmt.Errorf("digipeater: %w", err)
	}

	if err := c.Connections.Validate(); err != nil {
		return fmt.Errorf("connections: %w", err)
	}

	if c.Routes.Capacity < 1 || c.Heard.Capacity < 1 {
		return fmt.Errorf("table capacities must be at least 1: %w", ErrConfigInvalid)
	}

	if c.Routes.StaleAfter <= 0 || c.Heard.MaxAge <= 0 {
		return fmt.Errorf("route staleness and heard age must be positive: %w", ErrConfigInvalid)
	}

	return nil
}

// StationID is the configured identity.  The zero StationID means none is set.
func (c *Config) StationID() (StationID, error) {
	if c.Station.MyCall == "" || c.Station.MyCall == NOCALL {
		return StationID{}, nil
	}

	var id, err = NewStationID(c.Station.MyCall, c.Station.SSID)
	if err != nil {
		return StationID{}, fmt.Errorf("station: %w", err)
	}

	return id, nil
}

/*-------------------------------------------------------------------
 *
 * Name:        Save
 *
 * Purpose:     Write the configuration to a file.
 *
 * Inputs:	path	- Empty means where it was loaded from.
 *
 * Description:	Written to a temporary file first and renamed, so a
 *		crash part way through leaves the old file intact.
 *
 *--------------------------------------------------------------------*/

func (c *Config) Save(path string) error {
	if path == "" {
		path = c.path
	}

	if path == "" {
		return fmt.Errorf("no configuration file to save to: %w", ErrConfigInvalid)
	}

	var data, err = yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode configuration: %v: %w", err, ErrConfigInvalid)
	}

	var tmp = filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")

	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("save configuration: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)

		return fmt.Errorf("save configuration: %w", err)
	}

	c.path = path

	return nil
}

/* end config.go */
