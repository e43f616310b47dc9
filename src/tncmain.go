package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:   	Main program for the LoRa KISS TNC which includes:
 *
 *			KISS TNC over serial port, pseudo terminal and TCP.
 *			Enhanced KISS status, statistics and RSSI/SNR reports.
 *			Simple connected mode link layer.
 *			WIDEn-N digipeater.
 *			Routing table and heard station list.
 *			Text command console.
 *
 *---------------------------------------------------------------*/

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
)

// OpenRadio builds the radio named in the configuration.  The closer may be nil.
func OpenRadio(cfg *Config, logger *log.Logger) (Radio, io.Closer, error) {
	switch cfg.Radio.Type {
	case RadioMemory:
		return NewMemoryRadio(), nil, nil

	case RadioUDP:
		var u = cfg.Radio.UDP

		var r, err = NewUDPRadio(logger, u.Listen, u.Peers, u.RSSI, u.SNR)
		if err != nil {
			return nil, nil, err
		}

		return r, r, nil

	case RadioRYLR:
		var m = cfg.Radio.RYLR

		var r, err = OpenRYLRRadio(logger, m.Device, m.Baud, m.Address, m.Network, cfg.Radio.LoRa)
		if err != nil {
			return nil, nil, err
		}

		return r, r, nil

	default:
		return nil, nil, fmt.Errorf("unknown radio type %q: %w", cfg.Radio.Type, ErrConfigInvalid)
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        TNCMain
 *
 * Purpose:     Command line entry point for the TNC daemon.
 *
 *--------------------------------------------------------------------*/

func TNCMain() {
	var configFileName = pflag.StringP("config-file", "c", "", "Configuration file name.  Default is to search for loratnc.yaml.")
	var logLevel = pflag.StringP("log-level", "l", "", "Log level: debug, info, warn, error.")
	var mycall = pflag.StringP("mycall", "m", "", "Station callsign, e.g. W1AW-7.")
	var radioType = pflag.StringP("radio", "r", "", "Radio: memory, udp or rylr.")
	var serialPort = pflag.StringP("serial-port", "s", "", "Serial port for KISS, e.g. /dev/ttyS0.")
	var enablePty = pflag.BoolP("enable-ptty", "p", false, "Enable pseudo terminal for KISS protocol.")
	var kissPort = pflag.IntP("kiss-port", "k", DEFAULT_KISS_TCP_PORT, "TCP port for KISS.  0 to disable.")
	var dnsSD = pflag.BoolP("dns-sd", "D", false, "Announce the KISS TCP port with DNS-SD.")
	var console = pflag.BoolP("console", "x", false, "Read text commands from standard input.")
	var packetLog = pflag.StringP("packet-log", "L", "", "File name for the received packet log.")
	var version = pflag.BoolP("version", "v", false, "Print version and exit.")
	var help = pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - KISS TNC for LoRa radios.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Usage: loratnc [options]\n")
		pflag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Options override the configuration file.\n")
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(1)
	}

	if *version {
		printVersion(os.Stdout, false)
		os.Exit(0)
	}

	var path = *configFileName
	if path == "" {
		path = FindConfig()
	}

	var cfg, err = LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}

	var changed = pflag.CommandLine.Changed

	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	if *mycall != "" {
		var id, err = ParseStationID(*mycall)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid callsign %q: %s\n", *mycall, err)
			os.Exit(1)
		}

		cfg.Station = StationConfig{MyCall: id.Call, SSID: id.SSID}
	}

	if *radioType != "" {
		cfg.Radio.Type = *radioType
	}

	if *serialPort != "" {
		cfg.Kiss.SerialPort = *serialPort
	}

	if changed("enable-ptty") {
		cfg.Kiss.Pty = *enablePty
	}

	if changed("kiss-port") {
		cfg.Kiss.TCPPort = *kissPort
	}

	if changed("dns-sd") {
		cfg.Kiss.DNSSD = *dnsSD
	}

	if changed("console") {
		cfg.Kiss.Console = *console
	}

	if *packetLog != "" {
		cfg.Log.PacketLog = *packetLog
		cfg.Log.Daily = false
	}

	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}

	var ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := RunTNC(ctx, cfg, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		stop()
		os.Exit(1) //nolint:gocritic
	}
} /* end TNCMain */

/*-------------------------------------------------------------------
 *
 * Name:        RunTNC
 *
 * Purpose:     Bring up the radio, the TNC and every enabled host
 *		transport, then run until ctx is cancelled.
 *
 * Inputs:	cfg	- Validated configuration.
 *		in, out	- Console, used only when kiss.console is set.
 *
 *--------------------------------------------------------------------*/

func RunTNC(ctx context.Context, cfg *Config, in io.Reader, out io.Writer) error {
	var logger, err = SetupLogging(os.Stderr, cfg.Log.Level, cfg.Log.Timestamps)
	if err != nil {
		return err
	}

	if cfg.Path() != "" {
		logger.Info("Configuration", "file", cfg.Path())
	}

	var radio, closer, radioErr = OpenRadio(cfg, logger)
	if radioErr != nil {
		return radioErr
	}

	if closer != nil {
		defer closer.Close()
	}

	var tnc, tncErr = NewTNC(cfg, radio, SystemClock(), logger)
	if tncErr != nil {
		return tncErr
	}

	defer tnc.Close()

	if !tnc.MyCall().IsSet() {
		logger.Warn("No station callsign.  Use MYCALL before connecting or digipeating.")
	}

	if cfg.Kiss.TCPPort > 0 {
		var kn, err = ListenKissNet(ctx, tnc, ":"+strconv.Itoa(cfg.Kiss.TCPPort), logger)
		if err != nil {
			return err
		}

		defer kn.Close()

		go kn.Serve() //nolint:errcheck

		if cfg.Kiss.DNSSD {
			if err := AnnounceKissService(ctx, cfg.Kiss.DNSSDName, kn.Port(), logger); err != nil {
				logger.Error("DNS-SD", "err", err)
			}
		}
	}

	if cfg.Kiss.Pty {
		var kp, err = OpenKissPty(tnc, cfg.Kiss.PtySymlink, logger)
		if err != nil {
			return err
		}

		defer kp.Close()
	}

	if cfg.Kiss.SerialPort != "" {
		var ks, err = OpenKissSerial(tnc, cfg.Kiss.SerialPort, cfg.Kiss.SerialSpeed, logger)
		if err != nil {
			return err
		}

		defer ks.Close()
	}

	if cfg.Kiss.Console {
		go runConsole(ctx, tnc, in, out)
	}

	return tnc.Run(ctx)
}

/*
 * Text commands from the keyboard.  The reply is printed followed
 * by a prompt, much like a hardware TNC in command mode.
 */
func runConsole(ctx context.Context, tnc *TNC, in io.Reader, out io.Writer) {
	var scanner = bufio.NewScanner(in)

	fmt.Fprintf(out, "cmd: ")

	for scanner.Scan() {
		var cctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		var reply, err = tnc.Exec(cctx, scanner.Text())

		cancel()

		if errors.Is(err, errStopped) || ctx.Err() != nil {
			return
		}

		if err != nil {
			fmt.Fprintf(out, "ERROR: %s\n", err)
		} else if len(reply.Lines) > 0 {
			fmt.Fprintf(out, "%s\n", reply)
		}

		fmt.Fprintf(out, "cmd: ")
	}
}

/* end tncmain.go */
