package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:   	Utility for talking to a KISS TNC.
 *
 * Description:	Convert between KISS format and usual text representation.
 *		This might also serve as the starting point for an application
 *		that uses a KISS TNC.
 *		The TNC can be attached by TCP or a serial port.
 *
 * Usage:	kissutil  [ options ]
 *
 *		Default is to connect to localhost:8001.
 *		See the "usage" functions at the bottom for details.
 *
 *---------------------------------------------------------------*/

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/lestrrat-go/strftime"
	"github.com/spf13/pflag"
)

// kissUtil holds what the command line options chose.
type kissUtil struct {
	tnc           io.Writer /* Socket or serial port. */
	out           io.Writer /* Usually stdout. */
	verbose       bool
	receiveOutput string
	timestamp     *strftime.Strftime
	now           func() time.Time
}

/*------------------------------------------------------------------
 *
 * Name: 	KissUtilMain
 *
 * Purpose:   	Attach to KISS TNC and exchange information.
 *
 * Usage:	See "usage" functions at end.
 *
 *---------------------------------------------------------------*/

func KissUtilMain() {
	/*
	 * Extract command line args.
	 */
	var hostname = pflag.StringP("hostname", "h", "localhost", "Hostname of TCP KISS TNC")
	var port = pflag.StringP("port", "p", strconv.Itoa(DEFAULT_KISS_TCP_PORT), "Port. If it does not start with a digit, it is treated as a serial port, e.g. /dev/ttyAMA0")
	var serialSpeed = pflag.IntP("serial-speed", "s", 9600, "Serial port speed")
	var verbose = pflag.BoolP("verbose", "v", false, "Verbose. Show the KISS frame contents.")
	var transmitFrom = pflag.StringP("transmit-from", "f", "", "Transmit files directory.  Process and delete files here.")
	var receiveOutput = pflag.StringP("receive-output", "o", "", "Receive output queue directory.  Store received frames here.")
	var timestampFormat = pflag.StringP("timestamp-format", "T", "", "Precede received frames with 'strftime' format time stamp.")
	var help = pflag.Bool("help", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - Utility for testing a KISS TNC.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "Convert between KISS format and usual text representation.\n")
		fmt.Fprintf(os.Stderr, "The TNC can be attached by TCP or a serial port.\n")
		fmt.Fprintf(os.Stderr, "\n")
		pflag.PrintDefaults()
		usage2(os.Stderr)
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	var ku = &kissUtil{ //nolint:exhaustruct
		out:           os.Stdout,
		verbose:       *verbose,
		receiveOutput: *receiveOutput,
		now:           time.Now,
	}

	if *timestampFormat != "" {
		var f, err = strftime.New(*timestampFormat)
		if err != nil {
			fmt.Printf("Invalid timestamp format %q: %s\n", *timestampFormat, err)
			os.Exit(1)
		}

		ku.timestamp = f
	}

	/*
	 * If receive queue directory was specified, make sure that it exists.
	 */
	if len(ku.receiveOutput) > 0 {
		var s, err = os.Stat(ku.receiveOutput)
		if err != nil {
			fmt.Printf("Error with receive queue location %s: %s\n", ku.receiveOutput, err)
			os.Exit(1)
		}

		if !s.IsDir() {
			fmt.Printf("Receive queue location, %s, is not a directory.\n", ku.receiveOutput)
			os.Exit(1)
		}
	}

	/* If port begins with digit, consider it to be TCP. */
	/* Otherwise, treat as serial port name. */

	var conn io.ReadWriter

	if unicode.IsDigit(rune((*port)[0])) {
		var c, err = net.Dial("tcp", net.JoinHostPort(*hostname, *port))
		if err != nil {
			fmt.Printf("Unable to connect to %s on port %s: %s\n", *hostname, *port, err)
			os.Exit(1)
		}

		defer c.Close()

		fmt.Printf("Successfully connected to %s on port %s.\n", *hostname, *port)

		conn = c
	} else {
		var fd, err = serialPortOpen(*port, *serialSpeed)
		if err != nil {
			fmt.Printf("Unable to connect to KISS TNC serial port %s: %s\n", *port, err)
			os.Exit(1)
		}

		defer serialPortClose(fd)

		fmt.Printf("Successfully opened serial port %s.\n", *port)

		conn = fd
	}

	ku.tnc = conn

	go ku.listen(conn)

	/*
	 * Process keyboard or other input source.
	 */
	if len(*transmitFrom) > 0 {
		ku.transmitDirectory(*transmitFrom)

		return
	}

	var scanner = bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		ku.processInput(scanner.Text())
	}
} /* end KissUtilMain */

/*
 * Process and delete all files in specified directory.
 * When done, sleep for a second and try again.
 * This doesn't take them in any particular order.
 */
func (ku *kissUtil) transmitDirectory(dir string) {
	for {
		var entries, err = os.ReadDir(dir)
		if err != nil {
			fmt.Fprintf(ku.out, "Can't read transmit queue directory %s: %s\n", dir, err)

			return
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}

			var fname = filepath.Join(dir, entry.Name())
			fmt.Fprintf(ku.out, "Processing %s for transmit...\n", fname)

			var data, readErr = os.ReadFile(fname) //nolint:gosec
			if readErr != nil {
				fmt.Fprintf(ku.out, "Can't read %s: %s\n", fname, readErr)

				continue
			}

			for _, line := range strings.Split(string(data), "\n") {
				ku.processInput(line)
			}

			if err := os.Remove(fname); err != nil {
				fmt.Fprintf(ku.out, "Can't remove %s: %s\n", fname, err)
			}
		}

		time.Sleep(time.Second)
	}
}

func parseNumber(out io.Writer, str string, deFault int) int {
	str = strings.TrimSpace(str)

	if len(str) == 0 {
		fmt.Fprintf(out, "Missing number for KISS command.  Using default %d.\n", deFault)

		return deFault
	}

	var n, err = strconv.Atoi(str)
	if err != nil || n < 0 || n > 255 { // must fit in a byte.
		fmt.Fprintf(out, "Number for KISS command is out of range 0-255.  Using default %d.\n", deFault)

		return deFault
	}

	return n
}

/*-------------------------------------------------------------------
 *
 * Name:        processInput
 *
 * Purpose:     Process frames/commands from user, either interactively or from files.
 *
 * Inputs:	stuff		- A frame is in usual format like SOURCE>DEST,DIGI:whatever.
 *				  Commands begin with lower case letter.
 *
 *--------------------------------------------------------------------*/

func (ku *kissUtil) processInput(stuff string) {
	/*
	 * Remove any end of line character(s).
	 */
	stuff = strings.TrimSpace(stuff)

	if stuff == "" {
		return
	}

	var defaults = DefaultKissParams()

	/*
	 * If it starts with upper case letter or digit, it goes over the air as is.
	 * Lower case is a command (e.g.  Persistence or set Hardware).
	 * Anything else, print explanation of what is expected.
	 */
	var first = rune(stuff[0])

	switch {
	case unicode.IsUpper(first) || unicode.IsNumber(first):
		ku.send(CmdData, []byte(stuff))

	case unicode.IsLower(first):
		var rest = stuff[1:]

		switch first {
		case 'd': // txDelay, 10ms units
			ku.send(CmdTxDelay, []byte{byte(parseNumber(ku.out, rest, int(defaults.TxDelay)))})
		case 'p': // Persistence
			ku.send(CmdPersistence, []byte{byte(parseNumber(ku.out, rest, int(defaults.Persist)))})
		case 's': // Slot time, 10ms units
			ku.send(CmdSlotTime, []byte{byte(parseNumber(ku.out, rest, int(defaults.SlotTime)))})
		case 't': // txTail, 10ms units
			ku.send(CmdTxTail, []byte{byte(parseNumber(ku.out, rest, int(defaults.TxTail)))})
		case 'f': // Full duplex
			ku.send(CmdFullDuplex, []byte{byte(parseNumber(ku.out, rest, 0))})
		case 'h': // set Hardware
			ku.setHardware(strings.TrimSpace(rest))
		case 'm': // frequency, MHz
			var mhz, err = strconv.ParseFloat(strings.TrimSpace(rest), 32)
			if err != nil {
				fmt.Fprintf(ku.out, "Frequency in MHz expected, e.g. m 433.775\n")

				return
			}

			ku.write(FrequencyCommand(float32(mhz)))
		case 'g': // get radio configuration
			ku.write(HardwareCommand(HW_GET_CONFIG))
		case 'q': // statistics
			ku.send(CmdStatusRequest, nil)
		case 'b': // buffer status
			ku.send(CmdBufferStatus, nil)
		case 'v': // protocol version
			ku.send(CmdProtocolVersion, nil)
		case 'r': // receive indications on/off
			ku.send(CmdEnhancedConfig, []byte{ENH_RX_INDICATIONS, byte(parseNumber(ku.out, rest, 1))})
		case 'x': // flow control, 0 to pause, 1 to resume
			ku.send(CmdFlowControl, []byte{byte(parseNumber(ku.out, rest, 1))})
		default:
			fmt.Fprintf(ku.out, "Invalid command. Must be one of d p s t f h m g q b v r x.\n")
			usage2(ku.out)
		}

	default:
		usage2(ku.out)
	}
} /* end processInput */

/*
 * "h TNC:" is sent as text.
 * "h 05 14" is a sub-command and value in hexadecimal.
 */
func (ku *kissUtil) setHardware(p string) {
	if p == "" || unicode.IsUpper(rune(p[0])) {
		ku.send(CmdSetHardware, []byte(p))

		return
	}

	var raw, err = hex.DecodeString(strings.Join(strings.Fields(p), ""))
	if err != nil {
		fmt.Fprintf(ku.out, "Set hardware expects text like TNC: or hexadecimal bytes like 05 14.\n")

		return
	}

	ku.send(CmdSetHardware, raw)
}

/*-------------------------------------------------------------------
 *
 * Name:        send
 *
 * Purpose:     Encapsulate the data/command, into a KISS frame, and send to the TNC.
 *
 *--------------------------------------------------------------------*/

func (ku *kissUtil) send(cmd Command, data []byte) {
	if len(data) > MAX_KISS_LEN-1 {
		fmt.Fprintf(ku.out, "ERROR - Invalid data length %d - must be in range 0 to %d.\n", len(data), MAX_KISS_LEN-1)
		data = data[:MAX_KISS_LEN-1]
	}

	ku.write(Encapsulate(cmd, data))
}

func (ku *kissUtil) write(kissed []byte) {
	if ku.verbose {
		fmt.Fprintf(ku.out, "Sending to KISS TNC:\n")
		hexDump(ku.out, kissed)
	}

	if _, err := ku.tnc.Write(kissed); err != nil {
		fmt.Fprintf(ku.out, "ERROR writing KISS frame to TNC: %s\n", err)
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        listen
 *
 * Purpose:     Print everything the TNC sends to us.
 *
 *-----------------------------------------------------------------*/

func (ku *kissUtil) listen(r io.Reader) {
	var dec = NewDecoder(MAX_KISS_LEN, ku.processFrame, func(err error) {
		fmt.Fprintf(ku.out, "ERROR - %s\n", err)
	})

	dec.OnNoise = func(line []byte) {
		fmt.Fprintf(ku.out, "%s\n", strings.TrimSpace(string(line)))
	}

	var buf = make([]byte, streamReadSize)

	for {
		var n, err = r.Read(buf)
		if n > 0 {
			if ku.verbose {
				fmt.Fprintf(ku.out, "From KISS TNC:\n")
				hexDump(ku.out, buf[:n])
			}

			dec.Write(buf[:n]) //nolint:errcheck
		}

		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				fmt.Fprintf(ku.out, "\nError reading from KISS TNC: %s\n", err)
			}

			return
		}
	}
}

// prefix is like [12:34:56] or empty.
func (ku *kissUtil) prefix() string {
	if ku.timestamp == nil {
		return ""
	}

	return "[" + ku.timestamp.FormatString(ku.now()) + "] "
}

// safePrint replaces any unprintable characters with hexadecimal representation.
func safePrint(b []byte) string {
	var sb strings.Builder

	for _, ch := range b {
		if ch < 0x20 || ch >= 0x7f {
			fmt.Fprintf(&sb, "<0x%02x>", ch)
		} else {
			sb.WriteByte(ch)
		}
	}

	return sb.String()
}

/*-------------------------------------------------------------------
 *
 * Name:        processFrame
 *
 * Purpose:     Display one frame from the TNC.
 *
 *-----------------------------------------------------------------*/

func (ku *kissUtil) processFrame(f Frame) {
	var prefix = ku.prefix()

	switch f.Command {
	case CmdData:
		fmt.Fprintf(ku.out, "%s%s\n", prefix, safePrint(f.Payload))
		ku.saveReceived(prefix, f.Payload)

	case CmdRxIndication:
		var ri, err = ParseRxIndication(f.Payload)
		if err != nil {
			fmt.Fprintf(ku.out, "ERROR - %s\n", err)

			return
		}

		fmt.Fprintf(ku.out, "%s[%d dBm %.1f dB] %s\n", prefix, ri.RSSI, ri.SNR, safePrint(ri.Payload))
		ku.saveReceived(prefix, ri.Payload)

	case CmdSetHardware:
		if cfg, err := ParseHardwareConfig(f.Payload); err == nil {
			fmt.Fprintf(ku.out, "%sRadio: %s\n", prefix, cfg)

			return
		}

		// Display as "h ..." for in/out symmetry.
		fmt.Fprintf(ku.out, "%sh %s\n", prefix, safePrint(f.Payload))

	case CmdStatistics:
		var s, err = ParseStatistics(f.Payload)
		if err != nil {
			fmt.Fprintf(ku.out, "ERROR - %s\n", err)

			return
		}

		fmt.Fprintf(ku.out, "%sStatistics: rx %d, tx %d, errors %d, uptime %ds, last RSSI %d dBm, SNR %.1f dB\n",
			prefix, s.RxFrames, s.TxFrames, s.Errors, s.Uptime, s.RSSI, s.SNR)

	case CmdErrorReport:
		var e, err = ParseErrorReport(f.Payload)
		if err != nil {
			fmt.Fprintf(ku.out, "ERROR - %s\n", err)

			return
		}

		fmt.Fprintf(ku.out, "%sTNC error %d: %s\n", prefix, e.Code, e.Description)

	case CmdBufferStatus:
		var b, err = ParseBufferStatus(f.Payload)
		if err != nil {
			fmt.Fprintf(ku.out, "ERROR - %s\n", err)

			return
		}

		fmt.Fprintf(ku.out, "%sBuffer: backlog %d/%d, decoder %d/%d, paused %t\n",
			prefix, b.Backlog, b.BacklogCapacity, b.DecoderUsed, b.DecoderCapacity, b.Paused)

	case CmdProtocolVersion:
		var v, err = ParseProtocolVersion(f.Payload)
		if err != nil {
			fmt.Fprintf(ku.out, "ERROR - %s\n", err)

			return
		}

		fmt.Fprintf(ku.out, "%sProtocol %d.%d, %s\n", prefix, v.Major, v.Minor, v.Firmware)

	/*
	 * The rest should only go TO the TNC and not come FROM it.
	 */
	default:
		fmt.Fprintf(ku.out, "Unexpected KISS command %s\n", f.Command)
	}
} /* end processFrame */

/*
 * Add to receive queue directory if specified.
 * File name will be based on current local time.
 * If you want UTC, just set an environment variable like this:
 *
 *	TZ=UTC kissutil ...
 */
func (ku *kissUtil) saveReceived(prefix string, payload []byte) {
	if len(ku.receiveOutput) == 0 {
		return
	}

	var fullpath = filepath.Join(ku.receiveOutput, timestampFilename(ku.now()))

	fmt.Fprintf(ku.out, "Save received frame to %s\n", fullpath)

	var content = prefix + string(payload) + "\n"

	if err := os.WriteFile(fullpath, []byte(content), 0o644); err != nil { //nolint:gosec
		fmt.Fprintf(ku.out, "Unable to open for write: %s\n", fullpath)
	}
}

// Used as both CLI help message and in-usage error reminder
func usage2(w io.Writer) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Input, starting with upper case letter or digit, is sent\n")
	fmt.Fprintf(w, "as a data frame, e.g.  W1AW>APRS,WIDE2-2:hello\n")
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Input, starting with a lower case letter is a command.\n")
	fmt.Fprintf(w, "Whitespace, as shown in examples, is optional.\n")
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "	letter	meaning			example\n")
	fmt.Fprintf(w, "	------	-------			-------\n")
	fmt.Fprintf(w, "	d	txDelay, 10ms units	d 30\n")
	fmt.Fprintf(w, "	p	Persistence		p 63\n")
	fmt.Fprintf(w, "	s	Slot time, 10ms units	s 10\n")
	fmt.Fprintf(w, "	t	txTail, 10ms units	t 5\n")
	fmt.Fprintf(w, "	f	Full duplex		f 0\n")
	fmt.Fprintf(w, "	h	set Hardware 		h TNC:  or  h 03 0a\n")
	fmt.Fprintf(w, "	m	Frequency, MHz		m 433.775\n")
	fmt.Fprintf(w, "	g	Get radio config	g\n")
	fmt.Fprintf(w, "	q	Statistics		q\n")
	fmt.Fprintf(w, "	b	Buffer status		b\n")
	fmt.Fprintf(w, "	v	Protocol version	v\n")
	fmt.Fprintf(w, "	r	RSSI/SNR indications	r 1\n")
	fmt.Fprintf(w, "	x	Flow control		x 0\n")
	fmt.Fprintf(w, "\n")
}

/*------------------------------------------------------------------
 *
 * Name:	timestampFilename
 *
 * Purpose:   	Generate unique file name based on the time.
 *		The format will be:
 *
 *			YYYYMMDD-HHMMSS-mmm
 *
 * Description:	This is for the kissutil "-o" option which places
 *		each received frame in a new file.  It is possible to
 *		have two packets arrive in less than a second so we
 *		need more than one second resolution.
 *
 *---------------------------------------------------------------*/

func timestampFilename(t time.Time) string {
	return fmt.Sprintf("%s-%03d", t.Format("20060102-150405"), t.UnixMilli()%1000)
} /* end timestampFilename */
