package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:	Save received packets to a log file.
 *
 * Description: Rather than saving the raw text, write separated
 *		properties into CSV format for easy reading and later
 *		processing.
 *
 *		There are two alternatives here.
 *
 *		log.packet-log: file	Specify full file path.
 *
 *		log.packet-log: dir
 *		log.daily: true		Daily names will be created here.
 *
 *------------------------------------------------------------------*/

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

var packetLogHeader = []string{
	"utime", "isotime", "source", "dest", "path", "rssi", "snr", "sf", "bw", "kind", "info",
}

// Daily names are generated from the UTC date.
var dailyLogName = mustStrftime("%Y-%m-%d.log")

var isoTime = mustStrftime("%Y-%m-%dT%H:%M:%SZ")

func mustStrftime(pattern string) *strftime.Strftime {
	var f, err = strftime.New(pattern)
	if err != nil {
		panic(fmt.Sprintf("strftime pattern %q: %s", pattern, err))
	}

	return f
}

// PacketRecord is one received packet as written to the log.
type PacketRecord struct {
	Source string
	Dest   string
	Path   string
	RSSI   int16
	SNR    float32
	SF     int
	BW     float32
	Kind   string // "link", "monitor" or "raw"
	Info   string
}

type PacketLog struct {
	daily    bool
	path     string
	clock    Clock
	fp       *os.File
	w        *csv.Writer
	openName string
	logger   *log.Logger
}

/*------------------------------------------------------------------
 *
 * Function:	OpenPacketLog
 *
 * Inputs:	daily	- True if daily names should be generated.
 *			  In this case path is a directory.
 *			  When false, path would be the file name.
 *
 *		path	- Log file name or just directory.
 *			  Empty string disables the feature; nil is returned.
 *
 * Description:	A missing directory is created, one level only,
 *		like mkdir without -p.
 *
 *------------------------------------------------------------------*/

func OpenPacketLog(daily bool, path string, clock Clock, logger *log.Logger) (*PacketLog, error) {
	if path == "" {
		return nil, nil //nolint:nilnil
	}

	var l = &PacketLog{ //nolint:exhaustruct
		daily:  daily,
		path:   path,
		clock:  clock,
		logger: componentLogger(logger, "packetlog"),
	}

	if daily {
		var stat, statErr = os.Stat(path)

		switch {
		case statErr == nil && !stat.IsDir():
			return nil, fmt.Errorf("log file location %q is not a directory: %w", path, ErrConfigInvalid)
		case statErr != nil:
			if err := os.Mkdir(path, 0o755); err != nil { //nolint:gosec
				return nil, fmt.Errorf("create log directory %q: %v: %w", path, err, ErrConfigInvalid)
			}

			l.logger.Info("Log file location has been created", "dir", path)
		}
	} else {
		l.logger.Info("Packet log", "file", path)
	}

	return l, nil
} /* end OpenPacketLog */

func (l *PacketLog) currentName() (string, string) {
	if !l.daily {
		return l.path, l.path
	}

	var fname = dailyLogName.FormatString(l.clock.Now().UTC())

	return fname, filepath.Join(l.path, fname)
}

// open for append if not already open, with a header only if the file is new.
func (l *PacketLog) open() error {
	var name, fullPath = l.currentName()

	if l.fp != nil && name != l.openName {
		l.Close()
	}

	if l.fp != nil {
		return nil
	}

	var st, statErr = os.Stat(fullPath)
	var alreadyThere = statErr == nil && st.Size() > 0

	var f, err = os.OpenFile(fullPath, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0o644) //nolint:gosec
	if err != nil {
		return fmt.Errorf("can't open log file %q for write: %w", fullPath, err)
	}

	l.logger.Debug("Opening log file", "file", fullPath)

	l.fp = f
	l.w = csv.NewWriter(f)
	l.openName = name

	if !alreadyThere {
		l.w.Write(packetLogHeader) //nolint:errcheck
	}

	return nil
}

/*------------------------------------------------------------------
 *
 * Function:	Write
 *
 * Purpose:	Save one received packet.  Safe on a nil log.
 *
 *------------------------------------------------------------------*/

func (l *PacketLog) Write(r PacketRecord) error {
	if l == nil {
		return nil
	}

	if err := l.open(); err != nil {
		return err
	}

	var now = l.clock.Now().UTC()

	var row = []string{
		strconv.FormatInt(now.Unix(), 10),
		isoTime.FormatString(now),
		r.Source,
		r.Dest,
		r.Path,
		strconv.Itoa(int(r.RSSI)),
		strconv.FormatFloat(float64(r.SNR), 'f', 1, 32),
		strconv.Itoa(r.SF),
		strconv.FormatFloat(float64(r.BW), 'g', -1, 32),
		r.Kind,
		printable(r.Info),
	}

	if err := l.w.Write(row); err != nil {
		return fmt.Errorf("packet log: %w", err)
	}

	l.w.Flush()

	return l.w.Error()
}

// Control characters would make a mess of the spreadsheet.
func printable(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return '.'
		}

		return r
	}, s)
}

func (l *PacketLog) Close() {
	if l == nil || l.fp == nil {
		return
	}

	l.w.Flush()
	l.fp.Close()
	l.fp = nil
	l.w = nil
	l.openName = ""
}

/* end log.go */
