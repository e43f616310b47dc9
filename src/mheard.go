package loratnc

/*------------------------------------------------------------------
 *
 * Module:      mheard.go
 *
 * Purpose:   	Maintain a list of all stations heard.
 *
 * Description: Keep track of last time each station was heard,
 *		its signal, the LoRa parameters it used and the last
 *		thing it said.  This backs the NODES command and the
 *		"best signal" style queries.
 *
 *		Storage is a fixed number of slots.  An empty
 *		Callsign marks a free one.  When full, entries older
 *		than the maximum age are swept out first; if that
 *		doesn't free anything, the station heard longest ago
 *		is dropped.
 *
 *		Callsigns compare case-insensitively and are stored
 *		in upper case.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

const DEFAULT_MAX_STATIONS = 50

const DEFAULT_HEARD_MAX_AGE = time.Hour

const MAX_MESSAGE_SNIPPET = 50

type StationHeard struct {
	Callsign        string
	LastHeard       time.Time
	RSSI            int16
	SNR             float32
	SpreadingFactor int
	BandwidthKHz    float32
	PacketCount     uint32
	LastMessage     string
	IsDigipeater    bool
}

type HeardCache struct {
	slots  []StationHeard
	maxAge time.Duration
	clock  Clock
	logger *log.Logger
}

func NewHeardCache(capacity int, maxAge time.Duration, clock Clock, logger *log.Logger) *HeardCache {
	if capacity <= 0 {
		capacity = DEFAULT_MAX_STATIONS
	}

	if maxAge <= 0 {
		maxAge = DEFAULT_HEARD_MAX_AGE
	}

	return &HeardCache{
		slots:  make([]StationHeard, capacity),
		maxAge: maxAge,
		clock:  clock,
		logger: componentLogger(logger, "mheard"),
	}
}

func (h *HeardCache) Capacity() int {
	return len(h.slots)
}

func (h *HeardCache) MaxAge() time.Duration {
	return h.maxAge
}

func (h *HeardCache) Len() int {
	var n int

	for _, s := range h.slots {
		if s.Callsign != "" {
			n++
		}
	}

	return n
}

func (h *HeardCache) find(call string) int {
	for i := range h.slots {
		if h.slots[i].Callsign != "" && strings.EqualFold(h.slots[i].Callsign, call) {
			return i
		}
	}

	return -1
}

func (h *HeardCache) free() int {
	for i := range h.slots {
		if h.slots[i].Callsign == "" {
			return i
		}
	}

	return -1
}

// Anything without an SSID is taken to be infrastructure.
func looksLikeDigipeater(call string) bool {
	return !strings.Contains(call, "-")
}

// snippet keeps at most MAX_MESSAGE_SNIPPET bytes without splitting a character.
func snippet(msg string) string {
	if len(msg) <= MAX_MESSAGE_SNIPPET {
		return msg
	}

	var n = MAX_MESSAGE_SNIPPET
	for n > 0 && !utf8.RuneStart(msg[n]) {
		n--
	}

	return msg[:n]
}

/*------------------------------------------------------------------
 *
 * Function:	Observe
 *
 * Purpose:	Record that a station was heard.
 *
 * Inputs:	call	- Source callsign.  Empty is ignored.
 *		rssi	- dBm.
 *		snr	- dB.
 *		sf	- Spreading factor in use.
 *		bw	- Bandwidth in use, kHz.
 *		msg	- What it sent, if anything.  An empty message
 *			  keeps the previous one.
 *
 *------------------------------------------------------------------*/

func (h *HeardCache) Observe(call string, rssi int16, snr float32, sf int, bw float32, msg string) {
	call = strings.ToUpper(strings.TrimSpace(call))
	if call == "" {
		return
	}

	var now = h.clock.Now()

	if i := h.find(call); i >= 0 {
		var s = &h.slots[i]
		s.LastHeard = now
		s.RSSI = rssi
		s.SNR = snr
		s.SpreadingFactor = sf
		s.BandwidthKHz = bw
		s.PacketCount++

		if msg != "" {
			s.LastMessage = snippet(msg)
		}

		return
	}

	var i = h.free()

	if i < 0 {
		h.Purge()
		i = h.free()
	}

	if i < 0 {
		i = h.oldest()
		h.logger.Debug("Heard list full, dropping oldest", "call", h.slots[i].Callsign, "new", call)
	}

	h.slots[i] = StationHeard{
		Callsign:        call,
		LastHeard:       now,
		RSSI:            rssi,
		SNR:             snr,
		SpreadingFactor: sf,
		BandwidthKHz:    bw,
		PacketCount:     1,
		LastMessage:     snippet(msg),
		IsDigipeater:    looksLikeDigipeater(call),
	}

	h.logger.Debug("New station heard", "call", call, "rssi", rssi, "snr", snr)
} /* end Observe */

func (h *HeardCache) oldest() int {
	var oldest = -1

	for i := range h.slots {
		if h.slots[i].Callsign == "" {
			continue
		}

		if oldest < 0 || h.slots[i].LastHeard.Before(h.slots[oldest].LastHeard) {
			oldest = i
		}
	}

	return oldest
}

// Purge removes stations not heard within the maximum age.
func (h *HeardCache) Purge() int {
	return h.PurgeOlderThan(h.maxAge)
}

func (h *HeardCache) PurgeOlderThan(age time.Duration) int {
	var now = h.clock.Now()
	var n int

	for i := range h.slots {
		if h.slots[i].Callsign != "" && now.Sub(h.slots[i].LastHeard) > age {
			h.slots[i] = StationHeard{} //nolint:exhaustruct
			n++
		}
	}

	return n
}

func (h *HeardCache) Clear() int {
	var n = h.Len()

	for i := range h.slots {
		h.slots[i] = StationHeard{} //nolint:exhaustruct
	}

	return n
}

func (h *HeardCache) Find(call string) (StationHeard, bool) {
	var i = h.find(strings.TrimSpace(call))
	if i < 0 {
		return StationHeard{}, false //nolint:exhaustruct
	}

	return h.slots[i], true
}

// Stations returns every entry, most recently heard first.
func (h *HeardCache) Stations() []StationHeard {
	var out []StationHeard

	for _, s := range h.slots {
		if s.Callsign != "" {
			out = append(out, s)
		}
	}

	slices.SortStableFunc(out, func(a, b StationHeard) int {
		return b.LastHeard.Compare(a.LastHeard)
	})

	return out
}

// Best is the station with the strongest signal.
func (h *HeardCache) Best() (StationHeard, bool) {
	var best = -1

	for i := range h.slots {
		if h.slots[i].Callsign == "" {
			continue
		}

		if best < 0 || h.slots[i].RSSI > h.slots[best].RSSI {
			best = i
		}
	}

	if best < 0 {
		return StationHeard{}, false //nolint:exhaustruct
	}

	return h.slots[best], true
}

// AverageRSSI is 0 when nothing has been heard.
func (h *HeardCache) AverageRSSI() float32 {
	var sum float64
	var n int

	for _, s := range h.slots {
		if s.Callsign != "" {
			sum += float64(s.RSSI)
			n++
		}
	}

	if n == 0 {
		return 0
	}

	return float32(sum / float64(n))
}

func (h *HeardCache) AverageSNR() float32 {
	var sum float64
	var n int

	for _, s := range h.slots {
		if s.Callsign != "" {
			sum += float64(s.SNR)
			n++
		}
	}

	if n == 0 {
		return 0
	}

	return float32(sum / float64(n))
}

/*------------------------------------------------------------------
 *
 * Function:	Match
 *
 * Purpose:	Look up stations by pattern.
 *
 * Description:	"W1*" matches callsigns starting with W1.
 *		Without a trailing "*" any callsign containing the
 *		pattern matches.  Case doesn't matter.
 *
 *------------------------------------------------------------------*/

func (h *HeardCache) Match(pattern string) []StationHeard {
	pattern = strings.ToUpper(strings.TrimSpace(pattern))

	var prefix, wildcard = strings.CutSuffix(pattern, "*")

	var out []StationHeard

	for _, s := range h.Stations() {
		var call = strings.ToUpper(s.Callsign)

		if wildcard && strings.HasPrefix(call, prefix) || !wildcard && strings.Contains(call, pattern) {
			out = append(out, s)
		}
	}

	return out
}

/* convert some time in past to hours:minutes text format. */

func heardAge(now, t time.Time) string {
	if t.IsZero() {
		return "-  "
	}

	var d = now.Sub(t)

	return fmt.Sprintf("%4d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

/*------------------------------------------------------------------
 *
 * Function:	Dump
 *
 * Purpose:	Print the list, most recently heard first.
 *
 * Inputs:	w	- Where to print.
 *		timefmt	- strftime pattern for the last heard column.
 *
 *------------------------------------------------------------------*/

func (h *HeardCache) Dump(w io.Writer, timefmt string) error {
	var f, err = strftime.New(timefmt)
	if err != nil {
		return fmt.Errorf("time format %q: %w", timefmt, ErrConfigInvalid)
	}

	var now = h.clock.Now()

	if _, err := fmt.Fprintf(w, "callsign   cnt  rssi   snr  sf    bw    age  last heard  digi\n"); err != nil {
		return err
	}

	for _, s := range h.Stations() {
		var digi = ""
		if s.IsDigipeater {
			digi = "yes"
		}

		var _, err = fmt.Fprintf(w, "%-9s %4d %5d %5.1f  %2d %5g %7s  %s  %s\n",
			s.Callsign, s.PacketCount, s.RSSI, s.SNR, s.SpreadingFactor, s.BandwidthKHz,
			heardAge(now, s.LastHeard), f.FormatString(s.LastHeard), digi)
		if err != nil {
			return err
		}
	}

	return nil
}

/* end mheard.go */
