package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:	Act as a digital repeater for LoRa packets.
 *
 * Description:	Decide whether a received packet should be repeated
 *		and what its path looks like when it goes out again.
 *
 *		Paths are written the usual monitor way:
 *
 *			SOURCE>DEST,VIA1*,VIA2,...
 *
 *		A trailing "*" marks a via element as used.  Only the
 *		first unused element is considered:
 *
 *		  - Our own call (with SSID):  repeat, mark it used.
 *		    Later elements are left alone.
 *
 *		  - A configured alias:  repeat once, replaced by
 *		    MYCALL*.
 *
 *		  - WIDEn-N, N > 0:  repeat and count N down.  At zero
 *		    the element is removed.  In trace mode MYCALL* is
 *		    inserted in front of it (or takes its place when
 *		    it is removed) so the route can be followed.
 *		    Requests for more than the hop limit (n) are not
 *		    repeated at all.
 *
 *		  - Anything else:  don't repeat.
 *
 *		Nothing is repeated while the digipeater is off, while
 *		no callsign is set, or when the packet is our own.
 *
 *		Duplicate suppression is not attempted.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

const DEFAULT_DIGI_HOPS = 3

type DigipeaterConfig struct {
	Enabled bool     `yaml:"enabled"`
	MaxHops int      `yaml:"hops"`
	Trace   bool     `yaml:"trace"`
	Aliases []string `yaml:"aliases"`
}

func DefaultDigipeaterConfig() DigipeaterConfig {
	return DigipeaterConfig{
		Enabled: false,
		MaxHops: DEFAULT_DIGI_HOPS,
		Trace:   false,
		Aliases: nil,
	}
}

func ValidateHops(n int) error {
	if n < 1 || n > MAX_HOPS {
		return fmt.Errorf("max hops must be 1-%d: %w", MAX_HOPS, ErrConfigInvalid)
	}

	return nil
}

func (c DigipeaterConfig) Validate() error {
	return ValidateHops(c.MaxHops)
}

type DigiDecision struct {
	Repeat bool
	Path   string // Rewritten path, when Repeat.
	Via    string // The element that caused the repeat.
	Reason string // Why not, otherwise.
}

type DigiStats struct {
	Repeated uint32
	Dropped  uint32
}

type Digipeater struct {
	cfg    DigipeaterConfig
	mycall StationID
	routes *RoutingTable
	stats  DigiStats
	logger *log.Logger
}

func NewDigipeater(cfg DigipeaterConfig, routes *RoutingTable, logger *log.Logger) (*Digipeater, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Digipeater{ //nolint:exhaustruct
		cfg:    cfg,
		routes: routes,
		logger: componentLogger(logger, "digipeater"),
	}, nil
}

func (d *Digipeater) SetMyCall(id StationID) {
	d.mycall = id
}

func (d *Digipeater) Enabled() bool {
	return d.cfg.Enabled
}

// SetEnabled refuses to turn on without a callsign.
func (d *Digipeater) SetEnabled(on bool) error {
	if on && !d.mycall.IsSet() {
		return fmt.Errorf("set station callsign first: %w", ErrNoLocalIdentity)
	}

	d.cfg.Enabled = on

	return nil
}

func (d *Digipeater) MaxHops() int {
	return d.cfg.MaxHops
}

func (d *Digipeater) SetMaxHops(n int) error {
	if err := ValidateHops(n); err != nil {
		return err
	}

	d.cfg.MaxHops = n

	return nil
}

func (d *Digipeater) Config() DigipeaterConfig {
	return d.cfg
}

func (d *Digipeater) Stats() DigiStats {
	return d.stats
}

var widePattern = regexp.MustCompile(`^WIDE([1-7])-([0-7])$`)

// splitPath separates "SRC>DST" from the via elements.  The header is optional.
func splitPath(path string) (string, []string) {
	var elems []string

	for _, e := range strings.Split(strings.TrimSpace(path), ",") {
		e = strings.ToUpper(strings.TrimSpace(e))
		if e != "" {
			elems = append(elems, e)
		}
	}

	if len(elems) > 0 && strings.Contains(elems[0], ">") {
		return elems[0], elems[1:]
	}

	return "", elems
}

func joinPath(header string, elems []string) string {
	if header == "" {
		return strings.Join(elems, ",")
	}

	return strings.Join(append([]string{header}, elems...), ",")
}

/*-------------------------------------------------------------------
 *
 * Name:	Evaluate
 *
 * Purpose:	Decide about one path without changing any state.
 *		DIGI TEST uses this directly.
 *
 *--------------------------------------------------------------------*/

func (d *Digipeater) Evaluate(path string) DigiDecision {
	if !d.cfg.Enabled {
		return DigiDecision{Reason: "digipeater is off"} //nolint:exhaustruct
	}

	if !d.mycall.IsSet() {
		return DigiDecision{Reason: "no station callsign"} //nolint:exhaustruct
	}

	var mycall = d.mycall.String()
	var header, elems = splitPath(path)

	if source, _, ok := strings.Cut(header, ">"); ok && source == mycall {
		return DigiDecision{Reason: "own packet"} //nolint:exhaustruct
	}

	/*
	 * Find the first via element which doesn't have "has been repeated" set.
	 */
	var r = -1

	for i, e := range elems {
		if !strings.HasSuffix(e, "*") {
			r = i

			break
		}
	}

	if r < 0 {
		return DigiDecision{Reason: "no unused path element"} //nolint:exhaustruct
	}

	var via = elems[r]
	var out = append([]string{}, elems...)

	/*
	 * Explicit use of my call, including SSID.
	 */
	if via == mycall {
		out[r] = mycall + "*"

		return DigiDecision{Repeat: true, Path: joinPath(header, out), Via: via} //nolint:exhaustruct
	}

	for _, alias := range d.cfg.Aliases {
		if strings.EqualFold(via, alias) {
			out[r] = mycall + "*"

			return DigiDecision{Repeat: true, Path: joinPath(header, out), Via: via} //nolint:exhaustruct
		}
	}

	var m = widePattern.FindStringSubmatch(via)
	if m == nil {
		return DigiDecision{Reason: fmt.Sprintf("%s is not for us", via)} //nolint:exhaustruct
	}

	var n, _ = strconv.Atoi(m[1])
	var remaining, _ = strconv.Atoi(m[2])

	if remaining == 0 {
		return DigiDecision{Reason: fmt.Sprintf("%s has no hops left", via)} //nolint:exhaustruct
	}

	if n > d.cfg.MaxHops {
		return DigiDecision{Reason: fmt.Sprintf("%s exceeds hop limit %d", via, d.cfg.MaxHops)} //nolint:exhaustruct
	}

	remaining--

	var rewritten []string

	switch {
	case remaining > 0 && d.cfg.Trace:
		rewritten = []string{mycall + "*", fmt.Sprintf("WIDE%d-%d", n, remaining)}
	case remaining > 0:
		rewritten = []string{fmt.Sprintf("WIDE%d-%d", n, remaining)}
	case d.cfg.Trace:
		rewritten = []string{mycall + "*"}
	}

	out = append(append(append([]string{}, elems[:r]...), rewritten...), elems[r+1:]...)

	return DigiDecision{Repeat: true, Path: joinPath(header, out), Via: via} //nolint:exhaustruct
} /* end Evaluate */

/*-------------------------------------------------------------------
 *
 * Name:	Process
 *
 * Purpose:	Evaluate a received path for real.
 *
 * Description:	Besides the decision, the path is fed to the routing
 *		table so stations heard through other digipeaters
 *		get a route, and repeat counters are kept.
 *
 * Inputs:	path	- Received path.
 *		quality	- Link quality estimate 0-1 for route learning.
 *
 *--------------------------------------------------------------------*/

func (d *Digipeater) Process(path string, quality float32) DigiDecision {
	if d.routes != nil {
		d.routes.LearnFromPath(path, quality)
	}

	var decision = d.Evaluate(path)

	if decision.Repeat {
		d.stats.Repeated++
		d.logger.Info("Digipeating", "via", decision.Via, "path", decision.Path)
	} else if d.cfg.Enabled {
		d.stats.Dropped++
		d.logger.Debug("Not digipeating", "path", path, "reason", decision.Reason)
	}

	return decision
}

/* end digipeater.go */
