package loratnc

/*------------------------------------------------------------------
 *
 * Purpose:   	Best effort table of how to reach other stations.
 *
 * Description:	Entries come from ROUTE ADD or are learned from
 *		digipeated traffic: a packet from X that arrived via
 *		used digipeaters ...,D* says X is reachable through D.
 *
 *		The table is a fixed array of slots.  An empty
 *		Destination marks a free slot.
 *
 *		Active is set whenever an entry is added or updated.
 *		Nothing clears it except MarkActive(dest, false);
 *		traffic does not.  Purge removes inactive entries and
 *		entries not updated within the staleness limit.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const DEFAULT_MAX_ROUTES = 20

const DEFAULT_ROUTE_STALE = 30 * time.Minute

const MAX_HOPS = 7

const DEFAULT_ROUTE_QUALITY = 0.8

type Route struct {
	Destination string
	NextHop     string
	Hops        int
	Quality     float32
	LastUsed    time.Time
	LastUpdated time.Time
	Active      bool
}

type RoutingTable struct {
	slots      []Route
	clock      Clock
	staleAfter time.Duration
	logger     *log.Logger
}

func NewRoutingTable(capacity int, staleAfter time.Duration, clock Clock, logger *log.Logger) *RoutingTable {
	if capacity <= 0 {
		capacity = DEFAULT_MAX_ROUTES
	}

	if staleAfter <= 0 {
		staleAfter = DEFAULT_ROUTE_STALE
	}

	return &RoutingTable{
		slots:      make([]Route, capacity),
		clock:      clock,
		staleAfter: staleAfter,
		logger:     componentLogger(logger, "routes"),
	}
}

func (t *RoutingTable) Capacity() int {
	return len(t.slots)
}

func (t *RoutingTable) find(dest string) int {
	for i := range t.slots {
		if t.slots[i].Destination != "" && strings.EqualFold(t.slots[i].Destination, dest) {
			return i
		}
	}

	return -1
}

func ValidateRoute(hops int, quality float32) error {
	if hops < 1 || hops > MAX_HOPS {
		return fmt.Errorf("hops must be 1-%d: %w", MAX_HOPS, ErrConfigInvalid)
	}

	/* NaN fails every comparison. */
	if !(quality >= 0 && quality <= 1) {
		return fmt.Errorf("quality must be 0.0-1.0: %w", ErrConfigInvalid)
	}

	return nil
}

/*-------------------------------------------------------------------
 *
 * Name:        Add
 *
 * Purpose:     Add a route, or update the one already held for
 *		this destination.
 *
 * Returns:	updated is true when an existing entry was replaced.
 *
 * Errors:	ErrConfigInvalid for hops or quality out of range,
 *		ErrTableFull when there is no entry to update and
 *		no free slot.
 *
 *--------------------------------------------------------------------*/

func (t *RoutingTable) Add(dest string, nextHop string, hops int, quality float32) (bool, error) {
	dest = strings.ToUpper(strings.TrimSpace(dest))
	nextHop = strings.ToUpper(strings.TrimSpace(nextHop))

	if dest == "" || nextHop == "" {
		return false, fmt.Errorf("destination and next hop are required: %w", ErrUsage)
	}

	if err := ValidateRoute(hops, quality); err != nil {
		return false, err
	}

	var now = t.clock.Now()

	if i := t.find(dest); i >= 0 {
		var r = &t.slots[i]
		r.NextHop = nextHop
		r.Hops = hops
		r.Quality = quality
		r.LastUpdated = now
		r.Active = true

		return true, nil
	}

	for i := range t.slots {
		if t.slots[i].Destination == "" {
			t.slots[i] = Route{
				Destination: dest,
				NextHop:     nextHop,
				Hops:        hops,
				Quality:     quality,
				LastUsed:    now,
				LastUpdated: now,
				Active:      true,
			}

			return false, nil
		}
	}

	return false, fmt.Errorf("routing table full (max %d routes): %w", len(t.slots), ErrTableFull)
}

func (t *RoutingTable) Delete(dest string) error {
	var i = t.find(strings.TrimSpace(dest))
	if i < 0 {
		return fmt.Errorf("route to %s not found: %w", strings.ToUpper(dest), ErrNotFound)
	}

	t.slots[i] = Route{} //nolint:exhaustruct

	return nil
}

// Clear empties the table and returns how many entries were dropped.
func (t *RoutingTable) Clear() int {
	var n int

	for i := range t.slots {
		if t.slots[i].Destination != "" {
			n++
		}

		t.slots[i] = Route{} //nolint:exhaustruct
	}

	return n
}

/*-------------------------------------------------------------------
 *
 * Name:        Purge
 *
 * Purpose:     Drop entries that are inactive or have not been
 *		updated within the staleness limit.
 *
 * Returns:	Number removed.
 *
 *--------------------------------------------------------------------*/

func (t *RoutingTable) Purge() int {
	var now = t.clock.Now()
	var n int

	for i := range t.slots {
		var r = &t.slots[i]
		if r.Destination == "" {
			continue
		}

		if !r.Active || now.Sub(r.LastUpdated) > t.staleAfter {
			t.logger.Debug("Purging route", "dest", r.Destination, "active", r.Active, "age", now.Sub(r.LastUpdated))
			*r = Route{} //nolint:exhaustruct
			n++
		}
	}

	return n
}

func (t *RoutingTable) MarkActive(dest string, active bool) error {
	var i = t.find(dest)
	if i < 0 {
		return fmt.Errorf("route to %s not found: %w", strings.ToUpper(dest), ErrNotFound)
	}

	t.slots[i].Active = active

	return nil
}

// MarkUsed records that traffic was just sent along the route.
func (t *RoutingTable) MarkUsed(dest string) error {
	var i = t.find(dest)
	if i < 0 {
		return fmt.Errorf("route to %s not found: %w", strings.ToUpper(dest), ErrNotFound)
	}

	t.slots[i].LastUsed = t.clock.Now()

	return nil
}

func (t *RoutingTable) Lookup(dest string) (Route, bool) {
	var i = t.find(dest)
	if i < 0 {
		return Route{}, false //nolint:exhaustruct
	}

	return t.slots[i], true
}

// Routes returns the entries in slot order.
func (t *RoutingTable) Routes() []Route {
	var out []Route

	for _, r := range t.slots {
		if r.Destination != "" {
			out = append(out, r)
		}
	}

	return out
}

var genericAliasRe = regexp.MustCompile(`^WIDE[1-7](-[0-7])?$`)

/*-------------------------------------------------------------------
 *
 * Name:        LearnFromPath
 *
 * Purpose:     Learn a route from a received path such as
 *
 *			K1ABC>APRS,N1DIG*,WIDE2-1
 *
 *		which says K1ABC is reachable via N1DIG, one hop.
 *
 * Description:	Generic aliases are not stations and are skipped
 *		when choosing the next hop, but still count as hops.
 *		An existing entry is only replaced by one with no
 *		more hops, so a direct route is not overwritten by a
 *		longer one heard later.
 *
 * Returns:	The learned route and true if the table changed.
 *
 *--------------------------------------------------------------------*/

func (t *RoutingTable) LearnFromPath(path string, quality float32) (Route, bool) {
	var header, elems = splitPath(path)

	var source, _, ok = strings.Cut(header, ">")
	if !ok || source == "" {
		return Route{}, false //nolint:exhaustruct
	}

	var hops int
	var nextHop string

	for _, e := range elems {
		var name, used = strings.CutSuffix(e, "*")
		if !used {
			break
		}

		hops++

		if !genericAliasRe.MatchString(name) {
			nextHop = name
		}
	}

	if nextHop == "" || strings.EqualFold(nextHop, source) {
		return Route{}, false //nolint:exhaustruct
	}

	hops = min(hops, MAX_HOPS)
	quality = max(0, min(1, quality))

	if existing, found := t.Lookup(source); found && existing.Hops < hops {
		return existing, false
	}

	if _, err := t.Add(source, nextHop, hops, quality); err != nil {
		t.logger.Debug("Route not learned", "dest", source, "via", nextHop, "err", err)

		return Route{}, false //nolint:exhaustruct
	}

	var r, _ = t.Lookup(source)

	t.logger.Debug("Route learned", "dest", r.Destination, "via", r.NextHop, "hops", r.Hops)

	return r, true
}

// QualityFromSNR maps LoRa SNR, roughly -20 to +10 dB, onto 0-1.
func QualityFromSNR(snr float32) float32 {
	return max(0, min(1, (snr+20)/30))
}
