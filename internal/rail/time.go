package rail

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"
)

// DefaultTimezone applies to stations whose feed payload never named a zone,
// unless SetDefaultZone picks another.
const DefaultTimezone = "America/New_York"

var (
	ErrBadTimestamp = errors.New("bad timestamp")
	ErrBadTimezone  = errors.New("unknown timezone")
)

// Layouts accepted for timestamps that carry no offset.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

var (
	zones sync.Map // name -> *time.Location

	defaultMu   sync.RWMutex
	defaultName = DefaultTimezone
)

// SetDefaultZone replaces the zone used when a station names none.
func SetDefaultZone(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty name", ErrBadTimezone)
	}
	if _, err := Zone(name); err != nil {
		return err
	}
	defaultMu.Lock()
	defaultName = strings.TrimSpace(name)
	defaultMu.Unlock()
	return nil
}

// Zone resolves an IANA zone name; empty selects the default zone.
func Zone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		defaultMu.RLock()
		name = defaultName
		defaultMu.RUnlock()
	}
	if loc, ok := zones.Load(name); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadTimezone, name)
	}
	zones.Store(name, loc)
	return loc, nil
}

// TrainCode derives the run identifier from the origin station and the
// calendar date written in the origin's scheduled departure. The date is
// read literally from the string; no zone conversion happens here.
func TrainCode(originCode, originSchDep string) (string, error) {
	originCode = strings.TrimSpace(originCode)
	if originCode == "" {
		return "", errors.New("empty origin code")
	}
	s := strings.TrimSpace(originSchDep)
	if len(s) < len("2006-01-02") {
		return "", fmt.Errorf("%w: %q", ErrBadTimestamp, originSchDep)
	}
	d, err := time.Parse("2006-01-02", s[:10])
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrBadTimestamp, originSchDep)
	}
	return originCode + "_" + d.Format("20060102"), nil
}

// NormalizeTime parses a feed timestamp for a station in zone tz.
// UTC-marked values are converted into the station zone; anything else is
// taken as already local and keeps its wall clock and offset. An empty
// input yields nil.
func NormalizeTime(iso, tz string) (*time.Time, error) {
	s := strings.TrimSpace(iso)
	if s == "" {
		return nil, nil
	}
	loc, err := Zone(tz)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(s, "Z") || strings.HasSuffix(s, "z") {
		t, err := time.Parse(time.RFC3339Nano, strings.ToUpper(s[:len(s)-1])+"Z")
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadTimestamp, iso)
		}
		t = t.In(loc)
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return &t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrBadTimestamp, iso)
}

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar date, each
// read in its own location.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
