package compare

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rail-connection-check/internal/rail"
)

// WindowDays is the lookback window for historical comparisons.
const WindowDays = 28

var (
	ErrNoCommonStation  = errors.New("no common station")
	ErrAmbiguousStation = errors.New("ambiguous common station")
	ErrStorage          = errors.New("storage failure")
)

// Store is the read side the engine needs. StopHistory returns stops
// ordered by scheduled departure, most recent first.
type Store interface {
	SharedStations(ctx context.Context, routeA, routeB string) ([]rail.Station, error)
	StopHistory(ctx context.Context, routeID, stationCode string, from, to time.Time) ([]rail.Stop, error)
}

// Result pairs two routes' stops at their shared station day by day.
// Slot i of One, Two and Days describes the same calendar day, with
// Days[0] being today. A nil stop means no service that day.
type Result struct {
	RouteOne string
	RouteTwo string
	Station  rail.Station
	One      []*rail.Stop
	Two      []*rail.Stop
	Days     []time.Time
	Swapped  bool
}

type Engine struct {
	store  Store
	window int
	now    func() time.Time
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store, window: WindowDays, now: time.Now}
}

// CompareRoutes aligns the recent history of two routes at the one station
// they share. The route whose latest run arrived earlier is reported first.
func (e *Engine) CompareRoutes(ctx context.Context, routeA, routeB string) (*Result, error) {
	shared, err := e.store.SharedStations(ctx, routeA, routeB)
	if err != nil {
		return nil, fmt.Errorf("%w: shared stations: %w", ErrStorage, err)
	}
	switch {
	case len(shared) == 0:
		return nil, fmt.Errorf("%w: routes %s and %s", ErrNoCommonStation, routeA, routeB)
	case len(shared) > 1:
		return nil, fmt.Errorf("%w: routes %s and %s share %d stations", ErrAmbiguousStation, routeA, routeB, len(shared))
	}
	station := shared[0]

	loc, err := rail.Zone(station.Timezone)
	if err != nil {
		loc, _ = rail.Zone("")
	}
	now := e.now().In(loc)
	days := Calendar(now, e.window)
	from := days[len(days)-1]

	histA, err := e.history(ctx, routeA, station.Code, from, now, loc)
	if err != nil {
		return nil, err
	}
	histB, err := e.history(ctx, routeB, station.Code, from, now, loc)
	if err != nil {
		return nil, err
	}

	res := &Result{RouteOne: routeA, RouteTwo: routeB, Station: station, Days: days}
	if len(histA) > 0 && len(histB) > 0 && histA[0].SchArr.After(histB[0].SchArr) {
		histA, histB = histB, histA
		res.RouteOne, res.RouteTwo = routeB, routeA
		res.Swapped = true
	}

	if len(histA) == e.window && len(histB) == e.window {
		res.One = pointers(histA)
		res.Two = pointers(histB)
		return res, nil
	}
	res.One, res.Two = Align(days, histA, histB)
	return res, nil
}

func (e *Engine) history(ctx context.Context, route, station string, from, to time.Time, loc *time.Location) ([]rail.Stop, error) {
	stops, err := e.store.StopHistory(ctx, route, station, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: history of route %s at %s: %w", ErrStorage, route, station, err)
	}
	for i := range stops {
		inZone(&stops[i], loc)
	}
	return stops, nil
}

func inZone(s *rail.Stop, loc *time.Location) {
	s.SchArr = s.SchArr.In(loc)
	s.SchDep = s.SchDep.In(loc)
	if s.Arr != nil {
		t := s.Arr.In(loc)
		s.Arr = &t
	}
	if s.Dep != nil {
		t := s.Dep.In(loc)
		s.Dep = &t
	}
}

func pointers(stops []rail.Stop) []*rail.Stop {
	out := make([]*rail.Stop, len(stops))
	for i := range stops {
		out[i] = &stops[i]
	}
	return out
}
