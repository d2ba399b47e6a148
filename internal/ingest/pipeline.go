package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"rail-connection-check/internal/feed"
	"rail-connection-check/internal/rail"
)

// Store opens the transaction an ingestion pass writes through.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is the write surface of one ingestion pass. Get* methods return
// (nil, nil) when the row does not exist.
type Tx interface {
	RouteNums(ctx context.Context) ([]string, error)
	StationZones(ctx context.Context) (map[string]string, error)

	InsertRoute(ctx context.Context, r rail.Route) error
	InsertStation(ctx context.Context, s rail.Station) error
	SetStationTimezone(ctx context.Context, code, tz string) error
	// InsertRouteStop reports false when the membership already existed.
	InsertRouteStop(ctx context.Context, routeID, stationCode string) (bool, error)

	GetTrain(ctx context.Context, id string) (*rail.Train, error)
	InsertTrain(ctx context.Context, t rail.Train) error
	UpdateTrain(ctx context.Context, t rail.Train) error

	GetStop(ctx context.Context, trainID, stationCode string) (*rail.Stop, error)
	InsertStop(ctx context.Context, s *rail.Stop) error
	UpdateStop(ctx context.Context, s rail.Stop) error

	Commit() error
	Rollback() error
}

// Summary describes one ingestion pass.
type Summary struct {
	PassID     string
	StartedAt  time.Time
	FinishedAt time.Time

	RoutesCreated     int
	StationsCreated   int
	RouteStopsCreated int
	TrainsInserted    int
	TrainsUpdated     int
	StopsInserted     int
	StopsUpdated      int
	RunsSkipped       int
	StopsSkipped      int
}

func (s Summary) Duration() time.Duration { return s.FinishedAt.Sub(s.StartedAt) }

// Pipeline turns feed snapshots into idempotent writes. It holds no
// schedule of its own; callers decide when to run it.
type Pipeline struct {
	store Store
	now   func() time.Time
}

func NewPipeline(store Store) *Pipeline {
	return &Pipeline{store: store, now: time.Now}
}

// pass carries the discovery state of one Ingest call.
type pass struct {
	tx       Tx
	routes   map[string]bool
	stations map[string]string // code -> timezone
	sum      *Summary
}

// Ingest writes one snapshot in a single transaction. Malformed runs and
// visits are skipped; any storage error rolls back the whole pass.
func (p *Pipeline) Ingest(ctx context.Context, snap feed.Snapshot) (sum Summary, err error) {
	sum = Summary{PassID: uuid.New().String(), StartedAt: p.now()}

	tx, err := p.store.Begin(ctx)
	if err != nil {
		return sum, fmt.Errorf("begin ingest: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Printf("ingest %s: rollback: %v", sum.PassID, rbErr)
			}
		}
	}()

	ps := &pass{tx: tx, sum: &sum, routes: make(map[string]bool)}

	nums, err := tx.RouteNums(ctx)
	if err != nil {
		return sum, fmt.Errorf("load routes: %w", err)
	}
	for _, n := range nums {
		ps.routes[n] = true
	}
	ps.stations, err = tx.StationZones(ctx)
	if err != nil {
		return sum, fmt.Errorf("load stations: %w", err)
	}
	if ps.stations == nil {
		ps.stations = make(map[string]string)
	}

	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := ps.storeRoute(ctx, key, snap[key]); err != nil {
			return sum, err
		}
	}
	for _, key := range keys {
		for i, run := range snap[key] {
			if err := ps.storeRun(ctx, key, run); err != nil {
				if errors.Is(err, errSkip) {
					sum.RunsSkipped++
					log.Printf("ingest %s: skip run %d of route %s: %v", sum.PassID, i, key, err)
					continue
				}
				return sum, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return sum, fmt.Errorf("commit ingest: %w", err)
	}
	committed = true
	sum.FinishedAt = p.now()
	return sum, nil
}

// errSkip marks a malformed record; the pass continues without it.
var errSkip = errors.New("malformed record")

func skipf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errSkip, fmt.Sprintf(format, args...))
}

// storeRoute creates a first-seen route with membership taken from its
// first valid run only.
func (ps *pass) storeRoute(ctx context.Context, key string, runs []feed.Run) error {
	if ps.routes[key] {
		return nil
	}
	var first *feed.Run
	for i := range runs {
		if feed.ValidateRun(runs[i]) == nil {
			first = &runs[i]
			break
		}
	}
	if first == nil {
		return nil
	}

	if err := ps.tx.InsertRoute(ctx, rail.Route{Num: key, Name: first.RouteName}); err != nil {
		return fmt.Errorf("insert route %s: %w", key, err)
	}
	ps.routes[key] = true
	ps.sum.RoutesCreated++

	seen := make(map[string]bool, len(first.Stations))
	for _, v := range first.Stations {
		if feed.ValidateVisit(v) != nil || seen[v.Code] {
			continue
		}
		seen[v.Code] = true
		if err := ps.ensureStation(ctx, v); err != nil {
			return err
		}
		inserted, err := ps.tx.InsertRouteStop(ctx, key, v.Code)
		if err != nil {
			return fmt.Errorf("insert route stop %s/%s: %w", key, v.Code, err)
		}
		if inserted {
			ps.sum.RouteStopsCreated++
		}
	}
	return nil
}

func (ps *pass) ensureStation(ctx context.Context, v feed.StationVisit) error {
	if _, ok := ps.stations[v.Code]; ok {
		return nil
	}
	if err := ps.tx.InsertStation(ctx, rail.Station{Code: v.Code, Name: v.Name}); err != nil {
		return fmt.Errorf("insert station %s: %w", v.Code, err)
	}
	ps.stations[v.Code] = ""
	ps.sum.StationsCreated++
	return nil
}

// stationZone records a timezone carried by the visit and returns the
// zone its times should be read in.
func (ps *pass) stationZone(ctx context.Context, v feed.StationVisit) (string, error) {
	known := ps.stations[v.Code]
	if v.TZ == "" || v.TZ == known {
		return known, nil
	}
	if _, err := rail.Zone(v.TZ); err != nil {
		log.Printf("ingest %s: station %s: %v; keeping %q", ps.sum.PassID, v.Code, err, known)
		return known, nil
	}
	if err := ps.tx.SetStationTimezone(ctx, v.Code, v.TZ); err != nil {
		return "", fmt.Errorf("set timezone %s: %w", v.Code, err)
	}
	ps.stations[v.Code] = v.TZ
	return v.TZ, nil
}

func (ps *pass) storeRun(ctx context.Context, routeID string, run feed.Run) error {
	if err := feed.ValidateRun(run); err != nil {
		return skipf("%v", err)
	}
	if !ps.routes[routeID] {
		return skipf("route %s unknown", routeID)
	}
	code, err := rail.TrainCode(run.Origin(), run.OriginDeparture())
	if err != nil {
		return skipf("train code: %v", err)
	}

	existing, err := ps.tx.GetTrain(ctx, code)
	if err != nil {
		return fmt.Errorf("get train %s: %w", code, err)
	}
	train := rail.Train{ID: code, RouteID: routeID}
	if existing == nil {
		if err := ps.tx.InsertTrain(ctx, train); err != nil {
			return fmt.Errorf("insert train %s: %w", code, err)
		}
		ps.sum.TrainsInserted++
	} else {
		if err := ps.tx.UpdateTrain(ctx, train); err != nil {
			return fmt.Errorf("update train %s: %w", code, err)
		}
		ps.sum.TrainsUpdated++
	}

	for _, v := range run.Stations {
		if err := ps.storeStop(ctx, code, routeID, v); err != nil {
			if errors.Is(err, errSkip) {
				ps.sum.StopsSkipped++
				log.Printf("ingest %s: skip stop %s of train %s: %v", ps.sum.PassID, v.Code, code, err)
				continue
			}
			return err
		}
	}
	return nil
}

func (ps *pass) storeStop(ctx context.Context, trainID, routeID string, v feed.StationVisit) error {
	if err := feed.ValidateVisit(v); err != nil {
		return skipf("%v", err)
	}
	if err := ps.ensureStation(ctx, v); err != nil {
		return err
	}
	tz, err := ps.stationZone(ctx, v)
	if err != nil {
		return err
	}

	var times [4]*time.Time
	for i, s := range []string{v.SchArr, v.SchDep, v.Arr, v.Dep} {
		t, err := rail.NormalizeTime(s, tz)
		if err != nil {
			return skipf("%v", err)
		}
		times[i] = t
	}
	schArr, schDep := times[0], times[1]
	// Origins have no scheduled arrival and terminals no scheduled departure.
	if schArr == nil {
		schArr = schDep
	}
	if schDep == nil {
		schDep = schArr
	}
	if schArr == nil {
		return skipf("no scheduled time")
	}

	existing, err := ps.tx.GetStop(ctx, trainID, v.Code)
	if err != nil {
		return fmt.Errorf("get stop %s/%s: %w", trainID, v.Code, err)
	}
	stop := existing
	if stop == nil {
		stop = &rail.Stop{TrainID: trainID, StationCode: v.Code}
	}
	stop.RouteID = routeID
	stop.SchArr = *schArr
	stop.SchDep = *schDep
	stop.Arr = times[2]
	stop.Dep = times[3]
	stop.Bus = v.Bus
	stop.Platform = v.Platform

	if existing == nil {
		if err := ps.tx.InsertStop(ctx, stop); err != nil {
			return fmt.Errorf("insert stop %s/%s: %w", trainID, v.Code, err)
		}
		ps.sum.StopsInserted++
		return nil
	}
	if err := ps.tx.UpdateStop(ctx, *stop); err != nil {
		return fmt.Errorf("update stop %s/%s: %w", trainID, v.Code, err)
	}
	ps.sum.StopsUpdated++
	return nil
}
