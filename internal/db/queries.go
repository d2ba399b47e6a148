package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rail-connection-check/internal/rail"
)

// ListRoutes returns every route, numeric route numbers in numeric order.
func (s *Store) ListRoutes(ctx context.Context) ([]rail.Route, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT num, name FROM route ORDER BY length(num), num`)
	if err != nil {
		return nil, fmt.Errorf("query routes: %w", err)
	}
	defer rows.Close()
	return scanRoutes(rows)
}

// GetRoute returns nil when the route is unknown.
func (s *Store) GetRoute(ctx context.Context, num string) (*rail.Route, error) {
	var r rail.Route
	err := s.db.QueryRowContext(ctx, `SELECT num, name FROM route WHERE num = $1`, num).Scan(&r.Num, &r.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get route %s: %w", num, err)
	}
	return &r, nil
}

// IntersectingRoutes lists the other routes that share at least one
// station with route.
func (s *Store) IntersectingRoutes(ctx context.Context, route string) ([]rail.Route, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT r.num, r.name, length(r.num)
		  FROM route_stop a
		  JOIN route_stop b ON b.station_code = a.station_code AND b.route_id <> a.route_id
		  JOIN route r ON r.num = b.route_id
		 WHERE a.route_id = $1
		 ORDER BY length(r.num), r.num`, route)
	if err != nil {
		return nil, fmt.Errorf("query routes intersecting %s: %w", route, err)
	}
	defer rows.Close()
	var out []rail.Route
	for rows.Next() {
		var (
			r rail.Route
			n int
		)
		if err := rows.Scan(&r.Num, &r.Name, &n); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SharedStations returns the stations on both routes' membership lists.
func (s *Store) SharedStations(ctx context.Context, routeA, routeB string) ([]rail.Station, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT st.stop_code, st.name, st.timezone
		  FROM route_stop a
		  JOIN route_stop b ON b.station_code = a.station_code
		  JOIN station st ON st.stop_code = a.station_code
		 WHERE a.route_id = $1 AND b.route_id = $2
		 ORDER BY st.stop_code`, routeA, routeB)
	if err != nil {
		return nil, fmt.Errorf("query shared stations %s/%s: %w", routeA, routeB, err)
	}
	defer rows.Close()
	var out []rail.Station
	for rows.Next() {
		var (
			st rail.Station
			tz sql.NullString
		)
		if err := rows.Scan(&st.Code, &st.Name, &tz); err != nil {
			return nil, err
		}
		st.Timezone = tz.String
		out = append(out, st)
	}
	return out, rows.Err()
}

// StopHistory returns the route's stops at the station scheduled to depart
// within [from, to], most recent first.
func (s *Store) StopHistory(ctx context.Context, routeID, stationCode string, from, to time.Time) ([]rail.Stop, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stopColumns+`
		   FROM stop
		  WHERE route_id = $1 AND station_id = $2 AND sch_dep BETWEEN $3 AND $4
		  ORDER BY sch_dep DESC`,
		routeID, stationCode, from, to)
	if err != nil {
		return nil, fmt.Errorf("query history %s at %s: %w", routeID, stationCode, err)
	}
	defer rows.Close()
	var out []rail.Stop
	for rows.Next() {
		st, err := scanStop(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanRoutes(rows *sql.Rows) ([]rail.Route, error) {
	var out []rail.Route
	for rows.Next() {
		var r rail.Route
		if err := rows.Scan(&r.Num, &r.Name); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
