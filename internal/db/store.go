package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rail-connection-check/internal/ingest"
	"rail-connection-check/internal/rail"
)

// Store is the Postgres-backed schedule store. It serves ingestion passes
// through Begin and the read side through its query methods.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return Ping(ctx, s.db)
}

func (s *Store) Begin(ctx context.Context) (ingest.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &writeTx{tx: tx}, nil
}

type writeTx struct {
	tx *sql.Tx
}

func (w *writeTx) Commit() error   { return w.tx.Commit() }
func (w *writeTx) Rollback() error { return w.tx.Rollback() }

func (w *writeTx) RouteNums(ctx context.Context) ([]string, error) {
	rows, err := w.tx.QueryContext(ctx, `SELECT num FROM route`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var num string
		if err := rows.Scan(&num); err != nil {
			return nil, err
		}
		out = append(out, num)
	}
	return out, rows.Err()
}

func (w *writeTx) StationZones(ctx context.Context) (map[string]string, error) {
	rows, err := w.tx.QueryContext(ctx, `SELECT stop_code, timezone FROM station`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var code string
		var tz sql.NullString
		if err := rows.Scan(&code, &tz); err != nil {
			return nil, err
		}
		out[code] = tz.String
	}
	return out, rows.Err()
}

func (w *writeTx) InsertRoute(ctx context.Context, r rail.Route) error {
	_, err := w.tx.ExecContext(ctx, `INSERT INTO route (num, name) VALUES ($1, $2)`, r.Num, r.Name)
	return err
}

func (w *writeTx) InsertStation(ctx context.Context, st rail.Station) error {
	_, err := w.tx.ExecContext(ctx,
		`INSERT INTO station (stop_code, name, timezone) VALUES ($1, $2, $3)`,
		st.Code, st.Name, nullString(st.Timezone))
	return err
}

func (w *writeTx) SetStationTimezone(ctx context.Context, code, tz string) error {
	_, err := w.tx.ExecContext(ctx, `UPDATE station SET timezone = $2 WHERE stop_code = $1`, code, nullString(tz))
	return err
}

func (w *writeTx) InsertRouteStop(ctx context.Context, routeID, stationCode string) (bool, error) {
	res, err := w.tx.ExecContext(ctx,
		`INSERT INTO route_stop (route_id, station_code) VALUES ($1, $2)
		 ON CONFLICT (route_id, station_code) DO NOTHING`,
		routeID, stationCode)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (w *writeTx) GetTrain(ctx context.Context, id string) (*rail.Train, error) {
	var t rail.Train
	err := w.tx.QueryRowContext(ctx, `SELECT train_id, route_id FROM train WHERE train_id = $1`, id).
		Scan(&t.ID, &t.RouteID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (w *writeTx) InsertTrain(ctx context.Context, t rail.Train) error {
	_, err := w.tx.ExecContext(ctx, `INSERT INTO train (train_id, route_id) VALUES ($1, $2)`, t.ID, t.RouteID)
	return err
}

func (w *writeTx) UpdateTrain(ctx context.Context, t rail.Train) error {
	_, err := w.tx.ExecContext(ctx, `UPDATE train SET route_id = $2 WHERE train_id = $1`, t.ID, t.RouteID)
	return err
}

const stopColumns = `id, train_id, station_id, route_id, sch_arr, sch_dep, arr, dep, bus, platform`

func (w *writeTx) GetStop(ctx context.Context, trainID, stationCode string) (*rail.Stop, error) {
	row := w.tx.QueryRowContext(ctx,
		`SELECT `+stopColumns+` FROM stop WHERE train_id = $1 AND station_id = $2`,
		trainID, stationCode)
	s, err := scanStop(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (w *writeTx) InsertStop(ctx context.Context, s *rail.Stop) error {
	return w.tx.QueryRowContext(ctx,
		`INSERT INTO stop (train_id, station_id, route_id, sch_arr, sch_dep, arr, dep, bus, platform)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		s.TrainID, s.StationCode, s.RouteID, s.SchArr, s.SchDep, s.Arr, s.Dep, s.Bus, nullString(s.Platform),
	).Scan(&s.ID)
}

func (w *writeTx) UpdateStop(ctx context.Context, s rail.Stop) error {
	_, err := w.tx.ExecContext(ctx,
		`UPDATE stop
		    SET route_id = $2, sch_arr = $3, sch_dep = $4, arr = $5, dep = $6, bus = $7, platform = $8
		  WHERE id = $1`,
		s.ID, s.RouteID, s.SchArr, s.SchDep, s.Arr, s.Dep, s.Bus, nullString(s.Platform))
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStop(sc scanner) (rail.Stop, error) {
	var (
		s        rail.Stop
		arr, dep sql.NullTime
		platform sql.NullString
	)
	if err := sc.Scan(&s.ID, &s.TrainID, &s.StationCode, &s.RouteID, &s.SchArr, &s.SchDep, &arr, &dep, &s.Bus, &platform); err != nil {
		return rail.Stop{}, err
	}
	s.Arr = timePtr(arr)
	s.Dep = timePtr(dep)
	s.Platform = platform.String
	return s, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
