package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rail-connection-check/internal/compare"
	"rail-connection-check/internal/feed"
	"rail-connection-check/internal/ingest"
	"rail-connection-check/internal/rail"
)

// setupTestStore creates a scratch database next to the one named by
// DATABASE_URL and drops it when the test ends.
func setupTestStore(t *testing.T) *Store {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set - skipping integration test")
	}
	ctx := context.Background()
	name := "railcheck_test_" + uuid.NewString()[:8]
	require.NoError(t, EnsureDatabase(ctx, dsn, name))

	scratch, err := WithDBName(dsn, name)
	require.NoError(t, err)
	conn, err := Open(scratch)
	require.NoError(t, err)
	require.NoError(t, Ping(ctx, conn))
	require.NoError(t, EnsureSchema(ctx, conn))
	// Second run must be a no-op.
	require.NoError(t, EnsureSchema(ctx, conn))

	t.Cleanup(func() {
		conn.Close()
		meta, err := WithDBName(dsn, "postgres")
		if err != nil {
			return
		}
		if m, err := Open(meta); err == nil {
			m.ExecContext(ctx, "DROP DATABASE IF EXISTS "+name)
			m.Close()
		}
	})
	return NewStore(conn)
}

func visitAt(code, schArr, schDep string) feed.StationVisit {
	return feed.StationVisit{Code: code, Name: code, TZ: "America/New_York", SchArr: schArr, SchDep: schDep}
}

func snapshotFor(day time.Time) feed.Snapshot {
	d := day.Format("2006-01-02")
	return feed.Snapshot{
		"7": {{
			TrainNum: "7", RouteName: "Empire Builder", OrigCode: "NYP",
			Stations: []feed.StationVisit{
				visitAt("NYP", "", d+"T08:00:00"),
				visitAt("ROC", d+"T14:00:00", d+"T14:05:00"),
			},
		}},
		"504": {{
			TrainNum: "504", RouteName: "Maple Leaf", OrigCode: "TWO",
			Stations: []feed.StationVisit{
				visitAt("TWO", "", d+"T07:00:00"),
				visitAt("ROC", d+"T13:00:00", d+"T13:10:00"),
			},
		}},
	}
}

func TestStore_IngestAndCompare(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	yesterday := time.Now().In(loc).AddDate(0, 0, -1)

	p := ingest.NewPipeline(store)
	sum, err := p.Ingest(ctx, snapshotFor(yesterday))
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TrainsInserted)
	assert.Equal(t, 4, sum.StopsInserted)

	// Replaying the same snapshot updates rows in place.
	sum, err = p.Ingest(ctx, snapshotFor(yesterday))
	require.NoError(t, err)
	assert.Zero(t, sum.TrainsInserted)
	assert.Equal(t, 4, sum.StopsUpdated)

	routes, err := store.ListRoutes(ctx)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, "7", routes[0].Num)
	assert.Equal(t, "504", routes[1].Num)

	r, err := store.GetRoute(ctx, "504")
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "Maple Leaf", r.Name)
	missing, err := store.GetRoute(ctx, "999")
	require.NoError(t, err)
	assert.Nil(t, missing)

	other, err := store.IntersectingRoutes(ctx, "7")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, "504", other[0].Num)

	shared, err := store.SharedStations(ctx, "7", "504")
	require.NoError(t, err)
	require.Len(t, shared, 1)
	assert.Equal(t, "ROC", shared[0].Code)
	assert.Equal(t, "America/New_York", shared[0].Timezone)

	res, err := compare.NewEngine(store).CompareRoutes(ctx, "7", "504")
	require.NoError(t, err)
	assert.Equal(t, "504", res.RouteOne, "504 arrives earlier")
	require.NotNil(t, res.One[1])
	assert.Equal(t, "TWO_"+yesterday.Format("20060102"), res.One[1].TrainID)
	assert.Nil(t, res.One[2])
}

func TestStore_RollbackLeavesNoRows(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.InsertStation(ctx, rail.Station{Code: "ROC", Name: "Rochester"}))
	require.NoError(t, tx.Rollback())

	tx, err = store.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	zones, err := tx.StationZones(ctx)
	require.NoError(t, err)
	assert.Empty(t, zones)

	stop, err := tx.GetStop(ctx, "NYP_20250301", "ROC")
	require.NoError(t, err)
	assert.Nil(t, stop)
	train, err := tx.GetTrain(ctx, "NYP_20250301")
	require.NoError(t, err)
	assert.Nil(t, train)
}

func TestStore_InsertRouteStopReportsConflicts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	require.NoError(t, tx.InsertRoute(ctx, rail.Route{Num: "7", Name: "Empire Builder"}))
	require.NoError(t, tx.InsertStation(ctx, rail.Station{Code: "ROC", Name: "Rochester"}))

	inserted, err := tx.InsertRouteStop(ctx, "7", "ROC")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = tx.InsertRouteStop(ctx, "7", "ROC")
	require.NoError(t, err)
	assert.False(t, inserted)
}
