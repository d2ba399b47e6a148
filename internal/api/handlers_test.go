package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rail-connection-check/internal/compare"
	"rail-connection-check/internal/rail"
)

type fakeRepo struct {
	routes  []rail.Route
	pingErr error
	listErr error
}

func (f *fakeRepo) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeRepo) ListRoutes(ctx context.Context) ([]rail.Route, error) {
	return f.routes, f.listErr
}

func (f *fakeRepo) GetRoute(ctx context.Context, num string) (*rail.Route, error) {
	for _, r := range f.routes {
		if r.Num == num {
			r := r
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) IntersectingRoutes(ctx context.Context, route string) ([]rail.Route, error) {
	var out []rail.Route
	for _, r := range f.routes {
		if r.Num != route {
			out = append(out, r)
		}
	}
	return out, f.listErr
}

type fakeComparer struct {
	mu    sync.Mutex
	calls int
	res   *compare.Result
	err   error
}

func (f *fakeComparer) CompareRoutes(ctx context.Context, a, b string) (*compare.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.res, f.err
}

type fakeObserver struct {
	mu       sync.Mutex
	compares []string
	routes   []string
}

func (o *fakeObserver) ObserveCompare(result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.compares = append(o.compares, result)
}

func (o *fakeObserver) ObserveRequest(route string, status int, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.routes = append(o.routes, fmt.Sprintf("%s %d", route, status))
}

var testRoutes = []rail.Route{{Num: "7", Name: "Empire Builder"}, {Num: "504", Name: "Maple Leaf"}}

func sampleResult(t *testing.T) *compare.Result {
	loc, err := rail.Zone("America/New_York")
	require.NoError(t, err)
	arr := time.Date(2025, 3, 28, 13, 0, 0, 0, loc)
	realized := arr.Add(4 * time.Minute)
	stop := &rail.Stop{
		StationCode: "ROC", TrainID: "TWO_20250328", RouteID: "504",
		SchArr: arr, SchDep: arr.Add(10 * time.Minute), Arr: &realized, Platform: "2",
	}
	return &compare.Result{
		RouteOne: "504",
		RouteTwo: "9",
		Station:  rail.Station{Code: "ROC", Name: "Rochester"},
		One:      []*rail.Stop{stop, nil},
		Two:      []*rail.Stop{nil, nil},
		Days:     compare.Calendar(arr, 2),
		Swapped:  true,
	}
}

func serve(h *Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	NewRouter(h, []string{"*"}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Detail
}

func TestPing(t *testing.T) {
	rec := serve(NewHandler(&fakeRepo{}, &fakeComparer{}, nil, 0), "/ping")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success": true}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	rec := serve(NewHandler(&fakeRepo{}, &fakeComparer{}, nil, 0), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(NewHandler(&fakeRepo{pingErr: errors.New("down")}, &fakeComparer{}, nil, 0), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRoutes(t *testing.T) {
	rec := serve(NewHandler(&fakeRepo{routes: testRoutes}, &fakeComparer{}, nil, 0), "/trains")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[["7","Empire Builder"],["504","Maple Leaf"]]`, rec.Body.String())

	rec = serve(NewHandler(&fakeRepo{}, &fakeComparer{}, nil, 0), "/trains")
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = serve(NewHandler(&fakeRepo{listErr: errors.New("boom")}, &fakeComparer{}, nil, 0), "/trains")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestIntersectingRoutes(t *testing.T) {
	h := NewHandler(&fakeRepo{routes: testRoutes}, &fakeComparer{}, nil, 0)

	rec := serve(h, "/intersecting_routes?route_one=7")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[["504","Maple Leaf"]]`, rec.Body.String())

	rec = serve(h, "/intersecting_routes")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompareTrains(t *testing.T) {
	cmp := &fakeComparer{res: sampleResult(t)}
	rec := serve(NewHandler(&fakeRepo{routes: testRoutes}, cmp, nil, 0), "/compare_trains?route_one=9&route_two=504")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.JSONEq(t, `{
		"route_one_num": "504",
		"route_one_name": "Maple Leaf",
		"route_one": [{
			"station_id": "ROC",
			"train_id": "TWO_20250328",
			"route_id": "504",
			"sch_arr": "2025-03-28T13:00:00-04:00",
			"sch_dep": "2025-03-28T13:10:00-04:00",
			"arr": "2025-03-28T13:04:00-04:00",
			"dep": null,
			"bus": false,
			"platform": "2"
		}, null],
		"route_two_num": "9",
		"route_two_name": "Unknown Route",
		"route_two": [null, null],
		"station": "ROC",
		"station_name": "Rochester"
	}`, rec.Body.String())
}

func TestCompareTrains_Errors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{"no common station", fmt.Errorf("%w: routes 7 and 9", compare.ErrNoCommonStation), http.StatusBadRequest, "No Shared Stations"},
		{"ambiguous", fmt.Errorf("%w: 2 stations", compare.ErrAmbiguousStation), http.StatusBadRequest, "More Than One Shared Station"},
		{"storage", fmt.Errorf("%w: conn reset", compare.ErrStorage), http.StatusInternalServerError, "Error Processing Data"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&fakeRepo{routes: testRoutes}, &fakeComparer{err: tc.err}, nil, time.Minute)
			rec := serve(h, "/compare_trains?route_one=7&route_two=9")
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.detail, decodeDetail(t, rec))
		})
	}
}

func TestCompareTrains_MissingParams(t *testing.T) {
	h := NewHandler(&fakeRepo{}, &fakeComparer{}, nil, 0)
	for _, target := range []string{"/compare_trains", "/compare_trains?route_one=7", "/compare_trains?route_two=7"} {
		rec := serve(h, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestCompareTrains_CachesSuccessOnly(t *testing.T) {
	obs := &fakeObserver{}
	cmp := &fakeComparer{res: sampleResult(t)}
	h := NewHandler(&fakeRepo{routes: testRoutes}, cmp, obs, time.Minute)
	h.now = func() time.Time { return time.Date(2025, 3, 28, 19, 0, 0, 0, time.UTC) }

	first := serve(h, "/compare_trains?route_one=9&route_two=504")
	second := serve(h, "/compare_trains?route_one=9&route_two=504")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, cmp.calls)
	assert.Equal(t, []string{"ok", "cached"}, obs.compares)
	assert.Equal(t, []string{"/compare_trains 200", "/compare_trains 200"}, obs.routes)

	failing := &fakeComparer{err: compare.ErrStorage}
	h = NewHandler(&fakeRepo{}, failing, nil, time.Minute)
	serve(h, "/compare_trains?route_one=7&route_two=9")
	serve(h, "/compare_trains?route_one=7&route_two=9")
	assert.Equal(t, 2, failing.calls)
}

func TestCORS(t *testing.T) {
	h := NewHandler(&fakeRepo{}, &fakeComparer{}, nil, 0)
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://rail.example")
	rec := httptest.NewRecorder()
	NewRouter(h, []string{"*"}).ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCompareTrains_CacheExpiresAtStationMidnight(t *testing.T) {
	loc, err := rail.Zone("America/New_York")
	require.NoError(t, err)
	cmp := &fakeComparer{res: sampleResult(t)}
	h := NewHandler(&fakeRepo{routes: testRoutes}, cmp, nil, time.Hour)

	now := time.Date(2025, 3, 28, 23, 58, 0, 0, loc)
	h.now = func() time.Time { return now }
	serve(h, "/compare_trains?route_one=9&route_two=504")
	serve(h, "/compare_trains?route_one=9&route_two=504")
	assert.Equal(t, 1, cmp.calls)

	// 03:59 UTC on the 29th is still the 28th in the station's zone.
	now = time.Date(2025, 3, 29, 3, 59, 0, 0, time.UTC)
	serve(h, "/compare_trains?route_one=9&route_two=504")
	assert.Equal(t, 1, cmp.calls)

	now = time.Date(2025, 3, 29, 0, 2, 0, 0, loc)
	rec := serve(h, "/compare_trains?route_one=9&route_two=504")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, cmp.calls, "a grid built yesterday is not served today")
}
