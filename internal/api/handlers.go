package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/bluele/gcache"

	"rail-connection-check/internal/compare"
	"rail-connection-check/internal/rail"
)

// Repository is the read side the handlers query directly.
type Repository interface {
	Ping(ctx context.Context) error
	ListRoutes(ctx context.Context) ([]rail.Route, error)
	GetRoute(ctx context.Context, num string) (*rail.Route, error)
	IntersectingRoutes(ctx context.Context, route string) ([]rail.Route, error)
}

type Comparer interface {
	CompareRoutes(ctx context.Context, routeA, routeB string) (*compare.Result, error)
}

// Observer receives request metrics. It may be nil.
type Observer interface {
	ObserveCompare(result string)
	ObserveRequest(route string, status int, d time.Duration)
}

type Handler struct {
	repo     Repository
	comparer Comparer
	obs      Observer
	cache    gcache.Cache
	now      func() time.Time
}

// cachedCompare is a response together with the grid day it was built for.
type cachedCompare struct {
	resp *CompareResponse
	day  time.Time
}

// NewHandler builds the handlers. A cacheTTL of zero disables the
// comparison cache.
func NewHandler(repo Repository, comparer Comparer, obs Observer, cacheTTL time.Duration) *Handler {
	h := &Handler{repo: repo, comparer: comparer, obs: obs, now: time.Now}
	if cacheTTL > 0 {
		h.cache = gcache.New(512).
			LRU().
			Expiration(cacheTTL).
			Build()
	}
	return h
}

// Ping handles GET /ping.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Health handles GET /health with a database round trip.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.repo.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "error",
			"database":  "disconnected",
			"timestamp": time.Now().UTC(),
			"error":     err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"database":  "connected",
		"timestamp": time.Now().UTC(),
	})
}

// Routes handles GET /trains.
func (h *Handler) Routes(w http.ResponseWriter, r *http.Request) {
	routes, err := h.repo.ListRoutes(r.Context())
	if err != nil {
		log.Printf("api: list routes: %v", err)
		writeError(w, http.StatusInternalServerError, "Error Processing Data")
		return
	}
	writeJSON(w, http.StatusOK, routePairs(routes))
}

// IntersectingRoutes handles GET /intersecting_routes?route_one=X.
func (h *Handler) IntersectingRoutes(w http.ResponseWriter, r *http.Request) {
	route := r.URL.Query().Get("route_one")
	if route == "" {
		writeError(w, http.StatusBadRequest, "route_one is required")
		return
	}
	routes, err := h.repo.IntersectingRoutes(r.Context(), route)
	if err != nil {
		log.Printf("api: intersecting routes of %s: %v", route, err)
		writeError(w, http.StatusInternalServerError, "Error Processing Data")
		return
	}
	writeJSON(w, http.StatusOK, routePairs(routes))
}

// CompareTrains handles GET /compare_trains?route_one=A&route_two=B.
func (h *Handler) CompareTrains(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	routeA, routeB := q.Get("route_one"), q.Get("route_two")
	if routeA == "" || routeB == "" {
		h.observeCompare("bad_request")
		writeError(w, http.StatusBadRequest, "route_one and route_two are required")
		return
	}

	key := routeA + "|" + routeB
	if h.cache != nil {
		if v, err := h.cache.Get(key); err == nil {
			entry := v.(cachedCompare)
			// The day grid rolls over at the station's midnight.
			if rail.SameDay(h.now().In(entry.day.Location()), entry.day) {
				h.observeCompare("cached")
				writeJSON(w, http.StatusOK, entry.resp)
				return
			}
			h.cache.Remove(key)
		}
	}

	resp, day, err := h.compare(r.Context(), routeA, routeB)
	switch {
	case errors.Is(err, compare.ErrNoCommonStation):
		h.observeCompare("no_common_station")
		writeError(w, http.StatusBadRequest, "No Shared Stations")
		return
	case errors.Is(err, compare.ErrAmbiguousStation):
		h.observeCompare("ambiguous_station")
		writeError(w, http.StatusBadRequest, "More Than One Shared Station")
		return
	case err != nil:
		h.observeCompare("error")
		log.Printf("api: compare %s/%s: %v", routeA, routeB, err)
		writeError(w, http.StatusInternalServerError, "Error Processing Data")
		return
	}

	if h.cache != nil && !day.IsZero() {
		if err := h.cache.Set(key, cachedCompare{resp: resp, day: day}); err != nil {
			log.Printf("api: cache compare %s: %v", key, err)
		}
	}
	h.observeCompare("ok")
	writeJSON(w, http.StatusOK, resp)
}

// compare also returns the first day of the result's grid, zero when the
// result carries none.
func (h *Handler) compare(ctx context.Context, routeA, routeB string) (*CompareResponse, time.Time, error) {
	res, err := h.comparer.CompareRoutes(ctx, routeA, routeB)
	if err != nil {
		return nil, time.Time{}, err
	}
	nameOne, err := h.routeName(ctx, res.RouteOne)
	if err != nil {
		return nil, time.Time{}, err
	}
	nameTwo, err := h.routeName(ctx, res.RouteTwo)
	if err != nil {
		return nil, time.Time{}, err
	}
	var day time.Time
	if len(res.Days) > 0 {
		day = res.Days[0]
	}
	return newCompareResponse(res, nameOne, nameTwo), day, nil
}

func (h *Handler) routeName(ctx context.Context, num string) (string, error) {
	route, err := h.repo.GetRoute(ctx, num)
	if err != nil {
		return "", err
	}
	if route == nil || route.Name == "" {
		return unknownRoute, nil
	}
	return route.Name, nil
}

func (h *Handler) observeCompare(result string) {
	if h.obs != nil {
		h.obs.ObserveCompare(result)
	}
}
