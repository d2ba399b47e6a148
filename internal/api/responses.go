package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"rail-connection-check/internal/compare"
	"rail-connection-check/internal/rail"
)

const unknownRoute = "Unknown Route"

// ErrorResponse is the JSON error body. The field name matches what the
// web client reads.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// StopJSON is one stop as the web client consumes it. Times are ISO-8601
// with the station's UTC offset.
type StopJSON struct {
	StationID string  `json:"station_id"`
	TrainID   string  `json:"train_id"`
	RouteID   string  `json:"route_id"`
	SchArr    string  `json:"sch_arr"`
	SchDep    string  `json:"sch_dep"`
	Arr       *string `json:"arr"`
	Dep       *string `json:"dep"`
	Bus       bool    `json:"bus"`
	Platform  *string `json:"platform"`
}

// CompareResponse is the body of GET /compare_trains. Slots hold null on
// days without service.
type CompareResponse struct {
	RouteOneNum  string      `json:"route_one_num"`
	RouteOneName string      `json:"route_one_name"`
	RouteOne     []*StopJSON `json:"route_one"`
	RouteTwoNum  string      `json:"route_two_num"`
	RouteTwoName string      `json:"route_two_name"`
	RouteTwo     []*StopJSON `json:"route_two"`
	Station      string      `json:"station"`
	StationName  string      `json:"station_name"`
}

func newStopJSON(s *rail.Stop) *StopJSON {
	if s == nil {
		return nil
	}
	out := &StopJSON{
		StationID: s.StationCode,
		TrainID:   s.TrainID,
		RouteID:   s.RouteID,
		SchArr:    s.SchArr.Format(time.RFC3339),
		SchDep:    s.SchDep.Format(time.RFC3339),
		Arr:       isoPtr(s.Arr),
		Dep:       isoPtr(s.Dep),
		Bus:       s.Bus,
	}
	if s.Platform != "" {
		p := s.Platform
		out.Platform = &p
	}
	return out
}

func isoPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func newCompareResponse(res *compare.Result, nameOne, nameTwo string) *CompareResponse {
	out := &CompareResponse{
		RouteOneNum:  res.RouteOne,
		RouteOneName: nameOne,
		RouteOne:     make([]*StopJSON, len(res.One)),
		RouteTwoNum:  res.RouteTwo,
		RouteTwoName: nameTwo,
		RouteTwo:     make([]*StopJSON, len(res.Two)),
		Station:      res.Station.Code,
		StationName:  res.Station.Name,
	}
	for i, s := range res.One {
		out.RouteOne[i] = newStopJSON(s)
	}
	for i, s := range res.Two {
		out.RouteTwo[i] = newStopJSON(s)
	}
	return out
}

// routePairs renders routes as [[num, name], ...].
func routePairs(routes []rail.Route) [][2]string {
	out := make([][2]string, 0, len(routes))
	for _, r := range routes {
		out = append(out, [2]string{r.Num, r.Name})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}
