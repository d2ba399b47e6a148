package rail

import "time"

type Route struct {
	Num  string
	Name string
}

type Station struct {
	Code     string
	Name     string
	Timezone string // IANA name; empty until a stop payload carries one
}

// RouteStop is a membership fact: the route typically calls at the station.
type RouteStop struct {
	ID          int64
	RouteID     string
	StationCode string
}

// Train is one run of a route, keyed by TrainCode.
type Train struct {
	ID      string
	RouteID string
}

// Stop is one visit of a run to a station.
type Stop struct {
	ID          int64 // 0 until persisted
	TrainID     string
	StationCode string
	RouteID     string
	SchArr      time.Time
	SchDep      time.Time
	Arr         *time.Time // nil until realized
	Dep         *time.Time
	Bus         bool
	Platform    string
}
