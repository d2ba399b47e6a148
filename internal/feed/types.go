package feed

// Snapshot is one feed document: route number -> runs currently reported.
type Snapshot map[string][]Run

// Run is one operating train instance as the feed reports it.
type Run struct {
	TrainNum  string         `json:"trainNum" validate:"required"`
	RouteName string         `json:"routeName"`
	OrigCode  string         `json:"origCode"`
	TrainID   string         `json:"trainID,omitempty"`
	Stations  []StationVisit `json:"stations" validate:"min=1"`
}

// StationVisit carries schedule and realized times as ISO-8601 strings,
// optionally UTC-suffixed. Unrealized times are empty.
type StationVisit struct {
	Code     string `json:"code" validate:"required"`
	Name     string `json:"name"`
	TZ       string `json:"tz"`
	Bus      bool   `json:"bus"`
	Platform string `json:"platform"`
	SchArr   string `json:"schArr"`
	SchDep   string `json:"schDep"`
	Arr      string `json:"arr"`
	Dep      string `json:"dep"`
}

// Origin returns the run's origin station code, falling back to the
// first listed station when the feed omits it.
func (r Run) Origin() string {
	if r.OrigCode != "" {
		return r.OrigCode
	}
	if len(r.Stations) > 0 {
		return r.Stations[0].Code
	}
	return ""
}

// OriginDeparture is the scheduled departure of the first listed station.
func (r Run) OriginDeparture() string {
	if len(r.Stations) == 0 {
		return ""
	}
	return r.Stations[0].SchDep
}
