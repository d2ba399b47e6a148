package publisher

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"rail-connection-check/internal/ingest"
)

const DefaultSubjectPrefix = "railcheck"

type NATSPublisher struct {
	nc          *nats.Conn
	prefix      string
	logSubjects bool
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

func NewNATSPublisher(url, subjectPrefix string, logSubjects bool, m PublisherMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("rail-connection-check"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &NATSPublisher{nc: nc, prefix: subjectPrefix, logSubjects: logSubjects, metrics: m}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

// PassEvent is published after every ingestion pass, committed or not.
type PassEvent struct {
	PassID     string    `json:"passId"`
	Result     string    `json:"result"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`
	DurationMs int64     `json:"durationMs"`
	Error      string    `json:"error,omitempty"`

	RoutesCreated     int `json:"routesCreated"`
	StationsCreated   int `json:"stationsCreated"`
	RouteStopsCreated int `json:"routeStopsCreated"`
	TrainsInserted    int `json:"trainsInserted"`
	TrainsUpdated     int `json:"trainsUpdated"`
	StopsInserted     int `json:"stopsInserted"`
	StopsUpdated      int `json:"stopsUpdated"`
	RunsSkipped       int `json:"runsSkipped"`
	StopsSkipped      int `json:"stopsSkipped"`
}

func NewPassEvent(sum ingest.Summary, passErr error) PassEvent {
	ev := PassEvent{
		PassID:            sum.PassID,
		Result:            "ok",
		StartedAt:         sum.StartedAt,
		FinishedAt:        sum.FinishedAt,
		RoutesCreated:     sum.RoutesCreated,
		StationsCreated:   sum.StationsCreated,
		RouteStopsCreated: sum.RouteStopsCreated,
		TrainsInserted:    sum.TrainsInserted,
		TrainsUpdated:     sum.TrainsUpdated,
		StopsInserted:     sum.StopsInserted,
		StopsUpdated:      sum.StopsUpdated,
		RunsSkipped:       sum.RunsSkipped,
		StopsSkipped:      sum.StopsSkipped,
	}
	if !sum.FinishedAt.IsZero() {
		ev.DurationMs = sum.Duration().Milliseconds()
	}
	if passErr != nil {
		ev.Result = "failed"
		ev.Error = passErr.Error()
	}
	return ev
}

// PassSubject is <prefix>.ingest.<result>.
func PassSubject(prefix, result string) string {
	var parts []string
	for _, tok := range strings.Split(prefix, ".") {
		if strings.TrimSpace(tok) != "" {
			parts = append(parts, subjectToken(tok))
		}
	}
	if len(parts) == 0 {
		parts = append(parts, DefaultSubjectPrefix)
	}
	return strings.Join(append(parts, "ingest", subjectToken(result)), ".")
}

func (p *NATSPublisher) PublishPass(sum ingest.Summary, passErr error) error {
	ev := NewPassEvent(sum, passErr)
	subject := PassSubject(p.prefix, ev.Result)
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if p.logSubjects {
		log.Printf("nats publish subject=%s", subject)
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
