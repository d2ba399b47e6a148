package publisher

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rail-connection-check/internal/ingest"
)

func TestSubjectToken(t *testing.T) {
	assert.Equal(t, "Empire_Builder", subjectToken(" Empire Builder "))
	assert.Equal(t, "a_b_c", subjectToken("a.b>c"))
	assert.Equal(t, "_", subjectToken("   "))
}

func TestPassSubject(t *testing.T) {
	assert.Equal(t, "railcheck.ingest.ok", PassSubject("railcheck", "ok"))
	assert.Equal(t, "amtrak.ny.ingest.failed", PassSubject("amtrak.ny", "failed"))
	assert.Equal(t, "rail_check.ingest.ok", PassSubject("rail check", "ok"))
	assert.Equal(t, DefaultSubjectPrefix+".ingest.ok", PassSubject("", "ok"))
}

func TestNewPassEvent(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sum := ingest.Summary{
		PassID:         "p1",
		StartedAt:      start,
		FinishedAt:     start.Add(1500 * time.Millisecond),
		TrainsInserted: 2,
		StopsSkipped:   1,
	}

	ev := NewPassEvent(sum, nil)
	assert.Equal(t, "ok", ev.Result)
	assert.Equal(t, int64(1500), ev.DurationMs)
	assert.Empty(t, ev.Error)

	b, err := json.Marshal(ev)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "p1", decoded["passId"])
	assert.EqualValues(t, 2, decoded["trainsInserted"])
	assert.NotContains(t, decoded, "error")

	failed := NewPassEvent(ingest.Summary{PassID: "p2", StartedAt: start}, errors.New("commit ingest: conn reset"))
	assert.Equal(t, "failed", failed.Result)
	assert.Equal(t, "commit ingest: conn reset", failed.Error)
	assert.Zero(t, failed.DurationMs)
}
