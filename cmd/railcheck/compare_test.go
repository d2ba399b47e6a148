package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rail-connection-check/internal/compare"
	"rail-connection-check/internal/rail"
)

func TestPrintComparison(t *testing.T) {
	loc, err := rail.Zone("America/New_York")
	require.NoError(t, err)
	days := compare.Calendar(time.Date(2025, 3, 28, 18, 0, 0, 0, loc), 2)
	sch := time.Date(2025, 3, 28, 13, 0, 0, 0, loc)
	late := sch.Add(7 * time.Minute)

	res := &compare.Result{
		RouteOne: "504",
		RouteTwo: "7",
		Station:  rail.Station{Code: "ROC", Name: "Rochester"},
		Days:     days,
		One:      []*rail.Stop{{SchArr: sch, Arr: &late}, nil},
		Two:      []*rail.Stop{{SchArr: sch.Add(time.Hour)}, nil},
	}

	var buf bytes.Buffer
	require.NoError(t, printComparison(&buf, res))
	out := buf.String()
	assert.Contains(t, out, "Routes 504 and 7 at ROC (Rochester)")
	assert.Contains(t, out, "Fri 2025-03-28")
	assert.Contains(t, out, "13:07")
	assert.Contains(t, out, "14:00 (sch)")
	assert.Contains(t, out, "Thu 2025-03-27")
}

func TestRootCommandWiring(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["ingest"])
	assert.True(t, names["compare"])

	assert.Error(t, compareCmd.Args(compareCmd, []string{"7"}))
	assert.NoError(t, compareCmd.Args(compareCmd, []string{"7", "504"}))
}
