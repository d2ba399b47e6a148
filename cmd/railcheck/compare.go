package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rail-connection-check/internal/compare"
	"rail-connection-check/internal/config"
	"rail-connection-check/internal/rail"
)

var compareCmd = &cobra.Command{
	Use:   "compare ROUTE_ONE ROUTE_TWO",
	Short: "Print how two routes lined up at their shared station",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		sqlDB, store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		res, err := compare.NewEngine(store).CompareRoutes(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		return printComparison(cmd.OutOrStdout(), res)
	},
}

func printComparison(w io.Writer, res *compare.Result) error {
	fmt.Fprintf(w, "Routes %s and %s at %s (%s)\n\n", res.RouteOne, res.RouteTwo, res.Station.Code, res.Station.Name)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "DATE\t%s ARR\t%s ARR\n", res.RouteOne, res.RouteTwo)
	for i, day := range res.Days {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", day.Format("Mon 2006-01-02"), arrival(res.One[i]), arrival(res.Two[i]))
	}
	return tw.Flush()
}

// arrival shows the realized arrival when known, else the scheduled one.
func arrival(s *rail.Stop) string {
	if s == nil {
		return "-"
	}
	if s.Arr != nil {
		return s.Arr.Format("15:04")
	}
	return s.SchArr.Format("15:04") + " (sch)"
}
