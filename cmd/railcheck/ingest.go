package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"rail-connection-check/internal/config"
	"rail-connection-check/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run one ingestion pass and exit",
	Long:  "Fetches the feed once (or reads a saved document with --file), writes it to the database and prints the pass summary.",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

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

		runner := ingest.NewRunner(newSource(cfg, file), ingest.NewPipeline(store), 0, nil, nil)
		sum, err := runner.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("ingest pass %s: %w", sum.PassID, err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "pass %s committed in %s\n", sum.PassID, sum.Duration().Round(time.Millisecond))
		fmt.Fprintf(out, "  routes created:      %d\n", sum.RoutesCreated)
		fmt.Fprintf(out, "  stations created:    %d\n", sum.StationsCreated)
		fmt.Fprintf(out, "  route stops created: %d\n", sum.RouteStopsCreated)
		fmt.Fprintf(out, "  trains:              %d new, %d updated\n", sum.TrainsInserted, sum.TrainsUpdated)
		fmt.Fprintf(out, "  stops:               %d new, %d updated\n", sum.StopsInserted, sum.StopsUpdated)
		fmt.Fprintf(out, "  skipped:             %d runs, %d stops\n", sum.RunsSkipped, sum.StopsSkipped)
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("file", "", "read the feed from a saved JSON document instead of fetching it")
}
