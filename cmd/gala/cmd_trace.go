package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"gala/internal/trace"
)

var traceLimit int

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Show recent enrichment activity from the trace store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Trace.Enabled {
			return fmt.Errorf("tracing is disabled (trace.enabled: false)")
		}
		ts, err := trace.Open(cfg.TraceDBPath())
		if err != nil {
			return fmt.Errorf("open trace store: %w", err)
		}
		defer ts.Close()

		stats, err := ts.Summary()
		if err != nil {
			return err
		}
		fmt.Println(titleStyle.Render("Trace store"))
		fmt.Printf("%d enrichments, %d task events across %d sessions\n\n",
			stats.Enrichments, stats.TaskEvents, stats.Sessions)

		traces, err := ts.RecentEnrichments(traceLimit)
		if err != nil {
			return err
		}
		if len(traces) == 0 {
			fmt.Println(faintStyle.Render("no enrichments recorded"))
			return nil
		}

		fmt.Println(headerStyle.Render("RECENT ENRICHMENTS"))
		rows := [][]string{{"TIME", "CATEGORY", "NODE", "QUALITY", "FIELDS ADDED"}}
		for _, tr := range traces {
			rows = append(rows, []string{
				tr.CreatedAt.Local().Format(time.DateTime),
				string(tr.Category),
				tr.NodeID,
				fmt.Sprintf("%.2f → %.2f", tr.BeforeScore, tr.AfterScore),
				strings.Join(tr.FieldsAdded, ", "),
			})
		}
		fmt.Print(renderTable(rows))
		return nil
	},
}

func init() {
	traceCmd.Flags().IntVar(&traceLimit, "limit", 20, "maximum enrichments to show")
}
