package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gala/internal/graph"
	"gala/internal/quality"
	"gala/internal/types"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect and maintain the vendor knowledge graphs",
}

var graphStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-category graph size, price range, and quality",
	RunE: func(cmd *cobra.Command, args []string) error {
		validator := quality.New(qualityThresholds(cfg))

		rows := [][]string{{"CATEGORY", "NODES", "PRICE RANGE", "NEED ENRICHMENT"}}
		for _, cat := range types.Categories() {
			g := graph.Load(cfg.GraphDir(), cat)

			priceRange := "-"
			if min, max, ok := g.PriceBounds(); ok {
				priceRange = fmt.Sprintf("%s - %s", money(min), money(max))
			}

			needy := 0
			for _, node := range g.Query() {
				if validator.Validate(node, cat).NeedsEnrichment {
					needy++
				}
			}

			rows = append(rows, []string{
				string(cat),
				fmt.Sprintf("%d", g.Count()),
				priceRange,
				fmt.Sprintf("%d", needy),
			})
		}
		fmt.Print(renderTable(rows))
		return nil
	},
}

var graphCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove error placeholder nodes from every graph",
	Long: `Failed extractions leave placeholder nodes behind so the crawler does
not revisit a broken page within the same run. Clean drops them and persists
the compacted graphs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		total := 0
		for _, cat := range types.Categories() {
			g := graph.Load(cfg.GraphDir(), cat)
			removed := g.CleanErrors()
			if removed == 0 {
				continue
			}
			if err := g.Save(cfg.GraphDir()); err != nil {
				return fmt.Errorf("save %s graph: %w", cat, err)
			}
			fmt.Printf("%s %s: removed %d error nodes\n", okStyle.Render("✓"), cat, removed)
			total += removed
		}
		if total == 0 {
			fmt.Println(faintStyle.Render("nothing to clean"))
		}
		return nil
	},
}

func init() {
	graphCmd.AddCommand(graphStatsCmd)
	graphCmd.AddCommand(graphCleanCmd)
}
