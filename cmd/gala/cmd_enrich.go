package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gala/internal/types"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich [category]",
	Short: "Retro-enrich low-quality knowledge graph nodes",
	Long: `Sweeps the knowledge graph for vendors scoring below the quality
threshold, re-fetches their pages, and merges any recovered fields. Without
an argument every category is swept. Updates that do not clear the
min_improvement bar are discarded.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cats := types.Categories()
		if len(args) == 1 {
			c := types.Category(args[0])
			if !c.Valid() {
				return fmt.Errorf("unknown category %q", args[0])
			}
			cats = []types.Category{c}
		}

		rt, err := newRuntime(cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx := context.Background()
		for _, cat := range cats {
			g := rt.graphs[cat]
			res, err := rt.enricher.RetroBatch(ctx, g)
			if err != nil {
				return fmt.Errorf("enrich %s: %w", cat, err)
			}
			if res.Improved > 0 {
				if err := g.Save(cfg.GraphDir()); err != nil {
					return fmt.Errorf("save %s graph: %w", cat, err)
				}
			}
			logger.Info("retro batch done",
				zap.String("category", string(cat)),
				zap.Int("scanned", res.Scanned),
				zap.Int("eligible", res.Eligible),
				zap.Int("improved", res.Improved))
			fmt.Printf("%s %s: %d scanned, %d eligible, %d improved\n",
				okStyle.Render("✓"), cat, res.Scanned, res.Eligible, res.Improved)
		}
		return nil
	},
}
