package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gala/internal/config"
	"gala/internal/retrieval"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the data directory with default config and patterns",
	Long: `Writes config.yaml and the built-in retrieval pattern files under the
data directory so they can be inspected and edited. Pattern edits are picked
up live while a plan runs when knowledge.hot_reload is on.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.ConfigPath(cfg.DataDir)
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Println(okStyle.Render("✓ ") + path)

		patterns := retrieval.NewStore(cfg.RetrievalDir())
		if err := patterns.WriteDefaults(); err != nil {
			return err
		}
		fmt.Println(okStyle.Render("✓ ") + cfg.RetrievalDir())
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config.yaml")
}
