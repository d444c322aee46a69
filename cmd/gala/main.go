package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gala/internal/config"
	"gala/internal/logging"
)

var (
	// Global flags
	dataDir string
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "gala",
	Short: "gala - autonomous event planning over a vendor knowledge graph",
	Long: `gala plans events end to end: it splits a total budget across venue,
catering, and decoration with a simulated-annealing distributor, then runs
one category worker per concern against a persistent knowledge graph of
vendors, enriching low-quality entries from their own pages before ranking.

All state lives under a single data directory (default .gala, override with
--data-dir or GALA_DATA_DIR). Credentials come from the environment or a
.env file; without them every external backend runs simulated.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg = zap.NewDevelopmentConfig()
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if dataDir == "" {
			dataDir = os.Getenv("GALA_DATA_DIR")
		}
		if dataDir == "" {
			dataDir = ".gala"
		}

		cfg, err = config.Load(config.ConfigPath(dataDir))
		if err != nil {
			return err
		}
		cfg.DataDir = dataDir

		if err := logging.Initialize(cfg.DataDir); err != nil {
			logger.Warn("category logging unavailable", zap.Error(err))
		}
		if err := logging.InitAudit(); err != nil {
			logger.Warn("audit log unavailable", zap.Error(err))
		}
		return cfg.Validate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAudit()
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the gala version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("%s %s\n", cfg.Name, cfg.Version)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default .gala, or GALA_DATA_DIR)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug-level CLI logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(traceCmd)
}

func main() {
	// .env is optional; a missing file is the normal simulated-backend case.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}
