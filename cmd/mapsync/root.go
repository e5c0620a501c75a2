package main

import (
	"github.com/spf13/cobra"

	"mapsync/internal/config"
	"mapsync/internal/slogutil"
	"mapsync/internal/version"
)

var (
	configDir string
	verbosity int
	quiet     bool
)

var rootCmd = &cobra.Command{
	Use:   "mapsync",
	Short: "mapsync - collaborative deobfuscation mapping server and client",
	Long: `mapsync lets several people edit one set of deobfuscation mappings at the
same time. A server holds the authoritative mapping tree and orders every
rename, documentation edit and removal; clients keep a local replica and
see each other's changes as they happen.`,
	Version:       version.Info(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("mapsync version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", config.DefaultDir(),
		"Directory containing "+config.FileName)
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Suppress all log output")
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLoggerFactory applies -v/-q on top of the configured logging level.
func newLoggerFactory(cmd *cobra.Command, cfg *config.Config) *slogutil.LoggerFactory {
	f := slogutil.NewLoggerFactory(cfg.Logging, cmd.ErrOrStderr())
	flags := cmd.Flags()
	if flags.Changed("verbose") || flags.Changed("quiet") {
		f.SetLevel(slogutil.LevelFromVerbosity(verbosity, quiet))
	}
	return f
}
