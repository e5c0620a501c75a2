package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mapsync/internal/audit"
	"mapsync/internal/slogutil"
)

var (
	historyFormat string
	historyPath   string
	historyUser   string
	historyKinds  []string
	historyClass  string
	historySince  time.Duration
	historyLimit  int
	historyOffset int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show journaled changes",
	Long: `Query the change journal written by 'mapsync serve --audit'.

Examples:
  mapsync history
  mapsync history --user alice --since 24h
  mapsync history --class a.b.C --kind rename --format json`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyFormat, "format", "human", "Output format (json, human)")
	historyCmd.Flags().StringVar(&historyPath, "path", "", "Journal database path (default from config)")
	historyCmd.Flags().StringVar(&historyUser, "user", "", "Only changes by this user")
	historyCmd.Flags().StringSliceVar(&historyKinds, "kind", nil, "Only these kinds (rename, change_docs, remove_mapping, mark_deobfuscated)")
	historyCmd.Flags().StringVar(&historyClass, "class", "", "Only changes inside this top-level class")
	historyCmd.Flags().DurationVar(&historySince, "since", 0, "Only changes newer than this, e.g. 24h")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum changes to return")
	historyCmd.Flags().IntVar(&historyOffset, "offset", 0, "Changes to skip")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.Audit.Path
	if historyPath != "" {
		path = historyPath
	}

	store, err := audit.Open(path, slogutil.NewDiscardLogger())
	if err != nil {
		return err
	}
	defer store.Close()

	opts := audit.ListOptions{
		User:   historyUser,
		Kinds:  historyKinds,
		Class:  historyClass,
		Limit:  historyLimit,
		Offset: historyOffset,
	}
	if historySince > 0 {
		opts.Since = time.Now().Add(-historySince)
	}

	resp, err := store.List(opts)
	if err != nil {
		return err
	}

	output, err := FormatResponse(resp, OutputFormat(historyFormat))
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), output)
	return nil
}
