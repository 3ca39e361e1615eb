package cmd

import (
	"fmt"
	"regexp"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/paragent/internal/config"
	"github.com/Iron-Ham/paragent/internal/logging"
)

// allRuns disables the default latest-run filter of the logs command.
const allRuns = "all"

func newLogsCmd() *cobra.Command {
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "View run logs",
		Long: `View and filter the JSON run log written to logging.file.

By default, shows the last 50 entries of the most recent run. Rotated and
gzipped backups are read too. Only records written with --log-format json
(or logging.format: json) can be parsed.

Examples:
  # Everything task "build" logged in the latest run
  paragent logs --task build -n 0

  # Warnings and errors across all runs in the last hour
  paragent logs --run all --level warn --since 1h

  # Export a run as CSV
  paragent logs --run 5f0c... --format csv -n 0`,
		Args: cobra.NoArgs,
		RunE: runLogs,
	}

	logsCmd.Flags().String("run", "", "run id to show, or \"all\" (default: most recent run)")
	logsCmd.Flags().String("task", "", "only entries of this task id")
	logsCmd.Flags().Int("layer", -1, "only entries of this layer")
	logsCmd.Flags().IntP("tail", "n", 50, "number of entries to show (0 for all)")
	logsCmd.Flags().String("level", "", "minimum level (debug, info, warn, error)")
	logsCmd.Flags().String("since", "", "show entries newer than this duration (e.g., 1h, 30m)")
	logsCmd.Flags().String("grep", "", "only entries whose message or task id matches this regex")
	logsCmd.Flags().String("format", "text", "output format (text, json, csv)")
	return logsCmd
}

func runLogs(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Logging.File == "" {
		return fmt.Errorf("no log file configured; set logging.file or pass --log-file")
	}

	flags := cmd.Flags()
	var filter logging.LogFilter
	filter.RunID, _ = flags.GetString("run")
	filter.TaskID, _ = flags.GetString("task")
	filter.Level, _ = flags.GetString("level")
	if layer, _ := flags.GetInt("layer"); layer >= 0 {
		filter.Layer = &layer
	}
	if since, _ := flags.GetString("since"); since != "" {
		d, err := time.ParseDuration(since)
		if err != nil {
			return fmt.Errorf("invalid --since duration: %w", err)
		}
		filter.Since = time.Now().Add(-d)
	}
	if pattern, _ := flags.GetString("grep"); pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid --grep pattern: %w", err)
		}
		filter.Pattern = re
	}

	entries, err := logging.ReadLogs(cfg.Logging.File)
	if err != nil {
		return err
	}
	switch filter.RunID {
	case allRuns:
		filter.RunID = ""
	case "":
		filter.RunID = logging.LatestRunID(entries)
	}

	entries = logging.FilterLogs(entries, filter)
	if tail, _ := flags.GetInt("tail"); tail > 0 && len(entries) > tail {
		entries = entries[len(entries)-tail:]
	}

	format, _ := flags.GetString("format")
	return logging.WriteLogEntries(cmd.OutOrStdout(), entries, format)
}
