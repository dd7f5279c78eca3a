package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherical/verbatim/cmd/verbatim/ui"
	"github.com/spherical/verbatim/internal/archive"
	"github.com/spherical/verbatim/internal/config"
)

var archiveCmd = &cobra.Command{
	Use:   "archive [dir]",
	Short: "Move aggregated outputs into a timestamped archive directory",
	Long: `Move every .txt file directly inside dir (default: the transcripts directory)
into <archive dir>/<YYYY-MM-DD_HH-MM-SS>/. Cached units are left untouched, so
archived outputs can be rebuilt without any model calls.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runArchive,
}

func init() {
	rootCmd.AddCommand(archiveCmd)
}

func runArchive(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dir := cfg.Output.TranscriptsDir
	if len(args) == 1 {
		dir = args[0]
	}

	res, err := archive.New(cfg.Output.ArchiveDir, newLogger(cfg, nil, "")).Archive(dir)
	if err != nil {
		return err
	}
	if res == nil {
		ui.Info("Nothing to archive in %s", dir)
		return nil
	}
	ui.Success("Archived %d file(s) to %s", len(res.Files), res.Dir)
	return nil
}
