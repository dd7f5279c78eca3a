// Package commands implements the verbatim command line.
package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/spherical/verbatim/cmd/verbatim/ui"
)

var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "verbatim",
	Short: "Resumable transcription of scanned documents and spoken media",
	Long: `verbatim turns scanned PDF documents and online audio into plain text.

Every page or track is sent to a generative model once and committed to a
durable cache, so an interrupted run resumes at the first missing unit and a
completed run can be reassembled without any model calls.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.InitUI(noColor)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command. Cancelling ctx stops the pipeline at the next
// unit boundary.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
