package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ai-interviewer/internal/constants"
)

var (
	ingestSource string
	ingestPage   int
	ingestAsync  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch one page of a job feed and ingest it",
	Example: `  ai-interviewer ingest --source remoteok
  ai-interviewer ingest --source muse --page 3 --async`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logCloser, err := loadConfig()
		if err != nil {
			return err
		}
		defer closeQuietly(logCloser)

		svc, err := bootstrap(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer svc.Close()

		if ingestAsync {
			if err := svc.feeds.Dispatch(cmd.Context(), ingestSource, ingestPage); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "batch for %s page %d dispatched\n", ingestSource, ingestPage)
			return nil
		}

		report, err := svc.feeds.Run(cmd.Context(), ingestSource, ingestPage)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		if len(report.Failed) > 0 {
			fmt.Fprintf(os.Stderr, "%d job(s) failed to ingest\n", len(report.Failed))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringVarP(&ingestSource, "source", "s", constants.SourceRemoteOK, "job feed: remoteok | muse")
	ingestCmd.Flags().IntVarP(&ingestPage, "page", "p", 1, "page number (muse only)")
	ingestCmd.Flags().BoolVar(&ingestAsync, "async", false, "publish the batch to the ingest queue instead of ingesting directly")
}
