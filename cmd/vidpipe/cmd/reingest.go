package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/vidpipe/internal/pipeline"
)

var reingestCmd = &cobra.Command{
	Use:   "reingest <video-id>...",
	Short: "Re-ingest videos from their hotstore copies",
	Long: `Fetch each video's archived source from the hotstore bucket, validate
and analyse it again, and dispatch every resolved profile. The video keeps
its external ID.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReingest,
}

func init() {
	rootCmd.AddCommand(reingestCmd)
}

func runReingest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appConfig, slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	tw := newTable(cmd.OutOrStdout(), "VIDEO", "TASKS", "ERROR")
	failed := 0
	for _, videoID := range args {
		outcomes, err := a.engine.Ingest.Reingest(ctx, videoID)
		errText := ""
		if err != nil {
			failed++
			errText = err.Error()
		}
		tw.AppendRow([]any{videoID, pipeline.Enqueued(outcomes), errText})
	}
	tw.Render()

	if failed > 0 {
		return fmt.Errorf("%d of %d videos failed to re-ingest", failed, len(args))
	}
	return nil
}
