package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/vidpipe/internal/pipeline"
)

var healCmd = &cobra.Command{
	Use:   "heal",
	Short: "Run a heal cycle now",
	Long: `Run one heal cycle over the configured window, or heal a single video.

A cycle takes the same lock as the server's scheduled cycles, so running
this from cron alongside a server is safe: the second cycle is skipped.

With --video, --profile or --overencode force a re-encode of that video:
--profile limits it to the named profiles and --overencode dispatches
profiles that were already delivered. Transcription is switched off for
the video first.`,
	Args: cobra.NoArgs,
	RunE: runHeal,
}

func init() {
	rootCmd.AddCommand(healCmd)
	healCmd.Flags().String("video", "", "Heal only this video (external ID)")
	healCmd.Flags().BoolP("verbose", "v", false, "List every scanned video")
	healCmd.Flags().StringSlice("profile", nil, "Re-encode only these profiles (with --video)")
	healCmd.Flags().Bool("overencode", false, "Re-encode profiles that are already delivered (with --video)")
}

func runHeal(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appConfig, slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()

	profiles, _ := cmd.Flags().GetStringSlice("profile")
	overencode, _ := cmd.Flags().GetBool("overencode")
	videoID, _ := cmd.Flags().GetString("video")
	if videoID == "" && (len(profiles) > 0 || overencode) {
		return fmt.Errorf("--profile and --overencode require --video")
	}

	if videoID != "" && (len(profiles) > 0 || overencode) {
		res, err := a.engine.Heal.Reencode(ctx, videoID, pipeline.ReencodeOptions{
			Profiles:   profiles,
			Overencode: overencode,
		})
		if err != nil {
			return err
		}
		printHealResults(cmd, []pipeline.HealResult{res})
		return nil
	}

	if videoID != "" {
		res, err := a.engine.Heal.HealByID(ctx, videoID)
		if err != nil {
			return err
		}
		printHealResults(cmd, []pipeline.HealResult{res})
		return res.Err
	}

	var report pipeline.HealReport
	ran, err := a.lock.Run(func() error {
		from, to := a.engine.Heal.Window()
		var cerr error
		report, cerr = a.engine.Heal.Cycle(ctx, from, to)
		return cerr
	})
	if err != nil {
		return err
	}
	if !ran {
		fmt.Fprintln(out, "heal cycle already running elsewhere, skipped")
		return nil
	}

	fmt.Fprintf(out, "window %s .. %s (%s)\n",
		report.From.UTC().Format("2006-01-02 15:04"),
		report.To.UTC().Format("2006-01-02 15:04"),
		humanize.Time(report.From))
	tw := newTable(out, "SCANNED", "SKIPPED", "DUPLICATE", "COMPLETE", "CORRUPT", "REDISPATCH", "TASKS", "FAILED")
	tw.AppendRow([]any{report.Scanned, report.Skipped, report.Duplicates, report.Completed, report.Corrupted, report.Redispatch, report.Enqueued, report.Failed})
	tw.Render()

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose && len(report.Results) > 0 {
		fmt.Fprintln(out)
		printHealResults(cmd, report.Results)
	}
	return nil
}

func printHealResults(cmd *cobra.Command, results []pipeline.HealResult) {
	tw := newTable(cmd.OutOrStdout(), "VIDEO", "VERDICT", "MISSING", "EXTERNAL", "TASKS", "ERROR")
	for _, res := range results {
		errText := ""
		if res.Err != nil {
			errText = res.Err.Error()
		}
		tw.AppendRow([]any{
			res.VideoID,
			res.Fault.Verdict,
			strings.Join(res.Fault.Profiles.Sorted(), ","),
			res.Fault.ExternalStatus,
			pipeline.Enqueued(res.Outcomes),
			errText,
		})
	}
	tw.Render()
}
