package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/vidpipe/internal/models"
	"github.com/jmylchreest/vidpipe/internal/repository"
)

var videosCmd = &cobra.Command{
	Use:   "videos",
	Short: "Inspect videos",
}

var videosListCmd = &cobra.Command{
	Use:   "list",
	Short: "List videos, newest first",
	Args:  cobra.NoArgs,
	RunE:  runVideosList,
}

func init() {
	rootCmd.AddCommand(videosCmd)
	videosCmd.AddCommand(videosListCmd)
	videosListCmd.Flags().String("status", "", `Only videos in this status (e.g. "File Complete")`)
	videosListCmd.Flags().String("course", "", "Only videos of this course (ID or studio upload key)")
	videosListCmd.Flags().Bool("active", false, "Only active videos")
	videosListCmd.Flags().Int("limit", 50, "Maximum number of videos")
}

func runVideosList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appConfig, slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	status, _ := cmd.Flags().GetString("status")
	active, _ := cmd.Flags().GetBool("active")
	limit, _ := cmd.Flags().GetInt("limit")

	filter := repository.VideoFilter{
		Status:     models.VideoStatus(status),
		ActiveOnly: active,
		Limit:      limit,
	}
	if status != "" && !models.VideoStatus(status).IsValid() {
		return fmt.Errorf("unknown video status %q", status)
	}
	if ref, _ := cmd.Flags().GetString("course"); ref != "" {
		course, err := findCourse(cmd, a, ref)
		if err != nil {
			return err
		}
		filter.CourseID = course.ID
	}

	videos, total, err := a.videos.List(ctx, filter)
	if err != nil {
		return err
	}

	tw := newTable(cmd.OutOrStdout(), "VIDEO", "STATUS", "TRANSCRIPT", "ACTIVE", "SIZE", "DURATION", "STARTED", "TITLE")
	for _, v := range videos {
		started := ""
		if v.TransStart != nil {
			started = humanize.Time(*v.TransStart)
		}
		tw.AppendRow([]any{
			v.ExternalID,
			v.Status,
			v.TranscriptStatus,
			v.Active,
			humanize.Bytes(uint64(max(v.OrigFilesize, 0))),
			fmt.Sprintf("%.0fs", v.OrigDuration),
			started,
			v.ClientTitle,
		})
	}
	tw.AppendFooter([]any{fmt.Sprintf("%d of %d", len(videos), total)})
	tw.Render()
	return nil
}
