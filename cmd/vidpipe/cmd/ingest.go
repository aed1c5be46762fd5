package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/vidpipe/internal/models"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest --course <id|studio-hex> <file>",
	Short: "Ingest a local source file",
	Long: `Validate, record and dispatch a local source file for a course.

The course is named by its ID or its studio upload key. A file that fails
validation is still recorded, as Corrupt File.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().String("course", "", "Course ID or studio upload key")
	ingestCmd.Flags().String("title", "", "Client title (defaults to the file name)")
	ingestCmd.Flags().String("studio-id", "", "Identifier assigned by the authoring studio")
	ingestCmd.Flags().Bool("transcribe", false, "Request transcription once delivered")
	ingestCmd.Flags().String("provider", "", "Transcription provider (Cielo24, 3PlayMedia)")
	ingestCmd.Flags().String("language", "", "Source language of the video")
	_ = ingestCmd.MarkFlagRequired("course")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolving %s: %w", args[0], err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	a, err := newApp(ctx, appConfig, slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	ref, _ := cmd.Flags().GetString("course")
	course, err := findCourse(cmd, a, ref)
	if err != nil {
		return err
	}

	title, _ := cmd.Flags().GetString("title")
	studioID, _ := cmd.Flags().GetString("studio-id")
	transcribe, _ := cmd.Flags().GetBool("transcribe")
	provider, _ := cmd.Flags().GetString("provider")
	language, _ := cmd.Flags().GetString("language")

	sub := models.NewVideoSubmission(course.ID, path, models.SubmissionOptions{
		StudioID:             studioID,
		ClientTitle:          title,
		Filesize:             info.Size(),
		ProcessTranscription: transcribe,
		Provider:             models.TranscriptProvider(provider),
		SourceLanguage:       language,
	})

	videoID, err := a.engine.Ingest.Ingest(ctx, sub)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), videoID)
	return nil
}

// findCourse looks a course up by ID, then by studio upload key.
func findCourse(cmd *cobra.Command, a *app, ref string) (*models.Course, error) {
	ctx := cmd.Context()
	if id, err := models.ParseULID(ref); err == nil {
		course, err := a.courses.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if course != nil {
			return course, nil
		}
	}
	course, err := a.courses.GetByStudioHex(ctx, ref)
	if err != nil {
		return nil, err
	}
	if course == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrCourseNotFound, ref)
	}
	return course, nil
}
