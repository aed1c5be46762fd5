package cmd

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/vidpipe/internal/models"
)

var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "Manage courses",
}

var coursesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List courses",
	Args:  cobra.NoArgs,
	RunE:  runCoursesList,
}

var coursesAddCmd = &cobra.Command{
	Use:   "add <institution> <class-id> <semester-id>",
	Short: "Add a course",
	Long: `Add a course. The toggles decide which encode families its videos get:

  --s3       web and mobile renditions delivered to the endpoint bucket
  --youtube  a YouTube rendition handed off over SFTP
  --review   a review encode before the final encodes
  --mobile-override  the single override rendition instead of s3`,
	Args: cobra.ExactArgs(3),
	RunE: runCoursesAdd,
}

func init() {
	rootCmd.AddCommand(coursesCmd)
	coursesCmd.AddCommand(coursesListCmd, coursesAddCmd)

	coursesAddCmd.Flags().String("name", "", "Course name (defaults to the class ID)")
	coursesAddCmd.Flags().String("runs", "", "Comma-separated course run keys in the VAL")
	coursesAddCmd.Flags().Bool("s3", true, "Enable the s3 profile family")
	coursesAddCmd.Flags().Bool("youtube", false, "Enable the YouTube profile family")
	coursesAddCmd.Flags().Bool("review", false, "Enable review encodes")
	coursesAddCmd.Flags().Bool("mobile-override", false, "Enable the mobile override profile")
	coursesAddCmd.Flags().Bool("hold", false, "Hold reviewed videos until released")
}

func runCoursesList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appConfig, slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	courses, err := a.courses.GetAll(ctx)
	if err != nil {
		return err
	}

	tw := newTable(cmd.OutOrStdout(), "ID", "COURSE", "NAME", "TOGGLES", "HOLD", "VIDEOS", "STUDIO KEY")
	for _, c := range courses {
		var toggles []string
		for name, on := range c.Toggles() {
			if on {
				toggles = append(toggles, name)
			}
		}
		slices.Sort(toggles)
		tw.AppendRow([]any{
			c.ID,
			c.VideoIDPrefix(),
			c.Name,
			strings.Join(toggles, ","),
			c.Hold,
			c.LastVideoNumber,
			c.StudioHex,
		})
	}
	tw.Render()
	return nil
}

func runCoursesAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appConfig, slog.Default())
	if err != nil {
		return err
	}
	defer a.Close()

	flags := cmd.Flags()
	name, _ := flags.GetString("name")
	if name == "" {
		name = args[1]
	}
	course := &models.Course{
		Name:        name,
		Institution: strings.ToUpper(args[0]),
		ClassID:     strings.ToUpper(args[1]),
		SemesterID:  strings.ToUpper(args[2]),
	}
	course.CourseRuns, _ = flags.GetString("runs")
	course.S3Proc, _ = flags.GetBool("s3")
	course.YouTubeProc, _ = flags.GetBool("youtube")
	course.ReviewProc, _ = flags.GetBool("review")
	course.MobileOverride, _ = flags.GetBool("mobile-override")
	course.Hold, _ = flags.GetBool("hold")

	if err := course.Validate(); err != nil {
		return err
	}
	if err := a.courses.Create(ctx, course); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", course.ID, course.StudioHex)
	return nil
}
