package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"report-card-service/internal/app"
	"report-card-service/internal/config"
	"report-card-service/internal/domain"
	"report-card-service/internal/grading"
	"report-card-service/internal/ingest"
	"report-card-service/internal/render"
)

type recordSource struct {
	classID string
	csvPath string
}

// NewReportCmd renders a report card to a PDF file without starting the server.
func NewReportCmd(configPath *string) *cobra.Command {
	var (
		src     recordSource
		student string
		subject string
		out     string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a student's PDF report card",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := loadRecords(cmd.Context(), *configPath, src, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			report, err := app.BuildReport(render.NewRenderer(), records, student, subject)
			if errors.Is(err, domain.ErrEmptyInput) {
				return fmt.Errorf("no data available for %s", student)
			}
			if err != nil {
				return err
			}
			if out == "" {
				out = report.Filename
			}
			if err := os.WriteFile(out, report.Data, 0o644); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&src.classID, "class", "", "class roster to load (default from config when --csv is not set)")
	cmd.Flags().StringVar(&src.csvPath, "csv", "", "CSV file of activity records")
	cmd.Flags().StringVar(&student, "student", "", "student name")
	cmd.Flags().StringVar(&subject, "subject", "", "limit the report to one subject")
	cmd.Flags().StringVar(&out, "out", "", "output file (default <student>_..._Report_Card.pdf)")
	_ = cmd.MarkFlagRequired("student")
	return cmd
}

// NewRankCmd prints the class ranking.
func NewRankCmd(configPath *string) *cobra.Command {
	var src recordSource
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Print the class ranking by average score",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := loadRecords(cmd.Context(), *configPath, src, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			topper, err := grading.Topper(records)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, e := range grading.RankStudents(records) {
				fmt.Fprintf(w, "%d. %-20s %6.2f\n", e.Rank, e.StudentName, e.AverageScore)
			}
			fmt.Fprintf(w, "Topper: %s\n", topper.StudentName)
			return nil
		},
	}
	cmd.Flags().StringVar(&src.classID, "class", "", "class roster to load (default from config when --csv is not set)")
	cmd.Flags().StringVar(&src.csvPath, "csv", "", "CSV file of activity records")
	return cmd
}

// loadRecords combines the class roster and the CSV rows. Rejected CSV rows
// are reported on stderr and skipped.
func loadRecords(ctx context.Context, configPath string, src recordSource, stderr io.Writer) ([]domain.ActivityRecord, error) {
	var records []domain.ActivityRecord

	classID := src.classID
	if classID != "" || src.csvPath == "" {
		cfg, err := config.Load(configPath)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if classID == "" {
			classID = defaultClass(cfg)
		}
		b, err := openBackends(ctx, cfg)
		if err != nil {
			return nil, err
		}
		defer b.Close()
		roster, err := b.loader.LoadRoster(ctx, classID)
		if err != nil {
			return nil, err
		}
		records = append(records, roster...)
	}

	if src.csvPath != "" {
		f, err := os.Open(filepath.Clean(src.csvPath))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		result, err := ingest.ParseCSV(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", src.csvPath, err)
		}
		for _, rej := range result.Rejected {
			fmt.Fprintf(stderr, "%s: skipped %s\n", src.csvPath, rej.Error())
		}
		records = append(records, result.Records...)
	}
	return records, nil
}
