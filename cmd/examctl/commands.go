package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"examintel/internal/db"
	"examintel/internal/masterdata"
	"examintel/internal/ontology"
	"examintel/internal/question"
	"examintel/internal/report"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.close()

		if err := db.Migrate(cmd.Context(), e.db); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Upsert a taxonomy YAML document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, _ := cmd.Flags().GetInt64("actor")
		if actor <= 0 {
			return fmt.Errorf("--actor must be a positive admin user id")
		}
		seed, err := masterdata.LoadSeedFile(args[0])
		if err != nil {
			return err
		}

		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.close()

		rep, err := masterdata.NewService(e.db).ApplySeed(cmd.Context(), actor, seed)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "lessons=%d topics=%d subtopics=%d prerequisites=%d edges=%d\n",
			rep.Lessons, rep.Topics, rep.Subtopics, rep.Prerequisites, rep.Edges)
		return nil
	},
}

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "List unresolved topic suggestions grouped by signal",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lessonID, _ := cmd.Flags().GetInt64("lesson-id")
		minOcc, _ := cmd.Flags().GetInt("min")

		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.close()

		svc := ontology.NewService(ontology.NewPostgresStore(e.db), e.log.Named("ontology"))
		signals, err := svc.ListUnresolvedSignals(cmd.Context(), lessonID, minOcc)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "LESSON\tTOPIC\tSUBTOPIC\tFREQ\tEXAMPLES")
		for _, s := range signals {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%v\n", s.Lesson, orDash(s.UnmatchedTopic), orDash(s.UnmatchedSubtopic), s.Frequency, s.ExampleQuestionIDs)
		}
		return tw.Flush()
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate the exam intelligence report as JSON or xlsx",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := report.Filter{}
		f.LessonName, _ = cmd.Flags().GetString("lesson")
		if v, _ := cmd.Flags().GetString("start-year"); v != "" {
			y, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid --start-year: %w", err)
			}
			f.StartYear = &y
		}
		if v, _ := cmd.Flags().GetString("end-year"); v != "" {
			y, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid --end-year: %w", err)
			}
			f.EndYear = &y
		}
		xlsxPath, _ := cmd.Flags().GetString("xlsx")

		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.close()

		masterSvc := masterdata.NewService(e.db)
		questionSvc := question.NewService(e.db, e.cfg.PayloadSchemaStrict, e.log.Named("question"))
		source := report.NewPostgresSource(e.db, masterSvc, questionSvc)
		svc := report.NewService(source, source, e.log.Named("report"))

		if xlsxPath != "" {
			data, err := svc.ExportExcel(cmd.Context(), f)
			if err != nil {
				return err
			}
			if err := os.WriteFile(xlsxPath, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", xlsxPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "report written to %s\n", xlsxPath)
			return nil
		}

		rep, err := svc.GenerateReport(cmd.Context(), f)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	},
}

func init() {
	seedCmd.Flags().Int64("actor", 0, "Admin user id recorded in the audit log")

	signalsCmd.Flags().Int64("lesson-id", 0, "Restrict to one lesson (0 = all)")
	signalsCmd.Flags().Int("min", 1, "Minimum occurrences per signal")

	reportCmd.Flags().String("lesson", "", "Lesson name (empty = all lessons)")
	reportCmd.Flags().String("start-year", "", "First exam year to include")
	reportCmd.Flags().String("end-year", "", "Last exam year to include")
	reportCmd.Flags().String("xlsx", "", "Write an xlsx workbook to this path instead of JSON")
}

func orDash(v *string) string {
	if v == nil || *v == "" {
		return "-"
	}
	return *v
}
