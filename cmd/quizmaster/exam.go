package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pavelanni/quizmaster/internal/bank"
	"github.com/pavelanni/quizmaster/internal/model"
	"github.com/pavelanni/quizmaster/internal/report"
)

func examCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exam",
		Short: "Manage the exam bank",
	}
	cmd.AddCommand(examCreateCmd(), examImportCmd(), examPublishCmd(), examListCmd(), examShowCmd(), examDeleteCmd())
	return cmd
}

func examCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an empty, unpublished exam",
		RunE:  runExamCreate,
	}
	f := cmd.Flags()
	f.String("code", "", "Exam code shown to students (required)")
	f.String("title", "", "Exam title (required)")
	f.String("class", "", "Class the exam is meant for")
	_ = cmd.MarkFlagRequired("code")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func runExamCreate(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	db, err := openStore(cmd, v)
	if err != nil {
		return err
	}
	defer db.Close()

	e := bank.NewExam(v.GetString("code"), v.GetString("title"), v.GetString("class"), time.Now())
	if err := db.PutExam(cmd.Context(), e); err != nil {
		return fmt.Errorf("save exam: %w", err)
	}
	slog.Info("created exam", "exam_id", e.ID, "code", e.Code)
	fmt.Fprintln(cmd.OutOrStdout(), e.ID)
	return nil
}

func examImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import exams from JSON documents or question text",
		Long: `Import exams into the bank.

JSON files hold one exam or an array of exams and are checked against the
exam schema. Any other file is read as question text ("Câu 1:" or
"Question 1." starts a question, "A." to "D." are options, "a)" to "d)"
are true/false statements, "*" marks the correct ones) and becomes one
new exam named by --code and --title.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runExamImport,
	}
	f := cmd.Flags()
	f.String("code", "", "Exam code for text imports")
	f.String("title", "", "Exam title for text imports")
	f.String("class", "", "Class for text imports")
	f.Bool("force", false, "Import files again even if they changed since the last import")
	return cmd
}

func runExamImport(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	db, err := openStore(cmd, v)
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := cmd.Context()

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		err = importOnce(ctx, db, path, data, v.GetBool("force"), func() error {
			var exams []model.ExamConfig
			if strings.EqualFold(filepath.Ext(path), ".json") {
				exams, err = bank.ImportDocument(data, time.Now())
				if err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}
			} else {
				code, title := v.GetString("code"), v.GetString("title")
				if code == "" || title == "" {
					return fmt.Errorf("import %s: text imports need --code and --title", path)
				}
				e := bank.NewExam(code, title, v.GetString("class"), time.Now())
				e.Questions = bank.ParseWordText(string(data))
				if len(e.Questions) == 0 {
					return fmt.Errorf("import %s: no questions found", path)
				}
				exams = []model.ExamConfig{e}
			}
			for _, e := range exams {
				if err := db.PutExam(ctx, e); err != nil {
					return fmt.Errorf("save exam %s: %w", e.ID, err)
				}
				slog.Info("imported exam", "path", path, "exam_id", e.ID, "questions", len(e.Questions))
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func examPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish EXAM",
		Short: "Set the security code and rules of an exam so students can take it",
		Args:  cobra.ExactArgs(1),
		RunE:  runExamPublish,
	}
	f := cmd.Flags()
	f.String("code", "", "Six-character security code (generated when empty)")
	f.Int("duration", bank.DefaultDuration, "Time limit in minutes")
	f.Int("attempts", 0, "Maximum attempts per student (0 = unlimited)")
	f.Bool("hints", false, "Allow AI explanations after submission")
	f.Bool("review", true, "Allow students to review their answers")
	f.Float64("part1", 5, "Points for all choice questions")
	f.Float64("part2", 2, "Points for all true/false groups")
	f.Float64("part3", 2, "Points for all short-answer questions")
	f.Float64("part4", 1, "Reserved pool")
	f.String("group-method", string(model.GroupProgressive), "Group grading (progressive, equal)")
	return cmd
}

func runExamPublish(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	db, err := openStore(cmd, v)
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := cmd.Context()

	e, err := findExam(ctx, db, args[0])
	if err != nil {
		return err
	}

	ps := bank.PublishSettings{
		SecurityCode: v.GetString("code"),
		Duration:     v.GetInt("duration"),
		MaxAttempts:  v.GetInt("attempts"),
		AllowHints:   v.GetBool("hints"),
		AllowReview:  v.GetBool("review"),
	}
	f := cmd.Flags()
	if f.Changed("part1") || f.Changed("part2") || f.Changed("part3") || f.Changed("part4") || f.Changed("group-method") {
		g := e.EffectiveGrading()
		if f.Changed("part1") {
			g.Part1Total = v.GetFloat64("part1")
		}
		if f.Changed("part2") {
			g.Part2Total = v.GetFloat64("part2")
		}
		if f.Changed("part3") {
			g.Part3Total = v.GetFloat64("part3")
		}
		if f.Changed("part4") {
			g.Part4Total = v.GetFloat64("part4")
		}
		if f.Changed("group-method") {
			g.GroupGradingMethod = model.GroupGradingMethod(v.GetString("group-method"))
		}
		ps.Grading = &g
	} else {
		ps.Grading = e.GradingConfig
	}

	published, err := bank.Publish(e, ps)
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Code, err)
	}
	if err := db.PutExam(ctx, published); err != nil {
		return fmt.Errorf("save exam: %w", err)
	}
	slog.Info("published exam", "exam_id", published.ID, "duration", published.Duration,
		"max_attempts", published.MaxAttempts)
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", published.Code, published.SecurityCode)
	return nil
}

func examListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List exams, newest first",
		RunE:  runExamList,
	}
}

func runExamList(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	db, err := openStore(cmd, v)
	if err != nil {
		return err
	}
	defer db.Close()

	exams, err := db.ListExams(cmd.Context())
	if err != nil {
		return fmt.Errorf("list exams: %w", err)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCODE\tTITLE\tCLASS\tSECURITY CODE\tMIN\tQUESTIONS\tRESULTS")
	for _, e := range exams {
		code := e.SecurityCode
		if !e.Published() {
			code = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			e.ID, e.Code, e.Title, e.ClassName, code, e.Duration, len(e.Questions), len(e.Results))
	}
	return tw.Flush()
}

func examShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show EXAM",
		Short: "Print an exam as JSON, or its statistics",
		Args:  cobra.ExactArgs(1),
		RunE:  runExamShow,
	}
	f := cmd.Flags()
	f.Bool("stats", false, "Print score statistics and best results instead")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func runExamShow(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	db, err := openStore(cmd, v)
	if err != nil {
		return err
	}
	defer db.Close()

	e, err := findExam(cmd.Context(), db, args[0])
	if err != nil {
		return err
	}
	w, closeOut, err := outputWriter(v.GetString("output"))
	if err != nil {
		return err
	}
	defer closeOut()

	if !v.GetBool("stats") {
		return writeJSON(w, e)
	}
	st := report.ExamStats(e)
	fmt.Fprintf(w, "%s  %s\n", e.Code, e.Title)
	fmt.Fprintf(w, "attempts %d, students %d, mean %.2f, max %.2f, min %.2f, violations/attempt %.2f\n",
		st.Attempts, st.Students, st.MeanScore, st.MaxScore, st.MinScore, st.MeanViolations)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLASS\tNAME\tSCORE\tCORRECT\tSUBMITTED")
	for _, r := range report.Best(e) {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d\t%s\n", r.ClassName, r.Name, r.Score, r.Counts.Correct,
			r.Date.Format(time.RFC3339))
	}
	return tw.Flush()
}

func examDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete EXAM",
		Short: "Delete an exam and its results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viperForCmd(cmd)
			db, err := openStore(cmd, v)
			if err != nil {
				return err
			}
			defer db.Close()

			e, err := findExam(cmd.Context(), db, args[0])
			if err != nil {
				return err
			}
			if err := db.DeleteExam(cmd.Context(), e.ID); err != nil {
				return fmt.Errorf("delete exam: %w", err)
			}
			slog.Info("deleted exam", "exam_id", e.ID, "results", len(e.Results))
			return nil
		},
	}
}
