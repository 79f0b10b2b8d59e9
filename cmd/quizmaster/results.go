package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pavelanni/quizmaster/internal/backend"
	"github.com/pavelanni/quizmaster/internal/grading"
	"github.com/pavelanni/quizmaster/internal/identity"
	"github.com/pavelanni/quizmaster/internal/model"
	"github.com/pavelanni/quizmaster/internal/report"
)

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade EXAM ANSWERS",
		Short: "Grade an answer file against an exam without recording it",
		Long: `Grade an answer file against an exam without recording it.

ANSWERS is a JSON object from question id to answer: a string for choice
and short-answer questions, an object from statement id to true or false
for true/false groups.`,
		Args: cobra.ExactArgs(2),
		RunE: runGrade,
	}
	cmd.Flags().StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func runGrade(cmd *cobra.Command, args []string) error {
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
	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[1], err)
	}
	var answers model.AnswerSet
	if err := json.Unmarshal(data, &answers); err != nil {
		return fmt.Errorf("parse %s: %w", args[1], err)
	}

	res := grading.Grade(e.Questions, e.EffectiveGrading(), answers)
	res.Date = time.Now()
	w, closeOut, err := outputWriter(v.GetString("output"))
	if err != nil {
		return err
	}
	defer closeOut()
	return writeJSON(w, res)
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export results as CSV",
		RunE:  runReport,
	}
	f := cmd.Flags()
	f.String("exam", "all", "Exam code, or all")
	f.String("class", "", "Only classes containing this text")
	f.String("name", "", "Only names containing this text")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func runReport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	db, err := openStore(cmd, v)
	if err != nil {
		return err
	}
	defer db.Close()

	rows, err := resultRows(cmd, db)
	if err != nil {
		return err
	}
	rows = report.Filter{
		ExamCode:      v.GetString("exam"),
		ClassContains: v.GetString("class"),
		NameContains:  v.GetString("name"),
	}.Apply(rows)

	w, closeOut, err := outputWriter(v.GetString("output"))
	if err != nil {
		return err
	}
	defer closeOut()
	return report.WriteCSV(w, rows)
}

// resultRows reads every result, straight from the results table when
// the bank is SQLite.
func resultRows(cmd *cobra.Command, db backend.Backend) ([]model.ResultRow, error) {
	if s, ok := backend.SQL(db); ok {
		rows, err := s.ExportResults(cmd.Context())
		if err != nil {
			return nil, fmt.Errorf("export results: %w", err)
		}
		return rows, nil
	}
	exams, err := db.ListExams(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	return report.Flatten(exams), nil
}

func overviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "overview",
		Short: "Summarize the exam bank",
		RunE:  runOverview,
	}
}

func runOverview(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	db, err := openStore(cmd, v)
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := cmd.Context()

	exams, err := db.ListExams(ctx)
	if err != nil {
		return fmt.Errorf("list exams: %w", err)
	}
	ov := report.Summarize(exams)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "exams %d (published %d), students with results %d, violations %d\n",
		ov.Exams, ov.Published, ov.Students, ov.Violations)
	if s, ok := backend.SQL(db); ok {
		n, err := s.StudentCount(ctx)
		if err != nil {
			return fmt.Errorf("count students: %w", err)
		}
		last, err := s.GetMetadata(ctx, lastImportKey)
		if err != nil {
			return fmt.Errorf("read metadata: %w", err)
		}
		if last == "" {
			last = "never"
		}
		fmt.Fprintf(out, "roster %d, last import %s\n", n, last)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tTITLE\tATTEMPTS\tSTUDENTS\tMEAN\tMAX\tMIN")
	for _, e := range exams {
		st := report.ExamStats(e)
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.2f\t%.2f\t%.2f\n",
			e.Code, e.Title, st.Attempts, st.Students, st.MeanScore, st.MaxScore, st.MinScore)
	}
	return tw.Flush()
}

func linksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "links EXAM",
		Short: "Print an assignment link, and optionally a token, for every roster student",
		Args:  cobra.ExactArgs(1),
		RunE:  runLinks,
	}
	f := cmd.Flags()
	f.String("link-base", "https://quiz.example.com/", "Base URL of assignment links")
	f.String("class", "", "Only students whose class contains this text")
	f.Bool("tokens", false, "Also issue a signed token per student")
	f.String("jwt-secret", "", "Secret that signs student tokens")
	f.Duration("ttl", 0, "Token lifetime (0 = no expiry)")
	return cmd
}

func runLinks(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	db, err := openStore(cmd, v)
	if err != nil {
		return err
	}
	defer db.Close()
	ctx := cmd.Context()
	s, err := sqlStore(db, "links")
	if err != nil {
		return err
	}

	e, err := findExam(ctx, db, args[0])
	if err != nil {
		return err
	}
	if !e.Published() {
		return fmt.Errorf("exam %s is not published", e.Code)
	}
	students, err := s.ListStudents(ctx)
	if err != nil {
		return fmt.Errorf("list students: %w", err)
	}
	var tokens *identity.Tokens
	if v.GetBool("tokens") {
		tokens = identity.NewTokens(v.GetString("jwt-secret"))
	}

	class := strings.ToLower(v.GetString("class"))
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, st := range students {
		if class != "" && !strings.Contains(strings.ToLower(st.ClassName), class) {
			continue
		}
		link, err := identity.AssignmentLink(v.GetString("link-base"), e, st)
		if err != nil {
			return err
		}
		if tokens == nil {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", st.ClassName, st.Name, link)
			continue
		}
		token, err := tokens.Issue(st, v.GetDuration("ttl"))
		if err != nil {
			return fmt.Errorf("issue token for %s: %w", st.Name, err)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.ClassName, st.Name, link, token)
	}
	return tw.Flush()
}

func hintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hint EXAM RESULT QUESTION",
		Short: "Ask the LLM to explain one question of a submitted result",
		Long: `Ask the LLM to explain one question of a submitted result.

RESULT is a result id and QUESTION the question number, starting at 1.`,
		Args: cobra.ExactArgs(3),
		RunE: runHint,
	}
	addLLMFlags(cmd.Flags())
	return cmd
}

func runHint(cmd *cobra.Command, args []string) error {
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
	var res *model.StudentResult
	for i := range e.Results {
		if e.Results[i].ID == args[1] {
			res = &e.Results[i]
			break
		}
	}
	if res == nil {
		return fmt.Errorf("exam %s has no result %s", e.Code, args[1])
	}
	k, err := strconv.Atoi(args[2])
	if err != nil || k < 1 || k > len(e.Questions) {
		return fmt.Errorf("question number must be between 1 and %d", len(e.Questions))
	}

	text, err := hintClient(v).ExplainResult(ctx, e, *res, e.Questions[k-1].ID)
	if err != nil {
		return fmt.Errorf("explain question %d: %w", k, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}
