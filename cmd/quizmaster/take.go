package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/quizmaster/internal/backend"
	"github.com/pavelanni/quizmaster/internal/hint"
	appI18n "github.com/pavelanni/quizmaster/internal/i18n"
	"github.com/pavelanni/quizmaster/internal/identity"
	"github.com/pavelanni/quizmaster/internal/model"
	"github.com/pavelanni/quizmaster/internal/session"
	"github.com/pavelanni/quizmaster/internal/terminal"
)

func takeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "take [EXAM]",
		Short: "Take an exam in this terminal",
		Long: `Take an exam in this terminal. EXAM is an exam id or code; it may be
left out when --link names the exam.

With --token the student is identified by a signed token and cannot
change their name or class. With --email the name and class are looked
up in the roster.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runTake,
	}
	f := cmd.Flags()
	f.String("name", "", "Student full name")
	f.String("class", "", "Student class")
	f.String("code", "", "Exam security code")
	f.String("email", "", "Student e-mail to look up in the roster")
	f.String("token", "", "Signed student token")
	f.String("link", "", "Assignment link or query string (examId, code, name, class)")
	f.String("jwt-secret", "", "Secret that signs student tokens")
	addLLMFlags(f)
	return cmd
}

func addLLMFlags(f *pflag.FlagSet) {
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "", "API key for LLM (explanations are off without one)")
	f.String("llm-model", "llama3.2", "LLM model name")
}

func hintClient(v *viper.Viper) *hint.Client {
	return hint.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
		hint.WithLanguage(v.GetString("lang")),
	)
}

func runTake(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	ctx := appI18n.WithLanguage(cmd.Context(), v.GetString("lang"))

	db, err := openStore(cmd, v)
	if err != nil {
		return err
	}
	defer db.Close()

	pre := session.Start{
		Name:      v.GetString("name"),
		ClassName: v.GetString("class"),
		Code:      v.GetString("code"),
	}
	ref := ""
	if len(args) == 1 {
		ref = args[0]
	}
	if raw := v.GetString("link"); raw != "" {
		link, err := identity.ParseDeepLink(raw)
		if err != nil {
			return err
		}
		ref = link.ExamID
		if pre.Code == "" {
			pre.Code = link.Code
		}
		id := link.Identity()
		if pre.Name == "" {
			pre.Name = id.Name
		}
		if pre.ClassName == "" {
			pre.ClassName = id.ClassName
		}
	}
	if ref == "" {
		return fmt.Errorf("no exam given: pass an exam id or code, or --link")
	}
	exam, err := findExam(ctx, db, ref)
	if err != nil {
		return err
	}

	host := terminal.NewHost(os.Stdout)
	logger := slog.Default().With("exam_code", exam.Code)
	opts := []session.Option{
		session.WithStore(db),
		session.WithHost(host),
		session.WithLogger(logger),
	}

	roster := loadRoster(cmd, db)
	switch {
	case v.GetString("token") != "":
		id, err := identity.NewTokens(v.GetString("jwt-secret")).Verify(v.GetString("token"))
		if err != nil {
			return err
		}
		id = identity.MatchRoster(id, roster)
		logger.Info("authenticated student", "student_id", id.StudentID, "class", id.ClassName)
		opts = append(opts, session.WithIdentity(id))
	case v.GetString("email") != "":
		id := identity.MatchRoster(model.Identity{Email: v.GetString("email")}, roster)
		if id.Complete() {
			pre.Name, pre.ClassName = id.Name, id.ClassName
		} else {
			logger.Warn("e-mail not in roster", "email", id.Email)
		}
	}

	s, err := session.New(exam, opts...)
	if err != nil {
		return fmt.Errorf("open exam: %w", err)
	}

	watcher := terminal.Watch(ctx)
	ui := terminal.New(os.Stdin, os.Stdout,
		terminal.WithHost(host),
		terminal.WithSource(watcher),
		terminal.WithHints(hintClient(v)),
		terminal.WithLogger(logger),
	)
	return ui.Run(ctx, s, pre)
}

// loadRoster returns the SQLite roster, or nothing for other backends.
func loadRoster(cmd *cobra.Command, db backend.Backend) []model.Student {
	s, ok := backend.SQL(db)
	if !ok {
		return nil
	}
	roster, err := s.ListStudents(cmd.Context())
	if err != nil {
		slog.Warn("could not load roster", "error", err)
		return nil
	}
	return roster
}
