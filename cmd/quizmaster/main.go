package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/quizmaster/internal/backend"
	appI18n "github.com/pavelanni/quizmaster/internal/i18n"
	"github.com/pavelanni/quizmaster/internal/model"
	"github.com/pavelanni/quizmaster/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "quizmaster",
		Short:        "Timed online exams with automatic grading",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)
			if err := appI18n.Init(v.GetString("lang")); err != nil {
				return fmt.Errorf("init i18n: %w", err)
			}
			return nil
		},
	}
	f := root.PersistentFlags()
	f.String("store", backend.DefaultURL, "Exam bank URL (sqlite://path, redis://..., mongodb://...)")
	f.StringP("lang", "l", "en", "UI language (en, vi)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	root.AddCommand(
		examCmd(),
		studentsCmd(),
		takeCmd(),
		gradeCmd(),
		reportCmd(),
		overviewCmd(),
		linksCmd(),
		hintCmd(),
	)
	return root
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("QUIZMASTER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("quizmaster")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/quizmaster")
	v.AddConfigPath("/etc/quizmaster")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// openStore opens the exam bank named by the store setting.
func openStore(cmd *cobra.Command, v *viper.Viper) (backend.Backend, error) {
	db, err := backend.Open(cmd.Context(), v.GetString("store"))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return db, nil
}

// sqlStore returns the SQLite store behind db, or an error naming the
// command that needs it.
func sqlStore(db backend.Backend, what string) (*store.Store, error) {
	s, ok := backend.SQL(db)
	if !ok {
		return nil, fmt.Errorf("%s needs a sqlite store", what)
	}
	return s, nil
}

// findExam looks an exam up by id, then by code.
func findExam(ctx context.Context, db backend.Backend, ref string) (model.ExamConfig, error) {
	e, err := db.GetExam(ctx, ref)
	if err == nil {
		return e, nil
	}
	exams, lerr := db.ListExams(ctx)
	if lerr != nil {
		return model.ExamConfig{}, fmt.Errorf("list exams: %w", lerr)
	}
	for _, e := range exams {
		if strings.EqualFold(e.Code, ref) {
			return e, nil
		}
	}
	return model.ExamConfig{}, fmt.Errorf("exam %q: %w", ref, err)
}

func outputWriter(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, f.Close, nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	return nil
}

const lastImportKey = "last_import"

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// importOnce runs load for a file unless the SQLite bookkeeping shows the
// same content was already imported. A changed file is skipped unless
// force is set. Other backends keep no bookkeeping.
func importOnce(ctx context.Context, db backend.Backend, path string, data []byte, force bool, load func() error) error {
	s, ok := backend.SQL(db)
	if !ok {
		return load()
	}
	hash := sha256sum(data)
	storedHash, err := s.GetImportedFileHash(ctx, path)
	if err != nil {
		return fmt.Errorf("check import status for %s: %w", path, err)
	}
	if storedHash == hash {
		slog.Info("file unchanged, skipping", "path", path)
		return nil
	}
	if storedHash != "" && !force {
		slog.Warn("file changed since last import, skipping (use --force to import again)", "path", path)
		return nil
	}
	if err := load(); err != nil {
		return err
	}
	if err := s.SetImportedFileHash(ctx, path, hash); err != nil {
		return fmt.Errorf("record import for %s: %w", path, err)
	}
	return s.SetMetadata(ctx, lastImportKey, time.Now().UTC().Format(time.RFC3339))
}
