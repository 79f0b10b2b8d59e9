package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pavelanni/quizmaster/internal/bank"
)

func studentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "students",
		Short: "Manage the class roster",
	}
	cmd.AddCommand(studentsImportCmd(), studentsListCmd(), studentsDeleteCmd())
	return cmd
}

func studentsImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import roster lines: name, class[, email] separated by tabs or commas",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runStudentsImport,
	}
	cmd.Flags().Bool("force", false, "Import files again even if they changed since the last import")
	return cmd
}

func runStudentsImport(cmd *cobra.Command, args []string) error {
	v := viperForCmd(cmd)
	db, err := openStore(cmd, v)
	if err != nil {
		return err
	}
	defer db.Close()
	s, err := sqlStore(db, "the roster")
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		err = importOnce(ctx, db, path, data, v.GetBool("force"), func() error {
			added, updated := 0, 0
			for _, st := range bank.ParseRoster(string(data)) {
				if st.Email != "" {
					existing, err := s.FindStudentByEmail(ctx, st.Email)
					if err != nil {
						return fmt.Errorf("look up %s: %w", st.Email, err)
					}
					if existing != nil {
						st.ID = existing.ID
						if err := s.UpdateStudent(ctx, st); err != nil {
							return fmt.Errorf("update student %s: %w", st.Email, err)
						}
						updated++
						continue
					}
				}
				if _, err := s.CreateStudent(ctx, st); err != nil {
					return fmt.Errorf("add student %s: %w", st.Name, err)
				}
				added++
			}
			slog.Info("imported roster", "path", path, "added", added, "updated", updated)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func studentsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List roster students by class and name",
		RunE:  runStudentsList,
	}
	cmd.Flags().String("class", "", "Only students whose class contains this text")
	return cmd
}

func runStudentsList(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	db, err := openStore(cmd, v)
	if err != nil {
		return err
	}
	defer db.Close()
	s, err := sqlStore(db, "the roster")
	if err != nil {
		return err
	}

	students, err := s.ListStudents(cmd.Context())
	if err != nil {
		return fmt.Errorf("list students: %w", err)
	}
	class := strings.ToLower(v.GetString("class"))
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCLASS\tEMAIL")
	for _, st := range students {
		if class != "" && !strings.Contains(strings.ToLower(st.ClassName), class) {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.ID, st.Name, st.ClassName, st.Email)
	}
	return tw.Flush()
}

func studentsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID...",
		Short: "Remove students from the roster",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := viperForCmd(cmd)
			db, err := openStore(cmd, v)
			if err != nil {
				return err
			}
			defer db.Close()
			s, err := sqlStore(db, "the roster")
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := s.DeleteStudent(cmd.Context(), id); err != nil {
					return fmt.Errorf("delete student: %w", err)
				}
			}
			return nil
		},
	}
}
