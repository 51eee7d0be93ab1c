package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/schemati/schemati-backend/internal/bootstrap"
	"github.com/schemati/schemati-backend/internal/projects/service"
)

func buildProjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Manage saved projects in the configured store",
	}
	cmd.AddCommand(
		buildProjectsListCmd(),
		buildProjectsExportCmd(),
		buildProjectsImportCmd(),
		buildProjectsRenameCmd(),
		buildProjectsDeleteCmd(),
	)
	return cmd
}

// withProjects opens the configured store for the duration of fn. Without
// STORE_BACKEND the file store under STORE_DIR is used.
func withProjects(cmd *cobra.Command, fn func(*service.Manager) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	kv, closeStore, err := bootstrap.OpenPersistentStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(service.Open(cmd.Context(), kv))
}

func buildProjectsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProjects(cmd, func(m *service.Manager) error {
				projects := m.Projects()
				if len(projects) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No projects found.")
					return nil
				}
				current := m.Current()
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tUPDATED\tCURRENT")
				for _, p := range projects {
					mark := ""
					if p.ID == current {
						mark = "*"
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.UpdatedAt.Local().Format(time.DateTime), mark)
				}
				return w.Flush()
			})
		},
	}
}

func buildProjectsExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Write a project as an interchange file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProjects(cmd, func(m *service.Manager) error {
				exp, err := m.Export(args[0])
				if err != nil {
					return err
				}
				if output == "-" {
					_, err := cmd.OutOrStdout().Write(exp.Body)
					return err
				}
				path := output
				if path == "" {
					path = exp.Filename
				}
				if err := os.WriteFile(path, exp.Body, 0o644); err != nil {
					return fmt.Errorf("write export: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", exp.ProjectID, path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, - for stdout (default: <name>.json)")
	return cmd
}

func buildProjectsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import an interchange file as a new project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(filepath.Clean(args[0]))
			if err != nil {
				return err
			}
			defer f.Close()

			return withProjects(cmd, func(m *service.Manager) error {
				res, err := m.Import(cmd.Context(), f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %q as %s\n", res.Name, res.ProjectID)
				return nil
			})
		},
	}
}

func buildProjectsRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProjects(cmd, func(m *service.Manager) error {
				p, err := m.Rename(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", p.ID, p.Name)
				return nil
			})
		},
	}
}

func buildProjectsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProjects(cmd, func(m *service.Manager) error {
				if err := m.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return nil
			})
		},
	}
}
