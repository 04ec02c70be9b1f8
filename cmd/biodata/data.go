package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rpggio/biodata/internal/export"
	"github.com/spf13/cobra"
)

var (
	exportFormat  string
	exportProject string
	exportOutput  string
	jsonOutput    bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the current project's observations",
	Long: `Export observations of the current project as JSON or CSV.

With --project the given project becomes the current project first. The
file is written to --output, or to a file named after the project in the
working directory. Use --output - to write to stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, ok := export.ParseFormat(exportFormat)
		if !ok {
			return fmt.Errorf("unsupported format %q: use json or csv", exportFormat)
		}
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			if exportProject != "" {
				if _, err := rt.store.SetCurrentProject(ctx, exportProject); err != nil {
					return err
				}
			}
			artifact, err := rt.store.Export(ctx, format)
			if err != nil {
				return err
			}
			if exportOutput == "-" {
				_, err := cmd.OutOrStdout().Write(artifact.Data)
				return err
			}
			path := exportOutput
			if path == "" {
				path = artifact.FileName
			}
			if err := ensureParentDir(path); err != nil {
				return err
			}
			if err := os.WriteFile(path, artifact.Data, 0o644); err != nil {
				return fmt.Errorf("writing export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d observations to %s\n", artifact.Count, path)
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import observations from a JSON export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(filepath.Clean(args[0]))
		if err != nil {
			return fmt.Errorf("reading import file: %w", err)
		}
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			res, err := rt.store.Import(ctx, data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d observations, skipped %d\n", res.Added, res.Skipped)
			return nil
		})
	},
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List projects with observation counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			summaries := rt.store.Summaries()
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), summaries)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CURRENT\tID\tNAME\tSTARTED\tOBSERVATIONS")
			for _, s := range summaries {
				mark := ""
				if s.Current {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", mark, s.ID, s.Name, s.StartDate.Format("2006-01-02"), s.ObservationCount)
			}
			return tw.Flush()
		})
	},
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Report local storage usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
			u, err := rt.store.Usage(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), u)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d observations in %d projects, %.2f MB\n", u.Observations, u.Projects, u.MegaBytes)
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "export format (json, csv)")
	exportCmd.Flags().StringVarP(&exportProject, "project", "p", "", "project id to select before exporting")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file, or - for stdout")

	projectsCmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")
	usageCmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")

	rootCmd.AddCommand(exportCmd, importCmd, projectsCmd, usageCmd)
}

// withRuntime opens the local database for a one-shot command. Logs go to
// stderr so command output stays parseable.
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// One-shot commands never reach the network.
	cfg.Cache.Origin = ""
	cfg.Geo.Disabled = true

	logger, closeLog := newLogger(cfg, cmd.ErrOrStderr())
	defer closeLog()

	ctx := cmd.Context()
	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
