package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/Cyclone1070/gatekeep/internal/audit"
	"github.com/Cyclone1070/gatekeep/internal/fileops"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func backupsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "Inspect, prune and restore file backups",
	}
	cmd.AddCommand(backupsListCmd(opts))
	cmd.AddCommand(backupsPruneCmd(opts))
	cmd.AddCommand(backupsRestoreCmd(opts))
	return cmd
}

// withApp runs fn against a fully wired gateway and shuts it down after.
func withApp(opts *globalOptions, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	ctx := audit.WithRequest(context.Background(), uuid.NewString(), "cli")
	runErr := fn(ctx, a)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func backupsListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list <path>",
		Short: "List the backup generations of a file, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				resp, err := a.files.ListBackups(ctx, fileops.ListBackupsRequest{Path: args[0]})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(resp.Backups) == 0 {
					fmt.Fprintln(out, dimStyle.Render("no backups for "+resp.Path))
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, headerStyle.Render("GEN")+"\t"+headerStyle.Render("CREATED")+"\t"+headerStyle.Render("BACKUP"))
				for _, b := range resp.Backups {
					fmt.Fprintf(tw, "%d\t%s\t%s\n", b.Generation, b.CreatedAt.Local().Format(time.DateTime), b.BackupPath)
				}
				return tw.Flush()
			})
		},
	}
}

func backupsPruneCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prune <path>",
		Short: "Drop generations beyond the configured count and age",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				abs, rel, err := a.paths.Resolve(args[0])
				if err == nil {
					err = a.backups.Prune(abs)
				}
				a.audit.Record(audit.Stamp(ctx, audit.Record{
					Kind:    "pruneBackups",
					Params:  map[string]string{"path": args[0]},
					Outcome: audit.OutcomeFor(err),
					Error:   audit.ErrorText(err),
				}))
				if err != nil {
					return err
				}

				remaining, err := a.backups.List(abs)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d generation(s) kept\n", rel, len(remaining))
				return nil
			})
		},
	}
}

func backupsRestoreCmd(opts *globalOptions) *cobra.Command {
	var generation int

	cmd := &cobra.Command{
		Use:   "restore <path>",
		Short: "Restore a file from a backup generation",
		Long: `Restore a file from a backup generation. The newest generation is used
unless --generation is given. The current content is backed up first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(ctx context.Context, a *app) error {
				resp, err := a.files.RestoreBackup(ctx, fileops.RestoreBackupRequest{Path: args[0], Generation: generation})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s restored %s from generation %d\n", allowedStyle.Render("OK"), resp.Path, resp.Generation)
				if resp.SafetyBackupPath != "" {
					fmt.Fprintln(out, dimStyle.Render("previous content saved to "+resp.SafetyBackupPath))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&generation, "generation", "g", 0, "generation to restore (default newest)")
	return cmd
}
