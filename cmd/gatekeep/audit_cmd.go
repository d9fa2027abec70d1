package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/Cyclone1070/gatekeep/internal/audit"
	"github.com/spf13/cobra"
)

func auditCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Read the audit log",
	}
	cmd.AddCommand(auditTailCmd(opts))
	return cmd
}

func auditTailCmd(opts *globalOptions) *cobra.Command {
	var (
		count   int
		rawJSON bool
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent audit records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			root, err := projectRoot(cfg)
			if err != nil {
				return err
			}
			path := underRoot(root, cfg.Audit.Path)

			var recs []audit.Record
			switch cfg.Audit.Sink {
			case "sqlite":
				sink, err := audit.OpenSQLite(path)
				if err != nil {
					return err
				}
				defer sink.Close()
				recs, err = sink.Tail(cmd.Context(), count)
				if err != nil {
					return err
				}
			case "none":
				return fmt.Errorf("audit sink is disabled")
			default:
				recs, err = audit.ReadJSONL(path, count)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if rawJSON {
				enc := json.NewEncoder(out)
				for _, r := range recs {
					if err := enc.Encode(r); err != nil {
						return err
					}
				}
				return nil
			}
			for _, r := range recs {
				fmt.Fprintln(out, formatRecord(r))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "lines", "n", 20, "number of records to show (0 for all)")
	cmd.Flags().BoolVar(&rawJSON, "json", false, "print records as JSON lines")
	return cmd
}

func formatRecord(r audit.Record) string {
	var outcome string
	switch r.Outcome {
	case audit.OutcomeSuccess:
		outcome = allowedStyle.Render(string(r.Outcome))
	case audit.OutcomeBlocked:
		outcome = deniedStyle.Render(string(r.Outcome))
	default:
		outcome = warnStyle.Render(string(r.Outcome))
	}

	parts := []string{dimStyle.Render(r.Timestamp.Local().Format("2006-01-02 15:04:05.000")), outcome, r.Kind}
	for _, k := range slices.Sorted(maps.Keys(r.Params)) {
		parts = append(parts, k+"="+r.Params[k])
	}
	if r.Error != "" {
		parts = append(parts, dimStyle.Render("("+r.Error+")"))
	}
	return strings.Join(parts, " ")
}
