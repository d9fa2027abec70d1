package main

import (
	"fmt"
	"strings"

	"github.com/Cyclone1070/gatekeep/internal/config"
	"github.com/Cyclone1070/gatekeep/internal/policy"
	"github.com/Cyclone1070/gatekeep/internal/policy/command"
	pathpolicy "github.com/Cyclone1070/gatekeep/internal/policy/path"
	gatefs "github.com/Cyclone1070/gatekeep/internal/service/fs"
	"github.com/spf13/cobra"
)

func checkCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check paths or commands against the policies without running anything",
	}
	cmd.AddCommand(checkPathCmd(opts))
	cmd.AddCommand(checkCommandCmd(opts))
	return cmd
}

func checkPathCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path <path>...",
		Short: "Report whether each path may be accessed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			root, err := projectRoot(cfg)
			if err != nil {
				return err
			}
			paths := pathpolicy.New(root, gatefs.NewOSFileSystem(), cfg.Policy.DeniedPaths, underRoot(root, cfg.Backup.Dir))

			out := cmd.OutOrStdout()
			denied := 0
			for _, p := range args {
				res := paths.Validate(p)
				if !res.Valid {
					denied++
				}
				fmt.Fprintln(out, formatVerdict(p, res))
			}
			if denied > 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}
}

func checkCommandCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "command <command> [args...]",
		Short: "Report whether a command line may be executed",
		Long: `Report whether a command line may be executed.

Flags after the command name belong to the command being checked:
  gatekeep check command git -c core.sshCommand=evil fetch`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			rules, err := loadRules(cfg)
			if err != nil {
				return err
			}

			res := command.New(rules).Validate(args[0], args[1:])
			fmt.Fprintln(cmd.OutOrStdout(), formatVerdict(strings.Join(args, " "), res))
			if !res.Valid {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func loadRules(cfg *config.Config) (*command.Rules, error) {
	if cfg.Policy.RulesFile == "" {
		return command.DefaultRules(), nil
	}
	root, err := projectRoot(cfg)
	if err != nil {
		return nil, err
	}
	rules, err := command.LoadRules(underRoot(root, cfg.Policy.RulesFile))
	if err != nil {
		return nil, fmt.Errorf("load command rules: %w", err)
	}
	return rules, nil
}

func formatVerdict(subject string, res policy.ValidationResult) string {
	line := fmt.Sprintf("%s  %s", verdict(res.Valid), subject)
	if !res.Valid {
		line += "  " + dimStyle.Render(res.Reason)
	}
	return line
}
