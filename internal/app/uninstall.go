package app

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/envstate/internal/advisor"
	"github.com/blackwell-systems/envstate/internal/engine"
	"github.com/blackwell-systems/envstate/internal/output"
)

var uninstallYes bool

var planUninstallCmd = &cobra.Command{
	Use:   "plan-uninstall <package>...",
	Short: "Show the commands that would remove each package",
	Long: `Asks the advisory service for an ordered uninstall plan per package. When
no plan can be obtained, the package manager's generic remove command is
shown instead and flagged for review. Nothing is executed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlanUninstall,
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <package>...",
	Short: "Remove packages and drop them from the tracked state",
	Long: `Removes each package in turn:

  1. obtain the uninstall plan
  2. record a restore point
  3. run the plan's commands in order; the first failure aborts
  4. confirm the package is gone
  5. drop the package record and log the removal

A failure at any step is logged and leaves the package record in place.
Restore with 'envstate undo'.`,
	Example: `  envstate uninstall jq
  envstate uninstall jq ripgrep --yes`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUninstall,
}

func init() {
	uninstallCmd.Flags().BoolVarP(&uninstallYes, "yes", "y", false, "skip confirmation prompt")
	uninstallCmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the sudo password from stdin")

	RootCmd.AddCommand(planUninstallCmd)
	RootCmd.AddCommand(uninstallCmd)
}

func runPlanUninstall(cmd *cobra.Command, args []string) error {
	e, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	plans := e.GenerateUninstallPlan(cmd.Context(), args)
	return render(cmd, plans, func(w io.Writer) {
		fmt.Fprint(w, output.RenderPlanTable(plans))
	})
}

func runUninstall(cmd *cobra.Command, args []string) error {
	e, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	plans := e.GenerateUninstallPlan(ctx, args)
	if !uninstallYes {
		if jsonOutput {
			return fmt.Errorf("--json requires --yes for uninstall")
		}
		fmt.Fprint(w, output.RenderPlanTable(plans))
		fmt.Fprintln(w)
		if !confirm(cmd.InOrStdin(), w, fmt.Sprintf("Uninstall %d package(s)?", len(args))) {
			fmt.Fprintln(w, "Uninstall cancelled.")
			return nil
		}
	}

	var password string
	info := e.DetectSystem(ctx)
	if planNeedsPassword(plans) && !info.IsWindows() && !info.Elevated {
		password, err = readPassword(passwordStdin, cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
	}

	results := make([]engine.UninstallResult, 0, len(args))
	failed := 0
	for _, name := range args {
		events, wait := streamEvents(w)
		res := e.ExecuteUninstall(ctx, name, password, events)
		wait()
		results = append(results, res)
		if !res.Success {
			failed++
		}
		if !jsonOutput {
			if res.Success {
				fmt.Fprintf(w, "✓ %s\n", res.Message)
			} else {
				fmt.Fprintf(w, "✗ %s: %s\n", name, res.Error)
			}
			if res.RestorePointID != 0 {
				fmt.Fprintf(w, "  restore point %d (envstate undo %d)\n", res.RestorePointID, res.RestorePointID)
			}
		}
	}

	if jsonOutput {
		if err := printJSON(w, results); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d uninstall(s) failed", failed)
	}
	return nil
}

func planNeedsPassword(plans []advisor.PlanRecord) bool {
	for _, p := range plans {
		for _, c := range p.Commands {
			if containsSudo(c) {
				return true
			}
		}
	}
	return false
}
