package app

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/envstate/internal/decision"
	"github.com/blackwell-systems/envstate/internal/output"
)

var decideCmd = &cobra.Command{
	Use:   "decide <package>...",
	Short: "Show whether each package would be installed, updated, repaired or skipped",
	Example: `  envstate decide git
  envstate decide node python3 rg --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecide,
}

var summaryCmd = &cobra.Command{
	Use:   "summary <package>...",
	Short: "Summarize the actions needed for a set of packages",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSummary,
}

func init() {
	RootCmd.AddCommand(decideCmd)
	RootCmd.AddCommand(summaryCmd)
}

func runDecide(cmd *cobra.Command, args []string) error {
	e, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if len(args) == 1 {
		d := e.CheckDecision(args[0])
		return render(cmd, d, func(w io.Writer) {
			fmt.Fprint(w, output.RenderDecisionTable([]decision.Decision{d}))
		})
	}

	decisions := make([]decision.Decision, 0, len(args))
	for _, name := range args {
		decisions = append(decisions, e.CheckDecision(name))
	}
	return render(cmd, decisions, func(w io.Writer) {
		fmt.Fprint(w, output.RenderDecisionTable(decisions))
	})
}

func runSummary(cmd *cobra.Command, args []string) error {
	e, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	s := e.DecisionSummary(args)
	return render(cmd, s, func(w io.Writer) {
		fmt.Fprint(w, output.RenderDecisionTable(s.Decisions))
		fmt.Fprintln(w)
		fmt.Fprintln(w, s.Message)
	})
}
