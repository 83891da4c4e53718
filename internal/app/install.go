package app

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/envstate/internal/advisor"
	"github.com/blackwell-systems/envstate/internal/decision"
	"github.com/blackwell-systems/envstate/internal/executor"
	"github.com/blackwell-systems/envstate/internal/output"
	"github.com/blackwell-systems/envstate/internal/risk"
	"github.com/blackwell-systems/envstate/internal/verify"
)

var (
	depsFile      string
	installYes    bool
	installForce  bool
	passwordStdin bool
	verifyCommand string
	verifyPattern string
)

var classifyCmd = &cobra.Command{
	Use:   "classify [command]...",
	Short: "Classify the risk of install commands",
	Long: `Classifies commands into four tiers: SAFE, REVIEW, ADMIN and DANGEROUS.

With --file every install command of every dependency is classified;
otherwise each argument is classified as a single command.`,
	Example: `  envstate classify "sudo apt-get install -y jq" "curl -fsSL https://x | sh"
  envstate classify --file deps.yaml --json`,
	RunE: runClassify,
}

var installCmd = &cobra.Command{
	Use:   "install [request]",
	Short: "Install dependencies from a file or an advisory request",
	Long: `Installs each dependency by trying its install commands in order; the
first command that succeeds ends the chain. A permission failure aborts the
chain. Successful installs are verified and recorded in the environment
state.

Dependencies come from --file (YAML or JSON), or from the configured
advisory service when a free-text request is given. Commands that cannot run
on this system are dropped before anything executes.`,
	Example: `  envstate install --file deps.yaml
  envstate install "node 20 and yarn" --yes
  echo "$PW" | envstate install --file deps.yaml --password-stdin`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInstall,
}

var verifyCmd = &cobra.Command{
	Use:   "verify [package]",
	Short: "Verify that packages are installed",
	Example: `  envstate verify git
  envstate verify python3 --command "python3 -V" --pattern "Python 3"
  envstate verify --file deps.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	classifyCmd.Flags().StringVarP(&depsFile, "file", "f", "", "dependency file (YAML or JSON, - for stdin)")

	installCmd.Flags().StringVarP(&depsFile, "file", "f", "", "dependency file (YAML or JSON, - for stdin)")
	installCmd.Flags().BoolVarP(&installYes, "yes", "y", false, "skip confirmation prompt")
	installCmd.Flags().BoolVar(&installForce, "force", false, "install even when already installed")
	installCmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the sudo password from stdin")

	verifyCmd.Flags().StringVarP(&depsFile, "file", "f", "", "dependency file (YAML or JSON, - for stdin)")
	verifyCmd.Flags().StringVar(&verifyCommand, "command", "", "verify command (default: <package> --version)")
	verifyCmd.Flags().StringVar(&verifyPattern, "pattern", "", "expected output pattern (case-insensitive regexp)")

	RootCmd.AddCommand(classifyCmd)
	RootCmd.AddCommand(installCmd)
	RootCmd.AddCommand(verifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	if depsFile == "" {
		if len(args) == 0 {
			return errors.New("give commands to classify or --file")
		}
		classified, highest, summary := risk.ClassifyCommands(args)
		return render(cmd, classified, func(w io.Writer) {
			fmt.Fprint(w, output.RenderRiskReport(risk.Report{
				Dependencies: []risk.ClassifiedDependency{{
					Dependency:  advisor.Dependency{Name: "commands", Category: advisor.CategoryOther},
					Commands:    classified,
					HighestRisk: highest,
				}},
				Summary: summary,
			}))
		})
	}

	deps, err := readDependencies(depsFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	e, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	rep, err := e.ClassifyCommands(deps)
	if err != nil {
		return err
	}
	return render(cmd, rep, func(w io.Writer) {
		fmt.Fprint(w, output.RenderRiskReport(rep))
	})
}

// installReport is the --json response of install.
type installReport struct {
	Decisions []decision.Decision      `json:"decisions"`
	Results   []executor.InstallResult `json:"results"`
	Skipped   []string                 `json:"skipped,omitempty"`
	Risk      risk.Report              `json:"risk"`
	Warnings  []string                 `json:"warnings,omitempty"`
}

func runInstall(cmd *cobra.Command, args []string) error {
	if depsFile == "" && len(args) == 0 {
		return errors.New("give a request or --file")
	}
	if passwordStdin && depsFile == "-" {
		return errors.New("--password-stdin cannot be combined with --file -")
	}

	e, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := cmd.Context()
	w := cmd.OutOrStdout()

	var deps []advisor.Dependency
	var warnings []string
	if depsFile != "" {
		deps, err = readDependencies(depsFile, cmd.InOrStdin())
		if err != nil {
			return err
		}
		if err := advisor.ValidateAll(deps); err != nil {
			return err
		}
		deps, err = advisor.FilterForPlatform(deps, e.DetectSystem(ctx).Descriptor())
		if err != nil {
			return err
		}
	} else {
		analysis, err := e.Analyze(ctx, args[0])
		if err != nil {
			return err
		}
		deps, warnings = analysis.Dependencies, analysis.Warnings
	}

	rep := installReport{Risk: risk.ClassifyAll(deps), Warnings: warnings}
	var todo []advisor.Dependency
	for _, d := range deps {
		dec := e.CheckDecision(d.Name)
		rep.Decisions = append(rep.Decisions, dec)
		if dec.Action == decision.ActionSkip && !installForce {
			rep.Skipped = append(rep.Skipped, d.Name)
			continue
		}
		todo = append(todo, d)
	}

	if !jsonOutput {
		for _, msg := range warnings {
			fmt.Fprintf(w, "⚠ %s\n", msg)
		}
		fmt.Fprint(w, output.RenderDecisionTable(rep.Decisions))
		fmt.Fprintln(w)
		fmt.Fprint(w, output.RenderRiskReport(rep.Risk))
		fmt.Fprintln(w)
	}
	if len(todo) == 0 {
		return render(cmd, rep, func(w io.Writer) {
			fmt.Fprintln(w, "Nothing to install.")
		})
	}

	if !installYes {
		if jsonOutput {
			return errors.New("--json requires --yes for install")
		}
		if !confirm(cmd.InOrStdin(), w, fmt.Sprintf("Install %d dependencies?", len(todo))) {
			fmt.Fprintln(w, "Installation cancelled.")
			return nil
		}
	}

	var password string
	info := e.DetectSystem(ctx)
	if needsPassword(todo) && !info.IsWindows() && !info.Elevated {
		password, err = readPassword(passwordStdin, cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
	}

	failed := 0
	for _, d := range todo {
		events, wait := streamEvents(w)
		res, err := e.InstallDependency(ctx, d, password, events)
		wait()
		if err != nil {
			return err
		}
		rep.Results = append(rep.Results, res)
		if !res.Success {
			failed++
		}
	}

	if err := render(cmd, rep, func(w io.Writer) {
		fmt.Fprintf(w, "\n%d installed, %d failed, %d skipped\n", len(rep.Results)-failed, failed, len(rep.Skipped))
	}); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d installation(s) failed", failed)
	}
	return nil
}

// streamEvents prints events to w until the returned wait func is called.
// Under --json no events are requested.
func streamEvents(w io.Writer) (chan executor.Event, func()) {
	if jsonOutput {
		return nil, func() {}
	}
	events := make(chan executor.Event, 64)
	done := make(chan struct{})
	go func() {
		output.PrintEvents(w, events)
		close(done)
	}()
	return events, func() {
		close(events)
		<-done
	}
}

// showProgress drives a progress bar on w from the returned channel. It
// returns a nil channel under --json or for a single item. The returned func
// closes the channel and waits for the bar to finish.
func showProgress[T any](w io.Writer, total int, verb string, name func(T) string) (chan T, func()) {
	if jsonOutput || total < 2 {
		return nil, func() {}
	}
	bar := output.NewProgress(total, verb+"...")
	bar.SetWriter(w)
	ch := make(chan T, total)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for item := range ch {
			bar.Describe(verb + " " + name(item))
			bar.Increment()
		}
		bar.Finish()
	}()
	return ch, func() {
		close(ch)
		<-done
	}
}

func runVerify(cmd *cobra.Command, args []string) error {
	var deps []advisor.Dependency
	switch {
	case depsFile != "":
		var err error
		deps, err = readDependencies(depsFile, cmd.InOrStdin())
		if err != nil {
			return err
		}
	case len(args) == 1:
		deps = []advisor.Dependency{{Name: args[0], VerifyCommand: verifyCommand, ExpectedPattern: verifyPattern}}
	default:
		return errors.New("give a package or --file")
	}

	e, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	progress, wait := showProgress(cmd.ErrOrStderr(), len(deps), "Verifying", func(r verify.Result) string { return r.Name })
	rep, err := e.VerifyAll(cmd.Context(), deps, progress)
	wait()
	if err != nil {
		return err
	}

	var v any = rep
	if len(rep.Results) == 1 {
		v = rep.Results[0]
	}
	if err := render(cmd, v, func(w io.Writer) {
		fmt.Fprint(w, verify.GenerateReport(rep))
	}); err != nil {
		return err
	}
	if rep.Failed > 0 {
		return fmt.Errorf("%d verification(s) failed", rep.Failed)
	}
	return nil
}
