package app

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/envstate/internal/engine"
	"github.com/blackwell-systems/envstate/internal/output"
	"github.com/blackwell-systems/envstate/internal/state"
)

var (
	scanQuiet bool
	scanCheck bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Record every installed package",
	Long: `Lists installed packages with the detected package manager and replaces
the tracked environment state with the result.

A scan that fails (timeout, unsupported manager) still writes state, with no
packages, so later decisions treat everything as a new installation.`,
	Example: `  envstate scan
  envstate scan --quiet
  envstate scan --check       # report drift without rewriting state
  envstate scan --json`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var updatesCmd = &cobra.Command{
	Use:   "updates",
	Short: "List available upgrades and mark tracked packages outdated",
	Args:  cobra.NoArgs,
	RunE:  runUpdates,
}

var packagesCmd = &cobra.Command{
	Use:     "packages",
	Aliases: []string{"list"},
	Short:   "List tracked packages",
	Args:    cobra.NoArgs,
	RunE:    runPackages,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show counts over the tracked state",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	scanCmd.Flags().BoolVar(&scanQuiet, "quiet", false, "suppress output")
	scanCmd.Flags().BoolVar(&scanCheck, "check", false, "compare installed packages with the tracked state without saving")

	RootCmd.AddCommand(scanCmd)
	RootCmd.AddCommand(updatesCmd)
	RootCmd.AddCommand(packagesCmd)
	RootCmd.AddCommand(statsCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	e, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if scanCheck {
		return runScanCheck(cmd, e)
	}

	info := e.DetectSystem(cmd.Context())
	var spinner *output.Spinner
	if !scanQuiet && !jsonOutput {
		spinner = output.NewSpinner(fmt.Sprintf("Scanning %s packages...", info.PackageManager))
		spinner.Start()
	}
	res, err := e.ScanEnvironment(cmd.Context())
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return fmt.Errorf("failed to scan packages: %w", err)
	}
	if scanQuiet {
		return nil
	}

	return render(cmd, res, func(w io.Writer) {
		if res.Count == 0 {
			fmt.Fprintf(w, "No packages found with %s.\n", info.PackageManager)
			fmt.Fprintln(w, "Run with --log-level debug to see why the scan came back empty.")
			return
		}
		fmt.Fprintf(w, "✓ Recorded %d packages (%s)\n", res.Count, info.PackageManager)
	})
}

func runScanCheck(cmd *cobra.Command, e *engine.Engine) error {
	drift, err := e.CheckDrift(cmd.Context())
	if errors.Is(err, state.ErrNoState) {
		return fmt.Errorf("no environment state yet; run 'envstate scan' first")
	}
	if err != nil {
		return err
	}
	return render(cmd, drift, func(w io.Writer) {
		if drift.Empty() {
			fmt.Fprintln(w, "✓ Tracked state matches installed packages.")
			return
		}
		if len(drift.Untracked) > 0 {
			fmt.Fprintf(w, "Installed but untracked (%d): %s\n", len(drift.Untracked), strings.Join(drift.Untracked, ", "))
		}
		if len(drift.Missing) > 0 {
			fmt.Fprintf(w, "Tracked but no longer installed (%d): %s\n", len(drift.Missing), strings.Join(drift.Missing, ", "))
		}
		fmt.Fprintln(w, "\nRun 'envstate scan' to resync.")
	})
}

func runUpdates(cmd *cobra.Command, args []string) error {
	e, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	if !e.State().Loaded() && !jsonOutput {
		stderrf(cmd, "No environment state yet; run 'envstate scan' so updates can be tracked.\n")
	}
	updates, err := e.CheckUpdates(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to check updates: %w", err)
	}
	return render(cmd, updates, func(w io.Writer) {
		if len(updates) == 0 {
			fmt.Fprintln(w, "Everything is up to date.")
			return
		}
		fmt.Fprint(w, output.RenderUpdateTable(updates))
	})
}

func runPackages(cmd *cobra.Command, args []string) error {
	e, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	pkgs := e.Packages()
	if pkgs == nil {
		pkgs = []state.PackageRecord{}
	}
	return render(cmd, pkgs, func(w io.Writer) {
		if !e.State().Loaded() {
			fmt.Fprintln(w, "No environment state yet. Run 'envstate scan' first.")
			return
		}
		fmt.Fprint(w, output.RenderPackageTable(pkgs))
	})
}

func runStats(cmd *cobra.Command, args []string) error {
	e, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	st := e.Stats()
	return render(cmd, st, func(w io.Writer) {
		fmt.Fprint(w, output.RenderStats(st))
		if st.Failures > 0 {
			var failed []string
			for _, h := range e.State().History() {
				if h.Result == state.ResultFailed {
					failed = append(failed, h.Package)
				}
			}
			fmt.Fprintf(w, "\nRecent failures: %s\n", strings.Join(lastN(failed, 5), ", "))
		}
	})
}

func lastN(s []string, n int) []string {
	if len(s) > n {
		return s[len(s)-n:]
	}
	return s
}
