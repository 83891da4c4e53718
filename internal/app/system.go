package app

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/envstate/internal/engine"
	"github.com/blackwell-systems/envstate/internal/output"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Show the detected OS, architecture and package manager",
	Args:  cobra.NoArgs,
	RunE:  runDetect,
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose common issues",
	Long: `Runs read-only diagnostic checks.

Checks:
  • The detected package manager is supported and on PATH
  • Environment state exists and is readable
  • Restore point storage is accessible
  • The advisory service is configured
  • Privilege level`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	RootCmd.AddCommand(detectCmd)
	RootCmd.AddCommand(doctorCmd)
}

func runDetect(cmd *cobra.Command, args []string) error {
	e, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	info := e.DetectSystem(cmd.Context())
	return render(cmd, info, func(w io.Writer) {
		fmt.Fprint(w, output.RenderSystem(info))
	})
}

// errDiagnostics is returned when doctor finds a critical issue.
var errDiagnostics = errors.New("diagnostics failed")

func runDoctor(cmd *cobra.Command, args []string) error {
	e, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	d := e.Doctor(cmd.Context())
	err = render(cmd, d, func(w io.Writer) {
		fmt.Fprintln(w, "Running envstate diagnostics...")
		fmt.Fprintln(w)
		for _, c := range d.Checks {
			mark := "✓"
			switch c.Severity {
			case engine.SeverityWarning:
				mark = "⚠"
			case engine.SeverityCritical:
				mark = "✗"
			}
			fmt.Fprintf(w, "%s %s: %s\n", mark, c.Name, c.Detail)
			if c.Action != "" {
				fmt.Fprintf(w, "  Action: %s\n", c.Action)
			}
		}
		fmt.Fprintln(w)
		switch {
		case d.Critical > 0:
			fmt.Fprintf(w, "Found %d critical issue(s) and %d warning(s).\n", d.Critical, d.Warnings)
		case d.Warnings > 0:
			fmt.Fprintf(w, "Found %d warning(s). envstate is functional but not fully configured.\n", d.Warnings)
		default:
			fmt.Fprintln(w, "✓ All checks passed!")
		}
	})
	if err != nil {
		return err
	}
	if d.Critical > 0 {
		return errDiagnostics
	}
	return nil
}
