package app

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/envstate/internal/manager"
	"github.com/blackwell-systems/envstate/internal/output"
)

var (
	undoFlagList    bool
	undoFlagYes     bool
	undoFlagCleanup time.Duration
)

var undoCmd = &cobra.Command{
	Use:   "undo [restore-point-id | latest]",
	Short: "Reinstall packages from a restore point",
	Long: `Reinstalls the packages recorded in a restore point.

Restore points are created automatically before every uninstall. Each
package is reinstalled at its recorded version when the package manager
supports pinning; when that version is unavailable the latest is installed.

Arguments:
  restore-point-id  The numeric ID of the restore point
  latest            The most recent restore point`,
	Example: `  envstate undo --list             # List restore points
  envstate undo latest             # Restore the latest restore point
  envstate undo 42 --yes           # Restore without confirmation
  envstate undo --cleanup 720h     # Delete restore files older than 30 days`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUndo,
}

func init() {
	undoCmd.Flags().BoolVar(&undoFlagList, "list", false, "list available restore points")
	undoCmd.Flags().BoolVar(&undoFlagYes, "yes", false, "skip confirmation prompt")
	undoCmd.Flags().DurationVar(&undoFlagCleanup, "cleanup", 0, "delete restore point files older than this")
	undoCmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the sudo password from stdin")

	RootCmd.AddCommand(undoCmd)
}

func runUndo(cmd *cobra.Command, args []string) error {
	e, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	w := cmd.OutOrStdout()

	if undoFlagCleanup > 0 {
		n, err := e.CleanupRestorePoints(undoFlagCleanup)
		if err != nil {
			return fmt.Errorf("failed to clean up restore points: %w", err)
		}
		return render(cmd, map[string]int{"removed": n}, func(w io.Writer) {
			fmt.Fprintf(w, "✓ Removed %d restore point file(s)\n", n)
		})
	}

	points, err := e.RestorePoints()
	if err != nil {
		return fmt.Errorf("failed to list restore points: %w", err)
	}
	if undoFlagList {
		return render(cmd, points, func(w io.Writer) {
			fmt.Fprint(w, output.RenderRestorePointTable(points))
			if len(points) > 0 {
				fmt.Fprintln(w, "\nRestore with: envstate undo <id>")
			}
		})
	}

	if len(args) == 0 {
		return fmt.Errorf("restore point ID or 'latest' required\n\nUse 'envstate undo --list' to see available restore points")
	}

	var id int64
	if strings.ToLower(args[0]) == "latest" {
		if len(points) == 0 {
			return fmt.Errorf("no restore points available\n\nRestore points are created automatically before uninstall")
		}
		id = points[0].ID
	} else {
		id, err = strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid restore point ID: %s (must be a number or 'latest')", args[0])
		}
	}

	if !undoFlagYes {
		if jsonOutput {
			return fmt.Errorf("--json requires --yes for undo")
		}
		if !confirm(cmd.InOrStdin(), w, fmt.Sprintf("Restore from restore point %d?", id)) {
			fmt.Fprintln(w, "Restoration cancelled.")
			return nil
		}
	}

	var password string
	info := e.DetectSystem(cmd.Context())
	def, _ := manager.Lookup(info.PackageManager)
	if containsSudo(def.Install) && !info.Elevated {
		password, err = readPassword(passwordStdin, cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
	}

	total := 0
	for _, p := range points {
		if p.ID == id {
			total = p.PackageCount
		}
	}
	progress, wait := showProgress(cmd.ErrOrStderr(), total, "Restoring", func(name string) string { return name })
	res, err := e.Undo(cmd.Context(), id, password, nil, progress)
	wait()
	if res == nil {
		return err
	}
	if rerr := render(cmd, res, func(w io.Writer) {
		fmt.Fprintf(w, "\n✓ Restored %d package(s) from restore point %d\n", len(res.Restored), res.ID)
		for _, p := range res.Restored {
			fmt.Fprintf(w, "  - %s\n", p)
		}
		if len(res.Latest) > 0 {
			fmt.Fprintf(w, "⚠ Recorded version unavailable, latest installed: %s\n", strings.Join(res.Latest, ", "))
		}
		for _, f := range res.Failed {
			fmt.Fprintf(w, "✗ %s\n", f)
		}
	}); rerr != nil {
		return rerr
	}
	return err
}
