package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/envstate/internal/state"
)

var watchInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow changes to the environment state",
	Long: `Watches the persisted environment state and prints the stats whenever
another envstate process changes it. With --interval, available updates are
also checked on that period and tracked packages are marked outdated.

Runs in the foreground until interrupted.`,
	Example: `  envstate watch
  envstate watch --interval 6h`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "periodic update check interval (0 disables)")
	RootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	e, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Watching %s (Ctrl-C to stop)\n", e.StatePath())
	err = e.Watch(ctx, watchInterval, func(st state.Stats) {
		if jsonOutput {
			_ = printJSON(w, st)
			return
		}
		fmt.Fprintf(w, "[%s] %d packages, %d outdated, %d broken, %d history entries\n",
			time.Now().Format("15:04:05"), st.TotalPackages, st.Outdated, st.Broken, st.HistoryEntries)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
