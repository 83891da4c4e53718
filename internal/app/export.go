package app

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the environment state to a shareable file",
	Long: `Writes the system descriptor, stats, tracked packages and the last 20
history entries to <export_dir>/envstate-context-<timestamp>.<ext>.`,
	Example: `  envstate export
  envstate export --format yaml
  envstate export --format markdown`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "json, yaml or markdown")
	RootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	e, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	path, err := e.ExportContext(exportFormat)
	if err != nil {
		return err
	}
	return render(cmd, map[string]string{"file_path": path}, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Exported to %s\n", path)
	})
}
