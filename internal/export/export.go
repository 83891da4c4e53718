// Package export writes a shareable summary of the environment state as
// JSON, YAML or Markdown.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/envstate/internal/state"
)

// HistoryLimit caps how many recent history entries are exported.
const HistoryLimit = 20

// Format is an export file format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts json, yaml/yml and markdown/md.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unsupported export format %q (want json, yaml or markdown)", s)
}

// Ext returns the file extension for f.
func (f Format) Ext() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatMarkdown:
		return "md"
	default:
		return "json"
	}
}

// Context is the exported document.
type Context struct {
	GeneratedAt   time.Time              `json:"generated_at" yaml:"generated_at"`
	System        state.SystemDescriptor `json:"system" yaml:"system"`
	Stats         state.Stats            `json:"stats" yaml:"stats"`
	Packages      []state.PackageRecord  `json:"packages" yaml:"packages"`
	RecentHistory []state.HistoryEntry   `json:"recent_history" yaml:"recent_history"`
}

// Source is the read side of the state manager.
type Source interface {
	Snapshot() *state.Snapshot
	Stats() state.Stats
	Packages() []state.PackageRecord
	History() []state.HistoryEntry
}

// Build assembles a Context from src.
func Build(src Source, now time.Time) Context {
	c := Context{
		GeneratedAt: now,
		Stats:       src.Stats(),
		Packages:    src.Packages(),
	}
	if snap := src.Snapshot(); snap != nil {
		c.System = snap.System
	}
	history := src.History()
	if len(history) > HistoryLimit {
		history = history[len(history)-HistoryLimit:]
	}
	c.RecentHistory = history
	if c.Packages == nil {
		c.Packages = []state.PackageRecord{}
	}
	if c.RecentHistory == nil {
		c.RecentHistory = []state.HistoryEntry{}
	}
	return c
}

// Render encodes c in format f.
func Render(c Context, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		return json.MarshalIndent(c, "", "  ")
	case FormatYAML:
		return yaml.Marshal(c)
	case FormatMarkdown:
		return []byte(markdown(c)), nil
	}
	return nil, fmt.Errorf("unsupported export format %q", f)
}

// Write renders c into dir/envstate-context-<timestamp>.<ext> and returns
// the file path.
func Write(dir string, f Format, c Context) (string, error) {
	data, err := Render(c, f)
	if err != nil {
		return "", fmt.Errorf("failed to render export: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	name := fmt.Sprintf("envstate-context-%s.%s", c.GeneratedAt.Format("20060102-150405"), f.Ext())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}

func markdown(c Context) string {
	var sb strings.Builder
	sb.WriteString("# Environment context\n\n")
	fmt.Fprintf(&sb, "Generated %s\n\n", c.GeneratedAt.Format(time.RFC3339))

	sb.WriteString("## System\n\n")
	fmt.Fprintf(&sb, "- Platform: %s\n", orDash(c.System.Platform))
	fmt.Fprintf(&sb, "- OS: %s\n", orDash(c.System.OS))
	fmt.Fprintf(&sb, "- Architecture: %s\n", orDash(c.System.Arch))
	fmt.Fprintf(&sb, "- Package manager: %s\n\n", orDash(c.System.PackageManager))

	sb.WriteString("## Stats\n\n")
	fmt.Fprintf(&sb, "- Tracked packages: %d\n", c.Stats.TotalPackages)
	fmt.Fprintf(&sb, "- Outdated: %d\n", c.Stats.Outdated)
	fmt.Fprintf(&sb, "- Broken: %d\n", c.Stats.Broken)
	fmt.Fprintf(&sb, "- History entries: %d\n", c.Stats.HistoryEntries)
	fmt.Fprintf(&sb, "- Failures: %d\n", c.Stats.Failures)
	last := "never"
	if !c.Stats.LastScan.IsZero() {
		last = c.Stats.LastScan.Format(time.RFC3339)
	}
	fmt.Fprintf(&sb, "- Last scan: %s\n\n", last)

	fmt.Fprintf(&sb, "## Packages (%d)\n\n", len(c.Packages))
	if len(c.Packages) > 0 {
		sb.WriteString("| Name | Version | Source | Status |\n|---|---|---|---|\n")
		for _, p := range c.Packages {
			version := p.Version
			if p.UpdateAvailable && p.LatestVersion != "" {
				version += " (latest " + p.LatestVersion + ")"
			}
			fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n", cell(p.Name), cell(version), cell(p.Source), p.Status)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Recent history\n\n")
	if len(c.RecentHistory) == 0 {
		sb.WriteString("No recorded operations.\n")
		return sb.String()
	}
	for _, h := range c.RecentHistory {
		fmt.Fprintf(&sb, "- %s %s %s: %s", h.Timestamp.Format(time.RFC3339), h.Action, h.Package, h.Result)
		if h.Error != "" {
			fmt.Fprintf(&sb, " (%s)", firstLine(h.Error))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
