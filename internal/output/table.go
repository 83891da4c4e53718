// Package output renders envstate results for the terminal.
//
// Tables are plain text with optional color; color is disabled when stdout
// is not a terminal or NO_COLOR is set. Progress indicators live in
// progress.go.
package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/fatih/color"

	"github.com/blackwell-systems/envstate/internal/advisor"
	"github.com/blackwell-systems/envstate/internal/decision"
	"github.com/blackwell-systems/envstate/internal/manager"
	"github.com/blackwell-systems/envstate/internal/risk"
	"github.com/blackwell-systems/envstate/internal/state"
	"github.com/blackwell-systems/envstate/internal/store"
	"github.com/blackwell-systems/envstate/internal/system"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// IsColorEnabled reports whether color codes are emitted.
func IsColorEnabled() bool {
	return !color.NoColor
}

func rule(n int) string {
	return strings.Repeat("─", n) + "\n"
}

// RenderSystem renders detected system information.
func RenderSystem(info system.Info) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-16s %s\n", "Platform", info.Platform)
	fmt.Fprintf(&sb, "%-16s %s\n", "OS", info.OS)
	if info.Distro != "" {
		fmt.Fprintf(&sb, "%-16s %s\n", "Distribution", info.Distro)
	}
	fmt.Fprintf(&sb, "%-16s %s\n", "Architecture", info.Arch)
	fmt.Fprintf(&sb, "%-16s %s\n", "Package manager", info.PackageManager)
	fmt.Fprintf(&sb, "%-16s %d\n", "CPUs", info.CPUCount)
	fmt.Fprintf(&sb, "%-16s %d GB\n", "Memory", info.MemoryGB)
	if info.Hostname != "" {
		fmt.Fprintf(&sb, "%-16s %s\n", "Hostname", info.Hostname)
	}
	elevated := "no"
	if info.Elevated {
		elevated = yellow("yes")
	}
	fmt.Fprintf(&sb, "%-16s %s\n", "Elevated", elevated)
	return sb.String()
}

// RenderPackageTable renders tracked packages sorted by name.
func RenderPackageTable(packages []state.PackageRecord) string {
	if len(packages) == 0 {
		return "No packages tracked. Run 'envstate scan' first.\n"
	}

	sorted := make([]state.PackageRecord, len(packages))
	copy(sorted, packages)
	sort.Slice(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].Name) < strings.ToLower(sorted[j].Name)
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-28s %-18s %-10s %-10s %s\n", "Package", "Version", "Source", "Status", "Detected")
	sb.WriteString(rule(84))
	for _, p := range sorted {
		status := pad(string(p.Status), 10)
		switch p.Status {
		case state.StatusInstalled:
			status = green(status)
		case state.StatusOutdated:
			status = yellow(status)
		case state.StatusBroken:
			status = red(status)
		}
		version := p.Version
		if p.UpdateAvailable && p.LatestVersion != "" {
			version += " → " + p.LatestVersion
		}
		fmt.Fprintf(&sb, "%-28s %-18s %-10s %s %s\n",
			truncate(p.Name, 28),
			truncate(version, 18),
			truncate(p.Source, 10),
			status,
			formatRelativeTime(p.DetectedAt))
	}
	return sb.String()
}

// RenderDecisionTable renders one line per decision.
func RenderDecisionTable(decisions []decision.Decision) string {
	if len(decisions) == 0 {
		return "No packages given.\n"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-24s %-9s %-11s %s\n", "Package", "Action", "Badge", "Reason")
	sb.WriteString(rule(80))
	for _, d := range decisions {
		action := pad(string(d.Action), 9)
		switch d.Action {
		case decision.ActionInstall:
			action = green(action)
		case decision.ActionUpdate:
			action = yellow(action)
		case decision.ActionRepair:
			action = red(action)
		default:
			action = gray(action)
		}
		fmt.Fprintf(&sb, "%-24s %s %-11s %s\n", truncate(d.Package, 24), action, d.Badge, d.Reason)
	}
	return sb.String()
}

// RenderUpdateTable renders available updates.
func RenderUpdateTable(updates []manager.Update) string {
	if len(updates) == 0 {
		return "All packages are up to date.\n"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-28s %-18s %s\n", "Package", "Current", "Latest")
	sb.WriteString(rule(66))
	for _, u := range updates {
		current := u.CurrentVersion
		if current == "" {
			current = "—"
		}
		fmt.Fprintf(&sb, "%-28s %-18s %s\n", truncate(u.Name, 28), truncate(current, 18), green(u.LatestVersion))
	}
	fmt.Fprintf(&sb, "\n%s available\n", english.Plural(len(updates), "update", "updates"))
	return sb.String()
}

// RenderRiskReport renders classified commands grouped by dependency.
func RenderRiskReport(rep risk.Report) string {
	var sb strings.Builder
	for _, d := range rep.Dependencies {
		fmt.Fprintf(&sb, "%s (%s) highest risk: %s\n", bold(d.Name), d.Category, riskLabel(d.HighestRisk))
		for _, c := range d.Commands {
			fmt.Fprintf(&sb, "  %s %s\n", riskLabel(c.Risk), c.Command)
			fmt.Fprintf(&sb, "  %s %s\n", pad("", len(c.Label)+2), gray(c.Description))
		}
	}
	s := rep.Summary
	fmt.Fprintf(&sb, "\n%s: %d safe, %d review, %d admin, %d dangerous\n",
		english.Plural(s.Total, "command", "commands"), s.Safe, s.Moderate, s.Elevated, s.Dangerous)
	return sb.String()
}

func riskLabel(l risk.Level) string {
	label := "[" + l.Label() + "]"
	switch l {
	case risk.Safe:
		return green(label)
	case risk.Moderate:
		return yellow(label)
	default:
		return red(label)
	}
}

// RenderPlanTable renders uninstall plans with the risk of each command.
func RenderPlanTable(plans []advisor.PlanRecord) string {
	if len(plans) == 0 {
		return "No uninstall plans.\n"
	}

	var sb strings.Builder
	for _, p := range plans {
		title := bold(p.Package)
		if p.Fallback {
			title += " " + yellow("(generic fallback)")
		}
		sb.WriteString(title + "\n")
		for i, c := range p.Commands {
			cc := risk.Classify(c)
			fmt.Fprintf(&sb, "  %d. %s %s\n", i+1, riskLabel(cc.Risk), c)
		}
		if p.VerifyCommand != "" {
			fmt.Fprintf(&sb, "  verify: %s\n", gray(p.VerifyCommand))
		}
		for _, w := range p.Warnings {
			fmt.Fprintf(&sb, "  %s %s\n", yellow("!"), w)
		}
	}
	return sb.String()
}

// RenderRestorePointTable renders restore points, newest first.
func RenderRestorePointTable(points []*store.RestorePoint) string {
	if len(points) == 0 {
		return "No restore points found.\n"
	}

	sorted := make([]*store.RestorePoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "%-5s %-17s %-10s %s\n", "ID", "Created", "Packages", "Reason")
	sb.WriteString(rule(80))
	for _, rp := range sorted {
		fmt.Fprintf(&sb, "%-5d %-17s %-10d %s\n",
			rp.ID,
			formatRelativeTime(rp.CreatedAt),
			rp.PackageCount,
			truncate(rp.Reason, 40))
	}
	return sb.String()
}

// RenderStats renders aggregate state counts.
func RenderStats(s state.Stats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-18s %s\n", "Tracked packages", humanize.Comma(int64(s.TotalPackages)))
	fmt.Fprintf(&sb, "%-18s %d\n", "Outdated", s.Outdated)
	fmt.Fprintf(&sb, "%-18s %d\n", "Broken", s.Broken)
	fmt.Fprintf(&sb, "%-18s %s\n", "History entries", humanize.Comma(int64(s.HistoryEntries)))
	fmt.Fprintf(&sb, "%-18s %d\n", "Failures", s.Failures)
	fmt.Fprintf(&sb, "%-18s %s\n", "Last scan", formatRelativeTime(s.LastScan))
	return sb.String()
}

// formatRelativeTime converts a timestamp to relative time ("3 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	if time.Since(t) < time.Minute {
		return "just now"
	}
	return humanize.Time(t)
}

// truncate shortens s to maxLen runes, adding "..." when cut.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// pad right-pads s to width before color codes are applied.
func pad(s string, width int) string {
	if n := len([]rune(s)); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}
