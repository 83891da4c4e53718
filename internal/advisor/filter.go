package advisor

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/blackwell-systems/envstate/internal/state"
)

// ErrNoViableCommands is returned when filtering leaves a dependency with
// nothing to run on this machine.
var ErrNoViableCommands = errors.New("no install command is compatible with this system")

// managerTools maps an active package manager to the command names that
// drive it.
var managerTools = map[string][]string{
	"apt":    {"apt", "apt-get", "aptitude", "dpkg"},
	"yum":    {"yum", "rpm"},
	"dnf":    {"dnf", "yum", "rpm"},
	"zypper": {"zypper", "rpm"},
	"pacman": {"pacman"},
	"snap":   {"snap"},
	"brew":   {"brew"},
	"choco":  {"choco", "cinst"},
	"winget": {"winget"},
	"scoop":  {"scoop"},
}

// linuxShared are OS managers commonly present next to the distro manager.
var linuxShared = map[string]bool{"snap": true, "flatpak": true}

var (
	unixOnly    = regexp.MustCompile(`(?i)(\|\s*(sudo\s+)?(ba|z)?sh\b|\.sh(\s|$)|^\s*(sudo\s+)?(chmod|ln|export)\s)`)
	windowsOnly = regexp.MustCompile(`(?i)(\biex\b|\bInvoke-\w+|\bpowershell(\.exe)?\b|\.ps1\b|\.exe\b|\bsetx\b|\bmsiexec\b)`)
)

// FilterForPlatform drops commands that cannot run on sys: commands driving
// a different OS package manager, and shell syntax belonging to the other
// platform family. It fails when any dependency is left without commands.
func FilterForPlatform(deps []Dependency, sys state.SystemDescriptor) ([]Dependency, error) {
	out := make([]Dependency, 0, len(deps))
	for _, d := range deps {
		kept := make([]string, 0, len(d.InstallCommands))
		for _, c := range d.InstallCommands {
			if commandFits(c, sys) {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			return nil, fmt.Errorf("%s: %w", d.Name, ErrNoViableCommands)
		}
		d.InstallCommands = kept
		out = append(out, d)
	}
	return out, nil
}

func commandFits(command string, sys state.SystemDescriptor) bool {
	windows := sys.OS == "windows"
	if windows && unixOnly.MatchString(command) {
		return false
	}
	if !windows && windowsOnly.MatchString(command) {
		return false
	}

	tool := leadingTool(command)
	owner := toolOwner(tool)
	if owner == "" {
		return true
	}
	for _, t := range managerTools[sys.PackageManager] {
		if t == tool {
			return true
		}
	}
	return sys.OS == "linux" && linuxShared[owner]
}

// leadingTool returns the executable name of a command, skipping a
// privilege prefix and environment assignments.
func leadingTool(command string) string {
	for _, f := range strings.Fields(command) {
		if f == "sudo" || f == "doas" || strings.HasPrefix(f, "-") || strings.Contains(f, "=") {
			continue
		}
		f = strings.ToLower(f)
		return strings.TrimSuffix(f, ".exe")
	}
	return ""
}

func toolOwner(tool string) string {
	if tool == "flatpak" {
		return "flatpak"
	}
	for mgr, tools := range managerTools {
		for _, t := range tools {
			if t == tool {
				return mgr
			}
		}
	}
	return ""
}
