// Package risk tags shell commands with one of four ordered risk tiers
// before they are handed to the installer.
package risk

import (
	"fmt"
	"regexp"
	"strings"
)

// Level is a risk tier. Higher values are riskier.
type Level int

const (
	Safe Level = iota
	Moderate
	Elevated
	Dangerous
)

var levelNames = map[Level]string{
	Safe:      "safe",
	Moderate:  "moderate",
	Elevated:  "elevated",
	Dangerous: "dangerous",
}

func (l Level) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// MarshalText encodes the level as its lower-case name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a lower-case level name.
func (l *Level) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for lvl, name := range levelNames {
		if name == s {
			*l = lvl
			return nil
		}
	}
	return fmt.Errorf("unknown risk level %q", s)
}

// Label is the short tag shown next to a command.
func (l Level) Label() string {
	switch l {
	case Dangerous:
		return "DANGEROUS"
	case Elevated:
		return "ADMIN"
	case Moderate:
		return "REVIEW"
	default:
		return "SAFE"
	}
}

// ClassifiedCommand is a command with its assigned tier.
type ClassifiedCommand struct {
	Command     string `json:"command"`
	Risk        Level  `json:"risk"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

type rule struct {
	pattern     *regexp.Regexp
	description string
}

type tier struct {
	level Level
	rules []rule
}

func r(pattern, description string) rule {
	return rule{pattern: regexp.MustCompile(pattern), description: description}
}

// tiers are checked in this order and the first matching rule wins.
var tiers = []tier{
	{Dangerous, []rule{
		r(`(?i)\brm\s+(-[a-z]*r[a-z]*f?[a-z]*|-[a-z]*f[a-z]*r[a-z]*|--recursive)\s+(--no-preserve-root\s+)?(/|/\*|~|\$HOME)(\s|$)`, "Recursively deletes the root or home directory"),
		r(`(?i)\brm\s+-[a-z]*r[a-z]*\s+--no-preserve-root`, "Recursively deletes the root directory"),
		r(`(?i)\bdd\b.*\bof=/dev/`, "Writes raw data directly to a disk device"),
		r(`(?i)>\s*/dev/(sd|nvme|hd|disk)`, "Overwrites a disk device"),
		r(`(?i)\bmkfs(\.\w+)?\b`, "Formats a filesystem"),
		r(`(?i)(^|[;&|]\s*)format\s+[a-z]:`, "Formats a drive"),
		r(`(?i)\bchmod\s+(-[a-z]+\s+)*0?777\s+/(\s|$)`, "Makes the root directory world-writable"),
		r(`(?i)\b(fdisk|parted|gdisk|sfdisk|diskpart)\b`, "Modifies disk partitions"),
		r(`:\(\)\s*\{\s*:\|:&\s*\};:`, "Fork bomb"),
		r(`(?i)\bRemove-Item\b.*-Recurse.*\s[A-Z]:\\\s*$`, "Recursively deletes a drive root"),
	}},
	{Elevated, []rule{
		r(`(?i)(^|[;&|]\s*)(sudo|doas|runas|gsudo)\b`, "Runs with administrator privileges"),
		r(`(?i)Start-Process\b.*-Verb\s+RunAs`, "Runs with administrator privileges"),
		r(`(?i)(>|\btee\b|\bcp\b|\bmv\b|\bln\b).*\s/(etc|usr|bin|sbin|lib|opt|boot|var/lib)/`, "Writes to a system directory"),
		r(`(?i)C:\\(Windows|Program Files)`, "Writes to a system directory"),
		r(`(?i)\b(systemctl|service|launchctl|sc(\.exe)?)\s+(start|stop|restart|enable|disable|load|unload|config|create|delete|mask)\b`, "Changes system services"),
		r(`(?i)\b(apt|apt-get|yum|dnf|zypper|pacman|snap|choco|winget)\b.*\b(install|remove|purge|erase|upgrade|uninstall)\b`, "Installs or removes system packages"),
		r(`(?i)\bpacman\s+-(S|R|U)`, "Installs or removes system packages"),
		r(`(?i)\bdpkg\s+-(i|r|P)\b`, "Installs or removes system packages"),
		r(`(?i)\brpm\s+-(i|U|e)`, "Installs or removes system packages"),
	}},
	{Moderate, []rule{
		r(`(?i)\bnpm\s+(install|i|add)\b.*(\s-g\b|--global)`, "Installs a global npm package"),
		r(`(?i)\b(pip|pip3|pipx)\s+install\b`, "Installs a Python package"),
		r(`(?i)\bpython3?\s+-m\s+pip\s+install\b`, "Installs a Python package"),
		r(`(?i)\bgem\s+install\b`, "Installs a Ruby gem"),
		r(`(?i)\bcargo\s+install\b`, "Installs a Rust crate"),
		r(`(?i)\bgo\s+install\b`, "Installs a Go binary"),
		r(`(?i)\b(curl|wget)\b.*\|\s*(sudo\s+)?(ba|z)?sh\b`, "Pipes a downloaded script into a shell"),
		r(`(?i)\b(iwr|irm|Invoke-WebRequest|Invoke-RestMethod)\b.*\|\s*iex\b`, "Pipes a downloaded script into PowerShell"),
		r(`(?i)\biex\s*\(`, "Evaluates downloaded PowerShell code"),
		r(`(?i)\b(add-apt-repository|apt-key|rpm\s+--import|brew\s+tap|scoop\s+bucket\s+add|choco\s+source\s+add)\b`, "Adds a package repository or signing key"),
		r(`(?i)\bexport\s+PATH=`, "Modifies PATH"),
		r(`(?i)>>?\s*~?/?\S*\.(bashrc|zshrc|profile|bash_profile|zprofile)\b`, "Modifies a shell profile"),
		r(`(?i)\bsetx\s+PATH\b`, "Modifies PATH"),
		r(`(?i)\bbrew\s+(install|upgrade|reinstall)\b`, "Installs a Homebrew package"),
		r(`(?i)\bscoop\s+install\b`, "Installs a Scoop package"),
	}},
	{Safe, []rule{
		r(`(?i)^[\w.+-]+(\s+-m\s+[\w.]+)?\s+(--version|-v|-V|version)$`, "Reads version information"),
		r(`(?i)^[\w.+-]+\s+(--help|-h)$`, "Shows help text"),
		r(`(?i)^(which|where|where\.exe|type|command\s+-v|Get-Command)\s+[\w.+-]+$`, "Looks up a command"),
		r(`(?i)^python3?\s+-c\s+["']import\s+[\w.]+["']$`, "Checks that a module imports"),
		r(`(?i)^node\s+-e\s+["']require\(['"][\w@/.-]+['"]\)["']$`, "Checks that a module loads"),
		r(`(?i)^(apt|apt-cache|dnf|yum|zypper|brew|choco|winget|scoop|snap|flatpak|npm|pip3?|gem|systemctl)\s+(list|ls|search|show|info|outdated|status)\b`, "Reads package information"),
		r(`(?i)^(dpkg|dpkg-query)\s+(-l|-s|-L|--list|--status)\b`, "Reads package information"),
		r(`(?i)^(rpm\s+-q|pacman\s+-Q)`, "Reads package information"),
		r(`(?i)^(echo|cat|ls|dir|pwd|uname)\b`, "Reads local information"),
	}},
}

// shellOperators marks a command line that chains, pipes, redirects or
// substitutes. Such a line is never safe, whatever its first word is.
var shellOperators = regexp.MustCompile("[;&|<>`\n]|\\$\\(")

const defaultDescription = "Unrecognized command, review before running"

// Classify assigns a tier to one command.
func Classify(command string) ClassifiedCommand {
	cmd := strings.TrimSpace(command)
	for _, t := range tiers {
		if t.level == Safe && shellOperators.MatchString(cmd) {
			continue
		}
		for _, rl := range t.rules {
			if rl.pattern.MatchString(cmd) {
				return ClassifiedCommand{
					Command:     cmd,
					Risk:        t.level,
					Label:       t.level.Label(),
					Description: rl.description,
				}
			}
		}
	}
	return ClassifiedCommand{
		Command:     cmd,
		Risk:        Moderate,
		Label:       Moderate.Label(),
		Description: defaultDescription,
	}
}
