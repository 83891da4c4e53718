package manager

import (
	"regexp"
	"strings"
)

var updateParsers = []UpdateParser{
	&columnUpdates{forManager: "winget"},
	&regexUpdates{forManager: "brew", pattern: regexp.MustCompile(`^(\S+)\s+\(([^)]*)\)\s+[<!=]+\s+(\S+)`), name: 1, current: 2, latest: 3},
	&regexUpdates{forManager: "apt", pattern: regexp.MustCompile(`^([^/\s]+)/\S+\s+(\S+)\s+\S+\s+\[upgradable from:\s*([^\]\s]+)\]`), name: 1, current: 3, latest: 2},
	&regexUpdates{forManager: "pacman", pattern: regexp.MustCompile(`^(\S+)\s+(\S+)\s+->\s+(\S+)`), name: 1, current: 2, latest: 3},
	&regexUpdates{forManager: "choco", pattern: regexp.MustCompile(`^([^|\s]+)\|([^|]*)\|([^|]+)\|`), name: 1, current: 2, latest: 3},
	&checkUpdates{forManager: "yum"},
	&checkUpdates{forManager: "dnf"},
	&zypperUpdates{forManager: "zypper"},
	&runUpdates{forManager: "scoop", skipThroughDashes: true, current: 1, latest: 2},
	&runUpdates{forManager: "snap", skip: 1, current: -1, latest: 1},
}

// columnUpdates reads Name/Id/Version/Available tables.
type columnUpdates struct {
	forManager
}

func (p *columnUpdates) ParseUpdates(raw string) []Update {
	lines := splitLines(raw)
	layout, ok := findColumnLayout(lines)
	if !ok {
		return nil
	}
	var out []Update
	for _, f := range layout.rows(lines) {
		if f["Available"] == "" {
			continue
		}
		src := f["Source"]
		if src == "" {
			src = string(p.forManager)
		}
		out = append(out, Update{
			Name:           f["Name"],
			PackageID:      f["Id"],
			CurrentVersion: f["Version"],
			LatestVersion:  f["Available"],
			Source:         src,
		})
	}
	return out
}

// regexUpdates reads one update per line using capture groups.
type regexUpdates struct {
	forManager
	pattern               *regexp.Regexp
	name, current, latest int
}

func (p *regexUpdates) ParseUpdates(raw string) []Update {
	var out []Update
	for _, line := range splitLines(raw) {
		m := p.pattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		current := strings.TrimSpace(m[p.current])
		// brew prints every installed version, "(1.0, 1.1)"; the last is live.
		if i := strings.LastIndex(current, ","); i >= 0 {
			current = strings.TrimSpace(current[i+1:])
		}
		out = append(out, Update{
			Name:           m[p.name],
			CurrentVersion: current,
			LatestVersion:  m[p.latest],
			Source:         string(p.forManager),
		})
	}
	return out
}

// checkUpdates reads yum/dnf check-update output: "name.arch version repo".
// The obsoleting section that may follow is ignored.
type checkUpdates struct {
	forManager
}

func (p *checkUpdates) ParseUpdates(raw string) []Update {
	var out []Update
	for _, line := range splitLines(raw) {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "Obsoleting Packages") {
			break
		}
		tokens := strings.Fields(trimmed)
		if len(tokens) != 3 || strings.HasPrefix(line, " ") {
			continue
		}
		dot := strings.LastIndex(tokens[0], ".")
		if dot <= 0 || !rpmArch.MatchString(tokens[0]) {
			continue
		}
		out = append(out, Update{
			Name:          tokens[0][:dot],
			LatestVersion: tokens[1],
			Source:        string(p.forManager),
		})
	}
	return out
}

// zypperUpdates reads the pipe-separated list-updates table.
type zypperUpdates struct {
	forManager
}

func (p *zypperUpdates) ParseUpdates(raw string) []Update {
	var out []Update
	for _, line := range splitLines(raw) {
		cells := strings.Split(line, "|")
		if len(cells) < 5 || strings.TrimSpace(cells[0]) != "v" {
			continue
		}
		out = append(out, Update{
			Name:           strings.TrimSpace(cells[2]),
			CurrentVersion: strings.TrimSpace(cells[3]),
			LatestVersion:  strings.TrimSpace(cells[4]),
			Source:         string(p.forManager),
		})
	}
	return out
}

// runUpdates reads two-or-more-space tables with the name first. A negative
// current index means the manager does not print the installed version.
type runUpdates struct {
	forManager
	skip              int
	skipThroughDashes bool
	current, latest   int
}

func (p *runUpdates) ParseUpdates(raw string) []Update {
	lines := splitLines(raw)
	if p.skip >= len(lines) {
		return nil
	}
	lines = lines[p.skip:]
	if p.skipThroughDashes {
		found := false
		for i, line := range lines {
			if dashedLine.MatchString(line) {
				lines, found = lines[i+1:], true
				break
			}
		}
		if !found {
			return nil
		}
	}

	var out []Update
	for _, line := range lines {
		tokens := multiSpace.Split(strings.TrimSpace(line), -1)
		if len(tokens) <= p.latest || tokens[0] == "" {
			continue
		}
		u := Update{
			Name:          tokens[0],
			LatestVersion: tokens[p.latest],
			Source:        string(p.forManager),
		}
		if p.current >= 0 {
			u.CurrentVersion = tokens[p.current]
		}
		out = append(out, u)
	}
	return out
}
