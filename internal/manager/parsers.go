package manager

import (
	"regexp"
	"strings"
)

var listParsers = []Parser{
	&ColumnParser{forManager: "winget"},
	&WhitespaceRunParser{forManager: "scoop", SkipThroughDashes: true, Banner: regexp.MustCompile(`(?i)^installed apps`)},
	&WhitespaceRunParser{forManager: "snap", Skip: 1},
	&SpacePairParser{forManager: "brew"},
	&SpacePairParser{forManager: "pacman"},
	&SpacePairParser{forManager: "choco", Banner: regexp.MustCompile(`(?i)^(chocolatey v\d|\d+\s+packages?\s+installed|did you know)`)},
	&StatusFlagParser{forManager: "apt", Installed: []string{"ii", "hi"}},
	&ConcatenatedParser{forManager: "yum"},
	&ConcatenatedParser{forManager: "dnf"},
	&ConcatenatedParser{forManager: "zypper"},
}

func splitLines(raw string) []string {
	return strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
}

// ColumnParser reads Name/Id/Version[/Match][/Source] tables whose column
// positions are given by a header row.
type ColumnParser struct {
	forManager
}

func (p *ColumnParser) Parse(raw string) []Package {
	lines := splitLines(raw)
	layout, ok := findColumnLayout(lines)
	if !ok {
		return nil
	}

	var pkgs []Package
	for _, f := range layout.rows(lines) {
		src := f["Source"]
		if src == "" {
			src = string(p.forManager)
		}
		pkgs = append(pkgs, Package{
			Name:      f["Name"],
			PackageID: f["Id"],
			Version:   f["Version"],
			Source:    src,
		})
	}
	return pkgs
}

// WhitespaceRunParser reads tables whose columns are separated by two or
// more spaces. The first column is the name and the second the version.
type WhitespaceRunParser struct {
	forManager
	// Skip is the number of leading lines to ignore.
	Skip int
	// SkipThroughDashes ignores everything up to and including the first
	// dashed separator line.
	SkipThroughDashes bool
	Banner            *regexp.Regexp
}

func (p *WhitespaceRunParser) Parse(raw string) []Package {
	lines := splitLines(raw)
	if p.Skip < len(lines) {
		lines = lines[p.Skip:]
	} else {
		return nil
	}
	if p.SkipThroughDashes {
		for i, line := range lines {
			if dashedLine.MatchString(line) {
				lines = lines[i+1:]
				break
			}
		}
	}

	var pkgs []Package
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || dashedLine.MatchString(line) {
			continue
		}
		if p.Banner != nil && p.Banner.MatchString(line) {
			continue
		}
		tokens := multiSpace.Split(line, -1)
		pkg := Package{Name: tokens[0], Source: string(p.forManager)}
		if len(tokens) > 1 {
			pkg.Version = tokens[1]
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs
}

// SpacePairParser reads "name version [version...]" lines. When several
// versions are listed the last one wins.
type SpacePairParser struct {
	forManager
	Banner *regexp.Regexp
}

func (p *SpacePairParser) Parse(raw string) []Package {
	var pkgs []Package
	for _, line := range splitLines(raw) {
		line = strings.TrimSpace(line)
		if p.Banner != nil && p.Banner.MatchString(line) {
			continue
		}
		tokens := strings.Fields(line)
		if len(tokens) < 2 {
			continue
		}
		pkgs = append(pkgs, Package{
			Name:    tokens[0],
			Version: tokens[len(tokens)-1],
			Source:  string(p.forManager),
		})
	}
	return pkgs
}

// StatusFlagParser reads rows prefixed with a status code, keeping only the
// rows whose code marks the package installed.
type StatusFlagParser struct {
	forManager
	Installed []string
}

var archQualifier = regexp.MustCompile(`:[a-z0-9_]+$`)

func (p *StatusFlagParser) Parse(raw string) []Package {
	var pkgs []Package
	for _, line := range splitLines(raw) {
		tokens := strings.Fields(line)
		if len(tokens) < 3 || !p.installed(tokens[0]) {
			continue
		}
		pkgs = append(pkgs, Package{
			Name:    archQualifier.ReplaceAllString(tokens[1], ""),
			Version: tokens[2],
			Source:  string(p.forManager),
		})
	}
	return pkgs
}

func (p *StatusFlagParser) installed(flag string) bool {
	for _, f := range p.Installed {
		if flag == f {
			return true
		}
	}
	return false
}

// ConcatenatedParser reads single-token name-version-release.arch strings.
type ConcatenatedParser struct {
	forManager
}

var (
	rpmArch    = regexp.MustCompile(`\.(x86_64|i[3-6]86|aarch64|arm64|armv7hl|ppc64le|s390x|noarch|src)$`)
	rpmNameVer = regexp.MustCompile(`^(.+)-(\d[^-]*-[^-]+)$`)
)

func (p *ConcatenatedParser) Parse(raw string) []Package {
	var pkgs []Package
	for _, line := range splitLines(raw) {
		token := strings.TrimSpace(line)
		if token == "" || strings.ContainsAny(token, " \t") {
			continue
		}
		m := rpmNameVer.FindStringSubmatch(rpmArch.ReplaceAllString(token, ""))
		if m == nil {
			continue
		}
		pkgs = append(pkgs, Package{
			Name:    m[1],
			Version: m[2],
			Source:  string(p.forManager),
		})
	}
	return pkgs
}
