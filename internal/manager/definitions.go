package manager

import (
	"regexp"
	"sort"
	"strings"
)

// Definition holds the command templates for one package manager.
// Templates use {name} and {version} placeholders.
type Definition struct {
	Name           string
	ListCommand    string
	UpgradeCommand string
	// UpgradeExitCodes lists non-zero exit codes that still carry a valid
	// upgrade list (dnf check-update exits 100 when updates exist).
	UpgradeExitCodes []int
	Install          string
	InstallVersion   string
	Remove           string
	Query            string
	// Windows marks managers that only exist on Windows.
	Windows bool
}

var definitions = map[string]Definition{
	"apt": {
		Name:           "apt",
		ListCommand:    "dpkg -l",
		UpgradeCommand: "apt list --upgradable",
		Install:        "sudo apt-get install -y {name}",
		InstallVersion: "sudo apt-get install -y {name}={version}",
		Remove:         "sudo apt-get remove -y {name}",
		Query:          "dpkg -s {name}",
	},
	"yum": {
		Name:             "yum",
		ListCommand:      "rpm -qa",
		UpgradeCommand:   "yum check-update -q",
		UpgradeExitCodes: []int{100},
		Install:          "sudo yum install -y {name}",
		InstallVersion:   "sudo yum install -y {name}-{version}",
		Remove:           "sudo yum remove -y {name}",
		Query:            "rpm -q {name}",
	},
	"dnf": {
		Name:             "dnf",
		ListCommand:      "rpm -qa",
		UpgradeCommand:   "dnf check-update -q",
		UpgradeExitCodes: []int{100},
		Install:          "sudo dnf install -y {name}",
		InstallVersion:   "sudo dnf install -y {name}-{version}",
		Remove:           "sudo dnf remove -y {name}",
		Query:            "rpm -q {name}",
	},
	"zypper": {
		Name:           "zypper",
		ListCommand:    "rpm -qa",
		UpgradeCommand: "zypper --non-interactive list-updates",
		Install:        "sudo zypper --non-interactive install {name}",
		InstallVersion: "sudo zypper --non-interactive install {name}={version}",
		Remove:         "sudo zypper --non-interactive remove {name}",
		Query:          "rpm -q {name}",
	},
	"pacman": {
		Name:           "pacman",
		ListCommand:    "pacman -Q",
		UpgradeCommand: "pacman -Qu",
		// pacman -Qu exits 1 when nothing is out of date.
		UpgradeExitCodes: []int{1},
		Install:          "sudo pacman -S --noconfirm {name}",
		Remove:           "sudo pacman -R --noconfirm {name}",
		Query:            "pacman -Q {name}",
	},
	"snap": {
		Name:           "snap",
		ListCommand:    "snap list",
		UpgradeCommand: "snap refresh --list",
		Install:        "sudo snap install {name}",
		Remove:         "sudo snap remove {name}",
		Query:          "snap list {name}",
	},
	"brew": {
		Name:           "brew",
		ListCommand:    "brew list --versions",
		UpgradeCommand: "brew outdated --verbose",
		Install:        "brew install {name}",
		InstallVersion: "brew install {name}@{version}",
		Remove:         "brew uninstall {name}",
		Query:          "brew list --versions {name}",
	},
	"winget": {
		Name:           "winget",
		ListCommand:    "winget list --accept-source-agreements",
		UpgradeCommand: "winget upgrade --accept-source-agreements",
		Install:        "winget install -e --id {name} --accept-package-agreements --accept-source-agreements",
		InstallVersion: "winget install -e --id {name} --version {version} --accept-package-agreements --accept-source-agreements",
		Remove:         "winget uninstall -e --id {name}",
		Query:          "winget list -e --id {name}",
		Windows:        true,
	},
	"choco": {
		Name:           "choco",
		ListCommand:    "choco list",
		UpgradeCommand: "choco outdated -r",
		Install:        "choco install {name} -y",
		InstallVersion: "choco install {name} --version {version} -y",
		Remove:         "choco uninstall {name} -y",
		Query:          "choco list --exact {name}",
		Windows:        true,
	},
	"scoop": {
		Name:           "scoop",
		ListCommand:    "scoop list",
		UpgradeCommand: "scoop status",
		Install:        "scoop install {name}",
		InstallVersion: "scoop install {name}@{version}",
		Remove:         "scoop uninstall {name}",
		Query:          "scoop list {name}",
		Windows:        true,
	},
}

// Lookup returns the definition for a manager name.
func Lookup(name string) (Definition, bool) {
	d, ok := definitions[strings.ToLower(name)]
	return d, ok
}

// Names returns every supported manager, sorted.
func Names() []string {
	names := make([]string, 0, len(definitions))
	for n := range definitions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// InstallCommand renders the install command. When version is set and the
// manager supports pinning, the versioned form is used.
func (d Definition) InstallCommand(name, version string) string {
	if version != "" && d.InstallVersion != "" {
		return render(d.InstallVersion, name, version)
	}
	return render(d.Install, name, "")
}

// RemoveCommand renders the remove command.
func (d Definition) RemoveCommand(name string) string {
	return render(d.Remove, name, "")
}

// QueryCommand renders the command that succeeds only while name is installed.
func (d Definition) QueryCommand(name string) string {
	return render(d.Query, name, "")
}

// AcceptsUpgradeExit reports whether an upgrade-list exit code still means
// the output is usable.
func (d Definition) AcceptsUpgradeExit(code int) bool {
	if code == 0 {
		return true
	}
	for _, c := range d.UpgradeExitCodes {
		if c == code {
			return true
		}
	}
	return false
}

var plainArg = regexp.MustCompile(`^[A-Za-z0-9@%+=:,./_-]+$`)

func render(tmpl, name, version string) string {
	return strings.NewReplacer("{name}", quote(name), "{version}", quote(version)).Replace(tmpl)
}

// quote single-quotes an argument unless it is made of plain characters.
func quote(arg string) string {
	if arg == "" || plainArg.MatchString(arg) {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}
