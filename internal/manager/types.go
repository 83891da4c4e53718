// Package manager knows how to drive and read each supported package
// manager: the commands to list, upgrade, install, remove and query
// packages, and a parser per manager for the text those commands print.
package manager

// Package is one parsed row of a list command.
type Package struct {
	Name      string
	PackageID string
	Version   string
	Source    string
}

// Update is one parsed row of an upgrade-list command. CurrentVersion is
// empty when the manager does not print it.
type Update struct {
	Name           string `json:"name"`
	PackageID      string `json:"package_id,omitempty"`
	CurrentVersion string `json:"current_version,omitempty"`
	LatestVersion  string `json:"latest_version"`
	Source         string `json:"source"`
}

// Parser turns the raw output of a manager's list command into packages.
// Lines that do not fit the expected shape are skipped.
type Parser interface {
	Matches(manager string) bool
	Parse(raw string) []Package
}

// UpdateParser turns the raw output of a manager's upgrade-list command
// into updates.
type UpdateParser interface {
	Matches(manager string) bool
	ParseUpdates(raw string) []Update
}

// ParserFor returns the list parser registered for manager.
func ParserFor(manager string) (Parser, bool) {
	for _, p := range listParsers {
		if p.Matches(manager) {
			return p, true
		}
	}
	return nil, false
}

// UpdateParserFor returns the upgrade-list parser registered for manager.
func UpdateParserFor(manager string) (UpdateParser, bool) {
	for _, p := range updateParsers {
		if p.Matches(manager) {
			return p, true
		}
	}
	return nil, false
}

// forManager is embedded by parsers bound to a single manager name.
type forManager string

func (f forManager) Matches(manager string) bool { return string(f) == manager }
