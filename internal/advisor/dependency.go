// Package advisor defines the contract with the external advisory service
// that turns a free-text request into dependencies with candidate install
// commands, and validates what comes back before anything is executed.
package advisor

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Category classifies a dependency.
type Category string

const (
	CategoryRuntime   Category = "runtime"
	CategoryLanguage  Category = "language"
	CategoryLibrary   Category = "library"
	CategoryFramework Category = "framework"
	CategoryDatabase  Category = "database"
	CategoryTool      Category = "tool"
	CategoryService   Category = "service"
	CategoryOther     Category = "other"
)

var validCategories = map[Category]bool{
	CategoryRuntime:   true,
	CategoryLanguage:  true,
	CategoryLibrary:   true,
	CategoryFramework: true,
	CategoryDatabase:  true,
	CategoryTool:      true,
	CategoryService:   true,
	CategoryOther:     true,
}

// ErrInvalidDependency is wrapped by every validation failure.
var ErrInvalidDependency = errors.New("invalid dependency")

// Dependency is one installable unit with alternative install commands.
type Dependency struct {
	Name            string   `json:"name" yaml:"name"`
	Category        Category `json:"category" yaml:"category"`
	Description     string   `json:"description,omitempty" yaml:"description,omitempty"`
	Version         string   `json:"version,omitempty" yaml:"version,omitempty"`
	InstallCommands []string `json:"install_commands" yaml:"install_commands"`
	VerifyCommand   string   `json:"verify_command,omitempty" yaml:"verify_command,omitempty"`
	ExpectedPattern string   `json:"expected_pattern,omitempty" yaml:"expected_pattern,omitempty"`
}

// Validate rejects records that must not reach the installer. An empty
// category is normalized to CategoryOther.
func (d *Dependency) Validate() error {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDependency)
	}
	if d.Category == "" {
		d.Category = CategoryOther
	}
	d.Category = Category(strings.ToLower(string(d.Category)))
	if !validCategories[d.Category] {
		return fmt.Errorf("%w: %s: unknown category %q", ErrInvalidDependency, d.Name, d.Category)
	}

	cmds := d.InstallCommands[:0]
	for _, c := range d.InstallCommands {
		if c = strings.TrimSpace(c); c != "" {
			cmds = append(cmds, c)
		}
	}
	d.InstallCommands = cmds
	if len(d.InstallCommands) == 0 {
		return fmt.Errorf("%w: %s: no install commands", ErrInvalidDependency, d.Name)
	}

	if d.ExpectedPattern != "" {
		if _, err := regexp.Compile("(?i)" + d.ExpectedPattern); err != nil {
			return fmt.Errorf("%w: %s: bad expected pattern: %v", ErrInvalidDependency, d.Name, err)
		}
	}
	return nil
}

// ValidateAll validates every dependency, stopping at the first failure.
func ValidateAll(deps []Dependency) error {
	for i := range deps {
		if err := deps[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
