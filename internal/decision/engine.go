// Package decision computes the next action for a requested package from
// the tracked environment state.
package decision

import (
	"fmt"
	"strings"

	"github.com/blackwell-systems/envstate/internal/state"
)

// Action is the computed next step for a package.
type Action string

const (
	ActionInstall Action = "INSTALL"
	ActionSkip    Action = "SKIP"
	ActionUpdate  Action = "UPDATE"
	ActionRepair  Action = "REPAIR"
)

// Decision is the outcome of Evaluate.
type Decision struct {
	Package          string `json:"package"`
	Action           Action `json:"action"`
	Reason           string `json:"reason"`
	CurrentVersion   string `json:"current_version,omitempty"`
	SuggestedVersion string `json:"suggested_version,omitempty"`
	Badge            string `json:"badge"`
}

// Summary tallies decisions for a batch of packages.
type Summary struct {
	Install   int        `json:"install"`
	Update    int        `json:"update"`
	Repair    int        `json:"repair"`
	Skip      int        `json:"skip"`
	Message   string     `json:"message"`
	Decisions []Decision `json:"decisions"`
}

// Lookup is the read side of the state manager.
type Lookup interface {
	Loaded() bool
	Package(name string) (state.PackageRecord, bool)
}

// Engine evaluates packages against a Lookup. It holds no state of its own.
type Engine struct {
	state Lookup
}

// New returns an Engine reading from l.
func New(l Lookup) *Engine {
	return &Engine{state: l}
}

// Evaluate decides what to do with name. The checks run in a fixed order:
// no snapshot, no record, broken, update available, otherwise installed.
func (e *Engine) Evaluate(name string) Decision {
	d := Decision{Package: name}

	if e.state == nil || !e.state.Loaded() {
		d.Action, d.Badge = ActionInstall, "new"
		d.Reason = "No environment state yet; treating as a new installation"
		return d
	}

	rec, ok := e.state.Package(name)
	if !ok {
		d.Action, d.Badge = ActionInstall, "new"
		d.Reason = "Not installed"
		return d
	}

	d.CurrentVersion = rec.Version
	switch {
	case rec.Status == state.StatusBroken:
		d.Action, d.Badge = ActionRepair, "repair"
		d.Reason = "Installed but failing verification"
	case rec.UpdateAvailable:
		d.Action, d.Badge = ActionUpdate, "update"
		d.SuggestedVersion = rec.LatestVersion
		d.Reason = fmt.Sprintf("Update available: %s -> %s", rec.Version, rec.LatestVersion)
	default:
		d.Action, d.Badge = ActionSkip, "installed"
		d.Reason = "Already installed"
		if rec.Version != "" {
			d.Reason = "Already installed (" + rec.Version + ")"
		}
	}
	return d
}

// EvaluateAll evaluates each name in order.
func (e *Engine) EvaluateAll(names []string) []Decision {
	out := make([]Decision, 0, len(names))
	for _, n := range names {
		out = append(out, e.Evaluate(n))
	}
	return out
}

// Summarize evaluates names and tallies the actions.
func (e *Engine) Summarize(names []string) Summary {
	s := Summary{Decisions: e.EvaluateAll(names)}
	for _, d := range s.Decisions {
		switch d.Action {
		case ActionInstall:
			s.Install++
		case ActionUpdate:
			s.Update++
		case ActionRepair:
			s.Repair++
		case ActionSkip:
			s.Skip++
		}
	}

	var parts []string
	if s.Install > 0 {
		parts = append(parts, plural(s.Install, "new installation", "new installations"))
	}
	if s.Update > 0 {
		parts = append(parts, plural(s.Update, "update", "updates"))
	}
	if s.Repair > 0 {
		parts = append(parts, plural(s.Repair, "repair", "repairs"))
	}
	if s.Skip > 0 {
		parts = append(parts, fmt.Sprintf("%d already installed", s.Skip))
	}
	s.Message = strings.Join(parts, ", ")
	if s.Message == "" {
		s.Message = "No actions needed"
	}
	return s
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
