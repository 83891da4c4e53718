// Package uninstall plans and executes package removal.
package uninstall

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blackwell-systems/envstate/internal/advisor"
	"github.com/blackwell-systems/envstate/internal/manager"
	"github.com/blackwell-systems/envstate/internal/state"
)

// FallbackWarning accompanies every generic plan.
const FallbackWarning = "Uninstall plan could not be obtained from the advisory service; review this generic remove command before running it"

// Planner obtains uninstall plans from the advisory service.
type Planner struct {
	service advisor.Service
	logger  *slog.Logger
}

// NewPlanner returns a Planner. service may be nil, in which case every
// plan is the generic fallback.
func NewPlanner(service advisor.Service, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{service: service, logger: logger}
}

// GeneratePlan returns one plan per target, in target order. It never fails:
// when the service errors, returns nothing usable, or omits a package, the
// manager's remove command is used and the plan is flagged as a fallback.
func (p *Planner) GeneratePlan(ctx context.Context, targets []state.PackageRecord, sys state.SystemDescriptor) []advisor.PlanRecord {
	byName := map[string]advisor.PlanRecord{}
	if p.service != nil && len(targets) > 0 {
		plans, err := p.service.UninstallPlan(ctx, targets, sys)
		if err != nil {
			p.logger.Warn("advisory uninstall plan failed, using fallback", "err", err)
		}
		for _, plan := range plans {
			if len(plan.Commands) == 0 {
				continue
			}
			byName[state.Key(plan.Package)] = plan
		}
	}

	out := make([]advisor.PlanRecord, 0, len(targets))
	for _, t := range targets {
		if plan, ok := byName[state.Key(t.Name)]; ok {
			plan.Package = t.Name
			out = append(out, plan)
			continue
		}
		out = append(out, fallbackPlan(t, sys))
	}
	return out
}

func fallbackPlan(t state.PackageRecord, sys state.SystemDescriptor) advisor.PlanRecord {
	plan := advisor.PlanRecord{
		Package:  t.Name,
		Warnings: []string{FallbackWarning},
		Fallback: true,
	}

	def, ok := managerFor(t, sys)
	if !ok || def.Remove == "" {
		plan.Warnings = append(plan.Warnings, fmt.Sprintf("No remove command is known for package manager %q", sys.PackageManager))
		return plan
	}

	name := managedName(t)
	plan.Commands = []string{def.RemoveCommand(name)}
	plan.VerifyCommand = def.QueryCommand(name)
	return plan
}

// managerFor resolves the manager that owns t: its recorded source when
// that is a known manager, otherwise the system manager.
func managerFor(t state.PackageRecord, sys state.SystemDescriptor) (manager.Definition, bool) {
	if def, ok := manager.Lookup(t.Source); ok {
		return def, true
	}
	return manager.Lookup(sys.PackageManager)
}

// managedName is the identifier the manager expects.
func managedName(t state.PackageRecord) string {
	if t.PackageID != "" {
		return t.PackageID
	}
	return t.Name
}
