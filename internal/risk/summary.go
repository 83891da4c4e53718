package risk

import "github.com/blackwell-systems/envstate/internal/advisor"

// ClassifiedDependency pairs a dependency with its classified commands.
type ClassifiedDependency struct {
	advisor.Dependency
	Commands    []ClassifiedCommand `json:"classified_commands"`
	HighestRisk Level               `json:"highest_risk"`
}

// Summary counts classified commands per tier.
type Summary struct {
	Safe      int `json:"safe"`
	Moderate  int `json:"moderate"`
	Elevated  int `json:"elevated"`
	Dangerous int `json:"dangerous"`
	Total     int `json:"total"`
}

func (s *Summary) add(l Level) {
	switch l {
	case Safe:
		s.Safe++
	case Moderate:
		s.Moderate++
	case Elevated:
		s.Elevated++
	case Dangerous:
		s.Dangerous++
	}
	s.Total++
}

// Report is the result of ClassifyAll.
type Report struct {
	Dependencies []ClassifiedDependency `json:"dependencies"`
	Summary      Summary                `json:"summary"`
}

func (s *Summary) merge(o Summary) {
	s.Safe += o.Safe
	s.Moderate += o.Moderate
	s.Elevated += o.Elevated
	s.Dangerous += o.Dangerous
	s.Total += o.Total
}

// ClassifyCommands classifies a bare list of commands and returns them with
// the highest tier seen and the per-tier counts.
func ClassifyCommands(commands []string) (classified []ClassifiedCommand, highest Level, summary Summary) {
	classified = make([]ClassifiedCommand, 0, len(commands))
	for _, c := range commands {
		cc := Classify(c)
		classified = append(classified, cc)
		if cc.Risk > highest {
			highest = cc.Risk
		}
		summary.add(cc.Risk)
	}
	return classified, highest, summary
}

// ClassifyAll classifies every install command of every dependency. The
// verify command is not counted.
func ClassifyAll(deps []advisor.Dependency) Report {
	rep := Report{Dependencies: make([]ClassifiedDependency, 0, len(deps))}
	for _, d := range deps {
		cmds, highest, s := ClassifyCommands(d.InstallCommands)
		rep.Dependencies = append(rep.Dependencies, ClassifiedDependency{Dependency: d, Commands: cmds, HighestRisk: highest})
		rep.Summary.merge(s)
	}
	return rep
}
