package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/spaghetti/internal/ir"
	"github.com/roach88/spaghetti/internal/scc"
)

// CycleWarning reports processors whose links form a cycle.
//
// Cycles are warnings, not errors: the scheduler terminates on them and
// reports the members as pending, and a cycle may be broken later by an edit.
type CycleWarning struct {
	Path    []string `json:"path"`    // e.g. ["B", "C", "B"]
	Message string   `json:"message"` // human-readable description
	Level   string   `json:"level"`   // "warning"
}

// AnalyzeCycles finds link cycles among a definition's processors,
// including inside groups. Inner processors are named "group/inner".
//
// It builds the producer → consumer graph from the links, finds strongly
// connected components with Tarjan's algorithm, and reports every component
// with more than one member or a self link. A DAG returns an empty list.
func AnalyzeCycles(spec *ir.GraphSpec) []CycleWarning {
	warnings := []CycleWarning{}
	analyze(spec, "", &warnings)
	return warnings
}

func analyze(spec *ir.GraphSpec, prefix string, warnings *[]CycleWarning) {
	deps, order := buildLinkGraph(spec, prefix)
	for _, comp := range scc.Cycles(deps, order) {
		*warnings = append(*warnings, cycleWarning(deps, orderMembers(comp, order)))
	}
	for i := range spec.Processors {
		p := &spec.Processors[i]
		if p.Group != nil {
			analyze(p.Group, prefix+p.Name+"/", warnings)
		}
	}
}

// buildLinkGraph maps each processor to the processors its outputs feed.
// Links whose endpoints do not parse are skipped; Validate reports them.
func buildLinkGraph(spec *ir.GraphSpec, prefix string) (scc.Graph[string], []string) {
	g := make(scc.Graph[string])
	order := make([]string, 0, len(spec.Processors))
	for _, p := range spec.Processors {
		name := prefix + p.Name
		order = append(order, name)
		g[name] = nil
	}
	for _, l := range spec.Links {
		from, err := ir.ParseEndpoint(l.From)
		if err != nil {
			continue
		}
		to, err := ir.ParseEndpoint(l.To)
		if err != nil {
			continue
		}
		src, dst := prefix+from.Processor, prefix+to.Processor
		if _, ok := g[src]; !ok {
			continue
		}
		g[src] = append(g[src], dst)
	}
	return g, order
}

// orderMembers sorts a component by declaration order so paths are stable.
func orderMembers(comp, order []string) []string {
	in := make(map[string]bool, len(comp))
	for _, n := range comp {
		in[n] = true
	}
	out := make([]string, 0, len(comp))
	for _, n := range order {
		if in[n] {
			out = append(out, n)
		}
	}
	return out
}

func cycleWarning(g scc.Graph[string], members []string) CycleWarning {
	path := scc.Path(g, members)
	if len(members) == 1 {
		return CycleWarning{
			Path:    path,
			Message: fmt.Sprintf("Processor feeds itself: %s → %s", members[0], members[0]),
			Level:   "warning",
		}
	}
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Link cycle detected: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}
