package transform

import (
	"fmt"
	"slices"
	"strings"

	"github.com/alexisbeaulieu97/stagehand/internal/config"
	"github.com/alexisbeaulieu97/stagehand/internal/datadict"
	stagehanderrors "github.com/alexisbeaulieu97/stagehand/pkg/errors"
)

// Selection narrows what a run produces. The zero value runs whatever is
// needed for every output dataset.
type Selection struct {
	Stages  []string
	Outputs []string
}

// Plan is the ordered list of stages a run drives.
type Plan struct {
	Levels  [][]string
	Skipped []string
}

// Stages flattens the levels into run order.
func (p *Plan) Stages() []string {
	var out []string
	for _, level := range p.Levels {
		out = append(out, level...)
	}
	return out
}

// GeneratePlan selects the stages needed for the requested outputs, walking
// back from each output to a stage producing it until only job inputs remain.
func GeneratePlan(graph *Graph, cfg *config.Config, sel Selection) (*Plan, error) {
	if graph == nil || cfg == nil {
		return nil, fmt.Errorf("graph and config are required")
	}

	var needed map[string]bool
	var err error
	if len(sel.Stages) > 0 {
		needed, err = explicitStages(graph, sel.Stages)
	} else {
		needed, err = neededStages(graph, cfg, sel.Outputs)
	}
	if err != nil {
		return nil, err
	}

	plan := &Plan{}
	for _, level := range graph.Levels {
		var kept []string
		for _, name := range level {
			if needed[name] {
				kept = append(kept, name)
			} else {
				plan.Skipped = append(plan.Skipped, name)
			}
		}
		if len(kept) > 0 {
			plan.Levels = append(plan.Levels, kept)
		}
	}
	return plan, nil
}

func explicitStages(graph *Graph, names []string) (map[string]bool, error) {
	needed := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := graph.Nodes[name]; !ok {
			return nil, stagehanderrors.NewGraphError(name, fmt.Sprintf("stage %q is not defined or not enabled", name))
		}
		needed[name] = true
	}
	return needed, nil
}

func neededStages(graph *Graph, cfg *config.Config, outputs []string) (map[string]bool, error) {
	if len(outputs) == 0 {
		for _, ds := range cfg.Datasets {
			if ds.IO == string(datadict.IOOutput) {
				outputs = append(outputs, ds.Type)
			}
		}
	}

	needed := make(map[string]bool)
	seen := make(map[string]bool)
	queue := append([]string(nil), outputs...)
	for len(queue) > 0 {
		ds := queue[0]
		queue = queue[1:]
		if seen[ds] {
			continue
		}
		seen[ds] = true

		decl, declared := cfg.Dataset(ds)
		if !declared {
			return nil, stagehanderrors.NewGraphError("", fmt.Sprintf("requested dataset %q is not declared", ds))
		}
		if decl.IO == string(datadict.IOInput) {
			continue
		}
		producers := graph.Producers[ds]
		if len(producers) == 0 {
			if len(decl.Files) > 0 && !slices.Contains(outputs, ds) {
				continue
			}
			return nil, stagehanderrors.NewGraphError("", fmt.Sprintf("no enabled stage produces dataset %q", ds))
		}
		for _, name := range producers {
			if needed[name] {
				continue
			}
			needed[name] = true
			queue = append(queue, graph.Nodes[name].Stage.Inputs...)
		}
	}
	return needed, nil
}

// String renders a human readable summary of the plan.
func (p *Plan) String() string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	for i, level := range p.Levels {
		fmt.Fprintf(&b, "Level %d (%d stages): %s\n", i, len(level), strings.Join(level, ", "))
	}
	if len(p.Skipped) > 0 {
		fmt.Fprintf(&b, "Skipped: %s\n", strings.Join(p.Skipped, ", "))
	}
	return b.String()
}
