package transform

import (
	"fmt"
	"sort"

	"github.com/alexisbeaulieu97/stagehand/internal/config"
	stagehanderrors "github.com/alexisbeaulieu97/stagehand/pkg/errors"
)

// Node is one stage in the dataset flow graph.
type Node struct {
	Name       string
	Stage      *config.Stage
	DependsOn  []*Node
	Dependents []*Node
}

// Graph links stages by the datasets they exchange. Levels group stages
// whose producers all sit in earlier levels.
type Graph struct {
	Nodes     map[string]*Node
	Levels    [][]string
	Producers map[string][]string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{Nodes: make(map[string]*Node), Producers: make(map[string][]string)}
}

// AddNode inserts a stage as a vertex.
func (g *Graph) AddNode(stage *config.Stage) (*Node, error) {
	if stage == nil {
		return nil, stagehanderrors.NewGraphError("", "stage cannot be nil")
	}
	if _, exists := g.Nodes[stage.Name]; exists {
		return nil, stagehanderrors.NewGraphError(stage.Name, fmt.Sprintf("duplicate stage %q", stage.Name))
	}

	node := &Node{Name: stage.Name, Stage: stage}
	g.Nodes[stage.Name] = node
	for _, out := range stage.Outputs {
		g.Producers[out] = append(g.Producers[out], stage.Name)
	}
	return node, nil
}

// AddEdge records that to consumes something from produces.
func (g *Graph) AddEdge(from, to string) error {
	source, ok := g.Nodes[from]
	if !ok {
		return stagehanderrors.NewGraphError(to, fmt.Sprintf("unknown producer %q", from))
	}
	target, ok := g.Nodes[to]
	if !ok {
		return stagehanderrors.NewGraphError(from, fmt.Sprintf("unknown consumer %q", to))
	}
	for _, dep := range target.DependsOn {
		if dep == source {
			return nil
		}
	}
	source.Dependents = append(source.Dependents, target)
	target.DependsOn = append(target.DependsOn, source)
	return nil
}

// TopologicalSort computes the levels using Kahn's algorithm.
func (g *Graph) TopologicalSort() error {
	indegree := make(map[string]int, len(g.Nodes))
	for name := range g.Nodes {
		indegree[name] = 0
	}
	for _, node := range g.Nodes {
		for _, dep := range node.Dependents {
			indegree[dep.Name]++
		}
	}

	var queue []string
	for name, degree := range indegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}

	processed := 0
	var levels [][]string
	for len(queue) > 0 {
		sort.Strings(queue)
		levels = append(levels, append([]string(nil), queue...))

		var next []string
		for _, name := range queue {
			processed++
			for _, dependent := range g.Nodes[name].Dependents {
				indegree[dependent.Name]--
				if indegree[dependent.Name] == 0 {
					next = append(next, dependent.Name)
				}
			}
		}
		queue = next
	}

	if processed != len(g.Nodes) {
		return stagehanderrors.NewGraphError("", "cycle detected while sorting stages")
	}
	g.Levels = levels
	return nil
}

// Order flattens the levels into a run order.
func (g *Graph) Order() []string {
	var out []string
	for _, level := range g.Levels {
		out = append(out, level...)
	}
	return out
}

// BuildGraph constructs the flow graph of the enabled stages.
func BuildGraph(stages []config.Stage) (*Graph, error) {
	graph := NewGraph()
	for i := range stages {
		stage := &stages[i]
		if !stage.Enabled {
			continue
		}
		if _, err := graph.AddNode(stage); err != nil {
			return nil, err
		}
	}

	for _, node := range graph.Nodes {
		for _, in := range node.Stage.Inputs {
			for _, producer := range graph.Producers[in] {
				if err := graph.AddEdge(producer, node.Name); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := graph.TopologicalSort(); err != nil {
		return nil, err
	}
	return graph, nil
}
