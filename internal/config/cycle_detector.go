package config

import "sort"

// producers maps each dataset type to the enabled stages writing it.
func producers(stages []Stage) map[string][]string {
	out := make(map[string][]string)
	for _, stage := range stages {
		if !stage.Enabled {
			continue
		}
		for _, ds := range stage.Outputs {
			out[ds] = append(out[ds], stage.Name)
		}
	}
	return out
}

// detectCycle returns the stages participating in a dataset cycle, or nil if
// no cycle exists. A stage depends on every stage producing one of its inputs.
func detectCycle(stages []Stage) []string {
	produced := producers(stages)

	graph := make(map[string][]string, len(stages))
	for _, stage := range stages {
		if !stage.Enabled {
			continue
		}
		var deps []string
		for _, in := range stage.Inputs {
			deps = append(deps, produced[in]...)
		}
		graph[stage.Name] = deps
	}

	visiting := make(map[string]bool, len(graph))
	visited := make(map[string]bool, len(graph))
	var stack []string

	var cycle []string
	var dfs func(string) bool
	dfs = func(node string) bool {
		visiting[node] = true
		stack = append(stack, node)

		for _, dep := range graph[node] {
			if visited[dep] {
				continue
			}
			if visiting[dep] {
				if idx := indexOf(stack, dep); idx >= 0 {
					cycle = append([]string{}, stack[idx:]...)
					cycle = append(cycle, dep)
				}
				return true
			}
			if dfs(dep) {
				return true
			}
		}

		visiting[node] = false
		visited[node] = true
		stack = stack[:len(stack)-1]
		return false
	}

	names := make([]string, 0, len(graph))
	for name := range graph {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if visited[name] {
			continue
		}
		if dfs(name) {
			break
		}
	}

	return cycle
}

func indexOf(slice []string, target string) int {
	for i, v := range slice {
		if v == target {
			return i
		}
	}
	return -1
}
