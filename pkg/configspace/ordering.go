package configspace

import (
	"fmt"
	"sort"
	"strings"
)

// orderParameters places every name after the heads of its conditions. It
// runs Kahn-style passes over the sorted names: each pass appends, in
// lexicographic order, every name whose heads were all placed by earlier
// passes. The passes are returned as levels.
func orderParameters(names []string, heads map[string][]string) ([]string, [][]string, error) {
	placed := make(map[string]bool, len(names))
	order := make([]string, 0, len(names))
	levels := make([][]string, 0)

	remaining := append([]string(nil), names...)
	for len(remaining) > 0 {
		level := make([]string, 0)
		next := make([]string, 0, len(remaining))
		for _, name := range remaining {
			if headsPlaced(heads[name], placed) {
				level = append(level, name)
			} else {
				next = append(next, name)
			}
		}

		if len(level) == 0 {
			cycle := findCycle(next, heads)
			return nil, nil, NewDefinitionError(
				fmt.Sprintf("conditions form a cycle: %s", formatCycle(cycle)), nil,
			).WithCode(ErrCodeCycle).WithParameter(cycle[0])
		}

		for _, name := range level {
			placed[name] = true
		}
		order = append(order, level...)
		levels = append(levels, level)
		remaining = next
	}

	return order, levels, nil
}

func headsPlaced(heads []string, placed map[string]bool) bool {
	for _, h := range heads {
		if !placed[h] {
			return false
		}
	}
	return true
}

// findCycle returns a dependency cycle among the unplaceable names. Every
// unplaceable name has a head that is unplaceable too, so walking heads
// from any of them must revisit a name.
func findCycle(stuck []string, heads map[string][]string) []string {
	inStuck := make(map[string]bool, len(stuck))
	for _, name := range stuck {
		inStuck[name] = true
	}

	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	for _, name := range stuck {
		if visited[name] {
			continue
		}
		if cycle := findCycleFrom(name, heads, inStuck, visited, recStack, nil); cycle != nil {
			return cycle
		}
	}
	return stuck
}

func findCycleFrom(name string, heads map[string][]string, inStuck, visited, recStack map[string]bool, path []string) []string {
	visited[name] = true
	recStack[name] = true
	path = append(path, name)

	hs := append([]string(nil), heads[name]...)
	sort.Strings(hs)
	for _, h := range hs {
		if !inStuck[h] {
			continue
		}
		if !visited[h] {
			if cycle := findCycleFrom(h, heads, inStuck, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[h] {
			for i, id := range path {
				if id == h {
					return append(append([]string(nil), path[i:]...), h)
				}
			}
		}
	}

	recStack[name] = false
	return nil
}

func formatCycle(cycle []string) string {
	return strings.Join(cycle, " -> ")
}

// ToDOT renders the condition graph in Graphviz DOT format, one cluster per
// ordering level. Edges point from head to dependent.
func (s *Space) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph ConfigurationSpace {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, names := range s.levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")

		for _, name := range names {
			p := s.params[name]
			sb.WriteString(fmt.Sprintf("    %q [label=\"%s\\n%s\", fillcolor=\"%s\", style=\"filled,rounded\"];\n",
				name, escapeDOT(name), describeDomain(p), kindColor(p.Kind)))
		}

		sb.WriteString("  }\n\n")
	}

	for _, c := range s.conditions {
		sb.WriteString(fmt.Sprintf("  %q -> %q [label=\"%s\"];\n",
			c.Head, c.Dependent, escapeDOT("in {"+strings.Join(c.Values, ",")+"}")))
	}

	sb.WriteString("}\n")
	return sb.String()
}

func describeDomain(p *Parameter) string {
	switch p.Kind {
	case KindCategorical:
		return escapeDOT("{" + strings.Join(p.Choices, ",") + "}")
	case KindInteger, KindReal:
		d := fmt.Sprintf("[%g, %g]", p.Min, p.Max)
		if p.Kind == KindInteger {
			d += " i"
		}
		if p.Log {
			d += " l"
		}
		return d
	default:
		return string(p.Kind)
	}
}

func kindColor(k Kind) string {
	switch k {
	case KindCategorical:
		return "lightblue"
	case KindInteger:
		return "lightgreen"
	case KindReal:
		return "lightyellow"
	default:
		return "white"
	}
}

func escapeDOT(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
