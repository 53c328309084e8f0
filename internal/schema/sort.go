package schema

import "sort"

// SortByDependencies orders tables so that referenced tables come before the
// tables that reference them. Cycles are broken with a score that prefers
// the table with the fewest unmet dependencies, boosted when it sits on a
// two-table cycle; ties go to the alphabetically last name so the result is
// deterministic.
func SortByDependencies(tables []*Table) []*Table {
	byName := make(map[string]*Table, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}

	sorted := make([]*Table, 0, len(tables))
	processed := make(map[string]bool, len(tables))

	for len(sorted) < len(tables) {
		added := false

		// Pass 1: tables whose dependencies are all placed
		for _, t := range tables {
			if processed[t.Name] {
				continue
			}
			ready := true
			for _, dep := range t.Dependencies {
				if _, known := byName[dep]; known && !processed[dep] && dep != t.Name {
					ready = false
					break
				}
			}
			if ready {
				sorted = append(sorted, t)
				processed[t.Name] = true
				added = true
			}
		}
		if added {
			continue
		}

		// Pass 2: cycle, place the best-scoring remaining table
		var best *Table
		bestScore := 0
		for _, t := range tables {
			if processed[t.Name] {
				continue
			}
			score := 0
			circular := false
			for _, dep := range t.Dependencies {
				if processed[dep] {
					continue
				}
				score -= 100
				if d, ok := byName[dep]; ok && dependsOn(d, t.Name) {
					circular = true
				}
			}
			if circular {
				score += 500
			}
			if best == nil || score > bestScore || (score == bestScore && t.Name > best.Name) {
				best, bestScore = t, score
			}
		}
		sorted = append(sorted, best)
		processed[best.Name] = true
	}
	return sorted
}

func dependsOn(t *Table, name string) bool {
	for _, dep := range t.Dependencies {
		if dep == name {
			return true
		}
	}
	return false
}

// sortedNames returns the keys of m in lexical order.
func sortedNames(m map[string]*Table) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
