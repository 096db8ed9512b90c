// Package warehouse rebuilds the dimensional tables from the staging table by
// truncating and re-running the transformation routines in dependency order.
package warehouse

import (
	"fmt"
	"strings"

	"github.com/climadw/climadw/internal/config"
)

// Step is one transformation: a destination table and the routine that repopulates it.
// DependsOn names the steps whose tables this step's table references.
type Step struct {
	Name      string
	Table     string
	Procedure string
	DependsOn []string
}

// DefaultSteps is the star schema: four dimensions and the temperature fact.
func DefaultSteps() []Step {
	return []Step{
		{Name: "dim_date", Table: "dim.date", Procedure: "load_dim_date"},
		{Name: "dim_country", Table: "dim.country", Procedure: "load_dim_country"},
		{Name: "dim_city", Table: "dim.city", Procedure: "load_dim_city"},
		{Name: "dim_conditions", Table: "dim.conditions", Procedure: "load_dim_conditions"},
		{
			Name:      "fact_temperature",
			Table:     "fact.temperature",
			Procedure: "merge_fact_temperature",
			DependsOn: []string{"dim_date", "dim_country", "dim_city", "dim_conditions"},
		},
	}
}

// StepsFromConfig returns the configured steps, or DefaultSteps when none are configured.
func StepsFromConfig(cfg config.WarehouseConfig) []Step {
	if len(cfg.Steps) == 0 {
		return DefaultSteps()
	}
	steps := make([]Step, len(cfg.Steps))
	for i, s := range cfg.Steps {
		steps[i] = Step{
			Name:      s.Name,
			Table:     s.Table,
			Procedure: s.Procedure,
			DependsOn: append([]string(nil), s.DependsOn...),
		}
	}
	return steps
}

// CycleError indicates the declared dependencies contain a cycle.
type CycleError struct {
	Steps []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle between steps: %s", strings.Join(e.Steps, ", "))
}

// Order sorts steps so every step comes after the steps it depends on.
// Among steps that are ready at the same time, declaration order wins, so
// the result is deterministic.
func Order(steps []Step) ([]Step, error) {
	index := make(map[string]int, len(steps))
	for i, s := range steps {
		if s.Name == "" {
			return nil, fmt.Errorf("step %d has no name", i)
		}
		if _, dup := index[s.Name]; dup {
			return nil, fmt.Errorf("duplicate step %q", s.Name)
		}
		index[s.Name] = i
	}

	inDegree := make([]int, len(steps))
	dependents := make([][]int, len(steps))
	for i, s := range steps {
		for _, dep := range s.DependsOn {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("step %q depends on unknown step %q", s.Name, dep)
			}
			inDegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	// Kahn's algorithm, always taking the earliest declared ready step
	done := make([]bool, len(steps))
	sorted := make([]Step, 0, len(steps))
	for len(sorted) < len(steps) {
		next := -1
		for i := range steps {
			if !done[i] && inDegree[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			var remaining []string
			for i, s := range steps {
				if !done[i] {
					remaining = append(remaining, s.Name)
				}
			}
			return nil, &CycleError{Steps: remaining}
		}

		done[next] = true
		sorted = append(sorted, steps[next])
		for _, d := range dependents[next] {
			inDegree[d]--
		}
	}

	return sorted, nil
}
