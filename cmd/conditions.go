package cmd

import (
	"github.com/giantswarm/muster-ensemble/internal/expr"
	"github.com/giantswarm/muster-ensemble/internal/instance"
	"github.com/giantswarm/muster-ensemble/internal/topology"
)

// graphConditionEvaluator implements runner.ConditionEvaluator against the
// live instance graph via internal/expr, the same adapter pattern
// graphInputResolver uses for planner.InputResolver: kept in cmd rather
// than internal/runner so the runner package stays independent of
// internal/expr.
type graphConditionEvaluator struct {
	graph *instance.Graph
}

func (e graphConditionEvaluator) Evaluate(self string, cond topology.Condition) (bool, error) {
	resolver := expr.GraphResolver{Graph: e.graph, Self: self}
	value, err := expr.New(resolver, cond.Ref).Value()
	if err != nil {
		return false, err
	}
	if cond.Expected == nil {
		return value != nil, nil
	}
	return valuesEqual(value, cond.Expected), nil
}

// valuesEqual compares two values decoded from YAML/JSON without reflect,
// matching the style of internal/task's own Dependency equality helper.
func valuesEqual(a, b any) bool {
	am, aIsMap := a.(map[string]any)
	bm, bIsMap := b.(map[string]any)
	if aIsMap || bIsMap {
		if !aIsMap || !bIsMap || len(am) != len(bm) {
			return false
		}
		for k, v := range am {
			if ov, ok := bm[k]; !ok || !valuesEqual(v, ov) {
				return false
			}
		}
		return true
	}
	as, aIsSlice := a.([]any)
	bs, bIsSlice := b.([]any)
	if aIsSlice || bIsSlice {
		if !aIsSlice || !bIsSlice || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !valuesEqual(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}
