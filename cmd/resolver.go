package cmd

import (
	"strings"

	"github.com/giantswarm/muster-ensemble/internal/expr"
	"github.com/giantswarm/muster-ensemble/internal/instance"
	"github.com/giantswarm/muster-ensemble/internal/topology"
)

// graphInputResolver implements planner.InputResolver against the live
// instance graph via internal/expr, replacing every `::node::attr` or
// `get_attribute:...` leaf string in an operation's declared inputs with
// its evaluated value before the planner hashes them. Kept in cmd rather
// than internal/planner so the planner package stays independent of
// internal/expr, per its own doc comment.
type graphInputResolver struct {
	graph *instance.Graph
}

func (r graphInputResolver) ResolveInputs(tmpl *topology.Template, spec topology.OperationSpec) (map[string]any, error) {
	resolver := expr.GraphResolver{Graph: r.graph, Self: tmpl.Name}
	resolved, err := resolveValue(resolver, spec.Inputs)
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return nil, nil
	}
	return resolved.(map[string]any), nil
}

func resolveValue(resolver expr.Resolver, v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			rv, err := resolveValue(resolver, vv)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			rv, err := resolveValue(resolver, vv)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	case string:
		if looksLikeExprRef(val) {
			return expr.New(resolver, val).Value()
		}
		return val, nil
	default:
		return val, nil
	}
}

func looksLikeExprRef(s string) bool {
	return strings.HasPrefix(s, "::") || strings.HasPrefix(s, "get_attribute:")
}
