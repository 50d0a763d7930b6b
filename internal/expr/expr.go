// Package expr implements the small expression language used for
// dependency refs and templated inputs: `::node::attr` path references and
// `get_attribute: [HOST, os]` list form. Evaluation is lazy — a Result
// wrapper defers graph resolution until .Value() is called — so templated
// inputs can be rendered without materializing sensitive values until
// something actually needs them.
package expr

import (
	"fmt"
	"strings"

	"github.com/giantswarm/muster-ensemble/internal/instance"
	"github.com/giantswarm/muster-ensemble/pkg/vault"
)

// Resolver looks up an instance by name and a special-form keyword
// (HOST, SELF, SOURCE, TARGET) relative to the instance currently being
// evaluated. GraphResolver is the production implementation.
type Resolver interface {
	ResolveInstance(nameOrKeyword string) (*instance.Instance, bool)
}

// Result is a lazily evaluated expression outcome. Value() performs the
// actual graph lookup; constructing a Result never touches the graph.
type Result struct {
	resolver Resolver
	ref      string
	resolved bool
	value    any
	err      error
}

// New builds a lazy Result for a ref expression against a resolver. No
// evaluation happens until Value() is called.
func New(resolver Resolver, ref string) *Result {
	return &Result{resolver: resolver, ref: ref}
}

// Value resolves (once, then memoizes) the expression and returns it. A
// sensitive attribute's value is returned wrapped as vault.Tainted.
func (r *Result) Value() (any, error) {
	if r.resolved {
		return r.value, r.err
	}
	r.resolved = true
	r.value, r.err = evaluate(r.resolver, r.ref)
	return r.value, r.err
}

// Ref returns the original, unevaluated expression string.
func (r *Result) Ref() string { return r.ref }

// evaluate dispatches on the two supported surface syntaxes: the
// `::node::attr` path form and the `get_attribute: [ENTITY, attr...]` list
// form (passed in already split by the manifest/topology loader as
// "get_attribute:ENTITY:attr...").
func evaluate(resolver Resolver, ref string) (any, error) {
	switch {
	case strings.HasPrefix(ref, "::"):
		return evaluatePath(resolver, ref)
	case strings.HasPrefix(ref, "get_attribute:"):
		return evaluateGetAttribute(resolver, ref)
	default:
		return nil, fmt.Errorf("expr: unrecognized reference syntax %q", ref)
	}
}

// evaluatePath resolves `::node::attr` or `::node::nested::attr`.
func evaluatePath(resolver Resolver, ref string) (any, error) {
	parts := strings.Split(strings.TrimPrefix(ref, "::"), "::")
	if len(parts) < 2 {
		return nil, fmt.Errorf("expr: malformed path reference %q", ref)
	}
	nodeName, attrPath := parts[0], parts[1:]
	return resolveAttr(resolver, nodeName, attrPath)
}

// evaluateGetAttribute resolves the `get_attribute: [ENTITY, a, b, ...]`
// list form.
func evaluateGetAttribute(resolver Resolver, ref string) (any, error) {
	parts := strings.Split(strings.TrimPrefix(ref, "get_attribute:"), ":")
	if len(parts) < 2 {
		return nil, fmt.Errorf("expr: malformed get_attribute reference %q", ref)
	}
	return resolveAttr(resolver, parts[0], parts[1:])
}

func resolveAttr(resolver Resolver, nodeName string, attrPath []string) (any, error) {
	target, ok := resolver.ResolveInstance(nodeName)
	if !ok {
		return nil, fmt.Errorf("expr: no such instance or keyword %q", nodeName)
	}
	if len(attrPath) == 0 {
		return nil, fmt.Errorf("expr: missing attribute name in reference to %q", nodeName)
	}

	cur, ok := target.GetAttribute(attrPath[0])
	if !ok {
		return nil, fmt.Errorf("expr: instance %q has no attribute %q", target.Name, attrPath[0])
	}
	for _, key := range attrPath[1:] {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expr: cannot index non-map value at %q", key)
		}
		cur, ok = m[key]
		if !ok {
			return nil, fmt.Errorf("expr: no nested key %q", key)
		}
	}
	return cur, nil
}

// Taint marks a raw value as sensitive; the manifest/attribute layer calls
// this when a template or topology marks an attribute/input as a secret.
func Taint(v any) any {
	if s, ok := v.(string); ok {
		return vault.Tainted{Value: s}
	}
	return v
}
