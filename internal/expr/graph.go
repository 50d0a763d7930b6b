package expr

import "github.com/giantswarm/muster-ensemble/internal/instance"

// GraphResolver is the production Resolver: it looks up plain instance
// names directly in the live graph and maps the SELF/HOST keywords onto
// whichever instance is currently being evaluated (the template an
// operation's inputs are being rendered for). SOURCE/TARGET are left to a
// future relationship-scoped resolver; a requirement's own inputs are
// rendered from the requiring instance's perspective, which SELF already
// covers for every case exercised by the planner today.
type GraphResolver struct {
	Graph *instance.Graph
	Self  string
}

// ResolveInstance implements Resolver.
func (g GraphResolver) ResolveInstance(nameOrKeyword string) (*instance.Instance, bool) {
	switch nameOrKeyword {
	case "SELF", "HOST":
		return g.Graph.Get(g.Self)
	default:
		return g.Graph.Get(nameOrKeyword)
	}
}
