package filter

// Resolver holds a set of groups and resolves an action type to the
// best-matching group.
type Resolver struct {
	groups []*GroupBuilder
}

// NewResolver creates a Resolver from the supplied group builders.
func NewResolver(groups ...*GroupBuilder) *Resolver {
	return &Resolver{groups: groups}
}

// Resolve finds the best-matching group for actionType.
//
// Priority rules:
//   - Exact matches beat prefix matches, which beat glob matches, which beat
//     regex matches.
//   - Among matches of the same kind the longer match wins.
//   - When two matches have equal kind and length the group that was
//     registered first (stable order) wins.
//
// If no group matches, ok is false.
func (res *Resolver) Resolve(actionType string) (groupName string, ok bool) {
	if res == nil {
		return "", false
	}

	bestKind := matchKind(-1)
	bestLen := -1

	for _, g := range res.groups {
		for i := range g.rules {
			r := &g.rules[i]
			matched, mLen := r.match(actionType)
			if !matched {
				continue
			}
			// A lower kind value means higher priority.
			better := bestKind < 0 ||
				r.kind < bestKind ||
				(r.kind == bestKind && mLen > bestLen)
			if better {
				bestKind = r.kind
				bestLen = mLen
				groupName = g.name
				ok = true
			}
		}
	}
	return groupName, ok
}

// Groups returns the names of all registered groups in order.
func (res *Resolver) Groups() []string {
	names := make([]string, 0, len(res.groups))
	for _, g := range res.groups {
		names = append(names, g.name)
	}
	return names
}
