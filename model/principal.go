package model

// RefKind identifies the shape of an entry in a subscription list.
type RefKind int

// The kinds of principal references that may appear in a subscription list. Only HRef entries refer to
// a specific principal.
const (
	RefHRef RefKind = iota
	RefAll
	RefAuthenticated
	RefUnauthenticated
	RefSelf
	RefProperty
)

// PrincipalRef is a single entry in a subscription list.
type PrincipalRef struct {
	Kind RefKind
	Href string
}

// HRef returns a reference to the principal at the given URI.
func HRef(uri string) PrincipalRef {
	return PrincipalRef{Kind: RefHRef, Href: uri}
}

// IsHRef returns true if the reference points to a specific principal.
func (r PrincipalRef) IsHRef() bool {
	return r.Kind == RefHRef && r.Href != ""
}

// PrincipalKind distinguishes individual principals from groups.
type PrincipalKind int

// The supported principal kinds.
const (
	Individual PrincipalKind = iota
	Group
)

// String returns the name stored for the principal kind.
func (k PrincipalKind) String() string {
	if k == Group {
		return "group"
	}
	return "individual"
}

// Principal is a located user or group. Members is only meaningful for groups. NotificationsURL is empty
// if the principal doesn't have a notifications collection.
type Principal struct {
	URI              string
	Kind             PrincipalKind
	Members          []string
	NotificationsURL string
}

// Expand returns the individual principal references that the principal stands for. An individual
// expands to itself and a group expands to its members; a group with no members expands to nothing.
func (p *Principal) Expand() []PrincipalRef {
	switch p.Kind {
	case Group:
		refs := make([]PrincipalRef, 0, len(p.Members))
		for _, member := range p.Members {
			refs = append(refs, HRef(member))
		}
		return refs
	default:
		return []PrincipalRef{HRef(p.URI)}
	}
}
