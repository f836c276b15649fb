package notifications

import (
	"context"
	"sort"

	"github.com/cyverse-de/collection-notifier/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// PrincipalSet is a set of principal references keyed by href.
type PrincipalSet map[string]model.PrincipalRef

// Add adds a reference to the set.
func (s PrincipalSet) Add(ref model.PrincipalRef) {
	s[ref.Href] = ref
}

// Contains returns true if the set contains a reference with the given href.
func (s PrincipalSet) Contains(href string) bool {
	_, ok := s[href]
	return ok
}

// Subtract removes every member of other from the set.
func (s PrincipalSet) Subtract(other PrincipalSet) {
	for href := range other {
		delete(s, href)
	}
}

// Sorted returns the members of the set ordered by href.
func (s PrincipalSet) Sorted() []model.PrincipalRef {
	refs := make([]model.PrincipalRef, 0, len(s))
	for _, ref := range s {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Href < refs[j].Href })
	return refs
}

// Resolver determines which principals should be notified of changes to a collection.
type Resolver struct {
	locator Locator
}

// NewResolver returns a new resolver that uses the given locator to look up principals.
func NewResolver(locator Locator) *Resolver {
	return &Resolver{locator: locator}
}

// Resolve returns the set of principals that should be notified of changes to the parent collection:
// the expanded auto-subscribed principals minus the expanded unsubscribed principals. An empty set is
// returned if the parent collection has no subscription metadata.
func (r *Resolver) Resolve(ctx context.Context, parent Parent) (PrincipalSet, error) {
	wrapMsg := "unable to resolve the subscribers of " + parent.URL()
	result := make(PrincipalSet)

	// Nobody's watching if there's no subscription metadata.
	hasMetadata, err := parent.HasSubscriptionMetadata(ctx)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	if !hasMetadata {
		return result, nil
	}

	// Expand the auto-subscribed principals.
	subscribed, err := parent.ReadSubscribed(ctx)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	r.expand(ctx, parent, subscribed, result)

	// Expand and remove the unsubscribed principals.
	unsubscribed, err := parent.ReadUnsubscribed(ctx)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	if len(unsubscribed) > 0 {
		excluded := make(PrincipalSet)
		r.expand(ctx, parent, unsubscribed, excluded)
		result.Subtract(excluded)
	}

	return result, nil
}

// expand adds the individual principals that the given references stand for to the result set. Entries
// that can't be resolved or located are skipped.
func (r *Resolver) expand(ctx context.Context, parent Parent, refs []model.PrincipalRef, result PrincipalSet) {
	for _, ref := range refs {
		entryLog := log.WithFields(logrus.Fields{"collection": parent.URL(), "principal": ref.Href})

		// Resolve the reference.
		resolved, err := parent.ResolvePrincipal(ctx, ref)
		if err != nil {
			entryLog.Warnf("unable to resolve subscribed principal: %s", err)
			continue
		}
		if resolved == nil || !resolved.IsHRef() {
			entryLog.Debug("skipping unresolvable subscription entry")
			continue
		}

		// Locate the principal.
		principal, err := r.locator.LocatePrincipal(ctx, resolved.Href)
		if err != nil {
			entryLog.Warnf("unable to locate subscribed principal: %s", err)
			continue
		}
		if principal == nil {
			entryLog.Debugf("%s is not a principal", resolved.Href)
			continue
		}

		for _, member := range principal.Expand() {
			result.Add(member)
		}
	}
}
