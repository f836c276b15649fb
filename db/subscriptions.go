package db

import (
	"encoding/xml"
	"strings"

	"github.com/cyverse-de/collection-notifier/model"
	"github.com/cyverse-de/collection-notifier/notifications"
	"github.com/pkg/errors"
)

// Names of the collection properties that contain subscription lists. Both properties are in the
// notification namespace.
const (
	SubscribedProperty   = "subscribed"
	UnsubscribedProperty = "unsubscribed"
)

type davPrincipal struct {
	Href            string    `xml:"DAV: href"`
	All             *struct{} `xml:"DAV: all"`
	Authenticated   *struct{} `xml:"DAV: authenticated"`
	Unauthenticated *struct{} `xml:"DAV: unauthenticated"`
	Self            *struct{} `xml:"DAV: self"`
	Property        *struct{} `xml:"DAV: property"`
}

type principalList struct {
	Principals []davPrincipal `xml:"DAV: principal"`
}

// ParsePrincipalList parses the value of a subscription list property, which is an element containing
// a sequence of DAV principal elements. Malformed lists yield notifications.ErrInvalidPrincipalList.
func ParsePrincipalList(value string) ([]model.PrincipalRef, error) {
	var list principalList
	if err := xml.Unmarshal([]byte(value), &list); err != nil {
		return nil, errors.Wrapf(notifications.ErrInvalidPrincipalList, "unable to parse the principal list (%s)", err)
	}

	refs := make([]model.PrincipalRef, 0, len(list.Principals))
	for _, p := range list.Principals {
		switch {
		case strings.TrimSpace(p.Href) != "":
			refs = append(refs, model.HRef(strings.TrimSpace(p.Href)))
		case p.All != nil:
			refs = append(refs, model.PrincipalRef{Kind: model.RefAll})
		case p.Authenticated != nil:
			refs = append(refs, model.PrincipalRef{Kind: model.RefAuthenticated})
		case p.Unauthenticated != nil:
			refs = append(refs, model.PrincipalRef{Kind: model.RefUnauthenticated})
		case p.Self != nil:
			refs = append(refs, model.PrincipalRef{Kind: model.RefSelf})
		case p.Property != nil:
			refs = append(refs, model.PrincipalRef{Kind: model.RefProperty})
		}
	}

	return refs, nil
}
