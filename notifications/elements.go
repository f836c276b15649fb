package notifications

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cyverse-de/collection-notifier/common"
	"github.com/cyverse-de/collection-notifier/model"
	"github.com/pkg/errors"
)

// Namespace is the XML namespace of the notification vocabulary.
const Namespace = "http://apple.com/ns/ical/"

// DAVNamespace is the XML namespace of WebDAV elements.
const DAVNamespace = "DAV:"

// RootElementName is the local name of the element that wraps a notification body.
const RootElementName = "notification"

// ErrNoActionElement indicates that a notification's action has no representation in a notification body.
var ErrNoActionElement = errors.New("the notification action has no corresponding element")

// ElementKind identifies an element in a notification body.
type ElementKind int

// The supported element kinds, in the order in which they appear in a notification body.
const (
	ActionElement ElementKind = iota
	TimeStampElement
	AuthIDElement
	OldURIElement
	NewURIElement
	OldETagElement
	NewETagElement
)

var elementKinds = []ElementKind{
	ActionElement,
	TimeStampElement,
	AuthIDElement,
	OldURIElement,
	NewURIElement,
	OldETagElement,
	NewETagElement,
}

// LocalName returns the local XML name of the element.
func (k ElementKind) LocalName() string {
	switch k {
	case ActionElement:
		return "action"
	case TimeStampElement:
		return "time-stamp"
	case AuthIDElement:
		return "auth-id"
	case OldURIElement:
		return "old-uri"
	case NewURIElement:
		return "new-uri"
	case OldETagElement:
		return "old-etag"
	case NewETagElement:
		return "new-etag"
	}
	return ""
}

func elementKindFor(name xml.Name) (ElementKind, bool) {
	if name.Space != Namespace {
		return 0, false
	}
	for _, kind := range elementKinds {
		if kind.LocalName() == name.Local {
			return kind, true
		}
	}
	return 0, false
}

// Element is a single piece of a notification. For action elements the value is the name of the nested
// action element. For URI elements the value is the wrapped href.
type Element struct {
	Kind  ElementKind
	Value string
}

// Name returns the qualified XML name of the element, which doubles as its property name.
func (e Element) Name() xml.Name {
	return xml.Name{Space: Namespace, Local: e.Kind.LocalName()}
}

// actionElementName returns the name of the element nested inside an action element.
func actionElementName(action model.Action) (string, error) {
	switch action {
	case model.ActionCreated:
		return "created", nil
	case model.ActionModified:
		return "modified", nil
	case model.ActionDeleted:
		return "deleted", nil
	case model.ActionCopiedTo:
		return "copied-to", nil
	case model.ActionCopiedFrom:
		return "copied-from", nil
	case model.ActionMovedTo:
		return "moved-to", nil
	case model.ActionMovedFrom:
		return "moved-from", nil
	case model.ActionNone:
		return "", ErrNoActionElement
	}
	return "", errors.Wrapf(ErrNoActionElement, "unknown action %d", int(action))
}

// ErrInvalidCharacter indicates that a value contains text that can't be represented in XML.
var ErrInvalidCharacter = errors.New("value contains characters that can't be represented in XML")

func isXMLChar(r rune) bool {
	return r == 0x09 || r == 0x0A || r == 0x0D ||
		(r >= 0x20 && r <= 0xD7FF) ||
		(r >= 0xE000 && r <= 0xFFFD) ||
		(r >= 0x10000 && r <= 0x10FFFF)
}

// ValidateText returns ErrInvalidCharacter if the value isn't valid UTF-8 or contains a character that
// isn't allowed in an XML document.
func ValidateText(value string) error {
	if !utf8.ValidString(value) {
		return ErrInvalidCharacter
	}
	for _, r := range value {
		if !isXMLChar(r) {
			return errors.Wrapf(ErrInvalidCharacter, "%U", r)
		}
	}
	return nil
}

// ValidateDetails checks that each of the optional attributes of a notification can be stored.
func ValidateDetails(details model.Details) error {
	fields := []struct {
		name  string
		value string
	}{
		{"auth-id", details.AuthID},
		{"old-uri", details.OldURI},
		{"new-uri", details.NewURI},
		{"old-etag", details.OldETag},
		{"new-etag", details.NewETag},
	}
	for _, field := range fields {
		if err := ValidateText(field.value); err != nil {
			return errors.Wrap(err, field.name)
		}
	}
	return nil
}

// Elements builds the ordered list of elements that describe a notification. The action and timestamp
// are always present; every other element is present only if the corresponding field is set.
func Elements(n model.Notification) ([]Element, error) {
	actionName, err := actionElementName(n.Action)
	if err != nil {
		return nil, err
	}
	if err = ValidateDetails(n.Details); err != nil {
		return nil, err
	}

	elements := []Element{
		{Kind: ActionElement, Value: actionName},
		{Kind: TimeStampElement, Value: common.FormatTimestamp(n.Timestamp)},
	}
	optional := []Element{
		{Kind: AuthIDElement, Value: n.AuthID},
		{Kind: OldURIElement, Value: n.OldURI},
		{Kind: NewURIElement, Value: n.NewURI},
		{Kind: OldETagElement, Value: n.OldETag},
		{Kind: NewETagElement, Value: n.NewETag},
	}
	for _, element := range optional {
		if element.Value != "" {
			elements = append(elements, element)
		}
	}

	return elements, nil
}

// encodeElement writes a single element. The namespace is only declared when space is non-empty, which
// allows nested elements to inherit the default namespace of the notification body.
func encodeElement(enc *xml.Encoder, element Element, space string) error {
	start := xml.StartElement{Name: xml.Name{Space: space, Local: element.Kind.LocalName()}}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}

	switch element.Kind {
	case ActionElement:
		action := xml.StartElement{Name: xml.Name{Local: element.Value}}
		if err := enc.EncodeToken(action); err != nil {
			return err
		}
		if err := enc.EncodeToken(action.End()); err != nil {
			return err
		}
	case OldURIElement, NewURIElement:
		href := xml.StartElement{Name: xml.Name{Space: DAVNamespace, Local: "href"}}
		if err := enc.EncodeToken(href); err != nil {
			return err
		}
		if err := enc.EncodeToken(xml.CharData(element.Value)); err != nil {
			return err
		}
		if err := enc.EncodeToken(href.End()); err != nil {
			return err
		}
	default:
		if err := enc.EncodeToken(xml.CharData(element.Value)); err != nil {
			return err
		}
	}

	return enc.EncodeToken(start.End())
}

// MarshalBody serializes a list of elements as a notification body.
func MarshalBody(elements []Element) ([]byte, error) {
	wrapMsg := "unable to marshal the notification body"

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)

	root := xml.StartElement{Name: xml.Name{Space: Namespace, Local: RootElementName}}
	if err := enc.EncodeToken(root); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	for _, element := range elements {
		if err := encodeElement(enc, element, ""); err != nil {
			return nil, errors.Wrap(err, wrapMsg)
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	if err := enc.Flush(); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return buf.Bytes(), nil
}

// MarshalProperty serializes a single element as a standalone XML fragment suitable for storage as a
// property value.
func MarshalProperty(element Element) (string, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := encodeElement(enc, element, Namespace); err != nil {
		return "", errors.Wrapf(err, "unable to marshal the %s property", element.Kind.LocalName())
	}
	if err := enc.Flush(); err != nil {
		return "", errors.Wrapf(err, "unable to marshal the %s property", element.Kind.LocalName())
	}
	return buf.String(), nil
}

// decodeElement reads the remainder of an element whose start tag has already been consumed.
func decodeElement(dec *xml.Decoder, start xml.StartElement) (Element, error) {
	kind, ok := elementKindFor(start.Name)
	if !ok {
		return Element{}, fmt.Errorf("unexpected element: {%s}%s", start.Name.Space, start.Name.Local)
	}

	// Text values are taken verbatim from the element itself, or from the href for URI elements.
	textDepth := 1
	if kind == OldURIElement || kind == NewURIElement {
		textDepth = 2
	}

	var value strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return Element{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if kind == ActionElement && depth == 2 {
				value.WriteString(t.Name.Local)
			}
		case xml.EndElement:
			depth--
		case xml.CharData:
			if kind != ActionElement && depth == textDepth {
				value.Write(t)
			}
		}
	}

	element := Element{Kind: kind, Value: value.String()}
	if kind == ActionElement {
		if _, err := model.ParseAction(element.Value); err != nil {
			return Element{}, err
		}
	}

	return element, nil
}

// ParseBody parses a notification body back into its list of elements.
func ParseBody(body []byte) ([]Element, error) {
	wrapMsg := "unable to parse the notification body"
	dec := xml.NewDecoder(bytes.NewReader(body))

	// Find the root element.
	var root *xml.StartElement
	for root == nil {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.Wrap(err, wrapMsg)
		}
		if start, ok := tok.(xml.StartElement); ok {
			root = &start
		}
	}
	if root.Name.Space != Namespace || root.Name.Local != RootElementName {
		return nil, fmt.Errorf("%s: unexpected root element: {%s}%s", wrapMsg, root.Name.Space, root.Name.Local)
	}

	// Decode each of the child elements.
	var elements []Element
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.Wrap(err, wrapMsg)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			element, err := decodeElement(dec, t)
			if err != nil {
				return nil, errors.Wrap(err, wrapMsg)
			}
			elements = append(elements, element)
		case xml.EndElement:
			return elements, nil
		}
	}
}

// ParseProperty parses a property value that was produced by MarshalProperty.
func ParseProperty(value string) (Element, error) {
	wrapMsg := "unable to parse the notification property"
	dec := xml.NewDecoder(strings.NewReader(value))
	for {
		tok, err := dec.Token()
		if err != nil {
			return Element{}, errors.Wrap(err, wrapMsg)
		}
		if start, ok := tok.(xml.StartElement); ok {
			element, err := decodeElement(dec, start)
			if err != nil {
				return Element{}, errors.Wrap(err, wrapMsg)
			}
			return element, nil
		}
	}
}
