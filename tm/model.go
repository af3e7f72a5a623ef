package tm

import (
	"slices"
	"strings"

	"github.com/teranos/mappa/errors"
)

// RefKind is the identity kind of a topic reference
type RefKind string

const (
	SubjectIdentifier RefKind = "si"
	SubjectLocator    RefKind = "sl"
	ItemIdentifier    RefKind = "ii"
)

// Well-known IRIs
const (
	// DefaultNameType is the TMDM topic-name type, implied by a nil Name.Type
	DefaultNameType = "http://psi.topicmaps.org/iso13250/model/topic-name"

	XSD       = "http://www.w3.org/2001/XMLSchema#"
	XSDString = XSD + "string"
	XSDAnyURI = XSD + "anyURI"
)

// ErrInvalidRef is returned by ParseRef for malformed references
var ErrInvalidRef = errors.Mark(errors.ErrInvalidInput, "invalid topic reference")

// Ref references a topic by one of its identities
type Ref struct {
	Kind RefKind
	IRI  string
}

// SI returns a subject identifier reference
func SI(iri string) Ref { return Ref{Kind: SubjectIdentifier, IRI: iri} }

// SL returns a subject locator reference
func SL(iri string) Ref { return Ref{Kind: SubjectLocator, IRI: iri} }

// II returns an item identifier reference
func II(iri string) Ref { return Ref{Kind: ItemIdentifier, IRI: iri} }

// ParseRef parses the textual form "si:IRI", "sl:IRI" or "ii:IRI".
func ParseRef(s string) (Ref, error) {
	kind, iri, ok := strings.Cut(s, ":")
	if !ok {
		return Ref{}, errors.Wrapf(ErrInvalidRef, "%q has no identity prefix", s)
	}
	switch RefKind(kind) {
	case SubjectIdentifier, SubjectLocator, ItemIdentifier:
		return Ref{Kind: RefKind(kind), IRI: iri}, nil
	}
	return Ref{}, errors.Wrapf(ErrInvalidRef, "unknown identity type %q in %q", kind, s)
}

func (r Ref) String() string { return string(r.Kind) + ":" + r.IRI }

// IsZero reports whether r is the zero Ref
func (r Ref) IsZero() bool { return r.Kind == "" && r.IRI == "" }

// MarshalText encodes r in its textual form so refs serialize as JSON strings.
func (r Ref) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText decodes the textual form produced by MarshalText.
func (r *Ref) UnmarshalText(text []byte) error {
	parsed, err := ParseRef(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// MatchingRefs returns the identities that would collide with r. Subject
// identifiers and item identifiers match each other; locators only match locators.
func MatchingRefs(r Ref) []Ref {
	switch r.Kind {
	case SubjectIdentifier:
		return []Ref{r, II(r.IRI)}
	case ItemIdentifier:
		return []Ref{r, SI(r.IRI)}
	}
	return []Ref{r}
}

// Topic is a topic with its identities and characteristics
type Topic struct {
	// ID is assigned by the Graph that built the topic
	ID string `json:"id"`

	SubjectIdentifiers []string     `json:"subject_identifiers,omitempty"`
	SubjectLocators    []string     `json:"subject_locators,omitempty"`
	ItemIdentifiers    []string     `json:"item_identifiers,omitempty"`
	Types              []Ref        `json:"types,omitempty"`
	Names              []Name       `json:"names,omitempty"`
	Occurrences        []Occurrence `json:"occurrences,omitempty"`
}

// Identities returns every identity of t as a Ref
func (t Topic) Identities() []Ref {
	refs := make([]Ref, 0, len(t.SubjectIdentifiers)+len(t.SubjectLocators)+len(t.ItemIdentifiers))
	for _, iri := range t.SubjectIdentifiers {
		refs = append(refs, SI(iri))
	}
	for _, iri := range t.SubjectLocators {
		refs = append(refs, SL(iri))
	}
	for _, iri := range t.ItemIdentifiers {
		refs = append(refs, II(iri))
	}
	return refs
}

// Clone returns a copy of t that shares no slices with it
func (t Topic) Clone() Topic {
	c := t
	c.SubjectIdentifiers = slices.Clone(t.SubjectIdentifiers)
	c.SubjectLocators = slices.Clone(t.SubjectLocators)
	c.ItemIdentifiers = slices.Clone(t.ItemIdentifiers)
	c.Types = slices.Clone(t.Types)
	if t.Names != nil {
		c.Names = make([]Name, len(t.Names))
		for i, n := range t.Names {
			c.Names[i] = n.clone()
		}
	}
	if t.Occurrences != nil {
		c.Occurrences = make([]Occurrence, len(t.Occurrences))
		for i, o := range t.Occurrences {
			c.Occurrences[i] = o.clone()
		}
	}
	return c
}

// Name is a topic name. A nil Type means DefaultNameType.
type Name struct {
	Type  *Ref   `json:"type,omitempty"`
	Value string `json:"value"`
	Scope []Ref  `json:"scope,omitempty"`
}

// TypeRef returns the effective name type
func (n Name) TypeRef() Ref {
	if n.Type == nil {
		return SI(DefaultNameType)
	}
	return *n.Type
}

func (n Name) clone() Name {
	c := n
	if n.Type != nil {
		typ := *n.Type
		c.Type = &typ
	}
	c.Scope = slices.Clone(n.Scope)
	return c
}

func (n Name) equal(o Name) bool {
	return n.TypeRef() == o.TypeRef() && n.Value == o.Value && slices.Equal(n.Scope, o.Scope)
}

// Occurrence is a typed value attached to a topic. Datatype defaults to XSDString.
type Occurrence struct {
	Type     Ref    `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype"`
	Scope    []Ref  `json:"scope,omitempty"`
}

func (o Occurrence) clone() Occurrence {
	c := o
	c.Scope = slices.Clone(o.Scope)
	return c
}

func (o Occurrence) equal(p Occurrence) bool {
	return o.Type == p.Type && o.Value == p.Value && o.Datatype == p.Datatype && slices.Equal(o.Scope, p.Scope)
}

// Association relates topics through typed roles
type Association struct {
	Type  Ref    `json:"type"`
	Roles []Role `json:"roles"`
	Scope []Ref  `json:"scope,omitempty"`
}

// Clone returns a copy of a that shares no slices with it
func (a Association) Clone() Association {
	c := a
	c.Roles = slices.Clone(a.Roles)
	c.Scope = slices.Clone(a.Scope)
	return c
}

// Role is one end of an association
type Role struct {
	Type   Ref `json:"type"`
	Player Ref `json:"player"`
}
