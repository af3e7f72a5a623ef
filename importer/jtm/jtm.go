// Package jtm reads JSON Topic Maps (JTM) 1.0 and 1.1 into a tm.Graph.
//
// All five item types a reader must accept are supported: topicmap, topic,
// association, occurrence and name. Standalone names and occurrences attach
// to the topic named by "parent". Roles and variants cannot stand alone, and
// variants inside names are skipped since the model has none.
package jtm

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/teranos/mappa/errors"
	"github.com/teranos/mappa/tm"
)

// ErrSyntax marks every rejection of a JTM document
var ErrSyntax = errors.Mark(errors.ErrInvalidInput, "jtm syntax error")

// Item types
const (
	ItemTopicMap    = "topicmap"
	ItemTopic       = "topic"
	ItemAssociation = "association"
	ItemOccurrence  = "occurrence"
	ItemName        = "name"
	ItemRole        = "role"
	ItemVariant     = "variant"
)

// DefaultVersion applies to documents without a "version" member
const DefaultVersion = "1.0"

var (
	// Features introduced by JTM 1.1: prefixes and instance_of
	v11 = mustConstraint(">= 1.1")

	supportedVersions = map[string]bool{"1.0": true, "1.1": true}
)

func mustConstraint(c string) *semver.Constraints {
	constraint, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return constraint
}

type header struct {
	Version  *string           `json:"version"`
	ItemType string            `json:"item_type"`
	Prefixes map[string]string `json:"prefixes"`
}

type topicMapItem struct {
	Topics       []topicItem       `json:"topics"`
	Associations []associationItem `json:"associations"`
}

type topicItem struct {
	SubjectIdentifiers []string         `json:"subject_identifiers"`
	SubjectLocators    []string         `json:"subject_locators"`
	ItemIdentifiers    []string         `json:"item_identifiers"`
	InstanceOf         []string         `json:"instance_of"`
	Names              []nameItem       `json:"names"`
	Occurrences        []occurrenceItem `json:"occurrences"`
}

type nameItem struct {
	Parent []string `json:"parent"`
	Type   string   `json:"type"`
	Value  *string  `json:"value"`
	Scope  []string `json:"scope"`
}

type occurrenceItem struct {
	Parent   []string `json:"parent"`
	Type     string   `json:"type"`
	Value    *string  `json:"value"`
	Datatype string   `json:"datatype"`
	Scope    []string `json:"scope"`
}

type associationItem struct {
	Type  string     `json:"type"`
	Roles []roleItem `json:"roles"`
	Scope []string   `json:"scope"`
}

type roleItem struct {
	Type   string `json:"type"`
	Player string `json:"player"`
}

// Read parses one JTM document. Relative IRIs resolve against baseIRI.
func Read(data []byte, baseIRI string) (*tm.Graph, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, errors.Wrapf(ErrSyntax, "decode: %v", err)
	}

	version := DefaultVersion
	if h.Version != nil {
		version = *h.Version
	}
	if !supportedVersions[version] {
		return nil, errors.WithHint(
			errors.Wrapf(ErrSyntax, "unknown JTM version %q", version),
			"supported versions are 1.0 and 1.1")
	}
	semv, err := semver.NewVersion(version)
	if err != nil {
		return nil, errors.Wrapf(ErrSyntax, "version %q: %v", version, err)
	}

	r, err := newReader(baseIRI, h.Prefixes, v11.Check(semv))
	if err != nil {
		return nil, err
	}

	itemType := strings.ToLower(h.ItemType)
	switch itemType {
	case ItemTopicMap:
		var item topicMapItem
		err = unmarshal(data, &item, itemType)
		if err == nil {
			err = r.topicMap(item)
		}
	case ItemTopic:
		var item topicItem
		err = unmarshal(data, &item, itemType)
		if err == nil {
			err = r.topic(item)
		}
	case ItemAssociation:
		var item associationItem
		err = unmarshal(data, &item, itemType)
		if err == nil {
			err = r.association(item)
		}
	case ItemOccurrence:
		var item occurrenceItem
		err = unmarshal(data, &item, itemType)
		if err == nil {
			err = r.occurrence("", item)
		}
	case ItemName:
		var item nameItem
		err = unmarshal(data, &item, itemType)
		if err == nil {
			err = r.name("", item)
		}
	case ItemRole, ItemVariant:
		return nil, errors.Wrapf(ErrSyntax, "the item type %q is not supported", itemType)
	default:
		return nil, errors.Wrapf(ErrSyntax, "unknown item type: %q", itemType)
	}
	if err != nil {
		return nil, err
	}
	return r.g, nil
}

func unmarshal(data []byte, v interface{}, itemType string) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(ErrSyntax, "decode %s: %v", itemType, err)
	}
	return nil
}

type reader struct {
	g        *tm.Graph
	base     *url.URL
	prefixes map[string]*url.URL
	is11     bool
}

func newReader(baseIRI string, prefixes map[string]string, is11 bool) (*reader, error) {
	if len(prefixes) > 0 && !is11 {
		return nil, errors.Wrap(ErrSyntax, "prefixes are not allowed in JTM 1.0")
	}
	base, err := url.Parse(baseIRI)
	if err != nil {
		return nil, errors.Wrapf(ErrSyntax, "base IRI %q: %v", baseIRI, err)
	}

	r := &reader{g: tm.NewGraph(), base: base, prefixes: make(map[string]*url.URL), is11: is11}
	for prefix, iri := range prefixes {
		if prefix == "xsd" && iri != tm.XSD {
			return nil, errors.Wrapf(ErrSyntax, "the prefix \"xsd\" is predefined and cannot be bound to %q", iri)
		}
		u, err := url.Parse(iri)
		if err != nil {
			return nil, errors.Wrapf(ErrSyntax, "prefix %q: %v", prefix, err)
		}
		r.prefixes[prefix] = u
	}
	r.prefixes["xsd"], _ = url.Parse(tm.XSD)
	return r, nil
}

// iri resolves an IRI or a "[prefix:local]" CURIE
func (r *reader) iri(s string) (string, error) {
	if strings.HasPrefix(s, "[") {
		if !strings.HasSuffix(s, "]") {
			return "", errors.Wrapf(ErrSyntax, "illegal CURIE %q", s)
		}
		prefix, local, ok := strings.Cut(s[1:len(s)-1], ":")
		if !ok || prefix == "" {
			return "", errors.Wrapf(ErrSyntax, "illegal CURIE %q", s)
		}
		base, ok := r.prefixes[prefix]
		if !ok {
			return "", errors.Wrapf(ErrSyntax, "undefined prefix %q", prefix)
		}
		return resolve(base, local)
	}
	return resolve(r.base, s)
}

// resolve joins ref onto base. A base ending in '#' takes ref as its
// fragment, so "[xsd:string]" expands to ".../XMLSchema#string".
func resolve(base *url.URL, ref string) (string, error) {
	if strings.HasSuffix(base.String(), "#") && ref != "" && ref[0] != '#' {
		ref = "#" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", errors.Wrapf(ErrSyntax, "IRI %q: %v", ref, err)
	}
	return base.ResolveReference(u).String(), nil
}

// topicRef parses "si:", "sl:" or "ii:" followed by an IRI or CURIE
func (r *reader) topicRef(s string) (tm.Ref, error) {
	if len(s) < 3 || s[2] != ':' {
		return tm.Ref{}, errors.Wrapf(ErrSyntax, "illegal topic reference %q", s)
	}
	kind := tm.RefKind(s[:2])
	switch kind {
	case tm.SubjectIdentifier, tm.SubjectLocator, tm.ItemIdentifier:
	default:
		return tm.Ref{}, errors.Wrapf(ErrSyntax, "unknown identity type %q", s[:2])
	}
	iri, err := r.iri(s[3:])
	if err != nil {
		return tm.Ref{}, err
	}
	return tm.Ref{Kind: kind, IRI: iri}, nil
}

func (r *reader) topicRefs(refs []string) ([]tm.Ref, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	out := make([]tm.Ref, len(refs))
	for i, s := range refs {
		ref, err := r.topicRef(s)
		if err != nil {
			return nil, err
		}
		out[i] = ref
	}
	return out, nil
}

// typeRef resolves a required "type" member
func (r *reader) typeRef(s, construct string) (tm.Ref, error) {
	if s == "" {
		return tm.Ref{}, errors.Wrapf(ErrSyntax, "%s: expected a type", construct)
	}
	return r.topicRef(s)
}

func (r *reader) topicMap(item topicMapItem) error {
	for i, t := range item.Topics {
		if err := r.topic(t); err != nil {
			return errors.Wrapf(err, "topics[%d]", i)
		}
	}
	for i, a := range item.Associations {
		if err := r.association(a); err != nil {
			return errors.Wrapf(err, "associations[%d]", i)
		}
	}
	return nil
}

func (r *reader) topic(item topicItem) error {
	var refs []tm.Ref
	for _, group := range []struct {
		kind tm.RefKind
		iris []string
	}{
		{tm.SubjectIdentifier, item.SubjectIdentifiers},
		{tm.SubjectLocator, item.SubjectLocators},
		{tm.ItemIdentifier, item.ItemIdentifiers},
	} {
		for _, s := range group.iris {
			iri, err := r.iri(s)
			if err != nil {
				return err
			}
			refs = append(refs, tm.Ref{Kind: group.kind, IRI: iri})
		}
	}
	if len(refs) == 0 {
		return errors.Wrap(ErrSyntax, "topic has no subject identifier, subject locator or item identifier")
	}

	id, err := r.identify(refs)
	if err != nil {
		return err
	}

	if len(item.InstanceOf) > 0 && !r.is11 {
		return errors.Wrap(ErrSyntax, "\"instance_of\" is illegal in JTM 1.0")
	}
	types, err := r.topicRefs(item.InstanceOf)
	if err != nil {
		return err
	}
	for _, typ := range types {
		if err := r.g.AddType(id, typ); err != nil {
			return err
		}
	}

	for _, o := range item.Occurrences {
		if err := r.occurrence(id, o); err != nil {
			return err
		}
	}
	for _, n := range item.Names {
		if err := r.name(id, n); err != nil {
			return err
		}
	}
	return nil
}

// identify returns the topic holding refs, merging as needed
func (r *reader) identify(refs []tm.Ref) (string, error) {
	id, err := r.g.Topic(refs[0])
	if err != nil {
		return "", err
	}
	for _, ref := range refs[1:] {
		if id, err = r.g.AddIdentity(id, ref); err != nil {
			return "", err
		}
	}
	return id, nil
}

// owner resolves the topic a name or occurrence belongs to. An explicit
// parent wins over the enclosing topic.
func (r *reader) owner(enclosing string, parent []string, construct string) (string, error) {
	if len(parent) == 0 {
		if enclosing == "" {
			return "", errors.Wrapf(ErrSyntax, "standalone %s requires a parent", construct)
		}
		return enclosing, nil
	}
	refs, err := r.topicRefs(parent)
	if err != nil {
		return "", err
	}
	return r.identify(refs)
}

func (r *reader) occurrence(enclosing string, item occurrenceItem) error {
	owner, err := r.owner(enclosing, item.Parent, ItemOccurrence)
	if err != nil {
		return err
	}
	typ, err := r.typeRef(item.Type, ItemOccurrence)
	if err != nil {
		return err
	}
	if item.Value == nil {
		return errors.Wrap(ErrSyntax, "occurrence: expected a value")
	}
	scope, err := r.topicRefs(item.Scope)
	if err != nil {
		return err
	}

	datatype := tm.XSDString
	if item.Datatype != "" {
		if datatype, err = r.iri(item.Datatype); err != nil {
			return err
		}
	}
	value := *item.Value
	if datatype == tm.XSDAnyURI {
		if value, err = r.iri(value); err != nil {
			return err
		}
	}

	return r.g.AddOccurrence(owner, tm.Occurrence{Type: typ, Value: value, Datatype: datatype, Scope: scope})
}

func (r *reader) name(enclosing string, item nameItem) error {
	owner, err := r.owner(enclosing, item.Parent, ItemName)
	if err != nil {
		return err
	}
	if item.Value == nil {
		return errors.Wrap(ErrSyntax, "name: expected a value")
	}
	n := tm.Name{Value: *item.Value}
	if item.Type != "" {
		typ, err := r.topicRef(item.Type)
		if err != nil {
			return err
		}
		if typ != tm.SI(tm.DefaultNameType) {
			n.Type = &typ
		}
	}
	if n.Scope, err = r.topicRefs(item.Scope); err != nil {
		return err
	}
	return r.g.AddName(owner, n)
}

func (r *reader) association(item associationItem) error {
	typ, err := r.typeRef(item.Type, ItemAssociation)
	if err != nil {
		return err
	}
	if len(item.Roles) == 0 {
		return errors.Wrap(ErrSyntax, "association: expected at least one role")
	}
	a := tm.Association{Type: typ}
	for _, role := range item.Roles {
		rt, err := r.typeRef(role.Type, ItemRole)
		if err != nil {
			return err
		}
		if role.Player == "" {
			return errors.Wrap(ErrSyntax, "role: expected a player")
		}
		player, err := r.topicRef(role.Player)
		if err != nil {
			return err
		}
		a.Roles = append(a.Roles, tm.Role{Type: rt, Player: player})
	}
	if a.Scope, err = r.topicRefs(item.Scope); err != nil {
		return err
	}
	return r.g.AddAssociation(a)
}
