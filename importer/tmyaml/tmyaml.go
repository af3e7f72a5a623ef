// Package tmyaml reads a compact YAML dataset notation into a tm.Graph.
//
//	version: 1
//	base: http://psi.example.org/pokemon/
//	topics:
//	  - id: pikachu
//	    si: http://psi.example.org/pokemon/pikachu
//	    types: [pokemon]
//	    names:
//	      - value: Pikachu
//	      - {type: nickname, value: Pika, scope: [en]}
//	    occurrences:
//	      - {type: weight, value: "6.0", datatype: "xsd:decimal"}
//	associations:
//	  - type: evolves-into
//	    roles:
//	      - {type: from, player: pichu}
//	      - {type: to, player: pikachu}
//
// A bare reference such as "pokemon" is an item identifier resolved against
// base. "si:", "sl:" and "ii:" prefixes select the identity kind explicitly.
package tmyaml

import (
	"bytes"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teranos/mappa/errors"
	"github.com/teranos/mappa/internal/util"
	"github.com/teranos/mappa/tm"
)

// ErrSyntax marks every rejection of a YAML dataset
var ErrSyntax = errors.Mark(errors.ErrInvalidInput, "yaml dataset syntax error")

// Version is the only notation version understood
const Version = 1

type document struct {
	Version      int           `yaml:"version"`
	Base         string        `yaml:"base"`
	Topics       []topic       `yaml:"topics"`
	Associations []association `yaml:"associations"`
}

type topic struct {
	ID          stringList   `yaml:"id"`
	SI          stringList   `yaml:"si"`
	SL          stringList   `yaml:"sl"`
	Types       []string     `yaml:"types"`
	Names       []name       `yaml:"names"`
	Occurrences []occurrence `yaml:"occurrences"`
}

type name struct {
	Type  string   `yaml:"type"`
	Value *string  `yaml:"value"`
	Scope []string `yaml:"scope"`
}

type occurrence struct {
	Type     string   `yaml:"type"`
	Value    *string  `yaml:"value"`
	Datatype string   `yaml:"datatype"`
	Scope    []string `yaml:"scope"`
}

type association struct {
	Type  string   `yaml:"type"`
	Roles []role   `yaml:"roles"`
	Scope []string `yaml:"scope"`
}

type role struct {
	Type   string `yaml:"type"`
	Player string `yaml:"player"`
}

// stringList accepts a scalar or a sequence of scalars
type stringList []string

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*l = stringList{node.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	return errors.Newf("line %d: expected a string or a list of strings", node.Line)
}

// Read parses one YAML dataset. The document's base wins over baseIRI.
func Read(data []byte, baseIRI string) (*tm.Graph, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrapf(ErrSyntax, "decode: %v", err)
	}
	if doc.Version != Version {
		return nil, errors.WithHint(
			errors.Wrapf(ErrSyntax, "unsupported version %d", doc.Version),
			"set \"version: 1\" at the top of the dataset")
	}

	if doc.Base != "" {
		baseIRI = doc.Base
	}
	base, err := url.Parse(baseIRI)
	if err != nil {
		return nil, errors.Wrapf(ErrSyntax, "base %q: %v", baseIRI, err)
	}

	r := &reader{g: tm.NewGraph(), base: base}
	for i, t := range doc.Topics {
		if err := r.topic(t); err != nil {
			return nil, errors.Wrapf(err, "topics[%d]", i)
		}
	}
	for i, a := range doc.Associations {
		if err := r.association(a); err != nil {
			return nil, errors.Wrapf(err, "associations[%d]", i)
		}
	}
	return r.g, nil
}

type reader struct {
	g    *tm.Graph
	base *url.URL
}

func (r *reader) iri(s string) (string, error) {
	u, err := url.Parse(s)
	if err != nil {
		return "", errors.Wrapf(ErrSyntax, "IRI %q: %v", s, err)
	}
	return r.base.ResolveReference(u).String(), nil
}

func (r *reader) ref(s string) (tm.Ref, error) {
	if s == "" {
		return tm.Ref{}, errors.Wrap(ErrSyntax, "empty topic reference")
	}
	kind := tm.ItemIdentifier
	if len(s) > 3 && s[2] == ':' {
		switch k := tm.RefKind(s[:2]); k {
		case tm.SubjectIdentifier, tm.SubjectLocator, tm.ItemIdentifier:
			kind, s = k, s[3:]
		}
	}
	iri, err := r.iri(s)
	if err != nil {
		return tm.Ref{}, err
	}
	return tm.Ref{Kind: kind, IRI: iri}, nil
}

func (r *reader) refs(in []string) ([]tm.Ref, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]tm.Ref, len(in))
	for i, s := range in {
		ref, err := r.ref(s)
		if err != nil {
			return nil, err
		}
		out[i] = ref
	}
	return out, nil
}

func (r *reader) topic(t topic) error {
	var identities []tm.Ref
	for _, group := range []struct {
		kind tm.RefKind
		iris []string
	}{
		{tm.SubjectIdentifier, t.SI},
		{tm.SubjectLocator, t.SL},
		{tm.ItemIdentifier, t.ID},
	} {
		for _, s := range group.iris {
			iri, err := r.iri(s)
			if err != nil {
				return err
			}
			identities = append(identities, tm.Ref{Kind: group.kind, IRI: iri})
		}
	}
	if len(identities) == 0 {
		return errors.Wrap(ErrSyntax, "topic needs an id, si or sl")
	}

	id, err := r.g.Topic(identities[0])
	if err != nil {
		return err
	}
	for _, ref := range identities[1:] {
		if id, err = r.g.AddIdentity(id, ref); err != nil {
			return err
		}
	}

	types, err := r.refs(t.Types)
	if err != nil {
		return err
	}
	for _, typ := range types {
		if err := r.g.AddType(id, typ); err != nil {
			return err
		}
	}

	for _, n := range t.Names {
		if n.Value == nil {
			return errors.Wrap(ErrSyntax, "name without value")
		}
		out := tm.Name{Value: *n.Value}
		if n.Type != "" {
			typ, err := r.ref(n.Type)
			if err != nil {
				return err
			}
			if typ != tm.SI(tm.DefaultNameType) {
				out.Type = util.Ptr(typ)
			}
		}
		if out.Scope, err = r.refs(n.Scope); err != nil {
			return err
		}
		if err := r.g.AddName(id, out); err != nil {
			return err
		}
	}

	for _, o := range t.Occurrences {
		if o.Type == "" {
			return errors.Wrap(ErrSyntax, "occurrence without type")
		}
		if o.Value == nil {
			return errors.Wrap(ErrSyntax, "occurrence without value")
		}
		typ, err := r.ref(o.Type)
		if err != nil {
			return err
		}
		scope, err := r.refs(o.Scope)
		if err != nil {
			return err
		}
		datatype, err := r.datatype(o.Datatype)
		if err != nil {
			return err
		}
		value := *o.Value
		if datatype == tm.XSDAnyURI {
			if value, err = r.iri(value); err != nil {
				return err
			}
		}
		occ := tm.Occurrence{Type: typ, Value: value, Datatype: datatype, Scope: scope}
		if err := r.g.AddOccurrence(id, occ); err != nil {
			return err
		}
	}
	return nil
}

// datatype expands "xsd:local"; other values are IRIs
func (r *reader) datatype(s string) (string, error) {
	if s == "" {
		return tm.XSDString, nil
	}
	if local, ok := strings.CutPrefix(s, "xsd:"); ok {
		return tm.XSD + local, nil
	}
	return r.iri(s)
}

func (r *reader) association(a association) error {
	if a.Type == "" {
		return errors.Wrap(ErrSyntax, "association without type")
	}
	typ, err := r.ref(a.Type)
	if err != nil {
		return err
	}
	if len(a.Roles) == 0 {
		return errors.Wrap(ErrSyntax, "association without roles")
	}
	out := tm.Association{Type: typ}
	for _, role := range a.Roles {
		if role.Type == "" || role.Player == "" {
			return errors.Wrap(ErrSyntax, "role needs type and player")
		}
		rt, err := r.ref(role.Type)
		if err != nil {
			return err
		}
		player, err := r.ref(role.Player)
		if err != nil {
			return err
		}
		out.Roles = append(out.Roles, tm.Role{Type: rt, Player: player})
	}
	if out.Scope, err = r.refs(a.Scope); err != nil {
		return err
	}
	return r.g.AddAssociation(out)
}
