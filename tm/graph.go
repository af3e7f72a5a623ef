package tm

import (
	"slices"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/teranos/mappa/errors"
)

// ErrUnknownTopic is returned when a Graph is handed a topic ID it never issued
var ErrUnknownTopic = errors.Mark(errors.ErrNotFound, "unknown topic")

// Graph collects the topics and associations of one dataset before they are
// added to a TopicMap.
//
// Topics are addressed by the ID the graph issues. Any Ref used as a type,
// theme, role type or player creates its topic on first use. Giving a topic
// an identity that another topic already holds merges the two. Subject
// identifiers and item identifiers with the same IRI count as the same
// identity. After a merge, IDs of the absorbed topic keep resolving to the
// survivor.
//
// A Graph is not safe for concurrent use.
type Graph struct {
	newID  func() string
	order  []string
	topics map[string]*Topic
	owners map[Ref]string
	merged map[string]string
	assocs []Association
	seen   map[string]struct{}
}

// NewGraph returns an empty graph that issues uuid topic IDs
func NewGraph() *Graph {
	return newGraph(uuid.NewString)
}

func newGraph(newID func() string) *Graph {
	return &Graph{
		newID:  newID,
		topics: make(map[string]*Topic),
		owners: make(map[Ref]string),
		merged: make(map[string]string),
		seen:   make(map[string]struct{}),
	}
}

// Topic returns the ID of the topic identified by ref, creating the topic if
// no topic holds a matching identity.
func (g *Graph) Topic(ref Ref) (string, error) {
	if err := checkRef(ref); err != nil {
		return "", err
	}
	if id, ok := g.Lookup(ref); ok {
		return id, nil
	}

	id := g.newID()
	g.topics[id] = &Topic{ID: id}
	g.order = append(g.order, id)
	g.attach(g.topics[id], ref)
	return id, nil
}

// Lookup finds the topic holding an identity matching ref
func (g *Graph) Lookup(ref Ref) (string, bool) {
	for _, candidate := range MatchingRefs(ref) {
		if id, ok := g.owners[candidate]; ok {
			return id, true
		}
	}
	return "", false
}

// Resolve follows merges and returns the live ID for id
func (g *Graph) Resolve(id string) string {
	for {
		next, ok := g.merged[id]
		if !ok {
			return id
		}
		id = next
	}
}

// AddIdentity gives the topic id the identity ref. If another topic already
// holds a matching identity the topics merge; the returned ID is the survivor.
func (g *Graph) AddIdentity(id string, ref Ref) (string, error) {
	if err := checkRef(ref); err != nil {
		return "", err
	}
	t, err := g.get(id)
	if err != nil {
		return "", err
	}

	if owner, ok := g.Lookup(ref); ok && owner != t.ID {
		t = g.merge(t.ID, owner)
	}
	if _, held := g.owners[ref]; !held {
		g.attach(t, ref)
	}
	return t.ID, nil
}

// AddType adds typ to the types of topic id
func (g *Graph) AddType(id string, typ Ref) error {
	if _, err := g.Topic(typ); err != nil {
		return errors.Wrap(err, "topic type")
	}
	t, err := g.get(id)
	if err != nil {
		return err
	}
	if !slices.Contains(t.Types, typ) {
		t.Types = append(t.Types, typ)
	}
	return nil
}

// AddName adds a name to topic id. Equal names are stored once.
func (g *Graph) AddName(id string, n Name) error {
	if n.Type != nil {
		if _, err := g.Topic(*n.Type); err != nil {
			return errors.Wrap(err, "name type")
		}
	}
	if err := g.ensureThemes(n.Scope); err != nil {
		return err
	}
	t, err := g.get(id)
	if err != nil {
		return err
	}
	for _, existing := range t.Names {
		if existing.equal(n) {
			return nil
		}
	}
	t.Names = append(t.Names, n.clone())
	return nil
}

// AddOccurrence adds an occurrence to topic id. An empty datatype means XSDString.
func (g *Graph) AddOccurrence(id string, o Occurrence) error {
	if o.Datatype == "" {
		o.Datatype = XSDString
	}
	if _, err := g.Topic(o.Type); err != nil {
		return errors.Wrap(err, "occurrence type")
	}
	if err := g.ensureThemes(o.Scope); err != nil {
		return err
	}
	t, err := g.get(id)
	if err != nil {
		return err
	}
	for _, existing := range t.Occurrences {
		if existing.equal(o) {
			return nil
		}
	}
	t.Occurrences = append(t.Occurrences, o.clone())
	return nil
}

// AddAssociation adds a and the topics it references. Equal associations are stored once.
func (g *Graph) AddAssociation(a Association) error {
	if len(a.Roles) == 0 {
		return errors.Wrapf(errors.ErrInvalidInput, "association %s has no roles", a.Type)
	}
	refs := []Ref{a.Type}
	for _, r := range a.Roles {
		refs = append(refs, r.Type, r.Player)
	}
	for _, ref := range refs {
		if _, err := g.Topic(ref); err != nil {
			return errors.Wrap(err, "association")
		}
	}
	if err := g.ensureThemes(a.Scope); err != nil {
		return err
	}

	key := associationKey(a)
	if _, dup := g.seen[key]; dup {
		return nil
	}
	g.seen[key] = struct{}{}
	g.assocs = append(g.assocs, a.Clone())
	return nil
}

// Topics returns copies of the live topics in creation order
func (g *Graph) Topics() []Topic {
	out := make([]Topic, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.topics[id].Clone())
	}
	return out
}

// Associations returns copies of the associations in insertion order
func (g *Graph) Associations() []Association {
	out := make([]Association, len(g.assocs))
	for i, a := range g.assocs {
		out[i] = a.Clone()
	}
	return out
}

// TopicCount is the number of live topics
func (g *Graph) TopicCount() int { return len(g.order) }

func (g *Graph) get(id string) (*Topic, error) {
	t, ok := g.topics[g.Resolve(id)]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownTopic, "topic %q", id)
	}
	return t, nil
}

func (g *Graph) attach(t *Topic, ref Ref) {
	g.owners[ref] = t.ID
	switch ref.Kind {
	case SubjectIdentifier:
		t.SubjectIdentifiers = append(t.SubjectIdentifiers, ref.IRI)
	case SubjectLocator:
		t.SubjectLocators = append(t.SubjectLocators, ref.IRI)
	case ItemIdentifier:
		t.ItemIdentifiers = append(t.ItemIdentifiers, ref.IRI)
	}
}

// merge folds the later-created of a and b into the earlier one and returns the survivor
func (g *Graph) merge(a, b string) *Topic {
	if slices.Index(g.order, a) > slices.Index(g.order, b) {
		a, b = b, a
	}
	keep, gone := g.topics[a], g.topics[b]

	for _, ref := range gone.Identities() {
		if _, held := g.owners[ref]; held && g.owners[ref] != gone.ID {
			continue
		}
		delete(g.owners, ref)
		g.attach(keep, ref)
	}
	for _, typ := range gone.Types {
		if !slices.Contains(keep.Types, typ) {
			keep.Types = append(keep.Types, typ)
		}
	}
	for _, n := range gone.Names {
		if !slices.ContainsFunc(keep.Names, n.equal) {
			keep.Names = append(keep.Names, n)
		}
	}
	for _, o := range gone.Occurrences {
		if !slices.ContainsFunc(keep.Occurrences, o.equal) {
			keep.Occurrences = append(keep.Occurrences, o)
		}
	}

	delete(g.topics, gone.ID)
	g.order = slices.DeleteFunc(g.order, func(id string) bool { return id == gone.ID })
	g.merged[gone.ID] = keep.ID
	return keep
}

func (g *Graph) ensureThemes(scope []Ref) error {
	for _, theme := range scope {
		if _, err := g.Topic(theme); err != nil {
			return errors.Wrap(err, "scope theme")
		}
	}
	return nil
}

func checkRef(ref Ref) error {
	switch ref.Kind {
	case SubjectIdentifier, SubjectLocator, ItemIdentifier:
		return nil
	}
	return errors.Wrapf(ErrInvalidRef, "identity type %q", ref.Kind)
}

// associationKey ignores role and theme order
func associationKey(a Association) string {
	roles := make([]string, len(a.Roles))
	for i, r := range a.Roles {
		roles[i] = r.Type.String() + "=" + r.Player.String()
	}
	sort.Strings(roles)
	scope := make([]string, len(a.Scope))
	for i, s := range a.Scope {
		scope[i] = s.String()
	}
	sort.Strings(scope)
	return a.Type.String() + "|" + strings.Join(roles, ",") + "|" + strings.Join(scope, ",")
}
