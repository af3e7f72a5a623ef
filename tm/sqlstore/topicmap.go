package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/teranos/mappa/errors"
	"github.com/teranos/mappa/logger"
	"github.com/teranos/mappa/tm"
)

// Insert statements prepared once per AddGraph transaction
const (
	TopicInsertQuery       = `INSERT INTO topics (id, map_iri) VALUES (?, ?)`
	IdentityInsertQuery    = `INSERT INTO topic_identities (map_iri, kind, iri, topic_id, position) VALUES (?, ?, ?, ?, ?)`
	TopicTypeInsertQuery   = `INSERT INTO topic_types (topic_id, position, type_ref) VALUES (?, ?, ?)`
	NameInsertQuery        = `INSERT INTO names (topic_id, position, type_ref, value, scope) VALUES (?, ?, ?, ?, ?)`
	OccurrenceInsertQuery  = `INSERT INTO occurrences (topic_id, position, type_ref, value, datatype, scope) VALUES (?, ?, ?, ?, ?, ?)`
	AssociationInsertQuery = `INSERT INTO associations (map_iri, type_ref, scope) VALUES (?, ?, ?)`
	RoleInsertQuery        = `INSERT INTO roles (association_id, position, type_ref, player_ref) VALUES (?, ?, ?, ?)`
)

// Read queries, each ordered so rows append in stored order
const (
	TopicSelectQuery    = `SELECT id FROM topics WHERE map_iri = ? ORDER BY rowid`
	IdentitySelectQuery = `
		SELECT topic_id, kind, iri FROM topic_identities
		WHERE map_iri = ? ORDER BY topic_id, kind, position`
	TopicTypeSelectQuery = `
		SELECT tt.topic_id, tt.type_ref FROM topic_types tt
		JOIN topics t ON t.id = tt.topic_id
		WHERE t.map_iri = ? ORDER BY tt.topic_id, tt.position`
	NameSelectQuery = `
		SELECT n.topic_id, n.type_ref, n.value, n.scope FROM names n
		JOIN topics t ON t.id = n.topic_id
		WHERE t.map_iri = ? ORDER BY n.topic_id, n.position`
	OccurrenceSelectQuery = `
		SELECT o.topic_id, o.type_ref, o.value, o.datatype, o.scope FROM occurrences o
		JOIN topics t ON t.id = o.topic_id
		WHERE t.map_iri = ? ORDER BY o.topic_id, o.position`
)

// TopicMap is a handle on one topic_maps row
type TopicMap struct {
	store *Store
	iri   string
}

func (m *TopicMap) IRI() string { return m.iri }

func (m *TopicMap) Stats(ctx context.Context) (tm.Stats, error) {
	var stats tm.Stats
	if err := m.store.db.QueryRowContext(ctx, TopicCountQuery, m.iri).Scan(&stats.Topics); err != nil {
		return tm.Stats{}, m.store.wrap(err, "count topics in %q", m.iri)
	}
	if err := m.store.db.QueryRowContext(ctx, AssociationCountQuery, m.iri).Scan(&stats.Associations); err != nil {
		return tm.Stats{}, m.store.wrap(err, "count associations in %q", m.iri)
	}
	return stats, nil
}

// AddGraph writes g in one transaction
func (m *TopicMap) AddGraph(ctx context.Context, g *tm.Graph) error {
	tx, err := m.store.db.BeginTx(ctx, nil)
	if err != nil {
		return m.store.wrap(err, "begin add graph to %q", m.iri)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, MapExistsQuery, m.iri).Scan(&exists); err != nil {
		return errors.Wrapf(err, "add graph to %q", m.iri)
	}
	if !exists {
		return errors.Wrapf(tm.ErrMapNotFound, "add graph to %q", m.iri)
	}

	err = tm.CheckIdentities(g, func(r tm.Ref) (bool, error) {
		var held bool
		err := tx.QueryRowContext(ctx, IdentityExistsQuery, m.iri, string(r.Kind), r.IRI).Scan(&held)
		return held, err
	})
	if err != nil {
		return errors.Wrapf(err, "add graph to %q", m.iri)
	}

	w, err := prepareWriter(ctx, tx)
	if err != nil {
		return errors.Wrapf(err, "add graph to %q", m.iri)
	}
	defer w.close()

	topics := g.Topics()
	for _, t := range topics {
		if err := w.topic(ctx, m.iri, t); err != nil {
			return errors.Wrapf(err, "add graph to %q: topic %s", m.iri, t.ID)
		}
	}
	assocs := g.Associations()
	for _, a := range assocs {
		if err := w.association(ctx, m.iri, a); err != nil {
			return errors.Wrapf(err, "add graph to %q: association %s", m.iri, a.Type)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit graph to %q", m.iri)
	}
	m.store.logger.Debugw("Added graph",
		logger.FieldMapIRI, m.iri,
		logger.FieldTopicCount, len(topics),
		logger.FieldAssociationCount, len(assocs),
	)
	return nil
}

// Topics reassembles topics from their construct tables
func (m *TopicMap) Topics(ctx context.Context) ([]tm.Topic, error) {
	var (
		order []string
		byID  = make(map[string]*tm.Topic)
	)

	err := m.scan(ctx, TopicSelectQuery, func(rows *sql.Rows) error {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		order = append(order, id)
		byID[id] = &tm.Topic{ID: id}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "load topics of %q", m.iri)
	}

	err = m.scan(ctx, IdentitySelectQuery, func(rows *sql.Rows) error {
		var id, kind, iri string
		if err := rows.Scan(&id, &kind, &iri); err != nil {
			return err
		}
		t, ok := byID[id]
		if !ok {
			return nil
		}
		switch tm.RefKind(kind) {
		case tm.SubjectIdentifier:
			t.SubjectIdentifiers = append(t.SubjectIdentifiers, iri)
		case tm.SubjectLocator:
			t.SubjectLocators = append(t.SubjectLocators, iri)
		case tm.ItemIdentifier:
			t.ItemIdentifiers = append(t.ItemIdentifiers, iri)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "load identities of %q", m.iri)
	}

	err = m.scan(ctx, TopicTypeSelectQuery, func(rows *sql.Rows) error {
		var id, typ string
		if err := rows.Scan(&id, &typ); err != nil {
			return err
		}
		ref, err := tm.ParseRef(typ)
		if err != nil {
			return err
		}
		if t, ok := byID[id]; ok {
			t.Types = append(t.Types, ref)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "load topic types of %q", m.iri)
	}

	err = m.scan(ctx, NameSelectQuery, func(rows *sql.Rows) error {
		var (
			id, value, scope string
			typ              sql.NullString
		)
		if err := rows.Scan(&id, &typ, &value, &scope); err != nil {
			return err
		}
		var err error
		n := tm.Name{Value: value}
		if typ.Valid {
			ref, err := tm.ParseRef(typ.String)
			if err != nil {
				return err
			}
			n.Type = &ref
		}
		if n.Scope, err = decodeScope(scope); err != nil {
			return err
		}
		if t, ok := byID[id]; ok {
			t.Names = append(t.Names, n)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "load names of %q", m.iri)
	}

	err = m.scan(ctx, OccurrenceSelectQuery, func(rows *sql.Rows) error {
		var id, typ, scope string
		var o tm.Occurrence
		if err := rows.Scan(&id, &typ, &o.Value, &o.Datatype, &scope); err != nil {
			return err
		}
		var err error
		if o.Type, err = tm.ParseRef(typ); err != nil {
			return err
		}
		if o.Scope, err = decodeScope(scope); err != nil {
			return err
		}
		if t, ok := byID[id]; ok {
			t.Occurrences = append(t.Occurrences, o)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "load occurrences of %q", m.iri)
	}

	topics := make([]tm.Topic, len(order))
	for i, id := range order {
		topics[i] = *byID[id]
	}
	return topics, nil
}

func (m *TopicMap) scan(ctx context.Context, query string, row func(*sql.Rows) error) error {
	rows, err := m.store.db.QueryContext(ctx, query, m.iri)
	if err != nil {
		return m.store.wrap(err, "query")
	}
	defer rows.Close()
	for rows.Next() {
		if err := row(rows); err != nil {
			return errors.Wrap(err, "scan")
		}
	}
	return errors.Wrap(rows.Err(), "iterate")
}

// graphWriter holds the statements one AddGraph prepares
type graphWriter struct {
	topics, identities, types, names, occurrences, associations, roles *sql.Stmt
}

func prepareWriter(ctx context.Context, tx *sql.Tx) (*graphWriter, error) {
	w := &graphWriter{}
	targets := []struct {
		stmt  **sql.Stmt
		query string
	}{
		{&w.topics, TopicInsertQuery},
		{&w.identities, IdentityInsertQuery},
		{&w.types, TopicTypeInsertQuery},
		{&w.names, NameInsertQuery},
		{&w.occurrences, OccurrenceInsertQuery},
		{&w.associations, AssociationInsertQuery},
		{&w.roles, RoleInsertQuery},
	}
	for _, target := range targets {
		stmt, err := tx.PrepareContext(ctx, target.query)
		if err != nil {
			w.close()
			return nil, errors.Wrap(err, "prepare")
		}
		*target.stmt = stmt
	}
	return w, nil
}

func (w *graphWriter) close() {
	for _, stmt := range []*sql.Stmt{w.topics, w.identities, w.types, w.names, w.occurrences, w.associations, w.roles} {
		if stmt != nil {
			stmt.Close()
		}
	}
}

func (w *graphWriter) topic(ctx context.Context, mapIRI string, t tm.Topic) error {
	if _, err := w.topics.ExecContext(ctx, t.ID, mapIRI); err != nil {
		return errors.Wrap(err, "insert topic")
	}

	identities := []struct {
		kind tm.RefKind
		iris []string
	}{
		{tm.SubjectIdentifier, t.SubjectIdentifiers},
		{tm.SubjectLocator, t.SubjectLocators},
		{tm.ItemIdentifier, t.ItemIdentifiers},
	}
	for _, group := range identities {
		for pos, iri := range group.iris {
			if _, err := w.identities.ExecContext(ctx, mapIRI, string(group.kind), iri, t.ID, pos); err != nil {
				return errors.Wrapf(err, "insert identity %s:%s", group.kind, iri)
			}
		}
	}

	for pos, typ := range t.Types {
		if _, err := w.types.ExecContext(ctx, t.ID, pos, typ.String()); err != nil {
			return errors.Wrap(err, "insert topic type")
		}
	}

	for pos, n := range t.Names {
		var typ sql.NullString
		if n.Type != nil {
			typ = sql.NullString{String: n.Type.String(), Valid: true}
		}
		scope, err := encodeScope(n.Scope)
		if err != nil {
			return err
		}
		if _, err := w.names.ExecContext(ctx, t.ID, pos, typ, n.Value, scope); err != nil {
			return errors.Wrap(err, "insert name")
		}
	}

	for pos, o := range t.Occurrences {
		scope, err := encodeScope(o.Scope)
		if err != nil {
			return err
		}
		if _, err := w.occurrences.ExecContext(ctx, t.ID, pos, o.Type.String(), o.Value, o.Datatype, scope); err != nil {
			return errors.Wrap(err, "insert occurrence")
		}
	}
	return nil
}

func (w *graphWriter) association(ctx context.Context, mapIRI string, a tm.Association) error {
	scope, err := encodeScope(a.Scope)
	if err != nil {
		return err
	}
	res, err := w.associations.ExecContext(ctx, mapIRI, a.Type.String(), scope)
	if err != nil {
		return errors.Wrap(err, "insert association")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "association id")
	}
	for pos, r := range a.Roles {
		if _, err := w.roles.ExecContext(ctx, id, pos, r.Type.String(), r.Player.String()); err != nil {
			return errors.Wrap(err, "insert role")
		}
	}
	return nil
}

// encodeScope stores scope as a JSON array of textual refs
func encodeScope(scope []tm.Ref) (string, error) {
	if len(scope) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(scope)
	if err != nil {
		return "", errors.Wrap(err, "marshal scope")
	}
	return string(data), nil
}

// decodeScope returns nil for the unconstrained scope
func decodeScope(data string) ([]tm.Ref, error) {
	var scope []tm.Ref
	if err := json.Unmarshal([]byte(data), &scope); err != nil {
		return nil, errors.Wrap(err, "unmarshal scope")
	}
	if len(scope) == 0 {
		return nil, nil
	}
	return scope, nil
}
