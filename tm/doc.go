// Package tm defines the Topic Map System ports used by mappa.
//
// A System holds topic maps keyed by IRI. A TopicMap is a flat store of
// topics and associations that grows through AddGraph, one Graph per
// dataset import. Backends live in sub-packages (memory, sqlstore,
// boltstore) and register themselves by name:
//
//	import _ "github.com/teranos/mappa/tm/memory"
//
//	sys, err := tm.NewInstance(tm.Config{Backend: "memory"}).NewTopicMapSystem(ctx)
//	if err != nil {
//	    return err
//	}
//	defer sys.Close()
//
// The model is deliberately small. Topics carry identities, types, names and
// occurrences; associations carry typed roles. There is no reification,
// variants or merging across stored maps.
package tm
