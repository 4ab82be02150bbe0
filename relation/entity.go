// Package relation resolves declared relationships between entities.
//
// A Resolver turns a relationship of a schema.Catalog into a query against
// an orm.Querier, hydrates the rows into *Entity values and, for batches of
// owners, partitions them back per owner. Resolving a relationship for N
// owners issues one query (one per concrete type for morph_to), never N.
package relation

import (
	"encoding/json"
	"maps"
	"slices"

	"github.com/mickamy/ormrel/orm"
	"github.com/mickamy/ormrel/schema"
)

// Entity is a hydrated row of a registered entity type.
type Entity struct {
	Type schema.EntityType
	// Key is the primary key value. Identity is (Type, Key).
	Key any
	// Attrs maps column name to value.
	Attrs orm.Row
	// Pivot holds the pivot record of a many-to-many result, prefix stripped.
	// Nil for every other entity.
	Pivot orm.Row

	relations map[string]loaded
}

type loaded struct {
	items    []*Entity
	singular bool
}

// Get returns the value of column, or nil when absent.
func (e *Entity) Get(column string) any {
	return e.Attrs[column]
}

// Loaded reports whether the relationship name has been loaded.
func (e *Entity) Loaded(name string) bool {
	_, ok := e.relations[name]
	return ok
}

// Related returns the loaded entities of the relationship name.
func (e *Entity) Related(name string) []*Entity {
	return e.relations[name].items
}

// RelatedOne returns the loaded entity of a singular relationship, or nil.
func (e *Entity) RelatedOne(name string) *Entity {
	items := e.relations[name].items
	if len(items) == 0 {
		return nil
	}
	return items[0]
}

// Relations returns the loaded relationship names in sorted order.
func (e *Entity) Relations() []string {
	return slices.Sorted(maps.Keys(e.relations))
}

func (e *Entity) setRelated(name string, items []*Entity, singular bool) {
	if e.relations == nil {
		e.relations = make(map[string]loaded)
	}
	e.relations[name] = loaded{items: items, singular: singular}
}

// MarshalJSON encodes the attributes, the pivot record under "pivot" and
// every loaded relationship under its name.
func (e *Entity) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Attrs)+len(e.relations)+1)
	maps.Copy(out, e.Attrs)
	if e.Pivot != nil {
		out["pivot"] = e.Pivot
	}
	for name, rel := range e.relations {
		switch {
		case rel.singular && len(rel.items) == 0:
			out[name] = nil
		case rel.singular:
			out[name] = rel.items[0]
		case rel.items == nil:
			out[name] = []*Entity{}
		default:
			out[name] = rel.items
		}
	}
	return json.Marshal(out) //nolint:wrapcheck // pass through
}
