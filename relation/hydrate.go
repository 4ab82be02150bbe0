package relation

import (
	"fmt"
	"maps"
	"strings"

	"github.com/mickamy/ormrel/orm"
	"github.com/mickamy/ormrel/schema"
)

// PivotPrefix is the alias prefix of pivot columns in many-to-many results.
const PivotPrefix = "pivot_"

// Hydrator builds entities from result rows.
type Hydrator struct {
	catalog *schema.Catalog
}

// NewHydrator returns a Hydrator reading table metadata from c.
func NewHydrator(c *schema.Catalog) *Hydrator {
	return &Hydrator{catalog: c}
}

// Hydrate builds an entity of typ from row. The row is copied.
// Returns schema.ErrMissingColumn if the primary key column is absent.
func (h *Hydrator) Hydrate(typ schema.EntityType, row orm.Row) (*Entity, error) {
	t, err := h.catalog.Table(typ)
	if err != nil {
		return nil, err
	}
	return hydrate(t, row)
}

func hydrate(t schema.Table, row orm.Row) (*Entity, error) {
	key, ok := row[t.PrimaryKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s not in row", schema.ErrMissingColumn, t.Name, t.PrimaryKey)
	}
	return &Entity{Type: t.Type, Key: key, Attrs: maps.Clone(row)}, nil
}

// HydrateWithPivot is Hydrate, except that columns starting with prefix
// are moved, prefix stripped, into the entity's Pivot record. Declared
// columns of typ stay attributes even when they start with prefix.
func (h *Hydrator) HydrateWithPivot(typ schema.EntityType, row orm.Row, prefix string) (*Entity, error) {
	t, err := h.catalog.Table(typ)
	if err != nil {
		return nil, err
	}
	e, err := hydrate(t, row)
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		return e, nil
	}
	for col, v := range e.Attrs {
		name, ok := strings.CutPrefix(col, prefix)
		if !ok || t.HasColumn(col) {
			continue
		}
		if e.Pivot == nil {
			e.Pivot = make(orm.Row)
		}
		e.Pivot[name] = v
		delete(e.Attrs, col)
	}
	return e, nil
}
