// Package schema is the read-only registry of entity tables and their
// declared relationships.
//
// A Catalog is populated once at startup, either through Register and
// DeclareRelationship or from declarations (Apply), and may then be frozen.
// Every key column a relationship names is checked against the table it
// lives on when the relationship is declared, so resolution never meets a
// dangling column.
package schema

import (
	"fmt"
	"slices"
	"sync"

	"github.com/mickamy/ormrel/internal/naming"
)

// Table is the registered metadata of one entity type.
type Table struct {
	Type       EntityType
	Name       string
	PrimaryKey string
	// Columns always includes PrimaryKey.
	Columns []string
	// Discriminator is the value stored in polymorphic type columns for
	// this entity. Defaults to the type name.
	Discriminator string
}

// HasColumn reports whether col is a declared column of the table.
func (t Table) HasColumn(col string) bool {
	return slices.Contains(t.Columns, col)
}

// TableOption configures Register.
type TableOption func(*Table)

// WithColumns declares the table's columns. The primary key is added
// automatically.
func WithColumns(columns ...string) TableOption {
	return func(t *Table) { t.Columns = append(t.Columns, columns...) }
}

// WithDiscriminator sets the value polymorphic type columns store for the entity.
func WithDiscriminator(value string) TableOption {
	return func(t *Table) { t.Discriminator = value }
}

// Catalog maps entity types to tables and declared relationships.
// It is safe for concurrent use; after initialization it is read-only.
type Catalog struct {
	mu              sync.RWMutex
	tables          map[EntityType]*Table
	order           []EntityType
	byDiscriminator map[string]EntityType
	relations       map[EntityType]map[string]Descriptor
	relationOrder   map[EntityType][]string
	frozen          bool
}

// NewCatalog returns an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		tables:          make(map[EntityType]*Table),
		byDiscriminator: make(map[string]EntityType),
		relations:       make(map[EntityType]map[string]Descriptor),
		relationOrder:   make(map[EntityType][]string),
	}
}

// Register adds an entity type backed by table with the given primary key
// column. An empty table name is derived from the type name ("User" ->
// "users").
func (c *Catalog) Register(typ EntityType, table, primaryKey string, opts ...TableOption) error {
	if typ == "" {
		return fmt.Errorf("schema: empty entity type")
	}
	if primaryKey == "" {
		return fmt.Errorf("schema: %s: empty primary key", typ)
	}
	if table == "" {
		table = naming.TableName(string(typ))
	}

	t := &Table{Type: typ, Name: table, PrimaryKey: primaryKey, Columns: []string{primaryKey}}
	for _, opt := range opts {
		opt(t)
	}
	t.Columns = dedupe(t.Columns)
	if t.Discriminator == "" {
		t.Discriminator = string(typ)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return ErrFrozen
	}
	if _, ok := c.tables[typ]; ok {
		return fmt.Errorf("%w: entity type %s", ErrDuplicateRegistration, typ)
	}
	if other, ok := c.byDiscriminator[t.Discriminator]; ok {
		return fmt.Errorf("%w: discriminator %q already maps to %s", ErrDuplicateRegistration, t.Discriminator, other)
	}

	c.tables[typ] = t
	c.order = append(c.order, typ)
	c.byDiscriminator[t.Discriminator] = typ
	return nil
}

// DeclareRelationship attaches the relationship name to owner. Conventional
// names are filled in for empty key fields, then every key column is checked
// against the table it resides on.
func (c *Catalog) DeclareRelationship(owner EntityType, name string, d Descriptor) error {
	if name == "" {
		return fmt.Errorf("schema: %s: empty relationship name", owner)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		return ErrFrozen
	}
	ownerTable, ok := c.tables[owner]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntityType, owner)
	}
	if _, ok := c.relations[owner][name]; ok {
		return fmt.Errorf("%w: relationship %s.%s", ErrDuplicateRegistration, owner, name)
	}

	d = d.clone()
	if err := c.complete(ownerTable, &d); err != nil {
		return fmt.Errorf("schema: %s.%s: %w", owner, name, err)
	}
	if err := c.validate(ownerTable, &d); err != nil {
		return fmt.Errorf("schema: %s.%s: %w", owner, name, err)
	}

	if c.relations[owner] == nil {
		c.relations[owner] = make(map[string]Descriptor)
	}
	c.relations[owner][name] = d
	c.relationOrder[owner] = append(c.relationOrder[owner], name)
	return nil
}

// ResolveDescriptor returns the relationship name declared on owner.
func (c *Catalog) ResolveDescriptor(owner EntityType, name string) (Descriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, ok := c.tables[owner]; !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownEntityType, owner)
	}
	d, ok := c.relations[owner][name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s.%s", ErrUnknownRelationship, owner, name)
	}
	return d.clone(), nil
}

// Table returns the registered table of typ.
func (c *Catalog) Table(typ EntityType) (Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tables[typ]
	if !ok {
		return Table{}, fmt.Errorf("%w: %s", ErrUnknownEntityType, typ)
	}
	return *t, nil
}

// TypeForDiscriminator maps a stored polymorphic type value back to its
// entity type.
func (c *Catalog) TypeForDiscriminator(value string) (EntityType, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	typ, ok := c.byDiscriminator[value]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDiscriminator, value)
	}
	return typ, nil
}

// Types returns the registered entity types in registration order.
func (c *Catalog) Types() []EntityType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]EntityType(nil), c.order...)
}

// Relationships returns the relationship names declared on owner in
// declaration order.
func (c *Catalog) Relationships(owner EntityType) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.relationOrder[owner]...)
}

// Freeze closes the catalog for registration.
func (c *Catalog) Freeze() {
	c.mu.Lock()
	c.frozen = true
	c.mu.Unlock()
}

// complete fills conventional key names. Callers hold c.mu.
func (c *Catalog) complete(owner *Table, d *Descriptor) error {
	ownerType := string(owner.Type)
	targetType := string(d.Target)

	if d.Kind != KindMorphTo && d.Target == "" {
		return fmt.Errorf("%s relationship without target", d.Kind)
	}
	if d.Kind != KindBelongsTo && d.LocalKey == "" {
		d.LocalKey = owner.PrimaryKey
	}

	switch d.Kind {
	case KindHasOne, KindHasMany:
		d.ForeignKey = or(d.ForeignKey, naming.ForeignKey(ownerType))
	case KindBelongsTo:
		d.ForeignKey = or(d.ForeignKey, naming.ForeignKey(targetType))
		if d.OwnerKey == "" {
			if t, ok := c.tables[d.Target]; ok {
				d.OwnerKey = t.PrimaryKey
			}
		}
	case KindHasManyThrough:
		if d.Through == "" {
			return fmt.Errorf("has_many_through without intermediate type")
		}
		d.ForeignKey = or(d.ForeignKey, naming.ForeignKey(ownerType))
		d.SecondKey = or(d.SecondKey, naming.ForeignKey(string(d.Through)))
	case KindMorphOne, KindMorphMany, KindMorphTo:
		if d.MorphName == "" && (d.ForeignKey == "" || d.MorphType == "") {
			return fmt.Errorf("%s without morph name", d.Kind)
		}
		id, typ := naming.MorphColumns(d.MorphName)
		d.ForeignKey = or(d.ForeignKey, id)
		d.MorphType = or(d.MorphType, typ)
	case KindBelongsToMany:
		d.ensurePivot()
		d.Pivot.Table = or(d.Pivot.Table, naming.PivotTable(ownerType, targetType))
		d.Pivot.ForeignKey = or(d.Pivot.ForeignKey, naming.ForeignKey(ownerType))
		d.Pivot.RelatedKey = or(d.Pivot.RelatedKey, naming.ForeignKey(targetType))
	case KindMorphToMany, KindMorphedByMany:
		d.ensurePivot()
		if d.MorphName == "" && (d.Pivot.Table == "" || d.Pivot.MorphType == "") {
			return fmt.Errorf("%s without morph name", d.Kind)
		}
		id, typ := naming.MorphColumns(d.MorphName)
		d.Pivot.Table = or(d.Pivot.Table, naming.MorphTable(d.MorphName))
		d.Pivot.MorphType = or(d.Pivot.MorphType, typ)
		if d.Kind == KindMorphToMany {
			d.Pivot.ForeignKey = or(d.Pivot.ForeignKey, id)
			d.Pivot.RelatedKey = or(d.Pivot.RelatedKey, naming.ForeignKey(targetType))
		} else {
			d.Pivot.ForeignKey = or(d.Pivot.ForeignKey, naming.ForeignKey(ownerType))
			d.Pivot.RelatedKey = or(d.Pivot.RelatedKey, id)
		}
	default:
		return fmt.Errorf("unknown relationship kind %v", d.Kind)
	}
	return nil
}

// validate checks that every referenced type is registered and every key
// column exists where it is declared. Callers hold c.mu.
func (c *Catalog) validate(owner *Table, d *Descriptor) error {
	var target *Table
	if d.Kind != KindMorphTo {
		t, ok := c.tables[d.Target]
		if !ok {
			return fmt.Errorf("%w: target %s", ErrUnknownEntityType, d.Target)
		}
		target = t
	}
	if d.Kind != KindBelongsTo {
		if err := requireColumn(owner, d.LocalKey); err != nil {
			return err
		}
	}

	switch d.Kind {
	case KindHasOne, KindHasMany:
		return requireColumn(target, d.ForeignKey)
	case KindBelongsTo:
		if err := requireColumn(owner, d.ForeignKey); err != nil {
			return err
		}
		return requireColumn(target, d.OwnerKey)
	case KindHasManyThrough:
		through, ok := c.tables[d.Through]
		if !ok {
			return fmt.Errorf("%w: intermediate %s", ErrUnknownEntityType, d.Through)
		}
		if err := requireColumn(through, d.ForeignKey); err != nil {
			return err
		}
		return requireColumn(target, d.SecondKey)
	case KindMorphOne, KindMorphMany:
		if err := requireColumn(target, d.ForeignKey); err != nil {
			return err
		}
		return requireColumn(target, d.MorphType)
	case KindMorphTo:
		for _, typ := range d.Types {
			if _, ok := c.tables[typ]; !ok {
				return fmt.Errorf("%w: morph target %s", ErrUnknownEntityType, typ)
			}
		}
		if err := requireColumn(owner, d.ForeignKey); err != nil {
			return err
		}
		return requireColumn(owner, d.MorphType)
	default: // pivot kinds
		p := d.Pivot
		if p.Table == "" || p.ForeignKey == "" || p.RelatedKey == "" {
			return fmt.Errorf("%w: incomplete pivot %+v", ErrMissingColumn, *p)
		}
		if d.Kind.Polymorphic() && p.MorphType == "" {
			return fmt.Errorf("%w: pivot %s has no morph type column", ErrMissingColumn, p.Table)
		}
		for _, col := range p.Columns {
			if col == "" || col == p.ForeignKey || col == p.RelatedKey || col == p.MorphType {
				return fmt.Errorf("schema: invalid pivot column %q on %s", col, p.Table)
			}
		}
		return nil
	}
}

func requireColumn(t *Table, col string) error {
	if col == "" || !t.HasColumn(col) {
		return fmt.Errorf("%w: %s.%s", ErrMissingColumn, t.Name, col)
	}
	return nil
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func dedupe(cols []string) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if c != "" && !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}
