package schema

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// EntityDecl declares one entity type and its relationships. It is the
// serialized form of the schema read from configuration files or derived
// from Go model source.
type EntityDecl struct {
	Type          EntityType     `yaml:"type"`
	Table         string         `yaml:"table,omitempty"`
	PrimaryKey    string         `yaml:"primary_key"`
	Columns       []string       `yaml:"columns,omitempty"`
	Discriminator string         `yaml:"discriminator,omitempty"`
	Relations     []RelationDecl `yaml:"relations,omitempty"`
}

// RelationDecl is the serialized form of a Descriptor.
type RelationDecl struct {
	Name       string       `yaml:"name"`
	Kind       string       `yaml:"kind"`
	Target     EntityType   `yaml:"target,omitempty"`
	ForeignKey string       `yaml:"foreign_key,omitempty"`
	LocalKey   string       `yaml:"local_key,omitempty"`
	OwnerKey   string       `yaml:"owner_key,omitempty"`
	MorphName  string       `yaml:"morph_name,omitempty"`
	MorphType  string       `yaml:"morph_type,omitempty"`
	Types      []EntityType `yaml:"types,omitempty"`
	Through    EntityType   `yaml:"through,omitempty"`
	SecondKey  string       `yaml:"second_key,omitempty"`
	Pivot      *Pivot       `yaml:"pivot,omitempty"`
}

// Descriptor converts the declaration into a Descriptor.
func (r RelationDecl) Descriptor() (Descriptor, error) {
	kind, err := ParseKind(r.Kind)
	if err != nil {
		return Descriptor{}, err
	}
	d := Descriptor{
		Kind:       kind,
		Target:     r.Target,
		ForeignKey: r.ForeignKey,
		LocalKey:   r.LocalKey,
		OwnerKey:   r.OwnerKey,
		MorphName:  r.MorphName,
		MorphType:  r.MorphType,
		Types:      r.Types,
		Through:    r.Through,
		SecondKey:  r.SecondKey,
		Pivot:      r.Pivot,
	}
	return d.clone(), nil
}

// Apply registers every entity of decls and then declares their
// relationships, so declarations may reference entities defined later in
// the list. It stops at the first error.
func (c *Catalog) Apply(decls []EntityDecl) error {
	for _, e := range decls {
		opts := []TableOption{WithColumns(e.Columns...)}
		if e.Discriminator != "" {
			opts = append(opts, WithDiscriminator(e.Discriminator))
		}
		if err := c.Register(e.Type, e.Table, e.PrimaryKey, opts...); err != nil {
			return err
		}
	}
	for _, e := range decls {
		for _, r := range e.Relations {
			d, err := r.Descriptor()
			if err != nil {
				return fmt.Errorf("schema: %s.%s: %w", e.Type, r.Name, err)
			}
			if err := c.DeclareRelationship(e.Type, r.Name, d); err != nil {
				return err
			}
		}
	}
	return nil
}

// LoadDeclarations decodes a YAML sequence of entity declarations.
// Unknown keys are rejected.
func LoadDeclarations(r io.Reader) ([]EntityDecl, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var decls []EntityDecl
	if err := dec.Decode(&decls); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("schema: decode declarations: %w", err)
	}
	return decls, nil
}

// Declarations returns the catalog's contents as declarations, the inverse
// of Apply. Keys are reported with their defaults filled in.
func (c *Catalog) Declarations() []EntityDecl {
	c.mu.RLock()
	defer c.mu.RUnlock()

	decls := make([]EntityDecl, 0, len(c.order))
	for _, typ := range c.order {
		t := c.tables[typ]
		e := EntityDecl{
			Type:          t.Type,
			Table:         t.Name,
			PrimaryKey:    t.PrimaryKey,
			Columns:       append([]string(nil), t.Columns...),
			Discriminator: t.Discriminator,
		}
		for _, name := range c.relationOrder[typ] {
			d := c.relations[typ][name].clone()
			e.Relations = append(e.Relations, RelationDecl{
				Name:       name,
				Kind:       d.Kind.String(),
				Target:     d.Target,
				ForeignKey: d.ForeignKey,
				LocalKey:   d.LocalKey,
				OwnerKey:   d.OwnerKey,
				MorphName:  d.MorphName,
				MorphType:  d.MorphType,
				Types:      d.Types,
				Through:    d.Through,
				SecondKey:  d.SecondKey,
				Pivot:      d.Pivot,
			})
		}
		decls = append(decls, e)
	}
	return decls
}
