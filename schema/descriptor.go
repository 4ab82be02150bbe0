package schema

// EntityType names a registered entity, e.g. "User".
type EntityType string

// Pivot describes the intermediate table of a many-to-many relationship.
type Pivot struct {
	Table string `yaml:"table,omitempty"`
	// ForeignKey references the owner's local key.
	ForeignKey string `yaml:"foreign_key,omitempty"`
	// RelatedKey references the target's primary key.
	RelatedKey string `yaml:"related_key,omitempty"`
	// MorphType is the discriminator column of a polymorphic pivot.
	MorphType string `yaml:"morph_type,omitempty"`
	// Columns are extra columns selected as pivot_<column> and writable on attach.
	Columns []string `yaml:"columns,omitempty"`
	// Timestamps maintains created_at and updated_at on pivot rows.
	Timestamps bool `yaml:"timestamps,omitempty"`
}

// Pivot timestamp columns.
const (
	CreatedAtColumn = "created_at"
	UpdatedAtColumn = "updated_at"
)

// ExtraColumns returns the declared extra columns followed by the
// timestamp columns when Timestamps is set.
func (p *Pivot) ExtraColumns() []string {
	cols := append([]string(nil), p.Columns...)
	if p.Timestamps {
		cols = append(cols, CreatedAtColumn, UpdatedAtColumn)
	}
	return cols
}

// Writable reports whether col may be set by attach or a pivot update.
func (p *Pivot) Writable(col string) bool {
	for _, c := range p.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// Descriptor declares one relationship of an owner entity type. Fields left
// empty are filled with conventional names when the relationship is declared.
type Descriptor struct {
	Kind Kind
	// Target is the related entity type. Unused by KindMorphTo.
	Target EntityType

	// ForeignKey is the referencing column:
	//   has_one, has_many:         on the target
	//   belongs_to:                on the owner
	//   has_many_through:          on the intermediate entity
	//   morph_one, morph_many:     id column on the target
	//   morph_to:                  id column on the owner
	ForeignKey string
	// LocalKey is the owner column the foreign key points at (default: owner primary key).
	LocalKey string
	// OwnerKey is the target column a belongs_to foreign key points at
	// (default: target primary key).
	OwnerKey string

	// MorphName derives the id and type columns of polymorphic kinds,
	// e.g. "commentable" -> commentable_id, commentable_type.
	MorphName string
	// MorphType is the discriminator column (on the target for morph_one
	// and morph_many, on the owner for morph_to).
	MorphType string
	// Types restricts the entity types a morph_to may resolve to.
	// Empty allows any registered type.
	Types []EntityType

	// Through is the intermediate entity of has_many_through.
	Through EntityType
	// SecondKey is the target column referencing the intermediate primary key.
	SecondKey string

	Pivot *Pivot
}

// Option adjusts a Descriptor built by one of the constructors.
type Option func(*Descriptor)

// WithLocalKey overrides the owner column the relationship keys on.
func WithLocalKey(column string) Option {
	return func(d *Descriptor) { d.LocalKey = column }
}

// WithOwnerKey overrides the target column a belongs_to references.
func WithOwnerKey(column string) Option {
	return func(d *Descriptor) { d.OwnerKey = column }
}

// WithPivotKeys overrides the pivot columns referencing owner and target.
func WithPivotKeys(foreignKey, relatedKey string) Option {
	return func(d *Descriptor) {
		d.ensurePivot()
		d.Pivot.ForeignKey = foreignKey
		d.Pivot.RelatedKey = relatedKey
	}
}

// WithPivotColumns declares extra pivot columns.
func WithPivotColumns(columns ...string) Option {
	return func(d *Descriptor) {
		d.ensurePivot()
		d.Pivot.Columns = append(d.Pivot.Columns, columns...)
	}
}

// WithPivotTimestamps maintains created_at and updated_at on pivot rows.
func WithPivotTimestamps() Option {
	return func(d *Descriptor) {
		d.ensurePivot()
		d.Pivot.Timestamps = true
	}
}

func (d *Descriptor) ensurePivot() {
	if d.Pivot == nil {
		d.Pivot = &Pivot{}
	}
}

func build(d Descriptor, opts []Option) Descriptor {
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// HasOne declares a one-to-one relationship whose foreign key lives on target.
func HasOne(target EntityType, foreignKey string, opts ...Option) Descriptor {
	return build(Descriptor{Kind: KindHasOne, Target: target, ForeignKey: foreignKey}, opts)
}

// HasMany declares a one-to-many relationship whose foreign key lives on target.
func HasMany(target EntityType, foreignKey string, opts ...Option) Descriptor {
	return build(Descriptor{Kind: KindHasMany, Target: target, ForeignKey: foreignKey}, opts)
}

// BelongsTo declares the inverse of HasOne/HasMany; foreignKey lives on the owner.
func BelongsTo(target EntityType, foreignKey string, opts ...Option) Descriptor {
	return build(Descriptor{Kind: KindBelongsTo, Target: target, ForeignKey: foreignKey}, opts)
}

// BelongsToMany declares a many-to-many relationship stored in pivotTable.
func BelongsToMany(target EntityType, pivotTable string, opts ...Option) Descriptor {
	d := Descriptor{Kind: KindBelongsToMany, Target: target, Pivot: &Pivot{Table: pivotTable}}
	return build(d, opts)
}

// HasManyThrough declares target reached through the intermediate entity
// through: through.firstKey references the owner, target.secondKey
// references through.
func HasManyThrough(target, through EntityType, firstKey, secondKey string, opts ...Option) Descriptor {
	d := Descriptor{Kind: KindHasManyThrough, Target: target, Through: through, ForeignKey: firstKey, SecondKey: secondKey}
	return build(d, opts)
}

// MorphOne declares a polymorphic one-to-one relationship named name on target.
func MorphOne(target EntityType, name string, opts ...Option) Descriptor {
	return build(Descriptor{Kind: KindMorphOne, Target: target, MorphName: name}, opts)
}

// MorphMany declares a polymorphic one-to-many relationship named name on target.
func MorphMany(target EntityType, name string, opts ...Option) Descriptor {
	return build(Descriptor{Kind: KindMorphMany, Target: target, MorphName: name}, opts)
}

// MorphTo declares the owner side of a polymorphic reference named name.
// types, when given, is the closed set of entity types it may point to.
func MorphTo(name string, types ...EntityType) Descriptor {
	return Descriptor{Kind: KindMorphTo, MorphName: name, Types: types}
}

// MorphToMany declares a polymorphic many-to-many relationship from the
// morphable owner, e.g. Post -> Tag through "likables".
func MorphToMany(target EntityType, name string, opts ...Option) Descriptor {
	return build(Descriptor{Kind: KindMorphToMany, Target: target, MorphName: name}, opts)
}

// MorphedByMany declares the inverse of MorphToMany, e.g. Tag -> Post.
func MorphedByMany(target EntityType, name string, opts ...Option) Descriptor {
	return build(Descriptor{Kind: KindMorphedByMany, Target: target, MorphName: name}, opts)
}

// clone returns a deep copy so that catalog entries never alias caller memory.
func (d Descriptor) clone() Descriptor {
	d.Types = append([]EntityType(nil), d.Types...)
	if d.Pivot != nil {
		p := *d.Pivot
		p.Columns = append([]string(nil), p.Columns...)
		d.Pivot = &p
	}
	return d
}
