package schema

import "fmt"

// Kind identifies how a relationship is resolved.
type Kind int

const (
	// KindHasOne: target.fk = owner.local, at most one target.
	KindHasOne Kind = iota + 1
	// KindHasMany: target.fk = owner.local.
	KindHasMany
	// KindBelongsTo: owner.fk = target.owner_key, at most one target.
	KindBelongsTo
	// KindBelongsToMany: owner and target linked through a pivot table.
	KindBelongsToMany
	// KindHasManyThrough: target reached through an intermediate entity.
	KindHasManyThrough
	// KindMorphOne: target.morph_id = owner.local AND target.morph_type = owner discriminator, at most one.
	KindMorphOne
	// KindMorphMany: like KindMorphOne without the cardinality limit.
	KindMorphMany
	// KindMorphTo: owner.morph_type picks the target type, owner.morph_id its key.
	KindMorphTo
	// KindMorphToMany: polymorphic pivot seen from the morphable owner.
	KindMorphToMany
	// KindMorphedByMany: polymorphic pivot seen from the shared side.
	KindMorphedByMany
)

var kindNames = map[Kind]string{
	KindHasOne:         "has_one",
	KindHasMany:        "has_many",
	KindBelongsTo:      "belongs_to",
	KindBelongsToMany:  "belongs_to_many",
	KindHasManyThrough: "has_many_through",
	KindMorphOne:       "morph_one",
	KindMorphMany:      "morph_many",
	KindMorphTo:        "morph_to",
	KindMorphToMany:    "morph_to_many",
	KindMorphedByMany:  "morphed_by_many",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind returns the Kind named s ("has_many", "morph_to", ...).
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("schema: unknown relationship kind %q", s)
}

// Singular reports whether the relationship resolves to at most one entity.
func (k Kind) Singular() bool {
	switch k {
	case KindHasOne, KindBelongsTo, KindMorphOne, KindMorphTo:
		return true
	default:
		return false
	}
}

// UsesPivot reports whether the relationship is stored in a pivot table.
func (k Kind) UsesPivot() bool {
	switch k {
	case KindBelongsToMany, KindMorphToMany, KindMorphedByMany:
		return true
	default:
		return false
	}
}

// Polymorphic reports whether the relationship carries a type discriminator.
func (k Kind) Polymorphic() bool {
	switch k {
	case KindMorphOne, KindMorphMany, KindMorphTo, KindMorphToMany, KindMorphedByMany:
		return true
	default:
		return false
	}
}
