package relation

import (
	"fmt"
	"strings"

	"github.com/mickamy/ormrel/orm"
	"github.com/mickamy/ormrel/schema"
	"github.com/mickamy/ormrel/scope"
)

// plan is the query shape of one relationship, independent of the owners
// it is run for.
type plan struct {
	name   string
	owner  schema.Table
	target schema.Table

	// ownerColumn is the owner attribute matched against related rows.
	ownerColumn string
	// matchTable.matchColumn is filtered with the owner keys.
	matchTable  string
	matchColumn string
	// relatedKey reads the value a related entity is partitioned by.
	relatedKey func(*Entity) any

	join      *orm.JoinConfig
	extras    []selectAlias
	filters   []filter
	withPivot bool
}

type selectAlias struct {
	table, column, alias string
}

type filter struct {
	table, column string
	value         any
	notNull       bool
}

func attr(column string) func(*Entity) any {
	return func(e *Entity) any { return e.Attrs[column] }
}

func pivotAttr(column string) func(*Entity) any {
	return func(e *Entity) any { return e.Pivot[column] }
}

// plan builds the query shape of every kind but morph_to.
func (r *Resolver) plan(ownerType schema.EntityType, name string, d schema.Descriptor) (*plan, error) {
	owner, err := r.catalog.Table(ownerType)
	if err != nil {
		return nil, err
	}
	target, err := r.catalog.Table(d.Target)
	if err != nil {
		return nil, err
	}
	p := &plan{name: name, owner: owner, target: target}

	switch d.Kind {
	case schema.KindHasOne, schema.KindHasMany:
		p.ownerColumn = d.LocalKey
		p.matchTable, p.matchColumn = target.Name, d.ForeignKey
		p.relatedKey = attr(d.ForeignKey)
		p.filters = append(p.filters, filter{table: target.Name, column: d.ForeignKey, notNull: true})

	case schema.KindBelongsTo:
		p.ownerColumn = d.ForeignKey
		p.matchTable, p.matchColumn = target.Name, d.OwnerKey
		p.relatedKey = attr(d.OwnerKey)

	case schema.KindMorphOne, schema.KindMorphMany:
		p.ownerColumn = d.LocalKey
		p.matchTable, p.matchColumn = target.Name, d.ForeignKey
		p.relatedKey = attr(d.ForeignKey)
		p.filters = append(p.filters, filter{table: target.Name, column: d.MorphType, value: owner.Discriminator})

	case schema.KindHasManyThrough:
		through, err := r.catalog.Table(d.Through)
		if err != nil {
			return nil, err
		}
		p.ownerColumn = d.LocalKey
		p.matchTable, p.matchColumn = through.Name, d.ForeignKey
		p.relatedKey = attr(throughKeyAlias)
		p.join = &orm.JoinConfig{
			TargetTable:  through.Name,
			TargetColumn: through.PrimaryKey,
			SourceTable:  target.Name,
			SourceColumn: d.SecondKey,
		}
		p.extras = append(p.extras, selectAlias{through.Name, d.ForeignKey, throughKeyAlias})

	case schema.KindBelongsToMany, schema.KindMorphToMany, schema.KindMorphedByMany:
		pv := d.Pivot
		p.ownerColumn = d.LocalKey
		p.matchTable, p.matchColumn = pv.Table, pv.ForeignKey
		p.relatedKey = pivotAttr(pv.ForeignKey)
		p.withPivot = true
		p.join = &orm.JoinConfig{
			TargetTable:  pv.Table,
			TargetColumn: pv.RelatedKey,
			SourceTable:  target.Name,
			SourceColumn: target.PrimaryKey,
		}
		p.extras = append(p.extras,
			selectAlias{pv.Table, pv.ForeignKey, PivotPrefix + pv.ForeignKey},
			selectAlias{pv.Table, pv.RelatedKey, PivotPrefix + pv.RelatedKey},
		)
		if pv.MorphType != "" {
			p.extras = append(p.extras, selectAlias{pv.Table, pv.MorphType, PivotPrefix + pv.MorphType})
		}
		for _, col := range pv.ExtraColumns() {
			p.extras = append(p.extras, selectAlias{pv.Table, col, PivotPrefix + col})
		}
		switch d.Kind {
		case schema.KindMorphToMany:
			p.filters = append(p.filters, filter{table: pv.Table, column: pv.MorphType, value: owner.Discriminator})
		case schema.KindMorphedByMany:
			p.filters = append(p.filters, filter{table: pv.Table, column: pv.MorphType, value: target.Discriminator})
		}

	default:
		return nil, fmt.Errorf("relation: %s.%s: unsupported kind %v", ownerType, name, d.Kind)
	}
	return p, nil
}

// query builds the related query for the given owner keys.
func (p *plan) query(r *Resolver, keys []any) *orm.Query[*Entity] {
	d := orm.DialectOf(r.db)

	cols := []string{selectList(d, p.target)}
	for _, x := range p.extras {
		cols = append(cols, aliased(d, x.table, x.column, x.alias))
	}

	q := r.entityQuery(p.target, p.withPivot)
	if p.join != nil {
		q.RegisterJoin(p.name, *p.join)
		q = q.Join(p.name)
	}
	q = q.Select(strings.Join(cols, ", ")).
		Scopes(scope.In(orm.QualifiedColumn(d, p.matchTable, p.matchColumn), keys))

	for _, f := range p.filters {
		col := orm.QualifiedColumn(d, f.table, f.column)
		if f.notNull {
			q = q.Scopes(scope.NotNull(col))
		} else {
			q = q.Scopes(scope.Eq(col, f.value))
		}
	}
	return q
}
