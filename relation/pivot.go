package relation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mickamy/ormrel/orm"
	"github.com/mickamy/ormrel/schema"
	"github.com/mickamy/ormrel/scope"
)

// pivotTarget is a resolved many-to-many relationship of one owner.
type pivotTarget struct {
	name     string
	owner    *Entity
	ownerKey any
	pivot    *schema.Pivot
	target   schema.Table
	// morph is the discriminator stored in pivot.MorphType, empty for
	// plain many-to-many.
	morph string
}

func (r *Resolver) pivotTarget(owner *Entity, name string) (*pivotTarget, error) {
	if owner == nil {
		return nil, errors.New("relation: nil owner")
	}
	d, err := r.catalog.ResolveDescriptor(owner.Type, name)
	if err != nil {
		return nil, err
	}
	if !d.Kind.UsesPivot() {
		return nil, fmt.Errorf("%w: %s.%s is %s", ErrNotPivot, owner.Type, name, d.Kind)
	}
	ownerTable, err := r.catalog.Table(owner.Type)
	if err != nil {
		return nil, err
	}
	target, err := r.catalog.Table(d.Target)
	if err != nil {
		return nil, err
	}
	ownerKey, ok := owner.Attrs[d.LocalKey]
	if !ok || ownerKey == nil {
		return nil, fmt.Errorf("%w: %s.%s not loaded", schema.ErrMissingColumn, owner.Type, d.LocalKey)
	}

	pt := &pivotTarget{name: name, owner: owner, ownerKey: ownerKey, pivot: d.Pivot, target: target}
	switch d.Kind {
	case schema.KindMorphToMany:
		pt.morph = ownerTable.Discriminator
	case schema.KindMorphedByMany:
		pt.morph = target.Discriminator
	}
	return pt, nil
}

// keyOf returns the pivot value referencing target: the primary key of an
// *Entity, or target itself.
func (pt *pivotTarget) keyOf(target any) (any, error) {
	e, ok := target.(*Entity)
	if !ok {
		if target == nil {
			return nil, errors.New("relation: nil target key")
		}
		return target, nil
	}
	if e.Type != pt.target.Type {
		return nil, fmt.Errorf("relation: %s.%s relates %s, got %s", pt.owner.Type, pt.name, pt.target.Type, e.Type)
	}
	if v, ok := e.Attrs[pt.target.PrimaryKey]; ok && v != nil {
		return v, nil
	}
	if e.Key != nil {
		return e.Key, nil
	}
	return nil, fmt.Errorf("%w: %s.%s not loaded", schema.ErrMissingColumn, e.Type, pt.target.PrimaryKey)
}

// query returns a query over the pivot table narrowed to the owner's rows.
func (pt *pivotTarget) query(db orm.Querier) *orm.Query[orm.Row] {
	qi := orm.DialectOf(db).QuoteIdent
	q := orm.NewQuery[orm.Row](db, pt.pivot.Table, nil, "", nil, orm.RowColumnValues).
		Scopes(scope.Eq(qi(pt.pivot.ForeignKey), pt.ownerKey))
	if pt.morph != "" {
		q = q.Scopes(scope.Eq(qi(pt.pivot.MorphType), pt.morph))
	}
	return q
}

func (pt *pivotTarget) checkWritable(values map[string]any) error {
	for col := range values {
		if !pt.pivot.Writable(col) {
			return fmt.Errorf("%w: %s.%s is not a declared pivot column", schema.ErrMissingColumn, pt.pivot.Table, col)
		}
	}
	return nil
}

// Attach links owner to target (a key or an *Entity) through the pivot
// table of the relationship name, storing the declared extra columns in
// extra. Timestamps are taken from the orm clock of ctx. Attaching a pair
// that is already linked changes nothing and reports false.
func (r *Resolver) Attach(ctx context.Context, owner *Entity, name string, target any, extra map[string]any) (bool, error) {
	pt, err := r.pivotTarget(owner, name)
	if err != nil {
		return false, err
	}
	targetKey, err := pt.keyOf(target)
	if err != nil {
		return false, err
	}
	if err := pt.checkWritable(extra); err != nil {
		return false, err
	}

	row := orm.Row{pt.pivot.ForeignKey: pt.ownerKey, pt.pivot.RelatedKey: targetKey}
	keys := []string{pt.pivot.ForeignKey, pt.pivot.RelatedKey}
	if pt.morph != "" {
		row[pt.pivot.MorphType] = pt.morph
		keys = append(keys, pt.pivot.MorphType)
	}
	for col, v := range extra {
		row[col] = v
	}
	if pt.pivot.Timestamps {
		now := orm.Now(ctx)
		row[schema.CreatedAtColumn] = now
		row[schema.UpdatedAtColumn] = now
	}

	q := orm.NewQuery[orm.Row](r.db, pt.pivot.Table, nil, "", nil, orm.RowColumnValues)
	inserted, err := q.CreateIfAbsent(ctx, &row, keys)
	if err != nil {
		return false, execError(owner.Type, name, err)
	}
	r.logger.Debug("pivot attached",
		zap.String("relation", string(owner.Type)+"."+name),
		zap.Any("owner", pt.ownerKey),
		zap.Any("target", targetKey),
		zap.Bool("inserted", inserted),
	)
	return inserted, nil
}

// Detach removes the pivot rows linking owner to targets and returns the
// number removed. Without targets every pivot row of owner is removed.
// Removing nothing is not an error.
func (r *Resolver) Detach(ctx context.Context, owner *Entity, name string, targets ...any) (int64, error) {
	pt, err := r.pivotTarget(owner, name)
	if err != nil {
		return 0, err
	}
	q := pt.query(r.db)
	if len(targets) > 0 {
		keys := make([]any, len(targets))
		for i, t := range targets {
			if keys[i], err = pt.keyOf(t); err != nil {
				return 0, err
			}
		}
		q = q.Scopes(scope.In(orm.DialectOf(r.db).QuoteIdent(pt.pivot.RelatedKey), keys))
	}

	n, err := q.Delete(ctx)
	if err != nil {
		return 0, execError(owner.Type, name, err)
	}
	r.logger.Debug("pivot detached",
		zap.String("relation", string(owner.Type)+"."+name),
		zap.Any("owner", pt.ownerKey),
		zap.Int64("rows", n),
	)
	return n, nil
}

// UpdatePivot sets declared extra columns on the pivot row linking owner
// and target, refreshing updated_at when timestamps are maintained. It
// returns the number of rows updated.
func (r *Resolver) UpdatePivot(ctx context.Context, owner *Entity, name string, target any, values map[string]any) (int64, error) {
	pt, err := r.pivotTarget(owner, name)
	if err != nil {
		return 0, err
	}
	targetKey, err := pt.keyOf(target)
	if err != nil {
		return 0, err
	}
	if err := pt.checkWritable(values); err != nil {
		return 0, err
	}

	row := make(orm.Row, len(values)+1)
	for col, v := range values {
		row[col] = v
	}
	if pt.pivot.Timestamps {
		row[schema.UpdatedAtColumn] = orm.Now(ctx)
	}
	if len(row) == 0 {
		return 0, fmt.Errorf("relation: %s.%s: no pivot columns to update", owner.Type, name)
	}

	q := pt.query(r.db).Scopes(scope.Eq(orm.DialectOf(r.db).QuoteIdent(pt.pivot.RelatedKey), targetKey))
	n, err := q.UpdateColumns(ctx, &row)
	if err != nil {
		return 0, execError(owner.Type, name, err)
	}
	return n, nil
}

// SyncResult reports the target keys Sync attached and detached.
type SyncResult struct {
	Attached []any
	Detached []any
}

// Sync makes targets the exact set of entities linked to owner: pivot rows
// for other targets are detached and missing ones attached. It issues
// several statements; run it through WithQuerier with a *orm.Tx to make it
// atomic.
func (r *Resolver) Sync(ctx context.Context, owner *Entity, name string, targets []any) (SyncResult, error) {
	var res SyncResult

	pt, err := r.pivotTarget(owner, name)
	if err != nil {
		return res, err
	}

	var filters []scope.Scope
	if pt.morph != "" {
		filters = append(filters, scope.Eq(orm.DialectOf(r.db).QuoteIdent(pt.pivot.MorphType), pt.morph))
	}
	pairs, err := orm.QueryJoinTable[any, any](
		ctx, r.db, pt.pivot.Table, pt.pivot.ForeignKey, pt.pivot.RelatedKey, []any{pt.ownerKey}, filters...,
	)
	if err != nil {
		return res, execError(owner.Type, name, err)
	}

	current := make(map[string]struct{})
	for _, k := range orm.UniqueTargets(pairs) {
		if s, ok := keyString(k); ok {
			current[s] = struct{}{}
		}
	}
	wanted := make(map[string]struct{}, len(targets))
	var toAttach []any
	for _, t := range targets {
		k, err := pt.keyOf(t)
		if err != nil {
			return res, err
		}
		s, _ := keyString(k)
		if _, dup := wanted[s]; dup {
			continue
		}
		wanted[s] = struct{}{}
		if _, ok := current[s]; !ok {
			toAttach = append(toAttach, k)
		}
	}
	for _, k := range orm.UniqueTargets(pairs) {
		if s, ok := keyString(k); ok {
			if _, keep := wanted[s]; !keep {
				res.Detached = append(res.Detached, k)
			}
		}
	}

	if len(res.Detached) > 0 {
		if _, err := r.Detach(ctx, owner, name, res.Detached...); err != nil {
			return SyncResult{}, err
		}
	}
	for _, k := range toAttach {
		inserted, err := r.Attach(ctx, owner, name, k, nil)
		if err != nil {
			return res, err
		}
		if inserted {
			res.Attached = append(res.Attached, k)
		}
	}
	return res, nil
}
