package relation

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/mickamy/ormrel/orm"
	"github.com/mickamy/ormrel/schema"
	"github.com/mickamy/ormrel/scope"
)

// Load resolves the relationship name for owners and stores the results on
// each owner (see Entity.Related). Owners must not be loaded concurrently.
func (r *Resolver) Load(ctx context.Context, owners []*Entity, name string, scopes ...scope.Scope) error {
	parts, err := r.Resolve(ctx, owners, name, scopes...)
	if err != nil {
		return err
	}
	singular, err := r.singular(owners, name)
	if err != nil {
		return err
	}
	for i, o := range owners {
		o.setRelated(name, parts[i], singular)
	}
	return nil
}

// LoadAll loads several relationships of owners. Up to WithConcurrency
// relationships are resolved at once; results are stored only when every
// relationship resolved.
func (r *Resolver) LoadAll(ctx context.Context, owners []*Entity, names ...string) error {
	if len(owners) == 0 || len(names) == 0 {
		return nil
	}

	results := make([][][]*Entity, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, name := range names {
		g.Go(func() error {
			parts, err := r.Resolve(gctx, owners, name)
			if err != nil {
				return err
			}
			results[i] = parts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err //nolint:wrapcheck // already wrapped by Resolve
	}

	for i, name := range names {
		singular, err := r.singular(owners, name)
		if err != nil {
			return err
		}
		for j, o := range owners {
			o.setRelated(name, results[i][j], singular)
		}
	}
	return nil
}

func (r *Resolver) singular(owners []*Entity, name string) (bool, error) {
	if len(owners) == 0 {
		return false, nil
	}
	d, err := r.catalog.ResolveDescriptor(owners[0].Type, name)
	if err != nil {
		return false, err
	}
	return d.Kind.Singular(), nil
}

// morphGroup is the set of keys a morph_to batch references in one
// concrete table.
type morphGroup struct {
	table schema.Table
	keys  []any
	found map[string]*Entity
}

// resolveMorphTo reads each owner's discriminator, maps it to a registered
// type and issues one query per concrete type. A NULL or empty
// discriminator resolves to nothing; an unknown one fails the whole call.
func (r *Resolver) resolveMorphTo(
	ctx context.Context, ownerType schema.EntityType, name string, d schema.Descriptor, owners []*Entity, scopes []scope.Scope,
) ([][]*Entity, error) {
	refs := make([]orm.JoinPair[string, any], 0, len(owners))
	seen := make(map[string]struct{})
	for _, o := range owners {
		typ, ok := o.Attrs[d.MorphType]
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s not loaded", schema.ErrMissingColumn, ownerType, d.MorphType)
		}
		id, ok := o.Attrs[d.ForeignKey]
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s not loaded", schema.ErrMissingColumn, ownerType, d.ForeignKey)
		}
		disc, ok := keyString(typ)
		if !ok {
			continue
		}
		// a discriminator is validated even when its id is NULL
		seen[disc] = struct{}{}
		if id == nil {
			continue
		}
		refs = append(refs, orm.JoinPair[string, any]{Source: disc, Target: id})
	}

	byDisc := orm.GroupBySource(refs)
	discs := slices.Sorted(maps.Keys(seen))

	groups := make(map[string]*morphGroup, len(discs))
	for _, disc := range discs {
		typ, err := r.catalog.TypeForDiscriminator(disc)
		if err != nil {
			return nil, fmt.Errorf("relation: %s.%s: %w", ownerType, name, err)
		}
		if len(d.Types) > 0 && !slices.Contains(d.Types, typ) {
			return nil, fmt.Errorf("relation: %s.%s: %w: %s is not a declared target",
				ownerType, name, schema.ErrUnknownDiscriminator, typ)
		}
		if len(byDisc[disc]) == 0 {
			continue
		}
		t, err := r.catalog.Table(typ)
		if err != nil {
			return nil, err
		}
		groups[disc] = &morphGroup{table: t, keys: uniqueKeys(byDisc[disc]), found: make(map[string]*Entity)}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	dialect := orm.DialectOf(r.db)
	for _, disc := range discs {
		grp := groups[disc]
		if grp == nil {
			continue
		}
		g.Go(func() error {
			q := r.entityQuery(grp.table, false).
				Select(selectList(dialect, grp.table)).
				Scopes(scope.In(orm.QualifiedColumn(dialect, grp.table.Name, grp.table.PrimaryKey), grp.keys)).
				Scopes(scopes...)
			if len(grp.keys) == 1 {
				q = q.Limit(1)
			}
			related, err := q.All(gctx)
			if err != nil {
				return execError(ownerType, name, err)
			}
			for _, e := range related {
				if k, ok := keyString(e.Key); ok {
					grp.found[k] = e
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err //nolint:wrapcheck // wrapped in the goroutine
	}

	parts := make([][]*Entity, len(owners))
	for i, o := range owners {
		disc, ok := keyString(o.Attrs[d.MorphType])
		if !ok {
			continue
		}
		grp := groups[disc]
		if grp == nil {
			continue
		}
		if k, ok := keyString(o.Attrs[d.ForeignKey]); ok {
			if e := grp.found[k]; e != nil {
				parts[i] = []*Entity{e}
			}
		}
	}
	return parts, nil
}

func uniqueKeys(keys []any) []any {
	seen := make(map[string]struct{}, len(keys))
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		s, ok := keyString(k)
		if !ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, k)
	}
	return out
}
