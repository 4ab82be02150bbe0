package relation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mickamy/ormrel/orm"
	"github.com/mickamy/ormrel/schema"
	"github.com/mickamy/ormrel/scope"
)

// throughKeyAlias is the alias of the intermediate foreign key selected by
// has_many_through queries. It is removed from the hydrated attributes.
const throughKeyAlias = "through_key"

// Resolver resolves relationships declared in a Catalog against a Querier.
// A Resolver holds no mutable state and may be shared between goroutines.
type Resolver struct {
	catalog     *schema.Catalog
	db          orm.Querier
	hydrator    *Hydrator
	logger      *zap.Logger
	concurrency int
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger logs resolution outcomes at debug level.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithConcurrency bounds the number of queries LoadAll and morph_to
// resolution run at once. The default of 1 is required for *orm.Tx.
func WithConcurrency(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewResolver returns a Resolver for the relationships declared in c.
func NewResolver(c *schema.Catalog, db orm.Querier, opts ...Option) *Resolver {
	r := &Resolver{
		catalog:     c,
		db:          db,
		hydrator:    NewHydrator(c),
		logger:      zap.NewNop(),
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithQuerier returns a copy of r that executes through q, e.g. a *orm.Tx.
func (r *Resolver) WithQuerier(q orm.Querier) *Resolver {
	r2 := *r
	r2.db = q
	return &r2
}

// Catalog returns the catalog r resolves against.
func (r *Resolver) Catalog() *schema.Catalog { return r.catalog }

// Hydrator returns the hydrator r builds entities with.
func (r *Resolver) Hydrator() *Hydrator { return r.hydrator }

// Get resolves the relationship name of a single owner.
func (r *Resolver) Get(ctx context.Context, owner *Entity, name string, scopes ...scope.Scope) ([]*Entity, error) {
	parts, err := r.Resolve(ctx, []*Entity{owner}, name, scopes...)
	if err != nil {
		return nil, err
	}
	return parts[0], nil
}

// GetOne resolves a relationship of a single owner and returns its first
// related entity, or nil when there is none.
func (r *Resolver) GetOne(ctx context.Context, owner *Entity, name string, scopes ...scope.Scope) (*Entity, error) {
	items, err := r.Get(ctx, owner, name, scopes...)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return items[0], nil
}

// Resolve resolves the relationship name for a batch of owners of the same
// type with a single query and returns the related entities aligned with
// owners. Scopes constrain the related query.
func (r *Resolver) Resolve(ctx context.Context, owners []*Entity, name string, scopes ...scope.Scope) ([][]*Entity, error) {
	if len(owners) == 0 {
		return nil, nil
	}
	ownerType, err := ownerTypeOf(owners)
	if err != nil {
		return nil, err
	}
	d, err := r.catalog.ResolveDescriptor(ownerType, name)
	if err != nil {
		return nil, err
	}

	var parts [][]*Entity
	if d.Kind == schema.KindMorphTo {
		parts, err = r.resolveMorphTo(ctx, ownerType, name, d, owners, scopes)
	} else {
		parts, err = r.resolve(ctx, ownerType, name, d, owners, scopes)
	}
	if err != nil {
		return nil, err
	}

	r.logger.Debug("relation resolved",
		zap.String("owner", string(ownerType)),
		zap.String("relation", name),
		zap.Stringer("kind", d.Kind),
		zap.Int("owners", len(owners)),
		zap.Int("related", countRelated(parts)),
	)
	return parts, nil
}

func (r *Resolver) resolve(
	ctx context.Context, ownerType schema.EntityType, name string, d schema.Descriptor, owners []*Entity, scopes []scope.Scope,
) ([][]*Entity, error) {
	p, err := r.plan(ownerType, name, d)
	if err != nil {
		return nil, err
	}
	keys, err := ownerKeys(owners, p.ownerColumn)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return make([][]*Entity, len(owners)), nil
	}

	q := p.query(r, keys).Scopes(scopes...)
	if d.Kind.Singular() && len(keys) == 1 {
		q = q.Limit(1)
	}
	related, err := q.All(ctx)
	if err != nil {
		return nil, execError(ownerType, name, err)
	}

	relatedKeys := make([]any, len(related))
	for i, e := range related {
		relatedKeys[i] = p.relatedKey(e)
		if d.Kind == schema.KindHasManyThrough {
			delete(e.Attrs, throughKeyAlias)
		}
	}
	return partition(owners, p.ownerColumn, related, relatedKeys, d.Kind.Singular()), nil
}

// Count returns the number of entities related to owner through name.
func (r *Resolver) Count(ctx context.Context, owner *Entity, name string, scopes ...scope.Scope) (int64, error) {
	if owner == nil {
		return 0, errors.New("relation: nil owner")
	}
	d, err := r.catalog.ResolveDescriptor(owner.Type, name)
	if err != nil {
		return 0, err
	}
	if d.Kind == schema.KindMorphTo {
		one, err := r.GetOne(ctx, owner, name, scopes...)
		if err != nil || one == nil {
			return 0, err
		}
		return 1, nil
	}

	p, err := r.plan(owner.Type, name, d)
	if err != nil {
		return 0, err
	}
	keys, err := ownerKeys([]*Entity{owner}, p.ownerColumn)
	if err != nil || len(keys) == 0 {
		return 0, err
	}
	n, err := p.query(r, keys).Scopes(scopes...).Count(ctx)
	if err != nil {
		return 0, execError(owner.Type, name, err)
	}
	if d.Kind.Singular() && n > 1 {
		n = 1
	}
	return n, nil
}

// Find returns the entity of typ whose primary key is key, or
// orm.ErrNotFound.
func (r *Resolver) Find(ctx context.Context, typ schema.EntityType, key any) (*Entity, error) {
	q, err := r.Query(typ)
	if err != nil {
		return nil, err
	}
	t, _ := r.catalog.Table(typ)
	d := orm.DialectOf(r.db)
	e, err := q.Scopes(scope.Eq(orm.QualifiedColumn(d, t.Name, t.PrimaryKey), key)).First(ctx)
	if err != nil {
		if errors.Is(err, orm.ErrNotFound) {
			return nil, fmt.Errorf("relation: find %s %v: %w", typ, key, err)
		}
		return nil, execError(typ, "", err)
	}
	return e, nil
}

// Query returns a query over the table of typ with every relationship
// declared on typ registered as a preloader:
//
//	users, err := r.Query("User")
//	all, err := users.Where("name = ?", "alice").Preload("posts").All(ctx)
func (r *Resolver) Query(typ schema.EntityType) (*orm.Query[*Entity], error) {
	t, err := r.catalog.Table(typ)
	if err != nil {
		return nil, err
	}
	q := r.entityQuery(t, false).Select(selectList(orm.DialectOf(r.db), t))
	for _, name := range r.catalog.Relationships(typ) {
		q.RegisterPreloader(name, func(ctx context.Context, db orm.Querier, results []*Entity) error {
			return r.WithQuerier(db).Load(ctx, results, name)
		})
	}
	return q, nil
}

// entityQuery returns a query over t whose rows hydrate into entities.
func (r *Resolver) entityQuery(t schema.Table, withPivot bool) *orm.Query[*Entity] {
	scan := func(rows *sql.Rows) (*Entity, error) {
		row, err := orm.ScanRow(rows)
		if err != nil {
			return nil, err
		}
		if withPivot {
			return r.hydrator.HydrateWithPivot(t.Type, row, PivotPrefix)
		}
		return r.hydrator.Hydrate(t.Type, row)
	}
	return orm.NewQuery[*Entity](r.db, t.Name, t.Columns, t.PrimaryKey, scan, nil)
}

// selectList returns the qualified, aliased columns of t.
func selectList(d orm.Dialect, t schema.Table) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = aliased(d, t.Name, c, c)
	}
	return strings.Join(cols, ", ")
}

func aliased(d orm.Dialect, table, column, alias string) string {
	return orm.QualifiedColumn(d, table, column) + " AS " + d.QuoteIdent(alias)
}

func ownerTypeOf(owners []*Entity) (schema.EntityType, error) {
	var typ schema.EntityType
	for i, o := range owners {
		if o == nil {
			return "", fmt.Errorf("relation: owner %d is nil", i)
		}
		if i == 0 {
			typ = o.Type
			continue
		}
		if o.Type != typ {
			return "", fmt.Errorf("relation: owners of mixed types %s and %s", typ, o.Type)
		}
	}
	return typ, nil
}

// ownerKeys returns the distinct non-null values of column across owners,
// in owner order.
func ownerKeys(owners []*Entity, column string) ([]any, error) {
	seen := make(map[string]struct{}, len(owners))
	keys := make([]any, 0, len(owners))
	for _, o := range owners {
		v, ok := o.Attrs[column]
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s not loaded", schema.ErrMissingColumn, o.Type, column)
		}
		k, ok := keyString(v)
		if !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, v)
	}
	return keys, nil
}

// partition distributes related (whose match values are relatedKeys) to
// the owners whose ownerColumn equals them. Singular relations keep the
// first match in result order.
func partition(owners []*Entity, ownerColumn string, related []*Entity, relatedKeys []any, singular bool) [][]*Entity {
	byKey := make(map[string][]*Entity)
	for i, e := range related {
		k, ok := keyString(relatedKeys[i])
		if !ok {
			continue
		}
		if singular && len(byKey[k]) > 0 {
			continue
		}
		byKey[k] = append(byKey[k], e)
	}

	parts := make([][]*Entity, len(owners))
	for i, o := range owners {
		k, ok := keyString(o.Attrs[ownerColumn])
		if !ok {
			continue
		}
		if items := byKey[k]; len(items) > 0 {
			parts[i] = append([]*Entity(nil), items...)
		}
	}
	return parts
}

// keyString normalizes a key value so that equal keys of different Go
// types (int vs int64, string vs []byte) compare equal.
func keyString(v any) (string, bool) {
	switch v := v.(type) {
	case nil:
		return "", false
	case []byte:
		return string(v), true
	case string:
		return v, v != ""
	default:
		return fmt.Sprint(v), true
	}
}

func countRelated(parts [][]*Entity) int {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	return n
}
