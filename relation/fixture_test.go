package relation_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/mickamy/ormrel/orm"
	"github.com/mickamy/ormrel/relation"
	"github.com/mickamy/ormrel/schema"
)

var ddl = []string{
	`CREATE TABLE countries (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
	`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL, country_id INTEGER)`,
	`CREATE TABLE profiles (id INTEGER PRIMARY KEY, user_id INTEGER, bio TEXT)`,
	`CREATE TABLE posts (id INTEGER PRIMARY KEY, user_id INTEGER, title TEXT NOT NULL)`,
	`CREATE TABLE videos (id INTEGER PRIMARY KEY, title TEXT NOT NULL)`,
	`CREATE TABLE tags (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
	`CREATE TABLE post_tag (
		post_id INTEGER NOT NULL,
		tag_id INTEGER NOT NULL,
		weight INTEGER,
		created_at TEXT,
		updated_at TEXT
	)`,
	`CREATE TABLE comments (id INTEGER PRIMARY KEY, commentable_id INTEGER, commentable_type TEXT, body TEXT)`,
	`CREATE TABLE images (id INTEGER PRIMARY KEY, imageable_id INTEGER, imageable_type TEXT, url TEXT)`,
	`CREATE TABLE taggables (tag_id INTEGER NOT NULL, taggable_id INTEGER NOT NULL, taggable_type TEXT NOT NULL)`,
}

var seed = []string{
	`INSERT INTO countries (id, name) VALUES (1, 'Japan'), (2, 'France')`,
	`INSERT INTO users (id, name, country_id) VALUES (1, 'alice', 1), (2, 'bob', 1), (3, 'carol', 2), (4, 'dave', NULL)`,
	`INSERT INTO profiles (id, user_id, bio) VALUES (1, 1, 'hi'), (2, 2, 'yo')`,
	`INSERT INTO posts (id, user_id, title) VALUES (1, 1, 'first'), (2, 2, 'second'), (3, 1, 'third'), (4, NULL, 'orphan')`,
	`INSERT INTO videos (id, title) VALUES (1, 'intro'), (2, 'outro')`,
	`INSERT INTO tags (id, name) VALUES (1, 'go'), (2, 'sql'), (3, 'orm')`,
	`INSERT INTO comments (id, commentable_id, commentable_type, body) VALUES
		(1, 1, 'Post', 'nice post'),
		(2, 1, 'Video', 'nice video'),
		(3, 3, 'Post', 'again'),
		(4, 1, 'Post', 'more'),
		(5, NULL, NULL, 'detached')`,
	`INSERT INTO images (id, imageable_id, imageable_type, url) VALUES (1, 1, 'User', 'a.png'), (2, 1, 'Post', 'p.png')`,
	`INSERT INTO taggables (tag_id, taggable_id, taggable_type) VALUES (1, 1, 'Post'), (2, 1, 'Video'), (3, 1, 'Post'), (1, 2, 'Video')`,
}

// queryLog is an orm.Logger recording every executed statement.
type queryLog struct {
	mu      sync.Mutex
	queries []string
}

func (l *queryLog) Log(_ context.Context, query string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queries = append(l.queries, query)
}

func (l *queryLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queries)
}

func (l *queryLog) last() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queries[len(l.queries)-1]
}

func newCatalog(t *testing.T) *schema.Catalog {
	t.Helper()

	c := schema.NewCatalog()
	register := func(typ schema.EntityType, table string, cols ...string) {
		require.NoError(t, c.Register(typ, table, "id", schema.WithColumns(cols...)))
	}
	register("Country", "countries", "name")
	register("User", "users", "name", "country_id")
	register("Profile", "profiles", "user_id", "bio")
	register("Post", "posts", "user_id", "title")
	register("Video", "videos", "title")
	register("Tag", "tags", "name")
	register("Comment", "comments", "commentable_id", "commentable_type", "body")
	register("Image", "images", "imageable_id", "imageable_type", "url")

	declare := func(owner schema.EntityType, name string, d schema.Descriptor) {
		require.NoError(t, c.DeclareRelationship(owner, name, d))
	}
	declare("Country", "users", schema.HasMany("User", ""))
	declare("Country", "posts", schema.HasManyThrough("Post", "User", "", ""))
	declare("User", "posts", schema.HasMany("Post", ""))
	declare("User", "profile", schema.HasOne("Profile", ""))
	declare("User", "country", schema.BelongsTo("Country", ""))
	declare("User", "image", schema.MorphOne("Image", "imageable"))
	declare("Post", "user", schema.BelongsTo("User", ""))
	declare("Post", "tags", schema.BelongsToMany("Tag", "post_tag",
		schema.WithPivotColumns("weight"), schema.WithPivotTimestamps()))
	declare("Post", "comments", schema.MorphMany("Comment", "commentable"))
	declare("Post", "labels", schema.MorphToMany("Tag", "taggable"))
	declare("Video", "comments", schema.MorphMany("Comment", "commentable"))
	declare("Video", "labels", schema.MorphToMany("Tag", "taggable"))
	declare("Tag", "posts", schema.MorphedByMany("Post", "taggable"))
	declare("Tag", "videos", schema.MorphedByMany("Video", "taggable"))
	declare("Comment", "commentable", schema.MorphTo("commentable", "Post", "Video"))
	declare("Image", "imageable", schema.MorphTo("imageable"))
	c.Freeze()
	return c
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()

	raw, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	raw.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = raw.Close() })

	for _, stmt := range append(append([]string(nil), ddl...), seed...) {
		_, err := raw.ExecContext(t.Context(), stmt)
		require.NoError(t, err, stmt)
	}
	return raw
}

// newResolver returns a Resolver over a seeded in-memory database and the
// log of statements it executes.
func newResolver(t *testing.T, opts ...relation.Option) (*relation.Resolver, *queryLog) {
	t.Helper()

	log := &queryLog{}
	db := orm.New(openDB(t), orm.SQLite).Debug(log)
	return relation.NewResolver(newCatalog(t), db, opts...), log
}

func find(t *testing.T, r *relation.Resolver, typ schema.EntityType, id int) *relation.Entity {
	t.Helper()

	e, err := r.Find(t.Context(), typ, id)
	require.NoError(t, err)
	return e
}

func keys(entities []*relation.Entity) []any {
	out := make([]any, len(entities))
	for i, e := range entities {
		out[i] = e.Key
	}
	return out
}

func ids(vals ...int64) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}
