package relation_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/ormrel/orm"
	"github.com/mickamy/ormrel/relation"
	"github.com/mickamy/ormrel/schema"
	"github.com/mickamy/ormrel/scope"
)

func TestAttachDetachScenario(t *testing.T) {
	t.Parallel()

	r, _ := newResolver(t)
	ctx := t.Context()
	post := find(t, r, "Post", 1)

	inserted, err := r.Attach(ctx, post, "tags", find(t, r, "Tag", 1), nil)
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = r.Attach(ctx, post, "tags", find(t, r, "Tag", 2), nil)
	require.NoError(t, err)
	assert.True(t, inserted)

	tags, err := r.Get(ctx, post, "tags")
	require.NoError(t, err)
	assert.ElementsMatch(t, ids(1, 2), keys(tags))

	n, err := r.Detach(ctx, post, "tags", find(t, r, "Tag", 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	tags, err = r.Get(ctx, post, "tags")
	require.NoError(t, err)
	assert.Equal(t, ids(2), keys(tags))
}

func TestAttachTwiceKeepsOneRow(t *testing.T) {
	t.Parallel()

	r, _ := newResolver(t)
	ctx := t.Context()
	post := find(t, r, "Post", 2)

	before, err := r.Count(ctx, post, "tags")
	require.NoError(t, err)

	inserted, err := r.Attach(ctx, post, "tags", 3, nil)
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = r.Attach(ctx, post, "tags", int64(3), nil)
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate attach is a no-op")

	n, err := r.Count(ctx, post, "tags")
	require.NoError(t, err)
	assert.Equal(t, before+1, n)

	removed, err := r.Detach(ctx, post, "tags", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	n, err = r.Count(ctx, post, "tags")
	require.NoError(t, err)
	assert.Equal(t, before, n)

	removed, err = r.Detach(ctx, post, "tags", 3)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestAttachTimestamps(t *testing.T) {
	t.Parallel()

	r, _ := newResolver(t)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := orm.WithClock(t.Context(), orm.ClockFunc(func() time.Time { return fixed }))
	post := find(t, r, "Post", 1)

	_, err := r.Attach(ctx, post, "tags", 2, map[string]any{"weight": 1})
	require.NoError(t, err)

	later := orm.WithClock(t.Context(), orm.ClockFunc(func() time.Time { return fixed.Add(time.Hour) }))
	n, err := r.UpdatePivot(later, post, "tags", 2, map[string]any{"weight": 7})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	tag, err := r.GetOne(t.Context(), post, "tags")
	require.NoError(t, err)
	require.NotNil(t, tag)
	assert.Equal(t, int64(7), tag.Pivot["weight"])
	assert.NotEqual(t, tag.Pivot["created_at"], tag.Pivot["updated_at"])

	// the default clock stores a plain wall time
	_, err = r.Attach(t.Context(), post, "tags", 3, nil)
	require.NoError(t, err)
	tags, err := r.Get(t.Context(), post, "tags", scope.Eq(`"tags"."id"`, 3))
	require.NoError(t, err)
	require.Len(t, tags, 1)
	stamped := fmt.Sprint(tags[0].Pivot["created_at"])
	assert.NotEmpty(t, stamped)
	assert.NotContains(t, stamped, "m=")
}

func TestAttachPolymorphic(t *testing.T) {
	t.Parallel()

	r, _ := newResolver(t)
	ctx := t.Context()
	video := find(t, r, "Video", 2)

	_, err := r.Attach(ctx, video, "labels", 3, nil)
	require.NoError(t, err)

	labels, err := r.Get(ctx, video, "labels")
	require.NoError(t, err)
	assert.ElementsMatch(t, ids(1, 3), keys(labels))

	// Post 2 shares taggable_id with Video 2 but not its discriminator.
	postLabels, err := r.Get(ctx, find(t, r, "Post", 2), "labels")
	require.NoError(t, err)
	assert.Empty(t, postLabels)

	// inverse side stamps the target's discriminator
	ormTag := find(t, r, "Tag", 3)
	_, err = r.Attach(ctx, ormTag, "videos", 1, nil)
	require.NoError(t, err)
	videos, err := r.Get(ctx, ormTag, "videos")
	require.NoError(t, err)
	assert.ElementsMatch(t, ids(1, 2), keys(videos))

	n, err := r.Detach(ctx, ormTag, "videos")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	posts, err := r.Get(ctx, ormTag, "posts")
	require.NoError(t, err)
	assert.Equal(t, ids(1), keys(posts), "detach leaves other discriminators alone")
}

func TestSync(t *testing.T) {
	t.Parallel()

	r, _ := newResolver(t)
	ctx := t.Context()
	post := find(t, r, "Post", 1)

	res, err := r.Sync(ctx, post, "tags", []any{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, res.Attached)
	assert.Empty(t, res.Detached)

	res, err = r.Sync(ctx, post, "tags", []any{2, find(t, r, "Tag", 3)})
	require.NoError(t, err)
	assert.Equal(t, ids(3), res.Attached)
	assert.Equal(t, ids(1), res.Detached)

	tags, err := r.Get(ctx, post, "tags")
	require.NoError(t, err)
	assert.ElementsMatch(t, ids(2, 3), keys(tags))

	res, err = r.Sync(ctx, post, "tags", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids(2, 3), res.Detached)
	n, err := r.Count(ctx, post, "tags")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSyncInTransaction(t *testing.T) {
	t.Parallel()

	raw := openDB(t)
	db := orm.New(raw, orm.SQLite)
	r := relation.NewResolver(newCatalog(t), db)
	post := &relation.Entity{Type: "Post", Key: int64(1), Attrs: orm.Row{"id": int64(1), "user_id": int64(1), "title": "first"}}

	err := db.Transaction(t.Context(), func(tx *orm.Tx) error {
		_, err := r.WithQuerier(tx).Sync(t.Context(), post, "tags", []any{1, 2, 3})
		require.NoError(t, err)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	n, err := r.Count(t.Context(), post, "tags")
	require.NoError(t, err)
	assert.Zero(t, n, "rolled back")
}

func TestPivotErrors(t *testing.T) {
	t.Parallel()

	r, _ := newResolver(t)
	ctx := t.Context()
	post := find(t, r, "Post", 1)

	_, err := r.Attach(ctx, post, "comments", 1, nil)
	require.ErrorIs(t, err, relation.ErrNotPivot)

	_, err = r.Detach(ctx, post, "user")
	require.ErrorIs(t, err, relation.ErrNotPivot)

	_, err = r.Attach(ctx, post, "tags", 1, map[string]any{"color": "red"})
	require.ErrorIs(t, err, schema.ErrMissingColumn)

	_, err = r.UpdatePivot(ctx, post, "tags", 1, map[string]any{"created_at": time.Now()})
	require.ErrorIs(t, err, schema.ErrMissingColumn)

	_, err = r.Attach(ctx, post, "tags", find(t, r, "User", 1), nil)
	require.ErrorContains(t, err, "relates Tag")

	_, err = r.Attach(ctx, post, "followers", 1, nil)
	require.ErrorIs(t, err, schema.ErrUnknownRelationship)

	_, err = r.Attach(ctx, post, "tags", nil, nil)
	require.Error(t, err)
}
