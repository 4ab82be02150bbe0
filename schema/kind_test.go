package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/ormrel/schema"
)

func TestParseKind(t *testing.T) {
	t.Parallel()

	for k := schema.KindHasOne; k <= schema.KindMorphedByMany; k++ {
		got, err := schema.ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := schema.ParseKind("one_to_one")
	require.Error(t, err)
	assert.Equal(t, "Kind(99)", schema.Kind(99).String())
}

func TestKindClassification(t *testing.T) {
	t.Parallel()

	assert.True(t, schema.KindMorphTo.Singular())
	assert.False(t, schema.KindHasMany.Singular())
	assert.True(t, schema.KindMorphedByMany.UsesPivot())
	assert.False(t, schema.KindHasManyThrough.UsesPivot())
	assert.True(t, schema.KindMorphOne.Polymorphic())
	assert.False(t, schema.KindBelongsToMany.Polymorphic())
}
