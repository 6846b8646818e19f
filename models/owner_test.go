package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveOwner(t *testing.T) {
	t.Run("user id wins over session", func(t *testing.T) {
		o, ok := ResolveOwner("u-1", "s-1")
		require.True(t, ok)
		assert.Equal(t, UserOwner("u-1"), o)
	})

	t.Run("session when anonymous", func(t *testing.T) {
		o, ok := ResolveOwner("", "s-1")
		require.True(t, ok)
		assert.Equal(t, OwnerSession, o.Kind)
	})

	t.Run("nothing", func(t *testing.T) {
		_, ok := ResolveOwner("", "")
		assert.False(t, ok)
	})
}

func TestOwnerColumnsExclusive(t *testing.T) {
	u, s := UserOwner("u-1").Columns()
	require.NotNil(t, u)
	assert.Nil(t, s)
	assert.Equal(t, "u-1", *u)

	u, s = SessionOwner("s-1").Columns()
	assert.Nil(t, u)
	require.NotNil(t, s)
	assert.Equal(t, "s-1", *s)
}

func TestParseBias(t *testing.T) {
	b, ok := ParseBias("  left-leaning ")
	assert.True(t, ok)
	assert.Equal(t, BiasLeft, b)

	_, ok = ParseBias("Unknown")
	assert.False(t, ok)

	assert.True(t, BiasNeutral.Valid())
	assert.False(t, Bias("center").Valid())
}
