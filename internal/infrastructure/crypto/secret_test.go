package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	s, err := NewSealer("correct horse")
	require.NoError(t, err)
	require.True(t, s.Enabled())

	sealed, err := s.Seal("hunter2")
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.NotContains(t, sealed, "hunter2")

	again, err := s.Seal(sealed)
	require.NoError(t, err)
	assert.Equal(t, sealed, again)

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)

	legacy, err := s.Open("plain-pw")
	require.NoError(t, err)
	assert.Equal(t, "plain-pw", legacy)
}

func TestOpenWithWrongKey(t *testing.T) {
	a, _ := NewSealer("one")
	b, _ := NewSealer("two")
	sealed, err := a.Seal("x")
	require.NoError(t, err)

	_, err = b.Open(sealed)
	require.Error(t, err)

	none, _ := NewSealer("")
	_, err = none.Open(sealed)
	require.Error(t, err)
	v, err := none.Seal("x")
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}
