package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	key, err := DeriveKey("secret")
	require.NoError(t, err)

	ct, err := Seal([]byte("hello"), key)
	require.NoError(t, err)
	pt, err := Open(ct, key)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(pt))
}

func TestDeriveKeyIsDeterministic(t *testing.T) {
	a, err := DeriveKey("secret")
	require.NoError(t, err)
	b, err := DeriveKey("secret")
	require.NoError(t, err)
	c, err := DeriveKey("other")
	require.NoError(t, err)
	assert.Equal(t, *a, *b)
	assert.NotEqual(t, *a, *c)
}

func TestOpenWrongKey(t *testing.T) {
	a, _ := DeriveKey("a")
	b, _ := DeriveKey("b")
	ct, err := Seal([]byte("x"), a)
	require.NoError(t, err)
	_, err = Open(ct, b)
	assert.ErrorIs(t, err, ErrDecrypt)
	_, err = Open([]byte("short"), a)
	assert.ErrorIs(t, err, ErrShortCiphertext)
}

func TestKeyForToken(t *testing.T) {
	k, err := KeyForToken("")
	require.NoError(t, err)
	assert.Nil(t, k)
	k, err = KeyForToken("t")
	require.NoError(t, err)
	assert.NotNil(t, k)
}
