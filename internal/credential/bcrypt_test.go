package credential

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHashAndVerify(t *testing.T) {
	h, err := NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)

	token, err := h.Hash("longpass1")
	require.NoError(t, err)
	assert.NotEqual(t, "longpass1", token)
	assert.True(t, strings.HasPrefix(token, "$2a$04$"))

	assert.True(t, h.Verify("longpass1", token))
	assert.False(t, h.Verify("longpass2", token))
	assert.False(t, h.Verify("", token))
	assert.False(t, h.Verify("longpass1", "not-a-hash"))
}

func TestBcryptHashIsSalted(t *testing.T) {
	h, err := NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)

	a, err := h.Hash("longpass1")
	require.NoError(t, err)
	b, err := h.Hash("longpass1")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestBcryptRejectsEmptyAndOversized(t *testing.T) {
	h, err := NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)

	_, err = h.Hash("")
	assert.ErrorIs(t, err, ErrEmptyPassword)

	_, err = h.Hash(strings.Repeat("x", MaxPasswordBytes+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)

	_, err = h.Hash(strings.Repeat("x", MaxPasswordBytes))
	assert.NoError(t, err)
}

func TestBcryptVerifiesAcrossCostUpgrade(t *testing.T) {
	old, err := NewBcrypt(bcrypt.MinCost)
	require.NoError(t, err)
	token, err := old.Hash("longpass1")
	require.NoError(t, err)

	upgraded, err := NewBcrypt(bcrypt.MinCost + 1)
	require.NoError(t, err)

	assert.True(t, upgraded.Verify("longpass1", token))
	assert.True(t, upgraded.NeedsRehash(token))
	assert.False(t, old.NeedsRehash(token))
	assert.True(t, old.NeedsRehash("garbage"))
}

func TestNewBcryptCostBounds(t *testing.T) {
	h, err := NewBcrypt(0)
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, h.Cost())

	_, err = NewBcrypt(bcrypt.MaxCost + 1)
	assert.Error(t, err)
	_, err = NewBcrypt(1)
	assert.Error(t, err)
}
