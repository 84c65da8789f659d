package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckPassword(t *testing.T) {
	hashed, err := HashPassword("user123")
	require.NoError(t, err)

	assert.True(t, CheckPassword(hashed, "user123"))
	assert.False(t, CheckPassword(hashed, "user124"))
	assert.False(t, CheckPassword("user123", "user123"), "a stored value that is not a hash never matches")
	assert.False(t, CheckPassword("", ""))
}
