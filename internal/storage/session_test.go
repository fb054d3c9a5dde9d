package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStorage(t *testing.T) {
	s := NewSessionStorage()

	userToken := s.Create(&Session{UserID: "user-1"})
	adminToken := s.Create(&Session{IsAdmin: true})
	require.NotEmpty(t, userToken)
	require.NotEmpty(t, adminToken)
	assert.NotEqual(t, userToken, adminToken)

	sess, ok := s.Get(userToken)
	require.True(t, ok)
	assert.Equal(t, "user-1", sess.UserID)
	assert.False(t, sess.IsAdmin)

	sess, ok = s.Get(adminToken)
	require.True(t, ok)
	assert.True(t, sess.IsAdmin)
	assert.Empty(t, sess.UserID)

	_, ok = s.Get("unknown-token")
	assert.False(t, ok)

	s.Delete(userToken)
	_, ok = s.Get(userToken)
	assert.False(t, ok)
}
