package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegisterValidation(t *testing.T) {
	um := NewUserManager(t.TempDir(), time.Hour)

	require.Error(t, um.Register("", "secret1"), "empty username")
	require.Error(t, um.Register("   ", "secret1"), "blank username")
	require.Error(t, um.Register("System", "secret1"), "reserved username")
	require.Error(t, um.Register("bob", "short"), "short password")

	require.NoError(t, um.Register("bob", "secret1"))
	require.Error(t, um.Register("bob", "secret1"), "duplicate username")
}

func TestLoginAndValidate(t *testing.T) {
	um := NewUserManager(t.TempDir(), time.Hour)
	require.NoError(t, um.Register("bob", "secret1"))

	_, err := um.Login("bob", "wrong")
	require.Error(t, err)
	_, err = um.Login("nobody", "secret1")
	require.Error(t, err)

	token, err := um.Login("bob", "secret1")
	require.NoError(t, err)

	username, err := um.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "bob", username)

	um.Logout(token)
	_, err = um.ValidateToken(token)
	require.Error(t, err)
}

func TestSessionExpiry(t *testing.T) {
	um := NewUserManager(t.TempDir(), -time.Minute)
	require.NoError(t, um.Register("bob", "secret1"))

	token, err := um.Login("bob", "secret1")
	require.NoError(t, err)

	_, err = um.ValidateToken(token)
	require.Error(t, err)
}

func TestChangePassword(t *testing.T) {
	um := NewUserManager(t.TempDir(), time.Hour)
	require.NoError(t, um.Register("bob", "secret1"))

	require.Error(t, um.ChangePassword("bob", "wrong", "another1"))
	require.Error(t, um.ChangePassword("bob", "secret1", "tiny"))
	require.NoError(t, um.ChangePassword("bob", "secret1", "another1"))

	_, err := um.Login("bob", "secret1")
	require.Error(t, err)
	_, err = um.Login("bob", "another1")
	require.NoError(t, err)
}

func TestUsersPersist(t *testing.T) {
	dir := t.TempDir()
	um := NewUserManager(dir, time.Hour)
	require.NoError(t, um.Register("bob", "secret1"))

	fresh := NewUserManager(dir, time.Hour)
	fresh.Load()
	_, err := fresh.Login("bob", "secret1")
	require.NoError(t, err)
}
