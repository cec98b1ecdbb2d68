package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hvgateway/internal/auth"
	"hvgateway/internal/config"
	"hvgateway/internal/model"
	"hvgateway/internal/store"
)

func TestBootstrapAdmin_SeedsWhenNoAdminExists(t *testing.T) {
	s := store.NewMemoryStore()
	cfg := &config.Config{AdminUsername: "admin", AdminPassword: "hunter2"}

	require.NoError(t, bootstrapAdmin(context.Background(), cfg, s))

	u, err := s.GetUserByUsername(context.Background(), "admin")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, u.Role)
	assert.True(t, auth.ComparePassword(u.PasswordHash, "hunter2"))
}

func TestBootstrapAdmin_NoOpWhenAdminExists(t *testing.T) {
	s := store.NewMemoryStore()
	require.NoError(t, s.CreateUser(context.Background(), &model.User{
		ID: "u1", Username: "root", Role: model.RoleAdmin, PasswordHash: "x",
	}))
	cfg := &config.Config{AdminUsername: "admin", AdminPassword: "hunter2"}

	require.NoError(t, bootstrapAdmin(context.Background(), cfg, s))

	_, err := s.GetUserByUsername(context.Background(), "admin")
	require.Error(t, err)
}

func TestBootstrapAdmin_DisabledWithoutPassword(t *testing.T) {
	s := store.NewMemoryStore()
	cfg := &config.Config{AdminUsername: "admin"}

	require.NoError(t, bootstrapAdmin(context.Background(), cfg, s))

	exists, err := s.AnyAdminExists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)
}
