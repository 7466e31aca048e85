package service_test

import (
	"fmt"
	"testing"
	"time"

	"jabbr/config"
	"jabbr/internal/auth"
	"jabbr/internal/database"
	"jabbr/internal/repository"
	"jabbr/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newAuthService(t *testing.T) (*service.AuthService, *config.Config) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	cfg := &config.Config{
		JWT: config.JWTConfig{
			AccessSecret:  "access-secret",
			RefreshSecret: "refresh-secret",
			AccessExpiry:  time.Hour,
			RefreshExpiry: 24 * time.Hour,
			Issuer:        "jabbr-test",
		},
	}
	return service.NewAuthService(cfg, repository.NewChatRepository(db)), cfg
}

func TestRegisterAndLogin(t *testing.T) {
	svc, cfg := newAuthService(t)

	u, access, refresh, err := svc.Register("alice", "alice@example.com", "hunter22")
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)
	// The stored hash never echoes the password.
	assert.NotContains(t, u.PasswordHash, "hunter22")

	claims, err := auth.ParseAccessToken(&cfg.JWT, access)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.UserID)
	assert.Equal(t, "alice", claims.Name)

	u2, _, _, err := svc.Login("alice@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, u.ID, u2.ID)
}

func TestRegisterDuplicates(t *testing.T) {
	svc, _ := newAuthService(t)
	_, _, _, err := svc.Register("alice", "alice@example.com", "hunter22")
	require.NoError(t, err)

	_, _, _, err = svc.Register("alice2", "alice@example.com", "hunter22")
	assert.ErrorIs(t, err, service.ErrEmailExists)

	_, _, _, err = svc.Register("Alice", "other@example.com", "hunter22")
	assert.ErrorIs(t, err, service.ErrNameExists)
}

func TestLoginFailures(t *testing.T) {
	svc, _ := newAuthService(t)
	_, _, _, err := svc.Register("alice", "alice@example.com", "hunter22")
	require.NoError(t, err)

	_, _, _, err = svc.Login("alice@example.com", "wrong")
	assert.ErrorIs(t, err, service.ErrInvalidCreds)

	_, _, _, err = svc.Login("nobody@example.com", "hunter22")
	assert.ErrorIs(t, err, service.ErrInvalidCreds)
}
