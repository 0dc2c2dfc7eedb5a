package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/gestionequipos/activos-api/internal/models"
	"github.com/gestionequipos/activos-api/pkg/config"
	appErrors "github.com/gestionequipos/activos-api/pkg/errors"
)

type authRepoMock struct {
	user         *models.User
	lastLogin    *time.Time
	passwordHash string
}

func (m *authRepoMock) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.user == nil || m.user.Email != email {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

func (m *authRepoMock) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.user == nil || m.user.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.user, nil
}

func (m *authRepoMock) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	m.lastLogin = &at
	return nil
}

func (m *authRepoMock) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	m.passwordHash = passwordHash
	return nil
}

func newAuthFixture(t *testing.T, password string) (*AuthService, *authRepoMock) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	site := "site-1"
	repo := &authRepoMock{user: &models.User{
		ID:           "user-1",
		Email:        "ana@empresa.com",
		PasswordHash: string(hash),
		FullName:     "Ana Gomez",
		Role:         models.RoleUser,
		SiteID:       &site,
		Active:       true,
	}}
	service := NewAuthService(repo, nil, nil, config.JWTConfig{
		Secret:     "test-secret",
		Expiration: time.Hour,
		Issuer:     "activos-api",
	})
	return service, repo
}

func TestAuthLoginSuccess(t *testing.T) {
	service, repo := newAuthFixture(t, "secreto123")

	resp, err := service.Login(context.Background(), models.LoginRequest{
		Email:    "ana@empresa.com",
		Password: "secreto123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "user-1", resp.User.ID)
	require.NotNil(t, repo.lastLogin)

	claims, err := service.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleUser, claims.Role)
	require.NotNil(t, claims.SiteID)
	assert.Equal(t, "site-1", *claims.SiteID)
}

func TestAuthLoginWrongPassword(t *testing.T) {
	service, _ := newAuthFixture(t, "secreto123")

	_, err := service.Login(context.Background(), models.LoginRequest{
		Email:    "ana@empresa.com",
		Password: "incorrecta",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthLoginUnknownEmailSameError(t *testing.T) {
	service, _ := newAuthFixture(t, "secreto123")

	_, err := service.Login(context.Background(), models.LoginRequest{
		Email:    "nadie@empresa.com",
		Password: "secreto123",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthLoginInactiveAccount(t *testing.T) {
	service, repo := newAuthFixture(t, "secreto123")
	repo.user.Active = false

	_, err := service.Login(context.Background(), models.LoginRequest{
		Email:    "ana@empresa.com",
		Password: "secreto123",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthChangePasswordVerifiesCurrent(t *testing.T) {
	service, repo := newAuthFixture(t, "secreto123")

	err := service.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "incorrecta",
		NewPassword: "nuevacontra",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.passwordHash)

	err = service.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "secreto123",
		NewPassword: "nuevacontra",
	})
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.passwordHash), []byte("nuevacontra")))
}

func TestAuthValidateTokenRejectsTampered(t *testing.T) {
	service, _ := newAuthFixture(t, "secreto123")

	resp, err := service.Login(context.Background(), models.LoginRequest{
		Email:    "ana@empresa.com",
		Password: "secreto123",
	})
	require.NoError(t, err)

	_, err = service.ValidateToken(resp.AccessToken + "x")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
