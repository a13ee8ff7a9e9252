package user

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/bikerhub/internal/auth"
	"github.com/MikeMC777/bikerhub/internal/config"
)

type memRepo struct {
	mu    sync.Mutex
	users map[string]*User
}

func newMemRepo() *memRepo { return &memRepo{users: map[string]*User{}} }

func (m *memRepo) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.CreatedAt, u.UpdatedAt = time.Now(), time.Now()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memRepo) GetByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) ExistsByEmailOrUsername(_ context.Context, email, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email || u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) Update(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return ErrNotFound
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memRepo) SetRole(_ context.Context, id string, role auth.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Role = role
	return nil
}

func (m *memRepo) SetStatus(_ context.Context, id string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Status = status
	return nil
}

func (m *memRepo) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.LastLogin = &at
	}
	return nil
}

func (m *memRepo) List(_ context.Context, f ListFilter) ([]User, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []User
	for _, u := range m.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.Search != "" && !strings.Contains(u.Username, f.Search) {
			continue
		}
		out = append(out, *u)
	}
	return out, int64(len(out)), nil
}

func (m *memRepo) FindAdmin(_ context.Context) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Role == auth.RoleAdmin {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.users[id]
	delete(m.users, id)
	return ok, nil
}

func newTestService() (*Service, *memRepo) {
	repo := newMemRepo()
	tokens := auth.NewJWTService(config.JWTConfig{
		Secret:           "test",
		ExpiresIn:        time.Hour,
		RefreshExpiresIn: 2 * time.Hour,
		Issuer:           "bikerhub-api",
		Audience:         "bikerhub-users",
	})
	return NewService(repo, tokens, auth.NewMemoryBlacklist(), 4), repo
}

func register(t *testing.T, s *Service) *AuthResponse {
	t.Helper()
	res, err := s.Register(context.Background(), RegisterRequest{
		Username: "rider",
		Email:    "  Rider@BikerHub.com ",
		Password: "secret1",
	})
	require.NoError(t, err)
	return res
}

func TestRegister(t *testing.T) {
	s, _ := newTestService()
	res := register(t, s)

	assert.Equal(t, "rider@bikerhub.com", res.User.Email)
	assert.Equal(t, auth.RoleUser, res.User.Role)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, "secret1", res.User.PasswordHash)

	_, err := s.Register(context.Background(), RegisterRequest{Username: "other", Email: "rider@bikerhub.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrAlreadyExist)
}

func TestLogin(t *testing.T) {
	s, repo := newTestService()
	reg := register(t, s)
	ctx := context.Background()

	res, err := s.Login(ctx, LoginRequest{Email: "RIDER@bikerhub.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotNil(t, res.User.LastLogin)

	_, err = s.Login(ctx, LoginRequest{Email: "rider@bikerhub.com", Password: "wrong"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = s.Login(ctx, LoginRequest{Email: "nobody@bikerhub.com", Password: "secret1"})
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	require.NoError(t, repo.SetStatus(ctx, reg.User.ID, StatusInactive))
	_, err = s.Login(ctx, LoginRequest{Email: "rider@bikerhub.com", Password: "secret1"})
	assert.ErrorIs(t, err, auth.ErrAccountInactive)
}

func TestAuthenticateAndLogout(t *testing.T) {
	s, repo := newTestService()
	reg := register(t, s)
	ctx := context.Background()

	p, err := s.Authenticate(ctx, reg.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, p.UserID)

	// role is read from the account, not the token
	require.NoError(t, repo.SetRole(ctx, reg.User.ID, auth.RoleSeller))
	p, err = s.Authenticate(ctx, reg.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleSeller, p.Role)

	require.NoError(t, s.Logout(ctx, p, ""))
	_, err = s.Authenticate(ctx, reg.AccessToken)
	assert.ErrorIs(t, err, auth.ErrRevokedToken)

	// without the refresh token the session can still be renewed
	_, err = s.Refresh(ctx, reg.RefreshToken)
	assert.NoError(t, err)
}

func TestLogout_RevokesRefreshToken(t *testing.T) {
	s, _ := newTestService()
	reg := register(t, s)
	ctx := context.Background()

	p, err := s.Authenticate(ctx, reg.AccessToken)
	require.NoError(t, err)
	require.NoError(t, s.Logout(ctx, p, reg.RefreshToken))

	_, err = s.Authenticate(ctx, reg.AccessToken)
	assert.ErrorIs(t, err, auth.ErrRevokedToken)
	_, err = s.Refresh(ctx, reg.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrRevokedToken)
}

func TestLogout_IgnoresForeignRefreshToken(t *testing.T) {
	s, _ := newTestService()
	reg := register(t, s)
	ctx := context.Background()
	other, err := s.Register(ctx, RegisterRequest{Username: "other", Email: "other@bikerhub.com", Password: "secret1"})
	require.NoError(t, err)

	p, err := s.Authenticate(ctx, reg.AccessToken)
	require.NoError(t, err)
	require.NoError(t, s.Logout(ctx, p, other.RefreshToken))
	require.NoError(t, s.Logout(ctx, p, "not-a-jwt"))

	_, err = s.Refresh(ctx, other.RefreshToken)
	assert.NoError(t, err)
}

func TestAuthenticate_DeletedOrInactive(t *testing.T) {
	s, repo := newTestService()
	reg := register(t, s)
	ctx := context.Background()

	require.NoError(t, repo.SetStatus(ctx, reg.User.ID, StatusInactive))
	_, err := s.Authenticate(ctx, reg.AccessToken)
	assert.ErrorIs(t, err, auth.ErrAccountInactive)

	_, _ = repo.Delete(ctx, reg.User.ID)
	_, err = s.Authenticate(ctx, reg.AccessToken)
	assert.ErrorIs(t, err, auth.ErrUnknownAccount)
}

func TestRefreshRotates(t *testing.T) {
	s, _ := newTestService()
	reg := register(t, s)
	ctx := context.Background()

	res, err := s.Refresh(ctx, reg.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, reg.RefreshToken, res.RefreshToken)

	_, err = s.Refresh(ctx, reg.RefreshToken)
	assert.ErrorIs(t, err, auth.ErrRevokedToken)

	_, err = s.Refresh(ctx, reg.AccessToken)
	assert.ErrorIs(t, err, auth.ErrInvalidTokenType)
}

func TestUpdateProfile(t *testing.T) {
	s, _ := newTestService()
	reg := register(t, s)

	first, phone := " Ana ", "+15551234567"
	u, err := s.UpdateProfile(context.Background(), reg.User.ID, UpdateProfileRequest{FirstName: &first, Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "Ana", u.FirstName)
	assert.Equal(t, phone, u.Phone)
	assert.Equal(t, "rider@bikerhub.com", u.Email)

	_, err = s.UpdateProfile(context.Background(), "missing", UpdateProfileRequest{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetRoleAndStatus(t *testing.T) {
	s, _ := newTestService()
	reg := register(t, s)
	ctx := context.Background()

	u, err := s.SetRole(ctx, reg.User.ID, auth.RoleModerator)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleModerator, u.Role)

	_, err = s.SetRole(ctx, reg.User.ID, "root")
	assert.Error(t, err)

	u, err = s.SetStatus(ctx, reg.User.ID, StatusInactive)
	require.NoError(t, err)
	assert.False(t, u.IsActive())
}

func TestEnsureAdmin(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	u, created, err := s.EnsureAdmin(ctx, "admin@bikerhub.com", "admin", "admin123")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, auth.RoleAdmin, u.Role)

	again, created, err := s.EnsureAdmin(ctx, "other@bikerhub.com", "other", "x")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u.ID, again.ID)
}

func TestPassword(t *testing.T) {
	h, err := HashPassword("pw", 4)
	require.NoError(t, err)
	assert.True(t, CheckPassword(h, "pw"))
	assert.False(t, CheckPassword(h, "nope"))
}
