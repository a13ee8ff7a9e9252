package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MikeMC777/bikerhub/internal/auth"
	"github.com/MikeMC777/bikerhub/internal/logger"
)

type Service struct {
	repo       Repository
	tokens     *auth.JWTService
	blacklist  auth.Blacklist
	bcryptCost int
	now        func() time.Time
}

func NewService(repo Repository, tokens *auth.JWTService, blacklist auth.Blacklist, bcryptCost int) *Service {
	return &Service{
		repo:       repo,
		tokens:     tokens,
		blacklist:  blacklist,
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

func (s *Service) Register(ctx context.Context, in RegisterRequest) (*AuthResponse, error) {
	email := NormalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)

	exists, err := s.repo.ExistsByEmailOrUsername(ctx, email, username)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyExist
	}

	hash, err := HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         auth.RoleUser,
		Status:       StatusActive,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	pair, err := s.tokens.IssuePair(u.Principal())
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("user registered", zap.String("user_id", u.ID))
	return &AuthResponse{User: u, TokenPair: pair}, nil
}

func (s *Service) Login(ctx context.Context, in LoginRequest) (*AuthResponse, error) {
	u, err := s.repo.GetByEmail(ctx, NormalizeEmail(in.Email))
	if errors.Is(err, ErrNotFound) {
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(u.PasswordHash, in.Password) {
		return nil, auth.ErrInvalidCredentials
	}
	if !u.IsActive() {
		return nil, auth.ErrAccountInactive
	}

	now := s.now()
	if err := s.repo.TouchLastLogin(ctx, u.ID, now); err != nil {
		logger.FromContext(ctx).Warn("update last login", zap.String("user_id", u.ID), zap.Error(err))
	}
	u.LastLogin = &now

	pair, err := s.tokens.IssuePair(u.Principal())
	if err != nil {
		return nil, err
	}
	return &AuthResponse{User: u, TokenPair: pair}, nil
}

// Refresh rotates a refresh token: the presented one is revoked and a new pair issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}
	if err := s.checkRevoked(ctx, claims.ID); err != nil {
		return nil, err
	}
	u, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.blacklist.Revoke(ctx, claims.ID, claims.Remaining()); err != nil {
		return nil, err
	}
	pair, err := s.tokens.IssuePair(u.Principal())
	if err != nil {
		return nil, err
	}
	return &AuthResponse{User: u, TokenPair: pair}, nil
}

// Logout revokes the access token, and refreshToken when it belongs to p,
// for the rest of their lifetimes.
func (s *Service) Logout(ctx context.Context, p *auth.Principal, refreshToken string) error {
	if p == nil {
		return nil
	}
	if p.TokenID != "" {
		if err := s.blacklist.Revoke(ctx, p.TokenID, p.TokenTTL); err != nil {
			return err
		}
	}
	if refreshToken == "" {
		return nil
	}
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		logger.FromContext(ctx).Info("logout ignored refresh token", zap.Error(err))
		return nil
	}
	if claims.UserID != p.UserID {
		logger.FromContext(ctx).Warn("logout refresh token belongs to another account", zap.String("user_id", p.UserID))
		return nil
	}
	return s.blacklist.Revoke(ctx, claims.ID, claims.Remaining())
}

// Authenticate validates an access token and loads the account behind it.
func (s *Service) Authenticate(ctx context.Context, token string) (*auth.Principal, error) {
	claims, err := s.tokens.ValidateAccessToken(token)
	if err != nil {
		return nil, err
	}
	if err := s.checkRevoked(ctx, claims.ID); err != nil {
		return nil, err
	}
	u, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	p := claims.Principal()
	// role changes apply without re-login
	p.Role = u.Role
	return p, nil
}

func (s *Service) checkRevoked(ctx context.Context, jti string) error {
	revoked, err := s.blacklist.IsRevoked(ctx, jti)
	if err != nil {
		logger.FromContext(ctx).Warn("token blacklist unavailable", zap.Error(err))
		return nil
	}
	if revoked {
		return auth.ErrRevokedToken
	}
	return nil
}

func (s *Service) activeUser(ctx context.Context, id string) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, auth.ErrUnknownAccount
	}
	if err != nil {
		return nil, err
	}
	if !u.IsActive() {
		return nil, auth.ErrAccountInactive
	}
	return u, nil
}

func (s *Service) Profile(ctx context.Context, id string) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) UpdateProfile(ctx context.Context, id string, in UpdateProfileRequest) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.FirstName != nil {
		u.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		u.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Email != nil {
		u.Email = NormalizeEmail(*in.Email)
	}
	if in.Phone != nil {
		u.Phone = strings.TrimSpace(*in.Phone)
	}
	if err := s.repo.Update(ctx, u); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]User, int64, error) {
	return s.repo.List(ctx, f)
}

func (s *Service) SetRole(ctx context.Context, id string, role auth.Role) (*User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	if err := s.repo.SetRole(ctx, id, role); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) SetStatus(ctx context.Context, id string, status Status) (*User, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid status %q", status)
	}
	if err := s.repo.SetStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// EnsureAdmin creates the admin account unless one already exists.
// It returns the admin and whether it was created.
func (s *Service) EnsureAdmin(ctx context.Context, email, username, password string) (*User, bool, error) {
	existing, err := s.repo.FindAdmin(ctx)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	hash, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, false, err
	}
	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        NormalizeEmail(email),
		PasswordHash: hash,
		FirstName:    "Admin",
		LastName:     "User",
		Role:         auth.RoleAdmin,
		Status:       StatusActive,
		IsVerified:   true,
		Department:   "Management",
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, false, err
	}
	return u, true, nil
}
