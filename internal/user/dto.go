package user

import "github.com/MikeMC777/bikerhub/internal/auth"

// RegisterRequest payload of registration.
// swagger:model RegisterRequest
type RegisterRequest struct {
	Username  string `json:"username"  binding:"required,min=3,max=30" example:"rider42"`
	Email     string `json:"email"     binding:"required,email"        example:"rider@bikerhub.com"`
	Password  string `json:"password"  binding:"required,min=6"        example:"s3cret!"`
	FirstName string `json:"firstName" binding:"omitempty,max=50"`
	LastName  string `json:"lastName"  binding:"omitempty,max=50"`
}

// LoginRequest payload of login.
// swagger:model LoginRequest
type LoginRequest struct {
	Email    string `json:"email"    binding:"required,email" example:"rider@bikerhub.com"`
	Password string `json:"password" binding:"required"       example:"s3cret!"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// LogoutRequest optionally names the refresh token to revoke with the session.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// UpdateProfileRequest partial profile update; empty fields are left unchanged.
// swagger:model UpdateProfileRequest
type UpdateProfileRequest struct {
	FirstName *string `json:"firstName" binding:"omitempty,min=2,max=50"`
	LastName  *string `json:"lastName"  binding:"omitempty,min=2,max=50"`
	Email     *string `json:"email"     binding:"omitempty,email"`
	Phone     *string `json:"phone"     binding:"omitempty,min=7,max=20"`
}

type SetRoleRequest struct {
	Role auth.Role `json:"role" binding:"required,oneof=user seller moderator admin"`
}

type SetStatusRequest struct {
	Status Status `json:"status" binding:"required,oneof=active inactive"`
}

type ListFilter struct {
	Page   int
	Limit  int
	Role   auth.Role
	Status Status
	Search string
}

func (f *ListFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
}

func (f ListFilter) offset() int { return (f.Page - 1) * f.Limit }

// AuthResponse is returned by register, login and refresh.
// swagger:model AuthResponse
type AuthResponse struct {
	User *User `json:"user,omitempty"`
	*auth.TokenPair
}
