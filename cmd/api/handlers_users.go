package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/bikerhub/internal/auth"
	"github.com/MikeMC777/bikerhub/internal/httpx"
	"github.com/MikeMC777/bikerhub/internal/user"
)

// accountService is the slice of user.Service the auth and user routes use.
type accountService interface {
	Register(ctx context.Context, in user.RegisterRequest) (*user.AuthResponse, error)
	Login(ctx context.Context, in user.LoginRequest) (*user.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*user.AuthResponse, error)
	Logout(ctx context.Context, p *auth.Principal, refreshToken string) error
	Authenticate(ctx context.Context, token string) (*auth.Principal, error)
	Profile(ctx context.Context, id string) (*user.User, error)
	UpdateProfile(ctx context.Context, id string, in user.UpdateProfileRequest) (*user.User, error)
	List(ctx context.Context, f user.ListFilter) ([]user.User, int64, error)
	SetRole(ctx context.Context, id string, role auth.Role) (*user.User, error)
	SetStatus(ctx context.Context, id string, status user.Status) (*user.User, error)
	Delete(ctx context.Context, id string) error
}

// pageParams reads page and limit with the listing defaults.
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

func authTestHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		httpx.OK(c, "Auth route working", gin.H{"status": "active"})
	}
}

func registerHandler(svc accountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in user.RegisterRequest
		if err := c.ShouldBindJSON(&in); err != nil {
			httpx.Fail(c, err)
			return
		}
		res, err := svc.Register(c.Request.Context(), in)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.Created(c, "User registered successfully", res)
	}
}

func loginHandler(svc accountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in user.LoginRequest
		if err := c.ShouldBindJSON(&in); err != nil {
			httpx.Fail(c, err)
			return
		}
		res, err := svc.Login(c.Request.Context(), in)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		setTokenCookie(c, res.TokenPair)
		httpx.OK(c, "Login successful", res)
	}
}

func refreshHandler(svc accountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in user.RefreshRequest
		if err := c.ShouldBindJSON(&in); err != nil {
			httpx.Fail(c, err)
			return
		}
		res, err := svc.Refresh(c.Request.Context(), in.RefreshToken)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "Token refreshed", res)
	}
}

const (
	refreshCookie     = "refreshToken"
	refreshCookiePath = "/api/auth"
)

// setTokenCookie lets browser clients authenticate through the token cookie.
// The refresh token cookie is scoped to the auth routes.
func setTokenCookie(c *gin.Context, pair *auth.TokenPair) {
	if pair == nil {
		return
	}
	secure := c.Request.TLS != nil
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("token", pair.AccessToken, int(time.Until(pair.ExpiresAt).Seconds()), "/", "", secure, true)
	if pair.RefreshToken != "" {
		c.SetCookie(refreshCookie, pair.RefreshToken, int(time.Until(pair.RefreshExpiresAt).Seconds()), refreshCookiePath, "", secure, true)
	}
}

func logoutHandler(svc accountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in user.LogoutRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&in); err != nil {
				httpx.Fail(c, err)
				return
			}
		}
		if in.RefreshToken == "" {
			in.RefreshToken, _ = c.Cookie(refreshCookie)
		}
		if err := svc.Logout(c.Request.Context(), httpx.CurrentPrincipal(c), in.RefreshToken); err != nil {
			httpx.Fail(c, err)
			return
		}
		c.SetCookie("token", "", -1, "/", "", false, true)
		c.SetCookie(refreshCookie, "", -1, refreshCookiePath, "", false, true)
		httpx.OK(c, "Logged out successfully", nil)
	}
}

func profileHandler(svc accountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := svc.Profile(c.Request.Context(), httpx.CurrentPrincipal(c).UserID)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "User profile retrieved", u)
	}
}

func updateProfileHandler(svc accountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in user.UpdateProfileRequest
		if err := c.ShouldBindJSON(&in); err != nil {
			httpx.Fail(c, err)
			return
		}
		u, err := svc.UpdateProfile(c.Request.Context(), httpx.CurrentPrincipal(c).UserID, in)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "Profile updated successfully", u)
	}
}

func listUsersHandler(svc accountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, limit := pageParams(c)
		f := user.ListFilter{
			Page:   page,
			Limit:  limit,
			Role:   auth.Role(c.Query("role")),
			Status: user.Status(c.Query("status")),
			Search: c.Query("search"),
		}
		users, total, err := svc.List(c.Request.Context(), f)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.Paginated(c, users, httpx.NewPagination(page, limit, total))
	}
}

func setRoleHandler(svc accountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in user.SetRoleRequest
		if err := c.ShouldBindJSON(&in); err != nil {
			httpx.Fail(c, err)
			return
		}
		u, err := svc.SetRole(c.Request.Context(), c.Param("id"), in.Role)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "User role updated", u)
	}
}

func setStatusHandler(svc accountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in user.SetStatusRequest
		if err := c.ShouldBindJSON(&in); err != nil {
			httpx.Fail(c, err)
			return
		}
		u, err := svc.SetStatus(c.Request.Context(), c.Param("id"), in.Status)
		if err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "User status updated", u)
	}
}

func deleteUserHandler(svc accountService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Param("id") == httpx.CurrentPrincipal(c).UserID {
			httpx.Fail(c, httpx.BadRequest("You cannot delete your own account"))
			return
		}
		if err := svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
			httpx.Fail(c, err)
			return
		}
		httpx.OK(c, "User deleted successfully", nil)
	}
}
