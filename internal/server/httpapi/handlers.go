package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type revokeRequest struct {
	Token string `json:"token" binding:"required"`
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type TokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type UserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

type PrincipalResponse struct {
	Subject   string    `json:"sub"`
	Role      string    `json:"role"`
	TokenID   string    `json:"jti"`
	ExpiresAt time.Time `json:"exp"`
}

type Handler struct {
	users *services.UserService
	admin *services.AdminService
}

func NewHandler(users *services.UserService, admin *services.AdminService) *Handler {
	return &Handler{users: users, admin: admin}
}

func tokenResponse(p auth.TokenPair) TokenResponse {
	return TokenResponse{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		TokenType:        common.BearerScheme,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

// refreshCookieName holds the refresh token as an httpOnly cookie next to
// the JSON body.
const refreshCookieName = "refresh_token"

func secureRequest(c *gin.Context) bool {
	return c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https")
}

func setRefreshCookie(c *gin.Context, p auth.TokenPair) {
	maxAge := int(time.Until(p.RefreshExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookieName, p.RefreshToken, maxAge, "/", "", secureRequest(c), true)
}

func clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookieName, "", -1, "/", "", secureRequest(c), true)
}

// refreshToken reads the refresh token from the JSON body, falling back to
// the cookie. The body is optional.
func refreshToken(c *gin.Context) (string, error) {
	var req refreshRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			return "", err
		}
	}
	if req.RefreshToken != "" {
		return req.RefreshToken, nil
	}
	if v, err := c.Cookie(refreshCookieName); err == nil {
		return v, nil
	}
	return "", nil
}

func (h *Handler) HandleRegister(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	u, err := h.users.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, UserResponse{ID: u.ID, Username: u.UserName, Role: u.Role})
}

func (h *Handler) HandleLogin(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	pair, err := h.users.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	setRefreshCookie(c, pair)
	c.JSON(http.StatusOK, tokenResponse(pair))
}

func (h *Handler) HandleRefresh(c *gin.Context) {
	raw, err := refreshToken(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	if raw == "" {
		writeError(c, common.ErrorMissingToken)
		return
	}

	pair, err := h.users.Refresh(c.Request.Context(), raw)
	if err != nil {
		writeError(c, err)
		return
	}

	setRefreshCookie(c, pair)
	c.JSON(http.StatusOK, tokenResponse(pair))
}

// HandleLogout revokes the bearer access token and the refresh token from
// the body or cookie, if any.
func (h *Handler) HandleLogout(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		writeError(c, common.ErrorMissingToken)
		return
	}

	raw, err := refreshToken(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	if err := h.users.Logout(c.Request.Context(), p, raw); err != nil {
		writeError(c, err)
		return
	}

	clearRefreshCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) HandleMe(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		writeError(c, common.ErrorMissingToken)
		return
	}
	c.JSON(http.StatusOK, PrincipalResponse{
		Subject:   p.Subject,
		Role:      string(p.Role),
		TokenID:   p.TokenID,
		ExpiresAt: p.ExpiresAt,
	})
}

func (h *Handler) HandleRevoke(c *gin.Context) {
	operator, _ := principal(c)

	var req revokeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	p, err := h.admin.RevokeToken(c.Request.Context(), operator, req.Token)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"jti": p.TokenID, "kind": p.Kind, "expires_at": p.ExpiresAt})
}

func (h *Handler) HandlePurge(c *gin.Context) {
	n, err := h.admin.PurgeExpired(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purged": n})
}

// HandleSetActive answers 404 for ids that are not UUIDs; no such account
// can exist.
func (h *Handler) HandleSetActive(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, common.ErrorNotFound)
		return
	}

	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.users.SetActive(c.Request.Context(), id.String(), *req.Active); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
