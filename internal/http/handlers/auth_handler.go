// Auth HTTP handlers.
//
// This file exposes the account endpoints:
//   - POST /auth/register              (signup, sends verification email)
//   - GET  /auth/verify-email          (activate account from token)
//   - POST /auth/resend-verification
//   - POST /auth/login                 (password login with lockout)
//   - POST /auth/refresh               (rotate the refresh token)
//   - POST /auth/logout
//   - POST /auth/forgot-password
//   - POST /auth/reset-password
//   - GET  /auth/google                (OAuth redirect)
//   - GET  /auth/google/callback       (OAuth exchange + provisioning)
package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/domain"
)

// RegisterRequest is the JSON payload for account signup.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required,min=2,max=64"`
	Password string `json:"password" binding:"required,min=8"`
	Language string `json:"language" binding:"omitempty,oneof=en ar"`
}

// LoginRequest is the JSON payload for password login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest carries the opaque refresh token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// EmailRequest carries a bare email address.
type EmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest carries the reset token and replacement password.
type ResetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

// LoginResponse is returned on successful login, refresh, and OAuth callback.
type LoginResponse struct {
	User         *domain.User `json:"user,omitempty"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    string       `json:"expires_at"`
}

// Register creates an inactive account and sends a verification email.
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email, username, and a password of at least 8 characters are required")
		return
	}
	user, err := h.authSvc.Register(c.Request.Context(), req.Email, req.Username, req.Password, req.Language)
	if err != nil {
		mapServiceErr(c, err)
		return
	}
	ok(c, http.StatusCreated, user)
}

// VerifyEmail activates the account for the token in the query string.
func (h *Handlers) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "token required")
		return
	}
	if err := h.authSvc.VerifyEmail(c.Request.Context(), token); err != nil {
		mapServiceErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"verified": true})
}

// ResendVerification re-issues the verification email. Always responds 204 so
// the endpoint does not reveal which addresses exist.
func (h *Handlers) ResendVerification(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email required")
		return
	}
	if err := h.authSvc.ResendVerification(c.Request.Context(), req.Email); err != nil {
		mapServiceErr(c, err)
		return
	}
	noContent(c)
}

// Login authenticates a password account and returns a token pair.
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email and password required")
		return
	}
	user, pair, err := h.authSvc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		mapServiceErr(c, err)
		return
	}
	ok(c, http.StatusOK, loginResponse(user, pair.AccessToken, pair.RefreshToken, pair.ExpiresAt.Format(timeLayout)))
}

// Refresh rotates the refresh token and returns a fresh pair.
func (h *Handlers) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "refresh_token required")
		return
	}
	pair, err := h.authSvc.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		mapServiceErr(c, err)
		return
	}
	ok(c, http.StatusOK, loginResponse(nil, pair.AccessToken, pair.RefreshToken, pair.ExpiresAt.Format(timeLayout)))
}

// Logout revokes the presented refresh token.
func (h *Handlers) Logout(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "refresh_token required")
		return
	}
	if err := h.authSvc.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		mapServiceErr(c, err)
		return
	}
	noContent(c)
}

// ForgotPassword mails a reset link. Always responds 204.
func (h *Handlers) ForgotPassword(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email required")
		return
	}
	if err := h.authSvc.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		mapServiceErr(c, err)
		return
	}
	noContent(c)
}

// ResetPassword sets a new password from a valid reset token.
func (h *Handlers) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "token and a password of at least 8 characters are required")
		return
	}
	if err := h.authSvc.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		mapServiceErr(c, err)
		return
	}
	noContent(c)
}

//
// Google OAuth
//

const oauthStateCookie = "oauth_state"

// GoogleRedirect starts the OAuth flow with a random state nonce.
func (h *Handlers) GoogleRedirect(c *gin.Context) {
	if h.GoogleOAuth == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "oauth not configured")
		return
	}
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "state generation failed")
		return
	}
	state := hex.EncodeToString(buf)
	c.SetCookie(oauthStateCookie, state, 600, "/", "", false, true)
	c.Redirect(http.StatusTemporaryRedirect, h.GoogleOAuth.AuthCodeURL(state))
}

// googleUserinfoURL serves the OAuth2 profile of the token holder.
const googleUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

type googleProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// GoogleCallback exchanges the authorization code, fetches the profile, and
// provisions (or links) the account.
func (h *Handlers) GoogleCallback(c *gin.Context) {
	if h.GoogleOAuth == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "oauth not configured")
		return
	}
	wantState, err := c.Cookie(oauthStateCookie)
	if err != nil || wantState == "" || c.Query("state") != wantState {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "state mismatch")
		return
	}
	code := c.Query("code")
	if code == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "code required")
		return
	}

	ctx := c.Request.Context()
	tok, err := h.GoogleOAuth.Exchange(ctx, code)
	if err != nil {
		fail(c, http.StatusBadGateway, ErrCodeInternal, "oauth exchange failed")
		return
	}

	resp, err := h.GoogleOAuth.Client(ctx, tok).Get(googleUserinfoURL)
	if err != nil {
		fail(c, http.StatusBadGateway, ErrCodeInternal, "profile fetch failed")
		return
	}
	defer resp.Body.Close()
	var profile googleProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil || profile.ID == "" || profile.Email == "" {
		fail(c, http.StatusBadGateway, ErrCodeInternal, "invalid profile response")
		return
	}

	user, pair, err := h.authSvc.OAuthLogin(ctx, "google", profile.ID, profile.Email, profile.Name)
	if err != nil {
		mapServiceErr(c, err)
		return
	}
	ok(c, http.StatusOK, loginResponse(user, pair.AccessToken, pair.RefreshToken, pair.ExpiresAt.Format(timeLayout)))
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

func loginResponse(user *domain.User, access, refresh, expires string) LoginResponse {
	return LoginResponse{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expires,
	}
}
