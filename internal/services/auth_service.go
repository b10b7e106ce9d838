// Package services – AuthService
//
// This file implements AuthService, which owns the account lifecycle: signup
// with email verification, password login with lockout, the access+refresh
// token pair, password reset, and OAuth account provisioning.
//
// Lockout policy: failed logins are counted on the user row; when the counter
// reaches MaxFailures the account is locked for LockDuration. A successful
// login clears the counter. Locked and unverified accounts are rejected with
// sentinel errors so handlers can map them to distinct HTTP statuses.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/auth"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/domain"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/repo"
)

// Mailer sends transactional email. The zero-value implementation used in
// tests records instead of sending.
type Mailer interface {
	SendVerification(ctx context.Context, to, username, link string) error
	SendPasswordReset(ctx context.Context, to, username, link string) error
}

// TokenPair is the result of a successful login or refresh.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AuthService coordinates account creation, credential checks, and token
// issuance.
type AuthService struct {
	DB     *gorm.DB
	Tokens *auth.Tokens
	Mailer Mailer
	Log    zerolog.Logger

	RefreshTTL    time.Duration
	MaxFailures   int
	LockDuration  time.Duration
	PublicBaseURL string
	DefaultLang   string

	// Now is the clock; overridable in tests.
	Now func() time.Time
}

// NewAuthService constructs an AuthService with the production lockout policy.
func NewAuthService(db *gorm.DB, tokens *auth.Tokens, mailer Mailer, log zerolog.Logger, refreshTTL time.Duration, baseURL, defaultLang string) *AuthService {
	return &AuthService{
		DB:            db,
		Tokens:        tokens,
		Mailer:        mailer,
		Log:           log,
		RefreshTTL:    refreshTTL,
		MaxFailures:   5,
		LockDuration:  2 * time.Hour,
		PublicBaseURL: strings.TrimRight(baseURL, "/"),
		DefaultLang:   defaultLang,
		Now:           func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an inactive account and emails a verification link.
// Email and username uniqueness is enforced by the database; constraint
// violations are translated to ErrEmailTaken / ErrUsernameTaken.
func (s *AuthService) Register(ctx context.Context, email, username, password, lang string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("invalid email address")
	}
	if username == "" || utf8.RuneCountInString(username) > 64 {
		return nil, fmt.Errorf("invalid username")
	}
	if utf8.RuneCountInString(password) < 8 {
		return nil, ErrWeakPassword
	}
	if lang != domain.LangArabic {
		lang = domain.LangEnglish
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	verifyToken := uuid.NewString()

	user := &domain.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         domain.UserRoleUser,
		Language:     lang,
		VerifyToken:  verifyToken,
	}
	if _, err := repo.CreateUser(ctx, s.DB, user); err != nil {
		if col, ok := uniqueViolation(err); ok {
			switch col {
			case "username":
				return nil, ErrUsernameTaken
			default:
				return nil, ErrEmailTaken
			}
		}
		return nil, err
	}

	link := s.PublicBaseURL + "/verify-email?token=" + verifyToken
	if err := s.Mailer.SendVerification(ctx, email, username, link); err != nil {
		// The account stays registered; the user can request a resend.
		s.Log.Warn().Err(err).Str("user_id", user.ID).Msg("verification email failed")
	}
	return user, nil
}

// VerifyEmail activates the account matching the verification token.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	user, err := repo.GetUserByVerifyToken(ctx, s.DB, token)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	return repo.UpdateUserFields(ctx, s.DB, user.ID, map[string]any{
		"email_verified": true,
		"verify_token":   "",
	})
}

// ResendVerification re-issues the verification email for an unverified account.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := repo.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		// Do not reveal whether the address exists.
		return nil
	}
	if user.EmailVerified {
		return nil
	}
	token := user.VerifyToken
	if token == "" {
		token = uuid.NewString()
		if err := repo.UpdateUserFields(ctx, s.DB, user.ID, map[string]any{"verify_token": token}); err != nil {
			return err
		}
	}
	link := s.PublicBaseURL + "/verify-email?token=" + token
	return s.Mailer.SendVerification(ctx, email, user.Username, link)
}

// Login checks credentials, enforces the lockout window, and issues a token
// pair. Every failed password attempt increments the counter even when the
// response is indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := repo.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, err
	}

	now := s.Now()
	if user.Locked(now) {
		return nil, nil, ErrAccountLocked
	}

	if user.PasswordHash == "" || !auth.CheckPassword(user.PasswordHash, password) {
		// The counter's read-increment-write must not interleave with a
		// concurrent failed attempt for the same account.
		var count int
		rerr := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			n, err := repo.RecordFailedLogin(ctx, tx, user.ID, s.MaxFailures, s.LockDuration)
			if err != nil {
				return err
			}
			count = n
			return nil
		})
		if rerr != nil {
			return nil, nil, rerr
		}
		if count >= s.MaxFailures {
			s.Log.Warn().Str("user_id", user.ID).Int("failures", count).Msg("account locked")
			return nil, nil, ErrAccountLocked
		}
		return nil, nil, ErrInvalidCredentials
	}

	if !user.EmailVerified {
		return nil, nil, ErrAccountUnverified
	}

	if err := repo.ResetFailedLogins(ctx, s.DB, user.ID, now); err != nil {
		return nil, nil, err
	}
	pair, err := s.issuePair(ctx, user, now)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a fresh
// pair is issued. A revoked or expired token yields ErrInvalidToken.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh string) (*TokenPair, error) {
	now := s.Now()
	stored, err := repo.GetRefreshToken(ctx, s.DB, auth.HashRefreshToken(rawRefresh), now)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	user, err := repo.GetUser(ctx, s.DB, stored.UserID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if err := repo.RevokeRefreshToken(ctx, s.DB, stored.ID); err != nil {
		return nil, err
	}
	return s.issuePair(ctx, user, now)
}

// Logout revokes the presented refresh token. Unknown tokens are a no-op.
func (s *AuthService) Logout(ctx context.Context, rawRefresh string) error {
	stored, err := repo.GetRefreshToken(ctx, s.DB, auth.HashRefreshToken(rawRefresh), s.Now())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return err
	}
	return repo.RevokeRefreshToken(ctx, s.DB, stored.ID)
}

// ForgotPassword issues a reset token valid for one hour and emails the link.
// It reports success regardless of whether the address exists.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := repo.GetUserByEmail(ctx, s.DB, email)
	if err != nil {
		return nil
	}
	token := uuid.NewString()
	expires := s.Now().Add(time.Hour)
	if err := repo.UpdateUserFields(ctx, s.DB, user.ID, map[string]any{
		"reset_token":   token,
		"reset_expires": &expires,
	}); err != nil {
		return err
	}
	link := s.PublicBaseURL + "/reset-password?token=" + token
	return s.Mailer.SendPasswordReset(ctx, email, user.Username, link)
}

// ResetPassword sets a new password from a valid reset token. All refresh
// tokens for the account are revoked so stolen sessions die with the reset.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if utf8.RuneCountInString(newPassword) < 8 {
		return ErrWeakPassword
	}
	user, err := repo.GetUserByResetToken(ctx, s.DB, token, s.Now())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdateUserFields(ctx, tx, user.ID, map[string]any{
			"password_hash": hash,
			"reset_token":   "",
			"reset_expires": nil,
			"failed_logins": 0,
			"locked_until":  nil,
		}); err != nil {
			return err
		}
		return repo.RevokeUserRefreshTokens(ctx, tx, user.ID)
	})
}

// OAuthLogin provisions or retrieves the account for an OAuth identity and
// issues a token pair. New accounts are created verified (the provider already
// verified the address). An existing password account with the same email is
// linked rather than duplicated.
func (s *AuthService) OAuthLogin(ctx context.Context, provider, subject, email, name string) (*domain.User, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	now := s.Now()

	user, err := repo.GetUserByOAuth(ctx, s.DB, provider, subject)
	if errors.Is(err, repo.ErrNotFound) {
		user, err = repo.GetUserByEmail(ctx, s.DB, email)
		if err == nil {
			// Link the provider identity to the existing account.
			err = repo.UpdateUserFields(ctx, s.DB, user.ID, map[string]any{
				"o_auth_provider": provider,
				"o_auth_subject":  subject,
				"email_verified":  true,
			})
		} else if errors.Is(err, repo.ErrNotFound) {
			user, err = repo.CreateUser(ctx, s.DB, &domain.User{
				Email:         email,
				Username:      s.usernameFromEmail(ctx, email, name),
				Role:          domain.UserRoleUser,
				Language:      s.DefaultLang,
				EmailVerified: true,
				OAuthProvider: provider,
				OAuthSubject:  subject,
			})
		}
	}
	if err != nil {
		return nil, nil, err
	}

	if user.Locked(now) {
		return nil, nil, ErrAccountLocked
	}
	if err := repo.ResetFailedLogins(ctx, s.DB, user.ID, now); err != nil {
		return nil, nil, err
	}
	pair, err := s.issuePair(ctx, user, now)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// DeleteAccount tombstones the user and revokes every refresh token. The
// email and username become available for re-registration immediately.
func (s *AuthService) DeleteAccount(ctx context.Context, userID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.RevokeUserRefreshTokens(ctx, tx, userID); err != nil {
			return err
		}
		if err := repo.TombstoneUser(ctx, tx, userID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		return nil
	})
}

// issuePair signs an access token and persists a fresh refresh token.
func (s *AuthService) issuePair(ctx context.Context, user *domain.User, now time.Time) (*TokenPair, error) {
	access, err := s.Tokens.Issue(user.ID, user.Role, now)
	if err != nil {
		return nil, err
	}
	raw, hash, err := auth.NewRefreshToken()
	if err != nil {
		return nil, err
	}
	if _, err := repo.CreateRefreshToken(ctx, s.DB, user.ID, hash, now.Add(s.RefreshTTL)); err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: raw,
		ExpiresAt:    now.Add(s.Tokens.AccessTTL()),
	}, nil
}

// usernameFromEmail derives a unique username for OAuth-provisioned accounts.
func (s *AuthService) usernameFromEmail(ctx context.Context, email, name string) string {
	base := strings.TrimSpace(name)
	if base == "" {
		base = strings.SplitN(email, "@", 2)[0]
	}
	base = strings.ToLower(strings.ReplaceAll(base, " ", "-"))
	if base == "" {
		base = "user"
	}
	// Short suffix avoids collisions without a read-check race.
	return base + "-" + uuid.NewString()[:8]
}

// uniqueViolation sniffs SQLite unique-constraint errors and reports the
// offending column ("email" or "username") when identifiable.
func uniqueViolation(err error) (column string, ok bool) {
	if err == nil {
		return "", false
	}
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "unique constraint failed") && !strings.Contains(msg, "duplicate") {
		return "", false
	}
	if strings.Contains(msg, "username") {
		return "username", true
	}
	return "email", true
}
