// Package domain defines the persistence models for users, chats, messages,
// and AI-generated user summaries. These types are mapped with GORM and form
// the core data layer of the chat backend. All models use the paranoid
// (soft-delete) pattern: rows are flagged deleted via DeletedAt rather than
// removed, so history survives account deletion for audit purposes.
package domain

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Message roles. The check constraint on Message.Role mirrors these values.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// User roles.
const (
	UserRoleUser  = "user"
	UserRoleAdmin = "admin"
)

// Supported languages for accounts, chats, and replies.
const (
	LangEnglish = "en"
	LangArabic  = "ar"
)

// User represents a registered account. Accounts are created inactive at
// signup and activated once the verification email is confirmed. Login
// failures are counted on the row; after five consecutive failures the
// account is locked until LockedUntil.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Email / Username: unique identifiers; tombstoned on account deletion
//     (rewritten to "deleted:<id>:<value>") so the address can re-register.
//   - PasswordHash: bcrypt hash; empty for OAuth-only accounts.
//   - OAuthProvider / OAuthSubject: identity-provider pair for OAuth logins.
//   - Language: preferred UI/reply language, "en" or "ar".
//   - EmailVerified / VerifyToken: email verification state.
//   - ResetToken / ResetExpires: password-reset state.
//   - FailedLogins / LockedUntil: lockout bookkeeping.
type User struct {
	ID            string         `json:"id"             gorm:"type:char(36);primaryKey"`
	Email         string         `json:"email"          gorm:"type:varchar(255);not null;uniqueIndex:ux_users_email"`
	Username      string         `json:"username"       gorm:"type:varchar(64);not null;uniqueIndex:ux_users_username"`
	PasswordHash  string         `json:"-"              gorm:"type:varchar(128)"`
	Role          string         `json:"role"           gorm:"type:varchar(16);not null;default:'user';check:role IN ('user','admin')"`
	Language      string         `json:"language"       gorm:"type:varchar(8);not null;default:'en';check:language IN ('en','ar')"`
	AvatarPath    string         `json:"avatar_path,omitempty" gorm:"type:varchar(255)"`
	EmailVerified bool           `json:"email_verified" gorm:"not null;default:false"`
	VerifyToken   string         `json:"-"              gorm:"type:char(36);index"`
	ResetToken    string         `json:"-"              gorm:"type:char(36);index"`
	ResetExpires  *time.Time     `json:"-"`
	FailedLogins  int            `json:"-"              gorm:"not null;default:0"`
	LockedUntil   *time.Time     `json:"-"`
	OAuthProvider string         `json:"-"              gorm:"type:varchar(32);index:idx_users_oauth,priority:1"`
	OAuthSubject  string         `json:"-"              gorm:"type:varchar(128);index:idx_users_oauth,priority:2"`
	LastLoginAt   *time.Time     `json:"last_login_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-"              gorm:"index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Locked reports whether the account is currently locked out.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// Chat represents a conversation owned by a user. Each chat records the model
// and reply language it was created with, free-form tags and generation
// settings, and denormalized counters (MessageCount, TotalTokens) that are
// maintained in the same transaction as message inserts. The counters can
// drift only under out-of-band writes; repo.RecountChat reconciles them.
type Chat struct {
	ID            string         `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID        string         `json:"user_id"    gorm:"type:char(36);not null;index:idx_user_chats"`
	Title         string         `json:"title"      gorm:"type:varchar(255);not null;default:'New chat'"`
	Model         string         `json:"model"      gorm:"type:varchar(64);not null"`
	Language      string         `json:"language"   gorm:"type:varchar(8);not null;default:'en';check:language IN ('en','ar')"`
	Archived      bool           `json:"archived"   gorm:"not null;default:false;index"`
	Pinned        bool           `json:"pinned"     gorm:"not null;default:false"`
	Tags          datatypes.JSON `json:"tags,omitempty"     gorm:"type:json"`
	Settings      datatypes.JSON `json:"settings,omitempty" gorm:"type:json"`
	MessageCount  int64          `json:"message_count" gorm:"not null;default:0"`
	TotalTokens   int64          `json:"total_tokens"  gorm:"not null;default:0"`
	LastMessageAt *time.Time     `json:"last_message_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-"          gorm:"index"`
}

// TableName returns the database table name for Chat.
func (Chat) TableName() string { return "chats" }

// Message represents a single turn within a chat. Seq is a per-chat monotonic
// sequence number assigned under the insert transaction; it is the sole
// ordering key for history and for edit/regenerate truncation (wall-clock
// timestamps are not safe under skew or concurrent writers).
//
// Feedback holds -1, 0, or +1 and is only meaningful for assistant messages.
// ParentID optionally links a regenerated reply to the user message that
// produced it.
type Message struct {
	ID         string         `json:"id"        gorm:"type:char(36);primaryKey"`
	ChatID     string         `json:"chat_id"   gorm:"type:char(36);not null;uniqueIndex:ux_chat_seq,priority:1;index:idx_chat_msgs"`
	Seq        int64          `json:"seq"       gorm:"not null;uniqueIndex:ux_chat_seq,priority:2"`
	Role       string         `json:"role"      gorm:"type:varchar(16);not null;check:role IN ('user','assistant','system')"`
	Content    string         `json:"content"   gorm:"type:text;not null"`
	TokenCount int            `json:"token_count" gorm:"not null;default:0"`
	Model      string         `json:"model,omitempty" gorm:"type:varchar(64)"`
	Edited     bool           `json:"edited"    gorm:"not null;default:false"`
	EditedAt   *time.Time     `json:"edited_at,omitempty"`
	Feedback   int            `json:"feedback"  gorm:"not null;default:0;check:feedback IN (-1,0,1)"`
	ParentID   *string        `json:"parent_id,omitempty" gorm:"type:char(36)"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-"         gorm:"index"`

	// Chat is the parent conversation. Messages are cascade-deleted
	// if their chat is removed.
	Chat Chat `json:"-" gorm:"foreignKey:ChatID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// UserSummary is the one-to-one AI-generated profile of a user: a bilingual
// summary plus derived interests, topics, and usage statistics. It is
// regenerated wholesale on request, never updated incrementally.
type UserSummary struct {
	ID          string         `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID      string         `json:"user_id"     gorm:"type:char(36);not null;uniqueIndex:ux_summary_user"`
	SummaryEN   string         `json:"summary_en"  gorm:"type:text"`
	SummaryAR   string         `json:"summary_ar"  gorm:"type:text"`
	Interests   datatypes.JSON `json:"interests,omitempty"  gorm:"type:json"`
	Topics      datatypes.JSON `json:"topics,omitempty"     gorm:"type:json"`
	Statistics  datatypes.JSON `json:"statistics,omitempty" gorm:"type:json"`
	Model       string         `json:"model"       gorm:"type:varchar(64)"`
	GeneratedAt time.Time      `json:"generated_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"           gorm:"index"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for UserSummary.
func (UserSummary) TableName() string { return "user_summaries" }

// RefreshToken backs the refresh half of the access+refresh JWT pair. Only a
// SHA-256 hash of the opaque token is stored; rotation revokes the old row.
type RefreshToken struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string         `json:"user_id"    gorm:"type:char(36);not null;index"`
	TokenHash string         `json:"-"          gorm:"type:char(64);not null;uniqueIndex:ux_refresh_hash"`
	ExpiresAt time.Time      `json:"expires_at" gorm:"not null;index"`
	Revoked   bool           `json:"revoked"    gorm:"not null;default:false"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for RefreshToken.
func (RefreshToken) TableName() string { return "refresh_tokens" }
