// Handler wiring and shared helpers.
//
// Handlers are transport-thin: they validate input, call application services
// through narrow interfaces, and translate results (including sentinel service
// errors) into HTTP responses. The service interfaces keep transport concerns
// separate from business logic and let tests substitute fakes.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/ai"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/domain"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/http/middleware"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/services"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/utils"
	"github.com/ensiyassine99-sys/Chat-AI-sub000/internal/ws"
)

//
// Service contracts (context-aware)
//

// AuthService defines the account lifecycle operations consumed by HTTP
// handlers. Implementations must honor the provided context.
type AuthService interface {
	Register(ctx context.Context, email, username, password, lang string) (*domain.User, error)
	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (*domain.User, *services.TokenPair, error)
	Refresh(ctx context.Context, rawRefresh string) (*services.TokenPair, error)
	Logout(ctx context.Context, rawRefresh string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	OAuthLogin(ctx context.Context, provider, subject, email, name string) (*domain.User, *services.TokenPair, error)
	DeleteAccount(ctx context.Context, userID string) error
}

// ChatService defines chat lifecycle operations consumed by HTTP handlers.
type ChatService interface {
	Create(ctx context.Context, userID, title, model, lang string) (*domain.Chat, error)
	ListPage(ctx context.Context, userID string, archived bool, page, pageSize int) ([]domain.Chat, int64, error)
	Get(ctx context.Context, userID, chatID string) (*domain.Chat, error)
	Update(ctx context.Context, userID, chatID string, upd services.ChatUpdate) (*domain.Chat, error)
	SetArchived(ctx context.Context, userID, chatID string, archived bool) error
	Delete(ctx context.Context, userID, chatID string) error
	SearchMessages(ctx context.Context, userID, query string, limit int) ([]services.SearchHit, error)
}

// MessageService defines message persistence and generation operations.
type MessageService interface {
	Send(ctx context.Context, userID, chatID, prompt string) (*services.SendResult, error)
	EditAndRegenerate(ctx context.Context, userID, chatID, messageID, newContent string) (*services.SendResult, error)
	Regenerate(ctx context.Context, userID, chatID, messageID string) (*services.SendResult, error)
	Feedback(ctx context.Context, userID, chatID, messageID string, value int) error
	ListPage(ctx context.Context, userID, chatID string, page, pageSize int) ([]domain.Message, int64, error)
}

// SummaryService defines the per-user AI summary operations.
type SummaryService interface {
	Get(ctx context.Context, userID string) (*domain.UserSummary, error)
	Generate(ctx context.Context, userID string) (*domain.UserSummary, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for auth, chats, messages, and users.
type Handlers struct {
	authSvc AuthService
	chatSvc ChatService
	msgSvc  MessageService
	sumSvc  SummaryService

	// DB backs ETag stats, exports, and idempotency records directly; these
	// read paths do not justify their own service methods.
	DB *gorm.DB

	// Hub pushes real-time events; nil disables notifications.
	Hub *ws.Hub

	// Models is the public model catalogue served by GET /chat/models.
	Models []ai.ModelInfo

	// GoogleOAuth is the configured OAuth flow; nil disables the endpoints.
	GoogleOAuth *oauth2.Config

	// UploadDir receives avatar files.
	UploadDir string
}

// New constructs a Handlers instance bound to the given services.
func New(authSvc AuthService, chatSvc ChatService, msgSvc MessageService, sumSvc SummaryService, db *gorm.DB) *Handlers {
	return &Handlers{
		authSvc: authSvc,
		chatSvc: chatSvc,
		msgSvc:  msgSvc,
		sumSvc:  sumSvc,
		DB:      db,
	}
}

// userID extracts the authenticated user id set by the auth middleware.
func userID(c *gin.Context) string {
	return middleware.UserID(c)
}

//
// Shared DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func paginate(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// mapServiceErr translates sentinel service errors into the HTTP taxonomy.
// Unknown errors become 500 internal_error.
func mapServiceErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrChatNotFound),
		errors.Is(err, services.ErrMessageNotFound),
		errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, services.ErrEmailTaken),
		errors.Is(err, services.ErrUsernameTaken):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, ErrCodeInvalidCredentials, err.Error())
	case errors.Is(err, services.ErrAccountLocked):
		fail(c, http.StatusLocked, ErrCodeAccountLocked, err.Error())
	case errors.Is(err, services.ErrAccountUnverified):
		fail(c, http.StatusForbidden, ErrCodeEmailUnverified, err.Error())
	case errors.Is(err, services.ErrInvalidToken):
		fail(c, http.StatusUnauthorized, ErrCodeInvalidToken, err.Error())
	case errors.Is(err, services.ErrWeakPassword):
		fail(c, http.StatusBadRequest, ErrCodeWeakPassword, err.Error())
	case errors.Is(err, services.ErrEmptyPrompt),
		errors.Is(err, services.ErrTooLong),
		errors.Is(err, services.ErrInvalidFeedback),
		errors.Is(err, services.ErrNotUserMessage),
		errors.Is(err, services.ErrNotAssistantMessage):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrNoMessages):
		fail(c, http.StatusNotFound, ErrCodeNoMessages, err.Error())
	case errors.Is(err, ai.ErrNoProvider):
		fail(c, http.StatusBadGateway, ErrCodeGenerationFailed, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
