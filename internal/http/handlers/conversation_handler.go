// Conversation HTTP handlers.
//
// This file exposes REST endpoints for conversation resources:
//   - POST   /conversations                (create empty thread)
//   - GET    /conversations                (list, paginated, ETag support)
//   - GET    /conversations/{id}           (thread with full history)
//   - PUT    /conversations/{id}/title     (rename)
//   - PUT    /conversations/{id}/archive   (archive)
//   - PUT    /conversations/{id}/restore   (restore)
//   - DELETE /conversations/{id}           (delete)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fitbot/fitbot-backend/internal/domain"
	"github.com/fitbot/fitbot-backend/internal/provider"
	"github.com/fitbot/fitbot-backend/internal/repo"
	"github.com/fitbot/fitbot-backend/internal/services"
	"github.com/fitbot/fitbot-backend/internal/sysutil"
	"github.com/fitbot/fitbot-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ConversationService defines thread lifecycle operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ConversationService interface {
	// Create starts a new empty conversation for userID.
	Create(ctx context.Context, userID string) (*domain.Conversation, error)
	// List returns the user's conversations (sidebar, non-paginated).
	List(ctx context.Context, userID string) ([]domain.Conversation, error)
	// ListPage returns a page of conversations and the total count.
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, int64, error)
	// Get returns one conversation with its full message history.
	Get(ctx context.Context, userID, conversationID string) (*domain.Conversation, []domain.Message, error)
	// Messages returns a page of a conversation's history and the total count.
	Messages(ctx context.Context, userID, conversationID string, page, pageSize int) ([]domain.Message, int64, error)
	// Rename updates a conversation title.
	Rename(ctx context.Context, userID, conversationID, title string) error
	// Archive moves a conversation out of the active list.
	Archive(ctx context.Context, userID, conversationID string) error
	// Restore reactivates an archived conversation.
	Restore(ctx context.Context, userID, conversationID string) error
	// Delete removes a conversation and its messages.
	Delete(ctx context.Context, userID, conversationID string) error
}

// ChatService starts one streaming chat turn.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ChatService interface {
	// SendMessage validates, persists the user turn, and returns the live
	// reply stream for the conversation it landed in.
	SendMessage(ctx context.Context, userID, conversationID, text string) (*domain.Conversation, *provider.Stream, error)
}

// ProfileService reads and updates the fitness questionnaire.
type ProfileService interface {
	Get(ctx context.Context, userID string) (*domain.FitnessProfile, error)
	Update(ctx context.Context, userID string, upd services.ProfileUpdate) (*domain.FitnessProfile, error)
}

// SearchService runs quota-checked web searches.
type SearchService interface {
	Search(ctx context.Context, userID, query, category string) (*services.SearchResponse, error)
}

// RecommendationService produces and lists product recommendations.
type RecommendationService interface {
	Recommend(ctx context.Context, userID string, goals []string, userMessage string) (*services.RecommendationResult, error)
	History(ctx context.Context, userID string) ([]domain.Recommendation, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for chat, conversations, profile, search,
// and recommendations. It depends on abstract service interfaces to keep
// transport concerns separate from business logic.
type Handlers struct {
	convSvc   ConversationService
	chatSvc   ChatService
	profSvc   ProfileService
	searchSvc SearchService
	recSvc    RecommendationService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(convSvc ConversationService, chatSvc ChatService, profSvc ProfileService, searchSvc SearchService, recSvc RecommendationService) *Handlers {
	return &Handlers{
		convSvc:   convSvc,
		chatSvc:   chatSvc,
		profSvc:   profSvc,
		searchSvc: searchSvc,
		recSvc:    recSvc,
	}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	var fromCtx, fromHeader string
	if v, ok := c.Get("userID"); ok {
		fromCtx, _ = v.(string)
	}
	if c != nil && c.Request != nil {
		fromHeader = c.GetHeader("X-User-ID")
	}
	return strings.TrimSpace(sysutil.FirstNonEmpty(fromCtx, fromHeader, "demo-user"))
}

//
// DTOs
//

// RenameConversationRequest is the JSON payload for renaming a conversation.
type RenameConversationRequest struct {
	// Title is the new conversation name (1-100 chars).
	Title string `json:"title" binding:"required,min=1,max=100" example:"Rutina de volumen"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListConversationsResponse wraps a page of conversations and pagination
// information.
type ListConversationsResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
	Pagination    Pagination            `json:"pagination"`
}

// ListMessagesResponse wraps a page of a conversation's messages and
// pagination information.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// ConversationDetailResponse is one conversation with its full history.
type ConversationDetailResponse struct {
	Conversation *domain.Conversation `json:"conversation"`
	Messages     []domain.Message     `json:"messages"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
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

// failService translates service-level errors into the HTTP error contract.
// Rate-limit errors additionally carry the X-RateLimit-* headers and a
// Retry-After hint so clients can back off precisely.
func failService(c *gin.Context, err error, fallbackCode string) {
	if rle, ok := services.IsRateLimit(err); ok {
		c.Header("X-RateLimit-Limit", strconv.Itoa(rle.Decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(rle.Decision.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(rle.Decision.Reset.Unix(), 10))
		c.Header("Retry-After", strconv.FormatInt(rle.RetryAfterSeconds(), 10))
		fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, err.Error())
		return
	}

	switch {
	case errors.Is(err, services.ErrEmptyMessage),
		errors.Is(err, services.ErrMessageTooLong),
		errors.Is(err, services.ErrEmptyQuery),
		errors.Is(err, services.ErrQueryTooLong):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidProfile):
		fail(c, http.StatusBadRequest, ErrCodeInvalidProfile, err.Error())
	case errors.Is(err, services.ErrConversationLimit):
		fail(c, http.StatusForbidden, ErrCodeConversationLimit, err.Error())
	case errors.Is(err, services.ErrConversationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
	case errors.Is(err, services.ErrUserNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
	default:
		fail(c, http.StatusInternalServerError, fallbackCode, err.Error())
	}
}

//
// Handlers
//

// CreateConversation godoc
// @ID          createConversation
// @Summary     Create a new conversation
// @Description Creates an empty conversation for the current user, counted against the subscription tier's ceiling.
// @Tags        Conversations
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
//
// @Success     201  {object}  domain.Conversation
// @Failure     403  {object}  handlers.ErrorResponse  "Conversation limit reached"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /conversations [post]
func (h *Handlers) CreateConversation(c *gin.Context) {
	conv, err := h.convSvc.Create(c.Request.Context(), userID(c))
	if err != nil {
		failService(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, conv)
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List conversations (paginated)
// @Description Returns a page of the user's conversations, most recently active first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Conversations
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"       example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListConversationsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, ok := h.convSvc.(*services.ConversationService); ok {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.ConversationsStats(ctx, db, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"conversations:%s:%d:%d"`, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.convSvc.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	resp := ListConversationsResponse{
		Conversations: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	}
	ok(c, http.StatusOK, resp)
}

// GetConversation godoc
// @ID          getConversation
// @Summary     Get a conversation with history
// @Description Returns one conversation owned by the current user together with its full message history.
// @Tags        Conversations
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Conversation ID (UUID)" format(uuid)
//
// @Success     200  {object} handlers.ConversationDetailResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id} [get]
func (h *Handlers) GetConversation(c *gin.Context) {
	conversationID := c.Param("id")
	if _, err := uuid.Parse(conversationID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	conv, msgs, err := h.convSvc.Get(c.Request.Context(), userID(c), conversationID)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, ConversationDetailResponse{Conversation: conv, Messages: msgs})
}

// ListConversationMessages godoc
// @ID          listConversationMessages
// @Summary     List a conversation's messages (paginated)
// @Description Returns a page of messages from a conversation owned by the current user, oldest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Conversations
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"       example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       id             path    string  true  "Conversation ID (UUID)"      format(uuid)
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ListConversationMessages(c *gin.Context) {
	conversationID := c.Param("id")
	if _, err := uuid.Parse(conversationID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort). The tag includes the user id so a match
	// never leaks across accounts.
	var db *gorm.DB
	if svc, ok := h.convSvc.(*services.ConversationService); ok {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.MessagesStats(ctx, db, conversationID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"messages:%s:%s:%d:%d"`, uid, conversationID, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.convSvc.Messages(ctx, uid, conversationID, page, pageSize)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	resp := ListMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	}
	ok(c, http.StatusOK, resp)
}

// RenameConversation godoc
// @ID          renameConversation
// @Summary     Rename a conversation
// @Description Updates the title of a conversation owned by the current user.
// @Tags        Conversations
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Conversation ID (UUID)" format(uuid)
// @Param       body       body    handlers.RenameConversationRequest  true  "New title"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /conversations/{id}/title [put]
func (h *Handlers) RenameConversation(c *gin.Context) {
	conversationID := c.Param("id")
	if _, err := uuid.Parse(conversationID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}

	var req RenameConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title required (1-100 chars)")
		return
	}

	if err := h.convSvc.Rename(c.Request.Context(), userID(c), conversationID, req.Title); err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// ArchiveConversation godoc
// @ID          archiveConversation
// @Summary     Archive a conversation
// @Tags        Conversations
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Conversation ID (UUID)" format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Router      /conversations/{id}/archive [put]
func (h *Handlers) ArchiveConversation(c *gin.Context) {
	h.setStatus(c, h.convSvc.Archive)
}

// RestoreConversation godoc
// @ID          restoreConversation
// @Summary     Restore an archived conversation
// @Tags        Conversations
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Conversation ID (UUID)" format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Router      /conversations/{id}/restore [put]
func (h *Handlers) RestoreConversation(c *gin.Context) {
	h.setStatus(c, h.convSvc.Restore)
}

func (h *Handlers) setStatus(c *gin.Context, op func(ctx context.Context, userID, conversationID string) error) {
	conversationID := c.Param("id")
	if _, err := uuid.Parse(conversationID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}
	if err := op(c.Request.Context(), userID(c), conversationID); err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// DeleteConversation godoc
// @ID          deleteConversation
// @Summary     Delete a conversation
// @Description Removes a conversation owned by the current user along with its messages.
// @Tags        Conversations
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Conversation ID (UUID)" format(uuid)
//
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Conversation not found"
// @Router      /conversations/{id} [delete]
func (h *Handlers) DeleteConversation(c *gin.Context) {
	conversationID := c.Param("id")
	if _, err := uuid.Parse(conversationID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "conversation id must be a UUID")
		return
	}
	if err := h.convSvc.Delete(c.Request.Context(), userID(c), conversationID); err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}
