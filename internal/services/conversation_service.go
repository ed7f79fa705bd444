// Package services – ConversationService
//
// This file implements the ConversationService, which manages the lifecycle
// of coaching threads outside the chat turn itself: explicit creation,
// listing (with pagination), renaming, archiving, and deletion. It validates
// and normalizes titles, enforces ownership rules, and coordinates repository
// operations. Automatic titling of new threads is performed by ChatService on
// the first user message.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/fitbot/fitbot-backend/internal/domain"
)

// defaultConversationTitle is used for threads created without a message.
const defaultConversationTitle = "Nueva conversación"

// ConversationStore defines the repository contract required by
// ConversationService.
type ConversationStore interface {
	// GetUser fetches the account row for quota decisions.
	GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error)

	// CreateConversation inserts a new conversation row for the given user.
	CreateConversation(ctx context.Context, db *gorm.DB, userID, title string) (*domain.Conversation, error)

	// ListConversations returns the user's conversations, freshest first.
	ListConversations(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.Conversation, error)

	// CountConversations returns the total number of conversations for pagination.
	CountConversations(ctx context.Context, db *gorm.DB, userID string) (int64, error)

	// ListConversationsPage returns a page of conversations belonging to the user.
	ListConversationsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Conversation, error)

	// GetConversation fetches a conversation by ID ensuring it belongs to the user.
	GetConversation(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Conversation, error)

	// UpdateConversationTitle updates a conversation's title (ownership enforced).
	UpdateConversationTitle(ctx context.Context, db *gorm.DB, id, userID, title string) error

	// UpdateConversationStatus flips a conversation between ACTIVE and ARCHIVED.
	UpdateConversationStatus(ctx context.Context, db *gorm.DB, id, userID, status string) error

	// DeleteConversation soft-deletes a conversation (ownership enforced).
	DeleteConversation(ctx context.Context, db *gorm.DB, id, userID string) error

	// ListMessages returns the full message history of a conversation.
	ListMessages(ctx context.Context, db *gorm.DB, conversationID string, limit int) ([]domain.Message, error)

	// CountMessages returns the total number of messages for pagination.
	CountMessages(ctx context.Context, db *gorm.DB, conversationID string) (int64, error)

	// ListMessagesPage returns a page of a conversation's messages, oldest first.
	ListMessagesPage(ctx context.Context, db *gorm.DB, conversationID string, offset, limit int) ([]domain.Message, error)
}

// ConversationService provides thread-level operations: creating, listing,
// renaming, archiving, and deleting conversations. It enforces title rules
// and ensures ownership constraints.
type ConversationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Store is the repository used by this service.
	Store ConversationStore

	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
	// PageLimit caps the non-paginated sidebar listing.
	PageLimit int
}

// NewConversationService constructs a ConversationService with defaults for
// title clamping and listing size.
func NewConversationService(db *gorm.DB, store ConversationStore) *ConversationService {
	return &ConversationService{
		DB:          db,
		Store:       store,
		TitleMaxLen: 100,
		PageLimit:   50,
	}
}

// Create inserts a new empty conversation owned by userID, counting it
// against the subscription tier's ceiling.
func (s *ConversationService) Create(ctx context.Context, userID string) (*domain.Conversation, error) {
	user, err := s.Store.GetUser(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	count, err := s.Store.CountConversations(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	if count >= int64(domain.ConversationLimit(user.SubscriptionTier)) {
		return nil, ErrConversationLimit
	}
	return s.Store.CreateConversation(ctx, s.DB, userID, defaultConversationTitle)
}

// List returns the user's conversations, most recently active first, capped
// at the sidebar page limit.
func (s *ConversationService) List(ctx context.Context, userID string) ([]domain.Conversation, error) {
	return s.Store.ListConversations(ctx, s.DB, userID, s.PageLimit)
}

// ListPage returns a page of conversations for a user (paginated).
// It applies defaults for invalid page/pageSize and returns total count.
func (s *ConversationService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Store.CountConversations(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Conversation{}, 0, nil
	}

	items, err := s.Store.ListConversationsPage(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}

// Get fetches a single conversation with its full message history.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID string) (*domain.Conversation, []domain.Message, error) {
	conv, err := s.Store.GetConversation(ctx, s.DB, conversationID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrConversationNotFound
		}
		return nil, nil, err
	}
	msgs, err := s.Store.ListMessages(ctx, s.DB, conv.ID, 0)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

// Messages returns a page of a conversation's history, oldest first, after
// verifying the conversation belongs to the user.
func (s *ConversationService) Messages(ctx context.Context, userID, conversationID string, page, pageSize int) ([]domain.Message, int64, error) {
	if _, err := s.Store.GetConversation(ctx, s.DB, conversationID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, ErrConversationNotFound
		}
		return nil, 0, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	total, err := s.Store.CountMessages(ctx, s.DB, conversationID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}

	items, err := s.Store.ListMessagesPage(ctx, s.DB, conversationID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Rename updates a conversation's title, ensuring the conversation exists and
// belongs to the given user. Blank titles fall back to the default.
func (s *ConversationService) Rename(ctx context.Context, userID, conversationID, title string) error {
	title = normalizeTitle(title)
	if title == "" {
		title = defaultConversationTitle
	}
	err := s.Store.UpdateConversationTitle(ctx, s.DB, conversationID, userID, s.clip(title))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrConversationNotFound
	}
	return err
}

// Archive moves a conversation out of the active sidebar without deleting it.
func (s *ConversationService) Archive(ctx context.Context, userID, conversationID string) error {
	return s.setStatus(ctx, userID, conversationID, domain.ConversationArchived)
}

// Restore returns an archived conversation to the active list.
func (s *ConversationService) Restore(ctx context.Context, userID, conversationID string) error {
	return s.setStatus(ctx, userID, conversationID, domain.ConversationActive)
}

func (s *ConversationService) setStatus(ctx context.Context, userID, conversationID, status string) error {
	err := s.Store.UpdateConversationStatus(ctx, s.DB, conversationID, userID, status)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrConversationNotFound
	}
	return err
}

// Delete removes a conversation and (by cascade) its messages.
func (s *ConversationService) Delete(ctx context.Context, userID, conversationID string) error {
	err := s.Store.DeleteConversation(ctx, s.DB, conversationID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrConversationNotFound
	}
	return err
}

// clip truncates a title to the configured maximum rune length.
func (s *ConversationService) clip(title string) string {
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		return string([]rune(title)[:s.TitleMaxLen])
	}
	return title
}

// normalizeTitle trims whitespace and collapses multiple spaces to one.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
