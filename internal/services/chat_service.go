// Package services – ChatService
//
// This file implements the ChatService, which orchestrates one chat turn end
// to end: validation, hourly rate limiting, tier quota enforcement, lazy
// conversation creation, history loading, prompt assembly, and the streamed
// model reply. Persistence of the assistant turn happens asynchronously when
// the stream finishes, on a context detached from the request so a client
// disconnect cannot lose the reply.
//
// Service-level errors (e.g., ErrConversationNotFound) are returned for
// predictable cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/fitbot/fitbot-backend/internal/config"
	"github.com/fitbot/fitbot-backend/internal/domain"
	"github.com/fitbot/fitbot-backend/internal/provider"
	"github.com/fitbot/fitbot-backend/internal/ratelimit"
)

// systemPrompt is the coaching persona sent with every generation.
const systemPrompt = `Eres FitBot, un entrenador personal con IA especializado en fitness y nutrición.

Puedes usar Markdown enriquecido para responder. Tienes acceso a:
- **Texto en negrita** y *cursiva*
- Listas numeradas y con viñetas
- Tablas para planes de entrenamiento y valores nutricionales
- Bloques de código para rutinas específicas
- Matemáticas LaTeX para cálculos (usa $$ para ecuaciones)
- Diagramas Mermaid para visualizar progreso

Para consejos importantes, usa:
> **💡 Consejo:** Tu texto aquí

Para información nutricional:
> **🥗 Nutrición:** Tu información aquí

Para advertencias:
> **⚠️ Importante:** Tu advertencia aquí`

// ChatStore defines the persistence contract required by ChatService.
type ChatStore interface {
	// GetUser fetches the account row for quota decisions.
	GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error)

	// GetFitnessProfile fetches the coaching profile, or gorm.ErrRecordNotFound.
	GetFitnessProfile(ctx context.Context, db *gorm.DB, userID string) (*domain.FitnessProfile, error)

	// CountConversations returns how many conversations the user owns.
	CountConversations(ctx context.Context, db *gorm.DB, userID string) (int64, error)

	// CreateConversation inserts a new conversation row.
	CreateConversation(ctx context.Context, db *gorm.DB, userID, title string) (*domain.Conversation, error)

	// GetConversation fetches a conversation by ID ensuring ownership.
	GetConversation(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Conversation, error)

	// TouchConversation bumps the conversation's UpdatedAt.
	TouchConversation(ctx context.Context, db *gorm.DB, id string) error

	// CreateMessage appends one message row.
	CreateMessage(ctx context.Context, db *gorm.DB, conversationID, role, content string) (*domain.Message, error)

	// ListRecentMessages returns the newest N messages, oldest first.
	ListRecentMessages(ctx context.Context, db *gorm.DB, conversationID string, limit int) ([]domain.Message, error)

	// IncrementMessageCount bumps the user's lifetime usage counter.
	IncrementMessageCount(ctx context.Context, db *gorm.DB, userID string) error
}

// Generator is the slice of the provider gateway the chat flow needs.
type Generator interface {
	Generate(ctx context.Context, msgs []provider.Message) *provider.Stream
}

// ChatService coordinates one streamed chat turn.
type ChatService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Store is the persistence contract used by this service.
	Store ChatStore
	// Gateway produces assistant replies.
	Gateway Generator
	// Limiter enforces the hourly chat quota. A nil limiter disables it.
	Limiter ratelimit.Limiter
	// Limits carries validation and context-assembly ceilings.
	Limits config.LimitsConfig
	// GenTimeout caps one generation end to end.
	GenTimeout time.Duration

	Log zerolog.Logger
}

// NewChatService constructs a ChatService.
func NewChatService(db *gorm.DB, store ChatStore, gw Generator, lim ratelimit.Limiter, limits config.LimitsConfig, genTimeout time.Duration, log zerolog.Logger) *ChatService {
	if genTimeout <= 0 {
		genTimeout = 2 * time.Minute
	}
	return &ChatService{
		DB:         db,
		Store:      store,
		Gateway:    gw,
		Limiter:    lim,
		Limits:     limits,
		GenTimeout: genTimeout,
		Log:        log.With().Str("component", "chat_service").Logger(),
	}
}

// SendMessage runs the full chat-turn pipeline. On success it returns the
// conversation (possibly just created) and the reply stream. The user turn is
// already persisted when SendMessage returns; the assistant turn is persisted
// by a background goroutine when the stream closes.
//
// conversationID may be empty, meaning "start a new conversation"; the new
// thread is titled with a prefix of the opening message and counts against
// the subscription tier's conversation ceiling.
func (s *ChatService) SendMessage(ctx context.Context, userID, conversationID, text string) (*domain.Conversation, *provider.Stream, error) {
	ctx, span := otel.Tracer("services").Start(ctx, "chat.send_message")
	defer span.End()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > s.Limits.MaxMessageRunes {
		return nil, nil, ErrMessageTooLong
	}

	if err := s.allow(ctx, userID, ratelimit.ScopeChat); err != nil {
		return nil, nil, err
	}

	user, err := s.Store.GetUser(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, err
	}

	conv, history, err := s.resolveConversation(ctx, user, conversationID, text)
	if err != nil {
		return nil, nil, err
	}
	span.SetAttributes(attribute.String("conversation.id", conv.ID))

	// The user turn is durable before generation starts.
	if _, err := s.Store.CreateMessage(ctx, s.DB, conv.ID, domain.RoleUser, text); err != nil {
		return nil, nil, err
	}

	msgs := s.buildContext(ctx, user, history, text)

	// Generation must survive the request: the client may disconnect while
	// the reply is still worth persisting.
	genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.GenTimeout)
	inner := s.Gateway.Generate(genCtx, msgs)

	out := provider.NewStream()
	go s.pump(ctx, genCtx, cancel, conv, inner, out)

	return conv, out, nil
}

// allow consults the hourly limiter. Limiter backend failures fail open: a
// Redis outage degrades to unlimited chat rather than a hard 500.
func (s *ChatService) allow(ctx context.Context, userID string, scope ratelimit.Scope) error {
	if s.Limiter == nil {
		return nil
	}
	d, err := s.Limiter.Allow(ctx, userID, scope)
	if err != nil {
		s.Log.Error().Err(err).Str("scope", string(scope)).Msg("rate limiter unavailable, failing open")
		return nil
	}
	if !d.Allowed {
		return &RateLimitError{Scope: scope, Decision: d}
	}
	return nil
}

// resolveConversation loads the target thread and its model-context history,
// creating the thread when conversationID is empty.
func (s *ChatService) resolveConversation(ctx context.Context, user *domain.User, conversationID, text string) (*domain.Conversation, []domain.Message, error) {
	if conversationID == "" {
		count, err := s.Store.CountConversations(ctx, s.DB, user.ID)
		if err != nil {
			return nil, nil, err
		}
		if count >= int64(domain.ConversationLimit(user.SubscriptionTier)) {
			return nil, nil, ErrConversationLimit
		}
		conv, err := s.Store.CreateConversation(ctx, s.DB, user.ID, clipRunes(text, s.Limits.TitlePrefixRunes))
		if err != nil {
			return nil, nil, err
		}
		return conv, nil, nil
	}

	conv, err := s.Store.GetConversation(ctx, s.DB, conversationID, user.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrConversationNotFound
		}
		return nil, nil, err
	}
	history, err := s.Store.ListRecentMessages(ctx, s.DB, conv.ID, s.Limits.HistoryMessages)
	if err != nil {
		return nil, nil, err
	}
	return conv, history, nil
}

// buildContext assembles the model context: persona plus profile summary,
// the recent history, then the current turn.
func (s *ChatService) buildContext(ctx context.Context, user *domain.User, history []domain.Message, text string) []provider.Message {
	system := systemPrompt
	if profile, err := s.Store.GetFitnessProfile(ctx, s.DB, user.ID); err == nil {
		system += "\n\n" + profileSummary(profile)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.Log.Warn().Err(err).Msg("loading fitness profile for prompt")
	}

	msgs := make([]provider.Message, 0, len(history)+2)
	msgs = append(msgs, provider.Message{Role: provider.RoleSystem, Content: system})
	for _, m := range history {
		role := provider.RoleAssistant
		if m.Role == domain.RoleUser {
			role = provider.RoleUser
		}
		msgs = append(msgs, provider.Message{Role: role, Content: m.Content})
	}
	return append(msgs, provider.Message{Role: provider.RoleUser, Content: text})
}

// pump forwards snapshots from the generation stream to the caller's stream
// and persists the assistant turn when generation ends. The inner stream is
// always drained to completion so the full reply is stored even when the
// consumer went away mid-stream.
func (s *ChatService) pump(reqCtx, genCtx context.Context, cancel context.CancelFunc, conv *domain.Conversation, inner, out *provider.Stream) {
	defer cancel()
	defer out.Close()

	forwarding := true
	for snap := range inner.Snapshots() {
		if forwarding && !out.Push(reqCtx, snap) {
			forwarding = false
		}
	}
	if inner.Failed() {
		out.Fail()
	}

	final := inner.Final()
	if final == "" {
		return
	}

	// Detached from both the request and the generation deadline.
	saveCtx, done := context.WithTimeout(context.WithoutCancel(genCtx), 10*time.Second)
	defer done()

	if _, err := s.Store.CreateMessage(saveCtx, s.DB, conv.ID, domain.RoleAssistant, final); err != nil {
		s.Log.Error().Err(err).Str("conversation_id", conv.ID).Msg("persist assistant turn")
		return
	}
	if err := s.Store.TouchConversation(saveCtx, s.DB, conv.ID); err != nil {
		s.Log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("touch conversation")
	}
	if err := s.Store.IncrementMessageCount(saveCtx, s.DB, conv.UserID); err != nil {
		s.Log.Warn().Err(err).Str("user_id", conv.UserID).Msg("bump message count")
	}
}

// profileSummary renders the prompt section describing the user.
func profileSummary(p *domain.FitnessProfile) string {
	var b strings.Builder
	b.WriteString("Perfil del usuario:")
	fmt.Fprintf(&b, "\n- Objetivos: %s", orUnspecified(strings.Join(p.Goals(), ", ")))
	fmt.Fprintf(&b, "\n- Nivel: %s", orUnspecified(p.Experience))
	fmt.Fprintf(&b, "\n- Actividad: %s", orUnspecified(p.ActivityLevel))
	fmt.Fprintf(&b, "\n- Dieta: %s", orUnspecified(p.DietType))
	if p.HeightCm != nil {
		fmt.Fprintf(&b, "\n- Altura: %.0fcm", *p.HeightCm)
	}
	if p.WeightKg != nil {
		fmt.Fprintf(&b, "\n- Peso: %.1fkg", *p.WeightKg)
	}
	fmt.Fprintf(&b, "\n- Alergias: %s", orUnspecified(strings.Join(p.AllergyList(), ", ")))
	return b.String()
}

func orUnspecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return "No especificado"
	}
	return s
}

// clipRunes truncates s to at most n runes.
func clipRunes(s string, n int) string {
	if n > 0 && utf8.RuneCountInString(s) > n {
		return string([]rune(s)[:n])
	}
	return s
}
