// Package provider wraps the language-model vendor behind a small gateway.
// The rest of the application only sees Streams of cumulative text snapshots;
// vendor wiring, demo mode, and failure masking all live here.
package provider

import (
	"context"
	"errors"
	"io"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/fitbot/fitbot-backend/internal/config"
)

// Chat roles on the vendor wire.
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Message is one turn of model context.
type Message struct {
	Role    string
	Content string
}

// ErrNotConfigured is returned by non-streaming calls when no API key is set.
// Streaming chat never returns it; demo mode answers instead.
var ErrNotConfigured = errors.New("provider: no API key configured")

// apologyText is streamed (and persisted) as the terminal snapshot when
// generation fails mid-flight. The user sees a reply, not a broken stream.
const apologyText = "Lo siento, ha ocurrido un error al generar la respuesta. " +
	"Por favor verifica tu configuración de API keys e inténtalo nuevamente."

// chatReceiver is the slice of the vendor stream the gateway consumes.
// *openai.ChatCompletionStream satisfies it; tests install fakes.
type chatReceiver interface {
	Recv() (openai.ChatCompletionStreamResponse, error)
	Close() error
}

// Gateway talks to the model vendor. With an empty API key it runs in demo
// mode: chat streams a canned onboarding document and structured completions
// report ErrNotConfigured.
type Gateway struct {
	cfg    config.ProviderConfig
	client *openai.Client
	log    zerolog.Logger

	// seams for tests
	openStream     func(ctx context.Context, req openai.ChatCompletionRequest) (chatReceiver, error)
	openCompletion func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// New builds a Gateway from provider configuration.
func New(cfg config.ProviderConfig, log zerolog.Logger) *Gateway {
	g := &Gateway{cfg: cfg, log: log.With().Str("component", "provider").Logger()}
	if cfg.APIKey != "" {
		g.client = openai.NewClient(cfg.APIKey)
		g.openStream = func(ctx context.Context, req openai.ChatCompletionRequest) (chatReceiver, error) {
			return g.client.CreateChatCompletionStream(ctx, req)
		}
		g.openCompletion = g.client.CreateChatCompletion
	}
	return g
}

// Demo reports whether the gateway runs without a configured vendor.
func (g *Gateway) Demo() bool { return g.openStream == nil }

// Generate starts one assistant reply for the given model context and returns
// its stream immediately; snapshots arrive from a producer goroutine. The
// stream is closed on every path. Generation failures are masked: the stream
// ends with an apology snapshot and is marked failed, but Generate itself
// never surfaces vendor errors.
//
// In demo mode the reply is a canned document that echoes the last user
// message, chunked to imitate vendor pacing.
func (g *Gateway) Generate(ctx context.Context, msgs []Message) *Stream {
	s := NewStream()

	if g.Demo() {
		go g.streamDemo(ctx, s, lastUserContent(msgs))
		return s
	}

	req := openai.ChatCompletionRequest{
		Model:            g.cfg.Model,
		Messages:         toVendorMessages(msgs),
		Temperature:      g.cfg.Temperature,
		MaxTokens:        g.cfg.MaxTokens,
		TopP:             g.cfg.TopP,
		FrequencyPenalty: g.cfg.FrequencyPenalty,
		PresencePenalty:  g.cfg.PresencePenalty,
		Stream:           true,
	}

	go func() {
		defer s.Close()

		rcv, err := g.openStream(ctx, req)
		if err != nil {
			g.log.Error().Err(err).Msg("open completion stream")
			s.Fail()
			s.Push(ctx, apologyText)
			return
		}
		defer rcv.Close()

		var full string
		for {
			resp, err := rcv.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				g.log.Error().Err(err).Msg("completion stream receive")
				s.Fail()
				s.Push(ctx, apologyText)
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			full += delta
			if !s.Push(ctx, full) {
				return
			}
		}
	}()

	return s
}

// Complete runs one non-streaming completion and returns the reply text.
// When jsonMode is set the vendor is constrained to emit a JSON object.
func (g *Gateway) Complete(ctx context.Context, msgs []Message, jsonMode bool) (string, error) {
	if g.openCompletion == nil {
		return "", ErrNotConfigured
	}

	req := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		Messages:    toVendorMessages(msgs),
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := g.openCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("provider: empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

func toVendorMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

func lastUserContent(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
