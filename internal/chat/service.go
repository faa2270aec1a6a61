package chat

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"anchorsync/internal/metrics"
	"anchorsync/src/logger"
)

// Replies used in place of a model answer
const (
	ReplyMissingKey     = "API key is missing"
	ReplyInvalidFormat  = "Invalid response format"
	replyFailedTemplate = "Request failed: "
)

// Service is a plain request/response chat pass-through: each request carries
// only the new message. The transcript records turns for display, it is never
// sent to the model. Every outcome, failures included, becomes an assistant reply.
type Service struct {
	model      model.BaseChatModel // nil when no API key is configured
	transcript Transcript
	provider   string
}

// NewService creates the chat service; a nil transcript keeps turns in memory
func NewService(m model.BaseChatModel, transcript Transcript, provider string) *Service {
	if transcript == nil {
		transcript = NewMemoryTranscript(0, 0)
	}
	return &Service{model: m, transcript: transcript, provider: provider}
}

// Ask sends text on its own and records the turn under sessionID.
// Only an empty message is an error; provider failures come back as reply text.
func (s *Service) Ask(ctx context.Context, sessionID, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}

	userMsg := schema.UserMessage(text)
	reply := s.complete(ctx, userMsg)

	if err := s.transcript.Append(ctx, sessionID, userMsg, schema.AssistantMessage(reply, nil)); err != nil {
		logger.Warn().Err(err).Str("session", sessionID).Msg("failed to save chat transcript")
	}
	return reply, nil
}

// History returns the stored turns of a session
func (s *Service) History(ctx context.Context, sessionID string) ([]*schema.Message, error) {
	return s.transcript.Load(ctx, sessionID)
}

func (s *Service) complete(ctx context.Context, userMsg *schema.Message) string {
	if s.model == nil {
		metrics.ChatRequests.WithLabelValues(s.provider, "error").Inc()
		return ReplyMissingKey
	}

	out, err := s.model.Generate(ctx, []*schema.Message{userMsg})
	if err != nil {
		metrics.ChatRequests.WithLabelValues(s.provider, "error").Inc()
		logger.Warn().Err(err).Str("provider", s.provider).Msg("chat completion failed")
		return replyFailedTemplate + err.Error()
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		metrics.ChatRequests.WithLabelValues(s.provider, "error").Inc()
		return ReplyInvalidFormat
	}

	metrics.ChatRequests.WithLabelValues(s.provider, "ok").Inc()
	return out.Content
}
