package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"celebdetect/internal/llm"
)

// FallbackAnswer is shown when the Q&A call fails.
const FallbackAnswer = "Sorry, I couldn't find the answer."

const (
	askTemperature = 0.5
	askMaxTokens   = 512
)

type QAService interface {
	// Ask returns the model's answer or FallbackAnswer.
	Ask(ctx context.Context, name, question string) string
	// Answer is Ask without the fallback; errors are *llm.APIError.
	Answer(ctx context.Context, name, question string) (string, error)
}

type qaService struct {
	llm llm.Completer
	log *zap.Logger
}

func NewQAService(completer llm.Completer, log *zap.Logger) QAService {
	return &qaService{
		llm: completer,
		log: log,
	}
}

func (s *qaService) Ask(ctx context.Context, name, question string) string {
	answer, err := s.Answer(ctx, name, question)
	if err != nil {
		s.log.Warn("Celebrity question failed",
			zap.String("name", name),
			zap.String("kind", llm.KindOf(err).String()),
			zap.Bool("temporary", llm.IsTemporary(err)),
			zap.Error(err))
		return FallbackAnswer
	}
	return answer
}

func (s *qaService) Answer(ctx context.Context, name, question string) (string, error) {
	req := llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "user", Content: askPrompt(name, question)},
		},
		Temperature: askTemperature,
		MaxTokens:   askMaxTokens,
	}
	return s.llm.Complete(ctx, req)
}

func askPrompt(name, question string) string {
	return fmt.Sprintf("You are an AI assistant that knows a lot about celebrities. "+
		"Answer questions about %s concisely and accurately.\n\n"+
		"Question: %s", name, question)
}
