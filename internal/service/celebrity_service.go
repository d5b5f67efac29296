package service

import (
	"context"
	"encoding/base64"
	"strings"

	"go.uber.org/zap"

	"celebdetect/internal/domain"
	"celebdetect/internal/llm"
)

const (
	// FallbackInfo replaces the identification text when the API call fails.
	FallbackInfo = "Unknown"
	// UnknownName is used when the model answer carries no Full Name field.
	UnknownName = "Unknown"

	identifyTemperature = 0.3
	identifyMaxTokens   = 1024

	fullNamePrefix = "- **full name**:"
)

const identifyPrompt = "You are a celebrity recognition expert AI.\n" +
	"Identify the person in the image. If known, respond in this format:\n\n" +
	"- **Full Name**:\n" +
	"- **Profession**:\n" +
	"- **Nationality**:\n" +
	"- **Famous For**:\n" +
	"- **Top Achievements**:\n\n" +
	"If unknown, return \"Unknown\"."

type CelebrityService interface {
	// Identify returns the model's description and the extracted name. On
	// failure it returns FallbackInfo and an empty name.
	Identify(ctx context.Context, image []byte) (info, name string)
	// Recognize is Identify without the fallback; errors are *llm.APIError.
	Recognize(ctx context.Context, image []byte) (*domain.Identification, error)
}

type celebrityService struct {
	llm llm.Completer
	log *zap.Logger
}

func NewCelebrityService(completer llm.Completer, log *zap.Logger) CelebrityService {
	return &celebrityService{
		llm: completer,
		log: log,
	}
}

func (s *celebrityService) Identify(ctx context.Context, image []byte) (string, string) {
	id, err := s.Recognize(ctx, image)
	if err != nil {
		s.log.Warn("Celebrity identification failed",
			zap.String("kind", llm.KindOf(err).String()),
			zap.Bool("temporary", llm.IsTemporary(err)),
			zap.Error(err))
		return FallbackInfo, ""
	}

	s.log.Info("Celebrity identified", zap.String("name", id.Name))
	return id.Info, id.Name
}

func (s *celebrityService) Recognize(ctx context.Context, image []byte) (*domain.Identification, error) {
	encoded := base64.StdEncoding.EncodeToString(image)

	req := llm.ChatRequest{
		Messages: []llm.Message{
			{
				Role: "user",
				Content: []llm.ContentPart{
					llm.TextPart(identifyPrompt),
					llm.ImagePart("data:image/jpeg;base64," + encoded),
				},
			},
		},
		Temperature: identifyTemperature,
		MaxTokens:   identifyMaxTokens,
	}

	content, err := s.llm.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	return &domain.Identification{
		Info: content,
		Name: ExtractName(content),
	}, nil
}

// ExtractName returns the value of the first "- **Full Name**:" line, matched
// case-insensitively, or UnknownName.
func ExtractName(content string) string {
	for _, line := range strings.FieldsFunc(content, isLineBreak) {
		if !strings.HasPrefix(strings.ToLower(line), fullNamePrefix) {
			continue
		}
		_, value, _ := strings.Cut(line, ":")
		return strings.TrimSpace(value)
	}
	return UnknownName
}

// isLineBreak reports the separators that end a line in model output, which
// may use bare carriage returns or Unicode line separators.
func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	}
	return false
}
