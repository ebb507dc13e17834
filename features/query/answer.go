package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ragingest/features/ingest"
	"ragingest/internal/vector"
)

const (
	systemPrompt = "You are a helpful assistant that answers questions based on provided context. Be concise and accurate."

	// NoInformationAnswer is what the model is told to say when the context
	// does not hold the answer.
	NoInformationAnswer = "I don't have enough information to answer this question."
	noAnswer            = "I couldn't generate an answer."
)

// ErrAnswersDisabled is returned by Answer when no generator is configured.
var ErrAnswersDisabled = errors.New("answer generation is not configured")

type Answerer interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// WithAnswerer enables grounded answers over the matched chunks.
func WithAnswerer(a Answerer) Option {
	return func(s *Service) { s.answerer = a }
}

// BuildContext joins the chunk texts with blank lines. Each chunk is tagged
// with its page, or with its source when it has no page.
func BuildContext(matches []vector.Match) string {
	parts := make([]string, len(matches))
	for i, m := range matches {
		var tag string
		switch {
		case m.Metadata.Page > 0:
			tag = fmt.Sprintf(" (Page %d)", m.Metadata.Page)
		case m.Metadata.Source != "" && m.Metadata.Source != ingest.DefaultSource:
			tag = fmt.Sprintf(" (Source: %s)", m.Metadata.Source)
		}
		parts[i] = m.Content + tag
	}
	return strings.Join(parts, "\n\n")
}

func BuildPrompt(question, contextText string) string {
	return "Based on the following context, please answer the question. " +
		`If the answer cannot be found in the context, say "` + NoInformationAnswer + "\"\n\n" +
		"Context:\n" + contextText + "\n\n" +
		"Question: " + question + "\n\n" +
		"Answer:"
}

// Answer asks the generator to answer q from matches only.
func (s *Service) Answer(ctx context.Context, q string, matches []vector.Match) (string, error) {
	if s.answerer == nil {
		return "", ErrAnswersDisabled
	}
	if len(matches) == 0 {
		return NoInformationAnswer, nil
	}

	contextText := BuildContext(matches)
	slog.InfoContext(ctx, "generating answer",
		"context_chunks", len(matches), "context_length", len(contextText), "question_length", len(q))

	answer, err := s.answerer.Generate(ctx, systemPrompt, BuildPrompt(q, contextText))
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	if answer = strings.TrimSpace(answer); answer == "" {
		return noAnswer, nil
	}
	return answer, nil
}
