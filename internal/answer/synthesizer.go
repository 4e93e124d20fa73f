// Package answer turns retrieval candidates into a cited answer using a language model.
package answer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/models"
)

// NoResultsMessage is returned when retrieval found nothing.
const NoResultsMessage = "Sorry, no relevant documents found."

// Synthesizer asks the model for an answer and attributes it to one candidate.
type Synthesizer struct {
	llm    llm.Completer
	logger *zap.Logger
}

// Option configures a Synthesizer.
type Option func(*Synthesizer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(s *Synthesizer) { s.logger = l }
}

// NewSynthesizer creates a synthesizer backed by completer.
func NewSynthesizer(completer llm.Completer, opts ...Option) *Synthesizer {
	s := &Synthesizer{llm: completer, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Answer answers question from candidates. With no candidates the model is not called,
// so a synthesizer without a completer still reports an empty index.
// Model failures are returned wrapped in models.ErrLLM.
func (s *Synthesizer) Answer(ctx context.Context, question string, candidates []models.Source) (*models.Answer, error) {
	if len(candidates) == 0 {
		return &models.Answer{Answer: NoResultsMessage, Sources: []models.Source{}}, nil
	}

	if s.llm == nil {
		return nil, fmt.Errorf("%w: no language model configured", models.ErrLLM)
	}

	start := time.Now()
	raw, err := s.llm.Complete(ctx, SystemPrompt, BuildPrompt(question, candidates))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate answer: %w", models.ErrLLM, err)
	}

	parsed := ParseCompletion(raw)
	if parsed.Fallback {
		s.logger.Warn("completion missing answer marker, using raw response")
	}
	sources := parsed.Sources(candidates)
	s.logger.Debug("answer synthesized",
		zap.Int("candidates", len(candidates)),
		zap.Int("source_index", parsed.SourceIndex),
		zap.Int("sources", len(sources)),
		zap.Duration("took", time.Since(start)))
	return &models.Answer{Answer: parsed.Answer, Sources: sources}, nil
}
