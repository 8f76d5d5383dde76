package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"answergen/internal/llm"
	"answergen/internal/models"
	"answergen/internal/retry"
)

// MaxBatchSize is the most questions sent in one generation request.
const MaxBatchSize = 2

// FallbackAnswer is stored for a question whose generation kept failing.
const FallbackAnswer = "An answer could not be generated for this question because the generation service " +
	"kept failing after %d attempts. Please regenerate this question later."

// GeneratorOptions tunes pacing, retries and batching.
type GeneratorOptions struct {
	Policy retry.Policy
	// RequestsPerMinute limits calls to the provider. Zero or less disables pacing.
	RequestsPerMinute float64
	// BatchSize is clamped to 1..MaxBatchSize.
	BatchSize int
}

// Generator produces one AnswerRecord per question.
type Generator struct {
	provider  llm.Provider
	policy    retry.Policy
	limiter   *rate.Limiter
	batchSize int
}

func NewGenerator(provider llm.Provider, opts GeneratorOptions) *Generator {
	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Limit(opts.RequestsPerMinute / 60)
	}
	batch := opts.BatchSize
	if batch < 1 {
		batch = 1
	}
	if batch > MaxBatchSize {
		batch = MaxBatchSize
	}
	policy := opts.Policy
	policy.Retryable = llm.Retryable

	return &Generator{
		provider:  provider,
		policy:    policy,
		limiter:   rate.NewLimiter(limit, 1),
		batchSize: batch,
	}
}

// Generate answers qs in order. A question whose retries run out gets the
// fallback answer and Failed set; a Fatal error stops the whole run and is
// returned. On success len(result) == len(qs).
func (g *Generator) Generate(ctx context.Context, in PromptInput, qs []models.Question, progress ProgressCallback) ([]models.AnswerRecord, error) {
	records := make([]models.AnswerRecord, 0, len(qs))
	total := len(qs)

	for start := 0; start < total; start += g.batchSize {
		end := min(start+g.batchSize, total)
		batch := qs[start:end]

		answers, err := g.answerBatch(ctx, in, batch)
		if err != nil {
			return nil, err
		}
		for i, q := range batch {
			records = append(records, models.AnswerRecord{
				Question:   q,
				AnswerText: answers[i].text,
				Mode:       in.Mode,
				Subject:    in.Subject,
				Failed:     answers[i].failed,
			})
		}

		if progress != nil {
			progress("generate", fmt.Sprintf("Answered question %d of %d", end, total), end, total)
		}
	}

	return records, nil
}

type answer struct {
	text   string
	failed bool
}

func (g *Generator) answerBatch(ctx context.Context, in PromptInput, batch []models.Question) ([]answer, error) {
	if len(batch) == 1 {
		a, err := g.answerOne(ctx, in, batch[0])
		if err != nil {
			return nil, err
		}
		return []answer{a}, nil
	}

	reply, outcome, err := g.call(ctx, BuildBatchPrompt(in, batch))
	if err != nil {
		if llm.IsFatal(err) || ctx.Err() != nil {
			return nil, err
		}
		log.Warn().Err(err).Int("first_question", batch[0].Index).Int("attempts", outcome.Attempts).Msg("batch generation failed, using fallback answers")
		out := make([]answer, len(batch))
		for i := range out {
			out[i] = fallback(outcome.Attempts)
		}
		return out, nil
	}

	if parts, ok := splitBatchReply(reply, len(batch)); ok {
		out := make([]answer, len(parts))
		for i, p := range parts {
			out[i] = answer{text: p}
		}
		return out, nil
	}

	log.Info().Int("first_question", batch[0].Index).Msg("batch reply did not split cleanly, answering individually")
	out := make([]answer, 0, len(batch))
	for _, q := range batch {
		a, err := g.answerOne(ctx, in, q)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (g *Generator) answerOne(ctx context.Context, in PromptInput, q models.Question) (answer, error) {
	reply, outcome, err := g.call(ctx, BuildPrompt(in, q))
	if err != nil {
		if llm.IsFatal(err) || ctx.Err() != nil {
			return answer{}, err
		}
		log.Warn().Err(err).Int("question", q.Index).Int("attempts", outcome.Attempts).Msg("generation failed, using fallback answer")
		return fallback(outcome.Attempts), nil
	}
	return answer{text: reply}, nil
}

func (g *Generator) call(ctx context.Context, prompt string) (string, retry.Outcome, error) {
	var reply string
	outcome, err := g.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := g.limiter.Wait(ctx); err != nil {
			return llm.Classify(err)
		}
		text, err := g.provider.Generate(ctx, prompt)
		if err != nil {
			kind := llm.KindOf(err)
			log.Debug().Err(err).Int("attempt", attempt).Str("kind", kind.String()).Str("provider", g.provider.Name()).Msg("generation attempt failed")
			return err
		}
		text = llm.StripCodeFences(text)
		if strings.TrimSpace(text) == "" {
			return llm.Classify(llm.ErrEmptyCompletion)
		}
		reply = text
		return nil
	})
	return reply, outcome, err
}

func fallback(attempts int) answer {
	return answer{text: fmt.Sprintf(FallbackAnswer, attempts), failed: true}
}
