// Package assistant wires the question pipeline: generate SQL, validate it,
// execute it under the row cap, and explain the result.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/koustreak/querygate/internal/errs"
	"github.com/koustreak/querygate/internal/executor"
	"github.com/koustreak/querygate/internal/guard"
	"github.com/koustreak/querygate/internal/logger"
	"github.com/koustreak/querygate/internal/observability"
	"github.com/koustreak/querygate/internal/schema"
)

type Describer interface {
	Describe(ctx context.Context, maxTables, maxColumns int) (*schema.Description, error)
}

type Generator interface {
	Generate(ctx context.Context, question, schemaText string) (string, error)
}

type Runner interface {
	Execute(ctx context.Context, q guard.Query, maxRows int) (*executor.ResultSet, error)
}

type Explainer interface {
	Explain(ctx context.Context, question, sql string, result *executor.ResultSet) (string, error)
}

// Archive persists answers. Failures never fail a question.
type Archive interface {
	Save(ctx context.Context, id string, v any) error
}

// Options bound the schema description and result sizes.
type Options struct {
	MaxTables  int
	MaxColumns int
	MaxRows    int

	// Archive is optional.
	Archive Archive
}

// Answer is the outcome of one question.
type Answer struct {
	ID          string              `json:"id"`
	Question    string              `json:"question"`
	SQL         string              `json:"sql"`
	Result      *executor.ResultSet `json:"result"`
	Explanation string              `json:"explanation"`
	CreatedAt   time.Time           `json:"created_at"`
	Archived    bool                `json:"archived"`
}

// Session holds the schema description captured at start and answers
// questions against it. It is safe for concurrent use.
type Session struct {
	schema    *schema.Description
	generator Generator
	runner    Runner
	explainer Explainer
	archive   Archive
	maxRows   int
}

// NewSession describes the schema once and returns a ready Session.
func NewSession(ctx context.Context, d Describer, g Generator, r Runner, e Explainer, opts Options) (*Session, error) {
	if opts.MaxRows < 0 {
		return nil, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("max rows must not be negative, got %d", opts.MaxRows))
	}
	desc, err := d.Describe(ctx, opts.MaxTables, opts.MaxColumns)
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).InfoWith("schema loaded", map[string]interface{}{
		"tables":  len(desc.Tables()),
		"columns": len(desc.Columns()),
	})
	return &Session{
		schema:    desc,
		generator: g,
		runner:    r,
		explainer: e,
		archive:   opts.Archive,
		maxRows:   opts.MaxRows,
	}, nil
}

// Schema returns the description captured at session start.
func (s *Session) Schema() *schema.Description { return s.schema }

// MaxRows returns the default row cap.
func (s *Session) MaxRows() int { return s.maxRows }

// Check validates sql against the read-only policy.
func (s *Session) Check(ctx context.Context, sql string) (guard.Query, error) {
	start := time.Now()
	q, err := guard.Validate(sql)
	observability.ObserveValidation(err)

	fields := map[string]interface{}{}
	if err != nil {
		fields["rule"] = string(errs.RuleOf(err))
		if p := errs.PatternOf(err); p != "" {
			fields["pattern"] = p
		}
	}
	logger.FromContext(ctx).Stage("validate", time.Since(start), err, fields)
	return q, err
}

// Run validates sql and executes it with at most maxRows rows.
func (s *Session) Run(ctx context.Context, sql string, maxRows int) (*executor.ResultSet, error) {
	q, err := s.Check(ctx, sql)
	if err != nil {
		return nil, err
	}
	return s.runner.Execute(ctx, q, maxRows)
}

// Ask answers question: generate, validate, execute, explain. The
// generated SQL is executed only after it passes validation.
func (s *Session) Ask(ctx context.Context, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "question is empty")
	}

	id := uuid.NewString()
	ctx = logger.FromContext(ctx).With().Str("answer_id", id).Logger().WithContext(ctx)

	candidate, err := s.generator.Generate(ctx, question, s.schema.String())
	if err != nil {
		return nil, err
	}
	q, err := s.Check(ctx, candidate)
	if err != nil {
		return nil, err
	}
	result, err := s.runner.Execute(ctx, q, s.maxRows)
	if err != nil {
		return nil, err
	}
	sql := q.String()

	explanation, err := s.explainer.Explain(ctx, question, sql, result)
	if err != nil {
		return nil, err
	}

	answer := &Answer{
		ID:          id,
		Question:    question,
		SQL:         sql,
		Result:      result,
		Explanation: explanation,
		CreatedAt:   time.Now().UTC(),
	}
	s.store(ctx, answer)
	return answer, nil
}

func (s *Session) store(ctx context.Context, answer *Answer) {
	if s.archive == nil {
		return
	}
	answer.Archived = true
	err := s.archive.Save(ctx, answer.ID, answer)
	observability.ObserveArchive(err)
	if err != nil {
		answer.Archived = false
		logger.FromContext(ctx).WarnWith("archiving answer failed", err, map[string]interface{}{
			"answer_id": answer.ID,
		})
	}
}
