// Package pipeline runs the guarded generate-extract-validate-execute
// loop for one request, bounded to a fixed attempt budget.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/natural2sql/engine/pkg/adapters/datasource"
	"github.com/natural2sql/engine/pkg/history"
	"github.com/natural2sql/engine/pkg/llm"
	"github.com/natural2sql/engine/pkg/logging"
	"github.com/natural2sql/engine/pkg/models"
	"github.com/natural2sql/engine/pkg/prompts"
	"github.com/natural2sql/engine/pkg/sqlguard"
)

// State names one phase of a retry session.
type State string

const (
	StateGenerating State = "GENERATING"
	StateExtracting State = "EXTRACTING"
	StateValidating State = "VALIDATING"
	StateExecuting  State = "EXECUTING"
	StateSucceeded  State = "SUCCEEDED"
	StateRetrying   State = "RETRYING"
	StateFailed     State = "FAILED"
)

// Generator produces raw text for a prompt. Satisfied by *llm.Generator.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// PromptBuilder assembles the prompt for one attempt. Satisfied by
// *prompts.Builder.
type PromptBuilder interface {
	Build(question string, retry *prompts.RetryContext) (string, error)
}

// Validator applies the security policy. Satisfied by *sqlguard.Validator.
type Validator interface {
	Validate(statement string) sqlguard.Verdict
}

// Result is the terminal outcome of one retry session. On FAILED, Err
// holds the last classified error and Statement the last extracted SQL
// (empty if no attempt got that far); the caller never receives a
// silent empty result.
type Result struct {
	State     State
	Statement string
	Execution *datasource.Result
	Attempts  []models.GenerationAttempt
	Err       error
}

// Coordinator drives requests through the state machine.
type Coordinator struct {
	builder          PromptBuilder
	generator        Generator
	validator        Validator
	executor         datasource.ReadOnlyExecutor
	recorder         history.Recorder
	maxAttempts      int
	retryOnRejection bool
	logger           *zap.Logger
}

// NewCoordinator wires the pipeline. recorder may be nil to disable
// history.
func NewCoordinator(builder PromptBuilder, generator Generator, validator Validator,
	executor datasource.ReadOnlyExecutor, recorder history.Recorder,
	maxAttempts int, retryOnRejection bool, logger *zap.Logger) *Coordinator {
	if recorder == nil {
		recorder = history.NopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		builder:          builder,
		generator:        generator,
		validator:        validator,
		executor:         executor,
		recorder:         recorder,
		maxAttempts:      maxAttempts,
		retryOnRejection: retryOnRejection,
		logger:           logger.Named("pipeline"),
	}
}

// Run processes one request to a terminal state and persists exactly
// one history record. The returned Result is non-nil in every case.
func (c *Coordinator) Run(ctx context.Context, req *models.QueryRequest) *Result {
	logger := c.logger.With(
		zap.String("request_id", req.ID.String()),
		zap.String("session_id", req.SessionID))

	result := &Result{State: StateGenerating}
	var retry *prompts.RetryContext

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		outcome := c.runAttempt(ctx, req, attempt, retry, result, logger)

		if outcome.err == nil {
			result.State = StateSucceeded
			result.Err = nil
			break
		}

		result.Err = outcome.err
		if outcome.terminal || attempt == c.maxAttempts {
			result.State = StateFailed
			break
		}

		result.State = StateRetrying
		logger.Info("retrying with corrective context",
			zap.Int("attempt", attempt),
			zap.String("error", logging.SanitizeError(outcome.err)))
		retry = &prompts.RetryContext{
			PriorSQL:     outcome.statement,
			ErrorMessage: outcome.err.Error(),
		}
	}

	c.record(ctx, req, result, logger)
	return result
}

type attemptOutcome struct {
	statement string
	err       error
	// terminal marks failures that must not consume further attempts.
	terminal bool
}

func (c *Coordinator) runAttempt(ctx context.Context, req *models.QueryRequest,
	index int, retry *prompts.RetryContext, result *Result, logger *zap.Logger) attemptOutcome {

	attempt := models.GenerationAttempt{Index: index}
	defer func() {
		result.Attempts = append(result.Attempts, attempt)
	}()

	fail := func(outcome models.AttemptOutcome, err error, terminal bool) attemptOutcome {
		attempt.Outcome = outcome
		attempt.Err = err
		return attemptOutcome{statement: attempt.Statement, err: err, terminal: terminal}
	}

	// GENERATING
	result.State = StateGenerating
	prompt, err := c.builder.Build(req.Text, retry)
	if err != nil {
		// an oversized prompt will not shrink between attempts
		return fail(models.OutcomeExtractionFailed, err, true)
	}
	attempt.Prompt = prompt

	raw, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		return fail(models.OutcomeExtractionFailed, err, !llm.IsRetryable(err))
	}
	attempt.RawResponse = raw

	// EXTRACTING
	result.State = StateExtracting
	statement, err := sqlguard.Extract(raw)
	if err != nil {
		// an explicit refusal will not improve by re-asking
		terminal := errors.Is(err, sqlguard.ErrInvalidQuestion)
		return fail(models.OutcomeExtractionFailed, err, terminal)
	}
	attempt.Statement = statement

	// VALIDATING
	result.State = StateValidating
	verdict := c.validator.Validate(statement)
	if !verdict.OK {
		return fail(models.OutcomeSecurityRejected, verdict.Rejection(), !c.retryOnRejection)
	}
	attempt.Statement = verdict.Statement
	result.Statement = verdict.Statement

	// EXECUTING
	result.State = StateExecuting
	execResult, err := c.executor.Execute(ctx, verdict.Statement, verdict.Deadline)
	if err != nil {
		// a deadline overrun will not resolve from rephrasing
		terminal := errors.Is(err, datasource.ErrExecutionTimeout)
		return fail(models.OutcomeExecuted, err, terminal)
	}

	attempt.Outcome = models.OutcomeExecuted
	result.Execution = execResult
	logger.Info("statement executed",
		zap.String("statement", logging.SanitizeQuery(verdict.Statement)),
		zap.Int("attempt", index),
		zap.Int("rows", execResult.RowCount),
		zap.Bool("truncated", execResult.Truncated),
		zap.Duration("elapsed", execResult.Elapsed))
	return attemptOutcome{statement: verdict.Statement}
}

func (c *Coordinator) record(ctx context.Context, req *models.QueryRequest, result *Result, logger *zap.Logger) {
	rec := &models.QueryHistoryRecord{
		ID:        req.ID,
		SessionID: req.SessionID,
		InputText: req.Text,
		FinalSQL:  result.Statement,
		Success:   result.State == StateSucceeded,
		Attempts:  len(result.Attempts),
		CreatedAt: time.Now().UTC(),
	}
	if result.Err != nil {
		rec.ErrorMessage = result.Err.Error()
	}
	if result.Execution != nil {
		rec.RowCount = result.Execution.RowCount
	}

	if err := c.recorder.Record(ctx, rec); err != nil {
		logger.Error("failed to record history", zap.Error(err))
	}
}
