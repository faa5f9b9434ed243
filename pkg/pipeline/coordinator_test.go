package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/natural2sql/engine/pkg/adapters/datasource"
	"github.com/natural2sql/engine/pkg/llm"
	"github.com/natural2sql/engine/pkg/models"
	"github.com/natural2sql/engine/pkg/prompts"
	"github.com/natural2sql/engine/pkg/schema"
	"github.com/natural2sql/engine/pkg/sqlguard"
)

type genStep struct {
	text string
	err  error
}

// fakeGenerator returns one scripted step per call and records prompts.
type fakeGenerator struct {
	steps   []genStep
	prompts []string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if len(g.prompts) > len(g.steps) {
		return "", fmt.Errorf("unexpected generate call %d", len(g.prompts))
	}
	step := g.steps[len(g.prompts)-1]
	return step.text, step.err
}

type execStep struct {
	result *datasource.Result
	err    error
}

type execCall struct {
	statement string
	deadline  time.Duration
}

type fakeExecutor struct {
	steps []execStep
	calls []execCall
}

func (e *fakeExecutor) Execute(_ context.Context, statement string, deadline time.Duration) (*datasource.Result, error) {
	e.calls = append(e.calls, execCall{statement: statement, deadline: deadline})
	if len(e.calls) > len(e.steps) {
		return nil, fmt.Errorf("unexpected execute call %d", len(e.calls))
	}
	step := e.steps[len(e.calls)-1]
	return step.result, step.err
}

func (e *fakeExecutor) ReadOnly() bool  { return true }
func (e *fakeExecutor) Dialect() string { return "sqlite" }
func (e *fakeExecutor) Close() error    { return nil }

type fakeRecorder struct {
	records []models.QueryHistoryRecord
}

func (r *fakeRecorder) Record(_ context.Context, rec *models.QueryHistoryRecord) error {
	r.records = append(r.records, *rec)
	return nil
}

func (r *fakeRecorder) Recent(context.Context, string, int) ([]models.QueryHistoryRecord, error) {
	return nil, nil
}

func (r *fakeRecorder) Close() error { return nil }

func testBuilder(t *testing.T) *prompts.Builder {
	t.Helper()
	return prompts.NewBuilder(&schema.Context{
		Dialect: "sqlite",
		Tables: []schema.TableSchema{
			{Name: "members", Columns: []datasource.Column{
				{Name: "member_id", DataType: "INTEGER", IsPrimary: true},
				{Name: "age", DataType: "INTEGER", IsNullable: true},
			}},
		},
	}, 0)
}

type fixture struct {
	coordinator *Coordinator
	generator   *fakeGenerator
	executor    *fakeExecutor
	recorder    *fakeRecorder
}

func newFixture(t *testing.T, gen *fakeGenerator, exec *fakeExecutor, retryOnRejection bool) *fixture {
	t.Helper()
	recorder := &fakeRecorder{}
	validator := sqlguard.NewValidator(1000, 30*time.Second, true, map[string]string{"salary": "salary"}, nil)
	return &fixture{
		coordinator: NewCoordinator(testBuilder(t), gen, validator, exec, recorder, 3, retryOnRejection, nil),
		generator:   gen,
		executor:    exec,
		recorder:    recorder,
	}
}

func oneRow() *datasource.Result {
	return &datasource.Result{
		Columns:  []string{"count(*)"},
		Rows:     []map[string]any{{"count(*)": int64(42)}},
		RowCount: 1,
	}
}

func run(f *fixture, text string) *Result {
	return f.coordinator.Run(context.Background(), models.NewQueryRequest("session-1", text))
}

func TestRun_SucceedsFirstAttempt(t *testing.T) {
	gen := &fakeGenerator{steps: []genStep{
		{text: "```sql\nSELECT COUNT(*) FROM members WHERE age >= 30 AND age < 40\n```"},
	}}
	exec := &fakeExecutor{steps: []execStep{{result: oneRow()}}}
	f := newFixture(t, gen, exec, true)

	result := run(f, "30代の会員は何人いますか？")

	assert.Equal(t, StateSucceeded, result.State)
	assert.NoError(t, result.Err)
	assert.Equal(t, "SELECT COUNT(*) FROM members WHERE age >= 30 AND age < 40 LIMIT 1000", result.Statement)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, models.OutcomeExecuted, result.Attempts[0].Outcome)

	// the validated deadline policy reaches the executor
	require.Len(t, exec.calls, 1)
	assert.Equal(t, result.Statement, exec.calls[0].statement)
	assert.Equal(t, 30*time.Second, exec.calls[0].deadline)

	require.Len(t, f.recorder.records, 1)
	rec := f.recorder.records[0]
	assert.True(t, rec.Success)
	assert.Equal(t, 1, rec.RowCount)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, "session-1", rec.SessionID)
}

func TestRun_ExecutionErrorRetriedWithCorrectiveContext(t *testing.T) {
	gen := &fakeGenerator{steps: []genStep{
		{text: "SELECT cout(*) FROM members"},
		{text: "SELECT count(*) FROM members"},
	}}
	exec := &fakeExecutor{steps: []execStep{
		{err: &datasource.QueryExecutionError{Message: "no such function: cout"}},
		{result: oneRow()},
	}}
	f := newFixture(t, gen, exec, true)

	result := run(f, "count members")

	assert.Equal(t, StateSucceeded, result.State)
	assert.Len(t, result.Attempts, 2)

	// the backend message verbatim, plus the prior statement
	require.Len(t, gen.prompts, 2)
	assert.NotContains(t, gen.prompts[0], "previous attempt")
	assert.Contains(t, gen.prompts[1], "no such function: cout")
	assert.Contains(t, gen.prompts[1], "SELECT cout(*) FROM members LIMIT 1000")
	assert.Contains(t, gen.prompts[1], "Do not repeat it verbatim")

	require.Len(t, f.recorder.records, 1)
	assert.True(t, f.recorder.records[0].Success)
	assert.Equal(t, 2, f.recorder.records[0].Attempts)
}

func TestRun_GenerationTimeoutRetried(t *testing.T) {
	gen := &fakeGenerator{steps: []genStep{
		{err: fmt.Errorf("%w: no response within 5s", llm.ErrGenerationTimeout)},
		{text: "SELECT 1"},
	}}
	exec := &fakeExecutor{steps: []execStep{{result: oneRow()}}}
	f := newFixture(t, gen, exec, true)

	result := run(f, "count members")

	assert.Equal(t, StateSucceeded, result.State)
	assert.Len(t, result.Attempts, 2)
}

func TestRun_AuthFailureTerminal(t *testing.T) {
	gen := &fakeGenerator{steps: []genStep{
		{err: fmt.Errorf("%w: 401 unauthorized", llm.ErrGenerationUnavailable)},
	}}
	f := newFixture(t, gen, &fakeExecutor{}, true)

	result := run(f, "count members")

	assert.Equal(t, StateFailed, result.State)
	assert.ErrorIs(t, result.Err, llm.ErrGenerationUnavailable)
	assert.Len(t, result.Attempts, 1)
	assert.Empty(t, f.executor.calls)
}

func TestRun_NoStatementRetriedUntilExhausted(t *testing.T) {
	gen := &fakeGenerator{steps: []genStep{
		{text: "I am sorry, I cannot help with that."},
		{text: "Here is an explanation of the schema instead."},
		{text: "Still just prose."},
	}}
	f := newFixture(t, gen, &fakeExecutor{}, true)

	result := run(f, "count members")

	assert.Equal(t, StateFailed, result.State)
	assert.ErrorIs(t, result.Err, sqlguard.ErrNoStatementFound)
	assert.Len(t, result.Attempts, 3)
	assert.Empty(t, result.Statement)

	require.Len(t, f.recorder.records, 1)
	rec := f.recorder.records[0]
	assert.False(t, rec.Success)
	assert.Equal(t, 3, rec.Attempts)
	assert.Empty(t, rec.FinalSQL)
	assert.NotEmpty(t, rec.ErrorMessage)
}

func TestRun_DisallowedStatementExhaustsBudget(t *testing.T) {
	gen := &fakeGenerator{steps: []genStep{
		{text: "DELETE FROM members WHERE age < 18"},
		{text: "DELETE FROM members WHERE age < 18"},
		{text: "DELETE FROM members WHERE age < 18"},
	}}
	f := newFixture(t, gen, &fakeExecutor{}, true)

	result := run(f, "remove minors")

	assert.Equal(t, StateFailed, result.State)
	assert.ErrorIs(t, result.Err, sqlguard.ErrDisallowedStatement)
	assert.Len(t, result.Attempts, 3)
	assert.Empty(t, f.executor.calls)
}

func TestRun_SecurityRejectionRetriedWhenConfigured(t *testing.T) {
	gen := &fakeGenerator{steps: []genStep{
		{text: "WITH doomed AS (SELECT 1) INSERT INTO members VALUES (1)"},
		{text: "SELECT count(*) FROM members"},
	}}
	exec := &fakeExecutor{steps: []execStep{{result: oneRow()}}}
	f := newFixture(t, gen, exec, true)

	result := run(f, "count members")

	assert.Equal(t, StateSucceeded, result.State)
	require.Len(t, result.Attempts, 2)
	assert.Equal(t, models.OutcomeSecurityRejected, result.Attempts[0].Outcome)
	assert.Contains(t, gen.prompts[1], sqlguard.RuleForbiddenPattern)
}

func TestRun_SecurityRejectionTerminalWhenDisabled(t *testing.T) {
	gen := &fakeGenerator{steps: []genStep{
		{text: "WITH doomed AS (SELECT 1) INSERT INTO members VALUES (1)"},
	}}
	f := newFixture(t, gen, &fakeExecutor{}, false)

	result := run(f, "count members")

	assert.Equal(t, StateFailed, result.State)
	assert.Contains(t, result.Err.Error(), sqlguard.RuleForbiddenPattern)
	assert.Len(t, result.Attempts, 1)
}

func TestRun_RestrictedTermRejected(t *testing.T) {
	gen := &fakeGenerator{steps: []genStep{
		{text: "SELECT salary FROM members"},
		{text: "SELECT age FROM members"},
	}}
	exec := &fakeExecutor{steps: []execStep{{result: oneRow()}}}
	f := newFixture(t, gen, exec, true)

	result := run(f, "what do members earn")

	assert.Equal(t, StateSucceeded, result.State)
	require.Len(t, result.Attempts, 2)
	assert.Equal(t, models.OutcomeSecurityRejected, result.Attempts[0].Outcome)
}

func TestRun_ExecutionTimeoutTerminal(t *testing.T) {
	gen := &fakeGenerator{steps: []genStep{
		{text: "SELECT count(*) FROM members"},
	}}
	exec := &fakeExecutor{steps: []execStep{
		{err: fmt.Errorf("%w: statement exceeded 30s", datasource.ErrExecutionTimeout)},
	}}
	f := newFixture(t, gen, exec, true)

	result := run(f, "count members")

	assert.Equal(t, StateFailed, result.State)
	assert.ErrorIs(t, result.Err, datasource.ErrExecutionTimeout)
	assert.Len(t, result.Attempts, 1)
	assert.Len(t, gen.prompts, 1)
}

func TestRun_ModelRefusalTerminal(t *testing.T) {
	gen := &fakeGenerator{steps: []genStep{
		{text: "ERROR: this question cannot be converted into a database query"},
	}}
	f := newFixture(t, gen, &fakeExecutor{}, true)

	result := run(f, "what is the weather tomorrow")

	assert.Equal(t, StateFailed, result.State)
	assert.ErrorIs(t, result.Err, sqlguard.ErrInvalidQuestion)
	assert.Len(t, result.Attempts, 1)
}

func TestRun_PromptTooLargeTerminal(t *testing.T) {
	builder := prompts.NewBuilder(&schema.Context{Dialect: "sqlite"}, 10)
	gen := &fakeGenerator{}
	recorder := &fakeRecorder{}
	validator := sqlguard.NewValidator(1000, 30*time.Second, true, nil, nil)
	c := NewCoordinator(builder, gen, validator, &fakeExecutor{}, recorder, 3, true, nil)

	result := c.Run(context.Background(), models.NewQueryRequest("session-1", "count members"))

	assert.Equal(t, StateFailed, result.State)
	assert.ErrorIs(t, result.Err, prompts.ErrPromptTooLarge)
	assert.Len(t, result.Attempts, 1)
	assert.Empty(t, gen.prompts)
	require.Len(t, recorder.records, 1)
	assert.False(t, recorder.records[0].Success)
}

func TestRun_NeverExceedsAttemptBudget(t *testing.T) {
	gen := &fakeGenerator{steps: []genStep{
		{text: "SELECT broken FROM members"},
		{text: "SELECT broken FROM members"},
		{text: "SELECT broken FROM members"},
		{text: "SELECT broken FROM members"},
	}}
	exec := &fakeExecutor{steps: []execStep{
		{err: &datasource.QueryExecutionError{Message: "no such column: broken"}},
		{err: &datasource.QueryExecutionError{Message: "no such column: broken"}},
		{err: &datasource.QueryExecutionError{Message: "no such column: broken"}},
		{err: &datasource.QueryExecutionError{Message: "no such column: broken"}},
	}}
	f := newFixture(t, gen, exec, true)

	result := run(f, "count members")

	assert.Equal(t, StateFailed, result.State)
	assert.Len(t, result.Attempts, 3)
	assert.Len(t, gen.prompts, 3)

	var execErr *datasource.QueryExecutionError
	assert.ErrorAs(t, result.Err, &execErr)
	assert.Equal(t, "no such column: broken", execErr.Message)
}

func TestRun_OneHistoryRecordPerSession(t *testing.T) {
	gen := &fakeGenerator{steps: []genStep{
		{text: "SELECT cout(*) FROM members"},
		{text: "SELECT count(*) FROM members"},
	}}
	exec := &fakeExecutor{steps: []execStep{
		{err: &datasource.QueryExecutionError{Message: "no such function: cout"}},
		{result: oneRow()},
	}}
	f := newFixture(t, gen, exec, true)

	run(f, "count members")

	// only the terminal attempt is persisted, not the intermediates
	require.Len(t, f.recorder.records, 1)
	assert.Equal(t, "SELECT count(*) FROM members LIMIT 1000", f.recorder.records[0].FinalSQL)
	assert.Empty(t, f.recorder.records[0].ErrorMessage)
}
