// Package prompts assembles the generation prompt from the schema
// context, the glossary and the user's question, plus corrective
// context when a prior attempt failed.
package prompts

import (
	"errors"
	"fmt"
	"strings"

	"github.com/natural2sql/engine/pkg/schema"
)

// ErrPromptTooLarge reports that the assembled prompt exceeds the
// configured character budget. The context will not shrink between
// attempts, so callers must treat this as terminal.
var ErrPromptTooLarge = errors.New("assembled prompt exceeds the configured budget")

// RetryContext carries what the previous attempt produced and why it
// failed, so the model can correct instead of repeating itself.
type RetryContext struct {
	PriorSQL     string
	ErrorMessage string
}

// Builder renders prompts against one immutable schema context.
type Builder struct {
	schema      *schema.Context
	budgetChars int
}

// NewBuilder creates a Builder. budgetChars <= 0 disables the size check.
func NewBuilder(sc *schema.Context, budgetChars int) *Builder {
	return &Builder{schema: sc, budgetChars: budgetChars}
}

// Build assembles the full prompt for one attempt. retry is nil on the
// first attempt.
func (b *Builder) Build(question string, retry *RetryContext) (string, error) {
	var sb strings.Builder

	sb.WriteString("Convert the question below into a single ")
	sb.WriteString(dialectName(b.schema.Dialect))
	sb.WriteString(" query.\n\nDatabase schema:\n\n")
	sb.WriteString(b.schema.DDL())

	if len(b.schema.Glossary) > 0 {
		sb.WriteString("\nBusiness term definitions:\n")
		for _, e := range b.schema.Glossary {
			fmt.Fprintf(&sb, "- %s: %s\n", e.Term, e.Definition)
		}
	}

	sb.WriteString("\nConstraints:\n")
	fmt.Fprintf(&sb, "- If the question cannot be answered from this database (weather, news, general knowledge), respond with exactly:\n  ERROR: this question cannot be converted into a database query\n")
	fmt.Fprintf(&sb, "- Use only the tables listed above.\n")
	fmt.Fprintf(&sb, "- Use %s syntax%s.\n", dialectName(b.schema.Dialect), dialectHint(b.schema.Dialect))
	sb.WriteString("- Generate a single read-only statement. Never modify data.\n")

	sb.WriteString("\nQuestion:\n")
	sb.WriteString(question)
	sb.WriteString("\n")

	if retry != nil {
		sb.WriteString("\nYour previous attempt failed. Do not repeat it verbatim; produce a corrected query.\n")
		fmt.Fprintf(&sb, "- Previous SQL: %s\n", orNA(retry.PriorSQL))
		fmt.Fprintf(&sb, "- Error: %s\n", orNA(retry.ErrorMessage))
	}

	sb.WriteString(`
Output format:
Output only the SQL query, no explanation, in one of these forms:

1. Fenced:
` + "```sql\nSELECT * FROM members WHERE age >= 30\n```" + `

2. JSON:
{"sql": "SELECT * FROM members WHERE age >= 30"}

3. Bare SQL:
SELECT * FROM members WHERE age >= 30
`)

	prompt := sb.String()
	if b.budgetChars > 0 && len(prompt) > b.budgetChars {
		return "", fmt.Errorf("%w: %d chars over a budget of %d", ErrPromptTooLarge, len(prompt), b.budgetChars)
	}
	return prompt, nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func dialectName(dialect string) string {
	switch dialect {
	case "sqlite":
		return "SQLite"
	case "postgres":
		return "PostgreSQL"
	case "mssql":
		return "SQL Server"
	default:
		return "SQL"
	}
}

func dialectHint(dialect string) string {
	switch dialect {
	case "sqlite":
		return ", with date functions such as date('now') and date('now', '-30 days')"
	case "postgres":
		return ", with date arithmetic such as now() - interval '30 days'"
	default:
		return ""
	}
}
