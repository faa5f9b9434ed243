// Package schema builds the process-wide context the prompt builder and
// validator share: table metadata introspected from the datasource,
// optional logical-name aliases, and a bounded business-term glossary.
// The context is constructed once at startup and never mutated.
package schema

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/natural2sql/engine/pkg/adapters/datasource"
)

// TableSchema is one table's introspected shape.
type TableSchema struct {
	Name    string
	Columns []datasource.Column
}

// Context is an immutable snapshot of everything the model needs to
// know about the database. It is shared read-only across requests;
// reloading requires a restart.
type Context struct {
	Dialect      string
	Tables       []TableSchema
	LogicalNames map[string]string
	Glossary     []GlossaryEntry
}

// Load introspects the datasource and attaches the optional alias and
// glossary files. Empty paths skip the corresponding file.
func Load(ctx context.Context, db datasource.Database, logicalNamesPath, glossaryPath string, logger *zap.Logger) (*Context, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("schema")

	tables, err := db.GetTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspect tables: %w", err)
	}

	sc := &Context{
		Dialect:      db.Dialect(),
		LogicalNames: map[string]string{},
	}

	for _, t := range tables {
		cols, err := db.GetColumns(ctx, t.Name)
		if err != nil {
			return nil, fmt.Errorf("introspect columns of %s: %w", t.Name, err)
		}
		sc.Tables = append(sc.Tables, TableSchema{Name: t.Name, Columns: cols})
	}

	if logicalNamesPath != "" {
		names, err := LoadLogicalNames(logicalNamesPath)
		if err != nil {
			return nil, fmt.Errorf("load logical names: %w", err)
		}
		sc.LogicalNames = names
	}

	if glossaryPath != "" {
		entries, err := LoadGlossary(glossaryPath)
		if err != nil {
			return nil, fmt.Errorf("load glossary: %w", err)
		}
		sc.Glossary = entries
	}

	logger.Info("schema context loaded",
		zap.String("dialect", sc.Dialect),
		zap.Int("tables", len(sc.Tables)),
		zap.Int("logical_names", len(sc.LogicalNames)),
		zap.Int("glossary_terms", len(sc.Glossary)))
	return sc, nil
}

// LogicalName returns the alias for a physical identifier, falling back
// to a humanized form of the identifier itself when no alias is known.
func (c *Context) LogicalName(physical string) string {
	if name, ok := c.LogicalNames[physical]; ok {
		return name
	}
	return Humanize(physical)
}

// DDL renders the snapshot as CREATE TABLE statements for the prompt.
// Logical names are appended as per-column comments so the model can
// match business vocabulary to physical identifiers.
func (c *Context) DDL() string {
	var b strings.Builder
	for i, t := range c.Tables {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "CREATE TABLE %s (\n", t.Name)
		for j, col := range t.Columns {
			fmt.Fprintf(&b, "    %s %s", col.Name, col.DataType)
			if col.IsPrimary {
				b.WriteString(" PRIMARY KEY")
			} else if !col.IsNullable {
				b.WriteString(" NOT NULL")
			}
			if j < len(t.Columns)-1 {
				b.WriteString(",")
			}
			if alias, ok := c.LogicalNames[col.Name]; ok {
				fmt.Fprintf(&b, " -- %s", alias)
			}
			b.WriteString("\n")
		}
		b.WriteString(");\n")
	}
	return b.String()
}

// RestrictedTerms collects the denylist for the validator: a map from
// lower-cased physical identifier to the business term that restricts
// it. Entries without explicit identifiers restrict their own term.
func (c *Context) RestrictedTerms() map[string]string {
	restricted := map[string]string{}
	for _, e := range c.Glossary {
		if !e.Restricted {
			continue
		}
		if len(e.Identifiers) == 0 {
			restricted[strings.ToLower(e.Term)] = e.Term
			continue
		}
		for _, id := range e.Identifiers {
			restricted[strings.ToLower(id)] = e.Term
		}
	}
	return restricted
}
