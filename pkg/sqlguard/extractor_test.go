package sqlguard

import (
	"errors"
	"testing"
)

func TestExtract_Candidates(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "sql fence",
			input:    "Here you go:\n```sql\nSELECT * FROM members\n```\nEnjoy!",
			expected: "SELECT * FROM members",
		},
		{
			name:     "sql fence uppercase marker",
			input:    "```SQL\nSELECT 1\n```",
			expected: "SELECT 1",
		},
		{
			name:     "json format",
			input:    `{"sql": "SELECT COUNT(*) FROM members WHERE age >= 30"}`,
			expected: "SELECT COUNT(*) FROM members WHERE age >= 30",
		},
		{
			name:     "bare statement",
			input:    "SELECT * FROM members WHERE age >= 30 AND age < 40",
			expected: "SELECT * FROM members WHERE age >= 30 AND age < 40",
		},
		{
			name:     "bare statement with trailing semicolon",
			input:    "SELECT 1;",
			expected: "SELECT 1",
		},
		{
			name:     "statement after prose",
			input:    "Sure! The query is: SELECT COUNT(*) FROM reservations",
			expected: "SELECT COUNT(*) FROM reservations",
		},
		{
			name:     "prose after statement semicolon",
			input:    "The query is: SELECT 1; Hope this helps.",
			expected: "SELECT 1",
		},
		{
			name:     "with cte",
			input:    "WITH recent AS (SELECT * FROM reservations) SELECT COUNT(*) FROM recent",
			expected: "WITH recent AS (SELECT * FROM reservations) SELECT COUNT(*) FROM recent",
		},
		{
			name:     "lowercase select",
			input:    "select count(*) from members",
			expected: "select count(*) from members",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.input)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("Extract() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestExtract_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{
			name:  "empty input",
			input: "",
			want:  ErrNoStatementFound,
		},
		{
			name:  "prose only",
			input: "I cannot help with the weather today.",
			want:  ErrNoStatementFound,
		},
		{
			name:  "model refusal",
			input: "ERROR: この質問はデータベースクエリに変換できません",
			want:  ErrInvalidQuestion,
		},
		{
			name:  "delete statement",
			input: "DELETE FROM members WHERE age < 18",
			want:  ErrDisallowedStatement,
		},
		{
			name:  "drop in fence",
			input: "```sql\nDROP TABLE members\n```",
			want:  ErrDisallowedStatement,
		},
		{
			name:  "insert in json",
			input: `{"sql": "INSERT INTO members VALUES (1)"}`,
			want:  ErrDisallowedStatement,
		},
		{
			name:  "pragma statement",
			input: "PRAGMA writable_schema = 1",
			want:  ErrDisallowedStatement,
		},
		{
			name:  "stacked statements",
			input: "SELECT 1; DROP TABLE members",
			want:  ErrStackedStatements,
		},
		{
			name:  "stacked benign statements",
			input: "SELECT 1; SELECT 2",
			want:  ErrStackedStatements,
		},
		{
			name:  "stacked in fence",
			input: "```sql\nSELECT 1; SELECT 2\n```",
			want:  ErrStackedStatements,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(tt.input)
			if !errors.Is(err, tt.want) {
				t.Errorf("Extract() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestExtract_SemicolonInLiteralNotStacked(t *testing.T) {
	got, err := Extract("SELECT * FROM t WHERE v = 'a;b'")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got != "SELECT * FROM t WHERE v = 'a;b'" {
		t.Errorf("Extract() = %q", got)
	}
}

func TestExtract_ProseWithIsNotSQL(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"refusal prose", "I am sorry, I cannot help with that."},
		{"with mid-sentence", "Start with the documentation instead."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(tt.input)
			if !errors.Is(err, ErrNoStatementFound) {
				t.Errorf("Extract() error = %v, want ErrNoStatementFound", err)
			}
		})
	}
}

func TestExtract_CTEAfterProseWith(t *testing.T) {
	input := "Go with this query: WITH adults AS (SELECT * FROM members WHERE age >= 18) SELECT count(*) FROM adults"
	got, err := Extract(input)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := "WITH adults AS (SELECT * FROM members WHERE age >= 18) SELECT count(*) FROM adults"
	if got != want {
		t.Errorf("Extract() = %q, want %q", got, want)
	}
}
