package sqlguard

import (
	"strings"
	"testing"
)

func TestNormalizeLimit(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no limit gets cap appended",
			input:    "SELECT * FROM members",
			expected: "SELECT * FROM members LIMIT 1000",
		},
		{
			name:     "limit above cap rewritten down",
			input:    "SELECT * FROM members LIMIT 5000",
			expected: "SELECT * FROM members LIMIT 1000",
		},
		{
			name:     "limit at cap unchanged",
			input:    "SELECT * FROM members LIMIT 1000",
			expected: "SELECT * FROM members LIMIT 1000",
		},
		{
			name:     "smaller limit preserved",
			input:    "SELECT * FROM members LIMIT 10",
			expected: "SELECT * FROM members LIMIT 10",
		},
		{
			name:     "limit with offset keyword",
			input:    "SELECT * FROM members LIMIT 5000 OFFSET 20",
			expected: "SELECT * FROM members LIMIT 1000 OFFSET 20",
		},
		{
			name:     "offset comma form caps second operand",
			input:    "SELECT * FROM members LIMIT 20, 5000",
			expected: "SELECT * FROM members LIMIT 20, 1000",
		},
		{
			name:     "limit all rewritten",
			input:    "SELECT * FROM members LIMIT ALL",
			expected: "SELECT * FROM members LIMIT 1000",
		},
		{
			name:     "subquery limit untouched",
			input:    "SELECT * FROM (SELECT * FROM members LIMIT 5000) AS m",
			expected: "SELECT * FROM (SELECT * FROM members LIMIT 5000) AS m LIMIT 1000",
		},
		{
			name:     "cte body limit untouched",
			input:    "WITH top AS (SELECT * FROM members LIMIT 9999) SELECT * FROM top",
			expected: "WITH top AS (SELECT * FROM members LIMIT 9999) SELECT * FROM top LIMIT 1000",
		},
		{
			name:     "cte with outer limit above cap",
			input:    "WITH top AS (SELECT * FROM members) SELECT * FROM top LIMIT 2000",
			expected: "WITH top AS (SELECT * FROM members) SELECT * FROM top LIMIT 1000",
		},
		{
			name:     "limit inside string literal ignored",
			input:    "SELECT * FROM t WHERE note = 'no LIMIT here'",
			expected: "SELECT * FROM t WHERE note = 'no LIMIT here' LIMIT 1000",
		},
		{
			name:     "union gets single outer limit",
			input:    "SELECT id FROM a UNION SELECT id FROM b",
			expected: "SELECT id FROM a UNION SELECT id FROM b LIMIT 1000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeLimit(tt.input, 1000)
			if got != tt.expected {
				t.Errorf("NormalizeLimit() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestNormalizeLimit_ExactlyOneTopLevelLimit(t *testing.T) {
	inputs := []string{
		"SELECT * FROM members",
		"SELECT * FROM members LIMIT 50",
		"WITH r AS (SELECT * FROM reservations LIMIT 10) SELECT * FROM r",
	}

	for _, input := range inputs {
		out := NormalizeLimit(input, 1000)
		count := 0
		for _, tok := range Lex(out) {
			if tok.Depth == 0 && tok.IsKeyword("LIMIT") {
				count++
			}
		}
		if count != 1 {
			t.Errorf("NormalizeLimit(%q) has %d top-level LIMITs, want 1: %q", input, count, out)
		}
	}
}

func TestNormalizeLimit_MultibyteLiteral(t *testing.T) {
	got := NormalizeLimit("SELECT * FROM members WHERE name = '山田' LIMIT 5000", 1000)
	if !strings.HasSuffix(got, "LIMIT 1000") {
		t.Errorf("NormalizeLimit() = %q", got)
	}
	if !strings.Contains(got, "'山田'") {
		t.Errorf("literal corrupted: %q", got)
	}
}
