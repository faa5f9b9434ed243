package sqlguard

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrNoStatementFound means the model output held no candidate SQL.
	// The model may have answered in prose; worth a corrective retry.
	ErrNoStatementFound = errors.New("no SQL statement found in response")

	// ErrDisallowedStatement means the candidate's leading keyword is not
	// SELECT or WITH. Treated as a security rejection.
	ErrDisallowedStatement = errors.New("statement type not allowed; only SELECT and WITH are permitted")

	// ErrStackedStatements means multiple top-level statements were
	// stacked behind one another. Never permitted, whatever the trailing
	// statements look like.
	ErrStackedStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")

	// ErrInvalidQuestion means the model declared the question out of
	// scope (the prompt instructs it to answer "ERROR: ..." for questions
	// that cannot become a database query). Retrying will not help.
	ErrInvalidQuestion = errors.New("question cannot be answered with a database query")
)

var (
	fencePattern  = regexp.MustCompile("(?is)```sql\\s*(.*?)\\s*```")
	directPattern = regexp.MustCompile(`(?is)\b(WITH|SELECT)\b`)
)

// jsonResponse matches the {"sql": "..."} output format the prompt offers.
type jsonResponse struct {
	SQL string `json:"sql"`
}

// Extract isolates exactly one SQL statement from free-form model output.
//
// Candidates are located with a fallback chain: an explicit refusal
// ("ERROR: ..."), a ```sql fence, a JSON object with an "sql" key, then a
// bare WITH/SELECT in the text. The isolated candidate must lead with
// SELECT or WITH and contain a single top-level statement.
func Extract(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrNoStatementFound
	}

	if strings.HasPrefix(trimmed, "ERROR:") {
		return "", fmt.Errorf("%s: %w", strings.TrimSpace(strings.TrimPrefix(trimmed, "ERROR:")), ErrInvalidQuestion)
	}

	if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
		return checkCandidate(m[1], true)
	}

	var jr jsonResponse
	if err := json.Unmarshal([]byte(trimmed), &jr); err == nil && jr.SQL != "" {
		return checkCandidate(jr.SQL, true)
	}

	// Bare output. If the whole text already lexes as a statement, judge
	// its leading keyword directly so "DROP TABLE x" is reported as
	// disallowed rather than absent.
	if first, ok := firstWord(trimmed); ok && sqlStatementStarters[strings.ToUpper(first)] {
		return checkCandidate(trimmed, true)
	}

	// Prose around the statement: take everything from a WITH/SELECT
	// onward. Trailing prose after the closing semicolon is tolerated
	// here; trailing SQL is not. A conversational "with" that does not
	// open a CTE is skipped in favor of a later match.
	for _, loc := range directPattern.FindAllStringIndex(trimmed, -1) {
		statement, err := checkCandidate(trimmed[loc[0]:], false)
		if errors.Is(err, ErrNoStatementFound) {
			continue
		}
		return statement, err
	}

	return "", ErrNoStatementFound
}

// sqlStatementStarters covers keywords that can open a SQL statement.
// Anything here that is not SELECT/WITH is rejected as disallowed instead
// of being skipped as prose.
var sqlStatementStarters = map[string]bool{
	"SELECT": true, "WITH": true,
	"INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true,
	"CREATE": true, "ALTER": true, "TRUNCATE": true, "REPLACE": true,
	"GRANT": true, "REVOKE": true, "ATTACH": true, "DETACH": true,
	"PRAGMA": true, "VACUUM": true, "REINDEX": true, "EXPLAIN": true,
	"BEGIN": true, "COMMIT": true, "ROLLBACK": true, "SET": true,
	"MERGE": true, "CALL": true, "COPY": true, "EXEC": true, "EXECUTE": true,
}

func firstWord(s string) (string, bool) {
	tokens := Lex(s)
	if len(tokens) == 0 || tokens[0].Kind != TokenWord {
		return "", false
	}
	return tokens[0].Text, true
}

// checkCandidate verifies a single isolated candidate: leading keyword,
// then statement boundaries via top-level semicolons outside literals and
// parentheses. A trailing semicolon is stripped. When strict is set,
// anything after a top-level semicolon counts as a stacked statement;
// otherwise only text that itself opens a SQL statement does (the
// candidate was cut from prose, which may continue after the SQL).
func checkCandidate(candidate string, strict bool) (string, error) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return "", ErrNoStatementFound
	}

	tokens := Lex(candidate)
	if len(tokens) == 0 {
		return "", ErrNoStatementFound
	}

	lead := tokens[0]
	if lead.Kind != TokenWord {
		return "", ErrNoStatementFound
	}
	if !lead.IsKeyword("SELECT") && !lead.IsKeyword("WITH") {
		return "", fmt.Errorf("leading keyword %q: %w", lead.Upper(), ErrDisallowedStatement)
	}
	if !strict && lead.IsKeyword("WITH") && !looksLikeCTE(tokens) {
		return "", ErrNoStatementFound
	}

	end, err := statementEnd(tokens, strict)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(candidate[:end]), nil
}

// looksLikeCTE reports whether the token stream opens a real CTE:
// WITH [RECURSIVE] name AS (. Used to tell SQL apart from the English
// word "with" when the candidate was cut out of prose.
func looksLikeCTE(tokens []Token) bool {
	i := 1
	if i < len(tokens) && tokens[i].IsKeyword("RECURSIVE") {
		i++
	}
	if i >= len(tokens) || tokens[i].Kind != TokenWord {
		return false
	}
	i++
	if i >= len(tokens) || !tokens[i].IsKeyword("AS") {
		return false
	}
	i++
	return i < len(tokens) && tokens[i].Kind == TokenPunct && tokens[i].Text == "("
}

// statementEnd returns the byte offset where the first statement ends, or
// ErrStackedStatements if another statement follows it.
func statementEnd(tokens []Token, strict bool) (int, error) {
	for i, tok := range tokens {
		if tok.Kind == TokenPunct && tok.Text == ";" && tok.Depth == 0 {
			rest := tokens[i+1:]
			if len(rest) == 0 {
				return tok.Pos, nil
			}
			if strict {
				return 0, ErrStackedStatements
			}
			if rest[0].Kind == TokenWord && sqlStatementStarters[strings.ToUpper(rest[0].Text)] {
				return 0, ErrStackedStatements
			}
			return tok.Pos, nil
		}
	}
	last := tokens[len(tokens)-1]
	return last.End, nil
}
