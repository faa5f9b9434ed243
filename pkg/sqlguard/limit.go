package sqlguard

import (
	"strconv"
	"strings"
)

// NormalizeLimit enforces a row cap on the outermost query. A missing
// LIMIT clause gets one appended, a LIMIT above maxRows is rewritten down
// to maxRows, and a smaller explicit LIMIT is preserved unchanged.
//
// The outermost LIMIT is found at parenthesis depth zero past any leading
// WITH clause; LIMITs inside subqueries or CTE bodies are left alone.
func NormalizeLimit(stmt string, maxRows int) string {
	tokens := Lex(stmt)
	if len(tokens) == 0 {
		return stmt
	}

	// Skip past CTE definitions: their bodies are parenthesized, so the
	// outermost SELECT is the first one back at depth zero.
	start := 0
	if tokens[0].IsKeyword("WITH") {
		for i, tok := range tokens {
			if tok.Depth == 0 && tok.IsKeyword("SELECT") {
				start = i
				break
			}
		}
	}

	for i := start; i < len(tokens); i++ {
		if tokens[i].Depth != 0 || !tokens[i].IsKeyword("LIMIT") {
			continue
		}
		return capLimitClause(stmt, tokens[i+1:], maxRows)
	}

	return strings.TrimRight(stmt, " \t\n\r") + " LIMIT " + strconv.Itoa(maxRows)
}

// capLimitClause rewrites the row-count operand of a LIMIT clause when it
// exceeds maxRows. rest is the token stream following the LIMIT keyword.
// Both "LIMIT n" and the "LIMIT offset, n" form are handled; in the comma
// form the second operand is the row count.
func capLimitClause(stmt string, rest []Token, maxRows int) string {
	if len(rest) == 0 {
		return stmt + " " + strconv.Itoa(maxRows)
	}

	count := rest[0]
	if len(rest) >= 3 && rest[1].Kind == TokenPunct && rest[1].Text == "," {
		count = rest[2]
	}

	switch count.Kind {
	case TokenNumber:
		n, err := strconv.Atoi(count.Text)
		if err != nil || n <= maxRows {
			return stmt
		}
	case TokenWord:
		// LIMIT ALL and similar: replace with the cap.
	default:
		return stmt
	}

	return stmt[:count.Pos] + strconv.Itoa(maxRows) + stmt[count.End:]
}
