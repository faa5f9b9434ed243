// Package sqlguard isolates and screens generated SQL before it can reach
// a database. It extracts a single statement from free-form model output
// and applies the layered security policy over a token stream rather than
// raw text, so keywords inside string literals never trigger a rejection
// and keywords inside subqueries or CTEs always do.
package sqlguard

import (
	"strings"
	"unicode"
)

// TokenKind classifies lexed SQL tokens.
type TokenKind int

const (
	// TokenWord is a keyword or identifier.
	TokenWord TokenKind = iota
	// TokenString is a quoted literal or quoted identifier, quotes included.
	TokenString
	// TokenNumber is a numeric literal.
	TokenNumber
	// TokenPunct is any other single character (operators, commas,
	// parentheses, semicolons).
	TokenPunct
)

// Token is one lexed unit of a SQL statement.
type Token struct {
	Kind TokenKind
	// Text is the raw source slice, including quotes for TokenString.
	Text string
	// Pos and End delimit the token in the original statement.
	Pos int
	End int
	// Depth is the parenthesis nesting level at the token.
	Depth int
}

// Upper returns the token text upper-cased, for keyword comparison.
func (t Token) Upper() string {
	return strings.ToUpper(t.Text)
}

// IsKeyword reports whether the token is a word matching kw
// (case-insensitive). Quoted identifiers are never keywords.
func (t Token) IsKeyword(kw string) bool {
	return t.Kind == TokenWord && strings.EqualFold(t.Text, kw)
}

func isWordStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isWordPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$'
}

// Lex scans a SQL statement into tokens. Comments and whitespace are
// dropped. String literals (single quotes, with '' and \' escapes),
// quoted identifiers (double quotes, backticks, brackets) and comments
// never contribute word tokens, which is what lets the policy layers
// ignore keyword lookalikes inside literals.
func Lex(sql string) []Token {
	var tokens []Token
	runes := []rune(sql)
	depth := 0

	// Byte offsets per rune index so token positions map back into the
	// original string for splicing.
	offs := make([]int, len(runes)+1)
	off := 0
	for i, r := range runes {
		offs[i] = off
		off += len(string(r))
	}
	offs[len(runes)] = off

	i := 0
	for i < len(runes) {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++

		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}

		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			i += 2
			for i+1 < len(runes) && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i += 2
			if i > len(runes) {
				i = len(runes)
			}

		case r == '\'':
			start := i
			i++
			for i < len(runes) {
				if runes[i] == '\\' && i+1 < len(runes) {
					i += 2
					continue
				}
				if runes[i] == '\'' {
					// SQL standard escape: '' stays inside the literal.
					if i+1 < len(runes) && runes[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			tokens = append(tokens, Token{Kind: TokenString, Text: string(runes[start:i]), Pos: offs[start], End: offs[i], Depth: depth})

		case r == '"' || r == '`':
			quote := r
			start := i
			i++
			for i < len(runes) {
				if runes[i] == quote {
					if i+1 < len(runes) && runes[i+1] == quote {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			tokens = append(tokens, Token{Kind: TokenString, Text: string(runes[start:i]), Pos: offs[start], End: offs[i], Depth: depth})

		case r == '[':
			// SQL Server bracketed identifier.
			start := i
			i++
			for i < len(runes) && runes[i] != ']' {
				i++
			}
			if i < len(runes) {
				i++
			}
			tokens = append(tokens, Token{Kind: TokenString, Text: string(runes[start:i]), Pos: offs[start], End: offs[i], Depth: depth})

		case isWordStart(r):
			start := i
			for i < len(runes) && isWordPart(runes[i]) {
				i++
			}
			tokens = append(tokens, Token{Kind: TokenWord, Text: string(runes[start:i]), Pos: offs[start], End: offs[i], Depth: depth})

		case unicode.IsDigit(r):
			start := i
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.' || runes[i] == 'e' || runes[i] == 'E') {
				i++
			}
			tokens = append(tokens, Token{Kind: TokenNumber, Text: string(runes[start:i]), Pos: offs[start], End: offs[i], Depth: depth})

		default:
			if r == '(' {
				tokens = append(tokens, Token{Kind: TokenPunct, Text: "(", Pos: offs[i], End: offs[i+1], Depth: depth})
				depth++
				i++
				continue
			}
			if r == ')' {
				if depth > 0 {
					depth--
				}
				tokens = append(tokens, Token{Kind: TokenPunct, Text: ")", Pos: offs[i], End: offs[i+1], Depth: depth})
				i++
				continue
			}
			tokens = append(tokens, Token{Kind: TokenPunct, Text: string(r), Pos: offs[i], End: offs[i+1], Depth: depth})
			i++
		}
	}

	return tokens
}
