package sqlguard

import (
	"fmt"
	"strings"
	"time"

	libinjection "github.com/corazawaf/libinjection-go"
	"go.uber.org/zap"
)

// Rule names identify the validation layer that rejected a statement.
const (
	RuleForbiddenPattern = "forbidden-pattern"
	RuleReadOnlyMode     = "read-only-mode"
	RuleRestrictedTerm   = "restricted-term"
)

// Verdict is the outcome of validating one statement.
type Verdict struct {
	OK bool
	// Rule is the violated rule name when OK is false.
	Rule string
	// Reason is a human-readable rejection reason, fed back to the
	// generator on a corrective retry.
	Reason string
	// Statement is the possibly-rewritten statement (LIMIT-normalized).
	// Always set when OK is true, even if no rewrite was needed.
	Statement string
	// Deadline is the execution deadline policy for the configured
	// backend. Recorded here, enforced by the executor.
	Deadline time.Duration
}

// Rejection turns a failed verdict into an error suitable for the
// coordinator's corrective-retry context.
func (v Verdict) Rejection() error {
	if v.OK {
		return nil
	}
	return fmt.Errorf("security rejection (%s): %s", v.Rule, v.Reason)
}

// forbiddenKeywords are statement-altering or session-altering keywords
// rejected wherever they appear as SQL tokens, including in subqueries
// and CTE bodies. Matches inside quoted literals never trigger.
var forbiddenKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true,
	"CREATE": true, "ALTER": true, "TRUNCATE": true, "REPLACE": true,
	"GRANT": true, "REVOKE": true, "ATTACH": true, "DETACH": true,
	"VACUUM": true, "REINDEX": true, "MERGE": true, "CALL": true,
	"COPY": true, "EXEC": true, "EXECUTE": true,
}

// readSafePragmas are the introspection-only pragmas allowed through the
// PRAGMA check.
var readSafePragmas = map[string]bool{
	"TABLE_INFO":    true,
	"TABLE_LIST":    true,
	"DATABASE_LIST": true,
	"INDEX_LIST":    true,
	"INDEX_INFO":    true,
}

// Validator applies the ordered security policy to extracted statements.
// The first failing layer determines the verdict.
type Validator struct {
	maxRows    int
	deadline   time.Duration
	readOnly   bool
	restricted map[string]string // lower-cased physical identifier -> business term
	logger     *zap.Logger
}

// NewValidator builds a validator.
//
// readOnly reports whether the executor's connections carry a read-only
// capability; a validator wired to a writable executor rejects everything,
// so an undetected keyword bypass can never mutate data.
//
// restricted maps physical identifiers (lower-cased) to the business term
// that marks them off-limits.
func NewValidator(maxRows int, deadline time.Duration, readOnly bool, restricted map[string]string, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		maxRows:    maxRows,
		deadline:   deadline,
		readOnly:   readOnly,
		restricted: restricted,
		logger:     logger.Named("sqlguard"),
	}
}

// Validate runs the five policy layers in order:
//
//  1. forbidden keyword scan over the token stream
//  2. read-only capability check (structural, not lexical)
//  3. LIMIT normalization (always yields a rewritten statement on pass)
//  4. execution deadline policy tagging (enforced by the executor)
//  5. restricted business-term denylist
func (v *Validator) Validate(stmt string) Verdict {
	tokens := Lex(stmt)

	if rule, reason := v.scanForbidden(tokens); rule != "" {
		v.logger.Warn("statement rejected",
			zap.String("rule", rule),
			zap.String("reason", reason))
		return Verdict{Rule: rule, Reason: reason}
	}

	if !v.readOnly {
		return Verdict{
			Rule:   RuleReadOnlyMode,
			Reason: "executor connection is not read-only capable",
		}
	}

	rewritten := NormalizeLimit(stmt, v.maxRows)

	if rule, reason := v.scanRestricted(tokens); rule != "" {
		v.logger.Warn("statement rejected",
			zap.String("rule", rule),
			zap.String("reason", reason))
		return Verdict{Rule: rule, Reason: reason}
	}

	return Verdict{
		OK:        true,
		Statement: rewritten,
		Deadline:  v.deadline,
	}
}

// scanForbidden is layer 1: token-level keyword scan plus an injection
// fingerprint check on string literal bodies.
func (v *Validator) scanForbidden(tokens []Token) (rule, reason string) {
	for i, tok := range tokens {
		switch tok.Kind {
		case TokenWord:
			upper := tok.Upper()
			if forbiddenKeywords[upper] {
				return RuleForbiddenPattern, fmt.Sprintf("forbidden keyword %s", upper)
			}
			if upper == "PRAGMA" && !v.isReadSafePragma(tokens, i) {
				return RuleForbiddenPattern, "forbidden keyword PRAGMA"
			}
		case TokenString:
			// Literals cannot alter statements directly, but an injection
			// fingerprint inside one means the generator smuggled
			// something a driver or dialect quirk might re-interpret.
			// Plain prose literals are skipped to avoid fingerprinting
			// ordinary words as SQL.
			body := literalBody(tok.Text)
			if !strings.ContainsAny(body, `'";`) && !strings.Contains(body, "--") && !strings.Contains(body, "/*") {
				continue
			}
			if isSQLi, fingerprint := libinjection.IsSQLi(body); isSQLi {
				return RuleForbiddenPattern,
					fmt.Sprintf("injection pattern in string literal (fingerprint %s)", fingerprint)
			}
		}
	}
	return "", ""
}

// isReadSafePragma allows introspection pragmas like table_info through.
func (v *Validator) isReadSafePragma(tokens []Token, i int) bool {
	if i+1 >= len(tokens) {
		return false
	}
	next := tokens[i+1]
	return next.Kind == TokenWord && readSafePragmas[next.Upper()]
}

// scanRestricted is layer 5: any reference to a physical identifier the
// glossary marks restricted rejects the statement. This catches policy
// exceptions no generic keyword pattern can express.
func (v *Validator) scanRestricted(tokens []Token) (rule, reason string) {
	if len(v.restricted) == 0 {
		return "", ""
	}
	for _, tok := range tokens {
		var name string
		switch tok.Kind {
		case TokenWord:
			name = strings.ToLower(tok.Text)
		case TokenString:
			// Quoted identifiers reference columns too; single-quoted
			// data literals do not.
			if strings.HasPrefix(tok.Text, "'") {
				continue
			}
			name = strings.ToLower(literalBody(tok.Text))
		default:
			continue
		}
		if term, ok := v.restricted[name]; ok {
			return RuleRestrictedTerm,
				fmt.Sprintf("references %q, restricted by business term %q", name, term)
		}
	}
	return "", ""
}

// literalBody strips the surrounding quotes from a string/identifier token.
func literalBody(text string) string {
	if len(text) < 2 {
		return text
	}
	switch text[0] {
	case '\'', '"', '`':
		body := text[1:]
		if body[len(body)-1] == text[0] {
			body = body[:len(body)-1]
		}
		return body
	case '[':
		return strings.TrimSuffix(text[1:], "]")
	}
	return text
}
