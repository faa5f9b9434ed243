package sqlguard

import (
	"testing"
)

func TestLex_TokenKinds(t *testing.T) {
	tokens := Lex(`SELECT name, 'it''s', "col;umn", 42 FROM t -- tail`)

	var words, strs, nums int
	for _, tok := range tokens {
		switch tok.Kind {
		case TokenWord:
			words++
		case TokenString:
			strs++
		case TokenNumber:
			nums++
		}
	}

	if words != 4 { // SELECT name FROM t
		t.Errorf("words = %d, want 4", words)
	}
	if strs != 2 {
		t.Errorf("strings = %d, want 2", strs)
	}
	if nums != 1 {
		t.Errorf("numbers = %d, want 1", nums)
	}
}

func TestLex_CommentsDropped(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"line comment", "SELECT 1 -- DROP TABLE users"},
		{"block comment", "SELECT /* DELETE FROM t */ 1"},
		{"unterminated block comment", "SELECT 1 /* trailing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, tok := range Lex(tt.input) {
				if tok.Kind == TokenWord && (tok.IsKeyword("DROP") || tok.IsKeyword("DELETE")) {
					t.Errorf("comment text leaked as token: %q", tok.Text)
				}
			}
		})
	}
}

func TestLex_Depth(t *testing.T) {
	tokens := Lex("SELECT (SELECT max(age) FROM members) FROM t")

	byText := map[string]int{}
	for _, tok := range tokens {
		if tok.Kind == TokenWord {
			byText[tok.Text] = tok.Depth
		}
	}

	if byText["max"] != 1 {
		t.Errorf("max depth = %d, want 1", byText["max"])
	}
	if byText["members"] != 1 {
		t.Errorf("members depth = %d, want 1", byText["members"])
	}
	if byText["t"] != 0 {
		t.Errorf("t depth = %d, want 0", byText["t"])
	}
}

func TestLex_SemicolonInsideString(t *testing.T) {
	tokens := Lex("SELECT * FROM t WHERE v = 'a;b'")
	for _, tok := range tokens {
		if tok.Kind == TokenPunct && tok.Text == ";" {
			t.Error("semicolon inside literal surfaced as punct token")
		}
	}
}

func TestLex_PositionsSpliceBack(t *testing.T) {
	input := "SELECT * FROM t LIMIT 5000"
	tokens := Lex(input)

	last := tokens[len(tokens)-1]
	if last.Kind != TokenNumber || last.Text != "5000" {
		t.Fatalf("last token = %+v, want number 5000", last)
	}
	if input[last.Pos:last.End] != "5000" {
		t.Errorf("offsets %d:%d map to %q", last.Pos, last.End, input[last.Pos:last.End])
	}
}

func TestLex_MultibyteText(t *testing.T) {
	input := "SELECT * FROM members WHERE name = '山田' LIMIT 9999"
	tokens := Lex(input)
	last := tokens[len(tokens)-1]
	if input[last.Pos:last.End] != "9999" {
		t.Errorf("multibyte offsets broken: %q", input[last.Pos:last.End])
	}
}
