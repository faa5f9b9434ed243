package schema

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxGlossaryTerms bounds the glossary so the prompt stays a manageable
// size. Loading more than this is a configuration error, not something
// to silently truncate.
const MaxGlossaryTerms = 200

// GlossaryEntry defines one business term. Restricted entries feed the
// validator denylist: queries touching the listed physical identifiers
// (or, absent any, the term itself) are rejected.
type GlossaryEntry struct {
	Term        string   `json:"term" yaml:"term"`
	Definition  string   `json:"definition" yaml:"definition"`
	Restricted  bool     `json:"restricted,omitempty" yaml:"restricted,omitempty"`
	Identifiers []string `json:"identifiers,omitempty" yaml:"identifiers,omitempty"`
}

// LoadGlossary reads business terms from a JSON Lines file (one object
// per line) or, for .yaml/.yml paths, a YAML list. Malformed lines,
// missing keys, prohibited words and oversized files all fail the load;
// a broken glossary must surface at startup, not per request.
func LoadGlossary(path string) ([]GlossaryEntry, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return loadGlossaryYAML(path)
	default:
		return loadGlossaryJSONLines(path)
	}
}

func loadGlossaryJSONLines(path string) ([]GlossaryEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open glossary file: %w", err)
	}
	defer f.Close()

	var entries []GlossaryEntry
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var e GlossaryEntry
		if err := json.Unmarshal([]byte(text), &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := checkEntry(e, fmt.Sprintf("line %d", line)); err != nil {
			return nil, err
		}
		entries = append(entries, normalizeEntry(e))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read glossary file: %w", err)
	}
	return capEntries(entries)
}

func loadGlossaryYAML(path string) ([]GlossaryEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open glossary file: %w", err)
	}

	var entries []GlossaryEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse glossary yaml: %w", err)
	}
	for i, e := range entries {
		if err := checkEntry(e, fmt.Sprintf("entry %d", i+1)); err != nil {
			return nil, err
		}
		entries[i] = normalizeEntry(e)
	}
	return capEntries(entries)
}

func checkEntry(e GlossaryEntry, where string) error {
	if strings.TrimSpace(e.Term) == "" || strings.TrimSpace(e.Definition) == "" {
		return fmt.Errorf("%s: term and definition are required", where)
	}
	if w := containsProhibitedWord(e.Term); w != "" {
		return fmt.Errorf("%s: term %q contains prohibited word %q", where, e.Term, w)
	}
	if w := containsProhibitedWord(e.Definition); w != "" {
		return fmt.Errorf("%s: definition of %q contains prohibited word %q", where, e.Term, w)
	}
	return nil
}

func normalizeEntry(e GlossaryEntry) GlossaryEntry {
	e.Term = strings.TrimSpace(e.Term)
	e.Definition = strings.TrimSpace(e.Definition)
	return e
}

func capEntries(entries []GlossaryEntry) ([]GlossaryEntry, error) {
	if len(entries) > MaxGlossaryTerms {
		return nil, fmt.Errorf("glossary has %d terms, limit is %d", len(entries), MaxGlossaryTerms)
	}
	return entries, nil
}
