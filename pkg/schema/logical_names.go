package schema

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jinzhu/inflection"
)

// prohibitedWords screens alias and glossary text for prompt-injection
// phrasing. Both English and Japanese instruction words are covered;
// matching is case-insensitive substring.
var prohibitedWords = []string{
	"無視", "ignore", "指示", "重要", "システム",
	"プロンプト", "以下", "上記", "破棄", "削除",
	"あなたの役割", "代わりに", "最優先",
	"instruction", "disregard", "system prompt",
}

func containsProhibitedWord(s string) string {
	lower := strings.ToLower(s)
	for _, w := range prohibitedWords {
		if strings.Contains(lower, strings.ToLower(w)) {
			return w
		}
	}
	return ""
}

// LoadLogicalNames reads the physical-to-logical alias mapping from a
// two-column CSV with a "physical_name,logical_name" header. Rows with
// an empty physical name are skipped; an empty logical name falls back
// to the physical one. Any alias containing a prohibited word fails the
// whole load.
func LoadLogicalNames(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open logical names file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	physicalIdx, logicalIdx := -1, -1
	for i, col := range header {
		switch strings.TrimSpace(col) {
		case "physical_name":
			physicalIdx = i
		case "logical_name":
			logicalIdx = i
		}
	}
	if physicalIdx < 0 || logicalIdx < 0 {
		return nil, fmt.Errorf("csv header must contain physical_name and logical_name, got %v", header)
	}

	mapping := map[string]string{}
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if physicalIdx >= len(record) {
			continue
		}
		physical := strings.TrimSpace(record[physicalIdx])
		if physical == "" {
			continue
		}
		logical := ""
		if logicalIdx < len(record) {
			logical = strings.TrimSpace(record[logicalIdx])
		}
		if logical == "" {
			logical = physical
		}
		if w := containsProhibitedWord(logical); w != "" {
			return nil, fmt.Errorf("line %d: logical name %q contains prohibited word %q", line, logical, w)
		}
		mapping[physical] = logical
	}
	return mapping, nil
}

// Humanize derives a display name from a physical identifier when no
// alias is configured: underscores become spaces and plural table names
// are singularized, so "access_logs" reads as "access log".
func Humanize(physical string) string {
	return strings.ReplaceAll(inflection.Singular(physical), "_", " ")
}
