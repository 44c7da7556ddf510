package repair

import (
	"encoding/json"
	"errors"
	"regexp"
	"slices"
	"strings"
)

var (
	trailingComma = regexp.MustCompile(`,(\s*[}\]])`)
	singleQuoted  = regexp.MustCompile(`([{\[,:]\s*)'([^'\n]*)'`)
	smartQuotes   = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
)

// partialKVStage salvages whatever known keys appear as "key: value" pairs. Missing
// required keys are tolerated; enum values that do not match are dropped.
type partialKVStage struct {
	schema *Schema
}

func (s *partialKVStage) Name() string { return StagePartialKV }

func (s *partialKVStage) Parse(raw string) (map[string]any, error) {
	text := smartQuotes.Replace(stripFences(raw))

	data := make(map[string]any)
	for _, name := range s.schema.order {
		if value, ok := extractValue(text, name); ok {
			data[name] = value
		}
	}
	if len(data) == 0 {
		return nil, errors.New("no known keys found")
	}

	data = s.schema.Coerce(data)
	for name, value := range data {
		prop := s.schema.properties[name]
		if len(prop.Enum) == 0 {
			continue
		}
		if str, ok := value.(string); !ok || !slices.Contains(prop.Enum, str) {
			delete(data, name)
		}
	}
	if len(data) == 0 {
		return nil, errors.New("no usable values found")
	}
	return data, nil
}

func keyPattern(name string) *regexp.Regexp {
	parts := strings.Split(name, "_")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`(?i)["'*]*\b` + strings.Join(parts, `[ _-]?`) + `\b["'*]*\s*[:=]\s*`)
}

func extractValue(text, name string) (any, bool) {
	loc := keyPattern(name).FindStringIndex(text)
	if loc == nil {
		return nil, false
	}
	rest := text[loc[1]:]
	if rest == "" {
		return nil, false
	}

	switch rest[0] {
	case '[':
		end := strings.Index(rest, "]")
		if end == -1 {
			end = len(rest)
		}
		items := make([]any, 0)
		for _, item := range splitList(rest[1:end], ",\n") {
			items = append(items, item)
		}
		return items, true
	case '"':
		end := closingQuote(rest)
		if end == -1 {
			return strings.Trim(firstLine(rest), `",`), true
		}
		var s string
		if err := json.Unmarshal([]byte(rest[:end+1]), &s); err != nil {
			return rest[1:end], true
		}
		return s, true
	default:
		value := strings.TrimSpace(strings.TrimRight(firstLine(rest), ", "))
		value = strings.Trim(value, `"'`)
		if value == "" {
			return nil, false
		}
		return value, true
	}
}

func closingQuote(s string) int {
	escaped := false
	for i := 1; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == '"':
			return i
		}
	}
	return -1
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx != -1 {
		return s[:idx]
	}
	return s
}
