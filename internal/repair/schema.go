package repair

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/xeipuuv/gojsonschema"
)

// Schema wraps a compiled JSON schema together with the flat property view the
// repair stages use to coerce values.
type Schema struct {
	compiled   *gojsonschema.Schema
	properties map[string]property
	order      []string
	required   []string
}

type property struct {
	Type  string    `json:"type"`
	Enum  []string  `json:"enum"`
	Items *property `json:"items"`
}

type rawSchema struct {
	Properties map[string]property `json:"properties"`
	Required   []string            `json:"required"`
}

// ParseSchema compiles an object schema. Only top level properties drive coercion.
func ParseSchema(raw string) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	var parsed rawSchema
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse schema properties: %w", err)
	}
	if len(parsed.Properties) == 0 {
		return nil, errors.New("schema has no properties")
	}

	order := make([]string, 0, len(parsed.Properties))
	for name := range parsed.Properties {
		order = append(order, name)
	}
	sort.Strings(order)

	return &Schema{
		compiled:   compiled,
		properties: parsed.Properties,
		order:      order,
		required:   parsed.Required,
	}, nil
}

// Validate checks data against the compiled schema.
func (s *Schema) Validate(data map[string]any) error {
	res, err := s.compiled.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if res.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("schema violations: %s", strings.Join(msgs, "; "))
}

// Coerce returns a copy of data with known properties converted towards their declared
// types. Unknown keys are dropped. Values that cannot be converted are left as is.
func (s *Schema) Coerce(data map[string]any) map[string]any {
	out := make(map[string]any, len(s.properties))
	for name, value := range data {
		key := s.resolveKey(name)
		if key == "" {
			continue
		}
		out[key] = coerceValue(value, s.properties[key])
	}
	return out
}

// resolveKey maps loosely spelled keys ("Market Insight", "market-insight") to schema names.
func (s *Schema) resolveKey(name string) string {
	if _, ok := s.properties[name]; ok {
		return name
	}
	canonical := canonicalKey(name)
	for _, known := range s.order {
		if canonicalKey(known) == canonical {
			return known
		}
	}
	return ""
}

func canonicalKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
}

func coerceValue(value any, prop property) any {
	switch prop.Type {
	case "string":
		s := coerceString(value)
		if len(prop.Enum) > 0 {
			return matchEnum(s, prop.Enum)
		}
		return s
	case "array":
		items := coerceArray(value)
		if prop.Items == nil {
			return items
		}
		out := make([]any, 0, len(items))
		for _, item := range items {
			out = append(out, coerceValue(item, *prop.Items))
		}
		return out
	case "number", "integer":
		if s, ok := value.(string); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				return f
			}
		}
		return value
	case "boolean":
		if s, ok := value.(string); ok {
			lower := strings.ToLower(strings.TrimSpace(s))
			return lower == "true" || lower == "yes"
		}
		return value
	default:
		return value
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := coerceString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return strings.Trim(string(b), `"`)
	}
}

func coerceArray(v any) []any {
	switch val := v.(type) {
	case nil:
		return []any{}
	case []any:
		return val
	case []string:
		out := make([]any, 0, len(val))
		for _, s := range val {
			out = append(out, s)
		}
		return out
	case string:
		out := make([]any, 0)
		for _, part := range splitList(val, "\n;") {
			out = append(out, part)
		}
		return out
	default:
		return []any{v}
	}
}

var listMarker = regexp.MustCompile(`^(?:[-*•]|\d+[.)])\s+`)

// splitList splits free text on any of seps, dropping list markers and quotes.
func splitList(s, seps string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(seps, r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		f = listMarker.ReplaceAllString(f, "")
		f = strings.Trim(f, `"' `)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func matchEnum(s string, enum []string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, e := range enum {
		if strings.ToLower(e) == lower {
			return e
		}
	}
	for _, e := range enum {
		if lower != "" && strings.Contains(lower, strings.ToLower(e)) {
			return e
		}
	}
	return s
}

// Decode maps repaired data onto a struct using json tags, tolerating loose types.
func Decode(data map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := decoder.Decode(data); err != nil {
		return fmt.Errorf("decode repaired data: %w", err)
	}
	return nil
}
