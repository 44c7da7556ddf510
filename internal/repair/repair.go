// Package repair turns loosely formatted model output into schema conforming data.
// Stages run in order and the first one that yields valid data wins.
package repair

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrNoStageSucceeded = errors.New("no repair stage succeeded")

const (
	StageStrict       = "strict"
	StageSchemaRepair = "schema_repair"
	StagePartialKV    = "partial_kv"
)

// Stage parses raw text into an object or reports why it could not.
type Stage interface {
	Name() string
	Parse(raw string) (map[string]any, error)
}

type Attempt struct {
	Stage string
	Err   error
}

type Result struct {
	Data     map[string]any
	Stage    string
	Attempts []Attempt
}

type Pipeline struct {
	stages []Stage
}

func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// NewDefaultPipeline chains strict, schema repair and partial key/value extraction.
func NewDefaultPipeline(schema *Schema) *Pipeline {
	return NewPipeline(
		&strictStage{schema: schema},
		&schemaRepairStage{schema: schema},
		&partialKVStage{schema: schema},
	)
}

// Run tries each stage in order. Attempts lists every stage that ran, including the winner.
func (p *Pipeline) Run(raw string) (*Result, error) {
	res := &Result{}
	for _, stage := range p.stages {
		data, err := stage.Parse(raw)
		res.Attempts = append(res.Attempts, Attempt{Stage: stage.Name(), Err: err})
		if err != nil {
			continue
		}
		res.Data = data
		res.Stage = stage.Name()
		return res, nil
	}

	errs := make([]error, 0, len(res.Attempts)+1)
	errs = append(errs, ErrNoStageSucceeded)
	for _, a := range res.Attempts {
		errs = append(errs, fmt.Errorf("%s: %w", a.Stage, a.Err))
	}
	return res, errors.Join(errs...)
}

type strictStage struct {
	schema *Schema
}

func (s *strictStage) Name() string { return StageStrict }

func (s *strictStage) Parse(raw string) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &data); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if data == nil {
		return nil, errors.New("not a json object")
	}
	if err := s.schema.Validate(data); err != nil {
		return nil, err
	}
	return data, nil
}

type schemaRepairStage struct {
	schema *Schema
}

func (s *schemaRepairStage) Name() string { return StageSchemaRepair }

func (s *schemaRepairStage) Parse(raw string) (map[string]any, error) {
	cleaned := cleanJSON(raw)
	if cleaned == "" {
		return nil, errors.New("no json object found")
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("unmarshal repaired text: %w", err)
	}

	data = s.schema.Coerce(data)
	if err := s.schema.Validate(data); err != nil {
		return nil, err
	}
	return data, nil
}

// cleanJSON strips code fences and surrounding prose, then applies syntax fixes one at a
// time until the text is valid JSON: trailing commas, smart quotes, single quoted strings.
func cleanJSON(raw string) string {
	text := stripFences(raw)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return ""
	}
	text = text[start : end+1]

	fixes := []func(string) string{
		func(s string) string { return trailingComma.ReplaceAllString(s, "$1") },
		smartQuotes.Replace,
		func(s string) string { return singleQuoted.ReplaceAllString(s, `$1"$2"`) },
	}
	for _, fix := range fixes {
		if json.Valid([]byte(text)) {
			break
		}
		text = fix(text)
	}
	return text
}

func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}
