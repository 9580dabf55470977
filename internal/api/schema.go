package api

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const updateProgressSchema = `{
  "type": "object",
  "required": ["courseId", "chapterId", "score"],
  "properties": {
    "courseId":  {"type": "string", "minLength": 1},
    "chapterId": {"type": "string", "minLength": 1},
    "score":     {"type": "number"}
  }
}`

const profileSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "preferences": {"type": "string", "maxLength": 2000},
    "goals":       {"type": "string", "maxLength": 2000},
    "strengths":   {"type": "string", "maxLength": 2000},
    "weaknesses":  {"type": "string", "maxLength": 2000}
  }
}`

type requestSchema struct {
	updateProgress *gojsonschema.Schema
	profile        *gojsonschema.Schema
}

func newRequestSchema() (*requestSchema, error) {
	up, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(updateProgressSchema))
	if err != nil {
		return nil, fmt.Errorf("compile update-progress schema: %w", err)
	}
	prof, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(profileSchema))
	if err != nil {
		return nil, fmt.Errorf("compile profile schema: %w", err)
	}
	return &requestSchema{updateProgress: up, profile: prof}, nil
}

func (s *requestSchema) validateProfile(body []byte) error {
	res, err := s.profile.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &schemaError{msg: "request body must be a JSON object"}
	}
	if res.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}
	return &schemaError{msg: strings.Join(msgs, "; ")}
}

// schemaError describes why a body failed validation. scoreRelated is set
// when the score field is missing or not a number.
type schemaError struct {
	msg          string
	scoreRelated bool
}

func (e *schemaError) Error() string {
	return e.msg
}

func (s *requestSchema) validateUpdateProgress(body []byte) error {
	res, err := s.updateProgress.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return &schemaError{msg: "request body must be a JSON object"}
	}
	if res.Valid() {
		return nil
	}

	var (
		msgs         []string
		scoreRelated bool
	)
	for _, e := range res.Errors() {
		if e.Field() == "score" || e.Details()["property"] == "score" {
			scoreRelated = true
		}
		msgs = append(msgs, e.String())
	}
	return &schemaError{msg: strings.Join(msgs, "; "), scoreRelated: scoreRelated}
}
