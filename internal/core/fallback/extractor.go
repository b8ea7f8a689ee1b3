package fallback

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kirillkom/docextract/internal/core/domain"
	"github.com/kirillkom/docextract/internal/core/ports"
)

const responseSchema = `{
	"type": "object",
	"required": ["value"],
	"properties": {
		"value": {"type": ["string", "number", "boolean", "null"]},
		"evidence": {"type": ["string", "null"]}
	}
}`

var flatJSONObject = regexp.MustCompile(`(?s)\{[^{}]*\}`)

type llmAnswer struct {
	Value    any    `json:"value"`
	Evidence string `json:"evidence"`
}

// Service asks a language model for fields the deterministic pass could not settle.
type Service struct {
	gate     Gate
	provider ports.LLMProvider
	schema   *jsonschema.Schema
}

func New(provider ports.LLMProvider, gate Gate) (*Service, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("llm_answer.json", strings.NewReader(responseSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("llm_answer.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Service{gate: gate, provider: provider, schema: schema}, nil
}

func (s *Service) ShouldFallback(result domain.FieldResult, field domain.FieldConfig) bool {
	if s.provider == nil {
		return false
	}
	return s.gate.ShouldFallback(result, field)
}

// Extract returns a replacement result built from the model's answer, or current unchanged
// when the model finds nothing or answers in an unusable shape.
func (s *Service) Extract(
	ctx context.Context,
	doc domain.Document,
	field domain.FieldConfig,
	current domain.FieldResult,
) (domain.FieldResult, error) {
	slog.Info("llm_fallback_triggered", "document_id", doc.DocumentID, "field", field.Name)

	raw, err := s.provider.Complete(ctx, buildPrompt(doc, field))
	if err != nil {
		return current, fmt.Errorf("llm fallback for %s: %w", field.Name, err)
	}

	answer, err := s.parseAnswer(raw)
	if err != nil {
		slog.Warn("llm_answer_rejected", "field", field.Name, "error", err)
		return current, nil
	}
	if isEmptyValue(answer.Value) {
		slog.Info("llm_returned_null", "field", field.Name)
		return current, nil
	}

	rawValue := stringifyValue(answer.Value)
	evidence := answer.Evidence
	if evidence == "" {
		evidence = rawValue
	}
	return domain.FieldResult{
		FieldName:        field.Name,
		Value:            answer.Value,
		RawValue:         rawValue,
		Confidence:       domain.LLMBaseWeight,
		Status:           domain.FieldNeedsReview,
		Method:           domain.MethodLLM,
		Evidence:         &domain.Evidence{Snippet: evidence},
		Alternatives:     current.Alternatives,
		ValidationErrors: current.ValidationErrors,
	}, nil
}

// parseAnswer accepts the whole reply as JSON, or the first flat object embedded in it.
func (s *Service) parseAnswer(raw string) (llmAnswer, error) {
	raw = strings.TrimSpace(raw)
	payload := raw
	if !json.Valid([]byte(payload)) {
		payload = flatJSONObject.FindString(raw)
		if payload == "" {
			return llmAnswer{}, fmt.Errorf("no json object in response")
		}
	}

	var generic any
	if err := json.Unmarshal([]byte(payload), &generic); err != nil {
		return llmAnswer{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if err := s.schema.Validate(generic); err != nil {
		return llmAnswer{}, fmt.Errorf("response does not match schema: %w", err)
	}

	var answer llmAnswer
	if err := json.Unmarshal([]byte(payload), &answer); err != nil {
		return llmAnswer{}, fmt.Errorf("decode answer: %w", err)
	}
	return answer, nil
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func stringifyValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
