// internal/parser/parser.go
package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mcp-calorie-log/internal/metrics"
	"mcp-calorie-log/internal/models"
	"mcp-calorie-log/internal/nutrition"
)

const systemPrompt = `You are a nutrition expert. Always respond with valid JSON only, no markdown formatting.`

const userPromptTemplate = `You are an expert nutritionist. Analyze the following meal description and return ONLY a valid JSON object with the following structure:
{
  "meal_name": "A descriptive name of the meal",
  "estimated_calories": <number>,
  "macronutrients": {
    "protein": <number in grams>,
    "carbs": <number in grams>,
    "fat": <number in grams>
  }
}

Meal description: %q

Return ONLY the JSON object, no additional text or explanation.`

const (
	defaultTimeout = 20 * time.Second
	maxTokens      = 200
	temperature    = 0.3
	// Envelopes nest at most this deep before the answer is rejected.
	maxEnvelopeDepth = 3
)

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// Completer is the external text-generation capability.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Parser turns a free-text meal description into a MealDraft. It never fails:
// anything wrong with the model's answer falls back to nutrition.EstimateFallback.
type Parser struct {
	completer Completer
	timeout   time.Duration
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

type Option func(*Parser)

func WithTimeout(d time.Duration) Option {
	return func(p *Parser) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Parser) { p.metrics = m }
}

func WithLogger(log zerolog.Logger) Option {
	return func(p *Parser) { p.log = log }
}

// New builds a Parser. A nil completer makes every parse use the fallback.
func New(completer Completer, opts ...Option) *Parser {
	p := &Parser{
		completer: completer,
		timeout:   defaultTimeout,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse estimates calories and macronutrients for description.
func (p *Parser) Parse(ctx context.Context, description string) models.MealDraft {
	draft, err := p.parseWithModel(ctx, description)
	if err != nil {
		reason := failureReason(err)
		p.log.Warn().Err(err).Str("reason", reason).Msg("meal parsing failed, using fallback estimate")
		p.metrics.ObserveFallback(reason)
		draft = nutrition.EstimateFallback(description)
	}
	p.metrics.ObserveParse(string(draft.Source))
	return draft
}

func (p *Parser) parseWithModel(ctx context.Context, description string) (models.MealDraft, error) {
	if p.completer == nil {
		return models.MealDraft{}, errNoCompleter
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	raw, err := p.completer.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   fmt.Sprintf(userPromptTemplate, description),
		MaxTokens:    maxTokens,
		Temperature:  temperature,
	})
	if err != nil {
		return models.MealDraft{}, fmt.Errorf("completion: %w", err)
	}

	return decodeMeal(raw)
}

var (
	errNoCompleter     = errors.New("no completer configured")
	errInvalidJSON     = errors.New("response is not a JSON object")
	errUnknownEnvelope = errors.New("unrecognized response envelope")
	errMissingName     = errors.New("meal_name missing or empty")
	errInvalidCalories = errors.New("estimated_calories missing or not a number")
)

func failureReason(err error) string {
	switch {
	case errors.Is(err, errNoCompleter):
		return "no_completer"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrGatewayUnavailable):
		return "gateway_unavailable"
	case errors.Is(err, errInvalidJSON):
		return "invalid_json"
	case errors.Is(err, errUnknownEnvelope):
		return "unknown_envelope"
	case errors.Is(err, errMissingName):
		return "missing_name"
	case errors.Is(err, errInvalidCalories):
		return "invalid_calories"
	default:
		return "gateway_error"
	}
}

// responseFields covers the known shapes a model answer can arrive in: the
// meal object itself, or one of several wrappers carrying it as a string.
type responseFields struct {
	MealName          json.RawMessage `json:"meal_name"`
	EstimatedCalories json.RawMessage `json:"estimated_calories"`
	Macronutrients    json.RawMessage `json:"macronutrients"`

	Response *string `json:"response"`
	Text     *string `json:"text"`
	Content  *string `json:"content"`
	Choices  []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func decodeMeal(raw string) (models.MealDraft, error) {
	text := raw
	for depth := 0; depth < maxEnvelopeDepth; depth++ {
		var fields responseFields
		if err := json.Unmarshal([]byte(stripCodeFence(text)), &fields); err != nil {
			return models.MealDraft{}, fmt.Errorf("%w: %v", errInvalidJSON, err)
		}

		if fields.MealName != nil || fields.EstimatedCalories != nil {
			return validateMeal(fields)
		}

		inner, ok := fields.unwrap()
		if !ok {
			return models.MealDraft{}, errUnknownEnvelope
		}
		text = inner
	}
	return models.MealDraft{}, errUnknownEnvelope
}

func (f responseFields) unwrap() (string, bool) {
	switch {
	case f.Response != nil:
		return *f.Response, true
	case f.Text != nil:
		return *f.Text, true
	case f.Content != nil:
		return *f.Content, true
	case len(f.Choices) > 0 && f.Choices[0].Message.Content != nil:
		return *f.Choices[0].Message.Content, true
	}
	return "", false
}

func validateMeal(f responseFields) (models.MealDraft, error) {
	var name string
	if err := json.Unmarshal(f.MealName, &name); err != nil || strings.TrimSpace(name) == "" {
		return models.MealDraft{}, errMissingName
	}

	if isJSONNull(f.EstimatedCalories) {
		return models.MealDraft{}, errInvalidCalories
	}
	var kcal float64
	if err := json.Unmarshal(f.EstimatedCalories, &kcal); err != nil {
		return models.MealDraft{}, fmt.Errorf("%w: %v", errInvalidCalories, err)
	}

	draft := models.MealDraft{
		Name:              strings.TrimSpace(name),
		EstimatedCalories: nutrition.NormalizeCalories(kcal),
		Source:            models.SourceAI,
	}

	// Macronutrients are optional; a malformed block is dropped, not fatal.
	if !isJSONNull(f.Macronutrients) {
		var macros models.Macronutrients
		if err := json.Unmarshal(f.Macronutrients, &macros); err == nil {
			macros.Protein = nutrition.NormalizeGrams(macros.Protein)
			macros.Carbs = nutrition.NormalizeGrams(macros.Carbs)
			macros.Fat = nutrition.NormalizeGrams(macros.Fat)
			if macros.Protein != nil || macros.Carbs != nil || macros.Fat != nil {
				draft.Macronutrients = &macros
			}
		}
	}

	return draft, nil
}

func isJSONNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// stripCodeFence removes a ```json ... ``` or ``` ... ``` wrapper.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if len(s) >= 4 && strings.EqualFold(s[:4], "json") {
		s = s[4:]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
