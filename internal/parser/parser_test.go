// internal/parser/parser_test.go
package parser

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-calorie-log/internal/metrics"
	"mcp-calorie-log/internal/models"
)

type completerFunc func(ctx context.Context, req CompletionRequest) (string, error)

func (f completerFunc) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return f(ctx, req)
}

func replying(text string) Completer {
	return completerFunc(func(context.Context, CompletionRequest) (string, error) {
		return text, nil
	})
}

func failing(err error) Completer {
	return completerFunc(func(context.Context, CompletionRequest) (string, error) {
		return "", err
	})
}

const chickenSandwich = "A chicken sandwich and a side salad"

func assertFallback(t *testing.T, draft models.MealDraft) {
	t.Helper()
	assert.Equal(t, models.SourceFallback, draft.Source)
	assert.Equal(t, chickenSandwich, draft.Name)
	assert.Equal(t, 950, draft.EstimatedCalories)
	require.NotNil(t, draft.Macronutrients)
	assert.Equal(t, 48.0, *draft.Macronutrients.Protein)
	assert.Equal(t, 119.0, *draft.Macronutrients.Carbs)
	assert.Equal(t, 32.0, *draft.Macronutrients.Fat)
}

func TestParseModelAnswer(t *testing.T) {
	var seen CompletionRequest
	p := New(completerFunc(func(_ context.Context, req CompletionRequest) (string, error) {
		seen = req
		return `{"meal_name": "Chicken sandwich with side salad", "estimated_calories": 612.6,
			"macronutrients": {"protein": 38, "carbs": 55.5, "fat": 24}}`, nil
	}))

	draft := p.Parse(context.Background(), chickenSandwich)

	assert.Equal(t, models.SourceAI, draft.Source)
	assert.Equal(t, "Chicken sandwich with side salad", draft.Name)
	assert.Equal(t, 613, draft.EstimatedCalories)
	require.NotNil(t, draft.Macronutrients)
	assert.Equal(t, 55.5, *draft.Macronutrients.Carbs)

	assert.Contains(t, seen.UserPrompt, `"A chicken sandwich and a side salad"`)
	assert.Contains(t, seen.UserPrompt, "Return ONLY the JSON object")
	assert.NotEmpty(t, seen.SystemPrompt)
	assert.Equal(t, maxTokens, seen.MaxTokens)
}

func TestParseEnvelopes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"bare object", `{"meal_name":"Toast","estimated_calories":250}`},
		{"json fence", "```json\n{\"meal_name\":\"Toast\",\"estimated_calories\":250}\n```"},
		{"plain fence", "```\n{\"meal_name\":\"Toast\",\"estimated_calories\":250}\n```"},
		{"response wrapper", `{"response":"{\"meal_name\":\"Toast\",\"estimated_calories\":250}"}`},
		{"text wrapper", `{"text":"{\"meal_name\":\"Toast\",\"estimated_calories\":250}"}`},
		{"content wrapper with fence", `{"content":"` + "```json\\n" + `{\"meal_name\":\"Toast\",\"estimated_calories\":250}` + "\\n```" + `"}`},
		{"chat choices", `{"choices":[{"message":{"role":"assistant","content":"{\"meal_name\":\"Toast\",\"estimated_calories\":250}"}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := New(replying(tt.raw)).Parse(context.Background(), "two slices of toast")
			assert.Equal(t, models.SourceAI, draft.Source)
			assert.Equal(t, "Toast", draft.Name)
			assert.Equal(t, 250, draft.EstimatedCalories)
			assert.Nil(t, draft.Macronutrients)
		})
	}
}

func TestParseFallsBack(t *testing.T) {
	tests := []struct {
		name   string
		c      Completer
		reason string
	}{
		{"no completer", nil, "no_completer"},
		{"gateway down", failing(errors.New("connection refused")), "gateway_error"},
		{"breaker open", failing(ErrGatewayUnavailable), "gateway_unavailable"},
		{"prose answer", replying("Sure! That's about 600 calories."), "invalid_json"},
		{"array answer", replying(`[{"meal_name":"x","estimated_calories":1}]`), "invalid_json"},
		{"unknown envelope", replying(`{"result":{"meal":"x"}}`), "unknown_envelope"},
		{"missing name", replying(`{"estimated_calories":500}`), "missing_name"},
		{"blank name", replying(`{"meal_name":"   ","estimated_calories":500}`), "missing_name"},
		{"numeric name", replying(`{"meal_name":12,"estimated_calories":500}`), "missing_name"},
		{"string calories", replying(`{"meal_name":"Soup","estimated_calories":"500"}`), "invalid_calories"},
		{"null calories", replying(`{"meal_name":"Soup","estimated_calories":null}`), "invalid_calories"},
		{"missing calories", replying(`{"meal_name":"Soup"}`), "invalid_calories"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New()
			p := New(tt.c, WithMetrics(m))

			assertFallback(t, p.Parse(context.Background(), chickenSandwich))
			assert.Equal(t, 1.0, testutil.ToFloat64(m.ParserFallbacks.WithLabelValues(tt.reason)))
		})
	}
}

func TestParseTimeoutFallsBack(t *testing.T) {
	slow := completerFunc(func(ctx context.Context, _ CompletionRequest) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	m := metrics.New()
	p := New(slow, WithTimeout(20*time.Millisecond), WithMetrics(m))

	start := time.Now()
	assertFallback(t, p.Parse(context.Background(), chickenSandwich))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ParserFallbacks.WithLabelValues("timeout")))
}

func TestParseFallbackIsDeterministic(t *testing.T) {
	p := New(failing(errors.New("unavailable")))
	first := p.Parse(context.Background(), chickenSandwich)
	second := p.Parse(context.Background(), chickenSandwich)
	assert.Equal(t, first, second)
}

func TestParseClampsModelNumbers(t *testing.T) {
	p := New(replying(`{"meal_name":"Mystery","estimated_calories":-40.7,"macronutrients":{"protein":-2,"fat":3}}`))

	draft := p.Parse(context.Background(), "mystery")
	assert.Equal(t, models.SourceAI, draft.Source)
	assert.Equal(t, 0, draft.EstimatedCalories)
	require.NotNil(t, draft.Macronutrients)
	assert.Equal(t, 0.0, *draft.Macronutrients.Protein)
	assert.Nil(t, draft.Macronutrients.Carbs)
	assert.Equal(t, 3.0, *draft.Macronutrients.Fat)
}

func TestParseDropsMalformedMacros(t *testing.T) {
	p := New(replying(`{"meal_name":"Bagel","estimated_calories":290,"macronutrients":"lots"}`))

	draft := p.Parse(context.Background(), "bagel")
	assert.Equal(t, models.SourceAI, draft.Source)
	assert.Equal(t, 290, draft.EstimatedCalories)
	assert.Nil(t, draft.Macronutrients)
}

func TestParseTrimsName(t *testing.T) {
	draft := New(replying(`{"meal_name":"  Greek yogurt \n","estimated_calories":120}`)).Parse(context.Background(), "yogurt")
	assert.Equal(t, "Greek yogurt", draft.Name)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```JSON {\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("  ```\n{\"a\":1}\n```  "))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
	assert.False(t, strings.Contains(stripCodeFence("```json\n{}\n```"), "`"))
}
