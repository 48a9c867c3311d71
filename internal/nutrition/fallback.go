// internal/nutrition/fallback.go
package nutrition

import (
	"math"
	"strings"

	"mcp-calorie-log/internal/models"
)

const baseCalories = 300

// Calories per gram.
const (
	proteinKcalPerGram = 4
	carbsKcalPerGram   = 4
	fatKcalPerGram     = 9
)

// Share of total calories attributed to each macronutrient by the fallback.
const (
	proteinShare = 0.20
	carbsShare   = 0.50
	fatShare     = 0.30
)

var keywordCalories = map[string]int{
	"sandwich":    300,
	"salad":       150,
	"pizza":       250,
	"burger":      500,
	"chicken":     200,
	"rice":        200,
	"pasta":       300,
	"coffee":      5,
	"oatmeal":     150,
	"blueberries": 50,
}

// EstimateFallback is the deterministic estimate used when the model can't be
// asked or its answer is unusable. Tokens are whitespace separated and matched
// lower-cased against a fixed keyword table on top of a base of 300 kcal.
func EstimateFallback(description string) models.MealDraft {
	kcal := baseCalories
	for _, word := range strings.Fields(strings.ToLower(description)) {
		kcal += keywordCalories[word]
	}

	return models.MealDraft{
		Name:              description,
		EstimatedCalories: kcal,
		Macronutrients:    MacrosFromCalories(kcal),
		Source:            models.SourceFallback,
	}
}

// MacrosFromCalories splits kcal into protein/carbs/fat grams using fixed
// 20/50/30 ratios.
func MacrosFromCalories(kcal int) *models.Macronutrients {
	k := float64(kcal)
	return &models.Macronutrients{
		Protein: models.Grams(roundHalfUp(k * proteinShare / proteinKcalPerGram)),
		Carbs:   models.Grams(roundHalfUp(k * carbsShare / carbsKcalPerGram)),
		Fat:     models.Grams(roundHalfUp(k * fatShare / fatKcalPerGram)),
	}
}

// NormalizeCalories rounds v and clamps it at zero. NaN and -Inf become 0.
func NormalizeCalories(v float64) int {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	// Only the int range limits this; there is no domain ceiling.
	if v >= math.MaxInt {
		return math.MaxInt
	}
	return int(roundHalfUp(v))
}

// NormalizeGrams clamps a macronutrient amount at zero.
func NormalizeGrams(v *float64) *float64 {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || *v < 0 {
		return models.Grams(0)
	}
	return models.Grams(*v)
}

func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}
