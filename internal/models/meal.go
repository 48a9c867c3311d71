// internal/models/meal.go
package models

import (
	"time"
)

type Meal struct {
	ID                string          `json:"id"`
	Name              string          `json:"meal_name"`
	EstimatedCalories int             `json:"estimated_calories"`
	Macronutrients    *Macronutrients `json:"macronutrients,omitempty"`
	Ingredients       []Ingredient    `json:"ingredients,omitempty"`
	Source            Source          `json:"source"`
	LoggedAt          time.Time       `json:"logged_at"`
}

// Macronutrients are grams. Nil fields were not reported and stay omitted.
type Macronutrients struct {
	Protein *float64 `json:"protein,omitempty"`
	Carbs   *float64 `json:"carbs,omitempty"`
	Fat     *float64 `json:"fat,omitempty"`
}

type Ingredient struct {
	Name     string  `json:"name"`
	Amount   string  `json:"amount"`
	Calories float64 `json:"calories"`
}

type Source string

const (
	SourceAI       Source = "ai_parsed"
	SourceFallback Source = "fallback"
	SourceManual   Source = "manual"
)

// MealDraft is a meal that has not been stored yet: no id, no timestamp.
type MealDraft struct {
	Name              string          `json:"meal_name"`
	EstimatedCalories int             `json:"estimated_calories"`
	Macronutrients    *Macronutrients `json:"macronutrients,omitempty"`
	Ingredients       []Ingredient    `json:"ingredients,omitempty"`
	Source            Source          `json:"source"`
}

// MealSummary is the projection returned by the daily total view.
type MealSummary struct {
	Name              string    `json:"meal_name"`
	EstimatedCalories int       `json:"estimated_calories"`
	LoggedAt          time.Time `json:"logged_at"`
}

type DailyTotal struct {
	Date          string        `json:"date"`
	TotalCalories int           `json:"total_calories"`
	Meals         []MealSummary `json:"meals"`
}

type MealList struct {
	Date          string `json:"date"`
	Meals         []Meal `json:"meals"`
	TotalCalories int    `json:"total_calories"`
}

// Grams returns a pointer for building Macronutrients literals.
func Grams(v float64) *float64 {
	return &v
}
