// cmd/calorie-log/log.go
package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mcp-calorie-log/internal/models"
	"mcp-calorie-log/internal/tracker"
)

var (
	logUser        string
	logName        string
	logIngredients []string
)

var logCmd = &cobra.Command{
	Use:   "log [description]",
	Short: "Log a meal for today",
	Long: `Logs a meal for the given user. Pass a free-text description to have its
calories estimated, or --name with one or more --ingredient flags to log a
meal whose calories are the sum of its ingredients.`,
	Example: `  calorie-log log --user alice "A chicken sandwich and a side salad"
  calorie-log log --user alice --name Lunch --ingredient "rice:1 cup:200" --ingredient "chicken:150g:250"`,
	RunE: runLog,
}

func init() {
	logCmd.Flags().StringVar(&logUser, "user", "", "user the meal belongs to (required)")
	logCmd.Flags().StringVar(&logName, "name", "", "meal name for a structured meal")
	logCmd.Flags().StringArrayVar(&logIngredients, "ingredient", nil, "ingredient as name:amount:calories (repeatable)")
	_ = logCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(logCmd)
}

func runLog(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	var resp *tracker.LogMealResponse
	if len(logIngredients) > 0 {
		ingredients, err := parseIngredients(logIngredients)
		if err != nil {
			return err
		}
		resp, err = a.tracker.LogStructuredMeal(ctx, tracker.StructuredMealRequest{
			Identity:    logUser,
			MealName:    logName,
			Ingredients: ingredients,
		})
		if err != nil {
			return fmt.Errorf("logging meal: %w", err)
		}
	} else {
		resp, err = a.tracker.LogMeal(ctx, tracker.LogMealRequest{
			Identity:    logUser,
			Description: strings.Join(args, " "),
		})
		if err != nil {
			return fmt.Errorf("logging meal: %w", err)
		}
	}

	meal := resp.Meal
	fmt.Printf("Logged %q: %d kcal (%s)\n", meal.Name, meal.EstimatedCalories, meal.Source)
	if m := meal.Macronutrients; m != nil {
		fmt.Printf("  protein %s  carbs %s  fat %s\n", grams(m.Protein), grams(m.Carbs), grams(m.Fat))
	}
	fmt.Printf("Today's total: %d kcal\n", resp.DailyTotal)
	return nil
}

// parseIngredients reads name:amount:calories triples. The name may not
// contain a colon; the amount may be empty.
func parseIngredients(values []string) ([]models.Ingredient, error) {
	out := make([]models.Ingredient, 0, len(values))
	for _, value := range values {
		parts := strings.Split(value, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("ingredient %q: expected name:amount:calories", value)
		}
		kcal, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("ingredient %q: calories must be a number", value)
		}
		out = append(out, models.Ingredient{
			Name:     strings.TrimSpace(parts[0]),
			Amount:   strings.TrimSpace(parts[1]),
			Calories: kcal,
		})
	}
	return out, nil
}

func grams(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64) + "g"
}
