// cmd/calorie-log/total.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	totalUser string
	mealsUser string
)

var totalCmd = &cobra.Command{
	Use:   "total",
	Short: "Show today's calorie total",
	RunE:  runTotal,
}

var mealsCmd = &cobra.Command{
	Use:   "meals",
	Short: "List today's meals",
	Long:  `Displays every meal logged today for the user, oldest first, with macronutrients.`,
	RunE:  runMeals,
}

func init() {
	totalCmd.Flags().StringVar(&totalUser, "user", "", "user to query (required)")
	_ = totalCmd.MarkFlagRequired("user")
	mealsCmd.Flags().StringVar(&mealsUser, "user", "", "user to query (required)")
	_ = mealsCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(totalCmd, mealsCmd)
}

func runTotal(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	daily, err := a.tracker.DailyTotal(ctx, totalUser)
	if err != nil {
		return fmt.Errorf("reading daily total: %w", err)
	}

	fmt.Printf("%s  %s\n", totalUser, daily.Date)
	fmt.Println("----------------------------------------")
	for _, meal := range daily.Meals {
		fmt.Printf("%-8s  %-22.22s  %6d kcal\n", meal.LoggedAt.Format("15:04"), meal.Name, meal.EstimatedCalories)
	}
	fmt.Println("----------------------------------------")
	fmt.Printf("Total: %d kcal (%d meals)\n", daily.TotalCalories, len(daily.Meals))
	return nil
}

func runMeals(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.tracker.Meals(ctx, mealsUser)
	if err != nil {
		return fmt.Errorf("listing meals: %w", err)
	}

	if len(list.Meals) == 0 {
		fmt.Printf("No meals logged for %s on %s\n", mealsUser, list.Date)
		return nil
	}

	fmt.Printf("%-8s  %-22s  %6s  %8s  %8s  %8s  %s\n", "Time", "Meal", "kcal", "Protein", "Carbs", "Fat", "Source")
	for _, meal := range list.Meals {
		protein, carbs, fat := "-", "-", "-"
		if m := meal.Macronutrients; m != nil {
			protein, carbs, fat = grams(m.Protein), grams(m.Carbs), grams(m.Fat)
		}
		fmt.Printf("%-8s  %-22.22s  %6d  %8s  %8s  %8s  %s\n",
			meal.LoggedAt.Format("15:04"), meal.Name, meal.EstimatedCalories, protein, carbs, fat, meal.Source)
	}
	fmt.Printf("Total: %d kcal\n", list.TotalCalories)
	return nil
}
