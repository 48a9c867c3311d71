// cmd/calorie-log/settings.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mcp-calorie-log/internal/tracker"
)

var (
	settingsUser        string
	settingsTarget      int
	settingsMaintenance int
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or update a user's calorie goals",
	Long: `Without --target and --maintenance, prints the user's goals and today's
progress. With both flags, saves new goals first.`,
	RunE: runSettings,
}

func init() {
	settingsCmd.Flags().StringVar(&settingsUser, "user", "", "user to query or update (required)")
	settingsCmd.Flags().IntVar(&settingsTarget, "target", 0, "daily calorie target")
	settingsCmd.Flags().IntVar(&settingsMaintenance, "maintenance", 0, "daily maintenance calories")
	settingsCmd.MarkFlagsRequiredTogether("target", "maintenance")
	_ = settingsCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(settingsCmd)
}

func runSettings(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if cmd.Flags().Changed("target") {
		if _, err := a.tracker.UpdateSettings(ctx, tracker.SettingsRequest{
			Identity:            settingsUser,
			TargetCalories:      settingsTarget,
			MaintenanceCalories: settingsMaintenance,
		}); err != nil {
			return fmt.Errorf("updating settings: %w", err)
		}
		fmt.Println("Settings saved")
	}

	progress, err := a.tracker.Progress(ctx, settingsUser)
	if err != nil {
		return fmt.Errorf("reading progress: %w", err)
	}
	fmt.Printf("Target:      %d kcal\n", progress.TargetCalories)
	fmt.Printf("Maintenance: %d kcal\n", progress.MaintenanceCalories)
	fmt.Printf("Today:       %d kcal in %d meals (%s)\n", progress.TotalCalories, progress.MealCount, progress.Date)
	fmt.Printf("Remaining:   %d kcal\n", progress.RemainingCalories)
	return nil
}
