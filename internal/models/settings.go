// internal/models/settings.go
package models

import "time"

const (
	DefaultTargetCalories      = 2000
	DefaultMaintenanceCalories = 2200
)

type Settings struct {
	Identity            string    `json:"identity"`
	TargetCalories      int       `json:"target_calories"`
	MaintenanceCalories int       `json:"maintenance_calories"`
	UpdatedAt           time.Time `json:"updated_at,omitempty"`
}

// DefaultSettings is what an identity gets before it saves anything.
func DefaultSettings(identity string) Settings {
	return Settings{
		Identity:            identity,
		TargetCalories:      DefaultTargetCalories,
		MaintenanceCalories: DefaultMaintenanceCalories,
	}
}

// Progress is today's intake measured against the identity's target.
type Progress struct {
	Identity            string `json:"identity"`
	Date                string `json:"date"`
	TotalCalories       int    `json:"total_calories"`
	TargetCalories      int    `json:"target_calories"`
	MaintenanceCalories int    `json:"maintenance_calories"`
	RemainingCalories   int    `json:"remaining_calories"`
	MealCount           int    `json:"meal_count"`
}
