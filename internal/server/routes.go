// internal/server/routes.go
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mcp-calorie-log/internal/models"
	"mcp-calorie-log/internal/tracker"
)

type logMealBody struct {
	UserID          string `json:"userId"`
	MealDescription string `json:"mealDescription"`
}

// structuredMealBody accepts "meal_name", or "name" as sent by the meal form.
type structuredMealBody struct {
	MealName    string              `json:"meal_name"`
	Name        string              `json:"name"`
	Ingredients []models.Ingredient `json:"ingredients"`
}

type settingsBody struct {
	TargetCalories      int `json:"target_calories"`
	MaintenanceCalories int `json:"maintenance_calories"`
}

func (s *CalorieLogServer) decode(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		s.badRequest(w, "Invalid JSON: %v", err)
		return false
	}
	return true
}

func (s *CalorieLogServer) handleLogMeal(w http.ResponseWriter, r *http.Request) {
	var body logMealBody
	if !s.decode(w, r, &body) {
		return
	}
	if body.UserID == "" || body.MealDescription == "" {
		s.badRequest(w, "userId and mealDescription are required")
		return
	}

	resp, err := s.tracker.LogMeal(r.Context(), tracker.LogMealRequest{
		Identity:    body.UserID,
		Description: body.MealDescription,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *CalorieLogServer) handleLogStructuredMeal(w http.ResponseWriter, r *http.Request) {
	var body structuredMealBody
	if !s.decode(w, r, &body) {
		return
	}
	name := body.MealName
	if name == "" {
		name = body.Name
	}

	resp, err := s.tracker.LogStructuredMeal(r.Context(), tracker.StructuredMealRequest{
		Identity:    chi.URLParam(r, "userId"),
		MealName:    name,
		Ingredients: body.Ingredients,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *CalorieLogServer) handleDailyTotal(w http.ResponseWriter, r *http.Request) {
	daily, err := s.tracker.DailyTotal(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, daily)
}

func (s *CalorieLogServer) handleMeals(w http.ResponseWriter, r *http.Request) {
	list, err := s.tracker.Meals(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *CalorieLogServer) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.tracker.Settings(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

func (s *CalorieLogServer) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var body settingsBody
	if !s.decode(w, r, &body) {
		return
	}

	settings, err := s.tracker.UpdateSettings(r.Context(), tracker.SettingsRequest{
		Identity:            chi.URLParam(r, "userId"),
		TargetCalories:      body.TargetCalories,
		MaintenanceCalories: body.MaintenanceCalories,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"settings": settings,
	})
}

func (s *CalorieLogServer) handleProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.tracker.Progress(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, progress)
}
