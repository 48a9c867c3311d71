// internal/server/tools.go
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"

	"mcp-calorie-log/internal/models"
	"mcp-calorie-log/internal/tracker"
)

type toolHandler func(r *http.Request, req *protocol.CallToolRequest) (interface{}, error)

type LogMealParams struct {
	UserID      string `json:"user_id" description:"Identity whose daily ledger receives the meal"`
	Description string `json:"description" description:"Description of the meal eaten"`
}

type LogStructuredMealParams struct {
	UserID      string              `json:"user_id" description:"Identity whose daily ledger receives the meal"`
	MealName    string              `json:"meal_name" description:"Name of the meal, e.g. breakfast"`
	Ingredients []models.Ingredient `json:"ingredients" description:"Ingredients with name, amount and calories"`
}

type EstimateMealParams struct {
	Description string `json:"description" description:"Description of the meal to analyze"`
}

type UserParams struct {
	UserID string `json:"user_id" description:"Identity to query"`
}

type UpdateSettingsParams struct {
	UserID              string `json:"user_id" description:"Identity to update"`
	TargetCalories      int    `json:"target_calories" description:"Daily calorie target"`
	MaintenanceCalories int    `json:"maintenance_calories" description:"Daily maintenance calories"`
}

// extractParams safely extracts parameters from the request arguments
func extractParams(req *protocol.CallToolRequest, target interface{}) error {
	jsonBytes, err := json.Marshal(req.Arguments)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal arguments: %v", tracker.ErrInvalidInput, err)
	}

	if err := json.Unmarshal(jsonBytes, target); err != nil {
		return fmt.Errorf("%w: invalid parameters: %v", tracker.ErrInvalidInput, err)
	}

	return nil
}

func (s *CalorieLogServer) registerTools() map[string]toolHandler {
	tools := map[string]toolHandler{
		"log_meal":            s.toolLogMeal,
		"log_structured_meal": s.toolLogStructuredMeal,
		"estimate_meal":       s.toolEstimateMeal,
		"get_daily_total":     s.toolDailyTotal,
		"get_meals":           s.toolMeals,
		"get_settings":        s.toolGetSettings,
		"update_settings":     s.toolUpdateSettings,
		"get_progress":        s.toolProgress,
	}
	for name := range tools {
		s.log.Debug().Str("tool", name).Msg("registered tool")
	}
	return tools
}

// handleToolCall serves MCP-style tools/call requests over plain HTTP.
func (s *CalorieLogServer) handleToolCall(w http.ResponseWriter, r *http.Request) {
	var request protocol.CallToolRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.badRequest(w, "Invalid JSON: %v", err)
		return
	}

	handler, ok := s.tools[request.Name]
	if !ok {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": fmt.Sprintf("Unknown tool: %s", request.Name)})
		return
	}

	data, err := handler(r, &request)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := createToolResult(data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func createToolResult(data interface{}) (*protocol.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}

	return &protocol.CallToolResult{
		Content: []protocol.Content{
			protocol.TextContent{
				Type: "text",
				Text: string(jsonBytes),
			},
		},
	}, nil
}

func (s *CalorieLogServer) toolLogMeal(r *http.Request, req *protocol.CallToolRequest) (interface{}, error) {
	var params LogMealParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	return s.tracker.LogMeal(r.Context(), tracker.LogMealRequest{
		Identity:    params.UserID,
		Description: params.Description,
	})
}

func (s *CalorieLogServer) toolLogStructuredMeal(r *http.Request, req *protocol.CallToolRequest) (interface{}, error) {
	var params LogStructuredMealParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	return s.tracker.LogStructuredMeal(r.Context(), tracker.StructuredMealRequest{
		Identity:    params.UserID,
		MealName:    params.MealName,
		Ingredients: params.Ingredients,
	})
}

func (s *CalorieLogServer) toolEstimateMeal(r *http.Request, req *protocol.CallToolRequest) (interface{}, error) {
	var params EstimateMealParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	return s.tracker.EstimateMeal(r.Context(), params.Description)
}

func (s *CalorieLogServer) toolDailyTotal(r *http.Request, req *protocol.CallToolRequest) (interface{}, error) {
	var params UserParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	return s.tracker.DailyTotal(r.Context(), params.UserID)
}

func (s *CalorieLogServer) toolMeals(r *http.Request, req *protocol.CallToolRequest) (interface{}, error) {
	var params UserParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	return s.tracker.Meals(r.Context(), params.UserID)
}

func (s *CalorieLogServer) toolGetSettings(r *http.Request, req *protocol.CallToolRequest) (interface{}, error) {
	var params UserParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	return s.tracker.Settings(r.Context(), params.UserID)
}

func (s *CalorieLogServer) toolUpdateSettings(r *http.Request, req *protocol.CallToolRequest) (interface{}, error) {
	var params UpdateSettingsParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	return s.tracker.UpdateSettings(r.Context(), tracker.SettingsRequest{
		Identity:            params.UserID,
		TargetCalories:      params.TargetCalories,
		MaintenanceCalories: params.MaintenanceCalories,
	})
}

func (s *CalorieLogServer) toolProgress(r *http.Request, req *protocol.CallToolRequest) (interface{}, error) {
	var params UserParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}
	return s.tracker.Progress(r.Context(), params.UserID)
}
