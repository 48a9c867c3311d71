// internal/tracker/tracker.go
package tracker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mcp-calorie-log/internal/events"
	"mcp-calorie-log/internal/ledger"
	"mcp-calorie-log/internal/models"
	"mcp-calorie-log/internal/nutrition"
	"mcp-calorie-log/internal/parser"
)

// ErrInvalidInput marks caller mistakes. Nothing was changed when it is returned.
var ErrInvalidInput = errors.New("invalid input")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// SettingsStore persists per-identity calorie goals.
type SettingsStore interface {
	LoadSettings(ctx context.Context, identity string) (models.Settings, error)
	SaveSettings(ctx context.Context, settings models.Settings) error
}

type Deps struct {
	Parser    *parser.Parser
	Ledgers   *ledger.Registry
	Settings  SettingsStore
	Publisher events.Publisher
	Logger    zerolog.Logger
	// Now stamps settings updates; defaults to time.Now.
	Now func() time.Time
	// PublishTimeout caps how long a request waits on the event publisher.
	PublishTimeout time.Duration
}

// DefaultPublishTimeout is used when Deps.PublishTimeout is zero.
const DefaultPublishTimeout = 500 * time.Millisecond

// Tracker is the entry point used by transports: it validates requests,
// parses descriptions and routes everything to the identity's ledger.
type Tracker struct {
	parser    *parser.Parser
	ledgers   *ledger.Registry
	settings  SettingsStore
	publisher events.Publisher
	pubWait   time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

func New(d Deps) *Tracker {
	t := &Tracker{
		parser:    d.Parser,
		ledgers:   d.Ledgers,
		settings:  d.Settings,
		publisher: d.Publisher,
		pubWait:   d.PublishTimeout,
		now:       d.Now,
		log:       d.Logger,
	}
	if t.publisher == nil {
		t.publisher = events.Nop{}
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.pubWait <= 0 {
		t.pubWait = DefaultPublishTimeout
	}
	return t
}

type LogMealRequest struct {
	Identity    string
	Description string
}

type StructuredMealRequest struct {
	Identity    string
	MealName    string
	Ingredients []models.Ingredient
}

type LogMealResponse struct {
	Success    bool        `json:"success"`
	Meal       models.Meal `json:"meal"`
	DailyTotal int         `json:"daily_total"`
	Message    string      `json:"message"`
}

type SettingsRequest struct {
	Identity            string
	TargetCalories      int
	MaintenanceCalories int
}

// LogMeal estimates a free-text description and stores it. Parsing never
// fails; only validation and persistence errors are returned.
func (t *Tracker) LogMeal(ctx context.Context, req LogMealRequest) (*LogMealResponse, error) {
	identity, err := requireIdentity(req.Identity)
	if err != nil {
		return nil, err
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return nil, invalid("meal description is required")
	}

	draft := t.parser.Parse(ctx, description)
	return t.store(ctx, identity, draft)
}

// LogStructuredMeal stores a meal whose calories are the sum of its ingredients.
func (t *Tracker) LogStructuredMeal(ctx context.Context, req StructuredMealRequest) (*LogMealResponse, error) {
	identity, err := requireIdentity(req.Identity)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.MealName)
	if name == "" {
		return nil, invalid("meal name is required")
	}
	if len(req.Ingredients) == 0 {
		return nil, invalid("at least one ingredient is required")
	}

	ingredients := make([]models.Ingredient, 0, len(req.Ingredients))
	var sum float64
	for i, ing := range req.Ingredients {
		ing.Name = strings.TrimSpace(ing.Name)
		ing.Amount = strings.TrimSpace(ing.Amount)
		if ing.Name == "" {
			return nil, invalid("ingredient %d: name is required", i+1)
		}
		if math.IsNaN(ing.Calories) || math.IsInf(ing.Calories, 0) || ing.Calories < 0 {
			return nil, invalid("ingredient %d: calories must be a non-negative number", i+1)
		}
		sum += ing.Calories
		ingredients = append(ingredients, ing)
	}

	return t.store(ctx, identity, models.MealDraft{
		Name:              name,
		EstimatedCalories: nutrition.NormalizeCalories(sum),
		Ingredients:       ingredients,
		Source:            models.SourceManual,
	})
}

func (t *Tracker) store(ctx context.Context, identity string, draft models.MealDraft) (*LogMealResponse, error) {
	meal, total, err := t.ledgers.Get(identity).Store(ctx, draft)
	if err != nil {
		return nil, err
	}

	pubCtx, cancel := context.WithTimeout(ctx, t.pubWait)
	err = t.publisher.PublishMealLogged(pubCtx, events.MealLogged{
		Identity:   identity,
		Meal:       meal,
		DailyTotal: total,
	})
	cancel()
	if err != nil {
		t.log.Warn().Err(err).Str("identity", identity).Msg("failed to publish meal event")
	}

	t.log.Info().
		Str("identity", identity).
		Str("source", string(meal.Source)).
		Int("calories", meal.EstimatedCalories).
		Int("daily_total", total).
		Msg("meal logged")

	return &LogMealResponse{
		Success:    true,
		Meal:       meal,
		DailyTotal: total,
		Message:    "Meal logged successfully",
	}, nil
}

// EstimateMeal parses a description without storing anything.
func (t *Tracker) EstimateMeal(ctx context.Context, description string) (models.MealDraft, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return models.MealDraft{}, invalid("meal description is required")
	}
	return t.parser.Parse(ctx, description), nil
}

func (t *Tracker) DailyTotal(ctx context.Context, identity string) (models.DailyTotal, error) {
	identity, err := requireIdentity(identity)
	if err != nil {
		return models.DailyTotal{}, err
	}
	return t.ledgers.Get(identity).Total(ctx)
}

func (t *Tracker) Meals(ctx context.Context, identity string) (models.MealList, error) {
	identity, err := requireIdentity(identity)
	if err != nil {
		return models.MealList{}, err
	}
	return t.ledgers.Get(identity).List(ctx)
}

func (t *Tracker) Settings(ctx context.Context, identity string) (models.Settings, error) {
	identity, err := requireIdentity(identity)
	if err != nil {
		return models.Settings{}, err
	}
	settings, err := t.settings.LoadSettings(ctx, identity)
	if err != nil {
		return models.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

// UpdateSettings saves the identity's target and maintenance calories.
func (t *Tracker) UpdateSettings(ctx context.Context, req SettingsRequest) (models.Settings, error) {
	identity, err := requireIdentity(req.Identity)
	if err != nil {
		return models.Settings{}, err
	}
	if req.TargetCalories <= 0 || req.MaintenanceCalories <= 0 {
		return models.Settings{}, invalid("calorie values must be greater than 0")
	}
	if req.TargetCalories > req.MaintenanceCalories {
		return models.Settings{}, invalid("target calories should not exceed maintenance calories")
	}

	settings := models.Settings{
		Identity:            identity,
		TargetCalories:      req.TargetCalories,
		MaintenanceCalories: req.MaintenanceCalories,
		UpdatedAt:           t.now().UTC(),
	}
	if err := t.settings.SaveSettings(ctx, settings); err != nil {
		return models.Settings{}, fmt.Errorf("save settings: %w", err)
	}
	return settings, nil
}

// Progress compares today's total with the identity's target.
func (t *Tracker) Progress(ctx context.Context, identity string) (models.Progress, error) {
	settings, err := t.Settings(ctx, identity)
	if err != nil {
		return models.Progress{}, err
	}
	identity = strings.TrimSpace(identity)
	daily, err := t.ledgers.Get(identity).Total(ctx)
	if err != nil {
		return models.Progress{}, err
	}
	return models.Progress{
		Identity:            identity,
		Date:                daily.Date,
		TotalCalories:       daily.TotalCalories,
		TargetCalories:      settings.TargetCalories,
		MaintenanceCalories: settings.MaintenanceCalories,
		RemainingCalories:   settings.TargetCalories - daily.TotalCalories,
		MealCount:           len(daily.Meals),
	}, nil
}

func requireIdentity(identity string) (string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", invalid("userId is required")
	}
	return identity, nil
}
