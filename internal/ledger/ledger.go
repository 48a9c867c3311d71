// internal/ledger/ledger.go
package ledger

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mcp-calorie-log/internal/metrics"
	"mcp-calorie-log/internal/models"
)

// Ledger holds one identity's meals for the current day. All operations take
// the ledger's lock, so calls for the same identity run one at a time.
type Ledger struct {
	identity string
	store    Store
	clock    Clock
	timeout  time.Duration
	metrics  *metrics.Metrics
	log      zerolog.Logger

	mu    sync.Mutex
	ready bool
	date  string
	meals []models.Meal
}

func newLedger(identity string, store Store, clock Clock, timeout time.Duration, m *metrics.Metrics, log zerolog.Logger) *Ledger {
	return &Ledger{
		identity: identity,
		store:    store,
		clock:    clock,
		timeout:  timeout,
		metrics:  m,
		log:      log.With().Str("identity", identity).Logger(),
	}
}

// Identity returns the key this ledger was created for.
func (l *Ledger) Identity() string {
	return l.identity
}

// Store appends draft to today's meals and persists the whole day before
// returning. On a persistence failure nothing changes in memory.
func (l *Ledger) Store(ctx context.Context, draft models.MealDraft) (models.Meal, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now, err := l.prepare(ctx)
	if err != nil {
		return models.Meal{}, 0, err
	}

	loggedAt := now
	if n := len(l.meals); n > 0 && loggedAt.Before(l.meals[n-1].LoggedAt) {
		loggedAt = l.meals[n-1].LoggedAt
	}

	meal := models.Meal{
		ID:                uuid.NewString(),
		Name:              draft.Name,
		EstimatedCalories: draft.EstimatedCalories,
		Macronutrients:    draft.Macronutrients,
		Ingredients:       draft.Ingredients,
		Source:            draft.Source,
		LoggedAt:          loggedAt,
	}

	next := make([]models.Meal, len(l.meals), len(l.meals)+1)
	copy(next, l.meals)
	next = append(next, meal)

	saveCtx, cancel := l.persistContext(ctx)
	err = l.store.SaveLedger(saveCtx, l.identity, State{Meals: next, Date: l.date})
	cancel()
	if err != nil {
		l.metrics.ObservePersistenceError("save")
		return models.Meal{}, 0, fmt.Errorf("%w: save ledger for %s: %v", ErrPersistence, l.identity, err)
	}

	l.meals = next
	l.metrics.ObserveStored(string(meal.Source))
	l.log.Debug().
		Str("meal_id", meal.ID).
		Int("calories", meal.EstimatedCalories).
		Int("meal_count", len(l.meals)).
		Msg("meal stored")

	return meal, sumCalories(l.meals), nil
}

// Total returns today's calorie sum and a name/calories/time projection of
// each meal, oldest first.
func (l *Ledger) Total(ctx context.Context) (models.DailyTotal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.prepare(ctx); err != nil {
		return models.DailyTotal{}, err
	}

	summaries := make([]models.MealSummary, 0, len(l.meals))
	for _, m := range l.meals {
		summaries = append(summaries, models.MealSummary{
			Name:              m.Name,
			EstimatedCalories: m.EstimatedCalories,
			LoggedAt:          m.LoggedAt,
		})
	}

	return models.DailyTotal{
		Date:          l.date,
		TotalCalories: sumCalories(l.meals),
		Meals:         summaries,
	}, nil
}

// List returns today's full meal records, oldest first, with the total.
func (l *Ledger) List(ctx context.Context) (models.MealList, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.prepare(ctx); err != nil {
		return models.MealList{}, err
	}

	meals := make([]models.Meal, len(l.meals))
	copy(meals, l.meals)

	return models.MealList{
		Date:          l.date,
		Meals:         meals,
		TotalCalories: sumCalories(meals),
	}, nil
}

// prepare loads persisted state on first use and applies the day rollover.
// Must be called with l.mu held.
func (l *Ledger) prepare(ctx context.Context) (time.Time, error) {
	now := l.clock.Now()
	today := DateOf(l.clock, now)

	if !l.ready {
		if err := l.load(ctx, today); err != nil {
			return now, err
		}
		l.ready = true
		return now, nil
	}

	if l.date != today {
		l.log.Info().
			Str("from", l.date).
			Str("to", today).
			Int("discarded", len(l.meals)).
			Msg("ledger rolled over")
		l.meals = nil
		l.date = today
		l.metrics.ObserveRollover()
	}
	return now, nil
}

func (l *Ledger) load(ctx context.Context, today string) error {
	ctx, cancel := l.persistContext(ctx)
	defer cancel()

	state, err := l.store.LoadLedger(ctx, l.identity)
	if err != nil {
		l.metrics.ObservePersistenceError("load")
		return fmt.Errorf("%w: load ledger for %s: %v", ErrPersistence, l.identity, err)
	}

	l.date = today
	l.meals = nil

	if state == nil {
		return nil
	}
	if state.Date == today {
		l.meals = state.Meals
		return nil
	}

	if err := l.store.ClearLedger(ctx, l.identity); err != nil {
		l.metrics.ObservePersistenceError("clear")
		return fmt.Errorf("%w: clear stale ledger for %s: %v", ErrPersistence, l.identity, err)
	}
	l.metrics.ObserveRollover()
	l.log.Info().
		Str("from", state.Date).
		Str("to", today).
		Int("discarded", len(state.Meals)).
		Msg("discarded persisted ledger from a previous day")
	return nil
}

// persistContext bounds a single storage call. A zero timeout leaves ctx as is.
func (l *Ledger) persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.timeout)
}

// sumCalories saturates at math.MaxInt instead of wrapping.
func sumCalories(meals []models.Meal) int {
	total := 0
	for _, m := range meals {
		if m.EstimatedCalories > math.MaxInt-total {
			return math.MaxInt
		}
		total += m.EstimatedCalories
	}
	return total
}
