package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var temporalPredicates = map[string]struct{}{
	"HOUR_OF_DAY_BETWEEN": {},
	"DAY_OF_WEEK_IS":      {},
	"DURING_SEASON":       {},
	"NOT_DURING_SEASON":   {},
	"SEASON_ACTIVE":       {},
}

// TemporalEvaluator answers time-of-event and season predicates.
// Hours and weekdays are taken in UTC.
type TemporalEvaluator struct {
	store LookupStore
	clock Clock
}

// NewTemporalEvaluator creates a TemporalEvaluator reading seasons from s.
func NewTemporalEvaluator(s LookupStore, clock Clock) *TemporalEvaluator {
	return &TemporalEvaluator{store: s, clock: clock}
}

func (e *TemporalEvaluator) Handles(predicateType string) bool {
	_, ok := temporalPredicates[predicateType]
	return ok
}

func (e *TemporalEvaluator) Evaluate(ctx context.Context, predicateType string, rc *Context, params json.RawMessage) (bool, error) {
	at := rc.ReferenceTime(e.clock.Now()).UTC()

	switch predicateType {
	case "HOUR_OF_DAY_BETWEEN":
		var p struct {
			From *int `json:"from"`
			To   *int `json:"to"`
		}
		if err := decodeParams(predicateType, params, &p); err != nil {
			return false, err
		}
		if p.From == nil || p.To == nil {
			return false, predicateErrorf(ErrCodeInvalidParams, predicateType, "from and to are required")
		}
		if *p.From < 0 || *p.From > 23 || *p.To < 0 || *p.To > 24 {
			return false, predicateErrorf(ErrCodeInvalidParams, predicateType, "hours out of range: %d-%d", *p.From, *p.To)
		}
		return hourBetween(at.Hour(), *p.From, *p.To), nil

	case "DAY_OF_WEEK_IS":
		name, err := stringParam(predicateType, params, "day")
		if err != nil {
			return false, err
		}
		wd, ok := parseWeekday(name)
		if !ok {
			return false, predicateErrorf(ErrCodeInvalidParams, predicateType, "unknown day %q", name)
		}
		return at.Weekday() == wd, nil

	case "DURING_SEASON", "NOT_DURING_SEASON":
		seasonID, err := idParam(predicateType, params, "season_id")
		if err != nil {
			return false, err
		}
		active, err := e.store.SeasonActiveAt(ctx, seasonID, at)
		if err != nil {
			return false, fmt.Errorf("season %d: %w", seasonID, err)
		}
		return active == (predicateType == "DURING_SEASON"), nil

	case "SEASON_ACTIVE":
		active, err := e.store.AnySeasonActiveAt(ctx, at)
		if err != nil {
			return false, fmt.Errorf("active season: %w", err)
		}
		return active, nil
	}
	return false, predicateErrorf(ErrCodeUnknownPredicate, predicateType, "not a temporal predicate")
}

// hourBetween reports whether hour is in [from, to), wrapping past midnight
// when from > to. from == to matches nothing.
func hourBetween(hour, from, to int) bool {
	if from <= to {
		return hour >= from && hour < to
	}
	return hour >= from || hour < to
}

func parseWeekday(name string) (time.Weekday, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return d, true
		}
	}
	return 0, false
}
