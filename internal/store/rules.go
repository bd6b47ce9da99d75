package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/franklinacm/synapse/internal/activity"
)

const ruleColumns = `id, name, description, event_type, enabled, applies_live, applies_historic, cooldown_seconds`

// EnabledRules returns the enabled rules for an event type, ordered by name.
func (s *Store) EnabledRules(ctx context.Context, et activity.EventType) ([]activity.Rule, error) {
	return s.readRules(ctx, `SELECT `+ruleColumns+` FROM rules
		WHERE enabled = 1 AND event_type = ? ORDER BY name, id`, string(et))
}

// Rules returns every rule, ordered by name.
func (s *Store) Rules(ctx context.Context) ([]activity.Rule, error) {
	return s.readRules(ctx, `SELECT `+ruleColumns+` FROM rules ORDER BY name, id`)
}

// RuleByName reads a rule by its unique name.
func (s *Store) RuleByName(ctx context.Context, name string) (activity.Rule, bool, error) {
	rules, err := s.readRules(ctx, `SELECT `+ruleColumns+` FROM rules WHERE name = ?`, name)
	if err != nil {
		return activity.Rule{}, false, err
	}
	if len(rules) == 0 {
		return activity.Rule{}, false, nil
	}
	return rules[0], true, nil
}

func (s *Store) readRules(ctx context.Context, query string, args ...any) ([]activity.Rule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	defer rows.Close()

	var out []activity.Rule
	for rows.Next() {
		var (
			r                       activity.Rule
			eventType               string
			enabled, live, historic int
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &eventType, &enabled, &live, &historic,
			&r.CooldownSeconds); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.EventType = activity.EventType(eventType)
		r.Enabled = enabled == 1
		r.AppliesLive = live == 1
		r.AppliesHistoric = historic == 1
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rules: rows: %w", err)
	}
	return out, nil
}

// RulePredicates returns a rule's predicates in evaluation order.
func (s *Store) RulePredicates(ctx context.Context, ruleID int64) ([]activity.RulePredicate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_id, predicate_type, parameters, sort_order
		FROM rule_predicates WHERE rule_id = ?
		ORDER BY sort_order, id
	`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("read predicates of rule %d: %w", ruleID, err)
	}
	defer rows.Close()

	var out []activity.RulePredicate
	for rows.Next() {
		var (
			p      activity.RulePredicate
			params sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.RuleID, &p.Type, &params, &p.SortOrder); err != nil {
			return nil, fmt.Errorf("scan predicate: %w", err)
		}
		if params.Valid && params.String != "" {
			p.Params = json.RawMessage(params.String)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read predicates of rule %d: rows: %w", ruleID, err)
	}
	return out, nil
}

// RuleOutcomes returns a rule's outcomes.
func (s *Store) RuleOutcomes(ctx context.Context, ruleID int64) ([]activity.RuleOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_id, outcome_type, p_currency, s_currency, parameters
		FROM rule_outcomes WHERE rule_id = ?
		ORDER BY id
	`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("read outcomes of rule %d: %w", ruleID, err)
	}
	defer rows.Close()

	var out []activity.RuleOutcome
	for rows.Next() {
		var (
			o           activity.RuleOutcome
			outcomeType string
			p, sc       sql.NullInt64
			params      sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.RuleID, &outcomeType, &p, &sc, &params); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Type = activity.OutcomeType(outcomeType)
		o.PCurrency = int64Ptr(p)
		o.SCurrency = int64Ptr(sc)
		if params.Valid && params.String != "" {
			o.Params = json.RawMessage(params.String)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read outcomes of rule %d: rows: %w", ruleID, err)
	}
	return out, nil
}

// SaveRuleDefinition inserts a rule or, when a rule with the same name
// exists, updates it in place and replaces its predicates and outcomes.
// Updating in place keeps the rule id, so its firing history still counts
// toward dedup and cooldown.
func (s *Store) SaveRuleDefinition(ctx context.Context, def activity.RuleDefinition) (int64, error) {
	var ruleID int64
	err := s.withTx(ctx, "save rule "+def.Rule.Name, func(tx *sql.Tx) error {
		r := def.Rule
		err := tx.QueryRowContext(ctx, `
			INSERT INTO rules (name, description, event_type, enabled, applies_live, applies_historic, cooldown_seconds)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				description = excluded.description,
				event_type = excluded.event_type,
				enabled = excluded.enabled,
				applies_live = excluded.applies_live,
				applies_historic = excluded.applies_historic,
				cooldown_seconds = excluded.cooldown_seconds
			RETURNING id
		`, r.Name, r.Description, string(r.EventType), boolToInt(r.Enabled), boolToInt(r.AppliesLive),
			boolToInt(r.AppliesHistoric), r.CooldownSeconds).Scan(&ruleID)
		if err != nil {
			return fmt.Errorf("upsert rule: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM rule_predicates WHERE rule_id = ?`, ruleID); err != nil {
			return fmt.Errorf("clear predicates: %w", err)
		}
		for i, p := range def.Predicates {
			order := p.SortOrder
			if order == 0 {
				order = i + 1
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO rule_predicates (rule_id, predicate_type, parameters, sort_order)
				VALUES (?, ?, ?, ?)
			`, ruleID, p.Type, nullRaw(p.Params), order)
			if err != nil {
				return fmt.Errorf("insert predicate %s: %w", p.Type, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM rule_outcomes WHERE rule_id = ?`, ruleID); err != nil {
			return fmt.Errorf("clear outcomes: %w", err)
		}
		for _, o := range def.Outcomes {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO rule_outcomes (rule_id, outcome_type, p_currency, s_currency, parameters)
				VALUES (?, ?, ?, ?, ?)
			`, ruleID, string(o.Type), nullInt64(o.PCurrency), nullInt64(o.SCurrency), nullRaw(o.Params))
			if err != nil {
				return fmt.Errorf("insert outcome %s: %w", o.Type, err)
			}
		}
		return nil
	})
	return ruleID, err
}

// SetRuleEnabled toggles a rule. Returns false if no rule has that name.
func (s *Store) SetRuleEnabled(ctx context.Context, name string, enabled bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE rules SET enabled = ? WHERE name = ?`, boolToInt(enabled), name)
	if err != nil {
		return false, fmt.Errorf("set rule %s enabled: %w", name, err)
	}
	return affected(res)
}

// HasEvaluation reports whether the rule already fired for the event.
func (s *Store) HasEvaluation(ctx context.Context, ruleID, eventID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM rule_evaluations WHERE rule_id = ? AND event_id = ?
	`, ruleID, eventID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check evaluation: %w", err)
	}
	return count > 0, nil
}

// HasEvaluationSince reports whether the rule fired for the member strictly
// after since.
func (s *Store) HasEvaluationSince(ctx context.Context, ruleID, memberID int64, since time.Time) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM rule_evaluations
		WHERE rule_id = ? AND member_id = ? AND fired_at > ?
	`, ruleID, memberID, activity.FormatTime(since)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check cooldown: %w", err)
	}
	return count > 0, nil
}

// RecordEvaluation appends a firing to the ledger.
//
// Uses ON CONFLICT(rule_id, event_id) DO NOTHING, so two workers racing past
// the dedup check cannot both record. inserted is false when the firing
// already existed; callers must not dispatch outcomes in that case.
func (s *Store) RecordEvaluation(ctx context.Context, ev activity.RuleEvaluation) (id int64, inserted bool, err error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO rule_evaluations (rule_id, event_id, member_id, fired_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(rule_id, event_id) DO NOTHING
	`, ev.RuleID, ev.EventID, ev.MemberID, activity.FormatTime(ev.FiredAt))
	if err != nil {
		return 0, false, fmt.Errorf("record evaluation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("record evaluation: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return 0, false, nil
	}
	id, err = result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("record evaluation: last insert id: %w", err)
	}
	return id, true, nil
}

// Evaluations returns a rule's firings, oldest first.
func (s *Store) Evaluations(ctx context.Context, ruleID int64) ([]activity.RuleEvaluation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_id, event_id, member_id, fired_at
		FROM rule_evaluations WHERE rule_id = ?
		ORDER BY fired_at, id
	`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("read evaluations: %w", err)
	}
	defer rows.Close()

	var out []activity.RuleEvaluation
	for rows.Next() {
		var (
			e       activity.RuleEvaluation
			firedAt string
		)
		if err := rows.Scan(&e.ID, &e.RuleID, &e.EventID, &e.MemberID, &firedAt); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		if e.FiredAt, err = activity.ParseTime(firedAt); err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read evaluations: rows: %w", err)
	}
	return out, nil
}

// UpsertSeason inserts or updates a season by name.
func (s *Store) UpsertSeason(ctx context.Context, season activity.Season) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO seasons (name, starts_at, ends_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET starts_at = excluded.starts_at, ends_at = excluded.ends_at
		RETURNING id
	`, season.Name, activity.FormatTime(season.StartsAt), nullTime(season.EndsAt)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert season %s: %w", season.Name, err)
	}
	return id, nil
}

// SeasonActiveAt reports whether the season with id covers at.
func (s *Store) SeasonActiveAt(ctx context.Context, seasonID int64, at time.Time) (bool, error) {
	var count int
	ts := activity.FormatTime(at)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM seasons
		WHERE id = ? AND starts_at <= ? AND (ends_at IS NULL OR ends_at > ?)
	`, seasonID, ts, ts).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check season %d: %w", seasonID, err)
	}
	return count > 0, nil
}

// AnySeasonActiveAt reports whether any season covers at.
func (s *Store) AnySeasonActiveAt(ctx context.Context, at time.Time) (bool, error) {
	var count int
	ts := activity.FormatTime(at)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM seasons
		WHERE starts_at <= ? AND (ends_at IS NULL OR ends_at > ?)
	`, ts, ts).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check active seasons: %w", err)
	}
	return count > 0, nil
}

// Season reads a season by id.
func (s *Store) Season(ctx context.Context, id int64) (activity.Season, bool, error) {
	var (
		season   activity.Season
		startsAt string
		endsAt   sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, name, starts_at, ends_at FROM seasons WHERE id = ?`, id).
		Scan(&season.ID, &season.Name, &startsAt, &endsAt)
	if errors.Is(err, sql.ErrNoRows) {
		return activity.Season{}, false, nil
	}
	if err != nil {
		return activity.Season{}, false, fmt.Errorf("read season %d: %w", id, err)
	}
	if season.StartsAt, err = activity.ParseTime(startsAt); err != nil {
		return activity.Season{}, false, fmt.Errorf("read season %d: %w", id, err)
	}
	if season.EndsAt, err = timePtr(endsAt); err != nil {
		return activity.Season{}, false, fmt.Errorf("read season %d: %w", id, err)
	}
	return season, true, nil
}

func nullRaw(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
