package rules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/franklinacm/synapse/internal/activity"
)

// dispatchOutcomes applies every outcome of a fired rule. A failing outcome
// is logged and the rest still run; the first failure is returned.
func (e *Engine) dispatchOutcomes(ctx context.Context, rule activity.Rule, rc *Context) error {
	outcomes, err := e.store.RuleOutcomes(ctx, rule.ID)
	if err != nil {
		return fmt.Errorf("load outcomes: %w", err)
	}

	var firstErr error
	for _, o := range outcomes {
		if err := e.dispatch(ctx, rule, o, rc); err != nil {
			slog.Error("outcome failed", "rule", rule.Name, "outcome", o.Type, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (e *Engine) dispatch(ctx context.Context, rule activity.Rule, o activity.RuleOutcome, rc *Context) error {
	switch o.Type {
	case activity.OutcomeCurrency:
		p, s := delta(o.PCurrency), delta(o.SCurrency)
		if p == 0 && s == 0 {
			return nil
		}
		applied, err := e.store.AddCurrency(ctx, rc.MemberID, p, s)
		if err != nil {
			return fmt.Errorf("add currency: %w", err)
		}
		if !applied {
			slog.Info("currency not applied to inactive member", "rule", rule.Name, "member_id", rc.MemberID)
			return nil
		}
		slog.Debug("currency applied", "rule", rule.Name, "member_id", rc.MemberID, "p", p, "s", s)

	case activity.OutcomeAchievement, activity.OutcomeAnnouncement:
		slog.Info("outcome not implemented", "rule", rule.Name, "outcome", o.Type, "member_id", rc.MemberID)

	default:
		slog.Warn("unknown outcome type", "rule", rule.Name, "outcome", o.Type)
	}
	return nil
}

func delta(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
